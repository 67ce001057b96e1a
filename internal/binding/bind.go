package binding

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/mapruntime/client/internal/interpreter"
	"github.com/mapruntime/client/internal/logging"
	"github.com/mapruntime/client/internal/mapast"
	"github.com/mapruntime/client/internal/profile"
	"github.com/mapruntime/client/internal/providerbind"
	"github.com/mapruntime/client/internal/sandbox"
	"github.com/mapruntime/client/internal/security"
	"github.com/mapruntime/client/internal/transport"
	"go.opentelemetry.io/otel/trace"
)

// Binder resolves profile, provider, and map configuration into a
// cached BoundProfileProvider — the Binding/Resolution pipeline of
// SPEC_FULL.md §4.H.
type Binder struct {
	opts   Options
	cache  *boundCache
	fetch  transport.Fetcher
	sbox   *sandbox.Evaluator
	sec    *security.Handler
	tracer trace.Tracer
	log    logging.Logger
}

// NewBinder builds a Binder. fetcher/sbox/sec/tracer/log are the
// injected capabilities every BoundProfileProvider it produces is
// constructed with, consistent with this module's no-package-level-
// globals discipline for loggers and tracers. tracer may be nil — the
// interpreter falls back to no-op spans.
func NewBinder(opts Options, fetcher transport.Fetcher, sbox *sandbox.Evaluator, sec *security.Handler, tracer trace.Tracer, log logging.Logger) *Binder {
	if log == nil {
		log = logging.Nop
	}
	return &Binder{opts: defaultOptions(opts), cache: newBoundCache(), fetch: fetcher, sbox: sbox, sec: sec, tracer: tracer, log: log}
}

// Bind resolves profile, provider descriptor, and map AST per
// configuration and returns a ready-to-use BoundProfileProvider,
// reusing a cached instance within its TTL.
func (b *Binder) Bind(ctx context.Context, profileCfg ProfileConfig, providerCfg ProviderConfig, ppCfg ProfileProviderConfig) (*providerbind.BoundProfileProvider, error) {
	key := fmt.Sprintf("%s|%s|%s|%s", profileCfg.ProfileID, providerCfg.Name, ppCfg.CacheKey, providerCfg.CacheKey)

	b.log("binding", "binding", map[string]any{
		"profile": profileCfg.ProfileID, "provider": providerCfg.Name, "key": key,
	})

	return b.cache.getOrBind(key, func() (*providerbind.BoundProfileProvider, error) {
		return b.bindUncached(ctx, profileCfg, providerCfg, ppCfg)
	})
}

func (b *Binder) bindUncached(ctx context.Context, profileCfg ProfileConfig, providerCfg ProviderConfig, ppCfg ProfileProviderConfig) (*providerbind.BoundProfileProvider, error) {
	profileDoc, err := b.resolveProfile(ctx, profileCfg)
	if err != nil {
		return nil, err
	}

	providerDesc, err := b.resolveProvider(ctx, providerCfg)
	if err != nil {
		return nil, err
	}

	mapDoc, err := b.resolveMap(ctx, profileCfg, providerCfg, ppCfg)
	if err != nil {
		return nil, err
	}

	if err := checkConsistency(providerCfg.Name, providerDesc.Name, mapDoc.Header, profileCfg.ProfileID, ppCfg); err != nil {
		return nil, err
	}

	secValues := security.Overlay(providerCfg.SecurityValues, ppCfg.SecurityValues)
	secConfigs, err := security.Resolve(providerDesc.SecuritySchemes, secValues)
	if err != nil {
		return nil, err
	}

	params := providerCfg.Parameters

	interp := interpreter.New(b.fetch, b.sbox, b.sec, b.tracer, b.log)

	bp := providerbind.New(profileCfg.ProfileID, profileDoc, mapDoc, providerDesc,
		ppCfg.Defaults, secConfigs, params, interp, b.opts.CacheTTL, b.log)

	return bp, nil
}

func checkConsistency(configuredProvider, descriptorProvider string, header mapast.Header, configuredProfileID string, ppCfg ProfileProviderConfig) error {
	if configuredProvider != "" && descriptorProvider != "" && header.Provider != "" {
		if configuredProvider != descriptorProvider || descriptorProvider != header.Provider {
			return &ProvidersDoNotMatchError{Configured: configuredProvider, Descriptor: descriptorProvider, MapHeader: header.Provider}
		}
	}
	if ppCfg.Variant != "" && header.Variant != "" && ppCfg.Variant != header.Variant {
		return &VariantMismatchError{Configured: ppCfg.Variant, MapHeader: header.Variant}
	}
	if ppCfg.MapFile != "" && configuredProfileID != "" && header.ProfileID != "" && configuredProfileID != header.ProfileID {
		return &ProfileIdsDoNotMatchError{Configured: configuredProfileID, MapHeader: header.ProfileID}
	}
	return nil
}

func (b *Binder) resolveProfile(ctx context.Context, cfg ProfileConfig) (*profile.Document, error) {
	if cfg.File != "" {
		if !strings.HasSuffix(cfg.File, profileBuildExt) {
			return nil, &UnsupportedFileExtensionError{Path: cfg.File}
		}
		raw, err := os.ReadFile(cfg.File)
		if err != nil {
			return nil, &ReferencedFileNotFoundError{Path: cfg.File, Err: err}
		}
		return ParseProfileAST(raw)
	}

	if cfg.Version == "" {
		return nil, &UnableToResolveProfileError{ProfileID: cfg.ProfileID}
	}
	if b.opts.Registry == nil {
		return nil, &UnableToResolveProfileError{ProfileID: cfg.ProfileID}
	}

	raw, err := b.opts.Registry.FetchProfile(ctx, cfg.ProfileID, cfg.Version)
	if err != nil {
		return nil, err
	}
	return ParseProfileAST(raw)
}

func (b *Binder) resolveProvider(ctx context.Context, cfg ProviderConfig) (providerbind.ProviderDescriptor, error) {
	if cfg.File != "" {
		raw, err := os.ReadFile(cfg.File)
		if err != nil {
			return providerbind.ProviderDescriptor{}, &ReferencedFileNotFoundError{Path: cfg.File, Err: err}
		}
		return decodeProviderJSON(raw)
	}

	if b.opts.DescriptorCache != nil {
		if desc, ok, err := b.opts.DescriptorCache.Get(cfg.Name); err == nil && ok {
			return desc, nil
		}
	}

	if b.opts.Registry == nil {
		return providerbind.ProviderDescriptor{}, fmt.Errorf("binding: no registry configured to resolve provider %s", cfg.Name)
	}

	env, err := b.opts.Registry.FetchProvider(ctx, cfg.Name)
	if err != nil {
		return providerbind.ProviderDescriptor{}, err
	}

	desc, err := providerDescFromWire(env.Definition)
	if err != nil {
		return providerbind.ProviderDescriptor{}, err
	}
	if len(desc.Services) == 0 || desc.DefaultService == "" {
		return providerbind.ProviderDescriptor{}, ErrInvalidProviderResponse
	}

	if b.opts.DescriptorCache != nil {
		if err := b.opts.DescriptorCache.Put(cfg.Name, desc); err != nil {
			b.log("binding", "provider descriptor cache write failed", map[string]any{"provider": cfg.Name, "error": err.Error()})
		}
	}

	return desc, nil
}

func providerDescFromWire(pj providerJSON) (providerbind.ProviderDescriptor, error) {
	raw, err := json.Marshal(pj)
	if err != nil {
		return providerbind.ProviderDescriptor{}, fmt.Errorf("binding: re-encode provider response: %w", err)
	}
	return decodeProviderJSON(raw)
}

func (b *Binder) resolveMap(ctx context.Context, profileCfg ProfileConfig, providerCfg ProviderConfig, ppCfg ProfileProviderConfig) (*mapast.Document, error) {
	if ppCfg.MapFile != "" {
		switch {
		case strings.HasSuffix(ppCfg.MapFile, mapBuildExt):
			raw, err := os.ReadFile(ppCfg.MapFile)
			if err != nil {
				return nil, &ReferencedFileNotFoundError{Path: ppCfg.MapFile, Err: err}
			}
			return ParseMapAST(raw)

		case strings.HasSuffix(ppCfg.MapFile, mapSourceExt):
			buildPath := strings.TrimSuffix(ppCfg.MapFile, mapSourceExt) + mapBuildExt
			if _, err := os.Stat(buildPath); err != nil {
				return nil, &SourceFileExtensionFoundError{Path: ppCfg.MapFile, ExpectedBuildPath: buildPath}
			}
			raw, err := os.ReadFile(buildPath)
			if err != nil {
				return nil, &ReferencedFileNotFoundError{Path: buildPath, Err: err}
			}
			return ParseMapAST(raw)

		default:
			return nil, &UnsupportedFileExtensionError{Path: ppCfg.MapFile}
		}
	}

	if b.opts.Registry == nil {
		return nil, fmt.Errorf("binding: no registry configured to resolve map for profile %s / provider %s", profileCfg.ProfileID, providerCfg.Name)
	}

	resp, err := b.opts.Registry.Bind(ctx, profileCfg.ProfileID, providerCfg.Name, ppCfg.Variant, ppCfg.Revision)
	if err != nil {
		return nil, err
	}

	mapDoc, parseErr := ParseMapAST([]byte(resp.MapAST))
	if parseErr == nil {
		return mapDoc, nil
	}

	// Malformed embedded AST: fall back to fetching the map source and
	// decoding it with ParseMapAST. No compilation is requested, so the
	// fallback succeeds only when the fetched body is itself map AST JSON.
	mapID := profileCfg.ProfileID + "." + providerCfg.Name
	src, fetchErr := b.opts.Registry.FetchMapSource(ctx, mapID)
	if fetchErr != nil {
		return nil, &InvalidMapAstResponseError{Err: parseErr}
	}
	mapDoc, parseErr2 := ParseMapAST(src)
	if parseErr2 != nil {
		return nil, &InvalidMapAstResponseError{Err: parseErr2}
	}
	return mapDoc, nil
}
