// Package sdk is the public entry point for composing a bound
// profile provider: it wires configuration, transport, the expression
// sandbox, security handlers, and telemetry into an
// internal/binding.Binder, then exposes a single Bind call — the
// same "pkg/ houses the public composition root" shape as the
// teacher's pkg/server package, generalized from an HTTP server to a
// client-side runtime with no HTTP surface of its own.
package sdk

import (
	"context"

	"github.com/mapruntime/client/internal/binding"
	"github.com/mapruntime/client/internal/config"
	"github.com/mapruntime/client/internal/logging"
	"github.com/mapruntime/client/internal/providerbind"
	"github.com/mapruntime/client/internal/sandbox"
	"github.com/mapruntime/client/internal/security"
	"github.com/mapruntime/client/internal/telemetry"
	"github.com/mapruntime/client/internal/transport"
	"go.opentelemetry.io/otel/trace"
)

// SDK holds the composed runtime: a Binder plus the shutdown hook for
// whatever telemetry exporter it started.
type SDK struct {
	Binder   *binding.Binder
	Tracer   trace.Tracer
	Shutdown func(context.Context) error
	log      logging.Logger
}

// Options lets a caller override the pieces New would otherwise build
// from config.Config — primarily useful for tests, which want an
// in-memory fetcher or a fake registry instead of the real network.
type Options struct {
	Fetcher  transport.Fetcher
	Registry binding.RegistryClient
	Log      logging.Logger
}

// New composes an SDK from cfg, following the teacher's server.New
// pattern: build each capability, wire it into the next, return one
// handle the caller drives.
func New(ctx context.Context, cfg *config.Config, opts Options) (*SDK, error) {
	log := opts.Log
	if log == nil {
		log = logging.Nop
	}

	tracer, shutdown, err := telemetry.Init(cfg.Telemetry, log)
	if err != nil {
		return nil, err
	}

	fetcher := opts.Fetcher
	if fetcher == nil {
		fetcher = transport.NewHTTPFetcher(nil)
	}

	sbox := sandbox.New(cfg.Sandbox.Timeout)
	sec := security.NewHandler()

	registry := opts.Registry
	if registry == nil && cfg.Registry.BaseURL != "" {
		registry = binding.NewHTTPRegistryClient(cfg.Registry.BaseURL, cfg.Registry.SDKToken)
	}

	binder := binding.NewBinder(binding.Options{
		CachePath: cfg.CachePath,
		CacheTTL:  cfg.Binding.CacheTTL,
		Registry:  registry,
	}, fetcher, sbox, sec, tracer, log)

	return &SDK{Binder: binder, Tracer: tracer, Shutdown: shutdown, log: log}, nil
}

// Bind resolves profile, provider, and map configuration into a ready
// BoundProfileProvider — the single operation this package exposes.
func (s *SDK) Bind(ctx context.Context, profile binding.ProfileConfig, provider binding.ProviderConfig, profileProvider binding.ProfileProviderConfig) (*providerbind.BoundProfileProvider, error) {
	return s.Binder.Bind(ctx, profile, provider, profileProvider)
}

// Close shuts down the telemetry exporter, if one was started.
func (s *SDK) Close(ctx context.Context) error {
	if s.Shutdown == nil {
		return nil
	}
	return s.Shutdown(ctx)
}
