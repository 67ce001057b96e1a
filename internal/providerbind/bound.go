package providerbind

import (
	"context"
	"fmt"
	"time"

	"github.com/mapruntime/client/internal/interpreter"
	"github.com/mapruntime/client/internal/logging"
	"github.com/mapruntime/client/internal/mapast"
	"github.com/mapruntime/client/internal/profile"
	"github.com/mapruntime/client/internal/security"
	"github.com/mapruntime/client/internal/value"
)

// BoundProfileProvider is the immutable, runnable composition of a
// profile AST, a map AST, a provider descriptor, and effective
// configuration — what internal/binding's Bind produces and callers
// invoke Perform on.
type BoundProfileProvider struct {
	ProfileID  string
	ProfileDoc *profile.Document
	MapDoc     *mapast.Document
	Provider   ProviderDescriptor

	Defaults   map[string]UseCaseDefaults
	Security   []security.Configuration
	Parameters value.Object

	ExpiresAt time.Time

	interp *interpreter.Interpreter
	log    logging.Logger
}

// New builds a BoundProfileProvider. cacheTTL sets ExpiresAt relative
// to now, mirroring internal/binding's bound-context cache lifecycle
// (SPEC_FULL.md §3 "Bound context... cached with expiry = now + TTL").
func New(profileID string, profileDoc *profile.Document, mapDoc *mapast.Document, provider ProviderDescriptor,
	defaults map[string]UseCaseDefaults, sec []security.Configuration, params value.Object,
	interp *interpreter.Interpreter, cacheTTL time.Duration, log logging.Logger) *BoundProfileProvider {

	if log == nil {
		log = logging.Nop
	}
	if defaults == nil {
		defaults = map[string]UseCaseDefaults{}
	}
	return &BoundProfileProvider{
		ProfileID:  profileID,
		ProfileDoc: profileDoc,
		MapDoc:     mapDoc,
		Provider:   provider,
		Defaults:   defaults,
		Security:   sec,
		Parameters: params,
		ExpiresAt:  expiresAt(cacheTTL),
		interp:     interp,
		log:        log,
	}
}

// PerformOptions carries the optional per-call overrides Perform accepts.
type PerformOptions struct {
	Parameters       value.Object
	SecurityOverride []security.Values
}

// Perform runs usecase against input through the five steps of
// SPEC_FULL.md §4.G: compose defaults, validate input, resolve
// security/parameters, run the interpreter, validate the result.
func (bp *BoundProfileProvider) Perform(ctx context.Context, usecase string, input value.Variable, opts PerformOptions) (value.Variable, error) {
	defaults := bp.Defaults[usecase]

	effectiveInput := value.Merge(defaults.Input, input)

	if err := profile.Validate(bp.ProfileDoc, profile.KindInput, usecase, effectiveInput); err != nil {
		return nil, err
	}

	secConfigs := bp.Security
	if opts.SecurityOverride != nil {
		overlaid := security.Overlay(configsToValues(bp.Security), opts.SecurityOverride)
		resolved, err := security.Resolve(bp.Provider.SecuritySchemes, overlaid)
		if err != nil {
			return nil, err
		}
		secConfigs = resolved
	}

	mergedParams := value.Merge(opts.Parameters, bp.Parameters)
	mergedObj, _ := mergedParams.(value.Object)
	effectiveParams := resolveParameters(bp.Provider.Parameters, mergedObj)

	bp.log("providerbind", "perform", map[string]any{
		"profile": bp.ProfileID, "usecase": usecase, "provider": bp.Provider.Name,
	})

	ictx := interpreter.Context{
		Profile:        bp.ProfileID,
		UseCase:        usecase,
		Provider:       bp.Provider.Name,
		Input:          effectiveInput,
		Parameters:     effectiveParams,
		Services:       bp.Provider.Services,
		DefaultService: bp.Provider.DefaultService,
		Security:       secConfigs,
		Retry:          defaults.Retry,
	}

	result, err := bp.interp.Perform(ctx, bp.MapDoc, ictx)
	if err != nil {
		return nil, fmt.Errorf("providerbind: perform %s: %w", usecase, err)
	}

	if err := profile.Validate(bp.ProfileDoc, profile.KindResult, usecase, result); err != nil {
		return nil, err
	}

	return result, nil
}

func configsToValues(cfgs []security.Configuration) []security.Values {
	out := make([]security.Values, len(cfgs))
	for i, c := range cfgs {
		out[i] = c.Values
	}
	return out
}
