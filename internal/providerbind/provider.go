// Package providerbind implements the Bound Profile Provider (SPEC_FULL.md
// §4.G): the component that composes profile validation and the Map
// Interpreter into a single perform(usecase, input) call, handling
// default merging, security/parameter overrides, and result validation.
package providerbind

import (
	"time"

	"github.com/mapruntime/client/internal/interpreter"
	"github.com/mapruntime/client/internal/security"
	"github.com/mapruntime/client/internal/value"
)

// ProviderParameter is one entry of a provider descriptor's parameters
// list — a named string the map can reference, resolvable from
// super-configuration or from this default.
type ProviderParameter struct {
	Name        string
	Default     string
	Description string
}

// ProviderDescriptor is the parsed form of the registry's ProviderJson
// (SPEC_FULL.md §6): services, default service, security schemes, and
// integration parameters.
type ProviderDescriptor struct {
	Name            string
	Services        []interpreter.Service
	DefaultService  string
	SecuritySchemes []security.Scheme
	Parameters      []ProviderParameter
}

// UseCaseDefaults are the profile-provider settings for one use-case:
// default input values merged ahead of caller input, and the retry
// policy the interpreter applies to this use-case's HTTP calls.
type UseCaseDefaults struct {
	Input value.Variable
	Retry interpreter.RetryPolicy
}

// resolveParameters applies the `$NAME` placeholder convention
// (SPEC_FULL.md §4.G step 4, §6): a value equal to the literal string
// `$NAME` where NAME matches a declared parameter falls back to that
// parameter's default; entries absent from merged but declared with a
// default receive the default; anything else passes through unchanged.
func resolveParameters(declared []ProviderParameter, merged value.Object) value.Object {
	out := make(value.Object, len(merged))
	for k, v := range merged {
		out[k] = v
	}
	for _, p := range declared {
		cur, present := out[p.Name]
		if !present {
			if p.Default != "" {
				out[p.Name] = value.String(p.Default)
			}
			continue
		}
		if s, ok := cur.(value.String); ok && string(s) == "$"+p.Name && p.Default != "" {
			out[p.Name] = value.String(p.Default)
		}
	}
	return out
}

func expiresAt(ttl time.Duration) time.Time {
	return time.Now().Add(ttl)
}
