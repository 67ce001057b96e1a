package binding

import (
	"time"

	"github.com/mapruntime/client/internal/providerbind"
	"github.com/mapruntime/client/internal/security"
	"github.com/mapruntime/client/internal/value"
)

// ProfileConfig names how to resolve a profile AST: a local compiled
// file, or a registry fetch by id/version.
type ProfileConfig struct {
	File      string // path to a compiled .supr.ast artifact, if local
	ProfileID string
	Version   string // required when resolving from the registry
}

// ProviderConfig names how to resolve a provider descriptor, plus the
// bound-context cache key contribution and per-call security values.
type ProviderConfig struct {
	File             string // path to a local provider descriptor JSON, if local
	Name             string
	CacheKey         string
	SecurityValues   []security.Values
	Parameters       value.Object
}

// ProfileProviderConfig names how to resolve the map AST binding a
// profile to a provider, plus the defaults and cache-key contribution
// for that pairing.
type ProfileProviderConfig struct {
	MapFile       string // compiled .map.ast path, or source .suma path requiring a sibling .map.ast
	Variant       string
	Revision      string
	CacheKey      string
	Defaults      map[string]providerbind.UseCaseDefaults
	SecurityValues []security.Values
}

// Options configures a Binder: cache path, cache TTL, an optional
// registry client, and an optional descriptor cache override.
type Options struct {
	CachePath       string
	CacheTTL        time.Duration
	Registry        RegistryClient
	DescriptorCache DescriptorCache
}

const (
	profileBuildExt = ".supr.ast"
	mapBuildExt     = ".map.ast"
	mapSourceExt    = ".suma"
)

func defaultOptions(opts Options) Options {
	if opts.CacheTTL == 0 {
		opts.CacheTTL = 10 * time.Minute
	}
	if opts.DescriptorCache == nil && opts.CachePath != "" {
		opts.DescriptorCache = NewFileDescriptorCache(opts.CachePath)
	}
	return opts
}
