// Package contracts defines the interfaces forming the boundary
// between the core runtime and its injected, out-of-scope
// collaborators: HTTP transport, the registry wire client, and
// provider-descriptor storage (spec.md §1's "deliberately out of
// scope... only their interfaces are specified where the core
// consumes them").
package contracts

import (
	"github.com/mapruntime/client/internal/binding"
	"github.com/mapruntime/client/internal/transport"
)

// Fetcher is the HTTP transport capability the Map Interpreter
// dispatches requests through. internal/transport.HTTPFetcher is the
// default implementation; callers may substitute their own (a
// recording transport for tests, a rate-limited one in production).
type Fetcher = transport.Fetcher

// RegistryClient is the remote collaborator internal/binding.Binder
// falls back to when a profile, provider, or map cannot be resolved
// locally or from cache (spec.md §6's wire protocol).
// internal/binding.HTTPRegistryClient is the default implementation.
type RegistryClient = binding.RegistryClient

// DescriptorCache is the boundary internal/binding.Binder uses to
// persist and retrieve provider descriptors, decoupling Bind from any
// one storage backend — a local JSON file (internal/binding.FileDescriptorCache),
// a shared Postgres table (internal/binding.PostgresDescriptorCache),
// or something a caller supplies of its own.
type DescriptorCache = binding.DescriptorCache
