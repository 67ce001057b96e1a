// Package binding implements the Binding/Resolution pipeline
// (SPEC_FULL.md §4.H): resolving a profile AST, provider descriptor,
// and map AST from local files, a disk cache, or a remote registry;
// checking name/variant/profile-id consistency; overlaying security
// and parameter configuration; and caching the resulting
// BoundProfileProvider with a TTL.
package binding

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mapruntime/client/internal/interpreter"
	"github.com/mapruntime/client/internal/providerbind"
	"github.com/mapruntime/client/internal/security"
)

// providerJSON mirrors the registry wire shape (SPEC_FULL.md §6):
// {name, services:[{id, baseUrl}], defaultService, securitySchemes?, parameters?}.
type providerJSON struct {
	Name            string              `json:"name"`
	Services        []serviceJSON       `json:"services"`
	DefaultService  string              `json:"defaultService"`
	SecuritySchemes []securitySchemeJSON `json:"securitySchemes,omitempty"`
	Parameters      []parameterJSON     `json:"parameters,omitempty"`
}

type serviceJSON struct {
	ID      string `json:"id"`
	BaseURL string `json:"baseUrl"`
}

type securitySchemeJSON struct {
	ID              string `json:"id"`
	Kind            string `json:"type"`
	In              string `json:"in,omitempty"`
	Name            string `json:"name,omitempty"`
	Scheme          string `json:"scheme,omitempty"`
	ChallengeStatus int    `json:"challengeStatus,omitempty"`
}

type parameterJSON struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Default     string `json:"default,omitempty"`
}

// ErrInvalidProviderResponse is returned when a fetched provider
// descriptor fails structural validation (missing services or
// defaultService), per SPEC_FULL.md §4.H.
var ErrInvalidProviderResponse = fmt.Errorf("binding: invalid provider descriptor")

func decodeProviderJSON(raw []byte) (providerbind.ProviderDescriptor, error) {
	var pj providerJSON
	if err := json.Unmarshal(raw, &pj); err != nil {
		return providerbind.ProviderDescriptor{}, fmt.Errorf("binding: parse provider descriptor: %w", err)
	}
	if len(pj.Services) == 0 || pj.DefaultService == "" {
		return providerbind.ProviderDescriptor{}, ErrInvalidProviderResponse
	}

	desc := providerbind.ProviderDescriptor{
		Name:           pj.Name,
		DefaultService: pj.DefaultService,
	}
	for _, s := range pj.Services {
		desc.Services = append(desc.Services, interpreter.Service{ID: s.ID, BaseURL: s.BaseURL})
	}
	for _, s := range pj.SecuritySchemes {
		desc.SecuritySchemes = append(desc.SecuritySchemes, schemeFromJSON(s))
	}
	for _, p := range pj.Parameters {
		desc.Parameters = append(desc.Parameters, providerbind.ProviderParameter{
			Name: p.Name, Description: p.Description, Default: p.Default,
		})
	}
	return desc, nil
}

func encodeProviderJSON(desc providerbind.ProviderDescriptor) ([]byte, error) {
	pj := providerJSON{Name: desc.Name, DefaultService: desc.DefaultService}
	for _, s := range desc.Services {
		pj.Services = append(pj.Services, serviceJSON{ID: s.ID, BaseURL: s.BaseURL})
	}
	for _, p := range desc.Parameters {
		pj.Parameters = append(pj.Parameters, parameterJSON{Name: p.Name, Description: p.Description, Default: p.Default})
	}
	for _, s := range desc.SecuritySchemes {
		pj.SecuritySchemes = append(pj.SecuritySchemes, securitySchemeJSON{
			ID: s.ID, Kind: string(s.Kind), In: string(s.In), Name: s.Name, Scheme: s.Scheme, ChallengeStatus: s.ChallengeStatus,
		})
	}
	return json.MarshalIndent(pj, "", "  ")
}

// DescriptorCache is the boundary the Bind pipeline uses to persist and
// retrieve provider descriptors, decoupling it from any one storage
// backend (see pkg/contracts.DescriptorCache).
type DescriptorCache interface {
	Get(providerName string) (providerbind.ProviderDescriptor, bool, error)
	Put(providerName string, desc providerbind.ProviderDescriptor) error
}

// FileDescriptorCache stores provider descriptors on disk at
// <cachePath>/providers/<name>.json, pretty-printed, per SPEC_FULL.md §6.
type FileDescriptorCache struct {
	root string
}

// NewFileDescriptorCache builds a cache rooted at cachePath.
func NewFileDescriptorCache(cachePath string) *FileDescriptorCache {
	return &FileDescriptorCache{root: cachePath}
}

func (c *FileDescriptorCache) path(name string) string {
	return filepath.Join(c.root, "providers", name+".json")
}

// Get reads a cached descriptor. Readers are tolerant of absent or
// partial files — a missing file is not an error, just a cache miss;
// a malformed file is also treated as a miss, with no error returned.
func (c *FileDescriptorCache) Get(providerName string) (providerbind.ProviderDescriptor, bool, error) {
	raw, err := os.ReadFile(c.path(providerName))
	if err != nil {
		if os.IsNotExist(err) {
			return providerbind.ProviderDescriptor{}, false, nil
		}
		return providerbind.ProviderDescriptor{}, false, err
	}
	desc, err := decodeProviderJSON(raw)
	if err != nil {
		return providerbind.ProviderDescriptor{}, false, nil
	}
	return desc, true, nil
}

// Put writes desc to disk, creating the providers/ directory as
// needed. Writes are best-effort: the Bind pipeline logs but does not
// fail the overall bind when Put errors.
func (c *FileDescriptorCache) Put(providerName string, desc providerbind.ProviderDescriptor) error {
	raw, err := encodeProviderJSON(desc)
	if err != nil {
		return err
	}
	path := c.path(providerName)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o644)
}

func schemeFromJSON(s securitySchemeJSON) security.Scheme {
	return security.Scheme{
		ID:              s.ID,
		Kind:            security.SchemeKind(s.Kind),
		In:              security.APIKeyPlacement(s.In),
		Name:            s.Name,
		Scheme:          s.Scheme,
		ChallengeStatus: s.ChallengeStatus,
	}
}
