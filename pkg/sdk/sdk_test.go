package sdk

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mapruntime/client/internal/binding"
	"github.com/mapruntime/client/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRegistryServer answers the subset of the wire protocol New's
// composed Binder needs for a minimal end-to-end Bind.
func fakeRegistryServer(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("/providers/acme", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"definition": map[string]any{
				"name":           "acme",
				"services":       []map[string]string{{"id": "default", "baseUrl": "https://example.invalid"}},
				"defaultService": "default",
			},
		})
	})

	mux.HandleFunc("/registry/bind", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"provider": map[string]any{
				"name":           "acme",
				"services":       []map[string]string{{"id": "default", "baseUrl": "https://example.invalid"}},
				"defaultService": "default",
			},
			"map_ast": `{"header":{"profileId":"test/echo","provider":"acme"},"maps":[{"usecaseName":"Echo","statements":[{"kind":"outcome","outcome":{"value":{"kind":"primitiveLiteral","primitive":"ok"},"terminateFlow":true}}]}]}`,
		})
	})

	mux.HandleFunc("/test/echo@1.0.0", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"name":    "echo",
			"version": "1.0.0",
			"usecases": map[string]any{
				"Echo": map[string]any{
					"name":   "Echo",
					"input":  map[string]any{"kind": "object", "fields": map[string]any{}},
					"result": map[string]any{"kind": "primitive", "primitiveName": "string"},
				},
			},
		})
	})

	return httptest.NewServer(mux)
}

func TestSDKComposesBinderAndBinds(t *testing.T) {
	srv := fakeRegistryServer(t)
	defer srv.Close()

	cfg := &config.Config{
		CachePath: t.TempDir(),
		Registry: config.RegistryConfig{
			BaseURL: srv.URL,
		},
		Binding: config.BindingConfig{CacheTTL: time.Minute},
		Sandbox: config.SandboxConfig{Timeout: 100 * time.Millisecond},
	}

	inst, err := New(t.Context(), cfg, Options{})
	require.NoError(t, err)
	require.NotNil(t, inst.Binder)

	bp, err := inst.Bind(t.Context(),
		binding.ProfileConfig{ProfileID: "test/echo", Version: "1.0.0"},
		binding.ProviderConfig{Name: "acme"},
		binding.ProfileProviderConfig{},
	)
	require.NoError(t, err)
	assert.Equal(t, "acme", bp.Provider.Name)

	require.NoError(t, inst.Close(t.Context()))
}
