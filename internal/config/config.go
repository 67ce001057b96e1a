// Package config holds environment-driven configuration for the runtime.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the map runtime.
type Config struct {
	// CachePath is the root directory for on-disk caches — provider
	// descriptors live at <CachePath>/providers/<name>.json.
	CachePath string

	Registry  RegistryConfig
	Binding   BindingConfig
	Sandbox   SandboxConfig
	Telemetry TelemetryConfig
}

// RegistryConfig configures the remote registry client used by binding
// when a profile/provider/map isn't resolvable locally.
type RegistryConfig struct {
	BaseURL  string
	SDKToken string
	Timeout  time.Duration
}

// BindingConfig configures the Bind pipeline itself.
type BindingConfig struct {
	// CacheTTL is how long a bound profile provider stays cached before
	// bind() re-resolves it (spec.md §3 "Bound context... cached with
	// expiry = now + TTL").
	CacheTTL time.Duration
}

// SandboxConfig configures the embedded-expression evaluator.
type SandboxConfig struct {
	// Timeout is the wall-clock ceiling per evaluation (spec.md §4.B: 100ms).
	Timeout time.Duration
}

type TelemetryConfig struct {
	Enabled      bool
	OTLPEndpoint string
	ServiceName  string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	home, _ := os.UserHomeDir()

	return &Config{
		CachePath: envStr("MAPRUNTIME_CACHE_PATH", home+"/.cache/mapruntime"),
		Registry: RegistryConfig{
			BaseURL:  envStr("MAPRUNTIME_REGISTRY_URL", "https://registry.example.com"),
			SDKToken: envStr("MAPRUNTIME_SDK_TOKEN", ""),
			Timeout:  envDuration("MAPRUNTIME_REGISTRY_TIMEOUT", 30*time.Second),
		},
		Binding: BindingConfig{
			CacheTTL: envDuration("MAPRUNTIME_BIND_CACHE_TTL", 5*time.Minute),
		},
		Sandbox: SandboxConfig{
			Timeout: envDuration("MAPRUNTIME_SANDBOX_TIMEOUT", 100*time.Millisecond),
		},
		Telemetry: TelemetryConfig{
			Enabled:      envBool("OTEL_ENABLED", false),
			OTLPEndpoint: envStr("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			ServiceName:  envStr("OTEL_SERVICE_NAME", "mapruntime"),
		},
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
