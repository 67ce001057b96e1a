package binding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// RegistryClient is the remote collaborator Bind falls back to when a
// profile, provider, or map cannot be resolved locally or from cache —
// SPEC_FULL.md §6's registry wire protocol.
type RegistryClient interface {
	FetchProfile(ctx context.Context, profileID, version string) ([]byte, error)
	FetchProvider(ctx context.Context, name string) (providerDescriptorEnvelope, error)
	FetchMapSource(ctx context.Context, mapID string) ([]byte, error)
	Bind(ctx context.Context, profileID, provider, variant, revision string) (bindResponse, error)
}

type providerDescriptorEnvelope struct {
	Definition providerJSON `json:"definition"`
}

type bindResponse struct {
	Provider providerJSON `json:"provider"`
	MapAST   string       `json:"map_ast"`
}

type registryErrorBody struct {
	Detail string `json:"detail"`
	Title  string `json:"title"`
}

// BindResponseError surfaces a registry error body carrying {detail,
// title}, per spec.md §6.
type BindResponseError struct {
	Status int
	Detail string
	Title  string
}

func (e *BindResponseError) Error() string {
	return fmt.Sprintf("binding: registry error %d: %s: %s", e.Status, e.Title, e.Detail)
}

// UnknownBindResponseError wraps a non-200 response whose body isn't
// the expected {detail, title} shape.
type UnknownBindResponseError struct {
	Status int
	Body   string
}

func (e *UnknownBindResponseError) Error() string {
	return fmt.Sprintf("binding: unknown registry response %d: %s", e.Status, e.Body)
}

// HTTPRegistryClient is the default RegistryClient, speaking the JSON
// wire protocol over a plain *http.Client the way the teacher's catalog
// fetcher speaks to its upstream (internal/catalog.Catalog.fetchLiteLLMData).
type HTTPRegistryClient struct {
	BaseURL string
	Token   string
	client  *http.Client
}

// NewHTTPRegistryClient builds a client against baseURL. A zero token
// means no Authorization header is sent, per spec.md §6.
func NewHTTPRegistryClient(baseURL, token string) *HTTPRegistryClient {
	return &HTTPRegistryClient{BaseURL: baseURL, Token: token, client: &http.Client{}}
}

func (c *HTTPRegistryClient) authorize(req *http.Request) {
	if c.Token != "" {
		req.Header.Set("Authorization", "SUPERFACE-SDK-TOKEN "+c.Token)
	}
}

func (c *HTTPRegistryClient) do(req *http.Request) ([]byte, int, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("binding: registry request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("binding: read registry response: %w", err)
	}
	return body, resp.StatusCode, nil
}

func registryError(status int, body []byte) error {
	var eb registryErrorBody
	if json.Unmarshal(body, &eb) == nil && (eb.Detail != "" || eb.Title != "") {
		return &BindResponseError{Status: status, Detail: eb.Detail, Title: eb.Title}
	}
	return &UnknownBindResponseError{Status: status, Body: string(body)}
}

// FetchProfile performs GET /<profileId>@<version> with the
// application/vnd.superface.profile+json accept header.
func (c *HTTPRegistryClient) FetchProfile(ctx context.Context, profileID, version string) ([]byte, error) {
	url := fmt.Sprintf("%s/%s@%s", c.BaseURL, profileID, version)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("binding: build profile request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.superface.profile+json")
	c.authorize(req)

	body, status, err := c.do(req)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, registryError(status, body)
	}
	return body, nil
}

// FetchProvider performs GET /providers/<name>.
func (c *HTTPRegistryClient) FetchProvider(ctx context.Context, name string) (providerDescriptorEnvelope, error) {
	url := fmt.Sprintf("%s/providers/%s", c.BaseURL, name)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return providerDescriptorEnvelope{}, fmt.Errorf("binding: build provider request: %w", err)
	}
	c.authorize(req)

	body, status, err := c.do(req)
	if err != nil {
		return providerDescriptorEnvelope{}, err
	}
	if status != http.StatusOK {
		return providerDescriptorEnvelope{}, registryError(status, body)
	}

	var env providerDescriptorEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return providerDescriptorEnvelope{}, fmt.Errorf("binding: parse provider response: %w", err)
	}
	return env, nil
}

// FetchMapSource performs GET /<mapId> with the
// application/vnd.superface.map accept header, used when a registry
// bind response carries a malformed map AST.
func (c *HTTPRegistryClient) FetchMapSource(ctx context.Context, mapID string) ([]byte, error) {
	url := fmt.Sprintf("%s/%s", c.BaseURL, mapID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("binding: build map source request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.superface.map")
	c.authorize(req)

	body, status, err := c.do(req)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, registryError(status, body)
	}
	return body, nil
}

// Bind performs POST /registry/bind with {profile_id, provider,
// map_variant?, map_revision?}.
func (c *HTTPRegistryClient) Bind(ctx context.Context, profileID, provider, variant, revision string) (bindResponse, error) {
	payload := map[string]string{"profile_id": profileID, "provider": provider}
	if variant != "" {
		payload["map_variant"] = variant
	}
	if revision != "" {
		payload["map_revision"] = revision
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return bindResponse{}, fmt.Errorf("binding: encode bind request: %w", err)
	}

	url := c.BaseURL + "/registry/bind"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return bindResponse{}, fmt.Errorf("binding: build bind request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	body, status, err := c.do(req)
	if err != nil {
		return bindResponse{}, err
	}
	if status != http.StatusOK {
		return bindResponse{}, registryError(status, body)
	}

	var out bindResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return bindResponse{}, fmt.Errorf("binding: parse bind response: %w", err)
	}
	return out, nil
}
