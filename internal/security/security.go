// Package security implements the request-side authentication handlers
// named in SPEC_FULL.md §4.D: API key, Basic, Bearer, and challenge-
// driven Digest, plus the overlay/resolution rules that turn a
// provider's security schemes and a caller's security values into an
// effective SecurityConfiguration per request.
package security

import (
	"crypto/md5"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/mapruntime/client/internal/transport"
)

// SchemeKind is the closed set of authentication schemes a provider
// descriptor can declare.
type SchemeKind string

const (
	SchemeAPIKey SchemeKind = "apiKey"
	SchemeBasic  SchemeKind = "basic"
	SchemeBearer SchemeKind = "bearer"
	SchemeDigest SchemeKind = "digest"
)

// APIKeyPlacement names where an API key scheme places its value.
type APIKeyPlacement string

const (
	PlacementHeader APIKeyPlacement = "header"
	PlacementQuery  APIKeyPlacement = "query"
	PlacementBody   APIKeyPlacement = "body"
	PlacementPath   APIKeyPlacement = "path"
)

// Scheme is one entry of a provider descriptor's securitySchemes list.
type Scheme struct {
	ID     string
	Kind   SchemeKind
	In     APIKeyPlacement // apiKey only
	Name   string          // apiKey: header/query/body/path field name
	Scheme string          // bearer: scheme format, e.g. "Bearer"
	// ChallengeStatus is the HTTP status that triggers a digest
	// re-challenge. Zero means "use the default" (401) — see the
	// decision recorded in DESIGN.md for non-401 challenge statuses.
	ChallengeStatus int
}

// Values is the caller- or super-configuration-provided credential
// values for one security id.
type Values struct {
	ID       string
	APIKey   string
	Username string
	Password string
	Token    string
	Digest   string // accepted by Resolve in place of username/password; the digest handler does not read it
}

// Configuration is a resolved (scheme ∪ values) pair a handler consumes.
type Configuration struct {
	Scheme Scheme
	Values Values
}

var (
	// ErrSchemeNotFound is returned when a security id has no matching
	// scheme in the provider descriptor.
	ErrSchemeNotFound = errors.New("security: scheme not found")
	// ErrInvalidValues is returned when a security id's values are
	// missing a field its scheme requires.
	ErrInvalidValues = errors.New("security: invalid values for scheme")
)

// Resolve builds the effective []Configuration from a provider's
// declared schemes and a set of values, validating that each value's
// required keys are present for its scheme kind (SPEC_FULL.md §4.D).
func Resolve(schemes []Scheme, values []Values) ([]Configuration, error) {
	byID := make(map[string]Scheme, len(schemes))
	for _, s := range schemes {
		byID[s.ID] = s
	}

	out := make([]Configuration, 0, len(values))
	for _, v := range values {
		scheme, ok := byID[v.ID]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrSchemeNotFound, v.ID)
		}
		if err := validateValues(scheme, v); err != nil {
			return nil, err
		}
		out = append(out, Configuration{Scheme: scheme, Values: v})
	}
	return out, nil
}

func validateValues(scheme Scheme, v Values) error {
	switch scheme.Kind {
	case SchemeAPIKey:
		if v.APIKey == "" {
			return fmt.Errorf("%w: %q requires apikey", ErrInvalidValues, v.ID)
		}
	case SchemeBasic:
		if v.Username == "" || v.Password == "" {
			return fmt.Errorf("%w: %q requires username and password", ErrInvalidValues, v.ID)
		}
	case SchemeBearer:
		if v.Token == "" {
			return fmt.Errorf("%w: %q requires token", ErrInvalidValues, v.ID)
		}
	case SchemeDigest:
		if v.Digest == "" && (v.Username == "" || v.Password == "") {
			return fmt.Errorf("%w: %q requires digest or username/password", ErrInvalidValues, v.ID)
		}
	default:
		return fmt.Errorf("%w: %q has unknown scheme kind %q", ErrInvalidValues, v.ID, scheme.Kind)
	}
	return nil
}

// Overlay merges caller-provided values over super-configuration
// values: entries sharing an id are entirely replaced by the caller's,
// per SPEC_FULL.md §4.D ("values from the caller override
// super-configuration entries of the same id").
func Overlay(base, override []Values) []Values {
	byID := make(map[string]Values, len(base)+len(override))
	order := make([]string, 0, len(base)+len(override))
	for _, v := range base {
		if _, seen := byID[v.ID]; !seen {
			order = append(order, v.ID)
		}
		byID[v.ID] = v
	}
	for _, v := range override {
		if _, seen := byID[v.ID]; !seen {
			order = append(order, v.ID)
		}
		byID[v.ID] = v
	}
	out := make([]Values, 0, len(order))
	for _, id := range order {
		out = append(out, byID[id])
	}
	return out
}

// Handler applies security Configuration to an outbound request and
// reacts to challenge responses (digest).
type Handler struct {
	digestCache *DigestCache
}

// NewHandler builds a Handler with its own DigestCache.
func NewHandler() *Handler {
	return &Handler{digestCache: NewDigestCache()}
}

// Prepare mutates req in place to carry the credentials for cfg, for
// every scheme except digest — digest is two-step and handled by
// NeedsChallengeRetry after the first round-trip; Prepare only adds a
// digest Authorization header when this Handler already cached a
// challenge for the username and scheme id.
func (h *Handler) Prepare(req *transport.Request, cfg Configuration, body *transport.RequestBody) error {
	switch cfg.Scheme.Kind {
	case SchemeAPIKey:
		return prepareAPIKey(req, cfg, body)
	case SchemeBasic:
		req.Headers.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString(
			[]byte(cfg.Values.Username+":"+cfg.Values.Password)))
		return nil
	case SchemeBearer:
		scheme := cfg.Scheme.Scheme
		if scheme == "" {
			scheme = "Bearer"
		}
		req.Headers.Set("Authorization", scheme+" "+cfg.Values.Token)
		return nil
	case SchemeDigest:
		if challenge, ok := h.digestCache.Get(cfg.Values.Username, cfg.Scheme.ID); ok {
			req.Headers.Set("Authorization", computeDigestAuthorization(cfg.Values, req.Method, req.URL, challenge))
		}
		return nil
	default:
		return fmt.Errorf("%w: unhandled scheme kind %q", ErrInvalidValues, cfg.Scheme.Kind)
	}
}

func prepareAPIKey(req *transport.Request, cfg Configuration, body *transport.RequestBody) error {
	name := cfg.Scheme.Name
	if name == "" {
		name = "Authorization"
	}
	switch cfg.Scheme.In {
	case PlacementHeader, "":
		req.Headers.Set(name, cfg.Values.APIKey)
	case PlacementQuery:
		req.Query.Set(name, cfg.Values.APIKey)
	case PlacementPath:
		req.URL = strings.ReplaceAll(req.URL, "{"+name+"}", cfg.Values.APIKey)
	case PlacementBody:
		if body == nil || body.Kind != transport.BodyURLEncodedForm && body.Kind != transport.BodyMultipartForm {
			return fmt.Errorf("%w: apiKey body placement requires an object body", ErrInvalidValues)
		}
		body.Form = append(body.Form, transport.FormField{Name: name, Values: []string{cfg.Values.APIKey}})
	default:
		return fmt.Errorf("%w: unknown apiKey placement %q", ErrInvalidValues, cfg.Scheme.In)
	}
	return nil
}

// NeedsChallengeRetry reports whether resp is a digest challenge for
// cfg that this Handler has not already satisfied for the realm, and
// returns the Authorization header value to retry with if so.
func (h *Handler) NeedsChallengeRetry(cfg Configuration, method, uri string, resp transport.Response) (string, bool) {
	if cfg.Scheme.Kind != SchemeDigest {
		return "", false
	}
	challengeStatus := cfg.Scheme.ChallengeStatus
	if challengeStatus == 0 {
		challengeStatus = 401
	}
	if resp.Status != challengeStatus {
		return "", false
	}

	header := resp.Headers.Get("WWW-Authenticate")
	if header == "" {
		header = resp.Headers.Get("Www-Authenticate")
	}
	if !strings.HasPrefix(strings.TrimSpace(header), "Digest") {
		return "", false
	}

	challenge := parseDigestChallenge(header)
	h.digestCache.Set(cfg.Values.Username, cfg.Scheme.ID, challenge)
	return computeDigestAuthorization(cfg.Values, method, uri, challenge), true
}

type digestChallenge struct {
	realm  string
	nonce  string
	qop    string
	algo   string
	opaque string
}

func parseDigestChallenge(header string) digestChallenge {
	header = strings.TrimPrefix(strings.TrimSpace(header), "Digest")
	c := digestChallenge{algo: "MD5"}
	for _, part := range strings.Split(header, ",") {
		part = strings.TrimSpace(part)
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			continue
		}
		key := strings.TrimSpace(kv[0])
		val := strings.Trim(strings.TrimSpace(kv[1]), `"`)
		switch key {
		case "realm":
			c.realm = val
		case "nonce":
			c.nonce = val
		case "qop":
			c.qop = val
		case "algorithm":
			c.algo = val
		case "opaque":
			c.opaque = val
		}
	}
	return c
}

const digestNonceCount = "00000001"

func computeDigestAuthorization(v Values, method, uri string, c digestChallenge) string {
	ha1 := md5Hex(v.Username + ":" + c.realm + ":" + v.Password)
	ha2 := md5Hex(method + ":" + uri)

	cnonce := md5Hex(c.nonce + v.Username)[:8]

	var response string
	if c.qop != "" {
		response = md5Hex(strings.Join([]string{ha1, c.nonce, digestNonceCount, cnonce, c.qop, ha2}, ":"))
	} else {
		response = md5Hex(ha1 + ":" + c.nonce + ":" + ha2)
	}

	b := &strings.Builder{}
	fmt.Fprintf(b, `Digest username="%s", realm="%s", nonce="%s", uri="%s", response="%s"`,
		v.Username, c.realm, c.nonce, uri, response)
	if c.qop != "" {
		fmt.Fprintf(b, `, qop=%s, nc=%s, cnonce="%s"`, c.qop, digestNonceCount, cnonce)
	}
	if c.opaque != "" {
		fmt.Fprintf(b, `, opaque="%s"`, c.opaque)
	}
	return b.String()
}

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return fmt.Sprintf("%x", sum)
}

// DigestCache caches the parsed challenge (realm/nonce/qop/algorithm)
// keyed by (username, scheme id) so later requests for the same key
// skip the challenge round-trip, recomputing only the per-request hash
// on every subsequent call (SPEC_FULL.md §4.D, §5).
type DigestCache struct {
	mu      sync.RWMutex
	entries map[string]digestChallenge
}

// NewDigestCache builds an empty DigestCache.
func NewDigestCache() *DigestCache {
	return &DigestCache{entries: make(map[string]digestChallenge)}
}

func digestKey(username, schemeID string) string { return username + "|" + schemeID }

// Get returns a previously cached challenge, if any.
func (c *DigestCache) Get(username, schemeID string) (digestChallenge, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.entries[digestKey(username, schemeID)]
	return v, ok
}

// Set stores the challenge parsed from a realm's first 401 response.
func (c *DigestCache) Set(username, schemeID string, challenge digestChallenge) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[digestKey(username, schemeID)] = challenge
}
