package security

import (
	"testing"

	"github.com/mapruntime/client/internal/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveRejectsUnknownSchemeID(t *testing.T) {
	_, err := Resolve(nil, []Values{{ID: "missing"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSchemeNotFound)
}

func TestResolveValidatesRequiredFieldsPerSchemeKind(t *testing.T) {
	schemes := []Scheme{{ID: "basic-auth", Kind: SchemeBasic}}
	_, err := Resolve(schemes, []Values{{ID: "basic-auth", Username: "u"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidValues)

	cfgs, err := Resolve(schemes, []Values{{ID: "basic-auth", Username: "u", Password: "p"}})
	require.NoError(t, err)
	require.Len(t, cfgs, 1)
}

func TestOverlayCallerValuesReplaceSameID(t *testing.T) {
	base := []Values{{ID: "api", APIKey: "base-key"}, {ID: "other", APIKey: "kept"}}
	override := []Values{{ID: "api", APIKey: "override-key"}}

	merged := Overlay(base, override)
	byID := map[string]Values{}
	for _, v := range merged {
		byID[v.ID] = v
	}
	assert.Equal(t, "override-key", byID["api"].APIKey)
	assert.Equal(t, "kept", byID["other"].APIKey)
}

func TestPrepareAPIKeyHeader(t *testing.T) {
	h := NewHandler()
	req := &transport.Request{Headers: transport.Values{}, Query: transport.Values{}}
	cfg := Configuration{
		Scheme: Scheme{ID: "api", Kind: SchemeAPIKey, In: PlacementHeader, Name: "X-API-Key"},
		Values: Values{ID: "api", APIKey: "secret"},
	}
	require.NoError(t, h.Prepare(req, cfg, nil))
	assert.Equal(t, "secret", req.Headers.Get("X-API-Key"))
}

func TestPrepareBasicAuth(t *testing.T) {
	h := NewHandler()
	req := &transport.Request{Headers: transport.Values{}}
	cfg := Configuration{
		Scheme: Scheme{ID: "basic-auth", Kind: SchemeBasic},
		Values: Values{ID: "basic-auth", Username: "alice", Password: "wonder"},
	}
	require.NoError(t, h.Prepare(req, cfg, nil))
	assert.Equal(t, "Basic YWxpY2U6d29uZGVy", req.Headers.Get("Authorization"))
}

func TestDigestChallengeThenCachedForSubsequentCalls(t *testing.T) {
	h := NewHandler()
	cfg := Configuration{
		Scheme: Scheme{ID: "digest-auth", Kind: SchemeDigest},
		Values: Values{ID: "digest-auth", Username: "alice", Password: "secret"},
	}

	challengeResp := transport.Response{
		Status: 401,
		Headers: transport.Values{
			"WWW-Authenticate": {`Digest realm="r", nonce="n", qop="auth"`},
		},
	}

	authHeader, retry := h.NeedsChallengeRetry(cfg, "GET", "/protected", challengeResp)
	require.True(t, retry)
	assert.Contains(t, authHeader, `Digest username="alice"`)
	assert.Contains(t, authHeader, `realm="r"`)
	assert.Contains(t, authHeader, `nonce="n"`)
	assert.Contains(t, authHeader, "qop=auth")

	// A subsequent request to the same realm should not need another
	// challenge round-trip: Prepare alone produces a valid Authorization
	// header from the cached challenge.
	req := &transport.Request{Method: "GET", URL: "/protected", Headers: transport.Values{}}
	require.NoError(t, h.Prepare(req, cfg, nil))
	assert.Contains(t, req.Headers.Get("Authorization"), `Digest username="alice"`)
}

func TestDigestChallengeIgnoresNonDigestScheme(t *testing.T) {
	h := NewHandler()
	cfg := Configuration{Scheme: Scheme{ID: "bearer-auth", Kind: SchemeBearer}}
	_, retry := h.NeedsChallengeRetry(cfg, "GET", "/x", transport.Response{Status: 401})
	assert.False(t, retry)
}
