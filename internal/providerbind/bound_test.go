package providerbind

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mapruntime/client/internal/interpreter"
	"github.com/mapruntime/client/internal/logging"
	"github.com/mapruntime/client/internal/mapast"
	"github.com/mapruntime/client/internal/profile"
	"github.com/mapruntime/client/internal/sandbox"
	"github.com/mapruntime/client/internal/security"
	"github.com/mapruntime/client/internal/transport"
	"github.com/mapruntime/client/internal/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func statusPtr(i int) *int { return &i }

func newEchoDoc(srv *httptest.Server) (*profile.Document, *mapast.Document) {
	profileDoc := &profile.Document{
		UseCases: map[string]*profile.UseCase{
			"Echo": {
				Name: "Echo",
				Input: &profile.Node{
					Kind: profile.KindObject,
					Fields: map[string]*profile.Node{
						"n": {Kind: profile.KindNonNull, Inner: &profile.Node{Kind: profile.KindPrimitive, PrimitiveName: "number"}},
					},
				},
				Result: &profile.Node{Kind: profile.KindPrimitive, PrimitiveName: "number"},
			},
		},
	}

	mapDoc := &mapast.Document{
		Maps: []mapast.Map{{
			UseCaseName: "Echo",
			Statements: []mapast.Statement{
				{Kind: mapast.StmtHTTPCall, HTTPCall: &mapast.HTTPCallStatement{
					Method: http.MethodGet,
					URL:    "/echo",
					ResponseHandlers: []mapast.ResponseHandler{{
						StatusCode: statusPtr(200),
						Statements: []mapast.Statement{
							{Kind: mapast.StmtOutcome, Outcome: &mapast.OutcomeStatement{
								Value:         mapast.Expr{Kind: mapast.ExprJessie, Jessie: "body.n"},
								TerminateFlow: true,
							}},
						},
					}},
				}},
			},
		}},
	}

	return profileDoc, mapDoc
}

func newTestBound(t *testing.T, srv *httptest.Server) *BoundProfileProvider {
	profileDoc, mapDoc := newEchoDoc(srv)
	interp := interpreter.New(transport.NewHTTPFetcher(nil), sandbox.New(100*time.Millisecond), security.NewHandler(), nil, logging.Nop)

	return New("test-profile", profileDoc, mapDoc, ProviderDescriptor{
		Name:           "test-provider",
		Services:       []interpreter.Service{{ID: "default", BaseURL: srv.URL}},
		DefaultService: "default",
	}, nil, nil, nil, interp, 5*time.Minute, logging.Nop)
}

func TestPerformValidatesInputBeforeCallingInterpreter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("interpreter must not dispatch when input validation fails")
	}))
	defer srv.Close()

	bp := newTestBound(t, srv)
	_, err := bp.Perform(context.Background(), "Echo", value.Object{}, PerformOptions{})
	require.Error(t, err)

	ve, ok := err.(*profile.ValidationError)
	require.True(t, ok)
	assert.Equal(t, profile.KindInput, ve.Kind)
}

func TestPerformSuccessValidatesResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"n": 7}`))
	}))
	defer srv.Close()

	bp := newTestBound(t, srv)
	result, err := bp.Perform(context.Background(), "Echo", value.Object{"n": value.Number(7)}, PerformOptions{})
	require.NoError(t, err)
	assert.Equal(t, value.Number(7), result)
}

// Property 8: a parameter value equal to $NAME falls back to the
// provider's declared default.
func TestResolveParametersPlaceholderFallback(t *testing.T) {
	declared := []ProviderParameter{{Name: "API_URL", Default: "https://api.example.com"}}
	out := resolveParameters(declared, value.Object{"API_URL": value.String("$API_URL")})
	assert.Equal(t, value.String("https://api.example.com"), out["API_URL"])
}

func TestResolveParametersPassesThroughWithoutDefault(t *testing.T) {
	declared := []ProviderParameter{{Name: "API_URL"}}
	out := resolveParameters(declared, value.Object{"API_URL": value.String("$API_URL")})
	assert.Equal(t, value.String("$API_URL"), out["API_URL"])
}

func TestResolveParametersMissingEntryGetsDefault(t *testing.T) {
	declared := []ProviderParameter{{Name: "REGION", Default: "us-east-1"}}
	out := resolveParameters(declared, value.Object{})
	assert.Equal(t, value.String("us-east-1"), out["REGION"])
}
