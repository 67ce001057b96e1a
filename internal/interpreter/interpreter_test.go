package interpreter

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mapruntime/client/internal/logging"
	"github.com/mapruntime/client/internal/mapast"
	"github.com/mapruntime/client/internal/sandbox"
	"github.com/mapruntime/client/internal/security"
	"github.com/mapruntime/client/internal/transport"
	"github.com/mapruntime/client/internal/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestInterpreter() *Interpreter {
	return New(transport.NewHTTPFetcher(nil), sandbox.New(100*time.Millisecond), security.NewHandler(), nil, logging.Nop)
}

func statusPtr(i int) *int { return &i }

// S2: GET {url}/twelve expecting 200/JSON, map result body.data. Stub
// returns {"data": 12}. Expected: Ok(12).
func TestPerformS2JSONGetAndResultShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/twelve", r.URL.Path)
		assert.NotEmpty(t, r.Header.Get("X-Map-Correlation-Id"), "every dispatched request carries a per-Perform correlation id")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data": 12}`))
	}))
	defer srv.Close()

	doc := &mapast.Document{
		Maps: []mapast.Map{{
			UseCaseName: "GetTwelve",
			Statements: []mapast.Statement{
				{Kind: mapast.StmtHTTPCall, HTTPCall: &mapast.HTTPCallStatement{
					Method: http.MethodGet,
					URL:    "/twelve",
					ResponseHandlers: []mapast.ResponseHandler{{
						StatusCode: statusPtr(200),
						Statements: []mapast.Statement{
							{Kind: mapast.StmtOutcome, Outcome: &mapast.OutcomeStatement{
								Value:         mapast.Expr{Kind: mapast.ExprJessie, Jessie: "body.data"},
								TerminateFlow: true,
							}},
						},
					}},
				}},
			},
		}},
	}

	ip := newTestInterpreter()
	result, err := ip.Perform(context.Background(), doc, Context{
		UseCase:        "GetTwelve",
		Services:       []Service{{ID: "default", BaseURL: srv.URL}},
		DefaultService: "default",
	})
	require.NoError(t, err)
	assert.Equal(t, value.Number(12), result)
}

// S3: URL {base}/items/{id}, input {id:"abc"}. Expected: final URL ends
// with /items/abc; if id missing, Err HttpError mentioning id.
func TestPerformS3PathTemplateSubstitution(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	doc := &mapast.Document{
		Maps: []mapast.Map{{
			UseCaseName: "GetItem",
			Statements: []mapast.Statement{
				{Kind: mapast.StmtSet, Set: &mapast.SetStatement{Assignments: []mapast.Assignment{
					{Key: "id", Expr: mapast.Expr{Kind: mapast.ExprJessie, Jessie: "input.id"}},
				}}},
				{Kind: mapast.StmtHTTPCall, HTTPCall: &mapast.HTTPCallStatement{
					Method: http.MethodGet,
					URL:    "/items/{id}",
					ResponseHandlers: []mapast.ResponseHandler{{
						StatusCode: statusPtr(200),
						Statements: []mapast.Statement{
							{Kind: mapast.StmtOutcome, Outcome: &mapast.OutcomeStatement{
								Value:         mapast.Expr{Kind: mapast.ExprPrimitiveLiteral, Primitive: true},
								TerminateFlow: true,
							}},
						},
					}},
				}},
			},
		}},
	}

	ip := newTestInterpreter()
	_, err := ip.Perform(context.Background(), doc, Context{
		UseCase:        "GetItem",
		Input:          value.Object{"id": value.String("abc")},
		Services:       []Service{{ID: "default", BaseURL: srv.URL}},
		DefaultService: "default",
	})
	require.NoError(t, err)
	assert.Equal(t, "/items/abc", gotPath)

	_, err = ip.Perform(context.Background(), doc, Context{
		UseCase:        "GetItem",
		Input:          value.Object{},
		Services:       []Service{{ID: "default", BaseURL: srv.URL}},
		DefaultService: "default",
	})
	require.Error(t, err)
	var missing *URLReplacementMissingError
	require.ErrorAs(t, err, &missing)
	assert.Contains(t, missing.Missing, "id")
}

// S6: two services A,B; retry policy maxContiguousRetries=1. A returns
// 503 twice; B returns 200. Expected: 2 attempts to A, 1 attempt to B,
// Ok result.
func TestPerformS6RetryAndFailover(t *testing.T) {
	var aHits, bHits int
	srvA := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		aHits++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srvA.Close()

	srvB := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		bHits++
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{}`))
	}))
	defer srvB.Close()

	doc := &mapast.Document{
		Maps: []mapast.Map{{
			UseCaseName: "Flaky",
			Statements: []mapast.Statement{
				{Kind: mapast.StmtHTTPCall, HTTPCall: &mapast.HTTPCallStatement{
					Method:           http.MethodGet,
					URL:              "/",
					FailoverServices: []string{"a", "b"},
					ResponseHandlers: []mapast.ResponseHandler{{
						StatusCode: statusPtr(200),
						Statements: []mapast.Statement{
							{Kind: mapast.StmtOutcome, Outcome: &mapast.OutcomeStatement{
								Value:         mapast.Expr{Kind: mapast.ExprPrimitiveLiteral, Primitive: true},
								TerminateFlow: true,
							}},
						},
					}},
				}},
			},
		}},
	}

	ip := newTestInterpreter()
	result, err := ip.Perform(context.Background(), doc, Context{
		UseCase: "Flaky",
		Services: []Service{
			{ID: "a", BaseURL: srvA.URL},
			{ID: "b", BaseURL: srvB.URL},
		},
		Retry: RetryPolicy{Kind: RetryCircuitBreaker, MaxContiguousRetries: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, value.Bool(true), result)
	assert.Equal(t, 2, aHits)
	assert.Equal(t, 1, bHits)
}

func TestPerformCallStatementPropagatesOperationResult(t *testing.T) {
	doc := &mapast.Document{
		Operations: []mapast.Operation{{
			Name: "double",
			Statements: []mapast.Statement{
				{Kind: mapast.StmtOutcome, Outcome: &mapast.OutcomeStatement{
					Value: mapast.Expr{Kind: mapast.ExprJessie, Jessie: "n * 2"},
				}},
			},
		}},
		Maps: []mapast.Map{{
			UseCaseName: "DoubleIt",
			Statements: []mapast.Statement{
				{Kind: mapast.StmtCall, Call: &mapast.CallStatement{
					OperationName: "double",
					Args: []mapast.Assignment{
						{Key: "n", Expr: mapast.Expr{Kind: mapast.ExprJessie, Jessie: "input.n"}},
					},
				}},
				{Kind: mapast.StmtOutcome, Outcome: &mapast.OutcomeStatement{
					Value:         mapast.Expr{Kind: mapast.ExprJessie, Jessie: "outcome.data"},
					TerminateFlow: true,
				}},
			},
		}},
	}

	ip := newTestInterpreter()
	result, err := ip.Perform(context.Background(), doc, Context{
		UseCase: "DoubleIt",
		Input:   value.Object{"n": value.Number(21)},
	})
	require.NoError(t, err)
	assert.Equal(t, value.Number(42), result)
}
