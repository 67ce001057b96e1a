package binding

import (
	"encoding/json"
	"fmt"

	"github.com/mapruntime/client/internal/mapast"
)

type mapAssignmentWire struct {
	Key  string      `json:"key"`
	Expr *mapExprWire `json:"expr"`
}

type mapExprWire struct {
	Kind       string               `json:"kind"`
	Primitive  interface{}          `json:"primitive,omitempty"`
	Object     []mapAssignmentWire  `json:"object,omitempty"`
	InlineCall *mapInlineCallWire   `json:"inlineCall,omitempty"`
	Jessie     string               `json:"jessie,omitempty"`
}

type mapInlineCallWire struct {
	OperationName string              `json:"operationName"`
	Args          []mapAssignmentWire `json:"args,omitempty"`
}

type mapStatementWire struct {
	Kind     string                  `json:"kind"`
	Set      *mapSetStatementWire    `json:"set,omitempty"`
	Call     *mapCallStatementWire   `json:"call,omitempty"`
	HTTPCall *mapHTTPCallWire        `json:"httpCall,omitempty"`
	Outcome  *mapOutcomeWire         `json:"outcome,omitempty"`
}

type mapSetStatementWire struct {
	Assignments []mapAssignmentWire `json:"assignments"`
}

type mapCallStatementWire struct {
	OperationName string              `json:"operationName"`
	Args          []mapAssignmentWire `json:"args,omitempty"`
	Statements    []mapStatementWire  `json:"statements,omitempty"`
}

type mapHTTPRequestSpecWire struct {
	ContentType     string              `json:"contentType,omitempty"`
	ContentLanguage string              `json:"contentLanguage,omitempty"`
	Headers         []mapAssignmentWire `json:"headers,omitempty"`
	Query           []mapAssignmentWire `json:"query,omitempty"`
	Body            *mapExprWire        `json:"body,omitempty"`
	SecurityID      string              `json:"securityId,omitempty"`
}

type mapResponseHandlerWire struct {
	StatusCode      *int               `json:"statusCode,omitempty"`
	ContentType     string             `json:"contentType,omitempty"`
	ContentLanguage string             `json:"contentLanguage,omitempty"`
	Statements      []mapStatementWire `json:"statements,omitempty"`
}

type mapHTTPCallWire struct {
	Method           string                    `json:"method"`
	URL              string                    `json:"url"`
	ServiceID        string                    `json:"serviceId,omitempty"`
	FailoverServices []string                  `json:"failoverServices,omitempty"`
	Request          *mapHTTPRequestSpecWire   `json:"request,omitempty"`
	ResponseHandlers []mapResponseHandlerWire  `json:"responseHandlers,omitempty"`
}

type mapOutcomeWire struct {
	Value         mapExprWire `json:"value"`
	IsError       bool        `json:"isError,omitempty"`
	TerminateFlow bool        `json:"terminateFlow,omitempty"`
}

type mapWire struct {
	UseCaseName string             `json:"usecaseName"`
	Statements  []mapStatementWire `json:"statements"`
}

type operationWire struct {
	Name       string             `json:"name"`
	Statements []mapStatementWire `json:"statements"`
}

type headerWire struct {
	ProfileID string `json:"profileId"`
	Provider  string `json:"provider"`
	Variant   string `json:"variant,omitempty"`
	Revision  string `json:"revision,omitempty"`
}

type documentWire struct {
	Header     headerWire      `json:"header"`
	Operations []operationWire `json:"operations,omitempty"`
	Maps       []mapWire       `json:"maps"`
}

func (w *mapAssignmentWire) toAssignment() (mapast.Assignment, error) {
	expr, err := w.Expr.toExpr()
	if err != nil {
		return mapast.Assignment{}, err
	}
	return mapast.Assignment{Key: w.Key, Expr: expr}, nil
}

func toAssignments(ws []mapAssignmentWire) ([]mapast.Assignment, error) {
	out := make([]mapast.Assignment, 0, len(ws))
	for _, w := range ws {
		a, err := w.toAssignment()
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func (w *mapExprWire) toExpr() (mapast.Expr, error) {
	if w == nil {
		return mapast.Expr{}, nil
	}
	switch w.Kind {
	case "primitiveLiteral":
		return mapast.Expr{Kind: mapast.ExprPrimitiveLiteral, Primitive: w.Primitive}, nil
	case "objectLiteral":
		assigns, err := toAssignments(w.Object)
		if err != nil {
			return mapast.Expr{}, err
		}
		return mapast.Expr{Kind: mapast.ExprObjectLiteral, Object: assigns}, nil
	case "inlineCall":
		if w.InlineCall == nil {
			return mapast.Expr{}, fmt.Errorf("binding: inlineCall expr missing inlineCall body")
		}
		args, err := toAssignments(w.InlineCall.Args)
		if err != nil {
			return mapast.Expr{}, err
		}
		return mapast.Expr{Kind: mapast.ExprInlineCall, InlineCall: &mapast.InlineCallExpr{
			OperationName: w.InlineCall.OperationName, Args: args,
		}}, nil
	case "jessie":
		return mapast.Expr{Kind: mapast.ExprJessie, Jessie: w.Jessie}, nil
	default:
		return mapast.Expr{}, fmt.Errorf("binding: unknown map expr kind %q", w.Kind)
	}
}

func (w *mapExprWire) toExprPtr() (*mapast.Expr, error) {
	if w == nil {
		return nil, nil
	}
	e, err := w.toExpr()
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func toStatements(ws []mapStatementWire) ([]mapast.Statement, error) {
	out := make([]mapast.Statement, 0, len(ws))
	for _, w := range ws {
		s, err := w.toStatement()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func (w *mapStatementWire) toStatement() (mapast.Statement, error) {
	switch w.Kind {
	case "set":
		if w.Set == nil {
			return mapast.Statement{}, fmt.Errorf("binding: set statement missing body")
		}
		assigns, err := toAssignments(w.Set.Assignments)
		if err != nil {
			return mapast.Statement{}, err
		}
		return mapast.Statement{Kind: mapast.StmtSet, Set: &mapast.SetStatement{Assignments: assigns}}, nil

	case "call":
		if w.Call == nil {
			return mapast.Statement{}, fmt.Errorf("binding: call statement missing body")
		}
		args, err := toAssignments(w.Call.Args)
		if err != nil {
			return mapast.Statement{}, err
		}
		stmts, err := toStatements(w.Call.Statements)
		if err != nil {
			return mapast.Statement{}, err
		}
		return mapast.Statement{Kind: mapast.StmtCall, Call: &mapast.CallStatement{
			OperationName: w.Call.OperationName, Args: args, Statements: stmts,
		}}, nil

	case "httpCall":
		if w.HTTPCall == nil {
			return mapast.Statement{}, fmt.Errorf("binding: httpCall statement missing body")
		}
		spec, err := w.HTTPCall.Request.toSpec()
		if err != nil {
			return mapast.Statement{}, err
		}
		handlers, err := toHandlers(w.HTTPCall.ResponseHandlers)
		if err != nil {
			return mapast.Statement{}, err
		}
		return mapast.Statement{Kind: mapast.StmtHTTPCall, HTTPCall: &mapast.HTTPCallStatement{
			Method: w.HTTPCall.Method, URL: w.HTTPCall.URL, ServiceID: w.HTTPCall.ServiceID,
			FailoverServices: w.HTTPCall.FailoverServices, Request: spec, ResponseHandlers: handlers,
		}}, nil

	case "outcome":
		if w.Outcome == nil {
			return mapast.Statement{}, fmt.Errorf("binding: outcome statement missing body")
		}
		val, err := w.Outcome.Value.toExpr()
		if err != nil {
			return mapast.Statement{}, err
		}
		return mapast.Statement{Kind: mapast.StmtOutcome, Outcome: &mapast.OutcomeStatement{
			Value: val, IsError: w.Outcome.IsError, TerminateFlow: w.Outcome.TerminateFlow,
		}}, nil

	default:
		return mapast.Statement{}, fmt.Errorf("binding: unknown map statement kind %q", w.Kind)
	}
}

func (w *mapHTTPRequestSpecWire) toSpec() (*mapast.HTTPRequestSpec, error) {
	if w == nil {
		return nil, nil
	}
	headers, err := toAssignments(w.Headers)
	if err != nil {
		return nil, err
	}
	query, err := toAssignments(w.Query)
	if err != nil {
		return nil, err
	}
	body, err := w.Body.toExprPtr()
	if err != nil {
		return nil, err
	}
	return &mapast.HTTPRequestSpec{
		ContentType: w.ContentType, ContentLanguage: w.ContentLanguage,
		Headers: headers, Query: query, Body: body, SecurityID: w.SecurityID,
	}, nil
}

func toHandlers(ws []mapResponseHandlerWire) ([]mapast.ResponseHandler, error) {
	out := make([]mapast.ResponseHandler, 0, len(ws))
	for _, w := range ws {
		stmts, err := toStatements(w.Statements)
		if err != nil {
			return nil, err
		}
		out = append(out, mapast.ResponseHandler{
			StatusCode: w.StatusCode, ContentType: w.ContentType, ContentLanguage: w.ContentLanguage,
			Statements: stmts,
		})
	}
	return out, nil
}

// ParseMapAST decodes a compiled map AST JSON artifact into a
// *mapast.Document.
func ParseMapAST(raw []byte) (*mapast.Document, error) {
	var w documentWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("binding: parse map ast: %w", err)
	}

	doc := &mapast.Document{Header: mapast.Header{
		ProfileID: w.Header.ProfileID, Provider: w.Header.Provider,
		Variant: w.Header.Variant, Revision: w.Header.Revision,
	}}

	for _, ow := range w.Operations {
		stmts, err := toStatements(ow.Statements)
		if err != nil {
			return nil, err
		}
		doc.Operations = append(doc.Operations, mapast.Operation{Name: ow.Name, Statements: stmts})
	}
	for _, mw := range w.Maps {
		stmts, err := toStatements(mw.Statements)
		if err != nil {
			return nil, err
		}
		doc.Maps = append(doc.Maps, mapast.Map{UseCaseName: mw.UseCaseName, Statements: stmts})
	}

	return doc, nil
}
