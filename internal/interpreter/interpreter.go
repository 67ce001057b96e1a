// Package interpreter implements the Map Interpreter (SPEC_FULL.md
// §4.F): an AST-walking executor over a Map AST with scoped variable
// frames, operation calls, HTTP dispatch through the security and
// transport layers, retry/failover, and embedded-expression evaluation
// via internal/sandbox.
package interpreter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/mapruntime/client/internal/logging"
	"github.com/mapruntime/client/internal/mapast"
	"github.com/mapruntime/client/internal/sandbox"
	"github.com/mapruntime/client/internal/security"
	"github.com/mapruntime/client/internal/transport"
	"github.com/mapruntime/client/internal/value"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Context is the execution context a single Perform call runs against:
// the resolved use-case, composed input, effective security and
// parameters, and the provider's service topology.
type Context struct {
	Profile        string
	UseCase        string
	Provider       string
	Input          value.Variable
	Parameters     value.Object
	Services       []Service
	DefaultService string
	Security       []security.Configuration
	Retry          RetryPolicy
}

// Interpreter executes Map ASTs against a Context.
type Interpreter struct {
	fetcher transport.Fetcher
	eval    *sandbox.Evaluator
	sec     *security.Handler
	tracer  trace.Tracer
	log     logging.Logger
}

// New builds an Interpreter. tracer may be nil (spans become no-ops);
// log defaults to logging.Nop when nil.
func New(fetcher transport.Fetcher, eval *sandbox.Evaluator, sec *security.Handler, tracer trace.Tracer, log logging.Logger) *Interpreter {
	if log == nil {
		log = logging.Nop
	}
	return &Interpreter{fetcher: fetcher, eval: eval, sec: sec, tracer: tracer, log: log}
}

// Perform executes the map realizing rctx.UseCase within doc and
// returns its produced value, or an error from the closed taxonomy in
// SPEC_FULL.md §7.
func (ip *Interpreter) Perform(ctx context.Context, doc *mapast.Document, rctx Context) (value.Variable, error) {
	var m *mapast.Map
	for i := range doc.Maps {
		if doc.Maps[i].UseCaseName == rctx.UseCase {
			m = &doc.Maps[i]
			break
		}
	}
	if m == nil {
		return nil, &MapAstError{Msg: "no map for use-case " + rctx.UseCase}
	}

	ops := make(map[string]mapast.Operation, len(doc.Operations))
	for _, op := range doc.Operations {
		ops[op.Name] = op
	}

	e := &execState{
		ctx:           ctx,
		doc:           doc,
		ops:           ops,
		rctx:          rctx,
		selector:      NewServiceSelector(rctx.Services, rctx.DefaultService),
		interp:        ip,
		stack:         &stack{},
		correlationID: uuid.NewString(),
	}

	root := newFrame(frameMap, value.Object{"input": rctx.Input, "parameters": rctx.Parameters})
	e.stack.push(root)

	ip.log("interpreter", "perform started", map[string]any{
		"profile": rctx.Profile, "usecase": rctx.UseCase, "provider": rctx.Provider, "correlation_id": e.correlationID,
	})

	if err := e.exec(m.Statements); err != nil {
		ip.log("interpreter", "perform failed", map[string]any{"usecase": rctx.UseCase, "error": err.Error(), "correlation_id": e.correlationID})
		return nil, err
	}

	top := e.stack.top()
	if top.terminated {
		return top.result, nil
	}
	result := value.GetValue(top.variables, []string{"result"})
	if value.IsUndefined(result) {
		return nil, &MapAstError{Msg: "map produced no result for use-case " + rctx.UseCase}
	}
	return result, nil
}

// execState holds the mutable state of one Perform invocation.
type execState struct {
	ctx      context.Context
	doc      *mapast.Document
	ops      map[string]mapast.Operation
	rctx     Context
	selector *ServiceSelector
	interp   *Interpreter
	stack    *stack

	correlationID string

	outcomeCount     int
	lastOutcomeValue value.Variable
	lastOutcomeError bool
}

func (e *execState) exec(stmts []mapast.Statement) error {
	for _, st := range stmts {
		if e.stack.top().terminated {
			break
		}
		var err error
		switch st.Kind {
		case mapast.StmtSet:
			err = e.execSet(st.Set)
		case mapast.StmtCall:
			err = e.execCall(st.Call)
		case mapast.StmtHTTPCall:
			err = e.execHTTPCall(st.HTTPCall)
		case mapast.StmtOutcome:
			err = e.execOutcome(st.Outcome)
		default:
			err = &MapAstError{Msg: "unknown statement kind"}
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (e *execState) execSet(s *mapast.SetStatement) error {
	for _, a := range s.Assignments {
		val, err := e.evalExpr(a.Expr)
		if err != nil {
			return err
		}
		e.stack.setTop(a.Key, val)
	}
	return nil
}

func (e *execState) execOutcome(o *mapast.OutcomeStatement) error {
	val, err := e.evalExpr(o.Value)
	if err != nil {
		return err
	}

	e.outcomeCount++
	e.lastOutcomeValue = val
	e.lastOutcomeError = o.IsError

	top := e.stack.top()
	if o.TerminateFlow {
		top.result = val
		top.terminated = true
		return nil
	}

	if top.kind == frameMap {
		e.stack.setTop("result", val)
	} else {
		e.stack.mergeTop(value.Object{"outcome": value.Object{"data": val}})
	}
	return nil
}

func (e *execState) execCall(c *mapast.CallStatement) error {
	op, ok := e.ops[c.OperationName]
	if !ok {
		return &MapAstError{Msg: "operation not found: " + c.OperationName}
	}

	args := value.Object{}
	for _, a := range c.Args {
		val, err := e.evalExpr(a.Expr)
		if err != nil {
			return err
		}
		args, _ = value.SetValue(args, splitPath(a.Key), val).(value.Object)
	}

	e.stack.push(newFrame(frameOperation, args))
	if err := e.exec(op.Statements); err != nil {
		e.stack.pop()
		return err
	}

	opFrame := e.stack.pop()
	var result value.Variable
	if opFrame.terminated {
		result = opFrame.result
	} else {
		result = value.GetValue(opFrame.variables, []string{"outcome", "data"})
	}

	e.stack.mergeTop(value.Object{"outcome": value.Object{"data": result}})
	return e.exec(c.Statements)
}

// evalExpr evaluates a map expression against the current merged scope.
func (e *execState) evalExpr(expr mapast.Expr) (value.Variable, error) {
	switch expr.Kind {
	case mapast.ExprPrimitiveLiteral:
		return value.CastToVariables(expr.Primitive)

	case mapast.ExprObjectLiteral:
		var obj value.Variable = value.Object{}
		for _, a := range expr.Object {
			val, err := e.evalExpr(a.Expr)
			if err != nil {
				return nil, err
			}
			obj = value.SetValue(obj, splitPath(a.Key), val)
		}
		return obj, nil

	case mapast.ExprJessie:
		scope := value.ToGo(e.stack.scope())
		scopeMap, _ := scope.(map[string]interface{})
		out, err := e.interp.eval.Evaluate(e.ctx, expr.Jessie, scopeMap)
		if err != nil {
			return nil, &JessieError{Source: expr.Jessie, Err: err}
		}
		return value.CastToVariables(out)

	case mapast.ExprInlineCall:
		return e.evalInlineCall(expr.InlineCall)

	default:
		return nil, &MapAstError{Msg: "unknown expression kind"}
	}
}

func (e *execState) evalInlineCall(c *mapast.InlineCallExpr) (value.Variable, error) {
	op, ok := e.ops[c.OperationName]
	if !ok {
		return nil, &MapAstError{Msg: "operation not found: " + c.OperationName}
	}

	args := value.Object{}
	for _, a := range c.Args {
		val, err := e.evalExpr(a.Expr)
		if err != nil {
			return nil, err
		}
		args, _ = value.SetValue(args, splitPath(a.Key), val).(value.Object)
	}

	e.stack.push(newFrame(frameOperation, args))
	if err := e.exec(op.Statements); err != nil {
		e.stack.pop()
		return nil, err
	}
	opFrame := e.stack.pop()
	if opFrame.terminated {
		return opFrame.result, nil
	}
	return value.GetValue(opFrame.variables, []string{"outcome", "data"}), nil
}

var urlPlaceholder = regexp.MustCompile(`\{([a-zA-Z0-9_.]+)\}`)

func interpolateURL(tmpl string, scope value.Object) (string, []string) {
	var missing []string
	out := urlPlaceholder.ReplaceAllStringFunc(tmpl, func(token string) string {
		name := token[1 : len(token)-1]
		v := value.GetValue(scope, splitPath(name))
		if value.IsUndefined(v) {
			missing = append(missing, name)
			return token
		}
		s, err := value.VariablesToStrings(value.Object{"v": v})
		if err != nil {
			missing = append(missing, name)
			return token
		}
		return s["v"]
	})
	return out, missing
}

func (e *execState) execHTTPCall(c *mapast.HTTPCallStatement) error {
	scope := e.stack.scope()

	svc, err := e.selector.Resolve(c.ServiceID, c.FailoverServices)
	if err != nil {
		return &MapAstError{Msg: err.Error()}
	}

	retry := e.rctx.Retry
	attempt := 0
	hedge := retry.backoffFor(e.ctx)

	for {
		url, missing := interpolateURL(svc.BaseURL+c.URL, scope)
		if len(missing) > 0 {
			return &HTTPError{Request: transport.Request{Method: c.Method, URL: url},
				Err: &URLReplacementMissingError{Missing: missing}}
		}

		req, bodyVal, err := e.buildRequest(c.Method, url, c.Request, scope)
		if err != nil {
			return err
		}

		spanCtx, span := e.interp.startSpan(e.ctx, e.rctx, c.Method, url)
		resp, fetchErr := e.interp.fetcher.Fetch(spanCtx, req)
		e.interp.endSpan(span, resp, fetchErr)

		if fetchErr == nil && c.Request != nil && c.Request.SecurityID != "" {
			if cfg, ok := findSecurityConfig(e.rctx.Security, c.Request.SecurityID); ok {
				if auth, retryChallenge := e.interp.sec.NeedsChallengeRetry(cfg, req.Method, req.URL, resp); retryChallenge {
					req.Headers.Set("Authorization", auth)
					spanCtx, span = e.interp.startSpan(e.ctx, e.rctx, c.Method, url)
					resp, fetchErr = e.interp.fetcher.Fetch(spanCtx, req)
					e.interp.endSpan(span, resp, fetchErr)
				}
			}
		}

		retryable := fetchErr != nil || isRetryableStatus(resp.Status)

		if fetchErr == nil {
			handled, handlerErr := e.runResponseHandlers(c.ResponseHandlers, req, resp, bodyVal)
			if handlerErr == nil && handled {
				return nil
			}
			if handlerErr != nil {
				var mapped *MappedHTTPError
				if errors.As(handlerErr, &mapped) {
					return handlerErr
				}
				if !retryable {
					return handlerErr
				}
			} else if !retryable {
				return &HTTPError{StatusCode: resp.Status, Request: req, Response: &resp,
					Err: errors.New("no response handler matched")}
			}
		}

		if retry.Kind == RetryNone {
			if fetchErr != nil {
				return &HTTPError{StatusCode: 0, Request: req, Err: fetchErr}
			}
			return &HTTPError{StatusCode: resp.Status, Request: req, Response: &resp,
				Err: errors.New("no response handler matched")}
		}

		attempt++
		if attempt > retry.MaxContiguousRetries {
			next, ok := e.selector.Advance()
			if !ok {
				if fetchErr != nil {
					return &HTTPError{StatusCode: 0, Request: req, Err: fetchErr}
				}
				return &HTTPError{StatusCode: resp.Status, Request: req, Response: &resp,
					Err: errors.New("service failover exhausted")}
			}
			svc = next
			attempt = 0
			hedge = retry.backoffFor(e.ctx)
			continue
		}

		if d := hedge.NextBackOff(); d != backoff.Stop {
			select {
			case <-time.After(d):
			case <-e.ctx.Done():
				return e.ctx.Err()
			}
		}
	}
}

func (e *execState) buildRequest(method, url string, spec *mapast.HTTPRequestSpec, scope value.Object) (transport.Request, value.Variable, error) {
	req := transport.Request{
		Method:  method,
		URL:     url,
		Headers: transport.Values{},
		Query:   transport.Values{},
	}
	if e.rctx.Retry.RequestTimeout > 0 {
		req.Timeout = e.rctx.Retry.RequestTimeout
	}
	if e.correlationID != "" {
		req.Headers.Set("X-Map-Correlation-Id", e.correlationID)
	}

	var bodyVal value.Variable
	if spec != nil {
		if err := e.fillValues(req.Headers, spec.Headers); err != nil {
			return req, nil, err
		}
		if err := e.fillValues(req.Query, spec.Query); err != nil {
			return req, nil, err
		}
		if spec.ContentType != "" {
			req.Headers.Set("Content-Type", spec.ContentType)
		}
		if spec.ContentLanguage != "" {
			req.Headers.Set("Content-Language", spec.ContentLanguage)
		}

		if spec.Body != nil {
			val, err := e.evalExpr(*spec.Body)
			if err != nil {
				return req, nil, err
			}
			bodyVal = val
			body, err := buildRequestBody(spec.ContentType, val)
			if err != nil {
				return req, nil, err
			}
			req.Body = body
		}

		if spec.SecurityID != "" {
			cfg, ok := findSecurityConfig(e.rctx.Security, spec.SecurityID)
			if !ok {
				return req, nil, &MapAstError{Msg: "security configuration not found: " + spec.SecurityID}
			}
			if err := e.interp.sec.Prepare(&req, cfg, &req.Body); err != nil {
				return req, nil, err
			}
		}
	}

	return req, bodyVal, nil
}

func (e *execState) fillValues(dst transport.Values, assigns []mapast.Assignment) error {
	for _, a := range assigns {
		val, err := e.evalExpr(a.Expr)
		if err != nil {
			return err
		}
		if value.IsUndefined(val) {
			continue
		}
		strs, err := value.VariablesToStrings(value.Object{"v": val})
		if err != nil {
			return err
		}
		dst.Add(a.Key, strs["v"])
	}
	return nil
}

func buildRequestBody(contentType string, v value.Variable) (transport.RequestBody, error) {
	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "multipart/form-data"):
		obj, ok := v.(value.Object)
		if !ok {
			return transport.RequestBody{}, &MapAstError{Msg: "multipart body requires an object"}
		}
		return transport.RequestBody{Kind: transport.BodyMultipartForm, Form: objectToFormFields(obj)}, nil
	case strings.Contains(ct, "application/x-www-form-urlencoded"):
		obj, ok := v.(value.Object)
		if !ok {
			return transport.RequestBody{}, &MapAstError{Msg: "form body requires an object"}
		}
		return transport.RequestBody{Kind: transport.BodyURLEncodedForm, Form: objectToFormFields(obj)}, nil
	default:
		if bin, ok := v.(value.Binary); ok {
			return transport.RequestBody{Kind: transport.BodyBinary, Binary: &bin}, nil
		}
		raw, err := json.Marshal(value.ToGo(v))
		if err != nil {
			return transport.RequestBody{}, &UnexpectedError{Msg: err.Error()}
		}
		return transport.RequestBody{Kind: transport.BodyString, String: string(raw)}, nil
	}
}

func objectToFormFields(obj value.Object) []transport.FormField {
	fields := make([]transport.FormField, 0, len(obj))
	for k, v := range obj {
		switch t := v.(type) {
		case value.Binary:
			fields = append(fields, transport.FormField{Name: k, Binary: &t})
		case value.Sequence:
			var vals []string
			for _, el := range t {
				strs, _ := value.VariablesToStrings(value.Object{"v": el})
				vals = append(vals, strs["v"])
			}
			fields = append(fields, transport.FormField{Name: k, Values: vals})
		default:
			strs, _ := value.VariablesToStrings(value.Object{"v": v})
			fields = append(fields, transport.FormField{Name: k, Values: []string{strs["v"]}})
		}
	}
	return fields
}

func findSecurityConfig(cfgs []security.Configuration, id string) (security.Configuration, bool) {
	for _, c := range cfgs {
		if c.Scheme.ID == id {
			return c, true
		}
	}
	return security.Configuration{}, false
}

// runResponseHandlers selects the first matching handler (status,
// content-type prefix, content-language prefix) and executes its
// statements with body/statusCode/headers exposed as variables. It
// returns handled=true once a matching handler ran, and an error when
// the handler's statements fail or the handler produced a mapped error
// outcome or none at all.
func (e *execState) runResponseHandlers(handlers []mapast.ResponseHandler, req transport.Request, resp transport.Response, _ value.Variable) (bool, error) {
	bodyVar, err := value.CastToVariables(decodeToInterface(resp.Body))
	if err != nil {
		return false, &UnexpectedError{Msg: err.Error()}
	}

	headerObj := value.Object{}
	for k, vs := range resp.Headers {
		if len(vs) == 1 {
			headerObj[k] = value.String(vs[0])
		} else {
			seq := make(value.Sequence, len(vs))
			for i, v := range vs {
				seq[i] = value.String(v)
			}
			headerObj[k] = seq
		}
	}

	for _, h := range handlers {
		if !matchesHandler(h, resp) {
			continue
		}

		e.stack.mergeTop(value.Object{
			"body":       bodyVar,
			"statusCode": value.Number(resp.Status),
			"headers":    headerObj,
		})

		before := e.outcomeCount
		if err := e.exec(h.Statements); err != nil {
			return true, err
		}
		if e.outcomeCount == before {
			return true, &HTTPError{StatusCode: resp.Status, Request: req, Response: &resp,
				Err: errors.New("response handler produced no outcome")}
		}
		if e.lastOutcomeError {
			return true, &MappedHTTPError{StatusCode: resp.Status, Payload: value.ToGo(e.lastOutcomeValue)}
		}
		return true, nil
	}

	return false, nil
}

func decodeToInterface(body interface{}) interface{} {
	switch b := body.(type) {
	case value.Variable:
		return value.ToGo(b)
	default:
		return b
	}
}

func matchesHandler(h mapast.ResponseHandler, resp transport.Response) bool {
	if h.StatusCode != nil && *h.StatusCode != resp.Status {
		return false
	}
	if h.ContentType != "" && !strings.HasPrefix(strings.ToLower(resp.Headers.Get("Content-Type")), strings.ToLower(h.ContentType)) {
		return false
	}
	if h.ContentLanguage != "" && !strings.HasPrefix(strings.ToLower(resp.Headers.Get("Content-Language")), strings.ToLower(h.ContentLanguage)) {
		return false
	}
	return true
}

func (ip *Interpreter) startSpan(ctx context.Context, rctx Context, method, url string) (context.Context, trace.Span) {
	if ip.tracer == nil {
		return ctx, noopSpan{}
	}
	return ip.tracer.Start(ctx, fmt.Sprintf("http.%s", method),
		trace.WithAttributes(
			attribute.String("http.url", url),
			attribute.String("profile", rctx.Profile),
			attribute.String("usecase", rctx.UseCase),
			attribute.String("provider", rctx.Provider),
		))
}

func (ip *Interpreter) endSpan(span trace.Span, resp transport.Response, err error) {
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetAttributes(attribute.Int("http.status_code", resp.Status))
	}
	span.End()
}

// noopSpan satisfies trace.Span when no tracer is configured.
type noopSpan struct{ trace.Span }

func (noopSpan) End(...trace.SpanEndOption)                  {}
func (noopSpan) SetStatus(codes.Code, string)                 {}
func (noopSpan) SetAttributes(...attribute.KeyValue)          {}
