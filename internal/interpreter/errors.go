package interpreter

import (
	"fmt"

	"github.com/mapruntime/client/internal/transport"
)

// MapAstError signals an invariant violation in the map AST itself —
// a Call referencing a missing operation, an unknown statement or
// expression kind, or a use-case with no map. An HttpCall with no
// matching response handler is reported as an HTTPError instead.
type MapAstError struct{ Msg string }

func (e *MapAstError) Error() string { return "interpreter: invalid map ast: " + e.Msg }

// HTTPError wraps a failed (or never-matched) HTTP dispatch with the
// request/response pair that produced it, per SPEC_FULL.md §7.
type HTTPError struct {
	StatusCode int
	Request    transport.Request
	Response   *transport.Response
	Err        error
}

func (e *HTTPError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("interpreter: http error calling %s %s: %s", e.Request.Method, e.Request.URL, e.Err)
	}
	return fmt.Sprintf("interpreter: http %d from %s %s", e.StatusCode, e.Request.Method, e.Request.URL)
}

func (e *HTTPError) Unwrap() error { return e.Err }

// MappedHTTPError is an HttpError whose payload was explicitly marked
// as an error outcome by a response handler (Outcome{isError: true}).
type MappedHTTPError struct {
	StatusCode int
	Payload    interface{}
}

func (e *MappedHTTPError) Error() string {
	return fmt.Sprintf("interpreter: mapped http error, status %d", e.StatusCode)
}

// JessieError wraps a sandbox compile or runtime failure encountered
// while evaluating an embedded expression.
type JessieError struct {
	Source string
	Err    error
}

func (e *JessieError) Error() string {
	return fmt.Sprintf("interpreter: jessie expression %q: %s", e.Source, e.Err)
}

func (e *JessieError) Unwrap() error { return e.Err }

// URLReplacementMissingError reports a path template placeholder with
// no matching variable in scope. The interpreter returns it wrapped in
// an HTTPError, so errors.As reaches it through HTTPError.Unwrap.
type URLReplacementMissingError struct {
	Missing []string
}

func (e *URLReplacementMissingError) Error() string {
	return fmt.Sprintf("interpreter: url template placeholders unresolved: %v", e.Missing)
}

// UnexpectedError marks an internal invariant violation that isn't
// attributable to the map AST or a remote response.
type UnexpectedError struct{ Msg string }

func (e *UnexpectedError) Error() string { return "interpreter: unexpected: " + e.Msg }
