// Package sandbox evaluates embedded Jessie-style expressions found in
// map documents (the Jessie expressions of Set, Outcome, argument and
// request assignments; URL path placeholders are substituted by the
// interpreter without it) against a restricted scope, enforcing the 100ms wall-clock ceiling and
// closed-world capability set described in SPEC_FULL.md §4.B.
//
// Expressions never see Go values directly — capabilities (HTTP,
// filesystem, env) are simply absent from the program's environment, so
// expr-lang/expr's own compiler rejects any attempt to reach them rather
// than us policing a blocklist at runtime.
package sandbox

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// ErrTimeout is returned when an evaluation exceeds its configured ceiling.
var ErrTimeout = fmt.Errorf("sandbox: evaluation exceeded time limit")

// Evaluator compiles and runs Jessie expressions against a scope made of
// plain Go values (map[string]interface{}, the shape value.ToGo produces).
// It caches compiled programs by source text, since the same inline
// expression is typically re-evaluated once per loop iteration or per
// retried HTTP call.
type Evaluator struct {
	timeout time.Duration

	mu    sync.Mutex
	cache map[string]*vm.Program
}

// New builds an Evaluator enforcing timeout on every Evaluate call.
// A zero timeout disables the ceiling (used only in tests).
func New(timeout time.Duration) *Evaluator {
	return &Evaluator{
		timeout: timeout,
		cache:   make(map[string]*vm.Program),
	}
}

// Evaluate compiles (or reuses a cached compile of) source and runs it
// against scope, a flat key/value environment — typically the current
// map-interpreter scope (input, parameters, operation args, Set
// variables, and body/statusCode/headers/outcome once set). The
// expression cannot reference anything not present in scope: there is
// no ambient access to the process environment, filesystem, or network.
func (e *Evaluator) Evaluate(ctx context.Context, source string, scope map[string]interface{}) (interface{}, error) {
	program, err := e.compile(source, scope)
	if err != nil {
		return nil, fmt.Errorf("sandbox: compile %q: %w", source, err)
	}

	type outcome struct {
		val interface{}
		err error
	}
	done := make(chan outcome, 1)

	go func() {
		v, runErr := expr.Run(program, scope)
		done <- outcome{val: v, err: runErr}
	}()

	deadline := e.timeout
	if deadline <= 0 {
		select {
		case o := <-done:
			return o.val, o.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	timer := time.NewTimer(deadline)
	defer timer.Stop()

	select {
	case o := <-done:
		if o.err != nil {
			return nil, fmt.Errorf("sandbox: evaluate %q: %w", source, o.err)
		}
		return o.val, nil
	case <-timer.C:
		return nil, fmt.Errorf("%w: %q ran longer than %s", ErrTimeout, source, deadline)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (e *Evaluator) compile(source string, scope map[string]interface{}) (*vm.Program, error) {
	e.mu.Lock()
	if p, ok := e.cache[source]; ok {
		e.mu.Unlock()
		return p, nil
	}
	e.mu.Unlock()

	program, err := expr.Compile(source, expr.Env(scope), expr.AllowUndefinedVariables())
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.cache[source] = program
	e.mu.Unlock()

	return program, nil
}
