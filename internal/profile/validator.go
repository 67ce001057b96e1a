package profile

import (
	"fmt"
	"strings"

	"github.com/mapruntime/client/internal/value"
)

// ErrorKind is the closed set of validation-error shapes 4.E names.
type ErrorKind string

const (
	ErrMissingRequired       ErrorKind = "missingRequired"
	ErrWrongType             ErrorKind = "wrongType"
	ErrEnumValue             ErrorKind = "enumValue"
	ErrElementsInArrayWrong  ErrorKind = "elementsInArrayWrong"
	ErrWrongUnion            ErrorKind = "wrongUnion"
	ErrWrongInput            ErrorKind = "wrongInput"
)

// FieldError is one path-qualified validation failure.
type FieldError struct {
	Path     string
	Kind     ErrorKind
	Expected string
	Actual   string
}

func (e FieldError) String() string {
	switch e.Kind {
	case ErrWrongType:
		return fmt.Sprintf("%s: %s expected %s, got %s", e.Path, e.Kind, e.Expected, e.Actual)
	case ErrWrongUnion:
		return fmt.Sprintf("%s: %s expected one of %s", e.Path, e.Kind, e.Expected)
	default:
		return fmt.Sprintf("%s: %s", e.Path, e.Kind)
	}
}

// Kind discriminates which slot Validate checks — the validator
// specializes its entry point on this.
type Kind string

const (
	KindInput  Kind = "input"
	KindResult Kind = "result"
)

// ValidationError collects every FieldError found at a given level, per
// 4.E's "collects all field errors... before returning."
type ValidationError struct {
	Kind   Kind
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		parts[i] = fe.String()
	}
	return fmt.Sprintf("%s validation failed: %s", e.Kind, strings.Join(parts, "; "))
}

// Validate walks the document's use-case slot named by kind against v,
// returning a *ValidationError when any field fails.
func Validate(doc *Document, kind Kind, usecaseName string, v value.Variable) error {
	uc, ok := doc.UseCaseByName(usecaseName)
	if !ok {
		return &ASTError{Msg: "use-case not found: " + usecaseName}
	}

	var slot *Node
	switch kind {
	case KindInput:
		slot = uc.Input
	case KindResult:
		slot = uc.Result
	default:
		return &ASTError{Msg: "unknown validation kind: " + string(kind)}
	}

	root := string(kind)

	if slot == nil {
		if value.IsUndefined(v) || isEmptyValue(v) {
			return nil
		}
		return &ValidationError{Kind: kind, Errors: []FieldError{{Path: root, Kind: ErrWrongInput}}}
	}

	var errs []FieldError
	walk(slot, v, root, &errs)
	if len(errs) > 0 {
		return &ValidationError{Kind: kind, Errors: errs}
	}
	return nil
}

func isEmptyValue(v value.Variable) bool {
	switch t := v.(type) {
	case nil:
		return true
	case value.Object:
		return len(t) == 0
	case value.Sequence:
		return len(t) == 0
	case value.String:
		return t == ""
	default:
		return false
	}
}

func walk(n *Node, v value.Variable, path string, errs *[]FieldError) {
	switch n.Kind {
	case KindNonNull:
		if value.IsUndefined(v) {
			*errs = append(*errs, FieldError{Path: path, Kind: ErrMissingRequired})
			return
		}
		walk(n.Inner, v, path, errs)

	case KindPrimitive:
		if value.IsUndefined(v) {
			return
		}
		actual := typeOf(v)
		if actual != n.PrimitiveName {
			*errs = append(*errs, FieldError{Path: path, Kind: ErrWrongType, Expected: n.PrimitiveName, Actual: actual})
		}

	case KindEnum:
		if value.IsUndefined(v) {
			return
		}
		s, ok := v.(value.String)
		if !ok || !contains(n.EnumValues, string(s)) {
			*errs = append(*errs, FieldError{Path: path, Kind: ErrEnumValue, Expected: strings.Join(n.EnumValues, "|")})
		}

	case KindList:
		if value.IsUndefined(v) {
			return
		}
		seq, ok := v.(value.Sequence)
		if !ok {
			*errs = append(*errs, FieldError{Path: path, Kind: ErrWrongType, Expected: "list", Actual: typeOf(v)})
			return
		}
		var elementErrs []FieldError
		for i, el := range seq {
			walk(n.Element, el, fmt.Sprintf("%s[%d]", path, i), &elementErrs)
		}
		if len(elementErrs) > 0 {
			*errs = append(*errs, FieldError{Path: path, Kind: ErrElementsInArrayWrong})
			*errs = append(*errs, elementErrs...)
		}

	case KindObject:
		if value.IsUndefined(v) {
			return
		}
		obj, ok := v.(value.Object)
		if !ok {
			*errs = append(*errs, FieldError{Path: path, Kind: ErrWrongType, Expected: "object", Actual: typeOf(v)})
			return
		}
		for name, field := range n.Fields {
			walk(field, obj[name], path+"."+name, errs)
		}

	case KindUnion:
		if value.IsUndefined(v) {
			return
		}
		expected := make([]string, 0, len(n.Branches))
		for _, branch := range n.Branches {
			var branchErrs []FieldError
			walk(branch, v, path, &branchErrs)
			if len(branchErrs) == 0 {
				return
			}
			expected = append(expected, describe(branch))
		}
		*errs = append(*errs, FieldError{Path: path, Kind: ErrWrongUnion, Expected: strings.Join(expected, "|")})

	case KindModelRef, KindFieldRef:
		if n.Resolved == nil {
			// Document.Resolve runs once per document before the first
			// Validate; a reference reaching here unresolved is an AST
			// invariant violation, not a user error.
			*errs = append(*errs, FieldError{Path: path, Kind: ErrWrongType, Expected: "resolved reference", Actual: "unresolved " + n.RefName})
			return
		}
		walk(n.Resolved, v, path, errs)
	}
}

func typeOf(v value.Variable) string {
	switch v.(type) {
	case value.String:
		return "string"
	case value.Bool:
		return "boolean"
	case value.Number:
		return "number"
	case value.Binary:
		return "binary"
	case value.Sequence:
		return "list"
	case value.Object:
		return "object"
	default:
		return "undefined"
	}
}

func describe(n *Node) string {
	switch n.Kind {
	case KindPrimitive:
		return n.PrimitiveName
	case KindObject:
		return "object"
	case KindList:
		return "list"
	case KindEnum:
		return "enum"
	case KindNonNull:
		return describe(n.Inner)
	default:
		return "unknown"
	}
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
