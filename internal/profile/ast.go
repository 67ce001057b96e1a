// Package profile implements the Profile AST types and the structural
// validator described in SPEC_FULL.md §4.E: a deterministic type-checker
// that walks input/result values against a tree of named models,
// fields, unions, lists, enums, objects, primitives, and non-null
// wrappers, collecting path-qualified errors.
package profile

// Node is a profile type-tree node. Exactly one of the concrete node
// kinds below is embedded in any given Node; which one is determined
// by Kind.
type Node struct {
	Kind NodeKind

	PrimitiveName string // Kind == KindPrimitive: "string" | "number" | "boolean"
	EnumValues    []string
	Fields        map[string]*Node // Kind == KindObject
	Element       *Node            // Kind == KindList
	Branches      []*Node          // Kind == KindUnion
	Inner         *Node            // Kind == KindNonNull
	RefName       string           // Kind == KindModelRef | KindFieldRef
	Resolved      *Node            // set by Document.Resolve for ModelRef/FieldRef
}

// NodeKind discriminates the profile type-tree node variants.
type NodeKind int

const (
	KindPrimitive NodeKind = iota
	KindEnum
	KindObject
	KindList
	KindUnion
	KindNonNull
	KindModelRef
	KindFieldRef
)

// UseCase is a named operation in a profile document with optional
// input, result, and error type slots.
type UseCase struct {
	Name   string
	Input  *Node
	Result *Node
	Error  *Node
}

// Document is a parsed profile AST: named field and model definitions
// plus the use-cases that reference them.
type Document struct {
	Name     string
	Version  string
	Fields   map[string]*Node // NamedField definitions, keyed by name
	Models   map[string]*Node // NamedModel definitions, keyed by name
	UseCases map[string]*UseCase
}

// UseCaseByName looks up a use-case by name.
func (d *Document) UseCaseByName(name string) (*UseCase, bool) {
	uc, ok := d.UseCases[name]
	return uc, ok
}

// Resolve dereferences ModelRef/FieldRef nodes against the document's
// named-definition tables, which SPEC_FULL.md §4.E requires be resolved
// "once into the local named-definition tables on first Document
// visit." Resolve is idempotent and safe to call repeatedly; callers
// typically invoke it once after parsing, before the first Validate.
func (d *Document) Resolve() error {
	seen := make(map[*Node]bool)
	for _, uc := range d.UseCases {
		if uc.Input != nil {
			if err := d.resolveNode(uc.Input, seen); err != nil {
				return err
			}
		}
		if uc.Result != nil {
			if err := d.resolveNode(uc.Result, seen); err != nil {
				return err
			}
		}
		if uc.Error != nil {
			if err := d.resolveNode(uc.Error, seen); err != nil {
				return err
			}
		}
	}
	for _, n := range d.Models {
		if err := d.resolveNode(n, seen); err != nil {
			return err
		}
	}
	for _, n := range d.Fields {
		if err := d.resolveNode(n, seen); err != nil {
			return err
		}
	}
	return nil
}

func (d *Document) resolveNode(n *Node, seen map[*Node]bool) error {
	if n == nil || seen[n] {
		return nil
	}
	seen[n] = true

	switch n.Kind {
	case KindObject:
		for _, f := range n.Fields {
			if err := d.resolveNode(f, seen); err != nil {
				return err
			}
		}
	case KindList:
		return d.resolveNode(n.Element, seen)
	case KindUnion:
		for _, b := range n.Branches {
			if err := d.resolveNode(b, seen); err != nil {
				return err
			}
		}
	case KindNonNull:
		return d.resolveNode(n.Inner, seen)
	case KindModelRef:
		target, ok := d.Models[n.RefName]
		if !ok {
			return &ASTError{Msg: "model reference not found: " + n.RefName}
		}
		n.Resolved = target
		return d.resolveNode(target, seen)
	case KindFieldRef:
		target, ok := d.Fields[n.RefName]
		if !ok {
			return &ASTError{Msg: "field reference not found: " + n.RefName}
		}
		n.Resolved = target
		return d.resolveNode(target, seen)
	}
	return nil
}

// ASTError signals a malformed profile AST — SPEC_FULL.md §7's
// MapAstError sibling for the profile side.
type ASTError struct{ Msg string }

func (e *ASTError) Error() string { return "profile: " + e.Msg }
