package binding

import (
	"encoding/json"
	"fmt"

	"github.com/mapruntime/client/internal/profile"
)

// Profile and map ASTs arrive as compiled JSON artifacts — produced by
// the external parser/compiler the spec places out of scope — so
// decoding here is a direct structural mapping, not source parsing.

type profileNodeWire struct {
	Kind          string                      `json:"kind"`
	PrimitiveName string                      `json:"primitiveName,omitempty"`
	EnumValues    []string                    `json:"enumValues,omitempty"`
	Fields        map[string]*profileNodeWire `json:"fields,omitempty"`
	Element       *profileNodeWire            `json:"element,omitempty"`
	Branches      []*profileNodeWire          `json:"branches,omitempty"`
	Inner         *profileNodeWire            `json:"inner,omitempty"`
	RefName       string                      `json:"refName,omitempty"`
}

type profileUseCaseWire struct {
	Name   string           `json:"name"`
	Input  *profileNodeWire `json:"input,omitempty"`
	Result *profileNodeWire `json:"result,omitempty"`
	Error  *profileNodeWire `json:"error,omitempty"`
}

type profileDocumentWire struct {
	Name     string                         `json:"name"`
	Version  string                         `json:"version"`
	Fields   map[string]*profileNodeWire    `json:"fields,omitempty"`
	Models   map[string]*profileNodeWire    `json:"models,omitempty"`
	UseCases map[string]*profileUseCaseWire `json:"usecases"`
}

func (w *profileNodeWire) toNode() (*profile.Node, error) {
	if w == nil {
		return nil, nil
	}
	n := &profile.Node{PrimitiveName: w.PrimitiveName, EnumValues: w.EnumValues, RefName: w.RefName}
	switch w.Kind {
	case "primitive":
		n.Kind = profile.KindPrimitive
	case "enum":
		n.Kind = profile.KindEnum
	case "object":
		n.Kind = profile.KindObject
		n.Fields = make(map[string]*profile.Node, len(w.Fields))
		for k, f := range w.Fields {
			fn, err := f.toNode()
			if err != nil {
				return nil, err
			}
			n.Fields[k] = fn
		}
	case "list":
		n.Kind = profile.KindList
		el, err := w.Element.toNode()
		if err != nil {
			return nil, err
		}
		n.Element = el
	case "union":
		n.Kind = profile.KindUnion
		for _, b := range w.Branches {
			bn, err := b.toNode()
			if err != nil {
				return nil, err
			}
			n.Branches = append(n.Branches, bn)
		}
	case "nonNull":
		n.Kind = profile.KindNonNull
		in, err := w.Inner.toNode()
		if err != nil {
			return nil, err
		}
		n.Inner = in
	case "modelRef":
		n.Kind = profile.KindModelRef
	case "fieldRef":
		n.Kind = profile.KindFieldRef
	default:
		return nil, fmt.Errorf("binding: unknown profile node kind %q", w.Kind)
	}
	return n, nil
}

// ParseProfileAST decodes a compiled profile AST JSON artifact into a
// *profile.Document.
func ParseProfileAST(raw []byte) (*profile.Document, error) {
	var w profileDocumentWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("binding: parse profile ast: %w", err)
	}

	doc := &profile.Document{
		Name:     w.Name,
		Version:  w.Version,
		Fields:   map[string]*profile.Node{},
		Models:   map[string]*profile.Node{},
		UseCases: map[string]*profile.UseCase{},
	}
	for k, f := range w.Fields {
		n, err := f.toNode()
		if err != nil {
			return nil, err
		}
		doc.Fields[k] = n
	}
	for k, m := range w.Models {
		n, err := m.toNode()
		if err != nil {
			return nil, err
		}
		doc.Models[k] = n
	}
	for k, uc := range w.UseCases {
		input, err := uc.Input.toNode()
		if err != nil {
			return nil, err
		}
		result, err := uc.Result.toNode()
		if err != nil {
			return nil, err
		}
		errNode, err := uc.Error.toNode()
		if err != nil {
			return nil, err
		}
		doc.UseCases[k] = &profile.UseCase{Name: uc.Name, Input: input, Result: result, Error: errNode}
	}

	if err := doc.Resolve(); err != nil {
		return nil, err
	}
	return doc, nil
}
