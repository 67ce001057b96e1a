package profile

import (
	"testing"

	"github.com/mapruntime/client/internal/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func numberPrimitive() *Node  { return &Node{Kind: KindPrimitive, PrimitiveName: "number"} }
func stringPrimitive() *Node  { return &Node{Kind: KindPrimitive, PrimitiveName: "string"} }
func boolPrimitive() *Node    { return &Node{Kind: KindPrimitive, PrimitiveName: "boolean"} }
func nonNull(inner *Node) *Node { return &Node{Kind: KindNonNull, Inner: inner} }

// S1: profile requires {user!: {name!: string, age: number}}; calling
// with {user:{age:"x"}} must yield missingRequired at input.user.name
// and wrongType at input.user.age expected number actual string.
func TestValidateS1InputValidationFailure(t *testing.T) {
	userModel := &Node{
		Kind: KindObject,
		Fields: map[string]*Node{
			"name": nonNull(stringPrimitive()),
			"age":  numberPrimitive(),
		},
	}
	doc := &Document{
		UseCases: map[string]*UseCase{
			"DoThing": {
				Name: "DoThing",
				Input: &Node{
					Kind:   KindObject,
					Fields: map[string]*Node{"user": nonNull(userModel)},
				},
			},
		},
	}

	input := value.Object{
		"user": value.Object{"age": value.String("x")},
	}

	err := Validate(doc, KindInput, "DoThing", input)
	require.Error(t, err)

	ve, ok := err.(*ValidationError)
	require.True(t, ok)

	var paths []string
	for _, fe := range ve.Errors {
		paths = append(paths, fe.Path+":"+string(fe.Kind))
	}
	assert.Contains(t, paths, "input.user.name:missingRequired")
	assert.Contains(t, paths, "input.user.age:wrongType")
}

func TestValidateMissingSlotOKWhenValueEmpty(t *testing.T) {
	doc := &Document{UseCases: map[string]*UseCase{"NoInput": {Name: "NoInput"}}}
	assert.NoError(t, Validate(doc, KindInput, "NoInput", nil))
	assert.NoError(t, Validate(doc, KindInput, "NoInput", value.Object{}))
}

func TestValidateMissingSlotWithNonEmptyValueYieldsWrongInput(t *testing.T) {
	doc := &Document{UseCases: map[string]*UseCase{"NoInput": {Name: "NoInput"}}}
	err := Validate(doc, KindInput, "NoInput", value.Object{"x": value.String("y")})
	require.Error(t, err)
	ve := err.(*ValidationError)
	require.Len(t, ve.Errors, 1)
	assert.Equal(t, ErrWrongInput, ve.Errors[0].Kind)
}

// Property 3: validator soundness on primitives.
func TestValidatorSoundnessOnPrimitives(t *testing.T) {
	cases := []struct {
		node *Node
		v    value.Variable
		ok   bool
	}{
		{nonNull(stringPrimitive()), value.String("hi"), true},
		{nonNull(stringPrimitive()), value.Number(1), false},
		{nonNull(numberPrimitive()), value.Number(1), true},
		{nonNull(boolPrimitive()), value.Bool(true), true},
		{nonNull(stringPrimitive()), nil, false},
	}
	for _, c := range cases {
		doc := &Document{UseCases: map[string]*UseCase{"UC": {Name: "UC", Input: c.node}}}
		err := Validate(doc, KindInput, "UC", c.v)
		if c.ok {
			assert.NoError(t, err)
		} else {
			require.Error(t, err)
			ve := err.(*ValidationError)
			require.Len(t, ve.Errors, 1)
			assert.Contains(t, []ErrorKind{ErrWrongType, ErrMissingRequired}, ve.Errors[0].Kind)
		}
	}
}

// Property 4: nested object error paths are literal dotted keys from
// the use-case root.
func TestValidatorPathIsDottedFromRoot(t *testing.T) {
	doc := &Document{
		UseCases: map[string]*UseCase{
			"UC": {
				Name: "UC",
				Input: &Node{
					Kind: KindObject,
					Fields: map[string]*Node{
						"a": {Kind: KindObject, Fields: map[string]*Node{
							"b": nonNull(numberPrimitive()),
						}},
					},
				},
			},
		},
	}
	err := Validate(doc, KindInput, "UC", value.Object{"a": value.Object{}})
	require.Error(t, err)
	ve := err.(*ValidationError)
	require.Len(t, ve.Errors, 1)
	assert.Equal(t, "input.a.b", ve.Errors[0].Path)
}

func TestValidateUnionSucceedsIfAnyBranchSucceeds(t *testing.T) {
	doc := &Document{
		UseCases: map[string]*UseCase{
			"UC": {Name: "UC", Input: &Node{
				Kind:     KindUnion,
				Branches: []*Node{stringPrimitive(), numberPrimitive()},
			}},
		},
	}
	assert.NoError(t, Validate(doc, KindInput, "UC", value.Number(3)))
	assert.NoError(t, Validate(doc, KindInput, "UC", value.String("x")))

	err := Validate(doc, KindInput, "UC", value.Bool(true))
	require.Error(t, err)
	ve := err.(*ValidationError)
	assert.Equal(t, ErrWrongUnion, ve.Errors[0].Kind)
}

func TestValidateListElementsCollectedUnderArrayError(t *testing.T) {
	doc := &Document{
		UseCases: map[string]*UseCase{
			"UC": {Name: "UC", Input: &Node{Kind: KindList, Element: nonNull(numberPrimitive())}},
		},
	}
	err := Validate(doc, KindInput, "UC", value.Sequence{value.Number(1), nil, value.String("x")})
	require.Error(t, err)
	ve := err.(*ValidationError)

	var kinds []ErrorKind
	for _, fe := range ve.Errors {
		kinds = append(kinds, fe.Kind)
	}
	assert.Contains(t, kinds, ErrElementsInArrayWrong)
}

func TestDocumentResolveDereferencesModelRef(t *testing.T) {
	doc := &Document{
		Models: map[string]*Node{
			"User": {Kind: KindObject, Fields: map[string]*Node{"name": nonNull(stringPrimitive())}},
		},
		UseCases: map[string]*UseCase{
			"UC": {Name: "UC", Input: &Node{Kind: KindModelRef, RefName: "User"}},
		},
	}
	require.NoError(t, doc.Resolve())

	err := Validate(doc, KindInput, "UC", value.Object{})
	require.Error(t, err)
	ve := err.(*ValidationError)
	require.Len(t, ve.Errors, 1)
	assert.Equal(t, "input.name", ve.Errors[0].Path)
}

func TestDocumentResolveErrorsOnUnknownModelRef(t *testing.T) {
	doc := &Document{
		UseCases: map[string]*UseCase{
			"UC": {Name: "UC", Input: &Node{Kind: KindModelRef, RefName: "Missing"}},
		},
	}
	require.Error(t, doc.Resolve())
}
