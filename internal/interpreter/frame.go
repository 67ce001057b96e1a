package interpreter

import "github.com/mapruntime/client/internal/value"

// frameKind discriminates the two stack-frame shapes SPEC_FULL.md §4.F
// names: a map frame (the use-case's top-level execution) and an
// operation frame (pushed for every Call).
type frameKind int

const (
	frameMap frameKind = iota
	frameOperation
)

// frame is one entry of the interpreter's LIFO execution stack.
type frame struct {
	kind      frameKind
	variables value.Object

	// result is set once a TerminateFlow Outcome executes in this frame;
	// a non-terminating Outcome writes into variables instead. A nil
	// result means the frame hasn't terminated with one.
	result       value.Variable
	terminated   bool
}

func newFrame(kind frameKind, seed value.Object) *frame {
	if seed == nil {
		seed = value.Object{}
	}
	return &frame{kind: kind, variables: seed}
}

// stack is the interpreter's push/pop frame stack plus the merged-scope
// resolution rule from §4.F: "union all frames bottom-up with right-
// bias."
type stack struct {
	frames []*frame
}

func (s *stack) push(f *frame) { s.frames = append(s.frames, f) }

func (s *stack) pop() *frame {
	n := len(s.frames)
	f := s.frames[n-1]
	s.frames = s.frames[:n-1]
	return f
}

func (s *stack) top() *frame { return s.frames[len(s.frames)-1] }

// scope returns the merged, right-biased union of every frame's
// variables, bottom (oldest) to top (most recent) — the environment
// expression evaluation and Set/HttpCall resolution read from.
func (s *stack) scope() value.Object {
	var merged value.Variable
	for _, f := range s.frames {
		merged = value.Merge(merged, f.variables)
	}
	obj, _ := merged.(value.Object)
	if obj == nil {
		obj = value.Object{}
	}
	return obj
}

// setTop merges val into the top frame's variables at the dotted key path.
func (s *stack) setTop(path string, val value.Variable) {
	top := s.top()
	top.variables = value.SetValue(top.variables, splitPath(path), val).(value.Object)
}

// mergeTop deep-merges obj into the top frame's variables.
func (s *stack) mergeTop(obj value.Object) {
	top := s.top()
	merged := value.Merge(top.variables, obj)
	top.variables, _ = merged.(value.Object)
}

func splitPath(path string) []string {
	var out []string
	start := 0
	for i := 0; i < len(path); i++ {
		if path[i] == '.' {
			out = append(out, path[start:i])
			start = i + 1
		}
	}
	out = append(out, path[start:])
	return out
}
