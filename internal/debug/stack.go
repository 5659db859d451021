package debug

import (
	"fmt"
	"strings"
)

// StackNavigator provides navigation and formatting over a pause snapshot.
// It is pure and read-only: it never touches the interpreter, never locks,
// and never triggers a hook. Navigating a cached stack of 100 frames is a
// sub-millisecond operation.
type StackNavigator struct{}

// NewStackNavigator creates a stack navigator.
func NewStackNavigator() *StackNavigator {
	return &StackNavigator{}
}

// NavigateToFrame returns the frame at index in the snapshot.
func (n *StackNavigator) NavigateToFrame(index int, stack []StackFrame) (StackFrame, error) {
	if index < 0 || index >= len(stack) {
		return StackFrame{}, fmt.Errorf("frame index %d out of range [0, %d): %w", index, len(stack), ErrNotFound)
	}
	return stack[index], nil
}

// FormatFrame renders one frame as "source:line in name", with the column
// included when known, e.g. "helper.lua:10:5 in helper". Frames without a
// function name render by Lua convention: the top-level chunk as
// "main chunk", runtime-synthesized frames as "(tail call)".
func (n *StackNavigator) FormatFrame(frame StackFrame) string {
	name := frame.Name
	if name == "" {
		if frame.IsUserCode {
			name = "main chunk"
		} else {
			name = "(tail call)"
		}
	}
	return fmt.Sprintf("%s in %s", frame.Location(), name)
}

// FormatStackTrace renders the snapshot one frame per line, marking the
// current frame with "> " and all others with "  ".
func (n *StackNavigator) FormatStackTrace(stack []StackFrame, currentIndex int) string {
	var b strings.Builder
	for i, frame := range stack {
		marker := "  "
		if i == currentIndex {
			marker = "> "
		}
		fmt.Fprintf(&b, "%s#%d %s\n", marker, i, n.FormatFrame(frame))
	}
	return b.String()
}

// FrameVariables returns the frame's locals keyed by name, exactly as
// captured in the snapshot.
func (n *StackNavigator) FrameVariables(frame StackFrame) map[string]Variable {
	vars := make(map[string]Variable, len(frame.Locals))
	for _, v := range frame.Locals {
		vars[v.Name] = v
	}
	return vars
}
