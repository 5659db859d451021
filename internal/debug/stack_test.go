package debug

import (
	"errors"
	"strings"
	"testing"
)

func sampleStack() []StackFrame {
	return []StackFrame{
		{
			ID: 0, Name: "", Source: "main.lua", Line: 1, IsUserCode: true,
			Locals: []Variable{{Name: "argc", Value: "2", Type: "number"}},
		},
		{
			ID: 1, Name: "helper", Source: "helper.lua", Line: 10, Column: 5, IsUserCode: true,
			Locals: []Variable{
				{Name: "x", Value: "10", Type: "number"},
				{Name: "s", Value: `"hi"`, Type: "string"},
			},
		},
		{
			ID: 2, Name: "util", Source: "util.lua", Line: 20, IsUserCode: true,
			Locals: []Variable{{Name: "t", Value: `{"a":1}`, Type: "table", HasChildren: true}},
		},
	}
}

func TestNavigateToFrame(t *testing.T) {
	n := NewStackNavigator()
	stack := sampleStack()

	tests := []struct {
		name    string
		index   int
		wantErr bool
	}{
		{"first frame", 0, false},
		{"last frame", 2, false},
		{"negative index", -1, true},
		{"past end", 3, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := n.NavigateToFrame(tt.index, stack)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				if !errors.Is(err, ErrNotFound) {
					t.Errorf("error = %v, want ErrNotFound", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NavigateToFrame: %v", err)
			}
			if frame.ID != stack[tt.index].ID {
				t.Errorf("frame.ID = %d, want %d", frame.ID, stack[tt.index].ID)
			}
		})
	}
}

func TestFormatFrame(t *testing.T) {
	n := NewStackNavigator()

	tests := []struct {
		name  string
		frame StackFrame
		want  string
	}{
		{
			name:  "named function with column",
			frame: StackFrame{Name: "helper", Source: "helper.lua", Line: 10, Column: 5, IsUserCode: true},
			want:  "helper.lua:10:5 in helper",
		},
		{
			name:  "main chunk",
			frame: StackFrame{Name: "", Source: "main.lua", Line: 1, IsUserCode: true},
			want:  "main.lua:1 in main chunk",
		},
		{
			name:  "tail call",
			frame: StackFrame{Name: "", Source: "util.lua", Line: 7, IsUserCode: false},
			want:  "util.lua:7 in (tail call)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := n.FormatFrame(tt.frame); got != tt.want {
				t.Errorf("FormatFrame = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFormatStackTraceMarksCurrentFrame(t *testing.T) {
	n := NewStackNavigator()
	out := n.FormatStackTrace(sampleStack(), 1)

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3:\n%s", len(lines), out)
	}
	if !strings.HasPrefix(lines[1], "> ") {
		t.Errorf("current frame not marked: %q", lines[1])
	}
	if strings.HasPrefix(lines[0], "> ") || strings.HasPrefix(lines[2], "> ") {
		t.Error("non-current frame carries the current marker")
	}
	if !strings.Contains(lines[1], "helper.lua:10:5 in helper") {
		t.Errorf("current frame rendering = %q, want to contain %q", lines[1], "helper.lua:10:5 in helper")
	}
}

func TestFrameVariablesRoundTrip(t *testing.T) {
	n := NewStackNavigator()
	stack := sampleStack()

	frame, err := n.NavigateToFrame(1, stack)
	if err != nil {
		t.Fatalf("NavigateToFrame: %v", err)
	}

	vars := n.FrameVariables(frame)
	if len(vars) != len(stack[1].Locals) {
		t.Fatalf("got %d variables, want %d", len(vars), len(stack[1].Locals))
	}
	for _, want := range stack[1].Locals {
		got, ok := vars[want.Name]
		if !ok {
			t.Errorf("variable %s missing", want.Name)
			continue
		}
		if got != want {
			t.Errorf("variable %s = %+v, want %+v", want.Name, got, want)
		}
	}
}
