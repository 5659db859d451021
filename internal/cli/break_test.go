package cli

import (
	"testing"

	"github.com/dshills/scriptdbg/internal/debug"
)

func TestParseFileLine(t *testing.T) {
	tests := []struct {
		spec       string
		wantSource string
		wantLine   int
		wantErr    bool
	}{
		{"main.lua:10", "main.lua", 10, false},
		{"dir/main.lua:3", "dir/main.lua", 3, false},
		{"main.lua", "", 0, true},
		{"main.lua:", "", 0, true},
		{":10", "", 0, true},
		{"main.lua:zero", "", 0, true},
		{"main.lua:0", "", 0, true},
		{"main.lua:-2", "", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			source, line, err := parseFileLine(tt.spec)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("parseFileLine(%q) = %s:%d, want error", tt.spec, source, line)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseFileLine(%q): %v", tt.spec, err)
			}
			if source != tt.wantSource || line != tt.wantLine {
				t.Errorf("got %s:%d, want %s:%d", source, line, tt.wantSource, tt.wantLine)
			}
		})
	}
}

func TestResolveBreakpoint(t *testing.T) {
	session := debug.NewSession(debug.DefaultSessionConfig())
	current = &Shell{session: session}
	t.Cleanup(func() { current = nil })

	id, err := session.SetBreakpoint("main.lua", 10, "", 0)
	if err != nil {
		t.Fatalf("SetBreakpoint: %v", err)
	}

	t.Run("by location", func(t *testing.T) {
		got, err := resolveBreakpoint("main.lua:10")
		if err != nil {
			t.Fatalf("resolveBreakpoint: %v", err)
		}
		if got != id {
			t.Errorf("got %s, want %s", got, id)
		}
	})

	t.Run("by id prefix", func(t *testing.T) {
		got, err := resolveBreakpoint(id[:8])
		if err != nil {
			t.Fatalf("resolveBreakpoint: %v", err)
		}
		if got != id {
			t.Errorf("got %s, want %s", got, id)
		}
	})

	t.Run("unknown location", func(t *testing.T) {
		if _, err := resolveBreakpoint("main.lua:99"); err == nil {
			t.Fatal("expected an error")
		}
	})

	t.Run("unknown id", func(t *testing.T) {
		if _, err := resolveBreakpoint("zzzz"); err == nil {
			t.Fatal("expected an error")
		}
	})
}

func TestShortID(t *testing.T) {
	if got := shortID("12345678-abcd-ef00-1234-567890abcdef"); got != "12345678" {
		t.Errorf("shortID = %q, want first group", got)
	}
	if got := shortID("plain"); got != "plain" {
		t.Errorf("shortID = %q, want unchanged", got)
	}
}

func TestStylerNoColorPassthrough(t *testing.T) {
	s := newStyler(true)
	if got := s.errorf("boom"); got != "boom" {
		t.Errorf("no-color render = %q, want plain text", got)
	}
}
