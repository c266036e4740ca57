package ui

import (
	"strings"
	"testing"

	"github.com/speedrift/driftdriver/internal/types"
)

func TestShouldUseColor(t *testing.T) {
	tests := []struct {
		name          string
		noColor       string
		cliColor      string
		cliColorForce string
		want          bool
	}{
		{name: "NO_COLOR disables color", noColor: "1", want: false},
		{name: "CLICOLOR=0 disables color", cliColor: "0", want: false},
		{name: "CLICOLOR_FORCE enables color even in non-TTY", cliColorForce: "1", want: true},
		{name: "NO_COLOR takes precedence over CLICOLOR_FORCE", noColor: "1", cliColorForce: "1", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("NO_COLOR", "")
			t.Setenv("CLICOLOR", tt.cliColor)
			t.Setenv("CLICOLOR_FORCE", tt.cliColorForce)
			if tt.noColor == "" {
				unsetForTest(t, "NO_COLOR")
			} else {
				t.Setenv("NO_COLOR", tt.noColor)
			}
			if got := ShouldUseColor(); got != tt.want {
				t.Errorf("ShouldUseColor() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRenderStatusPlain(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	tests := map[types.HealthStatus]string{
		types.HealthHealthy: "✓ healthy",
		types.HealthWatch:   "⚠ watch",
		types.HealthRisk:    "✗ risk",
		"other":             "- other",
	}
	for status, want := range tests {
		if got := RenderStatus(status); got != want {
			t.Errorf("RenderStatus(%q) = %q, want %q", status, got, want)
		}
	}
}

func TestTruncateSimple(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"this is too long", 10, "this is..."},
		{"héllo wörld", 8, "héllo..."},
		{"abc", 2, "..."},
	}
	for _, tt := range tests {
		if got := TruncateSimple(tt.in, tt.max); got != tt.want {
			t.Errorf("TruncateSimple(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}

func TestIndent(t *testing.T) {
	got := Indent("a\n\nb\n", "  ")
	if got != "  a\n\n  b" {
		t.Errorf("Indent() = %q", got)
	}
	if strings.Contains(Indent("", "> "), ">") {
		t.Error("empty text should stay empty")
	}
}

func TestTerminalWidthFallback(t *testing.T) {
	if got := TerminalWidth(80); got <= 0 {
		t.Errorf("TerminalWidth() = %d, want positive", got)
	}
}

func TestSectionRenderingPlain(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	if got := RenderCategory("missing contracts"); got != "MISSING CONTRACTS" {
		t.Errorf("RenderCategory() = %q", got)
	}
	if got := RenderSeparator(); got != SeparatorLight {
		t.Errorf("RenderSeparator() = %q", got)
	}
	if got := RenderAccent("drifts"); got != "drifts" {
		t.Errorf("RenderAccent() = %q", got)
	}
}
