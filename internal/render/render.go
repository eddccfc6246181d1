// Package render provides terminal output helpers for the qipu CLI:
// color/TTY detection, Markdown rendering via glamour, and the
// accent/warning/muted style palette used across human-format output.
// Adapted from the teacher's internal/ui/terminal.go (TTY detection,
// NO_COLOR/CLICOLOR conventions) and internal/ui/table.go (lipgloss
// style constants), generalized from beads/issue tables to qipu's
// note/edge/search rendering.
package render

import (
	"os"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// Style palette shared across human-format output.
var (
	ColorAccent = lipgloss.Color("39")
	ColorWarn   = lipgloss.Color("214")
	ColorMuted  = lipgloss.Color("245")
	ColorPass   = lipgloss.Color("42")

	StyleAccent = lipgloss.NewStyle().Bold(true).Foreground(ColorAccent)
	StyleWarn   = lipgloss.NewStyle().Foreground(ColorWarn)
	StyleMuted  = lipgloss.NewStyle().Foreground(ColorMuted)
	StylePass   = lipgloss.NewStyle().Foreground(ColorPass)
)

// IsTerminal reports whether stdout is a TTY.
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// ShouldUseColor follows the NO_COLOR / CLICOLOR conventions, falling
// back to TTY detection.
func ShouldUseColor() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if os.Getenv("CLICOLOR") == "0" {
		return false
	}
	if os.Getenv("CLICOLOR_FORCE") != "" {
		return true
	}
	return IsTerminal()
}

// Width returns the current terminal width, or 80 when it cannot be
// determined (redirected output, non-TTY).
func Width() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 {
		return 80
	}
	return w
}

// Markdown renders body as glamour-formatted Markdown when stdout is a
// color-capable terminal, and returns it unmodified otherwise (so piped
// output and --format records/json stay plain).
func Markdown(body string) string {
	if !ShouldUseColor() {
		return body
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(Width()),
	)
	if err != nil {
		return body
	}
	out, err := renderer.Render(body)
	if err != nil {
		return body
	}
	return out
}

// Profile reports the detected termenv color profile, used to decide
// whether to downgrade styled output to plain ANSI or no color at all.
func Profile() termenv.Profile {
	return termenv.ColorProfile()
}
