// Package style provides the terminal styles used by the tmppg CLI.
package style

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

var (
	// Bold marks progress and success lines.
	Bold = lipgloss.NewStyle().Bold(true)

	// Dim is for secondary detail such as paths and hints.
	Dim = lipgloss.NewStyle().Faint(true)

	// Success is the check mark color.
	Success = lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true)

	// Failure is the cross mark color.
	Failure = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
)

func init() {
	if !ColorEnabled(os.Stdout) {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
}

// ColorEnabled reports whether f is a terminal and NO_COLOR is unset.
func ColorEnabled(f *os.File) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}
