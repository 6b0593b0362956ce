package cli

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/matthieugusmini/docker-steward/internal/steward"
)

var (
	styleOK       = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))  // green
	styleStarting = lipgloss.NewStyle().Foreground(lipgloss.Color("214")) // orange
	styleFailed   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")) // red
)

func stdoutIsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// renderStatus renders a bracketed status label, colored on terminals and
// plain when the output is piped.
func renderStatus(s steward.Status) string {
	label := "[" + string(s) + "]"
	if !stdoutIsTerminal() {
		return label
	}
	switch s {
	case steward.StatusOkay:
		return styleOK.Render(label)
	case steward.StatusStarting:
		return styleStarting.Render(label)
	default:
		return styleFailed.Render(label)
	}
}
