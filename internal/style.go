package internal

import (
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/sensiblebit/sailor"
)

// Styles holds the terminal styles for one output stream. Colors are
// dropped automatically when the stream is not a color terminal.
type Styles struct {
	Question lipgloss.Style
	Muted    lipgloss.Style
	Accent   lipgloss.Style
	Warning  lipgloss.Style
	Success  lipgloss.Style
}

// NewStyles returns styles rendered for w.
func NewStyles(w io.Writer) *Styles {
	r := lipgloss.NewRenderer(w)
	return &Styles{
		Question: r.NewStyle().Bold(true),
		Muted:    r.NewStyle().Faint(true),
		Accent:   r.NewStyle().Foreground(lipgloss.Color("6")),
		Warning:  r.NewStyle().Foreground(lipgloss.Color("3")).Bold(true),
		Success:  r.NewStyle().Foreground(lipgloss.Color("2")),
	}
}

// CertificateWarning renders the diagnostic block for a failed connection
// attempt. Detail lines keep their label and highlight the value.
func (s *Styles) CertificateWarning(a *sailor.ConnectionAttempt) string {
	var sb strings.Builder
	for _, line := range strings.Split(strings.TrimRight(sailor.FormatAttempt(a), "\n"), "\n") {
		if label, value, ok := strings.Cut(line, ": "); ok && strings.HasPrefix(label, "  ") {
			sb.WriteString(label + ": " + s.Accent.Render(value))
		} else {
			sb.WriteString(s.Warning.Render(line))
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

// WarningReporter returns a guard report function that writes the styled
// warning block to w.
func WarningReporter(w io.Writer) func(*sailor.ConnectionAttempt) {
	styles := NewStyles(w)
	return func(a *sailor.ConnectionAttempt) {
		_, _ = io.WriteString(w, styles.CertificateWarning(a))
	}
}
