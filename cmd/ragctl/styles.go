package main

import (
	"io"

	"github.com/charmbracelet/lipgloss"
)

// styles renders one-line terminal output. The renderer is bound to the
// destination writer, so pipes and buffers get plain text.
type styles struct {
	section lipgloss.Style
	label   lipgloss.Style
	ok      lipgloss.Style
	warn    lipgloss.Style
	bad     lipgloss.Style
}

func newStyles(w io.Writer) styles {
	r := lipgloss.NewRenderer(w)
	return styles{
		section: r.NewStyle().Bold(true).Foreground(lipgloss.Color("51")),
		label:   r.NewStyle().Foreground(lipgloss.Color("45")),
		ok:      r.NewStyle().Foreground(lipgloss.Color("42")),
		warn:    r.NewStyle().Foreground(lipgloss.Color("214")),
		bad:     r.NewStyle().Foreground(lipgloss.Color("196")),
	}
}
