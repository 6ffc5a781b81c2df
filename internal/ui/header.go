package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Field is one labelled line in a header or result box. Fields render in
// the order given.
type Field struct {
	Key   string
	Value string
}

// Header is the banner printed before a command talks to a matrix.
type Header struct {
	Title   string  // e.g., "SET PIXEL"
	Command string  // e.g., "neopixel-ctl set-pixel 0 0 red"
	Params  []Field // e.g., {"Device", "192.168.1.130"}
	Width   int     // Terminal width for responsive rendering
}

// NewHeader creates a header sized to the terminal
func NewHeader(title, command string, params ...Field) *Header {
	return &Header{
		Title:   title,
		Command: command,
		Params:  params,
		Width:   GetTerminalWidth(),
	}
}

// Render returns the styled header as a string
func (h *Header) Render() string {
	width := clampWidth(h.Width)

	top := lipgloss.JoinVertical(lipgloss.Left,
		HeaderTitleStyle.Render(strings.ToUpper(h.Title)),
		HeaderCommandStyle.Render(h.Command),
	)

	content := top
	if len(h.Params) > 0 {
		divider := lipgloss.NewStyle().
			Foreground(PrimaryColor).
			Render(strings.Repeat("─", width-6))
		content = lipgloss.JoinVertical(lipgloss.Left, top, divider, renderFields(h.Params, "  "))
	}

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(PrimaryColor).
		Width(width - 2).
		Render(content)
}

// String implements fmt.Stringer
func (h *Header) String() string {
	return h.Render()
}

func renderFields(fields []Field, indent string) string {
	lines := make([]string, 0, len(fields))
	for _, f := range fields {
		lines = append(lines, indent+FieldKeyStyle.Render(f.Key+":")+" "+FieldValueStyle.Render(f.Value))
	}
	return strings.Join(lines, "\n")
}
