package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// ResultType indicates success or failure
type ResultType int

const (
	ResultSuccess ResultType = iota
	ResultFailure
	ResultWarning
)

// Result is the box printed when a command finishes.
type Result struct {
	Type            ResultType
	Title           string   // e.g., "Pixel updated"
	Details         []Field  // Shown for success and warning
	Error           error    // Shown for failure
	Troubleshooting []string // Hint lines shown under a failure
	Width           int
}

// NewSuccessResult creates a success result box
func NewSuccessResult(title string, details ...Field) *Result {
	return &Result{Type: ResultSuccess, Title: title, Details: details, Width: GetTerminalWidth()}
}

// NewFailureResult creates a failure result box. hint is split into lines;
// device.TroubleshootingHint output can be passed as is.
func NewFailureResult(title string, err error, hint string) *Result {
	var lines []string
	if hint != "" {
		lines = strings.Split(hint, "\n")
	}
	return &Result{Type: ResultFailure, Title: title, Error: err, Troubleshooting: lines, Width: GetTerminalWidth()}
}

// NewWarningResult creates a warning result box
func NewWarningResult(title string, details ...Field) *Result {
	return &Result{Type: ResultWarning, Title: title, Details: details, Width: GetTerminalWidth()}
}

// Render returns the styled result box as a string
func (r *Result) Render() string {
	width := clampWidth(r.Width)

	var (
		title  string
		border lipgloss.Color
	)
	switch r.Type {
	case ResultFailure:
		title = ErrorTitleStyle.Render(fmt.Sprintf(" %s  FAILED  ─  %s", FailureMarker, r.Title))
		border = ErrorColor
	case ResultWarning:
		title = WarningTitleStyle.Render(fmt.Sprintf(" %s  WARNING  ─  %s", WarningMarker, r.Title))
		border = WarningColor
	default:
		title = SuccessTitleStyle.Render(fmt.Sprintf(" %s  SUCCESS  ─  %s", SuccessMarker, r.Title))
		border = SuccessColor
	}

	lines := []string{title, ""}
	if len(r.Details) > 0 {
		lines = append(lines, renderFields(r.Details, " "), "")
	}
	if r.Type == ResultFailure && r.Error != nil {
		lines = append(lines, ErrorMessageStyle.Render(" Error: "+r.Error.Error()), "")
	}
	if r.Type == ResultFailure && len(r.Troubleshooting) > 0 {
		for _, tip := range r.Troubleshooting {
			lines = append(lines, TroubleshootingItemStyle.Render(" "+tip))
		}
		lines = append(lines, "")
	}

	return lipgloss.NewStyle().
		Border(lipgloss.DoubleBorder()).
		BorderForeground(border).
		Width(width-2).
		Padding(0, 2).
		Render(strings.Join(lines, "\n"))
}

// String implements fmt.Stringer
func (r *Result) String() string {
	return r.Render()
}

// RenderSuccess renders a success box with the given title and details
func RenderSuccess(title string, details ...Field) string {
	return NewSuccessResult(title, details...).Render()
}

// RenderFailure renders a failure box with the given title, error and hint
func RenderFailure(title string, err error, hint string) string {
	return NewFailureResult(title, err, hint).Render()
}

// RenderWarning renders a warning box with the given title and details
func RenderWarning(title string, details ...Field) string {
	return NewWarningResult(title, details...).Render()
}
