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

// Detail is one key/value line of a result box. Details keep their order.
type Detail struct {
	Key   string
	Value string
}

// D is shorthand for building a Detail.
func D(key string, value any) Detail {
	return Detail{Key: key, Value: fmt.Sprint(value)}
}

// Result represents a result box (success, failure, or warning)
type Result struct {
	Type            ResultType
	Title           string   // e.g., "Ping accepted"
	Details         []Detail // shown in order
	Error           error    // failure results only
	Troubleshooting []string // failure results only
	Width           int
}

// NewSuccessResult creates a success result box
func NewSuccessResult(title string, details ...Detail) *Result {
	return &Result{Type: ResultSuccess, Title: title, Details: details, Width: GetTerminalWidth()}
}

// NewFailureResult creates a failure result box
func NewFailureResult(title string, err error, troubleshooting []string) *Result {
	return &Result{
		Type:            ResultFailure,
		Title:           title,
		Error:           err,
		Troubleshooting: troubleshooting,
		Width:           GetTerminalWidth(),
	}
}

// NewWarningResult creates a warning result box
func NewWarningResult(title string, details ...Detail) *Result {
	return &Result{Type: ResultWarning, Title: title, Details: details, Width: GetTerminalWidth()}
}

// SetWidth sets the terminal width for responsive rendering
func (r *Result) SetWidth(width int) *Result {
	r.Width = width
	return r
}

// AddDetail appends a detail line
func (r *Result) AddDetail(key string, value any) *Result {
	r.Details = append(r.Details, D(key, value))
	return r
}

// Render returns the styled result box as a string
func (r *Result) Render() string {
	width := r.Width
	if width < MinTerminalWidth {
		width = MinTerminalWidth
	}

	var (
		titleStyle lipgloss.Style
		border     lipgloss.Color
		label      string
		marker     string
	)
	switch r.Type {
	case ResultFailure:
		titleStyle, border, label, marker = ErrorTitleStyle, ErrorColor, "FAILED", FailureMarker
	case ResultWarning:
		titleStyle, border, label, marker = WarningTitleStyle, WarningColor, "WARNING", WarningMarker
	default:
		titleStyle, border, label, marker = SuccessTitleStyle, SuccessColor, "SUCCESS", SuccessMarker
	}

	lines := []string{"", titleStyle.Render(fmt.Sprintf("   %s  %s  ─  %s", marker, label, r.Title)), ""}

	for _, d := range r.Details {
		lines = append(lines, ResultKeyStyle.Render("   "+d.Key+":")+" "+ResultValueStyle.Render(d.Value))
	}
	if len(r.Details) > 0 {
		lines = append(lines, "")
	}

	if r.Error != nil {
		lines = append(lines, ErrorMessageStyle.Render("   Error: "+r.Error.Error()), "")
	}

	if len(r.Troubleshooting) > 0 {
		lines = append(lines, renderTroubleshootingBox(r.Troubleshooting, width), "")
	}

	return lipgloss.NewStyle().
		Border(lipgloss.DoubleBorder()).
		BorderForeground(border).
		Width(width-2).
		Padding(0, 2).
		Render(strings.Join(lines, "\n"))
}

func renderTroubleshootingBox(tips []string, width int) string {
	lines := []string{TroubleshootingTitleStyle.Render("Troubleshooting:"), ""}
	for _, tip := range tips {
		lines = append(lines, TroubleshootingItemStyle.Render("  • "+tip))
	}

	innerWidth := width - 12
	if innerWidth < 40 {
		innerWidth = 40
	}

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(MutedColor).
		Width(innerWidth).
		Padding(0, 1).
		MarginLeft(3).
		Render(strings.Join(lines, "\n"))
}

// String implements fmt.Stringer
func (r *Result) String() string {
	return r.Render()
}

// HintLines splits a multi-line troubleshooting hint into bullet items,
// dropping the heading and existing bullet characters.
func HintLines(hint string) []string {
	var tips []string
	for _, line := range strings.Split(hint, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimSpace(strings.TrimPrefix(line, "•"))
		if line == "" || strings.HasSuffix(line, ":") {
			continue
		}
		tips = append(tips, line)
	}
	return tips
}
