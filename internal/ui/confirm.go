package ui

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Confirm displays a warning box and asks the user to type phrase to
// proceed. Returns true only for an exact match.
func (p *Printer) Confirm(in io.Reader, title string, warnings []string, phrase string) bool {
	lines := []string{"", WarningTitleStyle.Render(fmt.Sprintf("   %s  WARNING  ─  %s", WarningMarker, title)), ""}
	bullet := lipgloss.NewStyle().Foreground(TextColor)
	for _, w := range warnings {
		lines = append(lines, bullet.Render("   • "+w))
	}
	lines = append(lines, "")

	p.Println(lipgloss.NewStyle().
		Border(lipgloss.DoubleBorder()).
		BorderForeground(WarningColor).
		Width(p.width-2).
		Padding(0, 2).
		Render(strings.Join(lines, "\n")))
	p.Newline()

	p.Printf("%s", WarningTitleStyle.Render(fmt.Sprintf("To proceed, type %q and press Enter: ", phrase)))

	input, err := bufio.NewReader(in).ReadString('\n')
	p.Newline()
	if err != nil && input == "" {
		return false
	}
	if strings.TrimSpace(input) == phrase {
		return true
	}

	p.Println(lipgloss.NewStyle().Foreground(MutedColor).Render("  Operation cancelled."))
	return false
}
