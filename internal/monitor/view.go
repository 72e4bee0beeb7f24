package monitor

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/muurk/sensorlink/internal/connection"
	"github.com/muurk/sensorlink/internal/ui"
	"github.com/muurk/sensorlink/internal/version"
)

// MinWidth is the narrowest layout the monitor renders.
const MinWidth = ui.MinTerminalWidth

var (
	SpinnerStyle = lipgloss.NewStyle().Foreground(ui.PrimaryColor)

	sectionTitleStyle = lipgloss.NewStyle().
				Foreground(ui.PrimaryColor).
				Bold(true).
				MarginTop(1)

	okStyle   = lipgloss.NewStyle().Foreground(ui.SuccessColor).Bold(true)
	failStyle = lipgloss.NewStyle().Foreground(ui.ErrorColor).Bold(true)
	warnStyle = lipgloss.NewStyle().Foreground(ui.WarningColor)
	mutedText = lipgloss.NewStyle().Foreground(ui.MutedColor)
)

// View renders the monitor screen
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(m.renderIdentity())
	b.WriteString(m.renderPing())
	b.WriteString(m.renderStats())
	b.WriteString(m.renderParams())

	return renderContainer(b.String(), m.Help.View(m.Keys), m.Width)
}

func (m Model) renderIdentity() string {
	id := m.device.Identity()
	lines := []string{
		sectionTitleStyle.Render("Device"),
		row("Node", m.device.Credential().NodeName),
		row("Public IP", id.IP),
		row("Hostname", id.Hostname),
		row("Uptime", m.device.Uptime().Truncate(time.Second).String()),
	}
	return strings.Join(lines, "\n") + "\n"
}

func (m Model) renderPing() string {
	lines := []string{sectionTitleStyle.Render("Last ping")}

	switch {
	case m.LastPing == nil && m.Pinging:
		lines = append(lines, "  "+m.Spinner.View()+" pinging...")
	case m.LastPing == nil:
		lines = append(lines, mutedText.Render("  none yet"))
	default:
		p := m.LastPing
		status := okStyle.Render(ui.SuccessMarker + " " + p.Result.String())
		if p.Err != nil {
			status = failStyle.Render(ui.FailureMarker + " " + p.Err.Error())
		}
		lines = append(lines,
			row("Status", status),
			row("At", p.At.Format(time.TimeOnly)),
		)
		if p.Result != nil {
			lines = append(lines, row("Request ID", p.Result.RequestID))
		}
		if p.Err != nil {
			for _, tip := range ui.HintLines(connection.Hint(p.Err)) {
				lines = append(lines, mutedText.Render("    • "+tip))
			}
		}
		if m.Pinging {
			lines = append(lines, "  "+m.Spinner.View()+" pinging...")
		}
	}
	lines = append(lines, mutedText.Render(fmt.Sprintf("  every %s", m.opts.interval())))
	return strings.Join(lines, "\n") + "\n"
}

func (m Model) renderStats() string {
	s := m.device.Stats()
	lines := []string{
		sectionTitleStyle.Render("Counters"),
		row("Pushes", fmt.Sprintf("%d attempted, %d rejected", s.PushAttempts, s.PushFailures)),
		row("Pings", fmt.Sprintf("%d attempted, %d rejected", s.PingAttempts, s.PingFailures)),
		row("Transport errors", fmt.Sprint(s.TransportErrors)),
	}
	consec := fmt.Sprint(s.ConsecutiveNetworkErrors)
	if s.ConsecutiveNetworkErrors > 0 {
		consec = warnStyle.Render(consec)
	}
	lines = append(lines, row("Consecutive errors", consec))
	return strings.Join(lines, "\n") + "\n"
}

func (m Model) renderParams() string {
	lines := []string{sectionTitleStyle.Render("Parameters")}

	if m.Params == nil {
		lines = append(lines, "  "+m.Spinner.View()+" resolving...")
		return strings.Join(lines, "\n") + "\n"
	}

	keys := make([]string, 0, len(m.Params.Params))
	for k := range m.Params.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		lines = append(lines, row(k, fmt.Sprint(m.Params.Params[k])))
	}
	if len(keys) == 0 {
		lines = append(lines, mutedText.Render("  (none)"))
	}

	for _, src := range []connection.SourceResult{m.Params.Report.Local, m.Params.Report.Remote} {
		switch {
		case src.Err != nil:
			lines = append(lines, warnStyle.Render(fmt.Sprintf("  %s %s: %v", ui.WarningMarker, src.Source, src.Err)))
		case len(src.Skipped) > 0:
			lines = append(lines, warnStyle.Render(fmt.Sprintf("  %s %s: skipped protected %s", ui.WarningMarker, src.Source, strings.Join(src.Skipped, ", "))))
		}
	}
	lines = append(lines, mutedText.Render("  resolved at "+m.Params.At.Format(time.TimeOnly)))
	if m.Resolving {
		lines = append(lines, "  "+m.Spinner.View()+" resolving...")
	}
	return strings.Join(lines, "\n") + "\n"
}

func row(key, value string) string {
	return ui.ResultKeyStyle.Render("  "+key+":") + " " + value
}

// renderContainer wraps content with the application header and a help footer.
func renderContainer(content, footer string, width int) string {
	if width < MinWidth {
		width = MinWidth
	}

	header := lipgloss.JoinHorizontal(lipgloss.Top,
		lipgloss.NewStyle().Foreground(ui.TextColor).Bold(true).Render("SENSORLINK MONITOR v"+version.Version),
		" ",
		mutedText.Render(version.UserAgent()),
	)

	headerStyle := lipgloss.NewStyle().
		BorderStyle(lipgloss.Border{Bottom: "─"}).
		BorderForeground(ui.PrimaryColor).
		Width(width-4).
		Padding(0, 1)

	footerStyle := lipgloss.NewStyle().
		BorderStyle(lipgloss.Border{Top: "─"}).
		BorderForeground(ui.PrimaryColor).
		Width(width-4).
		Padding(0, 1)

	inner := lipgloss.JoinVertical(lipgloss.Left,
		headerStyle.Render(header),
		lipgloss.NewStyle().Width(width-4).Render(content),
		footerStyle.Render(mutedText.Render(footer)),
	)

	return lipgloss.NewStyle().
		Border(lipgloss.NormalBorder()).
		BorderForeground(ui.PrimaryColor).
		Width(width - 2).
		Render(inner)
}
