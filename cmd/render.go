package cmd

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/JakeFAU/liquidity-monitor/internal/monitor"
)

var (
	colorRed    = lipgloss.Color("#FF5555")
	colorYellow = lipgloss.Color("#F1FA8C")
	colorGreen  = lipgloss.Color("#50FA7B")
	colorCyan   = lipgloss.Color("#8BE9FD")
	colorGray   = lipgloss.Color("#6272A4")

	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
	labelStyle = lipgloss.NewStyle().Foreground(colorGray).Width(22)
	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorGray).
			Padding(0, 1)
)

func verdictStyle(v monitor.Verdict) lipgloss.Style {
	switch v {
	case monitor.VerdictAvailable:
		return lipgloss.NewStyle().Bold(true).Foreground(colorGreen)
	case monitor.VerdictCapped:
		return lipgloss.NewStyle().Bold(true).Foreground(colorRed)
	default:
		return lipgloss.NewStyle().Bold(true).Foreground(colorYellow)
	}
}

func renderVerdict(v monitor.Verdict) string {
	if v == "" {
		v = monitor.VerdictUnknown
	}
	return verdictStyle(v).Render(string(v))
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.UTC().Format(time.RFC3339)
}

func row(label, value string) string {
	return labelStyle.Render(label) + value
}

func renderCycle(result monitor.ConsensusResult) string {
	lines := []string{
		titleStyle.Render("Cycle " + result.ID),
		row("verdict", renderVerdict(result.Verdict)),
		row("agreement", fmt.Sprintf("%t", result.Agreement)),
		row("at", result.CycleTimestamp.UTC().Format(time.RFC3339)),
	}
	for _, obs := range result.Observations {
		detail := fmt.Sprintf("%s  %d/%d indicators", renderVerdict(obs.Verdict), obs.IndicatorHits, obs.IndicatorTotal)
		if obs.Error != "" {
			detail = fmt.Sprintf("%s  %s", renderVerdict(obs.Verdict), obs.Error)
		}
		lines = append(lines, row(strings.ToLower(string(obs.Method)), detail))
	}
	return panelStyle.Render(strings.Join(lines, "\n"))
}

func renderStatus(
	url string,
	state monitor.MonitorState,
	history []monitor.ConsensusResult,
	alerts []monitor.AlertEvent,
) string {
	lines := []string{
		titleStyle.Render("Strike liquidity monitor"),
		row("url", url),
		row("current verdict", renderVerdict(state.CurrentVerdict)),
		row("last transition", formatTime(state.LastTransitionAt)),
		row("last alert", formatTime(state.LastAlertAt)),
		row("last cycle", formatTime(state.LastCycleAt)),
		row("consecutive failures", fmt.Sprintf("%d", state.ConsecutiveFailures)),
	}
	methods := make([]string, 0, len(state.LastErrors))
	for m := range state.LastErrors {
		methods = append(methods, string(m))
	}
	sort.Strings(methods)
	for _, m := range methods {
		lines = append(lines, row("error "+strings.ToLower(m), state.LastErrors[monitor.Method(m)]))
	}

	if len(history) > 0 {
		lines = append(lines, "", titleStyle.Render("Recent cycles"))
		for _, r := range history {
			mark := ""
			if !r.Agreement {
				mark = "  (methods disagreed)"
			}
			lines = append(lines, fmt.Sprintf("%s  %s%s",
				r.CycleTimestamp.UTC().Format(time.RFC3339), renderVerdict(r.Verdict), mark))
		}
	}
	if len(alerts) > 0 {
		lines = append(lines, "", titleStyle.Render("Recent alerts"))
		for _, a := range alerts {
			lines = append(lines, fmt.Sprintf("%s  %s -> %s  notified: %s",
				a.DetectedAt.UTC().Format(time.RFC3339), a.Transition.From, a.Transition.To,
				strings.Join(a.ChannelsNotified, ", ")))
		}
	}
	return panelStyle.Render(strings.Join(lines, "\n"))
}
