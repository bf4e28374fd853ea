package app

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/brensch/tripparquet/internal/orchestrator"
)

// --- Styles ---
var (
	titleStyle              = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("62"))
	errorStyle              = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	infoStyle               = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	progressBarStyle        = lipgloss.NewStyle().Padding(0, 1)
	fileProgressHeaderStyle = lipgloss.NewStyle().Bold(true).MarginBottom(1)
	statusStyle             = map[string]lipgloss.Style{
		orchestrator.Pending.String():      lipgloss.NewStyle().Foreground(lipgloss.Color("248")),
		orchestrator.Fetching.String():     lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
		orchestrator.Converting.String():   lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		orchestrator.Done.String():         lipgloss.NewStyle().Foreground(lipgloss.Color("46")),
		orchestrator.Skipped.String():      lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
		orchestrator.Failed.String():       lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		orchestrator.NotAttempted.String(): lipgloss.NewStyle().Foreground(lipgloss.Color("243")),
		PlanNew:                            lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
		PlanSkip:                           lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
		PlanForce:                          lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
	}
)

// Dry-run plan labels.
const (
	PlanNew   = "NEW"
	PlanSkip  = "SKIP"
	PlanForce = "FORCE"
)

// Status renders a state or plan label in its colour.
func Status(label string) string {
	st, ok := statusStyle[label]
	if !ok {
		st = infoStyle
	}
	return st.Render(label)
}

// StatusWidth is Status padded to width cells.
func StatusWidth(label string, width int) string {
	st, ok := statusStyle[label]
	if !ok {
		st = infoStyle
	}
	return st.Width(width).Render(label)
}

// Title renders a heading.
func Title(s string) string {
	return titleStyle.Render(s)
}

// Summary renders the end-of-run report.
func Summary(res *orchestrator.Result) string {
	var b strings.Builder
	c := res.Counts()
	b.WriteString(Title("--- Run Summary ---"))
	b.WriteString("\n")
	fmt.Fprintf(&b, "  %s %d\n", StatusWidth(orchestrator.Skipped.String(), 14), c.Skipped)
	fmt.Fprintf(&b, "  %s %d\n", StatusWidth(orchestrator.Done.String(), 14), c.Succeeded)
	fmt.Fprintf(&b, "  %s %d\n", StatusWidth(orchestrator.Failed.String(), 14), c.Failed)
	fmt.Fprintf(&b, "  %s %d\n", StatusWidth(orchestrator.NotAttempted.String(), 14), c.NotAttempted)
	for _, rec := range res.Failures() {
		b.WriteString(errorStyle.Render(fmt.Sprintf("  -> %s (%s): %v", rec.Key, rec.FailedIn, rec.Err)))
		b.WriteString("\n")
	}
	if res.Aborted {
		b.WriteString(errorStyle.Render("  Run aborted after too many consecutive failures."))
		b.WriteString("\n")
	}
	return b.String()
}
