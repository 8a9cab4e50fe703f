package report

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7D56F4")).
			MarginBottom(1)

	metaStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	summaryStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	severityStyles = map[string]lipgloss.Style{
		"critical": lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#ffffff")).Background(lipgloss.Color("#b00020")).Padding(0, 1),
		"high":     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#ffffff")).Background(lipgloss.Color("#e65100")).Padding(0, 1),
		"medium":   lipgloss.NewStyle().Foreground(lipgloss.Color("#222222")).Background(lipgloss.Color("#ffd54f")).Padding(0, 1),
		"low":      lipgloss.NewStyle().Foreground(lipgloss.Color("#222222")).Background(lipgloss.Color("#c8e6c9")).Padding(0, 1),
	}

	failedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#b00020"))
)

// Render produces the terminal view of the report.
func (r *Report) Render() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("PLC Audit Report"))
	b.WriteString("\n")
	b.WriteString(metaStyle.Render(fmt.Sprintf("run %s | %s | %s analysis of %s",
		r.RunID, r.GeneratedAt, r.AnalysisType, r.SourceFile)))
	b.WriteString("\n\n")

	stats := r.Result.Stats
	b.WriteString(summaryStyle.Render(fmt.Sprintf(
		"%s\nconfidence %.2f | shards %d/%d | findings %d | tokens %d",
		r.Result.Summary, r.Result.OverallConfidence,
		stats.SuccessfulShards, stats.TotalShards,
		stats.MergedFindings, stats.TotalTokens)))
	b.WriteString("\n\n")

	for i, f := range r.Result.Findings {
		sev, ok := severityStyles[f.Severity]
		if !ok {
			sev = metaStyle
		}
		fmt.Fprintf(&b, "%d. %s %s (%.2f, seen %dx)\n",
			i+1, sev.Render(f.Severity), f.Type, f.Confidence, f.Frequency)
		fmt.Fprintf(&b, "   %s\n", f.Description)
		if f.Location != "" {
			fmt.Fprintf(&b, "   at: %s\n", f.Location)
		}
		if f.Recommendation != "" {
			fmt.Fprintf(&b, "   fix: %s\n", f.Recommendation)
		}
		if len(f.SourceShards) > 0 {
			b.WriteString(metaStyle.Render("   shards: " + strings.Join(f.SourceShards, ", ")))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if ids := r.Result.FailedShardIDs; len(ids) > 0 {
		b.WriteString(failedStyle.Render(fmt.Sprintf("failed shards (%d): %s",
			len(ids), strings.Join(ids, ", "))))
		b.WriteString("\n")
	}

	return b.String()
}
