// Package observability provides formatted output utilities for the CLI.
package observability

import (
	"fmt"
	"io"
	"strings"

	"github.com/jonathan/persona-transformer/internal/types"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 5
)

// Printer writes boxed summaries of jobs, revisions and exports
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	for _, line := range strings.Split(content, "\n") {
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, truncate(line, boxWidth-4))
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// truncate shortens s to n runes, marking the cut with "..."
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

// PrintStatus outputs a job status snapshot
func (p *Printer) PrintStatus(view types.StatusView) {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Job:      %s\n", view.JobID))
	sb.WriteString(fmt.Sprintf("Status:   %s\n", view.Status))
	sb.WriteString(fmt.Sprintf("Progress: %s %d%%\n", progressBar(view.Progress), view.Progress))
	sb.WriteString(fmt.Sprintf("Retries:  %d", view.RetryCount))
	if view.Error != "" {
		sb.WriteString(fmt.Sprintf("\n\nError: %s", view.Error))
		if view.Retryable {
			sb.WriteString("\n(retryable)")
		}
	}
	p.printBox("JOB STATUS", sb.String())
}

func progressBar(pct int) string {
	const width = 20
	pct = max(0, min(pct, 100))
	filled := pct * width / 100
	return "[" + strings.Repeat("#", filled) + strings.Repeat(".", width-filled) + "]"
}

// PrintRevision outputs one revision with its compliance result and score
func (p *Printer) PrintRevision(rev *types.Revision) {
	if rev == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Sequence: %d (%s)\n", rev.Sequence, rev.ApprovalStatus))
	sb.WriteString(fmt.Sprintf("Persona:  %s v%d\n", rev.Persona.ID, rev.Persona.Version))
	if rev.Template != nil {
		sb.WriteString(fmt.Sprintf("Template: %s v%d\n", rev.Template.ID, rev.Template.Version))
	}
	if rev.Directive != "" {
		sb.WriteString(fmt.Sprintf("Directive: %s\n", rev.Directive))
	}
	sb.WriteString(fmt.Sprintf("Overall:  %.2f\n", rev.Quality.Overall))

	if rev.Compliance.Passed {
		sb.WriteString("Compliance: ✓ passed")
	} else {
		sb.WriteString(fmt.Sprintf("Compliance: ✗ %d violations", len(rev.Compliance.Violations)))
		writeViolations(&sb, rev.Compliance.Violations)
	}

	p.printBox(fmt.Sprintf("REVISION %d", rev.Sequence), sb.String())
}

func writeViolations(sb *strings.Builder, violations []types.Violation) {
	count := min(len(violations), maxItemsToShow)
	for i := 0; i < count; i++ {
		v := violations[i]
		sb.WriteString("\n  • ")
		if v.Location != "" {
			sb.WriteString(v.Location + ": ")
		}
		sb.WriteString(v.Details)
	}
	if len(violations) > maxItemsToShow {
		sb.WriteString(fmt.Sprintf("\n  ... and %d more", len(violations)-maxItemsToShow))
	}
}

// PrintQualityReport outputs the metric breakdown and issues of a report
func (p *Printer) PrintQualityReport(report *types.QualityReport) {
	if report == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Overall: %.2f\n\n", report.Overall))
	for _, m := range report.Metrics {
		sb.WriteString(fmt.Sprintf("  %-18s %.2f  (weight %.1f)\n", m.Name, m.Score, m.Weight))
	}

	if len(report.Issues) == 0 {
		sb.WriteString("\n✓ No issues")
	} else {
		sb.WriteString(fmt.Sprintf("\nIssues (%d):", len(report.Issues)))
		count := min(len(report.Issues), maxItemsToShow)
		for i := 0; i < count; i++ {
			issue := report.Issues[i]
			sb.WriteString(fmt.Sprintf("\n  [%s] %s: %s", strings.ToUpper(string(issue.Severity)), issue.Type, issue.Message))
		}
		if len(report.Issues) > maxItemsToShow {
			sb.WriteString(fmt.Sprintf("\n  ... and %d more", len(report.Issues)-maxItemsToShow))
		}
	}

	p.printBox("QUALITY REPORT", sb.String())
}

// PrintHistory outputs one line per revision of a job
func (p *Printer) PrintHistory(revs []types.Revision) {
	if len(revs) == 0 {
		return
	}

	var sb strings.Builder
	for i, rev := range revs {
		mark := " "
		if rev.ApprovalStatus == types.ApprovalApproved {
			mark = "*"
		}
		compliant := "✓"
		if !rev.Compliance.Passed {
			compliant = "✗"
		}
		sb.WriteString(fmt.Sprintf("%s #%-3d %-10s %s score=%.2f", mark, rev.Sequence, rev.ApprovalStatus, compliant, rev.Quality.Overall))
		if i < len(revs)-1 {
			sb.WriteString("\n")
		}
	}
	p.printBox(fmt.Sprintf("REVISION HISTORY (%d)", len(revs)), sb.String())
}

// PrintExport outputs what an export bundle contains
func (p *Printer) PrintExport(bundle *types.ExportBundle) {
	if bundle == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Job:      %s\n", bundle.JobID))
	sb.WriteString(fmt.Sprintf("Format:   %s\n", bundle.Format))
	sb.WriteString(fmt.Sprintf("Revision: %d\n", bundle.Revision.Sequence))
	sb.WriteString(fmt.Sprintf("Score:    %.2f\n", bundle.Quality.Overall))
	sb.WriteString(fmt.Sprintf("Assets:   %d", len(bundle.Assets)))
	for _, w := range bundle.Warnings {
		sb.WriteString(fmt.Sprintf("\n⚠ %s: %s", w.Code, w.Message))
	}
	p.printBox("EXPORT", sb.String())
}
