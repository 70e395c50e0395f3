package observability

import (
	"bytes"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/jonathan/persona-transformer/internal/types"
)

func TestPrintStatus(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.PrintStatus(types.StatusView{
		JobID:      uuid.New(),
		Status:     types.JobFailed,
		Progress:   80,
		RetryCount: 3,
		Error:      "provider unavailable",
		Retryable:  true,
	})
	output := buf.String()

	assert.Contains(t, output, "JOB STATUS")
	assert.Contains(t, output, "failed")
	assert.Contains(t, output, "80%")
	assert.Contains(t, output, "[################....]")
	assert.Contains(t, output, "provider unavailable")
	assert.Contains(t, output, "(retryable)")
}

func TestPrintRevision(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.PrintRevision(&types.Revision{
		Sequence:       2,
		ApprovalStatus: types.ApprovalPending,
		Persona:        types.PersonaRef{ID: "cfo", Version: 3},
		Template:       &types.TemplateRef{ID: "default-thread", Version: 1},
		Directive:      "expertise=expert style=formal",
		Quality:        types.QualityReport{Overall: 0.82},
		Compliance: types.ComplianceResult{Violations: []types.Violation{
			{Rule: "segment_too_long", Details: "300 characters; at most 280 allowed", Location: "segment 2"},
		}},
	})
	output := buf.String()

	assert.Contains(t, output, "REVISION 2")
	assert.Contains(t, output, "cfo v3")
	assert.Contains(t, output, "default-thread v1")
	assert.Contains(t, output, "0.82")
	assert.Contains(t, output, "1 violations")
	assert.Contains(t, output, "segment 2")
}

func TestPrintRevision_Nil(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).PrintRevision(nil)
	assert.Empty(t, buf.String())
}

func TestPrintQualityReport(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	report := &types.QualityReport{
		Overall: 0.5,
		Metrics: []types.Metric{
			{Name: types.MetricFactualAccuracy, Score: 0.5, Weight: 0.4},
			{Name: types.MetricStyleConsistency, Score: 0.9, Weight: 0.3},
		},
	}
	for i := 0; i < 7; i++ {
		report.Issues = append(report.Issues, types.Issue{Type: types.IssueFactual, Severity: types.SeverityHigh, Message: "revenue missing"})
	}

	p.PrintQualityReport(report)
	output := buf.String()

	assert.Contains(t, output, "QUALITY REPORT")
	assert.Contains(t, output, "factual_accuracy")
	assert.Contains(t, output, "[HIGH] factual: revenue missing")
	assert.Contains(t, output, "... and 2 more")
}

func TestPrintQualityReport_NoIssues(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).PrintQualityReport(&types.QualityReport{Overall: 1})
	assert.Contains(t, buf.String(), "No issues")
}

func TestPrintHistory(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.PrintHistory([]types.Revision{
		{Sequence: 1, ApprovalStatus: types.ApprovalSuperseded, Compliance: types.ComplianceResult{Passed: true}},
		{Sequence: 2, ApprovalStatus: types.ApprovalApproved, Compliance: types.ComplianceResult{Passed: true}},
		{Sequence: 3, ApprovalStatus: types.ApprovalPending},
	})
	output := buf.String()

	assert.Contains(t, output, "REVISION HISTORY (3)")
	assert.Contains(t, output, "* #2")
	assert.Contains(t, output, "superseded")
	assert.Contains(t, output, "✗")
}

func TestPrintExport(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.PrintExport(&types.ExportBundle{
		JobID:    uuid.New(),
		Format:   types.FormatSlides,
		Revision: types.Revision{Sequence: 4},
		Warnings: []types.ExportWarning{{Code: types.WarningAssetsUnavailable, Message: "asset service timed out"}},
	})
	output := buf.String()

	assert.Contains(t, output, "EXPORT")
	assert.Contains(t, output, "slides")
	assert.Contains(t, output, "assets_unavailable")
}

func TestPrintBox_TruncatesLongLines(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)
	p.printBox("TITLE", strings.Repeat("x", 200))

	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		assert.LessOrEqual(t, len([]rune(line)), boxWidth)
	}
	assert.Contains(t, buf.String(), "...")
}
