package quality

import (
	"testing"

	"github.com/jonathan/persona-transformer/internal/adapter"
	"github.com/jonathan/persona-transformer/internal/compliance"
	"github.com/jonathan/persona-transformer/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var revenueContent = &types.SourceContent{
	ID: "q3",
	Metadata: types.ContentMetadata{DataPoints: []types.DataPoint{
		{Label: "revenue", Value: 42.0, Unit: "million USD"},
	}},
}

func candidate(t *testing.T, p *types.Persona, format types.OutputFormat, text string) *adapter.Candidate {
	t.Helper()
	result, err := compliance.Check(text, format, nil)
	require.NoError(t, err)
	facts := adapter.Checklist(revenueContent)
	return &adapter.Candidate{
		Text:       text,
		Directive:  adapter.BuildDirective(p, nil),
		Facts:      facts,
		Drift:      adapter.VerifyFacts(text, facts),
		Compliance: result,
		Persona:    p.Ref(),
	}
}

func expert() *types.Persona {
	return &types.Persona{ID: "cfo", Expertise: types.ExpertiseExpert, Style: types.StyleFormal, Interests: []string{"revenue"}, Version: 1}
}

const expertSummary = "# Quarterly performance\n\nRevenue reached 42.0 million, reflecting sustained enterprise demand and disciplined operational execution across international segments."

func TestScore_FactsPreserved(t *testing.T) {
	report := Score(candidate(t, expert(), types.FormatSummary, expertSummary))

	assert.False(t, report.HasIssue(types.IssueFactual, types.SeverityHigh))
	assert.Equal(t, 1.0, report.MetricScore(types.MetricFactualAccuracy))
	assert.GreaterOrEqual(t, report.Overall, 0.7)
	require.Len(t, report.Metrics, 3)
	assert.Equal(t, types.WeightFactualAccuracy, report.Metrics[0].Weight)
}

func TestScore_FigureOmitted(t *testing.T) {
	text := "# Quarterly performance\n\nRevenue grew strongly, reflecting sustained enterprise demand."
	report := Score(candidate(t, expert(), types.FormatSummary, text))

	assert.True(t, report.HasIssue(types.IssueFactual, types.SeverityHigh))
	assert.LessOrEqual(t, report.Overall, types.HighSeverityScoreCap)
	assert.Equal(t, 0.0, report.MetricScore(types.MetricFactualAccuracy))
}

func TestScore_FormattingViolations(t *testing.T) {
	text := "# Quarterly performance\n\nRevenue reached 42.0 million.\n\n## Details\n\nDemand remained considerable."
	report := Score(candidate(t, expert(), types.FormatSummary, text))

	assert.True(t, report.HasIssue(types.IssueFormatting, types.SeverityMedium))
	assert.InDelta(t, 0.8, report.MetricScore(types.MetricStyleConsistency), 1e-9)
}

func TestScore_ToneMismatch(t *testing.T) {
	tests := []struct {
		name    string
		persona *types.Persona
		text    string
		want    bool
	}{
		{
			name:    "formal with contractions",
			persona: expert(),
			text:    "# Results\n\nRevenue reached 42.0 million and it's awesome! We can't complain.",
			want:    true,
		},
		{
			name:    "formal with possessive only",
			persona: expert(),
			text:    "# Results\n\nThe company's revenue reached 42.0 million.",
			want:    false,
		},
		{
			name:    "casual without addressing the reader",
			persona: &types.Persona{ID: "p", Expertise: types.ExpertiseBeginner, Style: types.StyleCasual},
			text:    "# Results\n\nRevenue reached 42.0 million.",
			want:    true,
		},
		{
			name:    "casual addressing the reader",
			persona: &types.Persona{ID: "p", Expertise: types.ExpertiseBeginner, Style: types.StyleCasual},
			text:    "# Results\n\nYou might like this: revenue reached 42.0 million.",
			want:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := Score(candidate(t, tt.persona, types.FormatSummary, tt.text))
			assert.Equal(t, tt.want, report.HasIssue(types.IssueStyle, types.SeverityLow), "issues: %v", report.Issues)
		})
	}
}

func TestScore_TonePenaltyIsCapped(t *testing.T) {
	text := "# Results\n\nRevenue reached 42.0 million and that's super! We're thrilled and we can't wait, it's gonna be awesome and we'll keep going and going and going and going and going and going and going and going and going and going and going and going and going and going and going and going and going."
	report := Score(candidate(t, expert(), types.FormatSummary, text))
	assert.GreaterOrEqual(t, report.MetricScore(types.MetricStyleConsistency), 1-tonePenaltyCap-1e-9)
}

func TestScore_PersonaAlignment(t *testing.T) {
	beginner := &types.Persona{ID: "b", Expertise: types.ExpertiseBeginner, Style: types.StyleFormal, Interests: []string{"hiring", "margins"}}
	report := Score(candidate(t, beginner, types.FormatSummary, expertSummary))

	assert.True(t, report.HasIssue(types.IssuePersonaMismatch, types.SeverityMedium), "issues: %v", report.Issues)
	assert.True(t, report.HasIssue(types.IssuePersonaMismatch, types.SeverityLow), "uncovered interests")
	assert.Less(t, report.MetricScore(types.MetricPersonaAlignment), 0.5)
}

func TestBandFit(t *testing.T) {
	assert.Equal(t, 1.0, bandFit(0.1, [2]float64{0, 0.12}))
	assert.InDelta(t, 0.9, bandFit(0.14, [2]float64{0, 0.12}), 1e-9)
	assert.Equal(t, 0.0, bandFit(0.9, [2]float64{0, 0.12}))
}
