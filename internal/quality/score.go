package quality

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"unicode"

	"github.com/jonathan/persona-transformer/internal/adapter"
	"github.com/jonathan/persona-transformer/internal/types"
)

const (
	formattingPenalty = 0.2
	tonePenaltyCap    = 0.3
	toneMarkerPenalty = 0.1
	longWordLetters   = 9
)

// complexity bands: the accepted share of long words per expertise tier
var complexityBands = map[types.ExpertiseLevel][2]float64{
	types.ExpertiseBeginner:     {0, 0.12},
	types.ExpertiseIntermediate: {0.04, 0.22},
	types.ExpertiseExpert:       {0.08, 1},
	types.ExpertiseMixed:        {0.03, 0.30},
}

// sentence length ceilings in words
var sentenceCeilings = map[types.ExpertiseLevel]float64{
	types.ExpertiseBeginner:     18,
	types.ExpertiseIntermediate: 26,
	types.ExpertiseExpert:       38,
	types.ExpertiseMixed:        30,
}

var (
	contraction  = regexp.MustCompile(`(?i)\b(\w+n['’]t|\w+['’](re|ve|ll|m)|(it|that|there|what|let)['’]s|(i|we|you|they)['’]d)\b`)
	slang        = regexp.MustCompile(`(?i)\b(gonna|wanna|awesome|super|cool|kinda|totally|stuff)\b`)
	secondPerson = regexp.MustCompile(`(?i)\b(you|your|you're|we|let's)\b`)
	sentenceEnd  = regexp.MustCompile(`[.!?]+(\s|$)`)
	markdownMark = regexp.MustCompile(`(?m)^\s*(#{1,6}|[-*+]|\d+\.)\s+`)
)

// Score computes the quality report of a candidate
func Score(c *adapter.Candidate) types.QualityReport {
	var issues []types.Issue

	factual, factIssues := scoreFactual(c)
	issues = append(issues, factIssues...)

	style, styleIssues := scoreStyle(c)
	issues = append(issues, styleIssues...)

	persona, personaIssues := scorePersona(c)
	issues = append(issues, personaIssues...)

	report := types.QualityReport{
		Metrics: []types.Metric{
			{Name: types.MetricFactualAccuracy, Score: round(factual), Weight: types.WeightFactualAccuracy},
			{Name: types.MetricStyleConsistency, Score: round(style), Weight: types.WeightStyleConsistency},
			{Name: types.MetricPersonaAlignment, Score: round(persona), Weight: types.WeightPersonaAlignment},
		},
		Issues: issues,
	}
	overall := types.WeightFactualAccuracy*factual + types.WeightStyleConsistency*style + types.WeightPersonaAlignment*persona
	for _, issue := range issues {
		if issue.Severity == types.SeverityHigh {
			overall = math.Min(overall, types.HighSeverityScoreCap)
			break
		}
	}
	report.Overall = round(overall)
	return report
}

func scoreFactual(c *adapter.Candidate) (float64, []types.Issue) {
	if len(c.Facts) == 0 {
		return 1, nil
	}
	issues := make([]types.Issue, 0, len(c.Drift))
	for _, d := range c.Drift {
		issue := types.Issue{
			Type:       types.IssueFactual,
			Severity:   types.SeverityHigh,
			Message:    d.String(),
			Location:   d.Fact.Label,
			Suggestion: fmt.Sprintf("state %s exactly as %s", d.Fact.Label, d.Fact.String()),
		}
		issues = append(issues, issue)
	}
	return clamp(1 - float64(len(c.Drift))/float64(len(c.Facts))), issues
}

func scoreStyle(c *adapter.Candidate) (float64, []types.Issue) {
	var issues []types.Issue
	score := 1.0

	for _, v := range c.Compliance.Violations {
		score -= formattingPenalty
		issues = append(issues, types.Issue{
			Type:     types.IssueFormatting,
			Severity: types.SeverityMedium,
			Message:  fmt.Sprintf("%s: %s", v.Rule, v.Details),
			Location: v.Location,
		})
	}

	tonePenalty := 0.0
	prose := markdownMark.ReplaceAllString(c.Text, "")
	for _, m := range toneMismatches(c.Directive.Style, prose) {
		tonePenalty += toneMarkerPenalty
		issues = append(issues, types.Issue{
			Type:       types.IssueStyle,
			Severity:   types.SeverityLow,
			Message:    m,
			Suggestion: c.Directive.Tone,
		})
	}

	if ceiling, ok := sentenceCeilings[c.Directive.Expertise]; ok {
		if avg := averageSentenceLength(prose); avg > ceiling {
			tonePenalty += toneMarkerPenalty
			issues = append(issues, types.Issue{
				Type:       types.IssueStyle,
				Severity:   types.SeverityLow,
				Message:    fmt.Sprintf("average sentence is %.0f words; aim for under %.0f", avg, ceiling),
				Suggestion: "split long sentences",
			})
		}
	}

	score -= math.Min(tonePenalty, tonePenaltyCap)
	return clamp(score), issues
}

func toneMismatches(style types.CommunicationStyle, text string) []string {
	var out []string
	switch style {
	case types.StyleFormal, types.StyleAcademic:
		if n := len(contraction.FindAllString(text, -1)); n > 0 {
			out = append(out, fmt.Sprintf("%d contractions in a %s text", n, style))
		}
		if strings.Contains(text, "!") {
			out = append(out, fmt.Sprintf("exclamation marks in a %s text", style))
		}
		if slang.MatchString(text) {
			out = append(out, fmt.Sprintf("informal wording in a %s text", style))
		}
	case types.StyleTechnical:
		if strings.Contains(text, "!") {
			out = append(out, "exclamation marks in a technical text")
		}
		if slang.MatchString(text) {
			out = append(out, "informal wording in a technical text")
		}
	case types.StyleCasual, types.StyleConversational:
		if !secondPerson.MatchString(text) {
			out = append(out, fmt.Sprintf("%s text never addresses the reader", style))
		}
	}
	return out
}

func averageSentenceLength(text string) float64 {
	sentences := 0
	words := 0
	for _, s := range sentenceEnd.Split(text, -1) {
		n := types.CountWords(s)
		if n == 0 {
			continue
		}
		sentences++
		words += n
	}
	if sentences == 0 {
		return 0
	}
	return float64(words) / float64(sentences)
}

func scorePersona(c *adapter.Candidate) (float64, []types.Issue) {
	var issues []types.Issue

	fit := 1.0
	ratio := longWordRatio(c.Text)
	if band, ok := complexityBands[c.Directive.Expertise]; ok {
		fit = bandFit(ratio, band)
		if fit < 1 {
			severity := types.SeverityLow
			if fit < 0.5 {
				severity = types.SeverityMedium
			}
			issues = append(issues, types.Issue{
				Type:       types.IssuePersonaMismatch,
				Severity:   severity,
				Message:    fmt.Sprintf("%.0f%% long words does not suit a %s reader", ratio*100, c.Directive.Expertise),
				Suggestion: c.Directive.Vocabulary,
			})
		}
	}

	coverage := 1.0
	if len(c.Directive.Interests) > 0 {
		lower := strings.ToLower(c.Text)
		var missing []string
		for _, interest := range c.Directive.Interests {
			if !strings.Contains(lower, interest) {
				missing = append(missing, interest)
			}
		}
		coverage = 1 - float64(len(missing))/float64(len(c.Directive.Interests))
		if coverage < 0.5 {
			issues = append(issues, types.Issue{
				Type:       types.IssuePersonaMismatch,
				Severity:   types.SeverityLow,
				Message:    "reader interests not covered: " + strings.Join(missing, ", "),
				Suggestion: "mention how the content relates to " + strings.Join(missing, ", "),
			})
		}
	}

	return clamp(0.6*fit + 0.4*coverage), issues
}

func longWordRatio(text string) float64 {
	total, long := 0, 0
	for _, field := range strings.Fields(text) {
		letters := 0
		for _, r := range field {
			if unicode.IsLetter(r) {
				letters++
			}
		}
		if letters == 0 {
			continue
		}
		total++
		if letters >= longWordLetters {
			long++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(long) / float64(total)
}

// bandFit is 1 inside the band and falls off linearly outside it
func bandFit(v float64, band [2]float64) float64 {
	switch {
	case v < band[0]:
		return clamp(1 - (band[0]-v)*5)
	case v > band[1]:
		return clamp(1 - (v-band[1])*5)
	}
	return 1
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func round(v float64) float64 {
	return math.Round(v*1000) / 1000
}
