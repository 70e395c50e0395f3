package compliance

import (
	"fmt"
	"strings"

	"github.com/jonathan/persona-transformer/internal/types"
)

// Violation rule identifiers
const (
	RuleEmptyOutput           = "empty_output"
	RuleSlideCount            = "slide_count"
	RuleSlideMissingTitle     = "slide_missing_title"
	RuleSlideMissingBullets   = "slide_missing_bullets"
	RuleSlideTooManyBullets   = "slide_too_many_bullets"
	RuleSlideMissingNotes     = "slide_missing_notes"
	RuleSegmentTooLong        = "segment_too_long"
	RuleSegmentCount          = "segment_count"
	RuleHookTooLong           = "hook_too_long"
	RuleHookIsList            = "hook_is_list"
	RuleSummaryHeading        = "summary_extra_heading"
	RuleSummaryTooLong        = "summary_too_long"
	RuleSummaryNoParagraph    = "summary_no_paragraph"
	RuleBlogTooFewHeadings    = "blog_too_few_headings"
	RuleBlogMissingConclusion = "blog_missing_conclusion"
	RuleInfographicTitle      = "infographic_missing_title"
	RuleInfographicFacts      = "infographic_too_few_facts"
)

// checker is one variant of the output-format union
type checker interface {
	defaults() types.TemplateRules
	check(text string, rules types.TemplateRules) ([]types.Violation, error)
	contract(rules types.TemplateRules) []string
}

var checkers = map[types.OutputFormat]checker{
	types.FormatSlides:      slidesChecker{},
	types.FormatThread:      threadChecker{},
	types.FormatSummary:     summaryChecker{},
	types.FormatBlog:        blogChecker{},
	types.FormatInfographic: infographicChecker{},
}

func lookup(format types.OutputFormat) (checker, error) {
	c, ok := checkers[format]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	return c, nil
}

// EffectiveRules merges the template's rules over the format defaults
func EffectiveRules(format types.OutputFormat, tmpl *types.Template) (types.TemplateRules, error) {
	c, err := lookup(format)
	if err != nil {
		return types.TemplateRules{}, err
	}
	rules := c.defaults()
	if tmpl == nil {
		return rules, nil
	}
	override(&rules.MaxSegmentChars, tmpl.Rules.MaxSegmentChars)
	override(&rules.HookMaxChars, tmpl.Rules.HookMaxChars)
	override(&rules.MinSegments, tmpl.Rules.MinSegments)
	override(&rules.MaxSegments, tmpl.Rules.MaxSegments)
	override(&rules.MaxWords, tmpl.Rules.MaxWords)
	override(&rules.MinSlides, tmpl.Rules.MinSlides)
	override(&rules.MaxSlides, tmpl.Rules.MaxSlides)
	override(&rules.MaxBulletsPerSlide, tmpl.Rules.MaxBulletsPerSlide)
	override(&rules.MinHeadings, tmpl.Rules.MinHeadings)
	override(&rules.MinFacts, tmpl.Rules.MinFacts)
	rules.RequireSpeakerNotes = rules.RequireSpeakerNotes || tmpl.Rules.RequireSpeakerNotes
	return rules, nil
}

func override(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}

// Check validates text against the structural contract of format, using the
// template's rules where set. The error is non-nil only for an unknown format
// or a rendering failure.
func Check(text string, format types.OutputFormat, tmpl *types.Template) (types.ComplianceResult, error) {
	c, err := lookup(format)
	if err != nil {
		return types.ComplianceResult{}, err
	}
	rules, _ := EffectiveRules(format, tmpl)

	result := types.ComplianceResult{Format: format}
	if tmpl != nil {
		ref := tmpl.Ref()
		result.Template = &ref
	}

	if strings.TrimSpace(text) == "" {
		result.Violations = []types.Violation{{Rule: RuleEmptyOutput, Details: "output is empty"}}
		return result, nil
	}

	violations, err := c.check(text, rules)
	if err != nil {
		return types.ComplianceResult{}, err
	}
	result.Violations = violations
	result.Passed = len(violations) == 0
	return result, nil
}

// Contract renders the structural contract of format as prompt-ready text
func Contract(format types.OutputFormat, tmpl *types.Template) (string, error) {
	c, err := lookup(format)
	if err != nil {
		return "", err
	}
	rules, _ := EffectiveRules(format, tmpl)

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Output format: %s. Write Markdown.\n", format))
	for _, line := range c.contract(rules) {
		sb.WriteString("- ")
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

func bounds(noun string, min, max int) string {
	switch {
	case min > 0 && max > 0:
		return fmt.Sprintf("Between %d and %d %s", min, max, noun)
	case min > 0:
		return fmt.Sprintf("At least %d %s", min, noun)
	case max > 0:
		return fmt.Sprintf("At most %d %s", max, noun)
	}
	return ""
}

func countViolation(rule, noun string, n, min, max int) *types.Violation {
	if (min > 0 && n < min) || (max > 0 && n > max) {
		return &types.Violation{
			Rule:    rule,
			Details: fmt.Sprintf("%d %s; expected %s", n, noun, strings.ToLower(bounds(noun, min, max))),
		}
	}
	return nil
}
