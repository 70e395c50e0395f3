package compliance

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/jonathan/persona-transformer/internal/types"
)

const notesPrefix = "notes:"

type slidesChecker struct{}

func (slidesChecker) defaults() types.TemplateRules {
	return types.TemplateRules{MinSlides: 1, MaxSlides: 20, MaxBulletsPerSlide: 6}
}

func (slidesChecker) contract(r types.TemplateRules) []string {
	lines := []string{
		"Separate slides with a line containing only ---",
		"Every slide starts with a heading used as its title, followed by a bullet list",
		fmt.Sprintf("At most %d bullets per slide", r.MaxBulletsPerSlide),
	}
	if r.RequireSpeakerNotes {
		lines = append(lines, "Every slide ends with a paragraph starting with \"Notes:\" holding speaker notes")
	} else {
		lines = append(lines, "Speaker notes are optional; put them in a paragraph starting with \"Notes:\"")
	}
	if b := bounds("slides", r.MinSlides, r.MaxSlides); b != "" {
		lines = append(lines, b)
	}
	return lines
}

func (slidesChecker) check(text string, r types.TemplateRules) ([]types.Violation, error) {
	var violations []types.Violation
	slides := splitSlides(text)
	if v := countViolation(RuleSlideCount, "slides", len(slides), r.MinSlides, r.MaxSlides); v != nil {
		violations = append(violations, *v)
	}

	for i, slide := range slides {
		loc := fmt.Sprintf("slide %d", i+1)
		blocks, err := parseBlocks(slide)
		if err != nil {
			return nil, err
		}

		if !isHeading(blocks.First()) {
			violations = append(violations, types.Violation{Rule: RuleSlideMissingTitle, Details: "slide does not start with a heading", Location: loc})
		}

		lists := blocks.Filter("ul, ol")
		bullets := lists.ChildrenFiltered("li").Length()
		if bullets == 0 {
			violations = append(violations, types.Violation{Rule: RuleSlideMissingBullets, Details: "slide has no bullet list", Location: loc})
		} else if r.MaxBulletsPerSlide > 0 && bullets > r.MaxBulletsPerSlide {
			violations = append(violations, types.Violation{
				Rule:     RuleSlideTooManyBullets,
				Details:  fmt.Sprintf("%d bullets; at most %d allowed", bullets, r.MaxBulletsPerSlide),
				Location: loc,
			})
		}

		if r.RequireSpeakerNotes && !hasNotes(blocks) {
			violations = append(violations, types.Violation{Rule: RuleSlideMissingNotes, Details: "slide has no speaker notes", Location: loc})
		}
	}
	return violations, nil
}

func hasNotes(blocks *goquery.Selection) bool {
	found := false
	blocks.Filter("p").EachWithBreak(func(_ int, p *goquery.Selection) bool {
		if strings.HasPrefix(strings.ToLower(strings.TrimSpace(p.Text())), notesPrefix) {
			found = true
		}
		return !found
	})
	return found
}

type threadChecker struct{}

func (threadChecker) defaults() types.TemplateRules {
	return types.TemplateRules{MaxSegmentChars: 280, HookMaxChars: 280, MinSegments: 1, MaxSegments: 25}
}

func (threadChecker) contract(r types.TemplateRules) []string {
	lines := []string{
		"Separate segments (posts) with a blank line",
		fmt.Sprintf("Every segment is at most %d characters", r.MaxSegmentChars),
		fmt.Sprintf("The first segment is a hook of at most %d characters and is not a list", r.HookMaxChars),
	}
	if b := bounds("segments", r.MinSegments, r.MaxSegments); b != "" {
		lines = append(lines, b)
	}
	return lines
}

func (threadChecker) check(text string, r types.TemplateRules) ([]types.Violation, error) {
	var violations []types.Violation
	segments := splitSegments(text)
	if v := countViolation(RuleSegmentCount, "segments", len(segments), r.MinSegments, r.MaxSegments); v != nil {
		violations = append(violations, *v)
	}

	for i, seg := range segments {
		n := utf8.RuneCountInString(seg)
		if r.MaxSegmentChars > 0 && n > r.MaxSegmentChars {
			violations = append(violations, types.Violation{
				Rule:     RuleSegmentTooLong,
				Details:  fmt.Sprintf("%d characters; at most %d allowed", n, r.MaxSegmentChars),
				Location: fmt.Sprintf("segment %d", i+1),
			})
		}
	}

	if len(segments) == 0 {
		return violations, nil
	}
	hook := segments[0]
	if n := utf8.RuneCountInString(hook); r.HookMaxChars > 0 && n > r.HookMaxChars {
		violations = append(violations, types.Violation{
			Rule:     RuleHookTooLong,
			Details:  fmt.Sprintf("hook is %d characters; at most %d allowed", n, r.HookMaxChars),
			Location: "segment 1",
		})
	}
	blocks, err := parseBlocks(hook)
	if err != nil {
		return nil, err
	}
	if isList(blocks.First()) {
		violations = append(violations, types.Violation{Rule: RuleHookIsList, Details: "hook segment is a list", Location: "segment 1"})
	}
	return violations, nil
}

type summaryChecker struct{}

func (summaryChecker) defaults() types.TemplateRules {
	return types.TemplateRules{MaxWords: 250}
}

func (summaryChecker) contract(r types.TemplateRules) []string {
	return []string{
		"Plain prose paragraphs; an optional single title heading at the very top and no other headings",
		fmt.Sprintf("At most %d words", r.MaxWords),
	}
}

func (summaryChecker) check(text string, r types.TemplateRules) ([]types.Violation, error) {
	var violations []types.Violation
	blocks, err := parseBlocks(text)
	if err != nil {
		return nil, err
	}

	headings := blocks.Filter("h1, h2, h3, h4, h5, h6")
	extra := headings.Length()
	if isHeading(blocks.First()) {
		extra--
	}
	if extra > 0 {
		violations = append(violations, types.Violation{
			Rule:    RuleSummaryHeading,
			Details: fmt.Sprintf("%d headings beyond the title", extra),
		})
	}

	words := 0
	blocks.Not("h1, h2, h3, h4, h5, h6").Each(func(_ int, b *goquery.Selection) {
		words += types.CountWords(b.Text())
	})
	if r.MaxWords > 0 && words > r.MaxWords {
		violations = append(violations, types.Violation{
			Rule:    RuleSummaryTooLong,
			Details: fmt.Sprintf("%d words; at most %d allowed", words, r.MaxWords),
		})
	}

	if blocks.Filter("p").Length() == 0 {
		violations = append(violations, types.Violation{Rule: RuleSummaryNoParagraph, Details: "summary has no paragraph"})
	}
	return violations, nil
}

type blogChecker struct{}

func (blogChecker) defaults() types.TemplateRules {
	return types.TemplateRules{MinHeadings: 1}
}

func (blogChecker) contract(r types.TemplateRules) []string {
	return []string{
		fmt.Sprintf("Use at least %d section headings", r.MinHeadings),
		"End with a concluding paragraph (not a heading, list or code block)",
	}
}

func (blogChecker) check(text string, r types.TemplateRules) ([]types.Violation, error) {
	var violations []types.Violation
	blocks, err := parseBlocks(text)
	if err != nil {
		return nil, err
	}

	headings := blocks.Filter("h1, h2, h3, h4, h5, h6").Length()
	if headings < r.MinHeadings {
		violations = append(violations, types.Violation{
			Rule:    RuleBlogTooFewHeadings,
			Details: fmt.Sprintf("%d headings; at least %d required", headings, r.MinHeadings),
		})
	}

	if !blocks.Last().Is("p") {
		violations = append(violations, types.Violation{
			Rule:     RuleBlogMissingConclusion,
			Details:  "post does not end with a concluding paragraph",
			Location: "end",
		})
	}
	return violations, nil
}

type infographicChecker struct{}

func (infographicChecker) defaults() types.TemplateRules {
	return types.TemplateRules{MinFacts: 3}
}

func (infographicChecker) contract(r types.TemplateRules) []string {
	return []string{
		"Start with a title heading",
		fmt.Sprintf("List at least %d key facts as bullet items, each containing a number", r.MinFacts),
	}
}

func (infographicChecker) check(text string, r types.TemplateRules) ([]types.Violation, error) {
	var violations []types.Violation
	blocks, err := parseBlocks(text)
	if err != nil {
		return nil, err
	}

	if !isHeading(blocks.First()) {
		violations = append(violations, types.Violation{Rule: RuleInfographicTitle, Details: "infographic does not start with a title heading"})
	}

	facts := 0
	blocks.Filter("ul, ol").Find("li").Each(func(_ int, li *goquery.Selection) {
		if digit.MatchString(li.Text()) {
			facts++
		}
	})
	if facts < r.MinFacts {
		violations = append(violations, types.Violation{
			Rule:    RuleInfographicFacts,
			Details: fmt.Sprintf("%d numeric facts; at least %d required", facts, r.MinFacts),
		})
	}
	return violations, nil
}
