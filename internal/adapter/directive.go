package adapter

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jonathan/persona-transformer/internal/types"
)

const maxEmphasis = 5

var vocabulary = map[types.ExpertiseLevel]string{
	types.ExpertiseBeginner:     "Use plain everyday words and short sentences. Explain any technical term the first time it appears.",
	types.ExpertiseIntermediate: "Use common domain terms without long definitions. Keep sentences moderate in length.",
	types.ExpertiseExpert:       "Use precise domain terminology. Skip introductory explanations; dense sentences are fine.",
	types.ExpertiseMixed:        "Layer the explanation: lead each point with a plain-language takeaway, then add the technical detail for specialists.",
}

var tone = map[types.CommunicationStyle]string{
	types.StyleFormal:         "Formal register. No contractions, slang or exclamation marks.",
	types.StyleCasual:         "Relaxed and friendly. Contractions are welcome; address the reader as \"you\".",
	types.StyleTechnical:      "Neutral technical register. Favour exact quantities and named mechanisms over adjectives.",
	types.StyleConversational: "Talk to the reader directly as \"you\", as if explaining in person. Questions are welcome.",
	types.StyleAcademic:       "Academic register. Measured claims, no contractions or exclamation marks.",
}

// Emphasis is a section the persona's interests point at
type Emphasis struct {
	Section  int      `json:"section"`
	Preview  string   `json:"preview"`
	Weight   float64  `json:"weight"`
	Matching []string `json:"matching"`
}

// Directive is what the persona asks of the rewrite
type Directive struct {
	Expertise  types.ExpertiseLevel     `json:"expertise"`
	Style      types.CommunicationStyle `json:"style"`
	Vocabulary string                   `json:"vocabulary"`
	Tone       string                   `json:"tone"`
	Interests  []string                 `json:"interests,omitempty"`
	Emphasis   []Emphasis               `json:"emphasis,omitempty"`
}

// BuildDirective derives vocabulary tier, tone constraints and emphasis
// weights from the persona. Sections whose topics or text mention an
// interest are weighted by the share of interests they match.
func BuildDirective(p *types.Persona, content *types.SourceContent) Directive {
	d := Directive{
		Expertise:  p.Expertise,
		Style:      p.Style,
		Vocabulary: vocabulary[p.Expertise],
		Tone:       tone[p.Style],
		Interests:  normalizeInterests(p.Interests),
	}
	if d.Vocabulary == "" {
		d.Vocabulary = vocabulary[types.ExpertiseIntermediate]
	}
	if d.Tone == "" {
		d.Tone = tone[types.StyleFormal]
	}
	if len(d.Interests) == 0 || content == nil {
		return d
	}

	for i, s := range content.Sections {
		matching := sectionMatches(s, d.Interests)
		if len(matching) == 0 {
			continue
		}
		d.Emphasis = append(d.Emphasis, Emphasis{
			Section:  i,
			Preview:  preview(s.Text),
			Weight:   float64(len(matching)) / float64(len(d.Interests)),
			Matching: matching,
		})
	}
	sort.SliceStable(d.Emphasis, func(i, j int) bool { return d.Emphasis[i].Weight > d.Emphasis[j].Weight })
	if len(d.Emphasis) > maxEmphasis {
		d.Emphasis = d.Emphasis[:maxEmphasis]
	}
	return d
}

func normalizeInterests(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, i := range in {
		i = strings.ToLower(strings.TrimSpace(i))
		if i == "" || seen[i] {
			continue
		}
		seen[i] = true
		out = append(out, i)
	}
	return out
}

func sectionMatches(s types.Section, interests []string) []string {
	text := strings.ToLower(s.Text)
	topics := make(map[string]bool, len(s.Topics))
	for _, t := range s.Topics {
		topics[strings.ToLower(strings.TrimSpace(t))] = true
	}
	var out []string
	for _, interest := range interests {
		if topics[interest] || strings.Contains(text, interest) {
			out = append(out, interest)
		}
	}
	return out
}

func preview(text string) string {
	words := strings.Fields(text)
	if len(words) > 8 {
		return strings.Join(words[:8], " ") + "..."
	}
	return strings.Join(words, " ")
}

// Prompt renders the directive as instructions for the provider
func (d Directive) Prompt() string {
	var sb strings.Builder
	sb.WriteString("- Vocabulary: " + d.Vocabulary + "\n")
	sb.WriteString("- Tone: " + d.Tone + "\n")
	if len(d.Interests) > 0 {
		sb.WriteString("- The reader cares most about: " + strings.Join(d.Interests, ", ") + "\n")
	}
	for _, e := range d.Emphasis {
		sb.WriteString(fmt.Sprintf("- Give prominence to the passage starting %q (weight %.2f, relates to %s)\n",
			e.Preview, e.Weight, strings.Join(e.Matching, ", ")))
	}
	return sb.String()
}

// Summary is the one-line form stored on a revision
func (d Directive) Summary() string {
	parts := []string{
		"expertise=" + string(d.Expertise),
		"style=" + string(d.Style),
	}
	if len(d.Emphasis) > 0 {
		seen := map[string]bool{}
		var topics []string
		for _, e := range d.Emphasis {
			for _, m := range e.Matching {
				if !seen[m] {
					seen[m] = true
					topics = append(topics, m)
				}
			}
		}
		parts = append(parts, "emphasis="+strings.Join(topics, ","))
	}
	return strings.Join(parts, " ")
}
