package adapter

import (
	"testing"

	"github.com/jonathan/persona-transformer/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDirective(t *testing.T) {
	content := &types.SourceContent{Sections: []types.Section{
		{Kind: types.SectionParagraph, Text: "Hiring plans for next year."},
		{Kind: types.SectionParagraph, Text: "Revenue and margins both improved.", Topics: []string{"Finance"}},
		{Kind: types.SectionParagraph, Text: "Revenue grew in every region."},
	}}
	p := &types.Persona{
		Expertise: types.ExpertiseBeginner,
		Style:     types.StyleCasual,
		Interests: []string{"Revenue", "margins", "revenue", " "},
	}

	d := BuildDirective(p, content)
	assert.Equal(t, []string{"revenue", "margins"}, d.Interests)
	assert.Contains(t, d.Vocabulary, "plain everyday words")
	assert.Contains(t, d.Tone, "Relaxed")

	require.Len(t, d.Emphasis, 2)
	assert.Equal(t, 1, d.Emphasis[0].Section)
	assert.Equal(t, 1.0, d.Emphasis[0].Weight)
	assert.Equal(t, 2, d.Emphasis[1].Section)
	assert.Equal(t, 0.5, d.Emphasis[1].Weight)

	assert.Equal(t, "expertise=beginner style=casual emphasis=revenue,margins", d.Summary())
	assert.Contains(t, d.Prompt(), "Give prominence")
}

func TestBuildDirective_NoInterests(t *testing.T) {
	d := BuildDirective(&types.Persona{Expertise: types.ExpertiseMixed, Style: types.StyleAcademic}, nil)
	assert.Empty(t, d.Emphasis)
	assert.Contains(t, d.Vocabulary, "Layer the explanation")
	assert.Equal(t, "expertise=mixed style=academic", d.Summary())
}

func TestBuildDirective_UnknownLevelsFallBack(t *testing.T) {
	d := BuildDirective(&types.Persona{Expertise: "guru", Style: "poetic"}, nil)
	assert.Equal(t, vocabulary[types.ExpertiseIntermediate], d.Vocabulary)
	assert.Equal(t, tone[types.StyleFormal], d.Tone)
}
