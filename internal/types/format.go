package types

import (
	"fmt"
	"strings"
)

// OutputFormat is the tag of the output-format variant. Each tag carries its
// own structural contract, enforced by the compliance package.
type OutputFormat string

// Supported output formats
const (
	FormatSlides      OutputFormat = "slides"
	FormatThread      OutputFormat = "thread"
	FormatSummary     OutputFormat = "summary"
	FormatBlog        OutputFormat = "blog"
	FormatInfographic OutputFormat = "infographic"
)

// AllFormats lists every supported format in a stable order
var AllFormats = []OutputFormat{FormatSlides, FormatThread, FormatSummary, FormatBlog, FormatInfographic}

// Valid reports whether f is a supported format
func (f OutputFormat) Valid() bool {
	for _, known := range AllFormats {
		if f == known {
			return true
		}
	}
	return false
}

// ParseOutputFormat normalizes and validates a format name
func ParseOutputFormat(s string) (OutputFormat, error) {
	f := OutputFormat(strings.ToLower(strings.TrimSpace(s)))
	if !f.Valid() {
		return "", fmt.Errorf("unknown output format %q", s)
	}
	return f, nil
}

// TemplateRules are the structural bounds a template imposes on its format.
// Zero values mean "use the format default".
type TemplateRules struct {
	MaxSegmentChars     int  `json:"max_segment_chars,omitempty" yaml:"max_segment_chars,omitempty"`
	HookMaxChars        int  `json:"hook_max_chars,omitempty" yaml:"hook_max_chars,omitempty"`
	MinSegments         int  `json:"min_segments,omitempty" yaml:"min_segments,omitempty"`
	MaxSegments         int  `json:"max_segments,omitempty" yaml:"max_segments,omitempty"`
	MaxWords            int  `json:"max_words,omitempty" yaml:"max_words,omitempty"`
	MinSlides           int  `json:"min_slides,omitempty" yaml:"min_slides,omitempty"`
	MaxSlides           int  `json:"max_slides,omitempty" yaml:"max_slides,omitempty"`
	MaxBulletsPerSlide  int  `json:"max_bullets_per_slide,omitempty" yaml:"max_bullets_per_slide,omitempty"`
	RequireSpeakerNotes bool `json:"require_speaker_notes,omitempty" yaml:"require_speaker_notes,omitempty"`
	MinHeadings         int  `json:"min_headings,omitempty" yaml:"min_headings,omitempty"`
	MinFacts            int  `json:"min_facts,omitempty" yaml:"min_facts,omitempty"`
}

// Template holds style/layout rules for one format, optionally scoped to a persona
type Template struct {
	ID        string            `json:"id" yaml:"id"`
	Name      string            `json:"name" yaml:"name"`
	Format    OutputFormat      `json:"format" yaml:"format"`
	PersonaID string            `json:"persona_id,omitempty" yaml:"persona_id,omitempty"`
	Version   int               `json:"version" yaml:"version"`
	Rules     TemplateRules     `json:"rules" yaml:"rules"`
	Style     map[string]string `json:"style,omitempty" yaml:"style,omitempty"`
}

// Ref returns the snapshot reference stored on revisions
func (t *Template) Ref() TemplateRef {
	return TemplateRef{ID: t.ID, Version: t.Version}
}

// TemplateRef pins the template version a revision was checked against
type TemplateRef struct {
	ID      string `json:"id"`
	Version int    `json:"version"`
}
