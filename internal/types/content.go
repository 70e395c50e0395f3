// Package types provides type definitions for structured data used throughout the persona-transformer system.
//
//nolint:revive // types is a standard Go package name pattern
package types

import (
	"sort"
	"strings"
	"time"
	"unicode"
)

// SectionKind identifies the structural role of a parsed section
type SectionKind string

// Section kinds produced by the ingestion collaborator
const (
	SectionHeading   SectionKind = "heading"
	SectionParagraph SectionKind = "paragraph"
	SectionList      SectionKind = "list"
	SectionTable     SectionKind = "table"
	SectionImage     SectionKind = "image"
	SectionCode      SectionKind = "code"
)

// Valid reports whether k is a known section kind
func (k SectionKind) Valid() bool {
	switch k {
	case SectionHeading, SectionParagraph, SectionList, SectionTable, SectionImage, SectionCode:
		return true
	}
	return false
}

// Section is one ordered block of parsed source content
type Section struct {
	Kind   SectionKind `json:"kind"`
	Text   string      `json:"text"`
	Level  *int        `json:"level,omitempty"`
	Topics []string    `json:"topics,omitempty"`
}

// DataPoint is a labelled numeric fact that must survive adaptation unchanged
type DataPoint struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
	// Unit is informational only (e.g. "USD", "%"); matching ignores it.
	Unit string `json:"unit,omitempty"`
}

// IsInteger reports whether the value has no fractional part
func (d DataPoint) IsInteger() bool {
	return d.Value == float64(int64(d.Value))
}

// ContentMetadata is derived at ingestion time
type ContentMetadata struct {
	WordCount  int         `json:"word_count"`
	KeyTopics  []string    `json:"key_topics,omitempty"`
	DataPoints []DataPoint `json:"data_points,omitempty"`
}

// SourceContent is immutable parsed input content
type SourceContent struct {
	ID         string          `json:"id"`
	Title      string          `json:"title,omitempty"`
	Sections   []Section       `json:"sections"`
	Metadata   ContentMetadata `json:"metadata"`
	IngestedAt time.Time       `json:"ingested_at"`
}

// PlainText joins section texts in order, separated by blank lines
func (c *SourceContent) PlainText() string {
	parts := make([]string, 0, len(c.Sections))
	for _, s := range c.Sections {
		if strings.TrimSpace(s.Text) == "" {
			continue
		}
		parts = append(parts, s.Text)
	}
	return strings.Join(parts, "\n\n")
}

// maxDerivedTopics bounds how many key topics DeriveMetadata fills in
const maxDerivedTopics = 8

// DeriveMetadata fills in word count and key topics when the ingestion
// collaborator left them empty. Data points are never invented.
func (c *SourceContent) DeriveMetadata() {
	if c.Metadata.WordCount == 0 {
		c.Metadata.WordCount = CountWords(c.PlainText())
	}
	if len(c.Metadata.KeyTopics) > 0 {
		return
	}

	counts := make(map[string]int)
	var order []string
	for _, s := range c.Sections {
		for _, topic := range s.Topics {
			t := strings.ToLower(strings.TrimSpace(topic))
			if t == "" {
				continue
			}
			if counts[t] == 0 {
				order = append(order, t)
			}
			counts[t]++
		}
	}
	sort.SliceStable(order, func(i, j int) bool { return counts[order[i]] > counts[order[j]] })
	if len(order) > maxDerivedTopics {
		order = order[:maxDerivedTopics]
	}
	c.Metadata.KeyTopics = order
}

// CountWords counts whitespace-separated tokens containing at least one letter or digit
func CountWords(text string) int {
	count := 0
	for _, field := range strings.Fields(text) {
		if strings.IndexFunc(field, func(r rune) bool { return unicode.IsLetter(r) || unicode.IsDigit(r) }) >= 0 {
			count++
		}
	}
	return count
}
