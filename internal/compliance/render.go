package compliance

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/yuin/goldmark"
)

var (
	// A line holding only --- separates slides
	slideSeparator = regexp.MustCompile(`(?m)^[ \t]*---[ \t]*$`)
	// One or more blank lines separate thread segments
	blankLines = regexp.MustCompile(`\n[ \t]*\n`)
	digit      = regexp.MustCompile(`[0-9]`)
)

// RenderHTML converts markdown text to HTML
func RenderHTML(text string) (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(text), &buf); err != nil {
		return "", &RenderError{Message: "failed to convert markdown", Cause: err}
	}
	return buf.String(), nil
}

// parseBlocks renders text and returns its top-level block elements
func parseBlocks(text string) (*goquery.Selection, error) {
	html, err := RenderHTML(text)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, &RenderError{Message: "failed to parse HTML", Cause: err}
	}
	return doc.Find("body").Children(), nil
}

func isHeading(s *goquery.Selection) bool {
	return s.Is("h1, h2, h3, h4, h5, h6")
}

func isList(s *goquery.Selection) bool {
	return s.Is("ul, ol")
}

func splitSlides(text string) []string {
	var out []string
	for _, part := range slideSeparator.Split(text, -1) {
		if strings.TrimSpace(part) != "" {
			out = append(out, strings.TrimSpace(part))
		}
	}
	return out
}

func splitSegments(text string) []string {
	normalized := strings.ReplaceAll(text, "\r\n", "\n")
	var out []string
	for _, part := range blankLines.Split(normalized, -1) {
		if strings.TrimSpace(part) != "" {
			out = append(out, strings.TrimSpace(part))
		}
	}
	return out
}
