package llm

import "strings"

// StripCodeFence removes a code fence wrapping the whole response.
// Models often answer with ```markdown ... ``` even when told not to.
// Fenced blocks inside the text are left alone.
func StripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") || !strings.HasSuffix(text, "```") || len(text) < 6 {
		return text
	}

	inner := strings.TrimPrefix(text, "```")
	// Skip a language identifier on the opening line
	if idx := strings.Index(inner, "\n"); idx >= 0 {
		first := inner[:idx]
		if len(first) < 20 && !strings.ContainsAny(first, " {#-*") {
			inner = inner[idx+1:]
		}
	} else {
		return text
	}
	inner = strings.TrimSuffix(strings.TrimSpace(inner), "```")
	return strings.TrimSpace(inner)
}
