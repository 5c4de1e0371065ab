package autoreply

import (
	"strings"
	"unicode/utf8"
)

// aiPhrases are fragments the engine's own replies and fallbacks tend to
// contain. A comment carrying one is treated as a prior auto-reply.
var aiPhrases = []string{
	"thanks for your comment",
	"thank you for your comment",
	"we appreciate your",
	"thank you for",
	"we're glad",
	"thanks for sharing",
	"we love hearing from you",
	"thanks! we're",
	"we're excited",
	"you can find it",
	"let us know if",
	"you're welcome",
	"thanks for the",
	"thank you so much",
	"we love that you",
	"feel free to reach out",
	"don't hesitate to contact",
	"we'd love to hear",
	"we're here to help",
}

// mentionPhrases only count when the text also carries an @mention
var mentionPhrases = []string{
	"we love hearing",
	"glad you",
	"thanks so much",
}

// IsAIResponse reports whether text looks like one of the engine's own
// replies. The match is a case-insensitive substring check and will
// misfire on human text that happens to use the same phrasing.
func IsAIResponse(text string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}
	lower := strings.ToLower(text)
	for _, phrase := range aiPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	if strings.Contains(text, "@") {
		for _, phrase := range mentionPhrases {
			if strings.Contains(lower, phrase) {
				return true
			}
		}
	}
	return false
}

// EnsureMention prefixes text with @name unless name already appears in it
func EnsureMention(text, name string) string {
	if name == "" || strings.Contains(strings.ToLower(text), strings.ToLower(name)) {
		return text
	}
	return "@" + name + " " + text
}

// truncate cuts text to at most limit runes
func truncate(text string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)
	return strings.TrimSpace(string(runes[:limit]))
}

// displayName returns name or a neutral stand-in
func displayName(name string) string {
	if strings.TrimSpace(name) == "" {
		return "there"
	}
	return name
}
