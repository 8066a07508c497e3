package context

import (
	"strings"
	"unicode"
)

// ContentType is the coarse kind of text being estimated.
type ContentType int

const (
	ContentTypeProse ContentType = iota
	ContentTypeJSON
	ContentTypeMarkup
	ContentTypeMixed
)

// EstimateTokens returns an approximate token count for text. Structured
// content is denser in tokens than prose, so the ratio depends on the
// detected content type.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	n := estimateTokensForType(text, detectContentType(text))
	if n < 1 {
		return 1
	}
	return n
}

func estimateTokensForType(text string, contentType ContentType) int {
	chars := len(text)

	switch contentType {
	case ContentTypeJSON:
		// quotes, colons and keys tokenize separately
		return int(float64(chars) / 3.0)

	case ContentTypeMarkup:
		return int(float64(chars) / 3.2)

	case ContentTypeProse:
		words := len(strings.Fields(text))
		byWords := int(float64(words) * 1.3)
		byChars := chars / 4
		return (byWords*3 + byChars) / 4

	default:
		words := len(strings.Fields(text))
		byWords := int(float64(words) * 1.3)
		byChars := int(float64(chars) / 3.5)
		return (byWords + byChars) / 2
	}
}

func detectContentType(text string) ContentType {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return ContentTypeProse
	}

	if (strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}")) ||
		(strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]")) {
		return ContentTypeJSON
	}

	if strings.HasPrefix(trimmed, "<") && strings.Count(trimmed, "</") >= 2 {
		return ContentTypeMarkup
	}

	words := strings.Fields(trimmed)
	technical := 0
	for _, w := range words {
		if strings.ContainsAny(w, "_#./=:") || hasInnerUpper(w) {
			technical++
		}
	}
	if len(words) > 0 && float64(technical)/float64(len(words)) > 0.2 {
		return ContentTypeMixed
	}
	return ContentTypeProse
}

// hasInnerUpper reports camelCase-like words.
func hasInnerUpper(word string) bool {
	for i, r := range word {
		if i > 0 && unicode.IsUpper(r) {
			return true
		}
	}
	return false
}
