package channel

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// splitSeparators in priority order. A separator is only used when it falls
// past the middle of the window so chunks do not become pathologically short.
var splitSeparators = []string{"\n\n", "\n", ". ", " "}

// SplitMessage breaks content into chunks of at most maxLen characters.
//
// Content that fits is returned as a single trimmed chunk. Otherwise each
// chunk ends at the last paragraph break, line break, sentence end or space
// found past maxLen/2, falling back to a hard cut at maxLen-1. Chunks are
// trimmed of surrounding whitespace. Lengths are counted in runes.
//
// Split the plain source first and convert each chunk to the platform
// dialect afterwards, so markup never spans a chunk boundary.
func SplitMessage(content string, maxLen int) []string {
	text := strings.TrimSpace(content)
	if maxLen <= 0 || utf8.RuneCountInString(text) <= maxLen {
		return []string{text}
	}

	var chunks []string
	rest := text
	for utf8.RuneCountInString(rest) > maxLen {
		cut := splitPoint(rest, maxLen)
		if chunk := strings.TrimSpace(rest[:cut]); chunk != "" {
			chunks = append(chunks, chunk)
		}
		rest = strings.TrimLeftFunc(rest[cut:], unicode.IsSpace)
	}
	if rest = strings.TrimSpace(rest); rest != "" {
		chunks = append(chunks, rest)
	}
	return chunks
}

// splitPoint returns the byte offset where the next chunk of s ends
func splitPoint(s string, maxLen int) int {
	window := prefixRunes(s, maxLen)
	half := maxLen / 2

	for _, sep := range splitSeparators {
		idx := strings.LastIndex(window, sep)
		if idx < 0 || utf8.RuneCountInString(window[:idx]) <= half {
			continue
		}
		if sep == ". " {
			// keep the period with the sentence it ends
			return idx + 1
		}
		return idx
	}

	hard := maxLen - 1
	if hard < 1 {
		hard = 1
	}
	return len(prefixRunes(s, hard))
}

// prefixRunes returns the first n runes of s
func prefixRunes(s string, n int) string {
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

var htmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#39;",
)

// EscapeHTML escapes & < > " and ' for embedding text in HTML
func EscapeHTML(s string) string {
	return htmlEscaper.Replace(s)
}
