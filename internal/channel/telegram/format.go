package telegram

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	codeBlockRe  = regexp.MustCompile("(?s)```[\\w+#.-]*\\n?(.*?)```")
	inlineCodeRe = regexp.MustCompile("`([^`\\n]+)`")
	headingRe    = regexp.MustCompile(`(?m)^#{1,6}[ \t]+(.+?)[ \t]*$`)
	blockquoteRe = regexp.MustCompile(`(?m)^>[ \t]?(.*)$`)
	linkRe       = regexp.MustCompile(`\[([^\]]+)\]\(([^)\s]+)\)`)
	boldStarRe   = regexp.MustCompile(`\*\*(.+?)\*\*`)
	boldUnderRe  = regexp.MustCompile(`__(.+?)__`)
	italicRe     = regexp.MustCompile(`_([^_\n]+)_`)
	strikeRe     = regexp.MustCompile(`~~(.+?)~~`)
	bulletRe     = regexp.MustCompile(`(?m)^([ \t]*)[-*][ \t]+`)
)

var textEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// escapeText escapes the three characters Telegram HTML requires
func escapeText(s string) string {
	return textEscaper.Replace(s)
}

func codeBlockKey(i int) string  { return fmt.Sprintf("\x00CB%d\x00", i) }
func inlineCodeKey(i int) string { return fmt.Sprintf("\x00IC%d\x00", i) }
func anchorKey(i int) string     { return fmt.Sprintf("\x00A%d\x00", i) }

// markdownToHTML converts markdown-ish text into the HTML subset accepted
// by the Telegram Bot API. Code is lifted out first so no later rule can
// touch it, and put back last with only HTML escaping applied.
func markdownToHTML(text string) string {
	if text == "" {
		return ""
	}

	var blocks []string
	text = codeBlockRe.ReplaceAllStringFunc(text, func(m string) string {
		sub := codeBlockRe.FindStringSubmatch(m)
		blocks = append(blocks, strings.TrimSuffix(sub[1], "\n"))
		return codeBlockKey(len(blocks) - 1)
	})

	var spans []string
	text = inlineCodeRe.ReplaceAllStringFunc(text, func(m string) string {
		sub := inlineCodeRe.FindStringSubmatch(m)
		spans = append(spans, sub[1])
		return inlineCodeKey(len(spans) - 1)
	})

	text = headingRe.ReplaceAllString(text, "**$1**")
	text = blockquoteRe.ReplaceAllString(text, "$1")
	text = escapeText(text)

	// hrefs are parked behind keys so emphasis rules only see the link text
	var hrefs []string
	text = linkRe.ReplaceAllStringFunc(text, func(m string) string {
		sub := linkRe.FindStringSubmatch(m)
		hrefs = append(hrefs, sub[2])
		return anchorKey(len(hrefs)-1) + sub[1] + "</a>"
	})

	text = boldStarRe.ReplaceAllString(text, "<b>$1</b>")
	text = boldUnderRe.ReplaceAllString(text, "<b>$1</b>")
	text = replaceItalic(text)
	text = strikeRe.ReplaceAllString(text, "<s>$1</s>")
	text = bulletRe.ReplaceAllString(text, "${1}• ")

	for i, href := range hrefs {
		text = strings.ReplaceAll(text, anchorKey(i), `<a href="`+href+`">`)
	}

	for i, span := range spans {
		text = strings.ReplaceAll(text, inlineCodeKey(i), "<code>"+escapeText(span)+"</code>")
	}
	for i, block := range blocks {
		text = strings.ReplaceAll(text, codeBlockKey(i), "<pre><code>"+escapeText(block)+"</code></pre>")
	}
	return text
}

// replaceItalic wraps _text_ in <i> tags unless an underscore touches a
// letter or digit, so identifiers like some_var_name stay intact.
func replaceItalic(s string) string {
	var b strings.Builder
	pos := 0
	for pos < len(s) {
		loc := italicRe.FindStringSubmatchIndex(s[pos:])
		if loc == nil {
			break
		}
		start, end := pos+loc[0], pos+loc[1]
		if (start > 0 && isWordByte(s[start-1])) || (end < len(s) && isWordByte(s[end])) {
			b.WriteString(s[pos : start+1])
			pos = start + 1
			continue
		}
		b.WriteString(s[pos:start])
		b.WriteString("<i>")
		b.WriteString(s[pos+loc[2] : pos+loc[3]])
		b.WriteString("</i>")
		pos = end
	}
	b.WriteString(s[pos:])
	return b.String()
}

func isWordByte(c byte) bool {
	return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9')
}
