package feishu

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var (
	cardCodeBlockRe = regexp.MustCompile("(?s)```.*?```")
	// header row, separator row, then any body rows; outer pipes are optional
	cardTableRe = regexp.MustCompile(`(?m)^[^\n]*\|[^\n]*\n` +
		`[ \t]*\|?(?:[ \t]*:?-+:?[ \t]*\|)+(?:[ \t]*:?-+:?)?[ \t]*$` +
		`(?:\n[^\n]*\|[^\n]*)*`)
	// closing #s only count when separated by whitespace, so "C#" survives
	cardHeadingRe = regexp.MustCompile(`(?m)^#{1,6}[ \t]+(.+?)(?:[ \t]+#+)?[ \t]*$`)
)

// card is an interactive message card
type card struct {
	Config   cardConfig `json:"config"`
	Elements []any      `json:"elements"`
}

type cardConfig struct {
	WideScreenMode bool `json:"wide_screen_mode"`
}

type markdownElement struct {
	Tag     string `json:"tag"`
	Content string `json:"content"`
}

type divElement struct {
	Tag  string   `json:"tag"`
	Text cardText `json:"text"`
}

type cardText struct {
	Tag     string `json:"tag"`
	Content string `json:"content"`
}

type tableElement struct {
	Tag      string              `json:"tag"`
	PageSize int                 `json:"page_size"`
	Columns  []tableColumn       `json:"columns"`
	Rows     []map[string]string `json:"rows"`
}

type tableColumn struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	DataType    string `json:"data_type"`
}

// buildCard renders markdown into card elements. Pipe tables become table
// elements, ATX headings become bold div elements and everything else is
// kept as markdown. Fenced code is hidden from the table and heading
// patterns while they run.
func buildCard(content string) card {
	var blocks []string
	protected := cardCodeBlockRe.ReplaceAllStringFunc(content, func(m string) string {
		blocks = append(blocks, m)
		return fmt.Sprintf("\x00CODE%d\x00", len(blocks)-1)
	})
	restore := func(s string) string {
		for i, b := range blocks {
			s = strings.ReplaceAll(s, fmt.Sprintf("\x00CODE%d\x00", i), b)
		}
		return s
	}

	var elements []any
	pos := 0
	for _, loc := range cardTableRe.FindAllStringIndex(protected, -1) {
		elements = append(elements, textElements(protected[pos:loc[0]], restore)...)
		if table, ok := parseTable(protected[loc[0]:loc[1]], restore); ok {
			elements = append(elements, table)
		} else {
			elements = append(elements, textElements(protected[loc[0]:loc[1]], restore)...)
		}
		pos = loc[1]
	}
	elements = append(elements, textElements(protected[pos:], restore)...)

	if len(elements) == 0 {
		elements = append(elements, markdownElement{Tag: "markdown", Content: " "})
	}
	return card{Config: cardConfig{WideScreenMode: true}, Elements: elements}
}

// textElements splits text at headings
func textElements(text string, restore func(string) string) []any {
	var elements []any
	flush := func(s string) {
		if s = strings.TrimSpace(restore(s)); s != "" {
			elements = append(elements, markdownElement{Tag: "markdown", Content: s})
		}
	}

	pos := 0
	for _, m := range cardHeadingRe.FindAllStringSubmatchIndex(text, -1) {
		flush(text[pos:m[0]])
		title := strings.TrimSpace(restore(text[m[2]:m[3]]))
		elements = append(elements, divElement{
			Tag:  "div",
			Text: cardText{Tag: "lark_md", Content: "**" + title + "**"},
		})
		pos = m[1]
	}
	flush(text[pos:])
	return elements
}

func parseTable(src string, restore func(string) string) (tableElement, bool) {
	lines := strings.Split(strings.TrimSpace(src), "\n")
	if len(lines) < 2 {
		return tableElement{}, false
	}

	headers := splitRow(lines[0])
	if len(headers) == 0 {
		return tableElement{}, false
	}

	table := tableElement{Tag: "table", PageSize: 10}
	for i, h := range headers {
		table.Columns = append(table.Columns, tableColumn{
			Name:        fmt.Sprintf("c%d", i),
			DisplayName: restore(h),
			DataType:    "lark_md",
		})
	}
	for _, line := range lines[2:] {
		cells := splitRow(line)
		row := make(map[string]string, len(headers))
		for i := range headers {
			if i < len(cells) {
				row[fmt.Sprintf("c%d", i)] = restore(cells[i])
			} else {
				row[fmt.Sprintf("c%d", i)] = ""
			}
		}
		table.Rows = append(table.Rows, row)
	}
	return table, true
}

func splitRow(line string) []string {
	line = strings.TrimSpace(line)
	line = strings.TrimPrefix(line, "|")
	line = strings.TrimSuffix(line, "|")
	parts := strings.Split(line, "|")
	cells := make([]string, len(parts))
	for i, p := range parts {
		cells[i] = strings.TrimSpace(p)
	}
	return cells
}

// plainCard wraps text without any markdown interpretation
func plainCard(content string) card {
	return card{
		Config: cardConfig{WideScreenMode: true},
		Elements: []any{divElement{
			Tag:  "div",
			Text: cardText{Tag: "plain_text", Content: content},
		}},
	}
}

func (c card) JSON() string {
	data, err := json.Marshal(c)
	if err != nil {
		return "{}"
	}
	return string(data)
}
