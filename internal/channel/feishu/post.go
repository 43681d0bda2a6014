package feishu

import (
	"encoding/json"
	"strings"
)

// postLocales are tried in order; the first with any text wins
var postLocales = []string{"zh_cn", "en_us", "ja_jp"}

type postBody struct {
	Title   string          `json:"title"`
	Content [][]postElement `json:"content"`
}

type postElement struct {
	Tag      string `json:"tag"`
	Text     string `json:"text"`
	Href     string `json:"href"`
	UserID   string `json:"user_id"`
	UserName string `json:"user_name"`
}

// extractPostText flattens a post (rich text) message to plain text.
// Link URLs are dropped; mentions become @name.
func extractPostText(content string) string {
	var locales map[string]json.RawMessage
	if err := json.Unmarshal([]byte(content), &locales); err != nil {
		return ""
	}

	for _, locale := range postLocales {
		raw, ok := locales[locale]
		if !ok {
			continue
		}
		var body postBody
		if err := json.Unmarshal(raw, &body); err != nil {
			continue
		}
		if text := body.text(); text != "" {
			return text
		}
	}

	if _, ok := locales["content"]; ok {
		var body postBody
		if err := json.Unmarshal([]byte(content), &body); err == nil {
			return body.text()
		}
	}
	return ""
}

func (p postBody) text() string {
	var parts []string
	if t := strings.TrimSpace(p.Title); t != "" {
		parts = append(parts, t)
	}
	for _, line := range p.Content {
		for _, el := range line {
			switch el.Tag {
			case "text", "a":
				if el.Text != "" {
					parts = append(parts, el.Text)
				}
			case "at":
				name := el.UserName
				if name == "" {
					name = "user"
				}
				parts = append(parts, "@"+name)
			}
		}
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}
