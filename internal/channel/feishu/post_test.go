package feishu

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractPostText(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		expected string
	}{
		{
			name: "zh_cn populated, en_us absent",
			content: `{"zh_cn":{"title":"标题","content":[[{"tag":"text","text":"你好"},
				{"tag":"a","text":"链接","href":"https://example.com"}]]}}`,
			expected: "标题 你好 链接",
		},
		{
			name:     "zh_cn empty falls through to en_us",
			content:  `{"zh_cn":{"title":"","content":[]},"en_us":{"title":"","content":[[{"tag":"text","text":"hello"}]]}}`,
			expected: "hello",
		},
		{
			name:     "ja_jp last",
			content:  `{"ja_jp":{"content":[[{"tag":"text","text":"こんにちは"}]]}}`,
			expected: "こんにちは",
		},
		{
			name:     "direct form",
			content:  `{"title":"T","content":[[{"tag":"text","text":"body"}],[{"tag":"text","text":"line two"}]]}`,
			expected: "T body line two",
		},
		{
			name:     "mentions",
			content:  `{"content":[[{"tag":"at","user_id":"ou_1","user_name":"Tom"},{"tag":"at","user_id":"ou_2"},{"tag":"text","text":" hi "}]]}`,
			expected: "@Tom @user  hi",
		},
		{
			name:     "unknown tags skipped",
			content:  `{"content":[[{"tag":"img","image_key":"k"},{"tag":"text","text":"caption"}]]}`,
			expected: "caption",
		},
		{
			name:     "not json",
			content:  `nope`,
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, extractPostText(tt.content))
		})
	}
}
