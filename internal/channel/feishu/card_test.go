package feishu

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildCard_PlainMarkdown(t *testing.T) {
	c := buildCard("hello **world**")

	require.Len(t, c.Elements, 1)
	assert.Equal(t, markdownElement{Tag: "markdown", Content: "hello **world**"}, c.Elements[0])
	assert.True(t, c.Config.WideScreenMode)
}

func TestBuildCard_HeadingsSplitText(t *testing.T) {
	c := buildCard("intro\n## Section\nbody text\n# Next ##\nmore")

	require.Len(t, c.Elements, 5)
	assert.Equal(t, markdownElement{Tag: "markdown", Content: "intro"}, c.Elements[0])
	assert.Equal(t, divElement{Tag: "div", Text: cardText{Tag: "lark_md", Content: "**Section**"}}, c.Elements[1])
	assert.Equal(t, markdownElement{Tag: "markdown", Content: "body text"}, c.Elements[2])
	assert.Equal(t, divElement{Tag: "div", Text: cardText{Tag: "lark_md", Content: "**Next**"}}, c.Elements[3])
	assert.Equal(t, markdownElement{Tag: "markdown", Content: "more"}, c.Elements[4])
}

func TestBuildCard_Table(t *testing.T) {
	c := buildCard("before\n| Name | Score |\n|:-----|------:|\n| ada | 10 |\n| bob |\nafter")

	require.Len(t, c.Elements, 3)
	assert.Equal(t, markdownElement{Tag: "markdown", Content: "before"}, c.Elements[0])

	table, ok := c.Elements[1].(tableElement)
	require.True(t, ok, "expected table, got %T", c.Elements[1])
	assert.Equal(t, "table", table.Tag)
	assert.Equal(t, []tableColumn{
		{Name: "c0", DisplayName: "Name", DataType: "lark_md"},
		{Name: "c1", DisplayName: "Score", DataType: "lark_md"},
	}, table.Columns)
	assert.Equal(t, []map[string]string{
		{"c0": "ada", "c1": "10"},
		{"c0": "bob", "c1": ""},
	}, table.Rows)

	assert.Equal(t, markdownElement{Tag: "markdown", Content: "after"}, c.Elements[2])
}

func TestBuildCard_HeadingKeepsTrailingHash(t *testing.T) {
	tests := []struct {
		input string
		title string
	}{
		{"# Learning C#", "**Learning C#**"},
		{"## F# and C# ##", "**F# and C#**"},
		{"### Issue #", "**Issue**"},
	}

	for _, tt := range tests {
		c := buildCard(tt.input)
		require.Len(t, c.Elements, 1, tt.input)
		assert.Equal(t, divElement{Tag: "div", Text: cardText{Tag: "lark_md", Content: tt.title}}, c.Elements[0])
	}
}

func TestBuildCard_TableWithoutOuterPipes(t *testing.T) {
	c := buildCard("a | b\n--- | ---\n1 | 2\n3 | 4")

	require.Len(t, c.Elements, 1)
	table, ok := c.Elements[0].(tableElement)
	require.True(t, ok, "expected table, got %T", c.Elements[0])
	assert.Equal(t, []tableColumn{
		{Name: "c0", DisplayName: "a", DataType: "lark_md"},
		{Name: "c1", DisplayName: "b", DataType: "lark_md"},
	}, table.Columns)
	assert.Equal(t, []map[string]string{
		{"c0": "1", "c1": "2"},
		{"c0": "3", "c1": "4"},
	}, table.Rows)
}

func TestBuildCard_RuleIsNotTable(t *testing.T) {
	c := buildCard("x | y\n---\nz")

	for _, el := range c.Elements {
		_, isTable := el.(tableElement)
		assert.False(t, isTable)
	}
}

func TestBuildCard_CodeBlockNotParsedAsTable(t *testing.T) {
	code := "```\n| a | b |\n|---|---|\n| 1 | 2 |\n# not a heading\n```"
	c := buildCard("look:\n" + code)

	require.Len(t, c.Elements, 1)
	md, ok := c.Elements[0].(markdownElement)
	require.True(t, ok)
	assert.Equal(t, "look:\n"+code, md.Content)
}

func TestBuildCard_Empty(t *testing.T) {
	c := buildCard("")
	require.Len(t, c.Elements, 1)
}

func TestCardJSON(t *testing.T) {
	raw := buildCard("# T\n| x |\n|---|\n| 1 |").JSON()

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &decoded))
	elements := decoded["elements"].([]any)
	require.Len(t, elements, 2)
	assert.Equal(t, "div", elements[0].(map[string]any)["tag"])
	assert.Equal(t, "table", elements[1].(map[string]any)["tag"])
}

func TestPlainCard(t *testing.T) {
	c := plainCard("**not bold**")
	require.Len(t, c.Elements, 1)
	assert.Equal(t, cardText{Tag: "plain_text", Content: "**not bold**"}, c.Elements[0].(divElement).Text)
}
