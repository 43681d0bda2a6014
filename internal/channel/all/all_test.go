package all

import (
	"context"
	"strings"
	"testing"

	"github.com/keepmind9/chatbridge/internal/channel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllPlatformsRegistered(t *testing.T) {
	platforms := channel.GetRegisteredPlatforms()
	for _, name := range []string{"dingtalk", "discord", "feishu", "telegram"} {
		assert.Contains(t, platforms, name)
		adapter := channel.GetChannelAdapter(name, channel.Config{})
		require.NotNil(t, adapter, name)
		assert.Equal(t, name, adapter.Platform())
	}
}

// Each adapter renders the same markdown in its own dialect only
func TestFormatContent_DialectsStayIsolated(t *testing.T) {
	src := "# Report\n| a | b |\n|---|---|\n| 1 | 2 |\n**done**"
	out := map[string]string{}
	for _, name := range []string{"telegram", "discord", "feishu"} {
		out[name] = channel.GetChannelAdapter(name, channel.Config{}).FormatContent(src, channel.ParseMarkdown)
	}

	assert.NotContains(t, out["telegram"], `"tag"`)
	assert.Contains(t, out["telegram"], "<b>done</b>")
	assert.Contains(t, out["telegram"], "| a | b |")

	assert.Equal(t, src, out["discord"])

	assert.Contains(t, out["feishu"], `"tag":"table"`)
	assert.False(t, strings.Contains(out["feishu"], "<b>"))
}

func TestUnconfiguredHealthChecksFail(t *testing.T) {
	for _, name := range []string{"discord", "feishu", "telegram"} {
		err := channel.GetChannelAdapter(name, channel.Config{}).HealthCheck(context.Background())
		assert.Error(t, err, name)
	}
}
