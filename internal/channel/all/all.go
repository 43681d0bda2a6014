// Package all registers every built-in platform adapter
package all

import (
	_ "github.com/keepmind9/chatbridge/internal/channel/dingtalk"
	_ "github.com/keepmind9/chatbridge/internal/channel/discord"
	_ "github.com/keepmind9/chatbridge/internal/channel/feishu"
	_ "github.com/keepmind9/chatbridge/internal/channel/telegram"
)
