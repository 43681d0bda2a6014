package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/keepmind9/chatbridge/internal/channel"
	"github.com/keepmind9/chatbridge/internal/logger"
	"github.com/keepmind9/chatbridge/internal/pipeline"
	"github.com/keepmind9/chatbridge/pkg/constants"
	"github.com/sirupsen/logrus"
)

// specialCommands defines commands that are answered by the engine instead
// of the pipeline. They are matched exactly (case-sensitive).
var specialCommands = map[string]struct{}{
	"help":   {},
	"start":  {},
	"status": {},
	"whoami": {},
	"reset":  {},
}

// isSpecialCommand checks if input is a special command.
// A bare word only matches on its own; trailing arguments are accepted when
// the command was explicit (a "/" prefix or a platform command), so ordinary
// sentences such as "help me write a letter" still reach the pipeline.
// Returns: (commandName, isCommand, remainingArgs)
func isSpecialCommand(input string, explicit bool) (string, bool, []string) {
	// Reject extremely long inputs early
	if len(input) > constants.MaxSpecialCommandInputLength {
		return "", false, nil
	}

	if _, exists := specialCommands[input]; exists {
		return input, true, nil
	}
	if !explicit {
		return "", false, nil
	}

	fields := strings.Fields(input)
	if len(fields) > 1 {
		if _, exists := specialCommands[fields[0]]; exists {
			return fields[0], true, fields[1:]
		}
	}

	return "", false, nil
}

// commandInput returns the text to match against special commands and
// whether the user addressed the bot with a command. Platform commands
// ("/help", "/help@bot") are reduced to their bare name.
func commandInput(msg *channel.InboundMessage) (string, bool) {
	if cmd := msg.Meta(channel.MetaCommand); cmd != "" {
		if _, ok := specialCommands[cmd]; ok {
			return cmd, true
		}
		return "", false
	}
	input := strings.TrimSpace(msg.Content)
	if !strings.HasPrefix(input, "/") {
		return input, false
	}
	input = input[1:]
	if name, rest, ok := strings.Cut(input, " "); ok {
		name, _, _ = strings.Cut(name, "@")
		return name + " " + rest, true
	}
	input, _, _ = strings.Cut(input, "@")
	return input, true
}

// HandleSpecialCommand runs one special command
func (e *Engine) HandleSpecialCommand(ctx context.Context, adapter channel.Adapter, command string, args []string, msg *channel.InboundMessage) {
	logger.WithField("command", command).Info("handling-special-command")

	switch command {
	case "help", "start":
		e.showHelp(ctx, adapter, msg)
	case "status":
		e.showStatus(ctx, adapter, msg)
	case "whoami":
		e.showWhoami(ctx, adapter, msg)
	case "reset":
		e.handleReset(ctx, adapter, msg)
	default:
		e.reply(ctx, adapter, msg,
			fmt.Sprintf("❌ Unknown command: %s\nUse 'help' to see available commands", command))
	}
}

// showHelp displays help information about available commands
func (e *Engine) showHelp(ctx context.Context, adapter channel.Adapter, msg *channel.InboundMessage) {
	help := `📖 **chatbridge Help**

**Special Commands** (send the bare word, or /command):
  help    - Show this help message
  status  - Show bridge status
  whoami  - Show your platform ids (for whitelist config)
  reset   - Start a new conversation in this chat

Any other message is answered by the assistant.`

	e.reply(ctx, adapter, msg, help)
}

// showStatus reports uptime and the active platforms
func (e *Engine) showStatus(ctx context.Context, adapter channel.Adapter, msg *channel.InboundMessage) {
	pipelineType := e.config.Pipeline.Type
	if pipelineType == "" {
		pipelineType = "echo"
	}
	storeType := e.config.Store.Type
	if storeType == "" {
		storeType = "memory"
	}

	response := "📊 chatbridge Status:\n\n"
	response += fmt.Sprintf("Uptime: %s\n", time.Since(e.startedAt).Truncate(time.Second))
	response += fmt.Sprintf("Pipeline: %s\n", pipelineType)
	response += fmt.Sprintf("Store: %s\n", storeType)
	response += fmt.Sprintf("Queued messages: %d\n", len(e.messageChan))
	response += "Platforms:\n"
	for _, p := range e.platforms() {
		response += fmt.Sprintf("  ✅ %s\n", p)
	}

	e.reply(ctx, adapter, msg, response)
}

// showWhoami returns the user's platform information to help with whitelist configuration
func (e *Engine) showWhoami(ctx context.Context, adapter channel.Adapter, msg *channel.InboundMessage) {
	conversation := "⚠️  none yet"
	if rec, err := e.store.Resolve(ctx, adapter.Platform(), msg.ChatID, msg.SenderID); err == nil {
		conversation = "`" + rec.ConversationID + "`"
	}

	role := "user"
	if e.config.IsAdmin(adapter.Platform(), msg.SenderID) {
		role = "admin"
	}

	response := fmt.Sprintf("🔍 **Your Information**\n\n"+
		"**Platform:** %s\n"+
		"**User ID:** `%s`\n"+
		"**Name:** %s\n"+
		"**Chat ID:** `%s`\n"+
		"**Chat Type:** %s\n"+
		"**Role:** %s\n"+
		"**Conversation:** %s",
		adapter.Platform(), msg.SenderID, msg.SenderName, msg.ChatID, msg.ChatType, role, conversation)
	e.reply(ctx, adapter, msg, response)
}

// handleReset drops the chat's conversation so the next message starts fresh
func (e *Engine) handleReset(ctx context.Context, adapter channel.Adapter, msg *channel.InboundMessage) {
	platform := adapter.Platform()

	if rec, err := e.store.Resolve(ctx, platform, msg.ChatID, msg.SenderID); err == nil {
		if f, ok := e.pipeline.(pipeline.Forgetter); ok {
			f.Forget(rec.ConversationID)
		}
	}

	if err := e.store.Reset(ctx, platform, msg.ChatID); err != nil {
		logger.WithFields(logrus.Fields{
			"platform": platform,
			"chat_id":  msg.ChatID,
			"error":    err,
		}).Error("failed-to-reset-conversation")
		e.reply(ctx, adapter, msg, e.config.Engine.ErrorMessage)
		return
	}

	logger.WithFields(logrus.Fields{
		"platform": platform,
		"chat_id":  msg.ChatID,
	}).Info("conversation-reset")
	e.reply(ctx, adapter, msg, "✅ Conversation reset. The next message starts a new conversation.")
}
