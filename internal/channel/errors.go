package channel

import "errors"

var (
	// ErrNoMessage means the webhook carried no user message the bot should
	// answer. Callers acknowledge with 200 and do nothing.
	ErrNoMessage = errors.New("no message in webhook payload")

	// ErrBotSender means the event was authored by a bot account
	ErrBotSender = errors.New("message sent by a bot")

	// ErrUnsupported is returned by optional capabilities a platform lacks
	ErrUnsupported = errors.New("operation not supported by platform")
)
