package telegram

import (
	"context"
	"errors"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/keepmind9/chatbridge/internal/channel"
	"github.com/keepmind9/chatbridge/internal/logger"
	"github.com/keepmind9/chatbridge/pkg/constants"
	"github.com/sirupsen/logrus"
)

var _ channel.Listener = (*Adapter)(nil)

// Listen receives updates by long polling. Any registered webhook is removed
// first since Telegram refuses getUpdates while one is set.
func (a *Adapter) Listen(ctx context.Context, handler func(*channel.InboundMessage)) error {
	if a.token == "" {
		return fmt.Errorf("telegram bot token not configured")
	}

	if _, err := a.bot.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		return fmt.Errorf("failed to delete telegram webhook before polling: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"token": logger.MaskSecret(a.token),
	}).Info("starting-telegram-long-polling")

	offset := 0
	for {
		if ctx.Err() != nil {
			logger.Info("telegram-long-polling-stopped")
			return nil
		}

		u := tgbotapi.NewUpdate(offset)
		u.Timeout = int(constants.TelegramPollTimeout.Seconds())
		u.AllowedUpdates = allowedUpdates

		updates, err := a.bot.GetUpdates(u)
		if err != nil {
			logger.WithField("error", err).Warn("telegram-get-updates-failed")
			if !sleepCtx(ctx, constants.ListenerRetryDelay) {
				return nil
			}
			continue
		}

		for _, update := range updates {
			if update.UpdateID >= offset {
				offset = update.UpdateID + 1
			}
			msg, err := translateUpdate(update)
			if err != nil {
				if !errors.Is(err, channel.ErrNoMessage) {
					logger.WithFields(logrus.Fields{
						"update_id": update.UpdateID,
						"error":     err,
					}).Warn("failed-to-translate-telegram-update")
				}
				continue
			}
			handler(msg)
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
