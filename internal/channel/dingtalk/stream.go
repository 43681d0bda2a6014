package dingtalk

import (
	"context"
	"errors"
	"fmt"

	"github.com/keepmind9/chatbridge/internal/channel"
	"github.com/keepmind9/chatbridge/internal/logger"
	"github.com/open-dingtalk/dingtalk-stream-sdk-go/chatbot"
	"github.com/open-dingtalk/dingtalk-stream-sdk-go/client"
	"github.com/sirupsen/logrus"
)

var _ channel.Listener = (*Adapter)(nil)

// Listen receives robot messages over a DingTalk Stream connection, for
// deployments without a public callback URL. Replies still go through the
// session webhook carried by each message.
func (a *Adapter) Listen(ctx context.Context, handler func(*channel.InboundMessage)) error {
	if a.appKey == "" || a.appSecret == "" {
		return fmt.Errorf("dingtalk stream mode requires app_id and app_secret")
	}

	logger.WithFields(logrus.Fields{
		"client_id": logger.MaskSecret(a.appKey),
	}).Info("starting-dingtalk-stream-connection")

	credential := client.NewAppCredentialConfig(a.appKey, a.appSecret)
	streamClient := client.NewStreamClient(client.WithAppCredential(credential))
	streamClient.RegisterChatBotCallbackRouter(streamCallback(handler))

	if err := streamClient.Start(ctx); err != nil {
		return fmt.Errorf("failed to start dingtalk stream: %w", err)
	}
	logger.Info("dingtalk-stream-connection-started")

	<-ctx.Done()
	streamClient.Close()
	logger.Info("dingtalk-stream-connection-stopped")
	return nil
}

// streamCallback adapts handler to the SDK's chatbot router signature
func streamCallback(handler func(*channel.InboundMessage)) func(context.Context, *chatbot.BotCallbackDataModel) ([]byte, error) {
	return func(ctx context.Context, data *chatbot.BotCallbackDataModel) ([]byte, error) {
		if data == nil {
			return []byte(""), nil
		}
		msg, err := translateCallback(data)
		if err != nil {
			if !errors.Is(err, channel.ErrNoMessage) {
				logger.WithField("error", err).Warn("failed-to-translate-dingtalk-stream-message")
			}
			return []byte(""), nil
		}
		handler(msg)
		return []byte(""), nil
	}
}
