package core

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/keepmind9/chatbridge/internal/channel"
	_ "github.com/keepmind9/chatbridge/internal/channel/all"
	"github.com/keepmind9/chatbridge/internal/logger"
	"github.com/keepmind9/chatbridge/internal/metrics"
	"github.com/keepmind9/chatbridge/internal/pipeline"
	"github.com/keepmind9/chatbridge/internal/scheduler"
	"github.com/keepmind9/chatbridge/internal/store"
	"github.com/keepmind9/chatbridge/pkg/constants"
	"github.com/sirupsen/logrus"
)

// inbound is a parsed message waiting for a worker
type inbound struct {
	platform string
	msg      *channel.InboundMessage
}

// Engine routes webhook traffic between platform adapters and the pipeline
type Engine struct {
	config         *Config
	adapters       map[string]channel.Adapter // platform -> adapter
	adapterMu      sync.RWMutex
	pipeline       pipeline.Pipeline
	store          store.Store
	scheduler      *scheduler.Scheduler
	messageChan    chan inbound
	server         *http.Server
	processTimeout time.Duration
	startedAt      time.Time
	wg             sync.WaitGroup
	ctx            context.Context
	cancel         context.CancelFunc
}

// NewEngine creates an Engine with the configured pipeline and store.
// Adapters are added by BuildAdapters or RegisterAdapter.
func NewEngine(config *Config) (*Engine, error) {
	p, err := pipeline.New(config.Pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline: %w", err)
	}
	s, err := store.New(config.Store)
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		config:         config,
		adapters:       make(map[string]channel.Adapter),
		pipeline:       p,
		store:          s,
		messageChan:    make(chan inbound, constants.MessageChannelBufferSize),
		processTimeout: config.ProcessTimeout(),
		startedAt:      time.Now(),
		ctx:            ctx,
		cancel:         cancel,
	}, nil
}

// BuildAdapters constructs an adapter for every enabled bot through the registry
func (e *Engine) BuildAdapters() error {
	for _, platform := range e.config.EnabledPlatforms() {
		adapter := channel.GetChannelAdapter(platform, e.config.Bots[platform].ChannelConfig())
		if adapter == nil {
			return fmt.Errorf("no adapter registered for platform %s", platform)
		}
		e.RegisterAdapter(platform, adapter)
	}
	return nil
}

// RegisterAdapter registers a channel adapter
func (e *Engine) RegisterAdapter(platform string, adapter channel.Adapter) {
	e.adapterMu.Lock()
	defer e.adapterMu.Unlock()
	e.adapters[platform] = adapter
	logger.WithPlatform(platform).Info("channel-adapter-registered")
}

// Adapter returns the registered adapter for a platform
func (e *Engine) Adapter(platform string) (channel.Adapter, bool) {
	e.adapterMu.RLock()
	defer e.adapterMu.RUnlock()
	a, ok := e.adapters[platform]
	return a, ok
}

func (e *Engine) platforms() []string {
	e.adapterMu.RLock()
	defer e.adapterMu.RUnlock()
	out := make([]string, 0, len(e.adapters))
	for _, p := range channel.GetRegisteredPlatforms() {
		if _, ok := e.adapters[p]; ok {
			out = append(out, p)
		}
	}
	return out
}

// Run starts workers, the scheduler and the webhook server, and blocks until
// ctx is done or the server fails.
func (e *Engine) Run(ctx context.Context) error {
	logger.Info("starting-chatbridge-engine")

	if len(e.config.Notifications) > 0 {
		s, err := scheduler.NewScheduler(e.config.Notifications, e.Adapter)
		if err != nil {
			return fmt.Errorf("failed to create scheduler: %w", err)
		}
		e.scheduler = s
		e.scheduler.Start()
		logger.WithField("jobs", s.Len()).Info("scheduler-started")
	}

	e.startWorkers()
	e.startListeners(e.ctx)

	addr := net.JoinHostPort(e.config.Server.Host, strconv.Itoa(e.config.Server.Port))
	e.server = &http.Server{
		Addr:              addr,
		Handler:           e.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("address", addr).Info("webhook-server-listening")
		if err := e.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("engine-context-done")
		return nil
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("webhook server failed: %w", err)
		}
		return nil
	}
}

// startListeners runs Listen for bots configured for polling or stream mode
func (e *Engine) startListeners(ctx context.Context) {
	for _, platform := range e.platforms() {
		if !e.config.Bots[platform].Listens() {
			continue
		}
		adapter, _ := e.Adapter(platform)
		listener, ok := adapter.(channel.Listener)
		if !ok {
			logger.WithPlatform(platform).Warn("adapter-cannot-listen-using-webhook")
			continue
		}

		e.wg.Add(1)
		go func(platform string, listener channel.Listener) {
			defer e.wg.Done()
			defer func() {
				if r := recover(); r != nil {
					logger.WithFields(logrus.Fields{
						"platform": platform,
						"panic":    r,
					}).Error("listener-panic-recovered")
				}
			}()
			err := listener.Listen(ctx, func(msg *channel.InboundMessage) {
				metrics.WebhookRequests.WithLabelValues(platform, outcomeAccepted).Inc()
				e.enqueue(platform, msg)
			})
			if err != nil {
				logger.WithFields(logrus.Fields{
					"platform": platform,
					"error":    err,
				}).Error("listener-failed")
			}
		}(platform, listener)
		logger.WithFields(logrus.Fields{
			"platform": platform,
			"mode":     e.config.Bots[platform].Mode,
		}).Info("listener-started")
	}
}

// startWorkers launches the message workers
func (e *Engine) startWorkers() {
	for i := 0; i < e.config.Engine.Workers; i++ {
		e.wg.Add(1)
		go e.runWorker(i)
	}
}

// runWorker processes queued messages until the engine stops
func (e *Engine) runWorker(id int) {
	defer e.wg.Done()
	for {
		select {
		case <-e.ctx.Done():
			return
		case in := <-e.messageChan:
			e.safeHandle(id, in)
		}
	}
}

func (e *Engine) safeHandle(worker int, in inbound) {
	defer func() {
		if r := recover(); r != nil {
			logger.WithFields(logrus.Fields{
				"worker":   worker,
				"platform": in.platform,
				"panic":    r,
			}).Error("message-handler-panic-recovered")
		}
	}()

	metrics.InFlight.Inc()
	defer metrics.InFlight.Dec()

	ctx, cancel := context.WithTimeout(e.ctx, e.processTimeout)
	defer cancel()
	e.HandleMessage(ctx, in.platform, in.msg)
}

// enqueue hands a message to the workers without blocking the webhook
func (e *Engine) enqueue(platform string, msg *channel.InboundMessage) bool {
	select {
	case e.messageChan <- inbound{platform: platform, msg: msg}:
		return true
	default:
		logger.WithFields(logrus.Fields{
			"platform": platform,
			"chat_id":  msg.ChatID,
		}).Warn("message-queue-full-dropping-message")
		return false
	}
}

// HandleMessage processes one inbound message end to end
func (e *Engine) HandleMessage(ctx context.Context, platform string, msg *channel.InboundMessage) {
	logger.WithFields(logrus.Fields{
		"platform": platform,
		"user":     msg.SenderID,
		"chat_id":  msg.ChatID,
	}).Info("processing-user-message")

	adapter, ok := e.Adapter(platform)
	if !ok {
		logger.WithPlatform(platform).Warn("message-for-unknown-platform")
		return
	}

	if msg.Meta(channel.MetaCallbackQueryID) != "" {
		if acker, ok := adapter.(channel.CallbackAcknowledger); ok {
			if err := acker.AcknowledgeCallback(ctx, msg); err != nil {
				logger.WithFields(logrus.Fields{
					"platform": platform,
					"error":    err,
				}).Warn("failed-to-acknowledge-callback")
			}
		}
	}

	// Security check - verify user is in whitelist
	if !e.config.IsUserAuthorized(platform, msg.SenderID) {
		logger.WithFields(logrus.Fields{
			"platform": platform,
			"user":     msg.SenderID,
		}).Warn("unauthorized-access-attempt")
		e.reply(ctx, adapter, msg, "❌ Unauthorized: Please contact the administrator to add your user ID")
		return
	}

	if cmd, isCmd, args := isSpecialCommand(commandInput(msg)); isCmd {
		logger.WithFields(logrus.Fields{
			"command": cmd,
			"args":    args,
			"user":    msg.SenderID,
		}).Info("special-command-received")
		e.HandleSpecialCommand(ctx, adapter, cmd, args, msg)
		return
	}

	if e.config.Engine.TypingIndicator {
		if typer, ok := adapter.(channel.TypingIndicator); ok {
			if err := typer.SendTypingIndicator(ctx, msg.ChatID); err != nil {
				logger.WithField("error", err).Debug("typing-indicator-failed")
			}
		}
	}

	rec, err := e.store.Resolve(ctx, platform, msg.ChatID, msg.SenderID)
	if err != nil {
		logger.WithFields(logrus.Fields{
			"platform": platform,
			"chat_id":  msg.ChatID,
			"error":    err,
		}).Error("failed-to-resolve-conversation")
		e.reply(ctx, adapter, msg, e.config.Engine.ErrorMessage)
		return
	}

	start := time.Now()
	answer, err := e.pipeline.Complete(ctx, rec.ConversationID, msg.Content, msg.SenderID)
	metrics.PipelineLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.PipelineErrors.Inc()
		logger.WithFields(logrus.Fields{
			"platform":        platform,
			"conversation_id": rec.ConversationID,
			"error":           err,
		}).Error("pipeline-failed")
		e.reply(ctx, adapter, msg, e.config.Engine.ErrorMessage)
		return
	}
	if strings.TrimSpace(answer) == "" {
		// still reply so deferred interactions and typing indicators resolve
		logger.WithField("conversation_id", rec.ConversationID).Warn("pipeline-returned-empty-answer")
		answer = e.config.Engine.EmptyAnswerMessage
	}

	e.reply(ctx, adapter, msg, answer)
}

// reply sends content back to the chat msg came from. Inbound metadata is
// passed through so adapters can reuse interaction tokens or session webhooks.
func (e *Engine) reply(ctx context.Context, adapter channel.Adapter, msg *channel.InboundMessage, content string) channel.SendResult {
	replyTo := msg.ID
	if msg.Meta(channel.MetaCallbackQueryID) != "" || msg.Meta(channel.MetaInteractionToken) != "" {
		replyTo = msg.ReplyTo
	}

	result := adapter.SendMessage(ctx, channel.OutboundMessage{
		Channel:   adapter.Platform(),
		ChatID:    msg.ChatID,
		Content:   content,
		ReplyTo:   replyTo,
		ParseMode: channel.ParseMarkdown,
		Metadata:  msg.Metadata,
	})
	metrics.SendResult(adapter.Platform(), result.Success)

	if !result.Success {
		logger.WithFields(logrus.Fields{
			"platform": adapter.Platform(),
			"chat_id":  msg.ChatID,
			"error":    result.Error,
		}).Error("failed-to-send-reply")
	} else {
		logger.WithFields(logrus.Fields{
			"platform":   adapter.Platform(),
			"chat_id":    msg.ChatID,
			"length":     len(content),
			"message_id": result.MessageID,
		}).Info("reply-sent")
	}
	return result
}

// Stop shuts the server, scheduler, workers and store down
func (e *Engine) Stop() error {
	logger.Info("stopping-chatbridge-engine")

	if e.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), constants.DefaultShutdownTimeout)
		defer cancel()
		if err := e.server.Shutdown(ctx); err != nil {
			logger.Errorf("failed-to-gracefully-stop-webhook-server: %v", err)
			e.server.Close()
		} else {
			logger.Info("webhook-server-stopped-gracefully")
		}
	}

	if e.scheduler != nil {
		e.scheduler.Stop()
	}

	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()

	if err := e.store.Close(); err != nil {
		logger.WithField("error", err).Error("failed-to-close-store")
	}

	logger.Info("engine-stopped")
	return nil
}
