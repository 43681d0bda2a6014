// Package scheduler sends configured messages to chats on cron schedules
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/keepmind9/chatbridge/internal/channel"
	"github.com/keepmind9/chatbridge/internal/logger"
	"github.com/keepmind9/chatbridge/internal/metrics"
	"github.com/keepmind9/chatbridge/pkg/constants"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Notification is one scheduled outbound message
type Notification struct {
	Name      string `yaml:"name"`
	Schedule  string `yaml:"schedule"` // standard 5-field cron spec
	Platform  string `yaml:"platform"`
	ChatID    string `yaml:"chat_id"`
	Message   string `yaml:"message"`
	ParseMode string `yaml:"parse_mode"`
	// Metadata is passed through to the adapter (e.g. DingTalk session_webhook)
	Metadata map[string]string `yaml:"metadata"`
}

// AdapterLookup returns the live adapter for a platform
type AdapterLookup func(platform string) (channel.Adapter, bool)

// Scheduler manages notification cron jobs
type Scheduler struct {
	cron    *cron.Cron
	lookup  AdapterLookup
	timeout time.Duration
}

// NewScheduler registers every notification. An invalid cron spec fails the
// whole set.
func NewScheduler(notifications []Notification, lookup AdapterLookup) (*Scheduler, error) {
	s := &Scheduler{
		cron:    cron.New(),
		lookup:  lookup,
		timeout: constants.DefaultHTTPTimeout,
	}
	for _, n := range notifications {
		n := n
		if _, err := s.cron.AddFunc(n.Schedule, func() { s.Run(context.Background(), n) }); err != nil {
			return nil, fmt.Errorf("invalid schedule %q for notification %s: %w", n.Schedule, n.Name, err)
		}
	}
	return s, nil
}

// Len returns the number of registered jobs
func (s *Scheduler) Len() int {
	return len(s.cron.Entries())
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops the scheduler and waits for running jobs
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// Run sends one notification immediately
func (s *Scheduler) Run(ctx context.Context, n Notification) channel.SendResult {
	fields := logrus.Fields{
		"notification": n.Name,
		"platform":     n.Platform,
		"chat_id":      n.ChatID,
	}

	adapter, ok := s.lookup(n.Platform)
	if !ok {
		logger.WithFields(fields).Warn("notification-platform-not-configured")
		return channel.Failed("platform not configured: "+n.Platform, nil)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	result := adapter.SendMessage(ctx, channel.OutboundMessage{
		ChatID:    n.ChatID,
		Content:   n.Message,
		ParseMode: channel.ParseMode(n.ParseMode),
		Metadata:  n.Metadata,
	})
	metrics.SendResult(n.Platform, result.Success)

	if !result.Success {
		fields["error"] = result.Error
		logger.WithFields(fields).Error("notification-send-failed")
		return result
	}
	logger.WithFields(fields).Info("notification-sent")
	return result
}
