package core

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/keepmind9/chatbridge/internal/channel"
	"github.com/keepmind9/chatbridge/internal/logger"
	"github.com/keepmind9/chatbridge/internal/metrics"
	"github.com/keepmind9/chatbridge/pkg/constants"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Webhook outcomes recorded in metrics.WebhookRequests
const (
	outcomeRejected  = "rejected"
	outcomeChallenge = "challenge"
	outcomeIgnored   = "ignored"
	outcomeInvalid   = "invalid"
	outcomeControl   = "control"
	outcomeAccepted  = "accepted"
	outcomeDropped   = "dropped"
)

// Handler returns the HTTP handler for webhooks, health and metrics
func (e *Engine) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /webhook/{platform}", e.handleWebhook)
	mux.HandleFunc("GET /healthz", e.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

// handleWebhook authenticates, parses and acknowledges one platform webhook.
//
// Slow work (pipeline, sending) happens on the worker pool after the
// response is written:
//  1. VerifyWebhook fails -> 401, body never parsed
//  2. Challenge -> echoed as {"challenge": ...}
//  3. ErrNoMessage / ErrBotSender -> 200 {"ok":true}
//  4. Control frames and ack-only interactions -> adapter's deferred body
//  5. Everything else -> deferred body or {"ok":true}, then queued
func (e *Engine) handleWebhook(w http.ResponseWriter, r *http.Request) {
	platform := r.PathValue("platform")
	adapter, ok := e.Adapter(platform)
	if !ok {
		http.Error(w, "unknown platform", http.StatusNotFound)
		return
	}

	start := time.Now()
	outcome := outcomeAccepted
	defer func() {
		metrics.WebhookRequests.WithLabelValues(platform, outcome).Inc()
		metrics.WebhookDuration.WithLabelValues(platform).Observe(time.Since(start).Seconds())
	}()

	verification := adapter.VerifyWebhook(r)
	if !verification.Valid {
		outcome = outcomeRejected
		logger.WithFields(logrus.Fields{
			"platform": platform,
			"remote":   r.RemoteAddr,
			"error":    verification.Error,
		}).Warn("webhook-verification-failed")
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}
	if verification.Challenge != "" {
		outcome = outcomeChallenge
		writeJSON(w, http.StatusOK, map[string]string{"challenge": verification.Challenge})
		return
	}

	msg, err := adapter.ParseWebhook(r)
	if err != nil {
		if errors.Is(err, channel.ErrNoMessage) || errors.Is(err, channel.ErrBotSender) {
			outcome = outcomeIgnored
			logger.WithFields(logrus.Fields{
				"platform": platform,
				"reason":   err,
			}).Debug("webhook-ignored")
			writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
			return
		}
		outcome = outcomeInvalid
		logger.WithFields(logrus.Fields{
			"platform": platform,
			"error":    err,
		}).Warn("failed-to-parse-webhook")
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}

	if msg.IsControl() || msg.Meta(channel.MetaAckOnly) == "true" {
		outcome = outcomeControl
		if challenge := msg.Meta(channel.MetaChallenge); challenge != "" {
			writeJSON(w, http.StatusOK, map[string]string{"challenge": challenge})
			return
		}
		e.writeAck(w, adapter, msg)
		return
	}

	e.writeAck(w, adapter, msg)
	if !e.enqueue(platform, msg) {
		outcome = outcomeDropped
	}
}

// writeAck answers with the adapter's deferred body when it has one
func (e *Engine) writeAck(w http.ResponseWriter, adapter channel.Adapter, msg *channel.InboundMessage) {
	if dr, ok := adapter.(channel.DeferredResponder); ok {
		if body, ok := dr.DeferredAck(msg); ok {
			writeJSON(w, http.StatusOK, body)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// HealthReport is the /healthz body
type HealthReport struct {
	Status    string            `json:"status"`
	Platforms map[string]string `json:"platforms"`
}

// handleHealth runs every adapter health check concurrently
func (e *Engine) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := e.CheckHealth(r.Context())
	code := http.StatusOK
	if report.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, report)
}

// CheckHealth runs HealthCheck on every registered adapter
func (e *Engine) CheckHealth(ctx context.Context) HealthReport {
	ctx, cancel := context.WithTimeout(ctx, constants.DefaultHTTPTimeout)
	defer cancel()

	report := HealthReport{Status: "ok", Platforms: make(map[string]string)}
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, platform := range e.platforms() {
		adapter, _ := e.Adapter(platform)
		wg.Add(1)
		go func(platform string, adapter channel.Adapter) {
			defer wg.Done()
			status := "ok"
			if err := adapter.HealthCheck(ctx); err != nil {
				status = err.Error()
				logger.WithFields(logrus.Fields{
					"platform": platform,
					"error":    err,
				}).Warn("health-check-failed")
			}
			mu.Lock()
			defer mu.Unlock()
			report.Platforms[platform] = status
			if status != "ok" {
				report.Status = "degraded"
			}
		}(platform, adapter)
	}
	wg.Wait()
	return report
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.WithField("error", err).Warn("failed-to-write-response")
	}
}
