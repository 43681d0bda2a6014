package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/keepmind9/chatbridge/internal/logger"
	"github.com/sirupsen/logrus"
)

// defaultRetryAfter is used when a 429 carries no usable retry hint
const defaultRetryAfter = time.Second

// rateLimitBody is the JSON body Discord sends with HTTP 429.
// retry_after is in (fractional) seconds.
type rateLimitBody struct {
	Message    string  `json:"message"`
	RetryAfter float64 `json:"retry_after"`
	Global     bool    `json:"global"`
}

// do sends one REST request. A 429 is retried exactly once after the
// advertised delay; a second 429 is returned as an error.
func (a *Adapter) do(ctx context.Context, method, url string, payload any, auth bool) ([]byte, error) {
	var data []byte
	if payload != nil {
		var err error
		if data, err = json.Marshal(payload); err != nil {
			return nil, fmt.Errorf("failed to encode discord request: %w", err)
		}
	}

	for attempt := 0; ; attempt++ {
		resp, body, err := a.send(ctx, method, url, data, auth)
		if err != nil {
			return nil, err
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			if attempt > 0 {
				return nil, fmt.Errorf("discord rate limit persisted after retry: %w", restError(resp, body))
			}
			wait := retryAfter(resp, body)
			logger.WithFields(logrus.Fields{
				"url":         url,
				"retry_after": wait.String(),
			}).Warn("discord-rate-limited-retrying")
			if err := a.sleep(ctx, wait); err != nil {
				return nil, fmt.Errorf("rate limit wait aborted: %w", err)
			}
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, restError(resp, body)
		}
		return body, nil
	}
}

func (a *Adapter) send(ctx context.Context, method, url string, data []byte, auth bool) (*http.Response, []byte, error) {
	var reader io.Reader
	if data != nil {
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build discord request: %w", err)
	}
	if data != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth {
		req.Header.Set("Authorization", "Bot "+a.token)
	}
	req.Header.Set("User-Agent", "DiscordBot (https://github.com/keepmind9/chatbridge, 1.0)")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("discord request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read discord response: %w", err)
	}
	return resp, body, nil
}

func retryAfter(resp *http.Response, body []byte) time.Duration {
	var rl rateLimitBody
	if err := json.Unmarshal(body, &rl); err == nil && rl.RetryAfter > 0 {
		return time.Duration(rl.RetryAfter * float64(time.Second))
	}
	if secs, err := strconv.ParseFloat(resp.Header.Get("Retry-After"), 64); err == nil && secs > 0 {
		return time.Duration(secs * float64(time.Second))
	}
	return defaultRetryAfter
}

func restError(resp *http.Response, body []byte) error {
	rerr := &discordgo.RESTError{
		Request:      resp.Request,
		Response:     resp,
		ResponseBody: body,
	}
	var msg discordgo.APIErrorMessage
	if err := json.Unmarshal(body, &msg); err == nil && msg.Message != "" {
		rerr.Message = &msg
	}
	return rerr
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
