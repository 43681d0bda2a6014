package feishu

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/keepmind9/chatbridge/internal/logger"
	"github.com/keepmind9/chatbridge/pkg/constants"
	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	"github.com/sirupsen/logrus"
)

// tokenCache holds one tenant access token per adapter. Refresh starts
// FeishuTokenRefreshMargin before the provider expiry. Concurrent callers
// racing on an expired token may each fetch; the last write wins.
type tokenCache struct {
	mu        sync.Mutex
	token     string
	expiresAt time.Time

	now   func() time.Time
	fetch func(ctx context.Context) (token string, ttl time.Duration, err error)
}

func (c *tokenCache) get(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.token != "" && c.now().Before(c.expiresAt.Add(-constants.FeishuTokenRefreshMargin)) {
		token := c.token
		c.mu.Unlock()
		return token, nil
	}
	c.mu.Unlock()

	token, ttl, err := c.fetch(ctx)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.token = token
	c.expiresAt = c.now().Add(ttl)
	c.mu.Unlock()
	return token, nil
}

// fetchTenantToken requests a self-built app tenant token through the SDK
func (a *Adapter) fetchTenantToken(ctx context.Context) (string, time.Duration, error) {
	if a.appID == "" || a.appSecret == "" {
		return "", 0, fmt.Errorf("feishu app credentials not configured")
	}

	resp, err := a.client.GetTenantAccessTokenBySelfBuiltApp(ctx, &larkcore.SelfBuiltTenantAccessTokenReq{
		AppID:     a.appID,
		AppSecret: a.appSecret,
	})
	if err != nil {
		return "", 0, fmt.Errorf("failed to request tenant access token: %w", err)
	}
	if !resp.Success() || resp.TenantAccessToken == "" {
		return "", 0, fmt.Errorf("tenant access token error: code=%d, msg=%s", resp.Code, resp.Msg)
	}

	logger.WithFields(logrus.Fields{
		"app_id": logger.MaskSecret(a.appID),
		"expire": resp.Expire,
	}).Debug("feishu-tenant-token-refreshed")

	return resp.TenantAccessToken, time.Duration(resp.Expire) * time.Second, nil
}
