package feishu

import (
	"context"
	"fmt"
	"sync"

	"github.com/keepmind9/chatbridge/internal/logger"
	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	larkcontact "github.com/larksuite/oapi-sdk-go/v3/service/contact/v3"
	"github.com/sirupsen/logrus"
)

// nameCache remembers display names by open id. Lookups that fail are not
// cached so a later message can retry.
type nameCache struct {
	mu    sync.RWMutex
	names map[string]string
}

func newNameCache() *nameCache {
	return &nameCache{names: make(map[string]string)}
}

func (c *nameCache) get(openID string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	name, ok := c.names[openID]
	return name, ok
}

func (c *nameCache) put(openID, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.names[openID] = name
}

// senderName resolves a display name through the contact API. Message
// events only carry ids, so without credentials or on failure the id is
// returned unchanged.
func (a *Adapter) senderName(ctx context.Context, openID string) string {
	if openID == "" || a.appID == "" || a.appSecret == "" {
		return openID
	}
	if name, ok := a.names.get(openID); ok {
		return name
	}

	name, err := a.lookupUserName(ctx, openID)
	if err != nil || name == "" {
		logger.WithFields(logrus.Fields{
			"open_id": openID,
			"error":   err,
		}).Debug("feishu-sender-name-unresolved")
		return openID
	}
	a.names.put(openID, name)
	return name
}

func (a *Adapter) lookupUserName(ctx context.Context, openID string) (string, error) {
	token, err := a.tokens.get(ctx)
	if err != nil {
		return "", err
	}

	req := larkcontact.NewGetUserReqBuilder().
		UserId(openID).
		UserIdType("open_id").
		Build()
	resp, err := a.client.Contact.User.Get(ctx, req, larkcore.WithTenantAccessToken(token))
	if err != nil {
		return "", fmt.Errorf("failed to get feishu user: %w", err)
	}
	if !resp.Success() {
		return "", fmt.Errorf("contact API error: code=%d, msg=%s", resp.Code, resp.Msg)
	}
	if resp.Data == nil || resp.Data.User == nil || resp.Data.User.Name == nil {
		return "", nil
	}
	return *resp.Data.User.Name, nil
}
