package store

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_ResolveIsStable(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	first, err := s.Resolve(ctx, "telegram", "42", "7|ada")
	require.NoError(t, err)
	_, err = uuid.Parse(first.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, "telegram", first.Platform)
	assert.Equal(t, "42", first.ChatID)
	assert.Equal(t, "7|ada", first.UserID)

	again, err := s.Resolve(ctx, "telegram", "42", "8|bob")
	require.NoError(t, err)
	assert.Equal(t, first, again)

	other, err := s.Resolve(ctx, "discord", "42", "7")
	require.NoError(t, err)
	assert.NotEqual(t, first.ConversationID, other.ConversationID)
}

func TestMemory_Reset(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	first, _ := s.Resolve(ctx, "feishu", "oc_1", "ou_1")
	require.NoError(t, s.Reset(ctx, "feishu", "oc_1"))
	second, _ := s.Resolve(ctx, "feishu", "oc_1", "ou_1")
	assert.NotEqual(t, first.ConversationID, second.ConversationID)

	require.NoError(t, s.Reset(ctx, "feishu", "missing"))
}

func TestMemory_ConcurrentResolve(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	ids := make([]string, 50)
	var wg sync.WaitGroup
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec, err := s.Resolve(ctx, "telegram", "1", "u")
			if err == nil {
				ids[i] = rec.ConversationID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
}

func TestNew(t *testing.T) {
	s, err := New(Config{})
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, s)

	_, err = New(Config{Type: "sqlite"})
	assert.Error(t, err)
}

func setupRedis(t *testing.T) *Redis {
	t.Helper()
	addr := os.Getenv("CHATBRIDGE_TEST_REDIS")
	if addr == "" {
		addr = "localhost:6379"
	}
	s, err := NewRedis(Config{Addr: addr, DB: 15, KeyPrefix: "chatbridge-test:" + uuid.NewString() + ":"})
	if err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRedis_ResolveAndReset(t *testing.T) {
	s := setupRedis(t)
	ctx := context.Background()

	first, err := s.Resolve(ctx, "telegram", "42", "7|ada")
	require.NoError(t, err)

	again, err := s.Resolve(ctx, "telegram", "42", "7|ada")
	require.NoError(t, err)
	assert.Equal(t, first.ConversationID, again.ConversationID)

	require.NoError(t, s.Reset(ctx, "telegram", "42"))
	fresh, err := s.Resolve(ctx, "telegram", "42", "7|ada")
	require.NoError(t, err)
	assert.NotEqual(t, first.ConversationID, fresh.ConversationID)
	require.NoError(t, s.Reset(ctx, "telegram", "42"))
}

func TestNewRedis_Unreachable(t *testing.T) {
	_, err := NewRedis(Config{Addr: "127.0.0.1:1"})
	assert.Error(t, err)
}
