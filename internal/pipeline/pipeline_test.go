package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	p, err := New(Config{})
	require.NoError(t, err)
	assert.IsType(t, &Echo{}, p)

	_, err = New(Config{Type: "openai"})
	assert.Error(t, err, "api key required")

	p, err = New(Config{Type: "OpenAI", APIKey: "k"})
	require.NoError(t, err)
	assert.IsType(t, &OpenAI{}, p)

	_, err = New(Config{Type: "nope"})
	assert.Error(t, err)
}

func TestEcho(t *testing.T) {
	p := &Echo{Prefix: "echo: "}
	reply, err := p.Complete(context.Background(), "c1", "hi", "u1")
	require.NoError(t, err)
	assert.Equal(t, "echo: hi", reply)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.Complete(ctx, "c1", "hi", "u1")
	assert.ErrorIs(t, err, context.Canceled)
}

type chatRequest struct {
	Model    string `json:"model"`
	User     string `json:"user"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func fakeCompletions(t *testing.T) (*httptest.Server, *[]chatRequest) {
	var mu sync.Mutex
	var seen []chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		mu.Lock()
		seen = append(seen, req)
		n := len(seen)
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"id":"c","object":"chat.completion","created":1,"model":%q,
			"choices":[{"index":0,"message":{"role":"assistant","content":"reply %d"},"finish_reason":"stop"}],
			"usage":{"prompt_tokens":1,"completion_tokens":1,"total_tokens":2}}`, req.Model, n)
	}))
	t.Cleanup(srv.Close)
	return srv, &seen
}

func TestOpenAI_CompleteKeepsHistory(t *testing.T) {
	srv, seen := fakeCompletions(t)
	p, err := NewOpenAI(Config{APIKey: "test-key", BaseURL: srv.URL + "/v1", Model: "test-model", SystemPrompt: "be brief"})
	require.NoError(t, err)

	reply, err := p.Complete(context.Background(), "conv", "first", "u1")
	require.NoError(t, err)
	assert.Equal(t, "reply 1", reply)

	reply, err = p.Complete(context.Background(), "conv", "second", "u1")
	require.NoError(t, err)
	assert.Equal(t, "reply 2", reply)

	require.Len(t, *seen, 2)
	second := (*seen)[1]
	assert.Equal(t, "test-model", second.Model)
	assert.Equal(t, "u1", second.User)
	require.Len(t, second.Messages, 4)
	assert.Equal(t, "system", second.Messages[0].Role)
	assert.Equal(t, "first", second.Messages[1].Content)
	assert.Equal(t, "reply 1", second.Messages[2].Content)
	assert.Equal(t, "second", second.Messages[3].Content)

	p.Forget("conv")
	_, err = p.Complete(context.Background(), "conv", "third", "u1")
	require.NoError(t, err)
	assert.Len(t, (*seen)[2].Messages, 2)
}

func TestOpenAI_HistoryBounded(t *testing.T) {
	srv, seen := fakeCompletions(t)
	p, err := NewOpenAI(Config{APIKey: "test-key", BaseURL: srv.URL + "/v1", MaxHistory: 2})
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		_, err := p.Complete(context.Background(), "conv", fmt.Sprintf("m%d", i), "u")
		require.NoError(t, err)
	}
	last := (*seen)[3]
	assert.Len(t, last.Messages, 3)
	assert.Equal(t, "gpt-4o-mini", last.Model)
}

func TestOpenAI_Error(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":{"message":"upstream down","type":"server_error"}}`))
	}))
	defer srv.Close()

	p, err := NewOpenAI(Config{APIKey: "k", BaseURL: srv.URL})
	require.NoError(t, err)
	_, err = p.Complete(context.Background(), "c", "x", "u")
	assert.Error(t, err)
}
