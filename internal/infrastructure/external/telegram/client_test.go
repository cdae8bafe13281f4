package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alphawulf/alphawulf-hub/pkg/logger"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := DefaultClientConfig("TOKEN")
	cfg.BaseURL = srv.URL
	cfg.Logger = logger.Discard()
	return NewClient(cfg)
}

func TestSendMessage(t *testing.T) {
	var got map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":7,"chat":{"id":42,"type":"private"},"text":"hi"}}`))
	})

	msg, err := c.SendMessage(context.Background(), SendMessageParams{ChatID: 42, Text: "hi"})
	require.NoError(t, err)

	assert.Equal(t, int64(7), msg.MessageID)
	assert.Equal(t, float64(42), got["chat_id"])
	assert.Equal(t, "hi", got["text"])
}

func TestSendMessage_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			_, _ = w.Write([]byte(`{"ok":false,"error_code":502,"description":"Bad Gateway"}`))
			return
		}
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":1,"chat":{"id":1,"type":"private"}}}`))
	})

	require.NoError(t, c.SendText(context.Background(), 1, "x"))
	assert.Equal(t, int32(2), calls.Load())
}

func TestSendMessage_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"ok":false,"error_code":403,"description":"Forbidden: bot was blocked by the user"}`))
	})

	err := c.SendText(context.Background(), 1, "x")
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.IsBlocked())
	assert.Equal(t, int32(1), calls.Load())
}

func TestExtractCommand(t *testing.T) {
	cmd := func(text string, length int) *Message {
		return &Message{
			Text:     text,
			Entities: []MessageEntity{{Type: "bot_command", Offset: 0, Length: length}},
		}
	}

	assert.Equal(t, "progress", ExtractCommand(cmd("/progress", 9)))
	assert.Equal(t, "streak", ExtractCommand(cmd("/streak@AlphaWulfBot now", 20)))
	assert.Equal(t, "", ExtractCommand(&Message{Text: "hello"}))
	assert.Equal(t, "", ExtractCommand(nil))
}

func TestStartPolling_AdvancesOffset(t *testing.T) {
	var offsets []float64
	var mu sync.Mutex
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/getUpdates", r.URL.Path)
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		mu.Lock()
		off, _ := body["offset"].(float64)
		offsets = append(offsets, off)
		first := len(offsets) == 1
		mu.Unlock()

		if first {
			_, _ = w.Write([]byte(`{"ok":true,"result":[
				{"update_id":10,"message":{"message_id":1,"chat":{"id":5,"type":"private"},"text":"/start"}},
				{"update_id":11,"message":{"message_id":2,"chat":{"id":5,"type":"private"},"text":"/help"}}]}`))
			return
		}
		time.Sleep(10 * time.Millisecond)
		_, _ = w.Write([]byte(`{"ok":true,"result":[]}`))
	})

	ctx, cancel := context.WithCancel(context.Background())
	var got []string
	done := make(chan error, 1)
	go func() {
		done <- c.StartPolling(ctx, func(_ context.Context, u *Update) error {
			got = append(got, u.Message.Text)
			if len(got) == 2 {
				return errors.New("handler errors are only logged")
			}
			return nil
		})
	}()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(offsets) >= 2
	}, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, []string{"/start", "/help"}, got)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, float64(0), offsets[0])
	assert.Equal(t, float64(12), offsets[1])
}

func TestIsBlockedAndHealth(t *testing.T) {
	assert.True(t, IsBlocked(fmt.Errorf("wrapped: %w", &APIError{Code: 400, Description: "Bad Request: chat not found"})))
	assert.False(t, IsBlocked(&APIError{Code: 429, Description: "Too Many Requests"}))
	assert.False(t, IsBlocked(errors.New("dial tcp: refused")))

	c := NewClient(DefaultClientConfig("TOKEN"))
	assert.NoError(t, c.Health(context.Background()))
}
