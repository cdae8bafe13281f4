// Package telegram implements the Telegram side of Alpha Wulf: Mini App initData
// verification and a small Bot API client used for commands and notifications.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/alphawulf/alphawulf-hub/pkg/circuitbreaker"
	"github.com/alphawulf/alphawulf-hub/pkg/logger"
	"github.com/alphawulf/alphawulf-hub/pkg/retry"
)

// DefaultBaseURL is the public Bot API endpoint.
const DefaultBaseURL = "https://api.telegram.org"

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// ClientConfig configures the Bot API client.
type ClientConfig struct {
	Token   string
	BaseURL string

	// Timeout bounds one HTTP round trip. It must exceed PollTimeout,
	// otherwise every long poll ends as a client-side timeout.
	Timeout time.Duration

	// PollTimeout is the getUpdates long-poll timeout in seconds.
	PollTimeout int

	// PollRetryDelay is the pause after a failed getUpdates.
	PollRetryDelay time.Duration

	Logger *slog.Logger
}

// DefaultClientConfig returns the settings used by serve.
func DefaultClientConfig(token string) ClientConfig {
	return ClientConfig{
		Token:          token,
		BaseURL:        DefaultBaseURL,
		Timeout:        60 * time.Second,
		PollTimeout:    30,
		PollRetryDelay: 5 * time.Second,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// BOT API TYPES
// ══════════════════════════════════════════════════════════════════════════════

// Update is an incoming update. Only messages are requested.
type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message,omitempty"`
}

// Message is a chat message.
type Message struct {
	MessageID int64           `json:"message_id"`
	From      *User           `json:"from,omitempty"`
	Chat      *Chat           `json:"chat"`
	Date      int64           `json:"date"`
	Text      string          `json:"text,omitempty"`
	Entities  []MessageEntity `json:"entities,omitempty"`
}

// User is a Telegram user or bot.
type User struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name,omitempty"`
	Username  string `json:"username,omitempty"`
}

// Chat is the conversation a message belongs to.
type Chat struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
}

// MessageEntity marks a span of the message text (command, mention, ...).
type MessageEntity struct {
	Type   string `json:"type"`
	Offset int    `json:"offset"`
	Length int    `json:"length"`
}

// SendMessageParams contains parameters for sendMessage.
type SendMessageParams struct {
	ChatID              int64  `json:"chat_id"`
	Text                string `json:"text"`
	ParseMode           string `json:"parse_mode,omitempty"`
	DisableNotification bool   `json:"disable_notification,omitempty"`
}

type getUpdatesParams struct {
	Offset         int64    `json:"offset,omitempty"`
	Limit          int      `json:"limit,omitempty"`
	Timeout        int      `json:"timeout"`
	AllowedUpdates []string `json:"allowed_updates"`
}

// envelope is the common Bot API response wrapper.
type envelope struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result,omitempty"`
	Description string          `json:"description,omitempty"`
	ErrorCode   int             `json:"error_code,omitempty"`
	Parameters  *struct {
		RetryAfter int `json:"retry_after,omitempty"`
	} `json:"parameters,omitempty"`
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Client talks to the Bot API. Outgoing calls go through a circuit breaker and
// are retried on 429 and 5xx; getUpdates is a single attempt because the poll
// loop retries on its own.
type Client struct {
	config  ClientConfig
	http    *http.Client
	logger  *slog.Logger
	retrier retry.Policy
	breaker *circuitbreaker.Breaker
}

// NewClient creates a new Bot API client.
func NewClient(config ClientConfig) *Client {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}
	if config.PollRetryDelay <= 0 {
		config.PollRetryDelay = 5 * time.Second
	}

	log := config.Logger.With(logger.Component("telegram_client"))
	return &Client{
		config:  config,
		http:    &http.Client{Timeout: config.Timeout},
		logger:  log,
		retrier: retry.TelegramAPI(isRetryableError),
		breaker: circuitbreaker.New(circuitbreaker.Config{
			Name:             "telegram-api",
			FailureThreshold: 5,
			Timeout:          30 * time.Second,
			// 4xx означает ошибку запроса, а не недоступность API.
			IsFailure: isRetryableError,
			OnStateChange: func(name string, from, to circuitbreaker.State) {
				log.Warn("circuit breaker state changed",
					slog.String("name", name),
					slog.String("from", from.String()),
					slog.String("to", to.String()),
				)
			},
		}),
	}
}

// SendMessage sends a message and returns what Telegram stored.
func (c *Client) SendMessage(ctx context.Context, params SendMessageParams) (*Message, error) {
	var msg Message
	if err := c.call(ctx, "sendMessage", params, &msg); err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}
	return &msg, nil
}

// SendText sends plain text. Used by bot replies and progress notifications.
func (c *Client) SendText(ctx context.Context, chatID int64, text string) error {
	_, err := c.SendMessage(ctx, SendMessageParams{ChatID: chatID, Text: text})
	return err
}

// GetMe returns the bot's own user.
func (c *Client) GetMe(ctx context.Context) (*User, error) {
	var me User
	if err := c.call(ctx, "getMe", nil, &me); err != nil {
		return nil, fmt.Errorf("get me: %w", err)
	}
	return &me, nil
}

// Health reports the Bot API as unavailable while the circuit is open.
// It does not call the API.
func (c *Client) Health(context.Context) error {
	if c.breaker.State() == circuitbreaker.StateOpen {
		return circuitbreaker.ErrCircuitOpen
	}
	return nil
}

func (c *Client) getUpdates(ctx context.Context, offset int64) ([]Update, error) {
	var updates []Update
	err := c.post(ctx, "getUpdates", getUpdatesParams{
		Offset:         offset,
		Limit:          100,
		Timeout:        c.config.PollTimeout,
		AllowedUpdates: []string{"message"},
	}, &updates)
	if err != nil {
		return nil, fmt.Errorf("get updates: %w", err)
	}
	return updates, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// TRANSPORT
// ══════════════════════════════════════════════════════════════════════════════

// call runs post behind the breaker and the retrier, honouring retry_after.
func (c *Client) call(ctx context.Context, method string, params, out any) error {
	return c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.retrier.Do(ctx, func(ctx context.Context) error {
			err := c.post(ctx, method, params, out)
			var apiErr *APIError
			if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
				select {
				case <-ctx.Done():
					return retry.Permanent(ctx.Err())
				case <-time.After(time.Duration(apiErr.RetryAfter) * time.Second):
				}
			}
			return err
		})
	})
}

// post performs one JSON POST to the Bot API and decodes the result.
func (c *Client) post(ctx context.Context, method string, params, out any) error {
	var body io.Reader = http.NoBody
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("encode %s: %w", method, err)
		}
		body = bytes.NewReader(data)
	}

	endpoint := c.config.BaseURL + "/bot" + c.config.Token + "/" + method
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return fmt.Errorf("build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		// *url.Error содержит URL, а в нём токен бота.
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decode %s response (status %d): %w", method, resp.StatusCode, err)
	}
	if !env.OK {
		apiErr := &APIError{Code: env.ErrorCode, Description: env.Description}
		if apiErr.Code == 0 {
			apiErr.Code = resp.StatusCode
		}
		if env.Parameters != nil {
			apiErr.RetryAfter = env.Parameters.RetryAfter
		}
		return apiErr
	}

	if out != nil && len(env.Result) > 0 {
		if err := json.Unmarshal(env.Result, out); err != nil {
			return fmt.Errorf("decode %s result: %w", method, err)
		}
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

// APIError is an error reported by the Bot API (ok=false).
type APIError struct {
	Code        int
	Description string
	RetryAfter  int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram api error %d: %s", e.Code, e.Description)
}

// IsBlocked reports whether the user blocked the bot or never started it.
func (e *APIError) IsBlocked() bool {
	d := strings.ToLower(e.Description)
	return e.Code == http.StatusForbidden ||
		strings.Contains(d, "bot was blocked") ||
		strings.Contains(d, "chat not found")
}

// IsBlocked reports whether err means the chat cannot receive messages.
func IsBlocked(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.IsBlocked()
}

// isRetryableError: 429 and 5xx are retried, other API errors are not,
// transport errors are unless the context ended.
func isRetryableError(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= 500
	}
	return true
}

// ══════════════════════════════════════════════════════════════════════════════
// LONG POLLING
// ══════════════════════════════════════════════════════════════════════════════

// UpdateHandler handles one update. Errors are logged, not retried.
type UpdateHandler func(ctx context.Context, update *Update) error

// StartPolling long-polls getUpdates and hands every update to handler in
// order. It blocks until ctx is done and then returns nil.
func (c *Client) StartPolling(ctx context.Context, handler UpdateHandler) error {
	c.logger.Info("starting telegram long polling", slog.Int("poll_timeout", c.config.PollTimeout))
	defer c.logger.Info("stopping telegram long polling")

	var offset int64
	for ctx.Err() == nil {
		updates, err := c.getUpdates(ctx, offset)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("failed to get updates", logger.Err(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(c.config.PollRetryDelay):
			}
			continue
		}

		for i := range updates {
			u := &updates[i]
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
			if err := handler(ctx, u); err != nil {
				c.logger.Error("failed to handle update", slog.Int64("update_id", u.UpdateID), logger.Err(err))
			}
		}
	}
	return nil
}

// ExtractCommand returns the lower-cased command of a message without the
// leading slash and the @botname suffix, or "" when the message does not
// start with a command.
func ExtractCommand(msg *Message) string {
	if msg == nil || msg.Text == "" {
		return ""
	}
	for _, e := range msg.Entities {
		if e.Type != "bot_command" || e.Offset != 0 || e.Length < 2 || e.Length > len(msg.Text) {
			continue
		}
		name, _, _ := strings.Cut(msg.Text[1:e.Length], "@")
		return strings.ToLower(name)
	}
	return ""
}
