package telegram

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alphawulf/alphawulf-hub/internal/infrastructure/external/telegram"
	"github.com/alphawulf/alphawulf-hub/internal/interface/telegram/middleware"
	"github.com/alphawulf/alphawulf-hub/internal/interface/telegram/presenter"
	"github.com/alphawulf/alphawulf-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// BOT CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// BotConfig contains configuration for the Telegram bot.
type BotConfig struct {
	// MaxConcurrentUpdates limits concurrent update processing.
	MaxConcurrentUpdates int

	// HandlerTimeout bounds a single command, reply included.
	HandlerTimeout time.Duration

	// GracefulShutdownTimeout is how long Stop waits for in-flight commands.
	GracefulShutdownTimeout time.Duration

	RateLimit middleware.RateLimitConfig
	Recovery  middleware.RecoveryConfig

	Debug  bool
	Logger *slog.Logger
}

// DefaultBotConfig returns sensible defaults.
func DefaultBotConfig() BotConfig {
	return BotConfig{
		MaxConcurrentUpdates:    32,
		HandlerTimeout:          15 * time.Second,
		GracefulShutdownTimeout: 10 * time.Second,
		RateLimit:               middleware.DefaultRateLimitConfig(),
		Recovery:                middleware.DefaultRecoveryConfig(),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// BOT DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// UpdateSource delivers updates until ctx is done.
type UpdateSource interface {
	StartPolling(ctx context.Context, handler telegram.UpdateHandler) error
}

// Sender sends plain text messages.
type Sender interface {
	SendText(ctx context.Context, chatID int64, text string) error
}

// CommandObserver records handled commands. Optional.
type CommandObserver interface {
	BotCommand(command string, d time.Duration, err error)
}

// BotDependencies contains all dependencies for the bot.
type BotDependencies struct {
	Updates  UpdateSource
	Sender   Sender
	Router   *Router
	Observer CommandObserver
}

// ══════════════════════════════════════════════════════════════════════════════
// BOT
// ══════════════════════════════════════════════════════════════════════════════

// Bot is the main Telegram bot controller.
type Bot struct {
	config   BotConfig
	deps     BotDependencies
	logger   *slog.Logger
	limiter  *middleware.RateLimiter
	recovery *middleware.RecoveryMiddleware

	runningMu sync.Mutex
	running   bool
	cancel    context.CancelFunc
	done      chan struct{}

	updateSem chan struct{}
	wg        sync.WaitGroup

	stats BotStats
}

// BotStats holds runtime counters.
type BotStats struct {
	UpdatesReceived atomic.Int64
	CommandsHandled atomic.Int64
	Errors          atomic.Int64
	RateLimited     atomic.Int64
}

// NewBot creates a new bot.
func NewBot(config BotConfig, deps BotDependencies) (*Bot, error) {
	if deps.Updates == nil || deps.Sender == nil || deps.Router == nil {
		return nil, errors.New("telegram bot: updates, sender and router are required")
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.MaxConcurrentUpdates <= 0 {
		config.MaxConcurrentUpdates = 32
	}
	if config.HandlerTimeout <= 0 {
		config.HandlerTimeout = 15 * time.Second
	}
	if config.GracefulShutdownTimeout <= 0 {
		config.GracefulShutdownTimeout = 10 * time.Second
	}
	if config.Recovery.Logger == nil {
		config.Recovery.Logger = config.Logger
	}

	return &Bot{
		config:    config,
		deps:      deps,
		logger:    config.Logger.With(logger.Component("telegram_bot")),
		limiter:   middleware.NewRateLimiter(config.RateLimit),
		recovery:  middleware.NewRecoveryMiddleware(config.Recovery),
		updateSem: make(chan struct{}, config.MaxConcurrentUpdates),
	}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// LIFECYCLE MANAGEMENT
// ══════════════════════════════════════════════════════════════════════════════

// Start polls for updates and blocks until ctx is done or Stop is called.
func (b *Bot) Start(ctx context.Context) error {
	b.runningMu.Lock()
	if b.running {
		b.runningMu.Unlock()
		return errors.New("bot is already running")
	}
	ctx, cancel := context.WithCancel(ctx)
	b.running = true
	b.cancel = cancel
	b.done = make(chan struct{})
	done := b.done
	b.runningMu.Unlock()

	defer close(done)
	defer cancel()

	b.logger.Info("starting telegram bot", slog.Int("max_concurrent", b.config.MaxConcurrentUpdates))

	janitor := time.NewTicker(time.Minute)
	defer janitor.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-janitor.C:
				b.limiter.Cleanup()
			}
		}
	}()

	return b.deps.Updates.StartPolling(ctx, b.dispatch)
}

// Stop cancels polling and waits for in-flight commands.
func (b *Bot) Stop(ctx context.Context) error {
	b.runningMu.Lock()
	if !b.running {
		b.runningMu.Unlock()
		return nil
	}
	b.running = false
	cancel, done := b.cancel, b.done
	b.runningMu.Unlock()

	b.logger.Info("stopping telegram bot")
	cancel()
	<-done

	finished := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		b.logger.Info("all command handlers completed")
		return nil
	case <-time.After(b.config.GracefulShutdownTimeout):
		b.logger.Warn("graceful shutdown timeout exceeded")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns a snapshot of the bot counters.
func (b *Bot) Stats() map[string]int64 {
	return map[string]int64{
		"updates_received": b.stats.UpdatesReceived.Load(),
		"commands_handled": b.stats.CommandsHandled.Load(),
		"errors":           b.stats.Errors.Load(),
		"rate_limited":     b.stats.RateLimited.Load(),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// UPDATE HANDLING
// ══════════════════════════════════════════════════════════════════════════════

// dispatch hands the update to a worker. Polling blocks while all workers are busy.
func (b *Bot) dispatch(ctx context.Context, update *telegram.Update) error {
	select {
	case b.updateSem <- struct{}{}:
	case <-ctx.Done():
		return nil
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer func() { <-b.updateSem }()

		// Ответ отправляется даже если polling уже остановлен.
		hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.config.HandlerTimeout)
		defer cancel()

		if err := b.HandleUpdate(hctx, update); err != nil {
			b.logger.Error("failed to handle update",
				slog.Int64("update_id", update.UpdateID),
				logger.Err(err),
			)
		}
	}()
	return nil
}

// HandleUpdate processes a single update synchronously.
func (b *Bot) HandleUpdate(ctx context.Context, update *telegram.Update) error {
	b.stats.UpdatesReceived.Add(1)

	msg := update.Message
	if msg == nil || msg.From == nil || msg.Chat == nil || msg.From.IsBot {
		return nil
	}
	command := telegram.ExtractCommand(msg)
	if command == "" {
		return nil
	}

	telegramID := msg.From.ID
	chatID := msg.Chat.ID
	log := b.logger.With(logger.TelegramID(telegramID), slog.String("command", command))

	if res := b.limiter.Check(telegramID); !res.Allowed {
		b.stats.RateLimited.Add(1)
		// Забаненным не отвечаем, чтобы не поддерживать флуд.
		if res.IsBanned {
			return nil
		}
		return b.deps.Sender.SendText(ctx, chatID, presenter.RateLimitedText)
	}

	cmdCtx := CommandContext{
		TelegramID: telegramID,
		ChatID:     chatID,
		Args:       commandArgs(msg.Text),
		Message:    msg,
	}

	start := time.Now()
	var reply string
	result, err := b.recovery.Run(telegramID, command, func() error {
		var herr error
		reply, herr = b.deps.Router.HandleCommand(ctx, command, cmdCtx)
		return herr
	})
	if result.Recovered {
		reply = result.UserMessage
		err = result.PanicInfo.Err
	}
	if b.deps.Observer != nil {
		label := command
		if !b.deps.Router.Has(command) {
			label = "unknown"
		}
		b.deps.Observer.BotCommand(label, time.Since(start), err)
	}

	if err != nil {
		b.stats.Errors.Add(1)
		log.Error("command failed", logger.Err(err))
		if reply == "" {
			reply = presenter.DefaultErrorText
		}
	} else {
		b.stats.CommandsHandled.Add(1)
		if b.config.Debug {
			log.Debug("command handled", logger.Latency(time.Since(start)))
		}
	}

	if reply == "" {
		return nil
	}
	return b.deps.Sender.SendText(ctx, chatID, reply)
}

// commandArgs returns the text after the first word.
func commandArgs(text string) string {
	_, rest, found := strings.Cut(strings.TrimSpace(text), " ")
	if !found {
		return ""
	}
	return strings.TrimSpace(rest)
}
