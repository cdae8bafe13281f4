// Package handler contains Telegram bot command handlers.
package handler

import (
	"context"
	"errors"
	"log/slog"

	"github.com/alphawulf/alphawulf-hub/internal/application/query"
	"github.com/alphawulf/alphawulf-hub/internal/domain/account"
	"github.com/alphawulf/alphawulf-hub/internal/interface/telegram/presenter"
	"github.com/alphawulf/alphawulf-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// COMMAND HANDLERS
// Бот только читает. Аккаунт ищется по Telegram ID отправителя, записи
// прогресса для неизвестных пользователей не создаются.
// ══════════════════════════════════════════════════════════════════════════════

// AccountFinder resolves the sender to an account.
type AccountFinder interface {
	GetByTelegramID(ctx context.Context, telegramID account.TelegramID) (*account.Account, error)
}

// ProgressLookup reads a stored progress record without creating one.
type ProgressLookup interface {
	Lookup(ctx context.Context, q query.GetProgressQuery) (*query.ProgressDTO, bool, error)
}

// Request is what every command handler receives.
type Request struct {
	TelegramID int64
	ChatID     int64
	Args       string
}

// Commands implements /start, /help, /progress, /achievements and /streak.
type Commands struct {
	accounts AccountFinder
	progress ProgressLookup
	logger   *slog.Logger
}

// NewCommands creates the command set.
func NewCommands(accounts AccountFinder, progress ProgressLookup, log *slog.Logger) *Commands {
	if log == nil {
		log = slog.Default()
	}
	return &Commands{
		accounts: accounts,
		progress: progress,
		logger:   log.With(logger.Component("bot_commands")),
	}
}

// Start отвечает приветствием. Аккаунт не требуется.
func (c *Commands) Start(_ context.Context, _ Request) (string, error) {
	return presenter.WelcomeText, nil
}

// Help отвечает справкой. Аккаунт не требуется.
func (c *Commands) Help(_ context.Context, _ Request) (string, error) {
	return presenter.HelpText, nil
}

// Progress shows level, experience, streak and achievement count.
func (c *Commands) Progress(ctx context.Context, req Request) (string, error) {
	p, reply := c.load(ctx, req, "progress")
	if reply != "" {
		return reply, nil
	}
	if p == nil {
		return presenter.ProgressUnavailableText, nil
	}
	return presenter.FormatProgress(p), nil
}

// Achievements lists unlocked achievements.
func (c *Commands) Achievements(ctx context.Context, req Request) (string, error) {
	p, reply := c.load(ctx, req, "achievements")
	if reply != "" {
		return reply, nil
	}
	if p == nil {
		return presenter.AchievementsUnavailableText, nil
	}
	text, ok := presenter.FormatAchievements(p)
	if !ok {
		return presenter.AchievementsUnavailableText, nil
	}
	return text, nil
}

// Streak shows the current streak and the last activity date.
func (c *Commands) Streak(ctx context.Context, req Request) (string, error) {
	p, reply := c.load(ctx, req, "streak")
	if reply != "" {
		return reply, nil
	}
	if p == nil {
		return presenter.StreakUnavailableText, nil
	}
	return presenter.FormatStreak(p), nil
}

// load resolves the sender and reads the record. A non-empty reply ends the
// command early; a nil record means "data unavailable".
func (c *Commands) load(ctx context.Context, req Request, command string) (*query.ProgressDTO, string) {
	acc, err := c.accounts.GetByTelegramID(ctx, account.TelegramID(req.TelegramID))
	if errors.Is(err, account.ErrAccountNotFound) {
		return nil, presenter.AccountNotLinkedText
	}
	if err != nil {
		c.logger.Warn("account lookup failed",
			slog.String("command", command),
			logger.TelegramID(req.TelegramID),
			logger.Err(err),
		)
		return nil, presenter.AccountNotLinkedText
	}

	p, found, err := c.progress.Lookup(ctx, query.GetProgressQuery{AccountID: acc.ID})
	if err != nil {
		c.logger.Warn("progress lookup failed",
			slog.String("command", command),
			logger.AccountID(acc.ID),
			logger.Err(err),
		)
		return nil, ""
	}
	if !found {
		return nil, ""
	}
	return p, ""
}
