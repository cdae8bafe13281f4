package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alphawulf/alphawulf-hub/internal/application/query"
	"github.com/alphawulf/alphawulf-hub/internal/domain/account"
	"github.com/alphawulf/alphawulf-hub/internal/domain/shared"
	"github.com/alphawulf/alphawulf-hub/internal/interface/telegram/presenter"
	"github.com/alphawulf/alphawulf-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS SYNC
// Отправляет сводку прогресса в чат владельца по запросу из Mini App.
// ══════════════════════════════════════════════════════════════════════════════

// AccountByID resolves the session account.
type AccountByID interface {
	GetByID(ctx context.Context, id string) (*account.Account, error)
}

// ProgressReader returns the record of an account, creating the default one.
type ProgressReader interface {
	Handle(ctx context.Context, q query.GetProgressQuery) (*query.ProgressDTO, error)
}

// ChatSender delivers a plain text message.
type ChatSender interface {
	SendText(ctx context.Context, chatID int64, text string) error
}

// ProgressSync implements the sync-telegram API call.
type ProgressSync struct {
	accounts AccountByID
	progress ProgressReader
	sender   ChatSender
	logger   *slog.Logger
}

// NewProgressSync creates a ProgressSync.
func NewProgressSync(accounts AccountByID, progress ProgressReader, sender ChatSender, log *slog.Logger) *ProgressSync {
	if log == nil {
		log = slog.Default()
	}
	return &ProgressSync{
		accounts: accounts,
		progress: progress,
		sender:   sender,
		logger:   log.With(logger.Component("progress_sync")),
	}
}

// Sync sends the /progress summary to the account's chat. delivered is false
// when the user blocked the bot or never started it.
func (s *ProgressSync) Sync(ctx context.Context, accountID string) (bool, error) {
	acc, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return false, err
	}
	p, err := s.progress.Handle(ctx, query.GetProgressQuery{AccountID: acc.ID})
	if err != nil {
		return false, err
	}

	if err := s.sender.SendText(ctx, int64(acc.TelegramID), presenter.FormatProgress(p)); err != nil {
		var b interface{ IsBlocked() bool }
		if errors.As(err, &b) && b.IsBlocked() {
			s.logger.Info("progress sync skipped: chat unavailable", logger.AccountID(acc.ID))
			return false, nil
		}
		return false, shared.WrapError("telegram", "SendText", shared.ErrServiceUnavailable,
			"telegram delivery failed", fmt.Errorf("sync %s: %w", acc.ID, err))
	}
	return true, nil
}
