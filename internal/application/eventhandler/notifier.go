// Package eventhandler содержит обработчики доменных событий.
// Обработчики реагируют на уже сохранённые изменения и запускают
// побочные эффекты, такие как уведомления в Telegram.
package eventhandler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alphawulf/alphawulf-hub/internal/domain/account"
	"github.com/alphawulf/alphawulf-hub/internal/domain/shared"
	"github.com/alphawulf/alphawulf-hub/pkg/logger"
)

// ═══════════════════════════════════════════════════════════════════════════
// PROGRESS NOTIFIER
// Отправляет владельцу аккаунта сообщения о новом уровне и новых достижениях.
// Ошибка доставки не откатывает начисление: оно уже сохранено.
// ═══════════════════════════════════════════════════════════════════════════

// TextSender delivers a plain text message to a Telegram chat.
type TextSender interface {
	SendText(ctx context.Context, chatID int64, text string) error
}

// AccountLookup resolves the chat of an account.
type AccountLookup interface {
	GetByID(ctx context.Context, id string) (*account.Account, error)
}

// DefaultSendTimeout bounds a single notification delivery.
const DefaultSendTimeout = 10 * time.Second

// ProgressNotifier обрабатывает события LevelUp и AchievementUnlocked.
type ProgressNotifier struct {
	accounts AccountLookup
	sender   TextSender
	timeout  time.Duration
	logger   *slog.Logger
}

// NewProgressNotifier создаёт новый обработчик уведомлений.
func NewProgressNotifier(accounts AccountLookup, sender TextSender, log *slog.Logger) *ProgressNotifier {
	if log == nil {
		log = slog.Default()
	}
	return &ProgressNotifier{
		accounts: accounts,
		sender:   sender,
		timeout:  DefaultSendTimeout,
		logger:   log.With(logger.Component("progress_notifier")),
	}
}

// Register subscribes the notifier to the events it handles.
func (n *ProgressNotifier) Register(bus shared.EventSubscriber) error {
	if err := bus.Subscribe(shared.EventLevelUp, n.Handle); err != nil {
		return err
	}
	return bus.Subscribe(shared.EventAchievementUnlocked, n.Handle)
}

// Handle реализует shared.EventHandler.
func (n *ProgressNotifier) Handle(event shared.Event) error {
	text, ok := NotificationText(event)
	if !ok {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
	defer cancel()

	acc, err := n.accounts.GetByID(ctx, event.AggregateID())
	if err != nil {
		if errors.Is(err, account.ErrAccountNotFound) {
			n.logger.Warn("notification skipped: account not found", logger.AccountID(event.AggregateID()))
			return nil
		}
		return fmt.Errorf("notifier: lookup account: %w", err)
	}

	if err := n.sender.SendText(ctx, int64(acc.TelegramID), text); err != nil {
		if isBlocked(err) {
			n.logger.Info("notification skipped: chat unavailable", logger.AccountID(acc.ID))
			return nil
		}
		return fmt.Errorf("notifier: send %s: %w", event.EventType(), err)
	}
	n.logger.Debug("notification sent", logger.AccountID(acc.ID), slog.String("event_type", string(event.EventType())))
	return nil
}

// NotificationText renders the message for an event. Payload values may be
// typed ints (local bus) or float64 (events decoded from Redis).
func NotificationText(event shared.Event) (string, bool) {
	p := event.Payload()
	switch event.EventType() {
	case shared.EventLevelUp:
		level, ok := intValue(p["new_level"])
		if !ok {
			return "", false
		}
		return fmt.Sprintf("🎉 Level Up!\nYou've reached level %d!\nKeep up the great work!", level), true

	case shared.EventAchievementUnlocked:
		name, _ := p["name"].(string)
		if name == "" {
			return "", false
		}
		icon, _ := p["icon"].(string)
		if icon == "" {
			icon = "🏅"
		}
		description, _ := p["description"].(string)
		return fmt.Sprintf("🏆 Achievement Unlocked!\n%s %s\n%s", icon, name, description), true
	}
	return "", false
}

func intValue(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

// isBlocked matches sender errors that mean the user blocked the bot or
// never opened a chat with it. Retrying those is pointless.
func isBlocked(err error) bool {
	var b interface{ IsBlocked() bool }
	return errors.As(err, &b) && b.IsBlocked()
}
