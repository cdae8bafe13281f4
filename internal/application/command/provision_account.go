package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alphawulf/alphawulf-hub/internal/domain/account"
	"github.com/alphawulf/alphawulf-hub/internal/domain/progress"
	"github.com/alphawulf/alphawulf-hub/internal/domain/shared"
	"github.com/alphawulf/alphawulf-hub/pkg/logger"
	"github.com/alphawulf/alphawulf-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROVISION ACCOUNT COMMAND
// Находит или создаёт аккаунт по подтверждённой личности Telegram.
// Идемпотентна: повторный вход и одновременные первые входы дают один аккаунт.
// ══════════════════════════════════════════════════════════════════════════════

// ProvisionAccountResult is the outcome of a provisioning call.
type ProvisionAccountResult struct {
	Account *account.Account

	// Created is true only for the call that inserted the account.
	Created bool
}

// ProvisionAccountHandler handles first and repeated logins.
type ProvisionAccountHandler struct {
	accounts  account.Repository
	records   progress.Repository
	catalog   progress.CatalogSource
	publisher shared.EventPublisher
	clock     timeutil.Clock
	newID     func() string
	observer  Observer
	logger    *slog.Logger

	// welcomeAchievement is granted to every new account, if it exists in the catalog.
	welcomeAchievement string
}

// ProvisionAccountConfig wires optional collaborators.
type ProvisionAccountConfig struct {
	Publisher          shared.EventPublisher
	Clock              timeutil.Clock
	NewID              func() string
	Observer           Observer
	Logger             *slog.Logger
	WelcomeAchievement string
}

// NewProvisionAccountHandler creates a new ProvisionAccountHandler.
func NewProvisionAccountHandler(
	accounts account.Repository,
	records progress.Repository,
	catalog progress.CatalogSource,
	cfg ProvisionAccountConfig,
) *ProvisionAccountHandler {
	if cfg.Clock == nil {
		cfg.Clock = timeutil.SystemClock{}
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &ProvisionAccountHandler{
		accounts:           accounts,
		records:            records,
		catalog:            catalog,
		publisher:          cfg.Publisher,
		clock:              cfg.Clock,
		newID:              cfg.NewID,
		observer:           observerOrNop(cfg.Observer),
		logger:             cfg.Logger.With(logger.Component("provision_account")),
		welcomeAchievement: cfg.WelcomeAchievement,
	}
}

// Handle returns the account bound to identity, creating it on first sight.
func (h *ProvisionAccountHandler) Handle(ctx context.Context, identity account.Identity) (*ProvisionAccountResult, error) {
	if !identity.TelegramID.IsValid() {
		return nil, account.ErrInvalidTelegramID
	}

	existing, err := h.accounts.GetByTelegramID(ctx, identity.TelegramID)
	if err == nil {
		h.observer.AccountProvisioned(false)
		for _, err := range publishAll(h.publisher, h.ensureWelcome(ctx, existing.ID, h.clock.Now())) {
			h.logger.Warn("event publish failed", logger.Err(err))
		}
		return &ProvisionAccountResult{Account: existing}, nil
	}
	if !errors.Is(err, account.ErrAccountNotFound) {
		return nil, fmt.Errorf("provision_account: lookup: %w", err)
	}

	now := h.clock.Now()
	acc, err := account.NewAccount(h.newID(), identity, now)
	if err != nil {
		return nil, err
	}

	if err := h.accounts.Create(ctx, acc); err != nil {
		if !errors.Is(err, account.ErrAccountAlreadyExists) {
			return nil, fmt.Errorf("provision_account: create: %w", err)
		}
		// Параллельный первый вход успел раньше: возвращаем его аккаунт.
		h.observer.ProvisionRace()
		winner, err := h.accounts.GetByTelegramID(ctx, identity.TelegramID)
		if err != nil {
			return nil, fmt.Errorf("provision_account: reread after race: %w", err)
		}
		h.observer.AccountProvisioned(false)
		return &ProvisionAccountResult{Account: winner}, nil
	}

	events := []shared.Event{
		shared.NewAccountProvisionedEvent(acc.ID, int64(acc.TelegramID), acc.Username, now),
	}
	events = append(events, h.createRecord(ctx, acc.ID, now)...)

	h.observer.AccountProvisioned(true)
	h.logger.Info("account provisioned", logger.AccountID(acc.ID), logger.TelegramID(int64(acc.TelegramID)))

	for _, err := range publishAll(h.publisher, events) {
		h.logger.Warn("event publish failed", logger.Err(err))
	}
	return &ProvisionAccountResult{Account: acc, Created: true}, nil
}

// createRecord creates the default progress record with the welcome achievement.
// Failures are logged only: the record is created lazily on first read anyway.
func (h *ProvisionAccountHandler) createRecord(ctx context.Context, accountID string, now time.Time) []shared.Event {
	rec := progress.NewRecord(accountID, now)

	var events []shared.Event
	if def, ok := h.lookupWelcome(ctx); ok {
		if u, granted := rec.Unlock(def, now); granted {
			events = append(events, shared.NewAchievementUnlockedEvent(accountID, u.Name, u.Description, u.Icon, now))
		}
	}

	if err := h.records.Create(ctx, rec); err != nil {
		if !errors.Is(err, progress.ErrRecordAlreadyExists) {
			h.logger.Warn("progress record not created", logger.AccountID(accountID), logger.Err(err))
		}
		return nil
	}
	return events
}

// ensureWelcome repairs an account whose first login did not finish: the
// record is created if missing and the welcome achievement granted if absent.
// Failures are logged only; the next login tries again.
func (h *ProvisionAccountHandler) ensureWelcome(ctx context.Context, accountID string, now time.Time) []shared.Event {
	rec, err := h.records.Get(ctx, accountID)
	if errors.Is(err, progress.ErrRecordNotFound) {
		return h.createRecord(ctx, accountID, now)
	}
	if err != nil {
		h.logger.Warn("progress record lookup failed", logger.AccountID(accountID), logger.Err(err))
		return nil
	}
	if h.welcomeAchievement == "" || rec.HasAchievement(h.welcomeAchievement) {
		return nil
	}

	def, ok := h.lookupWelcome(ctx)
	if !ok {
		return nil
	}
	u, granted := rec.Unlock(def, now)
	if !granted {
		return nil
	}
	if err := h.records.Save(ctx, rec, rec.Version); err != nil {
		h.logger.Warn("welcome achievement not saved", logger.AccountID(accountID), logger.Err(err))
		return nil
	}
	return []shared.Event{shared.NewAchievementUnlockedEvent(accountID, u.Name, u.Description, u.Icon, now)}
}

func (h *ProvisionAccountHandler) lookupWelcome(ctx context.Context) (progress.Definition, bool) {
	if h.welcomeAchievement == "" || h.catalog == nil {
		return progress.Definition{}, false
	}
	catalog, err := h.catalog.Current(ctx)
	if err != nil {
		h.logger.Warn("catalog unavailable, welcome achievement skipped", logger.Err(err))
		return progress.Definition{}, false
	}
	return catalog.Lookup(h.welcomeAchievement)
}
