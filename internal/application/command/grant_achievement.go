package command

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alphawulf/alphawulf-hub/internal/domain/progress"
	"github.com/alphawulf/alphawulf-hub/internal/domain/shared"
	"github.com/alphawulf/alphawulf-hub/pkg/logger"
	"github.com/alphawulf/alphawulf-hub/pkg/retry"
	"github.com/alphawulf/alphawulf-hub/pkg/timeutil"
)

var (
	// ErrAchievementNotFound - в каталоге нет достижения с таким именем.
	ErrAchievementNotFound = shared.NewDomainError("achievement", "Grant", shared.ErrNotFound, "achievement not found")

	// ErrAchievementNotManual - автоматические достижения выдаются только по условию.
	ErrAchievementNotManual = shared.NewDomainError("achievement", "Grant", shared.ErrInvalidInput, "only manual achievements can be granted")
)

// GrantAchievementCommand grants a manual achievement by name.
type GrantAchievementCommand struct {
	AccountID string
	Name      string
}

// GrantAchievementResult reports the record after the grant.
type GrantAchievementResult struct {
	Record *progress.Record

	// Granted is false when the account already had the achievement.
	Granted bool
}

// GrantAchievementHandler выдаёт ручные достижения. Повторная выдача ничего не меняет.
type GrantAchievementHandler struct {
	records   progress.Repository
	catalog   progress.CatalogSource
	publisher shared.EventPublisher
	clock     timeutil.Clock
	retrier   retry.Policy
	observer  Observer
	logger    *slog.Logger
}

// NewGrantAchievementHandler creates a new GrantAchievementHandler.
// It shares the award handler's configuration shape.
func NewGrantAchievementHandler(records progress.Repository, catalog progress.CatalogSource, cfg AwardExperienceConfig) *GrantAchievementHandler {
	if cfg.Clock == nil {
		cfg.Clock = timeutil.SystemClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &GrantAchievementHandler{
		records:   records,
		catalog:   catalog,
		publisher: cfg.Publisher,
		clock:     cfg.Clock,
		retrier:   newLockRetrier(cfg.MaxAttempts),
		observer:  observerOrNop(cfg.Observer),
		logger:    cfg.Logger.With(logger.Component("grant_achievement")),
	}
}

// Handle grants the achievement.
func (h *GrantAchievementHandler) Handle(ctx context.Context, cmd GrantAchievementCommand) (*GrantAchievementResult, error) {
	if cmd.AccountID == "" {
		return nil, shared.NewDomainError("achievement", "Grant", shared.ErrInvalidID, "account id is required")
	}

	catalog, err := h.catalog.Current(ctx)
	if err != nil {
		return nil, fmt.Errorf("grant_achievement: catalog: %w", err)
	}
	def, ok := catalog.Lookup(cmd.Name)
	if !ok {
		return nil, ErrAchievementNotFound
	}
	if def.Kind != progress.KindManual {
		return nil, ErrAchievementNotManual
	}

	result := &GrantAchievementResult{}
	var unlocked progress.Unlocked
	err = h.retrier.Do(ctx, func(ctx context.Context) error {
		now := h.clock.Now()
		rec, err := progress.LoadOrCreate(ctx, h.records, cmd.AccountID, now)
		if err != nil {
			return err
		}

		u, granted := rec.Unlock(def, now)
		if !granted {
			result.Record, result.Granted = rec, false
			return nil
		}
		if err := h.records.Save(ctx, rec, rec.Version); err != nil {
			if isVersionConflict(err) {
				h.observer.VersionConflict("grant_achievement")
			}
			return err
		}
		result.Record, result.Granted = rec, true
		unlocked = u
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("grant_achievement: %w", err)
	}

	if result.Granted {
		h.logger.Info("achievement granted", logger.AccountID(cmd.AccountID), slog.String("achievement", def.Name))
		ev := shared.NewAchievementUnlockedEvent(cmd.AccountID, unlocked.Name, unlocked.Description, unlocked.Icon, unlocked.UnlockedAt)
		for _, err := range publishAll(h.publisher, []shared.Event{ev}) {
			h.logger.Warn("event publish failed", logger.Err(err))
		}
	}
	return result, nil
}
