package command

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alphawulf/alphawulf-hub/internal/domain/progress"
	"github.com/alphawulf/alphawulf-hub/internal/domain/shared"
	"github.com/alphawulf/alphawulf-hub/pkg/logger"
	"github.com/alphawulf/alphawulf-hub/pkg/retry"
	"github.com/alphawulf/alphawulf-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// AWARD EXPERIENCE COMMAND
// Начисляет опыт, переводит его в уровни, пересчитывает серию и
// разблокирует достижения. Всё сохраняется одной CAS-записью.
// ══════════════════════════════════════════════════════════════════════════════

// AwardExperienceCommand contains the data for an award.
type AwardExperienceCommand struct {
	AccountID string
	Amount    int64
}

// Validate validates the command before any store access.
func (c AwardExperienceCommand) Validate() error {
	if strings.TrimSpace(c.AccountID) == "" {
		return shared.NewDomainError("progress", "Award", shared.ErrInvalidID, "account id is required")
	}
	if c.Amount <= 0 || c.Amount > progress.MaxAwardAmount {
		return progress.ErrInvalidAmount
	}
	return nil
}

// AwardExperienceResult is the settled record plus what this award changed.
type AwardExperienceResult struct {
	Record  *progress.Record
	Outcome progress.AwardOutcome

	// Attempts - сколько циклов чтение-запись понадобилось.
	Attempts int
}

// AwardExperienceHandler handles experience awards.
type AwardExperienceHandler struct {
	records   progress.Repository
	catalog   progress.CatalogSource
	publisher shared.EventPublisher
	clock     timeutil.Clock
	retrier   retry.Policy
	observer  Observer
	logger    *slog.Logger
}

// AwardExperienceConfig wires optional collaborators.
type AwardExperienceConfig struct {
	Publisher   shared.EventPublisher
	Clock       timeutil.Clock
	MaxAttempts int
	Observer    Observer
	Logger      *slog.Logger
}

// NewAwardExperienceHandler creates a new AwardExperienceHandler.
func NewAwardExperienceHandler(records progress.Repository, catalog progress.CatalogSource, cfg AwardExperienceConfig) *AwardExperienceHandler {
	if cfg.Clock == nil {
		cfg.Clock = timeutil.SystemClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &AwardExperienceHandler{
		records:   records,
		catalog:   catalog,
		publisher: cfg.Publisher,
		clock:     cfg.Clock,
		retrier:   newLockRetrier(cfg.MaxAttempts),
		observer:  observerOrNop(cfg.Observer),
		logger:    cfg.Logger.With(logger.Component("award_experience")),
	}
}

// Handle applies the award. A lost version race reloads the record and
// re-applies the award on top of the winner's state.
func (h *AwardExperienceHandler) Handle(ctx context.Context, cmd AwardExperienceCommand) (*AwardExperienceResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	catalog, err := h.catalog.Current(ctx)
	if err != nil {
		return nil, fmt.Errorf("award_experience: catalog: %w", err)
	}

	result := &AwardExperienceResult{}
	err = h.retrier.Do(ctx, func(ctx context.Context) error {
		result.Attempts++

		now := h.clock.Now()
		rec, err := progress.LoadOrCreate(ctx, h.records, cmd.AccountID, now)
		if err != nil {
			return err
		}
		expected := rec.Version

		outcome, err := rec.AwardExperience(cmd.Amount, now)
		if err != nil {
			return retry.Permanent(err)
		}
		outcome.NewAchievements = rec.EvaluateAchievements(catalog, now)

		if err := h.records.Save(ctx, rec, expected); err != nil {
			if isVersionConflict(err) {
				h.observer.VersionConflict("award_experience")
			}
			return err
		}

		result.Record = rec
		result.Outcome = outcome
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("award_experience: %w", err)
	}

	h.observer.ExperienceAwarded(cmd.Amount, len(result.Outcome.LevelsCrossed), len(result.Outcome.NewAchievements))
	if result.Outcome.LeveledUp {
		h.logger.Info("level up",
			logger.AccountID(cmd.AccountID),
			slog.Int("from", result.Outcome.PreviousLevel),
			logger.Level(result.Record.Level),
		)
	}

	for _, err := range publishAll(h.publisher, awardEvents(result.Record, result.Outcome)) {
		h.logger.Warn("event publish failed", logger.AccountID(cmd.AccountID), logger.Err(err))
	}
	return result, nil
}

// awardEvents builds the events of a committed award in the order they happened.
func awardEvents(rec *progress.Record, o progress.AwardOutcome) []shared.Event {
	at := rec.UpdatedAt
	events := []shared.Event{
		shared.NewExperienceAwardedEvent(rec.AccountID, o.Amount, rec.Experience, rec.Level, rec.Streak, at),
	}
	for _, lvl := range o.LevelsCrossed {
		events = append(events, shared.NewLevelUpEvent(rec.AccountID, lvl-1, lvl, progress.TierName(lvl), at))
	}
	if o.StreakChanged(rec) {
		events = append(events, shared.NewStreakUpdatedEvent(rec.AccountID, o.PreviousStreak, rec.Streak, at))
	}
	for _, u := range o.NewAchievements {
		events = append(events, shared.NewAchievementUnlockedEvent(rec.AccountID, u.Name, u.Description, u.Icon, at))
	}
	return events
}
