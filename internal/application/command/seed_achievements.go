package command

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alphawulf/alphawulf-hub/internal/domain/progress"
	"github.com/alphawulf/alphawulf-hub/pkg/logger"
)

// SeedAchievementsCommand loads a catalog into the store.
type SeedAchievementsCommand struct {
	Catalog *progress.Catalog

	// Overwrite перезаписывает существующие описания. По умолчанию
	// настроенные вручную значения не трогаются.
	Overwrite bool
}

// SeedAchievementsResult counts what happened per definition.
type SeedAchievementsResult struct {
	Inserted int
	Updated  int
	Skipped  int
}

// SeedAchievementsHandler добавляет описания достижений по уникальному имени.
type SeedAchievementsHandler struct {
	repo   progress.CatalogRepository
	logger *slog.Logger
}

// NewSeedAchievementsHandler creates a new SeedAchievementsHandler.
func NewSeedAchievementsHandler(repo progress.CatalogRepository, log *slog.Logger) *SeedAchievementsHandler {
	if log == nil {
		log = slog.Default()
	}
	return &SeedAchievementsHandler{repo: repo, logger: log.With(logger.Component("seed_achievements"))}
}

// Handle seeds every definition in catalog order. Safe to run at every start.
func (h *SeedAchievementsHandler) Handle(ctx context.Context, cmd SeedAchievementsCommand) (*SeedAchievementsResult, error) {
	if cmd.Catalog == nil {
		return nil, fmt.Errorf("seed_achievements: %w", progress.ErrInvalidDefinition)
	}

	res := &SeedAchievementsResult{}
	for _, def := range cmd.Catalog.Definitions() {
		if cmd.Overwrite {
			if err := h.repo.Upsert(ctx, def); err != nil {
				return res, fmt.Errorf("seed_achievements: upsert %q: %w", def.Name, err)
			}
			res.Updated++
			continue
		}

		inserted, err := h.repo.InsertIfAbsent(ctx, def)
		if err != nil {
			return res, fmt.Errorf("seed_achievements: insert %q: %w", def.Name, err)
		}
		if inserted {
			res.Inserted++
		} else {
			res.Skipped++
		}
	}

	h.logger.Info("achievement catalog seeded",
		slog.Int("inserted", res.Inserted),
		slog.Int("updated", res.Updated),
		slog.Int("skipped", res.Skipped),
	)
	return res, nil
}
