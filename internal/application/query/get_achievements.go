package query

import (
	"context"
	"fmt"
	"time"

	"github.com/alphawulf/alphawulf-hub/internal/domain/progress"
	"github.com/alphawulf/alphawulf-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET ACHIEVEMENTS QUERY
// Разблокированные достижения аккаунта и весь каталог с отметками.
// ══════════════════════════════════════════════════════════════════════════════

// GetAchievementsQuery содержит параметры запроса.
type GetAchievementsQuery struct {
	AccountID string
}

// AchievementDTO - достижение каталога с отметкой для конкретного аккаунта.
type AchievementDTO struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Kind        string `json:"kind"`
	Requirement int64  `json:"requirement"`
	Reward      int64  `json:"reward"`
	Icon        string `json:"icon"`
	Rarity      string `json:"rarity"`

	Unlocked   bool       `json:"unlocked"`
	UnlockedAt *time.Time `json:"unlockedAt,omitempty"`
}

// AchievementsDTO - ответ запроса достижений.
type AchievementsDTO struct {
	// Unlocked - полученные достижения в порядке получения.
	Unlocked []progress.Unlocked `json:"unlocked"`

	// Catalog - все описания в порядке каталога.
	Catalog []AchievementDTO `json:"catalog"`
}

// GetAchievementsHandler обрабатывает запрос достижений.
type GetAchievementsHandler struct {
	records progress.Repository
	catalog progress.CatalogSource
	clock   timeutil.Clock
}

// NewGetAchievementsHandler создаёт новый обработчик.
func NewGetAchievementsHandler(records progress.Repository, catalog progress.CatalogSource, clock timeutil.Clock) *GetAchievementsHandler {
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	return &GetAchievementsHandler{records: records, catalog: catalog, clock: clock}
}

// Handle выполняет запрос.
func (h *GetAchievementsHandler) Handle(ctx context.Context, q GetAchievementsQuery) (*AchievementsDTO, error) {
	if err := (GetProgressQuery{AccountID: q.AccountID}).Validate(); err != nil {
		return nil, err
	}

	rec, err := progress.LoadOrCreate(ctx, h.records, q.AccountID, h.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("get_achievements: %w", err)
	}
	catalog, err := h.catalog.Current(ctx)
	if err != nil {
		return nil, fmt.Errorf("get_achievements: catalog: %w", err)
	}

	unlocked := rec.Achievements
	if unlocked == nil {
		unlocked = []progress.Unlocked{}
	}
	return &AchievementsDTO{
		Unlocked: unlocked,
		Catalog:  catalogView(catalog, unlocked),
	}, nil
}

// Catalog returns the catalog with no account-specific flags.
func (h *GetAchievementsHandler) Catalog(ctx context.Context) ([]AchievementDTO, error) {
	catalog, err := h.catalog.Current(ctx)
	if err != nil {
		return nil, fmt.Errorf("get_achievements: catalog: %w", err)
	}
	return catalogView(catalog, nil), nil
}

func catalogView(catalog *progress.Catalog, unlocked []progress.Unlocked) []AchievementDTO {
	at := make(map[string]time.Time, len(unlocked))
	for _, u := range unlocked {
		at[u.Name] = u.UnlockedAt
	}

	defs := catalog.Definitions()
	out := make([]AchievementDTO, 0, len(defs))
	for _, d := range defs {
		dto := AchievementDTO{
			Name:        d.Name,
			Description: d.Description,
			Kind:        string(d.Kind),
			Requirement: d.Requirement,
			Reward:      d.Reward,
			Icon:        d.Icon,
			Rarity:      string(d.Rarity),
		}
		if t, ok := at[d.Name]; ok {
			t := t
			dto.Unlocked = true
			dto.UnlockedAt = &t
		}
		out = append(out, dto)
	}
	return out
}
