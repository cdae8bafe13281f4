// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alphawulf/alphawulf-hub/internal/domain/progress"
	"github.com/alphawulf/alphawulf-hub/internal/domain/shared"
	"github.com/alphawulf/alphawulf-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET PROGRESS QUERY
// Возвращает урегулированную запись прогресса. При первом обращении запись
// создаётся со значениями по умолчанию.
// ══════════════════════════════════════════════════════════════════════════════

// GetProgressQuery содержит параметры запроса.
type GetProgressQuery struct {
	AccountID string
}

// Validate проверяет корректность параметров запроса.
func (q GetProgressQuery) Validate() error {
	if strings.TrimSpace(q.AccountID) == "" {
		return shared.NewDomainError("progress", "Get", shared.ErrInvalidID, "account id is required")
	}
	return nil
}

// ProgressDTO - DTO прогресса для HTTP и бота.
type ProgressDTO struct {
	// ─────────────────────────────────────────────────────────────────────────
	// Уровень
	// ─────────────────────────────────────────────────────────────────────────

	AccountID string `json:"accountId"`
	Level     int    `json:"level"`

	// Tier - название ступени для отображения ("Beta Wolf").
	Tier string `json:"tier"`

	Experience int64 `json:"experience"`
	Threshold  int64 `json:"threshold"`

	// LevelProgress - доля пройденного уровня (0.0 - 1.0).
	LevelProgress float64 `json:"levelProgress"`

	// ─────────────────────────────────────────────────────────────────────────
	// Активность
	// ─────────────────────────────────────────────────────────────────────────

	Streak           int       `json:"streak"`
	LastStreakUpdate time.Time `json:"lastStreakUpdate"`
	LastActiveAt     time.Time `json:"lastActiveAt"`

	// ─────────────────────────────────────────────────────────────────────────
	// Достижения
	// ─────────────────────────────────────────────────────────────────────────

	Achievements []progress.Unlocked `json:"achievements"`

	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewProgressDTO builds the view of a settled record.
func NewProgressDTO(rec *progress.Record) *ProgressDTO {
	achievements := rec.Achievements
	if achievements == nil {
		achievements = []progress.Unlocked{}
	}
	var ratio float64
	if rec.Threshold > 0 {
		ratio = float64(rec.Experience) / float64(rec.Threshold)
	}
	return &ProgressDTO{
		AccountID:        rec.AccountID,
		Level:            rec.Level,
		Tier:             rec.Tier(),
		Experience:       rec.Experience,
		Threshold:        rec.Threshold,
		LevelProgress:    ratio,
		Streak:           rec.Streak,
		LastStreakUpdate: rec.LastStreakUpdate,
		LastActiveAt:     rec.LastActiveAt,
		Achievements:     achievements,
		Version:          rec.Version,
		UpdatedAt:        rec.UpdatedAt,
	}
}

// GetProgressHandler обрабатывает запрос прогресса.
type GetProgressHandler struct {
	records progress.Repository
	clock   timeutil.Clock
}

// NewGetProgressHandler создаёт новый обработчик.
func NewGetProgressHandler(records progress.Repository, clock timeutil.Clock) *GetProgressHandler {
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	return &GetProgressHandler{records: records, clock: clock}
}

// Handle выполняет запрос.
func (h *GetProgressHandler) Handle(ctx context.Context, q GetProgressQuery) (*ProgressDTO, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	rec, err := progress.LoadOrCreate(ctx, h.records, q.AccountID, h.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("get_progress: %w", err)
	}
	return NewProgressDTO(rec), nil
}

// Lookup returns the stored record without creating one. Used by the bot,
// which must not create records for unknown users.
func (h *GetProgressHandler) Lookup(ctx context.Context, q GetProgressQuery) (*ProgressDTO, bool, error) {
	if err := q.Validate(); err != nil {
		return nil, false, err
	}
	rec, err := h.records.Get(ctx, q.AccountID)
	if errors.Is(err, progress.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get_progress: %w", err)
	}
	return NewProgressDTO(rec), true, nil
}
