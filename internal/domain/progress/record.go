// Package progress содержит движок прогрессии: опыт, уровни, серии и достижения.
// Правила чистые: время передаётся явно, хранилище доступно только через Repository.
package progress

import (
	"time"

	"github.com/alphawulf/alphawulf-hub/internal/domain/shared"
	"github.com/alphawulf/alphawulf-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// DEFAULTS
// ══════════════════════════════════════════════════════════════════════════════

const (
	// DefaultLevel - стартовый уровень.
	DefaultLevel = 1

	// DefaultThreshold - опыт, необходимый для перехода с первого уровня.
	DefaultThreshold int64 = 100

	// MaxAwardAmount ограничивает одно начисление, чтобы порог и опыт
	// не переполняли int64 в цикле расчёта уровней.
	MaxAwardAmount int64 = 1_000_000
)

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrRecordNotFound - запись прогресса не найдена.
	ErrRecordNotFound = shared.NewDomainError("progress", "Find", shared.ErrNotFound, "progress record not found")

	// ErrRecordAlreadyExists - запись прогресса уже создана (гонка ленивого создания).
	ErrRecordAlreadyExists = shared.NewDomainError("progress", "Create", shared.ErrAlreadyExists, "progress record already exists")

	// ErrInvalidAmount - начисление должно быть положительным и не больше MaxAwardAmount.
	ErrInvalidAmount = shared.NewDomainError("progress", "Award", shared.ErrInvalidInput, "experience amount must be a positive integer")

	// ErrVersionConflict - запись изменена другим писателем между чтением и записью.
	ErrVersionConflict = shared.NewDomainError("progress", "Save", shared.ErrConcurrentModification, "progress record was modified concurrently")
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN ENTITY: RECORD
// ══════════════════════════════════════════════════════════════════════════════

// Record - прогресс одного аккаунта (один к одному).
// Инвариант: запись всегда "урегулирована", Experience < Threshold.
type Record struct {
	// AccountID - владелец записи.
	AccountID string `json:"accountId"`

	// Level - текущий уровень, начиная с 1. Растёт только в settle.
	Level int `json:"level"`

	// Experience - опыт внутри текущего уровня.
	Experience int64 `json:"experience"`

	// Threshold - опыт, необходимый для следующего уровня.
	Threshold int64 `json:"experienceToNextLevel"`

	// Streak - количество подряд идущих дней с начислениями.
	Streak int `json:"streak"`

	// LastStreakUpdate - момент последнего пересчёта серии.
	LastStreakUpdate time.Time `json:"lastStreakUpdate"`

	// LastActiveAt - момент последнего начисления.
	LastActiveAt time.Time `json:"lastActiveAt"`

	// Achievements - разблокированные достижения в порядке получения.
	Achievements []Unlocked `json:"achievements"`

	// Version - версия для оптимистичной блокировки.
	Version int64 `json:"version"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewRecord создаёт запись прогресса со значениями по умолчанию.
func NewRecord(accountID string, now time.Time) *Record {
	now = now.UTC()
	return &Record{
		AccountID:        accountID,
		Level:            DefaultLevel,
		Experience:       0,
		Threshold:        DefaultThreshold,
		Streak:           0,
		LastStreakUpdate: now,
		LastActiveAt:     now,
		Achievements:     []Unlocked{},
		Version:          1,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// Tier returns the presentational tier name of the current level.
func (r *Record) Tier() string {
	return TierName(r.Level)
}

// Clone создаёт глубокую копию записи.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	c.Achievements = make([]Unlocked, len(r.Achievements))
	copy(c.Achievements, r.Achievements)
	return &c
}

// ══════════════════════════════════════════════════════════════════════════════
// AWARD & SETTLE
// ══════════════════════════════════════════════════════════════════════════════

// AwardOutcome describes what a single award changed.
type AwardOutcome struct {
	// Amount - начисленный опыт.
	Amount int64 `json:"amount"`

	// PreviousLevel - уровень до начисления.
	PreviousLevel int `json:"previousLevel"`

	// LevelsCrossed - уровни, достигнутые этим начислением, по возрастанию.
	LevelsCrossed []int `json:"levelsCrossed"`

	// LeveledUp - было ли хотя бы одно повышение.
	LeveledUp bool `json:"leveledUp"`

	// PreviousStreak - серия до пересчёта.
	PreviousStreak int `json:"previousStreak"`

	// NewAchievements - достижения, разблокированные этим начислением.
	NewAchievements []Unlocked `json:"newAchievements"`
}

// StreakChanged reports whether the award moved the streak counter.
func (o AwardOutcome) StreakChanged(r *Record) bool {
	return r.Streak != o.PreviousStreak
}

// AwardExperience начисляет опыт, проводит settle и пересчитывает серию.
// При amount <= 0 запись не меняется.
func (r *Record) AwardExperience(amount int64, now time.Time) (AwardOutcome, error) {
	if amount <= 0 || amount > MaxAwardAmount {
		return AwardOutcome{}, ErrInvalidAmount
	}

	now = now.UTC()
	outcome := AwardOutcome{
		Amount:         amount,
		PreviousLevel:  r.Level,
		PreviousStreak: r.Streak,
		LevelsCrossed:  []int{},
	}

	r.Experience += amount
	outcome.LevelsCrossed = r.settle()
	outcome.LeveledUp = len(outcome.LevelsCrossed) > 0

	r.UpdateStreak(now)
	r.LastActiveAt = now
	r.UpdatedAt = now

	return outcome, nil
}

// settle переводит накопленный опыт в уровни, пока опыт не станет меньше порога.
// Новый порог = floor(старый × 1.5), считается от предыдущего целого порога.
func (r *Record) settle() []int {
	if r.Threshold <= 0 {
		r.Threshold = DefaultThreshold
	}

	var crossed []int
	for r.Experience >= r.Threshold {
		r.Experience -= r.Threshold
		r.Level++
		r.Threshold = NextThreshold(r.Threshold)
		crossed = append(crossed, r.Level)
	}
	if crossed == nil {
		crossed = []int{}
	}
	return crossed
}

// NextThreshold returns floor(threshold * 1.5) in exact integer arithmetic.
func NextThreshold(threshold int64) int64 {
	return threshold * 3 / 2
}

// ══════════════════════════════════════════════════════════════════════════════
// STREAK
// ══════════════════════════════════════════════════════════════════════════════

// UpdateStreak пересчитывает серию по числу полных суток с прошлого пересчёта.
//
//	1 день  → серия +1
//	>1 дня  → серия сбрасывается в 1
//	0 дней  → без изменений
//
// LastStreakUpdate всегда сдвигается на now.
func (r *Record) UpdateStreak(now time.Time) {
	switch days := timeutil.ElapsedDays(r.LastStreakUpdate, now); {
	case days == 1:
		r.Streak++
	case days > 1:
		r.Streak = 1
	}
	r.LastStreakUpdate = now.UTC()
}

// Stat returns the value of the statistic an achievement kind is measured against.
func (r *Record) Stat(kind Kind) int64 {
	switch kind {
	case KindLevel:
		return int64(r.Level)
	case KindStreak:
		return int64(r.Streak)
	case KindExperience:
		return r.Experience
	default:
		return 0
	}
}
