package progress

import (
	"fmt"
	"strings"
	"time"

	"github.com/alphawulf/alphawulf-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENTS (Достижения)
// ══════════════════════════════════════════════════════════════════════════════

// Kind - тип условия достижения. Каждый тип сравнивает ровно одну характеристику.
type Kind string

const (
	// KindLevel - уровень >= требования.
	KindLevel Kind = "level"
	// KindStreak - серия >= требования.
	KindStreak Kind = "streak"
	// KindExperience - опыт >= требования.
	KindExperience Kind = "experience"
	// KindManual - выдаётся только явно (например, за привязку Telegram).
	KindManual Kind = "manual"
)

// ParseKind parses a kind name. "custom" is accepted as an alias of manual.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindLevel:
		return KindLevel, nil
	case KindStreak:
		return KindStreak, nil
	case KindExperience:
		return KindExperience, nil
	case KindManual, "custom":
		return KindManual, nil
	default:
		return "", fmt.Errorf("unknown achievement kind %q", s)
	}
}

// IsAutomatic reports whether the engine unlocks this kind on its own.
func (k Kind) IsAutomatic() bool {
	return k == KindLevel || k == KindStreak || k == KindExperience
}

// Rarity - редкость достижения, только для отображения.
type Rarity string

const (
	RarityCommon    Rarity = "common"
	RarityUncommon  Rarity = "uncommon"
	RarityRare      Rarity = "rare"
	RarityEpic      Rarity = "epic"
	RarityLegendary Rarity = "legendary"
)

// IsValid проверяет, что редкость из допустимого набора.
func (r Rarity) IsValid() bool {
	switch r {
	case RarityCommon, RarityUncommon, RarityRare, RarityEpic, RarityLegendary:
		return true
	default:
		return false
	}
}

// Definition - неизменяемое описание достижения из каталога.
type Definition struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
	Kind        Kind   `json:"kind" yaml:"kind"`
	Requirement int64  `json:"requirement" yaml:"requirement"`
	Reward      int64  `json:"reward" yaml:"reward"`
	Icon        string `json:"icon" yaml:"icon"`
	Rarity      Rarity `json:"rarity" yaml:"rarity"`
}

// ErrInvalidDefinition - описание достижения не проходит валидацию.
var ErrInvalidDefinition = shared.NewDomainError("achievement", "Validate", shared.ErrValidation, "invalid achievement definition")

// Validate проверяет описание достижения.
func (d Definition) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return shared.WrapError("achievement", "Validate", shared.ErrEmptyValue, "name is required", ErrInvalidDefinition)
	}
	if _, err := ParseKind(string(d.Kind)); err != nil {
		return shared.WrapError("achievement", "Validate", shared.ErrInvalidInput, err.Error(), ErrInvalidDefinition)
	}
	if d.Requirement < 0 || d.Reward < 0 {
		return shared.WrapError("achievement", "Validate", shared.ErrNegativeValue, d.Name+": requirement and reward must be non-negative", ErrInvalidDefinition)
	}
	if d.Rarity != "" && !d.Rarity.IsValid() {
		return shared.WrapError("achievement", "Validate", shared.ErrInvalidInput, d.Name+": unknown rarity "+string(d.Rarity), ErrInvalidDefinition)
	}
	return nil
}

// Normalized trims the name, resolves kind aliases and defaults the rarity.
func (d Definition) Normalized() Definition {
	d.Name = strings.TrimSpace(d.Name)
	if kind, err := ParseKind(string(d.Kind)); err == nil {
		d.Kind = kind
	}
	if d.Rarity == "" {
		d.Rarity = RarityCommon
	}
	return d
}

// IsSatisfiedBy reports whether the record meets the definition's requirement.
// Manual definitions are never satisfied automatically.
func (d Definition) IsSatisfiedBy(r *Record) bool {
	if !d.Kind.IsAutomatic() {
		return false
	}
	return r.Stat(d.Kind) >= d.Requirement
}

// Unlocked - разблокированное достижение внутри записи прогресса.
type Unlocked struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Icon        string    `json:"icon,omitempty"`
	UnlockedAt  time.Time `json:"unlockedAt"`
}

// HasAchievement проверяет, разблокировано ли достижение с таким именем.
func (r *Record) HasAchievement(name string) bool {
	for _, a := range r.Achievements {
		if a.Name == name {
			return true
		}
	}
	return false
}

// EvaluateAchievements разблокирует все достижения каталога, условия которых
// выполнены и которые ещё не получены. Возвращает новые разблокировки в порядке каталога.
// Разблокировка монотонна: уже полученное достижение не отзывается.
func (r *Record) EvaluateAchievements(catalog *Catalog, now time.Time) []Unlocked {
	if catalog == nil {
		return nil
	}

	existing := make(map[string]bool, len(r.Achievements))
	for _, a := range r.Achievements {
		existing[a.Name] = true
	}

	var unlocked []Unlocked
	for _, def := range catalog.Definitions() {
		if existing[def.Name] || !def.IsSatisfiedBy(r) {
			continue
		}
		u := Unlocked{
			Name:        def.Name,
			Description: def.Description,
			Icon:        def.Icon,
			UnlockedAt:  now.UTC(),
		}
		r.Achievements = append(r.Achievements, u)
		existing[def.Name] = true
		unlocked = append(unlocked, u)
	}
	return unlocked
}

// Unlock выдаёт достижение явно. Возвращает false, если оно уже было.
func (r *Record) Unlock(def Definition, now time.Time) (Unlocked, bool) {
	if r.HasAchievement(def.Name) {
		return Unlocked{}, false
	}
	u := Unlocked{
		Name:        def.Name,
		Description: def.Description,
		Icon:        def.Icon,
		UnlockedAt:  now.UTC(),
	}
	r.Achievements = append(r.Achievements, u)
	r.UpdatedAt = now.UTC()
	return u, true
}
