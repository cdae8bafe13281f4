package shared

import (
	"encoding/json"
	"time"
)

type EventType string

const (
	EventAccountProvisioned  EventType = "account.provisioned"
	EventExperienceAwarded   EventType = "progress.experience_awarded"
	EventLevelUp             EventType = "progress.level_up"
	EventStreakUpdated       EventType = "progress.streak_updated"
	EventAchievementUnlocked EventType = "progress.achievement_unlocked"
)

// Event is something that happened to one account. Events are published
// only after the change is committed.
type Event interface {
	EventType() EventType
	OccurredAt() time.Time
	AggregateID() string // account ID
	// Payload is the JSON view of the event body. Numbers are float64,
	// the same shape an event decoded from another instance has.
	Payload() map[string]any
}

// Meta is embedded in every concrete event and carries the Event header.
type Meta struct {
	Type      EventType `json:"-"`
	AccountID string    `json:"-"`
	At        time.Time `json:"-"`
}

func (m Meta) EventType() EventType  { return m.Type }
func (m Meta) OccurredAt() time.Time { return m.At }
func (m Meta) AggregateID() string   { return m.AccountID }

func payloadOf(body any) map[string]any {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil
	}
	var out map[string]any
	if json.Unmarshal(raw, &out) != nil {
		return nil
	}
	return out
}

// ── account ────────────────────────────────────────────────────────────────

// AccountProvisionedEvent: first login of a Telegram user created the account.
type AccountProvisionedEvent struct {
	Meta
	TelegramID int64  `json:"telegram_id"`
	Username   string `json:"username"`
}

func (e AccountProvisionedEvent) Payload() map[string]any { return payloadOf(e) }

func NewAccountProvisionedEvent(accountID string, telegramID int64, username string, at time.Time) AccountProvisionedEvent {
	return AccountProvisionedEvent{
		Meta:       Meta{Type: EventAccountProvisioned, AccountID: accountID, At: at},
		TelegramID: telegramID,
		Username:   username,
	}
}

// ── progress ───────────────────────────────────────────────────────────────

type ExperienceAwardedEvent struct {
	Meta
	Amount     int64 `json:"amount"`
	Experience int64 `json:"experience"`
	Level      int   `json:"level"`
	Streak     int   `json:"streak"`
}

func (e ExperienceAwardedEvent) Payload() map[string]any { return payloadOf(e) }

func NewExperienceAwardedEvent(accountID string, amount, experience int64, level, streak int, at time.Time) ExperienceAwardedEvent {
	return ExperienceAwardedEvent{
		Meta:       Meta{Type: EventExperienceAwarded, AccountID: accountID, At: at},
		Amount:     amount,
		Experience: experience,
		Level:      level,
		Streak:     streak,
	}
}

// LevelUpEvent: one per award that crossed at least one level.
type LevelUpEvent struct {
	Meta
	OldLevel int    `json:"old_level"`
	NewLevel int    `json:"new_level"`
	Tier     string `json:"tier"`
}

func (e LevelUpEvent) Payload() map[string]any { return payloadOf(e) }

func NewLevelUpEvent(accountID string, oldLevel, newLevel int, tier string, at time.Time) LevelUpEvent {
	return LevelUpEvent{
		Meta:     Meta{Type: EventLevelUp, AccountID: accountID, At: at},
		OldLevel: oldLevel,
		NewLevel: newLevel,
		Tier:     tier,
	}
}

type StreakUpdatedEvent struct {
	Meta
	PreviousStreak int  `json:"previous_streak"`
	Streak         int  `json:"streak"`
	Broken         bool `json:"broken"`
}

func (e StreakUpdatedEvent) Payload() map[string]any { return payloadOf(e) }

func NewStreakUpdatedEvent(accountID string, previous, current int, at time.Time) StreakUpdatedEvent {
	return StreakUpdatedEvent{
		Meta:           Meta{Type: EventStreakUpdated, AccountID: accountID, At: at},
		PreviousStreak: previous,
		Streak:         current,
		Broken:         current < previous,
	}
}

type AchievementUnlockedEvent struct {
	Meta
	Name        string `json:"name"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

func (e AchievementUnlockedEvent) Payload() map[string]any { return payloadOf(e) }

func NewAchievementUnlockedEvent(accountID, name, description, icon string, at time.Time) AchievementUnlockedEvent {
	return AchievementUnlockedEvent{
		Meta:        Meta{Type: EventAchievementUnlocked, AccountID: accountID, At: at},
		Name:        name,
		Description: description,
		Icon:        icon,
	}
}

// ── bus ────────────────────────────────────────────────────────────────────

type EventHandler func(event Event) error

type EventPublisher interface {
	Publish(event Event) error
}

type EventSubscriber interface {
	Subscribe(eventType EventType, handler EventHandler) error
}

type EventBus interface {
	EventPublisher
	EventSubscriber
}
