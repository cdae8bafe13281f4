package account

import (
	"strings"
	"time"

	"github.com/alphawulf/alphawulf-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// TelegramID представляет уникальный идентификатор пользователя Telegram.
type TelegramID int64

// IsValid проверяет, что TelegramID положительный.
func (t TelegramID) IsValid() bool {
	return t > 0
}

// Identity - личность пользователя, подтверждённая подписью initData.
// Живёт только в рамках одного запроса и не перезаписывает поля аккаунта.
type Identity struct {
	TelegramID TelegramID `json:"id"`
	Username   string     `json:"username,omitempty"`
	FirstName  string     `json:"first_name,omitempty"`
	LastName   string     `json:"last_name,omitempty"`
}

// DisplayName returns the best human-readable name for the identity.
func (i Identity) DisplayName() string {
	name := strings.TrimSpace(strings.TrimSpace(i.FirstName) + " " + strings.TrimSpace(i.LastName))
	if name != "" {
		return name
	}
	if i.Username != "" {
		return "@" + i.Username
	}
	return "wolf"
}

// ══════════════════════════════════════════════════════════════════════════════
// MAIN ENTITY: ACCOUNT
// ══════════════════════════════════════════════════════════════════════════════

// Account - внутренний аккаунт пользователя, привязанный к Telegram.
type Account struct {
	// ID - внутренний непрозрачный идентификатор (UUID в строковом формате).
	ID string `json:"id"`

	// TelegramID - идентификатор пользователя в Telegram, уникален и неизменяем.
	TelegramID TelegramID `json:"telegramId"`

	// Username - имя пользователя в Telegram (может быть пустым).
	Username string `json:"username,omitempty"`

	// FirstName и LastName - отображаемое имя на момент первого входа.
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`

	// Balance - игровой баланс. Ядро только инициализирует его нулём.
	Balance int64 `json:"balance"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrAccountNotFound - аккаунт не найден.
	ErrAccountNotFound = shared.NewDomainError("account", "Find", shared.ErrNotFound, "account not found")

	// ErrAccountAlreadyExists - аккаунт с таким Telegram ID уже создан.
	ErrAccountAlreadyExists = shared.NewDomainError("account", "Create", shared.ErrAlreadyExists, "account already exists")

	// ErrInvalidTelegramID - невалидный Telegram ID.
	ErrInvalidTelegramID = shared.NewDomainError("account", "Validate", shared.ErrInvalidID, "invalid telegram id: must be positive")

	// ErrInvalidAccountID - пустой внутренний идентификатор.
	ErrInvalidAccountID = shared.NewDomainError("account", "Validate", shared.ErrInvalidID, "account id is required")
)

// ══════════════════════════════════════════════════════════════════════════════
// FACTORY
// ══════════════════════════════════════════════════════════════════════════════

// NewAccount создаёт новый аккаунт из подтверждённой личности.
// Баланс всегда начинается с нуля.
func NewAccount(id string, identity Identity, now time.Time) (*Account, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ErrInvalidAccountID
	}
	if !identity.TelegramID.IsValid() {
		return nil, ErrInvalidTelegramID
	}

	now = now.UTC()
	return &Account{
		ID:         id,
		TelegramID: identity.TelegramID,
		Username:   strings.TrimSpace(identity.Username),
		FirstName:  strings.TrimSpace(identity.FirstName),
		LastName:   strings.TrimSpace(identity.LastName),
		Balance:    0,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// DisplayName returns the name used in bot messages.
func (a *Account) DisplayName() string {
	return Identity{
		TelegramID: a.TelegramID,
		Username:   a.Username,
		FirstName:  a.FirstName,
		LastName:   a.LastName,
	}.DisplayName()
}

// Clone создаёт глубокую копию аккаунта.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	c := *a
	return &c
}
