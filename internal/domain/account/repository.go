package account

import "context"

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACE
// Реализации находятся в infrastructure/persistence (postgres, sqlite).
// ══════════════════════════════════════════════════════════════════════════════

// Repository определяет операции хранилища, нужные ядру.
type Repository interface {
	// Create вставляет новый аккаунт.
	// Возвращает ErrAccountAlreadyExists при конфликте уникального telegram_id.
	Create(ctx context.Context, acc *Account) error

	// GetByID возвращает аккаунт по внутреннему ID.
	// Возвращает ErrAccountNotFound, если аккаунт не найден.
	GetByID(ctx context.Context, id string) (*Account, error)

	// GetByTelegramID возвращает аккаунт по Telegram ID.
	// Возвращает ErrAccountNotFound, если аккаунт не найден.
	GetByTelegramID(ctx context.Context, telegramID TelegramID) (*Account, error)
}
