package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/alphawulf/alphawulf-hub/internal/domain/account"
	"github.com/alphawulf/alphawulf-hub/internal/domain/shared"
)

// AccountStore implements account.Repository.
type AccountStore struct {
	db *sql.DB
}

var _ account.Repository = (*AccountStore)(nil)

const accountColumns = `id, telegram_id, username, first_name, last_name, balance, created_at, updated_at`

// Create inserts an account. A duplicate telegram_id yields ErrAccountAlreadyExists.
func (s *AccountStore) Create(ctx context.Context, acc *account.Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts (`+accountColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		acc.ID,
		int64(acc.TelegramID),
		acc.Username,
		acc.FirstName,
		acc.LastName,
		acc.Balance,
		toMillis(acc.CreatedAt),
		toMillis(acc.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return account.ErrAccountAlreadyExists
		}
		return shared.Unavailable("account", "Create", err)
	}
	return nil
}

// GetByID returns an account by internal ID.
func (s *AccountStore) GetByID(ctx context.Context, id string) (*account.Account, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id)
	return scanAccount(row)
}

// GetByTelegramID returns an account by Telegram ID.
func (s *AccountStore) GetByTelegramID(ctx context.Context, telegramID account.TelegramID) (*account.Account, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE telegram_id = ?`, int64(telegramID))
	return scanAccount(row)
}

func scanAccount(row *sql.Row) (*account.Account, error) {
	var (
		acc                  account.Account
		telegramID           int64
		createdAt, updatedAt int64
	)
	err := row.Scan(&acc.ID, &telegramID, &acc.Username, &acc.FirstName, &acc.LastName, &acc.Balance, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, account.ErrAccountNotFound
		}
		return nil, shared.Unavailable("account", "Scan", err)
	}
	acc.TelegramID = account.TelegramID(telegramID)
	acc.CreatedAt = fromMillis(createdAt)
	acc.UpdatedAt = fromMillis(updatedAt)
	return &acc, nil
}
