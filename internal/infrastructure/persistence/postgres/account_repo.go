package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/alphawulf/alphawulf-hub/internal/domain/account"
	"github.com/alphawulf/alphawulf-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACCOUNT REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// AccountRepository implements account.Repository for PostgreSQL.
type AccountRepository struct {
	conn *Connection
}

// NewAccountRepository creates a new AccountRepository.
func NewAccountRepository(conn *Connection) *AccountRepository {
	return &AccountRepository{conn: conn}
}

const accountColumns = `id, telegram_id, username, first_name, last_name, balance, created_at, updated_at`

// Create inserts a new account. A duplicate telegram_id yields ErrAccountAlreadyExists.
func (r *AccountRepository) Create(ctx context.Context, acc *account.Account) error {
	q, err := r.conn.querier()
	if err != nil {
		return shared.Unavailable("account", "Create", err)
	}

	_, err = q.Exec(ctx, `
		INSERT INTO accounts (`+accountColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		acc.ID,
		int64(acc.TelegramID),
		acc.Username,
		acc.FirstName,
		acc.LastName,
		acc.Balance,
		acc.CreatedAt,
		acc.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return account.ErrAccountAlreadyExists
		}
		return shared.Unavailable("account", "Create", err)
	}
	return nil
}

// GetByID returns an account by internal ID.
func (r *AccountRepository) GetByID(ctx context.Context, id string) (*account.Account, error) {
	q, err := r.conn.querier()
	if err != nil {
		return nil, shared.Unavailable("account", "GetByID", err)
	}
	return scanAccount(q.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id))
}

// GetByTelegramID returns an account by Telegram ID.
func (r *AccountRepository) GetByTelegramID(ctx context.Context, telegramID account.TelegramID) (*account.Account, error) {
	q, err := r.conn.querier()
	if err != nil {
		return nil, shared.Unavailable("account", "GetByTelegramID", err)
	}
	return scanAccount(q.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE telegram_id = $1`, int64(telegramID)))
}

func scanAccount(row pgx.Row) (*account.Account, error) {
	var (
		acc        account.Account
		telegramID int64
	)
	err := row.Scan(
		&acc.ID,
		&telegramID,
		&acc.Username,
		&acc.FirstName,
		&acc.LastName,
		&acc.Balance,
		&acc.CreatedAt,
		&acc.UpdatedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, account.ErrAccountNotFound
		}
		return nil, shared.Unavailable("account", "Scan", err)
	}
	acc.TelegramID = account.TelegramID(telegramID)
	acc.CreatedAt = acc.CreatedAt.UTC()
	acc.UpdatedAt = acc.UpdatedAt.UTC()
	return &acc, nil
}
