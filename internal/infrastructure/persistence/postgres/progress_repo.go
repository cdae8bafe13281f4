package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/alphawulf/alphawulf-hub/internal/domain/progress"
	"github.com/alphawulf/alphawulf-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// ProgressRepository implements progress.Repository for PostgreSQL.
type ProgressRepository struct {
	conn *Connection
}

// NewProgressRepository creates a new ProgressRepository.
func NewProgressRepository(conn *Connection) *ProgressRepository {
	return &ProgressRepository{conn: conn}
}

const progressColumns = `account_id, level, experience, threshold, streak,
	last_streak_update, last_active_at, achievements, version, created_at, updated_at`

// Get returns the progress record of an account.
func (r *ProgressRepository) Get(ctx context.Context, accountID string) (*progress.Record, error) {
	q, err := r.conn.querier()
	if err != nil {
		return nil, shared.Unavailable("progress", "Get", err)
	}
	return scanRecord(q.QueryRow(ctx, `SELECT `+progressColumns+` FROM progress_records WHERE account_id = $1`, accountID))
}

// Create inserts a fresh record. A second insert for the same account yields ErrRecordAlreadyExists.
func (r *ProgressRepository) Create(ctx context.Context, rec *progress.Record) error {
	q, err := r.conn.querier()
	if err != nil {
		return shared.Unavailable("progress", "Create", err)
	}

	achievements, err := marshalAchievements(rec.Achievements)
	if err != nil {
		return err
	}

	_, err = q.Exec(ctx, `
		INSERT INTO progress_records (`+progressColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		rec.AccountID,
		rec.Level,
		rec.Experience,
		rec.Threshold,
		rec.Streak,
		rec.LastStreakUpdate,
		rec.LastActiveAt,
		achievements,
		rec.Version,
		rec.CreatedAt,
		rec.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return progress.ErrRecordAlreadyExists
		}
		if IsForeignKeyViolation(err) {
			return shared.WrapError("progress", "Create", shared.ErrNotFound, "account does not exist", err)
		}
		return shared.Unavailable("progress", "Create", err)
	}
	return nil
}

// Save writes the record if the stored version still equals expectedVersion.
// The record and its achievements are a single row, so one UPDATE is atomic.
func (r *ProgressRepository) Save(ctx context.Context, rec *progress.Record, expectedVersion int64) error {
	achievements, err := marshalAchievements(rec.Achievements)
	if err != nil {
		return err
	}

	return r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE progress_records SET
				level = $1,
				experience = $2,
				threshold = $3,
				streak = $4,
				last_streak_update = $5,
				last_active_at = $6,
				achievements = $7,
				version = version + 1,
				updated_at = $8
			WHERE account_id = $9 AND version = $10
		`,
			rec.Level,
			rec.Experience,
			rec.Threshold,
			rec.Streak,
			rec.LastStreakUpdate,
			rec.LastActiveAt,
			achievements,
			rec.UpdatedAt,
			rec.AccountID,
			expectedVersion,
		)
		if err != nil {
			return shared.Unavailable("progress", "Save", err)
		}
		if tag.RowsAffected() == 1 {
			rec.Version = expectedVersion + 1
			return nil
		}

		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM progress_records WHERE account_id = $1)`, rec.AccountID).Scan(&exists); err != nil {
			return shared.Unavailable("progress", "Save", err)
		}
		if !exists {
			return progress.ErrRecordNotFound
		}
		return progress.ErrVersionConflict
	})
}

func scanRecord(row pgx.Row) (*progress.Record, error) {
	var (
		rec          progress.Record
		achievements []byte
	)
	err := row.Scan(
		&rec.AccountID,
		&rec.Level,
		&rec.Experience,
		&rec.Threshold,
		&rec.Streak,
		&rec.LastStreakUpdate,
		&rec.LastActiveAt,
		&achievements,
		&rec.Version,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, progress.ErrRecordNotFound
		}
		return nil, shared.Unavailable("progress", "Scan", err)
	}

	rec.Achievements, err = unmarshalAchievements(achievements)
	if err != nil {
		return nil, err
	}
	rec.LastStreakUpdate = rec.LastStreakUpdate.UTC()
	rec.LastActiveAt = rec.LastActiveAt.UTC()
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.UpdatedAt = rec.UpdatedAt.UTC()
	return &rec, nil
}

func marshalAchievements(list []progress.Unlocked) ([]byte, error) {
	if list == nil {
		list = []progress.Unlocked{}
	}
	data, err := json.Marshal(list)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal achievements: %w", err)
	}
	return data, nil
}

func unmarshalAchievements(data []byte) ([]progress.Unlocked, error) {
	list := []progress.Unlocked{}
	if len(data) == 0 {
		return list, nil
	}
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("failed to unmarshal achievements: %w", err)
	}
	return list, nil
}
