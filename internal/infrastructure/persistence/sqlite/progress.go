package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/alphawulf/alphawulf-hub/internal/domain/progress"
	"github.com/alphawulf/alphawulf-hub/internal/domain/shared"
)

// ProgressStore implements progress.Repository.
type ProgressStore struct {
	db *sql.DB
}

var _ progress.Repository = (*ProgressStore)(nil)

const progressColumns = `account_id, level, experience, threshold, streak,
	last_streak_update, last_active_at, achievements, version, created_at, updated_at`

// Get returns the progress record of an account.
func (s *ProgressStore) Get(ctx context.Context, accountID string) (*progress.Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+progressColumns+` FROM progress_records WHERE account_id = ?`, accountID)
	return scanRecord(row)
}

// Create inserts a fresh record.
func (s *ProgressStore) Create(ctx context.Context, rec *progress.Record) error {
	achievements, err := encodeAchievements(rec.Achievements)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO progress_records (`+progressColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.AccountID,
		rec.Level,
		rec.Experience,
		rec.Threshold,
		rec.Streak,
		toMillis(rec.LastStreakUpdate),
		toMillis(rec.LastActiveAt),
		achievements,
		rec.Version,
		toMillis(rec.CreatedAt),
		toMillis(rec.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return progress.ErrRecordAlreadyExists
		}
		if isForeignKeyViolation(err) {
			return shared.WrapError("progress", "Create", shared.ErrNotFound, "account does not exist", err)
		}
		return shared.Unavailable("progress", "Create", err)
	}
	return nil
}

// Save writes the record if the stored version still equals expectedVersion.
func (s *ProgressStore) Save(ctx context.Context, rec *progress.Record, expectedVersion int64) error {
	achievements, err := encodeAchievements(rec.Achievements)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE progress_records SET
			level = ?,
			experience = ?,
			threshold = ?,
			streak = ?,
			last_streak_update = ?,
			last_active_at = ?,
			achievements = ?,
			version = version + 1,
			updated_at = ?
		WHERE account_id = ? AND version = ?`,
		rec.Level,
		rec.Experience,
		rec.Threshold,
		rec.Streak,
		toMillis(rec.LastStreakUpdate),
		toMillis(rec.LastActiveAt),
		achievements,
		toMillis(rec.UpdatedAt),
		rec.AccountID,
		expectedVersion,
	)
	if err != nil {
		return shared.Unavailable("progress", "Save", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return shared.Unavailable("progress", "Save", err)
	}
	if affected == 1 {
		rec.Version = expectedVersion + 1
		return nil
	}

	var one int
	err = s.db.QueryRowContext(ctx, `SELECT 1 FROM progress_records WHERE account_id = ?`, rec.AccountID).Scan(&one)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return progress.ErrRecordNotFound
	case err != nil:
		return shared.Unavailable("progress", "Save", err)
	default:
		return progress.ErrVersionConflict
	}
}

func scanRecord(row *sql.Row) (*progress.Record, error) {
	var (
		rec                                          progress.Record
		achievements                                 string
		lastStreak, lastActive, createdAt, updatedAt int64
	)
	err := row.Scan(
		&rec.AccountID,
		&rec.Level,
		&rec.Experience,
		&rec.Threshold,
		&rec.Streak,
		&lastStreak,
		&lastActive,
		&achievements,
		&rec.Version,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, progress.ErrRecordNotFound
		}
		return nil, shared.Unavailable("progress", "Scan", err)
	}

	rec.LastStreakUpdate = fromMillis(lastStreak)
	rec.LastActiveAt = fromMillis(lastActive)
	rec.CreatedAt = fromMillis(createdAt)
	rec.UpdatedAt = fromMillis(updatedAt)

	rec.Achievements = []progress.Unlocked{}
	if achievements != "" {
		if err := json.Unmarshal([]byte(achievements), &rec.Achievements); err != nil {
			return nil, fmt.Errorf("decode achievements: %w", err)
		}
	}
	return &rec, nil
}

func encodeAchievements(list []progress.Unlocked) (string, error) {
	if list == nil {
		list = []progress.Unlocked{}
	}
	data, err := json.Marshal(list)
	if err != nil {
		return "", fmt.Errorf("encode achievements: %w", err)
	}
	return string(data), nil
}
