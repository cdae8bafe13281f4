package postgres

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alphawulf/alphawulf-hub/internal/domain/progress"
)

func TestAchievementsJSONRoundTrip(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	in := []progress.Unlocked{{Name: "First Steps", Description: "Reach level 5", Icon: "🎯", UnlockedAt: at}}

	data, err := marshalAchievements(in)
	require.NoError(t, err)

	out, err := unmarshalAchievements(data)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestAchievementsNilEncodesAsEmptyArray(t *testing.T) {
	data, err := marshalAchievements(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))

	out, err := unmarshalAchievements(nil)
	require.NoError(t, err)
	assert.NotNil(t, out)
	assert.Empty(t, out)
}

func TestErrorHelpers(t *testing.T) {
	unique := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})
	fk := &pgconn.PgError{Code: "23503"}

	assert.True(t, IsUniqueViolation(unique))
	assert.False(t, IsUniqueViolation(fk))
	assert.True(t, IsForeignKeyViolation(fk))
	assert.True(t, IsNoRows(fmt.Errorf("scan: %w", pgx.ErrNoRows)))
	assert.False(t, IsNoRows(errors.New("boom")))
}

func TestMigrationsAreOrdered(t *testing.T) {
	migs := Migrations()
	require.NotEmpty(t, migs)
	for i, m := range migs {
		assert.Equal(t, i+1, m.Version)
		assert.NotEmpty(t, m.UpSQL)
		assert.NotEmpty(t, m.DownSQL)
	}
}
