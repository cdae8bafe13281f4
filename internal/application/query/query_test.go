package query

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alphawulf/alphawulf-hub/internal/domain/account"
	"github.com/alphawulf/alphawulf-hub/internal/domain/progress"
	"github.com/alphawulf/alphawulf-hub/internal/domain/shared"
	"github.com/alphawulf/alphawulf-hub/internal/infrastructure/persistence/sqlite"
	"github.com/alphawulf/alphawulf-hub/internal/infrastructure/seed"
	"github.com/alphawulf/alphawulf-hub/pkg/timeutil"
)

var testNow = time.Date(2026, time.March, 3, 10, 30, 0, 0, time.UTC)

func openStore(t *testing.T, accountIDs ...string) *sqlite.Store {
	t.Helper()
	store, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "query.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	for i, id := range accountIDs {
		acc, err := account.NewAccount(id, account.Identity{TelegramID: account.TelegramID(100 + i)}, testNow)
		require.NoError(t, err)
		require.NoError(t, store.Accounts().Create(context.Background(), acc))
	}
	return store
}

func TestGetProgressCreatesDefaultRecord(t *testing.T) {
	store := openStore(t, "acc-1")
	h := NewGetProgressHandler(store.Progress(), timeutil.NewManualClock(testNow))

	dto, err := h.Handle(context.Background(), GetProgressQuery{AccountID: "acc-1"})
	require.NoError(t, err)
	assert.Equal(t, 1, dto.Level)
	assert.Equal(t, int64(0), dto.Experience)
	assert.Equal(t, int64(100), dto.Threshold)
	assert.Equal(t, progress.TierName(1), dto.Tier)
	assert.NotNil(t, dto.Achievements)

	// Второй запрос читает ту же запись.
	again, err := h.Handle(context.Background(), GetProgressQuery{AccountID: "acc-1"})
	require.NoError(t, err)
	assert.Equal(t, dto.Version, again.Version)
}

func TestGetProgressValidates(t *testing.T) {
	store := openStore(t)
	h := NewGetProgressHandler(store.Progress(), nil)

	_, err := h.Handle(context.Background(), GetProgressQuery{AccountID: " "})
	assert.True(t, shared.IsValidation(err))
}

func TestGetProgressLookupDoesNotCreate(t *testing.T) {
	store := openStore(t, "acc-2")
	h := NewGetProgressHandler(store.Progress(), nil)

	_, found, err := h.Lookup(context.Background(), GetProgressQuery{AccountID: "acc-2"})
	require.NoError(t, err)
	assert.False(t, found)

	_, err = store.Progress().Get(context.Background(), "acc-2")
	assert.ErrorIs(t, err, progress.ErrRecordNotFound)
}

func TestProgressDTOLevelProgress(t *testing.T) {
	rec := progress.NewRecord("acc", testNow)
	rec.Experience = 25
	dto := NewProgressDTO(rec)
	assert.InDelta(t, 0.25, dto.LevelProgress, 1e-9)
}

func TestGetAchievementsMarksUnlocked(t *testing.T) {
	store := openStore(t, "acc-3")
	catalog, err := seed.DefaultCatalog()
	require.NoError(t, err)

	rec := progress.NewRecord("acc-3", testNow)
	def, ok := catalog.Lookup(seed.TelegramProAchievement)
	require.True(t, ok)
	rec.Unlock(def, testNow)
	require.NoError(t, store.Progress().Create(context.Background(), rec))

	h := NewGetAchievementsHandler(store.Progress(), catalog, timeutil.NewManualClock(testNow))
	dto, err := h.Handle(context.Background(), GetAchievementsQuery{AccountID: "acc-3"})
	require.NoError(t, err)

	require.Len(t, dto.Unlocked, 1)
	assert.Equal(t, seed.TelegramProAchievement, dto.Unlocked[0].Name)
	require.Len(t, dto.Catalog, catalog.Len())

	for _, a := range dto.Catalog {
		if a.Name == seed.TelegramProAchievement {
			assert.True(t, a.Unlocked)
			require.NotNil(t, a.UnlockedAt)
			assert.True(t, a.UnlockedAt.Equal(testNow))
		} else {
			assert.False(t, a.Unlocked, a.Name)
			assert.Nil(t, a.UnlockedAt)
		}
	}
}

func TestCatalogListing(t *testing.T) {
	catalog, err := seed.DefaultCatalog()
	require.NoError(t, err)
	h := NewGetAchievementsHandler(nil, catalog, nil)

	list, err := h.Catalog(context.Background())
	require.NoError(t, err)
	require.Len(t, list, catalog.Len())
	assert.Equal(t, "First Steps", list[0].Name)
	assert.Equal(t, "level", list[0].Kind)
	assert.Equal(t, "common", list[0].Rarity)
}
