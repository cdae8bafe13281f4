package sqlite

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alphawulf/alphawulf-hub/internal/domain/account"
	"github.com/alphawulf/alphawulf-hub/internal/domain/progress"
	"github.com/alphawulf/alphawulf-hub/internal/domain/shared"
)

var testNow = time.Date(2026, time.March, 3, 10, 30, 0, 0, time.UTC)

func openTempStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "alphawulf.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func createAccount(t *testing.T, store *Store, id string, telegramID int64) *account.Account {
	t.Helper()
	acc, err := account.NewAccount(id, account.Identity{TelegramID: account.TelegramID(telegramID), Username: "wolf"}, testNow)
	require.NoError(t, err)
	require.NoError(t, store.Accounts().Create(context.Background(), acc))
	return acc
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(context.Background(), "  ")
	assert.Error(t, err)
}

func TestOpenTwiceAppliesMigrationsOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "twice.db")

	first, err := Open(context.Background(), path)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := Open(context.Background(), path)
	require.NoError(t, err)
	defer second.Close()

	var count int
	require.NoError(t, second.sqlDB.QueryRow("SELECT COUNT(*) FROM "+migrationTable).Scan(&count))
	assert.Equal(t, 3, count)

	applied, err := second.AppliedMigrations(context.Background())
	require.NoError(t, err)
	require.Len(t, applied, 3)
	assert.Equal(t, "0001_accounts.sql", applied[0].Name)
	assert.False(t, applied[0].AppliedAt.IsZero())
}

// ─────────────────────────────────────────────────────────────────────────────
// Accounts
// ─────────────────────────────────────────────────────────────────────────────

func TestAccountRoundTrip(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()
	acc := createAccount(t, store, "acc-1", 279058397)

	byID, err := store.Accounts().GetByID(ctx, "acc-1")
	require.NoError(t, err)
	assert.Equal(t, acc, byID)

	byTelegram, err := store.Accounts().GetByTelegramID(ctx, 279058397)
	require.NoError(t, err)
	assert.Equal(t, "acc-1", byTelegram.ID)
	assert.Equal(t, int64(0), byTelegram.Balance)
}

func TestAccountNotFound(t *testing.T) {
	store := openTempStore(t)

	_, err := store.Accounts().GetByTelegramID(context.Background(), 42)
	assert.ErrorIs(t, err, account.ErrAccountNotFound)
	assert.True(t, shared.IsNotFound(err))
}

func TestAccountDuplicateTelegramID(t *testing.T) {
	store := openTempStore(t)
	createAccount(t, store, "acc-1", 7)

	dup, err := account.NewAccount("acc-2", account.Identity{TelegramID: 7}, testNow)
	require.NoError(t, err)
	err = store.Accounts().Create(context.Background(), dup)
	assert.ErrorIs(t, err, account.ErrAccountAlreadyExists)
}

func TestAccountConcurrentCreateOneWinner(t *testing.T) {
	store := openTempStore(t)

	const writers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
		dups    int
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			acc, _ := account.NewAccount(string(rune('a'+i)), account.Identity{TelegramID: 99}, testNow)
			err := store.Accounts().Create(context.Background(), acc)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				created++
			} else if shared.IsAlreadyExists(err) {
				dups++
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Equal(t, writers-1, dups)
}

// ─────────────────────────────────────────────────────────────────────────────
// Progress
// ─────────────────────────────────────────────────────────────────────────────

func TestProgressCreateGet(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()
	createAccount(t, store, "acc-1", 1)

	rec := progress.NewRecord("acc-1", testNow)
	require.NoError(t, store.Progress().Create(ctx, rec))

	got, err := store.Progress().Get(ctx, "acc-1")
	require.NoError(t, err)
	assert.Equal(t, rec, got)

	err = store.Progress().Create(ctx, progress.NewRecord("acc-1", testNow))
	assert.ErrorIs(t, err, progress.ErrRecordAlreadyExists)
}

func TestProgressGetMissing(t *testing.T) {
	store := openTempStore(t)

	_, err := store.Progress().Get(context.Background(), "nobody")
	assert.ErrorIs(t, err, progress.ErrRecordNotFound)
}

func TestProgressCreateWithoutAccount(t *testing.T) {
	store := openTempStore(t)

	err := store.Progress().Create(context.Background(), progress.NewRecord("ghost", testNow))
	assert.True(t, shared.IsNotFound(err))
}

func TestProgressSaveCompareAndSwap(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()
	createAccount(t, store, "acc-1", 1)
	require.NoError(t, store.Progress().Create(ctx, progress.NewRecord("acc-1", testNow)))

	rec, err := store.Progress().Get(ctx, "acc-1")
	require.NoError(t, err)
	stale := rec.Clone()

	_, err = rec.AwardExperience(250, testNow.Add(time.Hour))
	require.NoError(t, err)
	rec.Achievements = append(rec.Achievements, progress.Unlocked{Name: "First Steps", Icon: "🎯", UnlockedAt: testNow})
	require.NoError(t, store.Progress().Save(ctx, rec, 1))
	assert.Equal(t, int64(2), rec.Version)

	got, err := store.Progress().Get(ctx, "acc-1")
	require.NoError(t, err)
	assert.Equal(t, 3, got.Level)
	assert.Equal(t, int64(0), got.Experience)
	assert.Equal(t, int64(225), got.Threshold)
	assert.Equal(t, int64(2), got.Version)
	require.Len(t, got.Achievements, 1)
	assert.Equal(t, "First Steps", got.Achievements[0].Name)

	_, err = stale.AwardExperience(10, testNow.Add(time.Hour))
	require.NoError(t, err)
	err = store.Progress().Save(ctx, stale, 1)
	assert.ErrorIs(t, err, progress.ErrVersionConflict)
	assert.True(t, shared.IsRetryable(err))

	after, err := store.Progress().Get(ctx, "acc-1")
	require.NoError(t, err)
	assert.Equal(t, got, after)
}

func TestProgressSaveMissingRecord(t *testing.T) {
	store := openTempStore(t)

	err := store.Progress().Save(context.Background(), progress.NewRecord("nobody", testNow), 1)
	assert.ErrorIs(t, err, progress.ErrRecordNotFound)
}

// ─────────────────────────────────────────────────────────────────────────────
// Catalog
// ─────────────────────────────────────────────────────────────────────────────

func TestCatalogInsertIfAbsentKeepsOrder(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()
	catalog := store.Catalog()

	defs := []progress.Definition{
		{Name: "First Steps", Kind: progress.KindLevel, Requirement: 5, Reward: 100, Icon: "🎯"},
		{Name: "Telegram Pro", Kind: "custom", Requirement: 1, Reward: 50, Icon: "📱"},
		{Name: "Dedicated Learner", Kind: progress.KindStreak, Requirement: 7, Reward: 200, Rarity: progress.RarityUncommon},
	}
	for _, d := range defs {
		inserted, err := catalog.InsertIfAbsent(ctx, d)
		require.NoError(t, err)
		assert.True(t, inserted)
	}

	inserted, err := catalog.InsertIfAbsent(ctx, progress.Definition{Name: "First Steps", Kind: progress.KindLevel, Requirement: 99})
	require.NoError(t, err)
	assert.False(t, inserted)

	list, err := catalog.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "First Steps", list[0].Name)
	assert.Equal(t, int64(5), list[0].Requirement)
	assert.Equal(t, progress.RarityCommon, list[0].Rarity)
	assert.Equal(t, progress.KindManual, list[1].Kind)
	assert.Equal(t, "Dedicated Learner", list[2].Name)
}

func TestCatalogUpsertOverwrites(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()
	catalog := store.Catalog()

	_, err := catalog.InsertIfAbsent(ctx, progress.Definition{Name: "A", Kind: progress.KindLevel, Requirement: 2})
	require.NoError(t, err)
	_, err = catalog.InsertIfAbsent(ctx, progress.Definition{Name: "B", Kind: progress.KindLevel, Requirement: 3})
	require.NoError(t, err)

	require.NoError(t, catalog.Upsert(ctx, progress.Definition{Name: "A", Kind: progress.KindStreak, Requirement: 4, Rarity: progress.RarityEpic}))

	list, err := catalog.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "A", list[0].Name)
	assert.Equal(t, progress.KindStreak, list[0].Kind)
	assert.Equal(t, int64(4), list[0].Requirement)
	assert.Equal(t, progress.RarityEpic, list[0].Rarity)
}

func TestCatalogRejectsInvalidDefinition(t *testing.T) {
	store := openTempStore(t)

	_, err := store.Catalog().InsertIfAbsent(context.Background(), progress.Definition{Name: "X", Kind: "bogus"})
	assert.ErrorIs(t, err, progress.ErrInvalidDefinition)
}
