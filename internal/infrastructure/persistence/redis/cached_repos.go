package redis

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/alphawulf/alphawulf-hub/internal/domain/account"
	"github.com/alphawulf/alphawulf-hub/internal/domain/progress"
)

// DefaultTTL is how long cached rows live.
const DefaultTTL = 10 * time.Minute

// JSONStore is the subset of Cache the repository decorators need.
type JSONStore interface {
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
	Delete(ctx context.Context, keys ...string) error
}

// ══════════════════════════════════════════════════════════════════════════════
// ACCOUNTS
// ══════════════════════════════════════════════════════════════════════════════

// CachedAccountRepository is a read-through cache over an account.Repository.
// Accounts never change after creation, so entries are only evicted by TTL.
type CachedAccountRepository struct {
	next   account.Repository
	cache  JSONStore
	ttl    time.Duration
	logger *slog.Logger
}

// NewCachedAccountRepository wraps next.
func NewCachedAccountRepository(next account.Repository, cache JSONStore, ttl time.Duration, logger *slog.Logger) *CachedAccountRepository {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedAccountRepository{next: next, cache: cache, ttl: ttl, logger: logger}
}

// Create stores the account and warms the cache.
func (r *CachedAccountRepository) Create(ctx context.Context, acc *account.Account) error {
	if err := r.next.Create(ctx, acc); err != nil {
		return err
	}
	r.put(ctx, acc)
	return nil
}

// GetByID reads through the cache.
func (r *CachedAccountRepository) GetByID(ctx context.Context, id string) (*account.Account, error) {
	var acc account.Account
	if err := r.cache.Get(ctx, AccountKey(id), &acc); err == nil {
		return &acc, nil
	} else if !errors.Is(err, ErrCacheMiss) {
		r.logger.Debug("account cache read failed", "error", err)
	}

	found, err := r.next.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	r.put(ctx, found)
	return found, nil
}

// GetByTelegramID reads through the cache.
func (r *CachedAccountRepository) GetByTelegramID(ctx context.Context, telegramID account.TelegramID) (*account.Account, error) {
	var acc account.Account
	if err := r.cache.Get(ctx, TelegramKey(int64(telegramID)), &acc); err == nil {
		return &acc, nil
	} else if !errors.Is(err, ErrCacheMiss) {
		r.logger.Debug("account cache read failed", "error", err)
	}

	found, err := r.next.GetByTelegramID(ctx, telegramID)
	if err != nil {
		return nil, err
	}
	r.put(ctx, found)
	return found, nil
}

func (r *CachedAccountRepository) put(ctx context.Context, acc *account.Account) {
	if err := r.cache.Set(ctx, AccountKey(acc.ID), acc, r.ttl); err != nil {
		r.logger.Debug("account cache write failed", "error", err)
		return
	}
	if err := r.cache.Set(ctx, TelegramKey(int64(acc.TelegramID)), acc, r.ttl); err != nil {
		r.logger.Debug("account cache write failed", "error", err)
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS RECORDS
// ══════════════════════════════════════════════════════════════════════════════

// VersionedStore is the subset of Cache the progress decorator needs.
type VersionedStore interface {
	SetVersioned(ctx context.Context, key string, version int64, value any, ttl time.Duration) (bool, error)
	GetVersioned(ctx context.Context, key string, dest any) error
	Delete(ctx context.Context, keys ...string) error
}

// CachedProgressRepository is a read-through cache over a progress.Repository.
// The store stays authoritative: Save still compares versions in the store.
// Cache writes carry the record version and never replace a newer entry, so a
// reader that loaded an old row cannot overwrite the row a writer just saved.
type CachedProgressRepository struct {
	next   progress.Repository
	cache  VersionedStore
	ttl    time.Duration
	logger *slog.Logger
}

// NewCachedProgressRepository wraps next.
func NewCachedProgressRepository(next progress.Repository, cache VersionedStore, ttl time.Duration, logger *slog.Logger) *CachedProgressRepository {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedProgressRepository{next: next, cache: cache, ttl: ttl, logger: logger}
}

// Get reads through the cache.
func (r *CachedProgressRepository) Get(ctx context.Context, accountID string) (*progress.Record, error) {
	var rec progress.Record
	if err := r.cache.GetVersioned(ctx, ProgressKey(accountID), &rec); err == nil {
		return &rec, nil
	} else if !errors.Is(err, ErrCacheMiss) {
		r.logger.Debug("progress cache read failed", "error", err)
	}

	found, err := r.next.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	r.put(ctx, found)
	return found, nil
}

// Create inserts the record and warms the cache.
func (r *CachedProgressRepository) Create(ctx context.Context, rec *progress.Record) error {
	if err := r.next.Create(ctx, rec); err != nil {
		return err
	}
	r.put(ctx, rec)
	return nil
}

// Save delegates the compare-and-swap. On success the new version is cached.
// On a conflict the cached copy is replaced with the stored row so the retry
// reads fresh state.
func (r *CachedProgressRepository) Save(ctx context.Context, rec *progress.Record, expectedVersion int64) error {
	err := r.next.Save(ctx, rec, expectedVersion)
	if err == nil {
		r.put(ctx, rec)
		return nil
	}
	if errors.Is(err, progress.ErrVersionConflict) {
		if fresh, getErr := r.next.Get(ctx, rec.AccountID); getErr == nil {
			r.put(ctx, fresh)
			return err
		}
	}
	if delErr := r.cache.Delete(ctx, ProgressKey(rec.AccountID)); delErr != nil {
		r.logger.Warn("progress cache eviction failed", "account_id", rec.AccountID, "error", delErr)
	}
	return err
}

func (r *CachedProgressRepository) put(ctx context.Context, rec *progress.Record) {
	if _, err := r.cache.SetVersioned(ctx, ProgressKey(rec.AccountID), rec.Version, rec, r.ttl); err != nil {
		r.logger.Debug("progress cache write failed", "error", err)
	}
}
