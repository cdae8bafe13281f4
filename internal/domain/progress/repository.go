package progress

import (
	"context"
	"errors"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// ══════════════════════════════════════════════════════════════════════════════

// Repository хранит записи прогресса.
type Repository interface {
	// Get возвращает запись прогресса аккаунта.
	// Возвращает ErrRecordNotFound, если запись ещё не создана.
	Get(ctx context.Context, accountID string) (*Record, error)

	// Create вставляет новую запись.
	// Возвращает ErrRecordAlreadyExists, если запись уже есть.
	Create(ctx context.Context, rec *Record) error

	// Save атомарно записывает урегулированное состояние вместе с достижениями,
	// если версия в хранилище равна expectedVersion. При успехе rec.Version
	// увеличивается. Возвращает ErrVersionConflict, если версия изменилась.
	Save(ctx context.Context, rec *Record, expectedVersion int64) error
}

// CatalogRepository хранит каталог достижений.
type CatalogRepository interface {
	// List возвращает описания в порядке добавления.
	List(ctx context.Context) ([]Definition, error)

	// InsertIfAbsent добавляет описание, если имени ещё нет.
	// Возвращает true, если запись была вставлена.
	InsertIfAbsent(ctx context.Context, def Definition) (bool, error)

	// Upsert перезаписывает описание с тем же именем.
	Upsert(ctx context.Context, def Definition) error
}

// CatalogSource отдаёт актуальный каталог достижений.
type CatalogSource interface {
	Current(ctx context.Context) (*Catalog, error)
}

// Current lets a fixed *Catalog serve as a CatalogSource.
func (c *Catalog) Current(context.Context) (*Catalog, error) {
	return c, nil
}

// LoadOrCreate возвращает запись аккаунта, создавая её со значениями по
// умолчанию при первом обращении. Гонку двух создателей выигрывает первый,
// второй перечитывает его запись.
func LoadOrCreate(ctx context.Context, repo Repository, accountID string, now time.Time) (*Record, error) {
	rec, err := repo.Get(ctx, accountID)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, ErrRecordNotFound) {
		return nil, err
	}

	rec = NewRecord(accountID, now)
	if err := repo.Create(ctx, rec); err != nil {
		if errors.Is(err, ErrRecordAlreadyExists) {
			return repo.Get(ctx, accountID)
		}
		return nil, err
	}
	return rec, nil
}
