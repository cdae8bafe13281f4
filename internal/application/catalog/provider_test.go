package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alphawulf/alphawulf-hub/internal/domain/progress"
	"github.com/alphawulf/alphawulf-hub/pkg/logger"
)

type fakeRepo struct {
	defs  []progress.Definition
	err   error
	lists int
}

func (f *fakeRepo) List(context.Context) ([]progress.Definition, error) {
	f.lists++
	return f.defs, f.err
}

func (f *fakeRepo) InsertIfAbsent(context.Context, progress.Definition) (bool, error) {
	return false, nil
}

func (f *fakeRepo) Upsert(context.Context, progress.Definition) error { return nil }

func TestProvider_CachesUntilStale(t *testing.T) {
	repo := &fakeRepo{defs: []progress.Definition{{Name: "A", Kind: progress.KindLevel, Requirement: 2}}}
	p := NewProvider(repo, time.Minute, logger.Discard())
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return now }

	c, err := p.Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, c.Len())

	_, err = p.Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, repo.lists)

	now = now.Add(2 * time.Minute)
	_, err = p.Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, repo.lists)

	p.Invalidate()
	_, err = p.Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, repo.lists)
}

func TestProvider_KeepsPreviousOnFailure(t *testing.T) {
	repo := &fakeRepo{defs: []progress.Definition{{Name: "A", Kind: progress.KindLevel}}}
	p := NewProvider(repo, time.Minute, logger.Discard())

	first, err := p.Current(context.Background())
	require.NoError(t, err)

	repo.err = errors.New("db down")
	p.Invalidate()
	second, err := p.Current(context.Background())
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestProvider_FailsWithoutCatalog(t *testing.T) {
	p := NewProvider(&fakeRepo{err: errors.New("db down")}, 0, logger.Discard())

	_, err := p.Current(context.Background())
	assert.Error(t, err)
}
