package loader

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Anirudh7369/UFDR-Agent/internal/models"
	"github.com/Anirudh7369/UFDR-Agent/internal/progress"
)

func app(id, name string) models.App {
	return models.App{Identifier: id, Name: name}
}

func TestBatchSize(t *testing.T) {
	assert.Equal(t, 20, BatchSize(models.DomainCallLogs, 0))
	assert.Equal(t, 100, BatchSize(models.DomainLocations, 0))
	assert.Equal(t, 7, BatchSize(models.DomainCallLogs, 7), "override wins")
	assert.Equal(t, 50, BatchSize("unheard_of", 0))
}

func TestLoaderFlushesAtBatchSize(t *testing.T) {
	var batches [][]models.App
	flush := func(ctx context.Context, batch []models.App) error {
		batches = append(batches, batch)
		return nil
	}

	pub := progress.NewMemoryPublisher()
	ld := New[models.App]("job1", models.DomainApps, 2, flush, pub)
	ctx := context.Background()

	require.NoError(t, ld.Add(ctx, app("a", "A")))
	assert.Empty(t, batches)
	require.NoError(t, ld.Add(ctx, app("b", "B")))
	require.Len(t, batches, 1)
	assert.Len(t, batches[0], 2)

	require.NoError(t, ld.Add(ctx, app("c", "C")))
	require.NoError(t, ld.Flush(ctx))
	require.Len(t, batches, 2)
	assert.Len(t, batches[1], 1)

	stored, skipped := ld.Stats()
	assert.Equal(t, 3, stored)
	assert.Equal(t, 0, skipped)
}

func TestLoaderDedupLastWriteWins(t *testing.T) {
	var batches [][]models.App
	flush := func(ctx context.Context, batch []models.App) error {
		batches = append(batches, batch)
		return nil
	}

	ld := New[models.App]("job1", models.DomainApps, 10, flush, progress.NewMemoryPublisher())
	ctx := context.Background()

	require.NoError(t, ld.Add(ctx, app("a", "first")))
	require.NoError(t, ld.Add(ctx, app("b", "B")))
	require.NoError(t, ld.Add(ctx, app("a", "second")))
	require.NoError(t, ld.Flush(ctx))

	require.Len(t, batches, 1)
	require.Len(t, batches[0], 2)
	assert.Equal(t, "second", batches[0][0].Name, "later record replaces earlier in place")
	assert.Equal(t, "b", batches[0][1].Identifier)
}

func TestLoaderRetriesBatchOnce(t *testing.T) {
	calls := 0
	flush := func(ctx context.Context, batch []models.App) error {
		calls++
		if calls == 1 {
			return errors.New("transient")
		}
		return nil
	}

	ld := New[models.App]("job1", models.DomainApps, 10, flush, progress.NewMemoryPublisher())
	ctx := context.Background()

	require.NoError(t, ld.Add(ctx, app("a", "A")))
	require.NoError(t, ld.Flush(ctx))
	assert.Equal(t, 2, calls)

	stored, skipped := ld.Stats()
	assert.Equal(t, 1, stored)
	assert.Equal(t, 0, skipped)
}

func TestLoaderIsolatesBadRecords(t *testing.T) {
	flush := func(ctx context.Context, batch []models.App) error {
		for _, a := range batch {
			if a.Identifier == "poison" {
				return errors.New("constraint violation")
			}
		}
		return nil
	}

	ld := New[models.App]("job1", models.DomainApps, 10, flush, progress.NewMemoryPublisher())
	ctx := context.Background()

	require.NoError(t, ld.Add(ctx, app("a", "A")))
	require.NoError(t, ld.Add(ctx, app("poison", "X")))
	require.NoError(t, ld.Add(ctx, app("b", "B")))
	require.NoError(t, ld.Flush(ctx), "pass survives when some records store")

	stored, skipped := ld.Stats()
	assert.Equal(t, 2, stored)
	assert.Equal(t, 1, skipped)
}

func TestLoaderFailsWhenNothingStores(t *testing.T) {
	flush := func(ctx context.Context, batch []models.App) error {
		return errors.New("database down")
	}

	ld := New[models.App]("job1", models.DomainApps, 10, flush, progress.NewMemoryPublisher())
	ctx := context.Background()

	require.NoError(t, ld.Add(ctx, app("a", "A")))
	err := ld.Flush(ctx)
	assert.ErrorIs(t, err, ErrStoreWrite)
}

func TestLoaderPublishesProcessedPerFlush(t *testing.T) {
	flush := func(ctx context.Context, batch []models.App) error { return nil }
	pub := progress.NewMemoryPublisher()
	ld := New[models.App]("job1", models.DomainApps, 2, flush, pub)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c", "d", "e"} {
		require.NoError(t, ld.Add(ctx, app(id, "")))
	}
	require.NoError(t, ld.Flush(ctx))

	status, err := pub.Snapshot(ctx, "job1")
	require.NoError(t, err)
	assert.Equal(t, 5, status.Domains[models.DomainApps].Processed)
}

func TestLoaderEmptyFlushIsNoop(t *testing.T) {
	flush := func(ctx context.Context, batch []models.App) error {
		t.Fatal("flush must not run for an empty buffer")
		return nil
	}
	ld := New[models.App]("job1", models.DomainApps, 10, flush, progress.NewMemoryPublisher())
	require.NoError(t, ld.Flush(context.Background()))
}
