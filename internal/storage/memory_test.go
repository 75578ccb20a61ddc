package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Anirudh7369/UFDR-Agent/internal/config"
	"github.com/Anirudh7369/UFDR-Agent/internal/models"
)

func TestMemoryStoreUpsert(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.StoreApps(ctx, "j1", []models.App{
		{Identifier: "com.a", Name: "first"},
		{Identifier: "com.b", Name: "B"},
	}))
	require.NoError(t, s.StoreApps(ctx, "j1", []models.App{
		{Identifier: "com.a", Name: "second"},
	}))

	n, err := s.CountApps(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	apps, err := s.GetApps(ctx, "j1", 0, 0)
	require.NoError(t, err)
	require.Len(t, apps, 2)
	assert.Equal(t, "second", apps[0].Name, "upsert replaces in place, keeping order")
	assert.Equal(t, "com.b", apps[1].Identifier)
}

func TestMemoryStoreJobIsolation(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.StoreCallLogs(ctx, "j1", []models.CallLog{{CallID: "c1"}}))
	require.NoError(t, s.StoreCallLogs(ctx, "j2", []models.CallLog{{CallID: "c1"}, {CallID: "c2"}}))

	n1, err := s.CountCallLogs(ctx, "j1")
	require.NoError(t, err)
	n2, err := s.CountCallLogs(ctx, "j2")
	require.NoError(t, err)
	assert.Equal(t, 1, n1)
	assert.Equal(t, 2, n2)
}

func TestMemoryStorePaging(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	var entries []models.BrowsingEntry
	for _, url := range []string{"u1", "u2", "u3", "u4", "u5"} {
		entries = append(entries, models.BrowsingEntry{EntryType: models.BrowsingVisitedPage, URL: url})
	}
	require.NoError(t, s.StoreBrowsingEntries(ctx, "j1", entries))

	page, err := s.GetBrowsingEntries(ctx, "j1", 2, 1)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "u2", page[0].URL)
	assert.Equal(t, "u3", page[1].URL)

	page, err = s.GetBrowsingEntries(ctx, "j1", 10, 4)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "u5", page[0].URL)

	page, err = s.GetBrowsingEntries(ctx, "j1", 10, 99)
	require.NoError(t, err)
	assert.Empty(t, page)
}

func TestNewRecordStore(t *testing.T) {
	store, err := NewRecordStore(config.StorageConfig{Type: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, store)

	_, err = NewRecordStore(config.StorageConfig{Type: "cassandra"})
	assert.Error(t, err)
}
