package storage

import (
	"context"
	"sync"

	"github.com/Anirudh7369/UFDR-Agent/internal/models"
)

// MemoryStore keeps records in process memory behind a mutex, preserving
// insertion order and upserting on natural key like the Postgres store.
// Used in tests and for local development without a database.
type MemoryStore struct {
	mu       sync.Mutex
	apps     map[string]*table[models.App]
	calls    map[string]*table[models.CallLog]
	messages map[string]*table[models.Message]
	locs     map[string]*table[models.Location]
	browsing map[string]*table[models.BrowsingEntry]
}

// table holds one job's records for one domain in first-insert order;
// upserts replace in place so re-runs do not reorder rows.
type table[T models.Record] struct {
	byKey map[string]int
	rows  []T
}

func newTable[T models.Record]() *table[T] {
	return &table[T]{byKey: make(map[string]int)}
}

func (t *table[T]) upsert(recs []T) {
	for _, r := range recs {
		if i, ok := t.byKey[r.Key()]; ok {
			t.rows[i] = r
			continue
		}
		t.byKey[r.Key()] = len(t.rows)
		t.rows = append(t.rows, r)
	}
}

func (t *table[T]) page(limit, offset int) []T {
	if offset >= len(t.rows) {
		return nil
	}
	end := len(t.rows)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	out := make([]T, end-offset)
	copy(out, t.rows[offset:end])
	return out
}

// NewMemoryStore creates an empty in-memory record store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		apps:     make(map[string]*table[models.App]),
		calls:    make(map[string]*table[models.CallLog]),
		messages: make(map[string]*table[models.Message]),
		locs:     make(map[string]*table[models.Location]),
		browsing: make(map[string]*table[models.BrowsingEntry]),
	}
}

func (s *MemoryStore) StoreApps(ctx context.Context, jobID string, apps []models.App) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	jobTable(s.apps, jobID).upsert(apps)
	return nil
}

func (s *MemoryStore) GetApps(ctx context.Context, jobID string, limit, offset int) ([]models.App, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return jobTable(s.apps, jobID).page(limit, offset), nil
}

func (s *MemoryStore) CountApps(ctx context.Context, jobID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(jobTable(s.apps, jobID).rows), nil
}

func (s *MemoryStore) StoreCallLogs(ctx context.Context, jobID string, calls []models.CallLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	jobTable(s.calls, jobID).upsert(calls)
	return nil
}

func (s *MemoryStore) GetCallLogs(ctx context.Context, jobID string, limit, offset int) ([]models.CallLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return jobTable(s.calls, jobID).page(limit, offset), nil
}

func (s *MemoryStore) CountCallLogs(ctx context.Context, jobID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(jobTable(s.calls, jobID).rows), nil
}

func (s *MemoryStore) StoreMessages(ctx context.Context, jobID string, messages []models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	jobTable(s.messages, jobID).upsert(messages)
	return nil
}

func (s *MemoryStore) GetMessages(ctx context.Context, jobID string, limit, offset int) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return jobTable(s.messages, jobID).page(limit, offset), nil
}

func (s *MemoryStore) CountMessages(ctx context.Context, jobID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(jobTable(s.messages, jobID).rows), nil
}

func (s *MemoryStore) StoreLocations(ctx context.Context, jobID string, locations []models.Location) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	jobTable(s.locs, jobID).upsert(locations)
	return nil
}

func (s *MemoryStore) GetLocations(ctx context.Context, jobID string, limit, offset int) ([]models.Location, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return jobTable(s.locs, jobID).page(limit, offset), nil
}

func (s *MemoryStore) CountLocations(ctx context.Context, jobID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(jobTable(s.locs, jobID).rows), nil
}

func (s *MemoryStore) StoreBrowsingEntries(ctx context.Context, jobID string, entries []models.BrowsingEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	jobTable(s.browsing, jobID).upsert(entries)
	return nil
}

func (s *MemoryStore) GetBrowsingEntries(ctx context.Context, jobID string, limit, offset int) ([]models.BrowsingEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return jobTable(s.browsing, jobID).page(limit, offset), nil
}

func (s *MemoryStore) CountBrowsingEntries(ctx context.Context, jobID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(jobTable(s.browsing, jobID).rows), nil
}

func (s *MemoryStore) Close() error { return nil }

func jobTable[T models.Record](m map[string]*table[T], jobID string) *table[T] {
	t, ok := m[jobID]
	if !ok {
		t = newTable[T]()
		m[jobID] = t
	}
	return t
}
