package storage

import (
	"context"
	"fmt"

	"github.com/Anirudh7369/UFDR-Agent/internal/config"
	"github.com/Anirudh7369/UFDR-Agent/internal/models"
)

// RecordStore defines the contract for persisting and reading domain
// records. Each Store call writes its batch as one atomic operation and
// upserts on (job id, natural key), so re-runs and duplicate keys update
// rather than duplicate.
type RecordStore interface {
	StoreApps(ctx context.Context, jobID string, apps []models.App) error
	GetApps(ctx context.Context, jobID string, limit, offset int) ([]models.App, error)
	CountApps(ctx context.Context, jobID string) (int, error)

	StoreCallLogs(ctx context.Context, jobID string, calls []models.CallLog) error
	GetCallLogs(ctx context.Context, jobID string, limit, offset int) ([]models.CallLog, error)
	CountCallLogs(ctx context.Context, jobID string) (int, error)

	StoreMessages(ctx context.Context, jobID string, messages []models.Message) error
	GetMessages(ctx context.Context, jobID string, limit, offset int) ([]models.Message, error)
	CountMessages(ctx context.Context, jobID string) (int, error)

	StoreLocations(ctx context.Context, jobID string, locations []models.Location) error
	GetLocations(ctx context.Context, jobID string, limit, offset int) ([]models.Location, error)
	CountLocations(ctx context.Context, jobID string) (int, error)

	StoreBrowsingEntries(ctx context.Context, jobID string, entries []models.BrowsingEntry) error
	GetBrowsingEntries(ctx context.Context, jobID string, limit, offset int) ([]models.BrowsingEntry, error)
	CountBrowsingEntries(ctx context.Context, jobID string) (int, error)

	Close() error
}

// NewRecordStore creates a record store instance based on configuration.
func NewRecordStore(cfg config.StorageConfig) (RecordStore, error) {
	switch cfg.Type {
	case "postgres":
		return NewPostgresStore(cfg)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}
