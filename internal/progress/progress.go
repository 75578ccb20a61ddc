// Package progress records per-domain and overall job state in a shared,
// poll-friendly store. Publishers are safe under concurrent calls from the
// domain passes of one job.
package progress

import (
	"context"
	"errors"
	"fmt"

	"github.com/Anirudh7369/UFDR-Agent/internal/config"
	"github.com/Anirudh7369/UFDR-Agent/internal/models"
)

// ErrJobNotFound is returned by Snapshot for unknown job ids.
var ErrJobNotFound = errors.New("job not found")

// Publisher is the single gateway to shared job state; extractors never
// touch it directly, only through their loader and orchestrator.
type Publisher interface {
	// InitDomain resets a domain to a clean pending state: zero counters,
	// no error. Called once per domain at job start so re-runs start fresh.
	InitDomain(ctx context.Context, jobID, domain string) error
	SetStatus(ctx context.Context, jobID, domain, status string) error
	SetTotal(ctx context.Context, jobID, domain string, n int) error
	IncrementProcessed(ctx context.Context, jobID, domain string, n int) error
	SetError(ctx context.Context, jobID, domain, message string) error
	Snapshot(ctx context.Context, jobID string) (*models.JobStatus, error)
	Close(ctx context.Context) error
}

// NewPublisher creates a publisher backend based on configuration.
func NewPublisher(ctx context.Context, cfg config.ProgressConfig) (Publisher, error) {
	switch cfg.Backend {
	case "memory":
		return NewMemoryPublisher(), nil
	case "mongodb":
		return NewMongoPublisher(ctx, cfg)
	case "dynamodb":
		return NewDynamoPublisher(cfg)
	default:
		return nil, fmt.Errorf("unsupported progress backend: %s", cfg.Backend)
	}
}
