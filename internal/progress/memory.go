package progress

import (
	"context"
	"sync"
	"time"

	"github.com/Anirudh7369/UFDR-Agent/internal/models"
)

// MemoryPublisher keeps job state in process memory behind a mutex. Used in
// tests and single-process deployments.
type MemoryPublisher struct {
	mu   sync.Mutex
	jobs map[string]*jobEntry
}

type jobEntry struct {
	domains   map[string]*models.DomainStatus
	createdAt time.Time
	updatedAt time.Time
}

// NewMemoryPublisher creates an empty in-memory publisher.
func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{jobs: make(map[string]*jobEntry)}
}

func (p *MemoryPublisher) InitDomain(ctx context.Context, jobID, domain string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	d := p.domain(jobID, domain)
	*d = models.DomainStatus{Status: models.StatusPending}
	return nil
}

func (p *MemoryPublisher) SetStatus(ctx context.Context, jobID, domain, status string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	d := p.domain(jobID, domain)
	d.Status = status
	return nil
}

func (p *MemoryPublisher) SetTotal(ctx context.Context, jobID, domain string, n int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.domain(jobID, domain).Total = n
	return nil
}

func (p *MemoryPublisher) IncrementProcessed(ctx context.Context, jobID, domain string, n int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.domain(jobID, domain).Processed += n
	return nil
}

func (p *MemoryPublisher) SetError(ctx context.Context, jobID, domain, message string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.domain(jobID, domain).Error = message
	return nil
}

func (p *MemoryPublisher) Snapshot(ctx context.Context, jobID string) (*models.JobStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	entry, ok := p.jobs[jobID]
	if !ok {
		return nil, ErrJobNotFound
	}

	domains := make(map[string]models.DomainStatus, len(entry.domains))
	for name, d := range entry.domains {
		ds := *d
		ds.Extracted = ds.Status == models.StatusCompleted && ds.Processed > 0
		domains[name] = ds
	}

	return &models.JobStatus{
		JobID:         jobID,
		OverallStatus: models.DeriveOverall(domains),
		Domains:       domains,
		CreatedAt:     entry.createdAt,
		UpdatedAt:     entry.updatedAt,
	}, nil
}

func (p *MemoryPublisher) Close(ctx context.Context) error { return nil }

// domain returns the mutable per-domain entry, creating job and domain
// records on first touch. Callers hold the mutex.
func (p *MemoryPublisher) domain(jobID, domain string) *models.DomainStatus {
	now := time.Now().UTC()
	entry, ok := p.jobs[jobID]
	if !ok {
		entry = &jobEntry{domains: make(map[string]*models.DomainStatus), createdAt: now}
		p.jobs[jobID] = entry
	}
	entry.updatedAt = now
	d, ok := entry.domains[domain]
	if !ok {
		d = &models.DomainStatus{Status: models.StatusPending}
		entry.domains[domain] = d
	}
	return d
}
