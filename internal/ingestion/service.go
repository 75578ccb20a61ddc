// Package ingestion orchestrates extraction jobs: stage the archive once,
// then run one concurrent streaming pass per requested domain. Domains fail
// independently; only a staging failure takes the whole job down.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/Anirudh7369/UFDR-Agent/internal/archive"
	"github.com/Anirudh7369/UFDR-Agent/internal/config"
	"github.com/Anirudh7369/UFDR-Agent/internal/extract"
	"github.com/Anirudh7369/UFDR-Agent/internal/loader"
	"github.com/Anirudh7369/UFDR-Agent/internal/models"
	"github.com/Anirudh7369/UFDR-Agent/internal/progress"
	"github.com/Anirudh7369/UFDR-Agent/internal/storage"
	"github.com/Anirudh7369/UFDR-Agent/internal/ufdr"
)

// ErrUnknownDomain is returned when a job or query names a domain outside
// the extractable set.
var ErrUnknownDomain = errors.New("unknown domain")

// Job describes one extraction request. An empty Domains slice means all
// domains.
type Job struct {
	ID            string
	ArchiveSource string
	Domains       []string
}

// Service runs extraction jobs against a record store and publishes their
// progress.
type Service struct {
	cfg       *config.Config
	stager    *archive.Stager
	store     storage.RecordStore
	publisher progress.Publisher
}

// NewService creates an ingestion service.
func NewService(cfg *config.Config, stager *archive.Stager, store storage.RecordStore, pub progress.Publisher) *Service {
	return &Service{cfg: cfg, stager: stager, store: store, publisher: pub}
}

// RunJob executes one extraction job to completion. The returned error covers
// job-level failures (bad domain list, unreachable or invalid archive);
// per-domain outcomes are reported through the progress publisher.
func (s *Service) RunJob(ctx context.Context, job Job) error {
	domains := job.Domains
	if len(domains) == 0 {
		domains = models.AllDomains()
	}
	for _, d := range domains {
		if !knownDomain(d) {
			return fmt.Errorf("%w: %s", ErrUnknownDomain, d)
		}
	}

	// A fresh pending state per domain, counters zeroed, so re-running a
	// job converges on the same snapshot instead of accumulating.
	for _, d := range domains {
		if err := s.publisher.InitDomain(ctx, job.ID, d); err != nil {
			return fmt.Errorf("failed to initialize job state: %w", err)
		}
	}

	log.Printf("ingestion: [%s] staging archive %s", job.ID, job.ArchiveSource)
	staged, err := s.stager.Stage(ctx, job.ArchiveSource)
	if err != nil {
		for _, d := range domains {
			s.failDomain(ctx, job.ID, d, err)
		}
		return fmt.Errorf("failed to stage archive: %w", err)
	}
	defer staged.Cleanup()

	var wg sync.WaitGroup
	for _, d := range domains {
		wg.Add(1)
		go func(domain string) {
			defer wg.Done()
			s.runDomain(ctx, job.ID, domain, staged.Path)
		}(d)
	}
	wg.Wait()

	log.Printf("ingestion: [%s] job finished", job.ID)
	return nil
}

// Status returns the job's current progress snapshot.
func (s *Service) Status(ctx context.Context, jobID string) (*models.JobStatus, error) {
	return s.publisher.Snapshot(ctx, jobID)
}

// Records pages through a job's persisted records for one domain, returning
// the page alongside the domain's total row count.
func (s *Service) Records(ctx context.Context, jobID, domain string, limit, offset int) (any, int, error) {
	switch domain {
	case models.DomainApps:
		return pageRecords(ctx, jobID, limit, offset, s.store.GetApps, s.store.CountApps)
	case models.DomainCallLogs:
		return pageRecords(ctx, jobID, limit, offset, s.store.GetCallLogs, s.store.CountCallLogs)
	case models.DomainMessages:
		return pageRecords(ctx, jobID, limit, offset, s.store.GetMessages, s.store.CountMessages)
	case models.DomainLocations:
		return pageRecords(ctx, jobID, limit, offset, s.store.GetLocations, s.store.CountLocations)
	case models.DomainBrowsing:
		return pageRecords(ctx, jobID, limit, offset, s.store.GetBrowsingEntries, s.store.CountBrowsingEntries)
	default:
		return nil, 0, fmt.Errorf("%w: %s", ErrUnknownDomain, domain)
	}
}

func pageRecords[T models.Record](ctx context.Context, jobID string, limit, offset int,
	get func(context.Context, string, int, int) ([]T, error),
	count func(context.Context, string) (int, error)) (any, int, error) {
	records, err := get(ctx, jobID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := count(ctx, jobID)
	if err != nil {
		return nil, 0, err
	}
	if records == nil {
		records = []T{}
	}
	return records, total, nil
}

func (s *Service) runDomain(ctx context.Context, jobID, domain, archivePath string) {
	switch domain {
	case models.DomainApps:
		runPass[models.App](ctx, s, jobID, archivePath, extract.AppsExtractor{}, s.store.StoreApps)
	case models.DomainCallLogs:
		runPass[models.CallLog](ctx, s, jobID, archivePath, extract.CallsExtractor{}, s.store.StoreCallLogs)
	case models.DomainMessages:
		runPass[models.Message](ctx, s, jobID, archivePath, extract.MessagesExtractor{}, s.store.StoreMessages)
	case models.DomainLocations:
		runPass[models.Location](ctx, s, jobID, archivePath, extract.LocationsExtractor{}, s.store.StoreLocations)
	case models.DomainBrowsing:
		runPass[models.BrowsingEntry](ctx, s, jobID, archivePath, extract.BrowsingExtractor{}, s.store.StoreBrowsingEntries)
	}
}

// runPass streams the report document once for a single domain, extracting,
// deduplicating and loading its records. Every pass opens its own reader so
// concurrent passes never share decoder state.
func runPass[T models.Record](ctx context.Context, s *Service, jobID, archivePath string,
	ex extract.Extractor[T], store func(context.Context, string, []T) error) {
	domain := ex.Domain()

	defer func() {
		if rec := recover(); rec != nil {
			s.failDomain(ctx, jobID, domain, fmt.Errorf("panic in %s pass: %v", domain, rec))
		}
	}()

	if err := s.publisher.SetStatus(ctx, jobID, domain, models.StatusProcessing); err != nil {
		log.Printf("ingestion: [%s/%s] failed to publish status: %v", jobID, domain, err)
	}

	r, err := ufdr.OpenReport(archivePath)
	if err != nil {
		s.failDomain(ctx, jobID, domain, err)
		return
	}
	defer r.Close()

	ld := loader.New[T](jobID, domain, loader.BatchSize(domain, s.cfg.Ingestion.BatchSize),
		func(ctx context.Context, batch []T) error { return store(ctx, jobID, batch) },
		s.publisher)

	matched, skipped := 0, 0
	for {
		m, err := r.Next(ex.ModelTypes()...)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			s.failDomain(ctx, jobID, domain, err)
			return
		}
		matched++

		rec, err := ex.Extract(jobID, m)
		if errors.Is(err, extract.ErrSkipRecord) {
			skipped++
			log.Printf("ingestion: [%s/%s] skipping record %q: %v", jobID, domain, m.ID, err)
			continue
		}
		if err != nil {
			s.failDomain(ctx, jobID, domain, err)
			return
		}

		if err := ld.Add(ctx, rec); err != nil {
			s.failDomain(ctx, jobID, domain, err)
			return
		}
	}

	if err := ld.Flush(ctx); err != nil {
		s.failDomain(ctx, jobID, domain, err)
		return
	}

	// Totals are only knowable once the stream ends.
	if err := s.publisher.SetTotal(ctx, jobID, domain, matched); err != nil {
		log.Printf("ingestion: [%s/%s] failed to publish total: %v", jobID, domain, err)
	}
	if err := s.publisher.SetStatus(ctx, jobID, domain, models.StatusCompleted); err != nil {
		log.Printf("ingestion: [%s/%s] failed to publish status: %v", jobID, domain, err)
	}

	stored, storeSkipped := ld.Stats()
	log.Printf("ingestion: [%s/%s] completed: %d matched, %d stored, %d skipped, %d store-skipped",
		jobID, domain, matched, stored, skipped, storeSkipped)
}

func (s *Service) failDomain(ctx context.Context, jobID, domain string, cause error) {
	log.Printf("ingestion: [%s/%s] failed: %v", jobID, domain, cause)
	if err := s.publisher.SetError(ctx, jobID, domain, cause.Error()); err != nil {
		log.Printf("ingestion: [%s/%s] failed to publish error: %v", jobID, domain, err)
	}
	if err := s.publisher.SetStatus(ctx, jobID, domain, models.StatusFailed); err != nil {
		log.Printf("ingestion: [%s/%s] failed to publish status: %v", jobID, domain, err)
	}
}

func knownDomain(d string) bool {
	for _, known := range models.AllDomains() {
		if d == known {
			return true
		}
	}
	return false
}
