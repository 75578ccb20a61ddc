// Package loader buffers typed records and flushes them in bounded
// transactional batches, deduplicating by natural key on the way.
package loader

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/Anirudh7369/UFDR-Agent/internal/models"
	"github.com/Anirudh7369/UFDR-Agent/internal/progress"
)

// ErrStoreWrite means a batch could not be written even record-by-record.
// The domain pass is marked failed with the store error captured.
var ErrStoreWrite = errors.New("store write failure")

// Per-domain default batch sizes, sized to the domain's payload weight.
var defaultBatchSizes = map[string]int{
	models.DomainApps:      50,
	models.DomainCallLogs:  20,
	models.DomainMessages:  50,
	models.DomainLocations: 100,
	models.DomainBrowsing:  100,
}

// BatchSize returns the effective batch size for a domain; override wins
// when positive.
func BatchSize(domain string, override int) int {
	if override > 0 {
		return override
	}
	if n, ok := defaultBatchSizes[domain]; ok {
		return n
	}
	return 50
}

// Flusher writes one batch as a single atomic store operation.
type Flusher[T models.Record] func(ctx context.Context, batch []T) error

// Loader accumulates records up to the batch size and flushes them through
// a Flusher. Duplicate natural keys within the buffer are collapsed
// last-write-wins; cross-batch duplicates ride on the store's upsert.
// Processed counts are published once per flushed batch, bounding publisher
// call volume.
type Loader[T models.Record] struct {
	jobID     string
	domain    string
	batchSize int
	flush     Flusher[T]
	publisher progress.Publisher

	buf     []T
	index   map[string]int
	stored  int
	skipped int
	lastErr error
}

// New creates a loader for one domain pass of one job.
func New[T models.Record](jobID, domain string, batchSize int, flush Flusher[T], pub progress.Publisher) *Loader[T] {
	return &Loader[T]{
		jobID:     jobID,
		domain:    domain,
		batchSize: batchSize,
		flush:     flush,
		publisher: pub,
		index:     make(map[string]int),
	}
}

// Add buffers one record, flushing when the batch size is reached. A key
// collision replaces the buffered record wholesale, sub-records included.
func (l *Loader[T]) Add(ctx context.Context, rec T) error {
	if i, ok := l.index[rec.Key()]; ok {
		l.buf[i] = rec
		return nil
	}
	l.index[rec.Key()] = len(l.buf)
	l.buf = append(l.buf, rec)

	if len(l.buf) >= l.batchSize {
		return l.Flush(ctx)
	}
	return nil
}

// Flush writes the buffered batch. A failed batch is retried once whole,
// then record-by-record to isolate the offending records; residual per-record
// failures are counted as skips. Only a batch with no writable record at all
// aborts the pass.
func (l *Loader[T]) Flush(ctx context.Context) error {
	if len(l.buf) == 0 {
		return nil
	}
	batch := l.buf
	l.buf = nil
	l.index = make(map[string]int)

	stored := len(batch)
	err := l.flush(ctx, batch)
	if err != nil {
		log.Printf("loader: [%s/%s] batch of %d failed, retrying: %v", l.jobID, l.domain, len(batch), err)
		err = l.flush(ctx, batch)
	}
	if err != nil {
		stored = l.flushIndividually(ctx, batch, err)
		if stored == 0 {
			return fmt.Errorf("%w: %v", ErrStoreWrite, l.lastErr)
		}
	}

	l.stored += stored
	if perr := l.publisher.IncrementProcessed(ctx, l.jobID, l.domain, stored); perr != nil {
		log.Printf("loader: [%s/%s] failed to publish progress: %v", l.jobID, l.domain, perr)
	}
	return nil
}

// Stats reports how many records were stored and skipped so far.
func (l *Loader[T]) Stats() (stored, skipped int) {
	return l.stored, l.skipped
}

func (l *Loader[T]) flushIndividually(ctx context.Context, batch []T, batchErr error) int {
	log.Printf("loader: [%s/%s] batch retry failed, isolating records: %v", l.jobID, l.domain, batchErr)
	l.lastErr = batchErr

	stored := 0
	for _, rec := range batch {
		if err := l.flush(ctx, []T{rec}); err != nil {
			l.skipped++
			l.lastErr = err
			log.Printf("loader: [%s/%s] record %q skipped: %v", l.jobID, l.domain, rec.Key(), err)
			continue
		}
		stored++
	}
	return stored
}
