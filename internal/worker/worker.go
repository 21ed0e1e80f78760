// Package worker is the per-log state machine (C7): fetch the current
// tree size, pull a bounded range of entries, parse and classify them,
// insert the resulting rows, then commit the cursor. Strictly sequential
// within one log; the Supervisor is what parallelizes across logs.
package worker

import (
	"context"
	"fmt"
	"log"
	"time"

	"itko.dev/internal/ctclient"
	"itko.dev/internal/leafparser"
	"itko.dev/internal/model"
	"itko.dev/internal/sink"
	"itko.dev/internal/telemetry"
)

const (
	defaultBatchSize    = 512
	defaultPollInterval = 5 * time.Second
	emptyBatchBackoff   = 5 * time.Second
)

// sinkRetryBackoff is a var, not a const, so tests can shrink it instead
// of waiting out the real retry interval.
var sinkRetryBackoff = 5 * time.Second

// Classifier supplies the base-domain for a DNS name; psl.Classifier
// satisfies this, tests can substitute a stub.
type Classifier interface {
	BaseOf(name string) string
}

// Inserter accepts a batch of rows, returning a retryable error via
// sink.Retryable when the store rejects the write transiently.
type Inserter interface {
	Insert(ctx context.Context, rows []model.DomainRow) error
}

// Source is the subset of ctclient.Client a Worker depends on.
type Source interface {
	TreeSize(ctx context.Context) (uint64, error)
	Fetch(ctx context.Context, start, end uint64) (ctclient.Entries, error)
}

// Cursor is the subset of offsetstore.Store a Worker depends on.
type Cursor interface {
	Load(name string) (uint64, error)
	Store(name string, v uint64) error
}

// Archiver is the optional batch archival sink (archive.Writer
// satisfies this). A Worker with no Archiver configured skips archival
// entirely; a failing Archiver only logs, since the column store insert
// is the authoritative write.
type Archiver interface {
	Write(ctx context.Context, logName string, start, end uint64, rows []model.DomainRow) error
}

// Config tunes a Worker's batching and polling cadence; zero values fall
// back to the §4.7 defaults.
type Config struct {
	BatchSize    uint64
	PollInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.BatchSize == 0 {
		c.BatchSize = defaultBatchSize
	}
	if c.PollInterval == 0 {
		c.PollInterval = defaultPollInterval
	}
	return c
}

// Worker drives one log to completion (if frozen) or forever (if usable).
type Worker struct {
	log        model.LogDescriptor
	source     Source
	cursor     Cursor
	classifier Classifier
	sink       Inserter
	archiver   Archiver
	cfg        Config
}

// Option configures optional Worker behavior not every deployment needs.
type Option func(*Worker)

// WithArchiver attaches an Archiver; every non-empty batch is written
// through it in addition to the Sink.
func WithArchiver(a Archiver) Option {
	return func(w *Worker) { w.archiver = a }
}

// New returns a Worker for desc, reading/writing its cursor under name
// desc.Name.
func New(desc model.LogDescriptor, source Source, cursor Cursor, classifier Classifier, s Inserter, cfg Config, opts ...Option) *Worker {
	w := &Worker{
		log:        desc,
		source:     source,
		cursor:     cursor,
		classifier: classifier,
		sink:       s,
		cfg:        cfg.withDefaults(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run executes the §4.7 state machine until ctx is cancelled or, for a
// frozen log, until the cursor reaches the tree size. It returns nil on
// either clean exit, and also returns nil whenever ctx is cancelled. A
// non-nil error is a fatal condition for this log only (§4.8): the offset
// file could not be read or written (including a corrupt one), or the log
// client surfaced a non-retryable error.
func (w *Worker) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		size, err := w.source.TreeSize(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("worker %s: tree size: %w", w.log.Name, err)
		}

		idx, err := w.cursor.Load(w.log.Name)
		if err != nil {
			return fmt.Errorf("worker %s: load cursor: %w", w.log.Name, err)
		}
		if idx < size {
			telemetry.CursorLag.WithLabelValues(w.log.Name).Set(float64(size - idx))
		} else {
			telemetry.CursorLag.WithLabelValues(w.log.Name).Set(0)
		}

		if idx >= size {
			if w.log.State == model.StateFrozen {
				log.Printf("[worker %s] reached frozen tree size %d, exiting", w.log.Name, size)
				return nil
			}
			if !sleep(ctx, w.cfg.PollInterval) {
				return nil
			}
			continue
		}

		end := idx + w.cfg.BatchSize - 1
		if end > size-1 {
			end = size - 1
		}

		entries, err := w.source.Fetch(ctx, idx, end)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("worker %s: fetch entries: %w", w.log.Name, err)
		}

		received := len(entries.LeafInput)
		if received == 0 {
			if !sleep(ctx, emptyBatchBackoff) {
				return nil
			}
			continue
		}

		rows := w.parseRange(idx, entries)

		if len(rows) > 0 {
			if err := w.insertWithRetry(ctx, rows); err != nil {
				return nil // context cancelled during the retry wait
			}
			telemetry.RowsWritten.WithLabelValues(w.log.Name).Add(float64(len(rows)))
			w.archiveBestEffort(ctx, idx, idx+uint64(received)-1, rows)
		}

		if err := w.cursor.Store(w.log.Name, idx+uint64(received)); err != nil {
			return fmt.Errorf("worker %s: commit cursor: %w", w.log.Name, err)
		}
	}
}

// parseRange parses the leaves received for the range starting at idx
// into rows, one per DNS name per certificate, stamped with a single
// ingestion timestamp for the whole batch (§4.7 step 5).
func (w *Worker) parseRange(idx uint64, entries ctclient.Entries) []model.DomainRow {
	now := time.Now().UTC()
	var rows []model.DomainRow

	for _, leaf := range entries.LeafInput {
		rec, reason := leafparser.Parse(leaf)
		if reason != leafparser.ReasonNone {
			continue
		}
		for _, name := range rec.Names {
			rows = append(rows, model.DomainRow{
				TS:          now,
				Domain:      name,
				BaseDomain:  w.classifier.BaseOf(name),
				Fingerprint: rec.Fingerprint,
				Issuer:      rec.IssuerRFC4514,
				Subject:     rec.SubjectRFC4514,
				SAN:         rec.Names,
				NotBefore:   rec.NotBefore,
				NotAfter:    rec.NotAfter,
				LogName:     w.log.Name,
			})
		}
	}
	return rows
}

// insertWithRetry retries the batch forever on a retryable sink error
// (cursor left unadvanced) and also retries, after logging, on a
// non-retryable one: the engine favors availability over giving up on a
// log (§4.7 step 6, §7). It returns a non-nil error only when ctx is
// cancelled mid-retry.
func (w *Worker) insertWithRetry(ctx context.Context, rows []model.DomainRow) error {
	for {
		err := w.sink.Insert(ctx, rows)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		wait := sinkRetryBackoff
		if sink.Retryable(err) {
			log.Printf("[worker %s] sink insert failed, retrying in %s: %v", w.log.Name, wait, err)
		} else {
			log.Printf("[worker %s] sink rejected batch, retrying in %s (operator action may be required): %v", w.log.Name, wait, err)
			telemetry.ReportError(err, w.log.Name)
		}

		if !sleep(ctx, wait) {
			return ctx.Err()
		}
	}
}

// archiveBestEffort writes rows through the optional Archiver. A failure
// here never blocks cursor commit: the column store insert already
// durably accepted the batch, and archival is a supplementary copy.
func (w *Worker) archiveBestEffort(ctx context.Context, start, end uint64, rows []model.DomainRow) {
	if w.archiver == nil {
		return
	}
	if err := w.archiver.Write(ctx, w.log.Name, start, end, rows); err != nil {
		log.Printf("[worker %s] archive write failed for range [%d, %d]: %v", w.log.Name, start, end, err)
	}
}

// sleep waits for d or ctx cancellation, reporting which happened first.
func sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
