// Package importer posts record batches to the bulk import endpoint one at
// a time and reports every batch that failed.
package importer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hri/contact-sync/internal/activecampaign"
	"github.com/hri/contact-sync/internal/batch"
	"github.com/hri/contact-sync/internal/contacts"
	"github.com/hri/contact-sync/internal/pkg/logger"
)

// BulkImporter is the part of the API client the importer needs.
type BulkImporter interface {
	BulkImport(ctx context.Context, contacts json.RawMessage) (*activecampaign.BulkImportResponse, error)
}

// BatchFailure identifies the records of a batch that was not accepted.
// Retryable marks transient failures (throttling, 5xx, network) that a
// later run may clear.
type BatchFailure struct {
	Index     int
	Lo, Hi    int
	Emails    []string
	Err       error
	Retryable bool
}

func (f BatchFailure) Error() string {
	return fmt.Sprintf("batch %d [%d,%d): %v", f.Index, f.Lo, f.Hi, f.Err)
}

func (f BatchFailure) Unwrap() error { return f.Err }

// Report summarizes one import.
type Report struct {
	Records  int
	Batches  int
	Posted   int
	Queued   int
	Failures []BatchFailure
}

// Failed reports whether any batch was rejected.
func (r *Report) Failed() bool { return len(r.Failures) > 0 }

// Importer posts batches sequentially with a pause after each call.
type Importer struct {
	api     BulkImporter
	ceiling int
	spacing time.Duration
	log     *logger.Logger
}

// New creates an Importer. ceiling is the per-call payload budget in bytes.
func New(api BulkImporter, ceiling int, spacing time.Duration, log *logger.Logger) *Importer {
	if log == nil {
		log = logger.Default()
	}
	return &Importer{api: api, ceiling: ceiling, spacing: spacing, log: log}
}

// Import partitions records and posts each batch once. A rejected batch is
// recorded in the report and the remaining batches are still posted. The
// returned error is reserved for partitioning failures and cancellation.
func (im *Importer) Import(ctx context.Context, records []contacts.Record) (*Report, error) {
	batches, err := batch.Split(records, im.ceiling)
	if err != nil {
		return nil, err
	}

	report := &Report{Records: len(records), Batches: len(batches)}

	for _, b := range batches {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		payload, err := b.Encode()
		if err != nil {
			report.Failures = append(report.Failures, failure(b, err))
			continue
		}
		if batch.Oversized(payload, im.ceiling) {
			im.log.Warn("batch exceeds payload ceiling", "batch", b.Index, "bytes", len(payload), "ceiling", im.ceiling)
		}

		resp, err := im.api.BulkImport(ctx, payload)
		report.Posted++
		if err != nil {
			f := failure(b, err)
			report.Failures = append(report.Failures, f)
			im.log.Error("bulk import batch failed",
				"batch", b.Index, "lo", b.Lo, "hi", b.Hi, "records", b.Len(),
				"retryable", f.Retryable, "error", err.Error())
		} else {
			report.Queued += resp.QueuedContacts
			im.log.Info("bulk import batch queued",
				"batch", b.Index, "records", b.Len(), "queued", resp.QueuedContacts, "batch_id", resp.BatchID)
		}

		if err := sleep(ctx, im.spacing); err != nil {
			return report, err
		}
	}

	return report, nil
}

func failure(b batch.Batch, err error) BatchFailure {
	emails := make([]string, len(b.Records))
	for i, r := range b.Records {
		emails[i] = r.Email
	}
	return BatchFailure{
		Index:     b.Index,
		Lo:        b.Lo,
		Hi:        b.Hi,
		Emails:    emails,
		Err:       err,
		Retryable: activecampaign.IsRetryable(err),
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
