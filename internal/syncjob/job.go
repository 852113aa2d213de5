// Package syncjob runs one scheduled contact sync: import both spreadsheet
// sources, reconcile bounced and unsubscribed contacts, then append the run
// log.
package syncjob

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hri/contact-sync/internal/collector"
	"github.com/hri/contact-sync/internal/config"
	"github.com/hri/contact-sync/internal/contacts"
	"github.com/hri/contact-sync/internal/filestore"
	"github.com/hri/contact-sync/internal/importer"
	"github.com/hri/contact-sync/internal/pkg/distlock"
	"github.com/hri/contact-sync/internal/pkg/logger"
	"github.com/hri/contact-sync/internal/reconcile"
	"github.com/hri/contact-sync/internal/runlog"
	"github.com/hri/contact-sync/internal/tabular"
)

// API is everything the job calls on the marketing platform.
type API interface {
	importer.BulkImporter
	collector.API
}

// Deps are the collaborators of a Job.
type Deps struct {
	API    API
	Store  filestore.Store
	Lock   distlock.DistLock
	Logger *logger.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

// Job wires the stages together. Build it with New.
type Job struct {
	cfg       *config.Config
	store     filestore.Store
	importer  *importer.Importer
	collector *collector.Collector
	appender  *runlog.Appender
	log       *logger.Logger
	now       func() time.Time
}

// New creates a Job from cfg and deps.
func New(cfg *config.Config, deps Deps) *Job {
	log := deps.Logger
	if log == nil {
		log = logger.Default()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	ac := cfg.ActiveCampaign
	return &Job{
		cfg:      cfg,
		store:    deps.Store,
		importer: importer.New(deps.API, ac.PayloadCeiling(), ac.ImportSpacing(), log),
		collector: collector.New(deps.API, collector.Options{
			PageSize: ac.PageSize,
			Width:    ac.Workers,
			FieldID:  ac.ConstituentField,
			Logger:   log,
		}),
		appender: runlog.NewAppender(deps.Store, deps.Lock, cfg.Folders.LogDump, cfg.Folders.RunLogFile, log),
		log:      log,
		now:      now,
	}
}

// Run executes every stage once. Stage failures other than cancellation
// are collected in the summary and the run log is still written; the
// returned error joins them.
func (j *Job) Run(ctx context.Context) (*Summary, error) {
	loc := j.cfg.Window.Location()
	started := j.now().In(loc)
	sum := &Summary{Started: started}

	var errs []error
	fail := func(err error) {
		j.log.Error("stage failed", "error", err.Error())
		errs = append(errs, err)
	}

	sum.Welcome = j.importSource(ctx, contacts.SourceWelcome, j.cfg.Folders.Welcome)
	sum.Segments = j.importSource(ctx, contacts.SourceSegmentation, j.cfg.Folders.Segmentation)
	if err := ctx.Err(); err != nil {
		return sum, err
	}

	sum.Window = reconcile.NewWindow(started, j.cfg.Window.LookbackDays, j.cfg.Window.WeeklyMultiplier)
	j.log.Info("reconciliation window", "window", sum.Window.String())

	for _, cat := range []collector.Category{collector.Bounced, collector.Unsubscribed} {
		n, err := j.reconcileCategory(ctx, cat, sum.Window)
		if ctx.Err() != nil {
			return sum, ctx.Err()
		}
		if err != nil {
			fail(err)
			continue
		}
		if cat == collector.Bounced {
			sum.Bounced = n
		} else {
			sum.Unsubscribed = n
		}
	}

	sum.Duration = j.now().Sub(started)
	rows, err := j.appender.Append(ctx, runlog.Entry{
		ExecutedAt:   started,
		Duration:     sum.Duration,
		Welcome:      sum.Welcome.Records,
		Segments:     sum.Segments.Records,
		DateRange:    sum.Window.String(),
		Bounced:      sum.Bounced,
		Unsubscribed: sum.Unsubscribed,
	})
	if err != nil {
		fail(fmt.Errorf("append run log: %w", err))
	}
	sum.RunLogRows = rows

	j.log.Info("sync run finished",
		"welcome", sum.Welcome.Records, "segments", sum.Segments.Records,
		"bounced", sum.Bounced, "unsubscribed", sum.Unsubscribed,
		"failed_batches", sum.FailedBatches(), "file_errors", len(sum.Welcome.FileErrors)+len(sum.Segments.FileErrors),
		"duration", sum.Duration.Round(time.Second).String())

	return sum, errors.Join(errs...)
}

// importSource maps every supported file in folder and imports the combined
// records of the source in one partitioned pass. A file that cannot be read
// or mapped is reported and skipped.
func (j *Job) importSource(ctx context.Context, source contacts.Source, folder string) SourceSummary {
	sum := SourceSummary{Source: source}
	log := j.log.With("source", string(source))

	files, err := j.store.List(ctx, folder)
	if err != nil {
		sum.FileErrors = append(sum.FileErrors, FileError{File: folder, Err: fmt.Errorf("list %s files: %w", source, err)})
		log.Error("listing source folder failed", "folder", folder, "error", err.Error())
		return sum
	}

	var records []contacts.Record
	for _, f := range files {
		if ctx.Err() != nil {
			return sum
		}
		if !tabular.Supported(f.Name) {
			log.Debug("skipping unsupported file", "file", f.Name)
			continue
		}

		res, err := j.mapFile(ctx, source, folder, f.Name)
		if err != nil {
			sum.FileErrors = append(sum.FileErrors, FileError{File: f.Name, Err: err})
			log.Error("file skipped", "file", f.Name, "error", err.Error())
			continue
		}
		sum.Files++
		sum.Skipped += res.Skipped
		if res.Skipped > 0 {
			log.Warn("rows skipped", "file", f.Name, "skipped", res.Skipped)
		}
		log.Info("file mapped", "file", f.Name, "records", len(res.Records))
		records = append(records, res.Records...)
	}
	sum.Records = len(records)

	report, err := j.importer.Import(ctx, records)
	if report != nil {
		sum.Batches = report.Batches
		sum.Queued = report.Queued
		sum.Failures = report.Failures
	}
	if err != nil {
		if ctx.Err() == nil {
			sum.FileErrors = append(sum.FileErrors, FileError{File: folder, Err: fmt.Errorf("import %s records: %w", source, err)})
		}
		return sum
	}
	log.Info("source imported", "files", sum.Files, "records", sum.Records, "batches", sum.Batches, "queued", sum.Queued)
	return sum
}

func (j *Job) mapFile(ctx context.Context, source contacts.Source, folder, name string) (*contacts.FileResult, error) {
	data, err := j.store.Get(ctx, folder, name)
	if err != nil {
		return nil, err
	}
	table, err := tabular.Read(name, data)
	if err != nil {
		return nil, err
	}
	return contacts.Map(source, name, table)
}

func (j *Job) reconcileCategory(ctx context.Context, cat collector.Category, w reconcile.Window) (int, error) {
	remote, err := j.collector.Collect(ctx, cat)
	if err != nil {
		return 0, err
	}

	kept, err := reconcile.Reconcile(ctx, cat, remote, w, j.collector.ConstituentIDs)
	if err != nil {
		return 0, err
	}

	data, err := reconcile.EncodeCSV(cat, kept)
	if err != nil {
		return 0, fmt.Errorf("encode %s export: %w", cat.Name, err)
	}
	name := reconcile.FileName(cat, w)
	if err := j.store.Put(ctx, j.cfg.Folders.Output, name, data); err != nil {
		return 0, fmt.Errorf("upload %s export: %w", cat.Name, err)
	}

	j.log.Info("reconciliation exported", "category", cat.Name, "collected", len(remote), "in_window", len(kept), "file", name)
	return len(kept), nil
}
