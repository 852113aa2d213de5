package syncjob

import (
	"fmt"
	"time"

	"github.com/hri/contact-sync/internal/contacts"
	"github.com/hri/contact-sync/internal/importer"
	"github.com/hri/contact-sync/internal/reconcile"
)

// FileError is a source file that was not imported.
type FileError struct {
	File string
	Err  error
}

func (e FileError) Error() string { return fmt.Sprintf("%s: %v", e.File, e.Err) }

func (e FileError) Unwrap() error { return e.Err }

// SourceSummary totals one input source.
type SourceSummary struct {
	Source     contacts.Source
	Files      int
	Records    int
	Skipped    int
	Batches    int
	Queued     int
	Failures   []importer.BatchFailure
	FileErrors []FileError
}

// Summary is the outcome of one run.
type Summary struct {
	Started      time.Time
	Duration     time.Duration
	Welcome      SourceSummary
	Segments     SourceSummary
	Window       reconcile.Window
	Bounced      int
	Unsubscribed int
	RunLogRows   int
}

// FailedBatches counts rejected bulk import batches across both sources.
func (s *Summary) FailedBatches() int {
	return len(s.Welcome.Failures) + len(s.Segments.Failures)
}

// Failed reports whether any batch or file was not imported.
func (s *Summary) Failed() bool {
	return s.FailedBatches() > 0 || len(s.Welcome.FileErrors) > 0 || len(s.Segments.FileErrors) > 0
}
