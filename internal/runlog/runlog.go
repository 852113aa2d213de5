// Package runlog appends one row of run metrics per job run to a
// cumulative CSV kept in the file store.
package runlog

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/hri/contact-sync/internal/filestore"
	"github.com/hri/contact-sync/internal/pkg/distlock"
	"github.com/hri/contact-sync/internal/pkg/logger"
)

// ErrLocked is returned when another run holds the run-log lock.
var ErrLocked = errors.New("run log is locked by another run")

// ExecutedAtLayout formats the run start in the configured zone.
const ExecutedAtLayout = "2006-01-02 15:04:05.000000 MST-0700"

// Header is the column order of the run log.
var Header = []string{
	"executed_at_AEST",
	"duration_in_mins",
	"num_contacts_welcome",
	"num_contacts_all_segments",
	"date_range_bounced_unsubbed_contacts",
	"num_contacts_bounced",
	"num_contacts_unsubbed",
}

// Entry is the metrics of one run.
type Entry struct {
	ExecutedAt   time.Time
	Duration     time.Duration
	Welcome      int
	Segments     int
	DateRange    string
	Bounced      int
	Unsubscribed int
}

// Values renders the entry in Header order.
func (e Entry) Values() map[string]string {
	return map[string]string{
		"executed_at_AEST":                     e.ExecutedAt.Format(ExecutedAtLayout),
		"duration_in_mins":                     strconv.FormatFloat(math.Round(e.Duration.Minutes()*10)/10, 'f', 1, 64),
		"num_contacts_welcome":                 strconv.Itoa(e.Welcome),
		"num_contacts_all_segments":            strconv.Itoa(e.Segments),
		"date_range_bounced_unsubbed_contacts": e.DateRange,
		"num_contacts_bounced":                 strconv.Itoa(e.Bounced),
		"num_contacts_unsubbed":                strconv.Itoa(e.Unsubscribed),
	}
}

// Appender performs the read-modify-write of the run log under a lock.
type Appender struct {
	store  filestore.Store
	lock   distlock.DistLock
	folder string
	file   string
	log    *logger.Logger
}

// NewAppender creates an Appender. A nil lock means runs are never concurrent.
func NewAppender(store filestore.Store, lock distlock.DistLock, folder, file string, log *logger.Logger) *Appender {
	if lock == nil {
		lock = distlock.NoopLock{}
	}
	if log == nil {
		log = logger.Default()
	}
	return &Appender{store: store, lock: lock, folder: folder, file: file, log: log}
}

// Append adds e as the last row of the log, creating the log with a header
// when it does not exist. Existing rows are written back unchanged. It
// returns the number of data rows in the log afterwards.
func (a *Appender) Append(ctx context.Context, e Entry) (int, error) {
	acquired, err := a.lock.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquiring run log lock: %w", err)
	}
	if !acquired {
		return 0, ErrLocked
	}
	defer func() {
		if err := a.lock.Release(context.WithoutCancel(ctx)); err != nil {
			a.log.Warn("releasing run log lock failed", "error", err.Error())
		}
	}()

	rows, err := a.load(ctx)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		rows = [][]string{Header}
	}

	rows = append(rows, align(rows[0], e.Values()))

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.WriteAll(rows); err != nil {
		return 0, fmt.Errorf("encoding run log: %w", err)
	}
	if err := a.store.Put(ctx, a.folder, a.file, buf.Bytes()); err != nil {
		return 0, fmt.Errorf("writing run log: %w", err)
	}

	a.log.Info("run log updated", "file", a.file, "rows", len(rows)-1)
	return len(rows) - 1, nil
}

func (a *Appender) load(ctx context.Context) ([][]string, error) {
	data, err := a.store.Get(ctx, a.folder, a.file)
	if errors.Is(err, filestore.ErrNotFound) {
		a.log.Info("run log not found, creating", "file", a.file)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading run log: %w", err)
	}

	r := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})))
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parsing run log: %w", err)
	}
	return rows, nil
}

// align orders values by an existing header. Columns the header lacks are
// dropped; header columns without a value are left blank.
func align(header []string, values map[string]string) []string {
	row := make([]string, len(header))
	for i, col := range header {
		row[i] = values[col]
	}
	return row
}
