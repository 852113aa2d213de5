package reconcile

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"time"

	"github.com/hri/contact-sync/internal/activecampaign"
	"github.com/hri/contact-sync/internal/collector"
)

// Contact is a collected contact inside the window, joined with its
// constituent id.
type Contact struct {
	Email         string
	FirstName     string
	LastName      string
	BouncedDate   time.Time
	CDate         time.Time
	UDate         time.Time
	ConstituentID string

	id string
}

// IDLookup resolves constituent ids; result i belongs to ids[i].
type IDLookup func(ctx context.Context, ids []string) ([]string, error)

// Filter keeps the contacts whose category date falls inside w. Bounced
// contacts are dated by bounced_date, unsubscribed contacts by udate.
// Contacts with a missing or malformed date are dropped.
func Filter(cat collector.Category, in []collector.RemoteContact, w Window) []Contact {
	var out []Contact
	for _, rc := range in {
		c := Contact{Email: rc.Email, FirstName: rc.FirstName, LastName: rc.LastName, id: rc.ID}

		var key time.Time
		var ok bool
		switch cat.Status {
		case activecampaign.StatusBounced:
			c.BouncedDate, ok = ParseDate(rc.BouncedDate)
			key = c.BouncedDate
		case activecampaign.StatusUnsubscribed:
			c.CDate, _ = ParseDate(rc.CDate)
			c.UDate, ok = ParseDate(rc.UDate)
			key = c.UDate
		}
		if !ok || !w.Contains(key) {
			continue
		}
		out = append(out, c)
	}
	return out
}

// Reconcile filters in to the window and looks up the constituent id of
// every surviving contact.
func Reconcile(ctx context.Context, cat collector.Category, in []collector.RemoteContact, w Window, lookup IDLookup) ([]Contact, error) {
	kept := Filter(cat, in, w)
	if len(kept) == 0 {
		return kept, nil
	}

	ids := make([]string, len(kept))
	for i, c := range kept {
		ids[i] = c.id
	}
	constituents, err := lookup(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("look up %s constituent ids: %w", cat.Name, err)
	}
	for i := range kept {
		kept[i].ConstituentID = constituents[i]
	}
	return kept, nil
}

// Headers returns the export column names for a category.
func Headers(cat collector.Category) []string {
	if cat.Status == activecampaign.StatusUnsubscribed {
		return []string{"Email", "First Name", "Last Name", "Subscribed Date", "Unsubscribed Date", "RE - Constituent ID"}
	}
	return []string{"Email", "First Name", "Last Name", "Bounced Date", "RE - Constituent ID"}
}

// Rows renders contacts in Headers order.
func Rows(cat collector.Category, contacts []Contact) [][]string {
	rows := make([][]string, len(contacts))
	for i, c := range contacts {
		if cat.Status == activecampaign.StatusUnsubscribed {
			rows[i] = []string{c.Email, c.FirstName, c.LastName, formatDate(c.CDate), formatDate(c.UDate), c.ConstituentID}
		} else {
			rows[i] = []string{c.Email, c.FirstName, c.LastName, formatDate(c.BouncedDate), c.ConstituentID}
		}
	}
	return rows
}

// EncodeCSV writes the export table with a header row.
func EncodeCSV(cat collector.Category, contacts []Contact) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(Headers(cat)); err != nil {
		return nil, err
	}
	if err := w.WriteAll(Rows(cat, contacts)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// FileName names the export of a category for window w.
func FileName(cat collector.Category, w Window) string {
	return fmt.Sprintf("%s_contacts_%s.csv", cat.Name, w)
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(dateLayout)
}
