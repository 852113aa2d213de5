package contacts

import (
	"errors"
	"fmt"
)

// Source identifies one of the two spreadsheet feeds.
type Source string

const (
	SourceWelcome      Source = "welcome"
	SourceSegmentation Source = "segmentation"
)

// CustomField is a custom field value keyed by numeric field id.
type CustomField struct {
	ID    int    `json:"id"`
	Value string `json:"value"`
}

// Subscription subscribes the contact to a list.
type Subscription struct {
	ListID string `json:"listid"`
}

// Record is a normalized contact in the shape the bulk import endpoint
// accepts. Records are built by Map and not modified afterwards.
type Record struct {
	Email     string         `json:"email"`
	FirstName string         `json:"first_name"`
	LastName  string         `json:"last_name"`
	Phone     string         `json:"phone,omitempty"`
	Tags      []string       `json:"tags"`
	Fields    []CustomField  `json:"fields"`
	Subscribe []Subscription `json:"subscribe"`
}

// Field returns the value of custom field id.
func (r Record) Field(id int) (string, bool) {
	for _, f := range r.Fields {
		if f.ID == id {
			return f.Value, true
		}
	}
	return "", false
}

// ListIDs returns the ids of the lists the record subscribes to.
func (r Record) ListIDs() []string {
	ids := make([]string, len(r.Subscribe))
	for i, s := range r.Subscribe {
		ids[i] = s.ListID
	}
	return ids
}

// FileResult is the outcome of mapping one spreadsheet.
type FileResult struct {
	File    string
	Records []Record
	Skipped int
}

// ErrNoListRule is returned when no list rule matches a file name.
var ErrNoListRule = errors.New("no list rule matches")

// MissingColumnError reports a required column absent from a spreadsheet.
type MissingColumnError struct {
	Source Source
	File   string
	Column string
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("%s file %q is missing required column %q", e.Source, e.File, e.Column)
}
