package activecampaign

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/hri/contact-sync/internal/pkg/httpretry"
)

// Config holds client configuration
type Config struct {
	BaseURL        string
	APIToken       string
	BulkImportPath string
	Timeout        time.Duration
	MaxRetries     int
	// Limiter is shared by every request issued through the client.
	Limiter httpretry.Limiter
}

// Status is the contact status filter accepted by GET /contacts
type Status int

const (
	StatusAny          Status = -1
	StatusUnconfirmed  Status = 0
	StatusActive       Status = 1
	StatusUnsubscribed Status = 2
	StatusBounced      Status = 3
)

// FlexInt decodes totals that the API sends either as a JSON number or a string.
type FlexInt int

func (f *FlexInt) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	if len(data) == 0 || string(data) == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.Atoi(string(data))
	if err != nil {
		return fmt.Errorf("invalid integer %q: %w", data, err)
	}
	*f = FlexInt(n)
	return nil
}

// Contact is a contact as returned by the contacts endpoints
type Contact struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	Phone       string `json:"phone,omitempty"`
	CDate       string `json:"cdate,omitempty"`
	UDate       string `json:"udate,omitempty"`
	BouncedDate string `json:"bounced_date,omitempty"`
}

// ListMeta is the meta block of a contact list response
type ListMeta struct {
	Total FlexInt `json:"total"`
}

// ContactListResponse is the body of GET /contacts
type ContactListResponse struct {
	Contacts []Contact `json:"contacts"`
	Meta     ListMeta  `json:"meta"`
}

// FieldValue is a custom field value attached to a contact
type FieldValue struct {
	Contact string `json:"contact,omitempty"`
	Field   string `json:"field"`
	Value   string `json:"value"`
}

// ContactDetailResponse is the body of GET /contacts/{id}
type ContactDetailResponse struct {
	Contact     Contact      `json:"contact"`
	FieldValues []FieldValue `json:"fieldValues"`
}

// FieldValue returns the value of the given custom field and whether it was present.
func (r *ContactDetailResponse) FieldValue(fieldID string) (string, bool) {
	for _, fv := range r.FieldValues {
		if fv.Field == fieldID {
			return fv.Value, true
		}
	}
	return "", false
}

// BulkImportRequest is the body of the bulk import endpoint
type BulkImportRequest struct {
	Contacts json.RawMessage `json:"contacts"`
}

// BulkImportResponse is the body returned by a bulk import call
type BulkImportResponse struct {
	Success        int      `json:"success"`
	QueuedContacts int      `json:"queued_contacts"`
	BatchID        string   `json:"batchId"`
	Message        string   `json:"message,omitempty"`
	FailureReasons []string `json:"failureReasons,omitempty"`
}

// APIError is returned for any non-2xx response
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
	Outcome    httpretry.Outcome
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %s %s (status %d, %s): %s", e.Method, e.Path, e.StatusCode, e.Outcome, e.Body)
}
