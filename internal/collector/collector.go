// Package collector fetches every contact of a status category with
// bounded parallel pagination and looks up their constituent ids.
package collector

import (
	"context"
	"errors"
	"fmt"

	"github.com/hri/contact-sync/internal/activecampaign"
	"github.com/hri/contact-sync/internal/pkg/logger"
	"github.com/hri/contact-sync/internal/pkg/workpool"
)

const (
	DefaultPageSize = 100
	DefaultWidth    = 5
)

// ErrInvalidTotal is returned when the API reports a negative contact count.
var ErrInvalidTotal = errors.New("invalid contact total")

// API is the subset of the ActiveCampaign client the collector calls.
type API interface {
	CountContacts(ctx context.Context, status activecampaign.Status) (int, error)
	ListContacts(ctx context.Context, status activecampaign.Status, limit, offset int) (*activecampaign.ContactListResponse, error)
	GetContact(ctx context.Context, contactID string) (*activecampaign.ContactDetailResponse, error)
}

// Category is a contact status to reconcile.
type Category struct {
	Name   string
	Status activecampaign.Status
}

var (
	Bounced      = Category{Name: "bounced", Status: activecampaign.StatusBounced}
	Unsubscribed = Category{Name: "unsubscribed", Status: activecampaign.StatusUnsubscribed}
)

// RemoteContact is a contact reduced to the fields reconciliation uses.
// Only the date fields of its category are set.
type RemoteContact struct {
	ID          string
	Email       string
	FirstName   string
	LastName    string
	BouncedDate string
	CDate       string
	UDate       string
}

func (c Category) project(in activecampaign.Contact) RemoteContact {
	out := RemoteContact{ID: in.ID, Email: in.Email, FirstName: in.FirstName, LastName: in.LastName}
	switch c.Status {
	case activecampaign.StatusBounced:
		out.BouncedDate = in.BouncedDate
	case activecampaign.StatusUnsubscribed:
		out.CDate = in.CDate
		out.UDate = in.UDate
	}
	return out
}

// Options configures a Collector. Zero values take the defaults.
type Options struct {
	PageSize int
	Width    int
	// FieldID is the custom field holding the constituent id.
	FieldID string
	Logger  *logger.Logger
}

// Collector pages through contacts. Rate limiting is left to the API client.
type Collector struct {
	api      API
	pageSize int
	width    int
	fieldID  string
	log      *logger.Logger
}

// New creates a Collector.
func New(api API, opts Options) *Collector {
	c := &Collector{api: api, pageSize: opts.PageSize, width: opts.Width, fieldID: opts.FieldID, log: opts.Logger}
	if c.pageSize <= 0 {
		c.pageSize = DefaultPageSize
	}
	if c.width <= 0 {
		c.width = DefaultWidth
	}
	if c.fieldID == "" {
		c.fieldID = "2"
	}
	if c.log == nil {
		c.log = logger.Default()
	}
	return c
}

// Pages returns ceil(total/pageSize).
func Pages(total, pageSize int) int {
	if total <= 0 || pageSize <= 0 {
		return 0
	}
	return (total + pageSize - 1) / pageSize
}

// Collect returns every contact of the category in pagination order.
func (c *Collector) Collect(ctx context.Context, cat Category) ([]RemoteContact, error) {
	total, err := c.api.CountContacts(ctx, cat.Status)
	if err != nil {
		return nil, fmt.Errorf("count %s contacts: %w", cat.Name, err)
	}
	if total < 0 {
		return nil, fmt.Errorf("count %s contacts: %w: %d", cat.Name, ErrInvalidTotal, total)
	}
	pages := Pages(total, c.pageSize)
	c.log.Info("collecting contacts", "category", cat.Name, "total", total, "pages", pages)

	results, err := workpool.Map(ctx, c.width, pages, func(ctx context.Context, page int) ([]RemoteContact, error) {
		resp, err := c.api.ListContacts(ctx, cat.Status, c.pageSize, page*c.pageSize)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", page, err)
		}
		out := make([]RemoteContact, len(resp.Contacts))
		for i, ac := range resp.Contacts {
			out[i] = cat.project(ac)
		}
		return out, nil
	})
	if err != nil {
		return nil, fmt.Errorf("collect %s contacts: %w", cat.Name, err)
	}

	n := 0
	for _, page := range results {
		n += len(page)
	}
	all := make([]RemoteContact, 0, n)
	for _, page := range results {
		all = append(all, page...)
	}
	return all, nil
}

// ConstituentIDs looks up the constituent id of each contact. Result i
// belongs to ids[i]; a contact without the field yields "".
func (c *Collector) ConstituentIDs(ctx context.Context, ids []string) ([]string, error) {
	return workpool.Map(ctx, c.width, len(ids), func(ctx context.Context, i int) (string, error) {
		detail, err := c.api.GetContact(ctx, ids[i])
		if err != nil {
			return "", fmt.Errorf("contact %s: %w", ids[i], err)
		}
		v, _ := detail.FieldValue(c.fieldID)
		return v, nil
	})
}
