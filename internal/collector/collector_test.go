package collector

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hri/contact-sync/internal/activecampaign"
	"github.com/hri/contact-sync/internal/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	total    int
	delay    map[int]time.Duration // by offset
	failAt   int
	mu       sync.Mutex
	offsets  []int
	finished []int
	inFlight int32
	peak     int32
	fields   map[string]string
}

func (f *fakeAPI) CountContacts(ctx context.Context, status activecampaign.Status) (int, error) {
	return f.total, nil
}

func (f *fakeAPI) ListContacts(ctx context.Context, status activecampaign.Status, limit, offset int) (*activecampaign.ContactListResponse, error) {
	n := atomic.AddInt32(&f.inFlight, 1)
	defer atomic.AddInt32(&f.inFlight, -1)
	for {
		p := atomic.LoadInt32(&f.peak)
		if n <= p || atomic.CompareAndSwapInt32(&f.peak, p, n) {
			break
		}
	}

	f.mu.Lock()
	f.offsets = append(f.offsets, offset)
	f.mu.Unlock()

	if d, ok := f.delay[offset]; ok {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.failAt > 0 && offset == f.failAt {
		return nil, &activecampaign.APIError{StatusCode: 400}
	}
	f.mu.Lock()
	f.finished = append(f.finished, offset)
	f.mu.Unlock()

	resp := &activecampaign.ContactListResponse{Meta: activecampaign.ListMeta{Total: activecampaign.FlexInt(f.total)}}
	for i := offset; i < offset+limit && i < f.total; i++ {
		resp.Contacts = append(resp.Contacts, activecampaign.Contact{
			ID:          fmt.Sprint(i),
			Email:       fmt.Sprintf("c%d@example.com", i),
			BouncedDate: "2024-01-09 10:00:00",
			CDate:       "2023-05-01",
			UDate:       "2024-01-10",
		})
	}
	return resp, nil
}

func (f *fakeAPI) GetContact(ctx context.Context, id string) (*activecampaign.ContactDetailResponse, error) {
	resp := &activecampaign.ContactDetailResponse{Contact: activecampaign.Contact{ID: id}}
	if v, ok := f.fields[id]; ok {
		resp.FieldValues = []activecampaign.FieldValue{{Field: "5", Value: "Mr"}, {Field: "2", Value: v}}
	}
	return resp, nil
}

func newCollector(api API) *Collector {
	return New(api, Options{Logger: logger.New(&bytes.Buffer{}, logger.ERROR, true)})
}

func TestPages(t *testing.T) {
	assert.Equal(t, 3, Pages(250, 100))
	assert.Equal(t, 2, Pages(200, 100))
	assert.Equal(t, 1, Pages(1, 100))
	assert.Equal(t, 0, Pages(0, 100))
}

func TestCollectRequestsEveryPage(t *testing.T) {
	api := &fakeAPI{total: 250}
	got, err := newCollector(api).Collect(context.Background(), Bounced)
	require.NoError(t, err)

	assert.Len(t, got, 250)
	assert.ElementsMatch(t, []int{0, 100, 200}, api.offsets)
}

func TestCollectPreservesPageOrder(t *testing.T) {
	api := &fakeAPI{total: 250, delay: map[int]time.Duration{0: 50 * time.Millisecond}}
	got, err := newCollector(api).Collect(context.Background(), Bounced)
	require.NoError(t, err)

	require.Len(t, got, 250)
	assert.NotEqual(t, 0, api.finished[0], "first page should complete late")
	for i, c := range got {
		assert.Equal(t, fmt.Sprint(i), c.ID)
	}
}

func TestCollectBoundedWidth(t *testing.T) {
	delays := map[int]time.Duration{}
	for off := 0; off < 2000; off += 100 {
		delays[off] = 5 * time.Millisecond
	}
	api := &fakeAPI{total: 2000, delay: delays}
	_, err := newCollector(api).Collect(context.Background(), Bounced)
	require.NoError(t, err)
	assert.LessOrEqual(t, atomic.LoadInt32(&api.peak), int32(DefaultWidth))
}

func TestCollectProjectsCategoryFields(t *testing.T) {
	api := &fakeAPI{total: 1}

	b, err := newCollector(api).Collect(context.Background(), Bounced)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-09 10:00:00", b[0].BouncedDate)
	assert.Empty(t, b[0].UDate)

	u, err := newCollector(api).Collect(context.Background(), Unsubscribed)
	require.NoError(t, err)
	assert.Empty(t, u[0].BouncedDate)
	assert.Equal(t, "2024-01-10", u[0].UDate)
	assert.Equal(t, "2023-05-01", u[0].CDate)
}

func TestCollectFailsFast(t *testing.T) {
	api := &fakeAPI{total: 1000, failAt: 300}
	_, err := newCollector(api).Collect(context.Background(), Unsubscribed)
	require.Error(t, err)

	var apiErr *activecampaign.APIError
	assert.True(t, errors.As(err, &apiErr))
}

func TestCollectEmpty(t *testing.T) {
	got, err := newCollector(&fakeAPI{}).Collect(context.Background(), Bounced)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestCollectRejectsNegativeTotal(t *testing.T) {
	api := &fakeAPI{total: -1}
	got, err := newCollector(api).Collect(context.Background(), Unsubscribed)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidTotal)
	assert.Nil(t, got)
	assert.Empty(t, api.offsets)
}

func TestConstituentIDs(t *testing.T) {
	api := &fakeAPI{fields: map[string]string{"7": "CN-7", "9": "CN-9"}}
	ids, err := newCollector(api).ConstituentIDs(context.Background(), []string{"7", "8", "9"})
	require.NoError(t, err)
	assert.Equal(t, []string{"CN-7", "", "CN-9"}, ids)
}
