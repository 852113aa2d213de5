package workpool

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapPreservesIndexOrder(t *testing.T) {
	// Earlier indices sleep longer so they complete last.
	out, err := Map(context.Background(), 5, 5, func(ctx context.Context, i int) (int, error) {
		time.Sleep(time.Duration(5-i) * 10 * time.Millisecond)
		return i * 10, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 10, 20, 30, 40}, out)
}

func TestMapRespectsWidth(t *testing.T) {
	var inFlight, peak int32
	_, err := Map(context.Background(), 2, 10, func(ctx context.Context, i int) (struct{}, error) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return struct{}{}, nil
	})
	require.NoError(t, err)
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestMapFailsFast(t *testing.T) {
	boom := errors.New("page 3 failed")
	var started int32

	_, err := Map(context.Background(), 1, 20, func(ctx context.Context, i int) (int, error) {
		atomic.AddInt32(&started, 1)
		if i == 3 {
			return 0, boom
		}
		return i, nil
	})
	assert.ErrorIs(t, err, boom)
	assert.Less(t, atomic.LoadInt32(&started), int32(20))
}

func TestMapEmpty(t *testing.T) {
	out, err := Map(context.Background(), 5, 0, func(ctx context.Context, i int) (string, error) {
		t.Fatal("fn must not be called")
		return "", nil
	})
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestMapCanceledParent(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Map(ctx, 3, 3, func(ctx context.Context, i int) (int, error) {
		return i, ctx.Err()
	})
	assert.ErrorIs(t, err, context.Canceled)
}
