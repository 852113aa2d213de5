// Package workpool runs independent tasks on a fixed-width pool and
// gathers their results by task index.
package workpool

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Map calls fn for every index in [0, n) with at most width calls in flight.
// Result i always holds fn(i), whatever order the calls complete in.
// The first error cancels the context passed to the remaining calls and is returned.
func Map[T any](ctx context.Context, width, n int, fn func(ctx context.Context, i int) (T, error)) ([]T, error) {
	if n <= 0 {
		return []T{}, nil
	}
	if width <= 0 {
		width = 1
	}

	results := make([]T, n)
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(width)

	for i := 0; i < n; i++ {
		if gCtx.Err() != nil {
			break
		}
		i := i
		g.Go(func() error {
			v, err := fn(gCtx, i)
			if err != nil {
				return err
			}
			results[i] = v
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}
