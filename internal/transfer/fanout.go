package transfer

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// FanOut runs fn once per node and barriers on completion. With
// parallel set, node tasks run concurrently; otherwise they run one at
// a time in the given order. fn returning an error aborts the run, so
// per-unit failures must be recorded as warnings inside fn rather than
// returned.
func FanOut(ctx context.Context, nodes []string, parallel bool, fn func(ctx context.Context, node string) error) error {
	if !parallel {
		for _, node := range nodes {
			if err := fn(ctx, node); err != nil {
				return err
			}
		}
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, node := range nodes {
		node := node
		g.Go(func() error {
			return fn(ctx, node)
		})
	}

	return g.Wait()
}
