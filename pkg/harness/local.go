package harness

import (
	"context"

	"golang.org/x/sync/errgroup"

	"piscale/pkg/comm"
)

// Local runs fn once for every rank of an in-process mesh of the given size.
// The first error cancels the other ranks and is returned.
func Local(ctx context.Context, workers int, fn func(ctx context.Context, c comm.Comm) error) error {
	eps, err := comm.NewMesh(workers)
	if err != nil {
		return err
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, ep := range eps {
		g.Go(func() error {
			defer ep.Close()
			return fn(gctx, ep)
		})
	}
	return g.Wait()
}
