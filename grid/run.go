package grid

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Run launches one goroutine per rank in the world and calls fn with that
// rank's index. It returns the first non-nil error returned by any rank;
// when an error occurs the shared context is cancelled, which this
// module uses as its rendition of "a failing collective is fatal" (§7)
// without a coordinated abort protocol. Only Comm.SendRecv watches the
// context: a sibling blocked in SendRecv returns ctx.Err(), while one
// blocked in a round-based collective (Barrier, Broadcast, AllReduceSum,
// AllGather, Gather, Scatter) keeps waiting for the remaining members.
func (w *World) Run(ctx context.Context, fn func(ctx context.Context, rank int) error) error {
	g, ctx := errgroup.WithContext(ctx)
	for r := 0; r < w.size; r++ {
		r := r
		g.Go(func() error {
			return fn(ctx, r)
		})
	}
	return g.Wait()
}
