// Package trsm3d applies the inverse of a triangular factor that cholinv
// left un-assembled (spec.md §4.5): given L, the diagonal-block inverses
// cholinv always computes, and the base-case dimension list recorded
// during factorization, it solves L·X = A by replaying the same
// recursive partition, descending until it reaches a block whose inverse
// is actually available and applying it directly.
package trsm3d

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/blas"

	"github.com/gridfactor/cholinv3d/dmat"
	"github.com/gridfactor/cholinv3d/grid"
	"github.com/gridfactor/cholinv3d/summa"
)

// Solve computes X such that L·X = A, overwriting a's data with X. l is
// the lower-triangular factor cholinv produced; lInv is the matrix
// cholinv returned alongside it — valid at least at the base-case
// diagonal blocks named by dims, which must be the Status.BaseCaseDims
// cholinv recorded for l. a's row count must equal l.M; its column count
// (the right-hand-side width) is unconstrained.
func Solve(ctx context.Context, topo *grid.Topology, l, lInv *dmat.Matrix, dims []int, a *dmat.Matrix) error {
	if l.M != l.N {
		panic("trsm3d: l must be square")
	}
	if a.M != l.M {
		return fmt.Errorf("trsm3d: a has %d rows, want %d to match l", a.M, l.M)
	}
	if len(dims) > 0 && dims[0] != l.M {
		return fmt.Errorf("trsm3d: dims[0]=%d does not match l's dimension %d", dims[0], l.M)
	}
	return solve(ctx, topo, l, lInv, dims, 0, a)
}

func solve(ctx context.Context, topo *grid.Topology, l, lInv *dmat.Matrix, dims []int, depth int, a *dmat.Matrix) error {
	if depth == len(dims) {
		// l (and the matching block of lInv) is a base-case leaf:
		// apply the precomputed inverse directly.
		return summa.Trmm(ctx, topo, blas.Left, blas.NoTrans, blas.Lower, blas.NonUnit, 1, lInv, a)
	}

	n := dims[depth]
	half := n / 2

	l11 := l.Carve(topo.X, topo.Y, 0, half, 0, half)
	l21 := l.Carve(topo.X, topo.Y, half, n, 0, half)
	l22 := l.Carve(topo.X, topo.Y, half, n, half, n)
	inv11 := lInv.Carve(topo.X, topo.Y, 0, half, 0, half)
	inv22 := lInv.Carve(topo.X, topo.Y, half, n, half, n)

	a1 := a.Carve(topo.X, topo.Y, 0, half, 0, a.N)
	a2 := a.Carve(topo.X, topo.Y, half, n, 0, a.N)

	// X1 <- L11^-1 * A1.
	if err := solve(ctx, topo, l11, inv11, dims, depth+1, a1); err != nil {
		return err
	}
	// A2 <- A2 - L21 * X1 (the trailing update).
	if err := summa.Gemm(ctx, topo, -1, l21, a1, 1, a2); err != nil {
		return fmt.Errorf("trsm3d: trailing update at depth %d: %w", depth, err)
	}
	// X2 <- L22^-1 * A2.
	if err := solve(ctx, topo, l22, inv22, dims, depth+1, a2); err != nil {
		return err
	}

	a.Paste(topo.X, topo.Y, 0, half, 0, a.N, a1)
	a.Paste(topo.X, topo.Y, half, n, 0, a.N, a2)
	return nil
}
