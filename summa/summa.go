// Package summa implements the SUMMA-style distributed multiply that
// every level of cholinv's recursion, trsm3d's trailing updates and
// cacqr's Q = A·R⁻¹ step issue:
// broadcast-along-row, broadcast-along-column, local BLAS, all-reduce
// along depth, as described in spec.md §4.3.
package summa

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/blas"

	"github.com/gridfactor/cholinv3d/dmat"
	"github.com/gridfactor/cholinv3d/grid"
	"github.com/gridfactor/cholinv3d/local"
)

// Gemm computes c <- alpha*a*b + beta*c over the cubic sub-grid rooted at
// topo. a and b are each broadcast from the process whose coordinate puts
// them in the right position for this depth layer (the "row root", x ==
// z, for a; the "column root", y == z, for b), the local product is
// computed once the fragments arrive, and the partial products are
// summed across the depth communicator so every z-layer ends up holding
// the identical, fully reduced C.
func Gemm(ctx context.Context, topo *grid.Topology, alpha float64, a, b *dmat.Matrix, beta float64, c *dmat.Matrix) error {
	isRowRoot := topo.X == topo.Z
	isColRoot := topo.Y == topo.Z

	m, k1, aData := broadcastPanel(topo.Row, topo.Z, isRowRoot, a)
	k2, n, bData := broadcastPanel(topo.Column, topo.Z, isColRoot, b)
	if k1 != k2 {
		return fmt.Errorf("summa: gemm inner dimension mismatch (%d vs %d)", k1, k2)
	}

	partial := make([]float64, m*n)
	local.Gemm(blas.NoTrans, blas.NoTrans, alpha,
		local.General(m, k1, aData), local.General(k1, n, bData),
		0, local.General(m, n, partial))

	summed := topo.Depth.AllReduceSum(partial)

	cData := c.Data()
	if len(cData) != len(summed) {
		return fmt.Errorf("summa: gemm output size mismatch (c has %d, computed %d)", len(cData), len(summed))
	}
	if beta == 0 {
		copy(cData, summed)
		return nil
	}
	for i := range cData {
		cData[i] = beta*cData[i] + summed[i]
	}
	return nil
}

// Trmm computes b <- alpha*op(a)*b (side == blas.Left) or b <-
// alpha*b*op(a) (side == blas.Right), with a triangular. Which operand
// broadcasts along the row communicator and which along the column
// communicator swaps with side, because a left multiply contracts a's
// columns against b's rows while a right multiply contracts b's columns
// against a's rows. The result is
// written back into b only after the depth reduction completes, so the
// "in place" semantics of TRMM are observed only at the level of the
// whole collective call, never mid-flight.
func Trmm(ctx context.Context, topo *grid.Topology, side blas.Side, transA blas.Transpose, uplo blas.Uplo, diag blas.Diag, alpha float64, a, b *dmat.Matrix) error {
	isRowRoot := topo.X == topo.Z
	isColRoot := topo.Y == topo.Z

	var triN int
	var triData []float64
	var bufRows, bufCols int
	var bufData []float64

	if side == blas.Left {
		triRows, triCols, data := broadcastPanel(topo.Row, topo.Z, isRowRoot, a)
		if triRows != triCols {
			return fmt.Errorf("summa: trmm triangular operand must be square, got %dx%d", triRows, triCols)
		}
		triN, triData = triRows, data
		bufRows, bufCols, bufData = broadcastPanel(topo.Column, topo.Z, isColRoot, b)
	} else {
		bufRows, bufCols, bufData = broadcastPanel(topo.Row, topo.Z, isRowRoot, b)
		triRows, triCols, data := broadcastPanel(topo.Column, topo.Z, isColRoot, a)
		if triRows != triCols {
			return fmt.Errorf("summa: trmm triangular operand must be square, got %dx%d", triRows, triCols)
		}
		triN, triData = triRows, data
	}

	local.Trmm(side, transA, alpha, local.Triangular(triN, uplo, diag, triData), local.General(bufRows, bufCols, bufData))

	summed := topo.Depth.AllReduceSum(bufData)
	dst := b.Data()
	if len(dst) != len(summed) {
		return fmt.Errorf("summa: trmm output size mismatch (b has %d, computed %d)", len(dst), len(summed))
	}
	copy(dst, summed)
	return nil
}
