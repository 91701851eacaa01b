package summa

import (
	"context"

	"gonum.org/v1/gonum/blas"

	"github.com/gridfactor/cholinv3d/dmat"
	"github.com/gridfactor/cholinv3d/grid"
)

// Range names a logical sub-rectangle of a global matrix by index range.
type Range struct {
	RowStart, RowEnd, ColStart, ColEnd int
}

// GemmCut runs Gemm restricted to the sub-rectangles of a and b named by
// aRange and bRange, carving them out with dmat.Matrix.Carve first. If
// cRange is non-nil, the result is also carved from c, computed into, and
// pasted back into c at cRange — cut_c in spec.md §4.3's terms. If cRange
// is nil, the result is returned directly instead of being written back.
func GemmCut(ctx context.Context, topo *grid.Topology, alpha float64, a *dmat.Matrix, aRange Range, b *dmat.Matrix, bRange Range, beta float64, c *dmat.Matrix, cRange *Range) (*dmat.Matrix, error) {
	aSub := a.Carve(topo.X, topo.Y, aRange.RowStart, aRange.RowEnd, aRange.ColStart, aRange.ColEnd)
	bSub := b.Carve(topo.X, topo.Y, bRange.RowStart, bRange.RowEnd, bRange.ColStart, bRange.ColEnd)

	var cSub *dmat.Matrix
	if cRange != nil {
		cSub = c.Carve(topo.X, topo.Y, cRange.RowStart, cRange.RowEnd, cRange.ColStart, cRange.ColEnd)
	} else {
		cSub = dmat.New(aSub.M, bSub.N, dmat.Rectangular, c.Px, c.Py)
	}

	if err := Gemm(ctx, topo, alpha, aSub, bSub, beta, cSub); err != nil {
		return nil, err
	}
	if cRange != nil {
		c.Paste(topo.X, topo.Y, cRange.RowStart, cRange.RowEnd, cRange.ColStart, cRange.ColEnd, cSub)
	}
	return cSub, nil
}

// TrmmCut runs Trmm restricted to the sub-rectangles of a and b named by
// aRange and bRange, pasting the result back into b at bRange.
func TrmmCut(ctx context.Context, topo *grid.Topology, side blas.Side, transA blas.Transpose, uplo blas.Uplo, diag blas.Diag, alpha float64, a *dmat.Matrix, aRange Range, b *dmat.Matrix, bRange Range) error {
	aSub := a.Carve(topo.X, topo.Y, aRange.RowStart, aRange.RowEnd, aRange.ColStart, aRange.ColEnd)
	bSub := b.Carve(topo.X, topo.Y, bRange.RowStart, bRange.RowEnd, bRange.ColStart, bRange.ColEnd)

	if err := Trmm(ctx, topo, side, transA, uplo, diag, alpha, aSub, bSub); err != nil {
		return err
	}
	b.Paste(topo.X, topo.Y, bRange.RowStart, bRange.RowEnd, bRange.ColStart, bRange.ColEnd, bSub)
	return nil
}
