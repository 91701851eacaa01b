package dmat

import (
	"context"

	"github.com/gridfactor/cholinv3d/grid"
)

// Transpose returns the caller's panel of mᵀ: for a square matrix
// distributed over a Px×Py grid with Px == Py, process (x, y) and its
// partner (y, x) each locally hold exactly the block the other needs to
// realize mᵀ, so transposing is a single pairwise exchange followed by a
// local transpose of the received block. On the diagonal (x == y)
// cube.SendRecv is a no-op and m's own block is transposed locally.
func Transpose(ctx context.Context, cube *grid.Comm, partnerRank, tag int, m *Matrix) (*Matrix, error) {
	if m.M != m.N || m.Px != m.Py {
		panic("dmat: Transpose requires a square matrix over a Px == Py grid")
	}
	recv, err := cube.SendRecv(ctx, partnerRank, tag, m.Data())
	if err != nil {
		return nil, err
	}
	out := New(m.M, m.N, m.Structure, m.Px, m.Py)
	// The partner's local (lj, li) element is the mirror of this
	// process's global (i, j) at local (li, lj).
	k := out.LocalRows()
	d := out.Data()
	for li := 0; li < k; li++ {
		for lj := 0; lj < k; lj++ {
			d[li*k+lj] = recv[lj*k+li]
		}
	}
	return out, nil
}
