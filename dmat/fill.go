package dmat

import "github.com/gridfactor/cholinv3d/randfill"

// DistributeSymmetric fills mat's local panel so that, for every global
// (i, j), any process owning that element computes the same value as any
// other process owning its mirror (j, i) — i.e. the global matrix is
// symmetric by construction with no communication required. If
// diagonallyDominant is set, M is added to every diagonal element,
// matching the source's convention for manufacturing an SPD test matrix.
// x, y, px, py describe the slice coordinate and grid extents the caller
// wants the fill interpreted against; they need not equal mat.Px/mat.Py,
// which lets a sub-block carved out mid-recursion be filled against its
// parent's original coordinate system.
func (mat *Matrix) DistributeSymmetric(x, y, px, py int, key uint64, diagonallyDominant bool) {
	mat.Fill()
	for li := 0; li < mat.m; li++ {
		i := li*py + y
		for lj := 0; lj < mat.n; lj++ {
			j := lj*px + x
			lo, hi := i, j
			if lo > hi {
				lo, hi = hi, lo
			}
			v := randfill.Value(key, lo, hi)
			if diagonallyDominant && i == j {
				v += float64(mat.M)
			}
			mat.data[li*mat.n+lj] = v
		}
	}
}

// DistributeRandom fills mat's local panel with an unsymmetric
// deterministic pseudo-random value per global (i, j); two processes that
// own the same (i, j) always compute the same value.
func (mat *Matrix) DistributeRandom(x, y, px, py int, key uint64) {
	mat.Fill()
	for li := 0; li < mat.m; li++ {
		i := li*py + y
		for lj := 0; lj < mat.n; lj++ {
			j := lj*px + x
			mat.data[li*mat.n+lj] = randfill.Value(key, i, j)
		}
	}
}
