// Package cacqr implements the Cholesky-based tall-skinny QR factorization
// described in spec.md §4.6: given a tall A (m × n, m ≫ n), forms the Gram
// matrix AᵀA, factors it with cholinv, and recovers Q and R from the
// factor and its inverse. CACQR2 runs the whole thing twice to push the
// orthogonality error down to machine precision.
package cacqr

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/blas"

	"github.com/gridfactor/cholinv3d/cholinv"
	"github.com/gridfactor/cholinv3d/dmat"
	"github.com/gridfactor/cholinv3d/grid"
	"github.com/gridfactor/cholinv3d/local"
	"github.com/gridfactor/cholinv3d/summa"
)

// Two fixed, negative tags for the transpose exchanges Factor issues
// after cholinv.Factor has returned on every rank; negative so they can
// never collide with cholinv's own (non-negative) transpose tags even if
// a caller reuses the same Topology concurrently across calls.
const (
	tagRTranspose    = -1
	tagRInvTranspose = -2
)

// Factor runs one CACQR iteration: Q, R, the cholinv status of the Gram
// factorization, and an error. info.Dir and info.CompleteInv are
// overridden — the Gram matrix is always factored lower-triangular with
// a complete inverse, since forming Q needs R⁻¹ in full and R is small
// enough that the complete inverse is cheap regardless of the caller's
// preference for the main factorization elsewhere in a program.
func Factor(ctx context.Context, topo *grid.Topology, a *dmat.Matrix, info cholinv.Info) (q, r *dmat.Matrix, status cholinv.Status, err error) {
	g, err := gram(topo, a)
	if err != nil {
		return nil, nil, cholinv.Status{}, err
	}

	info.Dir = 'L'
	info.CompleteInv = true
	lInv := dmat.New(a.N, a.N, dmat.Square, a.Px, a.Py)
	status, err = cholinv.Factor(ctx, topo, g, lInv, info)
	if err != nil {
		return nil, nil, status, fmt.Errorf("cacqr: factoring gram matrix: %w", err)
	}

	partner := topo.TransposePartnerRank()
	r, err = dmat.Transpose(ctx, topo.Cube, partner, tagRTranspose, g)
	if err != nil {
		return nil, nil, status, fmt.Errorf("cacqr: transposing L into R: %w", err)
	}
	rInv, err := dmat.Transpose(ctx, topo.Cube, partner, tagRInvTranspose, lInv)
	if err != nil {
		return nil, nil, status, fmt.Errorf("cacqr: transposing L^-1 into R^-1: %w", err)
	}

	q = a.Clone()
	if err := summa.Trmm(ctx, topo, blas.Right, blas.NoTrans, blas.Upper, blas.NonUnit, 1, rInv, q); err != nil {
		return nil, nil, status, fmt.Errorf("cacqr: forming Q = A*R^-1: %w", err)
	}
	return q, r, status, nil
}

// Factor2 runs CACQR2: cacqr on a, then cacqr again on the resulting Q₁,
// combining R = R₂·R₁. This second pass is what pushes ‖QᵀQ−I‖ down to
// O(ε) even for an ill-conditioned A, at roughly twice the cost of one
// cacqr pass.
func Factor2(ctx context.Context, topo *grid.Topology, a *dmat.Matrix, info cholinv.Info) (q, r *dmat.Matrix, status cholinv.Status, err error) {
	q1, r1, _, err := Factor(ctx, topo, a, info)
	if err != nil {
		return nil, nil, cholinv.Status{}, err
	}
	q, r2, status, err := Factor(ctx, topo, q1, info)
	if err != nil {
		return nil, nil, status, err
	}

	combined := r1.Clone()
	if err := summa.Trmm(ctx, topo, blas.Left, blas.NoTrans, blas.Upper, blas.NonUnit, 1, r2, combined); err != nil {
		return nil, nil, status, fmt.Errorf("cacqr: combining R2*R1: %w", err)
	}
	return q, combined, status, nil
}

// gram forms n×n G = AᵀA, distributed over the same grid as a, via an
// all-gather of a's fragments across the slice followed by a redundant
// local compute on every process. This trades communication volume for
// simplicity: a genuinely row/column/depth-split SUMMA syrk for a
// rectangular operand contracted against its own transpose would need a
// dedicated collective this module does not otherwise have a use for —
// see DESIGN.md.
func gram(topo *grid.Topology, a *dmat.Matrix) (*dmat.Matrix, error) {
	full, err := allGatherFull(topo, a)
	if err != nil {
		return nil, err
	}
	g := make([]float64, a.N*a.N)
	local.Gemm(blas.Trans, blas.NoTrans, 1,
		local.General(a.M, a.N, full), local.General(a.M, a.N, full),
		0, local.General(a.N, a.N, g))

	out := dmat.New(a.N, a.N, dmat.Square, a.Px, a.Py)
	rows, cols := out.LocalRows(), out.LocalCols()
	d := out.Data()
	for li := 0; li < rows; li++ {
		for lj := 0; lj < cols; lj++ {
			i, j := out.GlobalIndex(li, lj, topo.X, topo.Y)
			d[li*cols+lj] = g[i*a.N+j]
		}
	}
	return out, nil
}

// allGatherFull reassembles a's global M×N data from the slice
// communicator's fragments, identically on every member — the same
// gather cholinv's base case performs, generalized to a non-square panel.
func allGatherFull(topo *grid.Topology, a *dmat.Matrix) ([]float64, error) {
	parts := topo.Slice.AllGather(a.Data())
	full := make([]float64, a.M*a.N)
	m, n := a.LocalRows(), a.LocalCols()
	for member, part := range parts {
		y := member / topo.D
		x := member % topo.D
		for li := 0; li < m; li++ {
			gi := li*a.Py + y
			for lj := 0; lj < n; lj++ {
				gj := lj*a.Px + x
				full[gi*a.N+gj] = part[li*n+lj]
			}
		}
	}
	return full, nil
}
