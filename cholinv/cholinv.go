// Package cholinv implements the recursive block Cholesky factorization
// with explicit inverse (CholInv) described in spec.md §4.4: given an SPD
// matrix distributed over a cubic process grid, it produces the lower
// triangular factor L and, optionally, its inverse in one descent. An
// upper factor can be obtained from L via dmat.Transpose; see
// ErrInvalidDir.
package cholinv

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"gonum.org/v1/gonum/blas"

	"github.com/gridfactor/cholinv3d/dmat"
	"github.com/gridfactor/cholinv3d/grid"
	"github.com/gridfactor/cholinv3d/local"
	"github.com/gridfactor/cholinv3d/summa"
)

// ErrNotPositiveDefinite wraps the base-case SPD failure the spec
// requires to be fatal with no pivoting fallback.
var ErrNotPositiveDefinite = local.ErrNotPositiveDefinite

// ErrInvalidBaseCase is returned when BCMultiplier does not evenly divide
// the matrix dimension by repeated halving, or is non-positive.
var ErrInvalidBaseCase = errors.New("cholinv: bc_multiplier must be >= 1 and divide the matrix dimension by repeated halving")

// ErrInvalidDir is returned when Info.Dir is not 'L'. Only the lower
// factor is implemented directly: the recursive partition in factor
// always treats the lower-left quadrant as the off-diagonal block, which
// only matches a lower factor's layout. A caller that wants the upper
// factor should factor lower and obtain the upper factor with a single
// dmat.Transpose, exactly as cacqr does for R.
var ErrInvalidDir = errors.New("cholinv: dir must be 'L' (factor upper via a lower factor plus dmat.Transpose)")

// Info carries the per-call configuration spec.md's external interface
// describes as {complete_inv, split, bc_multiplier, dir}.
type Info struct {
	// CompleteInv requests that the full, explicit L⁻¹ be returned.
	// When false, Factor still computes it internally (step 2 of the
	// recursion needs it), but only hands the caller back the base-case
	// diagonal blocks; the caller must use trsm3d to apply the rest.
	CompleteInv bool
	// Split is the recursion fan-out. This implementation only supports
	// binary splitting; the field exists because the source exposes it.
	// Zero is treated as 2 and any other value is rejected.
	Split int
	// BCMultiplier is the base-case block size threshold. A block is
	// also factored whole at the base case when its halves would not
	// divide evenly over the slice.
	BCMultiplier int
	// Dir must be 'L'; see ErrInvalidDir. Kept as a field (rather than
	// dropped) because the source's entry point takes it and callers may
	// want to assert their intent explicitly.
	Dir byte
}

// Status reports what Factor actually did.
type Status struct {
	CompleteInvUsed bool
	BaseCaseDims    []int
}

var callCounter int64

func nextCallID() int {
	return int(atomic.AddInt64(&callCounter, 1))
}

// Factor computes the lower Cholesky factor of a (in place: a becomes L,
// with zeros above the diagonal) and, into aInv, its inverse — fully, if info.CompleteInv, or only at
// the diagonal blocks otherwise. a and aInv must be square matrices of
// equal global dimension distributed over topo's d×d slice with
// Px == Py == topo.D.
func Factor(ctx context.Context, topo *grid.Topology, a, aInv *dmat.Matrix, info Info) (Status, error) {
	if info.Split == 0 {
		info.Split = 2
	}
	if info.Split != 2 {
		return Status{}, fmt.Errorf("cholinv: unsupported split %d, only binary recursion is implemented", info.Split)
	}
	if info.Dir != 'L' {
		return Status{}, ErrInvalidDir
	}
	if info.BCMultiplier < 1 {
		return Status{}, ErrInvalidBaseCase
	}
	if a.M != a.N || aInv.M != aInv.N || a.M != aInv.M {
		panic("cholinv: a and aInv must be square and of equal dimension")
	}
	if !dividesByHalving(a.M, info.BCMultiplier) {
		return Status{}, fmt.Errorf("%w (dim=%d, bc=%d)", ErrInvalidBaseCase, a.M, info.BCMultiplier)
	}

	callID := nextCallID()
	st := &Status{CompleteInvUsed: info.CompleteInv}
	if err := factor(ctx, topo, a, aInv, info, callID, 0, st); err != nil {
		return Status{}, err
	}
	if !info.CompleteInv {
		// The recursion always assembles the cross terms internally
		// (see the comment at the bottom of factor); a caller who did
		// not ask for a complete inverse only gets the base-case
		// diagonal blocks back, and is expected to use trsm3d — driven
		// by st.BaseCaseDims — for everything else.
		// The leaf size is the top dimension halved once per recorded
		// level.
		zeroCrossBlocks(topo, aInv, a.M>>len(st.BaseCaseDims))
	}
	return *st, nil
}

// zeroCrossBlocks zeroes every element of aInv whose global (i, j) falls
// outside the bc×bc block straddling the diagonal it belongs to.
func zeroCrossBlocks(topo *grid.Topology, aInv *dmat.Matrix, bc int) {
	d := aInv.Data()
	rows, cols := aInv.LocalRows(), aInv.LocalCols()
	for li := 0; li < rows; li++ {
		for lj := 0; lj < cols; lj++ {
			i, j := aInv.GlobalIndex(li, lj, topo.X, topo.Y)
			if i/bc != j/bc {
				d[li*cols+lj] = 0
			}
		}
	}
}

func dividesByHalving(n, bc int) bool {
	if n <= 0 || bc <= 0 {
		return false
	}
	for n > bc {
		if n%2 != 0 {
			return false
		}
		n /= 2
	}
	return n == bc
}

func factor(ctx context.Context, topo *grid.Topology, a, aInv *dmat.Matrix, info Info, callID, depth int, st *Status) error {
	n := a.M
	half := n / 2
	if n <= info.BCMultiplier || half%a.Py != 0 || half%a.Px != 0 {
		return baseCase(ctx, topo, a, aInv, info, n)
	}
	// Every branch at this recursion depth sees the same split size, so
	// only the first one to arrive records it: the list ends up with one
	// entry per level, in descending order, which is exactly what
	// trsm3d needs to replay the partition without re-deriving it from
	// n and bc_multiplier.
	if len(st.BaseCaseDims) == depth {
		st.BaseCaseDims = append(st.BaseCaseDims, n)
	}

	a11 := a.Carve(topo.X, topo.Y, 0, half, 0, half)
	a21 := a.Carve(topo.X, topo.Y, half, n, 0, half)
	a22 := a.Carve(topo.X, topo.Y, half, n, half, n)

	inv11 := dmat.New(half, half, dmat.Square, aInv.Px, aInv.Py)

	// Step 1: recurse on A11 -> L11, L11^-1.
	if err := factor(ctx, topo, a11, inv11, info, callID, depth+1, st); err != nil {
		return err
	}

	// Transpose exchange: each process trades its L11^-1 block with its
	// transpose partner (y, x, z) and transposes it locally, so the
	// following multiply can use L11^-T. On the diagonal (x == y) the
	// exchange is a no-op (§8 scenario 6).
	partner := topo.TransposePartnerRank()
	inv11T, err := transposeExchange(ctx, topo, callID, depth, 0, inv11)
	if err != nil {
		return fmt.Errorf("cholinv: transpose exchange with rank %d: %w", partner, err)
	}

	// Step 2: L21 <- A21 * L11^-T. L11^-1 is lower triangular, so its
	// transpose (inv11T) is upper triangular.
	if err := summa.Trmm(ctx, topo, blas.Right, blas.NoTrans, blas.Upper, blas.NonUnit, 1, inv11T, a21); err != nil {
		return fmt.Errorf("cholinv: forming L21: %w", err)
	}
	l21 := a21

	// Step 3: S <- A22 - L21*L21^T (Schur complement).
	l21T, err := transposeExchange(ctx, topo, callID, depth, 1, l21)
	if err != nil {
		return fmt.Errorf("cholinv: transpose exchange for schur complement: %w", err)
	}
	if err := summa.Gemm(ctx, topo, -1, l21, l21T, 1, a22); err != nil {
		return fmt.Errorf("cholinv: schur complement: %w", err)
	}

	inv22 := dmat.New(n-half, n-half, dmat.Square, aInv.Px, aInv.Py)
	// Step 4: recurse on the Schur complement -> L22, L22^-1.
	if err := factor(ctx, topo, a22, inv22, info, callID, depth+1, st); err != nil {
		return err
	}

	// Step 5: L^-1_21 <- -L22^-1 * L21 * L11^-1. This cross term is
	// always computed, even when the caller only wants the base-case
	// block inverses: step 2 one level up needs the *complete* inverse
	// of this subtree's factor (TRMM by a triangular matrix with a
	// missing off-diagonal block is not the same multiply), so it must
	// exist internally regardless of info.CompleteInv. What
	// info.CompleteInv actually gates is whether Factor lets the caller
	// see it — see zeroCrossBlocks and DESIGN.md.
	work := l21.Clone()
	if err := summa.Trmm(ctx, topo, blas.Left, blas.NoTrans, blas.Lower, blas.NonUnit, -1, inv22, work); err != nil {
		return fmt.Errorf("cholinv: forming -L22^-1*L21: %w", err)
	}
	if err := summa.Trmm(ctx, topo, blas.Right, blas.NoTrans, blas.Lower, blas.NonUnit, 1, inv11, work); err != nil {
		return fmt.Errorf("cholinv: forming L^-1_21: %w", err)
	}
	aInv.Paste(topo.X, topo.Y, half, n, 0, half, work)
	aInv.Paste(topo.X, topo.Y, 0, half, 0, half, inv11)
	aInv.Paste(topo.X, topo.Y, half, n, half, n, inv22)

	a.Paste(topo.X, topo.Y, 0, half, 0, half, a11)
	a.Paste(topo.X, topo.Y, half, n, 0, half, l21)
	a.Paste(topo.X, topo.Y, half, n, half, n, a22)
	// The upper-right block still holds A12; L is zero there.
	a.Paste(topo.X, topo.Y, 0, half, half, n, dmat.New(half, n-half, dmat.Square, a.Px, a.Py))

	return nil
}

// transposeExchange returns a new Matrix holding what the caller's
// transpose partner (y, x, z) holds of m, transposed into the caller's
// own panel of mᵀ — the collective primitive behind every step in
// CholInv that needs the transpose of a distributed block. The tag
// depends only on depth and operand, so both partners compute the same
// one; callID is a per-process counter and does not enter the tag.
// Repeated exchanges with the same tag are matched in program order.
func transposeExchange(ctx context.Context, topo *grid.Topology, callID, depth, operand int, m *dmat.Matrix) (*dmat.Matrix, error) {
	partner := topo.TransposePartnerRank()
	tag := depth*4 + operand
	return dmat.Transpose(ctx, topo.Cube, partner, tag, m)
}

// baseCase all-gathers the local fragments of a across the slice, runs
// the local Cholesky and triangular-inverse kernels on the assembled
// block, and scatters the result back by block-cyclic offset.
func baseCase(ctx context.Context, topo *grid.Topology, a, aInv *dmat.Matrix, info Info, n int) error {
	full, err := gatherBlock(topo, a, n)
	if err != nil {
		return err
	}

	if err := local.Cholesky(blas.Lower, n, full); err != nil {
		return fmt.Errorf("cholinv: base case at rank (%d,%d,%d): %w", topo.X, topo.Y, topo.Z, err)
	}
	zeroUpperTriangle(n, full)

	invFull := append([]float64(nil), full...)
	if err := local.TriangularInverse(blas.Lower, blas.NonUnit, n, invFull); err != nil {
		return fmt.Errorf("cholinv: base case inverse at rank (%d,%d,%d): %w", topo.X, topo.Y, topo.Z, err)
	}
	zeroUpperTriangle(n, invFull)

	scatterBlock(topo, a, n, full)
	scatterBlock(topo, aInv, n, invFull)
	return nil
}

// zeroUpperTriangle clears everything strictly above the diagonal. Potrf
// and Trtri only ever read and write the referenced (lower) triangle, so
// without this the upper triangle would retain whatever Gemm/Trmm wrote
// there at the previous recursion level instead of the zero a lower
// factor and its inverse actually have there.
func zeroUpperTriangle(n int, data []float64) {
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			data[i*n+j] = 0
		}
	}
}

// gatherBlock all-gathers the slice's fragments of a local n×n panel and
// reassembles the dense n×n block every process in the slice ends up
// holding identically.
func gatherBlock(topo *grid.Topology, a *dmat.Matrix, n int) ([]float64, error) {
	parts := topo.Slice.AllGather(a.Data())
	full := make([]float64, n*n)
	py, px := a.Py, a.Px
	// Slice's local rank ordering is by key y*D+x (see grid.Square), so
	// the i-th gathered part belongs to y=i/D, x=i%D.
	for member, part := range parts {
		y := member / topo.D
		x := member % topo.D
		m, k := a.LocalRows(), a.LocalCols()
		for li := 0; li < m; li++ {
			gi := li*py + y
			for lj := 0; lj < k; lj++ {
				gj := lj*px + x
				full[gi*n+gj] = part[li*k+lj]
			}
		}
	}
	return full, nil
}

// scatterBlock is gatherBlock's inverse: it writes a's own local
// fragment out of the dense n×n block every process already holds
// identically (so no further communication is required).
func scatterBlock(topo *grid.Topology, a *dmat.Matrix, n int, full []float64) {
	m, k := a.LocalRows(), a.LocalCols()
	d := a.Data()
	for li := 0; li < m; li++ {
		gi := li*a.Py + topo.Y
		for lj := 0; lj < k; lj++ {
			gj := lj*a.Px + topo.X
			d[li*k+lj] = full[gi*n+gj]
		}
	}
}
