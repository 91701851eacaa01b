// Package local wraps the gonum BLAS/LAPACK kernels the base case of
// CholInv (and every SUMMA multiply) runs once communication has brought
// the needed data onto one process: local Cholesky, local triangular
// inverse, and the local Gemm/Trmm/Trsm primitives SUMMA accumulates over
// the depth communicator. Modeled on gonum.org/v1/gonum/mat's own thin
// wrappers around blas64/lapack64.
package local

import (
	"errors"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas64"
	"gonum.org/v1/gonum/lapack/lapack64"
)

// ErrNotPositiveDefinite is returned by Cholesky when the local block is
// not symmetric positive-definite. It propagates out of cholinv's base
// case as the SPD failure the spec requires to be fatal with no pivoting
// fallback.
var ErrNotPositiveDefinite = errors.New("local: block is not positive definite")

// ErrSingular is returned by TriangularInverse when the triangular factor
// has a zero diagonal entry.
var ErrSingular = errors.New("local: triangular factor is singular")

// General wraps a row-major local buffer as a blas64.General of the given
// shape.
func General(rows, cols int, data []float64) blas64.General {
	return blas64.General{Rows: rows, Cols: cols, Data: data, Stride: cols}
}

// Triangular wraps a row-major local buffer as a blas64.Triangular.
func Triangular(n int, uplo blas.Uplo, diag blas.Diag, data []float64) blas64.Triangular {
	return blas64.Triangular{N: n, Data: data, Stride: n, Uplo: uplo, Diag: diag}
}

// Symmetric wraps a row-major local buffer as a blas64.Symmetric.
func Symmetric(n int, uplo blas.Uplo, data []float64) blas64.Symmetric {
	return blas64.Symmetric{N: n, Data: data, Stride: n, Uplo: uplo}
}

// Cholesky factorizes the n×n symmetric block in place: on return data
// holds the triangular factor L (uplo == blas.Lower) or U (uplo ==
// blas.Upper) such that A = L·Lᵀ or A = Uᵀ·U.
func Cholesky(uplo blas.Uplo, n int, data []float64) error {
	sym := Symmetric(n, uplo, data)
	_, ok := lapack64.Potrf(sym)
	if !ok {
		return ErrNotPositiveDefinite
	}
	return nil
}

// TriangularInverse inverts the n×n triangular factor in data in place.
func TriangularInverse(uplo blas.Uplo, diag blas.Diag, n int, data []float64) error {
	tri := Triangular(n, uplo, diag, data)
	ok := lapack64.Trtri(tri)
	if !ok {
		return ErrSingular
	}
	return nil
}

// Gemm computes c = alpha*op(a)*op(b) + beta*c.
func Gemm(tA, tB blas.Transpose, alpha float64, a, b blas64.General, beta float64, c blas64.General) {
	blas64.Gemm(tA, tB, alpha, a, b, beta, c)
}

// Trmm computes b = alpha*op(a)*b (side == blas.Left) or b =
// alpha*b*op(a) (side == blas.Right), with a triangular.
func Trmm(side blas.Side, tA blas.Transpose, alpha float64, a blas64.Triangular, b blas64.General) {
	blas64.Trmm(side, tA, alpha, a, b)
}

// Trsm solves op(a)*x = alpha*b (side == blas.Left) or x*op(a) =
// alpha*b (side == blas.Right) for x, overwriting b, with a triangular.
func Trsm(side blas.Side, tA blas.Transpose, alpha float64, a blas64.Triangular, b blas64.General) {
	blas64.Trsm(side, tA, alpha, a, b)
}
