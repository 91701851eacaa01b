package local

import (
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/blas"
)

func approxEqual(a, b, tol float64) bool { return math.Abs(a-b) <= tol }

func TestCholeskyLower(t *testing.T) {
	// A = [[4,2],[2,3]] = L L^T with L = [[2,0],[1, sqrt(2)]].
	data := []float64{4, 2, 2, 3}
	if err := Cholesky(blas.Lower, 2, data); err != nil {
		t.Fatalf("Cholesky: %v", err)
	}
	want := []float64{2, 2, 1, math.Sqrt(2)}
	for i := range data {
		if !approxEqual(data[i], want[i], 1e-12) {
			t.Errorf("data[%d] = %v, want %v", i, data[i], want[i])
		}
	}
}

func TestCholeskyNotPositiveDefinite(t *testing.T) {
	data := []float64{1, 2, 2, 1}
	err := Cholesky(blas.Lower, 2, data)
	if !errors.Is(err, ErrNotPositiveDefinite) {
		t.Fatalf("got %v, want ErrNotPositiveDefinite", err)
	}
}

func TestTriangularInverseRoundTrip(t *testing.T) {
	// L = [[2,0],[1,3]]; L^-1 * L should be the identity.
	l := []float64{2, 0, 1, 3}
	linv := append([]float64(nil), l...)
	if err := TriangularInverse(blas.Lower, blas.NonUnit, 2, linv); err != nil {
		t.Fatalf("TriangularInverse: %v", err)
	}
	c := make([]float64, 4)
	Gemm(blas.NoTrans, blas.NoTrans, 1, General(2, 2, linv), General(2, 2, l), 0, General(2, 2, c))
	want := []float64{1, 0, 0, 1}
	for i := range c {
		if !approxEqual(c[i], want[i], 1e-12) {
			t.Errorf("(L^-1 L)[%d] = %v, want %v", i, c[i], want[i])
		}
	}
}

func TestTriangularInverseSingular(t *testing.T) {
	data := []float64{0, 0, 1, 2}
	err := TriangularInverse(blas.Lower, blas.NonUnit, 2, data)
	if !errors.Is(err, ErrSingular) {
		t.Fatalf("got %v, want ErrSingular", err)
	}
}

func TestGemm(t *testing.T) {
	a := General(2, 2, []float64{1, 2, 3, 4})
	b := General(2, 2, []float64{5, 6, 7, 8})
	c := make([]float64, 4)
	Gemm(blas.NoTrans, blas.NoTrans, 1, a, b, 0, General(2, 2, c))
	want := []float64{19, 22, 43, 50}
	for i := range c {
		if c[i] != want[i] {
			t.Errorf("c[%d] = %v, want %v", i, c[i], want[i])
		}
	}
}

func TestTrmmLeftLower(t *testing.T) {
	tri := Triangular(2, blas.Lower, blas.NonUnit, []float64{2, 0, 1, 3})
	b := []float64{1, 1, 1, 1}
	Trmm(blas.Left, blas.NoTrans, 1, tri, General(2, 2, b))
	want := []float64{2, 2, 4, 4}
	for i := range b {
		if b[i] != want[i] {
			t.Errorf("b[%d] = %v, want %v", i, b[i], want[i])
		}
	}
}
