// Package kernel provides the dense linear-algebra kernels used by tensor
// contraction and decomposition. This is an internal package - the tensor
// engine is its only consumer.
//
// Kernels operate on row-major contiguous buffers with explicit dimensions
// and delegate to gonum, converting float32 inputs through float64.
package kernel

import (
	"errors"

	"gonum.org/v1/gonum/mat"
)

// Number is the scalar set the kernels accept.
type Number interface {
	~float32 | ~float64
}

// ErrNoConvergence is returned when an iterative factorization fails.
var ErrNoConvergence = errors.New("kernel: factorization did not converge")

func toFloat64[T Number](src []T) []float64 {
	if v, ok := any(src).([]float64); ok {
		return v
	}
	out := make([]float64, len(src))
	for i, x := range src {
		out[i] = float64(x)
	}
	return out
}

func fromFloat64[T Number](src []float64) []T {
	if v, ok := any(src).([]T); ok {
		out := make([]T, len(v))
		copy(out, v)
		return out
	}
	out := make([]T, len(src))
	for i, x := range src {
		out[i] = T(x)
	}
	return out
}

// denseInto copies a gonum matrix into a row-major slice.
func denseInto[T Number](dst []T, m *mat.Dense, rows, cols int) {
	raw := m.RawMatrix()
	for i := 0; i < rows; i++ {
		row := raw.Data[i*raw.Stride : i*raw.Stride+cols]
		for j, x := range row {
			dst[i*cols+j] = T(x)
		}
	}
}

// MatMul computes dst = a · b with a (m×k), b (k×n), dst (m×n), row-major.
func MatMul[T Number](dst, a, b []T, m, k, n int) {
	if m == 0 || k == 0 || n == 0 {
		return
	}
	am := mat.NewDense(m, k, toFloat64(a))
	bm := mat.NewDense(k, n, toFloat64(b))
	var cm mat.Dense
	cm.Mul(am, bm)
	denseInto(dst, &cm, m, n)
}

// SVD computes the thin singular value decomposition a = u · diag(s) · vt
// with a (m×n), u (m×p), s (p), vt (p×n), p = min(m, n). Singular values
// come back in descending order.
func SVD[T Number](a []T, m, n int) (u []T, s []T, vt []T, err error) {
	am := mat.NewDense(m, n, toFloat64(a))
	var svd mat.SVD
	if ok := svd.Factorize(am, mat.SVDThin); !ok {
		return nil, nil, nil, ErrNoConvergence
	}
	p := m
	if n < p {
		p = n
	}

	var um, vm mat.Dense
	svd.UTo(&um)
	svd.VTo(&vm)
	values := svd.Values(nil)

	u = make([]T, m*p)
	denseInto(u, &um, m, p)
	s = fromFloat64[T](values)

	// gonum hands back V (n×p); the engine wants its transpose.
	vt = make([]T, p*n)
	raw := vm.RawMatrix()
	for j := 0; j < n; j++ {
		for i := 0; i < p; i++ {
			vt[i*n+j] = T(raw.Data[j*raw.Stride+i])
		}
	}
	return u, s, vt, nil
}

// QR computes the thin factorization a = q · r with a (m×n), q (m×p),
// r (p×n), p = min(m, n).
func QR[T Number](a []T, m, n int) (q []T, r []T) {
	am := mat.NewDense(m, n, toFloat64(a))
	var qr mat.QR
	qr.Factorize(am)
	p := m
	if n < p {
		p = n
	}

	var qm, rm mat.Dense
	qr.QTo(&qm)
	qr.RTo(&rm)

	q = make([]T, m*p)
	rawQ := qm.RawMatrix()
	for i := 0; i < m; i++ {
		for j := 0; j < p; j++ {
			q[i*p+j] = T(rawQ.Data[i*rawQ.Stride+j])
		}
	}
	r = make([]T, p*n)
	denseInto(r, &rm, p, n)
	return q, r
}

// Exp computes the matrix exponential of the square n×n matrix a.
func Exp[T Number](a []T, n int) []T {
	if n == 0 {
		return nil
	}
	am := mat.NewDense(n, n, toFloat64(a))
	var em mat.Dense
	em.Exp(am)
	out := make([]T, n*n)
	denseInto(out, &em, n, n)
	return out
}
