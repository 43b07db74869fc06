package kernel

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatMul(t *testing.T) {
	a := []float64{1, 2, 3, 4, 5, 6}    // 2x3
	b := []float64{7, 8, 9, 10, 11, 12} // 3x2
	dst := make([]float64, 4)
	MatMul(dst, a, b, 2, 3, 2)
	assert.InDeltaSlice(t, []float64{58, 64, 139, 154}, dst, 1e-12)
}

func TestMatMulFloat32(t *testing.T) {
	a := []float32{1, 2, 3, 4} // 2x2
	b := []float32{5, 6, 7, 8} // 2x2
	dst := make([]float32, 4)
	MatMul(dst, a, b, 2, 2, 2)
	assert.InDeltaSlice(t, []float32{19, 22, 43, 50}, dst, 1e-4)
}

func TestMatMulEmpty(t *testing.T) {
	assert.NotPanics(t, func() { MatMul[float64](nil, nil, nil, 0, 3, 2) })
}

func TestSVDReconstructs(t *testing.T) {
	a := []float64{3, 1, 1, 3, 2, 4} // 3x2
	u, s, vt, err := SVD(a, 3, 2)
	require.NoError(t, err)
	require.Len(t, s, 2)
	assert.GreaterOrEqual(t, s[0], s[1])

	// u * diag(s) * vt must give back a.
	got := make([]float64, 6)
	for i := 0; i < 3; i++ {
		for j := 0; j < 2; j++ {
			sum := 0.0
			for k := 0; k < 2; k++ {
				sum += u[i*2+k] * s[k] * vt[k*2+j]
			}
			got[i*2+j] = sum
		}
	}
	assert.InDeltaSlice(t, a, got, 1e-9)
}

func TestQRReconstructs(t *testing.T) {
	a := []float64{2, 0, 1, 3, 4, 5} // 3x2
	q, r := QR(a, 3, 2)

	got := make([]float64, 6)
	for i := 0; i < 3; i++ {
		for j := 0; j < 2; j++ {
			sum := 0.0
			for k := 0; k < 2; k++ {
				sum += q[i*2+k] * r[k*2+j]
			}
			got[i*2+j] = sum
		}
	}
	assert.InDeltaSlice(t, a, got, 1e-9)

	// Orthonormal columns.
	for x := 0; x < 2; x++ {
		for y := 0; y < 2; y++ {
			dot := 0.0
			for i := 0; i < 3; i++ {
				dot += q[i*2+x] * q[i*2+y]
			}
			want := 0.0
			if x == y {
				want = 1
			}
			assert.InDelta(t, want, dot, 1e-9)
		}
	}
}

func TestExp(t *testing.T) {
	// exp(0) = I.
	zero := make([]float64, 4)
	got := Exp(zero, 2)
	assert.InDeltaSlice(t, []float64{1, 0, 0, 1}, got, 1e-12)

	// exp(diag(1, 2)) = diag(e, e^2).
	diag := []float64{1, 0, 0, 2}
	got = Exp(diag, 2)
	assert.InDelta(t, math.E, got[0], 1e-9)
	assert.InDelta(t, 0, got[1], 1e-9)
	assert.InDelta(t, math.Exp(2), got[3], 1e-9)

	assert.Nil(t, Exp[float64](nil, 0))
}
