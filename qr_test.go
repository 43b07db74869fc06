package tat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQRReassemblesTrivial(t *testing.T) {
	a := MustNew[float64]([]string{"i", "j"}, []Edge{TrivialEdge(3), TrivialEdge(2)})
	a.Range(1, 1)

	res, err := QR(a, 'Q', []string{"i"}, "q", "r")
	require.NoError(t, err)
	assert.Equal(t, []string{"i", "q"}, res.Q.Names())
	assert.Equal(t, []string{"r", "j"}, res.R.Names())

	full, err := Contract(res.Q, res.R, []Pair{{A: "q", B: "r"}})
	require.NoError(t, err)
	assertSameDense(t, a, full, 1e-9)
}

func TestQRDirectionR(t *testing.T) {
	a := MustNew[float64]([]string{"i", "j", "k"}, []Edge{TrivialEdge(2), TrivialEdge(2), TrivialEdge(3)})
	a.Range(1, 1)

	// Naming the R side: k goes to R, everything else to Q.
	res, err := QR(a, 'R', []string{"k"}, "q", "r")
	require.NoError(t, err)
	assert.Equal(t, []string{"i", "j", "q"}, res.Q.Names())
	assert.Equal(t, []string{"r", "k"}, res.R.Names())

	full, err := Contract(res.Q, res.R, []Pair{{A: "q", B: "r"}})
	require.NoError(t, err)
	assertSameDense(t, a, full, 1e-9)
}

func TestQROrthogonality(t *testing.T) {
	a := MustNew[float64]([]string{"i", "j"}, []Edge{TrivialEdge(4), TrivialEdge(2)})
	a.Range(1, 1)

	res, err := QR(a, 'Q', []string{"i"}, "q", "r")
	require.NoError(t, err)

	// Columns of Q are orthonormal: contracting Q with itself over the
	// row axis gives the identity on the common edge.
	qc, err := res.Q.Conjugate().Rename(map[string]string{"q": "q2"})
	require.NoError(t, err)
	qq, err := Contract(res.Q, qc, []Pair{{A: "i", B: "i"}})
	require.NoError(t, err)

	qe, err := res.Q.EdgeByName("q")
	require.NoError(t, err)
	p := qe.Dimension()
	for x := 0; x < p; x++ {
		for y := 0; y < p; y++ {
			want := 0.0
			if x == y {
				want = 1
			}
			got := denseAt(t, qq, map[string]Point{"q": At(x), "q2": At(y)})
			assert.InDelta(t, want, got, 1e-9)
		}
	}
}

func TestQRReassemblesU1(t *testing.T) {
	e := u1Edge()
	a := MustNew[float64]([]string{"i", "j"}, []Edge{e, e.Conjugate()})
	a.Range(1, 1)

	res, err := QR(a, 'Q', []string{"i"}, "q", "r")
	require.NoError(t, err)
	full, err := Contract(res.Q, res.R, []Pair{{A: "q", B: "r"}})
	require.NoError(t, err)
	assertSameDense(t, a, full, 1e-9)
}

func TestQRBadDirection(t *testing.T) {
	a := MustNew[float64]([]string{"i", "j"}, []Edge{TrivialEdge(2), TrivialEdge(2)})
	_, err := QR(a, 'X', []string{"i"}, "q", "r")
	var se *ErrShapeMismatch
	assert.ErrorAs(t, err, &se)
}
