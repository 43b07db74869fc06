package tat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// reassemble contracts U·S·V back together.
func reassemble(t *testing.T, res SVDResult[float64]) Tensor[float64] {
	t.Helper()
	us, err := Contract(res.U, res.S, []Pair{{A: "u", B: "su"}})
	require.NoError(t, err)
	full, err := Contract(us, res.V, []Pair{{A: "sv", B: "v"}})
	require.NoError(t, err)
	return full
}

func assertSameDense(t *testing.T, want, got Tensor[float64], tol float64) {
	t.Helper()
	require.Equal(t, want.Names(), got.Names())
	dims := make([]int, want.Rank())
	for i, e := range want.Edges() {
		dims[i] = e.Dimension()
	}
	names := want.Names()
	idx := make([]int, len(dims))
	for n := product(dims); n > 0; n-- {
		pos := map[string]Point{}
		for i, name := range names {
			pos[name] = At(idx[i])
		}
		assert.InDelta(t, denseAt(t, want, pos), denseAt(t, got, pos), tol, "at %v", idx)
		odometer(idx, dims)
	}
}

func TestSVDReassemblesTrivial(t *testing.T) {
	a := MustNew[float64]([]string{"i", "j"}, []Edge{TrivialEdge(3), TrivialEdge(4)})
	a.Range(1, 1)

	res, err := SVD(a, []string{"i"}, "u", "v", NoCut{}, "su", "sv")
	require.NoError(t, err)
	assert.Equal(t, []string{"i", "u"}, res.U.Names())
	assert.Equal(t, []string{"su", "sv"}, res.S.Names())
	assert.Equal(t, []string{"v", "j"}, res.V.Names())

	assertSameDense(t, a, reassemble(t, res), 1e-9)
}

func TestSVDReassemblesU1(t *testing.T) {
	e := u1Edge()
	a := MustNew[float64]([]string{"i", "j", "k"}, []Edge{e, e, e.Conjugate()})
	a.Range(1, 1)

	res, err := SVD(a, []string{"i", "j"}, "u", "v", NoCut{}, "su", "sv")
	require.NoError(t, err)
	full := reassemble(t, res)
	back, err := full.Transpose([]string{"i", "j", "k"})
	require.NoError(t, err)
	assertSameDense(t, a, back, 1e-9)
}

func TestSVDSingularValuesDescending(t *testing.T) {
	a := MustNew[float64]([]string{"i", "j"}, []Edge{TrivialEdge(4), TrivialEdge(4)})
	a.Range(1, 1)

	res, err := SVD(a, []string{"i"}, "u", "v", NoCut{}, "su", "sv")
	require.NoError(t, err)
	s := res.S.Storage()
	se, err := res.S.EdgeByName("su")
	require.NoError(t, err)
	k := se.Dimension()
	prev := s[0]
	for d := 1; d < k; d++ {
		cur := s[d*k+d]
		assert.GreaterOrEqual(t, prev, cur)
		assert.GreaterOrEqual(t, cur, 0.0)
		prev = cur
	}
}

func TestSVDRemainCut(t *testing.T) {
	// diag(3, 2): keeping one singular value leaves diag(3, 0).
	a := MustNew[float64]([]string{"i", "j"}, []Edge{TrivialEdge(2), TrivialEdge(2)})
	require.NoError(t, a.SetAt(3, map[string]Point{"i": At(0), "j": At(0)}))
	require.NoError(t, a.SetAt(2, map[string]Point{"i": At(1), "j": At(1)}))

	res, err := SVD(a, []string{"i"}, "u", "v", RemainCut{Value: 1}, "su", "sv")
	require.NoError(t, err)
	se, err := res.S.EdgeByName("su")
	require.NoError(t, err)
	assert.Equal(t, 1, se.Dimension())
	assert.InDelta(t, 3, res.S.Storage()[0], 1e-9)

	full := reassemble(t, res)
	assert.InDelta(t, 3, denseAt(t, full, map[string]Point{"i": At(0), "j": At(0)}), 1e-9)
	assert.InDelta(t, 0, denseAt(t, full, map[string]Point{"i": At(1), "j": At(1)}), 1e-9)
}

func TestSVDRelativeCut(t *testing.T) {
	a := MustNew[float64]([]string{"i", "j"}, []Edge{TrivialEdge(2), TrivialEdge(2)})
	require.NoError(t, a.SetAt(10, map[string]Point{"i": At(0), "j": At(0)}))
	require.NoError(t, a.SetAt(1, map[string]Point{"i": At(1), "j": At(1)}))

	res, err := SVD(a, []string{"i"}, "u", "v", RelativeCut{Value: 0.5}, "su", "sv")
	require.NoError(t, err)
	se, err := res.S.EdgeByName("su")
	require.NoError(t, err)
	assert.Equal(t, 1, se.Dimension())
}

func TestSVDCutAcrossSectors(t *testing.T) {
	// RemainCut ranks globally: all kept values beat all dropped ones
	// across every symmetry sector.
	e := u1Edge()
	a := MustNew[float64]([]string{"i", "j"}, []Edge{e, e.Conjugate()})
	a.Range(1, 1)

	full, err := SVD(a, []string{"i"}, "u", "v", NoCut{}, "su", "sv")
	require.NoError(t, err)
	cutRes, err := SVD(a, []string{"i"}, "u", "v", RemainCut{Value: 3}, "su", "sv")
	require.NoError(t, err)

	fe, err := full.S.EdgeByName("su")
	require.NoError(t, err)
	ce, err := cutRes.S.EdgeByName("su")
	require.NoError(t, err)
	assert.Greater(t, fe.Dimension(), 3)
	assert.Equal(t, 3, ce.Dimension())

	var all, kept []float64
	for i := range full.S.core.blocks {
		data := full.S.core.data(i)
		k := full.S.core.blockDims(i)[0]
		for d := 0; d < k; d++ {
			all = append(all, data[d*k+d])
		}
	}
	for i := range cutRes.S.core.blocks {
		data := cutRes.S.core.data(i)
		k := cutRes.S.core.blockDims(i)[0]
		for d := 0; d < k; d++ {
			kept = append(kept, data[d*k+d])
		}
	}
	require.Len(t, kept, 3)
	smallest := kept[0]
	for _, v := range kept {
		if v < smallest {
			smallest = v
		}
	}
	larger := 0
	for _, v := range all {
		if v > smallest+1e-9 {
			larger++
		}
	}
	assert.LessOrEqual(t, larger, 3)
}
