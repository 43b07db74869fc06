package tat

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentityEntries(t *testing.T) {
	a := MustNew[float64]([]string{"i", "j"}, []Edge{TrivialEdge(3), TrivialEdge(3)})
	_, err := a.Identity([]Pair{{A: "i", B: "j"}})
	require.NoError(t, err)

	for x := 0; x < 3; x++ {
		for y := 0; y < 3; y++ {
			want := 0.0
			if x == y {
				want = 1
			}
			got := denseAt(t, a, map[string]Point{"i": At(x), "j": At(y)})
			assert.Equal(t, want, got)
		}
	}
}

func TestIdentityU1ActsAsIdentity(t *testing.T) {
	e := u1Edge()
	id := MustNew[float64]([]string{"a", "b"}, []Edge{e, e.Conjugate()})
	_, err := id.Identity([]Pair{{A: "a", B: "b"}})
	require.NoError(t, err)

	v := MustNew[float64]([]string{"x", "a"}, []Edge{e, e.Conjugate()})
	v.Range(1, 1)

	// Applying the identity map to v must reproduce v.
	out, err := Contract(v, id, []Pair{{A: "a", B: "b"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "a"}, out.Names())
	assertSameDense(t, v, out, 1e-12)
}

func TestIdentityPairValidation(t *testing.T) {
	a := MustNew[float64]([]string{"i", "j", "k"}, []Edge{TrivialEdge(2), TrivialEdge(2), TrivialEdge(2)})
	_, err := a.Identity([]Pair{{A: "i", B: "j"}})
	var se *ErrShapeMismatch
	assert.ErrorAs(t, err, &se)

	b := MustNew[float64]([]string{"i", "j"}, []Edge{TrivialEdge(2), TrivialEdge(2)})
	_, err = b.Identity([]Pair{{A: "i", B: "i"}})
	var in *ErrInvalidNames
	assert.ErrorAs(t, err, &in)
}

func TestConjugateInvolution(t *testing.T) {
	e := MustEdge([]Segment{{Fermi(0), 1}, {Fermi(1), 2}}, true)
	a := MustNew[float64]([]string{"i", "j"}, []Edge{e, e.Conjugate()})
	a.Range(1, 1)

	c := a.Conjugate()
	ci, err := c.EdgeByName("i")
	require.NoError(t, err)
	assert.True(t, ci.Equal(e.Conjugate()))

	back := c.Conjugate()
	assert.Equal(t, a.Names(), back.Names())
	assert.Equal(t, a.Edges(), back.Edges())
	assert.Equal(t, a.Storage(), back.Storage())
}

func TestConjugatePositivePairingRankThree(t *testing.T) {
	// Mixed arrows and several odd sectors; the adjusted conjugate must
	// still pair to the squared norm.
	e1 := MustEdge([]Segment{{Fermi(0), 1}, {Fermi(1), 1}}, true)
	e2 := MustEdge([]Segment{{Fermi(0), 1}, {Fermi(1), 2}}, false)
	e3 := MustEdge([]Segment{{Fermi(-2), 1}, {Fermi(-1), 2}, {Fermi(0), 1}}, true)
	a := MustNew[float64]([]string{"i", "j", "k"}, []Edge{e1, e2, e3})
	a.Range(1, 1)

	want := 0.0
	for _, v := range a.Storage() {
		want += v * v
	}
	s, err := Contract(a, a.ConjugatePositive(), []Pair{{A: "i", B: "i"}, {A: "j", B: "j"}, {A: "k", B: "k"}})
	require.NoError(t, err)
	got, err := s.Item()
	require.NoError(t, err)
	assert.InDelta(t, want, got, 1e-12)
}

func TestShrinkTrivial(t *testing.T) {
	a := MustNew[float64]([]string{"i", "j"}, []Edge{TrivialEdge(2), TrivialEdge(3)})
	a.Range(0, 1)

	s, err := a.Shrink(map[string]ShrinkPoint{"j": {Index: 1}}, "", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"i"}, s.Names())
	for x := 0; x < 2; x++ {
		want := denseAt(t, a, map[string]Point{"i": At(x), "j": At(1)})
		assert.InDelta(t, want, denseAt(t, s, map[string]Point{"i": At(x)}), 1e-12)
	}
}

func TestShrinkBalancing(t *testing.T) {
	a := MustNew[float64]([]string{"i", "j"}, []Edge{u1Edge(), u1Edge().Conjugate()})
	a.Range(1, 1)

	// Pinning i inside the charge-1 sector leaves a net charge; it lands on
	// the fresh dimension-one edge.
	s, err := a.Shrink(map[string]ShrinkPoint{"i": {Sym: U1(1), Index: 0}}, "b", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"j", "b"}, s.Names())
	be, err := s.EdgeByName("b")
	require.NoError(t, err)
	assert.True(t, be.Equal(MustEdge([]Segment{{U1(1), 1}}, false)))

	for y := 0; y < u1Edge().Dimension(); y++ {
		want := denseAt(t, a, map[string]Point{"i": AtSym(U1(1), 0), "j": At(y)})
		got := denseAt(t, s, map[string]Point{"j": At(y), "b": At(0)})
		assert.InDelta(t, want, got, 1e-12)
	}

	// Without a balancing name the net charge is an error.
	_, err = a.Shrink(map[string]ShrinkPoint{"i": {Sym: U1(1), Index: 0}}, "", false)
	var se *ErrShapeMismatch
	assert.ErrorAs(t, err, &se)
}

func TestExpandTrivialAndBack(t *testing.T) {
	a := MustNew[float64]([]string{"i"}, []Edge{TrivialEdge(2)})
	a.Range(1, 1)

	x, err := a.Expand(map[string]ExpandPoint{"n": {Index: 1, Dim: 3}}, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"i", "n"}, x.Names())
	for ix := 0; ix < 2; ix++ {
		for n := 0; n < 3; n++ {
			want := 0.0
			if n == 1 {
				want = float64(ix + 1)
			}
			assert.InDelta(t, want, denseAt(t, x, map[string]Point{"i": At(ix), "n": At(n)}), 1e-12)
		}
	}

	back, err := x.Shrink(map[string]ShrinkPoint{"n": {Index: 1}}, "", false)
	require.NoError(t, err)
	assert.Equal(t, a.Names(), back.Names())
	assert.Equal(t, a.Storage(), back.Storage())
}

func TestExpandShrinkFermionic(t *testing.T) {
	eb := MustEdge([]Segment{{Fermi(1), 1}}, true)
	a := MustNew[float64]([]string{"i", "j", "b"}, []Edge{fermiEdge(true), fermiEdge(true).Conjugate(), eb})
	a.Range(1, 1)

	// The new axis carries charge 1, absorbed from the dimension-one b.
	x, err := a.Expand(map[string]ExpandPoint{"p": {Arrow: true, Sym: Fermi(1), Index: 0, Dim: 2}}, "b")
	require.NoError(t, err)
	assert.Equal(t, []string{"i", "j", "p"}, x.Names())

	back, err := x.Shrink(map[string]ShrinkPoint{"p": {Sym: Fermi(1), Index: 0}}, "b", true)
	require.NoError(t, err)
	assert.Equal(t, a.Names(), back.Names())
	assert.Equal(t, a.Edges(), back.Edges())
	assert.Equal(t, a.Storage(), back.Storage())
}

func TestExpandErrors(t *testing.T) {
	a := MustNew[float64]([]string{"i"}, []Edge{TrivialEdge(2)})

	var se *ErrShapeMismatch
	_, err := a.Expand(map[string]ExpandPoint{"n": {Index: 3, Dim: 3}}, "")
	assert.ErrorAs(t, err, &se)

	_, err = a.Expand(map[string]ExpandPoint{"n": {Sym: U1(1), Index: 0, Dim: 2}}, "")
	assert.ErrorAs(t, err, &se)

	_, err = a.Expand(map[string]ExpandPoint{"n": {Index: 0, Dim: 2}}, "missing")
	assert.ErrorIs(t, err, ErrNameNotFound)
}

func TestTraceIdentityGivesDimension(t *testing.T) {
	a := MustNew[float64]([]string{"i", "j"}, []Edge{TrivialEdge(4), TrivialEdge(4)})
	_, err := a.Identity([]Pair{{A: "i", B: "j"}})
	require.NoError(t, err)

	s, err := a.Trace([]Pair{{A: "i", B: "j"}})
	require.NoError(t, err)
	got, err := s.Item()
	require.NoError(t, err)
	assert.InDelta(t, 4, got, 1e-12)
}

func TestTraceMatchesDiagonalSum(t *testing.T) {
	a := MustNew[float64]([]string{"i", "j"}, []Edge{u1Edge(), u1Edge().Conjugate()})
	a.Range(1, 1)

	s, err := a.Trace([]Pair{{A: "i", B: "j"}})
	require.NoError(t, err)
	got, err := s.Item()
	require.NoError(t, err)

	want := 0.0
	for x := 0; x < u1Edge().Dimension(); x++ {
		want += denseAt(t, a, map[string]Point{"i": At(x), "j": At(x)})
	}
	assert.InDelta(t, want, got, 1e-12)
}

func TestTracePartial(t *testing.T) {
	e := TrivialEdge(3)
	a := MustNew[float64]([]string{"i", "j", "k"}, []Edge{e, e, TrivialEdge(2)})
	a.Range(1, 1)

	s, err := a.Trace([]Pair{{A: "i", B: "j"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"k"}, s.Names())
	for z := 0; z < 2; z++ {
		want := 0.0
		for x := 0; x < 3; x++ {
			want += denseAt(t, a, map[string]Point{"i": At(x), "j": At(x), "k": At(z)})
		}
		got := denseAt(t, s, map[string]Point{"k": At(z)})
		assert.InDelta(t, want, got, 1e-12)
	}
}

func TestExponentialZeroIsIdentity(t *testing.T) {
	a := MustNew[float64]([]string{"i", "j"}, []Edge{TrivialEdge(3), TrivialEdge(3)})

	ex, err := a.Exponential([]Pair{{A: "i", B: "j"}}, 0)
	require.NoError(t, err)
	for x := 0; x < 3; x++ {
		for y := 0; y < 3; y++ {
			want := 0.0
			if x == y {
				want = 1
			}
			got := denseAt(t, ex, map[string]Point{"i": At(x), "j": At(y)})
			assert.InDelta(t, want, got, 1e-9)
		}
	}
}

func TestExponentialDiagonal(t *testing.T) {
	e := u1Edge()
	a := MustNew[float64]([]string{"i", "j"}, []Edge{e, e.Conjugate()})
	dim := e.Dimension()
	for x := 0; x < dim; x++ {
		require.NoError(t, a.SetAt(float64(x), map[string]Point{"i": At(x), "j": At(x)}))
	}

	ex, err := a.Exponential([]Pair{{A: "i", B: "j"}}, 0)
	require.NoError(t, err)
	for x := 0; x < dim; x++ {
		got := denseAt(t, ex, map[string]Point{"i": At(x), "j": At(x)})
		assert.InDelta(t, math.Exp(float64(x)), got, 1e-9)
	}
}

func TestExponentialScalar(t *testing.T) {
	s := NewScalar(2.0)
	ex, err := s.Exponential(nil, 0)
	require.NoError(t, err)
	got, err := ex.Item()
	require.NoError(t, err)
	assert.InDelta(t, math.Exp(2), got, 1e-12)
}
