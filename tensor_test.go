package tat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func u1Edge() Edge {
	return MustEdge([]Segment{{U1(-1), 2}, {U1(0), 3}, {U1(1), 2}}, false)
}

func TestNewTensorBlocks(t *testing.T) {
	tests := []struct {
		name   string
		names  []string
		edges  []Edge
		blocks int
		size   int
	}{
		{
			name:   "trivial matrix",
			names:  []string{"i", "j"},
			edges:  []Edge{TrivialEdge(2), TrivialEdge(3)},
			blocks: 1,
			size:   6,
		},
		{
			name:   "u1 matrix",
			names:  []string{"i", "j"},
			edges:  []Edge{u1Edge(), u1Edge().Conjugate()},
			blocks: 3,
			size:   2*2 + 3*3 + 2*2,
		},
		{
			name:   "u1 vector has only the neutral sector",
			names:  []string{"i"},
			edges:  []Edge{u1Edge()},
			blocks: 1,
			size:   3,
		},
		{
			name:   "rank 0",
			names:  nil,
			edges:  nil,
			blocks: 1,
			size:   1,
		},
		{
			name:   "zero-segment edge",
			names:  []string{"i", "j"},
			edges:  []Edge{{}, TrivialEdge(2)},
			blocks: 0,
			size:   0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tensor, err := New[float64](tt.names, tt.edges)
			require.NoError(t, err)
			assert.Equal(t, tt.blocks, tensor.Blocks())
			assert.Equal(t, tt.size, tensor.Size())
		})
	}
}

func TestU1BlockStructure(t *testing.T) {
	ei := MustEdge([]Segment{{U1(-1), 3}, {U1(0), 1}, {U1(1), 2}}, false)
	ej := MustEdge([]Segment{{U1(-1), 3}, {U1(0), 2}, {U1(1), 1}}, false)
	a := MustNew[float64]([]string{"i", "j"}, []Edge{ei, ej})

	// Only the charge-conserving keys exist.
	require.Equal(t, 3, a.Blocks())
	for _, key := range [][]Symmetry{
		{U1(-1), U1(1)},
		{U1(0), U1(0)},
		{U1(1), U1(-1)},
	} {
		_, err := a.BlockOf(key)
		assert.NoError(t, err)
	}
	_, err := a.BlockOf([]Symmetry{U1(-1), U1(-1)})
	assert.ErrorIs(t, err, ErrBlockNotFound)

	b, err := a.BlockOf([]Symmetry{U1(-1), U1(1)})
	require.NoError(t, err)
	assert.Len(t, b, 3*1)
}

func TestNewTensorNameValidation(t *testing.T) {
	var in *ErrInvalidNames
	_, err := New[float64]([]string{"i"}, []Edge{TrivialEdge(2), TrivialEdge(2)})
	assert.ErrorAs(t, err, &in)
	_, err = New[float64]([]string{"i", "i"}, []Edge{TrivialEdge(2), TrivialEdge(2)})
	assert.ErrorAs(t, err, &in)
}

func TestCopyOnWrite(t *testing.T) {
	a := MustNew[float64]([]string{"i", "j"}, []Edge{TrivialEdge(2), TrivialEdge(2)})
	a.Range(1, 1)

	b := a.ShallowCopy()
	assert.Equal(t, a.core, b.core)

	b.Transform(func(v float64) float64 { return 2 * v })
	assert.NotEqual(t, a.core, b.core)
	assert.Equal(t, 1.0, a.Storage()[0])
	assert.Equal(t, 2.0, b.Storage()[0])
}

func TestRenameSharesStorage(t *testing.T) {
	a := MustNew[float64]([]string{"i", "j"}, []Edge{TrivialEdge(2), TrivialEdge(2)})
	a.Range(0, 1)
	b, err := a.Rename(map[string]string{"i": "x"})
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "j"}, b.Names())
	assert.Equal(t, a.core, b.core)

	_, err = a.Rename(map[string]string{"nope": "x"})
	assert.ErrorIs(t, err, ErrNameNotFound)
}

func TestGetSetAt(t *testing.T) {
	a := MustNew[float64]([]string{"i", "j"}, []Edge{u1Edge(), u1Edge().Conjugate()})

	require.NoError(t, a.SetAt(7, map[string]Point{"i": AtSym(U1(0), 1), "j": AtSym(U1(0), 2)}))
	v, err := a.Get(map[string]Point{"i": AtSym(U1(0), 1), "j": AtSym(U1(0), 2)})
	require.NoError(t, err)
	assert.Equal(t, 7.0, v)

	// Flat addressing resolves through the segment list: flat 3 on the i
	// edge is the U1(0) sector, offset 1.
	v, err = a.Get(map[string]Point{"i": At(3), "j": AtSym(U1(0), 2)})
	require.NoError(t, err)
	assert.Equal(t, 7.0, v)

	_, err = a.Get(map[string]Point{"i": AtSym(U1(0), 0), "j": AtSym(U1(1), 0)})
	assert.ErrorIs(t, err, ErrBlockNotFound)
	_, err = a.Get(map[string]Point{"i": AtSym(U1(0), 9), "j": AtSym(U1(0), 0)})
	var oob *ErrIndexOutOfRange
	assert.ErrorAs(t, err, &oob)
}

func TestScalarTensor(t *testing.T) {
	s := NewScalar(2.5)
	assert.True(t, s.ScalarLike())
	v, err := s.Item()
	require.NoError(t, err)
	assert.Equal(t, 2.5, v)

	m := MustNew[float64]([]string{"i"}, []Edge{TrivialEdge(3)})
	_, err = m.Item()
	assert.ErrorIs(t, err, ErrNotScalar)
}

func TestOne(t *testing.T) {
	o, err := One(3.0, []string{"a", "b"}, []Symmetry{U1(1), U1(-1)}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, o.Size())
	assert.Equal(t, 3.0, o.Storage()[0])
}

func TestNorm(t *testing.T) {
	a := MustNew[float64]([]string{"i"}, []Edge{TrivialEdge(4)})
	a.Set(func() float64 { return -2 })
	assert.InDelta(t, 2, a.Norm(-1), 1e-12)
	assert.InDelta(t, 4, a.Norm(0), 1e-12)
	assert.InDelta(t, 8, a.Norm(1), 1e-12)
	assert.InDelta(t, 4, a.Norm(2), 1e-12)
}

func TestConvert(t *testing.T) {
	a := MustNew[float32]([]string{"i"}, []Edge{TrivialEdge(3)})
	a.Range(0, 1)
	b := Convert[float64](a)
	assert.Equal(t, []float64{0, 1, 2}, b.Storage())
}

func TestMapKeepsOriginal(t *testing.T) {
	a := MustNew[float64]([]string{"i"}, []Edge{TrivialEdge(2)})
	a.Range(1, 1)
	b := a.Map(func(v float64) float64 { return v * v })
	assert.Equal(t, []float64{1, 2}, a.Storage())
	assert.Equal(t, []float64{1, 4}, b.Storage())
}
