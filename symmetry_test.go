package tat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSymmetryGroupLaws(t *testing.T) {
	tests := []struct {
		name string
		a    Symmetry
		b    Symmetry
		sum  Symmetry
	}{
		{name: "no symmetry", a: NoSymmetry{}, b: NoSymmetry{}, sum: NoSymmetry{}},
		{name: "z2 xor", a: Z2(true), b: Z2(true), sum: Z2(false)},
		{name: "u1 add", a: U1(2), b: U1(-3), sum: U1(-1)},
		{name: "fermi add", a: Fermi(1), b: Fermi(1), sum: Fermi(2)},
		{name: "fermi z2", a: FermiZ2{1, true}, b: FermiZ2{2, true}, sum: FermiZ2{3, false}},
		{name: "fermi u1", a: FermiU1{1, -1}, b: FermiU1{-1, 2}, sum: FermiU1{0, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, 0, tt.a.Plus(tt.b).Compare(tt.sum))
			assert.True(t, IsNeutral(tt.a.Plus(tt.a.Negate())))
			assert.Equal(t, 0, tt.a.Compare(tt.a))
		})
	}
}

func TestSymmetryParity(t *testing.T) {
	assert.False(t, U1(3).Parity())
	assert.False(t, Z2(true).Parity())
	assert.True(t, Fermi(1).Parity())
	assert.True(t, Fermi(-3).Parity())
	assert.False(t, Fermi(2).Parity())
	assert.True(t, FermiZ2{1, false}.Parity())
	assert.False(t, FermiZ2{2, true}.Parity())
	assert.True(t, FermiU1{-1, 4}.Parity())
}

func TestSymmetryOrdering(t *testing.T) {
	assert.Equal(t, -1, U1(-1).Compare(U1(2)))
	assert.Equal(t, 1, Fermi(3).Compare(Fermi(0)))
	assert.Equal(t, -1, Z2(false).Compare(Z2(true)))
	assert.Equal(t, -1, FermiU1{0, 1}.Compare(FermiU1{1, -5}))
	assert.Equal(t, 1, FermiZ2{0, true}.Compare(FermiZ2{0, false}))
}

func TestSymmetryPayloadRoundTrip(t *testing.T) {
	for _, s := range []Symmetry{
		NoSymmetry{}, Z2(true), U1(-7), Fermi(3), FermiZ2{-2, true}, FermiU1{1, -4},
	} {
		a, b := s.payload()
		got, err := symmetryFromPayload(s.tag(), a, b)
		require.NoError(t, err)
		assert.Equal(t, 0, s.Compare(got))
	}
	_, err := symmetryFromPayload(symTag(200), 0, 0)
	assert.ErrorIs(t, err, ErrCorruptData)
}

func TestMixedKindsPanic(t *testing.T) {
	assert.Panics(t, func() { U1(1).Plus(Fermi(1)) })
	assert.Panics(t, func() { Z2(true).Compare(NoSymmetry{}) })
}
