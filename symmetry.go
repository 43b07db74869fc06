package tat

import (
	"fmt"
	"strconv"
)

// symTag identifies a symmetry kind in the binary format.
type symTag uint8

const (
	tagNoSymmetry symTag = iota
	tagZ2
	tagU1
	tagFermi
	tagFermiZ2
	tagFermiU1
)

// Symmetry is a conserved quantum-number label attached to an edge segment.
//
// Values form a totally ordered abelian group: Plus combines, Negate inverts,
// and the neutral element is Plus(Negate()). A block of a symmetric tensor
// exists iff the per-axis symmetries sum to neutral.
//
// The set of implementations is closed (NoSymmetry, Z2, U1, Fermi, FermiZ2,
// FermiU1); mixing kinds in one expression is a programming error and panics.
type Symmetry interface {
	// Plus returns the group combination of the receiver and other.
	Plus(other Symmetry) Symmetry
	// Negate returns the group inverse.
	Negate() Symmetry
	// Compare returns -1, 0 or +1 for the total order on this kind.
	Compare(other Symmetry) int
	// Fermionic reports whether this kind participates in fermionic
	// sign bookkeeping (arrows, reversal and transposition signs).
	Fermionic() bool
	// Parity reports whether this particular value has odd fermionic parity.
	// Always false for non-fermionic kinds.
	Parity() bool

	fmt.Stringer

	// tag and payload keep the implementation set closed and give the
	// binary codec a stable encoding.
	tag() symTag
	payload() (int64, int64)
}

// Neutral returns the neutral element of s's kind.
func Neutral(s Symmetry) Symmetry {
	return s.Plus(s.Negate())
}

// IsNeutral reports whether s is the neutral element of its kind.
func IsNeutral(s Symmetry) bool {
	return s.Compare(Neutral(s)) == 0
}

func mustSame[S Symmetry](other Symmetry) S {
	v, ok := other.(S)
	if !ok {
		panic(fmt.Sprintf("tat: mixed symmetry kinds: %T and %T", v, other))
	}
	return v
}

// NoSymmetry is the trivial symmetry of a non-symmetric tensor.
type NoSymmetry struct{}

func (NoSymmetry) Plus(other Symmetry) Symmetry { mustSame[NoSymmetry](other); return NoSymmetry{} }
func (NoSymmetry) Negate() Symmetry             { return NoSymmetry{} }
func (NoSymmetry) Compare(other Symmetry) int   { mustSame[NoSymmetry](other); return 0 }
func (NoSymmetry) Fermionic() bool              { return false }
func (NoSymmetry) Parity() bool                 { return false }
func (NoSymmetry) String() string               { return "()" }
func (NoSymmetry) tag() symTag                  { return tagNoSymmetry }
func (NoSymmetry) payload() (int64, int64)      { return 0, 0 }

// Z2 is the two-element parity group {false, true} under XOR.
type Z2 bool

func (z Z2) Plus(other Symmetry) Symmetry { return Z2(bool(z) != bool(mustSame[Z2](other))) }
func (z Z2) Negate() Symmetry             { return z }
func (z Z2) Compare(other Symmetry) int   { return compareBool(bool(z), bool(mustSame[Z2](other))) }
func (Z2) Fermionic() bool                { return false }
func (Z2) Parity() bool                   { return false }
func (z Z2) String() string               { return strconv.FormatBool(bool(z)) }
func (Z2) tag() symTag                    { return tagZ2 }
func (z Z2) payload() (int64, int64)      { return boolPayload(bool(z)), 0 }

// U1 is the additive group of integers, the usual particle-number symmetry.
type U1 int

func (u U1) Plus(other Symmetry) Symmetry { return u + mustSame[U1](other) }
func (u U1) Negate() Symmetry             { return -u }
func (u U1) Compare(other Symmetry) int   { return compareInt(int(u), int(mustSame[U1](other))) }
func (U1) Fermionic() bool                { return false }
func (U1) Parity() bool                   { return false }
func (u U1) String() string               { return strconv.Itoa(int(u)) }
func (U1) tag() symTag                    { return tagU1 }
func (u U1) payload() (int64, int64)      { return int64(u), 0 }

// Fermi is a fermionic particle-number symmetry; odd values carry odd parity.
type Fermi int

func (f Fermi) Plus(other Symmetry) Symmetry { return f + mustSame[Fermi](other) }
func (f Fermi) Negate() Symmetry             { return -f }
func (f Fermi) Compare(other Symmetry) int   { return compareInt(int(f), int(mustSame[Fermi](other))) }
func (Fermi) Fermionic() bool                { return true }
func (f Fermi) Parity() bool                 { return f&1 != 0 }
func (f Fermi) String() string               { return strconv.Itoa(int(f)) }
func (Fermi) tag() symTag                    { return tagFermi }
func (f Fermi) payload() (int64, int64)      { return int64(f), 0 }

// FermiZ2 is the fixed-size tuple Fermi x Z2 with lexicographic order.
// Parity comes from the fermionic component alone.
type FermiZ2 struct {
	Fermi int
	Z2    bool
}

func (f FermiZ2) Plus(other Symmetry) Symmetry {
	o := mustSame[FermiZ2](other)
	return FermiZ2{Fermi: f.Fermi + o.Fermi, Z2: f.Z2 != o.Z2}
}

func (f FermiZ2) Negate() Symmetry {
	return FermiZ2{Fermi: -f.Fermi, Z2: f.Z2}
}

func (f FermiZ2) Compare(other Symmetry) int {
	o := mustSame[FermiZ2](other)
	if c := compareInt(f.Fermi, o.Fermi); c != 0 {
		return c
	}
	return compareBool(f.Z2, o.Z2)
}

func (FermiZ2) Fermionic() bool { return true }
func (f FermiZ2) Parity() bool  { return f.Fermi&1 != 0 }

func (f FermiZ2) String() string {
	return "(" + strconv.Itoa(f.Fermi) + "," + strconv.FormatBool(f.Z2) + ")"
}

func (FermiZ2) tag() symTag { return tagFermiZ2 }

func (f FermiZ2) payload() (int64, int64) {
	return int64(f.Fermi), boolPayload(f.Z2)
}

// FermiU1 is the fixed-size tuple Fermi x U1 with lexicographic order.
type FermiU1 struct {
	Fermi int
	U1    int
}

func (f FermiU1) Plus(other Symmetry) Symmetry {
	o := mustSame[FermiU1](other)
	return FermiU1{Fermi: f.Fermi + o.Fermi, U1: f.U1 + o.U1}
}

func (f FermiU1) Negate() Symmetry {
	return FermiU1{Fermi: -f.Fermi, U1: -f.U1}
}

func (f FermiU1) Compare(other Symmetry) int {
	o := mustSame[FermiU1](other)
	if c := compareInt(f.Fermi, o.Fermi); c != 0 {
		return c
	}
	return compareInt(f.U1, o.U1)
}

func (FermiU1) Fermionic() bool { return true }
func (f FermiU1) Parity() bool  { return f.Fermi&1 != 0 }

func (f FermiU1) String() string {
	return "(" + strconv.Itoa(f.Fermi) + "," + strconv.Itoa(f.U1) + ")"
}

func (FermiU1) tag() symTag { return tagFermiU1 }

func (f FermiU1) payload() (int64, int64) {
	return int64(f.Fermi), int64(f.U1)
}

// symmetryFromPayload is the decoding counterpart of tag/payload.
func symmetryFromPayload(t symTag, a, b int64) (Symmetry, error) {
	switch t {
	case tagNoSymmetry:
		return NoSymmetry{}, nil
	case tagZ2:
		return Z2(a != 0), nil
	case tagU1:
		return U1(a), nil
	case tagFermi:
		return Fermi(a), nil
	case tagFermiZ2:
		return FermiZ2{Fermi: int(a), Z2: b != 0}, nil
	case tagFermiU1:
		return FermiU1{Fermi: int(a), U1: int(b)}, nil
	default:
		return nil, fmt.Errorf("%w: unknown symmetry tag %d", ErrCorruptData, t)
	}
}

// compareKeys orders block keys lexicographically.
func compareKeys(a, b []Symmetry) int {
	for i := range a {
		if c := a[i].Compare(b[i]); c != 0 {
			return c
		}
	}
	return 0
}

func compareInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareBool(a, b bool) int {
	switch {
	case !a && b:
		return -1
	case a && !b:
		return 1
	default:
		return 0
	}
}

func boolPayload(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
