package tat

import (
	"fmt"
	"sort"
	"strings"
)

// Segment is one symmetry sector of an edge: the conserved quantum number
// and the number of states carrying it.
type Segment struct {
	Sym Symmetry
	Dim int
}

// Edge describes one axis of a tensor: an ordered list of symmetry segments
// plus an orientation flag.
//
// Segment symmetries are unique and kept in ascending order; dimensions are
// positive. Arrow is meaningful only for fermionic symmetries. An edge with
// zero segments is valid and denotes a tensor with no storage.
type Edge struct {
	Segments []Segment
	Arrow    bool
}

// NewEdge validates segments and returns the edge they describe.
func NewEdge(segments []Segment, arrow bool) (Edge, error) {
	for i, s := range segments {
		if s.Sym == nil {
			return Edge{}, &ErrInvalidEdge{Reason: fmt.Sprintf("segment %d has nil symmetry", i)}
		}
		if s.Dim <= 0 {
			return Edge{}, &ErrInvalidEdge{Reason: fmt.Sprintf("segment %s has non-positive dimension %d", s.Sym, s.Dim)}
		}
		if i > 0 {
			if c := segments[i-1].Sym.Compare(s.Sym); c >= 0 {
				return Edge{}, &ErrInvalidEdge{Reason: fmt.Sprintf("segments not strictly ascending at %s", s.Sym)}
			}
		}
	}
	out := make([]Segment, len(segments))
	copy(out, segments)
	return Edge{Segments: out, Arrow: arrow}, nil
}

// MustEdge is NewEdge that panics on invalid input. Intended for literals.
func MustEdge(segments []Segment, arrow bool) Edge {
	e, err := NewEdge(segments, arrow)
	if err != nil {
		panic(err)
	}
	return e
}

// TrivialEdge returns the edge of a non-symmetric axis of the given dimension.
func TrivialEdge(dim int) Edge {
	return Edge{Segments: []Segment{{Sym: NoSymmetry{}, Dim: dim}}}
}

// Dimension returns the total dimension of the edge.
func (e Edge) Dimension() int {
	total := 0
	for _, s := range e.Segments {
		total += s.Dim
	}
	return total
}

// Conjugate returns the edge with every symmetry negated and, for fermionic
// symmetries, the arrow flipped. This is the edge a contraction partner
// must carry.
func (e Edge) Conjugate() Edge {
	segments := make([]Segment, len(e.Segments))
	for i, s := range e.Segments {
		segments[i] = Segment{Sym: s.Sym.Negate(), Dim: s.Dim}
	}
	sort.Slice(segments, func(i, j int) bool {
		return segments[i].Sym.Compare(segments[j].Sym) < 0
	})
	arrow := e.Arrow
	if e.fermionic() {
		arrow = !arrow
	}
	return Edge{Segments: segments, Arrow: arrow}
}

// Equal reports whether two edges have identical segments and arrow.
func (e Edge) Equal(other Edge) bool {
	if len(e.Segments) != len(other.Segments) || e.Arrow != other.Arrow {
		return false
	}
	for i, s := range e.Segments {
		o := other.Segments[i]
		if s.Dim != o.Dim || s.Sym.Compare(o.Sym) != 0 {
			return false
		}
	}
	return true
}

// sameSegments reports segment equality ignoring the arrow.
func (e Edge) sameSegments(other Edge) bool {
	if len(e.Segments) != len(other.Segments) {
		return false
	}
	for i, s := range e.Segments {
		o := other.Segments[i]
		if s.Dim != o.Dim || s.Sym.Compare(o.Sym) != 0 {
			return false
		}
	}
	return true
}

func (e Edge) String() string {
	var b strings.Builder
	b.WriteByte('{')
	for i, s := range e.Segments {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%s:%d", s.Sym, s.Dim)
	}
	b.WriteByte('}')
	if e.Arrow {
		b.WriteByte('*')
	}
	return b.String()
}

func (e Edge) fermionic() bool {
	return len(e.Segments) > 0 && e.Segments[0].Sym.Fermionic()
}

// find returns the index of the segment carrying sym.
func (e Edge) find(sym Symmetry) (int, bool) {
	i := sort.Search(len(e.Segments), func(i int) bool {
		return e.Segments[i].Sym.Compare(sym) >= 0
	})
	if i < len(e.Segments) && e.Segments[i].Sym.Compare(sym) == 0 {
		return i, true
	}
	return 0, false
}

// DimOf returns the dimension of the segment carrying sym, or 0 if absent.
func (e Edge) DimOf(sym Symmetry) int {
	if i, ok := e.find(sym); ok {
		return e.Segments[i].Dim
	}
	return 0
}

// locate resolves a flat index into (segment index, offset within segment).
func (e Edge) locate(flat int) (int, int, error) {
	if flat < 0 {
		return 0, 0, &ErrIndexOutOfRange{Index: flat, Dimension: e.Dimension()}
	}
	rest := flat
	for i, s := range e.Segments {
		if rest < s.Dim {
			return i, rest, nil
		}
		rest -= s.Dim
	}
	return 0, 0, &ErrIndexOutOfRange{Index: flat, Dimension: e.Dimension()}
}

// mergeCombo is one combination of constituent symmetries contributing to a
// merged edge, together with its chunk placement along the merged axis.
type mergeCombo struct {
	syms   []Symmetry
	dims   []int
	total  Symmetry
	dim    int // product of dims
	offset int // chunk offset inside the merged segment of total
}

// mergePlan captures how a group of edges fuses into one: the merged edge
// and every contributing combination in canonical (odometer) order.
//
// When dual is set, each constituent edge's segments are walked in
// descending order instead; contraction uses this on one side so that the
// two merged common axes enumerate matching combinations at matching
// offsets.
type mergePlan struct {
	parts  []Edge
	edge   Edge
	combos []mergeCombo
	// comboIndex maps per-part segment indices (odometer digits) to the
	// position in combos, or -1 where the combination is skipped.
	comboIndex []int
	counts     []int
}

// buildMergePlan enumerates the fusion of parts. The neutral element is
// needed to type the merged symmetry when parts is empty; the merged edge is
// then {neutral:1}.
func buildMergePlan(parts []Edge, arrow bool, neutral Symmetry) mergePlan {
	plan := mergePlan{parts: parts}
	counts := make([]int, len(parts))
	size := 1
	for i, p := range parts {
		counts[i] = len(p.Segments)
		size *= counts[i]
	}
	plan.counts = counts
	if len(parts) == 0 {
		seg := Segment{Sym: neutral, Dim: 1}
		plan.edge = Edge{Segments: []Segment{seg}, Arrow: arrow && neutral.Fermionic()}
		plan.combos = []mergeCombo{{total: neutral, dim: 1}}
		plan.comboIndex = []int{0}
		return plan
	}
	for _, c := range counts {
		if c == 0 {
			plan.edge = Edge{Arrow: arrow}
			return plan
		}
	}

	plan.combos = make([]mergeCombo, 0, size)
	plan.comboIndex = make([]int, size)
	digits := make([]int, len(parts))
	for at := 0; at < size; at++ {
		combo := mergeCombo{
			syms: make([]Symmetry, len(parts)),
			dims: make([]int, len(parts)),
			dim:  1,
		}
		for i, p := range parts {
			seg := p.Segments[digits[i]]
			combo.syms[i] = seg.Sym
			combo.dims[i] = seg.Dim
			combo.dim *= seg.Dim
			if combo.total == nil {
				combo.total = seg.Sym
			} else {
				combo.total = combo.total.Plus(seg.Sym)
			}
		}
		plan.comboIndex[at] = len(plan.combos)
		plan.combos = append(plan.combos, combo)
		odometer(digits, counts)
	}

	plan.finish(arrow)
	return plan
}

// buildDualMergePlan is buildMergePlan with every constituent edge walked in
// descending segment order.
func buildDualMergePlan(parts []Edge, arrow bool, neutral Symmetry) mergePlan {
	reversed := make([]Edge, len(parts))
	for i, p := range parts {
		segs := make([]Segment, len(p.Segments))
		for j, s := range p.Segments {
			segs[len(segs)-1-j] = s
		}
		reversed[i] = Edge{Segments: segs, Arrow: p.Arrow}
	}
	plan := buildMergePlan(reversed, arrow, neutral)
	plan.parts = parts
	// comboIndex is addressed by original (ascending) segment indices.
	size := len(plan.comboIndex)
	remapped := make([]int, size)
	counts := make([]int, len(parts))
	for i, p := range parts {
		counts[i] = len(p.Segments)
	}
	digits := make([]int, len(parts))
	for at := 0; at < size; at++ {
		dualAt := 0
		for i, d := range digits {
			dualAt = dualAt*counts[i] + (counts[i] - 1 - d)
		}
		remapped[at] = plan.comboIndex[dualAt]
		odometer(digits, counts)
	}
	plan.comboIndex = remapped
	plan.counts = counts
	return plan
}

// finish assigns chunk offsets and assembles the merged edge.
func (p *mergePlan) finish(arrow bool) {
	// Accumulate per-total dimensions in combo order; the chunk of each
	// combo starts at the running total of earlier combos with the same sum.
	type sector struct {
		sym Symmetry
		dim int
	}
	var sectors []sector
	for i := range p.combos {
		c := &p.combos[i]
		found := false
		for j := range sectors {
			if sectors[j].sym.Compare(c.total) == 0 {
				c.offset = sectors[j].dim
				sectors[j].dim += c.dim
				found = true
				break
			}
		}
		if !found {
			c.offset = 0
			sectors = append(sectors, sector{sym: c.total, dim: c.dim})
		}
	}
	segments := make([]Segment, len(sectors))
	for i, s := range sectors {
		segments[i] = Segment{Sym: s.sym, Dim: s.dim}
	}
	sort.Slice(segments, func(i, j int) bool {
		return segments[i].Sym.Compare(segments[j].Sym) < 0
	})
	fermionic := len(segments) > 0 && segments[0].Sym.Fermionic()
	p.edge = Edge{Segments: segments, Arrow: arrow && fermionic}
}

// combo looks up the combination for the given per-part symmetries.
func (p *mergePlan) combo(syms []Symmetry) (*mergeCombo, bool) {
	at := 0
	for i, part := range p.parts {
		j, ok := part.find(syms[i])
		if !ok {
			return nil, false
		}
		at = at*p.counts[i] + j
	}
	if len(p.comboIndex) == 0 {
		return nil, false
	}
	idx := p.comboIndex[at]
	if idx < 0 {
		return nil, false
	}
	return &p.combos[idx], true
}

// odometer increments digits under the given radixes, last digit fastest.
func odometer(digits, counts []int) bool {
	for i := len(digits) - 1; i >= 0; i-- {
		digits[i]++
		if digits[i] < counts[i] {
			return true
		}
		digits[i] = 0
	}
	return false
}

// mergeParity is the fermionic sign exponent of fusing the given symmetries
// in order: the number of odd-odd pairs (i<j). Splitting uses the same sign,
// so split-then-merge cancels.
func mergeParity(syms []Symmetry) bool {
	count, odd := 0, 0
	for _, s := range syms {
		if s.Parity() {
			count += odd
			odd++
		}
	}
	return count&1 != 0
}
