package tat

import (
	"fmt"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/USTC-TNS/TAT/internal/kernel"
)

// Identity overwrites the tensor with the identity map sending each pair's B
// axis to its A axis and returns the receiver. Every axis must appear in
// exactly one pair.
func (t *Tensor[T]) Identity(pairs []Pair) (*Tensor[T], error) {
	rowAxis, colAxis, err := pairAxes(*t, pairs)
	if err != nil {
		return nil, err
	}
	t.acquire("identity")
	for i := range t.core.storage {
		t.core.storage[i] = 0
	}

	k := len(pairs)
	lims := make([]int, k)
	idx := make([]int, k)
	for b := range t.core.blocks {
		key := t.core.blocks[b].key
		diagonal := true
		for i := 0; i < k; i++ {
			if key[colAxis[i]].Compare(key[rowAxis[i]].Negate()) != 0 {
				diagonal = false
				break
			}
		}
		if !diagonal {
			continue
		}
		dims := t.core.blockDims(b)
		str := strides(dims)
		for i := 0; i < k; i++ {
			lims[i] = min(dims[rowAxis[i]], dims[colAxis[i]])
			idx[i] = 0
		}
		data := t.core.data(b)
		for n := product(lims); n > 0; n-- {
			off := 0
			for i := 0; i < k; i++ {
				off += idx[i] * (str[rowAxis[i]] + str[colAxis[i]])
			}
			data[off] = 1
			odometer(idx, lims)
		}
	}
	return t, nil
}

// Conjugate returns the tensor on the conjugated edges: every symmetry
// negated and every fermionic arrow flipped. Block data is carried over
// unchanged, so conjugating twice restores the original.
func (t Tensor[T]) Conjugate() Tensor[T] {
	edges := make([]Edge, len(t.core.edges))
	for i, e := range t.core.edges {
		edges[i] = e.Conjugate()
	}
	out := MustNew[T](t.names, edges)
	negKey := make([]Symmetry, len(edges))
	for j := range t.core.blocks {
		key := t.core.blocks[j].key
		for r, s := range key {
			negKey[r] = s.Negate()
		}
		i, ok := out.core.findBlock(negKey)
		if !ok {
			continue // unreachable: conjugated edges carry every negated key
		}
		copy(out.core.data(i), t.core.data(j))
	}
	return out
}

// ConjugatePositive is Conjugate with every block's sign adjusted so that
// contracting the result with the receiver over all axes yields the squared
// Frobenius norm for any arrow configuration. The plain conjugate pairing
// carries a per-sector sign determined by the arrows instead.
func (t Tensor[T]) ConjugatePositive() Tensor[T] {
	out := t.Conjugate()
	if !t.core.fermionic() || t.Rank() == 0 {
		return out
	}
	// The full pairing applies the pair-merge parity on the conjugate side,
	// plus a reversal parity for every axis realigned to the first axis's
	// arrow; compensate both here.
	target := t.core.edges[0].Arrow
	var realign []int
	for r, e := range t.core.edges[1:] {
		if e.fermionic() && e.Arrow != target {
			realign = append(realign, r+1)
		}
	}
	negKey := make([]Symmetry, t.Rank())
	for j := range t.core.blocks {
		key := t.core.blocks[j].key
		negate := mergeParity(key)
		for _, r := range realign {
			if key[r].Parity() {
				negate = !negate
			}
		}
		if !negate {
			continue
		}
		for r, s := range key {
			negKey[r] = s.Negate()
		}
		if i, ok := out.core.findBlock(negKey); ok {
			negateBlock(out.core.data(i))
		}
	}
	return out
}

// Trace sums over each pair of axes, leaving the remaining axes. The paired
// edges must be mutually inverse.
func (t Tensor[T]) Trace(pairs []Pair, opts ...Option) (Tensor[T], error) {
	names := make([]string, 0, 2*len(pairs))
	edges := make([]Edge, 0, 2*len(pairs))
	contract := make([]Pair, 0, 2*len(pairs))
	for _, p := range pairs {
		ea, err := t.EdgeByName(p.A)
		if err != nil {
			return Tensor[T]{}, err
		}
		eb, err := t.EdgeByName(p.B)
		if err != nil {
			return Tensor[T]{}, err
		}
		names = append(names, p.A, p.B)
		edges = append(edges, ea.Conjugate(), eb.Conjugate())
		contract = append(contract, Pair{A: p.A, B: p.A}, Pair{A: p.B, B: p.B})
	}
	id, err := New[T](names, edges)
	if err != nil {
		return Tensor[T]{}, err
	}
	if _, err := id.Identity(pairs); err != nil {
		return Tensor[T]{}, err
	}
	return Contract(t, id, contract, opts...)
}

// ShrinkPoint pins an axis to a single index: the sector and the offset
// inside it. A nil Sym selects the neutral sector.
type ShrinkPoint struct {
	Sym   Symmetry
	Index int
}

// ExpandPoint describes an axis added by Expand: a fresh single-segment edge
// with Dim entries in sector Sym (and the given arrow), holding the
// receiver's data at Index and zero elsewhere. A nil Sym means the neutral
// sector.
type ExpandPoint struct {
	Arrow bool
	Sym   Symmetry
	Index int
	Dim   int
}

// Shrink pins the named axes to single points and drops them. When the
// pinned sectors do not sum to neutral, the balance moves onto a fresh
// dimension-one edge named newName with the given arrow; newName may be
// empty only when the pinned sectors balance on their own, and when present
// it becomes the last axis of the result. The shrink is a contraction with a
// one-hot selector, so fermionic signs follow the contraction convention.
func (t Tensor[T]) Shrink(conf map[string]ShrinkPoint, newName string, arrow bool, opts ...Option) (Tensor[T], error) {
	if len(conf) == 0 {
		return t.ShallowCopy(), nil
	}
	names := make([]string, 0, len(conf)+1)
	edges := make([]Edge, 0, len(conf)+1)
	pairs := make([]Pair, 0, len(conf))
	pos := make(map[string]Point, len(conf)+1)
	var balance Symmetry
	seen := 0
	for r, n := range t.names {
		p, ok := conf[n]
		if !ok {
			continue
		}
		seen++
		sym := p.Sym
		if sym == nil {
			sym = t.core.neutral()
		}
		names = append(names, n)
		edges = append(edges, t.core.edges[r].Conjugate())
		pairs = append(pairs, Pair{A: n, B: n})
		pos[n] = AtSym(sym.Negate(), p.Index)
		if balance == nil {
			balance = sym
		} else {
			balance = balance.Plus(sym)
		}
	}
	if seen != len(conf) {
		return Tensor[T]{}, fmt.Errorf("%w: shrink names %v", ErrNameNotFound, sortedKeys(conf))
	}
	if newName != "" {
		e, err := NewEdge([]Segment{{Sym: balance, Dim: 1}}, arrow)
		if err != nil {
			return Tensor[T]{}, err
		}
		names = append(names, newName)
		edges = append(edges, e)
		pos[newName] = At(0)
	} else if !IsNeutral(balance) {
		return Tensor[T]{}, shapeErrorf("shrink", "pinned sectors sum to %s and no balancing name is given", balance)
	}
	hot, err := New[T](names, edges)
	if err != nil {
		return Tensor[T]{}, err
	}
	if err := hot.SetAt(1, pos); err != nil {
		return Tensor[T]{}, err
	}
	return Contract(t, hot, pairs, opts...)
}

// Expand adds the configured axes, embedding the receiver's data at the
// configured indices with zero everywhere else; the new axes follow the kept
// axes in name order. When the new sectors do not sum to neutral, the
// balance is drawn from the existing dimension-one axis named oldName, which
// is consumed; oldName may be empty only when the new sectors balance on
// their own. Expand is the inverse of Shrink at the same points.
func (t Tensor[T]) Expand(conf map[string]ExpandPoint, oldName string, opts ...Option) (Tensor[T], error) {
	if len(conf) == 0 {
		return t.ShallowCopy(), nil
	}
	names := make([]string, 0, len(conf)+1)
	edges := make([]Edge, 0, len(conf)+1)
	pos := make(map[string]Point, len(conf)+1)
	var pairs []Pair
	if oldName != "" {
		old, err := t.EdgeByName(oldName)
		if err != nil {
			return Tensor[T]{}, err
		}
		if old.Dimension() != 1 {
			return Tensor[T]{}, shapeErrorf("expand", "axis %q has dimension %d, want 1", oldName, old.Dimension())
		}
		names = append(names, oldName)
		edges = append(edges, old.Conjugate())
		pos[oldName] = At(0)
		pairs = []Pair{{A: oldName, B: oldName}}
	}
	var total Symmetry
	for _, n := range sortedKeys(conf) {
		p := conf[n]
		sym := p.Sym
		if sym == nil {
			sym = t.core.neutral()
		}
		if p.Index < 0 || p.Index >= p.Dim {
			return Tensor[T]{}, shapeErrorf("expand", "axis %q index %d outside dimension %d", n, p.Index, p.Dim)
		}
		e, err := NewEdge([]Segment{{Sym: sym, Dim: p.Dim}}, p.Arrow)
		if err != nil {
			return Tensor[T]{}, err
		}
		names = append(names, n)
		edges = append(edges, e)
		pos[n] = AtSym(sym, p.Index)
		if total == nil {
			total = sym
		} else {
			total = total.Plus(sym)
		}
	}
	if oldName != "" {
		old, _ := t.EdgeByName(oldName)
		if old.Segments[0].Sym.Compare(total) != 0 {
			return Tensor[T]{}, shapeErrorf("expand", "axis %q carries %s, cannot balance %s", oldName, old.Segments[0].Sym, total)
		}
	} else if !IsNeutral(total) {
		return Tensor[T]{}, shapeErrorf("expand", "new sectors sum to %s and no balancing name is given", total)
	}
	hot, err := New[T](names, edges)
	if err != nil {
		return Tensor[T]{}, err
	}
	if err := hot.SetAt(1, pos); err != nil {
		return Tensor[T]{}, err
	}
	return Contract(t, hot, pairs, opts...)
}

// Exponential returns the matrix exponential of the tensor viewed as the
// linear map sending each pair's B axis to its A axis. Every axis must
// appear in exactly one pair, and each pair's edges must be mutually
// inverse. steps is accepted for interface stability and ignored; the
// kernel computes the exponential directly.
func (t Tensor[T]) Exponential(pairs []Pair, steps int, opts ...Option) (Tensor[T], error) {
	_ = steps
	o := applyOptions(opts)
	if _, _, err := pairAxes(t, pairs); err != nil {
		return Tensor[T]{}, err
	}
	k := len(pairs)
	rows := make([]string, k)
	cols := make([]string, k)
	for i, p := range pairs {
		rows[i] = p.A
		cols[i] = p.B
		ea, _ := t.EdgeByName(p.A)
		eb, _ := t.EdgeByName(p.B)
		if !ea.Conjugate().sameSegments(eb) {
			return Tensor[T]{}, shapeErrorf("exponential", "edge %q %s does not pair with %q %s", p.A, ea, p.B, eb)
		}
	}

	tt, err := t.Transpose(append(slices.Clone(rows), cols...))
	if err != nil {
		return Tensor[T]{}, err
	}
	neutral := tt.core.neutral()
	plan := buildMergePlan(tt.core.edges[:k], false, neutral)
	out := tt.SameShape()

	// Each total row symmetry selects an invariant subspace; assemble its
	// dense matrix from the block chunks, exponentiate, and scatter back.
	g := new(errgroup.Group)
	g.SetLimit(o.parallelism)
	for _, seg := range plan.edge.Segments {
		seg := seg
		g.Go(func() error {
			m := seg.Dim
			var combos []*mergeCombo
			for i := range plan.combos {
				if plan.combos[i].total.Compare(seg.Sym) == 0 {
					combos = append(combos, &plan.combos[i])
				}
			}
			dense := make([]T, m*m)
			key := make([]Symmetry, 2*k)
			for _, rc := range combos {
				for _, cc := range combos {
					copy(key, rc.syms)
					for i, s := range cc.syms {
						key[k+i] = s.Negate()
					}
					j, ok := tt.core.findBlock(key)
					if !ok {
						return fmt.Errorf("%w: %v", ErrBlockNotFound, key)
					}
					windowScatter(dense, tt.core.data(j), []int{m, m},
						[]int{rc.offset, cc.offset}, []int{rc.dim, cc.dim}, false)
				}
			}
			exp := kernel.Exp(dense, m)
			for _, rc := range combos {
				for _, cc := range combos {
					copy(key, rc.syms)
					for i, s := range cc.syms {
						key[k+i] = s.Negate()
					}
					j, ok := out.core.findBlock(key)
					if !ok {
						return fmt.Errorf("%w: %v", ErrBlockNotFound, key)
					}
					windowCopy(out.core.data(j), exp, []int{m, m},
						[]int{rc.offset, cc.offset}, []int{rc.dim, cc.dim}, false)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Tensor[T]{}, err
	}
	return out.Transpose(t.Names())
}

// pairAxes resolves a full pairing of the tensor's axes into row and column
// axis indices.
func pairAxes[T Scalar](t Tensor[T], pairs []Pair) (rows, cols []int, err error) {
	if 2*len(pairs) != t.Rank() {
		return nil, nil, shapeErrorf("pairs", "%d pairs for rank %d", len(pairs), t.Rank())
	}
	used := make([]bool, t.Rank())
	rows = make([]int, len(pairs))
	cols = make([]int, len(pairs))
	for i, p := range pairs {
		ra, err := t.axisOf(p.A)
		if err != nil {
			return nil, nil, err
		}
		ca, err := t.axisOf(p.B)
		if err != nil {
			return nil, nil, err
		}
		if used[ra] || used[ca] || ra == ca {
			return nil, nil, &ErrInvalidNames{Names: []string{p.A, p.B}, Reason: "axis paired twice"}
		}
		used[ra] = true
		used[ca] = true
		rows[i] = ra
		cols[i] = ca
	}
	return rows, cols, nil
}
