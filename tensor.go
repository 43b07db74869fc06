package tat

import (
	"fmt"
	"math"
)

// Tensor is a named-edge, symmetry-blocked multi-dimensional array.
//
// A tensor owns its axis names and shares everything else (edges and block
// storage) through a copy-on-write core: assigning or renaming a tensor is
// cheap, and the first mutation through a shared core clones it. The zero
// Tensor is not usable; construct with New, NewScalar or One.
type Tensor[T Scalar] struct {
	names []string
	core  *core[T]
}

func checkNames(names []string, rank int) error {
	if len(names) != rank {
		return &ErrInvalidNames{Names: names, Reason: fmt.Sprintf("expected %d names", rank)}
	}
	for i, n := range names {
		for _, m := range names[i+1:] {
			if n == m {
				return &ErrInvalidNames{Names: names, Reason: fmt.Sprintf("duplicated name %q", n)}
			}
		}
	}
	return nil
}

// New creates a tensor with the given edge names and edges. The block set is
// derived from the edges (every symmetry combination summing to neutral);
// storage starts zeroed.
func New[T Scalar](names []string, edges []Edge) (Tensor[T], error) {
	if err := checkNames(names, len(edges)); err != nil {
		return Tensor[T]{}, err
	}
	ns := make([]string, len(names))
	copy(ns, names)
	es := make([]Edge, len(edges))
	copy(es, edges)
	return Tensor[T]{names: ns, core: newCore[T](es)}, nil
}

// MustNew is New that panics on invalid input. Intended for literals.
func MustNew[T Scalar](names []string, edges []Edge) Tensor[T] {
	t, err := New[T](names, edges)
	if err != nil {
		panic(err)
	}
	return t
}

// NewScalar creates a rank-0 tensor holding the given value.
func NewScalar[T Scalar](v T) Tensor[T] {
	t := MustNew[T](nil, nil)
	t.core.storage[0] = v
	return t
}

// One creates a rank-len(names) tensor containing a single element. Each
// axis has one segment of dimension 1 carrying the given symmetry (neutral
// axes when syms is nil) and arrow.
func One[T Scalar](v T, names []string, syms []Symmetry, arrows []bool) (Tensor[T], error) {
	edges := make([]Edge, len(names))
	for i := range names {
		sym := Symmetry(NoSymmetry{})
		if syms != nil {
			sym = syms[i]
		}
		arrow := false
		if arrows != nil {
			arrow = arrows[i]
		}
		edges[i] = Edge{Segments: []Segment{{Sym: sym, Dim: 1}}, Arrow: arrow && sym.Fermionic()}
	}
	t, err := New[T](names, edges)
	if err != nil {
		return Tensor[T]{}, err
	}
	if len(t.core.storage) > 0 {
		t.core.storage[0] = v
	}
	return t, nil
}

// Rank returns the number of axes.
func (t Tensor[T]) Rank() int { return len(t.names) }

// Names returns a copy of the axis names in axis order.
func (t Tensor[T]) Names() []string {
	out := make([]string, len(t.names))
	copy(out, t.names)
	return out
}

// Edges returns a copy of the edges in axis order.
func (t Tensor[T]) Edges() []Edge {
	out := make([]Edge, len(t.core.edges))
	copy(out, t.core.edges)
	return out
}

// EdgeByName returns the edge of the named axis.
func (t Tensor[T]) EdgeByName(name string) (Edge, error) {
	r, err := t.axisOf(name)
	if err != nil {
		return Edge{}, err
	}
	return t.core.edges[r], nil
}

func (t Tensor[T]) axisOf(name string) (int, error) {
	for i, n := range t.names {
		if n == name {
			return i, nil
		}
	}
	return 0, nameError(name)
}

// Blocks returns the number of symmetry blocks.
func (t Tensor[T]) Blocks() int { return len(t.core.blocks) }

// Size returns the total number of stored elements.
func (t Tensor[T]) Size() int { return len(t.core.storage) }

// Storage exposes the flat storage slab: the concatenation of all block
// buffers in canonical block order. The returned slice aliases the core;
// treat it as read-only and use Transform or Set for mutation.
func (t Tensor[T]) Storage() []T { return t.core.storage }

// BlockOf returns the buffer of the block selected by the given per-axis
// symmetries (in axis order). The slice aliases the core.
func (t Tensor[T]) BlockOf(key []Symmetry) ([]T, error) {
	if len(key) != t.Rank() {
		return nil, shapeErrorf("block", "key length %d, rank %d", len(key), t.Rank())
	}
	i, ok := t.core.findBlock(key)
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrBlockNotFound, key)
	}
	return t.core.data(i), nil
}

// ShallowCopy returns a tensor sharing this tensor's core. Mutations through
// either copy trigger copy-on-write.
func (t Tensor[T]) ShallowCopy() Tensor[T] {
	t.core.refs.Add(1)
	return Tensor[T]{names: t.Names(), core: t.core}
}

// Clone returns a deep copy with exclusively owned storage.
func (t Tensor[T]) Clone() Tensor[T] {
	return Tensor[T]{names: t.Names(), core: t.core.clone()}
}

// SameShape returns a zeroed tensor with identical names and edges.
func (t Tensor[T]) SameShape() Tensor[T] {
	return MustNew[T](t.names, t.core.edges)
}

// acquire makes the core exclusively owned, cloning a shared one.
func (t *Tensor[T]) acquire(op string) {
	if t.core.refs.Load() > 1 {
		nc := t.core.clone()
		t.core.refs.Add(-1)
		t.core = nc
		defaultLogger.LogCopyOnWrite(op, len(nc.storage))
	}
}

// Transform applies f to every element in place and returns the receiver.
func (t *Tensor[T]) Transform(f func(T) T) *Tensor[T] {
	t.acquire("transform")
	for i, v := range t.core.storage {
		t.core.storage[i] = f(v)
	}
	return t
}

// Set fills the storage from the generator in canonical order.
func (t *Tensor[T]) Set(generator func() T) *Tensor[T] {
	t.acquire("set")
	for i := range t.core.storage {
		t.core.storage[i] = generator()
	}
	return t
}

// Zero sets every element to zero.
func (t *Tensor[T]) Zero() *Tensor[T] {
	return t.Set(func() T { return 0 })
}

// Range fills the storage with first, first+step, ... in canonical order.
// Mostly useful in tests.
func (t *Tensor[T]) Range(first, step T) *Tensor[T] {
	next := first
	return t.Set(func() T {
		v := next
		next += step
		return v
	})
}

// Map returns a new tensor whose elements are f of this tensor's elements.
func (t Tensor[T]) Map(f func(T) T) Tensor[T] {
	out := t.SameShape()
	for i, v := range t.core.storage {
		out.core.storage[i] = f(v)
	}
	return out
}

// Convert returns the tensor with elements converted to scalar type U.
func Convert[U, T Scalar](t Tensor[T]) Tensor[U] {
	out := MustNew[U](t.names, t.core.edges)
	for i, v := range t.core.storage {
		out.core.storage[i] = U(v)
	}
	return out
}

// Norm returns the p-norm of the tensor viewed as a flat vector.
// p = -1 selects the max-absolute-value norm; p = 0 counts elements.
func (t Tensor[T]) Norm(p int) float64 {
	var result float64
	switch {
	case p == -1:
		for _, v := range t.core.storage {
			if a := math.Abs(float64(v)); a > result {
				result = a
			}
		}
	case p == 0:
		result = float64(len(t.core.storage))
	default:
		for _, v := range t.core.storage {
			result += math.Pow(math.Abs(float64(v)), float64(p))
		}
		result = math.Pow(result, 1/float64(p))
	}
	return result
}

// ScalarLike reports whether the tensor stores exactly one element.
func (t Tensor[T]) ScalarLike() bool { return len(t.core.storage) == 1 }

// Item returns the only element of a tensor that stores exactly one.
func (t Tensor[T]) Item() (T, error) {
	if !t.ScalarLike() {
		return 0, ErrNotScalar
	}
	return t.core.storage[0], nil
}

// SetItem overwrites the only element of a tensor that stores exactly one.
func (t *Tensor[T]) SetItem(v T) error {
	if !t.ScalarLike() {
		return ErrNotScalar
	}
	t.acquire("set item")
	t.core.storage[0] = v
	return nil
}

// Point addresses one element along one axis: either a flat index into the
// whole edge (At) or an index within a named symmetry segment (AtSym).
type Point struct {
	Sym   Symmetry
	Index int
}

// At addresses an element by flat per-axis index.
func At(i int) Point { return Point{Index: i} }

// AtSym addresses an element by (symmetry sector, index within sector).
func AtSym(s Symmetry, i int) Point { return Point{Sym: s, Index: i} }

// resolve turns a per-name position map into (block index, flat offset).
func (t Tensor[T]) resolve(pos map[string]Point) (int, int, error) {
	rank := t.Rank()
	if len(pos) != rank {
		return 0, 0, &ErrInvalidNames{Reason: fmt.Sprintf("position has %d entries, rank is %d", len(pos), rank)}
	}
	key := make([]Symmetry, rank)
	within := make([]int, rank)
	for name, p := range pos {
		r, err := t.axisOf(name)
		if err != nil {
			return 0, 0, err
		}
		edge := t.core.edges[r]
		if p.Sym == nil {
			seg, off, err := edge.locate(p.Index)
			if err != nil {
				return 0, 0, err
			}
			key[r] = edge.Segments[seg].Sym
			within[r] = off
			continue
		}
		i, ok := edge.find(p.Sym)
		if !ok {
			return 0, 0, fmt.Errorf("%w: symmetry %s on edge %q", ErrBlockNotFound, p.Sym, name)
		}
		if p.Index < 0 || p.Index >= edge.Segments[i].Dim {
			return 0, 0, &ErrIndexOutOfRange{Index: p.Index, Dimension: edge.Segments[i].Dim}
		}
		key[r] = p.Sym
		within[r] = p.Index
	}
	b, ok := t.core.findBlock(key)
	if !ok {
		return 0, 0, fmt.Errorf("%w: %v", ErrBlockNotFound, key)
	}
	dims := t.core.blockDims(b)
	offset := 0
	for r := 0; r < rank; r++ {
		offset = offset*dims[r] + within[r]
	}
	return b, offset, nil
}

// Get returns the element addressed by pos, which must name every axis.
func (t Tensor[T]) Get(pos map[string]Point) (T, error) {
	b, off, err := t.resolve(pos)
	if err != nil {
		return 0, err
	}
	return t.core.data(b)[off], nil
}

// SetAt overwrites the element addressed by pos.
func (t *Tensor[T]) SetAt(v T, pos map[string]Point) error {
	b, off, err := t.resolve(pos)
	if err != nil {
		return err
	}
	t.acquire("set at")
	t.core.data(b)[off] = v
	return nil
}

func (t Tensor[T]) String() string {
	return fmt.Sprintf("Tensor(names=%v, edges=%v, blocks=%d)", t.names, t.core.edges, len(t.core.blocks))
}
