package tat

import (
	"sort"
	"sync/atomic"
)

// Scalar is the set of element types a tensor can carry.
//
// Complex scalars are not part of the set: the dense kernel collaborator
// (internal/kernel) has no complex SVD/QR backend. Conversions between
// widths go through Convert.
type Scalar interface {
	~float32 | ~float64
}

// block is one dense sub-array of a tensor: the symmetry key selecting it
// and its span inside the flat storage slab.
type block struct {
	key  []Symmetry
	off  int
	size int
}

// core holds everything of a tensor except the axis names: the edges and the
// block storage. Cores are shared copy-on-write between tensors; refs counts
// the owning tensors, and every mutating path clones first when refs > 1.
//
// Blocks are kept sorted by lexicographic key order, and storage is the flat
// concatenation of block buffers in that order.
type core[T Scalar] struct {
	refs    atomic.Int64
	edges   []Edge
	blocks  []block
	storage []T
}

// newCore derives the block set for the given edges: one block per
// combination of per-axis symmetries summing to neutral. Storage starts
// zeroed.
func newCore[T Scalar](edges []Edge) *core[T] {
	c := &core[T]{edges: edges}
	c.refs.Store(1)

	rank := len(edges)
	counts := make([]int, rank)
	for i, e := range edges {
		counts[i] = len(e.Segments)
		if counts[i] == 0 {
			// A zero-segment edge admits no key at all.
			return c
		}
	}

	total := 0
	digits := make([]int, rank)
	for {
		var sum Symmetry
		size := 1
		for i, e := range edges {
			seg := e.Segments[digits[i]]
			size *= seg.Dim
			if sum == nil {
				sum = seg.Sym
			} else {
				sum = sum.Plus(seg.Sym)
			}
		}
		if sum == nil || IsNeutral(sum) {
			key := make([]Symmetry, rank)
			for i, e := range edges {
				key[i] = e.Segments[digits[i]].Sym
			}
			c.blocks = append(c.blocks, block{key: key, off: total, size: size})
			total += size
		}
		if !odometer(digits, counts) {
			break
		}
	}
	c.storage = make([]T, total)
	return c
}

// data returns the buffer of block i.
func (c *core[T]) data(i int) []T {
	b := c.blocks[i]
	return c.storage[b.off : b.off+b.size]
}

// findBlock locates the block with the given key by binary search.
func (c *core[T]) findBlock(key []Symmetry) (int, bool) {
	i := sort.Search(len(c.blocks), func(i int) bool {
		return compareKeys(c.blocks[i].key, key) >= 0
	})
	if i < len(c.blocks) && compareKeys(c.blocks[i].key, key) == 0 {
		return i, true
	}
	return 0, false
}

// blockDims returns the per-axis segment dimensions selected by block i.
func (c *core[T]) blockDims(i int) []int {
	b := c.blocks[i]
	dims := make([]int, len(c.edges))
	for r, e := range c.edges {
		dims[r] = e.DimOf(b.key[r])
	}
	return dims
}

// clone deep-copies the core; the copy starts exclusively owned.
func (c *core[T]) clone() *core[T] {
	nc := &core[T]{
		edges:   make([]Edge, len(c.edges)),
		blocks:  make([]block, len(c.blocks)),
		storage: make([]T, len(c.storage)),
	}
	nc.refs.Store(1)
	copy(nc.edges, c.edges)
	copy(nc.blocks, c.blocks)
	copy(nc.storage, c.storage)
	return nc
}

// neutral returns the neutral symmetry of the core's kind. A core with no
// segments anywhere falls back to the trivial kind.
func (c *core[T]) neutral() Symmetry {
	for _, e := range c.edges {
		if len(e.Segments) > 0 {
			return Neutral(e.Segments[0].Sym)
		}
	}
	return NoSymmetry{}
}

// fermionic reports whether the core's symmetry kind carries parity.
func (c *core[T]) fermionic() bool {
	for _, e := range c.edges {
		if e.fermionic() {
			return true
		}
	}
	return false
}
