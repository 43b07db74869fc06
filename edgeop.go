package tat

import (
	"fmt"
	"slices"
	"sort"
)

// SplitPiece is one output axis of a split: its name and the segmentation it
// takes over from the original axis.
type SplitPiece struct {
	Name     string
	Segments []Segment
}

// EdgeOperation describes a composite restructuring applied in one engine
// pass: rename, split, reverse, merge and transpose, in that conceptual
// order. Split, Reverse, Merge and Order refer to names after Rename has
// been applied.
//
// ApplyParity selects whether the split, reverse and merge phases apply the
// fermionic sign by default; each Exclude list flips that default for the
// named axes of one phase (ExcludeReverseBefore for reversals requested via
// Reverse, ExcludeReverseAfter for the arrow realignment forced by a merge).
// The sign of the transposition itself is never optional.
type EdgeOperation struct {
	Rename  map[string]string
	Split   map[string][]SplitPiece
	Reverse []string
	Merge   map[string][]string
	// Order is the final axis-name order. Leave nil to keep the order the
	// earlier phases produce.
	Order []string

	ApplyParity          bool
	ExcludeSplit         []string
	ExcludeReverseBefore []string
	ExcludeReverseAfter  []string
	ExcludeMerge         []string
}

// EdgeOperator applies the composite operation and returns the restructured
// tensor. The receiver is never mutated; when no phase moves data the result
// shares the receiver's core.
func (t Tensor[T]) EdgeOperator(op EdgeOperation) (Tensor[T], error) {
	return t.edgeOperatorImpl(op, nil, nil)
}

// edgeOperatorImpl adds the two internal knobs: cut truncates named edges
// before all other phases (used by SVD/QR), and dualMerge switches the named
// merge groups to descending segment enumeration (used by contraction to
// line up the two sides of a contracted axis).
func (t Tensor[T]) edgeOperatorImpl(op EdgeOperation, cut map[string][]Segment, dualMerge map[string]bool) (Tensor[T], error) {
	names := t.Names()
	c := t.core
	neutral := c.neutral()
	fermionic := c.fermionic()
	applies := func(exclude []string, name string) bool {
		return op.ApplyParity != slices.Contains(exclude, name)
	}

	if len(cut) > 0 {
		var err error
		c, err = cutPass(names, c, cut)
		if err != nil {
			return Tensor[T]{}, err
		}
	}

	if len(op.Rename) > 0 {
		var err error
		names, err = renamePass(names, op.Rename)
		if err != nil {
			return Tensor[T]{}, err
		}
	}

	if len(op.Split) > 0 {
		var err error
		names, c, err = splitPass(names, c, op.Split, neutral, fermionic, func(name string) bool {
			return applies(op.ExcludeSplit, name)
		})
		if err != nil {
			return Tensor[T]{}, err
		}
	}

	if len(op.Reverse) > 0 {
		axes := make([]int, 0, len(op.Reverse))
		for _, name := range op.Reverse {
			r := slices.Index(names, name)
			if r < 0 {
				return Tensor[T]{}, nameError(name)
			}
			axes = append(axes, r)
		}
		signed := make([]bool, len(axes))
		for i, r := range axes {
			signed[i] = fermionic && applies(op.ExcludeReverseBefore, names[r])
		}
		c = reversePass(c, axes, signed)
	}

	if len(op.Merge) > 0 {
		groups, err := normalizeGroups(names, op.Merge)
		if err != nil {
			return Tensor[T]{}, err
		}

		target := premergeOrder(names, groups)
		perm, err := permutationTo(names, target)
		if err != nil {
			return Tensor[T]{}, err
		}
		names, c = transposePass(names, c, perm, fermionic)

		if fermionic {
			axes, signed := realignAxes(names, c, groups, func(member string) bool {
				return applies(op.ExcludeReverseAfter, member)
			})
			if len(axes) > 0 {
				c = reversePass(c, axes, signed)
			}
		}

		for _, g := range groups {
			names, c = mergePass(names, c, g, neutral, fermionic,
				applies(op.ExcludeMerge, g.name), dualMerge[g.name])
		}
	}

	if op.Order != nil {
		perm, err := permutationTo(names, op.Order)
		if err != nil {
			return Tensor[T]{}, err
		}
		names, c = transposePass(names, c, perm, fermionic)
	}

	if err := checkNames(names, len(c.edges)); err != nil {
		return Tensor[T]{}, err
	}
	if c == t.core {
		c.refs.Add(1)
	}
	return Tensor[T]{names: names, core: c}, nil
}

// cutPass truncates named edges to the given sub-segmentation, keeping the
// leading entries of every surviving sector.
func cutPass[T Scalar](names []string, c *core[T], cut map[string][]Segment) (*core[T], error) {
	edges := slices.Clone(c.edges)
	seen := 0
	for r, name := range names {
		segs, ok := cut[name]
		if !ok {
			continue
		}
		seen++
		old := edges[r]
		for _, s := range segs {
			if d := old.DimOf(s.Sym); d < s.Dim {
				return nil, shapeErrorf("cut", "sector %s keeps %d of %d", s.Sym, s.Dim, d)
			}
		}
		e, err := NewEdge(segs, old.Arrow)
		if err != nil {
			return nil, err
		}
		edges[r] = e
	}
	if seen != len(cut) {
		return nil, fmt.Errorf("%w: cut names %v", ErrNameNotFound, sortedKeys(cut))
	}

	nc := newCore[T](edges)
	offs := make([]int, len(edges))
	for i := range nc.blocks {
		j, ok := c.findBlock(nc.blocks[i].key)
		if !ok {
			return nil, fmt.Errorf("%w: %v", ErrBlockNotFound, nc.blocks[i].key)
		}
		windowCopy(nc.data(i), c.data(j), c.blockDims(j), offs, nc.blockDims(i), false)
	}
	return nc, nil
}

// renamePass relabels axis names; no data moves.
func renamePass(names []string, dict map[string]string) ([]string, error) {
	out := slices.Clone(names)
	seen := 0
	for r, name := range names {
		if to, ok := dict[name]; ok {
			out[r] = to
			seen++
		}
	}
	if seen != len(dict) {
		return nil, fmt.Errorf("%w: rename names %v", ErrNameNotFound, sortedKeys(dict))
	}
	if err := checkNames(out, len(out)); err != nil {
		return nil, err
	}
	return out, nil
}

// splitPass slices every split axis into its pieces. The piece segmentation
// must fuse back to exactly the original edge.
func splitPass[T Scalar](names []string, c *core[T], split map[string][]SplitPiece, neutral Symmetry, fermionic bool, signed func(name string) bool) ([]string, *core[T], error) {
	type axisSplit struct {
		pieces   int
		newStart int
		plan     mergePlan
	}

	var (
		newNames []string
		newEdges []Edge
	)
	splitAt := make([]*axisSplit, len(names))
	newIndexOf := make([]int, len(names))
	seen := 0
	for r, name := range names {
		pieces, ok := split[name]
		if !ok {
			newIndexOf[r] = len(newNames)
			newNames = append(newNames, name)
			newEdges = append(newEdges, c.edges[r])
			continue
		}
		seen++
		parts := make([]Edge, len(pieces))
		start := len(newNames)
		for i, p := range pieces {
			e, err := NewEdge(p.Segments, c.edges[r].Arrow)
			if err != nil {
				return nil, nil, err
			}
			parts[i] = e
			newNames = append(newNames, p.Name)
			newEdges = append(newEdges, e)
		}
		plan := buildMergePlan(parts, c.edges[r].Arrow, neutral)
		if !plan.edge.sameSegments(c.edges[r]) {
			return nil, nil, shapeErrorf("split", "pieces of %q do not partition %s", name, c.edges[r])
		}
		splitAt[r] = &axisSplit{pieces: len(pieces), newStart: start, plan: plan}
	}
	if seen != len(split) {
		return nil, nil, fmt.Errorf("%w: split names %v", ErrNameNotFound, sortedKeys(split))
	}
	if err := checkNames(newNames, len(newEdges)); err != nil {
		return nil, nil, err
	}

	nc := newCore[T](newEdges)
	oldRank := len(names)
	srcKey := make([]Symmetry, oldRank)
	offs := make([]int, oldRank)
	lens := make([]int, oldRank)
	for i := range nc.blocks {
		key := nc.blocks[i].key
		negate := false
		for r := 0; r < oldRank; r++ {
			s := splitAt[r]
			if s == nil {
				sym := key[newIndexOf[r]]
				srcKey[r] = sym
				offs[r] = 0
				lens[r] = c.edges[r].DimOf(sym)
				continue
			}
			groupSyms := key[s.newStart : s.newStart+s.pieces]
			combo, ok := s.plan.combo(groupSyms)
			if !ok {
				return nil, nil, fmt.Errorf("%w: %v", ErrBlockNotFound, groupSyms)
			}
			srcKey[r] = combo.total
			offs[r] = combo.offset
			lens[r] = combo.dim
			if fermionic && signed(names[r]) && mergeParity(groupSyms) {
				negate = !negate
			}
		}
		j, ok := c.findBlock(srcKey)
		if !ok {
			return nil, nil, fmt.Errorf("%w: %v", ErrBlockNotFound, srcKey)
		}
		windowCopy(nc.data(i), c.data(j), c.blockDims(j), offs, lens, negate)
	}
	return newNames, nc, nil
}

// reversePass flips the arrow of the given axes; signed axes additionally
// negate every block whose symmetry there has odd parity.
func reversePass[T Scalar](c *core[T], axes []int, signed []bool) *core[T] {
	nc := c.clone()
	for _, r := range axes {
		if nc.edges[r].fermionic() {
			nc.edges[r].Arrow = !nc.edges[r].Arrow
		}
	}
	for i := range nc.blocks {
		negate := false
		for k, r := range axes {
			if signed[k] && nc.blocks[i].key[r].Parity() {
				negate = !negate
			}
		}
		if negate {
			negateBlock(nc.data(i))
		}
	}
	return nc
}

// transposePass reorders axes so that new axis k is old axis perm[k]. The
// fermionic transposition sign is applied per block, unconditionally.
func transposePass[T Scalar](names []string, c *core[T], perm []int, fermionic bool) ([]string, *core[T]) {
	identity := true
	for k, p := range perm {
		if k != p {
			identity = false
			break
		}
	}
	if identity {
		return names, c
	}

	rank := len(names)
	newNames := make([]string, rank)
	newEdges := make([]Edge, rank)
	for k, p := range perm {
		newNames[k] = names[p]
		newEdges[k] = c.edges[p]
	}
	nc := newCore[T](newEdges)
	newKey := make([]Symmetry, rank)
	parity := make([]bool, rank)
	for j := range c.blocks {
		key := c.blocks[j].key
		for k, p := range perm {
			newKey[k] = key[p]
		}
		i, ok := nc.findBlock(newKey)
		if !ok {
			continue // unreachable: permutation preserves the key sum
		}
		negate := false
		if fermionic {
			for r := range key {
				parity[r] = key[r].Parity()
			}
			negate = inversionParity(perm, parity)
		}
		transposeInto(nc.data(i), c.data(j), c.blockDims(j), perm, negate)
	}
	return newNames, nc
}

// mergeGroup is one normalized merge request.
type mergeGroup struct {
	name    string
	members []string
}

func normalizeGroups(names []string, merge map[string][]string) ([]mergeGroup, error) {
	taken := map[string]string{}
	var groups []mergeGroup
	for _, name := range sortedKeys(merge) {
		members := merge[name]
		for _, m := range members {
			if !slices.Contains(names, m) {
				return nil, nameError(m)
			}
			if g, ok := taken[m]; ok {
				return nil, &ErrInvalidNames{Names: members, Reason: fmt.Sprintf("%q merged into both %q and %q", m, g, name)}
			}
			taken[m] = name
		}
		groups = append(groups, mergeGroup{name: name, members: slices.Clone(members)})
	}
	// Stable order: by first member position, empty groups last.
	sort.SliceStable(groups, func(i, j int) bool {
		gi, gj := groups[i], groups[j]
		if len(gi.members) == 0 || len(gj.members) == 0 {
			return len(gj.members) == 0 && len(gi.members) > 0
		}
		return slices.Index(names, gi.members[0]) < slices.Index(names, gj.members[0])
	})
	return groups, nil
}

// premergeOrder moves every group's members, in merge order, to the position
// of the group's last member; all other axes keep their relative order.
func premergeOrder(names []string, groups []mergeGroup) []string {
	last := map[string][]string{}
	member := map[string]bool{}
	for _, g := range groups {
		if len(g.members) == 0 {
			continue
		}
		for _, m := range g.members {
			member[m] = true
		}
		last[g.members[len(g.members)-1]] = g.members
	}
	out := make([]string, 0, len(names))
	for _, n := range names {
		if group, ok := last[n]; ok {
			out = append(out, group...)
		} else if !member[n] {
			out = append(out, n)
		}
	}
	return out
}

// realignAxes collects the group members whose arrow disagrees with the
// arrow of the group's first member, which becomes the merged arrow.
func realignAxes[T Scalar](names []string, c *core[T], groups []mergeGroup, signed func(member string) bool) ([]int, []bool) {
	var axes []int
	var signs []bool
	for _, g := range groups {
		if len(g.members) == 0 {
			continue
		}
		first := slices.Index(names, g.members[0])
		target := c.edges[first].Arrow
		for _, m := range g.members[1:] {
			r := slices.Index(names, m)
			if c.edges[r].fermionic() && c.edges[r].Arrow != target {
				axes = append(axes, r)
				signs = append(signs, signed(m))
			}
		}
	}
	return axes, signs
}

// mergePass fuses one contiguous group of axes into a single axis. Empty
// groups append a fresh {neutral:1} axis at the end.
func mergePass[T Scalar](names []string, c *core[T], g mergeGroup, neutral Symmetry, fermionic, signed, dual bool) ([]string, *core[T]) {
	n := len(g.members)
	start := len(names)
	if n > 0 {
		start = slices.Index(names, g.members[0])
	}

	parts := make([]Edge, n)
	arrow := false
	for i := 0; i < n; i++ {
		parts[i] = c.edges[start+i]
	}
	if n > 0 {
		arrow = parts[0].Arrow
	}
	var plan mergePlan
	if dual {
		plan = buildDualMergePlan(parts, arrow, neutral)
	} else {
		plan = buildMergePlan(parts, arrow, neutral)
	}

	newNames := make([]string, 0, len(names)-n+1)
	newEdges := make([]Edge, 0, len(names)-n+1)
	newNames = append(newNames, names[:start]...)
	newEdges = append(newEdges, c.edges[:start]...)
	newNames = append(newNames, g.name)
	newEdges = append(newEdges, plan.edge)
	newNames = append(newNames, names[start+n:]...)
	newEdges = append(newEdges, c.edges[start+n:]...)

	nc := newCore[T](newEdges)
	newRank := len(newEdges)
	dstKey := make([]Symmetry, newRank)
	offs := make([]int, newRank)
	lens := make([]int, newRank)
	for j := range c.blocks {
		key := c.blocks[j].key
		groupSyms := key[start : start+n]
		combo, ok := plan.combo(groupSyms)
		if !ok {
			continue // unreachable: every source block has a fused sector
		}
		copy(dstKey[:start], key[:start])
		dstKey[start] = combo.total
		copy(dstKey[start+1:], key[start+n:])
		i, ok := nc.findBlock(dstKey)
		if !ok {
			continue // unreachable: the fused key still sums to neutral
		}
		dims := nc.blockDims(i)
		copy(lens, dims)
		for r := range offs {
			offs[r] = 0
		}
		offs[start] = combo.offset
		lens[start] = combo.dim
		negate := fermionic && signed && mergeParity(groupSyms)
		windowScatter(nc.data(i), c.data(j), dims, offs, lens, negate)
	}
	return newNames, nc
}

// permutationTo computes perm with target[k] == names[perm[k]].
func permutationTo(names, target []string) ([]int, error) {
	if len(target) != len(names) {
		return nil, shapeErrorf("transpose", "%d target names for rank %d", len(target), len(names))
	}
	perm := make([]int, len(target))
	used := make([]bool, len(names))
	for k, name := range target {
		r := slices.Index(names, name)
		if r < 0 {
			return nil, nameError(name)
		}
		if used[r] {
			return nil, &ErrInvalidNames{Names: target, Reason: fmt.Sprintf("duplicated name %q", name)}
		}
		used[r] = true
		perm[k] = r
	}
	return perm, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Rename relabels edges without touching storage; the result shares the
// receiver's core.
func (t Tensor[T]) Rename(dict map[string]string) (Tensor[T], error) {
	names, err := renamePass(t.Names(), dict)
	if err != nil {
		return Tensor[T]{}, err
	}
	t.core.refs.Add(1)
	return Tensor[T]{names: names, core: t.core}, nil
}

// Transpose reorders the axes to the target name order.
func (t Tensor[T]) Transpose(order []string) (Tensor[T], error) {
	return t.EdgeOperator(EdgeOperation{Order: order})
}

// ReverseEdges flips the arrow of the named edges. applyParity selects the
// default sign behavior; exclude opts individual names out of it.
func (t Tensor[T]) ReverseEdges(names []string, applyParity bool, exclude []string) (Tensor[T], error) {
	return t.EdgeOperator(EdgeOperation{
		Reverse:              names,
		ApplyParity:          applyParity,
		ExcludeReverseBefore: exclude,
	})
}

// MergeEdges fuses the named groups. Each group's axes are first moved next
// to the group's last member, keeping everything else in place.
func (t Tensor[T]) MergeEdges(merge map[string][]string, applyParity bool, excludeMerge, excludeReverse []string) (Tensor[T], error) {
	return t.EdgeOperator(EdgeOperation{
		Merge:               merge,
		ApplyParity:         applyParity,
		ExcludeMerge:        excludeMerge,
		ExcludeReverseAfter: excludeReverse,
	})
}

// SplitEdges splits the named axes into the given pieces in place.
func (t Tensor[T]) SplitEdges(split map[string][]SplitPiece, applyParity bool, exclude []string) (Tensor[T], error) {
	return t.EdgeOperator(EdgeOperation{
		Split:        split,
		ApplyParity:  applyParity,
		ExcludeSplit: exclude,
	})
}
