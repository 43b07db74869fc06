package tat

import (
	"fmt"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/USTC-TNS/TAT/internal/kernel"
)

// Pair names two paired axes: A in the first tensor (or the matrix row
// side), B in the second tensor (or the matrix column side).
type Pair struct {
	A string
	B string
}

// Internal axis names used while a tensor is flattened to a matrix.
const (
	matFreeA  = ".free.a"
	matFreeB  = ".free.b"
	matCommon = ".common"
	matRow    = ".row"
	matCol    = ".col"
)

// Contract contracts the paired axes of a and b and returns the tensor over
// the remaining free axes, a's first. Paired edges must be mutually inverse;
// fermionic pairs whose arrows are not opposite are reversed on b's side.
// Tensors of different scalar widths are promoted with Convert first.
func Contract[T Scalar](a, b Tensor[T], pairs []Pair, opts ...Option) (Tensor[T], error) {
	o := applyOptions(opts)
	result, blockPairs, err := contract(a, b, pairs, o)
	o.logger.LogContract(len(pairs), blockPairs, err)
	return result, err
}

func contract[T Scalar](a, b Tensor[T], pairs []Pair, o options) (Tensor[T], int, error) {
	const op = "contract"

	ordered := slices.Clone(pairs)
	for _, p := range ordered {
		if _, err := a.axisOf(p.A); err != nil {
			return Tensor[T]{}, 0, err
		}
		if _, err := b.axisOf(p.B); err != nil {
			return Tensor[T]{}, 0, err
		}
	}
	slices.SortFunc(ordered, func(x, y Pair) int {
		xi, _ := a.axisOf(x.A)
		yi, _ := a.axisOf(y.A)
		return xi - yi
	})
	contractedA := make([]string, len(ordered))
	contractedB := make([]string, len(ordered))
	for i, p := range ordered {
		contractedA[i] = p.A
		contractedB[i] = p.B
	}
	if dup := firstDuplicate(contractedA); dup != "" {
		return Tensor[T]{}, 0, &ErrInvalidNames{Names: contractedA, Reason: fmt.Sprintf("duplicated name %q", dup)}
	}
	if dup := firstDuplicate(contractedB); dup != "" {
		return Tensor[T]{}, 0, &ErrInvalidNames{Names: contractedB, Reason: fmt.Sprintf("duplicated name %q", dup)}
	}

	freeA := freeNames(a.names, contractedA)
	freeB := freeNames(b.names, contractedB)
	for _, n := range freeA {
		if slices.Contains(freeB, n) {
			return Tensor[T]{}, 0, &ErrInvalidNames{Names: append(freeA, freeB...), Reason: fmt.Sprintf("free name %q on both sides", n)}
		}
	}

	fermionic := a.core.fermionic() || b.core.fermionic()

	// Paired edges must be mutually inverse; collect fermionic pairs whose
	// arrows still point the same way, to reverse them on b's side.
	var misaligned []string
	for _, p := range ordered {
		ea, _ := a.EdgeByName(p.A)
		eb, _ := b.EdgeByName(p.B)
		if !ea.Conjugate().sameSegments(eb) {
			return Tensor[T]{}, 0, shapeErrorf(op, "edge %q %s does not pair with %q %s", p.A, ea, p.B, eb)
		}
		if fermionic && eb.Arrow == ea.Arrow {
			misaligned = append(misaligned, p.B)
		}
	}

	// Flatten each side to a matrix. All fermionic signs of the shared axes
	// are put on b's side so each sign pair is applied exactly once.
	am, err := a.edgeOperatorImpl(EdgeOperation{
		Merge: map[string][]string{matFreeA: freeA, matCommon: contractedA},
		Order: []string{matFreeA, matCommon},
	}, nil, nil)
	if err != nil {
		return Tensor[T]{}, 0, err
	}
	bm, err := b.edgeOperatorImpl(EdgeOperation{
		Reverse:              misaligned,
		Merge:                map[string][]string{matCommon: contractedB, matFreeB: freeB},
		Order:                []string{matCommon, matFreeB},
		ExcludeReverseBefore: misaligned,
		ExcludeReverseAfter:  contractedB,
		ExcludeMerge:         []string{matCommon},
	}, nil, map[string]bool{matCommon: true})
	if err != nil {
		return Tensor[T]{}, 0, err
	}

	freeEdgeA := am.core.edges[0]
	commonEdgeA := am.core.edges[1]
	freeEdgeB := bm.core.edges[1]
	rt := MustNew[T]([]string{matFreeA, matFreeB}, []Edge{freeEdgeA, freeEdgeB})

	// Merge-join: both block lists are sorted by their first key entry
	// (conservation ties it to the contracted sector on each side), so a
	// two-pointer walk finds every compatible sector pair.
	g := new(errgroup.Group)
	g.SetLimit(o.parallelism)
	blockPairs := 0
	i, j := 0, 0
	for i < len(am.core.blocks) && j < len(bm.core.blocks) {
		ka := am.core.blocks[i].key
		kb := bm.core.blocks[j].key
		switch c := ka[0].Compare(kb[0]); {
		case c < 0:
			i++
		case c > 0:
			j++
		default:
			d, ok := rt.core.findBlock([]Symmetry{ka[0], kb[1]})
			if !ok {
				return Tensor[T]{}, 0, fmt.Errorf("%w: %v", ErrBlockNotFound, []Symmetry{ka[0], kb[1]})
			}
			m := freeEdgeA.DimOf(ka[0])
			k := commonEdgeA.DimOf(ka[1])
			n := freeEdgeB.DimOf(kb[1])
			dst := rt.core.data(d)
			sa := am.core.data(i)
			sb := bm.core.data(j)
			g.Go(func() error {
				kernel.MatMul(dst, sa, sb, m, k, n)
				return nil
			})
			blockPairs++
			i++
			j++
		}
	}
	if err := g.Wait(); err != nil {
		return Tensor[T]{}, 0, err
	}

	// Restore the original free structure: split both merged axes back and
	// flip back the arrows the merge realignment touched, sign-free on both
	// sides so nothing net is applied to free axes.
	splitBack := map[string][]SplitPiece{
		matFreeA: splitPieces(a, freeA),
		matFreeB: splitPieces(b, freeB),
	}
	restore := append(flippedMembers(a, freeA), flippedMembers(b, freeB)...)
	order := append(slices.Clone(freeA), freeB...)
	result, err := rt.edgeOperatorImpl(EdgeOperation{
		Split:   splitBack,
		Reverse: restore, // sign-free, matching the sign-free realignment above
		Order:   order,
	}, nil, nil)
	if err != nil {
		return Tensor[T]{}, 0, err
	}
	return result, blockPairs, nil
}

func freeNames(names, contracted []string) []string {
	var out []string
	for _, n := range names {
		if !slices.Contains(contracted, n) {
			out = append(out, n)
		}
	}
	return out
}

func firstDuplicate(names []string) string {
	for i, n := range names {
		if slices.Contains(names[i+1:], n) {
			return n
		}
	}
	return ""
}

// splitPieces rebuilds the split description of a merged group from the
// original tensor's edges.
func splitPieces[T Scalar](t Tensor[T], members []string) []SplitPiece {
	pieces := make([]SplitPiece, len(members))
	for i, m := range members {
		e, _ := t.EdgeByName(m)
		pieces[i] = SplitPiece{Name: m, Segments: e.Segments}
	}
	return pieces
}

// flippedMembers lists the group members whose arrow the merge realignment
// flipped: everyone disagreeing with the first member's arrow.
func flippedMembers[T Scalar](t Tensor[T], members []string) []string {
	if len(members) == 0 || !t.core.fermionic() {
		return nil
	}
	first, _ := t.EdgeByName(members[0])
	var out []string
	for _, m := range members[1:] {
		e, _ := t.EdgeByName(m)
		if e.fermionic() && e.Arrow != first.Arrow {
			out = append(out, m)
		}
	}
	return out
}
