package tat

import (
	"fmt"
	"slices"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/USTC-TNS/TAT/internal/kernel"
)

// Cut selects how many singular values a decomposition keeps.
type Cut interface {
	isCut()
}

// NoCut keeps every singular value.
type NoCut struct{}

// RemainCut keeps the Value largest singular values across all sectors.
type RemainCut struct {
	Value int
}

// RelativeCut keeps the singular values no smaller than Value times the
// largest one.
type RelativeCut struct {
	Value float64
}

func (NoCut) isCut()       {}
func (RemainCut) isCut()   {}
func (RelativeCut) isCut() {}

// SVDResult is the factorization t = U · S · V. S is a rank-2 tensor whose
// blocks are diagonal; its edges are the conjugates of the fresh common edges
// of U and V, so the three factors contract back into t directly.
type SVDResult[T Scalar] struct {
	U Tensor[T]
	S Tensor[T]
	V Tensor[T]
}

// SVD factorizes the tensor into U · S · V. The axes named in freeU end up
// on U, every other axis on V. commonU and commonV name the fresh edges tying
// U and V to S; singularU and singularV name S's own edges. cut limits the
// number of singular values kept per the chosen policy.
func SVD[T Scalar](t Tensor[T], freeU []string, commonU, commonV string, cut Cut, singularU, singularV string, opts ...Option) (SVDResult[T], error) {
	o := applyOptions(opts)
	res, blocks, err := svd(t, freeU, commonU, commonV, cut, singularU, singularV, o)
	o.logger.LogDecompose("svd", blocks, err)
	return res, err
}

type sectorSVD[T Scalar] struct {
	row Symmetry // row sector; the column sector is its negation
	col Symmetry
	m   int
	n   int
	p   int
	u   []T
	s   []T
	vt  []T
}

func svd[T Scalar](t Tensor[T], freeU []string, commonU, commonV string, cut Cut, singularU, singularV string, o options) (SVDResult[T], int, error) {
	for _, n := range freeU {
		if _, err := t.axisOf(n); err != nil {
			return SVDResult[T]{}, 0, err
		}
	}
	freeV := freeNames(t.names, freeU)
	fermionic := t.core.fermionic()

	mt, err := t.edgeOperatorImpl(EdgeOperation{
		Merge: map[string][]string{matRow: freeU, matCol: freeV},
		Order: []string{matRow, matCol},
	}, nil, nil)
	if err != nil {
		return SVDResult[T]{}, 0, err
	}
	rowEdge := mt.core.edges[0]
	colEdge := mt.core.edges[1]

	sectors := make([]sectorSVD[T], len(mt.core.blocks))
	g := new(errgroup.Group)
	g.SetLimit(o.parallelism)
	for i := range mt.core.blocks {
		key := mt.core.blocks[i].key
		sec := &sectors[i]
		sec.row = key[0]
		sec.col = key[1]
		sec.m = rowEdge.DimOf(sec.row)
		sec.n = colEdge.DimOf(sec.col)
		sec.p = min(sec.m, sec.n)
		data := mt.core.data(i)
		g.Go(func() error {
			u, s, vt, err := kernel.SVD(data, sec.m, sec.n)
			if err != nil {
				return fmt.Errorf("sector %s: %w", sec.row, err)
			}
			sec.u, sec.s, sec.vt = u, s, vt
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return SVDResult[T]{}, 0, err
	}

	kept := keepCounts(sectors, cut)

	// Assemble the full (untruncated) factors, then truncate U and V through
	// the engine's cut phase in the same pass that splits the free axes back.
	uEdge, err := commonEdge(sectors, false, false, fullCounts(sectors))
	if err != nil {
		return SVDResult[T]{}, 0, err
	}
	vEdge, err := commonEdge(sectors, true, false, fullCounts(sectors))
	if err != nil {
		return SVDResult[T]{}, 0, err
	}
	uf := MustNew[T]([]string{matRow, commonU}, []Edge{rowEdge, uEdge})
	vf := MustNew[T]([]string{commonV, matCol}, []Edge{vEdge, colEdge})
	for i := range sectors {
		sec := &sectors[i]
		if sec.p == 0 {
			continue
		}
		ub, err := uf.BlockOf([]Symmetry{sec.row, sec.col})
		if err != nil {
			return SVDResult[T]{}, 0, err
		}
		copy(ub, sec.u)
		vb, err := vf.BlockOf([]Symmetry{sec.row, sec.col})
		if err != nil {
			return SVDResult[T]{}, 0, err
		}
		copy(vb, sec.vt)
	}

	uCutEdge, err := commonEdge(sectors, false, false, kept)
	if err != nil {
		return SVDResult[T]{}, 0, err
	}
	vCutEdge, err := commonEdge(sectors, true, false, kept)
	if err != nil {
		return SVDResult[T]{}, 0, err
	}

	u, err := uf.edgeOperatorImpl(EdgeOperation{
		Split:   map[string][]SplitPiece{matRow: splitPieces(t, freeU)},
		Reverse: flippedMembers(t, freeU),
		Order:   append(slices.Clone(freeU), commonU),
	}, map[string][]Segment{commonU: uCutEdge.Segments}, nil)
	if err != nil {
		return SVDResult[T]{}, 0, err
	}
	v, err := vf.edgeOperatorImpl(EdgeOperation{
		Split:   map[string][]SplitPiece{matCol: splitPieces(t, freeV)},
		Reverse: flippedMembers(t, freeV),
		Order:   append([]string{commonV}, freeV...),
	}, map[string][]Segment{commonV: vCutEdge.Segments}, nil)
	if err != nil {
		return SVDResult[T]{}, 0, err
	}

	// S lives on the conjugates of the common edges, so each factor pairs
	// with it directly; its block for a sector pair is diagonal with the
	// kept singular values.
	sUEdge, err := commonEdge(sectors, true, fermionic, kept)
	if err != nil {
		return SVDResult[T]{}, 0, err
	}
	sVEdge, err := commonEdge(sectors, false, fermionic, kept)
	if err != nil {
		return SVDResult[T]{}, 0, err
	}
	s := MustNew[T]([]string{singularU, singularV}, []Edge{sUEdge, sVEdge})
	for i := range sectors {
		sec := &sectors[i]
		k := kept[i]
		if k == 0 {
			continue
		}
		sb, err := s.BlockOf([]Symmetry{sec.row, sec.col})
		if err != nil {
			return SVDResult[T]{}, 0, err
		}
		for d := 0; d < k; d++ {
			sb[d*k+d] = sec.s[d]
		}
	}

	return SVDResult[T]{U: u, S: s, V: v}, len(sectors), nil
}

// commonEdge builds the fresh edge tying a factor to S. Each surviving sector
// contributes one segment; useRow selects which side of the block key labels
// it. Sectors with zero kept values are dropped.
func commonEdge[T Scalar](sectors []sectorSVD[T], useRow, arrow bool, counts []int) (Edge, error) {
	segs := make([]Segment, 0, len(sectors))
	for i := range sectors {
		if counts[i] == 0 {
			continue
		}
		sym := sectors[i].col
		if useRow {
			sym = sectors[i].row
		}
		segs = append(segs, Segment{Sym: sym, Dim: counts[i]})
	}
	slices.SortFunc(segs, func(a, b Segment) int { return a.Sym.Compare(b.Sym) })
	return NewEdge(segs, arrow)
}

func fullCounts[T Scalar](sectors []sectorSVD[T]) []int {
	counts := make([]int, len(sectors))
	for i := range sectors {
		counts[i] = sectors[i].p
	}
	return counts
}

// keepCounts applies the cut policy across all sectors at once.
func keepCounts[T Scalar](sectors []sectorSVD[T], cut Cut) []int {
	counts := fullCounts(sectors)
	switch c := cut.(type) {
	case RemainCut:
		type entry struct {
			value  float64
			sector int
		}
		var all []entry
		for i := range sectors {
			for _, v := range sectors[i].s {
				all = append(all, entry{float64(v), i})
			}
		}
		sort.Slice(all, func(i, j int) bool { return all[i].value > all[j].value })
		for i := range counts {
			counts[i] = 0
		}
		limit := min(c.Value, len(all))
		for _, e := range all[:limit] {
			counts[e.sector]++
		}
	case RelativeCut:
		largest := 0.0
		for i := range sectors {
			for _, v := range sectors[i].s {
				if f := float64(v); f > largest {
					largest = f
				}
			}
		}
		threshold := c.Value * largest
		for i := range sectors {
			n := 0
			for _, v := range sectors[i].s {
				if float64(v) >= threshold {
					n++
				}
			}
			counts[i] = n
		}
	}
	return counts
}
