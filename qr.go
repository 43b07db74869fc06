package tat

import (
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/USTC-TNS/TAT/internal/kernel"
)

// QRResult is the factorization t = Q · R with Q orthogonal sector by sector
// and R upper triangular in the merged matrix picture.
type QRResult[T Scalar] struct {
	Q Tensor[T]
	R Tensor[T]
}

// QR factorizes the tensor into Q · R. direction selects which factor the
// named free axes end up on: 'Q' puts them on Q, 'R' on R. commonQ and
// commonR name the fresh edges tying the two factors together.
func QR[T Scalar](t Tensor[T], direction byte, free []string, commonQ, commonR string, opts ...Option) (QRResult[T], error) {
	o := applyOptions(opts)
	res, blocks, err := qr(t, direction, free, commonQ, commonR, o)
	o.logger.LogDecompose("qr", blocks, err)
	return res, err
}

func qr[T Scalar](t Tensor[T], direction byte, free []string, commonQ, commonR string, o options) (QRResult[T], int, error) {
	if direction != 'Q' && direction != 'R' {
		return QRResult[T]{}, 0, shapeErrorf("qr", "direction %q, want 'Q' or 'R'", direction)
	}
	for _, n := range free {
		if _, err := t.axisOf(n); err != nil {
			return QRResult[T]{}, 0, err
		}
	}
	freeQ := free
	if direction == 'R' {
		freeQ = freeNames(t.names, free)
	}
	freeR := freeNames(t.names, freeQ)
	fermionic := t.core.fermionic()

	mt, err := t.edgeOperatorImpl(EdgeOperation{
		Merge: map[string][]string{matRow: freeQ, matCol: freeR},
		Order: []string{matRow, matCol},
	}, nil, nil)
	if err != nil {
		return QRResult[T]{}, 0, err
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
			sec.u, sec.vt = kernel.QR(data, sec.m, sec.n)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return QRResult[T]{}, 0, err
	}

	counts := fullCounts(sectors)
	qEdge, err := commonEdge(sectors, false, false, counts)
	if err != nil {
		return QRResult[T]{}, 0, err
	}
	rEdge, err := commonEdge(sectors, true, fermionic, counts)
	if err != nil {
		return QRResult[T]{}, 0, err
	}

	qf := MustNew[T]([]string{matRow, commonQ}, []Edge{rowEdge, qEdge})
	rf := MustNew[T]([]string{commonR, matCol}, []Edge{rEdge, colEdge})
	for i := range sectors {
		sec := &sectors[i]
		qb, err := qf.BlockOf([]Symmetry{sec.row, sec.col})
		if err != nil {
			return QRResult[T]{}, 0, err
		}
		copy(qb, sec.u)
		rb, err := rf.BlockOf([]Symmetry{sec.row, sec.col})
		if err != nil {
			return QRResult[T]{}, 0, err
		}
		copy(rb, sec.vt)
	}

	q, err := qf.edgeOperatorImpl(EdgeOperation{
		Split:   map[string][]SplitPiece{matRow: splitPieces(t, freeQ)},
		Reverse: flippedMembers(t, freeQ),
		Order:   append(slices.Clone(freeQ), commonQ),
	}, nil, nil)
	if err != nil {
		return QRResult[T]{}, 0, err
	}
	r, err := rf.edgeOperatorImpl(EdgeOperation{
		Split:   map[string][]SplitPiece{matCol: splitPieces(t, freeR)},
		Reverse: flippedMembers(t, freeR),
		Order:   append([]string{commonR}, freeR...),
	}, nil, nil)
	if err != nil {
		return QRResult[T]{}, 0, err
	}
	return QRResult[T]{Q: q, R: r}, len(sectors), nil
}
