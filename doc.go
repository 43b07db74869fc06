// Package tat provides block-sparse symmetric tensors with named edges for
// tensor-network computations.
//
// A tensor's axes are addressed by name, never by position; every axis
// carries an Edge listing its symmetry sectors, and only the blocks whose
// per-axis symmetries sum to the neutral element are stored. Fermionic
// symmetry kinds additionally track an arrow per edge and apply the sign
// bookkeeping (transposition, reversal, merge/split parities) automatically.
//
// # Quick Start
//
// Build a U(1)-symmetric matrix and contract it with itself:
//
//	left := tat.MustEdge([]tat.Segment{{tat.U1(-1), 2}, {tat.U1(0), 3}, {tat.U1(1), 2}}, false)
//	right := left.Conjugate()
//	a := tat.MustNew[float64]([]string{"i", "j"}, []tat.Edge{left, right})
//	a.Range(0, 1)
//
//	b, _ := a.Rename(map[string]string{"i": "j", "j": "k"})
//	c, _ := tat.Contract(a, b, []tat.Pair{{A: "j", B: "j"}})
//
// Non-symmetric tensors use TrivialEdge:
//
//	t := tat.MustNew[float64]([]string{"x", "y"}, []tat.Edge{tat.TrivialEdge(4), tat.TrivialEdge(4)})
//
// # Restructuring
//
// EdgeOperator applies rename, split, reverse, merge and transpose as one
// pass; Rename, Transpose, MergeEdges, SplitEdges and ReverseEdges are
// shorthands for the common single-phase cases. Renaming and transposing
// never copy more than once: tensors share storage copy-on-write, and pure
// renames share it outright.
//
// # Decomposition
//
// SVD and QR factorize across any bipartition of the axes, sector by sector:
//
//	res, _ := tat.SVD(c, []string{"i"}, "u", "v", tat.RemainCut{Value: 8}, "su", "sv")
//	us, _ := tat.Contract(res.U, res.S, []tat.Pair{{A: "u", B: "su"}})
//	back, _ := tat.Contract(us, res.V, []tat.Pair{{A: "sv", B: "v"}})
//
// # Persistence
//
// Save and Load round-trip tensors bit-exactly through a little-endian
// binary format, optionally compressed:
//
//	_ = c.SaveFile("c.tat", tat.WithCompression(tat.CompressionZstd))
//	c2, _ := tat.LoadFile[float64]("c.tat")
//
// # Logging
//
// Operations log through log/slog; pass WithLogger per call or set a
// process-wide default with SetDefaultLogger. The default discards output.
package tat
