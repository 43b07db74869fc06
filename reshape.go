package tat

// Strided data movement for the edge-operator engine. Everything here works
// on one block buffer at a time; block bookkeeping stays in edgeop.go.

// strides returns row-major strides for dims.
func strides(dims []int) []int {
	s := make([]int, len(dims))
	acc := 1
	for i := len(dims) - 1; i >= 0; i-- {
		s[i] = acc
		acc *= dims[i]
	}
	return s
}

func product(dims []int) int {
	p := 1
	for _, d := range dims {
		p *= d
	}
	return p
}

// copyScale copies src into dst, optionally negating.
func copyScale[T Scalar](dst, src []T, negate bool) {
	if !negate {
		copy(dst, src)
		return
	}
	for i, v := range src {
		dst[i] = -v
	}
}

// negateBlock multiplies a block buffer by -1 in place.
func negateBlock[T Scalar](data []T) {
	for i := range data {
		data[i] = -data[i]
	}
}

// transposeInto fills dst with src permuted: dst axis k is src axis perm[k].
// srcDims are the source dimensions; negate flips the sign of every element.
func transposeInto[T Scalar](dst, src []T, srcDims, perm []int, negate bool) {
	rank := len(srcDims)
	if rank == 0 {
		copyScale(dst, src, negate)
		return
	}
	identity := true
	for k, p := range perm {
		if k != p {
			identity = false
			break
		}
	}
	if identity {
		copyScale(dst, src, negate)
		return
	}

	srcStrides := strides(srcDims)
	step := make([]int, rank)
	dims := make([]int, rank)
	for k, p := range perm {
		step[k] = srcStrides[p]
		dims[k] = srcDims[p]
	}

	// Fast path: when the innermost destination axis walks contiguous
	// source memory, move whole runs.
	if step[rank-1] == 1 && rank > 1 {
		run := dims[rank-1]
		outer := len(dst) / run
		idx := make([]int, rank-1)
		off := 0
		for o := 0; o < outer; o++ {
			copyScale(dst[o*run:(o+1)*run], src[off:off+run], negate)
			for k := rank - 2; k >= 0; k-- {
				idx[k]++
				off += step[k]
				if idx[k] < dims[k] {
					break
				}
				idx[k] = 0
				off -= step[k] * dims[k]
			}
		}
		return
	}

	idx := make([]int, rank)
	off := 0
	for i := range dst {
		if negate {
			dst[i] = -src[off]
		} else {
			dst[i] = src[off]
		}
		for k := rank - 1; k >= 0; k-- {
			idx[k]++
			off += step[k]
			if idx[k] < dims[k] {
				break
			}
			idx[k] = 0
			off -= step[k] * dims[k]
		}
	}
}

// windowCopy extracts a rectangular window of src into the dense dst.
// offs/lens select the window per source axis; dst holds product(lens)
// elements laid out row-major over lens.
func windowCopy[T Scalar](dst, src []T, srcDims, offs, lens []int, negate bool) {
	rank := len(srcDims)
	if rank == 0 {
		copyScale(dst, src, negate)
		return
	}
	srcStr := strides(srcDims)
	run := lens[rank-1]
	if run == 0 {
		return
	}
	outer := product(lens[:rank-1])
	idx := make([]int, rank-1)
	for o := 0; o < outer; o++ {
		so := offs[rank-1]
		for k := 0; k < rank-1; k++ {
			so += (offs[k] + idx[k]) * srcStr[k]
		}
		copyScale(dst[o*run:(o+1)*run], src[so:so+run], negate)
		odometer(idx, lens[:rank-1])
	}
}

// windowScatter is the inverse of windowCopy: it writes the dense src into
// a rectangular window of dst. src holds product(lens) elements.
func windowScatter[T Scalar](dst, src []T, dstDims, offs, lens []int, negate bool) {
	rank := len(dstDims)
	if rank == 0 {
		copyScale(dst, src, negate)
		return
	}
	dstStr := strides(dstDims)
	run := lens[rank-1]
	if run == 0 {
		return
	}
	outer := product(lens[:rank-1])
	idx := make([]int, rank-1)
	for o := 0; o < outer; o++ {
		do := offs[rank-1]
		for k := 0; k < rank-1; k++ {
			do += (offs[k] + idx[k]) * dstStr[k]
		}
		copyScale(dst[do:do+run], src[o*run:(o+1)*run], negate)
		odometer(idx, lens[:rank-1])
	}
}

// inversionParity counts, modulo 2, the swapped pairs of odd-parity axes
// under the permutation mapping new position k to old axis perm[k]. This is
// the unconditional fermionic transposition sign of one block.
func inversionParity(perm []int, parity []bool) bool {
	flips := 0
	rank := len(perm)
	newPos := make([]int, rank)
	for k, p := range perm {
		newPos[p] = k
	}
	for i := 0; i < rank; i++ {
		if !parity[i] {
			continue
		}
		for j := i + 1; j < rank; j++ {
			if parity[j] && newPos[i] > newPos[j] {
				flips++
			}
		}
	}
	return flips&1 != 0
}
