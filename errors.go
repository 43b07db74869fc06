package tat

import (
	"errors"
	"fmt"
)

var (
	// ErrNameNotFound is returned when an edge name is not part of a tensor.
	ErrNameNotFound = errors.New("no such edge name")

	// ErrBlockNotFound is returned when a symmetry combination selects no
	// block, i.e. it violates the conservation invariant.
	ErrBlockNotFound = errors.New("no such symmetry block")

	// ErrNotScalar is returned by the no-argument element accessors when the
	// tensor does not contain exactly one element.
	ErrNotScalar = errors.New("tensor does not contain exactly one element")

	// ErrCorruptData is returned when decoding a serialized tensor fails.
	ErrCorruptData = errors.New("corrupt tensor data")
)

// ErrInvalidNames indicates a malformed edge-name list (wrong length or
// duplicated names).
type ErrInvalidNames struct {
	Names  []string
	Reason string
}

func (e *ErrInvalidNames) Error() string {
	return fmt.Sprintf("invalid name list %v: %s", e.Names, e.Reason)
}

// ErrInvalidEdge indicates a malformed edge (non-positive segment dimension,
// unsorted or duplicated symmetries).
type ErrInvalidEdge struct {
	Reason string
}

func (e *ErrInvalidEdge) Error() string {
	return fmt.Sprintf("invalid edge: %s", e.Reason)
}

// ErrShapeMismatch indicates incompatible edges in contraction, malformed
// split boundaries, or a target name list that disagrees with the rank.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrShapeMismatch struct {
	Op     string
	Reason string
	cause  error
}

func (e *ErrShapeMismatch) Error() string {
	return fmt.Sprintf("%s: shape mismatch: %s", e.Op, e.Reason)
}

func (e *ErrShapeMismatch) Unwrap() error { return e.cause }

// ErrIndexOutOfRange indicates a flat index beyond an edge's total dimension.
type ErrIndexOutOfRange struct {
	Index     int
	Dimension int
}

func (e *ErrIndexOutOfRange) Error() string {
	return fmt.Sprintf("index %d out of range for dimension %d", e.Index, e.Dimension)
}

func shapeErrorf(op, format string, args ...any) error {
	return &ErrShapeMismatch{Op: op, Reason: fmt.Sprintf(format, args...)}
}

func nameError(name string) error {
	return fmt.Errorf("%w: %q", ErrNameNotFound, name)
}
