package tat

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"unsafe"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Binary format: a fixed little-endian header, then the body (names, edges,
// storage slab) run through the codec the header names. The slab is written
// as raw scalar bytes, so a round trip is bit-exact.
const (
	serialMagic   uint32 = 0x31544154 // "TAT1"
	serialVersion uint16 = 1
)

// Guards against absurd allocations when reading corrupt data.
const (
	maxSerialRank     = 1 << 16
	maxSerialNameLen  = 1 << 16
	maxSerialSegments = 1 << 24
)

type fileHeader struct {
	Magic       uint32
	Version     uint16
	Compression uint8
	ScalarWidth uint8
}

// Save writes the tensor to w. The codec is chosen with WithCompression and
// recorded in the header, so Load needs no matching option.
func (t Tensor[T]) Save(w io.Writer, opts ...Option) error {
	o := applyOptions(opts)
	err := t.save(w, o.compression)
	o.logger.LogSave(t.Size(), o.compression, err)
	return err
}

func (t Tensor[T]) save(w io.Writer, comp Compression) error {
	var zero T
	header := fileHeader{
		Magic:       serialMagic,
		Version:     serialVersion,
		Compression: uint8(comp),
		ScalarWidth: uint8(unsafe.Sizeof(zero)),
	}
	if err := binary.Write(w, binary.LittleEndian, header); err != nil {
		return err
	}

	body, done, err := compressedWriter(w, comp)
	if err != nil {
		return err
	}
	if err := t.writeBody(body); err != nil {
		done()
		return err
	}
	return done()
}

func (t Tensor[T]) writeBody(w io.Writer) error {
	if err := writeU32(w, uint32(t.Rank())); err != nil {
		return err
	}
	for r, name := range t.names {
		if err := writeString(w, name); err != nil {
			return err
		}
		if err := writeEdge(w, t.core.edges[r]); err != nil {
			return err
		}
	}
	if err := writeU64(w, uint64(len(t.core.storage))); err != nil {
		return err
	}
	return writeSlab(w, t.core.storage)
}

// Load reads a tensor written by Save. The scalar width in the header must
// match T; no silent conversion happens on load.
func Load[T Scalar](r io.Reader) (Tensor[T], error) {
	var header fileHeader
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return Tensor[T]{}, err
	}
	if header.Magic != serialMagic {
		return Tensor[T]{}, fmt.Errorf("%w: bad magic 0x%08x", ErrCorruptData, header.Magic)
	}
	if header.Version != serialVersion {
		return Tensor[T]{}, fmt.Errorf("%w: unsupported version %d", ErrCorruptData, header.Version)
	}
	var zero T
	if header.ScalarWidth != uint8(unsafe.Sizeof(zero)) {
		return Tensor[T]{}, fmt.Errorf("%w: scalar width %d, want %d",
			ErrCorruptData, header.ScalarWidth, unsafe.Sizeof(zero))
	}

	body, done, err := decompressedReader(r, Compression(header.Compression))
	if err != nil {
		return Tensor[T]{}, err
	}
	defer done()
	return readBody[T](body)
}

func readBody[T Scalar](r io.Reader) (Tensor[T], error) {
	rank, err := readU32(r)
	if err != nil {
		return Tensor[T]{}, err
	}
	if rank > maxSerialRank {
		return Tensor[T]{}, fmt.Errorf("%w: rank %d", ErrCorruptData, rank)
	}
	names := make([]string, rank)
	edges := make([]Edge, rank)
	for i := range names {
		if names[i], err = readString(r); err != nil {
			return Tensor[T]{}, err
		}
		if edges[i], err = readEdge(r); err != nil {
			return Tensor[T]{}, err
		}
	}
	t, err := New[T](names, edges)
	if err != nil {
		return Tensor[T]{}, fmt.Errorf("%w: %w", ErrCorruptData, err)
	}
	count, err := readU64(r)
	if err != nil {
		return Tensor[T]{}, err
	}
	if count != uint64(len(t.core.storage)) {
		return Tensor[T]{}, fmt.Errorf("%w: %d stored elements, edges admit %d",
			ErrCorruptData, count, len(t.core.storage))
	}
	if err := readSlab(r, t.core.storage); err != nil {
		return Tensor[T]{}, err
	}
	return t, nil
}

// SaveFile writes the tensor to path atomically: the bytes go to a temp file
// in the same directory which is renamed over the target only after a sync.
func (t Tensor[T]) SaveFile(path string, opts ...Option) error {
	dir := filepath.Dir(path)
	base := filepath.Base(path)

	tmp, err := os.CreateTemp(dir, base+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		if tmpName != "" {
			_ = os.Remove(tmpName)
		}
	}()
	_ = tmp.Chmod(0o644)

	buf := bufio.NewWriterSize(tmp, 256*1024)
	if err := t.Save(buf, opts...); err != nil {
		return err
	}
	if err := buf.Flush(); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	// Best-effort directory sync so the rename survives a crash.
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}
	tmpName = ""
	return nil
}

// LoadFile reads a tensor written by SaveFile.
func LoadFile[T Scalar](path string) (Tensor[T], error) {
	f, err := os.Open(path)
	if err != nil {
		return Tensor[T]{}, err
	}
	defer f.Close()
	return Load[T](bufio.NewReaderSize(f, 256*1024))
}

// compressedWriter wraps w in the chosen codec; done flushes and closes it.
func compressedWriter(w io.Writer, comp Compression) (io.Writer, func() error, error) {
	switch comp {
	case CompressionNone:
		return w, func() error { return nil }, nil
	case CompressionZstd:
		zw, err := zstd.NewWriter(w)
		if err != nil {
			return nil, nil, err
		}
		return zw, zw.Close, nil
	case CompressionLZ4:
		lw := lz4.NewWriter(w)
		return lw, lw.Close, nil
	default:
		return nil, nil, fmt.Errorf("%w: compression tag %d", ErrCorruptData, comp)
	}
}

func decompressedReader(r io.Reader, comp Compression) (io.Reader, func(), error) {
	switch comp {
	case CompressionNone:
		return r, func() {}, nil
	case CompressionZstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, nil, err
		}
		return zr, zr.Close, nil
	case CompressionLZ4:
		return lz4.NewReader(r), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("%w: compression tag %d", ErrCorruptData, comp)
	}
}

func writeEdge(w io.Writer, e Edge) error {
	arrow := uint8(0)
	if e.Arrow {
		arrow = 1
	}
	if err := binary.Write(w, binary.LittleEndian, arrow); err != nil {
		return err
	}
	if err := writeU32(w, uint32(len(e.Segments))); err != nil {
		return err
	}
	for _, s := range e.Segments {
		a, b := s.Sym.payload()
		if err := binary.Write(w, binary.LittleEndian, uint8(s.Sym.tag())); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, a); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, b); err != nil {
			return err
		}
		if err := writeU32(w, uint32(s.Dim)); err != nil {
			return err
		}
	}
	return nil
}

func readEdge(r io.Reader) (Edge, error) {
	var arrow uint8
	if err := binary.Read(r, binary.LittleEndian, &arrow); err != nil {
		return Edge{}, err
	}
	count, err := readU32(r)
	if err != nil {
		return Edge{}, err
	}
	if count > maxSerialSegments {
		return Edge{}, fmt.Errorf("%w: %d segments", ErrCorruptData, count)
	}
	segments := make([]Segment, count)
	for i := range segments {
		var tag uint8
		var a, b int64
		if err := binary.Read(r, binary.LittleEndian, &tag); err != nil {
			return Edge{}, err
		}
		if err := binary.Read(r, binary.LittleEndian, &a); err != nil {
			return Edge{}, err
		}
		if err := binary.Read(r, binary.LittleEndian, &b); err != nil {
			return Edge{}, err
		}
		dim, err := readU32(r)
		if err != nil {
			return Edge{}, err
		}
		sym, err := symmetryFromPayload(symTag(tag), a, b)
		if err != nil {
			return Edge{}, err
		}
		segments[i] = Segment{Sym: sym, Dim: int(dim)}
	}
	e, err := NewEdge(segments, arrow != 0)
	if err != nil {
		return Edge{}, fmt.Errorf("%w: %w", ErrCorruptData, err)
	}
	return e, nil
}

func writeString(w io.Writer, s string) error {
	if err := writeU32(w, uint32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readString(r io.Reader) (string, error) {
	n, err := readU32(r)
	if err != nil {
		return "", err
	}
	if n > maxSerialNameLen {
		return "", fmt.Errorf("%w: name length %d", ErrCorruptData, n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

// writeSlab writes the storage as raw bytes without copying.
func writeSlab[T Scalar](w io.Writer, s []T) error {
	if len(s) == 0 {
		return nil
	}
	bytes := unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*int(unsafe.Sizeof(s[0])))
	_, err := w.Write(bytes)
	return err
}

func readSlab[T Scalar](r io.Reader, s []T) error {
	if len(s) == 0 {
		return nil
	}
	bytes := unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*int(unsafe.Sizeof(s[0])))
	_, err := io.ReadFull(r, bytes)
	return err
}

func writeU32(w io.Writer, v uint32) error {
	return binary.Write(w, binary.LittleEndian, v)
}

func writeU64(w io.Writer, v uint64) error {
	return binary.Write(w, binary.LittleEndian, v)
}

func readU32(r io.Reader) (uint32, error) {
	var v uint32
	err := binary.Read(r, binary.LittleEndian, &v)
	return v, err
}

func readU64(r io.Reader) (uint64, error) {
	var v uint64
	err := binary.Read(r, binary.LittleEndian, &v)
	return v, err
}
