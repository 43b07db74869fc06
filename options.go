package tat

import "runtime"

// Compression selects the codec applied to the serialized tensor payload.
//
// The chosen codec is recorded in the file header, so Load does not need to
// be told which one was used.
type Compression uint8

const (
	// CompressionNone stores the payload uncompressed.
	CompressionNone Compression = iota
	// CompressionZstd compresses the payload with zstd.
	CompressionZstd
	// CompressionLZ4 compresses the payload with lz4 frames.
	CompressionLZ4
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionZstd:
		return "zstd"
	case CompressionLZ4:
		return "lz4"
	default:
		return "unknown"
	}
}

type options struct {
	logger      *Logger
	compression Compression
	parallelism int
}

func applyOptions(opts []Option) options {
	o := options{
		logger:      defaultLogger,
		compression: CompressionNone,
		parallelism: runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Option configures per-call behavior of operations that have knobs
// (serialization codec, logging, block-level parallelism).
type Option func(*options)

// WithLogger overrides the package-level logger for one call.
//
// If nil is passed, the no-op logger is used.
func WithLogger(l *Logger) Option {
	return func(o *options) {
		if l == nil {
			l = NoopLogger()
		}
		o.logger = l
	}
}

// WithCompression selects the compression codec used by Save.
func WithCompression(c Compression) Option {
	return func(o *options) {
		o.compression = c
	}
}

// WithParallelism bounds the number of concurrent per-block kernel
// dispatches in contraction and decomposition. Values below 1 fall back
// to GOMAXPROCS.
func WithParallelism(n int) Option {
	return func(o *options) {
		if n < 1 {
			n = runtime.GOMAXPROCS(0)
		}
		o.parallelism = n
	}
}
