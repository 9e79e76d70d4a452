// Package compression wraps zstd streaming for exported archives.
package compression

import (
	"io"

	"github.com/klauspost/compress/zstd"
)

// Levels accepted by NewWriter. Anything else falls back to default.
const (
	Fastest = 1
	Default = 2
	Better  = 3
)

// NewWriter returns a zstd stream writer over w. The caller must Close it
// to flush the final frame.
func NewWriter(w io.Writer, level int) (*zstd.Encoder, error) {
	encoderLevel := zstd.SpeedDefault
	switch level {
	case Fastest:
		encoderLevel = zstd.SpeedFastest
	case Better:
		encoderLevel = zstd.SpeedBetterCompression
	}

	return zstd.NewWriter(w,
		zstd.WithEncoderLevel(encoderLevel),
		zstd.WithEncoderConcurrency(1),
	)
}

// NewReader returns a zstd stream reader over r.
func NewReader(r io.Reader) (*zstd.Decoder, error) {
	return zstd.NewReader(r)
}
