package narstore

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aweris/narstore/internal/nar"
)

// Export serializes the full filesystem content of sp as a NAR stream into
// sink. Chunk boundaries carry no meaning; byte order does. On success the
// sink sees every chunk followed by exactly one EOF. On failure the typed
// error is returned and EOF is never called, leaving the stream explicitly
// failed rather than truncated-but-complete.
//
// Export blocks until the stream completes, fails, or the sink reports
// cancellation; run it on its own goroutine from asynchronous callers (or
// use NarReader, which does).
func (s *Store) Export(ctx context.Context, sp StorePath, sink Sink) error {
	fsys, err := s.backend.Object(sp.BaseName())
	if err != nil {
		return s.wrapBackendErr(err)
	}

	w := &sinkWriter{ctx: ctx, sink: sink, buf: make([]byte, 0, s.chunkSize)}
	if err := nar.Dump(w, fsys, sp.BaseName()); err != nil {
		return s.wrapExportErr(sp, err)
	}
	if err := w.flush(); err != nil {
		return s.wrapExportErr(sp, err)
	}
	return sink.EOF()
}

// NarReader starts an export on its own goroutine and returns the consumer
// side as an io.ReadCloser, bridged through a bounded ChunkSink. A
// mid-stream failure surfaces from Read as the typed error, never as a
// clean io.EOF. Close cancels the producer.
func (s *Store) NarReader(ctx context.Context, sp StorePath) io.ReadCloser {
	ctx, cancel := context.WithCancel(ctx)
	sink := NewChunkSink(s.exportBuffer)

	go func() {
		if err := s.Export(ctx, sp, sink); err != nil {
			sink.fail(err)
		}
	}()

	return &narReader{sink: sink, cancel: cancel}
}

// wrapExportErr types a serialization failure, letting cancellation and
// already-typed errors through untouched.
func (s *Store) wrapExportErr(sp StorePath, err error) error {
	switch {
	case errors.Is(err, ErrCancelled), errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, ErrPathNotFound), errors.Is(err, ErrIO):
		return err
	default:
		return fmt.Errorf("%w: export %s: %v", ErrIO, sp, err)
	}
}

// sinkWriter adapts an io.Writer producer to a Sink, coalescing the
// encoder's many small writes into chunkSize sends.
type sinkWriter struct {
	ctx  context.Context
	sink Sink
	buf  []byte
}

func (w *sinkWriter) Write(p []byte) (int, error) {
	total := len(p)
	for len(p) > 0 {
		space := cap(w.buf) - len(w.buf)
		if space == 0 {
			if err := w.flush(); err != nil {
				return total - len(p), err
			}
			space = cap(w.buf)
		}
		n := min(space, len(p))
		w.buf = append(w.buf, p[:n]...)
		p = p[n:]
	}
	return total, nil
}

func (w *sinkWriter) flush() error {
	if len(w.buf) == 0 {
		return nil
	}
	err := w.sink.Send(w.ctx, w.buf)
	w.buf = w.buf[:0]
	return err
}
