package narstore

import (
	"context"
	"io"
	"sync"
)

// Sink is a backpressured byte-stream consumer. Send may block until the
// consumer has drained capacity; the chunk is only valid for the duration
// of the call and must be copied if retained. EOF is called exactly once
// after the last chunk of a successful stream, and never after a failure:
// a consumer that sees the stream end without EOF must treat the bytes as
// an incomplete archive, not a short one.
type Sink interface {
	Send(ctx context.Context, chunk []byte) error
	EOF() error
}

// ChunkSink bridges a blocking producer to an asynchronous consumer through
// a bounded channel. The producer side is Send/EOF; the consumer reads
// Chunks until it is closed, then checks Err. Cancel aborts the producer at
// its next Send.
type ChunkSink struct {
	ch     chan []byte
	cancel chan struct{}

	cancelOnce sync.Once
	closeOnce  sync.Once

	mu  sync.Mutex
	err error
}

// NewChunkSink returns a sink buffering at most capacity outstanding chunks.
func NewChunkSink(capacity int) *ChunkSink {
	if capacity < 1 {
		capacity = 1
	}
	return &ChunkSink{
		ch:     make(chan []byte, capacity),
		cancel: make(chan struct{}),
	}
}

// Send queues a copy of chunk, blocking while the buffer is full. It fails
// with ErrCancelled once the consumer has cancelled, or with the context
// error if ctx ends first.
func (s *ChunkSink) Send(ctx context.Context, chunk []byte) error {
	// Check cancellation first so an already-cancelled sink never accepts
	// another chunk, even when buffer space is available.
	select {
	case <-s.cancel:
		return ErrCancelled
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	c := make([]byte, len(chunk))
	copy(c, chunk)
	select {
	case s.ch <- c:
		return nil
	case <-s.cancel:
		return ErrCancelled
	case <-ctx.Done():
		return ctx.Err()
	}
}

// EOF marks the stream complete and closes the chunk channel.
func (s *ChunkSink) EOF() error {
	s.closeOnce.Do(func() { close(s.ch) })
	return nil
}

// fail records the stream error and closes the chunk channel without EOF
// semantics: the consumer drains buffered chunks, then observes the error.
func (s *ChunkSink) fail(err error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
	s.closeOnce.Do(func() { close(s.ch) })
}

// Chunks returns the consumer side of the bridge. The channel is closed
// after EOF or failure; Err distinguishes the two.
func (s *ChunkSink) Chunks() <-chan []byte { return s.ch }

// Err returns the stream error, or nil after a clean EOF. Only meaningful
// once Chunks is closed.
func (s *ChunkSink) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Cancel requests the producer to stop. Safe to call multiple times and
// from any goroutine.
func (s *ChunkSink) Cancel() {
	s.cancelOnce.Do(func() { close(s.cancel) })
}

// narReader adapts a ChunkSink to io.ReadCloser.
type narReader struct {
	sink   *ChunkSink
	cancel context.CancelFunc
	buf    []byte
	err    error
}

func (r *narReader) Read(p []byte) (int, error) {
	if r.err != nil {
		return 0, r.err
	}
	for len(r.buf) == 0 {
		chunk, ok := <-r.sink.Chunks()
		if !ok {
			if err := r.sink.Err(); err != nil {
				r.err = err
			} else {
				r.err = io.EOF
			}
			return 0, r.err
		}
		r.buf = chunk
	}
	n := copy(p, r.buf)
	r.buf = r.buf[n:]
	return n, nil
}

// Close aborts the producer if it is still running and releases the bridge.
func (r *narReader) Close() error {
	r.sink.Cancel()
	r.cancel()
	if r.err == nil {
		r.err = ErrCancelled
	}
	return nil
}
