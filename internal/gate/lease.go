package gate

import (
	"context"
	"fmt"
	"sync"

	"github.com/MrWong99/voxgate/pkg/audio"
	"github.com/MrWong99/voxgate/pkg/types"
)

// lease lends the gate's capture stream to one turn. It implements
// [audio.Source]; at most one stream opened from it is live at a time.
// Chunks that arrive while no stream is open are dropped.
type lease struct {
	format audio.Format
	buf    int

	mu    sync.Mutex
	cur   *leaseStream
	ended bool
}

var _ audio.Source = (*lease)(nil)

func newLease(f audio.Format, buf int) *lease {
	return &lease{format: f, buf: buf}
}

// Open implements [audio.Source]. The requested format is ignored; the
// stream always carries the capture format.
func (l *lease) Open(_ context.Context, _ audio.Format) (audio.Stream, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ended {
		return nil, fmt.Errorf("%w: gate: capture lease has ended", types.ErrDevice)
	}
	if l.cur != nil && !l.cur.isClosed() {
		return nil, fmt.Errorf("%w: gate: capture is already open", types.ErrDevice)
	}
	l.cur = &leaseStream{
		format: l.format,
		ch:     make(chan []byte, l.buf),
		closed: make(chan struct{}),
	}
	return l.cur, nil
}

// deliver forwards chunk to the open stream, waiting while its buffer is
// full unless the stream closes, the turn returns or ctx ends.
func (l *lease) deliver(ctx context.Context, chunk []byte, turnDone <-chan struct{}) {
	l.mu.Lock()
	s := l.cur
	l.mu.Unlock()
	if s != nil {
		s.send(ctx, chunk, turnDone)
	}
}

// end revokes the lease. An open stream is closed with cause as its error.
func (l *lease) end(cause error) {
	l.mu.Lock()
	l.ended = true
	s := l.cur
	l.cur = nil
	l.mu.Unlock()
	if s != nil {
		s.shut(cause)
	}
}

// leaseStream is the [audio.Stream] handed to a turn.
type leaseStream struct {
	format audio.Format
	ch     chan []byte
	closed chan struct{}
	once   sync.Once

	mu   sync.RWMutex
	done bool
	err  error
}

var _ audio.Stream = (*leaseStream)(nil)

func (s *leaseStream) Format() audio.Format  { return s.format }
func (s *leaseStream) Chunks() <-chan []byte { return s.ch }

func (s *leaseStream) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

func (s *leaseStream) Close() error {
	s.shut(nil)
	return nil
}

func (s *leaseStream) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

func (s *leaseStream) send(ctx context.Context, chunk []byte, turnDone <-chan struct{}) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.done {
		return
	}
	select {
	case s.ch <- chunk:
	case <-s.closed:
	case <-turnDone:
	case <-ctx.Done():
	}
}

// shut closes the stream once. Closing s.closed first releases a blocked
// send so that the write lock can be taken.
func (s *leaseStream) shut(cause error) {
	s.once.Do(func() {
		close(s.closed)
		s.mu.Lock()
		s.done = true
		s.err = cause
		close(s.ch)
		s.mu.Unlock()
	})
}
