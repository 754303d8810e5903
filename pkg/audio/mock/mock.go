// Package mock provides in-memory mock implementations of the [audio.Source],
// [audio.Stream], [audio.Player], and [audio.Clock] interfaces for use in unit
// tests.
//
// All mocks are safe for concurrent use. They record every method call so that
// tests can assert on call counts and arguments, and they expose exported fields
// that the test can set to control return values.
//
// Typical usage:
//
//	stream := mock.NewStream(audio.Format{SampleRate: 16000, Channels: 1}, 16)
//	src := &mock.Source{OpenResult: stream}
//	stream.Push(pcm)
//	stream.Fail(errors.New("unplugged"))
package mock

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/MrWong99/voxgate/pkg/audio"
)

// ─── Stream ───────────────────────────────────────────────────────────────────

// Stream is a mock implementation of [audio.Stream] fed by the test through
// [Stream.Push].
type Stream struct {
	mu     sync.Mutex
	format audio.Format
	ch     chan []byte
	err    error
	closed bool

	// CallCountClose records how many times Close was called.
	CallCountClose int
}

var _ audio.Stream = (*Stream)(nil)

// NewStream returns an open stream with a chunk buffer of size buffer.
func NewStream(f audio.Format, buffer int) *Stream {
	return &Stream{format: f, ch: make(chan []byte, buffer)}
}

// Push delivers a copy of chunk. It blocks while the buffer is full and
// reports false if the stream has already ended.
func (s *Stream) Push(chunk []byte) (ok bool) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	ch := s.ch
	s.mu.Unlock()

	defer func() {
		if recover() != nil { // closed concurrently
			ok = false
		}
	}()
	ch <- append([]byte(nil), chunk...)
	return true
}

// Fail ends the stream with err as a device failure.
func (s *Stream) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.err = err
	s.closed = true
	close(s.ch)
}

// Format implements [audio.Stream].
func (s *Stream) Format() audio.Format { return s.format }

// Chunks implements [audio.Stream].
func (s *Stream) Chunks() <-chan []byte { return s.ch }

// Err implements [audio.Stream].
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close implements [audio.Stream].
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountClose++
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.ch)
	return nil
}

// Closed reports whether the stream has ended.
func (s *Stream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// ─── Source ───────────────────────────────────────────────────────────────────

// Source is a mock implementation of [audio.Source].
type Source struct {
	mu sync.Mutex

	// OpenResult is returned by Open. When nil, Open creates a fresh stream
	// with the requested format.
	OpenResult audio.Stream

	// OpenErr is returned by Open when non-nil.
	OpenErr error

	// OpenCalls records the format argument of every Open call.
	OpenCalls []audio.Format
}

var _ audio.Source = (*Source)(nil)

// Open implements [audio.Source].
func (s *Source) Open(_ context.Context, f audio.Format) (audio.Stream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.OpenCalls = append(s.OpenCalls, f)
	if s.OpenErr != nil {
		return nil, s.OpenErr
	}
	if s.OpenResult != nil {
		return s.OpenResult, nil
	}
	return NewStream(f, 64), nil
}

// CallCountOpen returns the number of Open calls.
func (s *Source) CallCountOpen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.OpenCalls)
}

// ─── Player ───────────────────────────────────────────────────────────────────

// Player is a mock implementation of [audio.Player].
type Player struct {
	mu sync.Mutex

	// PlayErr is returned by every Play call when non-nil.
	PlayErr error

	// PlayErrs, when non-empty, supplies per-call errors in order; it takes
	// precedence over PlayErr until exhausted.
	PlayErrs []error

	// OnPlay, if set, runs inside Play before it returns.
	OnPlay func(audio.Clip)

	// PlayCalls records every clip passed to Play, in order.
	PlayCalls []audio.Clip
}

var _ audio.Player = (*Player)(nil)

// Play implements [audio.Player].
func (p *Player) Play(_ context.Context, clip audio.Clip) error {
	p.mu.Lock()
	p.PlayCalls = append(p.PlayCalls, clip)
	var err error
	if len(p.PlayErrs) > 0 {
		err, p.PlayErrs = p.PlayErrs[0], p.PlayErrs[1:]
	} else {
		err = p.PlayErr
	}
	hook := p.OnPlay
	p.mu.Unlock()

	if hook != nil {
		hook(clip)
	}
	return err
}

// Calls returns a copy of the recorded clips.
func (p *Player) Calls() []audio.Clip {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]audio.Clip(nil), p.PlayCalls...)
}

// ─── Clock ────────────────────────────────────────────────────────────────────

// Clock is a manually advanced [audio.Clock]. Timers fire synchronously inside
// [Clock.Advance], in deadline order.
type Clock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*timer
}

var _ audio.Clock = (*Clock)(nil)

// NewClock returns a clock starting at an arbitrary fixed instant.
func NewClock() *Clock {
	return &Clock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

type timer struct {
	c       *Clock
	due     time.Time
	f       func()
	stopped bool
}

func (t *timer) Stop() bool {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	if t.stopped {
		return false
	}
	t.stopped = true
	return true
}

// Now implements [audio.Clock].
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// AfterFunc implements [audio.Clock]. The callback never runs before the next
// Advance call, even for non-positive durations.
func (c *Clock) AfterFunc(d time.Duration, f func()) audio.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &timer{c: c, due: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves the clock forward by d and runs every timer that became due.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*timer
	keep := c.timers[:0]
	for _, t := range c.timers {
		switch {
		case t.stopped:
		case !t.due.After(c.now):
			t.stopped = true
			due = append(due, t)
		default:
			keep = append(keep, t)
		}
	}
	c.timers = keep
	c.mu.Unlock()

	sort.SliceStable(due, func(i, j int) bool { return due[i].due.Before(due[j].due) })
	for _, t := range due {
		t.f()
	}
}

// Pending returns the number of timers that have neither fired nor been stopped.
func (c *Clock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped {
			n++
		}
	}
	return n
}
