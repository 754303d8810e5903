// Package gate implements the wake gate: the state machine that owns the
// capture stream, feeds classifier-sized frames to a wake-word model and
// starts at most one conversational turn at a time.
//
// The gate is LISTENING initially. A frame that the classifier matches while
// LISTENING switches the gate to BUSY with a single atomic compare-and-swap
// and starts the turn. While BUSY the gate keeps reading and framing capture
// audio so the stream never stalls, but no frame reaches the classifier. The
// capture is lent to the turn through a [audio.Source] lease for as long as
// the turn runs. When the turn returns, the lease is revoked, the frame buffer
// is reset to drop stale audio (including playback bleed-through) and the gate
// is LISTENING again.
package gate

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/MrWong99/voxgate/internal/observe"
	"github.com/MrWong99/voxgate/pkg/audio"
	"github.com/MrWong99/voxgate/pkg/provider/wake"
	"github.com/MrWong99/voxgate/pkg/types"
)

// State is the gate's position in its two-state machine.
type State int32

const (
	// Listening is the initial state; frames are classified.
	Listening State = iota

	// Busy means a turn is in flight; frames are assembled but not classified.
	Busy
)

// String returns the upper-case state name.
func (s State) String() string {
	switch s {
	case Listening:
		return "LISTENING"
	case Busy:
		return "BUSY"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Event describes a detected wake word.
type Event struct {
	// Keyword is the index of the matched keyword model.
	Keyword int

	// Offset is the start of the matching frame relative to the last
	// assembler reset.
	Offset time.Duration

	// At is the wall-clock detection time.
	At time.Time
}

// Turn handles one wake event. capture yields the live microphone stream and
// is only valid until Run returns. Run must not return before the turn is
// fully finished; the gate is BUSY for exactly that long.
type Turn interface {
	Run(ctx context.Context, ev Event, capture audio.Source)
}

// TurnFunc adapts a function to [Turn].
type TurnFunc func(ctx context.Context, ev Event, capture audio.Source)

// Run implements [Turn].
func (f TurnFunc) Run(ctx context.Context, ev Event, capture audio.Source) { f(ctx, ev, capture) }

// Gate is the wake gate. Create it with [New] and drive it with [Gate.Run].
type Gate struct {
	classifier wake.Classifier
	source     audio.Source
	turn       Turn
	metrics    *observe.Metrics
	leaseBuf   int

	state atomic.Int32
	ready atomic.Bool
}

// Option is a functional option for [New].
type Option func(*Gate)

// WithMetrics records wake and classifier metrics on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(g *Gate) { g.metrics = m }
}

// WithLeaseBuffer sets how many capture chunks may queue for a turn's
// recording before the gate waits for it. Default is 64.
func WithLeaseBuffer(n int) Option {
	return func(g *Gate) {
		if n > 0 {
			g.leaseBuf = n
		}
	}
}

// New returns a gate classifying audio from source with c and handing wake
// events to turn.
func New(c wake.Classifier, source audio.Source, turn Turn, opts ...Option) *Gate {
	g := &Gate{
		classifier: c,
		source:     source,
		turn:       turn,
		leaseBuf:   64,
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// State returns the current state.
func (g *Gate) State() State { return State(g.state.Load()) }

// Ready reports whether the capture stream is open and being read.
func (g *Gate) Ready() bool { return g.ready.Load() }

// Run opens the capture stream and processes it until ctx is cancelled or the
// device fails. Cancellation returns nil after the in-flight turn (if any) has
// observed it. A capture failure is returned wrapped with types.ErrDevice.
func (g *Gate) Run(ctx context.Context) error {
	format := audio.Format{SampleRate: g.classifier.SampleRate(), Channels: 1}
	stream, err := g.source.Open(ctx, format)
	if err != nil {
		return fmt.Errorf("gate: open capture: %w", err)
	}
	defer stream.Close()

	asm := audio.NewFrameAssembler(g.classifier.FrameLength(), g.classifier.SampleRate())
	g.ready.Store(true)
	defer g.ready.Store(false)

	slog.Info("gate: listening",
		"sample_rate", stream.Format().SampleRate,
		"frame_length", asm.FrameLength(),
	)

	var (
		cur      *lease
		turnDone chan struct{}
	)
	// stop revokes the lease and waits for an in-flight turn to return.
	stop := func(cause error) {
		if cur == nil {
			return
		}
		cur.end(cause)
		<-turnDone
	}

	for {
		select {
		case <-ctx.Done():
			stop(nil)
			slog.Info("gate: stopped")
			return nil

		case <-turnDone:
			cur.end(nil)
			cur, turnDone = nil, nil
			asm.Reset()
			g.state.Store(int32(Listening))
			if g.metrics != nil {
				g.metrics.ActiveTurns.Add(ctx, -1)
			}
			slog.Info("gate: listening")

		case chunk, ok := <-stream.Chunks():
			if !ok {
				err := captureEnded(stream.Err())
				stop(err)
				return err
			}
			if cur != nil {
				cur.deliver(ctx, append([]byte(nil), chunk...), turnDone)
			}

			frames := asm.Append(chunk)
			if g.State() != Listening {
				continue
			}
			ev, hit := g.classify(ctx, frames)
			if !hit || !g.state.CompareAndSwap(int32(Listening), int32(Busy)) {
				continue
			}

			if g.metrics != nil {
				g.metrics.RecordWake(ctx, ev.Keyword)
				g.metrics.ActiveTurns.Add(ctx, 1)
			}
			slog.Info("gate: wake word detected", "keyword", ev.Keyword, "offset", ev.Offset)

			cur = newLease(stream.Format(), g.leaseBuf)
			turnDone = make(chan struct{})
			go func(l *lease, done chan struct{}) {
				defer close(done)
				g.turn.Run(ctx, ev, l)
			}(cur, turnDone)
		}
	}
}

// classify runs frames through the classifier in order and stops at the
// first match. Per-frame errors count as no match.
func (g *Gate) classify(ctx context.Context, frames []audio.AudioFrame) (Event, bool) {
	for _, f := range frames {
		if g.metrics != nil {
			g.metrics.FramesClassified.Add(ctx, 1)
		}
		idx, err := g.classifier.Process(f.Samples)
		if err != nil {
			if g.metrics != nil {
				g.metrics.ClassifierErrors.Add(ctx, 1)
			}
			slog.Warn("gate: frame classification failed", "offset", f.Timestamp, "err", err)
			continue
		}
		if idx >= 0 {
			return Event{Keyword: idx, Offset: f.Timestamp, At: time.Now()}, true
		}
	}
	return Event{}, false
}

func captureEnded(err error) error {
	if err == nil {
		return fmt.Errorf("%w: gate: capture stream ended", types.ErrDevice)
	}
	return fmt.Errorf("%w: gate: capture: %w", types.ErrDevice, err)
}
