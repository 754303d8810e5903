// Package recorder captures one spoken utterance into a temporary WAV file.
//
// A [Recorder] opens an [audio.Source], writes every captured chunk to a WAV
// sink and feeds the same bytes to an [audio.EndpointDetector]. The session
// completes once the detector confirms that the speaker has been silent for the
// configured debounce duration (or an optional safety cap is reached). On any
// failure the partial file is discarded.
//
// Exactly one stream and one sink are open per session and both are released
// on every exit path.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/MrWong99/voxgate/internal/observe"
	"github.com/MrWong99/voxgate/pkg/audio"
	"github.com/MrWong99/voxgate/pkg/types"
)

// filePattern names the temporary utterance files.
const filePattern = "voxgate-utterance-*.wav"

// DefaultFormat is requested from the source when no format is configured.
var DefaultFormat = audio.Format{SampleRate: 16000, Channels: 1}

// Config holds the endpointing tunables of a recording session. Zero fields
// take the [audio.EndpointDetector] defaults.
type Config struct {
	// Threshold is the mean absolute amplitude separating voice from silence.
	Threshold float64

	// Silence is how long the speaker must stay silent to end the utterance.
	Silence time.Duration

	// Window is the analysis window duration.
	Window time.Duration

	// MaxDuration caps the captured audio length. Zero disables the cap.
	MaxDuration time.Duration
}

// ChunkObserver is called after every captured chunk with the detector state
// and the total captured duration so far.
type ChunkObserver func(state audio.VoiceState, captured time.Duration)

// Recorder runs recording sessions. It is safe for concurrent use, although
// the wake gate only ever runs one session at a time.
type Recorder struct {
	fs       afero.Fs
	dir      string
	format   audio.Format
	clock    audio.Clock
	observer ChunkObserver
	metrics  *observe.Metrics

	mu  sync.RWMutex
	cfg Config
}

// Option is a functional option for [New].
type Option func(*Recorder)

// WithConfig sets the initial endpointing tunables.
func WithConfig(cfg Config) Option {
	return func(r *Recorder) { r.cfg = cfg }
}

// WithTempDir sets the directory for utterance files. Empty means the
// operating system's temp directory.
func WithTempDir(dir string) Option {
	return func(r *Recorder) { r.dir = dir }
}

// WithFormat sets the format requested when opening the source.
func WithFormat(f audio.Format) Option {
	return func(r *Recorder) { r.format = f }
}

// WithClock replaces the clock driving the silence debounce.
func WithClock(c audio.Clock) Option {
	return func(r *Recorder) { r.clock = c }
}

// WithChunkObserver registers fn to be called after every chunk.
func WithChunkObserver(fn ChunkObserver) Option {
	return func(r *Recorder) { r.observer = fn }
}

// WithMetrics records utterance durations on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(r *Recorder) { r.metrics = m }
}

// New returns a Recorder that keeps its files on fs.
func New(fs afero.Fs, opts ...Option) *Recorder {
	r := &Recorder{
		fs:     fs,
		format: DefaultFormat,
		clock:  audio.SystemClock,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Config returns the tunables used by the next session.
func (r *Recorder) Config() Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cfg
}

// SetConfig replaces the tunables. Sessions already running keep theirs.
func (r *Recorder) SetConfig(cfg Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cfg = cfg
}

// Session is one in-progress recording.
type Session struct {
	done chan struct{}
	utt  types.Utterance
	err  error
}

// Done is closed when the session has completed or failed.
func (s *Session) Done() <-chan struct{} { return s.done }

// Result returns the finished utterance or the failure. It must only be
// called after Done is closed.
func (s *Session) Result() (types.Utterance, error) { return s.utt, s.err }

func (s *Session) finish(u types.Utterance, err error) {
	s.utt, s.err = u, err
	close(s.done)
}

// Start begins a session on src and returns immediately. Cancelling ctx fails
// the session.
func (r *Recorder) Start(ctx context.Context, src audio.Source) *Session {
	s := &Session{done: make(chan struct{})}
	go r.run(ctx, src, s)
	return s
}

// Record runs a session on src and blocks until it resolves.
func (r *Recorder) Record(ctx context.Context, src audio.Source) (types.Utterance, error) {
	s := r.Start(ctx, src)
	<-s.Done()
	return s.Result()
}

// Load returns the WAV bytes of a finished utterance.
func (r *Recorder) Load(u types.Utterance) ([]byte, error) {
	data, err := afero.ReadFile(r.fs, u.Path)
	if err != nil {
		return nil, fmt.Errorf("recorder: load utterance: %w", err)
	}
	return data, nil
}

// Release deletes the utterance file. Releasing twice is not an error.
func (r *Recorder) Release(u types.Utterance) error {
	if u.Path == "" {
		return nil
	}
	if err := r.fs.Remove(u.Path); err != nil {
		if exists, _ := afero.Exists(r.fs, u.Path); !exists {
			return nil
		}
		return fmt.Errorf("recorder: release utterance: %w", err)
	}
	return nil
}

func (r *Recorder) run(ctx context.Context, src audio.Source, s *Session) {
	cfg := r.Config()

	stream, err := src.Open(ctx, r.format)
	if err != nil {
		s.finish(types.Utterance{}, fmt.Errorf("recorder: open source: %w", err))
		return
	}
	defer stream.Close()

	f, err := afero.TempFile(r.fs, r.dir, filePattern)
	if err != nil {
		s.finish(types.Utterance{}, fmt.Errorf("recorder: create sink: %w", err))
		return
	}

	discard := func(cause error) {
		_ = f.Close()
		if err := r.fs.Remove(f.Name()); err != nil {
			slog.Warn("recorder: failed to discard partial utterance", "path", f.Name(), "err", err)
		}
		s.finish(types.Utterance{}, cause)
	}

	format := stream.Format()
	w := audio.NewWAVWriter(f, format)
	det := audio.NewEndpointDetector(audio.EndpointConfig{
		Format:    format,
		Threshold: cfg.Threshold,
		Silence:   cfg.Silence,
		Window:    cfg.Window,
	}, audio.WithClock(r.clock))
	defer det.Stop()

loop:
	for {
		// Confirmation wins over chunks that are already queued.
		select {
		case <-det.SilenceConfirmed():
			break loop
		default:
		}

		select {
		case <-ctx.Done():
			discard(fmt.Errorf("recorder: %w", ctx.Err()))
			return
		case <-det.SilenceConfirmed():
			break loop
		case chunk, ok := <-stream.Chunks():
			if !ok {
				discard(streamEnded(stream.Err()))
				return
			}
			if _, err := w.Write(chunk); err != nil {
				discard(fmt.Errorf("recorder: %w", err))
				return
			}
			state := det.Feed(chunk)
			if r.observer != nil {
				r.observer(state, w.Duration())
			}
			if cfg.MaxDuration > 0 && w.Duration() >= cfg.MaxDuration {
				slog.Info("recorder: maximum utterance duration reached", "max", cfg.MaxDuration)
				break loop
			}
		}
	}

	det.Stop()
	_ = stream.Close()

	if err := w.Close(); err != nil {
		discard(fmt.Errorf("recorder: %w", err))
		return
	}
	if err := f.Close(); err != nil {
		_ = r.fs.Remove(f.Name())
		s.finish(types.Utterance{}, fmt.Errorf("recorder: close sink: %w", err))
		return
	}

	u := types.Utterance{
		Path:       f.Name(),
		SampleRate: format.SampleRate,
		Channels:   format.Channels,
		Duration:   w.Duration(),
		Bytes:      w.Written(),
	}
	if r.metrics != nil {
		r.metrics.UtteranceDuration.Record(ctx, u.Duration.Seconds())
	}
	slog.Debug("recorder: utterance captured", "path", u.Path, "duration", u.Duration, "bytes", u.Bytes)
	s.finish(u, nil)
}

// streamEnded converts an unexpected end of the capture stream into a device
// error.
func streamEnded(err error) error {
	switch {
	case err == nil:
		return fmt.Errorf("%w: recorder: capture stream ended", types.ErrDevice)
	case errors.Is(err, types.ErrDevice):
		return fmt.Errorf("recorder: capture: %w", err)
	default:
		return fmt.Errorf("%w: recorder: capture: %w", types.ErrDevice, err)
	}
}
