package audio

import (
	"sync"
	"time"
)

// Reference endpointing values.
const (
	DefaultVoiceThreshold  = 300
	DefaultSilenceDuration = 2 * time.Second
	DefaultWindowDuration  = 100 * time.Millisecond
)

// VoiceState is the classification of the most recent analysis window.
type VoiceState int

const (
	// VoiceUndetermined means no complete window has been analysed yet.
	VoiceUndetermined VoiceState = iota

	// VoiceActive means the window's mean amplitude exceeded the threshold.
	VoiceActive

	// VoiceSilent means the window's mean amplitude was at or below the threshold.
	VoiceSilent
)

// String returns the human-readable name of the state.
func (s VoiceState) String() string {
	switch s {
	case VoiceActive:
		return "ACTIVE"
	case VoiceSilent:
		return "SILENT"
	default:
		return "UNDETERMINED"
	}
}

// EndpointConfig tunes an [EndpointDetector]. Zero fields take the reference
// defaults.
type EndpointConfig struct {
	// Format of the fed bytes. Only mono is analysed; multi-channel input is
	// treated as interleaved samples.
	Format Format

	// Threshold is the mean absolute amplitude above which a window is active.
	Threshold float64

	// Silence is the debounce duration of continuous silence before the
	// detector confirms the end of the utterance.
	Silence time.Duration

	// Window is the analysis window duration.
	Window time.Duration
}

func (c EndpointConfig) withDefaults() EndpointConfig {
	if c.Threshold <= 0 {
		c.Threshold = DefaultVoiceThreshold
	}
	if c.Silence <= 0 {
		c.Silence = DefaultSilenceDuration
	}
	if c.Window <= 0 {
		c.Window = DefaultWindowDuration
	}
	if c.Format.Channels <= 0 {
		c.Format.Channels = 1
	}
	return c
}

// EndpointOption is a functional option for [NewEndpointDetector].
type EndpointOption func(*EndpointDetector)

// WithClock replaces the wall clock used for the silence debounce timer.
func WithClock(c Clock) EndpointOption {
	return func(d *EndpointDetector) { d.clock = c }
}

// EndpointDetector classifies a byte stream in fixed-duration windows by their
// full-wave rectified mean amplitude and confirms the end of an utterance once
// silence has lasted for the configured debounce duration.
//
// Any active window cancels a pending silence timer. A silent window starts the
// timer when none is pending, including the very first window. Silence is
// confirmed at most once per detector: [EndpointDetector.SilenceConfirmed] is
// closed when the timer elapses.
//
// Feed must be called from a single goroutine; the timer callback may run on
// another and is synchronised internally.
type EndpointDetector struct {
	cfg         EndpointConfig
	windowBytes int
	clock       Clock

	buf   []byte
	state VoiceState
	level float64

	mu        sync.Mutex
	timer     Timer
	gen       uint64
	fired     bool
	stopped   bool
	confirmed chan struct{}
}

// NewEndpointDetector creates a detector for cfg.
func NewEndpointDetector(cfg EndpointConfig, opts ...EndpointOption) *EndpointDetector {
	cfg = cfg.withDefaults()
	d := &EndpointDetector{
		cfg:       cfg,
		clock:     SystemClock,
		confirmed: make(chan struct{}),
	}
	for _, o := range opts {
		o(d)
	}
	samples := cfg.Format.SamplesFor(cfg.Window) * cfg.Format.Channels
	d.windowBytes = max(samples, 1) * BytesPerSample
	return d
}

// WindowBytes returns the number of bytes consumed per analysis window.
func (d *EndpointDetector) WindowBytes() int { return d.windowBytes }

// Feed appends chunk and analyses every complete window now available. It
// returns the state of the last analysed window, or the previous state when
// chunk did not complete a window.
func (d *EndpointDetector) Feed(chunk []byte) VoiceState {
	d.buf = append(d.buf, chunk...)

	off := 0
	for len(d.buf)-off >= d.windowBytes {
		window := DecodePCM16(d.buf[off : off+d.windowBytes])
		off += d.windowBytes

		d.level = MeanAbs(window)
		if d.level > d.cfg.Threshold {
			d.state = VoiceActive
			d.cancelTimer()
		} else {
			d.state = VoiceSilent
			d.startTimer()
		}
	}

	if off > 0 {
		rest := copy(d.buf, d.buf[off:])
		d.buf = d.buf[:rest]
	}
	return d.state
}

// Level returns the mean absolute amplitude of the last analysed window.
func (d *EndpointDetector) Level() float64 { return d.level }

// SilenceConfirmed returns a channel that is closed once the silence debounce
// elapses. It is never closed if [EndpointDetector.Stop] runs first.
func (d *EndpointDetector) SilenceConfirmed() <-chan struct{} { return d.confirmed }

// Stop cancels any pending silence timer. Feeding after Stop still classifies
// windows but never confirms silence.
func (d *EndpointDetector) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	d.stopLocked()
}

// TimerPending reports whether a silence countdown is running.
func (d *EndpointDetector) TimerPending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}

func (d *EndpointDetector) startTimer() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil || d.fired || d.stopped {
		return
	}
	gen := d.gen
	d.timer = d.clock.AfterFunc(d.cfg.Silence, func() { d.fire(gen) })
}

func (d *EndpointDetector) cancelTimer() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopLocked()
}

func (d *EndpointDetector) stopLocked() {
	if d.timer == nil {
		return
	}
	d.timer.Stop()
	d.timer = nil
	// A callback already in flight carries the old generation and is ignored.
	d.gen++
}

func (d *EndpointDetector) fire(gen uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if gen != d.gen || d.fired || d.stopped {
		return
	}
	d.fired = true
	d.timer = nil
	close(d.confirmed)
}
