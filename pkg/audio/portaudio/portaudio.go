// Package portaudio captures microphone audio through the PortAudio library
// (github.com/gordonklaus/portaudio). It is the portable alternative to the
// parec-based capture on systems without a PulseAudio server.
package portaudio

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	pa "github.com/gordonklaus/portaudio"

	"github.com/MrWong99/voxgate/pkg/audio"
	"github.com/MrWong99/voxgate/pkg/types"
)

const defaultBufferDuration = 32 * time.Millisecond

// Compile-time assertion that Source implements audio.Source.
var _ audio.Source = (*Source)(nil)

// Option is a functional option for configuring a Source.
type Option func(*Source)

// WithDevice selects the input device whose name contains device
// (case-insensitive). Empty uses the system default input.
func WithDevice(device string) Option {
	return func(s *Source) { s.device = device }
}

// WithBufferDuration sets how much audio each read returns.
func WithBufferDuration(d time.Duration) Option {
	return func(s *Source) {
		if d > 0 {
			s.bufferDuration = d
		}
	}
}

// WithLatency requests an input latency. Zero uses the device default low
// latency.
func WithLatency(d time.Duration) Option {
	return func(s *Source) { s.latency = d }
}

// Source implements audio.Source on a PortAudio input device.
type Source struct {
	device         string
	bufferDuration time.Duration
	latency        time.Duration
}

// New creates a Source with the given options.
func New(opts ...Option) *Source {
	s := &Source{bufferDuration: defaultBufferDuration}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Open implements audio.Source. PortAudio is initialised per stream and
// terminated when the stream closes; the library reference-counts both.
func (s *Source) Open(ctx context.Context, f audio.Format) (audio.Stream, error) {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return nil, fmt.Errorf("%w: portaudio: invalid format %s", types.ErrDevice, f)
	}
	if err := pa.Initialize(); err != nil {
		return nil, fmt.Errorf("%w: portaudio: initialize: %w", types.ErrDevice, err)
	}

	frames := f.SamplesFor(s.bufferDuration)
	if frames <= 0 {
		frames = 512
	}
	buf := make([]int16, frames*f.Channels)

	paStream, err := s.openStream(f, frames, buf)
	if err != nil {
		_ = pa.Terminate()
		return nil, err
	}
	if err := paStream.Start(); err != nil {
		_ = paStream.Close()
		_ = pa.Terminate()
		return nil, fmt.Errorf("%w: portaudio: start: %w", types.ErrDevice, err)
	}

	st := &stream{
		format: f,
		pa:     paStream,
		buf:    buf,
		ch:     make(chan []byte, 64),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go st.run()
	stop := context.AfterFunc(ctx, func() { _ = st.Close() })
	go func() {
		<-st.done
		stop()
	}()
	return st, nil
}

func (s *Source) openStream(f audio.Format, frames int, buf []int16) (*pa.Stream, error) {
	if s.device == "" {
		st, err := pa.OpenDefaultStream(f.Channels, 0, float64(f.SampleRate), frames, buf)
		if err != nil {
			return nil, fmt.Errorf("%w: portaudio: open default stream: %w", types.ErrDevice, err)
		}
		return st, nil
	}

	devices, err := pa.Devices()
	if err != nil {
		return nil, fmt.Errorf("%w: portaudio: list devices: %w", types.ErrDevice, err)
	}
	dev := FindInputDevice(devices, s.device, f.Channels)
	if dev == nil {
		return nil, fmt.Errorf("%w: portaudio: no input device matching %q", types.ErrDevice, s.device)
	}
	latency := s.latency
	if latency <= 0 {
		latency = dev.DefaultLowInputLatency
	}
	params := pa.StreamParameters{
		Input: pa.StreamDeviceParameters{
			Device:   dev,
			Channels: f.Channels,
			Latency:  latency,
		},
		SampleRate:      float64(f.SampleRate),
		FramesPerBuffer: frames,
	}
	st, err := pa.OpenStream(params, buf)
	if err != nil {
		return nil, fmt.Errorf("%w: portaudio: open %q: %w", types.ErrDevice, dev.Name, err)
	}
	return st, nil
}

// FindInputDevice returns the first device whose name contains name
// (case-insensitive) and that offers at least channels input channels.
func FindInputDevice(devices []*pa.DeviceInfo, name string, channels int) *pa.DeviceInfo {
	needle := strings.ToLower(name)
	for _, d := range devices {
		if d == nil || d.MaxInputChannels < channels {
			continue
		}
		if strings.Contains(strings.ToLower(d.Name), needle) {
			return d
		}
	}
	return nil
}

// stream reads from one PortAudio input stream on its own goroutine. The
// PortAudio handle is only touched by that goroutine.
type stream struct {
	format audio.Format
	pa     *pa.Stream
	buf    []int16
	ch     chan []byte
	stop   chan struct{}
	done   chan struct{}

	mu   sync.Mutex
	err  error
	once sync.Once
}

func (st *stream) run() {
	defer close(st.done)
	defer close(st.ch)
	defer func() {
		_ = st.pa.Stop()
		_ = st.pa.Close()
		_ = pa.Terminate()
	}()
	for {
		select {
		case <-st.stop:
			return
		default:
		}
		if err := st.pa.Read(); err != nil {
			// Overflow drops samples but the stream is still healthy.
			if err == pa.InputOverflowed {
				continue
			}
			st.mu.Lock()
			st.err = fmt.Errorf("%w: portaudio: read: %w", types.ErrDevice, err)
			st.mu.Unlock()
			return
		}
		chunk := audio.EncodePCM16(st.buf)
		select {
		case st.ch <- chunk:
		case <-st.stop:
			return
		}
	}
}

func (st *stream) Format() audio.Format { return st.format }

func (st *stream) Chunks() <-chan []byte { return st.ch }

func (st *stream) Err() error {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.err
}

// Close stops capture after the read in progress and waits for the device to
// be released.
func (st *stream) Close() error {
	st.once.Do(func() {
		close(st.stop)
		<-st.done
	})
	return nil
}
