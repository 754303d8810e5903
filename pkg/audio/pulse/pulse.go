// Package pulse captures microphone audio from PulseAudio (or PipeWire's
// Pulse server) by running the parec utility and reading raw s16le PCM from
// its standard output.
//
// Usage:
//
//	src := pulse.New(pulse.WithDevice("alsa_input.usb-mic.mono-fallback"))
//	stream, err := src.Open(ctx, audio.Format{SampleRate: 16000, Channels: 1})
//	for chunk := range stream.Chunks() { ... }
package pulse

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/voxgate/pkg/audio"
	"github.com/MrWong99/voxgate/pkg/types"
)

const (
	defaultCommand   = "parec"
	defaultChunkSize = 4096

	// normVolume is parec's linear 100 % volume.
	normVolume = 65536
)

// Compile-time assertion that Source implements audio.Source.
var _ audio.Source = (*Source)(nil)

// Option is a functional option for configuring a Source.
type Option func(*Source)

// WithDevice selects the PulseAudio source by name. Empty uses the server
// default.
func WithDevice(device string) Option {
	return func(s *Source) { s.device = device }
}

// WithLatency requests a capture latency from the server.
func WithLatency(d time.Duration) Option {
	return func(s *Source) { s.latency = d }
}

// WithVolume sets the capture volume as a linear factor (1.0 = 100 %).
func WithVolume(v float64) Option {
	return func(s *Source) { s.volume = v }
}

// WithCommand replaces the parec binary path.
func WithCommand(cmd string) Option {
	return func(s *Source) { s.command = cmd }
}

// WithChunkSize sets the read size for stdout chunks.
func WithChunkSize(n int) Option {
	return func(s *Source) {
		if n > 0 {
			s.chunkSize = n
		}
	}
}

// Source implements audio.Source by spawning parec.
type Source struct {
	command   string
	device    string
	latency   time.Duration
	volume    float64
	chunkSize int
}

// New creates a Source with the given options.
func New(opts ...Option) *Source {
	s := &Source{command: defaultCommand, chunkSize: defaultChunkSize}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Args returns the parec arguments used for capture at f.
func (s *Source) Args(f audio.Format) []string {
	args := []string{
		"--format=s16le",
		"--rate=" + strconv.Itoa(f.SampleRate),
		"--channels=" + strconv.Itoa(f.Channels),
	}
	if s.device != "" {
		args = append(args, "--device="+s.device)
	}
	if s.latency > 0 {
		args = append(args, "--latency-msec="+strconv.FormatInt(s.latency.Milliseconds(), 10))
	}
	if s.volume > 0 {
		args = append(args, "--volume="+strconv.Itoa(int(s.volume*normVolume)))
	}
	return args
}

// Open implements audio.Source. The stream also ends when ctx is cancelled.
func (s *Source) Open(ctx context.Context, f audio.Format) (audio.Stream, error) {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return nil, fmt.Errorf("%w: pulse: invalid format %s", types.ErrDevice, f)
	}
	cmd := exec.Command(s.command, s.Args(f)...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: pulse: stdout pipe: %w", types.ErrDevice, err)
	}
	st := &stream{
		format: f,
		cmd:    cmd,
		ch:     make(chan []byte, 64),
		done:   make(chan struct{}),
	}
	cmd.Stderr = &st.stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: pulse: start %s: %w", types.ErrDevice, s.command, err)
	}

	go st.read(stdout, s.chunkSize)
	stop := context.AfterFunc(ctx, func() { _ = st.Close() })
	go func() {
		<-st.done
		stop()
	}()
	return st, nil
}

// stream is one running parec process.
type stream struct {
	format audio.Format
	cmd    *exec.Cmd
	ch     chan []byte
	done   chan struct{}
	stderr lockedBuffer

	mu      sync.Mutex
	err     error
	closing bool
	once    sync.Once
}

func (st *stream) read(r io.Reader, size int) {
	defer close(st.done)
	defer close(st.ch)
	for {
		buf := make([]byte, size)
		n, err := r.Read(buf)
		if n > 0 {
			st.ch <- buf[:n]
		}
		if err != nil {
			waitErr := st.cmd.Wait()
			st.mu.Lock()
			if !st.closing {
				st.err = st.failure(err, waitErr)
			}
			st.mu.Unlock()
			return
		}
	}
}

func (st *stream) failure(readErr, waitErr error) error {
	msg := strings.TrimSpace(st.stderr.String())
	cause := waitErr
	if cause == nil && !errors.Is(readErr, io.EOF) {
		cause = readErr
	}
	if cause == nil {
		cause = errors.New("capture process exited")
	}
	if msg != "" {
		return fmt.Errorf("%w: pulse: %w: %s", types.ErrDevice, cause, msg)
	}
	return fmt.Errorf("%w: pulse: %w", types.ErrDevice, cause)
}

func (st *stream) Format() audio.Format { return st.format }

func (st *stream) Chunks() <-chan []byte { return st.ch }

func (st *stream) Err() error {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.err
}

// Close kills parec and waits for the reader to drain.
func (st *stream) Close() error {
	st.once.Do(func() {
		st.mu.Lock()
		st.closing = true
		st.mu.Unlock()
		if st.cmd.Process != nil {
			_ = st.cmd.Process.Kill()
		}
		// Unblock a reader stuck on a full channel.
		go func() {
			for range st.ch {
			}
		}()
		<-st.done
	})
	return nil
}

// lockedBuffer collects stderr from the exec goroutine.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.buf.Len() > 4096 {
		return len(p), nil
	}
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
