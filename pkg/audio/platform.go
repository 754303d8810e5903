// Package audio defines the PCM primitives and device abstractions of the
// voxgate pipeline.
//
// The package has two halves:
//
//   - Pure transforms with owned buffers: [FrameAssembler] turns an arbitrary
//     byte stream into classifier-sized [AudioFrame] values, and
//     [EndpointDetector] turns the same kind of stream into voice-active /
//     voice-silent decisions with a debounced "silence confirmed" signal.
//   - Device boundaries: [Source] opens a capture [Stream] and [Player] plays a
//     finished [Clip]. Implementations live in adapter packages
//     (audio/pulse, audio/portaudio, audio/sox).
//
// All audio is signed 16-bit little-endian PCM.
package audio

import (
	"context"
)

// Stream is an open capture session delivering raw s16le chunks.
//
// A Stream is exclusively owned by whoever opened it. Chunks are delivered in
// capture order; chunk sizes are arbitrary and carry no alignment guarantee
// beyond whole bytes. The chunk channel is closed when the stream ends, either
// because Close was called or because the device failed; Err reports the
// latter.
type Stream interface {
	// Format returns the actual format of the delivered bytes. It may differ
	// from the requested format if the device could not honour it.
	Format() Format

	// Chunks returns the read-only channel of captured byte chunks. The same
	// channel is returned on every call. Each chunk is owned by the receiver.
	Chunks() <-chan []byte

	// Err returns the device error that terminated the stream, or nil if the
	// stream is still running or was closed by the owner.
	Err() error

	// Close stops capture and releases the device. Calling Close more than once
	// is safe and returns nil.
	Close() error
}

// Source opens capture streams on an audio input device.
//
// Implementations must be safe for concurrent use, although callers are
// expected to hold at most one open Stream per device at a time.
type Source interface {
	// Open starts capture at the requested format. Failures are wrapped with
	// types.ErrDevice.
	Open(ctx context.Context, f Format) (Stream, error)
}

// Player plays finished clips on an output device.
type Player interface {
	// Play blocks until clip has been fully played or ctx is cancelled.
	// Failures are wrapped with types.ErrPlayback.
	Play(ctx context.Context, clip Clip) error
}
