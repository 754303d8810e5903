package audio

import (
	"encoding/binary"
	"time"
)

// FrameAssembler accumulates raw s16le bytes and slices them into fixed-length
// [AudioFrame] values. Bytes that do not fill a whole frame are retained for
// the next call to [FrameAssembler.Append]; they are only discarded by
// [FrameAssembler.Reset].
//
// A FrameAssembler owns its buffer and is not safe for concurrent use.
type FrameAssembler struct {
	frameLength int
	sampleRate  int
	buf         []byte
	emitted     int64
}

// NewFrameAssembler returns an assembler producing frames of frameLength
// samples at sampleRate. frameLength must be positive.
func NewFrameAssembler(frameLength, sampleRate int) *FrameAssembler {
	if frameLength <= 0 {
		panic("audio: frame length must be positive")
	}
	return &FrameAssembler{
		frameLength: frameLength,
		sampleRate:  sampleRate,
	}
}

// FrameLength returns the number of samples per emitted frame.
func (a *FrameAssembler) FrameLength() int { return a.frameLength }

// Append adds chunk to the internal buffer and returns every complete frame
// now available, in order. It returns nil when less than one frame is buffered.
func (a *FrameAssembler) Append(chunk []byte) []AudioFrame {
	a.buf = append(a.buf, chunk...)

	need := a.frameLength * BytesPerSample
	n := len(a.buf) / need
	if n == 0 {
		return nil
	}

	frames := make([]AudioFrame, 0, n)
	off := 0
	for range n {
		samples := make([]int16, a.frameLength)
		for i := range samples {
			samples[i] = int16(binary.LittleEndian.Uint16(a.buf[off+i*BytesPerSample:]))
		}
		frames = append(frames, AudioFrame{
			Samples:    samples,
			SampleRate: a.sampleRate,
			Timestamp:  a.offset(),
		})
		a.emitted++
		off += need
	}

	// Compact the remainder to the front so the buffer does not grow without bound.
	rest := copy(a.buf, a.buf[off:])
	a.buf = a.buf[:rest]
	return frames
}

// Pending returns the number of buffered bytes not yet part of a frame.
func (a *FrameAssembler) Pending() int { return len(a.buf) }

// Remainder returns a copy of the buffered bytes not yet part of a frame.
func (a *FrameAssembler) Remainder() []byte {
	return append([]byte(nil), a.buf...)
}

// Reset discards all buffered bytes and restarts frame timestamps at zero.
func (a *FrameAssembler) Reset() {
	a.buf = a.buf[:0]
	a.emitted = 0
}

func (a *FrameAssembler) offset() time.Duration {
	if a.sampleRate <= 0 {
		return 0
	}
	samples := a.emitted * int64(a.frameLength)
	return time.Duration(samples * int64(time.Second) / int64(a.sampleRate))
}
