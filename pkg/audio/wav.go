package audio

import (
	"errors"
	"fmt"
	"io"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// wavFormatPCM is the RIFF audio-format tag for integer PCM.
const wavFormatPCM = 1

// WAVWriter streams s16le PCM into a WAV container. The RIFF header sizes are
// patched on Close, so the destination must be seekable.
type WAVWriter struct {
	enc    *wav.Encoder
	format Format
	carry  []byte
	n      int
}

// NewWAVWriter starts a WAV stream on ws.
func NewWAVWriter(ws io.WriteSeeker, f Format) *WAVWriter {
	return &WAVWriter{
		enc:    wav.NewEncoder(ws, f.SampleRate, 16, f.Channels, wavFormatPCM),
		format: f,
	}
}

// Write appends PCM bytes. An odd trailing byte is held until the next call.
func (w *WAVWriter) Write(pcm []byte) (int, error) {
	data := append(w.carry, pcm...)
	whole := len(data) - len(data)%BytesPerSample
	w.carry = append([]byte(nil), data[whole:]...)
	if whole == 0 {
		return len(pcm), nil
	}

	samples := DecodePCM16(data[:whole])
	ints := make([]int, len(samples))
	for i, s := range samples {
		ints[i] = int(s)
	}
	buf := &goaudio.IntBuffer{
		Format: &goaudio.Format{
			NumChannels: w.format.Channels,
			SampleRate:  w.format.SampleRate,
		},
		Data:           ints,
		SourceBitDepth: 16,
	}
	if err := w.enc.Write(buf); err != nil {
		return 0, fmt.Errorf("audio: write wav: %w", err)
	}
	w.n += whole
	return len(pcm), nil
}

// Written returns the number of PCM bytes committed to the container.
func (w *WAVWriter) Written() int { return w.n }

// Duration returns the playback duration of the committed PCM.
func (w *WAVWriter) Duration() time.Duration { return w.format.DurationOf(w.n) }

// Close finalises the RIFF header. It does not close the underlying writer.
func (w *WAVWriter) Close() error {
	if err := w.enc.Close(); err != nil {
		return fmt.Errorf("audio: finalise wav: %w", err)
	}
	return nil
}

// ErrNotWAV is returned by [DecodeWAV] for input without a valid RIFF/WAVE header.
var ErrNotWAV = errors.New("audio: not a wav file")

// DecodeWAV reads a 16-bit PCM WAV file and returns its samples as s16le bytes
// together with the stored format.
func DecodeWAV(r io.ReadSeeker) ([]byte, Format, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, Format{}, ErrNotWAV
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, Format{}, fmt.Errorf("audio: decode wav: %w", err)
	}
	if dec.BitDepth != 16 {
		return nil, Format{}, fmt.Errorf("audio: decode wav: unsupported bit depth %d", dec.BitDepth)
	}
	samples := make([]int16, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = int16(v)
	}
	f := Format{SampleRate: int(dec.SampleRate), Channels: int(dec.NumChans)}
	return EncodePCM16(samples), f, nil
}
