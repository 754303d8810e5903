package audio

import "time"

// BytesPerSample is the width of one signed 16-bit little-endian PCM sample.
const BytesPerSample = 2

// Format describes the sample rate and channel count of a PCM s16le stream.
type Format struct {
	SampleRate int
	Channels   int
}

// BytesPerSecond returns the byte rate of the format.
func (f Format) BytesPerSecond() int {
	return f.SampleRate * f.Channels * BytesPerSample
}

// SamplesFor returns how many samples (per channel) cover d at this format.
func (f Format) SamplesFor(d time.Duration) int {
	return int(int64(f.SampleRate) * int64(d) / int64(time.Second))
}

// DurationOf returns the playback duration of n bytes of PCM in this format.
func (f Format) DurationOf(n int) time.Duration {
	bps := f.BytesPerSecond()
	if bps == 0 {
		return 0
	}
	return time.Duration(int64(n) * int64(time.Second) / int64(bps))
}

// String returns a human-readable form, e.g. "16000Hz mono".
func (f Format) String() string {
	return formatString(f.SampleRate, f.Channels)
}

// AudioFrame is one fixed-length block of mono samples handed to a wake-word
// classifier. Every frame produced by a [FrameAssembler] has exactly the
// assembler's frame length.
type AudioFrame struct {
	// Samples holds the decoded signed 16-bit samples.
	Samples []int16

	// SampleRate in Hz (16000 for Porcupine).
	SampleRate int

	// Timestamp marks the frame's start offset relative to the last assembler reset.
	Timestamp time.Duration
}

// Encoding identifies the container of a [Clip].
type Encoding string

const (
	// EncodingPCM is headerless s16le PCM; the clip's Format describes it.
	EncodingPCM Encoding = "pcm"

	// EncodingWAV is a RIFF/WAVE file.
	EncodingWAV Encoding = "wav"

	// EncodingMP3 is an MPEG layer III stream.
	EncodingMP3 Encoding = "mp3"
)

// Ext returns the file extension (including the dot) used when the clip is
// written to disk.
func (e Encoding) Ext() string {
	switch e {
	case EncodingWAV, EncodingPCM:
		return ".wav"
	case EncodingMP3:
		return ".mp3"
	default:
		return ".bin"
	}
}

// Clip is a complete, finite piece of audio ready for playback.
type Clip struct {
	// Data holds the encoded bytes.
	Data []byte

	// Encoding names the container of Data.
	Encoding Encoding

	// Format is only meaningful for EncodingPCM.
	Format Format
}
