package whisper

import "github.com/MrWong99/voxgate/pkg/audio"

// pcmToFloat32Mono converts 16-bit signed little-endian PCM to float32 samples
// normalised to [-1.0, 1.0], averaging all channels per frame. A trailing
// partial frame is ignored.
func pcmToFloat32Mono(pcm []byte, channels int) []float32 {
	channels = max(channels, 1)
	samples := audio.DecodePCM16(pcm)
	frames := len(samples) / channels
	mono := make([]float32, frames)
	for i := range frames {
		var sum float32
		for ch := range channels {
			sum += float32(samples[i*channels+ch]) / 32768.0
		}
		mono[i] = sum / float32(channels)
	}
	return mono
}
