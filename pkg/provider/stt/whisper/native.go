// This file contains the NativeProvider implementation backed by the
// whisper.cpp CGO bindings. The whisper.cpp static library (libwhisper.a)
// and headers (whisper.h) must be available at link time via LIBRARY_PATH
// and C_INCLUDE_PATH environment variables.

package whisper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/MrWong99/voxgate/pkg/audio"
	"github.com/MrWong99/voxgate/pkg/provider/stt"
	"github.com/MrWong99/voxgate/pkg/types"
)

// whisperSampleRate is the only input rate the whisper models accept.
const whisperSampleRate = 16000

// Compile-time assertion that NativeProvider satisfies stt.Provider.
var _ stt.Provider = (*NativeProvider)(nil)

// NativeProvider implements stt.Provider using whisper.cpp Go bindings
// (CGO), eliminating HTTP overhead entirely. The model is loaded once at
// startup and shared across calls; each call gets its own context.
type NativeProvider struct {
	model    whisperlib.Model
	language string
}

// NativeOption is a functional option for configuring a NativeProvider.
type NativeOption func(*NativeProvider)

// WithNativeLanguage sets the ISO 639-1 language code for transcription
// (e.g., "en", "de", "fr"), or "auto". Defaults to "en".
func WithNativeLanguage(lang string) NativeOption {
	return func(p *NativeProvider) { p.language = lang }
}

// NewNative creates a NativeProvider that loads the whisper.cpp model from
// the given file path. The caller must call Close when the provider is no
// longer needed.
func NewNative(modelPath string, opts ...NativeOption) (*NativeProvider, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}

	p := &NativeProvider{
		model:    model,
		language: defaultLanguage,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Close releases the whisper model. Must be called when the provider is no
// longer needed.
func (p *NativeProvider) Close() error {
	if p.model != nil {
		return p.model.Close()
	}
	return nil
}

// Transcribe implements stt.Provider. The WAV input is downmixed and
// resampled to 16 kHz mono before inference.
func (p *NativeProvider) Transcribe(ctx context.Context, req stt.Request) (types.Transcript, error) {
	if err := ctx.Err(); err != nil {
		return types.Transcript{}, fmt.Errorf("%w: whisper: %w", types.ErrTranscription, err)
	}
	pcm, format, err := audio.DecodeWAV(bytes.NewReader(req.Audio))
	if err != nil {
		return types.Transcript{}, fmt.Errorf("%w: whisper: %w", types.ErrTranscription, err)
	}
	if format.Channels == 2 {
		pcm = audio.StereoToMono(pcm)
		format.Channels = 1
	}
	pcm = audio.ResampleMono16(pcm, format.SampleRate, whisperSampleRate)

	lang := p.language
	if lang == autoLanguage && req.Language != "" {
		lang = req.Language
	}

	text, detected, err := p.infer(pcm, format.Channels, lang)
	if err != nil {
		return types.Transcript{}, fmt.Errorf("%w: %w", types.ErrTranscription, err)
	}
	if lang != autoLanguage {
		detected = lang
	}
	return types.Transcript{
		Text:     text,
		Language: detected,
		Duration: audio.Format{SampleRate: whisperSampleRate, Channels: 1}.DurationOf(len(pcm)),
	}, nil
}

// infer converts the PCM audio to float32, runs whisper.cpp inference using a
// fresh context, and returns the concatenated text and detected language.
func (p *NativeProvider) infer(pcm []byte, channels int, lang string) (string, string, error) {
	samples := pcmToFloat32Mono(pcm, channels)

	// Each context is NOT thread-safe, but the model can be shared across goroutines.
	wctx, err := p.model.NewContext()
	if err != nil {
		return "", "", fmt.Errorf("whisper: create context: %w", err)
	}

	if err := wctx.SetLanguage(lang); err != nil {
		slog.Warn("whisper: failed to set language, using default", "language", lang, "error", err)
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", "", fmt.Errorf("whisper: process audio: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", "", fmt.Errorf("whisper: read segment: %w", err)
		}
		text := strings.TrimSpace(segment.Text)
		if text != "" {
			parts = append(parts, text)
		}
	}

	return strings.Join(parts, " "), wctx.DetectedLanguage(), nil
}
