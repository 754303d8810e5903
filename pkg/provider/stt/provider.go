// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider wraps a batch transcription service (e.g., the OpenAI Whisper
// API, a local whisper.cpp server, or Deepgram's pre-recorded endpoint) and
// exposes a uniform interface: one complete recorded utterance in, one
// transcript with its language out. Utterances are always captured in full
// before transcription starts.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"

	"github.com/MrWong99/voxgate/pkg/types"
)

// Request carries one recorded utterance to transcribe.
type Request struct {
	// Audio is a complete WAV file (16-bit PCM).
	Audio []byte

	// Language is an optional ISO 639-1 hint (e.g., "en", "de"). An empty
	// string lets the provider auto-detect the language, if supported;
	// providers configured with a fixed language ignore it.
	Language string
}

// Provider is the abstraction over any STT backend.
type Provider interface {
	// Transcribe converts the utterance in req to text. The returned
	// Transcript carries the detected language when the backend reports one,
	// or the language that was forced, or "" when neither is known.
	//
	// Every failure (network, authentication, unsupported format, ctx
	// cancellation) is wrapped with types.ErrTranscription.
	Transcribe(ctx context.Context, req Request) (types.Transcript, error)
}
