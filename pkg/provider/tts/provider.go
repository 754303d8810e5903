// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service (Google Cloud Text-to-Speech,
// the OpenAI speech endpoint, ElevenLabs) and turns one phrase of reply text
// into one finite [audio.Clip] ready for playback. Long replies are split into
// phrases by the caller; providers never see more than one phrase at a time.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"

	"github.com/MrWong99/voxgate/pkg/audio"
)

// Voice selects how a phrase is spoken.
type Voice struct {
	// LanguageCode is a BCP-47 tag such as "en-US" or "de-DE".
	LanguageCode string

	// Name is a provider voice name, e.g. "en-US-Standard-D" for Google.
	// Providers with their own voice catalogue may ignore it in favour of
	// their configured voice.
	Name string
}

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize renders text with voice and returns the complete clip.
	// Every failure, including an empty audio payload and ctx cancellation,
	// is wrapped with types.ErrSynthesis.
	Synthesize(ctx context.Context, text string, voice Voice) (audio.Clip, error)
}
