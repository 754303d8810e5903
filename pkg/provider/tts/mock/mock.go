// Package mock provides a test double for the tts.Provider interface.
//
// By default every phrase is "synthesised" into an MP3 clip whose payload is
// the phrase text itself, which lets tests assert playback order by reading
// the clips back.
//
// Example:
//
//	p := &mock.Provider{}
//	clip, _ := p.Synthesize(ctx, "Hello.", tts.VoiceFor("en"))
//	// string(clip.Data) == "Hello."
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/voxgate/pkg/audio"
	"github.com/MrWong99/voxgate/pkg/provider/tts"
)

// SynthesizeCall records a single invocation of Synthesize.
type SynthesizeCall struct {
	// Ctx is the context passed to Synthesize.
	Ctx context.Context
	// Text is the phrase passed to Synthesize.
	Text string
	// Voice is the Voice passed to Synthesize.
	Voice tts.Voice
}

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// Clip, if non-nil, is returned for every successful call instead of the
	// echo clip.
	Clip *audio.Clip

	// Err, if non-nil, is returned as the error from every call.
	Err error

	// ErrFunc, if non-nil, is consulted per call; a non-nil result is
	// returned as the error. It takes precedence over Err.
	ErrFunc func(text string) error

	// SynthesizeCalls records every call to Synthesize.
	SynthesizeCalls []SynthesizeCall
}

// Synthesize records the call and returns the configured result.
func (p *Provider) Synthesize(ctx context.Context, text string, voice tts.Voice) (audio.Clip, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SynthesizeCalls = append(p.SynthesizeCalls, SynthesizeCall{Ctx: ctx, Text: text, Voice: voice})
	if p.ErrFunc != nil {
		if err := p.ErrFunc(text); err != nil {
			return audio.Clip{}, err
		}
	} else if p.Err != nil {
		return audio.Clip{}, p.Err
	}
	if p.Clip != nil {
		return *p.Clip, nil
	}
	return audio.Clip{Data: []byte(text), Encoding: audio.EncodingMP3}, nil
}

// CallCount returns the number of Synthesize calls. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.SynthesizeCalls)
}

// Texts returns the phrases passed to Synthesize, in call order.
func (p *Provider) Texts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.SynthesizeCalls))
	for i, c := range p.SynthesizeCalls {
		out[i] = c.Text
	}
	return out
}

// Voices returns the voices passed to Synthesize, in call order.
func (p *Provider) Voices() []tts.Voice {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]tts.Voice, len(p.SynthesizeCalls))
	for i, c := range p.SynthesizeCalls {
		out[i] = c.Voice
	}
	return out
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SynthesizeCalls = nil
}

// Ensure Provider implements tts.Provider at compile time.
var _ tts.Provider = (*Provider)(nil)
