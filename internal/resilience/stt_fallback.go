package resilience

import (
	"context"

	"github.com/MrWong99/voxgate/pkg/provider/stt"
	"github.com/MrWong99/voxgate/pkg/types"
)

// STTFallback implements [stt.Provider] with automatic failover across multiple
// STT backends. Each backend has its own circuit breaker.
type STTFallback struct {
	*FallbackGroup[stt.Provider]
}

// Compile-time interface assertion.
var _ stt.Provider = (*STTFallback)(nil)

// NewSTTFallback creates an [STTFallback] with primary as the preferred backend.
func NewSTTFallback(primary stt.Provider, primaryName string, cfg FallbackConfig) *STTFallback {
	if cfg.Kind == "" {
		cfg.Kind = "stt"
	}
	return &STTFallback{NewFallbackGroup(primary, primaryName, cfg)}
}

// Transcribe sends the utterance to the first healthy backend. The returned
// error always carries types.ErrTranscription.
func (f *STTFallback) Transcribe(ctx context.Context, req stt.Request) (types.Transcript, error) {
	tr, err := ExecuteWithResult(ctx, f.FallbackGroup, func(p stt.Provider) (types.Transcript, error) {
		return p.Transcribe(ctx, req)
	})
	return tr, ensureKind(err, types.ErrTranscription)
}
