package types

import "errors"

// Error kinds. Adapters wrap failures with the matching kind so that callers
// can classify them with errors.Is regardless of the backend:
//
//	return fmt.Errorf("%w: openai: %w", types.ErrTranscription, err)
var (
	// ErrInit marks fatal startup failures: the classifier or a required
	// credential is unavailable.
	ErrInit = errors.New("init error")

	// ErrDevice marks capture or playback device failures.
	ErrDevice = errors.New("device error")

	// ErrTranscription marks speech-to-text failures (network, auth, format).
	ErrTranscription = errors.New("transcription error")

	// ErrCompletion marks response-generation failures.
	ErrCompletion = errors.New("completion error")

	// ErrSynthesis marks text-to-speech failures.
	ErrSynthesis = errors.New("synthesis error")

	// ErrPlayback marks failures while playing synthesized audio.
	ErrPlayback = errors.New("playback error")

	// ErrFrameClassification marks a per-frame wake-word classifier failure.
	ErrFrameClassification = errors.New("frame classification error")
)

// Kind returns the first error kind found in err's chain, or nil.
func Kind(err error) error {
	for _, k := range []error{
		ErrInit, ErrDevice, ErrTranscription, ErrCompletion,
		ErrSynthesis, ErrPlayback, ErrFrameClassification,
	} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
