// Package wake defines the Classifier interface for streaming wake-word
// detection backends.
//
// A classifier wraps a black-box keyword-spotting model (e.g., Picovoice
// Porcupine) that consumes fixed-length frames of 16-bit mono PCM and reports,
// per frame, whether one of its keywords ended in that frame. The frame length
// and sample rate are properties of the loaded model and dictate how the
// capture stream is opened and framed.
//
// Classification is synchronous: Process returns immediately with a result,
// making it suitable for the frame-delivery loop of the wake gate.
package wake

// NoMatch is the keyword index reported when a frame contains no keyword.
const NoMatch = -1

// Classifier is a loaded wake-word model.
//
// Implementations must be safe for concurrent use of Release with Process;
// Process itself is only ever called from one goroutine at a time.
type Classifier interface {
	// FrameLength is the exact number of samples Process expects per frame.
	FrameLength() int

	// SampleRate is the sample rate in Hz the model was trained for.
	SampleRate() int

	// Process classifies one frame. It returns the index of the detected
	// keyword (>= 0) or [NoMatch]. Errors are wrapped with
	// types.ErrFrameClassification.
	Process(frame []int16) (int, error)

	// Release frees the model. It is idempotent; Process after Release
	// returns an error.
	Release() error
}
