// Package types defines the shared types used across all voxgate packages.
//
// These types form the lingua franca between the capture pipeline, the turn
// orchestrator, and the provider adapters. They are intentionally minimal; each
// package defines its own domain types, but cross-cutting data structures live
// here to avoid circular imports.
package types

import "time"

// DefaultLanguage is the base language used whenever no language has been
// detected for a turn.
const DefaultLanguage = "en"

// Transcript is the result of transcribing one recorded utterance.
type Transcript struct {
	// Text is the transcribed speech content. Empty when nothing was said.
	Text string

	// Language is the detected or configured language, either an ISO 639-1
	// code ("en") or a full English name ("english") depending on the
	// provider. Empty when unknown.
	Language string

	// Duration is the length of the transcribed audio, if reported.
	Duration time.Duration
}

// Utterance is the immutable result of a completed recording session: a WAV
// file on the recorder's filesystem.
type Utterance struct {
	// Path locates the WAV file. The turn that receives the utterance owns the
	// file and removes it once transcription is done.
	Path string

	// SampleRate and Channels describe the PCM stored in the file.
	SampleRate int
	Channels   int

	// Duration is the captured audio length.
	Duration time.Duration

	// Bytes is the number of PCM bytes captured.
	Bytes int
}
