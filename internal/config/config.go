// Package config provides the configuration schema, loader, and provider
// registry for the voxgate voice assistant.
//
// Every tunable of the pipeline lives in one YAML document: wake-word
// detection, capture, the utterance recorder, the turn flow, the remote
// providers and playback. Credentials may additionally come from the
// environment; see [ApplyEnv].
package config

import (
	"log/slog"
	"time"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Level maps l to a [slog.Level]. Unknown values map to info.
func (l LogLevel) Level() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Defaults applied by [LoadFromReader] to fields left empty.
const (
	DefaultWakeProvider     = "porcupine"
	DefaultCaptureProvider  = "pulse"
	DefaultPlaybackProvider = "sox"
	DefaultPlaybackCommand  = "play"
	DefaultThreshold        = 300.0
	DefaultSilence          = 2 * time.Second
	DefaultWindow           = 100 * time.Millisecond
	DefaultAckDelay         = 1500 * time.Millisecond
	DefaultLanguage         = "en"
)

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Wake      WakeConfig      `yaml:"wake"`
	Capture   CaptureConfig   `yaml:"capture"`
	Recorder  RecorderConfig  `yaml:"recorder"`
	Turn      TurnConfig      `yaml:"turn"`
	Providers ProvidersConfig `yaml:"providers"`
	Playback  PlaybackConfig  `yaml:"playback"`
}

// ServerConfig holds the operational HTTP surface and logging settings.
type ServerConfig struct {
	// ListenAddr is the address serving /metrics, /healthz and /readyz
	// (e.g., ":9090"). Empty disables the HTTP server.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// WakeConfig configures the wake-word classifier.
type WakeConfig struct {
	// Provider selects the classifier implementation. Only "porcupine" ships.
	Provider string `yaml:"provider"`

	// AccessKey is the Picovoice access key. PORCUPINE_ACCESS_KEY fills it
	// when empty.
	AccessKey string `yaml:"access_key"`

	// ModelPath overrides the bundled acoustic model (needed for non-English
	// keywords).
	ModelPath string `yaml:"model_path"`

	// KeywordPaths lists custom .ppn keyword files.
	KeywordPaths []string `yaml:"keyword_paths"`

	// BuiltinKeywords lists bundled keywords such as "jarvis" or "computer".
	BuiltinKeywords []string `yaml:"builtin_keywords"`

	// Sensitivities holds one value in [0, 1] per keyword. Empty uses 0.5.
	Sensitivities []float32 `yaml:"sensitivities"`

	// WakePhrases are the spoken forms of the keywords. A transcript starting
	// with one of them has it removed before completion.
	WakePhrases []string `yaml:"wake_phrases"`
}

// Keywords returns the number of configured keywords.
func (w WakeConfig) Keywords() int {
	return len(w.KeywordPaths) + len(w.BuiltinKeywords)
}

// CaptureConfig selects the microphone backend.
type CaptureConfig struct {
	// Provider is "pulse" (parec) or "portaudio".
	Provider string `yaml:"provider"`

	// Device names the input device. Empty uses the system default.
	Device string `yaml:"device"`

	// LatencyMS is the requested capture latency in milliseconds.
	LatencyMS int `yaml:"latency_ms"`

	// Volume is a linear capture gain (1.0 = 100 %). Only pulse honours it.
	Volume float64 `yaml:"volume"`
}

// Latency returns LatencyMS as a duration.
func (c CaptureConfig) Latency() time.Duration {
	return time.Duration(c.LatencyMS) * time.Millisecond
}

// RecorderConfig tunes utterance endpointing. Threshold and Silence are
// re-read on every turn and may change at runtime.
type RecorderConfig struct {
	// Threshold is the mean absolute amplitude above which a window counts
	// as voice.
	Threshold float64 `yaml:"threshold"`

	// Silence is how long the voice must stay below Threshold before the
	// utterance ends.
	Silence time.Duration `yaml:"silence"`

	// Window is the analysis window length.
	Window time.Duration `yaml:"window"`

	// MaxDuration caps one utterance. Zero means no cap.
	MaxDuration time.Duration `yaml:"max_duration"`

	// TempDir holds in-flight utterance files. Empty uses the OS default.
	TempDir string `yaml:"temp_dir"`
}

// TurnConfig tunes the conversational turn.
type TurnConfig struct {
	// AckText is spoken right after the wake word. Empty disables it.
	AckText string `yaml:"ack_text"`

	// AckDelay is waited after the acknowledgement before recording.
	AckDelay time.Duration `yaml:"ack_delay"`

	// SystemPrompt is sent with every completion request.
	SystemPrompt string `yaml:"system_prompt"`

	// DefaultLanguage is used for speech when no language was detected.
	DefaultLanguage string `yaml:"default_language"`

	// Language forces the transcription language. Empty auto-detects.
	Language string `yaml:"language"`

	// MaxPhraseChars splits long reply sentences before synthesis.
	MaxPhraseChars int `yaml:"max_phrase_chars"`

	// Temperature and MaxTokens are passed to the completion provider.
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// ProvidersConfig declares which provider implementation to use for each
// remote stage. Each entry selects a named provider registered in the
// [Registry].
type ProvidersConfig struct {
	STT ProviderEntry `yaml:"stt"`
	LLM ProviderEntry `yaml:"llm"`
	TTS ProviderEntry `yaml:"tts"`

	// Fallbacks are tried in order when the primary's circuit is open or a
	// call fails.
	Fallbacks FallbacksConfig `yaml:"fallbacks"`
}

// FallbacksConfig lists secondary providers per stage.
type FallbacksConfig struct {
	STT []ProviderEntry `yaml:"stt"`
	LLM []ProviderEntry `yaml:"llm"`
	TTS []ProviderEntry `yaml:"tts"`
}

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "openai", "google").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "gpt-4o-mini", "whisper-1").
	Model string `yaml:"model"`

	// Options holds provider-specific values not covered by the fields
	// above, such as "voice", "language" or Google service-account fields.
	Options map[string]any `yaml:"options"`
}

// Option returns the string option key, or "" if it is absent or not a
// string.
func (e ProviderEntry) Option(key string) string {
	s, _ := e.Options[key].(string)
	return s
}

// FloatOption returns the numeric option key, or 0.
func (e ProviderEntry) FloatOption(key string) float64 {
	switch v := e.Options[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}

// PlaybackConfig selects the speaker backend.
type PlaybackConfig struct {
	// Provider selects the player. Only "sox" ships.
	Provider string `yaml:"provider"`

	// Command is the sox play binary.
	Command string `yaml:"command"`

	// TempDir holds clips while they are played. Empty uses the OS default.
	TempDir string `yaml:"temp_dir"`
}
