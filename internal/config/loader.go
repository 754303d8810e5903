package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/voxgate/pkg/provider/tts/google"
	"github.com/MrWong99/voxgate/pkg/types"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt":      {"openai", "deepgram", "whisper", "whisper-native"},
	"llm":      {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"tts":      {"google", "openai", "elevenlabs"},
	"wake":     {"porcupine"},
	"capture":  {"pulse", "portaudio"},
	"playback": {"sox"},
}

// keyedProviders need an api_key to be usable.
var keyedProviders = []string{"openai", "deepgram", "elevenlabs"}

// Environment variables read by [ApplyEnv].
const (
	EnvOpenAIKey        = "OPENAI_API_KEY"
	EnvPorcupineKey     = "PORCUPINE_ACCESS_KEY"
	EnvGoogleEmail      = "GOOGLE_CLOUD_CLIENT_EMAIL"
	EnvGooglePrivateKey = "GOOGLE_CLOUD_PRIVATE_KEY"
	EnvGoogleProject    = "GOOGLE_CLOUD_PROJECT"
)

// Option keys of a "google" TTS entry.
const (
	OptClientEmail = "client_email"
	OptPrivateKey  = "private_key"
	OptProjectID   = "project_id"
)

// LoadOption configures [LoadFromReader].
type LoadOption func(*loadOptions)

type loadOptions struct {
	getenv func(string) string
}

// WithEnv fills empty credentials from getenv before validation.
func WithEnv(getenv func(string) string) LoadOption {
	return func(o *loadOptions) { o.getenv = getenv }
}

// Load reads the YAML configuration file at path, fills missing credentials
// from the process environment and returns a validated [Config].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f, WithEnv(os.Getenv))
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and validates
// the result. An empty document yields a config of pure defaults, which
// fails validation only for missing credentials and providers.
func LoadFromReader(r io.Reader, opts ...LoadOption) (*Config, error) {
	var o loadOptions
	for _, opt := range opts {
		opt(&o)
	}

	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if o.getenv != nil {
		ApplyEnv(cfg, o.getenv)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills zero-valued tunables with their defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Wake.Provider == "" {
		cfg.Wake.Provider = DefaultWakeProvider
	}
	if cfg.Capture.Provider == "" {
		cfg.Capture.Provider = DefaultCaptureProvider
	}
	if cfg.Recorder.Threshold == 0 {
		cfg.Recorder.Threshold = DefaultThreshold
	}
	if cfg.Recorder.Silence == 0 {
		cfg.Recorder.Silence = DefaultSilence
	}
	if cfg.Recorder.Window == 0 {
		cfg.Recorder.Window = DefaultWindow
	}
	if cfg.Turn.AckDelay == 0 {
		cfg.Turn.AckDelay = DefaultAckDelay
	}
	if cfg.Turn.DefaultLanguage == "" {
		cfg.Turn.DefaultLanguage = DefaultLanguage
	}
	if cfg.Playback.Provider == "" {
		cfg.Playback.Provider = DefaultPlaybackProvider
	}
	if cfg.Playback.Command == "" {
		cfg.Playback.Command = DefaultPlaybackCommand
	}
}

// ApplyEnv fills empty credentials from getenv. Values already present in
// the file always win.
//
//   - OPENAI_API_KEY fills api_key of every "openai" provider entry.
//   - PORCUPINE_ACCESS_KEY fills wake.access_key.
//   - GOOGLE_CLOUD_* fill the service-account options of every "google"
//     entry; the private key is unquoted and its literal "\n" unescaped.
func ApplyEnv(cfg *Config, getenv func(string) string) {
	if cfg.Wake.AccessKey == "" {
		cfg.Wake.AccessKey = getenv(EnvPorcupineKey)
	}
	for _, e := range cfg.entries() {
		switch e.Name {
		case "openai":
			if e.APIKey == "" {
				e.APIKey = getenv(EnvOpenAIKey)
			}
		case "google":
			setOption(e, OptClientEmail, getenv(EnvGoogleEmail))
			if key := getenv(EnvGooglePrivateKey); key != "" {
				setOption(e, OptPrivateKey, google.NormalizePrivateKey(key))
			}
			setOption(e, OptProjectID, getenv(EnvGoogleProject))
		}
	}
}

func setOption(e *ProviderEntry, key, value string) {
	if value == "" || e.Option(key) != "" {
		return
	}
	if e.Options == nil {
		e.Options = make(map[string]any)
	}
	e.Options[key] = value
}

// entries returns pointers to every provider entry, primaries first.
func (cfg *Config) entries() []*ProviderEntry {
	out := []*ProviderEntry{&cfg.Providers.STT, &cfg.Providers.LLM, &cfg.Providers.TTS}
	for _, list := range [][]ProviderEntry{cfg.Providers.Fallbacks.STT, cfg.Providers.Fallbacks.LLM, cfg.Providers.Fallbacks.TTS} {
		for i := range list {
			out = append(out, &list[i])
		}
	}
	return out
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found. Missing
// credentials and missing required providers are wrapped with
// [types.ErrInit].
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Wake
	validateProviderName("wake", cfg.Wake.Provider)
	if cfg.Wake.Provider == "porcupine" && cfg.Wake.AccessKey == "" {
		errs = append(errs, fmt.Errorf("%w: wake.access_key is required (or set %s)", types.ErrInit, EnvPorcupineKey))
	}
	if cfg.Wake.Keywords() == 0 {
		errs = append(errs, fmt.Errorf("%w: wake needs at least one keyword_paths or builtin_keywords entry", types.ErrInit))
	}
	if n := len(cfg.Wake.Sensitivities); n > 0 && n != cfg.Wake.Keywords() {
		errs = append(errs, fmt.Errorf("wake.sensitivities has %d values for %d keywords", n, cfg.Wake.Keywords()))
	}
	for i, s := range cfg.Wake.Sensitivities {
		if s < 0 || s > 1 {
			errs = append(errs, fmt.Errorf("wake.sensitivities[%d] %.2f is out of range [0, 1]", i, s))
		}
	}

	// Capture
	validateProviderName("capture", cfg.Capture.Provider)
	if cfg.Capture.LatencyMS < 0 {
		errs = append(errs, fmt.Errorf("capture.latency_ms %d must not be negative", cfg.Capture.LatencyMS))
	}
	if cfg.Capture.Volume < 0 {
		errs = append(errs, fmt.Errorf("capture.volume %.2f must not be negative", cfg.Capture.Volume))
	}

	// Recorder
	if cfg.Recorder.Threshold < 0 {
		errs = append(errs, fmt.Errorf("recorder.threshold %.1f must not be negative", cfg.Recorder.Threshold))
	}
	if cfg.Recorder.Silence < 0 {
		errs = append(errs, fmt.Errorf("recorder.silence %s must not be negative", cfg.Recorder.Silence))
	}
	if cfg.Recorder.Window < 0 {
		errs = append(errs, fmt.Errorf("recorder.window %s must not be negative", cfg.Recorder.Window))
	}
	if cfg.Recorder.MaxDuration < 0 {
		errs = append(errs, fmt.Errorf("recorder.max_duration %s must not be negative", cfg.Recorder.MaxDuration))
	}
	if cfg.Recorder.MaxDuration > 0 && cfg.Recorder.MaxDuration <= cfg.Recorder.Silence {
		slog.Warn("recorder.max_duration is not longer than recorder.silence; utterances will be cut short",
			"max_duration", cfg.Recorder.MaxDuration,
			"silence", cfg.Recorder.Silence,
		)
	}

	// Turn
	if cfg.Turn.AckDelay < 0 {
		errs = append(errs, fmt.Errorf("turn.ack_delay %s must not be negative", cfg.Turn.AckDelay))
	}
	if cfg.Turn.MaxPhraseChars < 0 {
		errs = append(errs, fmt.Errorf("turn.max_phrase_chars %d must not be negative", cfg.Turn.MaxPhraseChars))
	}
	if cfg.Turn.Temperature < 0 || cfg.Turn.Temperature > 2 {
		errs = append(errs, fmt.Errorf("turn.temperature %.2f is out of range [0, 2]", cfg.Turn.Temperature))
	}

	// Providers
	errs = append(errs, validateEntry("stt", "providers.stt", cfg.Providers.STT)...)
	errs = append(errs, validateEntry("llm", "providers.llm", cfg.Providers.LLM)...)
	errs = append(errs, validateEntry("tts", "providers.tts", cfg.Providers.TTS)...)
	for i, e := range cfg.Providers.Fallbacks.STT {
		errs = append(errs, validateEntry("stt", fmt.Sprintf("providers.fallbacks.stt[%d]", i), e)...)
	}
	for i, e := range cfg.Providers.Fallbacks.LLM {
		errs = append(errs, validateEntry("llm", fmt.Sprintf("providers.fallbacks.llm[%d]", i), e)...)
	}
	for i, e := range cfg.Providers.Fallbacks.TTS {
		errs = append(errs, validateEntry("tts", fmt.Sprintf("providers.fallbacks.tts[%d]", i), e)...)
	}

	// Playback
	validateProviderName("playback", cfg.Playback.Provider)

	return errors.Join(errs...)
}

// validateEntry checks one provider entry of kind. Problems that make the
// pipeline unable to start are wrapped with types.ErrInit.
func validateEntry(kind, path string, e ProviderEntry) []error {
	var errs []error
	if e.Name == "" {
		return append(errs, fmt.Errorf("%w: %s.name is required", types.ErrInit, path))
	}
	validateProviderName(kind, e.Name)

	if slices.Contains(keyedProviders, e.Name) && e.APIKey == "" {
		hint := ""
		if e.Name == "openai" {
			hint = fmt.Sprintf(" (or set %s)", EnvOpenAIKey)
		}
		errs = append(errs, fmt.Errorf("%w: %s.api_key is required for %q%s", types.ErrInit, path, e.Name, hint))
	}
	switch e.Name {
	case "google":
		if e.Option(OptClientEmail) == "" || e.Option(OptPrivateKey) == "" {
			errs = append(errs, fmt.Errorf("%w: %s.options need %s and %s (or set %s and %s)",
				types.ErrInit, path, OptClientEmail, OptPrivateKey, EnvGoogleEmail, EnvGooglePrivateKey))
		}
	case "whisper":
		if e.BaseURL == "" {
			errs = append(errs, fmt.Errorf("%s.base_url is required for %q", path, e.Name))
		}
	case "whisper-native":
		if e.Model == "" && e.Option("model_path") == "" {
			errs = append(errs, fmt.Errorf("%s.model (model file path) is required for %q", path, e.Name))
		}
	}
	return errs
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
