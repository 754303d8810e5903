package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/voxgate/internal/app"
	"github.com/MrWong99/voxgate/internal/config"
	"github.com/MrWong99/voxgate/internal/health"
	"github.com/MrWong99/voxgate/internal/observe"
	"github.com/MrWong99/voxgate/internal/resilience"
	"github.com/MrWong99/voxgate/pkg/audio"
	"github.com/MrWong99/voxgate/pkg/audio/portaudio"
	"github.com/MrWong99/voxgate/pkg/audio/pulse"
	"github.com/MrWong99/voxgate/pkg/audio/sox"
	"github.com/MrWong99/voxgate/pkg/provider/llm"
	"github.com/MrWong99/voxgate/pkg/provider/llm/anyllm"
	oallm "github.com/MrWong99/voxgate/pkg/provider/llm/openai"
	"github.com/MrWong99/voxgate/pkg/provider/stt"
	"github.com/MrWong99/voxgate/pkg/provider/stt/deepgram"
	oastt "github.com/MrWong99/voxgate/pkg/provider/stt/openai"
	"github.com/MrWong99/voxgate/pkg/provider/stt/whisper"
	"github.com/MrWong99/voxgate/pkg/provider/tts"
	"github.com/MrWong99/voxgate/pkg/provider/tts/elevenlabs"
	"github.com/MrWong99/voxgate/pkg/provider/tts/google"
	oatts "github.com/MrWong99/voxgate/pkg/provider/tts/openai"
	"github.com/MrWong99/voxgate/pkg/provider/wake"
	"github.com/MrWong99/voxgate/pkg/provider/wake/porcupine"
)

// registerBuiltinProviders wires all built-in provider factories into reg.
// ctx bounds the lifetime of clients that need one at construction (Google).
func registerBuiltinProviders(ctx context.Context, reg *config.Registry) {
	// ── Wake ──────────────────────────────────────────────────────────────────

	reg.RegisterWake("porcupine", func(c config.WakeConfig) (wake.Classifier, error) {
		var opts []porcupine.Option
		if len(c.KeywordPaths) > 0 {
			opts = append(opts, porcupine.WithKeywordPaths(c.KeywordPaths...))
		}
		if len(c.BuiltinKeywords) > 0 {
			opts = append(opts, porcupine.WithBuiltInKeywords(c.BuiltinKeywords...))
		}
		if len(c.Sensitivities) > 0 {
			opts = append(opts, porcupine.WithSensitivities(c.Sensitivities...))
		}
		if c.ModelPath != "" {
			opts = append(opts, porcupine.WithModelPath(c.ModelPath))
		}
		return porcupine.New(c.AccessKey, opts...)
	})

	// ── Capture ───────────────────────────────────────────────────────────────

	reg.RegisterCapture("pulse", func(c config.CaptureConfig) (audio.Source, error) {
		opts := []pulse.Option{pulse.WithDevice(c.Device)}
		if c.LatencyMS > 0 {
			opts = append(opts, pulse.WithLatency(c.Latency()))
		}
		if c.Volume > 0 {
			opts = append(opts, pulse.WithVolume(c.Volume))
		}
		return pulse.New(opts...), nil
	})

	reg.RegisterCapture("portaudio", func(c config.CaptureConfig) (audio.Source, error) {
		opts := []portaudio.Option{portaudio.WithDevice(c.Device)}
		if c.LatencyMS > 0 {
			opts = append(opts, portaudio.WithLatency(c.Latency()))
		}
		return portaudio.New(opts...), nil
	})

	// ── Playback ──────────────────────────────────────────────────────────────

	reg.RegisterPlayback("sox", func(c config.PlaybackConfig) (audio.Player, error) {
		opts := []sox.Option{sox.WithTempDir(c.TempDir)}
		if c.Command != "" {
			opts = append(opts, sox.WithCommand(c.Command))
		}
		return sox.New(opts...), nil
	})

	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("openai", func(e config.ProviderEntry) (stt.Provider, error) {
		var opts []oastt.Option
		if e.BaseURL != "" {
			opts = append(opts, oastt.WithBaseURL(e.BaseURL))
		}
		if lang := e.Option("language"); lang != "" {
			opts = append(opts, oastt.WithLanguage(lang))
		}
		return oastt.New(e.APIKey, e.Model, opts...)
	})

	reg.RegisterSTT("deepgram", func(e config.ProviderEntry) (stt.Provider, error) {
		var opts []deepgram.Option
		if e.Model != "" {
			opts = append(opts, deepgram.WithModel(e.Model))
		}
		if lang := e.Option("language"); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		if e.BaseURL != "" {
			opts = append(opts, deepgram.WithBaseURL(e.BaseURL))
		}
		return deepgram.New(e.APIKey, opts...)
	})

	reg.RegisterSTT("whisper", func(e config.ProviderEntry) (stt.Provider, error) {
		var opts []whisper.Option
		if e.Model != "" {
			opts = append(opts, whisper.WithModel(e.Model))
		}
		if lang := e.Option("language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.New(e.BaseURL, opts...)
	})

	reg.RegisterSTT("whisper-native", func(e config.ProviderEntry) (stt.Provider, error) {
		modelPath := e.Model
		if modelPath == "" {
			modelPath = e.Option("model_path")
		}
		var opts []whisper.NativeOption
		if lang := e.Option("language"); lang != "" {
			opts = append(opts, whisper.WithNativeLanguage(lang))
		}
		return whisper.NewNative(modelPath, opts...)
	})

	// ── LLM ───────────────────────────────────────────────────────────────────

	reg.RegisterLLM("openai", func(e config.ProviderEntry) (llm.Provider, error) {
		var opts []oallm.Option
		if e.BaseURL != "" {
			opts = append(opts, oallm.WithBaseURL(e.BaseURL))
		}
		return oallm.New(e.APIKey, e.Model, opts...)
	})

	// The remaining backends share the any-llm pattern: optional APIKey and
	// optional BaseURL (ollama, llamacpp and llamafile are local servers).
	for _, name := range []string{
		"anthropic", "gemini", "deepseek", "mistral", "groq",
		"ollama", "llamacpp", "llamafile",
	} {
		reg.RegisterLLM(name, func(e config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if e.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(e.APIKey))
			}
			if e.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(e.BaseURL))
			}
			return anyllm.New(name, e.Model, opts...)
		})
	}

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("google", func(e config.ProviderEntry) (tts.Provider, error) {
		var opts []google.Option
		if r := e.FloatOption("speaking_rate"); r > 0 {
			opts = append(opts, google.WithSpeakingRate(r))
		}
		if p := e.FloatOption("pitch"); p != 0 {
			opts = append(opts, google.WithPitch(p))
		}
		if g, ok := ssmlGender(e.Option("gender")); ok {
			opts = append(opts, google.WithGender(g))
		}
		return google.New(ctx, google.Credentials{
			ClientEmail: e.Option(config.OptClientEmail),
			PrivateKey:  e.Option(config.OptPrivateKey),
			ProjectID:   e.Option(config.OptProjectID),
		}, opts...)
	})

	reg.RegisterTTS("openai", func(e config.ProviderEntry) (tts.Provider, error) {
		var opts []oatts.Option
		if e.BaseURL != "" {
			opts = append(opts, oatts.WithBaseURL(e.BaseURL))
		}
		if v := e.Option("voice"); v != "" {
			opts = append(opts, oatts.WithVoice(v))
		}
		if s := e.FloatOption("speed"); s > 0 {
			opts = append(opts, oatts.WithSpeed(s))
		}
		return oatts.New(e.APIKey, e.Model, opts...)
	})

	reg.RegisterTTS("elevenlabs", func(e config.ProviderEntry) (tts.Provider, error) {
		var opts []elevenlabs.Option
		if e.Model != "" {
			opts = append(opts, elevenlabs.WithModel(e.Model))
		}
		if f := e.Option("output_format"); f != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(f))
		}
		if e.BaseURL != "" {
			opts = append(opts, elevenlabs.WithEndpoint(e.BaseURL))
		}
		return elevenlabs.New(e.APIKey, e.Option("voice_id"), opts...)
	})

	for kind, names := range reg.Names() {
		for _, name := range names {
			slog.Debug("registered provider", "kind", kind, "name", name)
		}
	}
}

func ssmlGender(s string) (texttospeechpb.SsmlVoiceGender, bool) {
	switch strings.ToLower(s) {
	case "female":
		return texttospeechpb.SsmlVoiceGender_FEMALE, true
	case "male":
		return texttospeechpb.SsmlVoiceGender_MALE, true
	case "neutral":
		return texttospeechpb.SsmlVoiceGender_NEUTRAL, true
	}
	return 0, false
}

// buildProviders instantiates every provider named in cfg using the registry.
// Each remote stage is wrapped in a fallback group so that it gets circuit
// breaking, per-attempt metrics and a readiness check, even without
// configured fallbacks.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}
	if err := fillProviders(ps, cfg, reg); err != nil {
		releaseProviders(ps)
		return nil, err
	}
	return ps, nil
}

func fillProviders(ps *app.Providers, cfg *config.Config, reg *config.Registry) error {
	var err error
	if ps.Wake, err = reg.CreateWake(cfg.Wake); err != nil {
		return fmt.Errorf("create wake classifier %q: %w", cfg.Wake.Provider, err)
	}
	slog.Info("provider created", "kind", "wake", "name", cfg.Wake.Provider,
		"frame_length", ps.Wake.FrameLength(), "sample_rate", ps.Wake.SampleRate())

	if ps.Capture, err = reg.CreateCapture(cfg.Capture); err != nil {
		return fmt.Errorf("create capture %q: %w", cfg.Capture.Provider, err)
	}
	if ps.Playback, err = reg.CreatePlayback(cfg.Playback); err != nil {
		return fmt.Errorf("create playback %q: %w", cfg.Playback.Provider, err)
	}

	fb := resilience.FallbackConfig{Metrics: observe.DefaultMetrics()}

	sttAll, err := createAll(ps, "stt", cfg.Providers.STT, cfg.Providers.Fallbacks.STT, reg.CreateSTT)
	if err != nil {
		return err
	}
	sttF := resilience.NewSTTFallback(sttAll[0].p, sttAll[0].name, fb)
	for _, b := range sttAll[1:] {
		sttF.AddFallback(b.name, b.p)
	}
	ps.STT = sttF

	llmAll, err := createAll(ps, "llm", cfg.Providers.LLM, cfg.Providers.Fallbacks.LLM, reg.CreateLLM)
	if err != nil {
		return err
	}
	llmF := resilience.NewLLMFallback(llmAll[0].p, llmAll[0].name, fb)
	for _, b := range llmAll[1:] {
		llmF.AddFallback(b.name, b.p)
	}
	ps.LLM = llmF

	ttsAll, err := createAll(ps, "tts", cfg.Providers.TTS, cfg.Providers.Fallbacks.TTS, reg.CreateTTS)
	if err != nil {
		return err
	}
	ttsF := resilience.NewTTSFallback(ttsAll[0].p, ttsAll[0].name, fb)
	for _, b := range ttsAll[1:] {
		ttsF.AddFallback(b.name, b.p)
	}
	ps.TTS = ttsF

	ps.Checks = append(ps.Checks,
		health.Flag("stt", sttF.Available, "all stt circuits open"),
		health.Flag("llm", llmF.Available, "all llm circuits open"),
		health.Flag("tts", ttsF.Available, "all tts circuits open"),
	)
	return nil
}

type named[T any] struct {
	name string
	p    T
}

// createAll builds the primary entry and its fallbacks, in order. Providers
// holding resources register their Close with ps.
func createAll[T any](ps *app.Providers, kind string, primary config.ProviderEntry, fallbacks []config.ProviderEntry, create func(config.ProviderEntry) (T, error)) ([]named[T], error) {
	entries := append([]config.ProviderEntry{primary}, fallbacks...)
	out := make([]named[T], 0, len(entries))
	for i, e := range entries {
		p, err := create(e)
		if err != nil {
			return nil, fmt.Errorf("create %s provider %q: %w", kind, e.Name, err)
		}
		if c, ok := any(p).(io.Closer); ok {
			ps.Closers = append(ps.Closers, c.Close)
		}
		slog.Info("provider created", "kind", kind, "name", e.Name, "model", e.Model, "fallback", i > 0)
		out = append(out, named[T]{name: e.Name, p: p})
	}
	return out, nil
}
