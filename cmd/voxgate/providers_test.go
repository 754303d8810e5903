package main

import (
	"context"
	"errors"
	"slices"
	"testing"

	"cloud.google.com/go/texttospeech/apiv1/texttospeechpb"

	"github.com/MrWong99/voxgate/internal/config"
	"github.com/MrWong99/voxgate/pkg/audio"
	audiomock "github.com/MrWong99/voxgate/pkg/audio/mock"
	"github.com/MrWong99/voxgate/pkg/provider/llm"
	llmmock "github.com/MrWong99/voxgate/pkg/provider/llm/mock"
	"github.com/MrWong99/voxgate/pkg/provider/stt"
	sttmock "github.com/MrWong99/voxgate/pkg/provider/stt/mock"
	"github.com/MrWong99/voxgate/pkg/provider/tts"
	ttsmock "github.com/MrWong99/voxgate/pkg/provider/tts/mock"
	"github.com/MrWong99/voxgate/pkg/provider/wake"
	wakemock "github.com/MrWong99/voxgate/pkg/provider/wake/mock"
	"github.com/MrWong99/voxgate/pkg/types"
)

func TestRegisterBuiltinProviders_CoversKnownNames(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	registerBuiltinProviders(context.Background(), reg)

	got := reg.Names()
	for kind, names := range config.ValidProviderNames {
		for _, name := range names {
			if !slices.Contains(got[kind], name) {
				t.Errorf("%s provider %q is not registered", kind, name)
			}
		}
	}
}

func TestSSMLGender(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in     string
		want   texttospeechpb.SsmlVoiceGender
		wantOK bool
	}{
		{"female", texttospeechpb.SsmlVoiceGender_FEMALE, true},
		{"MALE", texttospeechpb.SsmlVoiceGender_MALE, true},
		{"neutral", texttospeechpb.SsmlVoiceGender_NEUTRAL, true},
		{"", 0, false},
		{"robot", 0, false},
	}
	for _, tt := range tests {
		got, ok := ssmlGender(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("ssmlGender(%q) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

// closingSTT is an STT mock that also holds a resource.
type closingSTT struct {
	sttmock.Provider
	closed int
}

func (c *closingSTT) Close() error { c.closed++; return nil }

type mockRegistry struct {
	reg        *config.Registry
	classifier *wakemock.Classifier
	primary    *closingSTT
	secondary  *sttmock.Provider
}

func newMockRegistry() *mockRegistry {
	m := &mockRegistry{
		reg:        config.NewRegistry(),
		classifier: &wakemock.Classifier{Length: 512, Rate: 16000},
		primary:    &closingSTT{},
		secondary:  &sttmock.Provider{Result: types.Transcript{Text: "hello"}},
	}
	m.primary.Err = errors.New("down")
	m.reg.RegisterWake("mock", func(config.WakeConfig) (wake.Classifier, error) { return m.classifier, nil })
	m.reg.RegisterCapture("mock", func(config.CaptureConfig) (audio.Source, error) { return &audiomock.Source{}, nil })
	m.reg.RegisterPlayback("mock", func(config.PlaybackConfig) (audio.Player, error) { return &audiomock.Player{}, nil })
	m.reg.RegisterSTT("primary", func(config.ProviderEntry) (stt.Provider, error) { return m.primary, nil })
	m.reg.RegisterSTT("secondary", func(config.ProviderEntry) (stt.Provider, error) { return m.secondary, nil })
	m.reg.RegisterLLM("mock", func(config.ProviderEntry) (llm.Provider, error) { return &llmmock.Provider{}, nil })
	m.reg.RegisterTTS("mock", func(config.ProviderEntry) (tts.Provider, error) { return &ttsmock.Provider{}, nil })
	return m
}

func mockConfig() *config.Config {
	return &config.Config{
		Wake:     config.WakeConfig{Provider: "mock"},
		Capture:  config.CaptureConfig{Provider: "mock"},
		Playback: config.PlaybackConfig{Provider: "mock"},
		Providers: config.ProvidersConfig{
			STT: config.ProviderEntry{Name: "primary"},
			LLM: config.ProviderEntry{Name: "mock"},
			TTS: config.ProviderEntry{Name: "mock"},
			Fallbacks: config.FallbacksConfig{
				STT: []config.ProviderEntry{{Name: "secondary"}},
			},
		},
	}
}

func TestBuildProviders_WrapsFallbacks(t *testing.T) {
	t.Parallel()
	m := newMockRegistry()

	ps, err := buildProviders(mockConfig(), m.reg)
	if err != nil {
		t.Fatalf("buildProviders: %v", err)
	}

	tr, err := ps.STT.Transcribe(context.Background(), stt.Request{Audio: []byte("RIFF")})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if tr.Text != "hello" {
		t.Errorf("transcript = %q, want the fallback's result", tr.Text)
	}

	var names []string
	for _, c := range ps.Checks {
		names = append(names, c.Name)
		if err := c.Check(context.Background()); err != nil {
			t.Errorf("check %s: %v", c.Name, err)
		}
	}
	if !slices.Equal(names, []string{"stt", "llm", "tts"}) {
		t.Errorf("checks = %v", names)
	}

	if len(ps.Closers) != 1 {
		t.Fatalf("closers = %d, want 1 for the closable STT", len(ps.Closers))
	}
	_ = ps.Closers[0]()
	if m.primary.closed != 1 {
		t.Errorf("primary closed %d times", m.primary.closed)
	}
}

func TestBuildProviders_FailureReleasesCreated(t *testing.T) {
	t.Parallel()
	m := newMockRegistry()
	cfg := mockConfig()
	cfg.Providers.TTS.Name = "missing"

	if _, err := buildProviders(cfg, m.reg); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Fatalf("err = %v, want ErrProviderNotRegistered", err)
	}
	if m.classifier.CallCountRelease != 1 {
		t.Errorf("classifier released %d times, want 1", m.classifier.CallCountRelease)
	}
	if m.primary.closed != 1 {
		t.Errorf("stt closed %d times, want 1", m.primary.closed)
	}
}
