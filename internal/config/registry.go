package config

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/MrWong99/voxgate/pkg/audio"
	"github.com/MrWong99/voxgate/pkg/provider/llm"
	"github.com/MrWong99/voxgate/pkg/provider/stt"
	"github.com/MrWong99/voxgate/pkg/provider/tts"
	"github.com/MrWong99/voxgate/pkg/provider/wake"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// factories is a name-keyed set of constructors taking a config section C.
type factories[C, T any] map[string]func(C) (T, error)

// Registry maps provider names to their constructor functions for each
// provider kind. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	stt      factories[ProviderEntry, stt.Provider]
	llm      factories[ProviderEntry, llm.Provider]
	tts      factories[ProviderEntry, tts.Provider]
	wake     factories[WakeConfig, wake.Classifier]
	capture  factories[CaptureConfig, audio.Source]
	playback factories[PlaybackConfig, audio.Player]
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		stt:      make(factories[ProviderEntry, stt.Provider]),
		llm:      make(factories[ProviderEntry, llm.Provider]),
		tts:      make(factories[ProviderEntry, tts.Provider]),
		wake:     make(factories[WakeConfig, wake.Classifier]),
		capture:  make(factories[CaptureConfig, audio.Source]),
		playback: make(factories[PlaybackConfig, audio.Player]),
	}
}

// RegisterSTT registers an STT provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterSTT(name string, factory func(ProviderEntry) (stt.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stt[name] = factory
}

// RegisterLLM registers an LLM provider factory under name.
func (r *Registry) RegisterLLM(name string, factory func(ProviderEntry) (llm.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llm[name] = factory
}

// RegisterTTS registers a TTS provider factory under name.
func (r *Registry) RegisterTTS(name string, factory func(ProviderEntry) (tts.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tts[name] = factory
}

// RegisterWake registers a wake-word classifier factory under name.
func (r *Registry) RegisterWake(name string, factory func(WakeConfig) (wake.Classifier, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.wake[name] = factory
}

// RegisterCapture registers a capture source factory under name.
func (r *Registry) RegisterCapture(name string, factory func(CaptureConfig) (audio.Source, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.capture[name] = factory
}

// RegisterPlayback registers a player factory under name.
func (r *Registry) RegisterPlayback(name string, factory func(PlaybackConfig) (audio.Player, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.playback[name] = factory
}

// CreateSTT instantiates an STT provider using the factory registered under entry.Name.
// Returns [ErrProviderNotRegistered] if no factory has been registered for that name.
func (r *Registry) CreateSTT(entry ProviderEntry) (stt.Provider, error) {
	return create(r, r.stt, "stt", entry.Name, entry)
}

// CreateLLM instantiates an LLM provider using the factory registered under entry.Name.
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) {
	return create(r, r.llm, "llm", entry.Name, entry)
}

// CreateTTS instantiates a TTS provider using the factory registered under entry.Name.
func (r *Registry) CreateTTS(entry ProviderEntry) (tts.Provider, error) {
	return create(r, r.tts, "tts", entry.Name, entry)
}

// CreateWake instantiates the classifier named by cfg.Provider.
func (r *Registry) CreateWake(cfg WakeConfig) (wake.Classifier, error) {
	return create(r, r.wake, "wake", cfg.Provider, cfg)
}

// CreateCapture instantiates the capture source named by cfg.Provider.
func (r *Registry) CreateCapture(cfg CaptureConfig) (audio.Source, error) {
	return create(r, r.capture, "capture", cfg.Provider, cfg)
}

// CreatePlayback instantiates the player named by cfg.Provider.
func (r *Registry) CreatePlayback(cfg PlaybackConfig) (audio.Player, error) {
	return create(r, r.playback, "playback", cfg.Provider, cfg)
}

// Names returns the sorted provider names registered per kind.
func (r *Registry) Names() map[string][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return map[string][]string{
		"stt":      names(r.stt),
		"llm":      names(r.llm),
		"tts":      names(r.tts),
		"wake":     names(r.wake),
		"capture":  names(r.capture),
		"playback": names(r.playback),
	}
}

func create[C, T any](r *Registry, m factories[C, T], kind, name string, cfg C) (T, error) {
	r.mu.RLock()
	factory, ok := m[name]
	r.mu.RUnlock()
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s/%q", ErrProviderNotRegistered, kind, name)
	}
	v, err := factory(cfg)
	if err != nil {
		// Drop typed nil pointers so callers can compare against nil.
		var zero T
		return zero, err
	}
	return v, nil
}

func names[C, T any](m factories[C, T]) []string {
	out := make([]string, 0, len(m))
	for name := range m {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}
