// Package porcupine implements [wake.Classifier] on top of the Picovoice
// Porcupine Go binding.
//
// The model is loaded once by [New] and released by [Classifier.Release].
// Porcupine fixes the frame length (512 samples) and sample rate (16 kHz) for
// every model, which the gate uses to size the frame assembler and capture
// stream.
package porcupine

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	pv "github.com/Picovoice/porcupine/binding/go/v3"

	"github.com/MrWong99/voxgate/pkg/provider/wake"
	"github.com/MrWong99/voxgate/pkg/types"
)

const defaultSensitivity = 0.5

// ErrReleased is returned by Process after Release.
var ErrReleased = errors.New("porcupine: classifier released")

// Option is a functional option for [New].
type Option func(*pv.Porcupine)

// WithKeywordPaths loads custom keyword files (.ppn).
func WithKeywordPaths(paths ...string) Option {
	return func(p *pv.Porcupine) { p.KeywordPaths = append(p.KeywordPaths, paths...) }
}

// WithBuiltInKeywords enables keywords shipped with the binding, by name
// (e.g., "porcupine", "computer", "hey google").
func WithBuiltInKeywords(names ...string) Option {
	return func(p *pv.Porcupine) {
		for _, n := range names {
			p.BuiltInKeywords = append(p.BuiltInKeywords, pv.BuiltInKeyword(strings.ToLower(n)))
		}
	}
}

// WithSensitivities sets one detection sensitivity in [0,1] per keyword.
// Missing entries default to 0.5.
func WithSensitivities(s ...float32) Option {
	return func(p *pv.Porcupine) { p.Sensitivities = s }
}

// WithModelPath overrides the acoustic model file (for non-English keywords).
func WithModelPath(path string) Option {
	return func(p *pv.Porcupine) { p.ModelPath = path }
}

// Classifier is a loaded Porcupine instance.
type Classifier struct {
	mu       sync.Mutex
	engine   *pv.Porcupine
	keywords int
	released bool
}

var _ wake.Classifier = (*Classifier)(nil)

// New loads the Porcupine engine. accessKey is the Picovoice console key. At
// least one keyword must be configured. Any failure is wrapped with
// types.ErrInit.
func New(accessKey string, opts ...Option) (*Classifier, error) {
	if accessKey == "" {
		return nil, fmt.Errorf("%w: porcupine: access key is required", types.ErrInit)
	}
	engine := &pv.Porcupine{AccessKey: accessKey}
	for _, o := range opts {
		o(engine)
	}

	keywords := len(engine.KeywordPaths) + len(engine.BuiltInKeywords)
	if keywords == 0 {
		return nil, fmt.Errorf("%w: porcupine: no keywords configured", types.ErrInit)
	}
	for len(engine.Sensitivities) < keywords {
		engine.Sensitivities = append(engine.Sensitivities, defaultSensitivity)
	}
	engine.Sensitivities = engine.Sensitivities[:keywords]

	if err := engine.Init(); err != nil {
		return nil, fmt.Errorf("%w: porcupine: init: %w", types.ErrInit, err)
	}
	return &Classifier{engine: engine, keywords: keywords}, nil
}

// FrameLength implements [wake.Classifier].
func (c *Classifier) FrameLength() int { return pv.FrameLength }

// SampleRate implements [wake.Classifier].
func (c *Classifier) SampleRate() int { return pv.SampleRate }

// Keywords returns the number of loaded keywords.
func (c *Classifier) Keywords() int { return c.keywords }

// Process implements [wake.Classifier].
func (c *Classifier) Process(frame []int16) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return wake.NoMatch, fmt.Errorf("%w: %w", types.ErrFrameClassification, ErrReleased)
	}
	idx, err := c.engine.Process(frame)
	if err != nil {
		return wake.NoMatch, fmt.Errorf("%w: porcupine: %w", types.ErrFrameClassification, err)
	}
	if idx < 0 {
		return wake.NoMatch, nil
	}
	return idx, nil
}

// Release implements [wake.Classifier].
func (c *Classifier) Release() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return nil
	}
	c.released = true
	if err := c.engine.Delete(); err != nil {
		return fmt.Errorf("porcupine: release: %w", err)
	}
	return nil
}
