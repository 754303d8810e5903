// Package app wires the voxgate subsystems into a running assistant.
//
// The App struct owns the full lifecycle: New connects the recorder, the turn
// orchestrator and the wake gate to the providers built by main, Run drives
// the gate and the operational HTTP surface until the context ends, and
// Shutdown releases everything in order.
//
// For testing, pass mock providers and inject the filesystem or metrics via
// functional options.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"reflect"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/voxgate/internal/config"
	"github.com/MrWong99/voxgate/internal/gate"
	"github.com/MrWong99/voxgate/internal/health"
	"github.com/MrWong99/voxgate/internal/observe"
	"github.com/MrWong99/voxgate/internal/recorder"
	"github.com/MrWong99/voxgate/internal/transcript"
	"github.com/MrWong99/voxgate/internal/turn"
	"github.com/MrWong99/voxgate/pkg/audio"
	"github.com/MrWong99/voxgate/pkg/provider/llm"
	"github.com/MrWong99/voxgate/pkg/provider/stt"
	"github.com/MrWong99/voxgate/pkg/provider/tts"
	"github.com/MrWong99/voxgate/pkg/provider/wake"
	"github.com/MrWong99/voxgate/pkg/types"
)

// serverShutdownTimeout bounds the graceful stop of the HTTP server.
const serverShutdownTimeout = 5 * time.Second

// Providers holds one value per pipeline slot. Populated by main via the
// config registry.
type Providers struct {
	Wake     wake.Classifier
	Capture  audio.Source
	STT      stt.Provider
	LLM      llm.Provider
	TTS      tts.Provider
	Playback audio.Player

	// Checks are extra readiness probes, typically one per remote stage.
	Checks []health.Checker

	// Closers release provider resources during Shutdown, after the
	// classifier.
	Closers []func() error
}

func (p *Providers) validate() error {
	var missing []string
	for _, slot := range []struct {
		name string
		set  bool
	}{
		{"wake", p.Wake != nil},
		{"capture", p.Capture != nil},
		{"stt", p.STT != nil},
		{"llm", p.LLM != nil},
		{"tts", p.TTS != nil},
		{"playback", p.Playback != nil},
	} {
		if !slot.set {
			missing = append(missing, slot.name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing providers %v", types.ErrInit, missing)
	}
	return nil
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers

	fs       afero.Fs
	metrics  *observe.Metrics
	logLevel *slog.LevelVar
	scrape   http.Handler

	recorder *recorder.Recorder
	turns    *turn.Orchestrator
	gate     *gate.Gate
	health   *health.Handler

	mu sync.Mutex // guards cfg after New

	closers  []func() error
	stopOnce sync.Once
}

// Option is a functional option for New.
type Option func(*App)

// WithFs sets the filesystem holding utterance files. Default is the OS
// filesystem.
func WithFs(fs afero.Fs) Option {
	return func(a *App) { a.fs = fs }
}

// WithMetrics records pipeline metrics on m instead of the global instance.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLogLevel lets [App.ApplyConfig] change the log level of the handler
// that reads lv.
func WithLogLevel(lv *slog.LevelVar) Option {
	return func(a *App) { a.logLevel = lv }
}

// WithMetricsHandler replaces the /metrics handler. Default is the
// Prometheus registry populated by the OTel exporter.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.scrape = h }
}

// New creates an App by wiring the subsystems to providers.
func New(cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if err := providers.validate(); err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.fs == nil {
		a.fs = afero.NewOsFs()
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.scrape == nil {
		a.scrape = promhttp.Handler()
	}

	a.recorder = recorder.New(a.fs,
		recorder.WithConfig(RecorderConfig(cfg.Recorder)),
		recorder.WithTempDir(cfg.Recorder.TempDir),
		recorder.WithFormat(audio.Format{SampleRate: providers.Wake.SampleRate(), Channels: 1}),
		recorder.WithMetrics(a.metrics),
	)

	turnOpts := []turn.Option{
		turn.WithConfig(TurnConfig(cfg.Turn)),
		turn.WithMetrics(a.metrics),
	}
	if len(cfg.Wake.WakePhrases) > 0 {
		turnOpts = append(turnOpts, turn.WithEchoStripper(transcript.NewWakeEcho(cfg.Wake.WakePhrases)))
	}
	a.turns = turn.New(a.recorder, providers.STT, providers.LLM, providers.TTS, providers.Playback, turnOpts...)

	a.gate = gate.New(providers.Wake, providers.Capture, a.turns, gate.WithMetrics(a.metrics))

	checks := append([]health.Checker{
		health.Flag("capture", a.gate.Ready, "capture stream not open"),
	}, providers.Checks...)
	a.health = health.New(checks...)

	a.closers = append(a.closers, providers.Wake.Release)
	a.closers = append(a.closers, providers.Closers...)

	return a, nil
}

// RecorderConfig converts the recorder section into recorder tunables.
func RecorderConfig(c config.RecorderConfig) recorder.Config {
	return recorder.Config{
		Threshold:   c.Threshold,
		Silence:     c.Silence,
		Window:      c.Window,
		MaxDuration: c.MaxDuration,
	}
}

// TurnConfig converts the turn section into turn tunables.
func TurnConfig(c config.TurnConfig) turn.Config {
	return turn.Config{
		AckText:         c.AckText,
		AckDelay:        c.AckDelay,
		SystemPrompt:    c.SystemPrompt,
		DefaultLanguage: c.DefaultLanguage,
		Language:        c.Language,
		MaxPhraseChars:  c.MaxPhraseChars,
		Temperature:     c.Temperature,
		MaxTokens:       c.MaxTokens,
	}
}

// Gate returns the wake gate.
func (a *App) Gate() *gate.Gate { return a.gate }

// Handler returns the operational HTTP surface: /metrics, /healthz and
// /readyz, instrumented with [observe.Middleware].
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	a.health.Register(mux)
	mux.Handle("GET /metrics", a.scrape)
	return observe.Middleware(a.metrics)(mux)
}

// Run drives the wake gate and, when a listen address is configured, the
// HTTP server, until ctx is cancelled or one of them fails. A capture
// failure stops the server and is returned.
func (a *App) Run(ctx context.Context) error {
	a.mu.Lock()
	cfg := a.cfg
	a.mu.Unlock()

	var ln net.Listener
	if addr := cfg.Server.ListenAddr; addr != "" {
		var err error
		if ln, err = net.Listen("tcp", addr); err != nil {
			return fmt.Errorf("app: listen %s: %w", addr, err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := a.gate.Run(gctx); err != nil {
			return fmt.Errorf("app: %w", err)
		}
		return nil
	})

	if ln != nil {
		srv := &http.Server{
			Handler:           a.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			slog.Info("http server listening", "addr", ln.Addr().String())
			if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("app: http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
			defer cancel()
			return srv.Shutdown(sctx)
		})
	}

	slog.Info("app running", "keywords", cfg.Wake.Keywords(), "stt", cfg.Providers.STT.Name,
		"llm", cfg.Providers.LLM.Name, "tts", cfg.Providers.TTS.Name)

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// ApplyConfig hot-applies cfg. Recorder and turn tunables and the log level
// take effect with the next turn; the running turn keeps its own copy.
// Changes to the wake, capture, provider, playback or listen settings are
// logged and need a restart.
func (a *App) ApplyConfig(cfg *config.Config) {
	a.mu.Lock()
	old := a.cfg
	a.cfg = cfg
	a.mu.Unlock()

	a.recorder.SetConfig(RecorderConfig(cfg.Recorder))
	a.turns.SetConfig(TurnConfig(cfg.Turn))
	if a.logLevel != nil {
		a.logLevel.Set(cfg.Server.LogLevel.Level())
	}

	for section, changed := range map[string]bool{
		"wake":               !reflect.DeepEqual(old.Wake, cfg.Wake),
		"capture":            !reflect.DeepEqual(old.Capture, cfg.Capture),
		"providers":          !reflect.DeepEqual(old.Providers, cfg.Providers),
		"playback":           !reflect.DeepEqual(old.Playback, cfg.Playback),
		"server.listen_addr": old.Server.ListenAddr != cfg.Server.ListenAddr,
		"recorder.temp_dir":  old.Recorder.TempDir != cfg.Recorder.TempDir,
	} {
		if changed {
			slog.Warn("config change requires a restart", "section", section)
		}
	}
	slog.Info("config applied",
		"threshold", cfg.Recorder.Threshold,
		"silence", cfg.Recorder.Silence,
		"log_level", cfg.Server.LogLevel,
	)
}

// Shutdown releases the classifier and provider resources in order. Call it
// after Run has returned. If ctx expires before all closers finish, the rest
// are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))
		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}
		slog.Info("shutdown complete")
	})
	return shutdownErr
}
