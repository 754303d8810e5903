// Package turn runs one conversational turn after a wake event.
//
// A turn is a single sequential chain: optional acknowledgement, record the
// utterance, transcribe it, generate a reply, then synthesize and play the
// reply phrase by phrase. No two collaborator calls of a turn are ever in
// flight at the same time.
//
// Failures never escape a turn. A failure while recording, transcribing,
// generating, synthesizing or playing is logged and answered with exactly one
// spoken apology in the best-known language (the configured default language
// when nothing was detected yet). An utterance that transcribes to nothing
// ends the turn quietly.
package turn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/voxgate/internal/gate"
	"github.com/MrWong99/voxgate/internal/observe"
	"github.com/MrWong99/voxgate/pkg/audio"
	"github.com/MrWong99/voxgate/pkg/provider/llm"
	"github.com/MrWong99/voxgate/pkg/provider/stt"
	"github.com/MrWong99/voxgate/pkg/provider/tts"
	"github.com/MrWong99/voxgate/pkg/types"
)

// DefaultAckDelay is the pause between the acknowledgement and the start of
// recording.
const DefaultAckDelay = 1500 * time.Millisecond

// Recorder captures one utterance from a leased capture source. The
// utterance's file belongs to the recorder; the turn loads it once and
// releases it.
type Recorder interface {
	Record(ctx context.Context, src audio.Source) (types.Utterance, error)
	Load(u types.Utterance) ([]byte, error)
	Release(u types.Utterance) error
}

// EchoStripper removes the wake phrase from the start of a transcript.
type EchoStripper interface {
	Strip(text string) (string, bool)
}

// Config holds the per-turn tunables.
type Config struct {
	// AckText is spoken before recording starts. Empty disables it.
	AckText string

	// AckDelay is waited after the acknowledgement.
	AckDelay time.Duration

	// SystemPrompt is sent with every completion request.
	SystemPrompt string

	// DefaultLanguage is used for synthesis whenever no language has been
	// detected. Empty means types.DefaultLanguage.
	DefaultLanguage string

	// Language forces the transcription language. Empty lets the
	// transcriber detect it.
	Language string

	// MaxPhraseChars splits long sentences before synthesis. Zero disables.
	MaxPhraseChars int

	// Temperature and MaxTokens are passed to the response generator.
	Temperature float64
	MaxTokens   int
}

// Orchestrator runs turns. It implements [gate.Turn].
type Orchestrator struct {
	rec    Recorder
	sttP   stt.Provider
	llmP   llm.Provider
	ttsP   tts.Provider
	player audio.Player

	echo    EchoStripper
	metrics *observe.Metrics

	mu  sync.RWMutex
	cfg Config
}

var _ gate.Turn = (*Orchestrator)(nil)

// Option is a functional option for [New].
type Option func(*Orchestrator)

// WithConfig sets the initial tunables.
func WithConfig(cfg Config) Option {
	return func(o *Orchestrator) { o.cfg = cfg }
}

// WithEchoStripper strips the wake phrase from transcripts before completion.
func WithEchoStripper(e EchoStripper) Option {
	return func(o *Orchestrator) { o.echo = e }
}

// WithMetrics records stage latencies and turn outcomes on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// New returns an Orchestrator wired to its collaborators.
func New(rec Recorder, s stt.Provider, l llm.Provider, t tts.Provider, p audio.Player, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		rec:    rec,
		sttP:   s,
		llmP:   l,
		ttsP:   t,
		player: p,
		cfg:    Config{AckDelay: DefaultAckDelay},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Config returns the tunables used by the next turn.
func (o *Orchestrator) Config() Config {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.cfg
}

// SetConfig replaces the tunables. A running turn keeps its own copy.
func (o *Orchestrator) SetConfig(cfg Config) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.cfg = cfg
}

// Run implements [gate.Turn]. It returns once the reply (or apology) has
// been played, or as soon as ctx is cancelled.
func (o *Orchestrator) Run(ctx context.Context, ev gate.Event, capture audio.Source) {
	start := time.Now()
	ctx, span := observe.StartSpan(ctx, "turn", spanOptions(ev)...)
	defer span.End()

	t := &run{
		Orchestrator: o,
		cfg:          o.Config(),
		log:          observe.Logger(ctx, "keyword", ev.Keyword),
	}
	outcome := t.execute(ctx, capture)

	span.SetAttributes(attribute.String("outcome", outcome))
	if outcome == observe.OutcomeFailed || outcome == observe.OutcomeApology {
		span.SetStatus(codes.Error, outcome)
	}
	if o.metrics != nil {
		o.metrics.RecordTurn(ctx, outcome, time.Since(start))
	}
	t.log.Info("turn: finished", "outcome", outcome, "elapsed", time.Since(start))
}

// run is the state of one turn.
type run struct {
	*Orchestrator
	cfg  Config
	log  *slog.Logger
	lang string
}

func (t *run) execute(ctx context.Context, capture audio.Source) string {
	if t.cfg.AckText != "" {
		if err := t.speak(ctx, t.cfg.AckText, t.language()); err != nil {
			t.log.Warn("turn: acknowledgement failed", "err", err)
		}
		if err := sleep(ctx, t.cfg.AckDelay); err != nil {
			return observe.OutcomeFailed
		}
	}

	utt, err := t.rec.Record(ctx, capture)
	if err != nil {
		return t.fail(ctx, StageRecord, err)
	}
	wav, err := t.rec.Load(utt)
	if rerr := t.rec.Release(utt); rerr != nil {
		t.log.Warn("turn: failed to release utterance", "path", utt.Path, "err", rerr)
	}
	if err != nil {
		return t.fail(ctx, StageRecord, err)
	}
	t.log.Debug("turn: utterance recorded", "duration", utt.Duration)

	tr, err := t.transcribe(ctx, wav)
	if err != nil {
		return t.fail(ctx, StageTranscribe, err)
	}
	t.lang = tr.Language

	text := strings.TrimSpace(tr.Text)
	if t.echo != nil {
		if stripped, ok := t.echo.Strip(text); ok {
			t.log.Debug("turn: removed wake phrase echo", "transcript", text)
			text = stripped
		}
	}
	if text == "" {
		t.log.Info("turn: no speech in utterance")
		return observe.OutcomeNoSpeech
	}
	t.log.Info("turn: transcribed", "text", text, "language", t.lang)

	reply, err := t.complete(ctx, text)
	if err != nil {
		return t.fail(ctx, StageComplete, err)
	}

	phrases := SplitPhrases(reply, t.cfg.MaxPhraseChars)
	if len(phrases) == 0 {
		return t.fail(ctx, StageComplete, fmt.Errorf("%w: empty reply", types.ErrCompletion))
	}
	voice := tts.VoiceFor(t.language())
	for i, p := range phrases {
		clip, err := t.synthesize(ctx, p, voice)
		if err != nil {
			return t.fail(ctx, StageSynthesize, err)
		}
		if err := t.player.Play(ctx, clip); err != nil {
			return t.fail(ctx, StagePlayback, err)
		}
		t.log.Debug("turn: phrase played", "index", i, "of", len(phrases))
	}
	return observe.OutcomeReplied
}

func (t *run) transcribe(ctx context.Context, wav []byte) (types.Transcript, error) {
	ctx, span := observe.StartSpan(ctx, "turn.transcribe")
	defer span.End()
	start := time.Now()
	tr, err := t.sttP.Transcribe(ctx, stt.Request{Audio: wav, Language: t.cfg.Language})
	if t.metrics != nil {
		t.metrics.STTDuration.Record(ctx, time.Since(start).Seconds())
	}
	return tr, err
}

func (t *run) complete(ctx context.Context, text string) (string, error) {
	ctx, span := observe.StartSpan(ctx, "turn.complete")
	defer span.End()
	start := time.Now()
	req := llm.UserRequest(t.cfg.SystemPrompt, text)
	req.Temperature = t.cfg.Temperature
	req.MaxTokens = t.cfg.MaxTokens
	resp, err := t.llmP.Complete(ctx, req)
	if t.metrics != nil {
		t.metrics.LLMDuration.Record(ctx, time.Since(start).Seconds())
	}
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

func (t *run) synthesize(ctx context.Context, text string, voice tts.Voice) (audio.Clip, error) {
	ctx, span := observe.StartSpan(ctx, "turn.synthesize")
	defer span.End()
	start := time.Now()
	clip, err := t.ttsP.Synthesize(ctx, text, voice)
	if t.metrics != nil {
		t.metrics.TTSDuration.Record(ctx, time.Since(start).Seconds())
	}
	return clip, err
}

// speak synthesizes and plays text in lang.
func (t *run) speak(ctx context.Context, text, lang string) error {
	clip, err := t.synthesize(ctx, text, tts.VoiceFor(lang))
	if err != nil {
		return err
	}
	return t.player.Play(ctx, clip)
}

// fail logs err and plays the single apology of this turn. It returns the
// turn outcome.
func (t *run) fail(ctx context.Context, stage Stage, err error) string {
	if ctx.Err() != nil {
		t.log.Info("turn: abandoned", "stage", stage, "err", err)
		return observe.OutcomeFailed
	}
	t.log.Error("turn: stage failed",
		"stage", stage,
		"kind", kindName(err),
		"language", t.lang,
		"err", err,
	)

	text, lang := Apology(stage, t.language())
	if t.metrics != nil {
		t.metrics.RecordApology(ctx, string(stage))
	}
	if err := t.speak(ctx, text, lang); err != nil {
		t.log.Error("turn: apology failed", "language", lang, "err", err)
		return observe.OutcomeFailed
	}
	return observe.OutcomeApology
}

// language returns the detected language or the configured default.
func (t *run) language() string {
	if t.lang != "" {
		return t.lang
	}
	if t.cfg.DefaultLanguage != "" {
		return t.cfg.DefaultLanguage
	}
	return types.DefaultLanguage
}

func kindName(err error) string {
	if k := types.Kind(err); k != nil {
		return k.Error()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	return "unknown"
}

func spanOptions(ev gate.Event) []trace.SpanStartOption {
	return []trace.SpanStartOption{trace.WithAttributes(
		attribute.Int("keyword", ev.Keyword),
		attribute.String("offset", ev.Offset.String()),
	)}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
