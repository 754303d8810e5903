package turn_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrWong99/voxgate/internal/gate"
	"github.com/MrWong99/voxgate/internal/transcript"
	"github.com/MrWong99/voxgate/internal/turn"
	"github.com/MrWong99/voxgate/pkg/audio"
	audiomock "github.com/MrWong99/voxgate/pkg/audio/mock"
	"github.com/MrWong99/voxgate/pkg/provider/llm"
	llmmock "github.com/MrWong99/voxgate/pkg/provider/llm/mock"
	sttmock "github.com/MrWong99/voxgate/pkg/provider/stt/mock"
	"github.com/MrWong99/voxgate/pkg/provider/tts"
	ttsmock "github.com/MrWong99/voxgate/pkg/provider/tts/mock"
	"github.com/MrWong99/voxgate/pkg/types"
)

// fakeRecorder hands out a fixed utterance and tracks its release.
type fakeRecorder struct {
	mu        sync.Mutex
	err       error
	loadErr   error
	records   int
	released  []types.Utterance
	onRecord  func(ctx context.Context)
	utterance types.Utterance
}

func (r *fakeRecorder) Record(ctx context.Context, _ audio.Source) (types.Utterance, error) {
	r.mu.Lock()
	r.records++
	hook := r.onRecord
	r.mu.Unlock()
	if hook != nil {
		hook(ctx)
	}
	if r.err != nil {
		return types.Utterance{}, r.err
	}
	return r.utterance, nil
}

func (r *fakeRecorder) Load(types.Utterance) ([]byte, error) {
	if r.loadErr != nil {
		return nil, r.loadErr
	}
	return []byte("RIFF"), nil
}

func (r *fakeRecorder) Release(u types.Utterance) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.released = append(r.released, u)
	return nil
}

type fixture struct {
	rec    *fakeRecorder
	stt    *sttmock.Provider
	llm    *llmmock.Provider
	tts    *ttsmock.Provider
	player *audiomock.Player
}

func newFixture() *fixture {
	return &fixture{
		rec:    &fakeRecorder{utterance: types.Utterance{Path: "/tmp/u.wav", SampleRate: 16000, Channels: 1, Duration: 3 * time.Second}},
		stt:    &sttmock.Provider{Result: types.Transcript{Text: "What's the weather?", Language: "english"}},
		llm:    &llmmock.Provider{Response: &llm.CompletionResponse{Content: "It is sunny."}},
		tts:    &ttsmock.Provider{},
		player: &audiomock.Player{},
	}
}

func (f *fixture) orchestrator(cfg turn.Config, opts ...turn.Option) *turn.Orchestrator {
	return turn.New(f.rec, f.stt, f.llm, f.tts, f.player, append([]turn.Option{turn.WithConfig(cfg)}, opts...)...)
}

func (f *fixture) played() []string {
	var out []string
	for _, c := range f.player.Calls() {
		out = append(out, string(c.Data))
	}
	return out
}

func run(o *turn.Orchestrator) {
	o.Run(context.Background(), gate.Event{}, &audiomock.Source{})
}

func TestRun_PlaysSentencesInOrder(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.stt.Result = types.Transcript{Text: "Hey Jarvis, tell me three things.", Language: "german"}
	f.llm.Response = &llm.CompletionResponse{Content: "Erstens. Zweitens! Drittens?"}

	var inFlight, overlap atomic.Int32
	f.player.OnPlay = func(audio.Clip) {
		if inFlight.Add(1) > 1 {
			overlap.Add(1)
		}
		time.Sleep(2 * time.Millisecond)
		inFlight.Add(-1)
	}

	o := f.orchestrator(turn.Config{SystemPrompt: "be brief"},
		turn.WithEchoStripper(transcript.NewWakeEcho([]string{"hey jarvis"})))
	run(o)

	want := []string{"Erstens.", "Zweitens!", "Drittens?"}
	got := f.played()
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("played = %q, want %q", got, want)
	}
	if overlap.Load() != 0 {
		t.Error("phrases overlapped during playback")
	}
	for i, v := range f.tts.Voices() {
		if v != tts.VoiceFor("de") {
			t.Errorf("voice[%d] = %+v, want German voice", i, v)
		}
	}
	if got := f.llm.LastText(); got != "tell me three things." {
		t.Errorf("completion input = %q, want wake phrase stripped", got)
	}
	if got := f.llm.CompleteCalls[0].Req.SystemPrompt; got != "be brief" {
		t.Errorf("SystemPrompt = %q", got)
	}
	if len(f.rec.released) != 1 {
		t.Errorf("utterance released %d times, want 1", len(f.rec.released))
	}
	if f.stt.TranscribeCalls[0].Req.Language != "" {
		t.Errorf("transcription language hint = %q, want empty", f.stt.TranscribeCalls[0].Req.Language)
	}
}

func TestRun_FailureSpeaksExactlyOneApology(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	recording, _ := turn.Apology(turn.StageRecord, "en")
	processing, _ := turn.Apology(turn.StageComplete, "en")
	processingDE, _ := turn.Apology(turn.StageComplete, "de")

	tests := []struct {
		name      string
		setup     func(f *fixture)
		wantText  string
		wantVoice tts.Voice
		wantPlays int
	}{
		{
			name:      "recording",
			setup:     func(f *fixture) { f.rec.err = fmt.Errorf("%w: unplugged", types.ErrDevice) },
			wantText:  recording,
			wantVoice: tts.DefaultVoice,
			wantPlays: 1,
		},
		{
			name:      "loading the recording",
			setup:     func(f *fixture) { f.rec.loadErr = boom },
			wantText:  recording,
			wantVoice: tts.DefaultVoice,
			wantPlays: 1,
		},
		{
			name:      "transcription uses default language",
			setup:     func(f *fixture) { f.stt.Err = fmt.Errorf("%w: %w", types.ErrTranscription, boom) },
			wantText:  processing,
			wantVoice: tts.DefaultVoice,
			wantPlays: 1,
		},
		{
			name: "completion uses detected language",
			setup: func(f *fixture) {
				f.stt.Result.Language = "de"
				f.llm.Err = fmt.Errorf("%w: %w", types.ErrCompletion, boom)
			},
			wantText:  processingDE,
			wantVoice: tts.VoiceFor("de"),
			wantPlays: 1,
		},
		{
			name:      "empty reply",
			setup:     func(f *fixture) { f.llm.Response = &llm.CompletionResponse{Content: "  "} },
			wantText:  processing,
			wantVoice: tts.DefaultVoice,
			wantPlays: 1,
		},
		{
			name: "synthesis",
			setup: func(f *fixture) {
				f.tts.ErrFunc = func(text string) error {
					if text == "It is sunny." {
						return fmt.Errorf("%w: %w", types.ErrSynthesis, boom)
					}
					return nil
				}
			},
			wantText:  processing,
			wantVoice: tts.DefaultVoice,
			wantPlays: 1,
		},
		{
			name: "playback",
			setup: func(f *fixture) {
				f.llm.Response = &llm.CompletionResponse{Content: "One. Two."}
				f.player.PlayErrs = []error{fmt.Errorf("%w: %w", types.ErrPlayback, boom)}
			},
			wantText:  processing,
			wantVoice: tts.DefaultVoice,
			wantPlays: 2,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture()
			tc.setup(f)
			run(f.orchestrator(turn.Config{}))

			played := f.played()
			if len(played) != tc.wantPlays {
				t.Fatalf("played = %q, want %d clips", played, tc.wantPlays)
			}
			apologies := 0
			for _, p := range played {
				if p == recording || p == processing || p == processingDE {
					apologies++
				}
			}
			if apologies != 1 {
				t.Errorf("apologies played = %d, want 1 (played %q)", apologies, played)
			}
			if last := played[len(played)-1]; last != tc.wantText {
				t.Errorf("apology = %q, want %q", last, tc.wantText)
			}
			voices := f.tts.Voices()
			if v := voices[len(voices)-1]; v != tc.wantVoice {
				t.Errorf("apology voice = %+v, want %+v", v, tc.wantVoice)
			}
		})
	}
}

func TestRun_DefaultLanguageForApology(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.stt.Err = types.ErrTranscription
	run(f.orchestrator(turn.Config{DefaultLanguage: "fr"}))

	want, _ := turn.Apology(turn.StageTranscribe, "fr")
	if got := f.played(); len(got) != 1 || got[0] != want {
		t.Errorf("played = %q, want [%q]", got, want)
	}
	if v := f.tts.Voices()[0]; v != tts.VoiceFor("fr") {
		t.Errorf("voice = %+v, want French", v)
	}
}

func TestRun_FailedApologyEndsTurn(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.tts.Err = types.ErrSynthesis
	run(f.orchestrator(turn.Config{}))

	if n := f.tts.CallCount(); n != 2 {
		t.Errorf("Synthesize calls = %d, want 2 (reply and apology)", n)
	}
	if n := len(f.player.Calls()); n != 0 {
		t.Errorf("Play calls = %d, want 0", n)
	}
}

func TestRun_EmptyTranscriptEndsQuietly(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
	}{
		{name: "silence", text: "   "},
		{name: "wake phrase only", text: "Hey Jarvis."},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture()
			f.stt.Result = types.Transcript{Text: tc.text}
			run(f.orchestrator(turn.Config{},
				turn.WithEchoStripper(transcript.NewWakeEcho([]string{"Hey Jarvis"}))))

			if n := f.llm.CallCount(); n != 0 {
				t.Errorf("Complete calls = %d, want 0", n)
			}
			if n := len(f.player.Calls()); n != 0 {
				t.Errorf("Play calls = %d, want 0", n)
			}
			if len(f.rec.released) != 1 {
				t.Errorf("utterance released %d times, want 1", len(f.rec.released))
			}
		})
	}
}

func TestRun_AcknowledgementBeforeRecording(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.rec.onRecord = func(context.Context) {
		if got := f.played(); len(got) != 1 || got[0] != "Yes?" {
			t.Errorf("played before recording = %q, want [Yes?]", got)
		}
	}
	run(f.orchestrator(turn.Config{AckText: "Yes?", AckDelay: time.Millisecond}))

	if got := f.played(); len(got) != 2 || got[1] != "It is sunny." {
		t.Errorf("played = %q", got)
	}
}

func TestRun_AcknowledgementFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.player.PlayErrs = []error{types.ErrPlayback}
	run(f.orchestrator(turn.Config{AckText: "Yes?"}))

	if got := f.played(); len(got) != 2 || got[1] != "It is sunny." {
		t.Errorf("played = %q, want the reply after a failed acknowledgement", got)
	}
}

func TestRun_CancelledTurnDoesNotApologize(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx, cancel := context.WithCancel(context.Background())
	f.rec.onRecord = func(context.Context) { cancel() }
	f.rec.err = context.Canceled

	o := f.orchestrator(turn.Config{})
	o.Run(ctx, gate.Event{}, &audiomock.Source{})

	if n := len(f.player.Calls()); n != 0 {
		t.Errorf("Play calls = %d, want 0", n)
	}
}

func TestRun_ForcedLanguageAndLimits(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.llm.Response = &llm.CompletionResponse{Content: "alpha beta gamma delta"}
	run(f.orchestrator(turn.Config{Language: "en", MaxPhraseChars: 11, Temperature: 0.3, MaxTokens: 50}))

	if got := f.stt.TranscribeCalls[0].Req.Language; got != "en" {
		t.Errorf("language hint = %q, want en", got)
	}
	req := f.llm.CompleteCalls[0].Req
	if req.Temperature != 0.3 || req.MaxTokens != 50 {
		t.Errorf("request = %+v", req)
	}
	want := []string{"alpha beta", "gamma delta"}
	if got := f.played(); fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("played = %q, want %q", got, want)
	}
}

func TestSetConfig(t *testing.T) {
	t.Parallel()

	f := newFixture()
	o := turn.New(f.rec, f.stt, f.llm, f.tts, f.player)
	if got := o.Config().AckDelay; got != turn.DefaultAckDelay {
		t.Errorf("default AckDelay = %v, want %v", got, turn.DefaultAckDelay)
	}
	o.SetConfig(turn.Config{SystemPrompt: "x"})
	if got := o.Config().SystemPrompt; got != "x" {
		t.Errorf("SystemPrompt = %q", got)
	}
}
