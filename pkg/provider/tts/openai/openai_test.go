package openai_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MrWong99/voxgate/pkg/audio"
	"github.com/MrWong99/voxgate/pkg/provider/tts"
	"github.com/MrWong99/voxgate/pkg/provider/tts/openai"
	"github.com/MrWong99/voxgate/pkg/types"
)

func TestSynthesize(t *testing.T) {
	t.Parallel()
	bodies := make(chan map[string]any, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/audio/speech") {
			http.NotFound(w, r)
			return
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		bodies <- body
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte{0xFF, 0xFB, 0x90, 0x00})
	}))
	defer srv.Close()

	p, err := openai.New("sk-test", "",
		openai.WithBaseURL(srv.URL+"/v1/"),
		openai.WithVoice("nova"),
		openai.WithSpeed(1.25),
		openai.WithMaxRetries(0),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	clip, err := p.Synthesize(context.Background(), "It is noon.", tts.DefaultVoice)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if clip.Encoding != audio.EncodingMP3 || len(clip.Data) != 4 {
		t.Errorf("clip: got %s with %d bytes", clip.Encoding, len(clip.Data))
	}

	body := <-bodies
	if body["input"] != "It is noon." {
		t.Errorf("input: got %v", body["input"])
	}
	if body["model"] != openai.DefaultModel {
		t.Errorf("model: got %v", body["model"])
	}
	if body["voice"] != "nova" {
		t.Errorf("voice: got %v", body["voice"])
	}
	if body["response_format"] != "mp3" {
		t.Errorf("response_format: got %v", body["response_format"])
	}
	if body["speed"] != 1.25 {
		t.Errorf("speed: got %v", body["speed"])
	}
}

func TestSynthesize_Errors(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"error":{"message":"slow down"}}`)
	}))
	defer srv.Close()

	p, _ := openai.New("sk-test", "", openai.WithBaseURL(srv.URL+"/v1/"), openai.WithMaxRetries(0))
	if _, err := p.Synthesize(context.Background(), "Hi.", tts.DefaultVoice); !errors.Is(err, types.ErrSynthesis) {
		t.Errorf("server error: expected ErrSynthesis, got %v", err)
	}
	if _, err := p.Synthesize(context.Background(), " ", tts.DefaultVoice); !errors.Is(err, types.ErrSynthesis) {
		t.Errorf("empty text: expected ErrSynthesis, got %v", err)
	}
}

func TestNew_MissingAPIKey(t *testing.T) {
	t.Parallel()
	if _, err := openai.New("", ""); err == nil {
		t.Fatal("expected error for empty API key")
	}
}
