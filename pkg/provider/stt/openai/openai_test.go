package openai_test

import (
	"context"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/voxgate/pkg/provider/stt"
	"github.com/MrWong99/voxgate/pkg/provider/stt/openai"
	"github.com/MrWong99/voxgate/pkg/types"
)

type upload struct {
	path     string
	model    string
	format   string
	language string
	filename string
	size     int
}

// newServer answers transcription requests with body and reports each parsed
// multipart upload on the returned channel.
func newServer(t *testing.T, status int, body string) (*httptest.Server, <-chan upload) {
	t.Helper()
	uploads := make(chan upload, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u := upload{path: r.URL.Path}
		_, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if err == nil {
			mr := multipart.NewReader(r.Body, params["boundary"])
			for {
				part, err := mr.NextPart()
				if err != nil {
					break
				}
				data, _ := io.ReadAll(part)
				switch part.FormName() {
				case "model":
					u.model = string(data)
				case "response_format":
					u.format = string(data)
				case "language":
					u.language = string(data)
				case "file":
					u.filename = part.FileName()
					u.size = len(data)
				}
			}
		}
		uploads <- u
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, uploads
}

func TestTranscribe_VerboseJSON(t *testing.T) {
	t.Parallel()
	srv, uploads := newServer(t, http.StatusOK,
		`{"task":"transcribe","language":"german","duration":3.5,"text":" Wie spät ist es? "}`)

	p, err := openai.New("sk-test", "", openai.WithBaseURL(srv.URL+"/v1/"), openai.WithMaxRetries(0))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	tr, err := p.Transcribe(context.Background(), stt.Request{Audio: []byte("RIFF....WAVE")})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if tr.Text != "Wie spät ist es?" {
		t.Errorf("text: got %q", tr.Text)
	}
	if tr.Language != "german" {
		t.Errorf("language: got %q, want german", tr.Language)
	}
	if tr.Duration != 3500*time.Millisecond {
		t.Errorf("duration: got %v", tr.Duration)
	}

	u := <-uploads
	if !strings.HasSuffix(u.path, "/audio/transcriptions") {
		t.Errorf("path: got %q", u.path)
	}
	if u.model != openai.DefaultModel {
		t.Errorf("model: got %q", u.model)
	}
	if u.format != "verbose_json" {
		t.Errorf("response_format: got %q", u.format)
	}
	if u.language != "" {
		t.Errorf("language should be omitted for detection, got %q", u.language)
	}
	if u.filename != "utterance.wav" || u.size != len("RIFF....WAVE") {
		t.Errorf("file: got %q (%d bytes)", u.filename, u.size)
	}
}

func TestTranscribe_ForcedLanguage(t *testing.T) {
	t.Parallel()
	srv, uploads := newServer(t, http.StatusOK, `{"text":"hello"}`)

	p, _ := openai.New("sk-test", "whisper-1",
		openai.WithBaseURL(srv.URL+"/v1/"),
		openai.WithLanguage("en"),
		openai.WithMaxRetries(0),
	)
	tr, err := p.Transcribe(context.Background(), stt.Request{Audio: []byte{1, 2}, Language: "de"})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if tr.Language != "en" {
		t.Errorf("language: got %q, want en", tr.Language)
	}
	if u := <-uploads; u.language != "en" {
		t.Errorf("uploaded language: got %q, want en", u.language)
	}
}

func TestTranscribe_Errors(t *testing.T) {
	t.Parallel()
	srv, _ := newServer(t, http.StatusUnauthorized, `{"error":{"message":"bad key"}}`)
	p, _ := openai.New("sk-test", "", openai.WithBaseURL(srv.URL+"/v1/"), openai.WithMaxRetries(0))

	if _, err := p.Transcribe(context.Background(), stt.Request{Audio: []byte{1}}); !errors.Is(err, types.ErrTranscription) {
		t.Errorf("server error: expected ErrTranscription, got %v", err)
	}
	if _, err := p.Transcribe(context.Background(), stt.Request{}); !errors.Is(err, types.ErrTranscription) {
		t.Errorf("empty audio: expected ErrTranscription, got %v", err)
	}
}

func TestNew_MissingAPIKey(t *testing.T) {
	t.Parallel()
	if _, err := openai.New("", ""); err == nil {
		t.Fatal("expected error for empty API key")
	}
}
