package deepgram

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/MrWong99/voxgate/pkg/provider/stt"
	"github.com/MrWong99/voxgate/pkg/types"
)

// ---- URL / query-param tests ----

func TestBuildURL_Defaults(t *testing.T) {
	t.Parallel()
	p, err := New("test-key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rawURL, err := p.buildURL(stt.Request{})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("parse URL: %v", err)
	}
	q := u.Query()

	assertEqual(t, "host", "api.deepgram.com", u.Host)
	assertEqual(t, "model", "nova-3", q.Get("model"))
	assertEqual(t, "language", "en", q.Get("language"))
	assertEqual(t, "punctuate", "true", q.Get("punctuate"))
	assertEqual(t, "detect_language", "", q.Get("detect_language"))
}

func TestBuildURL_DetectLanguage(t *testing.T) {
	t.Parallel()
	p, _ := New("key", WithModel("base"), WithLanguage("auto"))

	rawURL, _ := p.buildURL(stt.Request{})
	u, _ := url.Parse(rawURL)
	q := u.Query()
	assertEqual(t, "model", "base", q.Get("model"))
	assertEqual(t, "detect_language", "true", q.Get("detect_language"))
	assertEqual(t, "language", "", q.Get("language"))
}

func TestBuildURL_HintUsedOnlyWhenDetecting(t *testing.T) {
	t.Parallel()
	auto, _ := New("key", WithLanguage("auto"))
	rawURL, _ := auto.buildURL(stt.Request{Language: "de"})
	u, _ := url.Parse(rawURL)
	assertEqual(t, "auto+hint", "de", u.Query().Get("language"))

	fixed, _ := New("key", WithLanguage("fr"))
	rawURL, _ = fixed.buildURL(stt.Request{Language: "de"})
	u, _ = url.Parse(rawURL)
	assertEqual(t, "fixed", "fr", u.Query().Get("language"))
}

// ---- response parsing ----

func TestParseDeepgramResponse(t *testing.T) {
	t.Parallel()
	raw := `{
		"metadata": {"duration": 2.5},
		"results": {"channels": [{
			"detected_language": "de",
			"alternatives": [{"transcript": " wie spät ist es ", "confidence": 0.93}]
		}]}
	}`
	tr, err := parseDeepgramResponse([]byte(raw))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	assertEqual(t, "text", "wie spät ist es", tr.Text)
	assertEqual(t, "language", "de", tr.Language)
	if tr.Duration != 2500*time.Millisecond {
		t.Errorf("duration = %v, want 2.5s", tr.Duration)
	}
}

func TestParseDeepgramResponse_EmptyChannels(t *testing.T) {
	t.Parallel()
	tr, err := parseDeepgramResponse([]byte(`{"results":{"channels":[]}}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if tr.Text != "" {
		t.Errorf("text = %q, want empty", tr.Text)
	}
}

func TestParseDeepgramResponse_InvalidJSON(t *testing.T) {
	t.Parallel()
	if _, err := parseDeepgramResponse([]byte("{not json")); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

// ---- end to end against a fake server ----

func TestTranscribe_SendsAudioAndAuth(t *testing.T) {
	t.Parallel()
	type captured struct{ auth, ctype, body string }
	seen := make(chan captured, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		seen <- captured{r.Header.Get("Authorization"), r.Header.Get("Content-Type"), string(body)}
		_, _ = w.Write([]byte(`{"results":{"channels":[{"alternatives":[{"transcript":"hi"}]}]}}`))
	}))
	t.Cleanup(srv.Close)

	p, _ := New("secret", WithBaseURL(srv.URL+"/v1/listen"))
	tr, err := p.Transcribe(context.Background(), stt.Request{Audio: []byte("RIFFdata")})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	c := <-seen
	assertEqual(t, "auth", "Token secret", c.auth)
	assertEqual(t, "content-type", "audio/wav", c.ctype)
	assertEqual(t, "body", "RIFFdata", c.body)
	assertEqual(t, "text", "hi", tr.Text)
	assertEqual(t, "language", "en", tr.Language)
}

func TestTranscribe_HTTPError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"err_msg":"bad key"}`, http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)

	p, _ := New("wrong", WithBaseURL(srv.URL))
	_, err := p.Transcribe(context.Background(), stt.Request{Audio: []byte("x")})
	if !errors.Is(err, types.ErrTranscription) {
		t.Fatalf("err = %v, want ErrTranscription", err)
	}
}

// ---- Constructor tests ----

func TestNew_EmptyAPIKey(t *testing.T) {
	t.Parallel()
	if _, err := New(""); err == nil {
		t.Error("expected error for empty API key")
	}
}

func TestNew_Defaults(t *testing.T) {
	t.Parallel()
	p, err := New("key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	assertEqual(t, "model", defaultModel, p.model)
	assertEqual(t, "language", defaultLanguage, p.language)
	assertEqual(t, "endpoint", deepgramEndpoint, p.endpoint)
}

// ---- helpers ----

func assertEqual(t *testing.T, label, want, got string) {
	t.Helper()
	if want != got {
		t.Errorf("%s: want %q, got %q", label, want, got)
	}
}
