// Package whisper provides whisper.cpp-backed STT providers.
//
// [Provider] talks to a running whisper-server binary, which exposes a REST
// API at POST /inference, and submits each recorded utterance as one batch
// request. [NativeProvider] runs the same models in-process through the
// whisper.cpp Go bindings.
//
// Both report the language whisper detected (as a full English name such as
// "english" or "german") unless a fixed language was configured, in which
// case that code is reported.
//
// Usage:
//
//	p, err := whisper.New("http://localhost:8080",
//	    whisper.WithLanguage("auto"),
//	)
//	tr, err := p.Transcribe(ctx, stt.Request{Audio: wav})
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/voxgate/pkg/provider/stt"
	"github.com/MrWong99/voxgate/pkg/types"
)

const (
	defaultLanguage = "en"

	// autoLanguage asks whisper to detect the spoken language.
	autoLanguage = "auto"
)

// Compile-time assertion that Provider implements stt.Provider.
var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the model identifier forwarded to the whisper.cpp server
// (e.g., "base.en", "small"). When empty the server uses whichever model it
// was started with; this is the default.
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the ISO 639-1 language code sent to the whisper.cpp server
// (e.g., "en", "de", "fr"), or "auto" to detect it. Defaults to "en".
func WithLanguage(lang string) Option {
	return func(p *Provider) {
		p.language = lang
	}
}

// WithHTTPClient replaces the default HTTP client (30 s timeout).
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// Provider implements stt.Provider backed by a whisper.cpp HTTP server.
type Provider struct {
	serverURL  string
	model      string
	language   string
	httpClient *http.Client
}

// New creates a new Provider that connects to the whisper.cpp HTTP server at
// serverURL (e.g., "http://localhost:8080"). serverURL must be non-empty.
// Functional options may be provided to override defaults.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:  strings.TrimRight(serverURL, "/"),
		language:   defaultLanguage,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Transcribe implements stt.Provider. req.Language overrides the configured
// language only when the provider is set to "auto".
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) (types.Transcript, error) {
	if len(req.Audio) == 0 {
		return types.Transcript{}, fmt.Errorf("%w: whisper: empty audio", types.ErrTranscription)
	}
	lang := p.language
	if lang == autoLanguage && req.Language != "" {
		lang = req.Language
	}

	res, err := p.infer(ctx, req.Audio, lang)
	if err != nil {
		return types.Transcript{}, fmt.Errorf("%w: %w", types.ErrTranscription, err)
	}

	detected := res.Language
	if lang != autoLanguage {
		detected = lang
	}
	return types.Transcript{
		Text:     strings.TrimSpace(res.Text),
		Language: detected,
		Duration: time.Duration(res.Duration * float64(time.Second)),
	}, nil
}

// inferenceResult is the subset of the server's verbose_json response we use.
type inferenceResult struct {
	Text     string  `json:"text"`
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
}

// infer POSTs wav to the whisper.cpp /inference endpoint as
// multipart/form-data.
func (p *Provider) infer(ctx context.Context, wav []byte, lang string) (inferenceResult, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	// Primary audio field.
	fw, err := mw.CreateFormFile("file", "utterance.wav")
	if err != nil {
		return inferenceResult{}, fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := fw.Write(wav); err != nil {
		return inferenceResult{}, fmt.Errorf("whisper: write wav data: %w", err)
	}

	fields := map[string]string{
		"response_format": "verbose_json",
		"language":        lang,
		"model":           p.model,
	}
	for k, v := range fields {
		if v == "" {
			continue
		}
		if err := mw.WriteField(k, v); err != nil {
			return inferenceResult{}, fmt.Errorf("whisper: write %s field: %w", k, err)
		}
	}

	if err := mw.Close(); err != nil {
		return inferenceResult{}, fmt.Errorf("whisper: close multipart writer: %w", err)
	}

	endpoint := p.serverURL + "/inference"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return inferenceResult{}, fmt.Errorf("whisper: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return inferenceResult{}, fmt.Errorf("whisper: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return inferenceResult{}, fmt.Errorf("whisper: server returned HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return inferenceResult{}, fmt.Errorf("whisper: read response body: %w", err)
	}

	var result inferenceResult
	if err := json.Unmarshal(data, &result); err != nil {
		return inferenceResult{}, fmt.Errorf("whisper: parse JSON response: %w", err)
	}
	return result, nil
}
