// Package google provides a TTS provider backed by Google Cloud
// Text-to-Speech.
//
// Phrases are synthesised as MP3 with the voice selected for the turn's
// language. Credentials are a service account given either as a full JSON
// key or as the client email, private key and project triple.
package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	texttospeech "cloud.google.com/go/texttospeech/apiv1"
	"cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
	"google.golang.org/api/option"

	"github.com/MrWong99/voxgate/pkg/audio"
	"github.com/MrWong99/voxgate/pkg/provider/tts"
	"github.com/MrWong99/voxgate/pkg/types"
)

// Credentials identifies a Google Cloud service account.
type Credentials struct {
	ClientEmail string
	PrivateKey  string
	ProjectID   string
}

// JSON renders c as a service-account key file.
func (c Credentials) JSON() ([]byte, error) {
	if c.ClientEmail == "" || c.PrivateKey == "" {
		return nil, errors.New("google: client email and private key are required")
	}
	return json.Marshal(map[string]string{
		"type":         "service_account",
		"client_email": c.ClientEmail,
		"private_key":  NormalizePrivateKey(c.PrivateKey),
		"project_id":   c.ProjectID,
	})
}

// NormalizePrivateKey undoes the usual damage done to a PEM key stored in an
// environment variable: surrounding quotes and literal "\n" sequences.
func NormalizePrivateKey(key string) string {
	key = strings.TrimSpace(key)
	key = strings.TrimPrefix(key, `"`)
	key = strings.TrimSuffix(key, `"`)
	return strings.ReplaceAll(key, `\n`, "\n")
}

// speechClient is the subset of the Cloud client the provider uses.
type speechClient interface {
	SynthesizeSpeech(ctx context.Context, req *texttospeechpb.SynthesizeSpeechRequest) (*texttospeechpb.SynthesizeSpeechResponse, error)
	Close() error
}

// cloudClient adapts *texttospeech.Client to speechClient.
type cloudClient struct {
	c *texttospeech.Client
}

func (cc cloudClient) SynthesizeSpeech(ctx context.Context, req *texttospeechpb.SynthesizeSpeechRequest) (*texttospeechpb.SynthesizeSpeechResponse, error) {
	return cc.c.SynthesizeSpeech(ctx, req)
}

func (cc cloudClient) Close() error { return cc.c.Close() }

// Option is a functional option for Provider.
type Option func(*Provider)

// WithSpeakingRate sets the speaking rate (0.25–4.0, 1.0 = normal).
func WithSpeakingRate(rate float64) Option {
	return func(p *Provider) { p.speakingRate = rate }
}

// WithPitch sets the pitch in semitones (-20.0–20.0).
func WithPitch(pitch float64) Option {
	return func(p *Provider) { p.pitch = pitch }
}

// WithGender sets the preferred SSML gender when a voice name is not given.
func WithGender(g texttospeechpb.SsmlVoiceGender) Option {
	return func(p *Provider) { p.gender = g }
}

// Provider implements tts.Provider using Google Cloud Text-to-Speech.
type Provider struct {
	client       speechClient
	speakingRate float64
	pitch        float64
	gender       texttospeechpb.SsmlVoiceGender

	closeOnce sync.Once
	closeErr  error
}

// Compile-time assertion that Provider implements tts.Provider.
var _ tts.Provider = (*Provider)(nil)

// New dials the Text-to-Speech API with creds. Errors are wrapped with
// types.ErrInit since synthesis cannot work without a client.
func New(ctx context.Context, creds Credentials, opts ...Option) (*Provider, error) {
	raw, err := creds.JSON()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrInit, err)
	}
	clientOpts := []option.ClientOption{option.WithCredentialsJSON(raw)}
	if creds.ProjectID != "" {
		clientOpts = append(clientOpts, option.WithQuotaProject(creds.ProjectID))
	}
	return NewWithClientOptions(ctx, clientOpts, opts...)
}

// NewWithClientOptions dials the API with arbitrary client options, e.g.
// option.WithCredentialsFile or application default credentials (none).
func NewWithClientOptions(ctx context.Context, clientOpts []option.ClientOption, opts ...Option) (*Provider, error) {
	c, err := texttospeech.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("%w: google: new client: %w", types.ErrInit, err)
	}
	return newProvider(cloudClient{c: c}, opts...), nil
}

func newProvider(client speechClient, opts ...Option) *Provider {
	p := &Provider{
		client: client,
		gender: texttospeechpb.SsmlVoiceGender_NEUTRAL,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, text string, voice tts.Voice) (audio.Clip, error) {
	if strings.TrimSpace(text) == "" {
		return audio.Clip{}, fmt.Errorf("%w: google: empty text", types.ErrSynthesis)
	}
	resp, err := p.client.SynthesizeSpeech(ctx, p.buildRequest(text, voice))
	if err != nil {
		return audio.Clip{}, fmt.Errorf("%w: google: %w", types.ErrSynthesis, err)
	}
	if len(resp.GetAudioContent()) == 0 {
		return audio.Clip{}, fmt.Errorf("%w: google: empty audio content", types.ErrSynthesis)
	}
	return audio.Clip{Data: resp.GetAudioContent(), Encoding: audio.EncodingMP3}, nil
}

func (p *Provider) buildRequest(text string, voice tts.Voice) *texttospeechpb.SynthesizeSpeechRequest {
	if voice.LanguageCode == "" {
		voice = tts.DefaultVoice
	}
	return &texttospeechpb.SynthesizeSpeechRequest{
		Input: &texttospeechpb.SynthesisInput{
			InputSource: &texttospeechpb.SynthesisInput_Text{Text: text},
		},
		Voice: &texttospeechpb.VoiceSelectionParams{
			LanguageCode: voice.LanguageCode,
			Name:         voice.Name,
			SsmlGender:   p.gender,
		},
		AudioConfig: &texttospeechpb.AudioConfig{
			AudioEncoding: texttospeechpb.AudioEncoding_MP3,
			SpeakingRate:  p.speakingRate,
			Pitch:         p.pitch,
		},
	}
}

// Close releases the underlying gRPC connection. Safe to call more than once.
func (p *Provider) Close() error {
	p.closeOnce.Do(func() { p.closeErr = p.client.Close() })
	return p.closeErr
}
