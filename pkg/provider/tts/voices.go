package tts

import (
	"strings"

	"github.com/MrWong99/voxgate/pkg/types"
)

// DefaultVoice is used whenever a language tag cannot be mapped.
var DefaultVoice = Voice{LanguageCode: "en-US", Name: "en-US-Standard-D"}

// languageNames maps the full English language names reported by Whisper to
// ISO 639-1 codes.
var languageNames = map[string]string{
	"english":    "en",
	"german":     "de",
	"french":     "fr",
	"spanish":    "es",
	"italian":    "it",
	"portuguese": "pt",
	"dutch":      "nl",
	"polish":     "pl",
	"swedish":    "sv",
	"danish":     "da",
	"norwegian":  "nb",
	"turkish":    "tr",
	"russian":    "ru",
	"japanese":   "ja",
	"korean":     "ko",
	"chinese":    "zh",
}

// voices maps ISO 639-1 codes to a synthesis voice.
var voices = map[string]Voice{
	"en": DefaultVoice,
	"de": {LanguageCode: "de-DE", Name: "de-DE-Standard-B"},
	"fr": {LanguageCode: "fr-FR", Name: "fr-FR-Standard-B"},
	"es": {LanguageCode: "es-ES", Name: "es-ES-Standard-B"},
	"it": {LanguageCode: "it-IT", Name: "it-IT-Standard-C"},
	"pt": {LanguageCode: "pt-BR", Name: "pt-BR-Standard-B"},
	"nl": {LanguageCode: "nl-NL", Name: "nl-NL-Standard-B"},
	"pl": {LanguageCode: "pl-PL", Name: "pl-PL-Standard-B"},
	"sv": {LanguageCode: "sv-SE", Name: "sv-SE-Standard-D"},
	"da": {LanguageCode: "da-DK", Name: "da-DK-Standard-C"},
	"nb": {LanguageCode: "nb-NO", Name: "nb-NO-Standard-B"},
	"tr": {LanguageCode: "tr-TR", Name: "tr-TR-Standard-B"},
	"ru": {LanguageCode: "ru-RU", Name: "ru-RU-Standard-B"},
	"ja": {LanguageCode: "ja-JP", Name: "ja-JP-Standard-C"},
	"ko": {LanguageCode: "ko-KR", Name: "ko-KR-Standard-C"},
	"zh": {LanguageCode: "cmn-CN", Name: "cmn-CN-Standard-B"},
}

// BaseLanguage normalises a language tag to its ISO 639-1 code. It accepts
// full names ("German"), ISO codes ("de") and BCP-47 tags ("de-DE",
// "de_AT"). Unknown or empty tags yield types.DefaultLanguage.
func BaseLanguage(tag string) string {
	t := strings.ToLower(strings.TrimSpace(tag))
	if t == "" {
		return types.DefaultLanguage
	}
	if code, ok := languageNames[t]; ok {
		return code
	}
	if i := strings.IndexAny(t, "-_"); i > 0 {
		t = t[:i]
	}
	if t == "no" {
		t = "nb"
	}
	if _, ok := voices[t]; ok {
		return t
	}
	return types.DefaultLanguage
}

// VoiceFor maps a language tag to a synthesis voice, falling back to
// DefaultVoice for anything unmapped.
func VoiceFor(tag string) Voice {
	if v, ok := voices[BaseLanguage(tag)]; ok {
		return v
	}
	return DefaultVoice
}

// Supported reports whether tag maps to a voice of its own rather than
// falling back to DefaultVoice.
func Supported(tag string) bool {
	t := strings.ToLower(strings.TrimSpace(tag))
	if _, ok := languageNames[t]; ok {
		return true
	}
	if i := strings.IndexAny(t, "-_"); i > 0 {
		t = t[:i]
	}
	_, ok := voices[t]
	return ok || t == "no"
}
