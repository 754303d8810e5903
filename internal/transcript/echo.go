// Package transcript cleans up transcribed utterances before they reach the
// response generator.
//
// The recorder starts right after the wake word fires, so the speaker's wake
// phrase (or its tail) is often transcribed at the start of the utterance.
// [WakeEcho] removes such a leading echo using Double Metaphone phonetic
// codes combined with Jaro-Winkler similarity:
//
//  1. The leading words of the transcript are compared against each wake
//     phrase, allowing one word more or less to absorb split or merged words
//     ("hey jar vis" vs "hey jarvis").
//  2. The end of the prefix must sound like the last word of the wake phrase
//     (overlapping Double Metaphone codes). Only then is the Jaro-Winkler
//     score of the whole prefix compared against the threshold.
package transcript

import (
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.80

	// maxTailSlack bounds the length difference between a split or merged
	// tail and the word it stands for. Double Metaphone codes are truncated
	// to four characters, so longer joins would match on their head alone.
	maxTailSlack = 2
)

// Option is a functional option for configuring a [WakeEcho].
type Option func(*WakeEcho)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score for a prefix whose
// tail sounds like the wake phrase's last word. Default: 0.80.
func WithPhoneticThreshold(threshold float64) Option {
	return func(w *WakeEcho) { w.phoneticThreshold = threshold }
}

// WakeEcho strips a leading wake phrase from transcripts. It is read-only
// after construction and safe for concurrent use.
type WakeEcho struct {
	phrases           [][]string
	phoneticThreshold float64
}

// NewWakeEcho returns a stripper for the given wake phrases. Empty phrases
// are ignored; with none left, Strip returns its input unchanged.
func NewWakeEcho(phrases []string, opts ...Option) *WakeEcho {
	w := &WakeEcho{
		phoneticThreshold: defaultPhoneticThreshold,
	}
	for _, p := range phrases {
		if tokens := normalize(strings.Fields(p)); len(tokens) > 0 {
			w.phrases = append(w.phrases, tokens)
		}
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// Strip removes a leading wake phrase from text and reports whether it did.
// The remainder keeps its original words; punctuation between the wake phrase
// and the remainder is dropped. A transcript that consists only of the wake
// phrase yields "".
func (w *WakeEcho) Strip(text string) (string, bool) {
	fields := strings.Fields(text)
	if len(fields) == 0 || len(w.phrases) == 0 {
		return strings.TrimSpace(text), false
	}
	words := normalize(fields)

	bestLen, bestScore := 0, 0.0
	for _, phrase := range w.phrases {
		for n := max(len(phrase)-1, 1); n <= len(phrase)+1 && n <= len(words); n++ {
			score, ok := w.score(words[:n], phrase)
			if ok && score > bestScore {
				bestLen, bestScore = n, score
			}
		}
	}
	if bestLen == 0 {
		return strings.TrimSpace(text), false
	}

	rest := strings.Join(fields[bestLen:], " ")
	rest = strings.TrimLeftFunc(rest, func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSpace(r)
	})
	return rest, true
}

// score compares a transcript prefix with a wake phrase. A prefix whose tail
// does not sound like the phrase's last word never matches.
func (w *WakeEcho) score(prefix, phrase []string) (float64, bool) {
	if !tailSoundsLike(prefix, phrase) {
		return 0, false
	}
	jw := bestJWScore(prefix, phrase)
	return jw, jw >= w.phoneticThreshold
}

// tailSoundsLike reports whether the end of prefix sounds like the last word
// of phrase. A prefix one word longer than the phrase is checked with its last
// two words joined ("jar vis"); a shorter prefix may also have merged the last
// two phrase words ("heyjarvis").
func tailSoundsLike(prefix, phrase []string) bool {
	last := phrase[len(phrase)-1]
	tail := prefix[len(prefix)-1]
	switch {
	case len(prefix) > len(phrase):
		return soundsLike(strings.Join(prefix[len(prefix)-2:], ""), last)
	case len(prefix) < len(phrase):
		return soundsLike(tail, last) ||
			soundsLike(tail, strings.Join(phrase[len(phrase)-2:], ""))
	default:
		return soundsLike(tail, last)
	}
}

func soundsLike(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	if d := len(a) - len(b); d > maxTailSlack || d < -maxTailSlack {
		return false
	}
	return codesOverlap(codesForTokens([]string{a}), codesForTokens([]string{b}))
}

// normalize lower-cases tokens and trims surrounding punctuation. Tokens that
// are pure punctuation are dropped from the comparison but keep their slot so
// indices still line up with the original fields.
func normalize(fields []string) []string {
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = strings.TrimFunc(strings.ToLower(f), func(r rune) bool {
			return unicode.IsPunct(r) || unicode.IsSymbol(r)
		})
	}
	return out
}

// codesForTokens returns the union of all Double Metaphone codes for the
// given tokens.
func codesForTokens(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		if t == "" {
			continue
		}
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// bestJWScore compares the full phrases and their space-stripped forms and
// returns the higher Jaro-Winkler similarity. Word-by-word pairing is not
// used: a single shared word must not make a whole prefix an echo.
func bestJWScore(prefix, phrase []string) float64 {
	score := matchr.JaroWinkler(strings.Join(prefix, " "), strings.Join(phrase, " "), false)
	if s := matchr.JaroWinkler(strings.Join(prefix, ""), strings.Join(phrase, ""), false); s > score {
		score = s
	}
	return score
}
