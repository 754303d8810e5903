package turn

import (
	"strings"
	"unicode"
)

// SplitPhrases breaks reply text into sentence-bounded phrases for synthesis.
// A sentence ends at '.', '!' or '?' followed by whitespace, or at a line
// break. Sentences longer than maxChars (when positive) are split again at
// the last space, comma or semicolon before the limit, or hard at the limit
// when there is none. Empty phrases are dropped.
func SplitPhrases(text string, maxChars int) []string {
	var phrases []string
	for _, s := range sentences(text) {
		phrases = append(phrases, limit(s, maxChars)...)
	}
	return phrases
}

func sentences(text string) []string {
	var out []string
	add := func(s string) {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}

	start := 0
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '\n', '\r':
			add(text[start:i])
			start = i + 1
		case '.', '!', '?':
			if i+1 < len(text) && isSpace(text[i+1]) {
				add(text[start : i+1])
				start = i + 1
			}
		}
	}
	add(text[start:])
	return out
}

func limit(s string, maxChars int) []string {
	if maxChars <= 0 {
		return []string{s}
	}
	var out []string
	for len([]rune(s)) > maxChars {
		r := []rune(s)
		cut := -1
		for i := maxChars; i > 0; i-- {
			if unicode.IsSpace(r[i]) || r[i-1] == ',' || r[i-1] == ';' {
				cut = i
				break
			}
		}
		if cut <= 0 {
			cut = maxChars
		}
		if head := strings.TrimSpace(string(r[:cut])); head != "" {
			out = append(out, head)
		}
		s = strings.TrimSpace(string(r[cut:]))
	}
	if s != "" {
		out = append(out, s)
	}
	return out
}

func isSpace(b byte) bool {
	switch b {
	case ' ', '\t', '\n', '\r':
		return true
	}
	return false
}
