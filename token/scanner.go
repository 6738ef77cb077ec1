// Package token turns free text into normalized word tokens.
package token

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Config is the tokenization policy. The dataset's historical pipelines
// disagreed on both knobs, so they are explicit configuration and are
// broadcast to every participant with the work assignment.
type Config struct {
	// Apostrophe keeps ' as a word character ("don't" stays one token).
	Apostrophe bool `yaml:"apostrophe"`
	// MinLen drops tokens shorter than this many runes. 0 means no minimum.
	MinLen int `yaml:"min_len"`
}

// Scanner emits tokens lazily, one boundary at a time, with no lookahead
// beyond the current rune. Use it like bufio.Scanner:
//
//	s := token.NewScanner(text, cfg)
//	for s.Scan() {
//		m.Increment(s.Token(), 1)
//	}
type Scanner struct {
	text string
	cfg  Config
	buf  strings.Builder
	tok  string
}

// NewScanner returns a scanner over text.
func NewScanner(text string, cfg Config) *Scanner {
	return &Scanner{text: text, cfg: cfg}
}

func (s *Scanner) isWordRune(r rune) bool {
	if s.cfg.Apostrophe && r == '\'' {
		return true
	}
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// Scan advances to the next token long enough to emit, reporting false at
// end of text.
func (s *Scanner) Scan() bool {
	text := s.text
	for len(text) > 0 {
		i := 0
		for i < len(text) { // skip separators
			r, w := utf8.DecodeRuneInString(text[i:])
			if s.isWordRune(r) {
				break
			}
			i += w
		}
		s.buf.Reset()
		n := 0
		for i < len(text) { // accumulate lowercased word runes
			r, w := utf8.DecodeRuneInString(text[i:])
			if !s.isWordRune(r) {
				break
			}
			s.buf.WriteRune(unicode.ToLower(r))
			n++
			i += w
		}
		text = text[i:]
		if n == 0 {
			break
		}
		if n >= s.cfg.MinLen {
			s.text = text
			s.tok = s.buf.String()
			return true
		}
		// token below the minimum length: keep scanning
	}
	s.text = ""
	return false
}

// Token returns the token found by the last successful Scan.
func (s *Scanner) Token() string { return s.tok }

// Split tokenizes the whole text at once.
func Split(text string, cfg Config) []string {
	var out []string
	s := NewScanner(text, cfg)
	for s.Scan() {
		out = append(out, s.Token())
	}
	return out
}
