// Package langgate hides local utterances whose script is outside the set
// of languages the agent is expected to speak.
package langgate

import (
	"fmt"
	"strings"
	"sync"
	"unicode"

	"parley/transcript"
)

type Script string

const (
	Greek    Script = "el"
	Cyrillic Script = "ru"
	Latin    Script = "latin"
	Unknown  Script = "unknown"
)

// passLen is the longest utterance that is never filtered.
const passLen = 2

var placeholders = map[Script]string{
	Latin:    "(unclear speech)",
	Greek:    "(ακατάληπτη ομιλία)",
	Cyrillic: "(неразборчивая речь)",
}

func DefaultAllowed() []Script { return []Script{Latin, Greek, Cyrillic} }

func ParseScript(s string) (Script, error) {
	switch Script(strings.ToLower(strings.TrimSpace(s))) {
	case Latin, "en", "fr", "de":
		return Latin, nil
	case Greek:
		return Greek, nil
	case Cyrillic:
		return Cyrillic, nil
	}
	return Unknown, fmt.Errorf("unsupported script %q", s)
}

func scriptOf(r rune) Script {
	switch {
	case r >= 0x0370 && r <= 0x03FF, r >= 0x1F00 && r <= 0x1FFF:
		return Greek
	case r >= 0x0400 && r <= 0x04FF:
		return Cyrillic
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= 0x00C0 && r <= 0x024F:
		return Latin
	}
	return Unknown
}

// Classify returns the dominant script of text: the one with the most
// letters, ties going to Greek, then Cyrillic, then Latin. Letters of any
// other script count toward Unknown, which loses every tie. ok is false
// when text has no letters.
func Classify(text string) (s Script, ok bool) {
	counts := map[Script]int{}
	for _, r := range text {
		if !unicode.IsLetter(r) {
			continue
		}
		counts[scriptOf(r)]++
	}
	best, bestN := Unknown, 0
	for _, cand := range []Script{Greek, Cyrillic, Latin, Unknown} {
		if n := counts[cand]; n > bestN {
			best, bestN = cand, n
		}
	}
	return best, bestN > 0
}

// Gate filters a display copy of the transcript. It remembers the
// language the agent last spoke to localize the placeholder.
type Gate struct {
	allowed map[Script]bool

	mu        sync.Mutex
	lastAgent Script
}

func New(allowed []Script) *Gate {
	if len(allowed) == 0 {
		allowed = DefaultAllowed()
	}
	g := &Gate{allowed: make(map[Script]bool, len(allowed)), lastAgent: Latin}
	for _, s := range allowed {
		g.allowed[s] = true
	}
	return g
}

// LastAgentLanguage is the script of the latest classifiable agent entry.
func (g *Gate) LastAgentLanguage() Script {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastAgent
}

// Reset forgets the agent language of a previous conversation.
func (g *Gate) Reset() {
	g.mu.Lock()
	g.lastAgent = Latin
	g.mu.Unlock()
}

// Filter returns entries with disallowed local utterances replaced. The
// input slice is not modified.
func (g *Gate) Filter(entries []transcript.Entry) []transcript.Entry {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]transcript.Entry, len(entries))
	copy(out, entries)
	for i := range out {
		e := &out[i]
		if !e.Local() {
			if s, ok := Classify(e.Text); ok && s != Unknown {
				g.lastAgent = s
			}
			continue
		}
		if g.pass(e.Text) {
			continue
		}
		e.Text = g.placeholder()
	}
	return out
}

func (g *Gate) pass(text string) bool {
	if len([]rune(strings.TrimSpace(text))) <= passLen {
		return true
	}
	s, ok := Classify(text)
	if !ok {
		return true
	}
	return g.allowed[s]
}

func (g *Gate) placeholder() string {
	if p, ok := placeholders[g.lastAgent]; ok {
		return p
	}
	return placeholders[Latin]
}
