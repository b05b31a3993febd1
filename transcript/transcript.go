// Package transcript reconciles streaming speech-recognition segments into
// a stable, ordered transcript.
package transcript

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

const (
	You   = "You"
	Agent = "Agent"
)

// syntheticKeyRunes is how much of the text identifies a segment that
// arrived without an ID.
const syntheticKeyRunes = 16

type Segment struct {
	ID       string
	Text     string
	Final    bool
	Local    bool
	Language string
}

type Entry struct {
	Key       string
	Speaker   string
	Text      string
	Final     bool
	CreatedAt time.Time
}

func (e Entry) Local() bool { return e.Speaker == You }

type Mode int

const (
	ModeStable Mode = iota
	ModeFinal
	ModeInstant
)

func (m Mode) String() string {
	switch m {
	case ModeFinal:
		return "final"
	case ModeInstant:
		return "instant"
	default:
		return "stable"
	}
}

func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "stable":
		return ModeStable, nil
	case "final":
		return ModeFinal, nil
	case "instant":
		return ModeInstant, nil
	}
	return ModeStable, fmt.Errorf("unknown transcript mode %q", s)
}

type entry struct {
	Entry
	seq uint64
}

// Reconciler holds at most one live entry per key. Entries are ordered by
// the time their key was first seen, which never changes afterwards.
type Reconciler struct {
	clk  clock.Clock
	mode Mode

	mu      sync.Mutex
	entries []*entry // display order
	byKey   map[string]*entry
	seq     uint64
}

func NewReconciler(clk clock.Clock, mode Mode) *Reconciler {
	if clk == nil {
		clk = clock.New()
	}
	return &Reconciler{
		clk:   clk,
		mode:  mode,
		byKey: make(map[string]*entry),
	}
}

func (r *Reconciler) Mode() Mode { return r.mode }

// Key returns the identity a segment is reconciled under: its ID, or
// speaker plus the first 16 runes of its trimmed text.
func Key(seg Segment) string {
	if seg.ID != "" {
		return seg.ID
	}
	text := []rune(strings.TrimSpace(seg.Text))
	if len(text) > syntheticKeyRunes {
		text = text[:syntheticKeyRunes]
	}
	return speakerOf(seg.Local) + "-" + string(text)
}

func speakerOf(local bool) string {
	if local {
		return You
	}
	return Agent
}

// Apply merges one segment and reports whether the visible transcript
// changed.
func (r *Reconciler) Apply(seg Segment) bool {
	_, changed := r.ApplyDelivery([]Segment{seg})
	return changed
}

// ApplyDelivery merges the segments of one transcription event. Stable
// and final modes apply the last segment; instant mode concatenates all
// of them. The returned entry is the one created or updated.
func (r *Reconciler) ApplyDelivery(segs []Segment) (Entry, bool) {
	if len(segs) == 0 {
		return Entry{}, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.mode {
	case ModeFinal:
		return r.applyFinal(segs[len(segs)-1])
	case ModeInstant:
		return r.applyInstant(segs)
	default:
		return r.applyStable(segs[len(segs)-1])
	}
}

func (r *Reconciler) applyStable(seg Segment) (Entry, bool) {
	text := strings.TrimSpace(seg.Text)
	if text == "" {
		return Entry{}, false
	}
	key := Key(seg)
	if e, ok := r.byKey[key]; ok {
		if e.Text == text && e.Final == seg.Final {
			return e.Entry, false
		}
		e.Text = text
		e.Final = seg.Final
		return e.Entry, true
	}
	e := r.insert(key, speakerOf(seg.Local), text, seg.Final)
	return e.Entry, true
}

func (r *Reconciler) applyFinal(seg Segment) (Entry, bool) {
	text := strings.TrimSpace(seg.Text)
	if !seg.Final || text == "" {
		return Entry{}, false
	}
	if n := len(r.entries); n > 0 && r.entries[n-1].Text == text {
		return r.entries[n-1].Entry, false
	}
	// append-only: a repeated key gets a fresh slot
	key := fmt.Sprintf("%s#%d", Key(seg), r.seq)
	e := r.insert(key, speakerOf(seg.Local), text, true)
	return e.Entry, true
}

func (r *Reconciler) applyInstant(segs []Segment) (Entry, bool) {
	var b strings.Builder
	final := true
	for _, s := range segs {
		b.WriteString(s.Text)
		final = final && s.Final
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return Entry{}, false
	}
	speaker := speakerOf(segs[0].Local)
	if n := len(r.entries); n > 0 && r.entries[n-1].Speaker == speaker {
		e := r.entries[n-1]
		if e.Text == text && e.Final == final {
			return e.Entry, false
		}
		e.Text = text
		e.Final = final
		return e.Entry, true
	}
	e := r.insert(fmt.Sprintf("%s#%d", speaker, r.seq), speaker, text, final)
	return e.Entry, true
}

func (r *Reconciler) insert(key, speaker, text string, final bool) *entry {
	e := &entry{
		Entry: Entry{
			Key:       key,
			Speaker:   speaker,
			Text:      text,
			Final:     final,
			CreatedAt: r.clk.Now(),
		},
		seq: r.seq,
	}
	r.seq++
	r.byKey[key] = e
	r.entries = append(r.entries, e)
	// usually already last; only an injected clock can step backwards
	sort.SliceStable(r.entries, func(i, j int) bool {
		a, b := r.entries[i], r.entries[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.seq < b.seq
	})
	return e
}

// Reset clears the transcript at the start of a new connection attempt.
func (r *Reconciler) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = nil
	r.byKey = make(map[string]*entry)
	r.seq = 0
}

// Entries returns a copy of the transcript in display order.
func (r *Reconciler) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.Entry
	}
	return out
}

func (r *Reconciler) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Text renders the transcript as "Speaker: text" lines.
func Text(entries []Entry) string {
	var b strings.Builder
	for _, e := range entries {
		b.WriteString(e.Speaker)
		b.WriteString(": ")
		b.WriteString(e.Text)
		b.WriteByte('\n')
	}
	return b.String()
}
