// Package transcript reconciles interim and final utterance events into an
// ordered session transcript.
package transcript

import (
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Entry is one line of the transcript
type Entry struct {
	ID        string `json:"id"`
	Seq       uint64 `json:"seq"`
	Speaker   string `json:"speaker"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"` // MM:SS session clock label
	IsInterim bool   `json:"isInterim"`
}

// Event is an utterance fragment from a transcription producer
type Event struct {
	Text      string
	IsFinal   bool
	Speaker   string
	Timestamp string
}

// FinalHandler observes each permanent entry in finalization order
type FinalHandler func(Entry)

// Reconciler owns the transcript. At most one interim entry exists and it is
// always last; permanent entries are never modified or removed.
type Reconciler struct {
	// applyMu serializes Apply including handler dispatch so producers cannot interleave
	applyMu  sync.Mutex
	mu       sync.RWMutex
	entries  []Entry
	seq      uint64
	handlers []FinalHandler
	newID    func() string
}

// NewReconciler creates an empty transcript
func NewReconciler() *Reconciler {
	return &Reconciler{newID: newEntryID}
}

// newEntryID returns a time-ordered UUIDv7 so IDs sort by creation
func newEntryID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// OnFinal registers a handler for finalized entries
func (r *Reconciler) OnFinal(h FinalHandler) {
	r.applyMu.Lock()
	defer r.applyMu.Unlock()
	r.handlers = append(r.handlers, h)
}

// Apply folds one event into the transcript: any trailing interim entry is
// dropped, then the event is appended as interim or permanent. Blank text is
// ignored. Final entries are passed to every FinalHandler before Apply returns.
func (r *Reconciler) Apply(ev Event) (Entry, bool) {
	text := strings.TrimSpace(ev.Text)
	if text == "" {
		return Entry{}, false
	}

	r.applyMu.Lock()
	defer r.applyMu.Unlock()

	r.mu.Lock()
	if n := len(r.entries); n > 0 && r.entries[n-1].IsInterim {
		r.entries = r.entries[:n-1]
	}
	r.seq++
	entry := Entry{
		ID:        r.newID(),
		Seq:       r.seq,
		Speaker:   ev.Speaker,
		Text:      text,
		Timestamp: ev.Timestamp,
		IsInterim: !ev.IsFinal,
	}
	r.entries = append(r.entries, entry)
	r.mu.Unlock()

	if ev.IsFinal {
		for _, h := range r.handlers {
			h(entry)
		}
	}
	return entry, true
}

// Entries returns a copy of the transcript, interim tail included
func (r *Reconciler) Entries() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Finalized returns only the permanent entries
func (r *Reconciler) Finalized() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		if !e.IsInterim {
			out = append(out, e)
		}
	}
	return out
}

// Interim returns the pending interim entry, if any
func (r *Reconciler) Interim() (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if n := len(r.entries); n > 0 && r.entries[n-1].IsInterim {
		return r.entries[n-1], true
	}
	return Entry{}, false
}

// Len returns the number of entries including the interim tail
func (r *Reconciler) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
