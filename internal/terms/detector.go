// Package terms detects clinical terms in finalized utterances.
package terms

import (
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/lexiqai/session-gateway/internal/clock"
)

// DefaultCooldown is the number of session seconds before the same term may be emitted again
const DefaultCooldown = 120

// Term is one entry of the detection table
type Term struct {
	Keyword    string
	Definition string
}

// DefaultTable is the clinical vocabulary recognised during sessions
var DefaultTable = []Term{
	{"anxiety", "A mental health disorder characterized by feelings of worry, anxiety, or fear that are strong enough to interfere with one's daily activities."},
	{"depression", "A mental health disorder characterized by persistently depressed mood or loss of interest in activities, causing significant impairment in daily life."},
	{"mindfulness", "A mental state achieved by focusing one's awareness on the present moment, while calmly acknowledging and accepting one's feelings, thoughts, and bodily sensations."},
	{"insomnia", "A sleep disorder in which people have persistent difficulty falling asleep or staying asleep, despite adequate opportunity to sleep."},
	{"panic attack", "A sudden episode of intense fear that triggers severe physical reactions such as a racing heart, shortness of breath, or dizziness when there is no real danger."},
	{"cognitive distortion", "An exaggerated or irrational thought pattern, such as catastrophizing or all-or-nothing thinking, that reinforces negative emotions."},
	{"rumination", "Repetitive, passive focus on the causes and consequences of one's distress rather than on solutions, commonly associated with depression and anxiety."},
	{"social anxiety", "An intense, persistent fear of being watched and judged by others that can interfere with work, school, and other daily activities."},
}

// DetectedTerm is a term occurrence surfaced to the clinician
type DetectedTerm struct {
	ID             string `json:"id"`
	Term           string `json:"term"`
	Definition     string `json:"definition"`
	Timestamp      string `json:"timestamp"`
	Second         int    `json:"second"`
	RelatedRecords bool   `json:"relatedRecords"`
	Viewed         bool   `json:"viewed"`
}

// RecordLookup reports whether the patient's records mention a term
type RecordLookup interface {
	HasRelatedRecord(term string) bool
}

// Detector matches finalized text against the term table with a per-term cooldown
type Detector struct {
	table    []Term
	lookup   RecordLookup
	cooldown int

	mu       sync.RWMutex
	detected []DetectedTerm
	lastSeen map[string]int
}

// Option customizes a Detector
type Option func(*Detector)

// WithCooldown sets the re-emission cooldown in session seconds
func WithCooldown(seconds int) Option {
	return func(d *Detector) { d.cooldown = seconds }
}

// WithRecordLookup sets the source for the RelatedRecords flag
func WithRecordLookup(l RecordLookup) Option {
	return func(d *Detector) { d.lookup = l }
}

// NewDetector creates a detector over table; keywords are matched lowercase
func NewDetector(table []Term, opts ...Option) *Detector {
	d := &Detector{
		table:    make([]Term, len(table)),
		cooldown: DefaultCooldown,
		lastSeen: make(map[string]int),
	}
	for i, t := range table {
		d.table[i] = Term{Keyword: strings.ToLower(t.Keyword), Definition: t.Definition}
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Detect emits a DetectedTerm for every table keyword contained in text,
// skipping terms emitted less than the cooldown before second. Several
// terms can be emitted for one utterance, in table order.
func (d *Detector) Detect(text string, second int) []DetectedTerm {
	lower := strings.ToLower(text)
	if strings.TrimSpace(lower) == "" {
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	var out []DetectedTerm
	for _, t := range d.table {
		if !strings.Contains(lower, t.Keyword) {
			continue
		}
		if last, ok := d.lastSeen[t.Keyword]; ok && second-last < d.cooldown {
			continue
		}

		dt := DetectedTerm{
			ID:         uuid.NewString(),
			Term:       t.Keyword,
			Definition: t.Definition,
			Timestamp:  clock.FormatTime(second),
			Second:     second,
		}
		if d.lookup != nil {
			dt.RelatedRecords = d.lookup.HasRelatedRecord(t.Keyword)
		}
		d.lastSeen[t.Keyword] = second
		d.detected = append(d.detected, dt)
		out = append(out, dt)
	}
	return out
}

// Terms returns every detected term in emission order
func (d *Detector) Terms() []DetectedTerm {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]DetectedTerm, len(d.detected))
	copy(out, d.detected)
	return out
}

// MarkViewed flags a detected term as opened by the clinician
func (d *Detector) MarkViewed(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range d.detected {
		if d.detected[i].ID == id {
			d.detected[i].Viewed = true
			return true
		}
	}
	return false
}

// Unviewed counts terms the clinician has not opened yet
func (d *Detector) Unviewed() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	n := 0
	for _, t := range d.detected {
		if !t.Viewed {
			n++
		}
	}
	return n
}

// Search filters detected terms whose term or definition contains query, case-insensitively
func (d *Detector) Search(query string) []DetectedTerm {
	q := strings.ToLower(strings.TrimSpace(query))
	all := d.Terms()
	if q == "" {
		return all
	}
	var out []DetectedTerm
	for _, t := range all {
		if strings.Contains(t.Term, q) || strings.Contains(strings.ToLower(t.Definition), q) {
			out = append(out, t)
		}
	}
	return out
}
