// Package suggestions turns finalized utterances into clinical note suggestions.
package suggestions

import (
	"strings"
	"sync"
)

// Trigger maps a keyword to the suggestion it produces
type Trigger struct {
	Keyword    string
	Suggestion string
}

// DefaultTriggers are evaluated in order; only the first match produces a suggestion
var DefaultTriggers = []Trigger{
	{"sleep", "Consider exploring the patient's sleep patterns in more detail."},
	{"work", "The patient mentioned work stress - this might be worth discussing further."},
	{"mindfulness", "Patient shows improvement in applying mindfulness techniques."},
	{"negative", "Consider assigning a thought record for negative thought patterns."},
	{"anxiety", "Might benefit from additional relaxation techniques for anxiety management."},
}

// Generator keeps the active suggestion list and the clinician's notes
type Generator struct {
	triggers []Trigger

	mu     sync.Mutex
	active []string
	notes  string
}

// NewGenerator creates a generator over triggers
func NewGenerator(triggers []Trigger) *Generator {
	g := &Generator{triggers: make([]Trigger, len(triggers))}
	for i, t := range triggers {
		g.triggers[i] = Trigger{Keyword: strings.ToLower(t.Keyword), Suggestion: t.Suggestion}
	}
	return g
}

// Generate finds the first trigger contained in text. A match whose suggestion
// is already active produces nothing; later triggers are not consulted.
func (g *Generator) Generate(text string) (string, bool) {
	lower := strings.ToLower(text)

	for _, t := range g.triggers {
		if !strings.Contains(lower, t.Keyword) {
			continue
		}

		g.mu.Lock()
		defer g.mu.Unlock()
		for _, s := range g.active {
			if s == t.Suggestion {
				return "", false
			}
		}
		g.active = append(g.active, t.Suggestion)
		return t.Suggestion, true
	}
	return "", false
}

// Active returns the pending suggestions in insertion order
func (g *Generator) Active() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, len(g.active))
	copy(out, g.active)
	return out
}

// Consume moves an active suggestion into the notes, separated by a blank line
func (g *Generator) Consume(suggestion string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	for i, s := range g.active {
		if s != suggestion {
			continue
		}
		g.active = append(g.active[:i], g.active[i+1:]...)
		if g.notes == "" {
			g.notes = suggestion
		} else {
			g.notes += "\n\n" + suggestion
		}
		return true
	}
	return false
}

// Notes returns the clinician's note text
func (g *Generator) Notes() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.notes
}

// SetNotes replaces the note text with the clinician's own edits
func (g *Generator) SetNotes(notes string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.notes = notes
}
