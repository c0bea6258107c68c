package suggestions

import "testing"

func TestGenerator_FirstMatchOnly(t *testing.T) {
	g := NewGenerator(DefaultTriggers)

	got, ok := g.Generate("Work has been hard and my sleep is poor")
	if !ok {
		t.Fatal("Expected a suggestion")
	}
	if got != DefaultTriggers[0].Suggestion {
		t.Errorf("Expected sleep suggestion, got %q", got)
	}
	if len(g.Active()) != 1 {
		t.Errorf("Expected 1 active suggestion, got %d", len(g.Active()))
	}
}

func TestGenerator_NoFallthroughWhenActive(t *testing.T) {
	g := NewGenerator(DefaultTriggers)
	g.Generate("I can't sleep")

	// sleep matches first and is already active, so work is never reached
	if _, ok := g.Generate("sleep and work are both a mess"); ok {
		t.Error("Expected no suggestion when first match is already active")
	}
	if len(g.Active()) != 1 {
		t.Errorf("Expected 1 active suggestion, got %d", len(g.Active()))
	}
}

func TestGenerator_NoMatch(t *testing.T) {
	g := NewGenerator(DefaultTriggers)
	if _, ok := g.Generate("The weather is nice"); ok {
		t.Error("Expected no suggestion")
	}
}

func TestGenerator_ActiveInsertionOrder(t *testing.T) {
	g := NewGenerator(DefaultTriggers)
	g.Generate("Lots of ANXIETY")
	g.Generate("negative thoughts")
	g.Generate("work stress")

	active := g.Active()
	want := []string{
		DefaultTriggers[4].Suggestion,
		DefaultTriggers[3].Suggestion,
		DefaultTriggers[1].Suggestion,
	}
	if len(active) != len(want) {
		t.Fatalf("Expected %d active, got %d", len(want), len(active))
	}
	for i := range want {
		if active[i] != want[i] {
			t.Errorf("Position %d: expected %q, got %q", i, want[i], active[i])
		}
	}
}

func TestGenerator_Consume(t *testing.T) {
	g := NewGenerator(DefaultTriggers)
	first, _ := g.Generate("sleep")
	second, _ := g.Generate("mindfulness")

	if !g.Consume(first) {
		t.Fatal("Expected consume to succeed")
	}
	if g.Notes() != first {
		t.Errorf("Expected notes %q, got %q", first, g.Notes())
	}
	g.Consume(second)
	if want := first + "\n\n" + second; g.Notes() != want {
		t.Errorf("Expected notes %q, got %q", want, g.Notes())
	}
	if len(g.Active()) != 0 {
		t.Errorf("Expected no active suggestions, got %d", len(g.Active()))
	}
	if g.Consume(first) {
		t.Error("Expected consuming an inactive suggestion to fail")
	}

	// consumed suggestions can be produced again
	if _, ok := g.Generate("sleep"); !ok {
		t.Error("Expected consumed suggestion to be generated again")
	}
}

func TestGenerator_SetNotes(t *testing.T) {
	g := NewGenerator(DefaultTriggers)
	g.SetNotes("Patient arrived late.")
	s, _ := g.Generate("work")
	g.Consume(s)

	if want := "Patient arrived late.\n\n" + s; g.Notes() != want {
		t.Errorf("Expected %q, got %q", want, g.Notes())
	}
}
