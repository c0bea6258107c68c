package notify

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	n := NewLogNotifier(zerolog.New(&buf))

	n.Notify(Notification{Title: "Microphone blocked", Description: "Allow access", Variant: VariantDestructive})

	out := buf.String()
	if !strings.Contains(out, `"level":"warn"`) {
		t.Errorf("Expected destructive notification at warn level, got %s", out)
	}
	if !strings.Contains(out, "Microphone blocked") {
		t.Errorf("Expected title in log output, got %s", out)
	}
}

func TestMulti(t *testing.T) {
	a := &Recorder{}
	b := &Recorder{}
	Multi{a, nil, b}.Notify(Notification{Title: "Saved"})

	if len(a.Sent()) != 1 || len(b.Sent()) != 1 {
		t.Errorf("Expected both recorders to receive the notification, got %d and %d", len(a.Sent()), len(b.Sent()))
	}
}
