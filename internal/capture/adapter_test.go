package capture

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/lexiqai/session-gateway/internal/notify"
)

type fakeEngine struct {
	mu       sync.Mutex
	h        Handlers
	stopped  bool
	startErr error
}

func (f *fakeEngine) Start(h Handlers) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.h = h
	return f.startErr
}

func (f *fakeEngine) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
	return nil
}

func (f *fakeEngine) handlers() Handlers {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.h
}

func (f *fakeEngine) isStopped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped
}

// fakeFactory hands out engines and can be told to fail
type fakeFactory struct {
	mu      sync.Mutex
	engines []*fakeEngine
	cfgs    []EngineConfig
	failErr error
}

func (f *fakeFactory) create(cfg EngineConfig) (Engine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cfgs = append(f.cfgs, cfg)
	if f.failErr != nil {
		return nil, f.failErr
	}
	e := &fakeEngine{}
	f.engines = append(f.engines, e)
	return e, nil
}

func (f *fakeFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.engines)
}

func (f *fakeFactory) engine(i int) *fakeEngine {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.engines[i]
}

func (f *fakeFactory) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failErr = err
}

type segmentLog struct {
	mu   sync.Mutex
	segs []string
}

func (l *segmentLog) callback(text string, isFinal bool, speaker string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	kind := "interim"
	if isFinal {
		kind = "final"
	}
	l.segs = append(l.segs, speaker+"|"+kind+"|"+text)
}

func (l *segmentLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.segs))
	copy(out, l.segs)
	return out
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestAdapter_Unsupported(t *testing.T) {
	a := NewAdapter(nil)
	if a.Supported() {
		t.Error("Expected unsupported adapter")
	}
	if a.Start(func(string, bool, string) {}) {
		t.Error("Expected Start to return false")
	}
	if a.Capability().Reason == "" {
		t.Error("Expected a reason for the missing capability")
	}
}

func TestAdapter_ResultsInOrderWithSpeaker(t *testing.T) {
	f := &fakeFactory{}
	var log segmentLog
	a := NewAdapter(f.create, WithSpeaker("Dr. Smith"), WithLocale("en-GB"))

	if !a.Start(log.callback) {
		t.Fatal("Expected Start to succeed")
	}
	h := f.engine(0).handlers()
	h.OnResult([]Segment{{"I feel", false}, {"I feel anxious", true}})
	a.SetSpeaker("You")
	h.OnResult([]Segment{{"ok", true}})

	want := []string{"Dr. Smith|interim|I feel", "Dr. Smith|final|I feel anxious", "You|final|ok"}
	got := log.all()
	if len(got) != len(want) {
		t.Fatalf("Expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Expected %s, got %s", want[i], got[i])
		}
	}

	cfg := f.cfgs[0]
	if cfg.Locale != "en-GB" || !cfg.Continuous || !cfg.InterimResults {
		t.Errorf("Unexpected engine config %+v", cfg)
	}
}

func TestAdapter_RestartOnceAfterEnd(t *testing.T) {
	f := &fakeFactory{}
	a := NewAdapter(f.create, WithRestartDelay(5*time.Millisecond))
	a.Start(nil)

	end := f.engine(0).handlers().OnEnd
	end()
	end() // a duplicate end from the same engine schedules nothing more

	waitFor(t, func() bool { return f.count() == 2 })
	time.Sleep(20 * time.Millisecond)
	if f.count() != 2 {
		t.Errorf("Expected exactly one restart, got %d engines", f.count())
	}
	if !a.Listening() {
		t.Error("Expected adapter to keep listening")
	}
}

func TestAdapter_FailedRestartStops(t *testing.T) {
	f := &fakeFactory{}
	a := NewAdapter(f.create, WithRestartDelay(time.Millisecond))
	a.Start(nil)

	f.fail(errors.New("engine busy"))
	f.engine(0).handlers().OnEnd()

	waitFor(t, func() bool { return !a.Listening() })
	time.Sleep(10 * time.Millisecond)
	if len(f.cfgs) != 2 {
		t.Errorf("Expected one restart attempt, got %d factory calls", len(f.cfgs))
	}
}

func TestAdapter_StopCancelsPendingRestart(t *testing.T) {
	f := &fakeFactory{}
	a := NewAdapter(f.create, WithRestartDelay(20*time.Millisecond))
	a.Start(nil)

	f.engine(0).handlers().OnEnd()
	if !a.Stop() {
		t.Fatal("Expected Stop to return true")
	}
	if a.Stop() {
		t.Error("Expected second Stop to return false")
	}

	time.Sleep(40 * time.Millisecond)
	if f.count() != 1 {
		t.Errorf("Expected no restart after Stop, got %d engines", f.count())
	}
}

func TestAdapter_StopStopsEngine(t *testing.T) {
	f := &fakeFactory{}
	a := NewAdapter(f.create)
	a.Start(nil)
	a.Stop()

	if !f.engine(0).isStopped() {
		t.Error("Expected engine to be stopped")
	}
	// late results from the stopped engine are ignored
	var log segmentLog
	a.cb = log.callback
	f.engine(0).handlers().OnResult([]Segment{{"late", true}})
	if len(log.all()) != 0 {
		t.Error("Expected late results to be dropped")
	}
}

func TestAdapter_Errors(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		wantNotify    bool
		wantListening bool
	}{
		{"permission", ErrPermissionDenied, true, false},
		{"network", ErrNetwork, true, true},
		{"other", errors.New("no-speech"), false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeFactory{}
			notes := &notify.Recorder{}
			a := NewAdapter(f.create, WithNotifier(notes))
			a.Start(nil)

			f.engine(0).handlers().OnError(tt.err)

			sent := notes.Sent()
			if tt.wantNotify && (len(sent) != 1 || sent[0].Variant != notify.VariantDestructive) {
				t.Errorf("Expected a destructive notification, got %+v", sent)
			}
			if !tt.wantNotify && len(sent) != 0 {
				t.Errorf("Expected no notification, got %+v", sent)
			}
			if a.Listening() != tt.wantListening {
				t.Errorf("Expected listening=%v, got %v", tt.wantListening, a.Listening())
			}
			if !tt.wantListening {
				waitFor(t, f.engine(0).isStopped)
			}
		})
	}
}

func TestAdapter_StartFailure(t *testing.T) {
	f := &fakeFactory{failErr: ErrPermissionDenied}
	notes := &notify.Recorder{}
	a := NewAdapter(f.create, WithNotifier(notes))

	if a.Start(nil) {
		t.Error("Expected Start to fail")
	}
	if a.Listening() {
		t.Error("Expected adapter not listening")
	}
	if len(notes.Sent()) != 1 {
		t.Errorf("Expected permission notification, got %d", len(notes.Sent()))
	}
}
