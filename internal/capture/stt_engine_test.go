package capture

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lexiqai/session-gateway/internal/audio"
	"github.com/lexiqai/session-gateway/internal/resilience"
	"github.com/lexiqai/session-gateway/internal/stt"
)

func mockFactory(script []stt.SimulatedUtterance) stt.Factory {
	return func(ctx context.Context) (stt.STTClient, error) {
		return stt.NewMockClient(script), nil
	}
}

func TestNewSTTEngineFactory_Nil(t *testing.T) {
	if NewSTTEngineFactory(context.Background(), nil, nil, nil) != nil {
		t.Error("Expected nil factory without an STT provider")
	}
	if Detect(NewSTTEngineFactory(context.Background(), nil, nil, nil)).Available {
		t.Error("Expected capability to be unavailable")
	}
}

func TestSTTEngine_TrackDrivesResults(t *testing.T) {
	script := []stt.SimulatedUtterance{{Partials: []string{"I can't"}, Final: "I can't sleep."}}
	// three chunks: partial, final, partial of the looped script
	track := audio.NewReaderTrack(bytes.NewReader(make([]byte, engineReadSize*3)), 0)

	a := NewAdapter(NewSTTEngineFactory(context.Background(), mockFactory(script), track, nil), WithRestartDelay(time.Millisecond))
	var log segmentLog
	if !a.Start(log.callback) {
		t.Fatal("Expected Start to succeed")
	}

	// track EOF finishes the stream, the restart finds the track ended and the adapter stops
	waitFor(t, func() bool { return !a.Listening() })

	got := log.all()
	want := []string{"You|interim|I can't", "You|final|I can't sleep.", "You|interim|I can't", "You|final|I can't sleep."}
	if len(got) != len(want) {
		t.Fatalf("Expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Expected %s, got %s", want[i], got[i])
		}
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"permission", audio.ErrPermissionDenied, ErrPermissionDenied},
		{"network", errors.New("dial tcp: connection refused"), ErrNetwork},
		{"breaker", resilience.ErrCircuitOpen, ErrNetwork},
	}
	for _, tt := range tests {
		if got := classify(tt.err); !errors.Is(got, tt.want) {
			t.Errorf("%s: expected %v, got %v", tt.name, tt.want, got)
		}
	}

	plain := errors.New("bad audio")
	if got := classify(plain); got != plain {
		t.Errorf("Expected unclassified error unchanged, got %v", got)
	}
}
