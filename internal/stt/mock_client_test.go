package stt

import (
	"errors"
	"testing"
)

func drain(ch <-chan *TranscriptionResult) []*TranscriptionResult {
	var out []*TranscriptionResult
	for r := range ch {
		out = append(out, r)
	}
	return out
}

func TestMockClient_ScriptProgression(t *testing.T) {
	client := NewMockClient([]SimulatedUtterance{
		{Partials: []string{"I", "I feel"}, Final: "I feel anxious", Confidence: 0.9},
	})

	if err := client.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := client.SendAudio([]byte{1, 2}); err != nil {
			t.Fatalf("SendAudio failed: %v", err)
		}
	}
	client.Stop()

	results := drain(client.GetTranscription())
	if len(results) != 3 {
		t.Fatalf("Expected 3 results, got %d", len(results))
	}
	if results[0].IsFinal || results[1].IsFinal {
		t.Error("Expected the first two results to be interim")
	}
	if !results[2].IsFinal || results[2].Text != "I feel anxious" {
		t.Errorf("Expected final 'I feel anxious', got %+v", results[2])
	}
}

func TestMockClient_StopFinalizesPartialUtterance(t *testing.T) {
	client := NewMockClient(DefaultUtterances)
	client.Start()
	client.SendAudio([]byte{1})

	client.Stop()
	client.Stop()

	results := drain(client.GetTranscription())
	if len(results) != 2 {
		t.Fatalf("Expected partial plus final, got %d results", len(results))
	}
	if !results[1].IsFinal {
		t.Error("Expected Stop to emit the pending final")
	}
	if client.Err() != nil {
		t.Errorf("Expected clean stop, got %v", client.Err())
	}
}

func TestMockClient_SendBeforeStart(t *testing.T) {
	client := NewMockClient(DefaultUtterances)
	if err := client.SendAudio([]byte{1}); !errors.Is(err, ErrNotActive) {
		t.Errorf("Expected ErrNotActive, got %v", err)
	}
}

func TestResultSink_NoSendAfterClose(t *testing.T) {
	sink := newResultSink(1)
	sink.close(errors.New("upstream gone"))

	if sink.emit(&TranscriptionResult{Text: "late"}) {
		t.Error("Expected emit after close to be rejected")
	}
	sink.close(nil)
	if sink.failure() == nil || sink.failure().Error() != "upstream gone" {
		t.Errorf("Expected first close error to stick, got %v", sink.failure())
	}
}
