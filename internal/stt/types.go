package stt

import (
	"sync"
)

// TranscriptionResult is one recognition result from an upstream provider
type TranscriptionResult struct {
	// Text is the transcribed text
	Text string

	// IsFinal indicates if this is a final transcription (true) or interim (false)
	IsFinal bool

	// Confidence is the confidence score (0.0 to 1.0) if available
	Confidence float64

	// StartTime is the start time of the utterance in seconds
	StartTime float64

	// Duration is the duration of the utterance in seconds
	Duration float64
}

// STTClient is the interface for streaming speech-to-text clients.
// A client serves one stream: Start once, SendAudio any number of times, then Stop.
type STTClient interface {
	// Name identifies the provider in logs and metrics
	Name() string

	// Start opens the upstream stream
	Start() error

	// SendAudio sends an audio chunk to the STT service
	SendAudio(audioData []byte) error

	// GetTranscription returns the result channel. It is closed once the
	// stream has ended and every pending result was delivered.
	GetTranscription() <-chan *TranscriptionResult

	// Err reports why the stream ended, nil for a clean stop
	Err() error

	// Stop finishes the stream, letting the provider flush final results
	Stop() error

	// Close stops the stream and releases all resources
	Close() error
}

// resultSink owns a result channel and guarantees no send after close
type resultSink struct {
	mu     sync.Mutex
	ch     chan *TranscriptionResult
	closed bool
	err    error
}

func newResultSink(capacity int) *resultSink {
	return &resultSink{ch: make(chan *TranscriptionResult, capacity)}
}

// emit delivers without blocking; false means dropped or closed
func (s *resultSink) emit(r *TranscriptionResult) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.ch <- r:
		return true
	default:
		return false
	}
}

// close ends the stream, recording the first terminal error
func (s *resultSink) close(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.err = err
	close(s.ch)
}

func (s *resultSink) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *resultSink) failure() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}
