package stt

import (
	"sync"

	"github.com/lexiqai/session-gateway/internal/config"
)

// SimulatedUtterance is a scripted utterance with progressive interim transcripts
type SimulatedUtterance struct {
	Partials   []string
	Final      string
	Confidence float64
}

// DefaultUtterances is a short patient turn sequence that exercises the term
// detector and the suggestion generator.
var DefaultUtterances = []SimulatedUtterance{
	{
		Partials:   []string{"I haven't", "I haven't been sleeping"},
		Final:      "I haven't been sleeping well because of work.",
		Confidence: 0.93,
	},
	{
		Partials:   []string{"Last week I", "Last week I had a panic attack"},
		Final:      "Last week I had a panic attack and my anxiety was really bad.",
		Confidence: 0.91,
	},
	{
		Partials:   []string{"I tried", "I tried the mindfulness"},
		Final:      "I tried the mindfulness exercises you suggested.",
		Confidence: 0.95,
	},
	{
		Partials:   []string{"I keep", "I keep having negative"},
		Final:      "I keep having negative thoughts about myself.",
		Confidence: 0.89,
	},
}

// MockClient implements STTClient without any upstream. Each audio chunk
// advances the script by one step: the next partial, or the utterance's
// final once its partials are exhausted.
type MockClient struct {
	script    []SimulatedUtterance
	sink      *resultSink
	mu        sync.Mutex
	utterance int
	partial   int
	started   bool
	stopped   bool
}

// NewMockClient creates a scripted client; it loops over script
func NewMockClient(script []SimulatedUtterance) *MockClient {
	return &MockClient{
		script: script,
		sink:   newResultSink(100),
	}
}

// Name implements STTClient
func (m *MockClient) Name() string { return config.ProviderMock }

// Start implements STTClient
func (m *MockClient) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = true
	return nil
}

// SendAudio advances the script
func (m *MockClient) SendAudio(audioData []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.started || m.stopped {
		return ErrNotActive
	}
	if len(m.script) == 0 || len(audioData) == 0 {
		return nil
	}

	utt := m.script[m.utterance%len(m.script)]
	if m.partial < len(utt.Partials) {
		m.sink.emit(&TranscriptionResult{Text: utt.Partials[m.partial], Confidence: utt.Confidence})
		m.partial++
		return nil
	}
	m.emitFinalLocked()
	return nil
}

func (m *MockClient) emitFinalLocked() {
	utt := m.script[m.utterance%len(m.script)]
	m.sink.emit(&TranscriptionResult{Text: utt.Final, IsFinal: true, Confidence: utt.Confidence})
	m.utterance++
	m.partial = 0
}

// GetTranscription implements STTClient
func (m *MockClient) GetTranscription() <-chan *TranscriptionResult {
	return m.sink.ch
}

// Err implements STTClient
func (m *MockClient) Err() error {
	return m.sink.failure()
}

// Stop finalizes an utterance left mid-way and closes the result channel
func (m *MockClient) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return nil
	}
	m.stopped = true
	if m.started && m.partial > 0 {
		m.emitFinalLocked()
	}
	m.sink.close(nil)
	return nil
}

// Close implements STTClient
func (m *MockClient) Close() error {
	return m.Stop()
}
