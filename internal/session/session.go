// Package session owns the live annotation state of one therapy session:
// the transcript, detected terms, suggestions, notes and the session clock.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/session-gateway/internal/audio"
	"github.com/lexiqai/session-gateway/internal/capture"
	"github.com/lexiqai/session-gateway/internal/clock"
	"github.com/lexiqai/session-gateway/internal/events"
	"github.com/lexiqai/session-gateway/internal/export"
	"github.com/lexiqai/session-gateway/internal/observability"
	"github.com/lexiqai/session-gateway/internal/suggestions"
	"github.com/lexiqai/session-gateway/internal/terms"
	"github.com/lexiqai/session-gateway/internal/transcript"
	"github.com/lexiqai/session-gateway/internal/transport"
)

var (
	// ErrNotConnected is returned when transcription is started before Connect
	ErrNotConnected = errors.New("session is not connected")
	// ErrSourceActive is returned when a second transcript source is started
	ErrSourceActive = errors.New("a transcription source is already active")
)

// Options configure a Session
type Options struct {
	ID       string
	Subject  string
	Speaker  string // label for the transport source
	Cooldown int
	Terms    []terms.Term
	Triggers []suggestions.Trigger
	Records  terms.RecordLookup

	Exporter      *export.Exporter
	Publisher     *events.Publisher
	ClockInterval time.Duration
	Logger        *zerolog.Logger
}

// Session is the single owner of all session-scoped state
type Session struct {
	id       string
	subject  string
	exporter *export.Exporter
	events   *events.Publisher
	metrics  *observability.Metrics
	logger   zerolog.Logger

	clock       *clock.Clock
	transcript  *transcript.Reconciler
	detector    *terms.Detector
	suggestions *suggestions.Generator

	mu                sync.Mutex
	speaker           string
	connected         bool
	torn              bool
	handle            *transport.Handle
	dictation         *capture.Adapter
	startingDictation bool
	streams           []*audio.MediaStream
}

// New creates a disconnected session
func New(opts Options) *Session {
	if opts.ID == "" {
		opts.ID = observability.NewCorrelationID()
	}
	if opts.Speaker == "" {
		opts.Speaker = "You"
	}
	if opts.Terms == nil {
		opts.Terms = terms.DefaultTable
	}
	if opts.Triggers == nil {
		opts.Triggers = suggestions.DefaultTriggers
	}

	logger := observability.WithSession(opts.ID)
	if opts.Logger != nil {
		logger = opts.Logger.With().Str("session_id", opts.ID).Logger()
	}

	var termOpts []terms.Option
	if opts.Records != nil {
		termOpts = append(termOpts, terms.WithRecordLookup(opts.Records))
	}
	if opts.Cooldown > 0 {
		termOpts = append(termOpts, terms.WithCooldown(opts.Cooldown))
	}

	var clockOpts []clock.Option
	if opts.ClockInterval > 0 {
		clockOpts = append(clockOpts, clock.WithInterval(opts.ClockInterval))
	}

	s := &Session{
		id:          opts.ID,
		subject:     opts.Subject,
		speaker:     opts.Speaker,
		exporter:    opts.Exporter,
		events:      opts.Publisher,
		metrics:     observability.NewSessionMetrics(opts.ID),
		logger:      logger,
		clock:       clock.New(clockOpts...),
		transcript:  transcript.NewReconciler(),
		detector:    terms.NewDetector(opts.Terms, termOpts...),
		suggestions: suggestions.NewGenerator(opts.Triggers),
	}
	s.transcript.OnFinal(s.annotate)
	return s
}

// ID returns the session ID
func (s *Session) ID() string { return s.id }

// Subject returns the session subject used in exports
func (s *Session) Subject() string { return s.subject }

// Speaker returns the label applied to transport utterances
func (s *Session) Speaker() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speaker
}

// SetSpeaker changes the label for subsequent utterances from either source.
// Speakers are labelled manually; there is no audio diarization.
func (s *Session) SetSpeaker(label string) {
	s.mu.Lock()
	s.speaker = label
	a := s.dictation
	s.mu.Unlock()
	if a != nil {
		a.SetSpeaker(label)
	}
}

// Connect marks the session connected and starts the clock. Repeated calls are no-ops.
func (s *Session) Connect() {
	s.mu.Lock()
	if s.connected || s.torn {
		s.mu.Unlock()
		return
	}
	s.connected = true
	s.clock.Start()
	s.mu.Unlock()

	s.metrics.RecordSessionStart()
	s.logger.Info().Str("subject", s.subject).Msg("Session connected")
	s.publish(events.TypeSessionStarted, map[string]string{"subject": s.subject})
}

// Connected reports whether the session is connected
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// StartTransport streams stream to the transcription server. Only one
// transcript source may be active at a time.
func (s *Session) StartTransport(ctx context.Context, client *transport.Client, stream *audio.MediaStream) (*transport.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkSourceLocked(); err != nil {
		return nil, err
	}

	h, err := client.Start(ctx, stream, func(f transport.Fragment) {
		s.Apply(f.Text, f.IsFinal, s.Speaker())
	})
	if err != nil {
		return nil, err
	}
	s.handle = h
	s.streams = append(s.streams, stream)
	s.logger.Info().Msg("Transcription started")
	return h, nil
}

// StartDictation starts local speech capture as the transcript source. The
// source slot is reserved while the engine starts so a slow engine never
// holds up Teardown; if the session is disconnected meanwhile the adapter
// is stopped again.
func (s *Session) StartDictation(adapter *capture.Adapter) error {
	s.mu.Lock()
	if err := s.checkSourceLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.startingDictation = true
	s.mu.Unlock()

	started := adapter.Start(func(text string, isFinal bool, speaker string) {
		s.Apply(text, isFinal, speaker)
	})

	s.mu.Lock()
	s.startingDictation = false
	if !started {
		s.mu.Unlock()
		return capture.ErrUnsupported
	}
	if !s.connected || s.torn {
		s.mu.Unlock()
		adapter.Stop()
		return ErrNotConnected
	}
	s.dictation = adapter
	s.mu.Unlock()

	s.logger.Info().Msg("Dictation started")
	return nil
}

// ToggleDictation starts dictation when stopped and stops it when listening
func (s *Session) ToggleDictation(adapter *capture.Adapter) error {
	if adapter.Listening() {
		s.StopDictation()
		return nil
	}
	return s.StartDictation(adapter)
}

func (s *Session) checkSourceLocked() error {
	if !s.connected {
		return ErrNotConnected
	}
	if s.startingDictation {
		return ErrSourceActive
	}
	if s.handle != nil {
		select {
		case <-s.handle.Done():
			s.handle = nil
		default:
			return ErrSourceActive
		}
	}
	if s.dictation != nil {
		if s.dictation.Listening() {
			return ErrSourceActive
		}
		s.dictation = nil
	}
	return nil
}

// AttachStream registers a media stream whose tracks are stopped on teardown
func (s *Session) AttachStream(stream *audio.MediaStream) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streams = append(s.streams, stream)
}

// StopTranscription stops the transport source if one is active
func (s *Session) StopTranscription() {
	s.mu.Lock()
	h := s.handle
	s.handle = nil
	s.mu.Unlock()
	h.StopTranscription()
}

// StopDictation stops the capture source if one is active
func (s *Session) StopDictation() bool {
	s.mu.Lock()
	a := s.dictation
	s.dictation = nil
	s.mu.Unlock()
	if a == nil {
		return false
	}
	return a.Stop()
}

// Apply folds an utterance into the transcript at the current clock label.
// Nothing is recorded while the session is not connected.
func (s *Session) Apply(text string, isFinal bool, speaker string) (transcript.Entry, bool) {
	if !s.Connected() {
		return transcript.Entry{}, false
	}
	entry, ok := s.transcript.Apply(transcript.Event{
		Text:      text,
		IsFinal:   isFinal,
		Speaker:   speaker,
		Timestamp: s.clock.Label(),
	})
	if ok {
		s.metrics.RecordTranscriptEntry(isFinal)
	}
	return entry, ok
}

// annotate derives terms and a suggestion from a finalized entry
func (s *Session) annotate(e transcript.Entry) {
	s.publish(events.TypeTranscriptFinal, e)

	for _, t := range s.detector.Detect(e.Text, s.clock.Seconds()) {
		s.metrics.RecordTerm(t.Term)
		s.logger.Debug().Str("term", t.Term).Bool("related_records", t.RelatedRecords).Msg("Term detected")
		s.publish(events.TypeTermDetected, t)
	}

	if suggestion, ok := s.suggestions.Generate(e.Text); ok {
		s.metrics.RecordSuggestion("generated")
		s.publish(events.TypeSuggestionGenerated, map[string]string{"suggestion": suggestion})
	}
}

func (s *Session) publish(eventType string, payload any) {
	if s.events == nil {
		return
	}
	// queued only; the publisher logs and counts failures
	_ = s.events.Publish(context.Background(), s.id, eventType, payload)
}

// Transcript returns every entry, interim tail included
func (s *Session) Transcript() []transcript.Entry { return s.transcript.Entries() }

// Terms returns the detected terms in emission order
func (s *Session) Terms() []terms.DetectedTerm { return s.detector.Terms() }

// SearchTerms filters detected terms by term or definition
func (s *Session) SearchTerms(query string) []terms.DetectedTerm { return s.detector.Search(query) }

// MarkTermViewed flags a term as opened by the clinician
func (s *Session) MarkTermViewed(id string) bool { return s.detector.MarkViewed(id) }

// UnviewedTerms counts terms not yet opened
func (s *Session) UnviewedTerms() int { return s.detector.Unviewed() }

// Suggestions returns the active suggestions in emission order
func (s *Session) Suggestions() []string { return s.suggestions.Active() }

// ConsumeSuggestion applies a suggestion to the notes
func (s *Session) ConsumeSuggestion(suggestion string) bool {
	ok := s.suggestions.Consume(suggestion)
	if ok {
		s.metrics.RecordSuggestion("consumed")
	}
	return ok
}

// Notes returns the clinician's notes
func (s *Session) Notes() string { return s.suggestions.Notes() }

// SetNotes replaces the clinician's notes
func (s *Session) SetNotes(notes string) { s.suggestions.SetNotes(notes) }

// Elapsed returns the session clock in seconds
func (s *Session) Elapsed() int { return s.clock.Seconds() }

// ExportFile writes the finalized transcript to the export directory
func (s *Session) ExportFile() (string, error) {
	if s.exporter == nil {
		return "", errors.New("no exporter configured")
	}
	return s.exporter.ExportFile(s.transcript.Finalized(), s.subject, s.clock.Seconds())
}

// CopyTranscript writes the finalized transcript body to the clipboard
func (s *Session) CopyTranscript() error {
	if s.exporter == nil {
		return errors.New("no exporter configured")
	}
	return s.exporter.CopyToClipboard(s.transcript.Finalized())
}

// Disconnect stops both transcript sources and the clock
func (s *Session) Disconnect() {
	s.StopTranscription()
	s.StopDictation()

	s.mu.Lock()
	wasConnected := s.connected
	s.connected = false
	s.mu.Unlock()

	s.clock.Stop()
	if wasConnected {
		s.metrics.RecordSessionEnd()
		s.logger.Info().Int("duration_seconds", s.clock.Seconds()).Msg("Session disconnected")
		s.publish(events.TypeSessionEnded, map[string]int{"duration_seconds": s.clock.Seconds()})
	}
}

// Teardown releases everything the session holds, including capture
// devices. Safe to call repeatedly and before Connect.
func (s *Session) Teardown() {
	s.Disconnect()

	s.mu.Lock()
	if s.torn {
		s.mu.Unlock()
		return
	}
	s.torn = true
	streams := s.streams
	s.streams = nil
	s.mu.Unlock()

	for _, st := range streams {
		st.Stop()
	}
}
