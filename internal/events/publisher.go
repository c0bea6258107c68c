// Package events publishes session annotation events to Kafka.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"github.com/lexiqai/session-gateway/internal/config"
	"github.com/lexiqai/session-gateway/internal/observability"
)

// Event types carried in the eventType header
const (
	TypeSessionStarted      = "session.started"
	TypeSessionEnded        = "session.ended"
	TypeTranscriptFinal     = "transcript.final"
	TypeTermDetected        = "term.detected"
	TypeSuggestionGenerated = "suggestion.generated"
)

const (
	queueSize    = 1024
	writeTimeout = 10 * time.Second
)

// ErrQueueFull is returned when an event is dropped because the writer is behind
var ErrQueueFull = errors.New("event queue full")

// Envelope wraps every published payload
type Envelope struct {
	Type      string    `json:"type"`
	SessionID string    `json:"session_id"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// Config holds Kafka publisher configuration
type Config struct {
	Brokers      []string
	Topic        string
	BatchTimeout time.Duration
	Enabled      bool
}

// ConfigFrom builds publisher configuration from the service config
func ConfigFrom(cfg *config.Config) *Config {
	return &Config{
		Brokers:      cfg.KafkaBrokers,
		Topic:        cfg.KafkaTopic,
		BatchTimeout: time.Duration(cfg.KafkaBatchTimeout) * time.Millisecond,
		Enabled:      cfg.KafkaEnabled,
	}
}

// messageWriter is the subset of kafka.Writer the publisher drives
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type queued struct {
	eventType string
	sessionID string
	msg       kafka.Message
}

// Publisher writes events keyed by session ID so one session stays on one partition.
// Publish only enqueues; a single goroutine drains the queue into Kafka so
// callers on the transcript path never wait on the broker.
type Publisher struct {
	writer  messageWriter
	topic   string
	enabled bool

	mu     sync.RWMutex
	closed bool
	queue  chan queued
	done   chan struct{}
}

// New creates a publisher. A nil or disabled config yields a log-only publisher.
func New(cfg *Config) *Publisher {
	if cfg == nil || !cfg.Enabled || len(cfg.Brokers) == 0 {
		log.Info().Msg("Kafka disabled, using log-only mode")
		p := &Publisher{}
		if cfg != nil {
			p.topic = cfg.Topic
		}
		return p
	}

	batchTimeout := cfg.BatchTimeout
	if batchTimeout <= 0 {
		batchTimeout = 10 * time.Millisecond
	}

	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: batchTimeout,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
		Transport:    &kafka.Transport{Dial: dialer.DialFunc},
	}

	log.Info().
		Strs("brokers", cfg.Brokers).
		Str("topic", cfg.Topic).
		Msg("Kafka publisher initialized")

	return newPublisher(writer, cfg.Topic, queueSize)
}

func newPublisher(w messageWriter, topic string, size int) *Publisher {
	p := &Publisher{
		writer:  w,
		topic:   topic,
		enabled: true,
		queue:   make(chan queued, size),
		done:    make(chan struct{}),
	}
	go p.drain()
	return p
}

func (p *Publisher) drain() {
	defer close(p.done)
	for q := range p.queue {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err := p.writer.WriteMessages(ctx, q.msg)
		cancel()
		if err != nil {
			log.Error().
				Err(err).
				Str("topic", p.topic).
				Str("session_id", q.sessionID).
				Str("type", q.eventType).
				Msg("Failed to write to Kafka")
			observability.RecordEventPublished(q.eventType, false)
			continue
		}
		observability.RecordEventPublished(q.eventType, true)
	}
}

// Enabled reports whether events reach Kafka
func (p *Publisher) Enabled() bool {
	return p != nil && p.enabled
}

// Publish queues one event without waiting for the broker. A full queue drops
// the event and returns ErrQueueFull; session code ignores the error.
func (p *Publisher) Publish(ctx context.Context, sessionID, eventType string, payload any) error {
	if p == nil {
		return nil
	}

	env := Envelope{
		Type:      eventType,
		SessionID: sessionID,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
	data, err := json.Marshal(env)
	if err != nil {
		log.Error().Err(err).Str("type", eventType).Msg("Failed to marshal event")
		observability.RecordEventPublished(eventType, false)
		return err
	}

	log.Debug().
		Str("topic", p.topic).
		Str("session_id", sessionID).
		Str("type", eventType).
		RawJSON("payload", data).
		Msg("Publishing event")

	if !p.enabled || p.writer == nil {
		observability.RecordEventPublished(eventType, true)
		return nil
	}

	msg := kafka.Message{
		Key:   []byte(sessionID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte(eventType)},
		},
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		observability.RecordEventPublished(eventType, false)
		return errors.New("publisher closed")
	}
	select {
	case p.queue <- queued{eventType: eventType, sessionID: sessionID, msg: msg}:
		return nil
	case <-ctx.Done():
		observability.RecordEventPublished(eventType, false)
		return ctx.Err()
	default:
		log.Warn().
			Str("session_id", sessionID).
			Str("type", eventType).
			Msg("Event queue full, dropping event")
		observability.RecordEventPublished(eventType, false)
		return ErrQueueFull
	}
}

// Close drains queued events and closes the writer
func (p *Publisher) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	<-p.done
	if err := p.writer.Close(); err != nil {
		log.Error().Err(err).Msg("Error closing Kafka writer")
		return err
	}
	return nil
}
