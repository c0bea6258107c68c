package stt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	websocketv1api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket"
	msginterfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	listenClient "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
	"github.com/rs/zerolog"

	"github.com/lexiqai/session-gateway/internal/config"
	"github.com/lexiqai/session-gateway/internal/observability"
	"github.com/lexiqai/session-gateway/internal/resilience"
)

// ErrNotActive is returned when audio is sent outside an open stream
var ErrNotActive = errors.New("stt stream is not active")

// messageCallbackHandler embeds the SDK default handler and overrides the
// transcript and error callbacks
type messageCallbackHandler struct {
	*websocketv1api.DefaultCallbackHandler
	handler      func(*msginterfaces.MessageResponse)
	errorHandler func(*msginterfaces.ErrorResponse) error
}

// Message forwards transcript messages
func (m *messageCallbackHandler) Message(message *msginterfaces.MessageResponse) error {
	m.handler(message)
	return nil
}

// Error forwards upstream errors
func (m *messageCallbackHandler) Error(errorResponse *msginterfaces.ErrorResponse) error {
	if m.errorHandler != nil {
		return m.errorHandler(errorResponse)
	}
	return m.DefaultCallbackHandler.Error(errorResponse)
}

// DeepgramClient implements STTClient using Deepgram's live streaming API
type DeepgramClient struct {
	config         *config.Config
	options        *interfaces.LiveTranscriptionOptions
	client         *listenClient.WSCallback
	sink           *resultSink
	mu             sync.RWMutex
	isActive       bool
	stopped        bool
	reconnecting   bool
	ctx            context.Context
	cancel         context.CancelFunc
	circuitBreaker *resilience.CircuitBreaker
	logger         zerolog.Logger
}

// NewDeepgramClient creates a Deepgram client configured for the gateway's audio format
func NewDeepgramClient(ctx context.Context, cfg *config.Config, breaker *resilience.CircuitBreaker) *DeepgramClient {
	ctx, cancel := context.WithCancel(ctx)
	if breaker == nil {
		breaker = NewBreaker(config.ProviderDeepgram, cfg)
	}

	encoding, sampleRate := "linear16", cfg.AudioSampleRate
	if cfg.AudioEncoding == "mulaw" {
		encoding, sampleRate = "mulaw", 8000
	}

	return &DeepgramClient{
		config: cfg,
		options: &interfaces.LiveTranscriptionOptions{
			Model:          cfg.DeepgramModel,
			Language:       cfg.DeepgramLanguage,
			Punctuate:      true,
			SmartFormat:    true,
			InterimResults: true,
			UtteranceEndMs: "1000",
			VadEvents:      true,
			Encoding:       encoding,
			Channels:       1,
			SampleRate:     sampleRate,
		},
		sink:           newResultSink(100),
		ctx:            ctx,
		cancel:         cancel,
		circuitBreaker: breaker,
		logger:         observability.WithComponent("stt.deepgram"),
	}
}

// Name implements STTClient
func (d *DeepgramClient) Name() string { return config.ProviderDeepgram }

// Start opens the Deepgram live stream
func (d *DeepgramClient) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return fmt.Errorf("deepgram client is closed")
	}
	if d.isActive {
		return fmt.Errorf("deepgram client is already active")
	}
	return d.connectLocked()
}

func (d *DeepgramClient) connectLocked() error {
	callback := &messageCallbackHandler{
		DefaultCallbackHandler: websocketv1api.NewDefaultCallbackHandler(),
		handler:                d.handleDeepgramMessage,
		errorHandler:           d.handleDeepgramError,
	}

	client, err := listenClient.NewWSUsingCallback(d.ctx, d.config.DeepgramAPIKey, nil, d.options, callback)
	if err != nil {
		d.recordResult(false)
		return fmt.Errorf("failed to create Deepgram client: %w", err)
	}
	if !client.Connect() {
		d.recordResult(false)
		return resilience.NewRetryableError(fmt.Errorf("failed to connect to Deepgram"))
	}

	d.client = client
	d.isActive = true
	d.recordResult(true)

	d.logger.Info().
		Str("model", d.options.Model).
		Str("language", d.options.Language).
		Str("encoding", d.options.Encoding).
		Int("sample_rate", d.options.SampleRate).
		Msg("Deepgram streaming client started")
	return nil
}

func (d *DeepgramClient) handleDeepgramError(errorResponse *msginterfaces.ErrorResponse) error {
	d.logger.Error().Interface("error", errorResponse).Msg("Deepgram error")
	d.recordResult(false)

	d.mu.Lock()
	if d.stopped || d.reconnecting {
		d.mu.Unlock()
		return nil
	}
	d.isActive = false
	d.reconnecting = true
	d.mu.Unlock()

	go d.attemptReconnect()
	return nil
}

// handleDeepgramMessage maps a Results message onto the result channel
func (d *DeepgramClient) handleDeepgramMessage(msg *msginterfaces.MessageResponse) {
	if msg == nil || len(msg.Channel.Alternatives) == 0 {
		return
	}

	alt := msg.Channel.Alternatives[0]
	if alt.Transcript == "" {
		return
	}

	startTime, duration := msg.Start, msg.Duration
	if duration == 0 && len(alt.Words) > 0 {
		startTime = alt.Words[0].Start
		duration = alt.Words[len(alt.Words)-1].End - startTime
	}

	result := &TranscriptionResult{
		Text:       alt.Transcript,
		IsFinal:    msg.IsFinal,
		Confidence: alt.Confidence,
		StartTime:  startTime,
		Duration:   duration,
	}
	if !d.sink.emit(result) {
		d.logger.Warn().Bool("is_final", msg.IsFinal).Msg("Transcript channel full or closed, dropping result")
		return
	}
	d.logger.Debug().Bool("is_final", msg.IsFinal).Float64("confidence", alt.Confidence).Msg("Deepgram transcription")
}

// SendAudio writes an audio chunk to the live stream through the circuit breaker
func (d *DeepgramClient) SendAudio(audioData []byte) error {
	return d.circuitBreaker.Call(func() error {
		d.mu.RLock()
		active, client := d.isActive, d.client
		d.mu.RUnlock()

		if !active || client == nil {
			return ErrNotActive
		}
		if _, err := client.Write(audioData); err != nil {
			return fmt.Errorf("failed to send audio to Deepgram: %w", err)
		}
		return nil
	})
}

func (d *DeepgramClient) attemptReconnect() {
	reconnectConfig := &resilience.ReconnectConfig{
		MaxAttempts: d.config.ReconnectMaxAttempts,
		Backoff:     time.Duration(d.config.ReconnectBackoff) * time.Millisecond,
		Multiplier:  2.0,
		MaxBackoff:  30 * time.Second,
	}

	err := resilience.Reconnect(d.ctx, "deepgram", func() error {
		d.mu.Lock()
		defer d.mu.Unlock()
		if d.stopped {
			return nil
		}
		return d.connectLocked()
	}, reconnectConfig)

	d.mu.Lock()
	d.reconnecting = false
	d.mu.Unlock()

	if err != nil {
		d.logger.Error().Err(err).Msg("Giving up on Deepgram stream")
		d.sink.close(err)
	}
}

func (d *DeepgramClient) recordResult(success bool) {
	d.circuitBreaker.RecordResult(success)
}

// GetTranscription implements STTClient
func (d *DeepgramClient) GetTranscription() <-chan *TranscriptionResult {
	return d.sink.ch
}

// Err implements STTClient
func (d *DeepgramClient) Err() error {
	return d.sink.failure()
}

// Stop sends Deepgram's finalize message and ends the stream. Safe to call repeatedly.
func (d *DeepgramClient) Stop() error {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return nil
	}
	d.stopped = true
	client := d.client
	d.isActive = false
	d.mu.Unlock()

	if client != nil {
		client.Finish()
	}
	d.sink.close(nil)
	d.logger.Info().Msg("Deepgram streaming client stopped")
	return nil
}

// Close stops the stream and cancels any reconnection in progress
func (d *DeepgramClient) Close() error {
	err := d.Stop()
	d.cancel()
	return err
}

// IsActive returns whether the stream is currently open
func (d *DeepgramClient) IsActive() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.isActive
}
