// Package gateway serves the live transcription WebSocket that session
// clients stream microphone audio to.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/lexiqai/session-gateway/internal/auth"
	"github.com/lexiqai/session-gateway/internal/config"
	"github.com/lexiqai/session-gateway/internal/events"
	"github.com/lexiqai/session-gateway/internal/observability"
	"github.com/lexiqai/session-gateway/internal/stt"
	"github.com/lexiqai/session-gateway/internal/transport"
)

// drainTimeout bounds how long a stopped stream waits for the provider's last results
const drainTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{
	// clients are authenticated by bearer token, not origin
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// stream is one client connection and its upstream STT stream
type stream struct {
	conn           *websocket.Conn
	factory        stt.Factory
	forwardInterim bool
	events         *events.Publisher
	streamID       string

	writeMu sync.Mutex

	mu      sync.Mutex
	client  stt.STTClient
	forward chan struct{} // closed when result forwarding ends

	metrics *observability.Metrics
	logger  zerolog.Logger
}

// HandleTranscribeWS upgrades the request and relays audio to the configured
// STT provider. A nil provider disables authentication; final results are
// also published to publisher when it is non-nil.
func HandleTranscribeWS(cfg *config.Config, factory stt.Factory, provider auth.Provider, publisher *events.Publisher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		correlationID := observability.NewCorrelationID()
		logger := observability.WithCorrelationID(correlationID)

		if provider != nil {
			identity, err := provider.CurrentUser(r.Context(), auth.BearerToken(r))
			if err != nil {
				logger.Warn().Err(err).Msg("Rejected transcription request")
				observability.RecordError("unauthenticated", "gateway")
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			logger = logger.With().Str("user_id", identity.UserID).Logger()
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade has already written the HTTP error
			logger.Warn().Err(err).Msg("Failed to upgrade connection to WebSocket")
			return
		}
		defer conn.Close()

		s := &stream{
			conn:           conn,
			factory:        factory,
			forwardInterim: cfg.ForwardInterim,
			events:         publisher,
			streamID:       correlationID,
			metrics:        observability.NewSessionMetrics(correlationID),
			logger:         logger,
		}
		s.logger.Info().Str("remote_addr", r.RemoteAddr).Msg("Transcription socket connected")

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()
		s.serve(ctx)
		s.logger.Info().Msg("Transcription socket closed")
	}
}

// serve reads client frames until the client stops or disconnects
func (s *stream) serve(ctx context.Context) {
	defer s.closeUpstream()

	for {
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Warn().Err(err).Msg("WebSocket read error")
				s.metrics.RecordError("socket_read", "gateway")
			}
			return
		}

		switch msgType {
		case websocket.BinaryMessage:
			s.handleAudio(data)

		case websocket.TextMessage:
			var msg transport.ControlMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				s.logger.Warn().Err(err).Msg("Failed to parse control frame")
				s.metrics.RecordError("malformed_frame", "gateway")
				continue
			}
			switch {
			case msg.Action == "stop":
				s.logger.Info().Msg("Client requested stop")
				s.finish()
				return
			case msg.Live:
				if err := s.startUpstream(ctx); err != nil {
					s.logger.Error().Err(err).Msg("Failed to start STT stream")
					s.metrics.RecordError("stt_start", "gateway")
					s.closeWith(websocket.CloseInternalServerErr, "transcription unavailable")
					return
				}
			}
		}
	}
}

func (s *stream) startUpstream(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		return nil
	}

	client, err := s.factory(ctx)
	if err != nil {
		return err
	}
	if err := client.Start(); err != nil {
		client.Close()
		return err
	}
	s.client = client
	s.forward = make(chan struct{})
	s.metrics.RecordSTTStart()
	s.logger.Info().Str("provider", client.Name()).Msg("STT stream started")

	go s.forwardResults(client, s.forward)
	return nil
}

// handleAudio forwards a chunk upstream; audio before the live frame is dropped
func (s *stream) handleAudio(chunk []byte) {
	s.mu.Lock()
	client := s.client
	s.mu.Unlock()

	if client == nil {
		s.metrics.RecordAudioBytes("dropped", int64(len(chunk)))
		return
	}
	s.metrics.RecordAudioBytes("in", int64(len(chunk)))
	if err := client.SendAudio(chunk); err != nil {
		s.logger.Warn().Err(err).Int("bytes", len(chunk)).Msg("Failed to send audio to STT")
		s.metrics.RecordError("stt_send", "gateway")
	}
}

func (s *stream) forwardResults(client stt.STTClient, done chan struct{}) {
	defer close(done)

	for result := range client.GetTranscription() {
		if result == nil || result.Text == "" {
			continue
		}
		if !result.IsFinal && !s.forwardInterim {
			continue
		}
		s.metrics.RecordSTTResult()

		text, isFinal, confidence := result.Text, result.IsFinal, result.Confidence
		msg := transport.ServerMessage{Transcription: &text, IsFinal: &isFinal}
		if confidence > 0 {
			msg.Confidence = &confidence
		}
		if err := s.writeJSON(msg); err != nil {
			s.logger.Debug().Err(err).Msg("Failed to write transcription frame")
		}
		if isFinal {
			s.publishFinal(result, client.Name())
		}
	}

	err := client.Err()
	s.metrics.RecordSTTEnd(client.Name(), err == nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("STT stream failed")
		s.metrics.RecordError("stt_stream", "gateway")
		s.closeWith(websocket.CloseInternalServerErr, "transcription failed")
	}
}

func (s *stream) publishFinal(result *stt.TranscriptionResult, provider string) {
	if s.events == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.events.Publish(ctx, s.streamID, events.TypeTranscriptFinal, map[string]any{
		"text":       result.Text,
		"confidence": result.Confidence,
		"provider":   provider,
	})
}

// finish lets the provider flush final results before the socket closes
func (s *stream) finish() {
	s.mu.Lock()
	client, forward := s.client, s.forward
	s.mu.Unlock()
	if client == nil {
		return
	}

	if err := client.Stop(); err != nil {
		s.logger.Warn().Err(err).Msg("Error stopping STT stream")
	}
	select {
	case <-forward:
	case <-time.After(drainTimeout):
		s.logger.Warn().Dur("timeout", drainTimeout).Msg("Timed out draining STT results")
	}
	s.closeWith(websocket.CloseNormalClosure, "")
}

func (s *stream) closeUpstream() {
	s.mu.Lock()
	client := s.client
	s.client = nil
	s.mu.Unlock()
	if client == nil {
		return
	}
	if err := client.Close(); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Debug().Err(err).Msg("Error closing STT client")
	}
}

func (s *stream) writeJSON(v any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return s.conn.WriteJSON(v)
}

func (s *stream) closeWith(code int, reason string) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(time.Second))
}
