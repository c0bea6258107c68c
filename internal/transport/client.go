// Package transport streams local microphone audio to the transcription
// server over a WebSocket and delivers the transcripts it returns.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/lexiqai/session-gateway/internal/audio"
	"github.com/lexiqai/session-gateway/internal/config"
	"github.com/lexiqai/session-gateway/internal/observability"
)

// ErrNoAudioTrack is returned when the stream carries no live audio track
var ErrNoAudioTrack = errors.New("media stream has no live audio track")

// State is the connection state of a Handle
type State string

const (
	StateConnecting State = "connecting"
	StateOpen       State = "open"
	StateClosed     State = "closed"
)

// Fragment is one transcript delivered by the server
type Fragment struct {
	Text    string
	IsFinal bool
}

// TranscriptFunc receives fragments in server order
type TranscriptFunc func(Fragment)

// ServerMessage is a server-to-client text frame
type ServerMessage struct {
	Transcription *string  `json:"transcription,omitempty"`
	IsFinal       *bool    `json:"is_final,omitempty"`
	Confidence    *float64 `json:"confidence,omitempty"`
}

// ControlMessage is a client-to-server text frame
type ControlMessage struct {
	Live   bool   `json:"live,omitempty"`
	Action string `json:"action,omitempty"`
}

// Client opens transcription sessions against one server URL
type Client struct {
	url        string
	interval   time.Duration
	bufferSize int
	encoder    audio.Encoder
	dialer     *websocket.Dialer
	logger     zerolog.Logger
}

// Option customizes a Client
type Option func(*Client)

// WithDialer replaces the default websocket dialer
func WithDialer(d *websocket.Dialer) Option {
	return func(c *Client) { c.dialer = d }
}

// WithInterval sets the recorder chunk interval
func WithInterval(d time.Duration) Option {
	return func(c *Client) { c.interval = d }
}

// WithEncoder transforms audio chunks before they are sent
func WithEncoder(enc audio.Encoder) Option {
	return func(c *Client) { c.encoder = enc }
}

// NewClient creates a client for url
func NewClient(url string, opts ...Option) *Client {
	c := &Client{
		url:        url,
		interval:   time.Second,
		bufferSize: 65536,
		dialer:     websocket.DefaultDialer,
		logger:     observability.WithComponent("transport"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewClientFromConfig creates a client using the transcription settings in cfg
func NewClientFromConfig(cfg *config.Config) (*Client, error) {
	enc, err := audio.NewEncoder(cfg.AudioEncoding, cfg.AudioSampleRate)
	if err != nil {
		return nil, err
	}
	c := NewClient(cfg.TranscriptionURL, WithInterval(cfg.RecorderInterval()), WithEncoder(enc))
	c.bufferSize = cfg.AudioBufferSize
	return c, nil
}

// Start validates the stream and connects asynchronously. The returned handle
// is in StateConnecting until the socket opens.
func (c *Client) Start(ctx context.Context, stream *audio.MediaStream, onTranscript TranscriptFunc) (*Handle, error) {
	if !stream.HasLiveAudio() {
		return nil, ErrNoAudioTrack
	}
	track := stream.AudioTracks()[0]

	dialCtx, cancel := context.WithCancel(ctx)
	h := &Handle{
		client:       c,
		track:        track,
		onTranscript: onTranscript,
		state:        StateConnecting,
		cancel:       cancel,
		done:         make(chan struct{}),
		logger:       c.logger.With().Str("track_id", track.ID()).Logger(),
	}
	go h.run(dialCtx)
	return h, nil
}

// Handle controls one transcription session
type Handle struct {
	client       *Client
	track        audio.Track
	onTranscript TranscriptFunc
	logger       zerolog.Logger
	cancel       context.CancelFunc
	done         chan struct{}

	mu       sync.Mutex
	writeMu  sync.Mutex
	state    State
	conn     *websocket.Conn
	recorder *audio.Recorder
	stopped  bool
}

func (h *Handle) run(ctx context.Context) {
	defer close(h.done)

	conn, _, err := h.client.dialer.DialContext(ctx, h.client.url, nil)
	if err != nil {
		if ctx.Err() == nil {
			h.logger.Error().Err(err).Str("url", h.client.url).Msg("Failed to connect to transcription server")
			observability.RecordError("socket_connect", "transport")
		}
		h.setState(StateClosed)
		return
	}

	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.conn = conn
	h.state = StateOpen
	h.mu.Unlock()

	h.logger.Info().Str("url", h.client.url).Msg("Transcription socket open")

	if err := h.writeJSON(ControlMessage{Live: true}); err != nil {
		h.logger.Error().Err(err).Msg("Failed to send live directive")
		observability.RecordError("socket_write", "transport")
	}

	rec := audio.NewRecorder(h.track, h.client.interval, h.client.bufferSize, h.sendAudio,
		audio.WithEncoder(h.client.encoder),
		audio.WithRecorderLogger(h.logger),
	)
	if err := rec.Start(); err != nil {
		h.logger.Warn().Err(err).Msg("Failed to start audio recorder")
	} else {
		h.mu.Lock()
		if h.stopped {
			h.mu.Unlock()
			rec.Stop()
		} else {
			h.recorder = rec
			h.mu.Unlock()
		}
	}

	h.readLoop(conn)
	h.release(conn)
}

// release frees the recorder and socket once the read side has ended,
// whether the server hung up or StopTranscription closed the socket.
func (h *Handle) release(conn *websocket.Conn) {
	h.mu.Lock()
	h.state = StateClosed
	rec := h.recorder
	h.mu.Unlock()

	if rec != nil {
		rec.Stop()
	}

	h.writeMu.Lock()
	conn.Close()
	h.writeMu.Unlock()
}

func (h *Handle) readLoop(conn *websocket.Conn) {
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && !h.isStopped() {
				h.logger.Warn().Err(err).Msg("Transcription socket read error")
				observability.RecordError("socket_read", "transport")
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		var msg ServerMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.logger.Warn().Err(err).Int("bytes", len(data)).Msg("Dropping malformed transcription frame")
			observability.RecordError("malformed_frame", "transport")
			continue
		}
		if msg.Transcription == nil {
			continue
		}

		isFinal := true
		if msg.IsFinal != nil {
			isFinal = *msg.IsFinal
		}
		if h.onTranscript != nil {
			h.onTranscript(Fragment{Text: *msg.Transcription, IsFinal: isFinal})
		}
	}
}

// sendAudio forwards a recorder chunk only while the socket is open
func (h *Handle) sendAudio(chunk []byte) {
	if len(chunk) == 0 || h.State() != StateOpen {
		return
	}
	h.writeMu.Lock()
	defer h.writeMu.Unlock()

	h.mu.Lock()
	conn := h.conn
	h.mu.Unlock()
	if conn == nil {
		return
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
		h.logger.Warn().Err(err).Int("bytes", len(chunk)).Msg("Failed to send audio chunk")
		observability.RecordError("socket_write", "transport")
	}
}

func (h *Handle) writeJSON(v any) error {
	h.writeMu.Lock()
	defer h.writeMu.Unlock()

	h.mu.Lock()
	conn := h.conn
	h.mu.Unlock()
	if conn == nil {
		return errors.New("socket not open")
	}
	return conn.WriteJSON(v)
}

// StopTranscription stops the recorder, sends the stop directive if the socket
// is open and closes it. Safe to call repeatedly and while still connecting.
func (h *Handle) StopTranscription() {
	if h == nil {
		return
	}
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return
	}
	h.stopped = true
	rec := h.recorder
	h.recorder = nil
	wasOpen := h.state == StateOpen
	h.mu.Unlock()

	h.cancel()

	// final flush goes out before the stop directive
	if rec != nil {
		rec.Stop()
	}

	if wasOpen {
		if err := h.writeJSON(ControlMessage{Action: "stop"}); err != nil {
			h.logger.Debug().Err(err).Msg("Failed to send stop directive")
		}
	}

	h.writeMu.Lock()
	h.mu.Lock()
	conn := h.conn
	h.mu.Unlock()
	if conn != nil {
		if wasOpen {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
		}
		conn.Close()
	}
	h.writeMu.Unlock()

	h.setState(StateClosed)
	h.logger.Info().Msg("Transcription stopped")
}

func (h *Handle) setState(s State) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.state = s
}

func (h *Handle) isStopped() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stopped
}

// State returns the current connection state
func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Done is closed once the socket has terminated
func (h *Handle) Done() <-chan struct{} {
	return h.done
}
