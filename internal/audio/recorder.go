package audio

import (
	"errors"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// RecorderState mirrors the recorder lifecycle
type RecorderState string

const (
	RecorderInactive  RecorderState = "inactive"
	RecorderRecording RecorderState = "recording"
)

// ErrTrackNotLive is returned when recording is started on an ended track
var ErrTrackNotLive = errors.New("audio track is not live")

// Recorder captures a track into a ring buffer and hands the accumulated
// audio to onData every interval. Stop flushes whatever is left.
type Recorder struct {
	track    Track
	interval time.Duration
	buf      *RingBuffer
	encoder  Encoder
	onData   func([]byte)
	logger   zerolog.Logger
	readSize int

	mu      sync.Mutex
	flushMu sync.Mutex
	state   RecorderState
	stop    chan struct{}
	wg      sync.WaitGroup
}

// RecorderOption customizes a Recorder
type RecorderOption func(*Recorder)

// WithEncoder transforms each chunk before delivery
func WithEncoder(enc Encoder) RecorderOption {
	return func(r *Recorder) { r.encoder = enc }
}

// WithRecorderLogger sets the logger
func WithRecorderLogger(l zerolog.Logger) RecorderOption {
	return func(r *Recorder) { r.logger = l }
}

// NewRecorder creates an inactive recorder for track
func NewRecorder(track Track, interval time.Duration, bufferSize int, onData func([]byte), opts ...RecorderOption) *Recorder {
	r := &Recorder{
		track:    track,
		interval: interval,
		buf:      NewRingBuffer(bufferSize),
		onData:   onData,
		logger:   log.Logger,
		readSize: 3200, // 100ms of 16kHz 16-bit mono
		state:    RecorderInactive,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start begins capturing; it fails if already recording or the track has ended
func (r *Recorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == RecorderRecording {
		return errors.New("recorder is already recording")
	}
	if !r.track.Live() {
		return ErrTrackNotLive
	}

	r.state = RecorderRecording
	r.stop = make(chan struct{})

	go r.capture(r.stop)
	r.wg.Add(1)
	go r.tick(r.stop)
	return nil
}

// capture copies track data into the ring buffer. It is not joined on Stop
// because a track Read may block until the device delivers more audio.
func (r *Recorder) capture(stop <-chan struct{}) {
	chunk := make([]byte, r.readSize)
	for {
		select {
		case <-stop:
			return
		default:
		}

		n, err := r.track.Read(chunk)
		if n > 0 {
			r.buf.Write(chunk[:n])
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				r.logger.Warn().Err(err).Str("track_id", r.track.ID()).Msg("Audio track read failed")
			}
			return
		}
	}
}

func (r *Recorder) tick(stop <-chan struct{}) {
	defer r.wg.Done()
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			r.flush()
		}
	}
}

func (r *Recorder) flush() {
	r.flushMu.Lock()
	defer r.flushMu.Unlock()

	chunk := r.buf.Drain()
	if len(chunk) == 0 {
		return
	}
	if r.encoder != nil {
		encoded, err := r.encoder(chunk)
		if err != nil {
			r.logger.Warn().Err(err).Int("bytes", len(chunk)).Msg("Failed to encode audio chunk, dropping")
			return
		}
		chunk = encoded
	}
	r.onData(chunk)
}

// Stop ends capture and delivers the final partial chunk. Idempotent.
func (r *Recorder) Stop() {
	r.mu.Lock()
	if r.state != RecorderRecording {
		r.mu.Unlock()
		return
	}
	r.state = RecorderInactive
	close(r.stop)
	r.mu.Unlock()

	r.wg.Wait()
	r.flush()

	if dropped := r.buf.Dropped(); dropped > 0 {
		r.logger.Warn().Int64("bytes", dropped).Msg("Audio dropped because the recorder buffer was full")
	}
}

// State returns the current recorder state
func (r *Recorder) State() RecorderState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}
