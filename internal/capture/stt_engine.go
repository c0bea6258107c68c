package capture

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/rs/zerolog"

	"github.com/lexiqai/session-gateway/internal/audio"
	"github.com/lexiqai/session-gateway/internal/observability"
	"github.com/lexiqai/session-gateway/internal/resilience"
	"github.com/lexiqai/session-gateway/internal/stt"
)

const engineReadSize = 3200 // 100ms of 16kHz 16-bit mono

// STTEngine feeds a local audio track into a streaming STT client. It ends
// when the track ends or the upstream stream closes.
type STTEngine struct {
	ctx     context.Context
	factory stt.Factory
	track   audio.Track
	encoder audio.Encoder
	cfg     EngineConfig
	logger  zerolog.Logger

	mu      sync.Mutex
	client  stt.STTClient
	cancel  context.CancelFunc
	stopped bool
}

// NewSTTEngineFactory returns an EngineFactory that opens one STT stream per
// run over track. Returns nil when factory or track is nil.
func NewSTTEngineFactory(ctx context.Context, factory stt.Factory, track audio.Track, encoder audio.Encoder) EngineFactory {
	if factory == nil || track == nil {
		return nil
	}
	return func(cfg EngineConfig) (Engine, error) {
		if !track.Live() {
			return nil, audio.ErrTrackNotLive
		}
		return &STTEngine{
			ctx:     ctx,
			factory: factory,
			track:   track,
			encoder: encoder,
			cfg:     cfg,
			logger:  observability.WithComponent("capture").With().Str("track_id", track.ID()).Logger(),
		}, nil
	}
}

// Start opens the upstream stream and begins pumping audio and results
func (e *STTEngine) Start(h Handlers) error {
	ctx, cancel := context.WithCancel(e.ctx)
	client, err := e.factory(ctx)
	if err != nil {
		cancel()
		return classify(err)
	}
	if err := client.Start(); err != nil {
		cancel()
		client.Close()
		return classify(err)
	}

	e.mu.Lock()
	e.client = client
	e.cancel = cancel
	e.mu.Unlock()

	e.logger.Info().Str("provider", client.Name()).Str("locale", e.cfg.Locale).Msg("Speech engine started")

	go e.pumpAudio(ctx, client, h)
	go e.pumpResults(client, h)
	return nil
}

func (e *STTEngine) pumpAudio(ctx context.Context, client stt.STTClient, h Handlers) {
	// finishing the upstream stream flushes its final results and closes the result channel
	defer client.Stop()

	buf := make([]byte, engineReadSize)
	for {
		if ctx.Err() != nil {
			return
		}
		n, err := e.track.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			e.logger.Trace().Func(func(ev *zerolog.Event) {
				ev.Float64("level_dbfs", audio.LevelDBFS(chunk))
			}).Int("bytes", n).Msg("Audio chunk")
			if e.encoder != nil {
				encoded, encErr := e.encoder(chunk)
				if encErr != nil {
					e.logger.Warn().Err(encErr).Msg("Failed to encode audio chunk, dropping")
				}
				chunk = encoded
			}
			if len(chunk) > 0 {
				if sendErr := client.SendAudio(chunk); sendErr != nil && ctx.Err() == nil {
					e.logger.Warn().Err(sendErr).Msg("Failed to send audio to speech engine")
				}
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && h.OnError != nil && ctx.Err() == nil {
				h.OnError(classify(err))
			}
			return
		}
	}
}

func (e *STTEngine) pumpResults(client stt.STTClient, h Handlers) {
	for res := range client.GetTranscription() {
		if res == nil || h.OnResult == nil {
			continue
		}
		h.OnResult([]Segment{{Transcript: res.Text, IsFinal: res.IsFinal}})
	}

	if err := client.Err(); err != nil && h.OnError != nil && !e.isStopped() {
		h.OnError(classify(err))
	}
	if h.OnEnd != nil {
		h.OnEnd()
	}
}

func (e *STTEngine) isStopped() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stopped
}

// Stop finishes the upstream stream and releases it. Idempotent.
func (e *STTEngine) Stop() error {
	e.mu.Lock()
	if e.stopped || e.client == nil {
		e.stopped = true
		e.mu.Unlock()
		return nil
	}
	e.stopped = true
	client := e.client
	cancel := e.cancel
	e.mu.Unlock()

	stopErr := client.Stop()
	cancel()
	// the audio pump may be blocked on a device read; it exits on the next chunk
	closeErr := client.Close()
	return errors.Join(stopErr, closeErr)
}

// classify maps provider and device failures onto capture errors
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, audio.ErrPermissionDenied):
		return errors.Join(ErrPermissionDenied, err)
	case resilience.IsRetryableNetworkError(err), errors.Is(err, resilience.ErrCircuitOpen):
		return errors.Join(ErrNetwork, err)
	}
	return err
}
