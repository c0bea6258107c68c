package stt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/rs/zerolog"
	"google.golang.org/protobuf/types/known/durationpb"

	"github.com/lexiqai/session-gateway/internal/config"
	"github.com/lexiqai/session-gateway/internal/observability"
	"github.com/lexiqai/session-gateway/internal/resilience"
)

// GoogleClient implements STTClient using Google Cloud Speech-to-Text streaming recognition.
// Credentials come from GOOGLE_APPLICATION_CREDENTIALS.
type GoogleClient struct {
	cfg            *config.Config
	client         *speech.Client
	stream         speechpb.Speech_StreamingRecognizeClient
	sink           *resultSink
	ctx            context.Context
	cancel         context.CancelFunc
	circuitBreaker *resilience.CircuitBreaker
	logger         zerolog.Logger

	// sendMu serializes Send and CloseSend on the gRPC stream
	sendMu   sync.Mutex
	isActive bool
	stopped  bool
}

// NewGoogleClient dials the Speech API
func NewGoogleClient(ctx context.Context, cfg *config.Config, breaker *resilience.CircuitBreaker) (*GoogleClient, error) {
	ctx, cancel := context.WithCancel(ctx)
	c, err := speech.NewClient(ctx)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create Google Speech client: %w", err)
	}
	if breaker == nil {
		breaker = NewBreaker(config.ProviderGoogle, cfg)
	}
	return &GoogleClient{
		cfg:            cfg,
		client:         c,
		sink:           newResultSink(100),
		ctx:            ctx,
		cancel:         cancel,
		circuitBreaker: breaker,
		logger:         observability.WithComponent("stt.google"),
	}, nil
}

// Name implements STTClient
func (g *GoogleClient) Name() string { return config.ProviderGoogle }

func (g *GoogleClient) recognitionConfig() *speechpb.RecognitionConfig {
	rc := &speechpb.RecognitionConfig{
		Encoding:                   speechpb.RecognitionConfig_LINEAR16,
		SampleRateHertz:            int32(g.cfg.AudioSampleRate),
		LanguageCode:               g.cfg.GoogleLanguage,
		EnableAutomaticPunctuation: true,
	}
	if g.cfg.AudioEncoding == "mulaw" {
		rc.Encoding = speechpb.RecognitionConfig_MULAW
		rc.SampleRateHertz = 8000
	}
	return rc
}

// Start opens the stream, sends the streaming config, and begins receiving
func (g *GoogleClient) Start() error {
	g.sendMu.Lock()
	defer g.sendMu.Unlock()

	if g.stopped {
		return fmt.Errorf("google client is closed")
	}
	if g.isActive {
		return fmt.Errorf("google client is already active")
	}

	err := g.circuitBreaker.Call(func() error {
		stream, err := g.client.StreamingRecognize(g.ctx)
		if err != nil {
			return err
		}
		err = stream.Send(&speechpb.StreamingRecognizeRequest{
			StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
				StreamingConfig: &speechpb.StreamingRecognitionConfig{
					Config:         g.recognitionConfig(),
					InterimResults: true,
				},
			},
		})
		if err != nil {
			return err
		}
		g.stream = stream
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to open Google streaming recognition: %w", err)
	}

	g.isActive = true
	go g.listen()

	g.logger.Info().Str("language", g.cfg.GoogleLanguage).Msg("Google streaming client started")
	return nil
}

// listen receives responses until the stream ends, then closes the result channel
func (g *GoogleClient) listen() {
	for {
		resp, err := g.stream.Recv()
		if err == io.EOF {
			g.sink.close(nil)
			return
		}
		if err != nil {
			if errors.Is(g.ctx.Err(), context.Canceled) {
				err = nil
			} else {
				g.circuitBreaker.RecordResult(false)
				g.logger.Error().Err(err).Msg("Google streaming recognition failed")
			}
			g.sink.close(err)
			return
		}

		for _, r := range resp.Results {
			if len(r.Alternatives) == 0 || r.Alternatives[0].Transcript == "" {
				continue
			}
			alt := r.Alternatives[0]
			result := &TranscriptionResult{
				Text:       alt.Transcript,
				IsFinal:    r.IsFinal,
				Confidence: float64(alt.Confidence),
			}
			result.Duration = seconds(r.ResultEndTime)
			if !g.sink.emit(result) {
				g.logger.Warn().Bool("is_final", r.IsFinal).Msg("Transcript channel full or closed, dropping result")
			}
		}
	}
}

// seconds converts an optional stream offset
func seconds(d *durationpb.Duration) float64 {
	if d == nil {
		return 0
	}
	return d.AsDuration().Seconds()
}

// SendAudio streams an audio chunk
func (g *GoogleClient) SendAudio(audioData []byte) error {
	g.sendMu.Lock()
	defer g.sendMu.Unlock()

	if !g.isActive {
		return ErrNotActive
	}
	return g.circuitBreaker.Call(func() error {
		return g.stream.Send(&speechpb.StreamingRecognizeRequest{
			StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{
				AudioContent: audioData,
			},
		})
	})
}

// GetTranscription implements STTClient
func (g *GoogleClient) GetTranscription() <-chan *TranscriptionResult {
	return g.sink.ch
}

// Err implements STTClient
func (g *GoogleClient) Err() error {
	return g.sink.failure()
}

// Stop half-closes the stream; pending final results still arrive before the channel closes
func (g *GoogleClient) Stop() error {
	g.sendMu.Lock()
	defer g.sendMu.Unlock()

	if g.stopped {
		return nil
	}
	g.stopped = true
	if !g.isActive {
		g.sink.close(nil)
		return nil
	}
	g.isActive = false
	return g.stream.CloseSend()
}

// Close stops the stream and releases the client connection
func (g *GoogleClient) Close() error {
	err := g.Stop()
	g.cancel()
	if cerr := g.client.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
