package stt

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lexiqai/session-gateway/internal/config"
	"github.com/lexiqai/session-gateway/internal/observability"
	"github.com/lexiqai/session-gateway/internal/resilience"
)

// NewBreaker builds a provider circuit breaker that reports state to Prometheus
func NewBreaker(provider string, cfg *config.Config) *resilience.CircuitBreaker {
	cb := resilience.NewCircuitBreaker(
		provider,
		cfg.CircuitBreakerMaxFailures,
		time.Duration(cfg.CircuitBreakerResetTimeout)*time.Second,
	)
	cb.OnStateChange(func(name string, from, to resilience.CircuitState) {
		observability.UpdateCircuitBreakerState(name, int(to))
		if to == resilience.StateOpen {
			observability.IncrementCircuitBreakerFailures(name)
		}
		log.Warn().Str("service", name).Str("from", from.String()).Str("to", to.String()).Msg("Circuit breaker state changed")
	})
	return cb
}

// Factory creates one client per stream
type Factory func(ctx context.Context) (STTClient, error)

// NewFactory returns a Factory for the configured provider. Streams of one
// provider share a circuit breaker so a failing upstream trips for everyone.
func NewFactory(cfg *config.Config) (Factory, error) {
	switch cfg.STTProvider {
	case config.ProviderDeepgram:
		breaker := NewBreaker(config.ProviderDeepgram, cfg)
		return func(ctx context.Context) (STTClient, error) {
			return NewDeepgramClient(ctx, cfg, breaker), nil
		}, nil
	case config.ProviderGoogle:
		breaker := NewBreaker(config.ProviderGoogle, cfg)
		return func(ctx context.Context) (STTClient, error) {
			return NewGoogleClient(ctx, cfg, breaker)
		}, nil
	case config.ProviderMock:
		return func(ctx context.Context) (STTClient, error) {
			return NewMockClient(DefaultUtterances), nil
		}, nil
	}
	return nil, fmt.Errorf("unsupported STT provider %q", cfg.STTProvider)
}
