package stt

import (
	"context"
	"testing"

	"github.com/lexiqai/session-gateway/internal/config"
	"github.com/lexiqai/session-gateway/internal/resilience"
)

func testConfig(provider string) *config.Config {
	return &config.Config{
		STTProvider:                provider,
		DeepgramAPIKey:             "test-key",
		DeepgramModel:              "nova-2",
		DeepgramLanguage:           "en",
		AudioEncoding:              "linear16",
		AudioSampleRate:            16000,
		CircuitBreakerMaxFailures:  2,
		CircuitBreakerResetTimeout: 30,
		ReconnectMaxAttempts:       1,
		ReconnectBackoff:           10,
	}
}

func TestNewFactory(t *testing.T) {
	tests := []struct {
		provider string
		wantName string
	}{
		{config.ProviderMock, "mock"},
		{config.ProviderDeepgram, "deepgram"},
	}

	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			factory, err := NewFactory(testConfig(tt.provider))
			if err != nil {
				t.Fatalf("NewFactory failed: %v", err)
			}
			client, err := factory(context.Background())
			if err != nil {
				t.Fatalf("factory failed: %v", err)
			}
			defer client.Close()
			if client.Name() != tt.wantName {
				t.Errorf("Expected provider %s, got %s", tt.wantName, client.Name())
			}
		})
	}
}

func TestNewFactory_Unsupported(t *testing.T) {
	if _, err := NewFactory(testConfig("whisper")); err == nil {
		t.Error("Expected error for unsupported provider")
	}
}

func TestDeepgramClient_SendBeforeStart(t *testing.T) {
	client := NewDeepgramClient(context.Background(), testConfig(config.ProviderDeepgram), nil)
	defer client.Close()

	if err := client.SendAudio([]byte{0, 0}); err == nil {
		t.Error("Expected error sending audio before Start")
	}
	if client.IsActive() {
		t.Error("Expected client to be inactive")
	}
}

func TestDeepgramClient_MulawOptions(t *testing.T) {
	cfg := testConfig(config.ProviderDeepgram)
	cfg.AudioEncoding = "mulaw"

	client := NewDeepgramClient(context.Background(), cfg, resilience.NewCircuitBreaker("t", 1, 0))
	if client.options.Encoding != "mulaw" || client.options.SampleRate != 8000 {
		t.Errorf("Expected mulaw at 8000Hz, got %s at %d", client.options.Encoding, client.options.SampleRate)
	}
}
