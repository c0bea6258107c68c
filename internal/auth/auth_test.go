package auth

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
)

func TestBearerToken(t *testing.T) {
	tests := []struct {
		name     string
		header   string
		url      string
		expected string
	}{
		{"header", "Bearer abc", "/ws/transcribe", "abc"},
		{"query", "", "/ws/transcribe?access_token=xyz", "xyz"},
		{"header wins", "Bearer abc", "/ws/transcribe?access_token=xyz", "abc"},
		{"wrong scheme", "Basic abc", "/ws/transcribe", ""},
		{"none", "", "/ws/transcribe", ""},
	}
	for _, tt := range tests {
		r := httptest.NewRequest("GET", tt.url, nil)
		if tt.header != "" {
			r.Header.Set("Authorization", tt.header)
		}
		if got := BearerToken(r); got != tt.expected {
			t.Errorf("%s: expected %q, got %q", tt.name, tt.expected, got)
		}
	}
}

func TestStaticProvider(t *testing.T) {
	p := NewStaticProvider()
	p.Add("t1", Identity{UserID: "u1", Name: "Dr. Smith", Role: RoleTherapist})

	id, err := p.CurrentUser(context.Background(), "t1")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if id.Role != RoleTherapist || id.SpeakerLabel() != "Dr. Smith" {
		t.Errorf("Unexpected identity %+v", id)
	}

	if _, err := p.CurrentUser(context.Background(), "bad"); !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("Expected ErrUnauthenticated, got %v", err)
	}
	if _, err := p.CurrentUser(context.Background(), ""); !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("Expected ErrUnauthenticated for empty token, got %v", err)
	}
}

func TestSpeakerLabelDefault(t *testing.T) {
	var id *Identity
	if id.SpeakerLabel() != "You" {
		t.Errorf("Expected You, got %s", id.SpeakerLabel())
	}
}
