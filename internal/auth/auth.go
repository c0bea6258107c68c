// Package auth resolves the identity behind a bearer token.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	supabase "github.com/supabase-community/supabase-go"
)

// ErrUnauthenticated is returned for a missing or rejected token
var ErrUnauthenticated = errors.New("unauthenticated")

// Role is the kind of user taking part in a session
type Role string

const (
	RoleTherapist Role = "therapist"
	RolePatient   Role = "patient"
)

// Identity is the authenticated user
type Identity struct {
	UserID string `json:"id"`
	Email  string `json:"email"`
	Name   string `json:"full_name"`
	Role   Role   `json:"user_type"`
}

// Provider resolves a bearer token to an identity
type Provider interface {
	CurrentUser(ctx context.Context, token string) (*Identity, error)
}

// BearerToken extracts the token from an Authorization header or the
// access_token query parameter, which browsers use for WebSocket upgrades
func BearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	return r.URL.Query().Get("access_token")
}

// StaticProvider maps fixed tokens to identities
type StaticProvider struct {
	mu     sync.RWMutex
	tokens map[string]Identity
}

// NewStaticProvider creates a provider with no tokens
func NewStaticProvider() *StaticProvider {
	return &StaticProvider{tokens: make(map[string]Identity)}
}

// Add registers token for id
func (p *StaticProvider) Add(token string, id Identity) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tokens[token] = id
}

func (p *StaticProvider) CurrentUser(ctx context.Context, token string) (*Identity, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	id, ok := p.tokens[token]
	if !ok || token == "" {
		return nil, ErrUnauthenticated
	}
	return &id, nil
}

// SupabaseProvider validates tokens with Supabase Auth and loads the user's
// profile from the users table
type SupabaseProvider struct {
	client *supabase.Client
}

// NewSupabaseProvider creates a provider for the project at url
func NewSupabaseProvider(url, key string) (*SupabaseProvider, error) {
	client, err := supabase.NewClient(url, key, nil)
	if err != nil {
		return nil, fmt.Errorf("initialize supabase SDK: %w", err)
	}
	return &SupabaseProvider{client: client}, nil
}

// NewSupabaseProviderWithClient reuses an existing SDK client
func NewSupabaseProviderWithClient(client *supabase.Client) *SupabaseProvider {
	return &SupabaseProvider{client: client}
}

func (p *SupabaseProvider) CurrentUser(ctx context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, ErrUnauthenticated
	}
	user, err := p.client.Auth.WithToken(token).GetUser()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	id := &Identity{UserID: user.ID.String(), Email: user.Email}

	var profile Identity
	_, err = p.client.From("users").Select("*", "", false).Eq("id", id.UserID).Single().ExecuteTo(&profile)
	if err != nil {
		// a user without a profile row still authenticates
		return id, nil
	}
	id.Name = profile.Name
	id.Role = profile.Role
	return id, nil
}

// SpeakerLabel is how a user's utterances are attributed in the transcript
func (id *Identity) SpeakerLabel() string {
	if id == nil || id.Name == "" {
		return "You"
	}
	return id.Name
}
