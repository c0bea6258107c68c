package audio

import (
	"sync"
)

// Kind distinguishes audio from video tracks
type Kind string

const (
	KindAudio Kind = "audio"
	KindVideo Kind = "video"
)

// Track is one media source handed over by the call layer. Read returns raw
// 16-bit little-endian PCM for audio tracks.
type Track interface {
	ID() string
	Kind() Kind
	// Live is false once the track has ended or was stopped
	Live() bool
	Read(p []byte) (int, error)
	// Stop releases the underlying capture device; safe to call repeatedly
	Stop()
}

// MediaStream groups the tracks of one local participant
type MediaStream struct {
	mu      sync.Mutex
	tracks  []Track
	stopped bool
}

// NewMediaStream creates a stream from tracks
func NewMediaStream(tracks ...Track) *MediaStream {
	return &MediaStream{tracks: tracks}
}

// AddTrack attaches a track, e.g. when the microphone is acquired after the camera
func (s *MediaStream) AddTrack(t Track) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracks = append(s.tracks, t)
}

// Tracks returns every track in insertion order
func (s *MediaStream) Tracks() []Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Track, len(s.tracks))
	copy(out, s.tracks)
	return out
}

// AudioTracks returns the live audio tracks
func (s *MediaStream) AudioTracks() []Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Track
	for _, t := range s.tracks {
		if t.Kind() == KindAudio && t.Live() {
			out = append(out, t)
		}
	}
	return out
}

// HasLiveAudio reports whether at least one audio track is live
func (s *MediaStream) HasLiveAudio() bool {
	return s != nil && len(s.AudioTracks()) > 0
}

// Stop stops every track, releasing capture devices. Idempotent.
func (s *MediaStream) Stop() {
	if s == nil {
		return
	}
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	tracks := s.tracks
	s.mu.Unlock()

	for _, t := range tracks {
		t.Stop()
	}
}
