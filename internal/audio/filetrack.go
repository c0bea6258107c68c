package audio

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrPermissionDenied is returned when the capture source cannot be opened for lack of permission
var ErrPermissionDenied = errors.New("audio capture permission denied")

// ReaderTrack is an audio Track backed by an io.Reader, paced to real time
// when bytesPerSecond is positive. It stands in for a microphone in the
// session runner (raw PCM from a file or a pipe such as `arecord -t raw`).
type ReaderTrack struct {
	id             string
	r              io.Reader
	bytesPerSecond int

	mu      sync.Mutex
	live    bool
	started time.Time
	total   int64
	sleep   func(time.Duration)
}

// NewReaderTrack wraps r as a live audio track
func NewReaderTrack(r io.Reader, bytesPerSecond int) *ReaderTrack {
	return &ReaderTrack{
		id:             uuid.NewString(),
		r:              r,
		bytesPerSecond: bytesPerSecond,
		live:           true,
		sleep:          time.Sleep,
	}
}

// OpenFileTrack opens path ("-" for stdin) as a paced 16-bit mono PCM track
func OpenFileTrack(path string, sampleRate int) (*ReaderTrack, error) {
	bps := sampleRate * 2
	if path == "-" {
		return NewReaderTrack(os.Stdin, bps), nil
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return nil, fmt.Errorf("%w: %s", ErrPermissionDenied, path)
		}
		return nil, fmt.Errorf("failed to open audio source: %w", err)
	}
	return NewReaderTrack(f, bps), nil
}

// ID implements Track
func (t *ReaderTrack) ID() string { return t.id }

// Kind implements Track
func (t *ReaderTrack) Kind() Kind { return KindAudio }

// Live implements Track
func (t *ReaderTrack) Live() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.live
}

// Read reads the next bytes, sleeping as needed so data is not delivered faster than real time
func (t *ReaderTrack) Read(p []byte) (int, error) {
	t.mu.Lock()
	if !t.live {
		t.mu.Unlock()
		return 0, io.EOF
	}
	if t.started.IsZero() {
		t.started = time.Now()
	}
	t.mu.Unlock()

	n, err := t.r.Read(p)

	t.mu.Lock()
	t.total += int64(n)
	var wait time.Duration
	if t.bytesPerSecond > 0 {
		due := t.started.Add(time.Duration(t.total * int64(time.Second) / int64(t.bytesPerSecond)))
		wait = time.Until(due)
	}
	if err != nil {
		// end of input ends the track like an unplugged device
		t.live = false
	}
	t.mu.Unlock()

	if wait > 0 {
		t.sleep(wait)
	}
	return n, err
}

// Stop ends the track and closes the source if it is closable
func (t *ReaderTrack) Stop() {
	t.mu.Lock()
	if !t.live {
		t.mu.Unlock()
		return
	}
	t.live = false
	t.mu.Unlock()

	if c, ok := t.r.(io.Closer); ok && t.r != os.Stdin {
		c.Close()
	}
}
