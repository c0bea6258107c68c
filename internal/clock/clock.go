// Package clock provides the per-session elapsed-seconds counter used to
// label transcript entries and detected terms.
package clock

import (
	"fmt"
	"sync"
	"time"
)

// Clock counts whole seconds while the session is connected
type Clock struct {
	interval time.Duration
	onTick   func(seconds int)

	mu      sync.Mutex
	seconds int
	running bool
	stop    chan struct{}
	done    chan struct{}
}

// Option customizes a Clock
type Option func(*Clock)

// WithInterval overrides the one-second tick
func WithInterval(d time.Duration) Option {
	return func(c *Clock) { c.interval = d }
}

// WithTickHandler is called after every increment, outside the clock lock
func WithTickHandler(fn func(seconds int)) Option {
	return func(c *Clock) { c.onTick = fn }
}

// New creates a stopped clock at zero
func New(opts ...Option) *Clock {
	c := &Clock{interval: time.Second}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start begins ticking. It returns false without scheduling a second ticker
// when the clock is already running. The count resumes where it stopped.
func (c *Clock) Start() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return false
	}
	c.running = true
	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	go c.run(c.stop, c.done)
	return true
}

func (c *Clock) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.tick()
		}
	}
}

func (c *Clock) tick() {
	c.mu.Lock()
	c.seconds++
	s := c.seconds
	c.mu.Unlock()

	if c.onTick != nil {
		c.onTick(s)
	}
}

// Stop halts the ticker and waits for it to exit. Idempotent.
func (c *Clock) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	close(c.stop)
	done := c.done
	c.mu.Unlock()

	<-done
}

// Running reports whether the ticker is active
func (c *Clock) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Seconds returns the elapsed session seconds
func (c *Clock) Seconds() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seconds
}

// Label returns the elapsed time as MM:SS
func (c *Clock) Label() string {
	return FormatTime(c.Seconds())
}

// FormatTime renders seconds as zero-padded MM:SS. Minutes are not capped at 59.
func FormatTime(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}
