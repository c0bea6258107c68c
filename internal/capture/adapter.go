// Package capture runs continuous speech recognition on the local microphone
// as a fallback transcript source when the transcription server is not used.
package capture

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/session-gateway/internal/notify"
	"github.com/lexiqai/session-gateway/internal/observability"
)

var (
	// ErrPermissionDenied means the microphone could not be opened
	ErrPermissionDenied = errors.New("speech capture permission denied")
	// ErrNetwork means the recognition service could not be reached
	ErrNetwork = errors.New("speech capture network error")
	// ErrUnsupported means no recognition engine is available
	ErrUnsupported = errors.New("speech recognition not supported")
)

// DefaultRestartDelay is how long the adapter waits before restarting an engine that ended
const DefaultRestartDelay = time.Second

// Segment is one recognition result
type Segment struct {
	Transcript string
	IsFinal    bool
}

// Handlers receive engine events. They may be called from any goroutine.
type Handlers struct {
	OnResult func([]Segment)
	OnEnd    func()
	OnError  func(error)
}

// EngineConfig is how the adapter configures every engine it starts
type EngineConfig struct {
	Locale         string
	Continuous     bool
	InterimResults bool
}

// Engine is a single recognition run. After OnEnd fires the engine is spent.
// Handlers must not be invoked from within Start or Stop.
type Engine interface {
	Start(h Handlers) error
	Stop() error
}

// EngineFactory creates a fresh engine per run; nil means no engine is configured
type EngineFactory func(cfg EngineConfig) (Engine, error)

// Capability reports whether speech capture can run on this host
type Capability struct {
	Available bool
	Reason    string
}

// Detect evaluates the capability of factory
func Detect(factory EngineFactory) Capability {
	if factory == nil {
		return Capability{Reason: ErrUnsupported.Error()}
	}
	return Capability{Available: true}
}

// Callback receives each result segment in order with the active speaker label
type Callback func(transcript string, isFinal bool, speaker string)

// Adapter keeps an engine listening until Stop, restarting it once whenever it ends
type Adapter struct {
	factory      EngineFactory
	capability   Capability
	engineCfg    EngineConfig
	restartDelay time.Duration
	notifier     notify.Notifier
	logger       zerolog.Logger

	mu        sync.Mutex
	listening bool
	speaker   string
	cb        Callback
	engine    Engine
	gen       uint64
	restart   *time.Timer
}

// Option customizes an Adapter
type Option func(*Adapter)

// WithRestartDelay sets the delay before restarting an ended engine
func WithRestartDelay(d time.Duration) Option {
	return func(a *Adapter) { a.restartDelay = d }
}

// WithLocale sets the recognition locale
func WithLocale(locale string) Option {
	return func(a *Adapter) { a.engineCfg.Locale = locale }
}

// WithNotifier sets where permission and network failures are surfaced
func WithNotifier(n notify.Notifier) Option {
	return func(a *Adapter) { a.notifier = n }
}

// WithSpeaker sets the initial speaker label
func WithSpeaker(label string) Option {
	return func(a *Adapter) { a.speaker = label }
}

// WithLogger sets the logger
func WithLogger(l zerolog.Logger) Option {
	return func(a *Adapter) { a.logger = l }
}

// NewAdapter creates a stopped adapter
func NewAdapter(factory EngineFactory, opts ...Option) *Adapter {
	a := &Adapter{
		factory:      factory,
		capability:   Detect(factory),
		engineCfg:    EngineConfig{Locale: "en-US", Continuous: true, InterimResults: true},
		restartDelay: DefaultRestartDelay,
		speaker:      "You",
		logger:       observability.WithComponent("capture"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Supported reports whether an engine is available
func (a *Adapter) Supported() bool {
	return a.capability.Available
}

// Capability returns the startup capability check
func (a *Adapter) Capability() Capability {
	return a.capability
}

// Listening reports whether the adapter is logically listening
func (a *Adapter) Listening() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.listening
}

// SetSpeaker changes the label attached to subsequent segments
func (a *Adapter) SetSpeaker(label string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.speaker = label
}

// Start begins listening. It returns false when capture is unsupported or the
// engine fails to start; it never panics.
func (a *Adapter) Start(cb Callback) bool {
	if !a.Supported() {
		a.logger.Warn().Str("reason", a.capability.Reason).Msg("Speech capture unavailable")
		return false
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.listening {
		return true
	}

	a.cb = cb
	if err := a.startEngineLocked(); err != nil {
		a.logger.Error().Err(err).Msg("Failed to start speech capture")
		a.handleErrorLocked(err)
		return false
	}
	a.listening = true
	a.logger.Info().Str("locale", a.engineCfg.Locale).Msg("Speech capture started")
	return true
}

func (a *Adapter) startEngineLocked() error {
	engine, err := a.factory(a.engineCfg)
	if err != nil {
		return err
	}

	a.gen++
	gen := a.gen
	h := Handlers{
		OnResult: func(segs []Segment) { a.onResult(gen, segs) },
		OnEnd:    func() { a.onEnd(gen) },
		OnError:  func(err error) { a.onError(gen, err) },
	}
	// engine is set before Start so an immediate OnEnd sees the current generation
	a.engine = engine
	if err := engine.Start(h); err != nil {
		a.engine = nil
		return err
	}
	return nil
}

func (a *Adapter) onResult(gen uint64, segs []Segment) {
	a.mu.Lock()
	if gen != a.gen || !a.listening {
		a.mu.Unlock()
		return
	}
	cb := a.cb
	speaker := a.speaker
	a.mu.Unlock()

	if cb == nil {
		return
	}
	for _, s := range segs {
		cb(s.Transcript, s.IsFinal, speaker)
	}
}

func (a *Adapter) onEnd(gen uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if gen != a.gen {
		return
	}
	a.engine = nil
	if !a.listening || a.restart != nil {
		return
	}

	a.logger.Debug().Dur("delay", a.restartDelay).Msg("Speech engine ended, scheduling restart")
	a.restart = time.AfterFunc(a.restartDelay, func() { a.doRestart(gen) })
}

func (a *Adapter) doRestart(gen uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.restart = nil
	if !a.listening || gen != a.gen {
		return
	}

	if err := a.startEngineLocked(); err != nil {
		a.logger.Error().Err(err).Msg("Failed to restart speech capture")
		a.handleErrorLocked(err)
		a.listening = false
		return
	}
	a.logger.Info().Msg("Speech capture restarted")
}

func (a *Adapter) onError(gen uint64, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if gen != a.gen {
		return
	}
	if engine := a.handleErrorLocked(err); engine != nil {
		// this runs on the engine's own goroutine
		go a.stopEngine(engine)
	}
}

// handleErrorLocked surfaces err and returns the engine to stop, if any
func (a *Adapter) handleErrorLocked(err error) Engine {
	switch {
	case errors.Is(err, ErrPermissionDenied):
		a.logger.Error().Err(err).Msg("Microphone access denied")
		observability.RecordError("capture_permission", "capture")
		a.notify(notify.Notification{
			Title:       "Microphone access denied",
			Description: "Please allow microphone access to use speech recognition.",
			Variant:     notify.VariantDestructive,
		})
		return a.stopLocked()
	case errors.Is(err, ErrNetwork):
		a.logger.Error().Err(err).Msg("Speech recognition network error")
		observability.RecordError("capture_network", "capture")
		a.notify(notify.Notification{
			Title:       "Network error",
			Description: "Speech recognition requires an internet connection.",
			Variant:     notify.VariantDestructive,
		})
	default:
		a.logger.Warn().Err(err).Msg("Speech recognition error")
		observability.RecordError("capture_error", "capture")
	}
	return nil
}

func (a *Adapter) notify(n notify.Notification) {
	if a.notifier != nil {
		a.notifier.Notify(n)
	}
}

// Stop ends listening, cancels any pending restart and stops the engine. It
// returns false if the adapter was not listening.
func (a *Adapter) Stop() bool {
	a.mu.Lock()
	if !a.listening {
		a.mu.Unlock()
		return false
	}
	engine := a.stopLocked()
	a.mu.Unlock()

	if engine != nil {
		a.stopEngine(engine)
	}
	a.logger.Info().Msg("Speech capture stopped")
	return true
}

func (a *Adapter) stopLocked() Engine {
	a.listening = false
	if a.restart != nil {
		a.restart.Stop()
		a.restart = nil
	}
	engine := a.engine
	a.engine = nil
	return engine
}

func (a *Adapter) stopEngine(engine Engine) {
	if err := engine.Stop(); err != nil {
		a.logger.Debug().Err(err).Msg("Error stopping speech engine")
	}
}
