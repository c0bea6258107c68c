// Command session runs one live session headlessly: microphone audio is read
// from a raw PCM file or pipe, transcribed through the gateway (or a local
// recognition engine), annotated, and exported when the session ends.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/session-gateway/internal/audio"
	"github.com/lexiqai/session-gateway/internal/capture"
	"github.com/lexiqai/session-gateway/internal/config"
	"github.com/lexiqai/session-gateway/internal/events"
	"github.com/lexiqai/session-gateway/internal/export"
	"github.com/lexiqai/session-gateway/internal/notify"
	"github.com/lexiqai/session-gateway/internal/observability"
	"github.com/lexiqai/session-gateway/internal/records"
	"github.com/lexiqai/session-gateway/internal/session"
	"github.com/lexiqai/session-gateway/internal/stt"
	"github.com/lexiqai/session-gateway/internal/transport"
)

const (
	modeTransport = "transport"
	modeDictation = "dictation"
)

func main() {
	audioPath := flag.String("audio", "-", "Raw 16-bit mono PCM source, - for stdin")
	sessionID := flag.String("session", records.DemoSession.ID, "Session record ID")
	mode := flag.String("mode", modeTransport, "Transcript source: transport or dictation")
	speaker := flag.String("speaker", "You", "Speaker label for transcribed audio")
	drain := flag.Duration("drain", 2*time.Second, "Wait for late results after the audio ends")
	copyTranscript := flag.Bool("copy", false, "Copy the transcript to the clipboard on exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.WithComponent("session-runner")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, runOptions{
		audioPath: *audioPath,
		sessionID: *sessionID,
		mode:      *mode,
		speaker:   *speaker,
		drain:     *drain,
		copy:      *copyTranscript,
	}, logger); err != nil {
		logger.Error().Err(err).Msg("Session failed")
		os.Exit(1)
	}
}

type runOptions struct {
	audioPath string
	sessionID string
	mode      string
	speaker   string
	drain     time.Duration
	copy      bool
}

func run(ctx context.Context, cfg *config.Config, opts runOptions, logger zerolog.Logger) error {
	store, err := records.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	subject := "Session"
	var history *records.PatientHistory
	rec, err := store.Session(ctx, opts.sessionID)
	if err != nil {
		logger.Warn().Err(err).Str("session_id", opts.sessionID).Msg("Session record unavailable, continuing without it")
	} else {
		subject = rec.Patient.Name
		if history, err = store.PatientHistory(ctx, rec.Patient.ID); err != nil {
			logger.Warn().Err(err).Str("patient_id", rec.Patient.ID).Msg("Patient history unavailable")
		}
	}

	notifier := notify.NewLogNotifier(logger)
	publisher := events.New(events.ConfigFrom(cfg))
	defer publisher.Close()

	track, err := audio.OpenFileTrack(opts.audioPath, cfg.AudioSampleRate)
	if err != nil {
		if errors.Is(err, audio.ErrPermissionDenied) {
			notifier.Notify(notify.Notification{
				Title:       "Microphone access denied",
				Description: "Please allow microphone access to use speech recognition.",
				Variant:     notify.VariantDestructive,
			})
		}
		return err
	}
	stream := audio.NewMediaStream(track)

	sessOpts := session.Options{
		Subject:   subject,
		Speaker:   opts.speaker,
		Cooldown:  cfg.TermCooldownSeconds,
		Exporter:  export.NewExporter(cfg.ExportDir, export.WithNotifier(notifier)),
		Publisher: publisher,
		Logger:    &logger,
	}
	if history != nil {
		sessOpts.Records = history
	}
	sess := session.New(sessOpts)
	sess.AttachStream(stream)
	defer sess.Teardown()

	sess.Connect()

	var finished <-chan struct{}
	switch opts.mode {
	case modeTransport:
		client, err := transport.NewClientFromConfig(cfg)
		if err != nil {
			return err
		}
		h, err := sess.StartTransport(ctx, client, stream)
		if err != nil {
			return err
		}
		finished = h.Done()

	case modeDictation:
		factory, err := stt.NewFactory(cfg)
		if err != nil {
			return err
		}
		encoder, err := audio.NewEncoder(cfg.AudioEncoding, cfg.AudioSampleRate)
		if err != nil {
			return err
		}
		adapter := capture.NewAdapter(
			capture.NewSTTEngineFactory(ctx, factory, track, encoder),
			capture.WithRestartDelay(cfg.CaptureRestartDelay()),
			capture.WithLocale(cfg.CaptureLocale),
			capture.WithNotifier(notifier),
			capture.WithSpeaker(opts.speaker),
			capture.WithLogger(logger),
		)
		if err := sess.StartDictation(adapter); err != nil {
			return err
		}
		finished = whenStopped(ctx, adapter.Listening)

	default:
		return fmt.Errorf("unknown mode %q", opts.mode)
	}

	logger.Info().Str("mode", opts.mode).Str("subject", subject).Msg("Session running")

	select {
	case <-ctx.Done():
	case <-finished:
	case <-whenStopped(ctx, track.Live):
		// the source ran dry; give the backend a moment to deliver final results
		select {
		case <-ctx.Done():
		case <-finished:
		case <-time.After(opts.drain):
		}
	}

	sess.Disconnect()
	summarize(sess, logger)

	if _, err := sess.ExportFile(); err != nil {
		logger.Warn().Err(err).Msg("Transcript export failed")
	}
	if opts.copy {
		if err := sess.CopyTranscript(); err != nil {
			logger.Warn().Err(err).Msg("Transcript copy failed")
		}
	}
	return nil
}

// whenStopped closes the returned channel once live reports false
func whenStopped(ctx context.Context, live func() bool) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(250 * time.Millisecond)
		defer ticker.Stop()
		for live() {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	return done
}

func summarize(sess *session.Session, logger zerolog.Logger) {
	var detected []string
	for _, t := range sess.Terms() {
		detected = append(detected, fmt.Sprintf("%s@%s", t.Term, t.Timestamp))
	}
	logger.Info().
		Int("entries", len(sess.Transcript())).
		Int("duration_seconds", sess.Elapsed()).
		Strs("terms", detected).
		Strs("suggestions", sess.Suggestions()).
		Msg("Session summary")

	for _, t := range sess.Terms() {
		if t.RelatedRecords {
			logger.Info().Str("term", t.Term).Msg("Term appears in patient records")
		}
	}
}
