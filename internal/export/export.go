// Package export renders the finalized transcript as a plain-text document
// and delivers it to disk, the clipboard, or an HTTP download.
package export

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/rs/zerolog"

	"github.com/lexiqai/session-gateway/internal/clock"
	"github.com/lexiqai/session-gateway/internal/notify"
	"github.com/lexiqai/session-gateway/internal/observability"
	"github.com/lexiqai/session-gateway/internal/transcript"
)

// ErrClipboardUnsupported is returned when no system clipboard is reachable
var ErrClipboardUnsupported = errors.New("clipboard not supported on this system")

const headerDateLayout = "January 2, 2006"

// FormatBody joins permanent entries as "[MM:SS] speaker: text" separated by a blank line
func FormatBody(entries []transcript.Entry) string {
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsInterim {
			continue
		}
		lines = append(lines, fmt.Sprintf("[%s] %s: %s", e.Timestamp, e.Speaker, e.Text))
	}
	return strings.Join(lines, "\n\n")
}

// Render builds the full export document: header block, blank line, body
func Render(entries []transcript.Entry, subject string, durationSeconds int, date time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Session Transcript: %s\n", subject)
	fmt.Fprintf(&b, "Date: %s\n", date.Format(headerDateLayout))
	fmt.Fprintf(&b, "Duration: %s\n\n", clock.FormatTime(durationSeconds))
	b.WriteString(FormatBody(entries))
	return b.String()
}

// filenameReplacer maps each space to an underscore and drops path separators
var filenameReplacer = strings.NewReplacer(" ", "_", "/", "", "\\", "")

// Filename returns transcript_<subject_with_underscores>_<YYYY-MM-DD>.txt.
// Every space becomes one underscore; path separators are removed so the
// name always stays inside the export directory.
func Filename(subject string, date time.Time) string {
	name := filenameReplacer.Replace(subject)
	return fmt.Sprintf("transcript_%s_%s.txt", name, date.Format("2006-01-02"))
}

// Clipboard is the system clipboard
type Clipboard interface {
	WriteAll(text string) error
}

// SystemClipboard writes to the OS clipboard
type SystemClipboard struct{}

func (SystemClipboard) WriteAll(text string) error {
	if clipboard.Unsupported {
		return ErrClipboardUnsupported
	}
	return clipboard.WriteAll(text)
}

// Exporter delivers transcripts and reports the outcome through a Notifier
type Exporter struct {
	dir       string
	clipboard Clipboard
	notifier  notify.Notifier
	now       func() time.Time
	logger    zerolog.Logger
}

// Option customizes an Exporter
type Option func(*Exporter)

// WithClipboard replaces the system clipboard
func WithClipboard(c Clipboard) Option {
	return func(e *Exporter) { e.clipboard = c }
}

// WithNotifier sets where success and failure toasts go
func WithNotifier(n notify.Notifier) Option {
	return func(e *Exporter) { e.notifier = n }
}

// WithNow overrides the wall clock used for header dates and filenames
func WithNow(now func() time.Time) Option {
	return func(e *Exporter) { e.now = now }
}

// NewExporter creates an exporter writing files into dir
func NewExporter(dir string, opts ...Option) *Exporter {
	e := &Exporter{
		dir:       dir,
		clipboard: SystemClipboard{},
		now:       time.Now,
		logger:    observability.WithComponent("export"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Exporter) notify(n notify.Notification) {
	if e.notifier != nil {
		e.notifier.Notify(n)
	}
}

// ExportFile writes the rendered transcript into the export directory and returns its path
func (e *Exporter) ExportFile(entries []transcript.Entry, subject string, durationSeconds int) (string, error) {
	now := e.now()
	path, err := e.writeFile(Filename(subject, now), Render(entries, subject, durationSeconds, now))
	if err != nil {
		e.logger.Error().Err(err).Str("subject", subject).Msg("Failed to export transcript")
		observability.RecordError("export_failed", "export")
		e.notify(notify.Notification{
			Title:       "Export failed",
			Description: "Could not save the transcript.",
			Variant:     notify.VariantDestructive,
		})
		return "", err
	}

	e.logger.Info().Str("path", path).Int("entries", len(entries)).Msg("Transcript exported")
	e.notify(notify.Notification{
		Title:       "Transcript exported",
		Description: "Transcript saved to " + filepath.Base(path),
		Variant:     notify.VariantDefault,
	})
	return path, nil
}

// writeFile stages content in a temp file and renames it into place
func (e *Exporter) writeFile(name, content string) (string, error) {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create export directory: %w", err)
	}

	tmp, err := os.CreateTemp(e.dir, ".transcript-*.tmp")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write transcript: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to close transcript: %w", err)
	}

	path := filepath.Join(e.dir, filepath.Base(name))
	if err := os.Rename(tmpName, path); err != nil {
		return "", fmt.Errorf("failed to move transcript into place: %w", err)
	}
	return path, nil
}

// CopyToClipboard writes the transcript body, without header, to the clipboard
func (e *Exporter) CopyToClipboard(entries []transcript.Entry) error {
	if err := e.clipboard.WriteAll(FormatBody(entries)); err != nil {
		e.logger.Error().Err(err).Msg("Failed to copy transcript")
		observability.RecordError("clipboard_failed", "export")
		e.notify(notify.Notification{
			Title:       "Copy failed",
			Description: "Could not copy transcript to clipboard.",
			Variant:     notify.VariantDestructive,
		})
		return fmt.Errorf("failed to copy transcript: %w", err)
	}

	e.notify(notify.Notification{
		Title:       "Copied to clipboard",
		Description: "Transcript has been copied to your clipboard.",
		Variant:     notify.VariantDefault,
	})
	return nil
}

// WriteDownload serves the rendered transcript as a text attachment
func (e *Exporter) WriteDownload(w http.ResponseWriter, entries []transcript.Entry, subject string, durationSeconds int) error {
	now := e.now()
	body := Render(entries, subject, durationSeconds, now)

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", Filename(subject, now)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(body)); err != nil {
		return fmt.Errorf("failed to write download: %w", err)
	}
	return nil
}
