package export

import (
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/lexiqai/session-gateway/internal/notify"
	"github.com/lexiqai/session-gateway/internal/transcript"
)

type fakeClipboard struct {
	text string
	err  error
}

func (f *fakeClipboard) WriteAll(text string) error {
	if f.err != nil {
		return f.err
	}
	f.text = text
	return nil
}

var fixedDate = time.Date(2024, time.March, 7, 10, 0, 0, 0, time.UTC)

func sampleEntries() []transcript.Entry {
	return []transcript.Entry{
		{Timestamp: "00:05", Speaker: "Dr. X", Text: "Hello"},
		{Timestamp: "00:10", Speaker: "You", Text: "Hi"},
		{Timestamp: "00:12", Speaker: "You", Text: "still talk", IsInterim: true},
	}
}

func TestRender(t *testing.T) {
	got := Render(sampleEntries(), "John Patient", 15, fixedDate)
	want := "Session Transcript: John Patient\nDate: March 7, 2024\nDuration: 00:15\n\n[00:05] Dr. X: Hello\n\n[00:10] You: Hi"

	if got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}
}

func TestFormatBody_Empty(t *testing.T) {
	if got := FormatBody(nil); got != "" {
		t.Errorf("Expected empty body, got %q", got)
	}
}

func TestFilename(t *testing.T) {
	tests := []struct {
		subject  string
		expected string
	}{
		{"John Patient", "transcript_John_Patient_2024-03-07.txt"},
		{"Mary  Ann Smith", "transcript_Mary__Ann_Smith_2024-03-07.txt"},
		{" Solo ", "transcript__Solo__2024-03-07.txt"},
		{"Solo", "transcript_Solo_2024-03-07.txt"},
		{"a/../../../tmp/x", "transcript_a......tmpx_2024-03-07.txt"},
		{`..\..\evil`, "transcript_....evil_2024-03-07.txt"},
	}
	for _, tt := range tests {
		if got := Filename(tt.subject, fixedDate); got != tt.expected {
			t.Errorf("Filename(%q): expected %s, got %s", tt.subject, tt.expected, got)
		}
	}
}

func TestExporter_ExportFileStaysInDir(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "exports")
	e := NewExporter(dir, WithNow(func() time.Time { return fixedDate }))

	path, err := e.ExportFile(sampleEntries(), "a/../../../x", 15)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if filepath.Dir(path) != dir {
		t.Errorf("Expected export inside %s, got %s", dir, path)
	}
	matches, _ := filepath.Glob(filepath.Join(root, "transcript_*"))
	if len(matches) != 0 {
		t.Errorf("Expected nothing written outside the export directory, found %v", matches)
	}
}

func TestExporter_ExportFile(t *testing.T) {
	dir := t.TempDir()
	notes := &notify.Recorder{}
	e := NewExporter(dir, WithNow(func() time.Time { return fixedDate }), WithNotifier(notes))

	path, err := e.ExportFile(sampleEntries(), "John Patient", 15)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if filepath.Base(path) != "transcript_John_Patient_2024-03-07.txt" {
		t.Errorf("Unexpected filename %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read export: %v", err)
	}
	if !strings.HasPrefix(string(data), "Session Transcript: John Patient\n") {
		t.Errorf("Unexpected content %q", data)
	}

	leftovers, _ := filepath.Glob(filepath.Join(dir, ".transcript-*"))
	if len(leftovers) != 0 {
		t.Errorf("Expected temp files removed, found %v", leftovers)
	}

	sent := notes.Sent()
	if len(sent) != 1 || sent[0].Variant != notify.VariantDefault {
		t.Errorf("Expected one success notification, got %+v", sent)
	}
}

func TestExporter_CopyToClipboard(t *testing.T) {
	cb := &fakeClipboard{}
	notes := &notify.Recorder{}
	e := NewExporter(t.TempDir(), WithClipboard(cb), WithNotifier(notes))

	if err := e.CopyToClipboard(sampleEntries()); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if cb.text != "[00:05] Dr. X: Hello\n\n[00:10] You: Hi" {
		t.Errorf("Expected body without header, got %q", cb.text)
	}
	if len(notes.Sent()) != 1 {
		t.Errorf("Expected one notification, got %d", len(notes.Sent()))
	}
}

func TestExporter_CopyToClipboardFailure(t *testing.T) {
	cb := &fakeClipboard{err: errors.New("no display")}
	notes := &notify.Recorder{}
	e := NewExporter(t.TempDir(), WithClipboard(cb), WithNotifier(notes))

	if err := e.CopyToClipboard(sampleEntries()); err == nil {
		t.Fatal("Expected error")
	}
	sent := notes.Sent()
	if len(sent) != 1 || sent[0].Variant != notify.VariantDestructive {
		t.Errorf("Expected destructive notification, got %+v", sent)
	}
}

func TestExporter_WriteDownload(t *testing.T) {
	e := NewExporter(t.TempDir(), WithNow(func() time.Time { return fixedDate }))
	rec := httptest.NewRecorder()

	if err := e.WriteDownload(rec, sampleEntries(), "John Patient", 15); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "transcript_John_Patient_2024-03-07.txt") {
		t.Errorf("Unexpected Content-Disposition %s", cd)
	}
	if !strings.HasSuffix(rec.Body.String(), "[00:10] You: Hi") {
		t.Errorf("Unexpected body %q", rec.Body.String())
	}
}
