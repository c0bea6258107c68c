package records

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/lexiqai/session-gateway/internal/config"
)

func TestPatientHistory_HasRelatedRecord(t *testing.T) {
	h := &DemoHistory

	tests := []struct {
		term     string
		expected bool
	}{
		{"anxiety", true},     // diagnosis condition
		{"Depressive", true},  // case-insensitive
		{"mindfulness", true}, // previous session note
		{"panic attack", false},
		{"rumination", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := h.HasRelatedRecord(tt.term); got != tt.expected {
			t.Errorf("HasRelatedRecord(%q): expected %v, got %v", tt.term, tt.expected, got)
		}
	}

	var nilHistory *PatientHistory
	if nilHistory.HasRelatedRecord("anxiety") {
		t.Error("Expected nil history to have no records")
	}
}

func TestStaticStore(t *testing.T) {
	ctx := context.Background()
	s := NewDemoStore()

	rec, err := s.Session(ctx, "1")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if rec.Patient.Name != "John Patient" {
		t.Errorf("Expected John Patient, got %s", rec.Patient.Name)
	}

	if _, err := s.Session(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	h, err := s.PatientHistory(ctx, rec.Patient.ID)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(h.Diagnoses) != 2 {
		t.Errorf("Expected 2 diagnoses, got %d", len(h.Diagnoses))
	}
}

func openTestSQLite(t *testing.T) *SQLStore {
	t.Helper()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "records.db")

	store, err := OpenSQL(ctx, DriverSQLite, path)
	if err != nil {
		t.Fatalf("Failed to open sqlite: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("Failed to migrate: %v", err)
	}
	return store
}

func TestSQLStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := openTestSQLite(t)

	if err := store.Seed(ctx, DemoSession, DemoHistory); err != nil {
		t.Fatalf("Failed to seed: %v", err)
	}
	// seeding twice replaces rather than duplicates
	if err := store.Seed(ctx, DemoSession, DemoHistory); err != nil {
		t.Fatalf("Failed to reseed: %v", err)
	}

	rec, err := store.Session(ctx, DemoSession.ID)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if *rec != DemoSession {
		t.Errorf("Expected %+v, got %+v", DemoSession, *rec)
	}

	h, err := store.PatientHistory(ctx, DemoSession.Patient.ID)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(h.Diagnoses) != 2 || h.Diagnoses[0] != DemoHistory.Diagnoses[0] {
		t.Errorf("Unexpected diagnoses %+v", h.Diagnoses)
	}
	if len(h.Medications) != 2 || h.Medications[1] != DemoHistory.Medications[1] {
		t.Errorf("Unexpected medications %+v", h.Medications)
	}
	if len(h.PreviousSessions) != 2 || h.PreviousSessions[0].Date != "May 8, 2025" {
		t.Errorf("Unexpected previous sessions %+v", h.PreviousSessions)
	}
	if len(h.Goals) != 4 || h.Goals[3] != "Address negative thought patterns" {
		t.Errorf("Unexpected goals %+v", h.Goals)
	}
	if !h.HasRelatedRecord("anxiety") {
		t.Error("Expected anxiety to be related")
	}
}

func TestSQLStore_NotFound(t *testing.T) {
	ctx := context.Background()
	store := openTestSQLite(t)

	if _, err := store.Session(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if _, err := store.PatientHistory(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestSQLStore_Rebind(t *testing.T) {
	pg := &SQLStore{driver: DriverPostgres}
	if got := pg.rebind("SELECT a FROM t WHERE x = ? AND y = ?"); got != "SELECT a FROM t WHERE x = $1 AND y = $2" {
		t.Errorf("Unexpected rebind %s", got)
	}
	lite := &SQLStore{driver: DriverSQLite}
	if got := lite.rebind("x = ?"); got != "x = ?" {
		t.Errorf("Expected sqlite query unchanged, got %s", got)
	}
}

func TestOpen_SQLiteSeedsDemo(t *testing.T) {
	cfg := &config.Config{
		RecordsBackend: config.RecordsSQLite,
		RecordsDSN:     filepath.Join(t.TempDir(), "sessions.db"),
	}
	store, err := Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	defer store.Close()

	if _, err := store.Session(context.Background(), DemoSession.ID); err != nil {
		t.Errorf("Expected demo session to be seeded, got %v", err)
	}
}

func TestOpen_Unsupported(t *testing.T) {
	if _, err := Open(context.Background(), &config.Config{RecordsBackend: "mongo"}); err == nil {
		t.Error("Expected error for unsupported backend")
	}
}

func TestNewSupabaseStore_RequiresCredentials(t *testing.T) {
	if _, err := NewSupabaseStore("", "", nil); err == nil {
		t.Error("Expected error without URL and key")
	}
}
