package records

import (
	"context"
	"fmt"
	"sort"
	"strings"

	supabase "github.com/supabase-community/supabase-go"

	"github.com/lexiqai/session-gateway/internal/resilience"
)

// SupabaseStore reads records through the Supabase REST API
type SupabaseStore struct {
	client *supabase.Client
	retry  *resilience.RetryConfig
}

// NewSupabaseStore creates a store for the project at url using an API key
func NewSupabaseStore(url, key string, retry *resilience.RetryConfig) (*SupabaseStore, error) {
	if url == "" || key == "" {
		return nil, fmt.Errorf("supabase URL and key are required")
	}
	client, err := supabase.NewClient(url, key, nil)
	if err != nil {
		return nil, fmt.Errorf("initialize supabase SDK: %w", err)
	}
	if retry == nil {
		retry = resilience.DefaultRetryConfig()
	}
	return &SupabaseStore{client: client, retry: retry}, nil
}

type sessionRow struct {
	ID            string `json:"id"`
	PatientID     string `json:"patient_id"`
	TherapistName string `json:"therapist_name"`
	Date          string `json:"date"`
	Time          string `json:"time"`
	Duration      string `json:"duration"`
	Status        string `json:"status"`
}

type positioned interface{ pos() int }

type diagnosisRow struct {
	Position int `json:"position"`
	Diagnosis
}

type medicationRow struct {
	Position int `json:"position"`
	Medication
}

type noteRow struct {
	Position int `json:"position"`
	SessionNote
}

type goalRow struct {
	Position int    `json:"position"`
	Goal     string `json:"goal"`
}

func (r diagnosisRow) pos() int  { return r.Position }
func (r medicationRow) pos() int { return r.Position }
func (r noteRow) pos() int       { return r.Position }
func (r goalRow) pos() int       { return r.Position }

func byPosition[T positioned](rows []T) []T {
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].pos() < rows[j].pos() })
	return rows
}

// single fetches exactly one row of table where column equals value
func (s *SupabaseStore) single(ctx context.Context, table, column, value string, out any) error {
	return resilience.RetryContext(ctx, func() error {
		_, err := s.client.From(table).Select("*", "", false).Eq(column, value).Single().ExecuteTo(out)
		return err
	}, s.retry, resilience.IsRetryableNetworkError)
}

// list fetches every row of table where column equals value
func (s *SupabaseStore) list(ctx context.Context, table, column, value string, out any) error {
	return resilience.RetryContext(ctx, func() error {
		_, err := s.client.From(table).Select("*", "", false).Eq(column, value).ExecuteTo(out)
		return err
	}, s.retry, resilience.IsRetryableNetworkError)
}

// notFound recognises PostgREST's error for a single-row query with no result
func notFound(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "pgrst116") || strings.Contains(msg, "0 rows")
}

func (s *SupabaseStore) Session(ctx context.Context, id string) (*SessionRecord, error) {
	var row sessionRow
	if err := s.single(ctx, "sessions", "id", id, &row); err != nil {
		if notFound(err) {
			return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("query session: %w", err)
	}

	var patient Patient
	if err := s.single(ctx, "patients", "id", row.PatientID, &patient); err != nil {
		if notFound(err) {
			return nil, fmt.Errorf("patient %s: %w", row.PatientID, ErrNotFound)
		}
		return nil, fmt.Errorf("query patient: %w", err)
	}

	return &SessionRecord{
		ID:            row.ID,
		Patient:       patient,
		TherapistName: row.TherapistName,
		Date:          row.Date,
		Time:          row.Time,
		Duration:      row.Duration,
		Status:        row.Status,
	}, nil
}

func (s *SupabaseStore) PatientHistory(ctx context.Context, patientID string) (*PatientHistory, error) {
	var patient Patient
	if err := s.single(ctx, "patients", "id", patientID, &patient); err != nil {
		if notFound(err) {
			return nil, fmt.Errorf("patient %s: %w", patientID, ErrNotFound)
		}
		return nil, fmt.Errorf("query patient: %w", err)
	}

	var (
		diagnoses   []diagnosisRow
		medications []medicationRow
		notes       []noteRow
		goals       []goalRow
	)
	if err := s.list(ctx, "diagnoses", "patient_id", patientID, &diagnoses); err != nil {
		return nil, fmt.Errorf("query diagnoses: %w", err)
	}
	if err := s.list(ctx, "medications", "patient_id", patientID, &medications); err != nil {
		return nil, fmt.Errorf("query medications: %w", err)
	}
	if err := s.list(ctx, "session_notes", "patient_id", patientID, &notes); err != nil {
		return nil, fmt.Errorf("query session notes: %w", err)
	}
	if err := s.list(ctx, "goals", "patient_id", patientID, &goals); err != nil {
		return nil, fmt.Errorf("query goals: %w", err)
	}

	h := &PatientHistory{PatientID: patientID}
	for _, r := range byPosition(diagnoses) {
		h.Diagnoses = append(h.Diagnoses, r.Diagnosis)
	}
	for _, r := range byPosition(medications) {
		h.Medications = append(h.Medications, r.Medication)
	}
	for _, r := range byPosition(notes) {
		h.PreviousSessions = append(h.PreviousSessions, r.SessionNote)
	}
	for _, r := range byPosition(goals) {
		h.Goals = append(h.Goals, r.Goal)
	}
	return h, nil
}

// Ping issues a lightweight query against the patients table
func (s *SupabaseStore) Ping(ctx context.Context) error {
	var rows []Patient
	_, err := s.client.From("patients").Select("id", "", false).Limit(1, "").ExecuteTo(&rows)
	if err != nil {
		return fmt.Errorf("ping supabase: %w", err)
	}
	return nil
}

func (s *SupabaseStore) Close() error { return nil }

// Client exposes the SDK client so auth can share it
func (s *SupabaseStore) Client() *supabase.Client {
	return s.client
}
