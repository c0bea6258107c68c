// Package records provides read access to scheduled sessions and patient
// history, used to label speakers, name exports and flag detected terms that
// appear in the patient's records.
package records

import (
	"context"
	"errors"
	"strings"
)

// ErrNotFound is returned when a session or patient does not exist
var ErrNotFound = errors.New("record not found")

// Patient is the subject of a session
type Patient struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Age          int    `json:"age"`
	Gender       string `json:"gender"`
	Issues       string `json:"issues"`
	SessionCount int    `json:"session_count"`
}

// SessionRecord is one scheduled therapy session
type SessionRecord struct {
	ID            string  `json:"id"`
	Patient       Patient `json:"patient"`
	TherapistName string  `json:"therapist_name"`
	Date          string  `json:"date"`
	Time          string  `json:"time"`
	Duration      string  `json:"duration"`
	Status        string  `json:"status"`
}

// Diagnosis is a recorded condition
type Diagnosis struct {
	Condition     string `json:"condition"`
	DiagnosedDate string `json:"diagnosed_date"`
	Status        string `json:"status"`
}

// Medication is a prescribed medication
type Medication struct {
	Name      string `json:"name"`
	Dosage    string `json:"dosage"`
	StartDate string `json:"start_date"`
	Status    string `json:"status"`
}

// SessionNote is the clinician's note from a previous session
type SessionNote struct {
	Date  string `json:"date"`
	Notes string `json:"notes"`
}

// PatientHistory is the patient's clinical record
type PatientHistory struct {
	PatientID        string        `json:"patient_id"`
	Diagnoses        []Diagnosis   `json:"diagnoses"`
	Medications      []Medication  `json:"medications"`
	PreviousSessions []SessionNote `json:"previous_sessions"`
	Goals            []string      `json:"goals"`
}

// HasRelatedRecord reports whether a diagnosis or a previous session note
// mentions term, case-insensitively
func (h *PatientHistory) HasRelatedRecord(term string) bool {
	if h == nil {
		return false
	}
	t := strings.ToLower(strings.TrimSpace(term))
	if t == "" {
		return false
	}
	for _, d := range h.Diagnoses {
		if strings.Contains(strings.ToLower(d.Condition), t) {
			return true
		}
	}
	for _, s := range h.PreviousSessions {
		if strings.Contains(strings.ToLower(s.Notes), t) {
			return true
		}
	}
	return false
}

// Store reads session and patient records
type Store interface {
	Session(ctx context.Context, id string) (*SessionRecord, error)
	PatientHistory(ctx context.Context, patientID string) (*PatientHistory, error)
	Ping(ctx context.Context) error
	Close() error
}
