package records

import (
	"context"
	"fmt"
	"sync"
)

// DemoSession is the seeded session used when no database is configured
var DemoSession = SessionRecord{
	ID: "1",
	Patient: Patient{
		ID:           "p-1",
		Name:         "John Patient",
		Age:          32,
		Gender:       "Male",
		Issues:       "Anxiety, Depression",
		SessionCount: 8,
	},
	TherapistName: "Dr. Smith",
	Date:          "May 15, 2025",
	Time:          "3:00 PM",
	Duration:      "50 minutes",
	Status:        "active",
}

// DemoHistory is the clinical record of DemoSession's patient
var DemoHistory = PatientHistory{
	PatientID: "p-1",
	Diagnoses: []Diagnosis{
		{Condition: "Generalized Anxiety Disorder", DiagnosedDate: "January 15, 2024", Status: "Active"},
		{Condition: "Major Depressive Disorder", DiagnosedDate: "January 15, 2024", Status: "Active"},
	},
	Medications: []Medication{
		{Name: "Sertraline", Dosage: "50mg daily", StartDate: "February 1, 2024", Status: "Current"},
		{Name: "Lorazepam", Dosage: "0.5mg as needed", StartDate: "February 1, 2024", Status: "Current"},
	},
	PreviousSessions: []SessionNote{
		{
			Date:  "May 8, 2025",
			Notes: "Patient reported improved sleep patterns but continued anxiety in social situations. We practiced mindfulness techniques and discussed cognitive restructuring for negative thoughts.",
		},
		{
			Date:  "May 1, 2025",
			Notes: "Initial assessment. Patient presents with symptoms of anxiety and depression. Reported difficulty sleeping and persistent worry about work and relationships.",
		},
	},
	Goals: []string{
		"Reduce anxiety symptoms",
		"Improve sleep quality",
		"Develop coping strategies for stress",
		"Address negative thought patterns",
	},
}

// StaticStore serves records from memory
type StaticStore struct {
	mu        sync.RWMutex
	sessions  map[string]SessionRecord
	histories map[string]PatientHistory
}

// NewStaticStore creates an empty in-memory store
func NewStaticStore() *StaticStore {
	return &StaticStore{
		sessions:  make(map[string]SessionRecord),
		histories: make(map[string]PatientHistory),
	}
}

// NewDemoStore creates a store seeded with DemoSession and DemoHistory
func NewDemoStore() *StaticStore {
	s := NewStaticStore()
	s.Put(DemoSession, DemoHistory)
	return s
}

// Put adds or replaces a session and its patient's history
func (s *StaticStore) Put(session SessionRecord, history PatientHistory) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = session
	if history.PatientID == "" {
		history.PatientID = session.Patient.ID
	}
	s.histories[history.PatientID] = history
}

func (s *StaticStore) Session(ctx context.Context, id string) (*SessionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return &rec, nil
}

func (s *StaticStore) PatientHistory(ctx context.Context, patientID string) (*PatientHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.histories[patientID]
	if !ok {
		return nil, fmt.Errorf("patient %s: %w", patientID, ErrNotFound)
	}
	return &h, nil
}

func (s *StaticStore) Ping(ctx context.Context) error { return nil }

func (s *StaticStore) Close() error { return nil }
