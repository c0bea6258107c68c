package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Driver names registered by the imported database/sql drivers
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS patients (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		age INTEGER NOT NULL DEFAULT 0,
		gender TEXT NOT NULL DEFAULT '',
		issues TEXT NOT NULL DEFAULT '',
		session_count INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		patient_id TEXT NOT NULL REFERENCES patients(id),
		therapist_name TEXT NOT NULL DEFAULT '',
		date TEXT NOT NULL DEFAULT '',
		time TEXT NOT NULL DEFAULT '',
		duration TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS diagnoses (
		patient_id TEXT NOT NULL REFERENCES patients(id),
		position INTEGER NOT NULL,
		condition TEXT NOT NULL,
		diagnosed_date TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS medications (
		patient_id TEXT NOT NULL REFERENCES patients(id),
		position INTEGER NOT NULL,
		name TEXT NOT NULL,
		dosage TEXT NOT NULL DEFAULT '',
		start_date TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS session_notes (
		patient_id TEXT NOT NULL REFERENCES patients(id),
		position INTEGER NOT NULL,
		date TEXT NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS goals (
		patient_id TEXT NOT NULL REFERENCES patients(id),
		position INTEGER NOT NULL,
		goal TEXT NOT NULL
	)`,
}

// SQLStore reads records through database/sql from SQLite or Postgres
type SQLStore struct {
	db     *sql.DB
	driver string
}

// OpenSQL opens dsn with driver and verifies connectivity
func OpenSQL(ctx context.Context, driver, dsn string) (*SQLStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("records DSN is required")
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		// a single writer avoids SQLITE_BUSY on concurrent seeds
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetConnMaxIdleTime(5 * time.Minute)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	return &SQLStore{db: db, driver: driver}, nil
}

// Migrate creates the record tables if they do not exist
func (s *SQLStore) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// rebind rewrites ? placeholders to $n for Postgres
func (s *SQLStore) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

type seedStmt struct {
	query string
	args  []any
}

// Seed replaces a session, its patient and the patient's history
func (s *SQLStore) Seed(ctx context.Context, session SessionRecord, history PatientHistory) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin seed: %w", err)
	}
	defer tx.Rollback()

	p := session.Patient
	stmts := []seedStmt{
		{`DELETE FROM sessions WHERE id = ?`, []any{session.ID}},
		{`DELETE FROM diagnoses WHERE patient_id = ?`, []any{p.ID}},
		{`DELETE FROM medications WHERE patient_id = ?`, []any{p.ID}},
		{`DELETE FROM session_notes WHERE patient_id = ?`, []any{p.ID}},
		{`DELETE FROM goals WHERE patient_id = ?`, []any{p.ID}},
		{`DELETE FROM patients WHERE id = ?`, []any{p.ID}},
		{`INSERT INTO patients (id, name, age, gender, issues, session_count) VALUES (?, ?, ?, ?, ?, ?)`,
			[]any{p.ID, p.Name, p.Age, p.Gender, p.Issues, p.SessionCount}},
		{`INSERT INTO sessions (id, patient_id, therapist_name, date, time, duration, status) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			[]any{session.ID, p.ID, session.TherapistName, session.Date, session.Time, session.Duration, session.Status}},
	}
	for i, d := range history.Diagnoses {
		stmts = append(stmts, seedStmt{`INSERT INTO diagnoses (patient_id, position, condition, diagnosed_date, status) VALUES (?, ?, ?, ?, ?)`,
			[]any{p.ID, i, d.Condition, d.DiagnosedDate, d.Status}})
	}
	for i, m := range history.Medications {
		stmts = append(stmts, seedStmt{`INSERT INTO medications (patient_id, position, name, dosage, start_date, status) VALUES (?, ?, ?, ?, ?, ?)`,
			[]any{p.ID, i, m.Name, m.Dosage, m.StartDate, m.Status}})
	}
	for i, n := range history.PreviousSessions {
		stmts = append(stmts, seedStmt{`INSERT INTO session_notes (patient_id, position, date, notes) VALUES (?, ?, ?, ?)`,
			[]any{p.ID, i, n.Date, n.Notes}})
	}
	for i, g := range history.Goals {
		stmts = append(stmts, seedStmt{`INSERT INTO goals (patient_id, position, goal) VALUES (?, ?, ?)`,
			[]any{p.ID, i, g}})
	}

	for _, st := range stmts {
		if _, err := tx.ExecContext(ctx, s.rebind(st.query), st.args...); err != nil {
			return fmt.Errorf("seed: %w", err)
		}
	}
	return tx.Commit()
}

func (s *SQLStore) Session(ctx context.Context, id string) (*SessionRecord, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT s.id, s.therapist_name, s.date, s.time, s.duration, s.status,
		       p.id, p.name, p.age, p.gender, p.issues, p.session_count
		FROM sessions s
		JOIN patients p ON p.id = s.patient_id
		WHERE s.id = ?
	`), id)

	var rec SessionRecord
	p := &rec.Patient
	err := row.Scan(&rec.ID, &rec.TherapistName, &rec.Date, &rec.Time, &rec.Duration, &rec.Status,
		&p.ID, &p.Name, &p.Age, &p.Gender, &p.Issues, &p.SessionCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query session: %w", err)
	}
	return &rec, nil
}

func (s *SQLStore) PatientHistory(ctx context.Context, patientID string) (*PatientHistory, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT COUNT(*) FROM patients WHERE id = ?`), patientID).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("query patient: %w", err)
	}
	if exists == 0 {
		return nil, fmt.Errorf("patient %s: %w", patientID, ErrNotFound)
	}

	h := &PatientHistory{PatientID: patientID}

	if err := s.queryRows(ctx, `SELECT condition, diagnosed_date, status FROM diagnoses WHERE patient_id = ? ORDER BY position`,
		patientID, func(rows *sql.Rows) error {
			var d Diagnosis
			if err := rows.Scan(&d.Condition, &d.DiagnosedDate, &d.Status); err != nil {
				return err
			}
			h.Diagnoses = append(h.Diagnoses, d)
			return nil
		}); err != nil {
		return nil, fmt.Errorf("query diagnoses: %w", err)
	}

	if err := s.queryRows(ctx, `SELECT name, dosage, start_date, status FROM medications WHERE patient_id = ? ORDER BY position`,
		patientID, func(rows *sql.Rows) error {
			var m Medication
			if err := rows.Scan(&m.Name, &m.Dosage, &m.StartDate, &m.Status); err != nil {
				return err
			}
			h.Medications = append(h.Medications, m)
			return nil
		}); err != nil {
		return nil, fmt.Errorf("query medications: %w", err)
	}

	if err := s.queryRows(ctx, `SELECT date, notes FROM session_notes WHERE patient_id = ? ORDER BY position`,
		patientID, func(rows *sql.Rows) error {
			var n SessionNote
			if err := rows.Scan(&n.Date, &n.Notes); err != nil {
				return err
			}
			h.PreviousSessions = append(h.PreviousSessions, n)
			return nil
		}); err != nil {
		return nil, fmt.Errorf("query session notes: %w", err)
	}

	if err := s.queryRows(ctx, `SELECT goal FROM goals WHERE patient_id = ? ORDER BY position`,
		patientID, func(rows *sql.Rows) error {
			var g string
			if err := rows.Scan(&g); err != nil {
				return err
			}
			h.Goals = append(h.Goals, g)
			return nil
		}); err != nil {
		return nil, fmt.Errorf("query goals: %w", err)
	}

	return h, nil
}

func (s *SQLStore) queryRows(ctx context.Context, query, patientID string, scan func(*sql.Rows) error) error {
	rows, err := s.db.QueryContext(ctx, s.rebind(query), patientID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		if err := scan(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Ping verifies the database is reachable
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database handle
func (s *SQLStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
