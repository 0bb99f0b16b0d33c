// Package consult persists consultation records. The signaling core only
// ever reads the id (it becomes the room id); everything else here exists
// for the surrounding application.
package consult

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/careline/telecall/internal/domain"
)

var ErrNotFound = errors.New("consultation not found")

const schema = `
CREATE TABLE IF NOT EXISTS consultations (
	id         TEXT PRIMARY KEY,
	doctor_id  TEXT NOT NULL,
	patient_id TEXT NOT NULL,
	status     TEXT NOT NULL,
	created_at TEXT NOT NULL
);`

type Store struct {
	db *sql.DB
}

// Open opens (and migrates) the sqlite database at dsn.
// Use ":memory:" for tests.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Create(ctx context.Context, doctorID, patientID string) (*domain.Consultation, error) {
	c := &domain.Consultation{
		ID:        uuid.NewString(),
		DoctorID:  doctorID,
		PatientID: patientID,
		Status:    domain.StatusPending,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO consultations (id, doctor_id, patient_id, status, created_at) VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.DoctorID, c.PatientID, string(c.Status), c.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("insert consultation: %w", err)
	}
	return c, nil
}

func (s *Store) Get(ctx context.Context, id string) (*domain.Consultation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, doctor_id, patient_id, status, created_at FROM consultations WHERE id = ?`, id)

	var c domain.Consultation
	var status, createdAt string
	if err := row.Scan(&c.ID, &c.DoctorID, &c.PatientID, &status, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select consultation: %w", err)
	}
	c.Status = domain.ConsultationStatus(status)
	t, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	c.CreatedAt = t
	return &c, nil
}

func (s *Store) SetStatus(ctx context.Context, id string, status domain.ConsultationStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE consultations SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
