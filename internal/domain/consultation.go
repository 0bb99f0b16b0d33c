package domain

import "time"

type ConsultationStatus string

const (
	StatusPending ConsultationStatus = "pending"
	StatusActive  ConsultationStatus = "active"
	StatusEnded   ConsultationStatus = "ended"
)

// Consultation is the external record that supplies the room id. The
// signaling core reads its ID and nothing else; status updates are the
// surrounding application's job.
type Consultation struct {
	ID        string             `json:"id"`
	DoctorID  string             `json:"doctorId"`
	PatientID string             `json:"patientId"`
	Status    ConsultationStatus `json:"status"`
	CreatedAt time.Time          `json:"createdAt"`
}

// CallEnd is the one fact the session controller exposes outward.
type CallEnd struct {
	At     time.Time
	Reason string
	Err    error
}
