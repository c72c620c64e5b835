package clinic

import (
	"time"

	"github.com/google/uuid"
)

const (
	CollectionDoctors  = "doctors"
	CollectionPatients = "patients"
)

// Slot is a doctor's declared unit of availability, distinct from a
// booked appointment.
type Slot struct {
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	Booked bool      `json:"booked"`
}

type Doctor struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	Specialization string    `json:"specialization,omitempty"`
	Email          string    `json:"email,omitempty"`
	Contact        string    `json:"contact"`
	Availability   []Slot    `json:"availability,omitempty"`
	Deleted        bool      `json:"deleted,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type Patient struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	Contact        string    `json:"contact"`
	MedicalHistory string    `json:"medical_history,omitempty"`
	Deleted        bool      `json:"deleted,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// DoctorUpdate carries partial fields; nil means "leave unchanged".
type DoctorUpdate struct {
	Name           *string
	Specialization *string
	Email          *string
	Contact        *string
	Availability   *[]Slot
}

// PatientUpdate carries partial fields; nil means "leave unchanged".
type PatientUpdate struct {
	Name           *string
	Contact        *string
	MedicalHistory *string
}

// DoctorFilter narrows ListDoctors. Zero value matches every live doctor.
type DoctorFilter struct {
	Specialization string
}
