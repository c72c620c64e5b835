package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinicdesk/scheduling-ledger/internal/clinic"
	"github.com/clinicdesk/scheduling-ledger/internal/scheduling"
)

type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RegisterResponse struct {
	UserID uuid.UUID `json:"user_id"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token string `json:"token"`
}

type SlotPayload struct {
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	Booked bool      `json:"booked"`
}

type CreateDoctorRequest struct {
	Name           string        `json:"name"`
	Specialization string        `json:"specialization,omitempty"`
	Email          string        `json:"email,omitempty"`
	Contact        string        `json:"contact"`
	Availability   []SlotPayload `json:"availability,omitempty"`
}

type UpdateDoctorRequest struct {
	Name           *string        `json:"name,omitempty"`
	Specialization *string        `json:"specialization,omitempty"`
	Email          *string        `json:"email,omitempty"`
	Contact        *string        `json:"contact,omitempty"`
	Availability   *[]SlotPayload `json:"availability,omitempty"`
}

type DoctorResponse struct {
	ID             uuid.UUID     `json:"id"`
	Name           string        `json:"name"`
	Specialization string        `json:"specialization,omitempty"`
	Email          string        `json:"email,omitempty"`
	Contact        string        `json:"contact"`
	Availability   []SlotPayload `json:"availability,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

type CreatePatientRequest struct {
	Name           string `json:"name"`
	Contact        string `json:"contact"`
	MedicalHistory string `json:"medical_history,omitempty"`
}

type UpdatePatientRequest struct {
	Name           *string `json:"name,omitempty"`
	Contact        *string `json:"contact,omitempty"`
	MedicalHistory *string `json:"medical_history,omitempty"`
}

type PatientResponse struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	Contact        string    `json:"contact"`
	MedicalHistory string    `json:"medical_history,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type WindowPayload struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

type BookAppointmentRequest struct {
	DoctorID  string        `json:"doctor_id"`
	PatientID string        `json:"patient_id"`
	Window    WindowPayload `json:"window"`
	Notes     string        `json:"notes,omitempty"`
}

type RescheduleAppointmentRequest struct {
	Window WindowPayload `json:"window"`
}

type AppointmentResponse struct {
	ID        uuid.UUID     `json:"id"`
	DoctorID  uuid.UUID     `json:"doctor_id"`
	PatientID uuid.UUID     `json:"patient_id"`
	Window    WindowPayload `json:"window"`
	Status    string        `json:"status"`
	Notes     string        `json:"notes,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// ErrorResponse is the tagged failure shape every endpoint returns; the
// error field is a stable machine code, never a bare boolean.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func doctorResponse(d *clinic.Doctor) DoctorResponse {
	resp := DoctorResponse{
		ID:             d.ID,
		Name:           d.Name,
		Specialization: d.Specialization,
		Email:          d.Email,
		Contact:        d.Contact,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
	for _, s := range d.Availability {
		resp.Availability = append(resp.Availability, SlotPayload{Start: s.Start, End: s.End, Booked: s.Booked})
	}
	return resp
}

func patientResponse(p *clinic.Patient) PatientResponse {
	return PatientResponse{
		ID:             p.ID,
		Name:           p.Name,
		Contact:        p.Contact,
		MedicalHistory: p.MedicalHistory,
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
	}
}

func appointmentResponse(a *scheduling.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:        a.ID,
		DoctorID:  a.DoctorID,
		PatientID: a.PatientID,
		Window:    WindowPayload{Start: a.Window.Start, End: a.Window.End},
		Status:    string(a.Status),
		Notes:     a.Notes,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}
