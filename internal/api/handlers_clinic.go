package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/clinicdesk/scheduling-ledger/internal/clinic"
)

func createDoctorHandler(repo *clinic.Repository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateDoctorRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		doctor := clinic.Doctor{
			Name:           req.Name,
			Specialization: req.Specialization,
			Email:          req.Email,
			Contact:        req.Contact,
			Availability:   slotsFromPayload(req.Availability),
		}

		created, err := repo.CreateDoctor(r.Context(), doctor)
		if err != nil {
			handleError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, doctorResponse(created))
	}
}

func getDoctorHandler(repo *clinic.Repository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r, "doctor id")
		if !ok {
			return
		}

		doctor, err := repo.GetDoctor(r.Context(), id)
		if err != nil {
			handleError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, doctorResponse(doctor))
	}
}

func listDoctorsHandler(repo *clinic.Repository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter := clinic.DoctorFilter{
			Specialization: r.URL.Query().Get("specialization"),
		}

		doctors, err := repo.ListDoctors(r.Context(), filter)
		if err != nil {
			handleError(w, err)
			return
		}

		out := make([]DoctorResponse, 0, len(doctors))
		for i := range doctors {
			out = append(out, doctorResponse(&doctors[i]))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func updateDoctorHandler(repo *clinic.Repository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r, "doctor id")
		if !ok {
			return
		}

		var req UpdateDoctorRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		upd := clinic.DoctorUpdate{
			Name:           req.Name,
			Specialization: req.Specialization,
			Email:          req.Email,
			Contact:        req.Contact,
		}
		if req.Availability != nil {
			slots := slotsFromPayload(*req.Availability)
			upd.Availability = &slots
		}

		doctor, err := repo.UpdateDoctor(r.Context(), id, upd)
		if err != nil {
			handleError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, doctorResponse(doctor))
	}
}

func deleteDoctorHandler(repo *clinic.Repository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r, "doctor id")
		if !ok {
			return
		}

		if err := repo.SoftDeleteDoctor(r.Context(), id); err != nil {
			handleError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func createPatientHandler(repo *clinic.Repository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreatePatientRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		patient := clinic.Patient{
			Name:           req.Name,
			Contact:        req.Contact,
			MedicalHistory: req.MedicalHistory,
		}

		created, err := repo.CreatePatient(r.Context(), patient)
		if err != nil {
			handleError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, patientResponse(created))
	}
}

func getPatientHandler(repo *clinic.Repository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r, "patient id")
		if !ok {
			return
		}

		patient, err := repo.GetPatient(r.Context(), id)
		if err != nil {
			handleError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, patientResponse(patient))
	}
}

func updatePatientHandler(repo *clinic.Repository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r, "patient id")
		if !ok {
			return
		}

		var req UpdatePatientRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		patient, err := repo.UpdatePatient(r.Context(), id, clinic.PatientUpdate{
			Name:           req.Name,
			Contact:        req.Contact,
			MedicalHistory: req.MedicalHistory,
		})
		if err != nil {
			handleError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, patientResponse(patient))
	}
}

func deletePatientHandler(repo *clinic.Repository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r, "patient id")
		if !ok {
			return
		}

		if err := repo.SoftDeletePatient(r.Context(), id); err != nil {
			handleError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func parseIDParam(w http.ResponseWriter, r *http.Request, what string) (uuid.UUID, bool) {
	idStr := chi.URLParam(r, "id")
	id, err := uuid.Parse(idStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", what+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func slotsFromPayload(in []SlotPayload) []clinic.Slot {
	var out []clinic.Slot
	for _, s := range in {
		out = append(out, clinic.Slot{Start: s.Start, End: s.End, Booked: s.Booked})
	}
	return out
}
