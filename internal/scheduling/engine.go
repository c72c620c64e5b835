package scheduling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/clinicdesk/scheduling-ledger/internal/clinic"
	"github.com/clinicdesk/scheduling-ledger/internal/docstore"
	redisclient "github.com/clinicdesk/scheduling-ledger/internal/redis"
)

var (
	ErrUnknownDoctor       = errors.New("unknown doctor")
	ErrUnknownPatient      = errors.New("unknown patient")
	ErrInvalidWindow       = errors.New("invalid appointment window")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrBookingContended    = errors.New("doctor is being booked, please retry")
)

// ConflictError names the already-scheduled appointment whose window
// overlaps the requested one.
type ConflictError struct {
	ConflictingID uuid.UUID
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("window overlaps scheduled appointment %s", e.ConflictingID)
}

// Directory resolves doctor and patient references. Satisfied by
// clinic.Repository; soft-deleted entities must not resolve.
type Directory interface {
	GetDoctor(ctx context.Context, id uuid.UUID) (*clinic.Doctor, error)
	GetPatient(ctx context.Context, id uuid.UUID) (*clinic.Patient, error)
}

// Engine enforces the booking invariants and is the sole writer of the
// appointments collection. The overlap-check-then-insert sequence is
// serialized per doctor through the locker; different doctors proceed in
// parallel.
type Engine struct {
	directory Directory
	store     docstore.Store
	locker    redisclient.Locker
	now       func() time.Time
}

func NewEngine(directory Directory, store docstore.Store, locker redisclient.Locker) *Engine {
	return &Engine{
		directory: directory,
		store:     store,
		locker:    locker,
		now:       time.Now,
	}
}

// Book reserves a window with a doctor for a patient. Fails with
// ErrUnknownDoctor/ErrUnknownPatient on dangling references,
// ErrInvalidWindow on a malformed or past window, and *ConflictError when
// the window overlaps an existing scheduled appointment of the doctor.
func (e *Engine) Book(ctx context.Context, doctorID, patientID uuid.UUID, window Window, notes string) (*Appointment, error) {
	if _, err := e.directory.GetDoctor(ctx, doctorID); err != nil {
		if errors.Is(err, clinic.ErrDoctorNotFound) {
			return nil, ErrUnknownDoctor
		}
		return nil, fmt.Errorf("resolve doctor: %w", err)
	}
	if _, err := e.directory.GetPatient(ctx, patientID); err != nil {
		if errors.Is(err, clinic.ErrPatientNotFound) {
			return nil, ErrUnknownPatient
		}
		return nil, fmt.Errorf("resolve patient: %w", err)
	}

	if err := e.checkWindow(window); err != nil {
		return nil, err
	}

	var created *Appointment
	err := e.locker.WithDoctorLock(ctx, doctorID, func(lockCtx context.Context) error {
		if err := e.checkOverlap(lockCtx, doctorID, window, uuid.Nil); err != nil {
			return err
		}

		now := e.now().UTC()
		appt := Appointment{
			ID:        uuid.New(),
			DoctorID:  doctorID,
			PatientID: patientID,
			Window:    window,
			Status:    StatusScheduled,
			Notes:     notes,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := e.put(lockCtx, appt, 0); err != nil {
			return fmt.Errorf("insert appointment: %w", err)
		}
		created = &appt
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrBookingContended
		}
		return nil, err
	}

	return created, nil
}

// Reschedule moves a scheduled appointment to a new window, excluding the
// appointment itself from the conflict scan. On any failure the stored
// record is left untouched.
func (e *Engine) Reschedule(ctx context.Context, id uuid.UUID, newWindow Window) (*Appointment, error) {
	appt, version, err := e.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if appt.Status != StatusScheduled {
		return nil, ErrInvalidTransition
	}

	if err := e.checkWindow(newWindow); err != nil {
		return nil, err
	}

	var updated *Appointment
	err = e.locker.WithDoctorLock(ctx, appt.DoctorID, func(lockCtx context.Context) error {
		if err := e.checkOverlap(lockCtx, appt.DoctorID, newWindow, appt.ID); err != nil {
			return err
		}

		appt.Window = newWindow
		appt.UpdatedAt = e.now().UTC()
		if err := e.put(lockCtx, *appt, version); err != nil {
			return fmt.Errorf("update appointment: %w", err)
		}
		updated = appt
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrBookingContended
		}
		return nil, err
	}

	return updated, nil
}

// Cancel applies the terminal scheduled -> cancelled transition.
func (e *Engine) Cancel(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return e.transition(ctx, id, StatusCancelled)
}

// Complete applies the terminal scheduled -> completed transition.
func (e *Engine) Complete(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return e.transition(ctx, id, StatusCompleted)
}

func (e *Engine) transition(ctx context.Context, id uuid.UUID, to Status) (*Appointment, error) {
	// A version conflict means someone else changed the record between
	// our read and write; re-read and re-check the transition rule.
	for attempt := 0; attempt < 3; attempt++ {
		appt, version, err := e.get(ctx, id)
		if err != nil {
			return nil, err
		}
		if appt.Status != StatusScheduled {
			return nil, ErrInvalidTransition
		}

		appt.Status = to
		appt.UpdatedAt = e.now().UTC()
		err = e.put(ctx, *appt, version)
		if err == nil {
			return appt, nil
		}
		if !errors.Is(err, docstore.ErrConflict) {
			return nil, fmt.Errorf("update appointment: %w", err)
		}
	}
	return nil, docstore.ErrConflict
}

// Get returns a single appointment by id.
func (e *Engine) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, _, err := e.get(ctx, id)
	return appt, err
}

// List returns appointments matching the filter, ordered by window start
// ascending.
func (e *Engine) List(ctx context.Context, filter Filter) ([]Appointment, error) {
	docs, err := e.store.Query(ctx, CollectionAppointments, nil)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}

	var out []Appointment
	for _, doc := range docs {
		var a Appointment
		if err := json.Unmarshal(doc.Body, &a); err != nil {
			return nil, fmt.Errorf("decode appointment %s: %w", doc.ID, err)
		}
		if filter.matches(a) {
			out = append(out, a)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Window.Start.Before(out[j].Window.Start)
	})

	limit := filter.Limit
	if limit <= 0 {
		limit = 20 // default
	}
	if limit > 100 {
		limit = 100 // max
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= len(out) {
		return nil, nil
	}
	if offset+limit > len(out) {
		return out[offset:], nil
	}
	return out[offset : offset+limit], nil
}

// Internals

func (e *Engine) checkWindow(window Window) error {
	if !window.Valid() {
		return ErrInvalidWindow
	}
	if window.Start.Before(e.now()) {
		return ErrInvalidWindow
	}
	return nil
}

// checkOverlap scans the doctor's scheduled appointments for a window
// overlap, half-open semantics. exclude skips the appointment being
// rescheduled.
func (e *Engine) checkOverlap(ctx context.Context, doctorID uuid.UUID, window Window, exclude uuid.UUID) error {
	docs, err := e.store.Query(ctx, CollectionAppointments, nil)
	if err != nil {
		return fmt.Errorf("scan appointments: %w", err)
	}

	for _, doc := range docs {
		var a Appointment
		if err := json.Unmarshal(doc.Body, &a); err != nil {
			return fmt.Errorf("decode appointment %s: %w", doc.ID, err)
		}
		if a.DoctorID != doctorID || a.Status != StatusScheduled || a.ID == exclude {
			continue
		}
		if a.Window.Overlaps(window) {
			return &ConflictError{ConflictingID: a.ID}
		}
	}
	return nil
}

func (e *Engine) get(ctx context.Context, id uuid.UUID) (*Appointment, int64, error) {
	doc, err := e.store.Get(ctx, CollectionAppointments, id.String())
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, 0, ErrAppointmentNotFound
		}
		return nil, 0, fmt.Errorf("load appointment: %w", err)
	}

	var a Appointment
	if err := json.Unmarshal(doc.Body, &a); err != nil {
		return nil, 0, fmt.Errorf("decode appointment %s: %w", id, err)
	}
	return &a, doc.Version, nil
}

func (e *Engine) put(ctx context.Context, a Appointment, version int64) error {
	body, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode appointment: %w", err)
	}
	_, err = e.store.Put(ctx, CollectionAppointments, a.ID.String(), body, version)
	return err
}
