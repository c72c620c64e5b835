package scheduling

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicdesk/scheduling-ledger/internal/clinic"
	"github.com/clinicdesk/scheduling-ledger/internal/docstore"
)

var testNow = time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)

// at builds a window on the test day, e.g. at(10, 0, 10, 30).
func at(h1, m1, h2, m2 int) Window {
	day := testNow.Truncate(24 * time.Hour)
	return Window{
		Start: day.Add(time.Duration(h1)*time.Hour + time.Duration(m1)*time.Minute),
		End:   day.Add(time.Duration(h2)*time.Hour + time.Duration(m2)*time.Minute),
	}
}

type fixture struct {
	engine *Engine
	repo   *clinic.Repository
	store  *docstore.Memory

	doctor  *clinic.Doctor
	patient *clinic.Patient
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := docstore.NewMemory()
	repo := clinic.NewRepository(store)
	engine := NewEngine(repo, store, NewMutexLocker())
	engine.now = func() time.Time { return testNow }

	doctor, err := repo.CreateDoctor(context.Background(), clinic.Doctor{
		Name:           "Dr. Gregory House",
		Specialization: "Diagnostics",
		Contact:        "house@clinic.example",
	})
	require.NoError(t, err)

	patient, err := repo.CreatePatient(context.Background(), clinic.Patient{
		Name:    "John Smith",
		Contact: "john@example.com",
	})
	require.NoError(t, err)

	return &fixture{engine: engine, repo: repo, store: store, doctor: doctor, patient: patient}
}

func (f *fixture) newPatient(t *testing.T) *clinic.Patient {
	t.Helper()
	p, err := f.repo.CreatePatient(context.Background(), clinic.Patient{
		Name:    "Jane Roe",
		Contact: "jane@example.com",
	})
	require.NoError(t, err)
	return p
}

func TestBook_Success(t *testing.T) {
	f := newFixture(t)

	appt, err := f.engine.Book(context.Background(), f.doctor.ID, f.patient.ID, at(10, 0, 10, 30), "first visit")
	require.NoError(t, err)

	assert.Equal(t, StatusScheduled, appt.Status)
	assert.Equal(t, f.doctor.ID, appt.DoctorID)
	assert.Equal(t, f.patient.ID, appt.PatientID)
	assert.Equal(t, "first visit", appt.Notes)

	got, err := f.engine.Get(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, appt.ID, got.ID)
}

func TestBook_InvalidWindow(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name   string
		window Window
	}{
		{"start equals end", at(10, 0, 10, 0)},
		{"start after end", at(11, 0, 10, 0)},
		{"starts in the past", at(7, 0, 7, 30)},
		{"straddles now but starts in the past", at(7, 30, 9, 0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.engine.Book(context.Background(), f.doctor.ID, f.patient.ID, tt.window, "")
			assert.ErrorIs(t, err, ErrInvalidWindow)
		})
	}
}

func TestBook_UnknownReferences(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.Book(ctx, uuid.New(), f.patient.ID, at(10, 0, 10, 30), "")
	assert.ErrorIs(t, err, ErrUnknownDoctor)

	_, err = f.engine.Book(ctx, f.doctor.ID, uuid.New(), at(10, 0, 10, 30), "")
	assert.ErrorIs(t, err, ErrUnknownPatient)
}

func TestBook_SoftDeletedReferencesRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.repo.SoftDeletePatient(ctx, f.patient.ID))
	_, err := f.engine.Book(ctx, f.doctor.ID, f.patient.ID, at(10, 0, 10, 30), "")
	assert.ErrorIs(t, err, ErrUnknownPatient)

	require.NoError(t, f.repo.SoftDeleteDoctor(ctx, f.doctor.ID))
	other := f.newPatient(t)
	_, err = f.engine.Book(ctx, f.doctor.ID, other.ID, at(10, 0, 10, 30), "")
	assert.ErrorIs(t, err, ErrUnknownDoctor)
}

func TestBook_OverlapMatrix(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	booked, err := f.engine.Book(ctx, f.doctor.ID, f.patient.ID, at(10, 0, 10, 30), "")
	require.NoError(t, err)

	tests := []struct {
		name     string
		window   Window
		conflict bool
	}{
		{"identical window", at(10, 0, 10, 30), true},
		{"starts inside", at(10, 15, 10, 45), true},
		{"ends inside", at(9, 45, 10, 15), true},
		{"encloses", at(9, 30, 11, 0), true},
		{"enclosed", at(10, 10, 10, 20), true},
		{"adjacent after", at(10, 30, 11, 0), false},
		{"adjacent before", at(9, 30, 10, 0), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.engine.Book(ctx, f.doctor.ID, f.patient.ID, tt.window, "")
			if !tt.conflict {
				assert.NoError(t, err)
				return
			}
			var conflict *ConflictError
			require.ErrorAs(t, err, &conflict)
			assert.Equal(t, booked.ID, conflict.ConflictingID)
		})
	}
}

func TestBook_OtherDoctorUnaffected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	other, err := f.repo.CreateDoctor(ctx, clinic.Doctor{
		Name:    "Dr. James Wilson",
		Contact: "wilson@clinic.example",
	})
	require.NoError(t, err)

	_, err = f.engine.Book(ctx, f.doctor.ID, f.patient.ID, at(10, 0, 10, 30), "")
	require.NoError(t, err)

	// Same window, different doctor: no conflict.
	_, err = f.engine.Book(ctx, other.ID, f.patient.ID, at(10, 0, 10, 30), "")
	assert.NoError(t, err)
}

func TestBook_CancelledWindowIsFree(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	appt, err := f.engine.Book(ctx, f.doctor.ID, f.patient.ID, at(10, 0, 10, 30), "")
	require.NoError(t, err)

	_, err = f.engine.Cancel(ctx, appt.ID)
	require.NoError(t, err)

	_, err = f.engine.Book(ctx, f.doctor.ID, f.patient.ID, at(10, 0, 10, 30), "")
	assert.NoError(t, err)
}

func TestReschedule(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	appt, err := f.engine.Book(ctx, f.doctor.ID, f.patient.ID, at(10, 0, 10, 30), "")
	require.NoError(t, err)

	t.Run("same window does not conflict with itself", func(t *testing.T) {
		moved, err := f.engine.Reschedule(ctx, appt.ID, at(10, 0, 10, 30))
		require.NoError(t, err)
		assert.Equal(t, at(10, 0, 10, 30), moved.Window)
	})

	t.Run("moves to a free window", func(t *testing.T) {
		moved, err := f.engine.Reschedule(ctx, appt.ID, at(11, 0, 11, 30))
		require.NoError(t, err)
		assert.Equal(t, at(11, 0, 11, 30), moved.Window)
	})

	t.Run("conflict leaves the record untouched", func(t *testing.T) {
		blocker, err := f.engine.Book(ctx, f.doctor.ID, f.patient.ID, at(14, 0, 14, 30), "")
		require.NoError(t, err)

		_, err = f.engine.Reschedule(ctx, appt.ID, at(14, 15, 14, 45))
		var conflict *ConflictError
		require.ErrorAs(t, err, &conflict)
		assert.Equal(t, blocker.ID, conflict.ConflictingID)

		got, err := f.engine.Get(ctx, appt.ID)
		require.NoError(t, err)
		assert.Equal(t, at(11, 0, 11, 30), got.Window)
	})

	t.Run("invalid window rejected before any write", func(t *testing.T) {
		_, err := f.engine.Reschedule(ctx, appt.ID, at(12, 0, 11, 0))
		assert.ErrorIs(t, err, ErrInvalidWindow)
	})

	t.Run("terminal appointment cannot move", func(t *testing.T) {
		_, err := f.engine.Cancel(ctx, appt.ID)
		require.NoError(t, err)

		_, err = f.engine.Reschedule(ctx, appt.ID, at(15, 0, 15, 30))
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})

	t.Run("missing appointment", func(t *testing.T) {
		_, err := f.engine.Reschedule(ctx, uuid.New(), at(15, 0, 15, 30))
		assert.ErrorIs(t, err, ErrAppointmentNotFound)
	})
}

func TestTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("cancel then cancel again", func(t *testing.T) {
		appt, err := f.engine.Book(ctx, f.doctor.ID, f.patient.ID, at(10, 0, 10, 30), "")
		require.NoError(t, err)

		cancelled, err := f.engine.Cancel(ctx, appt.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusCancelled, cancelled.Status)

		_, err = f.engine.Cancel(ctx, appt.ID)
		assert.ErrorIs(t, err, ErrInvalidTransition)

		// Status must be unchanged after the failed call.
		got, err := f.engine.Get(ctx, appt.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusCancelled, got.Status)
	})

	t.Run("complete then cancel", func(t *testing.T) {
		appt, err := f.engine.Book(ctx, f.doctor.ID, f.patient.ID, at(11, 0, 11, 30), "")
		require.NoError(t, err)

		completed, err := f.engine.Complete(ctx, appt.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusCompleted, completed.Status)

		_, err = f.engine.Cancel(ctx, appt.ID)
		assert.ErrorIs(t, err, ErrInvalidTransition)

		got, err := f.engine.Get(ctx, appt.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusCompleted, got.Status)
	})

	t.Run("missing appointment", func(t *testing.T) {
		_, err := f.engine.Complete(ctx, uuid.New())
		assert.ErrorIs(t, err, ErrAppointmentNotFound)
	})
}

func TestList(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	other := f.newPatient(t)

	// Booked out of order on purpose.
	late, err := f.engine.Book(ctx, f.doctor.ID, f.patient.ID, at(15, 0, 15, 30), "")
	require.NoError(t, err)
	early, err := f.engine.Book(ctx, f.doctor.ID, other.ID, at(9, 0, 9, 30), "")
	require.NoError(t, err)
	mid, err := f.engine.Book(ctx, f.doctor.ID, f.patient.ID, at(12, 0, 12, 30), "")
	require.NoError(t, err)
	_, err = f.engine.Cancel(ctx, mid.ID)
	require.NoError(t, err)

	t.Run("ordered by window start", func(t *testing.T) {
		appts, err := f.engine.List(ctx, Filter{DoctorID: &f.doctor.ID})
		require.NoError(t, err)
		require.Len(t, appts, 3)
		assert.Equal(t, early.ID, appts[0].ID)
		assert.Equal(t, mid.ID, appts[1].ID)
		assert.Equal(t, late.ID, appts[2].ID)
	})

	t.Run("by status", func(t *testing.T) {
		appts, err := f.engine.List(ctx, Filter{Status: StatusCancelled})
		require.NoError(t, err)
		require.Len(t, appts, 1)
		assert.Equal(t, mid.ID, appts[0].ID)
	})

	t.Run("by patient", func(t *testing.T) {
		appts, err := f.engine.List(ctx, Filter{PatientID: &other.ID})
		require.NoError(t, err)
		require.Len(t, appts, 1)
		assert.Equal(t, early.ID, appts[0].ID)
	})

	t.Run("by date range", func(t *testing.T) {
		appts, err := f.engine.List(ctx, Filter{From: at(11, 0, 13, 0).Start, To: at(11, 0, 13, 0).End})
		require.NoError(t, err)
		require.Len(t, appts, 1)
		assert.Equal(t, mid.ID, appts[0].ID)
	})

	t.Run("paged", func(t *testing.T) {
		appts, err := f.engine.List(ctx, Filter{Limit: 2})
		require.NoError(t, err)
		require.Len(t, appts, 2)

		rest, err := f.engine.List(ctx, Filter{Limit: 2, Offset: 2})
		require.NoError(t, err)
		require.Len(t, rest, 1)
		assert.Equal(t, late.ID, rest[0].ID)
	})
}

// Two concurrent bookings for the same doctor and overlapping windows:
// exactly one succeeds, the other sees the conflict.
func TestConcurrentBookingRace(t *testing.T) {
	for i := 0; i < 20; i++ {
		f := newFixture(t)
		ctx := context.Background()

		var wg sync.WaitGroup
		results := make([]error, 2)
		windows := []Window{at(10, 0, 10, 30), at(10, 15, 10, 45)}

		for j := 0; j < 2; j++ {
			wg.Add(1)
			go func(j int) {
				defer wg.Done()
				_, results[j] = f.engine.Book(ctx, f.doctor.ID, f.patient.ID, windows[j], "")
			}(j)
		}
		wg.Wait()

		var successes, conflicts int
		for _, err := range results {
			var conflict *ConflictError
			switch {
			case err == nil:
				successes++
			case errors.As(err, &conflict):
				conflicts++
			default:
				t.Fatalf("unexpected error: %v", err)
			}
		}
		assert.Equal(t, 1, successes, "exactly one booking must win")
		assert.Equal(t, 1, conflicts, "the loser must see the conflict")
	}
}

// The full walk-through: booking, adjacency, cancellation freeing a
// window, and a re-book still colliding with a later appointment.
func TestBookingScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p1 := f.patient
	p2 := f.newPatient(t)

	first, err := f.engine.Book(ctx, f.doctor.ID, p1.ID, at(10, 0, 10, 30), "")
	require.NoError(t, err)
	assert.Equal(t, StatusScheduled, first.Status)

	_, err = f.engine.Book(ctx, f.doctor.ID, p2.ID, at(10, 15, 10, 45), "")
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, first.ID, conflict.ConflictingID)

	second, err := f.engine.Book(ctx, f.doctor.ID, p2.ID, at(10, 30, 11, 0), "")
	require.NoError(t, err)

	cancelled, err := f.engine.Cancel(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)

	// The originally rejected window still collides, now with the
	// second patient's own booking.
	_, err = f.engine.Book(ctx, f.doctor.ID, p2.ID, at(10, 15, 10, 45), "")
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, second.ID, conflict.ConflictingID)
}
