package clinic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/clinicdesk/scheduling-ledger/internal/docstore"
)

var (
	ErrDoctorNotFound  = errors.New("doctor not found")
	ErrPatientNotFound = errors.New("patient not found")
)

// ValidationError reports a rejected input field before anything touches
// storage.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Repository is the sole writer of the doctors and patients collections.
type Repository struct {
	store docstore.Store
}

func NewRepository(store docstore.Store) *Repository {
	return &Repository{store: store}
}

func (r *Repository) CreateDoctor(ctx context.Context, d Doctor) (*Doctor, error) {
	if err := validateDoctor(d); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	d.ID = uuid.New()
	d.Deleted = false
	d.CreatedAt = now
	d.UpdatedAt = now

	if err := r.putNew(ctx, CollectionDoctors, d.ID, d); err != nil {
		return nil, fmt.Errorf("create doctor: %w", err)
	}
	return &d, nil
}

func (r *Repository) CreatePatient(ctx context.Context, p Patient) (*Patient, error) {
	if err := validatePatient(p); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	p.ID = uuid.New()
	p.Deleted = false
	p.CreatedAt = now
	p.UpdatedAt = now

	if err := r.putNew(ctx, CollectionPatients, p.ID, p); err != nil {
		return nil, fmt.Errorf("create patient: %w", err)
	}
	return &p, nil
}

// GetDoctor returns a live doctor. Soft-deleted doctors report
// ErrDoctorNotFound, same as missing ones.
func (r *Repository) GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	d, _, err := r.getDoctorAny(ctx, id)
	if err != nil {
		return nil, err
	}
	if d.Deleted {
		return nil, ErrDoctorNotFound
	}
	return d, nil
}

func (r *Repository) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, _, err := r.getPatientAny(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Deleted {
		return nil, ErrPatientNotFound
	}
	return p, nil
}

func (r *Repository) ListDoctors(ctx context.Context, filter DoctorFilter) ([]Doctor, error) {
	docs, err := r.store.Query(ctx, CollectionDoctors, nil)
	if err != nil {
		return nil, fmt.Errorf("list doctors: %w", err)
	}

	var out []Doctor
	for _, doc := range docs {
		var d Doctor
		if err := json.Unmarshal(doc.Body, &d); err != nil {
			return nil, fmt.Errorf("decode doctor %s: %w", doc.ID, err)
		}
		if d.Deleted {
			continue
		}
		if filter.Specialization != "" && !strings.EqualFold(d.Specialization, filter.Specialization) {
			continue
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *Repository) UpdateDoctor(ctx context.Context, id uuid.UUID, upd DoctorUpdate) (*Doctor, error) {
	var updated *Doctor
	err := r.withVersionRetry(func() error {
		d, version, err := r.getDoctorAny(ctx, id)
		if err != nil {
			return err
		}
		if d.Deleted {
			return ErrDoctorNotFound
		}

		if upd.Name != nil {
			d.Name = *upd.Name
		}
		if upd.Specialization != nil {
			d.Specialization = *upd.Specialization
		}
		if upd.Email != nil {
			d.Email = *upd.Email
		}
		if upd.Contact != nil {
			d.Contact = *upd.Contact
		}
		if upd.Availability != nil {
			d.Availability = *upd.Availability
		}
		if err := validateDoctor(*d); err != nil {
			return err
		}

		d.UpdatedAt = time.Now().UTC()
		if err := r.putExisting(ctx, CollectionDoctors, id, *d, version); err != nil {
			return err
		}
		updated = d
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (r *Repository) UpdatePatient(ctx context.Context, id uuid.UUID, upd PatientUpdate) (*Patient, error) {
	var updated *Patient
	err := r.withVersionRetry(func() error {
		p, version, err := r.getPatientAny(ctx, id)
		if err != nil {
			return err
		}
		if p.Deleted {
			return ErrPatientNotFound
		}

		if upd.Name != nil {
			p.Name = *upd.Name
		}
		if upd.Contact != nil {
			p.Contact = *upd.Contact
		}
		if upd.MedicalHistory != nil {
			p.MedicalHistory = *upd.MedicalHistory
		}
		if err := validatePatient(*p); err != nil {
			return err
		}

		p.UpdatedAt = time.Now().UTC()
		if err := r.putExisting(ctx, CollectionPatients, id, *p, version); err != nil {
			return err
		}
		updated = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// SoftDeleteDoctor marks the doctor deleted so appointments that still
// reference it keep resolving for reads. Never removes the document.
func (r *Repository) SoftDeleteDoctor(ctx context.Context, id uuid.UUID) error {
	return r.withVersionRetry(func() error {
		d, version, err := r.getDoctorAny(ctx, id)
		if err != nil {
			return err
		}
		if d.Deleted {
			return ErrDoctorNotFound
		}
		d.Deleted = true
		d.UpdatedAt = time.Now().UTC()
		return r.putExisting(ctx, CollectionDoctors, id, *d, version)
	})
}

func (r *Repository) SoftDeletePatient(ctx context.Context, id uuid.UUID) error {
	return r.withVersionRetry(func() error {
		p, version, err := r.getPatientAny(ctx, id)
		if err != nil {
			return err
		}
		if p.Deleted {
			return ErrPatientNotFound
		}
		p.Deleted = true
		p.UpdatedAt = time.Now().UTC()
		return r.putExisting(ctx, CollectionPatients, id, *p, version)
	})
}

// Internals

const versionRetryAttempts = 3

// withVersionRetry re-runs a read-modify-write on a version conflict, so
// two concurrent partial updates both land instead of one failing.
func (r *Repository) withVersionRetry(fn func() error) error {
	var err error
	for i := 0; i < versionRetryAttempts; i++ {
		err = fn()
		if !errors.Is(err, docstore.ErrConflict) {
			return err
		}
	}
	return err
}

func (r *Repository) getDoctorAny(ctx context.Context, id uuid.UUID) (*Doctor, int64, error) {
	doc, err := r.store.Get(ctx, CollectionDoctors, id.String())
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, 0, ErrDoctorNotFound
		}
		return nil, 0, fmt.Errorf("load doctor: %w", err)
	}

	var d Doctor
	if err := json.Unmarshal(doc.Body, &d); err != nil {
		return nil, 0, fmt.Errorf("decode doctor %s: %w", id, err)
	}
	return &d, doc.Version, nil
}

func (r *Repository) getPatientAny(ctx context.Context, id uuid.UUID) (*Patient, int64, error) {
	doc, err := r.store.Get(ctx, CollectionPatients, id.String())
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, 0, ErrPatientNotFound
		}
		return nil, 0, fmt.Errorf("load patient: %w", err)
	}

	var p Patient
	if err := json.Unmarshal(doc.Body, &p); err != nil {
		return nil, 0, fmt.Errorf("decode patient %s: %w", id, err)
	}
	return &p, doc.Version, nil
}

func (r *Repository) putNew(ctx context.Context, collection string, id uuid.UUID, entity any) error {
	body, err := json.Marshal(entity)
	if err != nil {
		return fmt.Errorf("encode %s: %w", collection, err)
	}
	_, err = r.store.Put(ctx, collection, id.String(), body, 0)
	return err
}

func (r *Repository) putExisting(ctx context.Context, collection string, id uuid.UUID, entity any, version int64) error {
	body, err := json.Marshal(entity)
	if err != nil {
		return fmt.Errorf("encode %s: %w", collection, err)
	}
	_, err = r.store.Put(ctx, collection, id.String(), body, version)
	return err
}

// Validation

func validateDoctor(d Doctor) error {
	if strings.TrimSpace(d.Name) == "" {
		return &ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if !validContact(d.Contact) {
		return &ValidationError{Field: "contact", Reason: "must be an email address or phone number"}
	}
	for _, s := range d.Availability {
		if !s.Start.Before(s.End) {
			return &ValidationError{Field: "availability", Reason: "slot start must precede end"}
		}
	}
	return nil
}

func validatePatient(p Patient) error {
	if strings.TrimSpace(p.Name) == "" {
		return &ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if !validContact(p.Contact) {
		return &ValidationError{Field: "contact", Reason: "must be an email address or phone number"}
	}
	return nil
}

// validContact accepts an email-shaped string or a phone number with at
// least seven digits.
func validContact(contact string) bool {
	contact = strings.TrimSpace(contact)
	if contact == "" {
		return false
	}
	if at := strings.Index(contact, "@"); at > 0 && strings.Contains(contact[at:], ".") {
		return true
	}
	digits := 0
	for _, r := range contact {
		switch {
		case unicode.IsDigit(r):
			digits++
		case r == '+' || r == '-' || r == ' ' || r == '(' || r == ')':
		default:
			return false
		}
	}
	return digits >= 7
}
