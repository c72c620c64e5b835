package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicdesk/scheduling-ledger/internal/clinic"
	"github.com/clinicdesk/scheduling-ledger/internal/docstore"
	"github.com/clinicdesk/scheduling-ledger/internal/identity"
	"github.com/clinicdesk/scheduling-ledger/internal/metrics"
	"github.com/clinicdesk/scheduling-ledger/internal/scheduling"
)

type testServer struct {
	srv   *httptest.Server
	token string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	store := docstore.NewMemory()
	repo := clinic.NewRepository(store)
	engine := scheduling.NewEngine(repo, store, scheduling.NewMutexLocker())
	gateway := identity.NewGateway(
		identity.NewStoreProvider(store),
		identity.NewRedisRevoker(rdb),
		"test-secret",
		time.Hour,
	)

	handler := NewRouter(RouterConfig{
		Gateway: gateway,
		Clinic:  repo,
		Engine:  engine,
		Metrics: metrics.New(prometheus.NewRegistry()),
		Env:     "test",
		Version: "test",
	})

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	ts := &testServer{srv: srv}

	status, _ := ts.do(t, http.MethodPost, "/auth/register", map[string]string{
		"email":    "front-desk@clinic.example",
		"password": "a-long-password",
	})
	require.Equal(t, http.StatusCreated, status)

	var login LoginResponse
	status, body := ts.do(t, http.MethodPost, "/auth/login", map[string]string{
		"email":    "front-desk@clinic.example",
		"password": "a-long-password",
	})
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(body, &login))
	ts.token = login.Token

	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, payload any) (int, []byte) {
	t.Helper()

	var body *bytes.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(data)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, ts.srv.URL+path, body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if ts.token != "" {
		req.Header.Set("Authorization", "Bearer "+ts.token)
	}

	resp, err := ts.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, buf.Bytes()
}

func (ts *testServer) createDoctor(t *testing.T) uuid.UUID {
	t.Helper()
	status, body := ts.do(t, http.MethodPost, "/doctors", map[string]any{
		"name":           "Dr. John Doe",
		"specialization": "Cardiologist",
		"contact":        "john@clinic.example",
	})
	require.Equal(t, http.StatusCreated, status, "body: %s", body)

	var resp DoctorResponse
	require.NoError(t, json.Unmarshal(body, &resp))
	return resp.ID
}

func (ts *testServer) createPatient(t *testing.T) uuid.UUID {
	t.Helper()
	status, body := ts.do(t, http.MethodPost, "/patients", map[string]any{
		"name":            "John Smith",
		"contact":         "john@example.com",
		"medical_history": "none",
	})
	require.Equal(t, http.StatusCreated, status, "body: %s", body)

	var resp PatientResponse
	require.NoError(t, json.Unmarshal(body, &resp))
	return resp.ID
}

func window(startOffset, endOffset time.Duration) map[string]string {
	base := time.Now().UTC().Add(24 * time.Hour).Truncate(time.Hour)
	return map[string]string{
		"start": base.Add(startOffset).Format(time.RFC3339),
		"end":   base.Add(endOffset).Format(time.RFC3339),
	}
}

func errorCodeOf(t *testing.T, body []byte) string {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(body, &resp))
	return resp.Error
}

func TestAuthRequiredForMutations(t *testing.T) {
	ts := newTestServer(t)

	anon := &testServer{srv: ts.srv}
	status, body := anon.do(t, http.MethodPost, "/doctors", map[string]any{
		"name": "Dr. X", "contact": "x@clinic.example",
	})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "token_invalid", errorCodeOf(t, body))
}

func TestLogoutEndsSession(t *testing.T) {
	ts := newTestServer(t)

	status, _ := ts.do(t, http.MethodPost, "/auth/logout", nil)
	require.Equal(t, http.StatusNoContent, status)

	status, body := ts.do(t, http.MethodPost, "/patients", map[string]any{
		"name": "P", "contact": "p@example.com",
	})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "token_invalid", errorCodeOf(t, body))
}

func TestRegisterErrors(t *testing.T) {
	ts := newTestServer(t)

	status, body := ts.do(t, http.MethodPost, "/auth/register", map[string]string{
		"email": "weak@clinic.example", "password": "short",
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "weak_password", errorCodeOf(t, body))

	status, body = ts.do(t, http.MethodPost, "/auth/register", map[string]string{
		"email": "front-desk@clinic.example", "password": "another-long-password",
	})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "email_in_use", errorCodeOf(t, body))
}

func TestDoctorValidationOverWire(t *testing.T) {
	ts := newTestServer(t)

	status, body := ts.do(t, http.MethodPost, "/doctors", map[string]any{
		"name": "", "contact": "x@clinic.example",
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "validation_error", errorCodeOf(t, body))
}

func TestBookingFlow(t *testing.T) {
	ts := newTestServer(t)
	doctorID := ts.createDoctor(t)
	patientID := ts.createPatient(t)

	book := func(win map[string]string) (int, []byte) {
		return ts.do(t, http.MethodPost, "/appointments", map[string]any{
			"doctor_id":  doctorID.String(),
			"patient_id": patientID.String(),
			"window":     win,
			"notes":      "checkup",
		})
	}

	status, body := book(window(0, 30*time.Minute))
	require.Equal(t, http.StatusCreated, status, "body: %s", body)
	var appt AppointmentResponse
	require.NoError(t, json.Unmarshal(body, &appt))
	assert.Equal(t, "scheduled", appt.Status)

	t.Run("overlap rejected with slot_conflict", func(t *testing.T) {
		status, body := book(window(15*time.Minute, 45*time.Minute))
		assert.Equal(t, http.StatusConflict, status)
		assert.Equal(t, "slot_conflict", errorCodeOf(t, body))
	})

	t.Run("adjacent window accepted", func(t *testing.T) {
		status, body := book(window(30*time.Minute, time.Hour))
		assert.Equal(t, http.StatusCreated, status, "body: %s", body)
	})

	t.Run("reversed window rejected", func(t *testing.T) {
		status, body := book(window(2*time.Hour, time.Hour))
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, "invalid_window", errorCodeOf(t, body))
	})

	t.Run("unknown doctor", func(t *testing.T) {
		status, body := ts.do(t, http.MethodPost, "/appointments", map[string]any{
			"doctor_id":  uuid.NewString(),
			"patient_id": patientID.String(),
			"window":     window(3*time.Hour, 4*time.Hour),
		})
		assert.Equal(t, http.StatusNotFound, status)
		assert.Equal(t, "unknown_doctor", errorCodeOf(t, body))
	})

	t.Run("reschedule then double cancel", func(t *testing.T) {
		status, body := ts.do(t, http.MethodPost, fmt.Sprintf("/appointments/%s/reschedule", appt.ID), map[string]any{
			"window": window(5*time.Hour, 6*time.Hour),
		})
		require.Equal(t, http.StatusOK, status, "body: %s", body)

		status, _ = ts.do(t, http.MethodPost, fmt.Sprintf("/appointments/%s/cancel", appt.ID), nil)
		require.Equal(t, http.StatusOK, status)

		status, body = ts.do(t, http.MethodPost, fmt.Sprintf("/appointments/%s/cancel", appt.ID), nil)
		assert.Equal(t, http.StatusConflict, status)
		assert.Equal(t, "invalid_transition", errorCodeOf(t, body))
	})

	t.Run("list by doctor ordered by start", func(t *testing.T) {
		status, body := ts.do(t, http.MethodGet, "/appointments?doctor_id="+doctorID.String()+"&status=scheduled", nil)
		require.Equal(t, http.StatusOK, status)

		var out []AppointmentResponse
		require.NoError(t, json.Unmarshal(body, &out))
		require.NotEmpty(t, out)
		for i := 1; i < len(out); i++ {
			assert.False(t, out[i].Window.Start.Before(out[i-1].Window.Start))
		}
	})
}

func TestSoftDeletedDoctorNotBookable(t *testing.T) {
	ts := newTestServer(t)
	doctorID := ts.createDoctor(t)
	patientID := ts.createPatient(t)

	status, _ := ts.do(t, http.MethodDelete, "/doctors/"+doctorID.String(), nil)
	require.Equal(t, http.StatusNoContent, status)

	status, body := ts.do(t, http.MethodPost, "/appointments", map[string]any{
		"doctor_id":  doctorID.String(),
		"patient_id": patientID.String(),
		"window":     window(0, 30*time.Minute),
	})
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "unknown_doctor", errorCodeOf(t, body))
}
