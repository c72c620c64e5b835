package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
)

type SimConfig struct {
	APIBaseURL string
	Duration   time.Duration
	Workers    int
	Doctors    int
	Patients   int
}

type DataPool struct {
	Doctors  []uuid.UUID
	Patients []uuid.UUID

	mu           sync.RWMutex
	appointments []uuid.UUID
}

func (dp *DataPool) AddAppointment(id uuid.UUID) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, id)
}

func (dp *DataPool) RandomAppointment() (uuid.UUID, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.appointments) == 0 {
		return uuid.Nil, false
	}
	return dp.appointments[rand.Intn(len(dp.appointments))], true
}

type OperationMetrics struct {
	Total    int64
	Success  int64
	Conflict int64
	Error    int64

	mu        sync.Mutex
	latencies []time.Duration
}

func (om *OperationMetrics) Record(latency time.Duration, success, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case success:
		atomic.AddInt64(&om.Success, 1)
	case conflict:
		atomic.AddInt64(&om.Conflict, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.latencies = append(om.latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Percentile(p float64) time.Duration {
	om.mu.Lock()
	defer om.mu.Unlock()
	if len(om.latencies) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), om.latencies...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := int(float64(len(sorted)-1) * p)
	return sorted[idx]
}

type client struct {
	base  string
	token string
	http  *http.Client
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg := SimConfig{}
	flag.StringVar(&cfg.APIBaseURL, "api", "http://127.0.0.1:8080", "api base URL")
	flag.DurationVar(&cfg.Duration, "duration", 30*time.Second, "how long to run")
	flag.IntVar(&cfg.Workers, "workers", 16, "concurrent workers")
	flag.IntVar(&cfg.Doctors, "doctors", 5, "doctors to create for the run")
	flag.IntVar(&cfg.Patients, "patients", 50, "patients to create for the run")
	flag.Parse()

	gofakeit.Seed(time.Now().UnixNano())

	c := &client{base: cfg.APIBaseURL, http: &http.Client{Timeout: 10 * time.Second}}
	if err := c.login(); err != nil {
		log.Fatalf("login: %v", err)
	}

	pool, err := c.prepare(cfg)
	if err != nil {
		log.Fatalf("prepare data: %v", err)
	}
	log.Printf("prepared %d doctors, %d patients", len(pool.Doctors), len(pool.Patients))

	bookings := &OperationMetrics{}
	cancels := &OperationMetrics{}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.worker(ctx, pool, bookings, cancels)
		}()
	}
	wg.Wait()

	report("bookings", bookings)
	report("cancels", cancels)
}

func report(name string, om *OperationMetrics) {
	fmt.Printf("%s: total=%d success=%d conflict=%d error=%d p50=%s p95=%s p99=%s\n",
		name,
		atomic.LoadInt64(&om.Total),
		atomic.LoadInt64(&om.Success),
		atomic.LoadInt64(&om.Conflict),
		atomic.LoadInt64(&om.Error),
		om.Percentile(0.50),
		om.Percentile(0.95),
		om.Percentile(0.99),
	)
}

func (c *client) worker(ctx context.Context, pool *DataPool, bookings, cancels *OperationMetrics) {
	for ctx.Err() == nil {
		// One cancel per ten bookings keeps freed windows contested.
		if rand.Intn(10) == 0 {
			if id, ok := pool.RandomAppointment(); ok {
				start := time.Now()
				status, _ := c.post(fmt.Sprintf("/appointments/%s/cancel", id), nil)
				cancels.Record(time.Since(start), status == http.StatusOK, status == http.StatusConflict)
				continue
			}
		}

		doctor := pool.Doctors[rand.Intn(len(pool.Doctors))]
		patient := pool.Patients[rand.Intn(len(pool.Patients))]
		window := randomWindow()

		body := map[string]any{
			"doctor_id":  doctor.String(),
			"patient_id": patient.String(),
			"window":     window,
			"notes":      gofakeit.Sentence(5),
		}

		start := time.Now()
		status, resp := c.post("/appointments", body)
		bookings.Record(time.Since(start), status == http.StatusCreated, status == http.StatusConflict)

		if status == http.StatusCreated {
			var appt struct {
				ID uuid.UUID `json:"id"`
			}
			if json.Unmarshal(resp, &appt) == nil {
				pool.AddAppointment(appt.ID)
			}
		}
	}
}

// randomWindow picks a half-hour-aligned window in the next two days so
// workers keep colliding on the same slots.
func randomWindow() map[string]string {
	base := time.Now().UTC().Add(time.Hour).Truncate(30 * time.Minute)
	start := base.Add(time.Duration(rand.Intn(96)) * 30 * time.Minute)
	end := start.Add(30 * time.Minute)
	return map[string]string{
		"start": start.Format(time.RFC3339),
		"end":   end.Format(time.RFC3339),
	}
}

func (c *client) login() error {
	email := fmt.Sprintf("sim-%s@example.com", uuid.NewString()[:8])
	password := uuid.NewString()

	if status, body := c.post("/auth/register", map[string]string{"email": email, "password": password}); status != http.StatusCreated {
		return fmt.Errorf("register failed: status=%d body=%s", status, body)
	}

	status, body := c.post("/auth/login", map[string]string{"email": email, "password": password})
	if status != http.StatusOK {
		return fmt.Errorf("login failed: status=%d body=%s", status, body)
	}

	var resp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("decode login response: %w", err)
	}
	c.token = resp.Token
	return nil
}

func (c *client) prepare(cfg SimConfig) (*DataPool, error) {
	pool := &DataPool{}

	for i := 0; i < cfg.Doctors; i++ {
		status, body := c.post("/doctors", map[string]any{
			"name":           "Dr. " + gofakeit.Name(),
			"specialization": "General Practice",
			"contact":        gofakeit.Email(),
		})
		if status != http.StatusCreated {
			return nil, fmt.Errorf("create doctor: status=%d body=%s", status, body)
		}
		var d struct {
			ID uuid.UUID `json:"id"`
		}
		if err := json.Unmarshal(body, &d); err != nil {
			return nil, err
		}
		pool.Doctors = append(pool.Doctors, d.ID)
	}

	for i := 0; i < cfg.Patients; i++ {
		status, body := c.post("/patients", map[string]any{
			"name":    gofakeit.Name(),
			"contact": gofakeit.Email(),
		})
		if status != http.StatusCreated {
			return nil, fmt.Errorf("create patient: status=%d body=%s", status, body)
		}
		var p struct {
			ID uuid.UUID `json:"id"`
		}
		if err := json.Unmarshal(body, &p); err != nil {
			return nil, err
		}
		pool.Patients = append(pool.Patients, p.ID)
	}

	return pool, nil
}

func (c *client) post(path string, payload any) (int, []byte) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, nil
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequest(http.MethodPost, c.base+path, body)
	if err != nil {
		return 0, nil
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, data
}
