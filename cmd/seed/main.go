package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"

	"github.com/clinicdesk/scheduling-ledger/internal/clinic"
	"github.com/clinicdesk/scheduling-ledger/internal/db"
	"github.com/clinicdesk/scheduling-ledger/internal/docstore"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	doctorCount := flag.Int("doctors", 50, "number of doctors to create")
	patientCount := flag.Int("patients", 500, "number of patients to create")
	dryRun := flag.Bool("dry-run", false, "generate against an in-memory store, write nothing")
	flag.Parse()

	var store docstore.Store
	if *dryRun {
		store = docstore.NewMemory()
	} else {
		dsn := os.Getenv("POSTGRES_DSN")
		if dsn == "" {
			log.Fatal("POSTGRES_DSN is required")
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		pool, err := db.ConnectPostgres(ctx, dsn)
		cancel()
		if err != nil {
			log.Fatalf("connect postgres: %v", err)
		}
		defer pool.Close()

		pg := docstore.NewPostgres(pool)
		schemaCtx, cancelSchema := context.WithTimeout(context.Background(), 10*time.Second)
		err = pg.EnsureSchema(schemaCtx)
		cancelSchema()
		if err != nil {
			log.Fatalf("ensure schema: %v", err)
		}
		store = pg
	}

	gofakeit.Seed(time.Now().UnixNano())
	repo := clinic.NewRepository(store)

	if err := seedDoctors(context.Background(), repo, *doctorCount); err != nil {
		log.Fatalf("seed doctors: %v", err)
	}
	if err := seedPatients(context.Background(), repo, *patientCount); err != nil {
		log.Fatalf("seed patients: %v", err)
	}

	log.Println("seed complete")
}

var specializations = []string{
	"Dermatology",
	"Cardiology",
	"General Practice",
	"Orthopedics",
	"Endocrinology",
	"Neurology",
	"Pediatrics",
	"Psychiatry",
	"Ophthalmology",
	"ENT",
}

func seedDoctors(ctx context.Context, repo *clinic.Repository, count int) error {
	log.Printf("seeding %d doctors", count)

	for i := 0; i < count; i++ {
		doctor := clinic.Doctor{
			Name:           "Dr. " + gofakeit.Name(),
			Specialization: specializations[gofakeit.Number(0, len(specializations)-1)],
			Email:          gofakeit.Email(),
			Contact:        gofakeit.Email(),
			Availability:   weekdayMornings(),
		}
		if _, err := repo.CreateDoctor(ctx, doctor); err != nil {
			return fmt.Errorf("doctor %d: %w", i, err)
		}
	}
	return nil
}

func seedPatients(ctx context.Context, repo *clinic.Repository, count int) error {
	log.Printf("seeding %d patients", count)

	for i := 0; i < count; i++ {
		patient := clinic.Patient{
			Name:           gofakeit.Name(),
			Contact:        gofakeit.Email(),
			MedicalHistory: gofakeit.Sentence(12),
		}
		if _, err := repo.CreatePatient(ctx, patient); err != nil {
			return fmt.Errorf("patient %d: %w", i, err)
		}
	}
	return nil
}

// weekdayMornings declares 9:00-12:00 availability for the next five
// weekdays, split into half-hour slots.
func weekdayMornings() []clinic.Slot {
	var slots []clinic.Slot
	day := time.Now().UTC().Truncate(24 * time.Hour)

	for added := 0; added < 5; day = day.Add(24 * time.Hour) {
		if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		added++
		for h := 9; h < 12; h++ {
			for _, m := range []int{0, 30} {
				start := day.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)
				slots = append(slots, clinic.Slot{Start: start, End: start.Add(30 * time.Minute)})
			}
		}
	}
	return slots
}
