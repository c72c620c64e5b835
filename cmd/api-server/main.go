package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/clinicdesk/scheduling-ledger/internal/api"
	"github.com/clinicdesk/scheduling-ledger/internal/clinic"
	"github.com/clinicdesk/scheduling-ledger/internal/config"
	"github.com/clinicdesk/scheduling-ledger/internal/db"
	"github.com/clinicdesk/scheduling-ledger/internal/docstore"
	"github.com/clinicdesk/scheduling-ledger/internal/identity"
	"github.com/clinicdesk/scheduling-ledger/internal/metrics"
	redisclient "github.com/clinicdesk/scheduling-ledger/internal/redis"
	"github.com/clinicdesk/scheduling-ledger/internal/scheduling"
)

const version = "0.3.0"

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("api-server starting up")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	log.Printf("running in env=%s http_port=%s", cfg.Env, cfg.HTTPPort)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatalf("postgres connection error: %v", err)
	}
	defer pgPool.Close()
	log.Println("connected to Postgres")

	// Connect Redis
	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		log.Fatalf("redis connection error: %v", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Printf("error closing redis: %v", err)
		}
	}()
	log.Println("connected to Redis")

	pg := docstore.NewPostgres(pgPool)
	schemaCtx, cancelSchema := context.WithTimeout(rootCtx, 10*time.Second)
	err = pg.EnsureSchema(schemaCtx)
	cancelSchema()
	if err != nil {
		log.Fatalf("schema bootstrap error: %v", err)
	}
	store := docstore.WithRetry(pg, cfg.RetryAttempts, cfg.RetryBackoff, cfg.RequestTimeout)

	provider := identity.NewStoreProvider(store)
	revoker := identity.NewRedisRevoker(rdb)
	gateway := identity.NewGateway(provider, revoker, cfg.JWTSecret, cfg.SessionTTL)

	repo := clinic.NewRepository(store)
	locker := redisclient.NewRedisDoctorLocker(rdb, cfg.LockTTL)
	engine := scheduling.NewEngine(repo, store, locker)

	m := metrics.New(prometheus.DefaultRegisterer)

	handler := api.NewRouter(api.RouterConfig{
		Gateway: gateway,
		Clinic:  repo,
		Engine:  engine,
		Metrics: m,
		PgPool:  pgPool,
		Redis:   rdb,
		Env:     cfg.Env,
		Version: version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("listening on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server error: %v", err)
		}
	}()

	<-rootCtx.Done()

	log.Println("shutting down api-server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
