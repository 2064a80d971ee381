package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/caffeinepub/booking-engine/internal/booking"
	"github.com/caffeinepub/booking-engine/internal/config"
	"github.com/caffeinepub/booking-engine/internal/db"
)

// The status worker sweeps scheduled appointments whose end time has passed
// and marks them completed. It runs against Postgres only; memory-store
// deployments run the sweep inside the api-server process if they need it.
func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("status-worker starting up")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}
	if cfg.PostgresDSN == "" {
		log.Fatal("POSTGRES_DSN is required for the status worker")
	}

	log.Printf("running status worker in env=%s interval=%s", cfg.Env, cfg.WorkerInterval)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatalf("postgres connection error: %v", err)
	}
	defer pgPool.Close()
	log.Println("connected to Postgres")

	repo := booking.NewPgRepository(pgPool)
	// Status sweeps are conditional updates; they need no cross-node lock.
	engine := booking.NewEngine(repo, booking.NewKeyLocker(), cfg.GranularityMinutes)

	// Run once at startup
	runOnce(rootCtx, engine)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			log.Println("shutdown signal received, stopping status worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, engine)
		}
	}
}

func runOnce(ctx context.Context, engine *booking.Engine) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	if err := engine.CompleteFinished(runCtx); err != nil {
		log.Printf("status sweep error: %v", err)
		return
	}
	log.Printf("status sweep complete in %s", time.Since(start))
}
