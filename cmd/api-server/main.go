package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/caffeinepub/booking-engine/internal/api"
	"github.com/caffeinepub/booking-engine/internal/auth"
	"github.com/caffeinepub/booking-engine/internal/booking"
	"github.com/caffeinepub/booking-engine/internal/config"
	"github.com/caffeinepub/booking-engine/internal/db"
	redisclient "github.com/caffeinepub/booking-engine/internal/redis"
)

const version = "0.3.0"

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("api-server starting up")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	log.Printf("running in env=%s http_port=%s store=%s", cfg.Env, cfg.HTTPPort, cfg.Store)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var repo booking.Repository
	var pgPool *pgxpool.Pool
	if cfg.Store == "postgres" {
		pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
		pgPool, err = db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
		cancelPg()
		if err != nil {
			log.Fatalf("postgres connection error: %v", err)
		}
		defer pgPool.Close()

		migCtx, cancelMig := context.WithTimeout(rootCtx, 30*time.Second)
		err = db.Migrate(migCtx, pgPool)
		cancelMig()
		if err != nil {
			log.Fatalf("schema migration error: %v", err)
		}
		repo = booking.NewPgRepository(pgPool)
		log.Println("connected to Postgres")
	} else {
		repo = booking.NewMemoryRepository()
	}

	var locker booking.Locker
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb, err = redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
		if err != nil {
			log.Fatalf("redis connection error: %v", err)
		}
		defer func() {
			if err := rdb.Close(); err != nil {
				log.Printf("error closing redis: %v", err)
			}
		}()
		locker = redisclient.NewScheduleLocker(rdb, cfg.LockTTL)
		log.Println("connected to Redis")
	} else {
		locker = booking.NewKeyLocker()
		log.Println("using in-process schedule locking")
	}

	engine := booking.NewEngine(repo, locker, cfg.GranularityMinutes)
	registry := auth.NewRegistry(cfg.AdminPrincipals)
	gate := auth.NewGate(registry)

	router := api.NewRouter(api.RouterConfig{
		Handler:        api.NewHandler(engine, gate, registry),
		PgPool:         pgPool,
		Redis:          rdb,
		AllowedOrigins: cfg.AllowedOrigins,
		Env:            cfg.Env,
		Version:        version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("listening on %s", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server error: %v", err)
		}
	case <-rootCtx.Done():
	}

	log.Println("shutting down api-server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown error: %v", err)
	}
}
