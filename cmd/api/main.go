package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"

	"ponto.dev/internal/audit"
	"ponto.dev/internal/auth"
	"ponto.dev/internal/config"
	"ponto.dev/internal/httpapi"
	"ponto.dev/internal/obs"
	"ponto.dev/internal/store/pg"
	"ponto.dev/internal/stream"
	"ponto.dev/internal/timeclock"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.New()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	obs.Init()
	obs.InitBuildInfo(version, commit)

	var (
		db       *sql.DB
		clock    timeclock.Service
		users    auth.UserStore
		recorder *audit.Recorder
	)
	if cfg.DatabaseDSN != "" {
		store, err := pg.Open(cfg.DatabaseDSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		db = store.DB()
		clock = store
		users = auth.NewPGStore(db)
		recorder = audit.NewRecorder(audit.NewPGStore(db))
	} else {
		log.Println("PONTO_DATABASE_DSN not set, using in-memory stores")
		clock = timeclock.NewInMemory()
		users = auth.NewInMemoryStore()
		recorder = audit.NewRecorder(nil)
	}

	feed := stream.New()

	api := httpapi.New(httpapi.ReadyProbe{DB: db}, version, clock, users, recorder, feed)
	api.SetTokenTTL(cfg.TokenTTL)
	api.SetRateLimit(cfg.RateBurst, cfg.RatePerSec)
	api.SetMaxBodyBytes(cfg.MaxBodyBytes)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		// no WriteTimeout: /v1/punches/stream holds the connection open
		IdleTimeout: 60 * time.Second,
	}

	log.Printf("Starting ponto-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if db != nil {
		_ = db.Close()
	}
	log.Println("Stopped")
}
