package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"taskpulse/internal/api"
	"taskpulse/internal/jobs"
	"taskpulse/internal/recalc"
	"taskpulse/internal/scoring"
	"taskpulse/internal/store"
	"taskpulse/internal/taskops"
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	_ = godotenv.Load()

	var (
		addr        = flag.String("addr", envOr("TASKPULSE_ADDR", ":8080"), "HTTP bind address")
		dbPath      = flag.String("db", envOr("TASKPULSE_DB", "taskpulse.db"), "SQLite DB path")
		sweepSpec   = flag.String("sweep-cron", envOr("TASKPULSE_SWEEP_CRON", "5 0 * * *"), "cron spec for the overdue sweep")
		drainSpec   = flag.String("drain-cron", envOr("TASKPULSE_DRAIN_CRON", "*/5 * * * *"), "cron spec for the recalc queue drain")
		drainBatch  = flag.Int("drain-batch", 50, "max recalc requests per drain run")
		maxBatchOps = flag.Int("max-batch-ops", taskops.DefaultMaxBatchOps, "max row writes per sweep transaction")
	)
	flag.Parse()

	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})

	dsn := fmt.Sprintf("file:%s?cache=shared&mode=rwc&_pragma=journal_mode(WAL)", *dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("open db")
	}
	defer db.Close()
	db.SetMaxOpenConns(1) // SQLite single writer

	if err := store.EnsureSchema(db); err != nil {
		log.Fatal().Err(err).Msg("ensure schema")
	}

	st := store.New(db)
	scores := scoring.NewService(st, st, log.Logger)
	recalcs := recalc.NewManager(st, scores, log.Logger)
	tasks := taskops.NewService(st, st, recalcs, log.Logger, *maxBatchOps)

	ctx, cancel := context.WithCancel(context.Background())
	runner := jobs.NewRunner(tasks, recalcs, jobs.Config{
		SweepSpec:      *sweepSpec,
		DrainSpec:      *drainSpec,
		DrainBatchSize: *drainBatch,
	}, log.Logger)
	if err := runner.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("start job runner")
	}

	srv := &http.Server{Addr: *addr, Handler: api.NewServer(st, tasks, scores, recalcs)}
	go func() {
		log.Info().Str("addr", *addr).Msg("HTTP server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server")
		}
	}()

	// Graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
	log.Info().Msg("shutting down")
	cancel()
	runner.Stop()
	ctxTimeout, cancelTimeout := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelTimeout()
	_ = srv.Shutdown(ctxTimeout)
}
