package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/Anwesh-Mahapatra/threat-intel-portal/internal/config"
	"github.com/Anwesh-Mahapatra/threat-intel-portal/internal/database"
	"github.com/Anwesh-Mahapatra/threat-intel-portal/internal/ingest"
	"github.com/Anwesh-Mahapatra/threat-intel-portal/internal/model"
	"github.com/Anwesh-Mahapatra/threat-intel-portal/internal/scheduler"
	"github.com/Anwesh-Mahapatra/threat-intel-portal/internal/server"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to YAML config")
	backfill := flag.Bool("backfill", false, "run a one-shot bulk export backfill and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	store, err := openStore(cfg.DatabaseURL)
	if err != nil {
		slog.Error("open store", "err", err)
		os.Exit(1)
	}
	defer store.Close()

	if err := config.Seed(store, cfg); err != nil {
		slog.Error("seed sources", "err", err)
		os.Exit(1)
	}

	runner := ingest.NewRunner(store, cfg.ThreatFoxDays)

	if *backfill {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer cancel()
		total, err := runner.RunBackfill(ctx, cfg.BackfillChunkSize)
		if err != nil {
			slog.Error("backfill failed", "imported", total, "err", err)
			os.Exit(1)
		}
		slog.Info("backfill done", "imported", total)
		return
	}

	sched := scheduler.New(runner, scheduler.Config{
		Intervals: map[model.SourceKind]time.Duration{
			model.KindRSS:       cfg.PollInterval(model.KindRSS),
			model.KindKEV:       cfg.PollInterval(model.KindKEV),
			model.KindThreatFox: cfg.PollInterval(model.KindThreatFox),
		},
	})
	sched.Start()
	defer sched.Stop()

	srv := server.New(store, runner)
	if err := srv.Start(cfg.ListenAddr); err != nil {
		slog.Error("server stopped", "err", err)
		os.Exit(1)
	}
}

// openStore picks the backend from the URL: postgres:// connection
// strings go to PostgreSQL, anything else is an SQLite path.
func openStore(url string) (database.Store, error) {
	if strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://") {
		return database.NewPostgres(url)
	}
	return database.New(url)
}
