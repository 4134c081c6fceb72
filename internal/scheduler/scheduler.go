// Package scheduler runs the recurring ingestion jobs. It owns all
// scheduling state; the ingest package only exposes job functions.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Anwesh-Mahapatra/threat-intel-portal/internal/ingest"
	"github.com/Anwesh-Mahapatra/threat-intel-portal/internal/model"
)

// Config holds per-kind cadences and the per-job timeout.
type Config struct {
	Intervals  map[model.SourceKind]time.Duration
	JobTimeout time.Duration
}

func (c *Config) defaults() {
	if c.Intervals == nil {
		c.Intervals = map[model.SourceKind]time.Duration{}
	}
	if c.Intervals[model.KindRSS] <= 0 {
		c.Intervals[model.KindRSS] = 15 * time.Minute
	}
	if c.Intervals[model.KindKEV] <= 0 {
		c.Intervals[model.KindKEV] = time.Hour
	}
	if c.Intervals[model.KindThreatFox] <= 0 {
		c.Intervals[model.KindThreatFox] = 15 * time.Minute
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = 10 * time.Minute
	}
}

// Scheduler triggers each job at its configured cadence. Jobs for
// different kinds run concurrently; within a job, sources are
// sequential.
type Scheduler struct {
	runner   *ingest.Runner
	cfg      Config
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// New creates a scheduler over the given runner.
func New(runner *ingest.Runner, cfg Config) *Scheduler {
	cfg.defaults()
	return &Scheduler{
		runner:   runner,
		cfg:      cfg,
		stopChan: make(chan struct{}),
	}
}

// Start begins one polling loop per source kind. Each loop runs its job
// immediately, then on every tick.
func (s *Scheduler) Start() {
	for _, kind := range s.runner.Kinds() {
		interval := s.cfg.Intervals[kind]
		if interval <= 0 {
			continue
		}
		s.wg.Add(1)
		go s.loop(kind, interval)
	}
}

func (s *Scheduler) loop(kind model.SourceKind, interval time.Duration) {
	defer s.wg.Done()
	slog.Info("job scheduled", "kind", kind, "interval", interval)
	for {
		s.runOnce(kind)
		select {
		case <-s.stopChan:
			return
		case <-time.After(interval):
		}
	}
}

func (s *Scheduler) runOnce(kind model.SourceKind) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.JobTimeout)
	defer cancel()
	if err := s.runner.RunKind(ctx, kind); err != nil {
		slog.Error("scheduled job failed", "kind", kind, "err", err)
	}
}

// Stop stops all polling loops gracefully.
func (s *Scheduler) Stop() {
	close(s.stopChan)
	s.wg.Wait()
}
