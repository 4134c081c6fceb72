package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Anwesh-Mahapatra/threat-intel-portal/internal/database"
	"github.com/Anwesh-Mahapatra/threat-intel-portal/internal/metrics"
	"github.com/Anwesh-Mahapatra/threat-intel-portal/internal/model"
)

// Runner drives adapters through the persistence engine, one job per
// source kind. It holds no scheduling state: the scheduler and the
// manual-refresh endpoint both call into it.
type Runner struct {
	store    database.Store
	upserter *Upserter
	adapters map[model.SourceKind]Adapter
	kinds    []model.SourceKind // registration order
}

// NewRunner creates a job runner with the standard adapter set.
func NewRunner(store database.Store, threatFoxDays int) *Runner {
	r := &Runner{
		store:    store,
		upserter: NewUpserter(store),
		adapters: make(map[model.SourceKind]Adapter),
	}
	r.Register(NewRSSAdapter())
	r.Register(NewKEVAdapter())
	r.Register(NewThreatFoxAdapter(threatFoxDays))
	return r
}

// Register adds an adapter for its source kind.
func (r *Runner) Register(a Adapter) {
	if _, exists := r.adapters[a.Kind()]; !exists {
		r.kinds = append(r.kinds, a.Kind())
	}
	r.adapters[a.Kind()] = a
}

// Kinds returns the registered source kinds in registration order.
func (r *Runner) Kinds() []model.SourceKind {
	return append([]model.SourceKind(nil), r.kinds...)
}

// RunKind processes every enabled source of one kind sequentially. A
// failure on one source is logged and never prevents processing of the
// remaining sources.
func (r *Runner) RunKind(ctx context.Context, kind model.SourceKind) error {
	adapter, ok := r.adapters[kind]
	if !ok {
		return fmt.Errorf("no adapter registered for kind %q", kind)
	}
	sources, err := r.store.GetEnabledSources(kind)
	if err != nil {
		return fmt.Errorf("list sources for kind %q: %w", kind, err)
	}

	for _, src := range sources {
		result, err := adapter.Fetch(ctx, src)
		if err != nil {
			metrics.FetchErrors.WithLabelValues(string(kind)).Inc()
			slog.Error("fetch failed", "source", src.Name, "kind", kind, "err", err)
			continue
		}

		inserted := r.upserter.UpsertCandidates(result.Candidates, src.ID, kind)
		slog.Info("source ingested", "source", src.Name, "kind", kind,
			"candidates", len(result.Candidates), "inserted", inserted)

		// The adapter only learns the cursor; persisting it is ours.
		if result.NewETag != "" && result.NewETag != src.LastETag {
			if err := r.store.UpdateSourceCursor(src.ID, result.NewETag, src.LastModified); err != nil {
				slog.Error("cursor update failed", "source", src.Name, "err", err)
			}
		}
	}
	return nil
}

// RunAll runs every registered job once, in registration order. Used by
// the manual refresh trigger.
func (r *Runner) RunAll(ctx context.Context) {
	for _, kind := range r.kinds {
		if err := r.RunKind(ctx, kind); err != nil {
			slog.Error("job failed", "kind", kind, "err", err)
		}
	}
}

// RunBackfill imports a full IOC export for the configured export
// source (falling back to the incremental ThreatFox source, which
// shares the provider). Returns the number of indicators processed.
func (r *Runner) RunBackfill(ctx context.Context, chunkSize int) (int, error) {
	src, err := r.backfillSource()
	if err != nil {
		return 0, err
	}

	it, err := OpenExport(ctx, src.Endpoint)
	if err != nil {
		return 0, fmt.Errorf("open export: %w", err)
	}
	defer it.Close()

	return Backfill(r.store, *src, it, chunkSize)
}

func (r *Runner) backfillSource() (*model.Source, error) {
	for _, kind := range []model.SourceKind{model.KindThreatFoxExport, model.KindThreatFox} {
		sources, err := r.store.GetEnabledSources(kind)
		if err != nil {
			return nil, err
		}
		if len(sources) > 0 {
			src := sources[0]
			if kind == model.KindThreatFox {
				// The API endpoint is not the export endpoint; use the default.
				src.Endpoint = ""
			}
			return &src, nil
		}
	}
	return nil, errors.New("no ThreatFox source found for backfill")
}
