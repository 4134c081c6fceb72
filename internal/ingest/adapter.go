// Package ingest implements the multi-source ingestion pipeline:
// per-source fetch adapters, content-addressed deduplication with
// transactional persistence, and the chunked bulk-export importer.
package ingest

import (
	"context"
	"net/http"
	"time"

	"github.com/Anwesh-Mahapatra/threat-intel-portal/internal/model"
)

// FetchResult is the normalized output of one adapter fetch.
type FetchResult struct {
	Candidates []model.Candidate
	// NewETag is the fresh cache-validation token for sources with
	// incremental cursors, or empty when unchanged. Persisting it back
	// onto the Source is the orchestrator's job, not the adapter's.
	NewETag string
}

// Adapter turns one source configuration into normalized candidates.
// Implementations must tolerate malformed payloads (degrade fields,
// never panic); transport errors are returned and isolated per source
// by the job runner.
type Adapter interface {
	Kind() model.SourceKind
	Fetch(ctx context.Context, src model.Source) (*FetchResult, error)
}

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

const userAgent = "threat-intel-portal/0.1"
