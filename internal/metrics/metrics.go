// Package metrics exposes Prometheus counters for the ingestion pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ItemsInserted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tip_items_inserted_total",
			Help: "Items persisted, by source kind",
		},
		[]string{"source_kind"},
	)

	ItemsDuplicate = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tip_items_duplicate_total",
			Help: "Candidates skipped as duplicates, by source kind",
		},
		[]string{"source_kind"},
	)

	FetchErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tip_fetch_errors_total",
			Help: "Source fetch failures, by source kind",
		},
		[]string{"source_kind"},
	)

	IOCsStored = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tip_iocs_stored_total",
			Help: "IOC rows persisted",
		},
	)
)
