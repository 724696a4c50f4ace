// Package metrics exposes the service's prometheus instruments.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal counts HTTP requests by route and status class.
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "evidence_http_requests_total",
		Help: "Total HTTP requests by route and status",
	}, []string{"route", "status"})

	// DeterminismViolationsTotal counts replays whose output hash diverged
	// from the baseline. Any increment is a computation defect.
	DeterminismViolationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "evidence_determinism_violations_total",
		Help: "Total replay determinism violations",
	})

	// ChainAppendsTotal counts attestation chain appends by tenant.
	ChainAppendsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "evidence_chain_appends_total",
		Help: "Total attestation appends by tenant",
	}, []string{"tenant"})

	// IngestDedupTotal counts content-addressed ingestions that resolved to an
	// existing record instead of inserting.
	IngestDedupTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "evidence_ingest_dedup_total",
		Help: "Total deduplicated ingestions by entity type",
	}, []string{"entity"})
)
