// Package metrics holds the Prometheus collectors shared by the content pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "deepdive"

// Lookup results recorded per tier.
const (
	ResultHit   = "hit"
	ResultMiss  = "miss"
	ResultError = "error"
)

var (
	TierLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "content",
		Name:      "tier_lookups_total",
		Help:      "Content tier lookups by tier and result (hit, miss, error).",
	}, []string{"tier", "result"})

	TierWriteFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "content",
		Name:      "tier_write_failures_total",
		Help:      "Best-effort tier writes that failed.",
	}, []string{"tier"})

	ReadDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "content",
		Name:      "read_duration_seconds",
		Help:      "Time to resolve topic content, labelled by the tier that answered.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"source"})

	ChunkMismatches = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "blobstore",
		Name:      "reassembly_mismatches_total",
		Help:      "Chunked reads whose reassembled length differed from the recorded total.",
	})

	ChunksMissing = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "blobstore",
		Name:      "chunks_missing_total",
		Help:      "Chunk fetches that failed and were replaced by an empty placeholder.",
	})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
