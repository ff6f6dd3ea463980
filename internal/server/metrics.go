package server

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "modelgate",
		Name:      "http_requests_total",
		Help:      "HTTP requests by endpoint and status code.",
	}, []string{"endpoint", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "modelgate",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by endpoint.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"endpoint"})

	catalogLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "modelgate",
		Name:      "model_catalog_lookups_total",
		Help:      "Model catalog cache lookups by provider and result.",
	}, []string{"provider", "result"})

	streamFragments = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "modelgate",
		Name:      "stream_fragments_total",
		Help:      "Text fragments forwarded to clients by provider.",
	}, []string{"provider"})
)

func recordRequest(endpoint string, status int, elapsed time.Duration) {
	requestsTotal.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
	requestDuration.WithLabelValues(endpoint).Observe(elapsed.Seconds())
}

func recordCatalogLookup(provider string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	catalogLookups.WithLabelValues(provider, result).Inc()
}

func recordStreamFragment(provider string) {
	streamFragments.WithLabelValues(provider).Inc()
}
