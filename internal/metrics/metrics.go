package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medianamer_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "medianamer_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	RenamesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medianamer_renames_total",
			Help: "Total number of rename operations by method and outcome.",
		},
		[]string{"method", "outcome"},
	)

	CreditDeductionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "medianamer_credit_deductions_total",
			Help: "Total number of committed credit deductions.",
		},
	)

	SettlementRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "medianamer_settlement_retries_total",
			Help: "Total number of retried remote settlement attempts.",
		},
	)

	CacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medianamer_cache_lookups_total",
			Help: "Total number of cache lookups by artifact type and result.",
		},
		[]string{"type", "result"},
	)

	RateLimitRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medianamer_rate_limit_rejections_total",
			Help: "Total number of rejected requests by operation.",
		},
		[]string{"operation"},
	)

	FallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medianamer_fallbacks_total",
			Help: "Total number of fallback dispatches by error kind.",
		},
		[]string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		RenamesTotal,
		CreditDeductionsTotal,
		SettlementRetriesTotal,
		CacheLookupsTotal,
		RateLimitRejectionsTotal,
		FallbacksTotal,
	)
}
