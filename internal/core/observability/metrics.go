package observability

import (
	"errors"
	"strconv"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

var enabled atomic.Bool

func init() {
	enabled.Store(true)
	register(prometheus.DefaultRegisterer)
}

// Init registers the service collectors on reg as well as the default
// registry. Registering the same registry twice is a no-op. With on=false
// every Observe/Inc helper becomes a no-op.
func Init(reg prometheus.Registerer, on bool) {
	enabled.Store(on)
	if reg != nil {
		register(reg)
	}
}

func register(reg prometheus.Registerer) {
	for _, c := range all() {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				panic(err)
			}
		}
	}
}

func all() []prometheus.Collector {
	return []prometheus.Collector{
		httpRequestsTotal,
		httpRequestDurationSeconds,
		nearestSearchTotal,
		nearestSearchDurationSeconds,
		nearestRingCells,
		nearestCandidates,
		storeLookupDurationSeconds,
		cacheOpTotal,
		redisOpDurationSeconds,
		cacheResults,
		facilityEventsTotal,
		hotCells,
		eventLagSeconds,
	}
}

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
		},
		[]string{"method", "route", "status"},
	)

	nearestSearchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nearest_search_total",
			Help: "Nearest facility searches by outcome.",
		},
		[]string{"outcome"},
	)

	nearestSearchDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "nearest_search_duration_seconds",
			Help:    "End-to-end nearest facility search time.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		},
	)

	nearestRingCells = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "nearest_ring_cells",
			Help:    "Cells in the ring expanded per search.",
			Buckets: prometheus.ExponentialBuckets(1, 4, 10),
		},
	)

	nearestCandidates = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "nearest_candidates",
			Help:    "Facilities returned by the store per search.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
	)

	storeLookupDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "store_lookup_duration_seconds",
			Help:    "Latency of facility store lookups by store and result.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		},
		[]string{"store", "result"},
	)

	cacheOpTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_op_total",
			Help: "Redis operations by op and result.",
		},
		[]string{"op", "result"},
	)

	redisOpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "redis_operation_duration_seconds",
			Help:    "Latency of redis operations.",
			Buckets: prometheus.ExponentialBuckets(0.0002, 2, 14),
		},
		[]string{"op"},
	)

	cacheResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_results_total",
			Help: "Per-cell cache lookups by outcome.",
		},
		[]string{"outcome"},
	)

	facilityEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "facility_events_total",
			Help: "Facility change events by direction, op and result.",
		},
		[]string{"direction", "op", "result"},
	)

	hotCells = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hot_cells",
			Help: "Cells currently tracked by the hotness model.",
		},
		[]string{"tier"},
	)

	eventLagSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "facility_event_lag_seconds",
			Help: "Approximate lag: now - message.timestamp.",
		},
	)
)

func ObserveHTTP(method, route string, status int, durationSeconds float64) {
	if !enabled.Load() {
		return
	}
	st := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, route, st).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route, st).Observe(durationSeconds)
}

// ObserveNearest records one search. outcome is found, none or error.
func ObserveNearest(outcome string, durationSeconds float64, ringCells, candidates int) {
	if !enabled.Load() {
		return
	}
	nearestSearchTotal.WithLabelValues(outcome).Inc()
	nearestSearchDurationSeconds.Observe(durationSeconds)
	if outcome != "error" {
		nearestRingCells.Observe(float64(ringCells))
		nearestCandidates.Observe(float64(candidates))
	}
}

func ObserveStoreLookup(store string, err error, durationSeconds float64) {
	if !enabled.Load() {
		return
	}
	storeLookupDurationSeconds.WithLabelValues(store, result(err)).Observe(durationSeconds)
}

func ObserveCacheOp(op string, err error, durationSeconds float64) {
	if !enabled.Load() {
		return
	}
	cacheOpTotal.WithLabelValues(op, result(err)).Inc()
	redisOpDurationSeconds.WithLabelValues(op).Observe(durationSeconds)
}

func AddCacheHits(n int) {
	if !enabled.Load() || n <= 0 {
		return
	}
	cacheResults.WithLabelValues("hit").Add(float64(n))
}

func AddCacheMisses(n int) {
	if !enabled.Load() || n <= 0 {
		return
	}
	cacheResults.WithLabelValues("miss").Add(float64(n))
}

func IncCacheBypass() {
	if !enabled.Load() {
		return
	}
	cacheResults.WithLabelValues("bypass").Inc()
}

// ObserveFacilityEvent counts produced ("out") and consumed ("in") events.
func ObserveFacilityEvent(direction, op string, err error) {
	if !enabled.Load() {
		return
	}
	if op == "" {
		op = "unknown"
	}
	facilityEventsTotal.WithLabelValues(direction, op, result(err)).Inc()
}

func IncFacilityEventDropped(op string) {
	if !enabled.Load() {
		return
	}
	facilityEventsTotal.WithLabelValues("out", op, "dropped").Inc()
}

func SetEventLagSeconds(v float64) {
	if !enabled.Load() {
		return
	}
	eventLagSeconds.Set(v)
}

func SetHotCells(tier string, n int) {
	if !enabled.Load() {
		return
	}
	hotCells.WithLabelValues(tier).Set(float64(n))
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
