// Package metrics exposes runtime counters to Prometheus. Each counter is also
// mirrored to an OpenTelemetry counter on the global meter provider, which
// internal/telemetry installs when an OTLP endpoint is configured.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "github.com/dwsmith1983/wastecal"
	namespace = "wastecal"
)

// Registry holds every wastecal collector plus the Go runtime collectors.
var Registry = prometheus.NewRegistry()

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		httpRequests,
		httpDuration,
	)
}

// Counter is a monotonically increasing count.
type Counter struct {
	name string
	desc string
	prom prometheus.Counter

	mu    sync.Mutex
	total int64

	once sync.Once
	inst metric.Int64Counter
}

func newCounter(name, desc string) *Counter {
	c := &Counter{
		name: name,
		desc: desc,
		prom: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      name + "_total",
			Help:      desc,
		}),
	}
	Registry.MustRegister(c.prom)
	return c
}

// Add increments the counter by n.
func (c *Counter) Add(ctx context.Context, n int64) {
	c.prom.Add(float64(n))
	c.mu.Lock()
	c.total += n
	c.mu.Unlock()
	c.once.Do(func() {
		inst, err := otel.Meter(meterName).Int64Counter(namespace+"."+c.name, metric.WithDescription(c.desc))
		if err == nil {
			c.inst = inst
		}
	})
	if c.inst != nil {
		c.inst.Add(ctx, n)
	}
}

// Value returns the process-local total.
func (c *Counter) Value() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total
}

var (
	IngestBatches    = newCounter("ingest_batches", "Committed ingest batches")
	IngestRejected   = newCounter("ingest_rejected", "Ingest batches rejected by validation or failure")
	StreamsSplit     = newCounter("streams_split", "Calendar streams split by reconciliation")
	StreamsRetired   = newCounter("streams_retired", "Calendar streams moved to pending-clean")
	CalendarsCreated = newCounter("calendars_created", "External calendars created")
	CalendarsDeleted = newCounter("calendars_deleted", "External calendars deleted")
	EventsAdded      = newCounter("events_added", "Pickup events inserted")
	EventsRetried    = newCounter("events_retried", "Failed pickup events inserted on retry")
	EventsDeleted    = newCounter("events_deleted", "Pickup events removed")
	EventErrors      = newCounter("event_errors", "Pickup event inserts that failed")
	NoticesPosted    = newCounter("cleanup_notices_posted", "Resubscribe notices posted to retiring calendars")
	SyncPasses       = newCounter("sync_passes", "Completed stream sync passes")
	SyncFailures     = newCounter("sync_failures", "Stream create or sync passes that failed")
	RateLimited      = newCounter("rate_limited", "Provider calls rejected for rate or quota")
	AlertsDispatched = newCounter("alerts_dispatched", "Alerts delivered to at least one sink")
	AlertsFailed     = newCounter("alerts_failed", "Alert sink deliveries that failed")
)

var (
	httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests processed by route and status.",
	}, []string{"method", "route", "status"})
	httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request durations by route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})
)

// Handler serves the registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// Middleware records request counts and durations labelled with the matched
// chi route pattern, so path parameters do not explode cardinality.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(rec, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
