package observability

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yungbote/coursesync-backend/internal/platform/envutil"
	"github.com/yungbote/coursesync-backend/internal/platform/logger"
)

type Metrics struct {
	registry *prometheus.Registry

	apiRequests *prometheus.CounterVec
	apiLatency  *prometheus.HistogramVec
	apiInflight prometheus.Gauge

	progressUpdates  *prometheus.CounterVec
	milestones       *prometheus.CounterVec
	downloads        *prometheus.CounterVec
	syncs            *prometheus.CounterVec
	estimates        *prometheus.CounterVec
	estimatedBytes   prometheus.Histogram
	notifications    *prometheus.CounterVec
	sseDropped       *prometheus.CounterVec
	lockWaitDuration prometheus.Histogram
}

var (
	initOnce sync.Once
	instance *Metrics
)

func Enabled() bool {
	return envutil.Bool("METRICS_ENABLED", false)
}

// Current returns the process-wide instance, or nil when metrics are disabled.
func Current() *Metrics {
	return instance
}

func Init(log *logger.Logger) *Metrics {
	if !Enabled() {
		return nil
	}
	initOnce.Do(func() {
		instance = NewMetrics()
		if log != nil {
			log.Info("metrics initialized")
		}
	})
	return instance
}

// NewMetrics builds a Metrics on its own registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coursesync_api_requests_total",
			Help: "Total API requests by method/route/status.",
		}, []string{"method", "route", "status"}),
		apiLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "coursesync_api_request_duration_seconds",
			Help:    "API request latency in seconds by method/route/status.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}, []string{"method", "route", "status"}),
		apiInflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "coursesync_api_inflight_requests",
			Help: "In-flight API requests.",
		}),
		progressUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coursesync_progress_updates_total",
			Help: "Progress updates by outcome.",
		}, []string{"status"}),
		milestones: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coursesync_progress_milestones_total",
			Help: "Progress milestones crossed.",
		}, []string{"milestone"}),
		downloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coursesync_course_downloads_total",
			Help: "Offline course downloads by outcome.",
		}, []string{"status"}),
		syncs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coursesync_offline_syncs_total",
			Help: "Offline progress syncs by outcome.",
		}, []string{"status"}),
		estimates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coursesync_size_estimates_total",
			Help: "Course size estimate requests by outcome.",
		}, []string{"status"}),
		estimatedBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "coursesync_course_estimated_bytes",
			Help:    "Estimated offline package size in bytes.",
			Buckets: prometheus.ExponentialBuckets(1<<20, 4, 8),
		}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coursesync_notifications_total",
			Help: "Notification deliveries by type/status.",
		}, []string{"type", "status"}),
		sseDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coursesync_sse_dropped_total",
			Help: "SSE messages dropped because a client buffer was full.",
		}, []string{"event"}),
		lockWaitDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "coursesync_progress_lock_wait_seconds",
			Help:    "Time spent waiting for the per-(user,course) progress lock.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.apiRequests, m.apiLatency, m.apiInflight,
		m.progressUpdates, m.milestones, m.downloads, m.syncs, m.estimates, m.estimatedBytes,
		m.notifications, m.sseDropped, m.lockWaitDuration,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) StartServer(ctx context.Context, log *logger.Logger, addr string) {
	if m == nil {
		return
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = srv.Shutdown(shutdownCtx)
		cancel()
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if log != nil {
				log.Error("metrics server failed", "error", err, "addr", addr)
			}
		}
	}()
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "UNKNOWN"
	}
	if route == "" {
		route = "unknown"
	}
	if status == "" {
		status = "0"
	}
	m.apiRequests.WithLabelValues(method, route, status).Inc()
	m.apiLatency.WithLabelValues(method, route, status).Observe(dur.Seconds())
}

func (m *Metrics) ApiInflightInc() {
	if m == nil {
		return
	}
	m.apiInflight.Inc()
}

func (m *Metrics) ApiInflightDec() {
	if m == nil {
		return
	}
	m.apiInflight.Dec()
}

func (m *Metrics) IncProgressUpdate(status string) {
	if m == nil {
		return
	}
	m.progressUpdates.WithLabelValues(status).Inc()
}

func (m *Metrics) IncMilestone(milestone string) {
	if m == nil {
		return
	}
	m.milestones.WithLabelValues(milestone).Inc()
}

func (m *Metrics) IncDownload(status string) {
	if m == nil {
		return
	}
	m.downloads.WithLabelValues(status).Inc()
}

func (m *Metrics) IncSync(status string) {
	if m == nil {
		return
	}
	m.syncs.WithLabelValues(status).Inc()
}

func (m *Metrics) IncEstimate(status string) {
	if m == nil {
		return
	}
	m.estimates.WithLabelValues(status).Inc()
}

func (m *Metrics) ObserveEstimate(bytes int64) {
	if m == nil || bytes < 0 {
		return
	}
	m.estimatedBytes.Observe(float64(bytes))
}

func (m *Metrics) IncNotification(kind, status string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(kind, status).Inc()
}

func (m *Metrics) IncSSEDropped(event string) {
	if m == nil {
		return
	}
	if event == "" {
		event = "unknown"
	}
	m.sseDropped.WithLabelValues(event).Inc()
}

func (m *Metrics) ObserveLockWait(dur time.Duration) {
	if m == nil {
		return
	}
	m.lockWaitDuration.Observe(dur.Seconds())
}
