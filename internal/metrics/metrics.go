package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exposes application metrics that are safe to scrape via Prometheus.
type Metrics struct {
	registry            *prometheus.Registry
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	editorOperations    *prometheus.CounterVec
	splitterRejections  prometheus.Counter
	activeWorkspaces    prometheus.Gauge
	saveDuration        prometheus.Histogram
}

// New creates a fresh Metrics registry with HTTP and editor metrics registered.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	httpRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fibermap",
		Name:      "http_requests_total",
		Help:      "Count of HTTP requests processed by core-go",
	}, []string{"method", "path", "status"})

	httpRequestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "fibermap",
		Name:      "http_request_duration_seconds",
		Help:      "Duration of HTTP requests served by core-go",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	editorOperations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fibermap",
		Name:      "editor_operations_total",
		Help:      "Editor state transitions by operation and result",
	}, []string{"op", "result"})

	splitterRejections := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "fibermap",
		Name:      "splitter_limit_rejections_total",
		Help:      "Connections refused because a splitter was full",
	})

	activeWorkspaces := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "fibermap",
		Name:      "active_workspaces",
		Help:      "Workspaces currently held in memory",
	})

	saveDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "fibermap",
		Name:      "save_duration_seconds",
		Help:      "Duration of save operations including storage writes",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	})

	registry.MustRegister(
		httpRequests,
		httpRequestDuration,
		editorOperations,
		splitterRejections,
		activeWorkspaces,
		saveDuration,
	)

	return &Metrics{
		registry:            registry,
		httpRequests:        httpRequests,
		httpRequestDuration: httpRequestDuration,
		editorOperations:    editorOperations,
		splitterRejections:  splitterRejections,
		activeWorkspaces:    activeWorkspaces,
		saveDuration:        saveDuration,
	}
}

// ObserveHTTPRequest records a single HTTP request/response cycle.
func (m *Metrics) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labels := prometheus.Labels{
		"method": method,
		"path":   path,
		"status": strconv.Itoa(status),
	}
	m.httpRequests.With(labels).Inc()
	m.httpRequestDuration.With(labels).Observe(duration.Seconds())
}

// ObserveEditorOperation counts one editor transition. result is ok, rejected or error.
func (m *Metrics) ObserveEditorOperation(op, result string) {
	if m == nil {
		return
	}
	m.editorOperations.WithLabelValues(op, result).Inc()
}

func (m *Metrics) IncSplitterRejection() {
	if m == nil {
		return
	}
	m.splitterRejections.Inc()
}

func (m *Metrics) SetActiveWorkspaces(n int) {
	if m == nil {
		return
	}
	m.activeWorkspaces.Set(float64(n))
}

func (m *Metrics) ObserveSaveDuration(duration time.Duration) {
	if m == nil {
		return
	}
	m.saveDuration.Observe(duration.Seconds())
}

// Handler exposes the Prometheus registry over HTTP.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("metrics unavailable"))
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
