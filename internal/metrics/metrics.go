package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utakatalp/league-forecaster/internal/league"
	"github.com/utakatalp/league-forecaster/internal/logger"
)

// Recorder collects simulation, prediction and HTTP metrics on its own
// registry.
type Recorder struct {
	registry        *prometheus.Registry
	runsTotal       *prometheus.CounterVec
	runDuration     *prometheus.HistogramVec
	predictions     *prometheus.CounterVec
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// New creates a recorder registering its collectors on reg.
func New(reg *prometheus.Registry) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		registry: reg,
		runsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "forecaster",
				Name:      "simulation_runs_total",
				Help:      "Total number of season simulation runs",
			},
			[]string{"competition", "status"},
		),
		runDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "forecaster",
				Name:      "simulation_run_duration_seconds",
				Help:      "Duration of one season simulation run in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"competition"},
		),
		predictions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "forecaster",
				Name:      "predictions_total",
				Help:      "Total number of single fixture predictions served",
			},
			[]string{"competition"},
		),
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "forecaster",
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"route", "method", "status"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "forecaster",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route", "method"},
		),
	}
}

// ObserveRun records the outcome of one simulation run.
func (r *Recorder) ObserveRun(c league.Competition, elapsed time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "failed"
	}
	r.runsTotal.WithLabelValues(c.String(), status).Inc()
	r.runDuration.WithLabelValues(c.String()).Observe(elapsed.Seconds())
}

// RecordPrediction counts a served fixture prediction.
func (r *Recorder) RecordPrediction(c league.Competition) {
	r.predictions.WithLabelValues(c.String()).Inc()
}

// Handler exposes the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Middleware records request metrics labelled by route template and logs
// failed requests.
func (r *Recorder) Middleware(l *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			route := routeLabel(req)
			start := time.Now()

			rw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rw, req)

			status := strconv.Itoa(rw.status)
			duration := time.Since(start)
			r.requestsTotal.WithLabelValues(route, req.Method, status).Inc()
			r.requestDuration.WithLabelValues(route, req.Method).Observe(duration.Seconds())

			if l != nil && rw.status >= http.StatusInternalServerError {
				l.Error("http request failed",
					logger.String("route", route),
					logger.String("method", req.Method),
					logger.String("status", status),
					logger.Duration("duration_ms", duration),
				)
			}
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// routeLabel prefers the mux route template to keep label cardinality low.
func routeLabel(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return r.URL.Path
}
