// Package metrics holds the Prometheus collectors exported by the relay.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tilt_relay"

var (
	// Scanner metrics
	AdvertisementsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "advertisements_total",
		Help:      "Total number of BLE advertising reports received from the radio",
	})
	DecodeRejectionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "decode_rejections_total",
		Help:      "Advertisements rejected by the decoder, by reason",
	}, []string{"reason"})
	ReadingsPublishedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "readings_published_total",
		Help:      "Total number of decoded readings published to the slot",
	})
	ReadingsOverwrittenTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "readings_overwritten_total",
		Help:      "Readings replaced in the slot before the uploader took them",
	})
	LastGravity = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "last_gravity",
		Help:      "Specific gravity of the most recent reading",
	})
	LastTemperature = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "last_temperature_fahrenheit",
		Help:      "Temperature of the most recent reading",
	})

	// Uploader metrics
	UploadOutcomesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "upload_outcomes_total",
		Help:      "Upload attempts by outcome",
	}, []string{"outcome"})
	UploadDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "upload_duration_seconds",
		Help:      "Duration of single upload attempts in seconds",
		Buckets:   prometheus.DefBuckets,
	})
	ReadingsDroppedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "readings_dropped_total",
		Help:      "Readings given up on, by reason",
	}, []string{"reason"})

	// Connection metrics
	ConnectionState = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "connection_state",
		Help:      "Connection manager state (0=disconnected, 1=connecting, 2=connected, 3=backoff)",
	})
	BackoffSeconds = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "connection_backoff_seconds",
		Help:      "Current reconnect backoff in seconds",
	})
	ConnectFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "connect_failures_total",
		Help:      "Total number of failed connect attempts",
	})
	LinkLossesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "link_losses_total",
		Help:      "Total number of detected link losses",
	})

	// Status API metrics
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Status API requests by route and status code",
	}, []string{"route", "code"})

	// Supervisor metrics
	TaskRestartsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "task_restarts_total",
		Help:      "Task restarts performed by the supervisor",
	}, []string{"task"})

	registerOnce sync.Once
)

func init() {
	InitMetrics()
}

// InitMetrics registers all collectors with the default registry.
func InitMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			AdvertisementsTotal,
			DecodeRejectionsTotal,
			ReadingsPublishedTotal,
			ReadingsOverwrittenTotal,
			LastGravity,
			LastTemperature,
			UploadOutcomesTotal,
			UploadDurationSeconds,
			ReadingsDroppedTotal,
			ConnectionState,
			BackoffSeconds,
			ConnectFailuresTotal,
			LinkLossesTotal,
			HTTPRequestsTotal,
			TaskRestartsTotal,
		)
	})
}

// Handler exposes the default registry.
func Handler() http.Handler {
	InitMetrics()
	return promhttp.Handler()
}

// RecordAdvertisement counts one radio report.
func RecordAdvertisement() {
	AdvertisementsTotal.Inc()
}

// RecordRejection counts a decoder rejection.
func RecordRejection(reason string) {
	DecodeRejectionsTotal.WithLabelValues(reason).Inc()
}

// RecordPublished tracks a reading handed to the slot.
func RecordPublished(gravity, temperature int, overwritten bool) {
	ReadingsPublishedTotal.Inc()
	if overwritten {
		ReadingsOverwrittenTotal.Inc()
	}
	LastGravity.Set(float64(gravity) / 1000)
	LastTemperature.Set(float64(temperature))
}

// RecordUpload tracks one upload attempt.
func RecordUpload(outcome string, duration time.Duration) {
	if duration < 0 {
		duration = 0
	}
	UploadOutcomesTotal.WithLabelValues(outcome).Inc()
	UploadDurationSeconds.Observe(duration.Seconds())
}

// RecordDropped counts a reading the uploader gave up on.
func RecordDropped(reason string) {
	ReadingsDroppedTotal.WithLabelValues(reason).Inc()
}

// RecordConnectionState mirrors the connection manager state.
func RecordConnectionState(state int, backoff time.Duration) {
	ConnectionState.Set(float64(state))
	BackoffSeconds.Set(backoff.Seconds())
}

// RecordConnectFailure counts a failed connect attempt.
func RecordConnectFailure() {
	ConnectFailuresTotal.Inc()
}

// RecordLinkLoss counts a detected link loss.
func RecordLinkLoss() {
	LinkLossesTotal.Inc()
}

// RecordRestart counts a supervisor restart of task.
func RecordRestart(task string) {
	TaskRestartsTotal.WithLabelValues(task).Inc()
}

// HTTPMiddleware counts requests per route. routeOf may be nil, in which case
// the URL path is used.
func HTTPMiddleware(routeOf func(*http.Request) string) func(http.Handler) http.Handler {
	InitMetrics()
	if routeOf == nil {
		routeOf = func(r *http.Request) string { return r.URL.Path }
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(recorder, r)
			HTTPRequestsTotal.WithLabelValues(routeOf(r), strconv.Itoa(recorder.status)).Inc()
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
