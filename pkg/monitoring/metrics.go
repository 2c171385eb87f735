package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP request metrics
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status_code", "service"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "service"},
	)

	// Database metrics
	dbQueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Duration of database queries in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 2.0, 5.0},
		},
		[]string{"query_type", "service"},
	)

	// Appointment metrics
	appointmentsBookedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "appointments_booked_total",
			Help: "Total number of appointments booked",
		},
		[]string{"appointment_type", "service"},
	)

	bookingConflictsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "booking_conflicts_total",
			Help: "Total number of booking attempts rejected due to conflicts",
		},
		[]string{"reason", "service"},
	)

	appointmentTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "appointment_transitions_total",
			Help: "Total number of appointment status transitions",
		},
		[]string{"from_status", "to_status", "service"},
	)

	// Queue metrics
	queueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "queue_depth",
			Help: "Number of patients currently waiting per doctor",
		},
		[]string{"doctor_id", "service"},
	)

	consultationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "consultation_duration_seconds",
			Help:    "Duration of completed consultations in seconds",
			Buckets: []float64{120, 300, 600, 900, 1200, 1800, 2700, 3600},
		},
		[]string{"queue_type", "service"},
	)

	// System metrics
	systemErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "system_errors_total",
			Help: "Total number of system errors",
		},
		[]string{"error_type", "service", "component"},
	)
)

// MetricsCollector handles Prometheus metrics collection
type MetricsCollector struct {
	serviceName string
}

// NewMetricsCollector creates a new metrics collector
func NewMetricsCollector(serviceName string) *MetricsCollector {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		dbQueryDuration,
		appointmentsBookedTotal,
		bookingConflictsTotal,
		appointmentTransitionsTotal,
		queueDepth,
		consultationDuration,
		systemErrors,
	)

	return &MetricsCollector{
		serviceName: serviceName,
	}
}

// RecordHTTPRequest records HTTP request metrics
func (m *MetricsCollector) RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, endpoint, statusCode, m.serviceName).Inc()
	httpRequestDuration.WithLabelValues(method, endpoint, m.serviceName).Observe(duration.Seconds())
}

// RecordDBQuery records database query metrics
func (m *MetricsCollector) RecordDBQuery(queryType string, duration time.Duration) {
	dbQueryDuration.WithLabelValues(queryType, m.serviceName).Observe(duration.Seconds())
}

// RecordBooking records a successful appointment booking
func (m *MetricsCollector) RecordBooking(appointmentType string) {
	appointmentsBookedTotal.WithLabelValues(appointmentType, m.serviceName).Inc()
}

// RecordBookingConflict records a booking rejected due to a conflict
func (m *MetricsCollector) RecordBookingConflict(reason string) {
	bookingConflictsTotal.WithLabelValues(reason, m.serviceName).Inc()
}

// RecordAppointmentTransition records an appointment status transition
func (m *MetricsCollector) RecordAppointmentTransition(from, to string) {
	appointmentTransitionsTotal.WithLabelValues(from, to, m.serviceName).Inc()
}

// SetQueueDepth records the current waiting count for a doctor
func (m *MetricsCollector) SetQueueDepth(doctorID string, depth int) {
	queueDepth.WithLabelValues(doctorID, m.serviceName).Set(float64(depth))
}

// RecordConsultation records a completed consultation duration
func (m *MetricsCollector) RecordConsultation(queueType string, duration time.Duration) {
	consultationDuration.WithLabelValues(queueType, m.serviceName).Observe(duration.Seconds())
}

// RecordSystemError records system error metrics
func (m *MetricsCollector) RecordSystemError(errorType, component string) {
	systemErrors.WithLabelValues(errorType, m.serviceName, component).Inc()
}

// Handler returns the Prometheus metrics HTTP handler
func (m *MetricsCollector) Handler() http.Handler {
	return promhttp.Handler()
}

// HTTPMiddleware creates middleware for HTTP request metrics
func (m *MetricsCollector) HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapper := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		duration := time.Since(start)
		statusCode := strconv.Itoa(wrapper.statusCode)

		m.RecordHTTPRequest(r.Method, r.URL.Path, statusCode, duration)
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
