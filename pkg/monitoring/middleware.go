package monitoring

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/medgrid/clinic-scheduling/pkg/logger"
)

// MonitoringMiddleware combines metrics, tracing, and logging
type MonitoringMiddleware struct {
	metrics *MetricsCollector
	tracing *TracingManager
	logger  *logger.Logger
}

// NewMonitoringMiddleware creates a new monitoring middleware.
// The tracing manager may be nil when tracing is disabled.
func NewMonitoringMiddleware(metrics *MetricsCollector, tracing *TracingManager, log *logger.Logger) *MonitoringMiddleware {
	return &MonitoringMiddleware{
		metrics: metrics,
		tracing: tracing,
		logger:  log,
	}
}

// HTTPMiddleware creates comprehensive HTTP monitoring middleware
func (mm *MonitoringMiddleware) HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}

		ctx := context.WithValue(r.Context(), "request_id", requestID)

		var span trace.Span
		if mm.tracing != nil {
			ctx = otel.GetTextMapPropagator().Extract(ctx, propagation.HeaderCarrier(r.Header))
			ctx, span = mm.tracing.StartHTTPSpan(ctx, r.Method, r.URL.Path)
			span.SetAttributes(
				attribute.String("http.user_agent", r.UserAgent()),
				attribute.String("http.remote_addr", r.RemoteAddr),
				attribute.String("request.id", requestID),
			)
			otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(w.Header()))
		}

		wrapper := &monitoringResponseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}
		wrapper.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(wrapper, r.WithContext(ctx))

		duration := time.Since(start)

		if mm.metrics != nil {
			mm.metrics.RecordHTTPRequest(r.Method, r.URL.Path, strconv.Itoa(wrapper.statusCode), duration)
		}

		if span != nil {
			span.SetAttributes(
				attribute.Int("http.status_code", wrapper.statusCode),
				attribute.Int64("http.response_size", wrapper.bytesWritten),
			)
			if wrapper.statusCode >= 400 {
				span.SetStatus(codes.Error, http.StatusText(wrapper.statusCode))
			}
			span.End()
		}

		mm.logger.HTTPRequest(ctx, r.Method, r.URL.Path, r.RemoteAddr, wrapper.statusCode, duration.Milliseconds())
	})
}

// DatabaseMiddleware creates middleware for database operations
func (mm *MonitoringMiddleware) DatabaseMiddleware(operation, table string) func(context.Context, func() error) error {
	return func(ctx context.Context, dbFunc func() error) error {
		start := time.Now()

		var span trace.Span
		if mm.tracing != nil {
			_, span = mm.tracing.StartDatabaseSpan(ctx, operation, table)
		}

		err := dbFunc()

		duration := time.Since(start)

		if mm.metrics != nil {
			mm.metrics.RecordDBQuery(operation, duration)
			if err != nil {
				mm.metrics.RecordSystemError("database_error", "database")
			}
		}

		if span != nil {
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			}
			span.End()
		}

		return err
	}
}

// monitoringResponseWriter wraps http.ResponseWriter to capture metrics
type monitoringResponseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int64
}

func (mrw *monitoringResponseWriter) WriteHeader(code int) {
	mrw.statusCode = code
	mrw.ResponseWriter.WriteHeader(code)
}

func (mrw *monitoringResponseWriter) Write(b []byte) (int, error) {
	n, err := mrw.ResponseWriter.Write(b)
	mrw.bytesWritten += int64(n)
	return n, err
}
