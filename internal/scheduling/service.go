package scheduling

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/medgrid/clinic-scheduling/pkg/auth"
	"github.com/medgrid/clinic-scheduling/pkg/clock"
	"github.com/medgrid/clinic-scheduling/pkg/config"
	"github.com/medgrid/clinic-scheduling/pkg/database"
	"github.com/medgrid/clinic-scheduling/pkg/interfaces"
	"github.com/medgrid/clinic-scheduling/pkg/logger"
	"github.com/medgrid/clinic-scheduling/pkg/monitoring"
	"github.com/medgrid/clinic-scheduling/pkg/ratelimit"
)

// ServiceVersion is reported by the health endpoint.
const ServiceVersion = "1.0.0"

// Service wires the scheduling domain behind one HTTP surface.
type Service struct {
	config       *config.Config
	logger       *logger.Logger
	db           *database.DB
	schedules    interfaces.ScheduleService
	leaves       interfaces.LeaveService
	appointments interfaces.AppointmentService
	queues       interfaces.QueueService
	validator    *auth.TokenValidator
	health       *monitoring.HealthManager
	metrics      *monitoring.MetricsCollector
	tracing      *monitoring.TracingManager
	middleware   *monitoring.MonitoringMiddleware
	limiter      *ratelimit.Limiter
	server       *http.Server
	stopPruning  chan struct{}
}

// New assembles the scheduling service from configuration
func New(cfg *config.Config, log *logger.Logger) (*Service, error) {
	db, err := database.NewConnection(&cfg.Database, log)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.CreateSchema(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}

	var metrics *monitoring.MetricsCollector
	var tracing *monitoring.TracingManager
	if cfg.Monitoring.Enabled {
		metrics = monitoring.NewMetricsCollector("scheduling-service")
	}
	if cfg.Monitoring.TracingEnabled {
		tracing, err = monitoring.NewTracingManager(&monitoring.TracingConfig{
			ServiceName:    "scheduling-service",
			ServiceVersion: ServiceVersion,
			JaegerEndpoint: cfg.Monitoring.JaegerEndpoint,
			Environment:    "production",
			SamplingRate:   cfg.Monitoring.SamplingRate,
		})
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to initialize tracing: %w", err)
		}
	}

	clk := clock.System{}
	scheduleRepo := NewScheduleRepository(db, log)
	leaveRepo := NewLeaveRepository(db, log)
	appointmentRepo := NewAppointmentRepository(db, log)
	queueRepo := NewQueueRepository(db, log)

	health := monitoring.NewHealthManager("scheduling-service", ServiceVersion)
	health.RegisterChecker("database", monitoring.NewDatabaseHealthChecker(db.DB))

	var limiter *ratelimit.Limiter
	if cfg.Server.RateLimitRequests > 0 {
		limiter = ratelimit.New(cfg.Server.RateLimitRequests,
			time.Duration(cfg.Server.RateLimitWindow)*time.Second)
	}

	return &Service{
		config:       cfg,
		logger:       log,
		db:           db,
		schedules:    NewScheduleService(scheduleRepo, clk, log),
		leaves:       NewLeaveService(leaveRepo, clk, log),
		appointments: NewAppointmentService(appointmentRepo, scheduleRepo, leaveRepo, queueRepo, &cfg.Scheduling, clk, log, metrics),
		queues:       NewQueueService(queueRepo, appointmentRepo, &cfg.Scheduling, clk, log, metrics),
		validator:    auth.NewTokenValidator(cfg.JWT.SecretKey),
		health:       health,
		metrics:      metrics,
		tracing:      tracing,
		middleware:   monitoring.NewMonitoringMiddleware(metrics, tracing, log),
		limiter:      limiter,
	}, nil
}

// Start runs the HTTP server until Stop is called
func (s *Service) Start(addr string) error {
	router := mux.NewRouter()
	s.setupRoutes(router)

	handler := s.middleware.HTTPMiddleware(router)
	if s.limiter != nil {
		s.stopPruning = make(chan struct{})
		s.limiter.StartPruning(time.Hour, s.stopPruning)
		handler = s.limiter.Middleware(s.logger)(handler)
	}

	s.server = &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  time.Duration(s.config.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(s.config.Server.IdleTimeout) * time.Second,
	}

	s.logger.WithField("addr", addr).Info("Starting scheduling service")
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server and releases resources
func (s *Service) Stop(ctx context.Context) error {
	s.logger.Info("Stopping scheduling service")

	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			return err
		}
	}

	if s.stopPruning != nil {
		close(s.stopPruning)
	}

	if s.tracing != nil {
		if err := s.tracing.Shutdown(ctx); err != nil {
			s.logger.WithError(err).Warn("Failed to shut down tracing")
		}
	}

	return s.db.Close()
}
