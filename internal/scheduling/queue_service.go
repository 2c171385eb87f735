package scheduling

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/medgrid/clinic-scheduling/pkg/clock"
	"github.com/medgrid/clinic-scheduling/pkg/config"
	"github.com/medgrid/clinic-scheduling/pkg/interfaces"
	"github.com/medgrid/clinic-scheduling/pkg/logger"
	"github.com/medgrid/clinic-scheduling/pkg/monitoring"
	"github.com/medgrid/clinic-scheduling/pkg/types"
)

// QueueService implements interfaces.QueueService.
type QueueService struct {
	queues       interfaces.QueueRepository
	appointments interfaces.AppointmentRepository
	cfg          *config.SchedulingConfig
	clock        clock.Clock
	logger       *logger.Logger
	metrics      *monitoring.MetricsCollector
}

// NewQueueService creates a new queue service. metrics may be nil.
func NewQueueService(
	queues interfaces.QueueRepository,
	appointments interfaces.AppointmentRepository,
	cfg *config.SchedulingConfig,
	clk clock.Clock,
	log *logger.Logger,
	metrics *monitoring.MetricsCollector,
) interfaces.QueueService {
	return &QueueService{
		queues:       queues,
		appointments: appointments,
		cfg:          cfg,
		clock:        clk,
		logger:       log,
		metrics:      metrics,
	}
}

// AddWalkIn enqueues a patient without an appointment on today's queue.
// Emergencies jump to the highest priority; ordinary walk-ins join at the
// default priority behind scheduled arrivals of equal rank.
func (s *QueueService) AddWalkIn(patientID, doctorID, departmentID string, isEmergency bool, notes string, auth *types.AuthContext) (*types.QueueEntry, error) {
	if !auth.HasPermission(types.PermQueueManage) {
		return nil, types.NewForbiddenError(types.ErrCodeForbidden, "queue:manage permission required")
	}

	if patientID == "" || doctorID == "" {
		return nil, types.NewValidationError(types.ErrCodeInvalidInput, "patient_id and doctor_id are required")
	}

	today := s.clock.Today()
	now := s.clock.Now()

	entry := &types.QueueEntry{
		PatientID:   patientID,
		DoctorID:    doctorID,
		QueueDate:   today,
		QueueType:   types.QueueWalkInType,
		Status:      types.QueueWaiting,
		Priority:    types.PriorityDefault,
		IsEmergency: isEmergency,
		CheckedInAt: now,
		Notes:       notes,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if departmentID != "" {
		entry.DepartmentID = &departmentID
	}
	if isEmergency {
		entry.QueueType = types.QueueEmergencyType
		entry.Priority = types.PriorityEmergency
	}

	waiting, err := s.queues.WaitingCount(doctorID, today)
	if err != nil {
		return nil, err
	}
	estimated := waiting * s.cfg.AverageConsultationMinutes
	entry.EstimatedWaitTime = &estimated

	for attempt := 0; attempt < bookingRetries; attempt++ {
		number, err := s.queues.NextQueueNumber(doctorID, today)
		if err != nil {
			return nil, err
		}
		entry.ID = uuid.New().String()
		entry.QueueNumber = number

		err = s.queues.Create(entry)
		if err == nil {
			s.updateQueueDepth(doctorID, today)
			s.logger.Audit(auth.UserID, "queue.walk_in", entry.ID, true, map[string]interface{}{
				"doctor_id":    doctorID,
				"queue_number": entry.QueueNumber,
				"is_emergency": isEmergency,
			})
			return entry, nil
		}
		if !errors.Is(err, ErrDuplicateNumber) {
			return nil, err
		}
	}

	return nil, types.NewInternalError(types.ErrCodeInternalError, "could not allocate queue number", nil)
}

// GetDoctorQueue returns a doctor's queue for a date in serving order
func (s *QueueService) GetDoctorQueue(doctorID string, date time.Time, status types.QueueStatus) ([]*types.QueueEntry, error) {
	if date.IsZero() {
		date = s.clock.Today()
	}
	return s.queues.GetDoctorQueue(doctorID, DateOnly(date), status)
}

// GetWaitingCount returns the number of patients still waiting
func (s *QueueService) GetWaitingCount(doctorID string, date time.Time) (int, error) {
	if date.IsZero() {
		date = s.clock.Today()
	}
	return s.queues.WaitingCount(doctorID, DateOnly(date))
}

// CallNext promotes the highest-ranked waiting patient to CALLED
func (s *QueueService) CallNext(doctorID string, auth *types.AuthContext) (*types.QueueEntry, error) {
	if !auth.HasPermission(types.PermQueueManage) {
		return nil, types.NewForbiddenError(types.ErrCodeForbidden, "queue:manage permission required")
	}

	today := s.clock.Today()
	entry, err := s.queues.CallNext(doctorID, today, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, types.NewNotFoundError(types.ErrCodeNotFound, "no patients waiting")
	}

	s.updateQueueDepth(doctorID, today)
	s.logger.Audit(auth.UserID, "queue.call_next", entry.ID, true, map[string]interface{}{
		"doctor_id":    doctorID,
		"queue_number": entry.QueueNumber,
	})
	return entry, nil
}

// StartConsultation moves a CALLED patient into consultation and advances
// the linked appointment to IN_PROGRESS
func (s *QueueService) StartConsultation(queueID string, auth *types.AuthContext) (*types.QueueEntry, error) {
	if !auth.HasPermission(types.PermQueueManage) {
		return nil, types.NewForbiddenError(types.ErrCodeForbidden, "queue:manage permission required")
	}

	entry, err := s.transition(queueID, types.QueueInConsultation)
	if err != nil {
		return nil, err
	}

	if entry.AppointmentID != nil {
		if err := s.appointments.SetStatus(*entry.AppointmentID, types.AppointmentInProgress); err != nil {
			s.logger.WithError(err).Error("Failed to advance linked appointment")
		}
	}

	s.logger.Audit(auth.UserID, "queue.start_consultation", queueID, true, nil)
	return entry, nil
}

// CompleteConsultation finishes the consultation and completes the linked
// appointment
func (s *QueueService) CompleteConsultation(queueID string, auth *types.AuthContext) (*types.QueueEntry, error) {
	if !auth.HasPermission(types.PermQueueManage) {
		return nil, types.NewForbiddenError(types.ErrCodeForbidden, "queue:manage permission required")
	}

	entry, err := s.transition(queueID, types.QueueCompleted)
	if err != nil {
		return nil, err
	}

	if entry.AppointmentID != nil {
		if err := s.appointments.SetStatus(*entry.AppointmentID, types.AppointmentCompleted); err != nil {
			s.logger.WithError(err).Error("Failed to complete linked appointment")
		}
	}

	if s.metrics != nil && entry.CalledAt != nil && entry.CompletedAt != nil {
		s.metrics.RecordConsultation(string(entry.QueueType), entry.CompletedAt.Sub(*entry.CalledAt))
	}

	s.logger.Audit(auth.UserID, "queue.complete_consultation", queueID, true, nil)
	return entry, nil
}

// SkipPatient skips a waiting or called patient who is not ready
func (s *QueueService) SkipPatient(queueID string, auth *types.AuthContext) (*types.QueueEntry, error) {
	if !auth.HasPermission(types.PermQueueManage) {
		return nil, types.NewForbiddenError(types.ErrCodeForbidden, "queue:manage permission required")
	}

	entry, err := s.transition(queueID, types.QueueSkipped)
	if err != nil {
		return nil, err
	}

	s.updateQueueDepth(entry.DoctorID, entry.QueueDate)
	s.logger.Audit(auth.UserID, "queue.skip", queueID, true, nil)
	return entry, nil
}

// MarkLeft records that a patient left before being seen
func (s *QueueService) MarkLeft(queueID string, auth *types.AuthContext) (*types.QueueEntry, error) {
	if !auth.HasPermission(types.PermQueueManage) {
		return nil, types.NewForbiddenError(types.ErrCodeForbidden, "queue:manage permission required")
	}

	entry, err := s.transition(queueID, types.QueueLeft)
	if err != nil {
		return nil, err
	}

	s.updateQueueDepth(entry.DoctorID, entry.QueueDate)
	s.logger.Audit(auth.UserID, "queue.left", queueID, true, nil)
	return entry, nil
}

// transition validates the status change against the queue transition table
// before applying it
func (s *QueueService) transition(queueID string, next types.QueueStatus) (*types.QueueEntry, error) {
	entry, err := s.queues.GetByID(queueID)
	if err != nil {
		return nil, err
	}
	if !entry.Status.CanTransitionTo(next) {
		return nil, types.NewConflictError(types.ErrCodeInvalidState,
			fmt.Sprintf("cannot move queue entry from %s to %s", entry.Status, next))
	}

	return s.queues.UpdateStatus(queueID, next, s.clock.Now())
}

func (s *QueueService) updateQueueDepth(doctorID string, date time.Time) {
	if s.metrics == nil {
		return
	}
	if waiting, err := s.queues.WaitingCount(doctorID, date); err == nil {
		s.metrics.SetQueueDepth(doctorID, waiting)
	}
}
