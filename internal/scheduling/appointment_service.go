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

// bookingRetries bounds the retry loop for appointment/queue number
// collisions under concurrent load.
const bookingRetries = 5

// AppointmentService implements interfaces.AppointmentService.
type AppointmentService struct {
	appointments interfaces.AppointmentRepository
	schedules    interfaces.ScheduleRepository
	leaves       interfaces.LeaveRepository
	queues       interfaces.QueueRepository
	cfg          *config.SchedulingConfig
	clock        clock.Clock
	logger       *logger.Logger
	metrics      *monitoring.MetricsCollector
}

// NewAppointmentService creates a new appointment service. metrics may be nil.
func NewAppointmentService(
	appointments interfaces.AppointmentRepository,
	schedules interfaces.ScheduleRepository,
	leaves interfaces.LeaveRepository,
	queues interfaces.QueueRepository,
	cfg *config.SchedulingConfig,
	clk clock.Clock,
	log *logger.Logger,
	metrics *monitoring.MetricsCollector,
) interfaces.AppointmentService {
	return &AppointmentService{
		appointments: appointments,
		schedules:    schedules,
		leaves:       leaves,
		queues:       queues,
		cfg:          cfg,
		clock:        clk,
		logger:       log,
		metrics:      metrics,
	}
}

// CreateAppointment books a slot. Non-emergency bookings must land on a slot
// boundary of the doctor's effective schedule and within slot capacity.
// Emergency bookings bypass the schedule and capacity checks and are pinned
// to the highest priority, but no booking lands on approved leave.
func (s *AppointmentService) CreateAppointment(apt *types.Appointment, auth *types.AuthContext) (*types.Appointment, error) {
	if !auth.HasPermission(types.PermAppointmentWrite) {
		return nil, types.NewForbiddenError(types.ErrCodeForbidden, "appointment:write permission required")
	}

	if err := validateAppointment(apt); err != nil {
		return nil, err
	}

	apt.Date = DateOnly(apt.Date)
	today := s.clock.Today()
	if apt.Date.Before(today) {
		return nil, types.NewValidationError(types.ErrCodePastDate, "cannot book an appointment in the past")
	}

	if apt.Type == types.TypeEmergency {
		apt.IsEmergency = true
	}
	if apt.IsEmergency {
		apt.Priority = types.PriorityEmergency
	} else if apt.Priority < types.PriorityEmergency || apt.Priority > types.PriorityLowest {
		apt.Priority = types.PriorityDefault
	}

	maxPerSlot := 0
	schedule, err := s.schedules.GetEffectiveSchedule(apt.DoctorID, int(apt.Date.Weekday()), apt.Date)
	if err != nil {
		return nil, err
	}

	if !apt.IsEmergency {
		if schedule == nil {
			return nil, types.NewValidationError(types.ErrCodeNoSchedule,
				"doctor has no effective schedule on this date")
		}
		if !SlotWithin(schedule, apt.Time) {
			return nil, types.NewValidationError(types.ErrCodeInvalidInput,
				"appointment time does not fall on a bookable slot")
		}
		maxPerSlot = schedule.MaxPatientsPerSlot
	}

	if schedule != nil {
		apt.SlotDuration = schedule.SlotDurationMinutes
	} else if apt.SlotDuration <= 0 {
		apt.SlotDuration = 30
	}

	// Approved leave blocks every booking, emergencies included.
	leave, err := s.leaves.ApprovedLeaveOn(apt.DoctorID, apt.Date)
	if err != nil {
		return nil, err
	}
	if leave != nil && LeaveCoversSlot(leave, apt.Time, apt.SlotDuration) {
		s.recordConflict("doctor_on_leave")
		return nil, types.NewConflictError(types.ErrCodeDoctorOnLeave, "doctor is on leave at this time")
	}

	s.warnOnRepeatNoShows(apt.PatientID)

	now := s.clock.Now()
	apt.Status = types.AppointmentScheduled
	apt.CreatedBy = auth.UserID
	apt.CreatedAt = now
	apt.UpdatedAt = now

	count, err := s.appointments.CountOnDate(apt.Date)
	if err != nil {
		return nil, err
	}

	for attempt := 0; attempt < bookingRetries; attempt++ {
		apt.ID = uuid.New().String()
		apt.AppointmentNumber = appointmentNumber(apt.Date, count+1+attempt)

		err = s.appointments.CreateBooked(apt, maxPerSlot)
		if err == nil {
			break
		}
		if errors.Is(err, ErrSlotFull) {
			s.recordConflict("slot_full")
			return nil, types.NewConflictError(types.ErrCodeSlotFull, "slot is fully booked")
		}
		if errors.Is(err, ErrDuplicateNumber) {
			continue
		}
		return nil, err
	}
	if err != nil {
		return nil, types.NewInternalError(types.ErrCodeInternalError, "could not allocate appointment number", err)
	}

	if s.metrics != nil {
		s.metrics.RecordBooking(string(apt.Type))
	}
	s.logger.Audit(auth.UserID, "appointment.create", apt.ID, true, map[string]interface{}{
		"appointment_number": apt.AppointmentNumber,
		"doctor_id":          apt.DoctorID,
	})
	return apt, nil
}

// GetAppointment retrieves an appointment by ID
func (s *AppointmentService) GetAppointment(appointmentID string) (*types.Appointment, error) {
	return s.appointments.GetByID(appointmentID)
}

// GetAppointmentByNumber retrieves an appointment by its number
func (s *AppointmentService) GetAppointmentByNumber(number string) (*types.Appointment, error) {
	return s.appointments.GetByNumber(number)
}

// GetAppointments lists appointments with the matching total for pagination
func (s *AppointmentService) GetAppointments(filters *types.AppointmentFilters) ([]*types.Appointment, int, error) {
	appointments, err := s.appointments.List(filters)
	if err != nil {
		return nil, 0, err
	}

	total, err := s.appointments.Count(filters)
	if err != nil {
		return nil, 0, err
	}

	return appointments, total, nil
}

// GetTodayAppointments lists today's appointments, optionally scoped
func (s *AppointmentService) GetTodayAppointments(doctorID, departmentID string) ([]*types.Appointment, error) {
	return s.appointments.GetToday(doctorID, departmentID, s.clock.Today())
}

// GetAvailableSlots expands the doctor's effective schedule for date into the
// remaining bookable slots
func (s *AppointmentService) GetAvailableSlots(doctorID string, date time.Time) ([]*types.Slot, error) {
	date = DateOnly(date)
	today := s.clock.Today()
	if date.Before(today) {
		return nil, types.NewValidationError(types.ErrCodePastDate, "cannot list slots for a past date")
	}

	schedule, err := s.schedules.GetEffectiveSchedule(doctorID, int(date.Weekday()), date)
	if err != nil {
		return nil, err
	}
	if schedule == nil {
		return []*types.Slot{}, nil
	}

	leave, err := s.leaves.ApprovedLeaveOn(doctorID, date)
	if err != nil {
		return nil, err
	}

	active, err := s.appointments.List(&types.AppointmentFilters{
		DoctorID: doctorID,
		DateFrom: date,
		DateTo:   date,
	})
	if err != nil {
		return nil, err
	}

	booked := make(map[types.TimeOfDay]int)
	for _, apt := range active {
		switch apt.Status {
		case types.AppointmentCancelled, types.AppointmentRescheduled, types.AppointmentNoShow:
		default:
			booked[apt.Time]++
		}
	}

	plan := SlotPlan{
		Schedule: schedule,
		Booked:   booked,
		Leave:    leave,
	}
	if date.Equal(today) {
		plan.PruneToday = true
		now := s.clock.Now()
		plan.Now = types.MinutesOfDay(now.Hour()*60 + now.Minute())
	}

	slots := PlanSlots(plan)
	if slots == nil {
		slots = []*types.Slot{}
	}
	return slots, nil
}

// UpdateAppointment patches mutable fields. Terminal appointments reject
// patches.
func (s *AppointmentService) UpdateAppointment(appointmentID string, updates *types.AppointmentUpdates, auth *types.AuthContext) (*types.Appointment, error) {
	if !auth.HasPermission(types.PermAppointmentWrite) {
		return nil, types.NewForbiddenError(types.ErrCodeForbidden, "appointment:write permission required")
	}

	existing, err := s.appointments.GetByID(appointmentID)
	if err != nil {
		return nil, err
	}
	if existing.Status.IsTerminal() {
		return nil, types.NewConflictError(types.ErrCodeInvalidState,
			fmt.Sprintf("appointment in state %s cannot be modified", existing.Status))
	}

	if updates.Priority != nil && (*updates.Priority < types.PriorityEmergency || *updates.Priority > types.PriorityLowest) {
		return nil, types.NewValidationError(types.ErrCodeInvalidInput, "priority must be between 1 and 5")
	}

	updated, err := s.appointments.Update(appointmentID, updates)
	if err != nil {
		return nil, err
	}

	s.logger.Audit(auth.UserID, "appointment.update", appointmentID, true, nil)
	return updated, nil
}

// ConfirmAppointment moves SCHEDULED to CONFIRMED
func (s *AppointmentService) ConfirmAppointment(appointmentID string, auth *types.AuthContext) (*types.Appointment, error) {
	if !auth.HasPermission(types.PermAppointmentWrite) {
		return nil, types.NewForbiddenError(types.ErrCodeForbidden, "appointment:write permission required")
	}

	existing, err := s.appointments.GetByID(appointmentID)
	if err != nil {
		return nil, err
	}
	if err := s.requireTransition(existing, types.AppointmentConfirmed); err != nil {
		return nil, err
	}

	if err := s.appointments.StampConfirmed(appointmentID); err != nil {
		return nil, err
	}

	s.recordTransition(existing.Status, types.AppointmentConfirmed)
	s.logger.Audit(auth.UserID, "appointment.confirm", appointmentID, true, nil)
	return s.appointments.GetByID(appointmentID)
}

// CheckInAppointment marks arrival and enqueues the patient on the queue for
// the appointment date.
func (s *AppointmentService) CheckInAppointment(appointmentID string, auth *types.AuthContext) (*types.Appointment, *types.QueueEntry, error) {
	if !auth.HasPermission(types.PermAppointmentWrite) {
		return nil, nil, types.NewForbiddenError(types.ErrCodeForbidden, "appointment:write permission required")
	}

	existing, err := s.appointments.GetByID(appointmentID)
	if err != nil {
		return nil, nil, err
	}
	if err := s.requireTransition(existing, types.AppointmentCheckedIn); err != nil {
		return nil, nil, err
	}

	now := s.clock.Now()
	if err := s.appointments.StampCheckIn(appointmentID, auth.UserID, now); err != nil {
		return nil, nil, err
	}

	queueType := types.QueueScheduledType
	if existing.IsEmergency {
		queueType = types.QueueEmergencyType
	}

	entry, err := s.enqueue(&types.QueueEntry{
		AppointmentID: &existing.ID,
		PatientID:     existing.PatientID,
		DoctorID:      existing.DoctorID,
		DepartmentID:  existing.DepartmentID,
		QueueDate:     DateOnly(existing.Date),
		QueueType:     queueType,
		Priority:      existing.Priority,
		IsEmergency:   existing.IsEmergency,
	}, now)
	if err != nil {
		return nil, nil, err
	}

	s.recordTransition(existing.Status, types.AppointmentCheckedIn)
	s.logger.Audit(auth.UserID, "appointment.checkin", appointmentID, true, map[string]interface{}{
		"queue_number": entry.QueueNumber,
	})

	apt, err := s.appointments.GetByID(appointmentID)
	if err != nil {
		return nil, nil, err
	}
	return apt, entry, nil
}

// CancelAppointment cancels a live appointment
func (s *AppointmentService) CancelAppointment(appointmentID, reason string, auth *types.AuthContext) (*types.Appointment, error) {
	if !auth.HasPermission(types.PermAppointmentWrite) {
		return nil, types.NewForbiddenError(types.ErrCodeForbidden, "appointment:write permission required")
	}

	existing, err := s.appointments.GetByID(appointmentID)
	if err != nil {
		return nil, err
	}
	if err := s.requireTransition(existing, types.AppointmentCancelled); err != nil {
		return nil, err
	}

	if err := s.appointments.StampCancel(appointmentID, auth.UserID, s.clock.Now(), reason); err != nil {
		return nil, err
	}

	s.recordTransition(existing.Status, types.AppointmentCancelled)
	s.logger.Audit(auth.UserID, "appointment.cancel", appointmentID, true, nil)
	return s.appointments.GetByID(appointmentID)
}

// RescheduleAppointment books a replacement slot and retires the original.
// The new booking passes through the full booking validation.
func (s *AppointmentService) RescheduleAppointment(appointmentID string, newDate time.Time, newTime types.TimeOfDay, auth *types.AuthContext) (*types.Appointment, error) {
	old, err := s.appointments.GetByID(appointmentID)
	if err != nil {
		return nil, err
	}
	if err := s.requireTransition(old, types.AppointmentRescheduled); err != nil {
		return nil, err
	}

	replacement := &types.Appointment{
		PatientID:    old.PatientID,
		DoctorID:     old.DoctorID,
		DepartmentID: old.DepartmentID,
		Date:         newDate,
		Time:         newTime,
		Type:         old.Type,
		IsEmergency:  old.IsEmergency,
		Priority:     old.Priority,
		Reason:       old.Reason,
		Symptoms:     old.Symptoms,
		Notes:        old.Notes,
	}

	created, err := s.CreateAppointment(replacement, auth)
	if err != nil {
		return nil, err
	}

	if err := s.appointments.LinkReschedule(appointmentID, created.ID); err != nil {
		return nil, err
	}

	s.recordTransition(old.Status, types.AppointmentRescheduled)
	s.logger.Audit(auth.UserID, "appointment.reschedule", appointmentID, true, map[string]interface{}{
		"new_appointment": created.ID,
	})
	return s.appointments.GetByID(created.ID)
}

// MarkNoShow marks a missed appointment
func (s *AppointmentService) MarkNoShow(appointmentID string, auth *types.AuthContext) (*types.Appointment, error) {
	if !auth.HasPermission(types.PermAppointmentWrite) {
		return nil, types.NewForbiddenError(types.ErrCodeForbidden, "appointment:write permission required")
	}

	existing, err := s.appointments.GetByID(appointmentID)
	if err != nil {
		return nil, err
	}
	if err := s.requireTransition(existing, types.AppointmentNoShow); err != nil {
		return nil, err
	}

	if err := s.appointments.SetStatus(appointmentID, types.AppointmentNoShow); err != nil {
		return nil, err
	}

	s.recordTransition(existing.Status, types.AppointmentNoShow)
	s.logger.Audit(auth.UserID, "appointment.no_show", appointmentID, true, nil)
	return s.appointments.GetByID(appointmentID)
}

// enqueue assigns the next queue number and inserts, renumbering on
// collision with a concurrent check-in. An appointment holds at most one
// active queue entry at a time.
func (s *AppointmentService) enqueue(entry *types.QueueEntry, now time.Time) (*types.QueueEntry, error) {
	if entry.AppointmentID != nil {
		active, err := s.queues.ActiveEntryForAppointment(*entry.AppointmentID)
		if err != nil {
			return nil, err
		}
		if active != nil {
			return nil, types.NewConflictError(types.ErrCodeInvalidState,
				"appointment already has an active queue entry")
		}
	}

	waiting, err := s.queues.WaitingCount(entry.DoctorID, entry.QueueDate)
	if err != nil {
		return nil, err
	}
	estimated := waiting * s.cfg.AverageConsultationMinutes
	entry.EstimatedWaitTime = &estimated

	entry.Status = types.QueueWaiting
	entry.CheckedInAt = now
	entry.CreatedAt = now
	entry.UpdatedAt = now

	for attempt := 0; attempt < bookingRetries; attempt++ {
		number, err := s.queues.NextQueueNumber(entry.DoctorID, entry.QueueDate)
		if err != nil {
			return nil, err
		}
		entry.ID = uuid.New().String()
		entry.QueueNumber = number

		err = s.queues.Create(entry)
		if err == nil {
			return entry, nil
		}
		if !errors.Is(err, ErrDuplicateNumber) {
			return nil, err
		}
	}

	return nil, types.NewInternalError(types.ErrCodeInternalError, "could not allocate queue number", nil)
}

func (s *AppointmentService) requireTransition(apt *types.Appointment, next types.AppointmentStatus) error {
	if !apt.Status.CanTransitionTo(next) {
		return types.NewConflictError(types.ErrCodeInvalidState,
			fmt.Sprintf("cannot move appointment from %s to %s", apt.Status, next))
	}
	return nil
}

// warnOnRepeatNoShows surfaces habitual no-shows to staff without blocking
// the booking.
func (s *AppointmentService) warnOnRepeatNoShows(patientID string) {
	since := s.clock.Today().AddDate(0, 0, -90)
	count, err := s.appointments.NoShowCount(patientID, since)
	if err != nil {
		s.logger.WithError(err).Warn("Failed to check no-show history")
		return
	}
	if count >= s.cfg.NoShowWarningThreshold {
		s.logger.WithFields(map[string]interface{}{
			"patient_id":    patientID,
			"no_show_count": count,
		}).Warn("Patient has repeated no-shows in the last 90 days")
	}
}

func (s *AppointmentService) recordTransition(from, to types.AppointmentStatus) {
	if s.metrics != nil {
		s.metrics.RecordAppointmentTransition(string(from), string(to))
	}
}

func (s *AppointmentService) recordConflict(reason string) {
	if s.metrics != nil {
		s.metrics.RecordBookingConflict(reason)
	}
}

// appointmentNumber formats the human-readable booking reference, sequenced
// per calendar day.
func appointmentNumber(date time.Time, seq int) string {
	return fmt.Sprintf("APT-%s-%04d", date.Format("20060102"), seq)
}

func validateAppointment(apt *types.Appointment) error {
	if apt.PatientID == "" {
		return types.NewValidationError(types.ErrCodeInvalidInput, "patient_id is required")
	}
	if apt.DoctorID == "" {
		return types.NewValidationError(types.ErrCodeInvalidInput, "doctor_id is required")
	}
	if apt.Date.IsZero() {
		return types.NewValidationError(types.ErrCodeInvalidInput, "appointment_date is required")
	}
	if apt.Time == "" {
		return types.NewValidationError(types.ErrCodeInvalidInput, "appointment_time is required")
	}
	if _, err := types.ParseTimeOfDay(string(apt.Time)); err != nil {
		return types.NewValidationError(types.ErrCodeInvalidInput, "appointment_time must be HH:MM")
	}
	if apt.Type == "" {
		return types.NewValidationError(types.ErrCodeInvalidInput, "appointment_type is required")
	}
	return nil
}
