package scheduling

import (
	"github.com/google/uuid"
	"github.com/medgrid/clinic-scheduling/pkg/clock"
	"github.com/medgrid/clinic-scheduling/pkg/interfaces"
	"github.com/medgrid/clinic-scheduling/pkg/logger"
	"github.com/medgrid/clinic-scheduling/pkg/types"
)

// ScheduleService implements interfaces.ScheduleService.
type ScheduleService struct {
	repo   interfaces.ScheduleRepository
	clock  clock.Clock
	logger *logger.Logger
}

// NewScheduleService creates a new schedule service
func NewScheduleService(repo interfaces.ScheduleRepository, clk clock.Clock, log *logger.Logger) interfaces.ScheduleService {
	return &ScheduleService{repo: repo, clock: clk, logger: log}
}

// CreateSchedule validates and persists a new weekly availability window.
// Two active schedules for the same doctor and weekday may not overlap in
// both their effective window and their time-of-day window.
func (s *ScheduleService) CreateSchedule(schedule *types.DoctorSchedule, auth *types.AuthContext) (*types.DoctorSchedule, error) {
	if !auth.HasPermission(types.PermScheduleWrite) {
		return nil, types.NewForbiddenError(types.ErrCodeForbidden, "schedule:write permission required")
	}

	if schedule.SlotDurationMinutes == 0 {
		schedule.SlotDurationMinutes = 30
	}
	if schedule.MaxPatientsPerSlot == 0 {
		schedule.MaxPatientsPerSlot = 1
	}

	if err := validateSchedule(schedule); err != nil {
		return nil, err
	}

	existing, err := s.repo.FindOverlapping(schedule.DoctorID, schedule.DayOfWeek, schedule.EffectiveFrom, schedule.EffectiveUntil)
	if err != nil {
		return nil, err
	}
	for _, other := range existing {
		if overlaps(schedule.StartTime, schedule.EndTime, other.StartTime, other.EndTime) {
			return nil, types.NewConflictError(types.ErrCodeScheduleOverlap,
				"an active schedule already covers this weekday and time window")
		}
	}

	now := s.clock.Now()
	schedule.ID = uuid.New().String()
	schedule.IsActive = true
	schedule.CreatedAt = now
	schedule.UpdatedAt = now

	if err := s.repo.Create(schedule); err != nil {
		return nil, err
	}

	s.logger.Audit(auth.UserID, "schedule.create", schedule.ID, true, map[string]interface{}{
		"doctor_id":   schedule.DoctorID,
		"day_of_week": schedule.DayOfWeek,
	})
	return schedule, nil
}

// GetSchedule retrieves a schedule by ID
func (s *ScheduleService) GetSchedule(scheduleID string) (*types.DoctorSchedule, error) {
	return s.repo.GetByID(scheduleID)
}

// GetDoctorSchedules retrieves all schedules for a doctor
func (s *ScheduleService) GetDoctorSchedules(doctorID string, activeOnly bool) ([]*types.DoctorSchedule, error) {
	return s.repo.GetByDoctorID(doctorID, activeOnly)
}

// UpdateSchedule applies a partial patch, re-running the overlap check when
// the time or effective window moves
func (s *ScheduleService) UpdateSchedule(scheduleID string, updates *types.ScheduleUpdates, auth *types.AuthContext) (*types.DoctorSchedule, error) {
	if !auth.HasPermission(types.PermScheduleWrite) {
		return nil, types.NewForbiddenError(types.ErrCodeForbidden, "schedule:write permission required")
	}

	existing, err := s.repo.GetByID(scheduleID)
	if err != nil {
		return nil, err
	}

	merged := *existing
	if updates.StartTime != nil {
		merged.StartTime = *updates.StartTime
	}
	if updates.EndTime != nil {
		merged.EndTime = *updates.EndTime
	}
	if updates.SlotDurationMinutes != nil {
		merged.SlotDurationMinutes = *updates.SlotDurationMinutes
	}
	if updates.MaxPatientsPerSlot != nil {
		merged.MaxPatientsPerSlot = *updates.MaxPatientsPerSlot
	}
	if updates.BreakStart != nil {
		merged.BreakStart = updates.BreakStart
	}
	if updates.BreakEnd != nil {
		merged.BreakEnd = updates.BreakEnd
	}
	if updates.EffectiveUntil != nil {
		merged.EffectiveUntil = updates.EffectiveUntil
	}

	if err := validateSchedule(&merged); err != nil {
		return nil, err
	}

	if updates.StartTime != nil || updates.EndTime != nil || updates.EffectiveUntil != nil {
		others, err := s.repo.FindOverlapping(merged.DoctorID, merged.DayOfWeek, merged.EffectiveFrom, merged.EffectiveUntil)
		if err != nil {
			return nil, err
		}
		for _, other := range others {
			if other.ID == scheduleID {
				continue
			}
			if overlaps(merged.StartTime, merged.EndTime, other.StartTime, other.EndTime) {
				return nil, types.NewConflictError(types.ErrCodeScheduleOverlap,
					"an active schedule already covers this weekday and time window")
			}
		}
	}

	updated, err := s.repo.Update(scheduleID, updates)
	if err != nil {
		return nil, err
	}

	s.logger.Audit(auth.UserID, "schedule.update", scheduleID, true, nil)
	return updated, nil
}

// DeactivateSchedule marks the schedule inactive, keeping it for history
func (s *ScheduleService) DeactivateSchedule(scheduleID string, auth *types.AuthContext) error {
	if !auth.HasPermission(types.PermScheduleWrite) {
		return types.NewForbiddenError(types.ErrCodeForbidden, "schedule:write permission required")
	}

	if err := s.repo.Deactivate(scheduleID); err != nil {
		return err
	}

	s.logger.Audit(auth.UserID, "schedule.deactivate", scheduleID, true, nil)
	return nil
}

// DeleteSchedule removes the schedule entirely
func (s *ScheduleService) DeleteSchedule(scheduleID string, auth *types.AuthContext) error {
	if !auth.HasPermission(types.PermScheduleWrite) {
		return types.NewForbiddenError(types.ErrCodeForbidden, "schedule:write permission required")
	}

	if err := s.repo.Delete(scheduleID); err != nil {
		return err
	}

	s.logger.Audit(auth.UserID, "schedule.delete", scheduleID, true, nil)
	return nil
}

func validateSchedule(schedule *types.DoctorSchedule) error {
	if schedule.DoctorID == "" {
		return types.NewValidationError(types.ErrCodeInvalidInput, "doctor_id is required")
	}
	if schedule.DayOfWeek < 0 || schedule.DayOfWeek > 6 {
		return types.NewValidationError(types.ErrCodeInvalidInput, "day_of_week must be between 0 and 6")
	}
	if schedule.StartTime == "" || schedule.EndTime == "" {
		return types.NewValidationError(types.ErrCodeInvalidInput, "start_time and end_time are required")
	}
	if !schedule.StartTime.Before(schedule.EndTime) {
		return types.NewValidationError(types.ErrCodeInvalidInput, "start_time must be before end_time")
	}
	if schedule.SlotDurationMinutes < 10 || schedule.SlotDurationMinutes > 120 {
		return types.NewValidationError(types.ErrCodeInvalidInput, "slot_duration_minutes must be between 10 and 120")
	}
	if schedule.MaxPatientsPerSlot <= 0 {
		return types.NewValidationError(types.ErrCodeInvalidInput, "max_patients_per_slot must be positive")
	}
	if (schedule.BreakStart == nil) != (schedule.BreakEnd == nil) {
		return types.NewValidationError(types.ErrCodeInvalidInput, "break_start and break_end must be set together")
	}
	if schedule.BreakStart != nil {
		if !schedule.BreakStart.Before(*schedule.BreakEnd) {
			return types.NewValidationError(types.ErrCodeInvalidInput, "break_start must be before break_end")
		}
		if schedule.BreakStart.Before(schedule.StartTime) || schedule.EndTime.Before(*schedule.BreakEnd) {
			return types.NewValidationError(types.ErrCodeInvalidInput, "break must fall inside the working window")
		}
	}
	if schedule.EffectiveFrom.IsZero() {
		return types.NewValidationError(types.ErrCodeInvalidInput, "effective_from is required")
	}
	if schedule.EffectiveUntil != nil && schedule.EffectiveUntil.Before(schedule.EffectiveFrom) {
		return types.NewValidationError(types.ErrCodeInvalidInput, "effective_until must not precede effective_from")
	}
	return nil
}
