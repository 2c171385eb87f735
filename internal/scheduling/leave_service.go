package scheduling

import (
	"time"

	"github.com/google/uuid"
	"github.com/medgrid/clinic-scheduling/pkg/clock"
	"github.com/medgrid/clinic-scheduling/pkg/interfaces"
	"github.com/medgrid/clinic-scheduling/pkg/logger"
	"github.com/medgrid/clinic-scheduling/pkg/types"
)

// LeaveService implements interfaces.LeaveService.
type LeaveService struct {
	repo   interfaces.LeaveRepository
	clock  clock.Clock
	logger *logger.Logger
}

// NewLeaveService creates a new leave service
func NewLeaveService(repo interfaces.LeaveRepository, clk clock.Clock, log *logger.Logger) interfaces.LeaveService {
	return &LeaveService{repo: repo, clock: clk, logger: log}
}

// RequestLeave validates and files a new leave request as PENDING. Only
// approved leaves block conflicting requests; a doctor may stack pending
// requests for the same dates.
func (s *LeaveService) RequestLeave(leave *types.DoctorLeave, auth *types.AuthContext) (*types.DoctorLeave, error) {
	if !auth.HasPermission(types.PermScheduleWrite) {
		return nil, types.NewForbiddenError(types.ErrCodeForbidden, "schedule:write permission required")
	}

	if err := validateLeave(leave, s.clock.Today()); err != nil {
		return nil, err
	}

	approved, err := s.repo.ApprovedOverlapping(leave.DoctorID, leave.StartDate, leave.EndDate)
	if err != nil {
		return nil, err
	}
	if len(approved) > 0 {
		return nil, types.NewConflictError(types.ErrCodeLeaveOverlap,
			"an approved leave already covers part of this period")
	}

	now := s.clock.Now()
	leave.ID = uuid.New().String()
	leave.Status = types.LeavePending
	leave.CreatedAt = now
	leave.UpdatedAt = now

	if err := s.repo.Create(leave); err != nil {
		return nil, err
	}

	s.logger.Audit(auth.UserID, "leave.request", leave.ID, true, map[string]interface{}{
		"doctor_id":  leave.DoctorID,
		"leave_type": leave.LeaveType,
	})
	return leave, nil
}

// GetLeave retrieves a leave by ID
func (s *LeaveService) GetLeave(leaveID string) (*types.DoctorLeave, error) {
	return s.repo.GetByID(leaveID)
}

// GetDoctorLeaves retrieves a doctor's leaves, optionally filtered by status
func (s *LeaveService) GetDoctorLeaves(doctorID string, status types.LeaveStatus) ([]*types.DoctorLeave, error) {
	return s.repo.GetByDoctorID(doctorID, status)
}

// ApproveLeave moves a PENDING leave to APPROVED. Approval re-checks that no
// other approved leave was granted for the same period in the meantime.
func (s *LeaveService) ApproveLeave(leaveID string, auth *types.AuthContext) (*types.DoctorLeave, error) {
	if !auth.HasPermission(types.PermScheduleWrite) {
		return nil, types.NewForbiddenError(types.ErrCodeForbidden, "schedule:write permission required")
	}

	leave, err := s.repo.GetByID(leaveID)
	if err != nil {
		return nil, err
	}

	approved, err := s.repo.ApprovedOverlapping(leave.DoctorID, leave.StartDate, leave.EndDate)
	if err != nil {
		return nil, err
	}
	if len(approved) > 0 {
		return nil, types.NewConflictError(types.ErrCodeLeaveOverlap,
			"an approved leave already covers part of this period")
	}

	updated, err := s.repo.Approve(leaveID, auth.UserID, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, types.NewConflictError(types.ErrCodeInvalidState, "only pending leaves can be approved")
	}

	s.logger.Audit(auth.UserID, "leave.approve", leaveID, true, nil)
	return updated, nil
}

// RejectLeave moves a PENDING leave to REJECTED. A rejection must carry a
// reason for the doctor.
func (s *LeaveService) RejectLeave(leaveID string, reason string, auth *types.AuthContext) (*types.DoctorLeave, error) {
	if !auth.HasPermission(types.PermScheduleWrite) {
		return nil, types.NewForbiddenError(types.ErrCodeForbidden, "schedule:write permission required")
	}

	if reason == "" {
		return nil, types.NewValidationError(types.ErrCodeInvalidInput, "rejection reason is required")
	}

	updated, err := s.repo.Reject(leaveID, auth.UserID, reason, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if updated == nil {
		if _, err := s.repo.GetByID(leaveID); err != nil {
			return nil, err
		}
		return nil, types.NewConflictError(types.ErrCodeInvalidState, "only pending leaves can be rejected")
	}

	s.logger.Audit(auth.UserID, "leave.reject", leaveID, true, nil)
	return updated, nil
}

// CancelLeave withdraws a PENDING or APPROVED leave
func (s *LeaveService) CancelLeave(leaveID string, auth *types.AuthContext) (*types.DoctorLeave, error) {
	if !auth.HasPermission(types.PermScheduleWrite) {
		return nil, types.NewForbiddenError(types.ErrCodeForbidden, "schedule:write permission required")
	}

	updated, err := s.repo.Cancel(leaveID)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		if _, err := s.repo.GetByID(leaveID); err != nil {
			return nil, err
		}
		return nil, types.NewConflictError(types.ErrCodeInvalidState, "only pending or approved leaves can be cancelled")
	}

	s.logger.Audit(auth.UserID, "leave.cancel", leaveID, true, nil)
	return updated, nil
}

// IsOnLeave reports whether the doctor has an approved leave covering date
func (s *LeaveService) IsOnLeave(doctorID string, date time.Time) (bool, error) {
	leave, err := s.repo.ApprovedLeaveOn(doctorID, date)
	if err != nil {
		return false, err
	}
	return leave != nil, nil
}

func validateLeave(leave *types.DoctorLeave, today time.Time) error {
	if leave.DoctorID == "" {
		return types.NewValidationError(types.ErrCodeInvalidInput, "doctor_id is required")
	}
	if leave.LeaveType == "" {
		return types.NewValidationError(types.ErrCodeInvalidInput, "leave_type is required")
	}
	if leave.StartDate.IsZero() || leave.EndDate.IsZero() {
		return types.NewValidationError(types.ErrCodeInvalidInput, "start_date and end_date are required")
	}
	if leave.EndDate.Before(leave.StartDate) {
		return types.NewValidationError(types.ErrCodeInvalidInput, "end_date must not precede start_date")
	}
	if DateOnly(leave.StartDate).Before(today) {
		return types.NewValidationError(types.ErrCodePastDate, "start_date must not be in the past")
	}
	if (leave.StartTime == nil) != (leave.EndTime == nil) {
		return types.NewValidationError(types.ErrCodeInvalidInput, "start_time and end_time must be set together")
	}
	if leave.IsPartialDay() {
		if !leave.StartDate.Equal(leave.EndDate) {
			return types.NewValidationError(types.ErrCodeInvalidInput, "partial-day leave must cover a single date")
		}
		if !leave.StartTime.Before(*leave.EndTime) {
			return types.NewValidationError(types.ErrCodeInvalidInput, "start_time must be before end_time")
		}
	}
	return nil
}
