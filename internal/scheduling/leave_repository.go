package scheduling

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/medgrid/clinic-scheduling/pkg/database"
	"github.com/medgrid/clinic-scheduling/pkg/interfaces"
	"github.com/medgrid/clinic-scheduling/pkg/logger"
	"github.com/medgrid/clinic-scheduling/pkg/types"
)

const leaveColumns = `id, doctor_id, leave_type, start_date, end_date, start_time, end_time,
		   reason, status, approved_by, approved_at, rejection_reason, created_at, updated_at`

// LeaveRepository implements interfaces.LeaveRepository on PostgreSQL.
type LeaveRepository struct {
	db     *database.DB
	logger *logger.Logger
}

// NewLeaveRepository creates a new leave repository
func NewLeaveRepository(db *database.DB, log *logger.Logger) interfaces.LeaveRepository {
	return &LeaveRepository{db: db, logger: log}
}

// Create inserts a new leave request
func (r *LeaveRepository) Create(leave *types.DoctorLeave) error {
	query := `
		INSERT INTO doctor_leaves (
			id, doctor_id, leave_type, start_date, end_date, start_time, end_time,
			reason, status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := r.db.Exec(query,
		leave.ID,
		leave.DoctorID,
		leave.LeaveType,
		leave.StartDate,
		leave.EndDate,
		leave.StartTime,
		leave.EndTime,
		leave.Reason,
		leave.Status,
		leave.CreatedAt,
		leave.UpdatedAt,
	)

	if err != nil {
		r.logger.WithError(err).Error("Failed to create leave request")
		return fmt.Errorf("failed to create leave request: %w", err)
	}

	r.logger.WithField("leave_id", leave.ID).Info("Created leave request")
	return nil
}

// GetByID retrieves a leave by ID
func (r *LeaveRepository) GetByID(id string) (*types.DoctorLeave, error) {
	query := fmt.Sprintf(`SELECT %s FROM doctor_leaves WHERE id = $1`, leaveColumns)

	leave, err := r.scanLeave(r.db.QueryRow(query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, types.NewNotFoundError(types.ErrCodeNotFound, fmt.Sprintf("leave not found: %s", id))
		}
		r.logger.WithError(err).Error("Failed to get leave")
		return nil, fmt.Errorf("failed to get leave: %w", err)
	}

	return leave, nil
}

// GetByDoctorID retrieves leaves for a doctor, optionally filtered by status
func (r *LeaveRepository) GetByDoctorID(doctorID string, status types.LeaveStatus) ([]*types.DoctorLeave, error) {
	query := fmt.Sprintf(`SELECT %s FROM doctor_leaves WHERE doctor_id = $1`, leaveColumns)
	args := []interface{}{doctorID}

	if status != "" {
		query += ` AND status = $2`
		args = append(args, status)
	}
	query += ` ORDER BY start_date DESC`

	rows, err := r.db.Query(query, args...)
	if err != nil {
		r.logger.WithError(err).Error("Failed to get doctor leaves")
		return nil, fmt.Errorf("failed to get doctor leaves: %w", err)
	}
	defer rows.Close()

	return r.collectLeaves(rows)
}

// ApprovedOverlapping returns approved leaves intersecting [start, end]
func (r *LeaveRepository) ApprovedOverlapping(doctorID string, start, end time.Time) ([]*types.DoctorLeave, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM doctor_leaves
		WHERE doctor_id = $1
		  AND status = $2
		  AND start_date <= $4
		  AND end_date >= $3`, leaveColumns)

	rows, err := r.db.Query(query, doctorID, types.LeaveApproved, start, end)
	if err != nil {
		r.logger.WithError(err).Error("Failed to get overlapping leaves")
		return nil, fmt.Errorf("failed to get overlapping leaves: %w", err)
	}
	defer rows.Close()

	return r.collectLeaves(rows)
}

// ApprovedLeaveOn returns the approved leave covering date, or nil
func (r *LeaveRepository) ApprovedLeaveOn(doctorID string, date time.Time) (*types.DoctorLeave, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM doctor_leaves
		WHERE doctor_id = $1
		  AND status = $2
		  AND start_date <= $3
		  AND end_date >= $3
		LIMIT 1`, leaveColumns)

	leave, err := r.scanLeave(r.db.QueryRow(query, doctorID, types.LeaveApproved, date))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		r.logger.WithError(err).Error("Failed to check leave cover")
		return nil, fmt.Errorf("failed to check leave cover: %w", err)
	}

	return leave, nil
}

// Approve moves a PENDING leave to APPROVED. Returns nil when the leave was
// not pending, so the caller can report the state conflict.
func (r *LeaveRepository) Approve(id, approverID string, at time.Time) (*types.DoctorLeave, error) {
	query := fmt.Sprintf(`
		UPDATE doctor_leaves
		SET status = $1, approved_by = $2, approved_at = $3, updated_at = $3
		WHERE id = $4 AND status = $5
		RETURNING %s`, leaveColumns)

	leave, err := r.scanLeave(r.db.QueryRow(query, types.LeaveApproved, approverID, at, id, types.LeavePending))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		r.logger.WithError(err).Error("Failed to approve leave")
		return nil, fmt.Errorf("failed to approve leave: %w", err)
	}

	r.logger.WithField("leave_id", id).Info("Approved leave request")
	return leave, nil
}

// Reject moves a PENDING leave to REJECTED. Returns nil when not pending.
func (r *LeaveRepository) Reject(id, approverID, reason string, at time.Time) (*types.DoctorLeave, error) {
	query := fmt.Sprintf(`
		UPDATE doctor_leaves
		SET status = $1, approved_by = $2, rejection_reason = $3, updated_at = $4
		WHERE id = $5 AND status = $6
		RETURNING %s`, leaveColumns)

	leave, err := r.scanLeave(r.db.QueryRow(query, types.LeaveRejected, approverID, reason, at, id, types.LeavePending))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		r.logger.WithError(err).Error("Failed to reject leave")
		return nil, fmt.Errorf("failed to reject leave: %w", err)
	}

	r.logger.WithField("leave_id", id).Info("Rejected leave request")
	return leave, nil
}

// Cancel moves a PENDING or APPROVED leave to CANCELLED. Returns nil when the
// leave was already rejected or cancelled.
func (r *LeaveRepository) Cancel(id string) (*types.DoctorLeave, error) {
	query := fmt.Sprintf(`
		UPDATE doctor_leaves
		SET status = $1, updated_at = $2
		WHERE id = $3 AND status IN ($4, $5)
		RETURNING %s`, leaveColumns)

	leave, err := r.scanLeave(r.db.QueryRow(query, types.LeaveCancelled, time.Now().UTC(), id, types.LeavePending, types.LeaveApproved))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		r.logger.WithError(err).Error("Failed to cancel leave")
		return nil, fmt.Errorf("failed to cancel leave: %w", err)
	}

	r.logger.WithField("leave_id", id).Info("Cancelled leave request")
	return leave, nil
}

func (r *LeaveRepository) scanLeave(row rowScanner) (*types.DoctorLeave, error) {
	leave := &types.DoctorLeave{}
	var startTime, endTime types.TimeOfDay
	var reason, rejectionReason sql.NullString
	err := row.Scan(
		&leave.ID,
		&leave.DoctorID,
		&leave.LeaveType,
		&leave.StartDate,
		&leave.EndDate,
		&startTime,
		&endTime,
		&reason,
		&leave.Status,
		&leave.ApprovedBy,
		&leave.ApprovedAt,
		&rejectionReason,
		&leave.CreatedAt,
		&leave.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if startTime != "" {
		leave.StartTime = &startTime
	}
	if endTime != "" {
		leave.EndTime = &endTime
	}
	leave.Reason = reason.String
	leave.RejectionReason = rejectionReason.String
	return leave, nil
}

func (r *LeaveRepository) collectLeaves(rows *sql.Rows) ([]*types.DoctorLeave, error) {
	var leaves []*types.DoctorLeave
	for rows.Next() {
		leave, err := r.scanLeave(rows)
		if err != nil {
			r.logger.WithError(err).Error("Failed to scan leave")
			return nil, fmt.Errorf("failed to scan leave: %w", err)
		}
		leaves = append(leaves, leave)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating leaves: %w", err)
	}

	return leaves, nil
}
