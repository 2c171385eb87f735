package scheduling

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/medgrid/clinic-scheduling/pkg/database"
	"github.com/medgrid/clinic-scheduling/pkg/interfaces"
	"github.com/medgrid/clinic-scheduling/pkg/logger"
	"github.com/medgrid/clinic-scheduling/pkg/types"
)

const scheduleColumns = `id, doctor_id, day_of_week, start_time, end_time, slot_duration_minutes,
		   max_patients_per_slot, break_start, break_end, effective_from, effective_until,
		   is_active, created_at, updated_at`

// ScheduleRepository implements interfaces.ScheduleRepository on PostgreSQL.
type ScheduleRepository struct {
	db     *database.DB
	logger *logger.Logger
}

// NewScheduleRepository creates a new schedule repository
func NewScheduleRepository(db *database.DB, log *logger.Logger) interfaces.ScheduleRepository {
	return &ScheduleRepository{db: db, logger: log}
}

// Create inserts a new schedule
func (r *ScheduleRepository) Create(schedule *types.DoctorSchedule) error {
	query := `
		INSERT INTO doctor_schedules (
			id, doctor_id, day_of_week, start_time, end_time, slot_duration_minutes,
			max_patients_per_slot, break_start, break_end, effective_from, effective_until,
			is_active, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err := r.db.Exec(query,
		schedule.ID,
		schedule.DoctorID,
		schedule.DayOfWeek,
		schedule.StartTime,
		schedule.EndTime,
		schedule.SlotDurationMinutes,
		schedule.MaxPatientsPerSlot,
		schedule.BreakStart,
		schedule.BreakEnd,
		schedule.EffectiveFrom,
		schedule.EffectiveUntil,
		schedule.IsActive,
		schedule.CreatedAt,
		schedule.UpdatedAt,
	)

	if err != nil {
		r.logger.WithError(err).Error("Failed to create schedule")
		return fmt.Errorf("failed to create schedule: %w", err)
	}

	r.logger.WithField("schedule_id", schedule.ID).Info("Created doctor schedule")
	return nil
}

// GetByID retrieves a schedule by ID
func (r *ScheduleRepository) GetByID(id string) (*types.DoctorSchedule, error) {
	query := fmt.Sprintf(`SELECT %s FROM doctor_schedules WHERE id = $1`, scheduleColumns)

	schedule, err := r.scanSchedule(r.db.QueryRow(query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, types.NewNotFoundError(types.ErrCodeNotFound, fmt.Sprintf("schedule not found: %s", id))
		}
		r.logger.WithError(err).Error("Failed to get schedule")
		return nil, fmt.Errorf("failed to get schedule: %w", err)
	}

	return schedule, nil
}

// GetByDoctorID retrieves schedules for a doctor
func (r *ScheduleRepository) GetByDoctorID(doctorID string, activeOnly bool) ([]*types.DoctorSchedule, error) {
	query := fmt.Sprintf(`SELECT %s FROM doctor_schedules WHERE doctor_id = $1`, scheduleColumns)
	if activeOnly {
		query += ` AND is_active = TRUE`
	}
	query += ` ORDER BY day_of_week ASC, start_time ASC`

	rows, err := r.db.Query(query, doctorID)
	if err != nil {
		r.logger.WithError(err).Error("Failed to get doctor schedules")
		return nil, fmt.Errorf("failed to get doctor schedules: %w", err)
	}
	defer rows.Close()

	return r.collectSchedules(rows)
}

// GetEffectiveSchedule returns the active schedule covering the given date
func (r *ScheduleRepository) GetEffectiveSchedule(doctorID string, dayOfWeek int, date time.Time) (*types.DoctorSchedule, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM doctor_schedules
		WHERE doctor_id = $1
		  AND day_of_week = $2
		  AND is_active = TRUE
		  AND effective_from <= $3
		  AND (effective_until IS NULL OR effective_until >= $3)
		ORDER BY effective_from DESC
		LIMIT 1`, scheduleColumns)

	schedule, err := r.scanSchedule(r.db.QueryRow(query, doctorID, dayOfWeek, date))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		r.logger.WithError(err).Error("Failed to get effective schedule")
		return nil, fmt.Errorf("failed to get effective schedule: %w", err)
	}

	return schedule, nil
}

// FindOverlapping returns active schedules whose effective windows intersect
// the given range. A nil until means the range is open-ended.
func (r *ScheduleRepository) FindOverlapping(doctorID string, dayOfWeek int, from time.Time, until *time.Time) ([]*types.DoctorSchedule, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM doctor_schedules
		WHERE doctor_id = $1
		  AND day_of_week = $2
		  AND is_active = TRUE
		  AND (effective_until IS NULL OR effective_until >= $3)`, scheduleColumns)

	args := []interface{}{doctorID, dayOfWeek, from}
	if until != nil {
		query += ` AND effective_from <= $4`
		args = append(args, *until)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		r.logger.WithError(err).Error("Failed to find overlapping schedules")
		return nil, fmt.Errorf("failed to find overlapping schedules: %w", err)
	}
	defer rows.Close()

	return r.collectSchedules(rows)
}

// Update applies a partial patch and returns the updated row
func (r *ScheduleRepository) Update(id string, updates *types.ScheduleUpdates) (*types.DoctorSchedule, error) {
	setParts := []string{}
	args := []interface{}{}
	argIndex := 1

	if updates.StartTime != nil {
		setParts = append(setParts, fmt.Sprintf("start_time = $%d", argIndex))
		args = append(args, *updates.StartTime)
		argIndex++
	}

	if updates.EndTime != nil {
		setParts = append(setParts, fmt.Sprintf("end_time = $%d", argIndex))
		args = append(args, *updates.EndTime)
		argIndex++
	}

	if updates.SlotDurationMinutes != nil {
		setParts = append(setParts, fmt.Sprintf("slot_duration_minutes = $%d", argIndex))
		args = append(args, *updates.SlotDurationMinutes)
		argIndex++
	}

	if updates.MaxPatientsPerSlot != nil {
		setParts = append(setParts, fmt.Sprintf("max_patients_per_slot = $%d", argIndex))
		args = append(args, *updates.MaxPatientsPerSlot)
		argIndex++
	}

	if updates.BreakStart != nil {
		setParts = append(setParts, fmt.Sprintf("break_start = $%d", argIndex))
		args = append(args, *updates.BreakStart)
		argIndex++
	}

	if updates.BreakEnd != nil {
		setParts = append(setParts, fmt.Sprintf("break_end = $%d", argIndex))
		args = append(args, *updates.BreakEnd)
		argIndex++
	}

	if updates.EffectiveUntil != nil {
		setParts = append(setParts, fmt.Sprintf("effective_until = $%d", argIndex))
		args = append(args, *updates.EffectiveUntil)
		argIndex++
	}

	if updates.IsActive != nil {
		setParts = append(setParts, fmt.Sprintf("is_active = $%d", argIndex))
		args = append(args, *updates.IsActive)
		argIndex++
	}

	if len(setParts) == 0 {
		return nil, types.NewValidationError(types.ErrCodeInvalidInput, "no updates provided")
	}

	setParts = append(setParts, fmt.Sprintf("updated_at = $%d", argIndex))
	args = append(args, time.Now().UTC())
	argIndex++

	query := fmt.Sprintf("UPDATE doctor_schedules SET %s WHERE id = $%d RETURNING %s",
		strings.Join(setParts, ", "), argIndex, scheduleColumns)
	args = append(args, id)

	schedule, err := r.scanSchedule(r.db.QueryRow(query, args...))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, types.NewNotFoundError(types.ErrCodeNotFound, fmt.Sprintf("schedule not found: %s", id))
		}
		r.logger.WithError(err).Error("Failed to update schedule")
		return nil, fmt.Errorf("failed to update schedule: %w", err)
	}

	r.logger.WithField("schedule_id", id).Info("Updated doctor schedule")
	return schedule, nil
}

// Deactivate marks a schedule inactive without removing history
func (r *ScheduleRepository) Deactivate(id string) error {
	query := `UPDATE doctor_schedules SET is_active = FALSE, updated_at = $1 WHERE id = $2`

	result, err := r.db.Exec(query, time.Now().UTC(), id)
	if err != nil {
		r.logger.WithError(err).Error("Failed to deactivate schedule")
		return fmt.Errorf("failed to deactivate schedule: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return types.NewNotFoundError(types.ErrCodeNotFound, fmt.Sprintf("schedule not found: %s", id))
	}

	r.logger.WithField("schedule_id", id).Info("Deactivated doctor schedule")
	return nil
}

// Delete removes a schedule row
func (r *ScheduleRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM doctor_schedules WHERE id = $1`, id)
	if err != nil {
		r.logger.WithError(err).Error("Failed to delete schedule")
		return fmt.Errorf("failed to delete schedule: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return types.NewNotFoundError(types.ErrCodeNotFound, fmt.Sprintf("schedule not found: %s", id))
	}

	r.logger.WithField("schedule_id", id).Info("Deleted doctor schedule")
	return nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *ScheduleRepository) scanSchedule(row rowScanner) (*types.DoctorSchedule, error) {
	schedule := &types.DoctorSchedule{}
	var breakStart, breakEnd types.TimeOfDay
	err := row.Scan(
		&schedule.ID,
		&schedule.DoctorID,
		&schedule.DayOfWeek,
		&schedule.StartTime,
		&schedule.EndTime,
		&schedule.SlotDurationMinutes,
		&schedule.MaxPatientsPerSlot,
		&breakStart,
		&breakEnd,
		&schedule.EffectiveFrom,
		&schedule.EffectiveUntil,
		&schedule.IsActive,
		&schedule.CreatedAt,
		&schedule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if breakStart != "" {
		schedule.BreakStart = &breakStart
	}
	if breakEnd != "" {
		schedule.BreakEnd = &breakEnd
	}
	return schedule, nil
}

func (r *ScheduleRepository) collectSchedules(rows *sql.Rows) ([]*types.DoctorSchedule, error) {
	var schedules []*types.DoctorSchedule
	for rows.Next() {
		schedule, err := r.scanSchedule(rows)
		if err != nil {
			r.logger.WithError(err).Error("Failed to scan schedule")
			return nil, fmt.Errorf("failed to scan schedule: %w", err)
		}
		schedules = append(schedules, schedule)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating schedules: %w", err)
	}

	return schedules, nil
}
