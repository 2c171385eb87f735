package scheduling

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/medgrid/clinic-scheduling/pkg/database"
	"github.com/medgrid/clinic-scheduling/pkg/interfaces"
	"github.com/medgrid/clinic-scheduling/pkg/logger"
	"github.com/medgrid/clinic-scheduling/pkg/types"
)

// Sentinel errors surfaced by the repositories so services can retry or map
// them to typed errors.
var (
	ErrSlotFull        = errors.New("slot fully booked")
	ErrDuplicateNumber = errors.New("duplicate number")
)

const appointmentColumns = `id, appointment_number, patient_id, doctor_id, department_id,
		   appointment_date, appointment_time, slot_duration, appointment_type, status,
		   is_emergency, priority, reason, symptoms, notes, checked_in_at, checked_in_by,
		   cancelled_at, cancelled_by, cancelled_reason, rescheduled_from, rescheduled_to,
		   confirmation_sent, created_by, created_at, updated_at`

// statuses that hold a slot. Cancelled, rescheduled, and no-show rows release
// their capacity.
const activeStatuses = `('SCHEDULED', 'CONFIRMED', 'CHECKED_IN', 'IN_PROGRESS')`

// AppointmentRepository implements interfaces.AppointmentRepository on
// PostgreSQL.
type AppointmentRepository struct {
	db     *database.DB
	logger *logger.Logger
}

// NewAppointmentRepository creates a new appointment repository
func NewAppointmentRepository(db *database.DB, log *logger.Logger) interfaces.AppointmentRepository {
	return &AppointmentRepository{db: db, logger: log}
}

// CreateBooked inserts the appointment under a per-slot advisory lock. The
// lock serializes concurrent bookings for the same (doctor, date, time) so
// the capacity re-check cannot race. ErrSlotFull means the slot filled up;
// ErrDuplicateNumber means the generated appointment number collided and the
// caller should regenerate and retry.
func (r *AppointmentRepository) CreateBooked(apt *types.Appointment, maxPerSlot int) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin booking transaction: %w", err)
	}
	defer tx.Rollback()

	lockKey := fmt.Sprintf("%s|%s|%s", apt.DoctorID, apt.Date.Format(types.DateOnly), apt.Time)
	if _, err := tx.Exec(`SELECT pg_advisory_xact_lock(hashtext($1))`, lockKey); err != nil {
		return fmt.Errorf("failed to acquire slot lock: %w", err)
	}

	if maxPerSlot > 0 {
		var booked int
		query := `
			SELECT COUNT(*) FROM appointments
			WHERE doctor_id = $1 AND appointment_date = $2 AND appointment_time = $3
			  AND status IN ` + activeStatuses
		if err := tx.QueryRow(query, apt.DoctorID, apt.Date, apt.Time).Scan(&booked); err != nil {
			return fmt.Errorf("failed to count slot occupancy: %w", err)
		}
		if booked >= maxPerSlot {
			return ErrSlotFull
		}
	}

	insert := `
		INSERT INTO appointments (
			id, appointment_number, patient_id, doctor_id, department_id,
			appointment_date, appointment_time, slot_duration, appointment_type, status,
			is_emergency, priority, reason, symptoms, notes, confirmation_sent,
			created_by, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`

	_, err = tx.Exec(insert,
		apt.ID,
		apt.AppointmentNumber,
		apt.PatientID,
		apt.DoctorID,
		apt.DepartmentID,
		apt.Date,
		apt.Time,
		apt.SlotDuration,
		apt.Type,
		apt.Status,
		apt.IsEmergency,
		apt.Priority,
		apt.Reason,
		apt.Symptoms,
		apt.Notes,
		apt.ConfirmationSent,
		apt.CreatedBy,
		apt.CreatedAt,
		apt.UpdatedAt,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return ErrDuplicateNumber
		}
		r.logger.WithError(err).Error("Failed to insert appointment")
		return fmt.Errorf("failed to insert appointment: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit booking: %w", err)
	}

	r.logger.WithFields(map[string]interface{}{
		"appointment_id":     apt.ID,
		"appointment_number": apt.AppointmentNumber,
	}).Info("Created appointment")
	return nil
}

// GetByID retrieves an appointment by ID
func (r *AppointmentRepository) GetByID(id string) (*types.Appointment, error) {
	query := fmt.Sprintf(`SELECT %s FROM appointments WHERE id = $1`, appointmentColumns)

	apt, err := r.scanAppointment(r.db.QueryRow(query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, types.NewNotFoundError(types.ErrCodeNotFound, fmt.Sprintf("appointment not found: %s", id))
		}
		r.logger.WithError(err).Error("Failed to get appointment")
		return nil, fmt.Errorf("failed to get appointment: %w", err)
	}

	return apt, nil
}

// GetByNumber retrieves an appointment by its human-readable number
func (r *AppointmentRepository) GetByNumber(number string) (*types.Appointment, error) {
	query := fmt.Sprintf(`SELECT %s FROM appointments WHERE appointment_number = $1`, appointmentColumns)

	apt, err := r.scanAppointment(r.db.QueryRow(query, number))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, types.NewNotFoundError(types.ErrCodeNotFound, fmt.Sprintf("appointment not found: %s", number))
		}
		r.logger.WithError(err).Error("Failed to get appointment by number")
		return nil, fmt.Errorf("failed to get appointment by number: %w", err)
	}

	return apt, nil
}

// filterClause builds the WHERE tail shared by List and Count
func (r *AppointmentRepository) filterClause(filters *types.AppointmentFilters) (string, []interface{}) {
	clause := " WHERE 1=1"
	args := []interface{}{}
	argIndex := 1

	if filters.PatientID != "" {
		clause += fmt.Sprintf(" AND patient_id = $%d", argIndex)
		args = append(args, filters.PatientID)
		argIndex++
	}

	if filters.DoctorID != "" {
		clause += fmt.Sprintf(" AND doctor_id = $%d", argIndex)
		args = append(args, filters.DoctorID)
		argIndex++
	}

	if filters.DepartmentID != "" {
		clause += fmt.Sprintf(" AND department_id = $%d", argIndex)
		args = append(args, filters.DepartmentID)
		argIndex++
	}

	if filters.Status != "" {
		clause += fmt.Sprintf(" AND status = $%d", argIndex)
		args = append(args, filters.Status)
		argIndex++
	}

	if filters.Type != "" {
		clause += fmt.Sprintf(" AND appointment_type = $%d", argIndex)
		args = append(args, filters.Type)
		argIndex++
	}

	if !filters.DateFrom.IsZero() {
		clause += fmt.Sprintf(" AND appointment_date >= $%d", argIndex)
		args = append(args, filters.DateFrom)
		argIndex++
	}

	if !filters.DateTo.IsZero() {
		clause += fmt.Sprintf(" AND appointment_date <= $%d", argIndex)
		args = append(args, filters.DateTo)
		argIndex++
	}

	if filters.IsEmergency != nil {
		clause += fmt.Sprintf(" AND is_emergency = $%d", argIndex)
		args = append(args, *filters.IsEmergency)
		argIndex++
	}

	return clause, args
}

// List retrieves appointments matching the filters
func (r *AppointmentRepository) List(filters *types.AppointmentFilters) ([]*types.Appointment, error) {
	clause, args := r.filterClause(filters)
	argIndex := len(args) + 1

	query := fmt.Sprintf(`SELECT %s FROM appointments%s ORDER BY appointment_date ASC, appointment_time ASC`,
		appointmentColumns, clause)

	if filters.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIndex)
		args = append(args, filters.Limit)
		argIndex++
	}

	if filters.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIndex)
		args = append(args, filters.Offset)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		r.logger.WithError(err).Error("Failed to list appointments")
		return nil, fmt.Errorf("failed to list appointments: %w", err)
	}
	defer rows.Close()

	return r.collectAppointments(rows)
}

// Count returns the total number of appointments matching the filters
func (r *AppointmentRepository) Count(filters *types.AppointmentFilters) (int, error) {
	clause, args := r.filterClause(filters)
	query := `SELECT COUNT(*) FROM appointments` + clause

	var count int
	if err := r.db.QueryRow(query, args...).Scan(&count); err != nil {
		r.logger.WithError(err).Error("Failed to count appointments")
		return 0, fmt.Errorf("failed to count appointments: %w", err)
	}

	return count, nil
}

// GetToday retrieves today's appointments, optionally scoped by doctor and department
func (r *AppointmentRepository) GetToday(doctorID, departmentID string, today time.Time) ([]*types.Appointment, error) {
	query := fmt.Sprintf(`SELECT %s FROM appointments WHERE appointment_date = $1`, appointmentColumns)
	args := []interface{}{today}
	argIndex := 2

	if doctorID != "" {
		query += fmt.Sprintf(" AND doctor_id = $%d", argIndex)
		args = append(args, doctorID)
		argIndex++
	}

	if departmentID != "" {
		query += fmt.Sprintf(" AND department_id = $%d", argIndex)
		args = append(args, departmentID)
	}

	query += " ORDER BY appointment_time ASC"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		r.logger.WithError(err).Error("Failed to get today's appointments")
		return nil, fmt.Errorf("failed to get today's appointments: %w", err)
	}
	defer rows.Close()

	return r.collectAppointments(rows)
}

// CountForSlot counts active appointments occupying a slot
func (r *AppointmentRepository) CountForSlot(doctorID string, date time.Time, slot types.TimeOfDay) (int, error) {
	query := `
		SELECT COUNT(*) FROM appointments
		WHERE doctor_id = $1 AND appointment_date = $2 AND appointment_time = $3
		  AND status IN ` + activeStatuses

	var count int
	if err := r.db.QueryRow(query, doctorID, date, slot).Scan(&count); err != nil {
		r.logger.WithError(err).Error("Failed to count slot occupancy")
		return 0, fmt.Errorf("failed to count slot occupancy: %w", err)
	}

	return count, nil
}

// CountOnDate counts all appointments created for a date, used for
// appointment number sequencing
func (r *AppointmentRepository) CountOnDate(date time.Time) (int, error) {
	var count int
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM appointments WHERE appointment_date = $1`, date).Scan(&count); err != nil {
		r.logger.WithError(err).Error("Failed to count appointments on date")
		return 0, fmt.Errorf("failed to count appointments on date: %w", err)
	}

	return count, nil
}

// NoShowCount counts a patient's no-shows since the given date
func (r *AppointmentRepository) NoShowCount(patientID string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM appointments
		WHERE patient_id = $1 AND status = $2 AND appointment_date >= $3`

	var count int
	if err := r.db.QueryRow(query, patientID, types.AppointmentNoShow, since).Scan(&count); err != nil {
		r.logger.WithError(err).Error("Failed to count no-shows")
		return 0, fmt.Errorf("failed to count no-shows: %w", err)
	}

	return count, nil
}

// Update applies a partial patch and returns the updated row
func (r *AppointmentRepository) Update(id string, updates *types.AppointmentUpdates) (*types.Appointment, error) {
	setParts := []string{}
	args := []interface{}{}
	argIndex := 1

	if updates.DepartmentID != nil {
		setParts = append(setParts, fmt.Sprintf("department_id = $%d", argIndex))
		args = append(args, *updates.DepartmentID)
		argIndex++
	}

	if updates.Type != nil {
		setParts = append(setParts, fmt.Sprintf("appointment_type = $%d", argIndex))
		args = append(args, *updates.Type)
		argIndex++
	}

	if updates.Priority != nil {
		setParts = append(setParts, fmt.Sprintf("priority = $%d", argIndex))
		args = append(args, *updates.Priority)
		argIndex++
	}

	if updates.Reason != nil {
		setParts = append(setParts, fmt.Sprintf("reason = $%d", argIndex))
		args = append(args, *updates.Reason)
		argIndex++
	}

	if updates.Symptoms != nil {
		setParts = append(setParts, fmt.Sprintf("symptoms = $%d", argIndex))
		args = append(args, *updates.Symptoms)
		argIndex++
	}

	if updates.Notes != nil {
		setParts = append(setParts, fmt.Sprintf("notes = $%d", argIndex))
		args = append(args, *updates.Notes)
		argIndex++
	}

	if len(setParts) == 0 {
		return nil, types.NewValidationError(types.ErrCodeInvalidInput, "no updates provided")
	}

	setParts = append(setParts, fmt.Sprintf("updated_at = $%d", argIndex))
	args = append(args, time.Now().UTC())
	argIndex++

	query := fmt.Sprintf("UPDATE appointments SET %s WHERE id = $%d RETURNING %s",
		strings.Join(setParts, ", "), argIndex, appointmentColumns)
	args = append(args, id)

	apt, err := r.scanAppointment(r.db.QueryRow(query, args...))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, types.NewNotFoundError(types.ErrCodeNotFound, fmt.Sprintf("appointment not found: %s", id))
		}
		r.logger.WithError(err).Error("Failed to update appointment")
		return nil, fmt.Errorf("failed to update appointment: %w", err)
	}

	r.logger.WithField("appointment_id", id).Info("Updated appointment")
	return apt, nil
}

// SetStatus updates only the status column
func (r *AppointmentRepository) SetStatus(id string, status types.AppointmentStatus) error {
	result, err := r.db.Exec(`UPDATE appointments SET status = $1, updated_at = $2 WHERE id = $3`,
		status, time.Now().UTC(), id)
	if err != nil {
		r.logger.WithError(err).Error("Failed to set appointment status")
		return fmt.Errorf("failed to set appointment status: %w", err)
	}

	return r.requireRow(result, id)
}

// StampConfirmed moves the appointment to CONFIRMED and records that the
// confirmation went out
func (r *AppointmentRepository) StampConfirmed(id string) error {
	query := `
		UPDATE appointments
		SET status = $1, confirmation_sent = TRUE, updated_at = $2
		WHERE id = $3`

	result, err := r.db.Exec(query, types.AppointmentConfirmed, time.Now().UTC(), id)
	if err != nil {
		r.logger.WithError(err).Error("Failed to confirm appointment")
		return fmt.Errorf("failed to confirm appointment: %w", err)
	}

	return r.requireRow(result, id)
}

// StampCheckIn moves the appointment to CHECKED_IN with audit fields
func (r *AppointmentRepository) StampCheckIn(id, by string, at time.Time) error {
	query := `
		UPDATE appointments
		SET status = $1, checked_in_at = $2, checked_in_by = $3, updated_at = $2
		WHERE id = $4`

	result, err := r.db.Exec(query, types.AppointmentCheckedIn, at, by, id)
	if err != nil {
		r.logger.WithError(err).Error("Failed to check in appointment")
		return fmt.Errorf("failed to check in appointment: %w", err)
	}

	return r.requireRow(result, id)
}

// StampCancel moves the appointment to CANCELLED with audit fields
func (r *AppointmentRepository) StampCancel(id, by string, at time.Time, reason string) error {
	query := `
		UPDATE appointments
		SET status = $1, cancelled_at = $2, cancelled_by = $3, cancelled_reason = $4, updated_at = $2
		WHERE id = $5`

	result, err := r.db.Exec(query, types.AppointmentCancelled, at, by, reason, id)
	if err != nil {
		r.logger.WithError(err).Error("Failed to cancel appointment")
		return fmt.Errorf("failed to cancel appointment: %w", err)
	}

	return r.requireRow(result, id)
}

// LinkReschedule marks the old appointment RESCHEDULED and cross-links the
// pair atomically
func (r *AppointmentRepository) LinkReschedule(oldID, newID string) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin reschedule transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()

	if _, err := tx.Exec(
		`UPDATE appointments SET status = $1, rescheduled_to = $2, updated_at = $3 WHERE id = $4`,
		types.AppointmentRescheduled, newID, now, oldID,
	); err != nil {
		return fmt.Errorf("failed to mark appointment rescheduled: %w", err)
	}

	if _, err := tx.Exec(
		`UPDATE appointments SET rescheduled_from = $1, updated_at = $2 WHERE id = $3`,
		oldID, now, newID,
	); err != nil {
		return fmt.Errorf("failed to link rescheduled appointment: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit reschedule link: %w", err)
	}

	r.logger.WithFields(map[string]interface{}{
		"old_appointment": oldID,
		"new_appointment": newID,
	}).Info("Linked rescheduled appointments")
	return nil
}

func (r *AppointmentRepository) requireRow(result sql.Result, id string) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return types.NewNotFoundError(types.ErrCodeNotFound, fmt.Sprintf("appointment not found: %s", id))
	}
	return nil
}

func (r *AppointmentRepository) scanAppointment(row rowScanner) (*types.Appointment, error) {
	apt := &types.Appointment{}
	var reason, symptoms, notes, cancelledReason sql.NullString
	err := row.Scan(
		&apt.ID,
		&apt.AppointmentNumber,
		&apt.PatientID,
		&apt.DoctorID,
		&apt.DepartmentID,
		&apt.Date,
		&apt.Time,
		&apt.SlotDuration,
		&apt.Type,
		&apt.Status,
		&apt.IsEmergency,
		&apt.Priority,
		&reason,
		&symptoms,
		&notes,
		&apt.CheckedInAt,
		&apt.CheckedInBy,
		&apt.CancelledAt,
		&apt.CancelledBy,
		&cancelledReason,
		&apt.RescheduledFrom,
		&apt.RescheduledTo,
		&apt.ConfirmationSent,
		&apt.CreatedBy,
		&apt.CreatedAt,
		&apt.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	apt.Reason = reason.String
	apt.Symptoms = symptoms.String
	apt.Notes = notes.String
	apt.CancelledReason = cancelledReason.String
	return apt, nil
}

func (r *AppointmentRepository) collectAppointments(rows *sql.Rows) ([]*types.Appointment, error) {
	var appointments []*types.Appointment
	for rows.Next() {
		apt, err := r.scanAppointment(rows)
		if err != nil {
			r.logger.WithError(err).Error("Failed to scan appointment")
			return nil, fmt.Errorf("failed to scan appointment: %w", err)
		}
		appointments = append(appointments, apt)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating appointments: %w", err)
	}

	return appointments, nil
}
