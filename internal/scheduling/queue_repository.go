package scheduling

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/medgrid/clinic-scheduling/pkg/database"
	"github.com/medgrid/clinic-scheduling/pkg/interfaces"
	"github.com/medgrid/clinic-scheduling/pkg/logger"
	"github.com/medgrid/clinic-scheduling/pkg/types"
)

const queueColumns = `id, appointment_id, patient_id, doctor_id, department_id, queue_number,
		   queue_date, queue_type, status, priority, is_emergency, checked_in_at, called_at,
		   completed_at, estimated_wait_time, actual_wait_time, notes, created_at, updated_at`

// queueOrdering ranks entries: emergencies first, then priority, then arrival
// order. The queue number breaks ties because it is assigned sequentially.
const queueOrdering = ` ORDER BY is_emergency DESC, priority ASC, queue_number ASC`

// QueueRepository implements interfaces.QueueRepository on PostgreSQL.
type QueueRepository struct {
	db     *database.DB
	logger *logger.Logger
}

// NewQueueRepository creates a new queue repository
func NewQueueRepository(db *database.DB, log *logger.Logger) interfaces.QueueRepository {
	return &QueueRepository{db: db, logger: log}
}

// Create inserts a queue entry. A queue number collision for the same doctor
// and date surfaces as ErrDuplicateNumber so the caller can renumber and
// retry.
func (r *QueueRepository) Create(entry *types.QueueEntry) error {
	query := `
		INSERT INTO queues (
			id, appointment_id, patient_id, doctor_id, department_id, queue_number,
			queue_date, queue_type, status, priority, is_emergency, checked_in_at,
			estimated_wait_time, notes, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

	_, err := r.db.Exec(query,
		entry.ID,
		entry.AppointmentID,
		entry.PatientID,
		entry.DoctorID,
		entry.DepartmentID,
		entry.QueueNumber,
		entry.QueueDate,
		entry.QueueType,
		entry.Status,
		entry.Priority,
		entry.IsEmergency,
		entry.CheckedInAt,
		entry.EstimatedWaitTime,
		entry.Notes,
		entry.CreatedAt,
		entry.UpdatedAt,
	)

	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return ErrDuplicateNumber
		}
		r.logger.WithError(err).Error("Failed to create queue entry")
		return fmt.Errorf("failed to create queue entry: %w", err)
	}

	r.logger.WithFields(map[string]interface{}{
		"queue_id":     entry.ID,
		"queue_number": entry.QueueNumber,
	}).Info("Created queue entry")
	return nil
}

// GetByID retrieves a queue entry by ID
func (r *QueueRepository) GetByID(id string) (*types.QueueEntry, error) {
	query := fmt.Sprintf(`SELECT %s FROM queues WHERE id = $1`, queueColumns)

	entry, err := r.scanEntry(r.db.QueryRow(query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, types.NewNotFoundError(types.ErrCodeNotFound, fmt.Sprintf("queue entry not found: %s", id))
		}
		r.logger.WithError(err).Error("Failed to get queue entry")
		return nil, fmt.Errorf("failed to get queue entry: %w", err)
	}

	return entry, nil
}

// NextQueueNumber returns max(queue_number)+1 for the doctor's day
func (r *QueueRepository) NextQueueNumber(doctorID string, date time.Time) (int, error) {
	query := `SELECT COALESCE(MAX(queue_number), 0) + 1 FROM queues WHERE doctor_id = $1 AND queue_date = $2`

	var next int
	if err := r.db.QueryRow(query, doctorID, date).Scan(&next); err != nil {
		r.logger.WithError(err).Error("Failed to get next queue number")
		return 0, fmt.Errorf("failed to get next queue number: %w", err)
	}

	return next, nil
}

// GetDoctorQueue retrieves a doctor's queue for a date in serving order
func (r *QueueRepository) GetDoctorQueue(doctorID string, date time.Time, status types.QueueStatus) ([]*types.QueueEntry, error) {
	query := fmt.Sprintf(`SELECT %s FROM queues WHERE doctor_id = $1 AND queue_date = $2`, queueColumns)
	args := []interface{}{doctorID, date}

	if status != "" {
		query += ` AND status = $3`
		args = append(args, status)
	}
	query += queueOrdering

	rows, err := r.db.Query(query, args...)
	if err != nil {
		r.logger.WithError(err).Error("Failed to get doctor queue")
		return nil, fmt.Errorf("failed to get doctor queue: %w", err)
	}
	defer rows.Close()

	return r.collectEntries(rows)
}

// WaitingCount counts WAITING entries for the doctor's day
func (r *QueueRepository) WaitingCount(doctorID string, date time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM queues WHERE doctor_id = $1 AND queue_date = $2 AND status = $3`

	var count int
	if err := r.db.QueryRow(query, doctorID, date, types.QueueWaiting).Scan(&count); err != nil {
		r.logger.WithError(err).Error("Failed to count waiting entries")
		return 0, fmt.Errorf("failed to count waiting entries: %w", err)
	}

	return count, nil
}

// CallNext atomically promotes the highest-ranked WAITING entry to CALLED.
// FOR UPDATE SKIP LOCKED keeps two concurrent calls from picking the same
// patient. Returns nil when the queue is empty.
func (r *QueueRepository) CallNext(doctorID string, date time.Time, at time.Time) (*types.QueueEntry, error) {
	query := fmt.Sprintf(`
		UPDATE queues
		SET status = $1, called_at = $2, updated_at = $2
		WHERE id = (
			SELECT id FROM queues
			WHERE doctor_id = $3 AND queue_date = $4 AND status = $5
			%s
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING %s`, queueOrdering, queueColumns)

	entry, err := r.scanEntry(r.db.QueryRow(query, types.QueueCalled, at, doctorID, date, types.QueueWaiting))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		r.logger.WithError(err).Error("Failed to call next patient")
		return nil, fmt.Errorf("failed to call next patient: %w", err)
	}

	r.logger.WithFields(map[string]interface{}{
		"queue_id":     entry.ID,
		"queue_number": entry.QueueNumber,
	}).Info("Called next patient")
	return entry, nil
}

// UpdateStatus applies the status and stamps the matching timestamp column.
// The actual wait is settled once, when the consultation completes.
func (r *QueueRepository) UpdateStatus(id string, status types.QueueStatus, at time.Time) (*types.QueueEntry, error) {
	set := `status = $1, updated_at = $2`
	switch status {
	case types.QueueCalled:
		set += `, called_at = $2`
	case types.QueueCompleted:
		set += `, completed_at = $2, actual_wait_time = CAST(EXTRACT(EPOCH FROM ($2 - checked_in_at)) / 60 AS INTEGER)`
	}

	query := fmt.Sprintf(`UPDATE queues SET %s WHERE id = $3 RETURNING %s`, set, queueColumns)

	entry, err := r.scanEntry(r.db.QueryRow(query, status, at, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, types.NewNotFoundError(types.ErrCodeNotFound, fmt.Sprintf("queue entry not found: %s", id))
		}
		r.logger.WithError(err).Error("Failed to update queue status")
		return nil, fmt.Errorf("failed to update queue status: %w", err)
	}

	return entry, nil
}

// ActiveEntryForAppointment returns the live entry linked to the appointment
func (r *QueueRepository) ActiveEntryForAppointment(appointmentID string) (*types.QueueEntry, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM queues
		WHERE appointment_id = $1
		  AND status IN ($2, $3, $4)
		LIMIT 1`, queueColumns)

	entry, err := r.scanEntry(r.db.QueryRow(query, appointmentID,
		types.QueueWaiting, types.QueueCalled, types.QueueInConsultation))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		r.logger.WithError(err).Error("Failed to get active queue entry")
		return nil, fmt.Errorf("failed to get active queue entry: %w", err)
	}

	return entry, nil
}

func (r *QueueRepository) scanEntry(row rowScanner) (*types.QueueEntry, error) {
	entry := &types.QueueEntry{}
	var notes sql.NullString
	err := row.Scan(
		&entry.ID,
		&entry.AppointmentID,
		&entry.PatientID,
		&entry.DoctorID,
		&entry.DepartmentID,
		&entry.QueueNumber,
		&entry.QueueDate,
		&entry.QueueType,
		&entry.Status,
		&entry.Priority,
		&entry.IsEmergency,
		&entry.CheckedInAt,
		&entry.CalledAt,
		&entry.CompletedAt,
		&entry.EstimatedWaitTime,
		&entry.ActualWaitTime,
		&notes,
		&entry.CreatedAt,
		&entry.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	entry.Notes = notes.String
	return entry, nil
}

func (r *QueueRepository) collectEntries(rows *sql.Rows) ([]*types.QueueEntry, error) {
	var entries []*types.QueueEntry
	for rows.Next() {
		entry, err := r.scanEntry(rows)
		if err != nil {
			r.logger.WithError(err).Error("Failed to scan queue entry")
			return nil, fmt.Errorf("failed to scan queue entry: %w", err)
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating queue entries: %w", err)
	}

	return entries, nil
}
