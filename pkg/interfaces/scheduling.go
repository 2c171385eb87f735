package interfaces

import (
	"time"

	"github.com/medgrid/clinic-scheduling/pkg/types"
)

// ScheduleService manages recurring weekly availability windows.
type ScheduleService interface {
	CreateSchedule(schedule *types.DoctorSchedule, auth *types.AuthContext) (*types.DoctorSchedule, error)
	GetSchedule(scheduleID string) (*types.DoctorSchedule, error)
	GetDoctorSchedules(doctorID string, activeOnly bool) ([]*types.DoctorSchedule, error)
	UpdateSchedule(scheduleID string, updates *types.ScheduleUpdates, auth *types.AuthContext) (*types.DoctorSchedule, error)
	DeactivateSchedule(scheduleID string, auth *types.AuthContext) error
	DeleteSchedule(scheduleID string, auth *types.AuthContext) error
}

// LeaveService manages doctor leave requests and their approval workflow.
type LeaveService interface {
	RequestLeave(leave *types.DoctorLeave, auth *types.AuthContext) (*types.DoctorLeave, error)
	GetLeave(leaveID string) (*types.DoctorLeave, error)
	GetDoctorLeaves(doctorID string, status types.LeaveStatus) ([]*types.DoctorLeave, error)
	ApproveLeave(leaveID string, auth *types.AuthContext) (*types.DoctorLeave, error)
	RejectLeave(leaveID string, reason string, auth *types.AuthContext) (*types.DoctorLeave, error)
	CancelLeave(leaveID string, auth *types.AuthContext) (*types.DoctorLeave, error)
	IsOnLeave(doctorID string, date time.Time) (bool, error)
}

// AppointmentService owns the appointment lifecycle.
type AppointmentService interface {
	CreateAppointment(apt *types.Appointment, auth *types.AuthContext) (*types.Appointment, error)
	GetAppointment(appointmentID string) (*types.Appointment, error)
	GetAppointmentByNumber(number string) (*types.Appointment, error)
	GetAppointments(filters *types.AppointmentFilters) ([]*types.Appointment, int, error)
	GetTodayAppointments(doctorID, departmentID string) ([]*types.Appointment, error)
	GetAvailableSlots(doctorID string, date time.Time) ([]*types.Slot, error)
	UpdateAppointment(appointmentID string, updates *types.AppointmentUpdates, auth *types.AuthContext) (*types.Appointment, error)
	ConfirmAppointment(appointmentID string, auth *types.AuthContext) (*types.Appointment, error)
	CheckInAppointment(appointmentID string, auth *types.AuthContext) (*types.Appointment, *types.QueueEntry, error)
	CancelAppointment(appointmentID, reason string, auth *types.AuthContext) (*types.Appointment, error)
	RescheduleAppointment(appointmentID string, newDate time.Time, newTime types.TimeOfDay, auth *types.AuthContext) (*types.Appointment, error)
	MarkNoShow(appointmentID string, auth *types.AuthContext) (*types.Appointment, error)
}

// QueueService owns the per-doctor daily priority queue.
type QueueService interface {
	AddWalkIn(patientID, doctorID, departmentID string, isEmergency bool, notes string, auth *types.AuthContext) (*types.QueueEntry, error)
	GetDoctorQueue(doctorID string, date time.Time, status types.QueueStatus) ([]*types.QueueEntry, error)
	GetWaitingCount(doctorID string, date time.Time) (int, error)
	CallNext(doctorID string, auth *types.AuthContext) (*types.QueueEntry, error)
	StartConsultation(queueID string, auth *types.AuthContext) (*types.QueueEntry, error)
	CompleteConsultation(queueID string, auth *types.AuthContext) (*types.QueueEntry, error)
	SkipPatient(queueID string, auth *types.AuthContext) (*types.QueueEntry, error)
	MarkLeft(queueID string, auth *types.AuthContext) (*types.QueueEntry, error)
}

// ScheduleRepository persists doctor schedules.
type ScheduleRepository interface {
	Create(schedule *types.DoctorSchedule) error
	GetByID(id string) (*types.DoctorSchedule, error)
	GetByDoctorID(doctorID string, activeOnly bool) ([]*types.DoctorSchedule, error)
	// GetEffectiveSchedule returns the active schedule whose validity window
	// contains date, or nil when none exists.
	GetEffectiveSchedule(doctorID string, dayOfWeek int, date time.Time) (*types.DoctorSchedule, error)
	// FindOverlapping returns active schedules for the doctor and weekday
	// whose effective windows intersect [from, until] (until nil = open).
	FindOverlapping(doctorID string, dayOfWeek int, from time.Time, until *time.Time) ([]*types.DoctorSchedule, error)
	Update(id string, updates *types.ScheduleUpdates) (*types.DoctorSchedule, error)
	Deactivate(id string) error
	Delete(id string) error
}

// LeaveRepository persists doctor leaves.
type LeaveRepository interface {
	Create(leave *types.DoctorLeave) error
	GetByID(id string) (*types.DoctorLeave, error)
	GetByDoctorID(doctorID string, status types.LeaveStatus) ([]*types.DoctorLeave, error)
	// ApprovedOverlapping returns approved leaves intersecting [start, end].
	ApprovedOverlapping(doctorID string, start, end time.Time) ([]*types.DoctorLeave, error)
	// ApprovedLeaveOn returns the approved leave covering date, or nil.
	ApprovedLeaveOn(doctorID string, date time.Time) (*types.DoctorLeave, error)
	// Approve/Reject/Cancel apply the transition conditionally on the current
	// status and return nil when the row was in a different state.
	Approve(id, approverID string, at time.Time) (*types.DoctorLeave, error)
	Reject(id, approverID, reason string, at time.Time) (*types.DoctorLeave, error)
	Cancel(id string) (*types.DoctorLeave, error)
}

// AppointmentRepository persists appointments.
type AppointmentRepository interface {
	// CreateBooked inserts the appointment inside a transaction that holds an
	// advisory lock for the (doctor, date, time) slot. When maxPerSlot > 0 the
	// slot occupancy is re-checked under the lock and ErrSlotFull is returned
	// if the slot is already at capacity. A duplicate appointment number
	// surfaces as ErrDuplicateNumber so callers can retry with a fresh one.
	CreateBooked(apt *types.Appointment, maxPerSlot int) error
	GetByID(id string) (*types.Appointment, error)
	GetByNumber(number string) (*types.Appointment, error)
	List(filters *types.AppointmentFilters) ([]*types.Appointment, error)
	Count(filters *types.AppointmentFilters) (int, error)
	GetToday(doctorID, departmentID string, today time.Time) ([]*types.Appointment, error)
	CountForSlot(doctorID string, date time.Time, slot types.TimeOfDay) (int, error)
	CountOnDate(date time.Time) (int, error)
	NoShowCount(patientID string, since time.Time) (int, error)
	Update(id string, updates *types.AppointmentUpdates) (*types.Appointment, error)
	SetStatus(id string, status types.AppointmentStatus) error
	StampConfirmed(id string) error
	StampCheckIn(id, by string, at time.Time) error
	StampCancel(id, by string, at time.Time, reason string) error
	// LinkReschedule marks old as RESCHEDULED and cross-links the pair in a
	// single transaction.
	LinkReschedule(oldID, newID string) error
}

// QueueRepository persists queue entries.
type QueueRepository interface {
	// Create inserts the entry; a (doctor, date, queue_number) collision
	// surfaces as ErrDuplicateNumber so callers can retry with a fresh number.
	Create(entry *types.QueueEntry) error
	GetByID(id string) (*types.QueueEntry, error)
	NextQueueNumber(doctorID string, date time.Time) (int, error)
	GetDoctorQueue(doctorID string, date time.Time, status types.QueueStatus) ([]*types.QueueEntry, error)
	WaitingCount(doctorID string, date time.Time) (int, error)
	// CallNext atomically selects the highest-ranked WAITING entry for the
	// doctor on date and moves it to CALLED; nil when the queue is empty.
	CallNext(doctorID string, date time.Time, at time.Time) (*types.QueueEntry, error)
	// UpdateStatus applies the status and stamps called_at / completed_at /
	// actual_wait_time as appropriate.
	UpdateStatus(id string, status types.QueueStatus, at time.Time) (*types.QueueEntry, error)
	// ActiveEntryForAppointment returns the non-terminal entry linked to the
	// appointment, or nil.
	ActiveEntryForAppointment(appointmentID string) (*types.QueueEntry, error)
}
