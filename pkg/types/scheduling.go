package types

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// TimeOfDay is a wall-clock time with minute precision, stored as "HH:MM".
// It maps to a PostgreSQL TIME column and is used for schedule boundaries
// and appointment slot times so that slot matching is exact.
type TimeOfDay string

// ParseTimeOfDay parses "HH:MM" (seconds are accepted and dropped).
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return "", fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return "", fmt.Errorf("invalid time of day %q", s)
	}
	return TimeOfDay(fmt.Sprintf("%02d:%02d", h, m)), nil
}

// MinutesOfDay converts a minute count since midnight into a TimeOfDay.
func MinutesOfDay(minutes int) TimeOfDay {
	return TimeOfDay(fmt.Sprintf("%02d:%02d", minutes/60, minutes%60))
}

// Minutes returns minutes since midnight. Zero for a malformed value.
func (t TimeOfDay) Minutes() int {
	var h, m int
	if _, err := fmt.Sscanf(string(t), "%d:%d", &h, &m); err != nil {
		return 0
	}
	return h*60 + m
}

// Add returns the time of day the given number of minutes later.
func (t TimeOfDay) Add(minutes int) TimeOfDay {
	return MinutesOfDay(t.Minutes() + minutes)
}

// Before reports whether t is strictly earlier than other.
func (t TimeOfDay) Before(other TimeOfDay) bool {
	return t.Minutes() < other.Minutes()
}

func (t TimeOfDay) String() string { return string(t) }

// Value implements driver.Valuer so TimeOfDay binds to TIME columns.
func (t TimeOfDay) Value() (driver.Value, error) {
	return string(t) + ":00", nil
}

// Scan implements sql.Scanner for TIME columns.
func (t *TimeOfDay) Scan(src interface{}) error {
	switch v := src.(type) {
	case time.Time:
		*t = TimeOfDay(v.Format("15:04"))
		return nil
	case []byte:
		parsed, err := ParseTimeOfDay(string(v))
		if err != nil {
			return err
		}
		*t = parsed
		return nil
	case string:
		parsed, err := ParseTimeOfDay(v)
		if err != nil {
			return err
		}
		*t = parsed
		return nil
	case nil:
		*t = ""
		return nil
	default:
		return fmt.Errorf("cannot scan %T into TimeOfDay", src)
	}
}

// DateOnly is the wire and storage format for calendar dates.
const DateOnly = "2006-01-02"

// AppointmentStatus represents appointment lifecycle states
type AppointmentStatus string

const (
	AppointmentScheduled   AppointmentStatus = "SCHEDULED"
	AppointmentConfirmed   AppointmentStatus = "CONFIRMED"
	AppointmentCheckedIn   AppointmentStatus = "CHECKED_IN"
	AppointmentInProgress  AppointmentStatus = "IN_PROGRESS"
	AppointmentCompleted   AppointmentStatus = "COMPLETED"
	AppointmentCancelled   AppointmentStatus = "CANCELLED"
	AppointmentNoShow      AppointmentStatus = "NO_SHOW"
	AppointmentRescheduled AppointmentStatus = "RESCHEDULED"
)

// appointmentTransitions is the closed transition table for appointments.
// Anything absent here is rejected with a conflict error.
var appointmentTransitions = map[AppointmentStatus][]AppointmentStatus{
	AppointmentScheduled:  {AppointmentConfirmed, AppointmentCheckedIn, AppointmentCancelled, AppointmentRescheduled, AppointmentNoShow},
	AppointmentConfirmed:  {AppointmentCheckedIn, AppointmentCancelled, AppointmentRescheduled, AppointmentNoShow},
	AppointmentCheckedIn:  {AppointmentInProgress, AppointmentCancelled, AppointmentRescheduled},
	AppointmentInProgress: {AppointmentCompleted},
}

// CanTransitionTo reports whether the status change is allowed.
func (s AppointmentStatus) CanTransitionTo(next AppointmentStatus) bool {
	for _, allowed := range appointmentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions exist from s.
func (s AppointmentStatus) IsTerminal() bool {
	return len(appointmentTransitions[s]) == 0
}

// AppointmentType represents the kind of visit
type AppointmentType string

const (
	TypeNewConsultation    AppointmentType = "NEW_CONSULTATION"
	TypeFollowUp           AppointmentType = "FOLLOW_UP"
	TypeEmergency          AppointmentType = "EMERGENCY"
	TypeRoutineCheckup     AppointmentType = "ROUTINE_CHECKUP"
	TypeSpecialistReferral AppointmentType = "SPECIALIST_REFERRAL"
	TypeLabVisit           AppointmentType = "LAB_VISIT"
	TypeProcedure          AppointmentType = "PROCEDURE"
	TypeVaccination        AppointmentType = "VACCINATION"
	TypeTelehealth         AppointmentType = "TELEHEALTH"
)

// LeaveType represents the category of a doctor leave
type LeaveType string

const (
	LeaveAnnual     LeaveType = "ANNUAL"
	LeaveSick       LeaveType = "SICK"
	LeaveEmergency  LeaveType = "EMERGENCY"
	LeaveConference LeaveType = "CONFERENCE"
	LeaveTraining   LeaveType = "TRAINING"
	LeavePersonal   LeaveType = "PERSONAL"
	LeaveOther      LeaveType = "OTHER"
)

// LeaveStatus represents the approval state of a leave request
type LeaveStatus string

const (
	LeavePending   LeaveStatus = "PENDING"
	LeaveApproved  LeaveStatus = "APPROVED"
	LeaveRejected  LeaveStatus = "REJECTED"
	LeaveCancelled LeaveStatus = "CANCELLED"
)

// QueueType distinguishes how a patient entered the queue
type QueueType string

const (
	QueueWalkInType    QueueType = "WALK_IN"
	QueueScheduledType QueueType = "SCHEDULED"
	QueueEmergencyType QueueType = "EMERGENCY"
)

// QueueStatus represents queue entry states
type QueueStatus string

const (
	QueueWaiting        QueueStatus = "WAITING"
	QueueCalled         QueueStatus = "CALLED"
	QueueInConsultation QueueStatus = "IN_CONSULTATION"
	QueueCompleted      QueueStatus = "COMPLETED"
	QueueLeft           QueueStatus = "LEFT"
	QueueSkipped        QueueStatus = "SKIPPED"
)

var queueTransitions = map[QueueStatus][]QueueStatus{
	QueueWaiting:        {QueueCalled, QueueSkipped, QueueLeft},
	QueueCalled:         {QueueInConsultation, QueueSkipped, QueueLeft},
	QueueInConsultation: {QueueCompleted},
}

// CanTransitionTo reports whether the queue status change is allowed.
func (s QueueStatus) CanTransitionTo(next QueueStatus) bool {
	for _, allowed := range queueTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions exist from s.
func (s QueueStatus) IsTerminal() bool {
	return len(queueTransitions[s]) == 0
}

// Priority bounds. 1 is the highest priority, 5 the lowest; emergencies are
// always forced to 1.
const (
	PriorityEmergency = 1
	PriorityDefault   = 3
	PriorityLowest    = 5
)

// DoctorSchedule is a recurring weekly availability window for a doctor.
type DoctorSchedule struct {
	ID                  string     `json:"id" db:"id"`
	DoctorID            string     `json:"doctor_id" db:"doctor_id"`
	DayOfWeek           int        `json:"day_of_week" db:"day_of_week"`
	StartTime           TimeOfDay  `json:"start_time" db:"start_time"`
	EndTime             TimeOfDay  `json:"end_time" db:"end_time"`
	SlotDurationMinutes int        `json:"slot_duration_minutes" db:"slot_duration_minutes"`
	MaxPatientsPerSlot  int        `json:"max_patients_per_slot" db:"max_patients_per_slot"`
	BreakStart          *TimeOfDay `json:"break_start,omitempty" db:"break_start"`
	BreakEnd            *TimeOfDay `json:"break_end,omitempty" db:"break_end"`
	EffectiveFrom       time.Time  `json:"effective_from" db:"effective_from"`
	EffectiveUntil      *time.Time `json:"effective_until,omitempty" db:"effective_until"`
	IsActive            bool       `json:"is_active" db:"is_active"`
	CreatedAt           time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at" db:"updated_at"`
}

// ScheduleUpdates is a partial patch; nil fields are left unchanged.
type ScheduleUpdates struct {
	StartTime           *TimeOfDay `json:"start_time,omitempty"`
	EndTime             *TimeOfDay `json:"end_time,omitempty"`
	SlotDurationMinutes *int       `json:"slot_duration_minutes,omitempty"`
	MaxPatientsPerSlot  *int       `json:"max_patients_per_slot,omitempty"`
	BreakStart          *TimeOfDay `json:"break_start,omitempty"`
	BreakEnd            *TimeOfDay `json:"break_end,omitempty"`
	EffectiveUntil      *time.Time `json:"effective_until,omitempty"`
	IsActive            *bool      `json:"is_active,omitempty"`
}

// DoctorLeave is a leave interval with its approval workflow state.
type DoctorLeave struct {
	ID              string      `json:"id" db:"id"`
	DoctorID        string      `json:"doctor_id" db:"doctor_id"`
	LeaveType       LeaveType   `json:"leave_type" db:"leave_type"`
	StartDate       time.Time   `json:"start_date" db:"start_date"`
	EndDate         time.Time   `json:"end_date" db:"end_date"`
	StartTime       *TimeOfDay  `json:"start_time,omitempty" db:"start_time"`
	EndTime         *TimeOfDay  `json:"end_time,omitempty" db:"end_time"`
	Reason          string      `json:"reason,omitempty" db:"reason"`
	Status          LeaveStatus `json:"status" db:"status"`
	ApprovedBy      *string     `json:"approved_by,omitempty" db:"approved_by"`
	ApprovedAt      *time.Time  `json:"approved_at,omitempty" db:"approved_at"`
	RejectionReason string      `json:"rejection_reason,omitempty" db:"rejection_reason"`
	CreatedAt       time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at" db:"updated_at"`
}

// IsPartialDay reports whether the leave carries intra-day time bounds.
func (l *DoctorLeave) IsPartialDay() bool {
	return l.StartTime != nil && l.EndTime != nil
}

// Appointment is a booked visit for a patient with a doctor.
type Appointment struct {
	ID                string            `json:"id" db:"id"`
	AppointmentNumber string            `json:"appointment_number" db:"appointment_number"`
	PatientID         string            `json:"patient_id" db:"patient_id"`
	DoctorID          string            `json:"doctor_id" db:"doctor_id"`
	DepartmentID      *string           `json:"department_id,omitempty" db:"department_id"`
	Date              time.Time         `json:"appointment_date" db:"appointment_date"`
	Time              TimeOfDay         `json:"appointment_time" db:"appointment_time"`
	SlotDuration      int               `json:"slot_duration" db:"slot_duration"`
	Type              AppointmentType   `json:"appointment_type" db:"appointment_type"`
	Status            AppointmentStatus `json:"status" db:"status"`
	IsEmergency       bool              `json:"is_emergency" db:"is_emergency"`
	Priority          int               `json:"priority" db:"priority"`
	Reason            string            `json:"reason,omitempty" db:"reason"`
	Symptoms          string            `json:"symptoms,omitempty" db:"symptoms"`
	Notes             string            `json:"notes,omitempty" db:"notes"`
	CheckedInAt       *time.Time        `json:"checked_in_at,omitempty" db:"checked_in_at"`
	CheckedInBy       *string           `json:"checked_in_by,omitempty" db:"checked_in_by"`
	CancelledAt       *time.Time        `json:"cancelled_at,omitempty" db:"cancelled_at"`
	CancelledBy       *string           `json:"cancelled_by,omitempty" db:"cancelled_by"`
	CancelledReason   string            `json:"cancelled_reason,omitempty" db:"cancelled_reason"`
	RescheduledFrom   *string           `json:"rescheduled_from,omitempty" db:"rescheduled_from"`
	RescheduledTo     *string           `json:"rescheduled_to,omitempty" db:"rescheduled_to"`
	ConfirmationSent  bool              `json:"confirmation_sent" db:"confirmation_sent"`
	CreatedBy         string            `json:"created_by" db:"created_by"`
	CreatedAt         time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at" db:"updated_at"`
}

// AppointmentUpdates is a partial patch; nil fields are left unchanged.
// Status is deliberately absent: status moves only through the lifecycle
// operations so the transition table cannot be bypassed.
type AppointmentUpdates struct {
	DepartmentID *string          `json:"department_id,omitempty"`
	Type         *AppointmentType `json:"appointment_type,omitempty"`
	Priority     *int             `json:"priority,omitempty"`
	Reason       *string          `json:"reason,omitempty"`
	Symptoms     *string          `json:"symptoms,omitempty"`
	Notes        *string          `json:"notes,omitempty"`
}

// AppointmentFilters narrows appointment listings.
type AppointmentFilters struct {
	PatientID    string            `json:"patient_id,omitempty"`
	DoctorID     string            `json:"doctor_id,omitempty"`
	DepartmentID string            `json:"department_id,omitempty"`
	Status       AppointmentStatus `json:"status,omitempty"`
	Type         AppointmentType   `json:"appointment_type,omitempty"`
	DateFrom     time.Time         `json:"date_from,omitempty"`
	DateTo       time.Time         `json:"date_to,omitempty"`
	IsEmergency  *bool             `json:"is_emergency,omitempty"`
	Limit        int               `json:"limit,omitempty"`
	Offset       int               `json:"offset,omitempty"`
}

// QueueEntry is one position in a doctor's daily queue.
type QueueEntry struct {
	ID                string      `json:"id" db:"id"`
	AppointmentID     *string     `json:"appointment_id,omitempty" db:"appointment_id"`
	PatientID         string      `json:"patient_id" db:"patient_id"`
	DoctorID          string      `json:"doctor_id" db:"doctor_id"`
	DepartmentID      *string     `json:"department_id,omitempty" db:"department_id"`
	QueueNumber       int         `json:"queue_number" db:"queue_number"`
	QueueDate         time.Time   `json:"queue_date" db:"queue_date"`
	QueueType         QueueType   `json:"queue_type" db:"queue_type"`
	Status            QueueStatus `json:"status" db:"status"`
	Priority          int         `json:"priority" db:"priority"`
	IsEmergency       bool        `json:"is_emergency" db:"is_emergency"`
	CheckedInAt       time.Time   `json:"checked_in_at" db:"checked_in_at"`
	CalledAt          *time.Time  `json:"called_at,omitempty" db:"called_at"`
	CompletedAt       *time.Time  `json:"completed_at,omitempty" db:"completed_at"`
	EstimatedWaitTime *int        `json:"estimated_wait_time,omitempty" db:"estimated_wait_time"`
	ActualWaitTime    *int        `json:"actual_wait_time,omitempty" db:"actual_wait_time"`
	Notes             string      `json:"notes,omitempty" db:"notes"`
	CreatedAt         time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time   `json:"updated_at" db:"updated_at"`
}

// Slot is one bookable time unit offered to callers of available-slots.
type Slot struct {
	Time            TimeOfDay `json:"time"`
	AvailableSlots  int       `json:"available_slots"`
	DurationMinutes int       `json:"duration_minutes"`
}
