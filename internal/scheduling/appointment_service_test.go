package scheduling

import (
	"testing"
	"time"

	"github.com/medgrid/clinic-scheduling/pkg/clock"
	"github.com/medgrid/clinic-scheduling/pkg/config"
	"github.com/medgrid/clinic-scheduling/pkg/logger"
	"github.com/medgrid/clinic-scheduling/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type appointmentMocks struct {
	appointments *MockAppointmentRepository
	schedules    *MockScheduleRepository
	leaves       *MockLeaveRepository
	queues       *MockQueueRepository
}

func setupAppointmentService() (*AppointmentService, *appointmentMocks) {
	m := &appointmentMocks{
		appointments: &MockAppointmentRepository{},
		schedules:    &MockScheduleRepository{},
		leaves:       &MockLeaveRepository{},
		queues:       &MockQueueRepository{},
	}

	cfg := &config.SchedulingConfig{
		AverageConsultationMinutes: 15,
		NoShowWarningThreshold:     3,
	}

	svc := NewAppointmentService(
		m.appointments, m.schedules, m.leaves, m.queues,
		cfg, clock.Fixed{Instant: testInstant}, logger.New("debug"), nil,
	)
	return svc.(*AppointmentService), m
}

func appointmentWriter() *types.AuthContext {
	return &types.AuthContext{
		UserID:      "staff-1",
		Permissions: []string{types.PermAppointmentWrite},
	}
}

// Wednesday of the test week.
var bookingDate = time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC)

func bookingRequest() *types.Appointment {
	return &types.Appointment{
		PatientID: "patient-1",
		DoctorID:  "doc-1",
		Date:      bookingDate,
		Time:      "09:30",
		Type:      types.TypeFollowUp,
	}
}

func effectiveSchedule() *types.DoctorSchedule {
	return &types.DoctorSchedule{
		ID:                  "sched-1",
		DoctorID:            "doc-1",
		DayOfWeek:           3,
		StartTime:           "09:00",
		EndTime:             "17:00",
		SlotDurationMinutes: 30,
		MaxPatientsPerSlot:  2,
		IsActive:            true,
	}
}

func TestCreateAppointment_Success(t *testing.T) {
	svc, m := setupAppointmentService()
	apt := bookingRequest()

	m.schedules.On("GetEffectiveSchedule", "doc-1", 3, bookingDate).Return(effectiveSchedule(), nil)
	m.leaves.On("ApprovedLeaveOn", "doc-1", bookingDate).Return(nil, nil)
	m.appointments.On("NoShowCount", "patient-1", mock.AnythingOfType("time.Time")).Return(0, nil)
	m.appointments.On("CountOnDate", bookingDate).Return(4, nil)
	m.appointments.On("CreateBooked", mock.AnythingOfType("*types.Appointment"), 2).Return(nil)

	created, err := svc.CreateAppointment(apt, appointmentWriter())

	require.NoError(t, err)
	assert.Equal(t, "APT-20250312-0005", created.AppointmentNumber)
	assert.Equal(t, types.AppointmentScheduled, created.Status)
	assert.Equal(t, types.PriorityDefault, created.Priority)
	assert.Equal(t, 30, created.SlotDuration)
	assert.Equal(t, "staff-1", created.CreatedBy)
	assert.NotEmpty(t, created.ID)
	m.appointments.AssertExpectations(t)
}

func TestCreateAppointment_PastDate(t *testing.T) {
	svc, m := setupAppointmentService()

	apt := bookingRequest()
	apt.Date = testInstant.AddDate(0, 0, -1)

	_, err := svc.CreateAppointment(apt, appointmentWriter())

	require.Error(t, err)
	assert.True(t, types.IsErrorType(err, types.ErrorTypeValidation))
	m.appointments.AssertNotCalled(t, "CreateBooked", mock.Anything, mock.Anything)
}

func TestCreateAppointment_NoSchedule(t *testing.T) {
	svc, m := setupAppointmentService()
	apt := bookingRequest()

	m.schedules.On("GetEffectiveSchedule", "doc-1", 3, bookingDate).Return(nil, nil)

	_, err := svc.CreateAppointment(apt, appointmentWriter())

	require.Error(t, err)
	assert.True(t, types.IsErrorType(err, types.ErrorTypeValidation))
	m.appointments.AssertNotCalled(t, "CreateBooked", mock.Anything, mock.Anything)
}

func TestCreateAppointment_OffSlotBoundary(t *testing.T) {
	svc, m := setupAppointmentService()

	apt := bookingRequest()
	apt.Time = "09:10"

	m.schedules.On("GetEffectiveSchedule", "doc-1", 3, bookingDate).Return(effectiveSchedule(), nil)

	_, err := svc.CreateAppointment(apt, appointmentWriter())

	require.Error(t, err)
	assert.True(t, types.IsErrorType(err, types.ErrorTypeValidation))
	m.appointments.AssertNotCalled(t, "CreateBooked", mock.Anything, mock.Anything)
}

func TestCreateAppointment_DoctorOnLeave(t *testing.T) {
	svc, m := setupAppointmentService()
	apt := bookingRequest()

	m.schedules.On("GetEffectiveSchedule", "doc-1", 3, bookingDate).Return(effectiveSchedule(), nil)
	m.leaves.On("ApprovedLeaveOn", "doc-1", bookingDate).
		Return(&types.DoctorLeave{ID: "leave-1", Status: types.LeaveApproved}, nil)

	_, err := svc.CreateAppointment(apt, appointmentWriter())

	require.Error(t, err)
	assert.True(t, types.IsErrorType(err, types.ErrorTypeConflict))
	m.appointments.AssertNotCalled(t, "CreateBooked", mock.Anything, mock.Anything)
}

func TestCreateAppointment_PartialLeaveOutsideSlot(t *testing.T) {
	svc, m := setupAppointmentService()
	apt := bookingRequest() // 09:30

	leave := &types.DoctorLeave{
		ID:        "leave-1",
		Status:    types.LeaveApproved,
		StartTime: timePtr("14:00"),
		EndTime:   timePtr("17:00"),
	}

	m.schedules.On("GetEffectiveSchedule", "doc-1", 3, bookingDate).Return(effectiveSchedule(), nil)
	m.leaves.On("ApprovedLeaveOn", "doc-1", bookingDate).Return(leave, nil)
	m.appointments.On("NoShowCount", "patient-1", mock.AnythingOfType("time.Time")).Return(0, nil)
	m.appointments.On("CountOnDate", bookingDate).Return(0, nil)
	m.appointments.On("CreateBooked", mock.AnythingOfType("*types.Appointment"), 2).Return(nil)

	created, err := svc.CreateAppointment(apt, appointmentWriter())

	require.NoError(t, err)
	assert.Equal(t, "APT-20250312-0001", created.AppointmentNumber)
}

func TestCreateAppointment_SlotFull(t *testing.T) {
	svc, m := setupAppointmentService()
	apt := bookingRequest()

	m.schedules.On("GetEffectiveSchedule", "doc-1", 3, bookingDate).Return(effectiveSchedule(), nil)
	m.leaves.On("ApprovedLeaveOn", "doc-1", bookingDate).Return(nil, nil)
	m.appointments.On("NoShowCount", "patient-1", mock.AnythingOfType("time.Time")).Return(0, nil)
	m.appointments.On("CountOnDate", bookingDate).Return(10, nil)
	m.appointments.On("CreateBooked", mock.AnythingOfType("*types.Appointment"), 2).Return(ErrSlotFull)

	_, err := svc.CreateAppointment(apt, appointmentWriter())

	require.Error(t, err)
	assert.True(t, types.IsErrorType(err, types.ErrorTypeConflict))
}

func TestCreateAppointment_RetriesOnNumberCollision(t *testing.T) {
	svc, m := setupAppointmentService()
	apt := bookingRequest()

	m.schedules.On("GetEffectiveSchedule", "doc-1", 3, bookingDate).Return(effectiveSchedule(), nil)
	m.leaves.On("ApprovedLeaveOn", "doc-1", bookingDate).Return(nil, nil)
	m.appointments.On("NoShowCount", "patient-1", mock.AnythingOfType("time.Time")).Return(0, nil)
	m.appointments.On("CountOnDate", bookingDate).Return(4, nil)
	m.appointments.On("CreateBooked", mock.AnythingOfType("*types.Appointment"), 2).
		Return(ErrDuplicateNumber).Once()
	m.appointments.On("CreateBooked", mock.AnythingOfType("*types.Appointment"), 2).
		Return(nil).Once()

	created, err := svc.CreateAppointment(apt, appointmentWriter())

	require.NoError(t, err)
	assert.Equal(t, "APT-20250312-0006", created.AppointmentNumber)
	m.appointments.AssertExpectations(t)
}

func TestCreateAppointment_EmergencyBypassesScheduleChecks(t *testing.T) {
	svc, m := setupAppointmentService()

	apt := bookingRequest()
	apt.Type = types.TypeEmergency
	apt.Time = "03:17" // nowhere near a slot boundary

	// No effective schedule at all; the emergency path must not care.
	m.schedules.On("GetEffectiveSchedule", "doc-1", 3, bookingDate).Return(nil, nil)
	m.leaves.On("ApprovedLeaveOn", "doc-1", bookingDate).Return(nil, nil)
	m.appointments.On("NoShowCount", "patient-1", mock.AnythingOfType("time.Time")).Return(0, nil)
	m.appointments.On("CountOnDate", bookingDate).Return(0, nil)
	m.appointments.On("CreateBooked", mock.AnythingOfType("*types.Appointment"), 0).Return(nil)

	created, err := svc.CreateAppointment(apt, appointmentWriter())

	require.NoError(t, err)
	assert.True(t, created.IsEmergency)
	assert.Equal(t, types.PriorityEmergency, created.Priority)
	assert.Equal(t, 30, created.SlotDuration)
	m.appointments.AssertExpectations(t)
}

func TestCreateAppointment_EmergencyBlockedByLeave(t *testing.T) {
	svc, m := setupAppointmentService()

	apt := bookingRequest()
	apt.Type = types.TypeEmergency

	m.schedules.On("GetEffectiveSchedule", "doc-1", 3, bookingDate).Return(nil, nil)
	m.leaves.On("ApprovedLeaveOn", "doc-1", bookingDate).
		Return(&types.DoctorLeave{ID: "leave-1", Status: types.LeaveApproved}, nil)

	_, err := svc.CreateAppointment(apt, appointmentWriter())

	require.Error(t, err)
	assert.True(t, types.IsErrorType(err, types.ErrorTypeConflict))
	m.appointments.AssertNotCalled(t, "CreateBooked", mock.Anything, mock.Anything)
}

func TestCreateAppointment_Forbidden(t *testing.T) {
	svc, m := setupAppointmentService()

	_, err := svc.CreateAppointment(bookingRequest(), noPermissions())

	require.Error(t, err)
	assert.True(t, types.IsErrorType(err, types.ErrorTypeForbidden))
	m.appointments.AssertNotCalled(t, "CreateBooked", mock.Anything, mock.Anything)
}

func TestGetAvailableSlots_ExcludesReleasedStatuses(t *testing.T) {
	svc, m := setupAppointmentService()

	m.schedules.On("GetEffectiveSchedule", "doc-1", 3, bookingDate).Return(effectiveSchedule(), nil)
	m.leaves.On("ApprovedLeaveOn", "doc-1", bookingDate).Return(nil, nil)
	m.appointments.On("List", mock.AnythingOfType("*types.AppointmentFilters")).Return([]*types.Appointment{
		{Time: "09:00", Status: types.AppointmentScheduled},
		{Time: "09:00", Status: types.AppointmentConfirmed},
		{Time: "09:30", Status: types.AppointmentCancelled},
		{Time: "10:00", Status: types.AppointmentNoShow},
	}, nil)

	slots, err := svc.GetAvailableSlots("doc-1", bookingDate)

	require.NoError(t, err)
	bySlot := make(map[types.TimeOfDay]int)
	for _, slot := range slots {
		bySlot[slot.Time] = slot.AvailableSlots
	}
	// 09:00 holds two active bookings out of capacity 2, so it is gone.
	assert.NotContains(t, bySlot, types.TimeOfDay("09:00"))
	// Cancelled and no-show rows release their capacity.
	assert.Equal(t, 2, bySlot["09:30"])
	assert.Equal(t, 2, bySlot["10:00"])
}

func TestGetAvailableSlots_NoSchedule(t *testing.T) {
	svc, m := setupAppointmentService()

	m.schedules.On("GetEffectiveSchedule", "doc-1", 3, bookingDate).Return(nil, nil)

	slots, err := svc.GetAvailableSlots("doc-1", bookingDate)

	require.NoError(t, err)
	assert.Empty(t, slots)
	assert.NotNil(t, slots)
}

func TestGetAvailableSlots_PastDate(t *testing.T) {
	svc, _ := setupAppointmentService()

	_, err := svc.GetAvailableSlots("doc-1", testInstant.AddDate(0, 0, -1))

	require.Error(t, err)
	assert.True(t, types.IsErrorType(err, types.ErrorTypeValidation))
}

func TestUpdateAppointment_TerminalRejected(t *testing.T) {
	svc, m := setupAppointmentService()

	done := &types.Appointment{ID: "apt-1", Status: types.AppointmentCompleted}
	m.appointments.On("GetByID", "apt-1").Return(done, nil)

	notes := "updated"
	_, err := svc.UpdateAppointment("apt-1", &types.AppointmentUpdates{Notes: &notes}, appointmentWriter())

	require.Error(t, err)
	assert.True(t, types.IsErrorType(err, types.ErrorTypeConflict))
	m.appointments.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
}

func TestUpdateAppointment_PriorityBounds(t *testing.T) {
	svc, m := setupAppointmentService()

	live := &types.Appointment{ID: "apt-1", Status: types.AppointmentScheduled}
	m.appointments.On("GetByID", "apt-1").Return(live, nil)

	bad := 9
	_, err := svc.UpdateAppointment("apt-1", &types.AppointmentUpdates{Priority: &bad}, appointmentWriter())

	require.Error(t, err)
	assert.True(t, types.IsErrorType(err, types.ErrorTypeValidation))
}

func TestConfirmAppointment_Success(t *testing.T) {
	svc, m := setupAppointmentService()

	scheduled := &types.Appointment{ID: "apt-1", Status: types.AppointmentScheduled}
	confirmed := &types.Appointment{ID: "apt-1", Status: types.AppointmentConfirmed, ConfirmationSent: true}

	m.appointments.On("GetByID", "apt-1").Return(scheduled, nil).Once()
	m.appointments.On("StampConfirmed", "apt-1").Return(nil)
	m.appointments.On("GetByID", "apt-1").Return(confirmed, nil).Once()

	result, err := svc.ConfirmAppointment("apt-1", appointmentWriter())

	require.NoError(t, err)
	assert.Equal(t, types.AppointmentConfirmed, result.Status)
	assert.True(t, result.ConfirmationSent)
	m.appointments.AssertExpectations(t)
}

func TestConfirmAppointment_InvalidTransition(t *testing.T) {
	svc, m := setupAppointmentService()

	cancelled := &types.Appointment{ID: "apt-1", Status: types.AppointmentCancelled}
	m.appointments.On("GetByID", "apt-1").Return(cancelled, nil)

	_, err := svc.ConfirmAppointment("apt-1", appointmentWriter())

	require.Error(t, err)
	assert.True(t, types.IsErrorType(err, types.ErrorTypeConflict))
	m.appointments.AssertNotCalled(t, "StampConfirmed", mock.Anything)
}

func TestCheckInAppointment_Success(t *testing.T) {
	svc, m := setupAppointmentService()
	today := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

	confirmed := &types.Appointment{
		ID:        "apt-1",
		PatientID: "patient-1",
		DoctorID:  "doc-1",
		Date:      today,
		Status:    types.AppointmentConfirmed,
		Priority:  types.PriorityDefault,
	}

	m.appointments.On("GetByID", "apt-1").Return(confirmed, nil)
	m.appointments.On("StampCheckIn", "apt-1", "staff-1", testInstant).Return(nil)
	m.queues.On("ActiveEntryForAppointment", "apt-1").Return(nil, nil)
	m.queues.On("WaitingCount", "doc-1", today).Return(2, nil)
	m.queues.On("NextQueueNumber", "doc-1", today).Return(7, nil)
	m.queues.On("Create", mock.AnythingOfType("*types.QueueEntry")).Return(nil)

	_, entry, err := svc.CheckInAppointment("apt-1", appointmentWriter())

	require.NoError(t, err)
	assert.Equal(t, 7, entry.QueueNumber)
	assert.Equal(t, types.QueueScheduledType, entry.QueueType)
	assert.Equal(t, types.QueueWaiting, entry.Status)
	require.NotNil(t, entry.EstimatedWaitTime)
	assert.Equal(t, 30, *entry.EstimatedWaitTime)
	m.queues.AssertExpectations(t)
}

func TestCheckInAppointment_QueuesOnAppointmentDate(t *testing.T) {
	svc, m := setupAppointmentService()

	confirmed := &types.Appointment{
		ID:        "apt-1",
		PatientID: "patient-1",
		DoctorID:  "doc-1",
		Date:      bookingDate, // two days past the fixed clock
		Status:    types.AppointmentConfirmed,
		Priority:  types.PriorityDefault,
	}

	m.appointments.On("GetByID", "apt-1").Return(confirmed, nil)
	m.appointments.On("StampCheckIn", "apt-1", "staff-1", testInstant).Return(nil)
	m.queues.On("ActiveEntryForAppointment", "apt-1").Return(nil, nil)
	m.queues.On("WaitingCount", "doc-1", bookingDate).Return(0, nil)
	m.queues.On("NextQueueNumber", "doc-1", bookingDate).Return(1, nil)
	m.queues.On("Create", mock.AnythingOfType("*types.QueueEntry")).Return(nil)

	_, entry, err := svc.CheckInAppointment("apt-1", appointmentWriter())

	require.NoError(t, err)
	assert.Equal(t, bookingDate, entry.QueueDate)
	m.queues.AssertExpectations(t)
}

func TestCheckInAppointment_AlreadyQueued(t *testing.T) {
	svc, m := setupAppointmentService()
	today := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

	confirmed := &types.Appointment{
		ID:        "apt-1",
		PatientID: "patient-1",
		DoctorID:  "doc-1",
		Date:      today,
		Status:    types.AppointmentConfirmed,
	}

	m.appointments.On("GetByID", "apt-1").Return(confirmed, nil)
	m.appointments.On("StampCheckIn", "apt-1", "staff-1", testInstant).Return(nil)
	m.queues.On("ActiveEntryForAppointment", "apt-1").
		Return(&types.QueueEntry{ID: "queue-1", Status: types.QueueWaiting}, nil)

	_, _, err := svc.CheckInAppointment("apt-1", appointmentWriter())

	require.Error(t, err)
	assert.True(t, types.IsErrorType(err, types.ErrorTypeConflict))
	m.queues.AssertNotCalled(t, "Create", mock.Anything)
}

func TestCheckInAppointment_EmergencyQueueType(t *testing.T) {
	svc, m := setupAppointmentService()
	today := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

	emergency := &types.Appointment{
		ID:          "apt-1",
		PatientID:   "patient-1",
		DoctorID:    "doc-1",
		Date:        today,
		Status:      types.AppointmentScheduled,
		IsEmergency: true,
		Priority:    types.PriorityEmergency,
	}

	m.appointments.On("GetByID", "apt-1").Return(emergency, nil)
	m.appointments.On("StampCheckIn", "apt-1", "staff-1", testInstant).Return(nil)
	m.queues.On("ActiveEntryForAppointment", "apt-1").Return(nil, nil)
	m.queues.On("WaitingCount", "doc-1", today).Return(0, nil)
	m.queues.On("NextQueueNumber", "doc-1", today).Return(1, nil)
	m.queues.On("Create", mock.AnythingOfType("*types.QueueEntry")).Return(nil)

	_, entry, err := svc.CheckInAppointment("apt-1", appointmentWriter())

	require.NoError(t, err)
	assert.Equal(t, types.QueueEmergencyType, entry.QueueType)
	assert.Equal(t, types.PriorityEmergency, entry.Priority)
	assert.True(t, entry.IsEmergency)
}

func TestCancelAppointment_Success(t *testing.T) {
	svc, m := setupAppointmentService()

	scheduled := &types.Appointment{ID: "apt-1", Status: types.AppointmentScheduled}
	cancelled := &types.Appointment{ID: "apt-1", Status: types.AppointmentCancelled, CancelledReason: "patient request"}

	m.appointments.On("GetByID", "apt-1").Return(scheduled, nil).Once()
	m.appointments.On("StampCancel", "apt-1", "staff-1", testInstant, "patient request").Return(nil)
	m.appointments.On("GetByID", "apt-1").Return(cancelled, nil).Once()

	result, err := svc.CancelAppointment("apt-1", "patient request", appointmentWriter())

	require.NoError(t, err)
	assert.Equal(t, types.AppointmentCancelled, result.Status)
	m.appointments.AssertExpectations(t)
}

func TestMarkNoShow_FromInProgressRejected(t *testing.T) {
	svc, m := setupAppointmentService()

	inProgress := &types.Appointment{ID: "apt-1", Status: types.AppointmentInProgress}
	m.appointments.On("GetByID", "apt-1").Return(inProgress, nil)

	_, err := svc.MarkNoShow("apt-1", appointmentWriter())

	require.Error(t, err)
	assert.True(t, types.IsErrorType(err, types.ErrorTypeConflict))
	m.appointments.AssertNotCalled(t, "SetStatus", mock.Anything, mock.Anything)
}

func TestRescheduleAppointment_Success(t *testing.T) {
	svc, m := setupAppointmentService()

	old := &types.Appointment{
		ID:        "apt-old",
		PatientID: "patient-1",
		DoctorID:  "doc-1",
		Date:      time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC),
		Time:      "10:00",
		Type:      types.TypeFollowUp,
		Status:    types.AppointmentScheduled,
		Priority:  types.PriorityDefault,
	}

	m.appointments.On("GetByID", "apt-old").Return(old, nil)
	m.schedules.On("GetEffectiveSchedule", "doc-1", 3, bookingDate).Return(effectiveSchedule(), nil)
	m.leaves.On("ApprovedLeaveOn", "doc-1", bookingDate).Return(nil, nil)
	m.appointments.On("NoShowCount", "patient-1", mock.AnythingOfType("time.Time")).Return(0, nil)
	m.appointments.On("CountOnDate", bookingDate).Return(0, nil)
	m.appointments.On("CreateBooked", mock.AnythingOfType("*types.Appointment"), 2).Return(nil)
	m.appointments.On("LinkReschedule", "apt-old", mock.AnythingOfType("string")).Return(nil)
	m.appointments.On("GetByID", mock.MatchedBy(func(id string) bool { return id != "apt-old" })).
		Return(&types.Appointment{ID: "apt-new", Status: types.AppointmentScheduled}, nil)

	result, err := svc.RescheduleAppointment("apt-old", bookingDate, "09:30", appointmentWriter())

	require.NoError(t, err)
	assert.Equal(t, "apt-new", result.ID)
	m.appointments.AssertExpectations(t)
}

func TestRescheduleAppointment_TerminalRejected(t *testing.T) {
	svc, m := setupAppointmentService()

	completed := &types.Appointment{ID: "apt-old", Status: types.AppointmentCompleted}
	m.appointments.On("GetByID", "apt-old").Return(completed, nil)

	_, err := svc.RescheduleAppointment("apt-old", bookingDate, "09:30", appointmentWriter())

	require.Error(t, err)
	assert.True(t, types.IsErrorType(err, types.ErrorTypeConflict))
	m.appointments.AssertNotCalled(t, "LinkReschedule", mock.Anything, mock.Anything)
}
