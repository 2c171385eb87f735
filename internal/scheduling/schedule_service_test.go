package scheduling

import (
	"testing"
	"time"

	"github.com/medgrid/clinic-scheduling/pkg/clock"
	"github.com/medgrid/clinic-scheduling/pkg/logger"
	"github.com/medgrid/clinic-scheduling/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var testInstant = time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC) // a Monday

func scheduleWriter() *types.AuthContext {
	return &types.AuthContext{
		UserID:      "admin-1",
		Permissions: []string{types.PermScheduleWrite},
	}
}

func noPermissions() *types.AuthContext {
	return &types.AuthContext{UserID: "user-1"}
}

func setupScheduleService() (*ScheduleService, *MockScheduleRepository) {
	mockRepo := &MockScheduleRepository{}
	svc := NewScheduleService(mockRepo, clock.Fixed{Instant: testInstant}, logger.New("debug"))
	return svc.(*ScheduleService), mockRepo
}

func TestCreateSchedule_Success(t *testing.T) {
	svc, mockRepo := setupScheduleService()

	schedule := &types.DoctorSchedule{
		DoctorID:      "doc-1",
		DayOfWeek:     1,
		StartTime:     "09:00",
		EndTime:       "17:00",
		EffectiveFrom: time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC),
	}

	mockRepo.On("FindOverlapping", "doc-1", 1, schedule.EffectiveFrom, (*time.Time)(nil)).
		Return([]*types.DoctorSchedule{}, nil)
	mockRepo.On("Create", mock.AnythingOfType("*types.DoctorSchedule")).Return(nil)

	created, err := svc.CreateSchedule(schedule, scheduleWriter())

	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.True(t, created.IsActive)
	assert.Equal(t, 30, created.SlotDurationMinutes)
	assert.Equal(t, 1, created.MaxPatientsPerSlot)
	assert.Equal(t, testInstant, created.CreatedAt)
	mockRepo.AssertExpectations(t)
}

func TestCreateSchedule_Overlap(t *testing.T) {
	svc, mockRepo := setupScheduleService()

	schedule := &types.DoctorSchedule{
		DoctorID:      "doc-1",
		DayOfWeek:     1,
		StartTime:     "09:00",
		EndTime:       "13:00",
		EffectiveFrom: time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC),
	}

	existing := &types.DoctorSchedule{
		ID:        "sched-other",
		StartTime: "12:00",
		EndTime:   "18:00",
	}
	mockRepo.On("FindOverlapping", "doc-1", 1, schedule.EffectiveFrom, (*time.Time)(nil)).
		Return([]*types.DoctorSchedule{existing}, nil)

	_, err := svc.CreateSchedule(schedule, scheduleWriter())

	require.Error(t, err)
	assert.True(t, types.IsErrorType(err, types.ErrorTypeConflict))
	mockRepo.AssertNotCalled(t, "Create", mock.Anything)
}

func TestCreateSchedule_AdjacentWindowsAllowed(t *testing.T) {
	svc, mockRepo := setupScheduleService()

	schedule := &types.DoctorSchedule{
		DoctorID:      "doc-1",
		DayOfWeek:     1,
		StartTime:     "13:00",
		EndTime:       "17:00",
		EffectiveFrom: time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC),
	}

	// A morning schedule ending exactly when this one starts does not conflict.
	existing := &types.DoctorSchedule{
		ID:        "sched-morning",
		StartTime: "09:00",
		EndTime:   "13:00",
	}
	mockRepo.On("FindOverlapping", "doc-1", 1, schedule.EffectiveFrom, (*time.Time)(nil)).
		Return([]*types.DoctorSchedule{existing}, nil)
	mockRepo.On("Create", mock.AnythingOfType("*types.DoctorSchedule")).Return(nil)

	_, err := svc.CreateSchedule(schedule, scheduleWriter())

	require.NoError(t, err)
	mockRepo.AssertExpectations(t)
}

func TestCreateSchedule_Forbidden(t *testing.T) {
	svc, mockRepo := setupScheduleService()

	_, err := svc.CreateSchedule(&types.DoctorSchedule{}, noPermissions())

	require.Error(t, err)
	assert.True(t, types.IsErrorType(err, types.ErrorTypeForbidden))
	mockRepo.AssertNotCalled(t, "Create", mock.Anything)
}

func TestCreateSchedule_Validation(t *testing.T) {
	svc, _ := setupScheduleService()
	effectiveFrom := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		schedule *types.DoctorSchedule
	}{
		{"missing doctor", &types.DoctorSchedule{
			DayOfWeek: 1, StartTime: "09:00", EndTime: "17:00", EffectiveFrom: effectiveFrom,
		}},
		{"bad weekday", &types.DoctorSchedule{
			DoctorID: "doc-1", DayOfWeek: 7, StartTime: "09:00", EndTime: "17:00", EffectiveFrom: effectiveFrom,
		}},
		{"inverted window", &types.DoctorSchedule{
			DoctorID: "doc-1", DayOfWeek: 1, StartTime: "17:00", EndTime: "09:00", EffectiveFrom: effectiveFrom,
		}},
		{"slot duration too short", &types.DoctorSchedule{
			DoctorID: "doc-1", DayOfWeek: 1, StartTime: "09:00", EndTime: "17:00",
			SlotDurationMinutes: 5, EffectiveFrom: effectiveFrom,
		}},
		{"slot duration too long", &types.DoctorSchedule{
			DoctorID: "doc-1", DayOfWeek: 1, StartTime: "09:00", EndTime: "17:00",
			SlotDurationMinutes: 180, EffectiveFrom: effectiveFrom,
		}},
		{"break outside window", &types.DoctorSchedule{
			DoctorID: "doc-1", DayOfWeek: 1, StartTime: "09:00", EndTime: "17:00",
			BreakStart: timePtr("08:00"), BreakEnd: timePtr("09:30"), EffectiveFrom: effectiveFrom,
		}},
		{"half a break", &types.DoctorSchedule{
			DoctorID: "doc-1", DayOfWeek: 1, StartTime: "09:00", EndTime: "17:00",
			BreakStart: timePtr("12:00"), EffectiveFrom: effectiveFrom,
		}},
		{"missing effective_from", &types.DoctorSchedule{
			DoctorID: "doc-1", DayOfWeek: 1, StartTime: "09:00", EndTime: "17:00",
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateSchedule(tt.schedule, scheduleWriter())
			require.Error(t, err)
			assert.True(t, types.IsErrorType(err, types.ErrorTypeValidation))
		})
	}
}

func TestUpdateSchedule_Success(t *testing.T) {
	svc, mockRepo := setupScheduleService()

	existing := testSchedule()
	existing.EffectiveFrom = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	newEnd := types.TimeOfDay("18:00")
	updates := &types.ScheduleUpdates{EndTime: &newEnd}

	updated := *existing
	updated.EndTime = newEnd

	mockRepo.On("GetByID", "sched-1").Return(existing, nil)
	mockRepo.On("FindOverlapping", "doc-1", 1, existing.EffectiveFrom, (*time.Time)(nil)).
		Return([]*types.DoctorSchedule{existing}, nil)
	mockRepo.On("Update", "sched-1", updates).Return(&updated, nil)

	result, err := svc.UpdateSchedule("sched-1", updates, scheduleWriter())

	require.NoError(t, err)
	assert.Equal(t, newEnd, result.EndTime)
	mockRepo.AssertExpectations(t)
}

func TestUpdateSchedule_OverlapIgnoresSelf(t *testing.T) {
	svc, mockRepo := setupScheduleService()

	existing := testSchedule()
	existing.EffectiveFrom = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	other := testSchedule()
	other.ID = "sched-2"
	other.StartTime = "16:00"
	other.EndTime = "20:00"

	newEnd := types.TimeOfDay("18:00")
	updates := &types.ScheduleUpdates{EndTime: &newEnd}

	mockRepo.On("GetByID", "sched-1").Return(existing, nil)
	mockRepo.On("FindOverlapping", "doc-1", 1, existing.EffectiveFrom, (*time.Time)(nil)).
		Return([]*types.DoctorSchedule{existing, other}, nil)

	_, err := svc.UpdateSchedule("sched-1", updates, scheduleWriter())

	require.Error(t, err)
	assert.True(t, types.IsErrorType(err, types.ErrorTypeConflict))
	mockRepo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
}

func TestDeactivateSchedule(t *testing.T) {
	svc, mockRepo := setupScheduleService()

	mockRepo.On("Deactivate", "sched-1").Return(nil)

	require.NoError(t, svc.DeactivateSchedule("sched-1", scheduleWriter()))
	mockRepo.AssertExpectations(t)
}

func TestDeleteSchedule_Forbidden(t *testing.T) {
	svc, mockRepo := setupScheduleService()

	err := svc.DeleteSchedule("sched-1", noPermissions())

	require.Error(t, err)
	assert.True(t, types.IsErrorType(err, types.ErrorTypeForbidden))
	mockRepo.AssertNotCalled(t, "Delete", mock.Anything)
}
