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

func setupLeaveService() (*LeaveService, *MockLeaveRepository) {
	mockRepo := &MockLeaveRepository{}
	svc := NewLeaveService(mockRepo, clock.Fixed{Instant: testInstant}, logger.New("debug"))
	return svc.(*LeaveService), mockRepo
}

func testLeave() *types.DoctorLeave {
	return &types.DoctorLeave{
		DoctorID:  "doc-1",
		LeaveType: types.LeaveAnnual,
		StartDate: time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2025, 4, 5, 0, 0, 0, 0, time.UTC),
		Reason:    "vacation",
	}
}

func TestRequestLeave_Success(t *testing.T) {
	svc, mockRepo := setupLeaveService()
	leave := testLeave()

	mockRepo.On("ApprovedOverlapping", "doc-1", leave.StartDate, leave.EndDate).
		Return([]*types.DoctorLeave{}, nil)
	mockRepo.On("Create", mock.AnythingOfType("*types.DoctorLeave")).Return(nil)

	created, err := svc.RequestLeave(leave, scheduleWriter())

	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, types.LeavePending, created.Status)
	mockRepo.AssertExpectations(t)
}

func TestRequestLeave_OverlapsApproved(t *testing.T) {
	svc, mockRepo := setupLeaveService()
	leave := testLeave()

	mockRepo.On("ApprovedOverlapping", "doc-1", leave.StartDate, leave.EndDate).
		Return([]*types.DoctorLeave{{ID: "leave-other", Status: types.LeaveApproved}}, nil)

	_, err := svc.RequestLeave(leave, scheduleWriter())

	require.Error(t, err)
	assert.True(t, types.IsErrorType(err, types.ErrorTypeConflict))
	mockRepo.AssertNotCalled(t, "Create", mock.Anything)
}

func TestRequestLeave_PendingDoesNotBlock(t *testing.T) {
	svc, mockRepo := setupLeaveService()
	leave := testLeave()

	// Only approved leaves conflict; the repository query already filters, so
	// an empty result means a pending request for the same dates goes through.
	mockRepo.On("ApprovedOverlapping", "doc-1", leave.StartDate, leave.EndDate).
		Return([]*types.DoctorLeave{}, nil)
	mockRepo.On("Create", mock.AnythingOfType("*types.DoctorLeave")).Return(nil)

	_, err := svc.RequestLeave(leave, scheduleWriter())

	require.NoError(t, err)
}

func TestRequestLeave_Validation(t *testing.T) {
	svc, _ := setupLeaveService()

	multiDayPartial := testLeave()
	multiDayPartial.StartTime = timePtr("09:00")
	multiDayPartial.EndTime = timePtr("13:00")

	inverted := testLeave()
	inverted.EndDate = inverted.StartDate.AddDate(0, 0, -1)

	halfTimes := testLeave()
	halfTimes.StartTime = timePtr("09:00")

	invertedTimes := testLeave()
	invertedTimes.EndDate = invertedTimes.StartDate
	invertedTimes.StartTime = timePtr("13:00")
	invertedTimes.EndTime = timePtr("09:00")

	// testInstant is 2025-03-10; a request starting the day before is stale.
	pastDated := testLeave()
	pastDated.StartDate = time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC)
	pastDated.EndDate = time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		leave *types.DoctorLeave
	}{
		{"missing doctor", &types.DoctorLeave{LeaveType: types.LeaveSick}},
		{"missing type", &types.DoctorLeave{DoctorID: "doc-1"}},
		{"inverted dates", inverted},
		{"past start date", pastDated},
		{"partial across days", multiDayPartial},
		{"one-sided times", halfTimes},
		{"inverted times", invertedTimes},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.RequestLeave(tt.leave, scheduleWriter())
			require.Error(t, err)
			assert.True(t, types.IsErrorType(err, types.ErrorTypeValidation))
		})
	}
}

func TestApproveLeave_Success(t *testing.T) {
	svc, mockRepo := setupLeaveService()

	pending := testLeave()
	pending.ID = "leave-1"
	pending.Status = types.LeavePending

	approved := *pending
	approved.Status = types.LeaveApproved

	mockRepo.On("GetByID", "leave-1").Return(pending, nil)
	mockRepo.On("ApprovedOverlapping", "doc-1", pending.StartDate, pending.EndDate).
		Return([]*types.DoctorLeave{}, nil)
	mockRepo.On("Approve", "leave-1", "admin-1", testInstant).Return(&approved, nil)

	result, err := svc.ApproveLeave("leave-1", scheduleWriter())

	require.NoError(t, err)
	assert.Equal(t, types.LeaveApproved, result.Status)
	mockRepo.AssertExpectations(t)
}

func TestApproveLeave_NotPending(t *testing.T) {
	svc, mockRepo := setupLeaveService()

	rejected := testLeave()
	rejected.ID = "leave-1"
	rejected.Status = types.LeaveRejected

	mockRepo.On("GetByID", "leave-1").Return(rejected, nil)
	mockRepo.On("ApprovedOverlapping", "doc-1", rejected.StartDate, rejected.EndDate).
		Return([]*types.DoctorLeave{}, nil)
	mockRepo.On("Approve", "leave-1", "admin-1", testInstant).Return(nil, nil)

	_, err := svc.ApproveLeave("leave-1", scheduleWriter())

	require.Error(t, err)
	assert.True(t, types.IsErrorType(err, types.ErrorTypeConflict))
}

func TestApproveLeave_RaceWithOtherApproval(t *testing.T) {
	svc, mockRepo := setupLeaveService()

	pending := testLeave()
	pending.ID = "leave-1"

	mockRepo.On("GetByID", "leave-1").Return(pending, nil)
	mockRepo.On("ApprovedOverlapping", "doc-1", pending.StartDate, pending.EndDate).
		Return([]*types.DoctorLeave{{ID: "leave-2", Status: types.LeaveApproved}}, nil)

	_, err := svc.ApproveLeave("leave-1", scheduleWriter())

	require.Error(t, err)
	assert.True(t, types.IsErrorType(err, types.ErrorTypeConflict))
	mockRepo.AssertNotCalled(t, "Approve", mock.Anything, mock.Anything, mock.Anything)
}

func TestRejectLeave_Success(t *testing.T) {
	svc, mockRepo := setupLeaveService()

	rejected := testLeave()
	rejected.ID = "leave-1"
	rejected.Status = types.LeaveRejected
	rejected.RejectionReason = "short staffed"

	mockRepo.On("Reject", "leave-1", "admin-1", "short staffed", testInstant).Return(rejected, nil)

	result, err := svc.RejectLeave("leave-1", "short staffed", scheduleWriter())

	require.NoError(t, err)
	assert.Equal(t, types.LeaveRejected, result.Status)
}

func TestRejectLeave_EmptyReason(t *testing.T) {
	svc, mockRepo := setupLeaveService()

	_, err := svc.RejectLeave("leave-1", "", scheduleWriter())

	require.Error(t, err)
	assert.True(t, types.IsErrorType(err, types.ErrorTypeValidation))
	mockRepo.AssertNotCalled(t, "Reject", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRejectLeave_WrongState(t *testing.T) {
	svc, mockRepo := setupLeaveService()

	existing := testLeave()
	existing.ID = "leave-1"
	existing.Status = types.LeaveApproved

	mockRepo.On("Reject", "leave-1", "admin-1", "late", testInstant).Return(nil, nil)
	mockRepo.On("GetByID", "leave-1").Return(existing, nil)

	_, err := svc.RejectLeave("leave-1", "late", scheduleWriter())

	require.Error(t, err)
	assert.True(t, types.IsErrorType(err, types.ErrorTypeConflict))
}

func TestCancelLeave_NotFound(t *testing.T) {
	svc, mockRepo := setupLeaveService()

	notFound := types.NewNotFoundError(types.ErrCodeNotFound, "leave not found")
	mockRepo.On("Cancel", "leave-x").Return(nil, nil)
	mockRepo.On("GetByID", "leave-x").Return(nil, notFound)

	_, err := svc.CancelLeave("leave-x", scheduleWriter())

	require.Error(t, err)
	assert.True(t, types.IsErrorType(err, types.ErrorTypeNotFound))
}

func TestIsOnLeave(t *testing.T) {
	svc, mockRepo := setupLeaveService()
	date := time.Date(2025, 4, 2, 0, 0, 0, 0, time.UTC)

	mockRepo.On("ApprovedLeaveOn", "doc-1", date).Return(testLeave(), nil)
	mockRepo.On("ApprovedLeaveOn", "doc-2", date).Return(nil, nil)

	onLeave, err := svc.IsOnLeave("doc-1", date)
	require.NoError(t, err)
	assert.True(t, onLeave)

	onLeave, err = svc.IsOnLeave("doc-2", date)
	require.NoError(t, err)
	assert.False(t, onLeave)
}
