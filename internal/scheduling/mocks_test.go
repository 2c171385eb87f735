package scheduling

import (
	"time"

	"github.com/medgrid/clinic-scheduling/pkg/types"
	"github.com/stretchr/testify/mock"
)

// MockScheduleRepository is a mock implementation of interfaces.ScheduleRepository
type MockScheduleRepository struct {
	mock.Mock
}

func (m *MockScheduleRepository) Create(schedule *types.DoctorSchedule) error {
	args := m.Called(schedule)
	return args.Error(0)
}

func (m *MockScheduleRepository) GetByID(id string) (*types.DoctorSchedule, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.DoctorSchedule), args.Error(1)
}

func (m *MockScheduleRepository) GetByDoctorID(doctorID string, activeOnly bool) ([]*types.DoctorSchedule, error) {
	args := m.Called(doctorID, activeOnly)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*types.DoctorSchedule), args.Error(1)
}

func (m *MockScheduleRepository) GetEffectiveSchedule(doctorID string, dayOfWeek int, date time.Time) (*types.DoctorSchedule, error) {
	args := m.Called(doctorID, dayOfWeek, date)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.DoctorSchedule), args.Error(1)
}

func (m *MockScheduleRepository) FindOverlapping(doctorID string, dayOfWeek int, from time.Time, until *time.Time) ([]*types.DoctorSchedule, error) {
	args := m.Called(doctorID, dayOfWeek, from, until)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*types.DoctorSchedule), args.Error(1)
}

func (m *MockScheduleRepository) Update(id string, updates *types.ScheduleUpdates) (*types.DoctorSchedule, error) {
	args := m.Called(id, updates)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.DoctorSchedule), args.Error(1)
}

func (m *MockScheduleRepository) Deactivate(id string) error {
	args := m.Called(id)
	return args.Error(0)
}

func (m *MockScheduleRepository) Delete(id string) error {
	args := m.Called(id)
	return args.Error(0)
}

// MockLeaveRepository is a mock implementation of interfaces.LeaveRepository
type MockLeaveRepository struct {
	mock.Mock
}

func (m *MockLeaveRepository) Create(leave *types.DoctorLeave) error {
	args := m.Called(leave)
	return args.Error(0)
}

func (m *MockLeaveRepository) GetByID(id string) (*types.DoctorLeave, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.DoctorLeave), args.Error(1)
}

func (m *MockLeaveRepository) GetByDoctorID(doctorID string, status types.LeaveStatus) ([]*types.DoctorLeave, error) {
	args := m.Called(doctorID, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*types.DoctorLeave), args.Error(1)
}

func (m *MockLeaveRepository) ApprovedOverlapping(doctorID string, start, end time.Time) ([]*types.DoctorLeave, error) {
	args := m.Called(doctorID, start, end)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*types.DoctorLeave), args.Error(1)
}

func (m *MockLeaveRepository) ApprovedLeaveOn(doctorID string, date time.Time) (*types.DoctorLeave, error) {
	args := m.Called(doctorID, date)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.DoctorLeave), args.Error(1)
}

func (m *MockLeaveRepository) Approve(id, approverID string, at time.Time) (*types.DoctorLeave, error) {
	args := m.Called(id, approverID, at)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.DoctorLeave), args.Error(1)
}

func (m *MockLeaveRepository) Reject(id, approverID, reason string, at time.Time) (*types.DoctorLeave, error) {
	args := m.Called(id, approverID, reason, at)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.DoctorLeave), args.Error(1)
}

func (m *MockLeaveRepository) Cancel(id string) (*types.DoctorLeave, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.DoctorLeave), args.Error(1)
}

// MockAppointmentRepository is a mock implementation of interfaces.AppointmentRepository
type MockAppointmentRepository struct {
	mock.Mock
}

func (m *MockAppointmentRepository) CreateBooked(apt *types.Appointment, maxPerSlot int) error {
	args := m.Called(apt, maxPerSlot)
	return args.Error(0)
}

func (m *MockAppointmentRepository) GetByID(id string) (*types.Appointment, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.Appointment), args.Error(1)
}

func (m *MockAppointmentRepository) GetByNumber(number string) (*types.Appointment, error) {
	args := m.Called(number)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.Appointment), args.Error(1)
}

func (m *MockAppointmentRepository) List(filters *types.AppointmentFilters) ([]*types.Appointment, error) {
	args := m.Called(filters)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*types.Appointment), args.Error(1)
}

func (m *MockAppointmentRepository) Count(filters *types.AppointmentFilters) (int, error) {
	args := m.Called(filters)
	return args.Int(0), args.Error(1)
}

func (m *MockAppointmentRepository) GetToday(doctorID, departmentID string, today time.Time) ([]*types.Appointment, error) {
	args := m.Called(doctorID, departmentID, today)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*types.Appointment), args.Error(1)
}

func (m *MockAppointmentRepository) CountForSlot(doctorID string, date time.Time, slot types.TimeOfDay) (int, error) {
	args := m.Called(doctorID, date, slot)
	return args.Int(0), args.Error(1)
}

func (m *MockAppointmentRepository) CountOnDate(date time.Time) (int, error) {
	args := m.Called(date)
	return args.Int(0), args.Error(1)
}

func (m *MockAppointmentRepository) NoShowCount(patientID string, since time.Time) (int, error) {
	args := m.Called(patientID, since)
	return args.Int(0), args.Error(1)
}

func (m *MockAppointmentRepository) Update(id string, updates *types.AppointmentUpdates) (*types.Appointment, error) {
	args := m.Called(id, updates)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.Appointment), args.Error(1)
}

func (m *MockAppointmentRepository) SetStatus(id string, status types.AppointmentStatus) error {
	args := m.Called(id, status)
	return args.Error(0)
}

func (m *MockAppointmentRepository) StampConfirmed(id string) error {
	args := m.Called(id)
	return args.Error(0)
}

func (m *MockAppointmentRepository) StampCheckIn(id, by string, at time.Time) error {
	args := m.Called(id, by, at)
	return args.Error(0)
}

func (m *MockAppointmentRepository) StampCancel(id, by string, at time.Time, reason string) error {
	args := m.Called(id, by, at, reason)
	return args.Error(0)
}

func (m *MockAppointmentRepository) LinkReschedule(oldID, newID string) error {
	args := m.Called(oldID, newID)
	return args.Error(0)
}

// MockQueueRepository is a mock implementation of interfaces.QueueRepository
type MockQueueRepository struct {
	mock.Mock
}

func (m *MockQueueRepository) Create(entry *types.QueueEntry) error {
	args := m.Called(entry)
	return args.Error(0)
}

func (m *MockQueueRepository) GetByID(id string) (*types.QueueEntry, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.QueueEntry), args.Error(1)
}

func (m *MockQueueRepository) NextQueueNumber(doctorID string, date time.Time) (int, error) {
	args := m.Called(doctorID, date)
	return args.Int(0), args.Error(1)
}

func (m *MockQueueRepository) GetDoctorQueue(doctorID string, date time.Time, status types.QueueStatus) ([]*types.QueueEntry, error) {
	args := m.Called(doctorID, date, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*types.QueueEntry), args.Error(1)
}

func (m *MockQueueRepository) WaitingCount(doctorID string, date time.Time) (int, error) {
	args := m.Called(doctorID, date)
	return args.Int(0), args.Error(1)
}

func (m *MockQueueRepository) CallNext(doctorID string, date time.Time, at time.Time) (*types.QueueEntry, error) {
	args := m.Called(doctorID, date, at)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.QueueEntry), args.Error(1)
}

func (m *MockQueueRepository) UpdateStatus(id string, status types.QueueStatus, at time.Time) (*types.QueueEntry, error) {
	args := m.Called(id, status, at)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.QueueEntry), args.Error(1)
}

func (m *MockQueueRepository) ActiveEntryForAppointment(appointmentID string) (*types.QueueEntry, error) {
	args := m.Called(appointmentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.QueueEntry), args.Error(1)
}
