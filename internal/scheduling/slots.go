package scheduling

import (
	"time"

	"github.com/medgrid/clinic-scheduling/pkg/types"
)

// SlotPlan is the input to planning: the effective schedule for a day, the
// current occupancy per slot time, and any approved leave for that day.
type SlotPlan struct {
	Schedule *types.DoctorSchedule
	// Booked maps slot start time to the number of active appointments.
	Booked map[types.TimeOfDay]int
	// Leave is the approved leave covering the day, nil when none.
	Leave *types.DoctorLeave
	// Now prunes slots already in the past; zero means no pruning (future
	// dates).
	Now types.TimeOfDay
	// PruneToday is true when the planned date is the current date.
	PruneToday bool
}

// PlanSlots expands a schedule into the bookable slots for one day.
// Slots are generated from the window start in slot-duration steps; a slot
// must end on or before the window end. Slots starting inside the schedule's
// break window, slots covered by leave, fully booked slots, and (for today)
// slots that already started are dropped.
func PlanSlots(p SlotPlan) []*types.Slot {
	sched := p.Schedule
	if sched == nil || sched.SlotDurationMinutes <= 0 {
		return nil
	}

	// A full-day approved leave removes the whole day.
	if p.Leave != nil && !p.Leave.IsPartialDay() {
		return nil
	}

	var slots []*types.Slot
	duration := sched.SlotDurationMinutes
	end := sched.EndTime.Minutes()

	for start := sched.StartTime.Minutes(); start+duration <= end; start += duration {
		slotStart := types.MinutesOfDay(start)
		slotEnd := types.MinutesOfDay(start + duration)

		if p.PruneToday && !p.Now.Before(slotStart) {
			continue
		}

		if startsInBreak(sched, slotStart) {
			continue
		}

		if p.Leave != nil && p.Leave.IsPartialDay() &&
			overlaps(slotStart, slotEnd, *p.Leave.StartTime, *p.Leave.EndTime) {
			continue
		}

		available := sched.MaxPatientsPerSlot - p.Booked[slotStart]
		if available <= 0 {
			continue
		}

		slots = append(slots, &types.Slot{
			Time:            slotStart,
			AvailableSlots:  available,
			DurationMinutes: duration,
		})
	}

	return slots
}

// overlaps reports whether the half-open intervals [aStart, aEnd) and
// [bStart, bEnd) intersect.
func overlaps(aStart, aEnd, bStart, bEnd types.TimeOfDay) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

// startsInBreak reports whether a slot start lands inside the schedule's
// break window [BreakStart, BreakEnd). A slot that merely runs into the
// break still counts as bookable.
func startsInBreak(sched *types.DoctorSchedule, t types.TimeOfDay) bool {
	if sched.BreakStart == nil || sched.BreakEnd == nil {
		return false
	}
	return !t.Before(*sched.BreakStart) && t.Before(*sched.BreakEnd)
}

// SlotWithin reports whether a slot starting at t with the schedule's
// duration fits the schedule window and lands on a slot boundary.
func SlotWithin(sched *types.DoctorSchedule, t types.TimeOfDay) bool {
	start := sched.StartTime.Minutes()
	end := sched.EndTime.Minutes()
	offset := t.Minutes() - start

	if offset < 0 || offset%sched.SlotDurationMinutes != 0 {
		return false
	}
	if t.Minutes()+sched.SlotDurationMinutes > end {
		return false
	}

	return !startsInBreak(sched, t)
}

// LeaveCoversSlot reports whether an approved leave blocks a slot starting at
// t with the given duration on the leave's dates. A full-day leave blocks
// everything; a partial-day leave blocks only the covered window.
func LeaveCoversSlot(leave *types.DoctorLeave, t types.TimeOfDay, durationMinutes int) bool {
	if leave == nil {
		return false
	}
	if !leave.IsPartialDay() {
		return true
	}
	return overlaps(t, t.Add(durationMinutes), *leave.StartTime, *leave.EndTime)
}

// DateOnly truncates an instant to midnight UTC.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
