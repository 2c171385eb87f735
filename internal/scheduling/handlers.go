package scheduling

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/medgrid/clinic-scheduling/pkg/auth"
	"github.com/medgrid/clinic-scheduling/pkg/types"
)

// setupRoutes configures HTTP routes for the scheduling service
func (s *Service) setupRoutes(router *mux.Router) {
	// Public endpoints
	router.HandleFunc("/health", s.health.HTTPHandler()).Methods("GET")
	if s.metrics != nil {
		router.Handle(s.config.Monitoring.MetricsPath, s.metrics.Handler()).Methods("GET")
	}
	router.HandleFunc("/api/v1/doctors/{doctorId}/available-slots", s.getAvailableSlotsHandler).Methods("GET")

	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(s.validator.Middleware(s.logger))

	// Schedule routes
	api.HandleFunc("/schedules", s.createScheduleHandler).Methods("POST")
	api.HandleFunc("/schedules/{id}", s.getScheduleHandler).Methods("GET")
	api.HandleFunc("/schedules/{id}", s.updateScheduleHandler).Methods("PATCH")
	api.HandleFunc("/schedules/{id}", s.deleteScheduleHandler).Methods("DELETE")
	api.HandleFunc("/schedules/{id}/deactivate", s.deactivateScheduleHandler).Methods("POST")
	api.HandleFunc("/doctors/{doctorId}/schedules", s.getDoctorSchedulesHandler).Methods("GET")

	// Leave routes
	api.HandleFunc("/leaves", s.requestLeaveHandler).Methods("POST")
	api.HandleFunc("/leaves/{id}", s.getLeaveHandler).Methods("GET")
	api.HandleFunc("/leaves/{id}/approve", s.approveLeaveHandler).Methods("POST")
	api.HandleFunc("/leaves/{id}/reject", s.rejectLeaveHandler).Methods("POST")
	api.HandleFunc("/leaves/{id}/cancel", s.cancelLeaveHandler).Methods("POST")
	api.HandleFunc("/doctors/{doctorId}/leaves", s.getDoctorLeavesHandler).Methods("GET")

	// Appointment routes
	api.HandleFunc("/appointments", s.createAppointmentHandler).Methods("POST")
	api.HandleFunc("/appointments", s.getAppointmentsHandler).Methods("GET")
	api.HandleFunc("/appointments/today", s.getTodayAppointmentsHandler).Methods("GET")
	api.HandleFunc("/appointments/number/{number}", s.getAppointmentByNumberHandler).Methods("GET")
	api.HandleFunc("/appointments/{id}", s.getAppointmentHandler).Methods("GET")
	api.HandleFunc("/appointments/{id}", s.updateAppointmentHandler).Methods("PATCH")
	api.HandleFunc("/appointments/{id}/confirm", s.confirmAppointmentHandler).Methods("POST")
	api.HandleFunc("/appointments/{id}/check-in", s.checkInAppointmentHandler).Methods("POST")
	api.HandleFunc("/appointments/{id}/cancel", s.cancelAppointmentHandler).Methods("POST")
	api.HandleFunc("/appointments/{id}/reschedule", s.rescheduleAppointmentHandler).Methods("POST")
	api.HandleFunc("/appointments/{id}/no-show", s.markNoShowHandler).Methods("POST")

	// Queue routes
	api.HandleFunc("/queue/walk-in", s.addWalkInHandler).Methods("POST")
	api.HandleFunc("/queue/{id}/start", s.startConsultationHandler).Methods("POST")
	api.HandleFunc("/queue/{id}/complete", s.completeConsultationHandler).Methods("POST")
	api.HandleFunc("/queue/{id}/skip", s.skipPatientHandler).Methods("POST")
	api.HandleFunc("/queue/{id}/left", s.markLeftHandler).Methods("POST")
	api.HandleFunc("/doctors/{doctorId}/queue", s.getDoctorQueueHandler).Methods("GET")
	api.HandleFunc("/doctors/{doctorId}/queue/waiting-count", s.getWaitingCountHandler).Methods("GET")
	api.HandleFunc("/doctors/{doctorId}/queue/call-next", s.callNextHandler).Methods("POST")

	s.logger.Info("Scheduling service routes configured")
}

// Schedule handlers

func (s *Service) createScheduleHandler(w http.ResponseWriter, r *http.Request) {
	var schedule types.DoctorSchedule
	if err := json.NewDecoder(r.Body).Decode(&schedule); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	created, err := s.schedules.CreateSchedule(&schedule, auth.FromContext(r.Context()))
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSONResponse(w, http.StatusCreated, created)
}

func (s *Service) getScheduleHandler(w http.ResponseWriter, r *http.Request) {
	schedule, err := s.schedules.GetSchedule(mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, schedule)
}

func (s *Service) updateScheduleHandler(w http.ResponseWriter, r *http.Request) {
	var updates types.ScheduleUpdates
	if err := json.NewDecoder(r.Body).Decode(&updates); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	updated, err := s.schedules.UpdateSchedule(mux.Vars(r)["id"], &updates, auth.FromContext(r.Context()))
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, updated)
}

func (s *Service) deleteScheduleHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.schedules.DeleteSchedule(mux.Vars(r)["id"], auth.FromContext(r.Context())); err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, map[string]string{"message": "Schedule deleted successfully"})
}

func (s *Service) deactivateScheduleHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.schedules.DeactivateSchedule(mux.Vars(r)["id"], auth.FromContext(r.Context())); err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, map[string]string{"message": "Schedule deactivated successfully"})
}

func (s *Service) getDoctorSchedulesHandler(w http.ResponseWriter, r *http.Request) {
	activeOnly, _ := strconv.ParseBool(r.URL.Query().Get("active_only"))

	schedules, err := s.schedules.GetDoctorSchedules(mux.Vars(r)["doctorId"], activeOnly)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, schedules)
}

// Leave handlers

func (s *Service) requestLeaveHandler(w http.ResponseWriter, r *http.Request) {
	var leave types.DoctorLeave
	if err := json.NewDecoder(r.Body).Decode(&leave); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	created, err := s.leaves.RequestLeave(&leave, auth.FromContext(r.Context()))
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSONResponse(w, http.StatusCreated, created)
}

func (s *Service) getLeaveHandler(w http.ResponseWriter, r *http.Request) {
	leave, err := s.leaves.GetLeave(mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, leave)
}

func (s *Service) approveLeaveHandler(w http.ResponseWriter, r *http.Request) {
	leave, err := s.leaves.ApproveLeave(mux.Vars(r)["id"], auth.FromContext(r.Context()))
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, leave)
}

func (s *Service) rejectLeaveHandler(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	leave, err := s.leaves.RejectLeave(mux.Vars(r)["id"], body.Reason, auth.FromContext(r.Context()))
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, leave)
}

func (s *Service) cancelLeaveHandler(w http.ResponseWriter, r *http.Request) {
	leave, err := s.leaves.CancelLeave(mux.Vars(r)["id"], auth.FromContext(r.Context()))
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, leave)
}

func (s *Service) getDoctorLeavesHandler(w http.ResponseWriter, r *http.Request) {
	status := types.LeaveStatus(r.URL.Query().Get("status"))

	leaves, err := s.leaves.GetDoctorLeaves(mux.Vars(r)["doctorId"], status)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, leaves)
}

// Appointment handlers

func (s *Service) createAppointmentHandler(w http.ResponseWriter, r *http.Request) {
	var apt types.Appointment
	if err := json.NewDecoder(r.Body).Decode(&apt); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	created, err := s.appointments.CreateAppointment(&apt, auth.FromContext(r.Context()))
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSONResponse(w, http.StatusCreated, created)
}

func (s *Service) getAppointmentsHandler(w http.ResponseWriter, r *http.Request) {
	filters := parseAppointmentFilters(r)

	appointments, total, err := s.appointments.GetAppointments(filters)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"appointments": appointments,
		"total":        total,
		"limit":        filters.Limit,
		"offset":       filters.Offset,
	})
}

func (s *Service) getTodayAppointmentsHandler(w http.ResponseWriter, r *http.Request) {
	appointments, err := s.appointments.GetTodayAppointments(
		r.URL.Query().Get("doctor_id"),
		r.URL.Query().Get("department_id"),
	)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, appointments)
}

func (s *Service) getAppointmentHandler(w http.ResponseWriter, r *http.Request) {
	apt, err := s.appointments.GetAppointment(mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, apt)
}

func (s *Service) getAppointmentByNumberHandler(w http.ResponseWriter, r *http.Request) {
	apt, err := s.appointments.GetAppointmentByNumber(mux.Vars(r)["number"])
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, apt)
}

func (s *Service) updateAppointmentHandler(w http.ResponseWriter, r *http.Request) {
	var updates types.AppointmentUpdates
	if err := json.NewDecoder(r.Body).Decode(&updates); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	updated, err := s.appointments.UpdateAppointment(mux.Vars(r)["id"], &updates, auth.FromContext(r.Context()))
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, updated)
}

func (s *Service) confirmAppointmentHandler(w http.ResponseWriter, r *http.Request) {
	apt, err := s.appointments.ConfirmAppointment(mux.Vars(r)["id"], auth.FromContext(r.Context()))
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, apt)
}

func (s *Service) checkInAppointmentHandler(w http.ResponseWriter, r *http.Request) {
	apt, entry, err := s.appointments.CheckInAppointment(mux.Vars(r)["id"], auth.FromContext(r.Context()))
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"appointment": apt,
		"queue_entry": entry,
	})
}

func (s *Service) cancelAppointmentHandler(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	apt, err := s.appointments.CancelAppointment(mux.Vars(r)["id"], body.Reason, auth.FromContext(r.Context()))
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, apt)
}

func (s *Service) rescheduleAppointmentHandler(w http.ResponseWriter, r *http.Request) {
	var body struct {
		NewDate string `json:"new_date"`
		NewTime string `json:"new_time"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	newDate, err := time.Parse(types.DateOnly, body.NewDate)
	if err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "new_date must be YYYY-MM-DD", err)
		return
	}
	newTime, err := types.ParseTimeOfDay(body.NewTime)
	if err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "new_time must be HH:MM", err)
		return
	}

	apt, err := s.appointments.RescheduleAppointment(mux.Vars(r)["id"], newDate, newTime, auth.FromContext(r.Context()))
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSONResponse(w, http.StatusCreated, apt)
}

func (s *Service) markNoShowHandler(w http.ResponseWriter, r *http.Request) {
	apt, err := s.appointments.MarkNoShow(mux.Vars(r)["id"], auth.FromContext(r.Context()))
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, apt)
}

func (s *Service) getAvailableSlotsHandler(w http.ResponseWriter, r *http.Request) {
	dateStr := r.URL.Query().Get("date")
	if dateStr == "" {
		s.writeErrorResponse(w, http.StatusBadRequest, "date parameter is required", nil)
		return
	}

	date, err := time.Parse(types.DateOnly, dateStr)
	if err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "date must be YYYY-MM-DD", err)
		return
	}

	slots, err := s.appointments.GetAvailableSlots(mux.Vars(r)["doctorId"], date)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"doctor_id": mux.Vars(r)["doctorId"],
		"date":      dateStr,
		"slots":     slots,
	})
}

// Queue handlers

func (s *Service) addWalkInHandler(w http.ResponseWriter, r *http.Request) {
	var body struct {
		PatientID    string `json:"patient_id"`
		DoctorID     string `json:"doctor_id"`
		DepartmentID string `json:"department_id"`
		IsEmergency  bool   `json:"is_emergency"`
		Notes        string `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	entry, err := s.queues.AddWalkIn(body.PatientID, body.DoctorID, body.DepartmentID,
		body.IsEmergency, body.Notes, auth.FromContext(r.Context()))
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSONResponse(w, http.StatusCreated, entry)
}

func (s *Service) getDoctorQueueHandler(w http.ResponseWriter, r *http.Request) {
	date, err := parseDateParam(r, "date")
	if err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "date must be YYYY-MM-DD", err)
		return
	}
	status := types.QueueStatus(r.URL.Query().Get("status"))

	entries, err := s.queues.GetDoctorQueue(mux.Vars(r)["doctorId"], date, status)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, entries)
}

func (s *Service) getWaitingCountHandler(w http.ResponseWriter, r *http.Request) {
	date, err := parseDateParam(r, "date")
	if err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "date must be YYYY-MM-DD", err)
		return
	}

	count, err := s.queues.GetWaitingCount(mux.Vars(r)["doctorId"], date)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"doctor_id":     mux.Vars(r)["doctorId"],
		"waiting_count": count,
	})
}

func (s *Service) callNextHandler(w http.ResponseWriter, r *http.Request) {
	entry, err := s.queues.CallNext(mux.Vars(r)["doctorId"], auth.FromContext(r.Context()))
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, entry)
}

func (s *Service) startConsultationHandler(w http.ResponseWriter, r *http.Request) {
	entry, err := s.queues.StartConsultation(mux.Vars(r)["id"], auth.FromContext(r.Context()))
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, entry)
}

func (s *Service) completeConsultationHandler(w http.ResponseWriter, r *http.Request) {
	entry, err := s.queues.CompleteConsultation(mux.Vars(r)["id"], auth.FromContext(r.Context()))
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, entry)
}

func (s *Service) skipPatientHandler(w http.ResponseWriter, r *http.Request) {
	entry, err := s.queues.SkipPatient(mux.Vars(r)["id"], auth.FromContext(r.Context()))
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, entry)
}

func (s *Service) markLeftHandler(w http.ResponseWriter, r *http.Request) {
	entry, err := s.queues.MarkLeft(mux.Vars(r)["id"], auth.FromContext(r.Context()))
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, entry)
}

// Helpers

func parseDateParam(r *http.Request, name string) (time.Time, error) {
	value := r.URL.Query().Get(name)
	if value == "" {
		return time.Time{}, nil
	}
	return time.Parse(types.DateOnly, value)
}

// parseAppointmentFilters parses query parameters into appointment filters
func parseAppointmentFilters(r *http.Request) *types.AppointmentFilters {
	filters := &types.AppointmentFilters{}
	q := r.URL.Query()

	filters.PatientID = q.Get("patient_id")
	filters.DoctorID = q.Get("doctor_id")
	filters.DepartmentID = q.Get("department_id")
	filters.Status = types.AppointmentStatus(q.Get("status"))
	filters.Type = types.AppointmentType(q.Get("type"))

	if fromDate := q.Get("date_from"); fromDate != "" {
		if parsed, err := time.Parse(types.DateOnly, fromDate); err == nil {
			filters.DateFrom = parsed
		}
	}

	if toDate := q.Get("date_to"); toDate != "" {
		if parsed, err := time.Parse(types.DateOnly, toDate); err == nil {
			filters.DateTo = parsed
		}
	}

	if emergency := q.Get("is_emergency"); emergency != "" {
		if parsed, err := strconv.ParseBool(emergency); err == nil {
			filters.IsEmergency = &parsed
		}
	}

	if limit := q.Get("limit"); limit != "" {
		if parsed, err := strconv.Atoi(limit); err == nil {
			filters.Limit = parsed
		}
	}

	if offset := q.Get("offset"); offset != "" {
		if parsed, err := strconv.Atoi(offset); err == nil {
			filters.Offset = parsed
		}
	}

	return filters
}

// writeError maps typed domain errors to their HTTP status
func (s *Service) writeError(w http.ResponseWriter, err error) {
	var typed *types.Error
	if errors.As(err, &typed) {
		s.writeJSONResponse(w, typed.HTTPStatus(), map[string]interface{}{
			"error":   typed.Message,
			"code":    typed.Code,
			"details": typed.Details,
		})
		return
	}

	s.writeErrorResponse(w, http.StatusInternalServerError, "Internal server error", err)
}

// writeJSONResponse writes a JSON response
func (s *Service) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.WithError(err).Error("Failed to encode JSON response")
	}
}

// writeErrorResponse writes an error response
func (s *Service) writeErrorResponse(w http.ResponseWriter, statusCode int, message string, err error) {
	if err != nil {
		s.logger.WithError(err).Error(message)
	}

	response := map[string]interface{}{
		"error":  message,
		"status": statusCode,
	}
	if err != nil {
		response["details"] = err.Error()
	}

	s.writeJSONResponse(w, statusCode, response)
}
