package api

import (
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"vaccine-tracker/internal/auth"
	"vaccine-tracker/internal/reminder"
)

func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	var req reminder.ScheduleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.deps.Reminders.Schedule(r.Context(), userID, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !res.Created {
		writeJSON(w, http.StatusOK, envelope{Message: "Reminder already scheduled", Data: res})
		return
	}
	writeJSON(w, http.StatusCreated, envelope{Message: "Reminder scheduled successfully", Data: res})
}

func (s *Server) handleListReminders(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	jobs, err := s.deps.Reminders.List(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Message: "Reminders fetched successfully", Data: jobs})
}

func (s *Server) handleCancelReminder(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	jobID := chi.URLParam(r, "jobID")
	if r.URL.RawPath != "" {
		// chi matched on the escaped path; free-text vaccine names may contain slashes.
		if unescaped, err := url.PathUnescape(jobID); err == nil {
			jobID = unescaped
		}
	}
	if err := s.deps.Reminders.Cancel(r.Context(), userID, jobID); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Message: "Reminder cancelled", Data: map[string]string{"job_id": jobID}})
}
