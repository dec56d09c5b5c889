package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"vaccine-tracker/internal/auth"
	"vaccine-tracker/internal/errs"
	"vaccine-tracker/internal/reminder"
	"vaccine-tracker/internal/store"
)

type appointRequest struct {
	UserID          json.RawMessage `json:"user_id"`
	VacID           json.RawMessage `json:"vac_id"`
	ClinicID        json.RawMessage `json:"clinic_id"`
	AppointmentDate string          `json:"appointment_date"`
}

func (s *Server) handleAppoint(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	var req appointRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if requested := reminder.RawString(req.UserID); requested != "" && requested != userID {
		writeError(w, r, errs.New(errs.KindForbidden, "You can only record your own vaccinations"))
		return
	}
	vacID, err := reminder.ParseOptionalID(req.VacID, "vac_id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if vacID == nil {
		writeError(w, r, errs.New(errs.KindInvalidRequest, "vac_id is required"))
		return
	}
	clinicID, err := reminder.ParseOptionalID(req.ClinicID, "clinic_id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var appointment *time.Time
	if d := strings.TrimSpace(req.AppointmentDate); d != "" {
		t, err := time.Parse("2006-01-02", d)
		if err != nil || t.Format("2006-01-02") != d {
			writeError(w, r, errs.New(errs.KindInvalidRequest, "appointment_date must be a valid date (YYYY-MM-DD)"))
			return
		}
		appointment = &t
	}

	uv, err := s.deps.History.CreateUserVaccine(r.Context(), store.CreateUserVaccineParams{
		UserID:          userID,
		VacID:           *vacID,
		ClinicID:        clinicID,
		AppointmentDate: appointment,
	})
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, r, errs.New(errs.KindNotFound, "Vaccine not found"))
		return
	}
	if err != nil {
		writeError(w, r, errs.Wrap(errs.KindUpstream, "Error creating user vaccine", err))
		return
	}
	writeJSON(w, http.StatusCreated, envelope{Message: "UserVac created successfully", Data: uv})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	list, err := s.deps.History.ListUserVaccines(r.Context(), userID)
	if err != nil {
		writeError(w, r, errs.Wrap(errs.KindUpstream, "Error fetching user vaccines", err))
		return
	}
	writeJSON(w, http.StatusOK, envelope{Message: "UserVacs fetched successfully", Data: list})
}
