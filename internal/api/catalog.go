package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"vaccine-tracker/internal/errs"
)

func (s *Server) handleListVaccines(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.Catalog.Vaccines(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Message: "Vaccines fetched successfully", Data: list})
}

func (s *Server) handleSearchVaccines(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.Catalog.SearchVaccines(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Message: "Vaccines fetched successfully", Data: list})
}

func (s *Server) handleListClinics(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.Catalog.Clinics(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Message: "Clinics fetched successfully", Data: list})
}

func (s *Server) handleGetClinic(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "clinicID"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, r, errs.New(errs.KindInvalidRequest, "clinic id must be a positive integer"))
		return
	}
	clinic, err := s.deps.Catalog.Clinic(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Message: "Clinic fetched successfully", Data: clinic})
}
