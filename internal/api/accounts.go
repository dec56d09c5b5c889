package api

import (
	"errors"
	"net/http"
	"strings"

	"vaccine-tracker/internal/auth"
	"vaccine-tracker/internal/errs"
	"vaccine-tracker/internal/models"
	"vaccine-tracker/internal/store"
)

type credentialsRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type tokenResponse struct {
	Message string      `json:"message"`
	Token   string      `json:"token"`
	User    models.User `json:"user"`
}

func (req credentialsRequest) validate() error {
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		return errs.New(errs.KindInvalidRequest, "Email and password are required")
	}
	if !strings.Contains(req.Email, "@") {
		return errs.New(errs.KindInvalidRequest, "Email is invalid")
	}
	return nil
}

func (s *Server) handleSignup(role string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req credentialsRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		if err := req.validate(); err != nil {
			writeError(w, r, err)
			return
		}

		hash, err := auth.HashPassword(req.Password)
		if err != nil {
			writeError(w, r, errs.Wrap(errs.KindUpstream, "Error during signup", err))
			return
		}
		user, err := s.deps.Accounts.CreateUser(r.Context(), store.CreateUserParams{
			Email:        req.Email,
			PasswordHash: hash,
			Role:         role,
			FirstName:    strings.TrimSpace(req.FirstName),
			LastName:     strings.TrimSpace(req.LastName),
		})
		if errors.Is(err, store.ErrConflict) {
			writeError(w, r, errs.New(errs.KindConflict, "Email already exists"))
			return
		}
		if err != nil {
			writeError(w, r, errs.Wrap(errs.KindUpstream, "Error during signup", err))
			return
		}

		token, err := s.deps.JWT.Sign(user.ID, user.Role)
		if err != nil {
			writeError(w, r, errs.Wrap(errs.KindUpstream, "Error during signup", err))
			return
		}
		writeJSON(w, http.StatusCreated, tokenResponse{Message: "Signup successful", Token: token, User: user})
	}
}

func (s *Server) handleLogin(role string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req credentialsRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		if strings.TrimSpace(req.Email) == "" || req.Password == "" {
			writeError(w, r, errs.New(errs.KindInvalidRequest, "Email and password are required"))
			return
		}

		badCredentials := errs.New(errs.KindUnauthorized, "Invalid email or password")
		user, err := s.deps.Accounts.GetUserByEmail(r.Context(), req.Email)
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, r, badCredentials)
			return
		}
		if err != nil {
			writeError(w, r, errs.Wrap(errs.KindUpstream, "Error during login", err))
			return
		}
		if user.Role != role || auth.ComparePassword(user.PasswordHash, req.Password) != nil {
			writeError(w, r, badCredentials)
			return
		}

		token, err := s.deps.JWT.Sign(user.ID, user.Role)
		if err != nil {
			writeError(w, r, errs.Wrap(errs.KindUpstream, "Error during login", err))
			return
		}
		writeJSON(w, http.StatusOK, tokenResponse{Message: "Login successful", Token: token, User: user})
	}
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	user, err := s.deps.Accounts.GetUser(r.Context(), userID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, r, errs.New(errs.KindNotFound, "User not found"))
		return
	}
	if err != nil {
		writeError(w, r, errs.Wrap(errs.KindUpstream, "Error fetching user", err))
		return
	}
	writeJSON(w, http.StatusOK, envelope{Message: "User fetched successfully", Data: user})
}
