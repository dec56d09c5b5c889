package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"vaccine-tracker/internal/auth"
	"vaccine-tracker/internal/config"
	"vaccine-tracker/internal/errs"
	"vaccine-tracker/internal/models"
	"vaccine-tracker/internal/reminder"
	"vaccine-tracker/internal/store"
	"vaccine-tracker/internal/telemetry"
)

// Accounts stores user and clinic logins.
type Accounts interface {
	CreateUser(ctx context.Context, p store.CreateUserParams) (models.User, error)
	GetUser(ctx context.Context, id string) (models.User, error)
	GetUserByEmail(ctx context.Context, email string) (models.User, error)
}

// History stores vaccination records.
type History interface {
	GetVaccine(ctx context.Context, id int64) (models.Vaccine, error)
	CreateUserVaccine(ctx context.Context, p store.CreateUserVaccineParams) (models.UserVaccine, error)
	ListUserVaccines(ctx context.Context, userID string) ([]models.UserVaccine, error)
}

// Catalog serves vaccine and clinic lookups.
type Catalog interface {
	Vaccines(ctx context.Context) ([]models.Vaccine, error)
	SearchVaccines(ctx context.Context, q string) ([]models.Vaccine, error)
	Clinics(ctx context.Context) ([]models.Clinic, error)
	Clinic(ctx context.Context, id int64) (models.Clinic, error)
}

// Reminders schedules, lists and cancels reminder jobs.
type Reminders interface {
	Schedule(ctx context.Context, callerID string, req reminder.ScheduleRequest) (reminder.ScheduleResult, error)
	List(ctx context.Context, callerID string) ([]reminder.ReminderJob, error)
	Cancel(ctx context.Context, callerID, jobID string) error
}

// Deps are the collaborators the HTTP layer dispatches to.
type Deps struct {
	Accounts  Accounts
	History   History
	Catalog   Catalog
	Reminders Reminders
	JWT       *auth.JWT
	// Ready reports backing-store health for /healthz. Optional.
	Ready func(ctx context.Context) error
}

// Server wires HTTP handlers for the vaccine tracker API.
type Server struct {
	cfg  config.Config
	deps Deps
}

// New constructs the API server.
func New(cfg config.Config, deps Deps) *Server {
	return &Server{cfg: cfg, deps: deps}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.handleHealth)
	r.Mount("/metrics", telemetry.Handler())

	requireAuth := auth.RequireAuth(s.deps.JWT)

	r.Route("/api", func(r chi.Router) {
		r.Use(contentTypeJSON)

		r.Post("/auth/signup", s.handleSignup(models.RoleUser))
		r.Post("/auth/login", s.handleLogin(models.RoleUser))

		r.With(requireAuth).Get("/user/me", s.handleMe)

		r.Get("/vaccine", s.handleListVaccines)
		r.Get("/vaccine/search", s.handleSearchVaccines)

		r.Route("/clinic", func(r chi.Router) {
			r.Get("/", s.handleListClinics)
			r.Post("/signup", s.handleSignup(models.RoleClinic))
			r.Post("/login", s.handleLogin(models.RoleClinic))
			r.Get("/{clinicID}", s.handleGetClinic)
		})

		r.Route("/user-vac", func(r chi.Router) {
			r.Use(requireAuth)
			r.Get("/history", s.handleHistory)
			r.Post("/appoint", s.handleAppoint)
		})

		r.Route("/reminder", func(r chi.Router) {
			r.Use(requireAuth)
			r.Post("/schedule", s.handleSchedule)
			r.Get("/", s.handleListReminders)
			r.Delete("/{jobID}", s.handleCancelReminder)
		})
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.Ready(ctx); err != nil {
			slog.Error("Server.handleHealth: dependency unavailable", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type envelope struct {
	Message string `json:"message,omitempty"`
	Data    any    `json:"data"`
}

type errorBody struct {
	Message string `json:"message"`
}

func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return errs.Wrap(errs.KindInvalidRequest, "invalid json", err)
	}
	return nil
}

func statusFor(kind errs.Kind) int {
	switch kind {
	case errs.KindUnauthorized:
		return http.StatusUnauthorized
	case errs.KindForbidden:
		return http.StatusForbidden
	case errs.KindInvalidRequest:
		return http.StatusBadRequest
	case errs.KindNotFound:
		return http.StatusNotFound
	case errs.KindConflict:
		return http.StatusConflict
	case errs.KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps a classified error to a status and a caller-safe message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(errs.KindOf(err))
	if code >= http.StatusInternalServerError {
		slog.Error("Server: request failed", "method", r.Method, "path", r.URL.Path,
			"request_id", chimw.GetReqID(r.Context()), "error", err)
	}
	writeJSON(w, code, errorBody{Message: errs.Message(err)})
}

func contentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
