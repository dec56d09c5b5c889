package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"vaccine-tracker/internal/auth"
	"vaccine-tracker/internal/catalog"
	"vaccine-tracker/internal/config"
	"vaccine-tracker/internal/models"
	"vaccine-tracker/internal/queue"
	"vaccine-tracker/internal/reminder"
	"vaccine-tracker/internal/store"
)

// memStore is an in-memory stand-in for the Postgres store.
type memStore struct {
	mu       sync.Mutex
	users    map[string]models.User
	vaccines map[int64]models.Vaccine
	clinics  map[int64]models.Clinic
	history  []models.UserVaccine
}

func newMemStore() *memStore {
	return &memStore{
		users:    map[string]models.User{},
		vaccines: map[int64]models.Vaccine{1: {ID: 1, Name: "Influenza"}, 2: {ID: 2, Name: "Hepatitis B"}},
		clinics:  map[int64]models.Clinic{3: {ID: 3, Name: "Northside Clinic"}},
	}
}

func (m *memStore) CreateUser(ctx context.Context, p store.CreateUserParams) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	email := strings.ToLower(strings.TrimSpace(p.Email))
	for _, u := range m.users {
		if u.Email == email {
			return models.User{}, store.ErrConflict
		}
	}
	u := models.User{ID: uuid.NewString(), Email: email, PasswordHash: p.PasswordHash, Role: p.Role,
		FirstName: p.FirstName, LastName: p.LastName, Conditions: []string{}, CreatedAt: time.Now()}
	m.users[u.ID] = u
	return u, nil
}

func (m *memStore) GetUser(ctx context.Context, id string) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return models.User{}, store.ErrNotFound
}

func (m *memStore) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == strings.ToLower(strings.TrimSpace(email)) {
			return u, nil
		}
	}
	return models.User{}, store.ErrNotFound
}

func (m *memStore) GetVaccine(ctx context.Context, id int64) (models.Vaccine, error) {
	if v, ok := m.vaccines[id]; ok {
		return v, nil
	}
	return models.Vaccine{}, fmt.Errorf("vaccine %d: %w", id, store.ErrNotFound)
}

func (m *memStore) ListVaccines(ctx context.Context) ([]models.Vaccine, error) {
	return []models.Vaccine{m.vaccines[2], m.vaccines[1]}, nil
}

func (m *memStore) SearchVaccines(ctx context.Context, q string) ([]models.Vaccine, error) {
	out := []models.Vaccine{}
	for _, v := range m.vaccines {
		if strings.Contains(strings.ToLower(v.Name), strings.ToLower(q)) {
			out = append(out, v)
		}
	}
	return out, nil
}

func (m *memStore) GetClinic(ctx context.Context, id int64) (models.Clinic, error) {
	if c, ok := m.clinics[id]; ok {
		return c, nil
	}
	return models.Clinic{}, fmt.Errorf("clinic %d: %w", id, store.ErrNotFound)
}

func (m *memStore) ListClinics(ctx context.Context) ([]models.Clinic, error) {
	return []models.Clinic{m.clinics[3]}, nil
}

func (m *memStore) CreateUserVaccine(ctx context.Context, p store.CreateUserVaccineParams) (models.UserVaccine, error) {
	v, err := m.GetVaccine(ctx, p.VacID)
	if err != nil {
		return models.UserVaccine{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	uv := models.UserVaccine{ID: int64(len(m.history) + 1), UserID: p.UserID, VacID: p.VacID, ClinicID: p.ClinicID,
		AppointmentDate: p.AppointmentDate, CreatedAt: time.Now(), VacDetails: &v}
	m.history = append(m.history, uv)
	return uv, nil
}

func (m *memStore) ListUserVaccines(ctx context.Context, userID string) ([]models.UserVaccine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.UserVaccine{}
	for _, uv := range m.history {
		if uv.UserID == userID {
			out = append(out, uv)
		}
	}
	return out, nil
}

type testEnv struct {
	srv   *httptest.Server
	store *memStore
	queue *queue.RedisQueue
	jwt   *auth.JWT
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := config.Config{QueueName: "api-test", MaxAttempts: 3, CORSOrigins: []string{"*"}}
	q := queue.NewRedisQueueWithClient(client, cfg)
	st := newMemStore()
	jwtSvc := auth.NewJWT("test-secret", time.Hour)
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	reminders := reminder.NewService(q, reminder.NewResolver(st), nil, reminder.Options{
		DefaultOffsetDays:  14,
		AppointmentHourUTC: 9,
		Now:                func() time.Time { return now },
	})
	server := New(cfg, Deps{
		Accounts:  st,
		History:   st,
		Catalog:   catalog.NewService(st, time.Minute),
		Reminders: reminders,
		JWT:       jwtSvc,
		Ready:     func(ctx context.Context) error { return client.Ping(ctx).Err() },
	})
	srv := httptest.NewServer(server.Router())
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, store: st, queue: q, jwt: jwtSvc}
}

type apiResponse struct {
	Message string          `json:"message"`
	Token   string          `json:"token"`
	Data    json.RawMessage `json:"data"`
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) (int, apiResponse) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req, err := http.NewRequest(method, e.srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := e.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out apiResponse
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func (e *testEnv) signup(t *testing.T, email string) (string, string) {
	t.Helper()
	code, resp := e.do(t, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"email": email, "password": "hunter22", "first_name": "Ana",
	})
	require.Equal(t, http.StatusCreated, code, resp.Message)
	claims, err := e.jwt.Verify(resp.Token)
	require.NoError(t, err)
	return resp.Token, claims.UserID
}
