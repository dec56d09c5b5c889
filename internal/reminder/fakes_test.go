package reminder

import (
	"context"
	"fmt"
	"sync"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"vaccine-tracker/internal/config"
	"vaccine-tracker/internal/email"
	"vaccine-tracker/internal/models"
	"vaccine-tracker/internal/queue"
	"vaccine-tracker/internal/store"
)

type fakeDirectory struct {
	users     map[string]models.User
	vaccines  map[int64]models.Vaccine
	clinics   map[int64]models.Clinic
	clinicErr error
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		users: map[string]models.User{
			"user-a":  {ID: "user-a", Email: "a@example.com", FirstName: "Ana"},
			"user-b":  {ID: "user-b", Email: "b@example.com", LastName: "Brown"},
			"no-mail": {ID: "no-mail"},
		},
		vaccines: map[int64]models.Vaccine{1: {ID: 1, Name: "Influenza"}},
		clinics:  map[int64]models.Clinic{3: {ID: 3, Name: "Northside Clinic"}},
	}
}

func (f *fakeDirectory) GetUser(ctx context.Context, id string) (models.User, error) {
	if u, ok := f.users[id]; ok {
		return u, nil
	}
	return models.User{}, fmt.Errorf("user %s: %w", id, store.ErrNotFound)
}

func (f *fakeDirectory) GetVaccine(ctx context.Context, id int64) (models.Vaccine, error) {
	if v, ok := f.vaccines[id]; ok {
		return v, nil
	}
	return models.Vaccine{}, fmt.Errorf("vaccine %d: %w", id, store.ErrNotFound)
}

func (f *fakeDirectory) GetClinic(ctx context.Context, id int64) (models.Clinic, error) {
	if f.clinicErr != nil {
		return models.Clinic{}, f.clinicErr
	}
	if c, ok := f.clinics[id]; ok {
		return c, nil
	}
	return models.Clinic{}, fmt.Errorf("clinic %d: %w", id, store.ErrNotFound)
}

type fakeSender struct {
	mu   sync.Mutex
	sent []email.Message
	err  error
}

func (f *fakeSender) Send(ctx context.Context, msg email.Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.sent = append(f.sent, msg)
	return fmt.Sprintf("msg-%d", len(f.sent)), nil
}

type fakeLimiter struct{ allow bool }

func (f fakeLimiter) Allow(ctx context.Context, key string) (bool, float64, error) {
	return f.allow, 0, nil
}

func newTestQueue(t *testing.T) *queue.RedisQueue {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return queue.NewRedisQueueWithClient(client, config.Config{QueueName: "reminder-test", MaxAttempts: 3})
}
