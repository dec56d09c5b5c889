package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"vaccine-tracker/internal/models"
)

// CreateUserParams collects inputs required to insert an account.
type CreateUserParams struct {
	Email        string
	PasswordHash string
	Role         string
	FirstName    string
	LastName     string
}

const userColumns = `id, email, password_hash, role, first_name, last_name, gender, address, phone, birth, conditions, pregnant, created_at`

// CreateUser inserts an account and returns ErrConflict when the email is taken.
func (s *Store) CreateUser(ctx context.Context, p CreateUserParams) (models.User, error) {
	if p.Role == "" {
		p.Role = models.RoleUser
	}
	user := models.User{
		ID:           uuid.New().String(),
		Email:        strings.ToLower(strings.TrimSpace(p.Email)),
		PasswordHash: p.PasswordHash,
		Role:         p.Role,
		FirstName:    p.FirstName,
		LastName:     p.LastName,
		Conditions:   []string{},
		CreatedAt:    time.Now().UTC(),
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, email, password_hash, role, first_name, last_name, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, user.ID, user.Email, user.PasswordHash, user.Role, user.FirstName, user.LastName, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return models.User{}, fmt.Errorf("user %s: %w", user.Email, ErrConflict)
		}
		return models.User{}, fmt.Errorf("insert user: %w", err)
	}
	return user, nil
}

// GetUser fetches an account by id.
func (s *Store) GetUser(ctx context.Context, id string) (models.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return models.User{}, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	row := s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

// GetUserByEmail fetches an account by normalized email.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`,
		strings.ToLower(strings.TrimSpace(email)))
	return scanUser(row)
}

func scanUser(row pgx.Row) (models.User, error) {
	var u models.User
	var gender, address, phone pgtype.Text
	var birth pgtype.Date

	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Role, &u.FirstName, &u.LastName,
		&gender, &address, &phone, &birth, &u.Conditions, &u.Pregnant, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, fmt.Errorf("user: %w", ErrNotFound)
		}
		return models.User{}, fmt.Errorf("scan user: %w", err)
	}
	u.Gender = textPtr(gender)
	u.Address = textPtr(address)
	u.Phone = textPtr(phone)
	if birth.Valid {
		b := birth.Time
		u.Birth = &b
	}
	if u.Conditions == nil {
		u.Conditions = []string{}
	}
	return u, nil
}
