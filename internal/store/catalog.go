package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"vaccine-tracker/internal/models"
)

const vaccineColumns = `id, name, description, doses, min_age_years, max_age_years, created_at`

// GetVaccine fetches a catalog vaccine by id.
func (s *Store) GetVaccine(ctx context.Context, id int64) (models.Vaccine, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+vaccineColumns+` FROM vaccines WHERE id = $1`, id)
	v, err := scanVaccine(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Vaccine{}, fmt.Errorf("vaccine %d: %w", id, ErrNotFound)
	}
	return v, err
}

// ListVaccines returns the whole catalog ordered by name.
func (s *Store) ListVaccines(ctx context.Context) ([]models.Vaccine, error) {
	return s.queryVaccines(ctx, `SELECT `+vaccineColumns+` FROM vaccines ORDER BY name, id`)
}

// SearchVaccines matches names case-insensitively on a substring.
func (s *Store) SearchVaccines(ctx context.Context, q string) ([]models.Vaccine, error) {
	pattern := "%" + escapeLike(strings.TrimSpace(q)) + "%"
	return s.queryVaccines(ctx, `SELECT `+vaccineColumns+` FROM vaccines WHERE name ILIKE $1 ORDER BY name, id`, pattern)
}

func (s *Store) queryVaccines(ctx context.Context, sql string, args ...any) ([]models.Vaccine, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query vaccines: %w", err)
	}
	defer rows.Close()

	out := []models.Vaccine{}
	for rows.Next() {
		v, err := scanVaccine(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func scanVaccine(row pgx.Row) (models.Vaccine, error) {
	var v models.Vaccine
	var desc pgtype.Text
	var minAge, maxAge pgtype.Int4
	if err := row.Scan(&v.ID, &v.Name, &desc, &v.Doses, &minAge, &maxAge, &v.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Vaccine{}, err
		}
		return models.Vaccine{}, fmt.Errorf("scan vaccine: %w", err)
	}
	v.Description = textPtr(desc)
	v.MinAgeYears = int4Ptr(minAge)
	v.MaxAgeYears = int4Ptr(maxAge)
	return v, nil
}

// GetClinic fetches a clinic by id.
func (s *Store) GetClinic(ctx context.Context, id int64) (models.Clinic, error) {
	var c models.Clinic
	var address, phone pgtype.Text
	err := s.pool.QueryRow(ctx, `SELECT id, name, address, phone, created_at FROM clinics WHERE id = $1`, id).
		Scan(&c.ID, &c.Name, &address, &phone, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Clinic{}, fmt.Errorf("clinic %d: %w", id, ErrNotFound)
		}
		return models.Clinic{}, fmt.Errorf("scan clinic: %w", err)
	}
	c.Address = textPtr(address)
	c.Phone = textPtr(phone)
	return c, nil
}

// ListClinics returns all clinics ordered by name.
func (s *Store) ListClinics(ctx context.Context) ([]models.Clinic, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, address, phone, created_at FROM clinics ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("query clinics: %w", err)
	}
	defer rows.Close()

	out := []models.Clinic{}
	for rows.Next() {
		var c models.Clinic
		var address, phone pgtype.Text
		if err := rows.Scan(&c.ID, &c.Name, &address, &phone, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan clinic: %w", err)
		}
		c.Address = textPtr(address)
		c.Phone = textPtr(phone)
		out = append(out, c)
	}
	return out, rows.Err()
}

// CreateUserVaccineParams collects inputs for a vaccination record.
type CreateUserVaccineParams struct {
	UserID          string
	VacID           int64
	ClinicID        *int64
	AppointmentDate *time.Time
}

// CreateUserVaccine records an appointment or vaccination for a user. The
// vaccine must exist; ErrNotFound is returned otherwise.
func (s *Store) CreateUserVaccine(ctx context.Context, p CreateUserVaccineParams) (models.UserVaccine, error) {
	vac, err := s.GetVaccine(ctx, p.VacID)
	if err != nil {
		return models.UserVaccine{}, err
	}

	uv := models.UserVaccine{
		UserID:          p.UserID,
		VacID:           p.VacID,
		ClinicID:        p.ClinicID,
		AppointmentDate: p.AppointmentDate,
		VacDetails:      &vac,
	}
	err = s.pool.QueryRow(ctx, `
		INSERT INTO user_vaccines (user_id, vac_id, clinic_id, appointment_date)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`, p.UserID, p.VacID, p.ClinicID, p.AppointmentDate).Scan(&uv.ID, &uv.CreatedAt)
	if err != nil {
		return models.UserVaccine{}, fmt.Errorf("insert user vaccine: %w", err)
	}
	return uv, nil
}

// ListUserVaccines returns a user's records, newest first, with vaccine details joined in.
func (s *Store) ListUserVaccines(ctx context.Context, userID string) ([]models.UserVaccine, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT uv.id, uv.user_id, uv.vac_id, uv.clinic_id, uv.appointment_date, uv.created_at,
		       v.id, v.name, v.description, v.doses, v.min_age_years, v.max_age_years, v.created_at
		FROM user_vaccines uv
		JOIN vaccines v ON v.id = uv.vac_id
		WHERE uv.user_id = $1
		ORDER BY uv.created_at DESC, uv.id DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query user vaccines: %w", err)
	}
	defer rows.Close()

	out := []models.UserVaccine{}
	for rows.Next() {
		var uv models.UserVaccine
		var v models.Vaccine
		var clinicID pgtype.Int8
		var appt pgtype.Date
		var desc pgtype.Text
		var minAge, maxAge pgtype.Int4
		if err := rows.Scan(&uv.ID, &uv.UserID, &uv.VacID, &clinicID, &appt, &uv.CreatedAt,
			&v.ID, &v.Name, &desc, &v.Doses, &minAge, &maxAge, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan user vaccine: %w", err)
		}
		uv.ClinicID = int8Ptr(clinicID)
		if appt.Valid {
			d := appt.Time
			uv.AppointmentDate = &d
		}
		v.Description = textPtr(desc)
		v.MinAgeYears = int4Ptr(minAge)
		v.MaxAgeYears = int4Ptr(maxAge)
		uv.VacDetails = &v
		out = append(out, uv)
	}
	return out, rows.Err()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
