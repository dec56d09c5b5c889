package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	userCols    = []string{"id", "email", "password_hash", "role", "first_name", "last_name", "gender", "address", "phone", "birth", "conditions", "pregnant", "created_at"}
	vaccineCols = []string{"id", "name", "description", "doses", "min_age_years", "max_age_years", "created_at"}
	created     = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
)

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return &Store{pool: mock}, mock
}

func TestGetUserByEmailMapsColumns(t *testing.T) {
	s, mock := newMockStore(t)
	id := uuid.NewString()
	birth := time.Date(1990, 5, 17, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("FROM users WHERE email").
		WithArgs("ana@example.com").
		WillReturnRows(pgxmock.NewRows(userCols).AddRow(
			id, "ana@example.com", "hash", "user", "Ana", "Lopez",
			"female", nil, "555-0100", birth, []string{"asthma"}, true, created,
		))

	u, err := s.GetUserByEmail(context.Background(), "  Ana@Example.com ")
	require.NoError(t, err)
	assert.Equal(t, id, u.ID)
	assert.Equal(t, "Ana", u.FirstName)
	require.NotNil(t, u.Gender)
	assert.Equal(t, "female", *u.Gender)
	assert.Nil(t, u.Address)
	require.NotNil(t, u.Phone)
	assert.Equal(t, "555-0100", *u.Phone)
	require.NotNil(t, u.Birth)
	assert.True(t, birth.Equal(*u.Birth))
	assert.Equal(t, []string{"asthma"}, u.Conditions)
	assert.True(t, u.Pregnant)
	assert.True(t, created.Equal(u.CreatedAt))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetUserNotFound(t *testing.T) {
	s, mock := newMockStore(t)
	id := uuid.NewString()

	mock.ExpectQuery("FROM users WHERE id").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows(userCols))

	_, err := s.GetUser(context.Background(), id)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.GetUser(context.Background(), "not-a-uuid")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateUserConflict(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO users").
		WithArgs(pgxmock.AnyArg(), "ana@example.com", "hash", "user", "Ana", "Lopez", pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	_, err := s.CreateUser(context.Background(), CreateUserParams{
		Email: "ANA@example.com", PasswordHash: "hash", FirstName: "Ana", LastName: "Lopez",
	})
	assert.ErrorIs(t, err, ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateUserDefaultsRole(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO users").
		WithArgs(pgxmock.AnyArg(), "bo@example.com", "hash", "user", "Bo", "Ng", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	u, err := s.CreateUser(context.Background(), CreateUserParams{
		Email: "bo@example.com", PasswordHash: "hash", FirstName: "Bo", LastName: "Ng",
	})
	require.NoError(t, err)
	assert.Equal(t, "user", u.Role)
	assert.Equal(t, []string{}, u.Conditions)
	_, perr := uuid.Parse(u.ID)
	assert.NoError(t, perr)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetVaccine(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("FROM vaccines WHERE id").
		WithArgs(int64(1)).
		WillReturnRows(pgxmock.NewRows(vaccineCols).
			AddRow(int64(1), "Influenza", "Seasonal flu", 1, int64(6), nil, created))
	mock.ExpectQuery("FROM vaccines WHERE id").
		WithArgs(int64(99)).
		WillReturnRows(pgxmock.NewRows(vaccineCols))

	v, err := s.GetVaccine(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "Influenza", v.Name)
	require.NotNil(t, v.Description)
	assert.Equal(t, "Seasonal flu", *v.Description)
	require.NotNil(t, v.MinAgeYears)
	assert.Equal(t, 6, *v.MinAgeYears)
	assert.Nil(t, v.MaxAgeYears)

	_, err = s.GetVaccine(context.Background(), 99)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSearchVaccinesEscapesPattern(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("WHERE name ILIKE").
		WithArgs(`%100\%%`).
		WillReturnRows(pgxmock.NewRows(vaccineCols))

	out, err := s.SearchVaccines(context.Background(), " 100% ")
	require.NoError(t, err)
	assert.NotNil(t, out)
	assert.Empty(t, out)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetClinicNotFoundAndUpstream(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("FROM clinics WHERE id").
		WithArgs(int64(3)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "address", "phone", "created_at"}))
	mock.ExpectQuery("FROM clinics WHERE id").
		WithArgs(int64(4)).
		WillReturnError(errors.New("connection reset"))

	_, err := s.GetClinic(context.Background(), 3)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.GetClinic(context.Background(), 4)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListUserVaccinesJoinsDetails(t *testing.T) {
	s, mock := newMockStore(t)
	userID := uuid.NewString()
	appt := time.Date(2030, 1, 15, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("FROM user_vaccines uv").
		WithArgs(userID).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "user_id", "vac_id", "clinic_id", "appointment_date", "created_at",
			"id", "name", "description", "doses", "min_age_years", "max_age_years", "created_at",
		}).
			AddRow(int64(11), userID, int64(1), int64(3), appt, created,
				int64(1), "Influenza", nil, 1, nil, nil, created).
			AddRow(int64(10), userID, int64(1), nil, nil, created,
				int64(1), "Influenza", nil, 1, nil, nil, created))

	out, err := s.ListUserVaccines(context.Background(), userID)
	require.NoError(t, err)
	require.Len(t, out, 2)

	assert.Equal(t, int64(11), out[0].ID)
	require.NotNil(t, out[0].ClinicID)
	assert.Equal(t, int64(3), *out[0].ClinicID)
	require.NotNil(t, out[0].AppointmentDate)
	assert.True(t, appt.Equal(*out[0].AppointmentDate))
	require.NotNil(t, out[0].VacDetails)
	assert.Equal(t, "Influenza", out[0].VacDetails.Name)

	assert.Nil(t, out[1].ClinicID)
	assert.Nil(t, out[1].AppointmentDate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateUserVaccineRequiresVaccine(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("FROM vaccines WHERE id").
		WithArgs(int64(42)).
		WillReturnRows(pgxmock.NewRows(vaccineCols))

	_, err := s.CreateUserVaccine(context.Background(), CreateUserVaccineParams{UserID: uuid.NewString(), VacID: 42})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunMigrationsExecsEmbeddedSQL(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS users").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.RunMigrations(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
