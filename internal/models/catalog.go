package models

import "time"

// Vaccine is a catalog entry.
type Vaccine struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description"`
	Doses       int       `json:"doses"`
	MinAgeYears *int      `json:"min_age_years"`
	MaxAgeYears *int      `json:"max_age_years"`
	CreatedAt   time.Time `json:"created_at"`
}

// Clinic is a place where vaccines are administered.
type Clinic struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Address   *string   `json:"address"`
	Phone     *string   `json:"phone"`
	CreatedAt time.Time `json:"created_at"`
}

// UserVaccine records a vaccination or appointment for a user.
type UserVaccine struct {
	ID              int64      `json:"id"`
	UserID          string     `json:"user_id"`
	VacID           int64      `json:"vac_id"`
	ClinicID        *int64     `json:"clinic_id"`
	AppointmentDate *time.Time `json:"appointment_date"`
	CreatedAt       time.Time  `json:"created_at"`
	VacDetails      *Vaccine   `json:"vac_details"`
}
