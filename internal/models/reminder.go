package models

// ReminderJobType is the queue job type carrying a vaccine reminder email.
const ReminderJobType = "send-vaccine-reminder"

// ReminderData is the snapshot captured when a reminder is scheduled. It is
// not re-fetched at delivery time.
type ReminderData struct {
	UserID          string  `json:"userId"`
	Email           string  `json:"email"`
	FirstName       string  `json:"firstName"`
	LastName        string  `json:"lastName"`
	VacID           *int64  `json:"vacId,omitempty"`
	VaccineName     string  `json:"vaccineName"`
	ClinicName      *string `json:"clinicName"`
	AppointmentDate string  `json:"appointmentDate"`
	OffsetDays      int     `json:"offsetDays"`
}
