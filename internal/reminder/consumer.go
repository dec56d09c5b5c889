package reminder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"strings"

	"vaccine-tracker/internal/email"
	"vaccine-tracker/internal/models"
)

const reminderSubject = "Vaccine Appointment Reminder"

var reminderTemplate = template.Must(template.New("reminder").Parse(`
<p>Hi {{.Name}},</p>
<p>This is your vaccine appointment reminder.</p>
<p><strong>Vaccine:</strong> {{.VaccineName}}</p>
<p><strong>Appointment date:</strong> {{.AppointmentDate}}</p>
<p><strong>Clinic: {{if .ClinicName}}{{.ClinicName}}{{else}}not specified{{end}}</strong></p>
`))

// Deliverer sends the reminder email for a due job.
type Deliverer struct {
	sender email.Sender
	from   string
}

func NewDeliverer(sender email.Sender, from string) *Deliverer {
	return &Deliverer{sender: sender, from: from}
}

// Handle matches worker.Handler. A provider error is returned so the queue
// retries the job.
func (d *Deliverer) Handle(ctx context.Context, job models.Job) error {
	var data models.ReminderData
	if err := json.Unmarshal(job.Data, &data); err != nil {
		return fmt.Errorf("decode reminder %s: %w", job.ID, err)
	}
	if d.from == "" {
		return errors.New("REMINDER_FROM_EMAIL is not configured")
	}

	html, err := RenderEmail(data)
	if err != nil {
		return err
	}
	id, err := d.sender.Send(ctx, email.Message{
		From:    d.from,
		To:      data.Email,
		Subject: reminderSubject,
		HTML:    html,
	})
	if err != nil {
		return fmt.Errorf("send reminder email: %w", err)
	}
	slog.Info("Deliverer.Handle: reminder sent", "job_id", job.ID, "attempt", job.AttemptsMade, "message_id", id)
	return nil
}

// RenderEmail builds the reminder body from a snapshot.
func RenderEmail(data models.ReminderData) (string, error) {
	view := struct {
		Name            string
		VaccineName     string
		AppointmentDate string
		ClinicName      string
	}{
		Name:            displayName(data.FirstName, data.LastName),
		VaccineName:     data.VaccineName,
		AppointmentDate: data.AppointmentDate,
	}
	if data.ClinicName != nil {
		view.ClinicName = strings.TrimSpace(*data.ClinicName)
	}

	var buf bytes.Buffer
	if err := reminderTemplate.Execute(&buf, view); err != nil {
		return "", fmt.Errorf("render reminder: %w", err)
	}
	return buf.String(), nil
}

func displayName(first, last string) string {
	if s := strings.TrimSpace(first); s != "" {
		return s
	}
	if s := strings.TrimSpace(last); s != "" {
		return s
	}
	return "there"
}
