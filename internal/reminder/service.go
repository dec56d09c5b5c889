package reminder

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"vaccine-tracker/internal/errs"
	"vaccine-tracker/internal/models"
	"vaccine-tracker/internal/queue"
	"vaccine-tracker/internal/ratelimit"
	"vaccine-tracker/internal/telemetry"
)

// Queue is the durable queue surface the reminder API needs.
type Queue interface {
	Add(ctx context.Context, jobType string, data any, opts queue.AddOptions) (models.Job, error)
	GetJob(ctx context.Context, id string) (*models.Job, error)
	Scan(ctx context.Context, states []models.JobState, offset, limit int) ([]models.Job, error)
	Remove(ctx context.Context, id string) error
}

// Limiter throttles schedule requests per caller.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, float64, error)
}

// ScheduleRequest is the body of a schedule call. Ids are accepted as JSON
// numbers or strings.
type ScheduleRequest struct {
	UserID             json.RawMessage `json:"user_id"`
	VacID              json.RawMessage `json:"vac_id"`
	VaccineName        string          `json:"vaccine_name"`
	ClinicID           json.RawMessage `json:"clinic_id"`
	AppointmentDate    string          `json:"appointment_date"`
	ReminderOffsetDays json.RawMessage `json:"reminder_offset_days"`
}

// ScheduleResult describes a reminder job, new or pre-existing.
type ScheduleResult struct {
	JobID               string `json:"job_id"`
	AppointmentDate     string `json:"appointment_date"`
	ReminderOffsetDays  int    `json:"reminder_offset_days"`
	ScheduledFor        string `json:"scheduled_for"`
	WillSendImmediately bool   `json:"will_send_immediately"`
	DelayMs             int64  `json:"delay_ms"`
	Created             bool   `json:"-"`
}

// ReminderJob is one entry of a caller's reminder listing.
type ReminderJob struct {
	JobID           string          `json:"job_id"`
	State           models.JobState `json:"state"`
	AppointmentDate string          `json:"appointment_date"`
	VaccineName     string          `json:"vaccine_name"`
	ClinicName      *string         `json:"clinic_name"`
	OffsetDays      int             `json:"reminder_offset_days"`
	CreatedAt       string          `json:"created_at"`
	ScheduledFor    string          `json:"scheduled_for"`
	AttemptsMade    int             `json:"attempts_made"`
	FailedReason    string          `json:"failed_reason,omitempty"`
}

// Options carries the scheduling policy.
type Options struct {
	DefaultOffsetDays  int
	AppointmentHourUTC int
	Now                func() time.Time
}

// Service is the producer and management side of reminders.
type Service struct {
	queue    Queue
	resolver *Resolver
	limiter  Limiter
	opts     Options
}

// NewService wires the producer. limiter may be nil to disable throttling.
func NewService(q Queue, resolver *Resolver, limiter Limiter, opts Options) *Service {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{queue: q, resolver: resolver, limiter: limiter, opts: opts}
}

// Schedule validates the request, resolves the snapshot and enqueues a
// delayed reminder. Repeating a request with the same coordinates returns the
// existing job with Created false.
func (s *Service) Schedule(ctx context.Context, callerID string, req ScheduleRequest) (ScheduleResult, error) {
	if callerID == "" {
		return ScheduleResult{}, errs.New(errs.KindUnauthorized, "Unauthorized")
	}
	if requested := RawString(req.UserID); requested != "" && requested != callerID {
		return ScheduleResult{}, errs.New(errs.KindForbidden, "You can only schedule reminders for yourself")
	}
	date := strings.TrimSpace(req.AppointmentDate)
	if date == "" {
		return ScheduleResult{}, errs.New(errs.KindInvalidRequest, "appointment_date is required")
	}
	offset, err := ParseOffsetDays(req.ReminderOffsetDays, s.opts.DefaultOffsetDays)
	if err != nil {
		return ScheduleResult{}, err
	}
	sched, err := ComputeSchedule(date, offset, s.opts.AppointmentHourUTC, s.opts.Now())
	if err != nil {
		return ScheduleResult{}, err
	}

	if err := s.throttle(ctx, callerID); err != nil {
		return ScheduleResult{}, err
	}

	vacID, err := ParseOptionalID(req.VacID, "vac_id")
	if err != nil {
		return ScheduleResult{}, err
	}
	clinicID, err := ParseOptionalID(req.ClinicID, "clinic_id")
	if err != nil {
		return ScheduleResult{}, err
	}
	md, err := s.resolver.Resolve(ctx, Lookup{
		UserID:      callerID,
		VacID:       vacID,
		ClinicID:    clinicID,
		VaccineName: req.VaccineName,
	})
	if err != nil {
		return ScheduleResult{}, err
	}

	vaccineKey := strings.TrimSpace(req.VaccineName)
	if vacID != nil {
		vaccineKey = strconv.FormatInt(*vacID, 10)
	}
	jobID := JobID(callerID, vaccineKey, date, offset)

	result := ScheduleResult{
		JobID:               jobID,
		AppointmentDate:     date,
		ReminderOffsetDays:  offset,
		ScheduledFor:        sched.ReminderAt.UTC().Format(TimestampLayout),
		WillSendImmediately: sched.Immediate,
		DelayMs:             sched.Delay.Milliseconds(),
	}

	existing, err := s.queue.GetJob(ctx, jobID)
	if err != nil {
		return ScheduleResult{}, errs.Wrap(errs.KindUpstream, "Error scheduling reminder", err)
	}
	if existing != nil {
		telemetry.RecordDuplicate(jobID)
		return result, nil
	}

	data := models.ReminderData{
		UserID:          callerID,
		Email:           md.User.Email,
		FirstName:       md.User.FirstName,
		LastName:        md.User.LastName,
		VacID:           vacID,
		VaccineName:     md.VaccineName,
		ClinicName:      md.ClinicName,
		AppointmentDate: date,
		OffsetDays:      offset,
	}
	_, err = s.queue.Add(ctx, models.ReminderJobType, data, queue.AddOptions{JobID: jobID, Delay: sched.Delay})
	if errors.Is(err, queue.ErrDuplicateJob) {
		telemetry.RecordDuplicate(jobID)
		return result, nil
	}
	if err != nil {
		return ScheduleResult{}, errs.Wrap(errs.KindUpstream, "Error scheduling reminder", err)
	}

	telemetry.RecordScheduled(jobID, sched.Delay, sched.Immediate)
	result.Created = true
	return result, nil
}

func (s *Service) throttle(ctx context.Context, callerID string) error {
	if s.limiter == nil {
		return nil
	}
	key := ratelimit.Key("reminder-schedule", callerID)
	ok, _, err := s.limiter.Allow(ctx, key)
	if err != nil {
		// Fail open when Redis is unreachable.
		slog.Warn("Reminder.schedule: rate limiter unavailable", "error", err)
		return nil
	}
	if !ok {
		telemetry.RecordRateLimited(key)
		return errs.New(errs.KindRateLimited, "Too many reminder requests, try again later")
	}
	return nil
}

// List returns the caller's reminder jobs in every state. The queue is read
// once, so jobs moving between states mid-listing are neither skipped nor
// repeated.
func (s *Service) List(ctx context.Context, callerID string) ([]ReminderJob, error) {
	if callerID == "" {
		return nil, errs.New(errs.KindUnauthorized, "Unauthorized")
	}

	jobs, err := s.queue.Scan(ctx, models.AllStates, 0, 0)
	if err != nil {
		return nil, errs.Wrap(errs.KindUpstream, "Error listing reminders", err)
	}

	out := []ReminderJob{}
	seen := make(map[string]struct{}, len(jobs))
	for _, job := range jobs {
		if job.Type != models.ReminderJobType {
			continue
		}
		if _, dup := seen[job.ID]; dup {
			continue
		}
		seen[job.ID] = struct{}{}
		data, err := decodeReminder(job)
		if err != nil {
			slog.Warn("Reminder.list: undecodable job", "job_id", job.ID, "error", err)
			continue
		}
		if data.UserID != callerID {
			continue
		}
		out = append(out, ReminderJob{
			JobID:           job.ID,
			State:           job.State,
			AppointmentDate: data.AppointmentDate,
			VaccineName:     data.VaccineName,
			ClinicName:      data.ClinicName,
			OffsetDays:      data.OffsetDays,
			CreatedAt:       job.CreatedAt.UTC().Format(TimestampLayout),
			ScheduledFor:    job.ScheduledFor().UTC().Format(TimestampLayout),
			AttemptsMade:    job.AttemptsMade,
			FailedReason:    job.FailedReason,
		})
	}
	return out, nil
}

// Cancel removes one of the caller's reminder jobs in whatever state it is in.
func (s *Service) Cancel(ctx context.Context, callerID, jobID string) error {
	if callerID == "" {
		return errs.New(errs.KindUnauthorized, "Unauthorized")
	}
	job, err := s.queue.GetJob(ctx, jobID)
	if err != nil {
		return errs.Wrap(errs.KindUpstream, "Error cancelling reminder", err)
	}
	if job == nil || job.Type != models.ReminderJobType {
		return errs.New(errs.KindNotFound, "Reminder not found")
	}
	data, err := decodeReminder(*job)
	if err != nil || data.UserID != callerID {
		return errs.New(errs.KindForbidden, "You can only cancel your own reminders")
	}
	if err := s.queue.Remove(ctx, jobID); err != nil {
		return errs.Wrap(errs.KindUpstream, "Error cancelling reminder", err)
	}
	telemetry.RecordCancelled(jobID, callerID)
	return nil
}

func decodeReminder(job models.Job) (models.ReminderData, error) {
	var data models.ReminderData
	err := json.Unmarshal(job.Data, &data)
	return data, err
}
