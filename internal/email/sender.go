package email

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/resend/resend-go/v2"

	"vaccine-tracker/internal/config"
	"vaccine-tracker/internal/errs"
)

// Message is a single outbound HTML email.
type Message struct {
	From    string
	To      string
	Subject string
	HTML    string
}

// Sender delivers a message or returns the provider error.
type Sender interface {
	Send(ctx context.Context, msg Message) (string, error)
}

// New picks a sender from cfg.EmailDriver ("resend" or "log").
func New(cfg config.Config) (Sender, error) {
	switch strings.ToLower(cfg.EmailDriver) {
	case "", "resend":
		if cfg.ResendAPIKey == "" {
			return nil, errs.New(errs.KindConfiguration, "RESEND_KEY is required for the resend email driver")
		}
		return NewResendSender(resend.NewClient(cfg.ResendAPIKey)), nil
	case "log":
		return LogSender{}, nil
	default:
		return nil, errs.New(errs.KindConfiguration, fmt.Sprintf("unknown email driver %q", cfg.EmailDriver))
	}
}

// ResendSender sends through the Resend HTTP API.
type ResendSender struct {
	client *resend.Client
}

func NewResendSender(client *resend.Client) *ResendSender {
	return &ResendSender{client: client}
}

func (s *ResendSender) Send(ctx context.Context, msg Message) (string, error) {
	resp, err := s.client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    msg.From,
		To:      []string{msg.To},
		Subject: msg.Subject,
		Html:    msg.HTML,
	})
	if err != nil {
		return "", errs.Wrap(errs.KindUpstream, "send email", err)
	}
	return resp.Id, nil
}

// LogSender writes messages to the log instead of delivering them. Used in development.
type LogSender struct{}

func (LogSender) Send(ctx context.Context, msg Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	slog.Info("LogSender.Send: email", "from", msg.From, "to", msg.To, "subject", msg.Subject, "bytes", len(msg.HTML))
	return "log", nil
}
