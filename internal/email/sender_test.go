package email

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/resend/resend-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vaccine-tracker/internal/config"
	"vaccine-tracker/internal/errs"
)

func TestNewSelectsDriver(t *testing.T) {
	s, err := New(config.Config{EmailDriver: "log"})
	require.NoError(t, err)
	assert.IsType(t, LogSender{}, s)

	_, err = New(config.Config{EmailDriver: "resend"})
	assert.True(t, errs.Is(err, errs.KindConfiguration))

	s, err = New(config.Config{EmailDriver: "resend", ResendAPIKey: "re_test"})
	require.NoError(t, err)
	assert.IsType(t, &ResendSender{}, s)

	_, err = New(config.Config{EmailDriver: "pigeon"})
	assert.True(t, errs.Is(err, errs.KindConfiguration))
}

func TestResendSenderPostsMessage(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/emails", r.URL.Path)
		assert.Equal(t, "Bearer re_test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"email_123"}`))
	}))
	defer srv.Close()

	client := resend.NewClient("re_test")
	client.BaseURL, _ = url.Parse(srv.URL + "/")

	id, err := NewResendSender(client).Send(context.Background(), Message{
		From: "reminders@example.com", To: "a@example.com", Subject: "Vaccine Appointment Reminder", HTML: "<p>hi</p>",
	})
	require.NoError(t, err)
	assert.Equal(t, "email_123", id)
	assert.Equal(t, "reminders@example.com", got["from"])
	assert.Equal(t, []any{"a@example.com"}, got["to"])
	assert.Equal(t, "<p>hi</p>", got["html"])
}

func TestResendSenderSurfacesProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"statusCode":422,"name":"validation_error","message":"invalid from"}`))
	}))
	defer srv.Close()

	client := resend.NewClient("re_test")
	client.BaseURL, _ = url.Parse(srv.URL + "/")

	_, err := NewResendSender(client).Send(context.Background(), Message{To: "a@example.com"})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindUpstream))
}
