package logger_test

import (
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/commhub/pkg/logger"
	"github.com/dmitrymomot/commhub/pkg/messaging"
)

func TestGroup(t *testing.T) {
	t.Parallel()
	attr := logger.Group("req", slog.String("id", "1"), slog.Int("n", 2))
	require.Equal(t, "req", attr.Key)
	require.Equal(t, slog.KindGroup, attr.Value.Kind())
	g := attr.Value.Group()
	require.Len(t, g, 2)
	assert.Equal(t, "id", g[0].Key)
	assert.Equal(t, "n", g[1].Key)
}

func TestErrors(t *testing.T) {
	t.Parallel()
	err1 := errors.New("first")
	err2 := errors.New("second")

	attr := logger.Errors(err1, nil, err2)
	require.Equal(t, "errors", attr.Key)
	g := attr.Value.Group()
	require.Len(t, g, 2)
	assert.Equal(t, err1, g[0].Value.Any())
	assert.Equal(t, err2, g[1].Value.Any())

	assert.True(t, logger.Errors(nil).Equal(slog.Attr{}))
}

func TestError(t *testing.T) {
	t.Parallel()
	err := errors.New("boom")
	attr := logger.Error(err)
	require.Equal(t, "error", attr.Key)
	assert.Equal(t, err, attr.Value.Any())

	assert.True(t, logger.Error(nil).Equal(slog.Attr{}))
}

func TestDomainAttrs(t *testing.T) {
	t.Parallel()
	jobID := uuid.New()

	tests := []struct {
		name    string
		attr    slog.Attr
		wantKey string
		want    any
	}{
		{"user", logger.UserID("u1"), "user_id", "u1"},
		{"request", logger.RequestID("abc"), "request_id", "abc"},
		{"message", logger.MessageID("m1"), "message_id", "m1"},
		{"recipient", logger.RecipientID("u2"), "recipient_id", "u2"},
		{"job", logger.JobID(jobID), "job_id", jobID},
		{"channel", logger.Channel(messaging.ChannelSMS), "channel", "sms"},
		{"event", logger.EventType(messaging.EventVolunteerAssigned), "event_type", "volunteer_assigned"},
		{"rule", logger.RuleID("r1"), "rule_id", "r1"},
		{"template", logger.TemplateID("t1"), "template_id", "t1"},
		{"retries", logger.RetryCount(2), "retry_count", int64(2)},
		{"duration", logger.Duration(time.Second), "duration", time.Second},
		{"component", logger.Component("dispatch"), "component", "dispatch"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.wantKey, tt.attr.Key)
			assert.Equal(t, tt.want, tt.attr.Value.Any())
		})
	}
}

func TestEmptyAttrs(t *testing.T) {
	t.Parallel()
	for _, attr := range []slog.Attr{
		logger.UserID(nil),
		logger.MessageID(nil),
		logger.RecipientID(""),
		logger.JobID(nil),
		logger.TemplateID(""),
	} {
		assert.True(t, attr.Equal(slog.Attr{}), attr.Key)
	}
}
