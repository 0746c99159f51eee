package messaging_test

import (
	"encoding/json"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/commhub/pkg/messaging"
)

func sampleMessage() *messaging.Message {
	return &messaging.Message{
		ID:         "m1",
		Type:       messaging.TypeNotification,
		Subject:    "Site update",
		Content:    "Crew arrives at 7.\nBring gloves.",
		SenderName: "Jon",
		SenderRole: "Overseer",
		Priority:   messaging.PriorityHigh,
		Category:   messaging.CategoryProject,
	}
}

func TestFormatSMS(t *testing.T) {
	t.Parallel()

	t.Run("short text unchanged", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, "Hi\n\nSee you soon", messaging.FormatSMS("Hi", "See you soon"))
	})

	t.Run("exactly 160 characters unchanged", func(t *testing.T) {
		t.Parallel()
		content := strings.Repeat("a", 160-len("S\n\n"))
		got := messaging.FormatSMS("S", content)
		assert.Len(t, got, 160)
		assert.False(t, strings.HasSuffix(got, "..."))
	})

	t.Run("long text truncated to 160 with ellipsis", func(t *testing.T) {
		t.Parallel()
		for _, n := range []int{158, 159, 400, 2000} {
			got := messaging.FormatSMS("Subject", strings.Repeat("x", n))
			assert.Equal(t, 160, utf8.RuneCountInString(got))
			assert.True(t, strings.HasSuffix(got, "..."))
			assert.True(t, strings.HasPrefix(got, "Subject\n\nxxx"))
		}
	})

	t.Run("counts characters not bytes", func(t *testing.T) {
		t.Parallel()
		got := messaging.FormatSMS("Привет", strings.Repeat("ж", 300))
		assert.Equal(t, 160, utf8.RuneCountInString(got))
		assert.True(t, utf8.ValidString(got))
	})
}

func TestFormatter_Email(t *testing.T) {
	t.Parallel()

	f := messaging.NewFormatter("Crew Tools")
	msg := sampleMessage()
	msg.Subject = "Fish & <Chips>"

	got := f.Format(msg, messaging.ChannelEmail)
	assert.Contains(t, got, "<h2 style=\"color: #2c5aa0;\">Fish &amp; &lt;Chips&gt;</h2>")
	assert.Contains(t, got, "Crew arrives at 7.<br>Bring gloves.")
	assert.Contains(t, got, "Sent by Jon (Overseer)")
	assert.Contains(t, got, "Crew Tools")
}

func TestFormatter_InApp(t *testing.T) {
	t.Parallel()

	f := messaging.NewFormatter("")

	t.Run("mark as read", func(t *testing.T) {
		t.Parallel()
		var payload messaging.InAppPayload
		require.NoError(t, json.Unmarshal([]byte(f.Format(sampleMessage(), messaging.ChannelInApp)), &payload))
		assert.Equal(t, "Site update", payload.Title)
		assert.Equal(t, messaging.PriorityHigh, payload.Priority)
		assert.Equal(t, messaging.CategoryProject, payload.Category)
		assert.Equal(t, messaging.InAppSender{Name: "Jon", Role: "Overseer"}, payload.Sender)
		assert.Equal(t, []string{"Mark as Read"}, payload.Actions)
	})

	t.Run("confirmation request", func(t *testing.T) {
		t.Parallel()
		msg := sampleMessage()
		msg.Type = messaging.TypeConfirmationRequest
		assert.Equal(t, []string{"Confirm", "Decline"}, messaging.NewInAppPayload(msg).Actions)
	})
}

func TestFormatter_PlainChannels(t *testing.T) {
	t.Parallel()

	f := messaging.NewFormatter("")
	want := "Site update\n\nCrew arrives at 7.\nBring gloves."
	assert.Equal(t, want, f.Format(sampleMessage(), messaging.ChannelPush))
	assert.Equal(t, want, f.Format(sampleMessage(), messaging.ChannelPhone))
}
