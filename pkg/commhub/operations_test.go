package commhub_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/commhub/pkg/commhub"
	"github.com/dmitrymomot/commhub/pkg/feature"
	"github.com/dmitrymomot/commhub/pkg/messaging"
	"github.com/dmitrymomot/commhub/pkg/validator"
)

func TestHub_SendGroupMessage(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)

	res, err := f.hub.SendGroupMessage(ctx, "roofers", commhub.GroupMessage{
		SenderID:   "u2",
		SenderName: "Ben",
		Subject:    "Tools",
		Content:    "Bring ladders.",
	})
	require.NoError(t, err)

	msg, err := f.hub.Message(ctx, res.MessageID)
	require.NoError(t, err)
	assert.Equal(t, messaging.TypeGroupMessage, msg.Type)
	assert.Equal(t, "north", msg.RegionID)
	assert.Equal(t, "roofers", msg.RelatedEntityID)
	assert.Equal(t, string(messaging.GroupTradeTeam), msg.RelatedEntityType)
	require.Len(t, msg.Recipients, 2)
	assert.Equal(t, "u1", msg.Recipients[0].UserID)
	assert.Equal(t, "e1", msg.Recipients[1].UserID)

	tests := []struct {
		name    string
		groupID string
		wantErr error
	}{
		{"inactive group", "archived", commhub.ErrConflict},
		{"nobody can receive", "silent", commhub.ErrNoRecipients},
		{"unknown group", "missing", commhub.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := f.hub.SendGroupMessage(ctx, tt.groupID, commhub.GroupMessage{Subject: "s", Content: "c"})
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestHub_SendEmergencyAlert(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("region broadcast", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)

		optedOut := messaging.DefaultPreferences("u1")
		optedOut.Categories = map[messaging.Category]messaging.CategoryPreference{
			messaging.CategoryEmergency: {Enabled: false},
		}
		savePrefs(t, f.store, optedOut)

		res, err := f.hub.SendEmergencyAlert(ctx, commhub.EmergencyAlert{
			Title:    "Storm warning",
			Message:  "Leave the site now.",
			RegionID: "north",
			SenderID: "u2",
		})
		require.NoError(t, err)
		assert.Equal(t, messaging.StatusSending, res.Status)
		assert.Contains(t, res.Warnings, "channel phone_call is disabled")

		msg, err := f.hub.Message(ctx, res.MessageID)
		require.NoError(t, err)
		assert.Equal(t, messaging.TypeEmergencyAlert, msg.Type)
		assert.Equal(t, messaging.PriorityEmergency, msg.Priority)
		assert.Equal(t, messaging.CategoryEmergency, msg.Category)
		assert.Len(t, msg.Recipients, 4)

		// sms and email for every recipient, including the one who opted out.
		entries := f.disp.messageEntries(res.MessageID)
		assert.Len(t, entries, 8)
		for _, e := range entries {
			assert.NotEqual(t, messaging.ChannelPhone, e.Channel)
		}
	})

	t.Run("explicit recipients", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)

		res, err := f.hub.SendEmergencyAlert(ctx, commhub.EmergencyAlert{
			Title:      "Gas leak",
			Message:    "Evacuate block B.",
			Recipients: []string{"u3", "u3", "visitor"},
			Channels:   []messaging.Channel{messaging.ChannelSMS},
		})
		require.NoError(t, err)

		msg, err := f.hub.Message(ctx, res.MessageID)
		require.NoError(t, err)
		require.Len(t, msg.Recipients, 2)
		assert.Equal(t, "Cy", msg.Recipients[0].Name)
		assert.Equal(t, []messaging.Channel{messaging.ChannelSMS}, msg.Channels)
	})

	t.Run("disabled", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, func(c *commhub.Config) { c.Features.EmergencyAlerts = false })

		_, err := f.hub.SendEmergencyAlert(ctx, commhub.EmergencyAlert{Title: "t", Message: "m", RegionID: "north"})
		assert.ErrorIs(t, err, commhub.ErrFeatureDisabled)
	})

	t.Run("validation", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)

		_, err := f.hub.SendEmergencyAlert(ctx, commhub.EmergencyAlert{Message: "m", RegionID: "north"})
		assert.ErrorIs(t, err, commhub.ErrInvalidMessage)

		_, err = f.hub.SendEmergencyAlert(ctx, commhub.EmergencyAlert{Title: "t", Message: "m", RegionID: "east"})
		assert.ErrorIs(t, err, commhub.ErrNoRecipients)

		_, err = f.hub.SendEmergencyAlert(ctx, commhub.EmergencyAlert{Title: "t", Message: "m"})
		assert.ErrorIs(t, err, commhub.ErrNoRecipients)
	})
}

func TestHub_StartElderCoordination(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	req := commhub.CoordinationRequest{
		Title:       "Roof replacement",
		Description: "Please review the quote before Friday.",
		InitiatedBy: "u2",
		ElderIDs:    []string{"e1", "e2", "e1"},
		RegionID:    "north",
	}

	t.Run("starts a thread", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)

		c, err := f.hub.StartElderCoordination(ctx, req)
		require.NoError(t, err)
		assert.NotEmpty(t, c.ID)
		assert.Equal(t, commhub.CoordinationInProgress, c.Status)
		assert.Equal(t, messaging.PriorityHigh, c.Priority)
		require.Len(t, c.Elders, 2)
		assert.Equal(t, commhub.ParticipationInvited, c.Elders[0].Status)
		assert.Equal(t, "Dan", c.Elders[0].Name)
		require.Len(t, c.MessageIDs, 1)

		stored, err := f.hub.Coordination(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, c.Title, stored.Title)

		msg, err := f.hub.Message(ctx, c.MessageIDs[0])
		require.NoError(t, err)
		assert.Equal(t, messaging.TypeElderCoordination, msg.Type)
		assert.Equal(t, messaging.CategoryAdministrative, msg.Category)
		assert.Equal(t, "Ben", msg.SenderName)
		assert.Equal(t, c.ID, msg.RelatedEntityID)
		for _, r := range msg.Recipients {
			assert.True(t, r.ResponseRequired)
		}
		assert.Len(t, f.disp.messageEntries(msg.ID), 4)
	})

	t.Run("limited to configured regions", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, func(c *commhub.Config) { c.Features.ElderCoordinationRegions = []string{"south"} })

		_, err := f.hub.StartElderCoordination(ctx, req)
		assert.ErrorIs(t, err, commhub.ErrFeatureDisabled)

		south := req
		south.RegionID = "south"
		_, err = f.hub.StartElderCoordination(ctx, south)
		require.NoError(t, err)
	})

	t.Run("disabled", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, func(c *commhub.Config) { c.Features.ElderCoordination = false })

		_, err := f.hub.StartElderCoordination(ctx, req)
		assert.ErrorIs(t, err, commhub.ErrFeatureDisabled)
	})

	t.Run("validation", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)

		tests := []struct {
			name    string
			mutate  func(*commhub.CoordinationRequest)
			wantErr error
		}{
			{"no title", func(r *commhub.CoordinationRequest) { r.Title = "" }, commhub.ErrInvalidMessage},
			{"no initiator", func(r *commhub.CoordinationRequest) { r.InitiatedBy = "" }, commhub.ErrInvalidMessage},
			{"no elders", func(r *commhub.CoordinationRequest) { r.ElderIDs = nil }, commhub.ErrNoRecipients},
			{"bad priority", func(r *commhub.CoordinationRequest) { r.Priority = "whenever" }, commhub.ErrInvalidMessage},
		}
		for _, tt := range tests {
			r := req
			r.ElderIDs = []string{"e1"}
			tt.mutate(&r)
			_, err := f.hub.StartElderCoordination(ctx, r)
			assert.ErrorIs(t, err, tt.wantErr, tt.name)
		}
	})
}

func TestHub_Preferences(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)

	p, err := f.hub.Preferences(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, messaging.DefaultPreferences("u1"), p)

	p.SMSEnabled = false
	p.QuietHours = messaging.QuietHours{Enabled: true, Start: "22:00", End: "07:00", Timezone: "UTC"}
	p.Categories = map[messaging.Category]messaging.CategoryPreference{
		messaging.CategorySpiritual: {Enabled: true, Channels: []messaging.Channel{messaging.ChannelEmail}},
	}
	saved, err := f.hub.UpdatePreferences(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, testNow, saved.UpdatedAt)

	got, err := f.hub.Preferences(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, got.SMSEnabled)
	assert.Equal(t, "22:00", got.QuietHours.Start)

	tests := []struct {
		name   string
		mutate func(*messaging.Preferences)
		field  string
	}{
		{"missing user", func(p *messaging.Preferences) { p.UserID = "" }, "user_id"},
		{"bad quiet hours", func(p *messaging.Preferences) { p.QuietHours.Start = "25:00" }, "quiet_hours.start"},
		{"bad timezone", func(p *messaging.Preferences) { p.QuietHours.Timezone = "Mars/Olympus" }, "quiet_hours.timezone"},
		{"unknown category", func(p *messaging.Preferences) {
			p.Categories = map[messaging.Category]messaging.CategoryPreference{"gossip": {Enabled: true}}
		}, "categories.gossip"},
		{"unknown category channel", func(p *messaging.Preferences) {
			p.Categories = map[messaging.Category]messaging.CategoryPreference{
				messaging.CategoryGeneral: {Enabled: true, Channels: []messaging.Channel{"fax"}},
			}
		}, "categories.general.channels"},
		{"unknown category priority", func(p *messaging.Preferences) {
			p.Categories = map[messaging.Category]messaging.CategoryPreference{
				messaging.CategoryGeneral: {Enabled: true, Priority: "meh"},
			}
		}, "categories.general.priority"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			bad := messaging.DefaultPreferences("u9")
			bad.QuietHours = messaging.QuietHours{Enabled: true, Start: "22:00", End: "07:00", Timezone: "UTC"}
			tt.mutate(&bad)
			_, err := f.hub.UpdatePreferences(ctx, bad)
			assert.ErrorIs(t, err, commhub.ErrInvalidMessage)
			assert.True(t, validator.ExtractValidationErrors(err).Has(tt.field), "error %v", err)
		})
	}
}

func TestHub_AddElderDecision(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	start := func(t *testing.T, f fixture) commhub.ElderCoordination {
		t.Helper()
		c, err := f.hub.StartElderCoordination(ctx, commhub.CoordinationRequest{
			Title:       "Roof replacement",
			Description: "Please review the quote before Friday.",
			InitiatedBy: "u2",
			ElderIDs:    []string{"e1", "e2"},
			RegionID:    "north",
		})
		require.NoError(t, err)
		return c
	}
	decision := func(by string) commhub.DecisionRequest {
		return commhub.DecisionRequest{
			Decision:            "Accept the quote",
			Reasoning:           "It is the lowest of three",
			DecidedBy:           by,
			ImplementationNotes: "Order materials next week",
		}
	}

	t.Run("waits for every elder", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		c := start(t, f)

		first, err := f.hub.AddElderDecision(ctx, c.ID, decision("e1"))
		require.NoError(t, err)
		assert.Equal(t, commhub.CoordinationPendingDecision, first.Status)
		assert.Nil(t, first.CompletedAt)
		require.Len(t, first.Decisions, 1)
		assert.Equal(t, "e1", first.Decisions[0].DecidedBy)
		assert.Equal(t, c.ID, first.Decisions[0].CoordinationID)
		assert.Equal(t, testNow, first.Decisions[0].DecidedAt)
		assert.Equal(t, commhub.ParticipationCompleted, first.Elders[0].Status)
		assert.Equal(t, commhub.ParticipationInvited, first.Elders[1].Status)
		require.Len(t, first.MessageIDs, 2)

		announcement, err := f.hub.Message(ctx, first.MessageIDs[1])
		require.NoError(t, err)
		assert.Equal(t, "Decision: Roof replacement", announcement.Subject)
		assert.Contains(t, announcement.Content, "Dan: Accept the quote")
		assert.Equal(t, "e1", announcement.SenderID)
		var notified []string
		for _, r := range announcement.Recipients {
			notified = append(notified, r.UserID)
		}
		assert.Equal(t, []string{"u2", "e2"}, notified)

		second, err := f.hub.AddElderDecision(ctx, c.ID, decision("e2"))
		require.NoError(t, err)
		assert.Equal(t, commhub.CoordinationCompleted, second.Status)
		require.NotNil(t, second.CompletedAt)
		assert.Equal(t, testNow, *second.CompletedAt)
		assert.Len(t, second.Decisions, 2)

		_, err = f.hub.AddElderDecision(ctx, c.ID, decision("e1"))
		assert.ErrorIs(t, err, commhub.ErrConflict)
	})

	t.Run("rejects outsiders and incomplete decisions", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		c := start(t, f)

		_, err := f.hub.AddElderDecision(ctx, c.ID, decision("u1"))
		assert.ErrorIs(t, err, commhub.ErrRecipientNotFound)

		incomplete := decision("e1")
		incomplete.Reasoning = ""
		_, err = f.hub.AddElderDecision(ctx, c.ID, incomplete)
		assert.ErrorIs(t, err, commhub.ErrInvalidMessage)
		assert.True(t, validator.ExtractValidationErrors(err).Has("reasoning"))

		_, err = f.hub.AddElderDecision(ctx, "missing", decision("e1"))
		assert.ErrorIs(t, err, commhub.ErrNotFound)

		stored, err := f.hub.Coordination(ctx, c.ID)
		require.NoError(t, err)
		assert.Empty(t, stored.Decisions)
		assert.Equal(t, commhub.CoordinationInProgress, stored.Status)
	})

	t.Run("gated by the elder coordination flag", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		c := start(t, f)

		require.NoError(t, f.flags.SetFlag(ctx, &feature.Flag{Name: commhub.FlagElderCoordination, Enabled: false}))
		_, err := f.hub.AddElderDecision(ctx, c.ID, decision("e1"))
		assert.ErrorIs(t, err, commhub.ErrFeatureDisabled)
	})
}
