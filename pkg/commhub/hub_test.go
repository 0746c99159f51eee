package commhub_test

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/commhub/pkg/commhub"
	"github.com/dmitrymomot/commhub/pkg/dispatch"
	"github.com/dmitrymomot/commhub/pkg/feature"
	"github.com/dmitrymomot/commhub/pkg/messaging"
	"github.com/dmitrymomot/commhub/pkg/store"
	"github.com/dmitrymomot/commhub/pkg/validator"
)

var testNow = time.Date(2024, time.June, 3, 10, 0, 0, 0, time.UTC)

// recordingDispatcher accepts every plan and remembers it.
type recordingDispatcher struct {
	mu        sync.Mutex
	entries   []messaging.PlanEntry
	cancelled []string
	err       error
}

func (d *recordingDispatcher) EnqueuePlan(ctx context.Context, plan []messaging.PlanEntry) ([]dispatch.Job, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	d.entries = append(d.entries, plan...)
	jobs := make([]dispatch.Job, 0, len(plan))
	for _, e := range plan {
		jobs = append(jobs, dispatch.Job{
			ID:          uuid.New(),
			MessageID:   e.MessageID,
			RecipientID: e.RecipientID,
			Channel:     e.Channel,
			Status:      dispatch.JobStatusPending,
		})
	}
	return jobs, nil
}

func (d *recordingDispatcher) CancelMessage(ctx context.Context, messageID string) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cancelled = append(d.cancelled, messageID)
	n := 0
	for _, e := range d.entries {
		if e.MessageID == messageID {
			n++
		}
	}
	return n, nil
}

func (d *recordingDispatcher) messageEntries(messageID string) []messaging.PlanEntry {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []messaging.PlanEntry
	for _, e := range d.entries {
		if e.MessageID == messageID {
			out = append(out, e)
		}
	}
	return out
}

type fixture struct {
	hub   *commhub.Hub
	store *store.MemoryStore
	disp  *recordingDispatcher
	flags *feature.MemoryProvider
}

func testConfig() commhub.Config {
	return commhub.Config{
		Brand:                   "Test Hub",
		Language:                "en",
		DateLayout:              "2006-01-02",
		MaxRecipientsPerMessage: 10,
		MaxMessageLength:        200,
		Features: commhub.FeaturesConfig{
			Email:             true,
			SMS:               true,
			EmergencyAlerts:   true,
			ElderCoordination: true,
		},
	}
}

func newFixture(t *testing.T, mutate ...func(*commhub.Config)) fixture {
	t.Helper()
	cfg := testConfig()
	for _, m := range mutate {
		m(&cfg)
	}

	flags, err := commhub.NewFeatureProvider(cfg.Features)
	require.NoError(t, err)

	st := store.NewMemoryStore()
	seedDirectory(t, st)

	disp := &recordingDispatcher{}
	hub, err := commhub.New(cfg, st, disp,
		commhub.WithFeatures(flags),
		commhub.WithClock(func() time.Time { return testNow }),
		commhub.WithLogger(slog.New(slog.DiscardHandler)),
	)
	require.NoError(t, err)

	return fixture{hub: hub, store: st, disp: disp, flags: flags}
}

func seedDirectory(t *testing.T, st *store.MemoryStore) {
	t.Helper()
	ctx := context.Background()
	for _, c := range []messaging.Contact{
		{UserID: "u1", Name: "Ana", Role: "volunteer", Email: "ana@example.org", RegionID: "north"},
		{UserID: "u2", Name: "Ben", Role: "overseer", Email: "ben@example.org", RegionID: "north"},
		{UserID: "u3", Name: "Cy", Role: "overseer", RegionID: "south"},
		{UserID: "e1", Name: "Dan", Role: "elder", RegionID: "north"},
		{UserID: "e2", Name: "Eve", Role: "elder", RegionID: "north"},
	} {
		require.NoError(t, st.SaveContact(ctx, c))
	}
	for _, g := range []messaging.Group{
		{
			ID: "roofers", Name: "Roofers", Type: messaging.GroupTradeTeam, RegionID: "north", IsActive: true,
			Members: []messaging.GroupMember{
				{UserID: "u1", UserName: "Ana", CanReceive: true, IsActive: true},
				{UserID: "u2", UserName: "Ben", CanReceive: false, IsActive: true},
				{UserID: "u3", UserName: "Cy", CanReceive: true, IsActive: false},
				{UserID: "e1", UserName: "Dan", CanReceive: true, IsActive: true},
			},
		},
		{
			ID: "archived", Name: "Archived", Type: messaging.GroupVolunteer, IsActive: false,
			Members: []messaging.GroupMember{{UserID: "u1", CanReceive: true, IsActive: true}},
		},
		{
			ID: "silent", Name: "Silent", Type: messaging.GroupVolunteer, IsActive: true,
			Members: []messaging.GroupMember{{UserID: "u1", CanReceive: false, IsActive: true}},
		},
	} {
		require.NoError(t, st.SaveGroup(ctx, g))
	}
}

func savePrefs(t *testing.T, st *store.MemoryStore, p messaging.Preferences) {
	t.Helper()
	require.NoError(t, st.SavePreferences(context.Background(), p))
}

func newMessage(userIDs ...string) messaging.Message {
	msg := messaging.Message{
		Subject:  "Roof work",
		Content:  "We start at 8am.",
		Channels: []messaging.Channel{messaging.ChannelEmail, messaging.ChannelInApp},
	}
	for _, id := range userIDs {
		msg.Recipients = append(msg.Recipients, messaging.Recipient{UserID: id})
	}
	return msg
}

func TestNew(t *testing.T) {
	t.Parallel()

	st := store.NewMemoryStore()
	disp := &recordingDispatcher{}

	tests := []struct {
		name  string
		cfg   func(*commhub.Config)
		store commhub.Store
		disp  commhub.Dispatcher
	}{
		{"missing store", nil, nil, disp},
		{"missing dispatcher", nil, st, nil},
		{"zero recipient limit", func(c *commhub.Config) { c.MaxRecipientsPerMessage = 0 }, st, disp},
		{"zero length limit", func(c *commhub.Config) { c.MaxMessageLength = 0 }, st, disp},
		{"bad language", func(c *commhub.Config) { c.Language = "not a language" }, st, disp},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := testConfig()
			if tt.cfg != nil {
				tt.cfg(&cfg)
			}
			_, err := commhub.New(cfg, tt.store, tt.disp)
			assert.ErrorIs(t, err, commhub.ErrInvalidConfig)
		})
	}

	hub, err := commhub.New(testConfig(), st, disp)
	require.NoError(t, err)
	assert.NotNil(t, hub)
}

func TestHub_Send(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)

	res, err := f.hub.Send(ctx, newMessage("u1", "u2"))
	require.NoError(t, err)
	assert.NotEmpty(t, res.MessageID)
	assert.Equal(t, messaging.StatusSending, res.Status)
	assert.Equal(t, 4, res.Jobs)
	assert.Zero(t, res.EstimatedDeliveryMinutes)
	assert.Empty(t, res.Warnings)

	msg, err := f.hub.Message(ctx, res.MessageID)
	require.NoError(t, err)
	assert.Equal(t, messaging.TypeNotification, msg.Type)
	assert.Equal(t, messaging.PriorityNormal, msg.Priority)
	assert.Equal(t, messaging.CategoryGeneral, msg.Category)
	assert.Equal(t, "system", msg.SenderID)
	assert.Equal(t, testNow, msg.CreatedAt)
	require.NotNil(t, msg.SentAt)
	assert.Equal(t, testNow, *msg.SentAt)
	require.Len(t, msg.Recipients, 2)
	for _, r := range msg.Recipients {
		assert.NotEmpty(t, r.ID)
		assert.Equal(t, messaging.DeliveryPending, r.DeliveryStatus)
	}
	require.Len(t, msg.Deliveries, 4)
	for _, d := range msg.Deliveries {
		assert.Equal(t, messaging.DeliveryPending, d.Status)
	}

	entries := f.disp.messageEntries(res.MessageID)
	require.Len(t, entries, 4)
	for _, e := range entries {
		if e.Channel == messaging.ChannelEmail {
			assert.Contains(t, e.Content, "Test Hub")
		}
	}
}

func TestHub_Send_Defaults(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)

	msg := newMessage("u1")
	msg.Channels = nil
	res, err := f.hub.Send(ctx, msg)
	require.NoError(t, err)

	entries := f.disp.messageEntries(res.MessageID)
	require.Len(t, entries, 1)
	assert.Equal(t, messaging.ChannelInApp, entries[0].Channel)
}

func TestHub_Send_Validation(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	tooMany := newMessage()
	for range 11 {
		tooMany.Recipients = append(tooMany.Recipients, messaging.Recipient{UserID: uuid.NewString()})
	}

	tests := []struct {
		name    string
		mutate  func(*messaging.Message)
		wantErr error
	}{
		{"empty subject", func(m *messaging.Message) { m.Subject = "" }, commhub.ErrInvalidMessage},
		{"empty content", func(m *messaging.Message) { m.Content = "" }, commhub.ErrInvalidMessage},
		{"content too long", func(m *messaging.Message) { m.Content = strings.Repeat("é", 201) }, commhub.ErrInvalidMessage},
		{"no recipients", func(m *messaging.Message) { m.Recipients = nil }, commhub.ErrNoRecipients},
		{"too many recipients", func(m *messaging.Message) { m.Recipients = tooMany.Recipients }, commhub.ErrInvalidMessage},
		{"unknown channel", func(m *messaging.Message) { m.Channels = []messaging.Channel{"pigeon"} }, commhub.ErrInvalidMessage},
		{"unknown preferred channel", func(m *messaging.Message) {
			m.Recipients[0].PreferredChannels = []messaging.Channel{"fax"}
		}, commhub.ErrInvalidMessage},
		{"duplicate recipient", func(m *messaging.Message) {
			m.Recipients = append(m.Recipients, messaging.Recipient{UserID: "u1"})
		}, commhub.ErrInvalidMessage},
		{"recipient without user", func(m *messaging.Message) { m.Recipients[0].UserID = "" }, commhub.ErrInvalidMessage},
		{"unknown priority", func(m *messaging.Message) { m.Priority = "critical" }, commhub.ErrInvalidMessage},
		{"unknown category", func(m *messaging.Message) { m.Category = "gossip" }, commhub.ErrInvalidMessage},
		{"unknown type", func(m *messaging.Message) { m.Type = "memo" }, commhub.ErrInvalidMessage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			msg := newMessage("u1")
			tt.mutate(&msg)
			_, err := f.hub.Send(context.Background(), msg)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestHub_Send_ReportsEveryInvalidField(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	msg := newMessage("u1", "u1")
	msg.Subject = ""
	msg.Priority = "critical"
	msg.Recipients[1].PreferredChannels = []messaging.Channel{"fax"}

	_, err := f.hub.Send(context.Background(), msg)
	require.ErrorIs(t, err, commhub.ErrInvalidMessage)
	assert.ErrorIs(t, err, validator.ErrValidationFailed)
	assert.Equal(t,
		[]string{"priority", "subject", "recipients", "recipients[1].preferred_channels"},
		validator.ExtractValidationErrors(err).Fields())
}

func TestHub_Send_DisabledChannel(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)

	msg := newMessage("u1")
	msg.Channels = []messaging.Channel{messaging.ChannelPush, messaging.ChannelInApp}
	res, err := f.hub.Send(ctx, msg)
	require.NoError(t, err)
	assert.Contains(t, res.Warnings, "channel push_notification is disabled")
	assert.Equal(t, 1, res.Jobs)

	entries := f.disp.messageEntries(res.MessageID)
	require.Len(t, entries, 1)
	assert.Equal(t, messaging.ChannelInApp, entries[0].Channel)

	// Switching the flag on at runtime takes effect on the next send.
	require.NoError(t, f.flags.SetFlag(ctx, &feature.Flag{Name: commhub.ChannelFlag(messaging.ChannelPush), Enabled: true}))
	res, err = f.hub.Send(ctx, msg)
	require.NoError(t, err)
	assert.Empty(t, res.Warnings)
	assert.Equal(t, 2, res.Jobs)
}

func TestHub_Send_CategoryPreferences(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)

	optedOut := messaging.DefaultPreferences("u1")
	optedOut.Categories = map[messaging.Category]messaging.CategoryPreference{
		messaging.CategoryAssignment: {Enabled: false},
	}
	savePrefs(t, f.store, optedOut)

	smsOnly := messaging.DefaultPreferences("u2")
	smsOnly.Categories = map[messaging.Category]messaging.CategoryPreference{
		messaging.CategoryAssignment: {Enabled: true, Channels: []messaging.Channel{messaging.ChannelSMS}},
	}
	savePrefs(t, f.store, smsOnly)

	t.Run("opt out blocks the recipient", func(t *testing.T) {
		msg := newMessage("u1", "u2")
		msg.Category = messaging.CategoryAssignment
		res, err := f.hub.Send(ctx, msg)
		require.NoError(t, err)
		assert.Contains(t, res.Warnings, "recipient u1 has disabled assignment messages")

		entries := f.disp.messageEntries(res.MessageID)
		require.Len(t, entries, 1)
		assert.Equal(t, "u2", entries[0].RecipientID)
		assert.Equal(t, messaging.ChannelSMS, entries[0].Channel)

		stored, err := f.hub.Message(ctx, res.MessageID)
		require.NoError(t, err)
		r, ok := stored.Recipient("u1")
		require.True(t, ok)
		assert.Equal(t, messaging.DeliveryBlocked, r.DeliveryStatus)
	})

	t.Run("emergencies ignore opt outs", func(t *testing.T) {
		msg := newMessage("u1")
		msg.Category = messaging.CategoryAssignment
		msg.Priority = messaging.PriorityEmergency
		res, err := f.hub.Send(ctx, msg)
		require.NoError(t, err)
		assert.Empty(t, res.Warnings)
		assert.Len(t, f.disp.messageEntries(res.MessageID), 2)
	})
}

func TestHub_Send_NoDeliverableRecipients(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)

	p := messaging.DefaultPreferences("u1")
	p.InAppEnabled = false
	savePrefs(t, f.store, p)

	msg := newMessage("u1")
	msg.Channels = []messaging.Channel{messaging.ChannelInApp}
	res, err := f.hub.Send(ctx, msg)
	require.NoError(t, err)
	assert.Equal(t, messaging.StatusFailed, res.Status)
	assert.Zero(t, res.Jobs)
	assert.Contains(t, res.Warnings, messaging.NoChannelWarning("u1"))
	assert.Empty(t, f.disp.messageEntries(res.MessageID))

	stored, err := f.hub.Message(ctx, res.MessageID)
	require.NoError(t, err)
	assert.Equal(t, messaging.StatusFailed, stored.Status)
	assert.Equal(t, messaging.DeliveryBlocked, stored.Recipients[0].DeliveryStatus)
}

func TestHub_Send_Scheduled(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)

	at := testNow.Add(90 * time.Minute)
	msg := newMessage("u1")
	msg.ScheduledFor = &at
	res, err := f.hub.Send(ctx, msg)
	require.NoError(t, err)
	assert.Equal(t, messaging.StatusScheduled, res.Status)
	assert.Equal(t, 90, res.EstimatedDeliveryMinutes)

	for _, e := range f.disp.messageEntries(res.MessageID) {
		assert.Equal(t, at, e.ScheduledFor)
	}
}

func TestHub_Send_EnqueueFailure(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	f.disp.err = errors.New("queue unavailable")

	msg := newMessage("u1")
	msg.ID = "m-enqueue"
	_, err := f.hub.Send(ctx, msg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "queue unavailable")

	stored, err := f.hub.Message(ctx, "m-enqueue")
	require.NoError(t, err)
	assert.Equal(t, messaging.StatusFailed, stored.Status)
}

func TestHub_Cancel(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)

	at := testNow.Add(time.Hour)
	msg := newMessage("u1")
	msg.ScheduledFor = &at
	res, err := f.hub.Send(ctx, msg)
	require.NoError(t, err)

	dropped, err := f.hub.Cancel(ctx, res.MessageID)
	require.NoError(t, err)
	assert.Equal(t, 2, dropped)
	assert.Contains(t, f.disp.cancelled, res.MessageID)

	stored, err := f.hub.Message(ctx, res.MessageID)
	require.NoError(t, err)
	assert.Equal(t, messaging.StatusCancelled, stored.Status)

	_, err = f.hub.Cancel(ctx, res.MessageID)
	assert.ErrorIs(t, err, commhub.ErrConflict)
	assert.ErrorIs(t, err, messaging.ErrNoTransition)

	sending, err := f.hub.Send(ctx, newMessage("u2"))
	require.NoError(t, err)
	_, err = f.hub.Cancel(ctx, sending.MessageID)
	assert.ErrorIs(t, err, commhub.ErrConflict)

	_, err = f.hub.Cancel(ctx, "missing")
	assert.ErrorIs(t, err, commhub.ErrNotFound)
}
