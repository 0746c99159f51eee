package store_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/commhub/pkg/messaging"
	"github.com/dmitrymomot/commhub/pkg/store"
)

const seedYAML = `
templates:
  - id: assignment-notice
    name: Assignment notice
    category: assignment
    type: assignment_update
    subject: "New assignment: {{assignment.role}}"
    content: "Hello {{volunteerName}}, you start on {{assignment.startDate}}."
    variables:
      - name: assignment.role
        type: text
        required: true
    default_channels: [email, in_app]
    default_priority: normal
    is_active: true
rules:
  - id: notify-volunteer
    name: Notify assigned volunteer
    event_type: volunteer_assigned
    is_active: true
    conditions:
      - field: assignment.hours
        operator: greater_than
        value: 4
    actions:
      - type: send_message
        template_id: assignment-notice
    recipients:
      - type: user
        value: $assignment.volunteerId
contacts:
  - user_id: u1
    name: Ana
    role: volunteer
    email: ana@example.org
    region_id: north
groups:
  - id: g1
    name: Roofers
    type: trade_team
    is_active: true
    members:
      - user_id: u1
        user_name: Ana
        can_receive: true
        is_active: true
preferences:
  - user_id: u1
    email_enabled: true
    in_app_enabled: true
`

func TestParseSeed(t *testing.T) {
	t.Parallel()

	seed, err := store.ParseSeed(strings.NewReader(seedYAML))
	require.NoError(t, err)

	require.Len(t, seed.Templates, 1)
	assert.Equal(t, []messaging.Channel{messaging.ChannelEmail, messaging.ChannelInApp}, seed.Templates[0].DefaultChannels)
	require.Len(t, seed.Rules, 1)
	rule := seed.Rules[0]
	assert.Equal(t, messaging.EventVolunteerAssigned, rule.EventType)
	require.Len(t, rule.Conditions, 1)
	assert.True(t, rule.Conditions[0].Evaluate(messaging.EventData{
		"assignment": map[string]any{"hours": 6},
	}))
	assert.Equal(t, "$assignment.volunteerId", rule.Recipients[0].Value)
	assert.Len(t, seed.Contacts, 1)
	assert.Len(t, seed.Groups, 1)
	assert.False(t, seed.Preferences[0].SMSEnabled)

	ctx := context.Background()
	s := store.NewMemoryStore()
	require.NoError(t, seed.Apply(ctx, s))

	rules, err := s.ActiveRules(ctx, messaging.EventVolunteerAssigned)
	require.NoError(t, err)
	assert.Len(t, rules, 1)
	tpl, err := s.Template(ctx, "assignment-notice")
	require.NoError(t, err)
	assert.True(t, tpl.IsActive)
	g, err := s.Group(ctx, "g1")
	require.NoError(t, err)
	assert.Len(t, g.Receivers(), 1)
}

func TestParseSeed_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		yaml string
	}{
		{"unknown field", "templates:\n  - id: t1\n    colour: red\n"},
		{"missing template reference", "rules:\n  - id: r1\n    event_type: volunteer_assigned\n    actions:\n      - type: send_message\n        template_id: nope\n"},
		{"bad template type", "templates:\n  - id: t1\n    type: telegram\n    category: general\n"},
		{"rule without event", "rules:\n  - id: r1\n"},
		{"contact without id", "contacts:\n  - name: Ana\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := store.ParseSeed(strings.NewReader(tt.yaml))
			assert.ErrorIs(t, err, store.ErrInvalidSeed)
		})
	}
}

func TestParseSeed_Empty(t *testing.T) {
	t.Parallel()
	seed, err := store.ParseSeed(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, seed.Rules)
}
