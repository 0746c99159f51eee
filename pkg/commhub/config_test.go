package commhub_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/commhub/pkg/commhub"
	"github.com/dmitrymomot/commhub/pkg/feature"
	"github.com/dmitrymomot/commhub/pkg/messaging"
)

func TestNewFeatureProvider(t *testing.T) {
	t.Parallel()

	p, err := commhub.NewFeatureProvider(commhub.FeaturesConfig{
		Email:                    true,
		PhoneCalls:               false,
		EmergencyAlerts:          true,
		ElderCoordination:        true,
		ElderCoordinationRegions: []string{"north"},
	})
	require.NoError(t, err)

	channels, err := p.ListFlags(context.Background(), "channel")
	require.NoError(t, err)
	assert.Len(t, channels, 4)

	tests := []struct {
		name   string
		ctx    context.Context
		flag   string
		wantOn bool
	}{
		{"email on", context.Background(), commhub.ChannelFlag(messaging.ChannelEmail), true},
		{"phone off", context.Background(), commhub.ChannelFlag(messaging.ChannelPhone), false},
		{"emergency on", context.Background(), commhub.FlagEmergencyAlerts, true},
		{"approval off", context.Background(), commhub.FlagMessageApproval, false},
		{"elder in region", feature.WithRegion(context.Background(), "north"), commhub.FlagElderCoordination, true},
		{"elder outside region", feature.WithRegion(context.Background(), "south"), commhub.FlagElderCoordination, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			on, err := p.IsEnabled(tt.ctx, tt.flag)
			require.NoError(t, err)
			assert.Equal(t, tt.wantOn, on)
		})
	}
}
