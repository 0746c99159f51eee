// Package feature gates optional capabilities behind named flags.
//
// A flag is either globally off, globally on, or on for a target audience
// described by a Strategy. TargetedStrategy reads the acting user and the
// target region from context, so callers mark requests with WithUser and
// WithRegion before asking a Provider.
//
// The hub uses flags for two kinds of decisions: whole operations that must be
// switched on explicitly (Require treats an unknown flag as disabled), and
// delivery channels that stay on unless switched off (Enabled with a true
// fallback).
//
// # Usage
//
//	provider, err := feature.NewMemoryProvider(
//		&feature.Flag{Name: "emergency_alerts", Enabled: true},
//		&feature.Flag{
//			Name:     "elder_coordination",
//			Enabled:  true,
//			Strategy: feature.NewTargetedStrategy(feature.TargetCriteria{Regions: []string{"north"}}),
//		},
//	)
//	if err != nil {
//		return err
//	}
//
//	ctx = feature.WithRegion(ctx, "north")
//	if err := feature.Require(ctx, provider, "elder_coordination"); err != nil {
//		return err // wraps feature.ErrDisabled
//	}
package feature
