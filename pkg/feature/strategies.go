package feature

import (
	"context"
	"slices"
)

// AlwaysStrategy is a strategy that always returns the same value.
type AlwaysStrategy struct {
	Value bool
}

// Evaluate returns the configured value for all contexts.
func (s *AlwaysStrategy) Evaluate(ctx context.Context) (bool, error) {
	return s.Value, nil
}

// NewAlwaysOnStrategy creates a strategy that enables the feature everywhere.
func NewAlwaysOnStrategy() Strategy {
	return &AlwaysStrategy{Value: true}
}

// NewAlwaysOffStrategy creates a strategy that disables the feature everywhere.
func NewAlwaysOffStrategy() Strategy {
	return &AlwaysStrategy{Value: false}
}

// TargetCriteria restricts a flag to specific users or regions.
type TargetCriteria struct {
	UserIDs []string `json:"user_ids,omitempty"`
	Regions []string `json:"regions,omitempty"`
	// DenyList always takes precedence over all other criteria
	DenyList []string `json:"deny_list,omitempty"`
}

func (c TargetCriteria) empty() bool {
	return len(c.UserIDs) == 0 && len(c.Regions) == 0 && len(c.DenyList) == 0
}

// TargetedStrategy enables a feature for listed users or regions.
// Values are read from context with the configured extractors, which default
// to the values stored by WithUser and WithRegion.
type TargetedStrategy struct {
	Criteria TargetCriteria

	userIDExtractor UserIDExtractor
	regionExtractor RegionExtractor
}

// Evaluate determines if a feature should be enabled based on the context and criteria.
func (s *TargetedStrategy) Evaluate(ctx context.Context) (bool, error) {
	if s.Criteria.empty() {
		return false, ErrInvalidStrategy
	}

	userID := s.userIDExtractor(ctx)
	if len(s.Criteria.DenyList) > 0 {
		// Unknown callers cannot be checked against the deny list; fail closed.
		if userID == "" || slices.Contains(s.Criteria.DenyList, userID) {
			return false, nil
		}
	}

	if userID != "" && slices.Contains(s.Criteria.UserIDs, userID) {
		return true, nil
	}

	region := s.regionExtractor(ctx)
	if region != "" && slices.Contains(s.Criteria.Regions, region) {
		return true, nil
	}

	// A deny list alone enables everyone not on it.
	return len(s.Criteria.UserIDs) == 0 && len(s.Criteria.Regions) == 0, nil
}

// TargetedStrategyOption is a function that configures a TargetedStrategy.
type TargetedStrategyOption func(*TargetedStrategy)

// WithUserIDExtractor sets the user ID extractor for the strategy.
func WithUserIDExtractor(extractor UserIDExtractor) TargetedStrategyOption {
	return func(s *TargetedStrategy) {
		if extractor != nil {
			s.userIDExtractor = extractor
		}
	}
}

// WithRegionExtractor sets the region extractor for the strategy.
func WithRegionExtractor(extractor RegionExtractor) TargetedStrategyOption {
	return func(s *TargetedStrategy) {
		if extractor != nil {
			s.regionExtractor = extractor
		}
	}
}

// NewTargetedStrategy creates a strategy based on targeting criteria.
func NewTargetedStrategy(criteria TargetCriteria, opts ...TargetedStrategyOption) Strategy {
	s := &TargetedStrategy{
		Criteria:        criteria,
		userIDExtractor: UserFromContext,
		regionExtractor: RegionFromContext,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

type (
	userKey   struct{}
	regionKey struct{}
)

// WithUser stores the acting user id for flag evaluation.
func WithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userKey{}, userID)
}

// WithRegion stores the region an operation targets for flag evaluation.
func WithRegion(ctx context.Context, regionID string) context.Context {
	return context.WithValue(ctx, regionKey{}, regionID)
}

// UserFromContext returns the user id stored by WithUser.
func UserFromContext(ctx context.Context) string {
	id, _ := ctx.Value(userKey{}).(string)
	return id
}

// RegionFromContext returns the region stored by WithRegion.
func RegionFromContext(ctx context.Context) string {
	id, _ := ctx.Value(regionKey{}).(string)
	return id
}
