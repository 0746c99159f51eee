package feature

import (
	"context"
	"errors"
	"slices"
	"sort"
	"sync"
	"time"
)

// MemoryProvider is an in-memory implementation of the Provider interface.
// The binary builds one from environment configuration at startup.
type MemoryProvider struct {
	flags map[string]*Flag
	mu    sync.RWMutex
	now   func() time.Time
}

// NewMemoryProvider creates a new in-memory feature flag provider.
func NewMemoryProvider(initialFlags ...*Flag) (*MemoryProvider, error) {
	provider := &MemoryProvider{
		flags: make(map[string]*Flag),
		now:   time.Now,
	}

	for _, flag := range initialFlags {
		if flag == nil {
			continue
		}
		if err := provider.store(flag, false); err != nil {
			return nil, err
		}
	}

	return provider, nil
}

// IsEnabled checks if a flag is enabled for the given context.
func (m *MemoryProvider) IsEnabled(ctx context.Context, flagName string) (bool, error) {
	m.mu.RLock()
	flag, exists := m.flags[flagName]
	m.mu.RUnlock()

	if !exists {
		return false, ErrFlagNotFound
	}

	// A globally disabled flag short-circuits its strategy.
	if !flag.Enabled {
		return false, nil
	}
	if flag.Strategy == nil {
		return true, nil
	}

	return flag.Strategy.Evaluate(ctx)
}

// GetFlag retrieves a copy of the flag.
func (m *MemoryProvider) GetFlag(ctx context.Context, flagName string) (*Flag, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	flag, exists := m.flags[flagName]
	if !exists {
		return nil, ErrFlagNotFound
	}
	return cloneFlag(flag), nil
}

// ListFlags returns flags sorted by name, optionally filtered to those carrying any of tags.
func (m *MemoryProvider) ListFlags(ctx context.Context, tags ...string) ([]*Flag, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*Flag, 0, len(m.flags))
	for _, flag := range m.flags {
		if len(tags) > 0 && !slices.ContainsFunc(tags, func(t string) bool { return slices.Contains(flag.Tags, t) }) {
			continue
		}
		result = append(result, cloneFlag(flag))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

// SetFlag creates or replaces a flag, keeping the original creation time.
func (m *MemoryProvider) SetFlag(ctx context.Context, flag *Flag) error {
	if flag == nil {
		return errors.Join(ErrInvalidFlag, errors.New("flag cannot be nil"))
	}
	return m.store(flag, true)
}

func (m *MemoryProvider) store(flag *Flag, replace bool) error {
	if flag.Name == "" {
		return errors.Join(ErrInvalidFlag, errors.New("flag name cannot be empty"))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	stored := cloneFlag(flag)
	now := m.now()
	if existing, ok := m.flags[flag.Name]; ok {
		if !replace {
			return errors.Join(ErrInvalidFlag, errors.New("duplicate flag "+flag.Name))
		}
		stored.CreatedAt = existing.CreatedAt
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now

	m.flags[flag.Name] = stored
	return nil
}

func cloneFlag(f *Flag) *Flag {
	c := *f
	c.Tags = slices.Clone(f.Tags)
	return &c
}
