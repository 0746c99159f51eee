package store

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"

	"github.com/dmitrymomot/commhub/pkg/commhub"
	"github.com/dmitrymomot/commhub/pkg/messaging"
)

// MemoryStore keeps every repository in process memory. Reads return copies,
// so callers never share state with the store.
type MemoryStore struct {
	mu            sync.RWMutex
	rules         map[string]messaging.Rule
	templates     map[string]messaging.Template
	prefs         map[string]messaging.Preferences
	messages      map[string]messaging.Message
	contacts      map[string]messaging.Contact
	groups        map[string]messaging.Group
	coordinations map[string]commhub.ElderCoordination
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rules:         make(map[string]messaging.Rule),
		templates:     make(map[string]messaging.Template),
		prefs:         make(map[string]messaging.Preferences),
		messages:      make(map[string]messaging.Message),
		contacts:      make(map[string]messaging.Contact),
		groups:        make(map[string]messaging.Group),
		coordinations: make(map[string]commhub.ElderCoordination),
	}
}

var (
	_ commhub.Store = (*MemoryStore)(nil)
	_ SeedWriter    = (*MemoryStore)(nil)
)

// SaveRule creates or replaces a rule.
func (s *MemoryStore) SaveRule(ctx context.Context, r messaging.Rule) error {
	if r.ID == "" {
		return fmt.Errorf("%w: rule id is empty", ErrInvalidRecord)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules[r.ID] = clone(r)
	return nil
}

// ActiveRules returns active rules for eventType ordered by id.
func (s *MemoryStore) ActiveRules(ctx context.Context, eventType messaging.EventType) ([]messaging.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []messaging.Rule
	for _, r := range s.rules {
		if r.IsActive && r.EventType == eventType {
			out = append(out, clone(r))
		}
	}
	slices.SortFunc(out, func(a, b messaging.Rule) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

// SaveTemplate creates or replaces a template.
func (s *MemoryStore) SaveTemplate(ctx context.Context, t messaging.Template) error {
	if t.ID == "" {
		return fmt.Errorf("%w: template id is empty", ErrInvalidRecord)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.templates[t.ID] = clone(t)
	return nil
}

func (s *MemoryStore) Template(ctx context.Context, id string) (messaging.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.templates[id]
	if !ok {
		return messaging.Template{}, fmt.Errorf("%w: template %s", commhub.ErrNotFound, id)
	}
	return clone(t), nil
}

func (s *MemoryStore) Preferences(ctx context.Context, userIDs ...string) (map[string]messaging.Preferences, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]messaging.Preferences, len(userIDs))
	for _, id := range userIDs {
		if p, ok := s.prefs[id]; ok {
			out[id] = clone(p)
		}
	}
	return out, nil
}

func (s *MemoryStore) SavePreferences(ctx context.Context, p messaging.Preferences) error {
	if p.UserID == "" {
		return fmt.Errorf("%w: preferences without user id", ErrInvalidRecord)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prefs[p.UserID] = clone(p)
	return nil
}

func (s *MemoryStore) CreateMessage(ctx context.Context, msg messaging.Message) error {
	if msg.ID == "" {
		return fmt.Errorf("%w: message id is empty", ErrInvalidRecord)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.messages[msg.ID]; exists {
		return fmt.Errorf("%w: message %s", ErrAlreadyExists, msg.ID)
	}
	s.messages[msg.ID] = clone(msg)
	return nil
}

func (s *MemoryStore) Message(ctx context.Context, id string) (messaging.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.messages[id]
	if !ok {
		return messaging.Message{}, fmt.Errorf("%w: message %s", commhub.ErrNotFound, id)
	}
	return clone(m), nil
}

// UpdateMessage runs fn on a copy under the store lock and keeps the copy only if fn succeeds.
func (s *MemoryStore) UpdateMessage(ctx context.Context, id string, fn func(*messaging.Message) error) (messaging.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok {
		return messaging.Message{}, fmt.Errorf("%w: message %s", commhub.ErrNotFound, id)
	}
	updated := clone(m)
	if err := fn(&updated); err != nil {
		return messaging.Message{}, err
	}
	s.messages[id] = clone(updated)
	return updated, nil
}

// SaveContact creates or replaces a directory entry.
func (s *MemoryStore) SaveContact(ctx context.Context, c messaging.Contact) error {
	if c.UserID == "" {
		return fmt.Errorf("%w: contact without user id", ErrInvalidRecord)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contacts[c.UserID] = c
	return nil
}

func (s *MemoryStore) Contact(ctx context.Context, userID string) (messaging.Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.contacts[userID]
	if !ok {
		return messaging.Contact{}, fmt.Errorf("%w: %w: contact %s", commhub.ErrNotFound, messaging.ErrUnknownContact, userID)
	}
	return c, nil
}

func (s *MemoryStore) ContactsByRole(ctx context.Context, role, regionID string) ([]messaging.Contact, error) {
	return s.filterContacts(func(c messaging.Contact) bool {
		return c.Role == role && (regionID == "" || c.RegionID == regionID)
	}), nil
}

func (s *MemoryStore) ContactsInRegion(ctx context.Context, regionID string) ([]messaging.Contact, error) {
	return s.filterContacts(func(c messaging.Contact) bool { return c.RegionID == regionID }), nil
}

func (s *MemoryStore) filterContacts(keep func(messaging.Contact) bool) []messaging.Contact {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []messaging.Contact
	for _, c := range s.contacts {
		if keep(c) {
			out = append(out, c)
		}
	}
	slices.SortFunc(out, func(a, b messaging.Contact) int { return cmp.Compare(a.UserID, b.UserID) })
	return out
}

// SaveGroup creates or replaces a communication group.
func (s *MemoryStore) SaveGroup(ctx context.Context, g messaging.Group) error {
	if g.ID == "" {
		return fmt.Errorf("%w: group id is empty", ErrInvalidRecord)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.groups[g.ID] = clone(g)
	return nil
}

func (s *MemoryStore) Group(ctx context.Context, id string) (messaging.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.groups[id]
	if !ok {
		return messaging.Group{}, fmt.Errorf("%w: group %s", commhub.ErrNotFound, id)
	}
	return clone(g), nil
}

func (s *MemoryStore) CreateCoordination(ctx context.Context, c commhub.ElderCoordination) error {
	if c.ID == "" {
		return fmt.Errorf("%w: coordination id is empty", ErrInvalidRecord)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.coordinations[c.ID]; exists {
		return fmt.Errorf("%w: coordination %s", ErrAlreadyExists, c.ID)
	}
	s.coordinations[c.ID] = clone(c)
	return nil
}

func (s *MemoryStore) Coordination(ctx context.Context, id string) (commhub.ElderCoordination, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.coordinations[id]
	if !ok {
		return commhub.ElderCoordination{}, fmt.Errorf("%w: coordination %s", commhub.ErrNotFound, id)
	}
	return clone(c), nil
}

func (s *MemoryStore) UpdateCoordination(ctx context.Context, id string, fn func(*commhub.ElderCoordination) error) (commhub.ElderCoordination, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.coordinations[id]
	if !ok {
		return commhub.ElderCoordination{}, fmt.Errorf("%w: coordination %s", commhub.ErrNotFound, id)
	}
	updated := clone(c)
	if err := fn(&updated); err != nil {
		return commhub.ElderCoordination{}, err
	}
	s.coordinations[id] = clone(updated)
	return updated, nil
}

// clone deep-copies a record through its JSON form, the same form the
// Postgres store persists, so both stores hand out equivalent values.
func clone[T any](v T) T {
	data, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("store: clone %T: %v", v, err))
	}
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		panic(fmt.Sprintf("store: clone %T: %v", v, err))
	}
	return out
}
