package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/dmitrymomot/commhub/pkg/messaging"
)

// Seed is bootstrap data: rules, templates, the user directory and groups.
type Seed struct {
	Templates   []messaging.Template    `yaml:"templates"`
	Rules       []messaging.Rule        `yaml:"rules"`
	Contacts    []messaging.Contact     `yaml:"contacts"`
	Groups      []messaging.Group       `yaml:"groups"`
	Preferences []messaging.Preferences `yaml:"preferences"`
}

// SeedWriter is implemented by stores that can be seeded.
type SeedWriter interface {
	SaveTemplate(ctx context.Context, t messaging.Template) error
	SaveRule(ctx context.Context, r messaging.Rule) error
	SaveContact(ctx context.Context, c messaging.Contact) error
	SaveGroup(ctx context.Context, g messaging.Group) error
	SavePreferences(ctx context.Context, p messaging.Preferences) error
}

// LoadSeed reads and validates a YAML seed file.
func LoadSeed(path string) (Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Seed{}, fmt.Errorf("read seed %s: %w", path, err)
	}
	return ParseSeed(bytes.NewReader(data))
}

// ParseSeed decodes and validates YAML seed data. Unknown fields are rejected.
func ParseSeed(r io.Reader) (Seed, error) {
	var s Seed
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil && !errors.Is(err, io.EOF) {
		return Seed{}, errors.Join(ErrInvalidSeed, err)
	}
	if err := s.Validate(); err != nil {
		return Seed{}, err
	}
	return s, nil
}

// Validate checks ids, enum values and that rules only reference seeded templates.
func (s Seed) Validate() error {
	var errs []error
	templates := make(map[string]bool, len(s.Templates))
	for i, t := range s.Templates {
		switch {
		case t.ID == "":
			errs = append(errs, fmt.Errorf("template #%d: id is required", i))
		case templates[t.ID]:
			errs = append(errs, fmt.Errorf("template %s: duplicate id", t.ID))
		case !t.Type.Valid():
			errs = append(errs, fmt.Errorf("template %s: unknown type %q", t.ID, t.Type))
		case !t.Category.Valid():
			errs = append(errs, fmt.Errorf("template %s: unknown category %q", t.ID, t.Category))
		case t.DefaultPriority != "" && !t.DefaultPriority.Valid():
			errs = append(errs, fmt.Errorf("template %s: unknown priority %q", t.ID, t.DefaultPriority))
		}
		templates[t.ID] = true
	}

	rules := make(map[string]bool, len(s.Rules))
	for i, r := range s.Rules {
		if r.ID == "" {
			errs = append(errs, fmt.Errorf("rule #%d: id is required", i))
			continue
		}
		if rules[r.ID] {
			errs = append(errs, fmt.Errorf("rule %s: duplicate id", r.ID))
		}
		rules[r.ID] = true
		if r.EventType == "" {
			errs = append(errs, fmt.Errorf("rule %s: event type is required", r.ID))
		}
		for _, a := range r.Actions {
			if a.TemplateID != "" && !templates[a.TemplateID] {
				errs = append(errs, fmt.Errorf("rule %s: unknown template %s", r.ID, a.TemplateID))
			}
			for _, ch := range a.Channels {
				if !ch.Valid() {
					errs = append(errs, fmt.Errorf("rule %s: unknown channel %q", r.ID, ch))
				}
			}
		}
	}

	for i, c := range s.Contacts {
		if c.UserID == "" {
			errs = append(errs, fmt.Errorf("contact #%d: user id is required", i))
		}
	}
	for i, g := range s.Groups {
		if g.ID == "" {
			errs = append(errs, fmt.Errorf("group #%d: id is required", i))
		}
	}
	for i, p := range s.Preferences {
		if p.UserID == "" {
			errs = append(errs, fmt.Errorf("preferences #%d: user id is required", i))
		}
	}

	if len(errs) > 0 {
		return errors.Join(append([]error{ErrInvalidSeed}, errs...)...)
	}
	return nil
}

// Apply writes the seed into w. Templates go first so rules never point at
// missing templates.
func (s Seed) Apply(ctx context.Context, w SeedWriter) error {
	for _, t := range s.Templates {
		if err := w.SaveTemplate(ctx, t); err != nil {
			return fmt.Errorf("seed template %s: %w", t.ID, err)
		}
	}
	for _, r := range s.Rules {
		if err := w.SaveRule(ctx, r); err != nil {
			return fmt.Errorf("seed rule %s: %w", r.ID, err)
		}
	}
	for _, c := range s.Contacts {
		if err := w.SaveContact(ctx, c); err != nil {
			return fmt.Errorf("seed contact %s: %w", c.UserID, err)
		}
	}
	for _, g := range s.Groups {
		if err := w.SaveGroup(ctx, g); err != nil {
			return fmt.Errorf("seed group %s: %w", g.ID, err)
		}
	}
	for _, p := range s.Preferences {
		if err := w.SavePreferences(ctx, p); err != nil {
			return fmt.Errorf("seed preferences of %s: %w", p.UserID, err)
		}
	}
	return nil
}
