package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/commhub/pkg/commhub"
	"github.com/dmitrymomot/commhub/pkg/messaging"
)

// Postgres implements the hub repositories on Postgres. Records are stored as
// JSONB documents next to the columns used for lookups.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres wraps a connection pool. Run Migrate first.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

var (
	_ commhub.Store = (*Postgres)(nil)
	_ SeedWriter    = (*Postgres)(nil)
)

func (p *Postgres) SaveRule(ctx context.Context, r messaging.Rule) error {
	if r.ID == "" {
		return fmt.Errorf("%w: rule id is empty", ErrInvalidRecord)
	}
	return p.upsert(ctx, `
		INSERT INTO notification_rules (id, event_type, is_active, data, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (id) DO UPDATE
		SET event_type = EXCLUDED.event_type, is_active = EXCLUDED.is_active,
		    data = EXCLUDED.data, updated_at = now()`,
		r, r.ID, string(r.EventType), r.IsActive)
}

func (p *Postgres) ActiveRules(ctx context.Context, eventType messaging.EventType) ([]messaging.Rule, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT data FROM notification_rules WHERE event_type = $1 AND is_active ORDER BY id`,
		string(eventType))
	if err != nil {
		return nil, fmt.Errorf("query rules: %w", err)
	}
	return collectJSON[messaging.Rule](rows)
}

func (p *Postgres) SaveTemplate(ctx context.Context, t messaging.Template) error {
	if t.ID == "" {
		return fmt.Errorf("%w: template id is empty", ErrInvalidRecord)
	}
	return p.upsert(ctx, `
		INSERT INTO message_templates (id, data, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data, updated_at = now()`,
		t, t.ID)
}

func (p *Postgres) Template(ctx context.Context, id string) (messaging.Template, error) {
	return getJSON[messaging.Template](ctx, p.pool, "template", id,
		`SELECT data FROM message_templates WHERE id = $1`)
}

func (p *Postgres) Preferences(ctx context.Context, userIDs ...string) (map[string]messaging.Preferences, error) {
	out := make(map[string]messaging.Preferences, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}
	rows, err := p.pool.Query(ctx,
		`SELECT data FROM communication_preferences WHERE user_id = ANY($1)`, userIDs)
	if err != nil {
		return nil, fmt.Errorf("query preferences: %w", err)
	}
	prefs, err := collectJSON[messaging.Preferences](rows)
	if err != nil {
		return nil, err
	}
	for _, pr := range prefs {
		out[pr.UserID] = pr
	}
	return out, nil
}

func (p *Postgres) SavePreferences(ctx context.Context, pr messaging.Preferences) error {
	if pr.UserID == "" {
		return fmt.Errorf("%w: preferences without user id", ErrInvalidRecord)
	}
	return p.upsert(ctx, `
		INSERT INTO communication_preferences (user_id, data, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (user_id) DO UPDATE SET data = EXCLUDED.data, updated_at = now()`,
		pr, pr.UserID)
}

func (p *Postgres) CreateMessage(ctx context.Context, msg messaging.Message) error {
	if msg.ID == "" {
		return fmt.Errorf("%w: message id is empty", ErrInvalidRecord)
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	_, err = p.pool.Exec(ctx, `
		INSERT INTO messages (id, status, data, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		msg.ID, string(msg.Status), data, msg.CreatedAt, msg.UpdatedAt)
	if isDuplicateKey(err) {
		return fmt.Errorf("%w: message %s", ErrAlreadyExists, msg.ID)
	}
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (p *Postgres) Message(ctx context.Context, id string) (messaging.Message, error) {
	return getJSON[messaging.Message](ctx, p.pool, "message", id,
		`SELECT data FROM messages WHERE id = $1`)
}

// UpdateMessage locks the row for the duration of fn.
func (p *Postgres) UpdateMessage(ctx context.Context, id string, fn func(*messaging.Message) error) (messaging.Message, error) {
	var updated messaging.Message
	err := pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		msg, err := getJSON[messaging.Message](ctx, tx, "message", id,
			`SELECT data FROM messages WHERE id = $1 FOR UPDATE`)
		if err != nil {
			return err
		}
		if err := fn(&msg); err != nil {
			return err
		}
		data, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("encode message: %w", err)
		}
		if _, err := tx.Exec(ctx,
			`UPDATE messages SET status = $2, data = $3, updated_at = $4 WHERE id = $1`,
			id, string(msg.Status), data, msg.UpdatedAt); err != nil {
			return fmt.Errorf("update message: %w", err)
		}
		updated = msg
		return nil
	})
	if err != nil {
		return messaging.Message{}, err
	}
	return updated, nil
}

func (p *Postgres) SaveContact(ctx context.Context, c messaging.Contact) error {
	if c.UserID == "" {
		return fmt.Errorf("%w: contact without user id", ErrInvalidRecord)
	}
	return p.upsert(ctx, `
		INSERT INTO contacts (user_id, role, region_id, data) VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE
		SET role = EXCLUDED.role, region_id = EXCLUDED.region_id, data = EXCLUDED.data`,
		c, c.UserID, c.Role, c.RegionID)
}

func (p *Postgres) Contact(ctx context.Context, userID string) (messaging.Contact, error) {
	c, err := getJSON[messaging.Contact](ctx, p.pool, "contact", userID,
		`SELECT data FROM contacts WHERE user_id = $1`)
	if errors.Is(err, commhub.ErrNotFound) {
		return c, fmt.Errorf("%w: %w", messaging.ErrUnknownContact, err)
	}
	return c, err
}

func (p *Postgres) ContactsByRole(ctx context.Context, role, regionID string) ([]messaging.Contact, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT data FROM contacts
		WHERE role = $1 AND ($2 = '' OR region_id = $2)
		ORDER BY user_id`, role, regionID)
	if err != nil {
		return nil, fmt.Errorf("query contacts: %w", err)
	}
	return collectJSON[messaging.Contact](rows)
}

func (p *Postgres) ContactsInRegion(ctx context.Context, regionID string) ([]messaging.Contact, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT data FROM contacts WHERE region_id = $1 ORDER BY user_id`, regionID)
	if err != nil {
		return nil, fmt.Errorf("query contacts: %w", err)
	}
	return collectJSON[messaging.Contact](rows)
}

func (p *Postgres) SaveGroup(ctx context.Context, g messaging.Group) error {
	if g.ID == "" {
		return fmt.Errorf("%w: group id is empty", ErrInvalidRecord)
	}
	return p.upsert(ctx, `
		INSERT INTO communication_groups (id, data) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data`,
		g, g.ID)
}

func (p *Postgres) Group(ctx context.Context, id string) (messaging.Group, error) {
	return getJSON[messaging.Group](ctx, p.pool, "group", id,
		`SELECT data FROM communication_groups WHERE id = $1`)
}

func (p *Postgres) CreateCoordination(ctx context.Context, c commhub.ElderCoordination) error {
	if c.ID == "" {
		return fmt.Errorf("%w: coordination id is empty", ErrInvalidRecord)
	}
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode coordination: %w", err)
	}
	_, err = p.pool.Exec(ctx,
		`INSERT INTO elder_coordinations (id, data, created_at) VALUES ($1, $2, $3)`,
		c.ID, data, c.CreatedAt)
	if isDuplicateKey(err) {
		return fmt.Errorf("%w: coordination %s", ErrAlreadyExists, c.ID)
	}
	if err != nil {
		return fmt.Errorf("insert coordination: %w", err)
	}
	return nil
}

func (p *Postgres) Coordination(ctx context.Context, id string) (commhub.ElderCoordination, error) {
	return getJSON[commhub.ElderCoordination](ctx, p.pool, "coordination", id,
		`SELECT data FROM elder_coordinations WHERE id = $1`)
}

func (p *Postgres) UpdateCoordination(ctx context.Context, id string, fn func(*commhub.ElderCoordination) error) (commhub.ElderCoordination, error) {
	var updated commhub.ElderCoordination
	err := pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		c, err := getJSON[commhub.ElderCoordination](ctx, tx, "coordination", id,
			`SELECT data FROM elder_coordinations WHERE id = $1 FOR UPDATE`)
		if err != nil {
			return err
		}
		if err := fn(&c); err != nil {
			return err
		}
		data, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("encode coordination: %w", err)
		}
		if _, err := tx.Exec(ctx,
			`UPDATE elder_coordinations SET data = $2 WHERE id = $1`, id, data); err != nil {
			return fmt.Errorf("update coordination: %w", err)
		}
		updated = c
		return nil
	})
	if err != nil {
		return commhub.ElderCoordination{}, err
	}
	return updated, nil
}

// upsert encodes doc as the last query argument.
func (p *Postgres) upsert(ctx context.Context, query string, doc any, args ...any) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode %T: %w", doc, err)
	}
	if _, err := p.pool.Exec(ctx, query, append(args, data)...); err != nil {
		return fmt.Errorf("save %T: %w", doc, err)
	}
	return nil
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func getJSON[T any](ctx context.Context, q querier, kind, id, query string) (T, error) {
	var (
		out  T
		data []byte
	)
	if err := q.QueryRow(ctx, query, id).Scan(&data); err != nil {
		if isNotFound(err) {
			return out, fmt.Errorf("%w: %s %s", commhub.ErrNotFound, kind, id)
		}
		return out, fmt.Errorf("load %s %s: %w", kind, id, err)
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("decode %s %s: %w", kind, id, err)
	}
	return out, nil
}

func collectJSON[T any](rows pgx.Rows) ([]T, error) {
	docs, err := pgx.CollectRows(rows, pgx.RowTo[[]byte])
	if err != nil {
		return nil, fmt.Errorf("scan rows: %w", err)
	}
	out := make([]T, 0, len(docs))
	for _, data := range docs {
		var v T
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, errors.Join(ErrInvalidRecord, err)
		}
		out = append(out, v)
	}
	return out, nil
}
