// Package store persists hub data.
//
// MemoryStore and Postgres implement commhub.Store. Postgres keeps each record as
// a JSONB document with its lookup columns alongside; Migrate applies the embedded
// goose migrations. PostgresQueue implements dispatch.Repository on the same
// database so several processes can share delivery work.
//
// PreferenceCache puts Redis in front of any preference repository. Seed files
// (YAML) bootstrap templates, rules, contacts, groups and preferences:
//
//	seed, err := store.LoadSeed("seed.yaml")
//	if err != nil {
//		return err
//	}
//	if err := seed.Apply(ctx, st); err != nil {
//		return err
//	}
package store
