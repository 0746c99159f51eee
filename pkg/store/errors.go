package store

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrFailedToOpenDBConnection     = errors.New("failed to open db connection")
	ErrFailedToParseDBConfig        = errors.New("failed to parse db config")
	ErrHealthcheckFailed            = errors.New("healthcheck failed, connection is not available")
	ErrFailedToApplyMigrations      = errors.New("failed to apply migrations")
	ErrFailedToParseRedisConnString = errors.New("failed to parse redis connection string")
	ErrRedisNotReady                = errors.New("redis did not become ready within the given time period")
	ErrInvalidSeed                  = errors.New("invalid seed data")
	ErrInvalidRecord                = errors.New("invalid record")
	ErrAlreadyExists                = errors.New("record already exists")
)

// isNotFound detects pgx.ErrNoRows.
func isNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// isDuplicateKey detects unique constraint violations (SQLSTATE 23505).
func isDuplicateKey(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
