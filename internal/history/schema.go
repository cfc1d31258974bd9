package history

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
)

//go:embed schema.sql
var baseSchema string

// migrations[i] upgrades a database from user_version i to i+1. The version
// lives in SQLite's own PRAGMA user_version, so no bookkeeping table exists.
var migrations = []string{
	baseSchema,
	// `history tickets` lists newest first and prune cuts by age.
	"CREATE INDEX idx_tickets_created_at ON tickets(created_at)",
}

// schemaVersion is the version a fully migrated database reports.
var schemaVersion = len(migrations)

// ErrSchemaMismatch is returned for a database written by a newer client.
var ErrSchemaMismatch = errors.New("history schema is newer than this client")

// migrate brings the database up to schemaVersion, one transaction per step
// so a failed step leaves the previous version intact.
func (s *Store) migrate(ctx context.Context) error {
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read history schema version: %w", err)
	}
	if version > schemaVersion {
		return fmt.Errorf("%w: %s is at version %d, this client understands %d (upgrade sendit or move the file aside)",
			ErrSchemaMismatch, s.path, version, schemaVersion)
	}
	for ; version < schemaVersion; version++ {
		if err := s.step(ctx, version); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) step(ctx context.Context, from int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin history migration: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, migrations[from]); err != nil {
		return fmt.Errorf("migrate history to version %d: %w", from+1, err)
	}
	// PRAGMA does not take bind parameters.
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", from+1)); err != nil {
		return fmt.Errorf("record history version %d: %w", from+1, err)
	}
	return tx.Commit()
}
