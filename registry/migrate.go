package registry

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
)

type migration struct {
	version int
	name    string
	up      func(ctx context.Context, tx *sql.Tx) error
}

var migrations = []migration{
	{version: 1, name: "training_runs", up: migrateTrainingRuns},
}

// migrate applies every migration newer than the recorded schema version.
func (r *Registry) migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TEXT NOT NULL DEFAULT (datetime('now'))
		)`); err != nil {
		return errors.Wrap(err, "create schema_migrations")
	}

	var current int
	if err := r.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current); err != nil {
		return errors.Wrap(err, "read schema version")
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		r.logger.Info().Int("version", m.version).Str("name", m.name).Msg("running migration")
		tx, err := r.db.BeginTx(ctx, nil)
		if err != nil {
			return errors.WithStack(err)
		}
		if err := m.up(ctx, tx); err != nil {
			tx.Rollback()
			return errors.Wrapf(err, "migration %d", m.version)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version, name) VALUES (?, ?)`, m.version, m.name); err != nil {
			tx.Rollback()
			return errors.Wrapf(err, "record migration %d", m.version)
		}
		if err := tx.Commit(); err != nil {
			return errors.Wrapf(err, "commit migration %d", m.version)
		}
	}
	return nil
}

func migrateTrainingRuns(ctx context.Context, tx *sql.Tx) error {
	if _, err := tx.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS training_runs (
			id TEXT PRIMARY KEY,
			corpus TEXT NOT NULL,
			model_path TEXT NOT NULL,
			max_games INTEGER NOT NULL,
			records INTEGER NOT NULL,
			corrupt INTEGER NOT NULL,
			admitted INTEGER NOT NULL,
			excluded INTEGER NOT NULL,
			replay_failures INTEGER NOT NULL,
			positions INTEGER NOT NULL,
			white_win_rate REAL NOT NULL,
			trees INTEGER NOT NULL,
			max_depth INTEGER NOT NULL,
			took_ns INTEGER NOT NULL,
			created_at TEXT NOT NULL
		)`); err != nil {
		return errors.Wrap(err, "create training_runs")
	}
	if _, err := tx.ExecContext(ctx, `
		CREATE INDEX IF NOT EXISTS idx_training_runs_created
		ON training_runs(created_at DESC)`); err != nil {
		return errors.Wrap(err, "create training_runs index")
	}
	return nil
}
