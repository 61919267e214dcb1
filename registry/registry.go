/*
Package registry keeps a history of training runs in a SQLite database.

The database uses modernc.org/sqlite, so no cgo toolchain is needed.
*/
package registry

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	_ "modernc.org/sqlite"
)

// ErrRunNotFound is returned by Get for unknown run ids.
var ErrRunNotFound = errors.New("training run not found")

// fixed width so that timestamps sort as text
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Run is one completed training run.
type Run struct {
	ID             string        `json:"id"`
	Corpus         string        `json:"corpus"`
	ModelPath      string        `json:"model_path"`
	MaxGames       int           `json:"max_games"`
	Records        int           `json:"records"`
	Corrupt        int           `json:"corrupt"`
	Admitted       int           `json:"admitted"`
	Excluded       int           `json:"excluded"`
	ReplayFailures int           `json:"replay_failures"`
	Positions      int           `json:"positions"`
	WhiteWinRate   float64       `json:"white_win_rate"`
	Trees          int           `json:"trees"`
	MaxDepth       int           `json:"max_depth"`
	Took           time.Duration `json:"took"`
	CreatedAt      time.Time     `json:"created_at"`
}

// Registry records training runs.
type Registry struct {
	db     *sql.DB
	logger zerolog.Logger
	mu     sync.Mutex
}

// Open opens or creates the registry database at path and brings its schema
// up to date.
func Open(path string, logger zerolog.Logger) (*Registry, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, errors.Wrap(err, "create registry directory")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "open registry %s", path)
	}
	// a single connection keeps writes serialized
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "ping registry %s", path)
	}

	r := &Registry{db: db, logger: logger}
	if err := r.migrate(context.Background()); err != nil {
		db.Close()
		return nil, errors.WithMessage(err, "migrate registry")
	}
	return r, nil
}

// Record stores run, assigning an id and timestamp when they are unset, and
// returns the stored run.
func (r *Registry) Record(ctx context.Context, run Run) (Run, error) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}
	run.CreatedAt = run.CreatedAt.UTC()

	r.mu.Lock()
	defer r.mu.Unlock()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO training_runs (
			id, corpus, model_path, max_games, records, corrupt, admitted, excluded,
			replay_failures, positions, white_win_rate, trees, max_depth, took_ns, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Corpus, run.ModelPath, run.MaxGames, run.Records, run.Corrupt, run.Admitted, run.Excluded,
		run.ReplayFailures, run.Positions, run.WhiteWinRate, run.Trees, run.MaxDepth, int64(run.Took),
		run.CreatedAt.Format(timeLayout),
	)
	if err != nil {
		return Run{}, errors.Wrap(err, "record training run")
	}
	r.logger.Debug().Str("run", run.ID).Msg("recorded training run")
	return run, nil
}

const selectRuns = `
	SELECT id, corpus, model_path, max_games, records, corrupt, admitted, excluded,
		replay_failures, positions, white_win_rate, trees, max_depth, took_ns, created_at
	FROM training_runs`

// List returns the most recent runs first. limit <= 0 returns all of them.
func (r *Registry) List(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	rows, err := r.db.QueryContext(ctx, selectRuns+` ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list training runs")
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, errors.WithStack(rows.Err())
}

// Get returns the run with the given id.
func (r *Registry) Get(ctx context.Context, id string) (Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, err := scanRun(r.db.QueryRowContext(ctx, selectRuns+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, errors.Wrapf(ErrRunNotFound, "run %s", id)
	}
	return run, err
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(s scanner) (Run, error) {
	var (
		run     Run
		tookNS  int64
		created string
	)
	err := s.Scan(&run.ID, &run.Corpus, &run.ModelPath, &run.MaxGames, &run.Records, &run.Corrupt,
		&run.Admitted, &run.Excluded, &run.ReplayFailures, &run.Positions, &run.WhiteWinRate,
		&run.Trees, &run.MaxDepth, &tookNS, &created)
	if err != nil {
		return Run{}, errors.WithStack(err)
	}
	run.Took = time.Duration(tookNS)
	if run.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
		return Run{}, errors.Wrapf(err, "run %s timestamp", run.ID)
	}
	return run, nil
}

// Close closes the database.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return errors.WithStack(r.db.Close())
}
