// Package store persists falsification runs and their batch history in
// SQLite so that an interrupted search can be resumed.
package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/goatx/falsify/search"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrNotFound indicates a run id with no stored run.
var ErrNotFound = errors.New("store: run not found")

// Status is the lifecycle state of a stored run.
type Status string

const (
	StatusRunning  Status = "running"
	StatusFinished Status = "finished"
	StatusCanceled Status = "canceled"
	StatusFailed   Status = "failed"
)

// Run is a stored falsification run.
type Run struct {
	ID        uuid.UUID
	CreatedAt time.Time
	UpdatedAt time.Time
	Formula   string

	// Spec is the specification text the formula was parsed from.
	Spec string
	// Config is the run file as YAML.
	Config []byte
	// ParamSet is the search domain as JSON.
	ParamSet json.RawMessage
	State    search.State
	Status   Status
}

// Store is a SQLite run database.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// Open opens or creates the database at path and applies pending
// migrations.
//
// Parameters:
//   - ctx: Bounds the initial connection check
//   - path: Database file
//   - logger: Receives migration messages; nil discards them
//
// Returns:
//   - *Store: The open store
//   - error: Connection or migration failure
func Open(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	s := &Store{db: db, logger: logger, now: time.Now}
	if err := s.migrateUp(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrateUp() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	// m is not closed: that would close the shared connection.
	m.Log = migrateLogger{s.logger}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

type migrateLogger struct{ logger *slog.Logger }

func (l migrateLogger) Printf(format string, v ...any) {
	l.logger.Debug(fmt.Sprintf("migrate: "+format, v...))
}

func (l migrateLogger) Verbose() bool { return false }

// CreateRun stores a new run in the running status and assigns its id and
// timestamps.
func (s *Store) CreateRun(ctx context.Context, r *Run) error {
	state, err := json.Marshal(r.State)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	r.ID = uuid.New()
	r.CreatedAt = s.now().UTC()
	r.UpdatedAt = r.CreatedAt
	r.Status = StatusRunning
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (id, created_at, updated_at, formula, spec, config, paramset, state, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID.String(), r.CreatedAt.UnixMilli(), r.UpdatedAt.UnixMilli(),
		r.Formula, r.Spec, string(r.Config), string(r.ParamSet), string(state), string(r.Status))
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// UpdateRun replaces the state and status of a stored run.
func (s *Store) UpdateRun(ctx context.Context, id uuid.UUID, state search.State, status Status) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET state = ?, status = ?, updated_at = ? WHERE id = ?`,
		string(data), string(status), s.now().UTC().UnixMilli(), id.String())
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

const runColumns = `id, created_at, updated_at, formula, spec, config, paramset, state, status`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var (
		r                    Run
		id, cfg, ps, st, sts string
		created, updated     int64
	)
	if err := row.Scan(&id, &created, &updated, &r.Formula, &r.Spec, &cfg, &ps, &st, &sts); err != nil {
		return nil, err
	}
	var err error
	if r.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("run id %q: %w", id, err)
	}
	if err := json.Unmarshal([]byte(st), &r.State); err != nil {
		return nil, fmt.Errorf("decode state of run %s: %w", id, err)
	}
	r.CreatedAt = time.UnixMilli(created).UTC()
	r.UpdatedAt = time.UnixMilli(updated).UTC()
	r.Config = []byte(cfg)
	r.ParamSet = json.RawMessage(ps)
	r.Status = Status(sts)
	return &r, nil
}

// LoadRun returns the run with the given id.
func (s *Store) LoadRun(ctx context.Context, id uuid.UUID) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id.String())
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load run: %w", err)
	}
	return r, nil
}

// ListRuns returns every run, newest first.
func (s *Store) ListRuns(ctx context.Context) ([]*Run, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs ORDER BY created_at DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()
	var out []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("list runs: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// objectives encodes NaN as null.
func objectives(v []float64) []*float64 {
	out := make([]*float64, len(v))
	for i := range v {
		if !math.IsNaN(v[i]) {
			out[i] = &v[i]
		}
	}
	return out
}

// SaveBatch appends a batch to the history of a run.
func (s *Store) SaveBatch(ctx context.Context, id uuid.UUID, b search.Batch) error {
	points, err := json.Marshal(b.Points)
	if err != nil {
		return fmt.Errorf("encode points: %w", err)
	}
	objs, err := json.Marshal(objectives(b.Objectives))
	if err != nil {
		return fmt.Errorf("encode objectives: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO batches (run_id, phase, iteration, points, objectives, duration_ns)
		VALUES (?, ?, ?, ?, ?, ?)`,
		id.String(), string(b.Phase), b.Iteration, string(points), string(objs), b.Duration.Nanoseconds())
	if err != nil {
		return fmt.Errorf("insert batch: %w", err)
	}
	return nil
}

// Batches returns the history of a run in insertion order.
func (s *Store) Batches(ctx context.Context, id uuid.UUID) ([]search.Batch, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT phase, iteration, points, objectives, duration_ns
		FROM batches WHERE run_id = ? ORDER BY seq`, id.String())
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	defer rows.Close()
	var out []search.Batch
	for rows.Next() {
		var (
			b             search.Batch
			phase, points string
			objs          string
			dur           int64
		)
		if err := rows.Scan(&phase, &b.Iteration, &points, &objs, &dur); err != nil {
			return nil, fmt.Errorf("list batches: %w", err)
		}
		if err := json.Unmarshal([]byte(points), &b.Points); err != nil {
			return nil, fmt.Errorf("decode points: %w", err)
		}
		var vals []*float64
		if err := json.Unmarshal([]byte(objs), &vals); err != nil {
			return nil, fmt.Errorf("decode objectives: %w", err)
		}
		b.Objectives = make([]float64, len(vals))
		for i, v := range vals {
			b.Objectives[i] = math.NaN()
			if v != nil {
				b.Objectives[i] = *v
			}
		}
		b.Phase = search.Phase(phase)
		b.Duration = time.Duration(dur)
		out = append(out, b)
	}
	return out, rows.Err()
}

// Recorder returns a batch recorder for search.WithRecorder that appends
// each batch to the run's history. Write failures are logged and do not
// stop the search. Batches finished after ctx is canceled are still written.
func (s *Store) Recorder(ctx context.Context, id uuid.UUID) func(search.Batch) {
	ctx = context.WithoutCancel(ctx)
	return func(b search.Batch) {
		if err := s.SaveBatch(ctx, id, b); err != nil {
			s.logger.Warn("batch not recorded", "run", id, "phase", b.Phase, "error", err)
		}
	}
}

// StatusOf maps the outcome of a search run to a stored status.
func StatusOf(res *search.Result, err error) Status {
	switch {
	case res != nil && res.Stop == search.StopCanceled:
		return StatusCanceled
	case err != nil:
		return StatusFailed
	default:
		return StatusFinished
	}
}
