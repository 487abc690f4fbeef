// Package persistence records simulation runs and their per-iteration
// snapshots in SQLite. It sits outside the engine as a snapshot sink.
package persistence

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/SkyeWong/social-segregation-simulator/internal/config"
	"github.com/SkyeWong/social-segregation-simulator/internal/engine"
	"github.com/SkyeWong/social-segregation-simulator/internal/grid"
)

// ErrNotFound is returned when a run or snapshot does not exist.
var ErrNotFound = errors.New("not found")

// DB wraps a SQLite connection for run history.
type DB struct {
	conn *sqlx.DB
}

// Run is one recorded simulation run.
type Run struct {
	ID            string          `db:"id"`
	StartedAt     string          `db:"started_at"`
	FinishedAt    sql.NullString  `db:"finished_at"`
	Seed          int64           `db:"seed"`
	Width         int             `db:"width"`
	Height        int             `db:"height"`
	NumColours    int             `db:"num_colours"`
	PercentEmpty  float64         `db:"percent_empty"`
	SameNeighbour float64         `db:"same_neighbour"`
	Iterations    int             `db:"iterations"`
	Rounds        sql.NullInt64   `db:"rounds"`
	Reason        sql.NullString  `db:"reason"`
	HappyPct      sql.NullFloat64 `db:"happy_pct"`
}

// Started parses StartedAt.
func (r Run) Started() time.Time {
	t, _ := time.Parse(time.RFC3339, r.StartedAt)
	return t
}

// Snapshot is one stored iteration of a run.
type Snapshot struct {
	RunID     string  `db:"run_id"`
	Iteration int     `db:"iteration"`
	HappyPct  float64 `db:"happy_pct"`
	Cells     []byte  `db:"cells"`
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		started_at TEXT NOT NULL,
		finished_at TEXT,
		seed INTEGER NOT NULL,
		width INTEGER NOT NULL,
		height INTEGER NOT NULL,
		num_colours INTEGER NOT NULL,
		percent_empty REAL NOT NULL,
		same_neighbour REAL NOT NULL,
		iterations INTEGER NOT NULL,
		rounds INTEGER,
		reason TEXT,
		happy_pct REAL
	);

	CREATE TABLE IF NOT EXISTS snapshots (
		run_id TEXT NOT NULL,
		iteration INTEGER NOT NULL,
		happy_pct REAL NOT NULL,
		cells BLOB NOT NULL,
		PRIMARY KEY (run_id, iteration),
		FOREIGN KEY (run_id) REFERENCES runs(id)
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// BeginRun inserts a run row and returns a Recorder for its snapshots.
// With snapshots false, only the first and last grids are stored.
func (db *DB) BeginRun(cfg *config.Config, seed int64, snapshots bool) (*Recorder, error) {
	run := Run{
		ID:            uuid.New().String(),
		StartedAt:     time.Now().UTC().Format(time.RFC3339),
		Seed:          seed,
		Width:         cfg.Width,
		Height:        cfg.Height,
		NumColours:    cfg.NumColours,
		PercentEmpty:  cfg.PercentEmpty,
		SameNeighbour: cfg.SameNeighbour,
		Iterations:    cfg.Iterations,
	}

	_, err := db.conn.NamedExec(`INSERT INTO runs
		(id, started_at, seed, width, height, num_colours, percent_empty, same_neighbour, iterations)
		VALUES (:id, :started_at, :seed, :width, :height, :num_colours, :percent_empty, :same_neighbour, :iterations)`,
		run)
	if err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}

	slog.Debug("run recorded", "run_id", run.ID, "seed", seed)
	return &Recorder{db: db, runID: run.ID, all: snapshots}, nil
}

// SaveSnapshot stores one iteration's grid, replacing any existing row.
// It reports whether the iteration was new.
func (db *DB) SaveSnapshot(runID string, iteration int, v grid.View, happyPct float64) (bool, error) {
	var existing int
	if err := db.conn.Get(&existing,
		"SELECT COUNT(*) FROM snapshots WHERE run_id = ? AND iteration = ?", runID, iteration,
	); err != nil {
		return false, fmt.Errorf("look up snapshot %d: %w", iteration, err)
	}
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO snapshots (run_id, iteration, happy_pct, cells) VALUES (?, ?, ?, ?)",
		runID, iteration, happyPct, grid.Encode(v),
	)
	if err != nil {
		return false, fmt.Errorf("insert snapshot %d: %w", iteration, err)
	}
	return existing == 0, nil
}

// FinishRun stores the outcome of a run.
func (db *DB) FinishRun(runID string, res engine.Result) error {
	_, err := db.conn.Exec(
		`UPDATE runs SET finished_at = ?, rounds = ?, reason = ?, happy_pct = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339), res.Rounds, res.Reason.String(), res.Final.Percentage(), runID,
	)
	if err != nil {
		return fmt.Errorf("update run %s: %w", runID, err)
	}
	return nil
}

// ListRuns returns the most recent runs, newest first.
func (db *DB) ListRuns(limit int) ([]Run, error) {
	var runs []Run
	err := db.conn.Select(&runs,
		"SELECT * FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?",
		limit,
	)
	return runs, err
}

// GetRun returns the run with the given ID, or an ID prefix if unambiguous.
func (db *DB) GetRun(id string) (*Run, error) {
	if id == "" {
		return nil, fmt.Errorf("empty run id: %w", ErrNotFound)
	}
	var runs []Run
	if err := db.conn.Select(&runs, "SELECT * FROM runs WHERE substr(id, 1, length(?)) = ? LIMIT 2", id, id); err != nil {
		return nil, err
	}
	switch len(runs) {
	case 0:
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	case 1:
		return &runs[0], nil
	default:
		return nil, fmt.Errorf("run prefix %s is ambiguous", id)
	}
}

// Iterations lists the stored snapshot iterations of a run in order.
func (db *DB) Iterations(runID string) ([]int, error) {
	var its []int
	err := db.conn.Select(&its, "SELECT iteration FROM snapshots WHERE run_id = ? ORDER BY iteration", runID)
	return its, err
}

// LoadSnapshot decodes one stored iteration. A negative iteration loads the
// latest one.
func (db *DB) LoadSnapshot(run *Run, iteration int) (*grid.Grid, *Snapshot, error) {
	var snap Snapshot
	var err error
	if iteration < 0 {
		err = db.conn.Get(&snap, "SELECT * FROM snapshots WHERE run_id = ? ORDER BY iteration DESC LIMIT 1", run.ID)
	} else {
		err = db.conn.Get(&snap, "SELECT * FROM snapshots WHERE run_id = ? AND iteration = ?", run.ID, iteration)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, fmt.Errorf("snapshot %d of run %s: %w", iteration, run.ID, ErrNotFound)
	}
	if err != nil {
		return nil, nil, err
	}

	g, err := grid.Decode(run.Width, run.Height, snap.Cells)
	if err != nil {
		return nil, nil, fmt.Errorf("decode snapshot %d: %w", snap.Iteration, err)
	}
	return g, &snap, nil
}
