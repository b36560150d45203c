package output

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

var ErrRunNotFound = errors.New("run not found")

// Run is the record of one distance computation.
type Run struct {
	ID          int64
	Title       string
	Mesh        string
	Dofs        int
	Ranks       int
	MeshScale   float64
	MinDistance float64
	MaxDistance float64
	// Iterations of the Dirichlet, Neumann and Poisson solves
	Iterations [3]int
	Elapsed    time.Duration
	Parameters string // YAML input
	CreatedAt  time.Time
}

// Store keeps runs and their nodal distances in SQLite.
type Store struct {
	db *sql.DB
}

// OpenStore opens or creates the database at path; ":memory:" keeps it in
// memory for the life of the store.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one connection, so an in-memory database is shared by every query
	db.SetMaxOpenConns(1)
	st := &Store{db: db}
	if err := st.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return st, nil
}

func (st *Store) Close() error { return st.db.Close() }

func (st *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL,
		mesh TEXT NOT NULL,
		dofs INTEGER NOT NULL,
		ranks INTEGER NOT NULL,
		mesh_scale REAL NOT NULL,
		min_distance REAL NOT NULL,
		max_distance REAL NOT NULL,
		dirichlet_iterations INTEGER NOT NULL,
		neumann_iterations INTEGER NOT NULL,
		poisson_iterations INTEGER NOT NULL,
		elapsed_ns INTEGER NOT NULL,
		parameters TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS distances (
		run_id INTEGER NOT NULL,
		dof INTEGER NOT NULL,
		value REAL NOT NULL,
		PRIMARY KEY (run_id, dof),
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);
	`
	_, err := st.db.Exec(schema)
	return err
}

// SaveRun stores run and its nodal distances in one transaction and
// returns the new run id.
func (st *Store) SaveRun(ctx context.Context, run Run, values []float64) (id int64, err error) {
	var tx *sql.Tx
	if tx, err = st.db.BeginTx(ctx, nil); err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	res, err := tx.ExecContext(ctx, `
		INSERT INTO runs (title, mesh, dofs, ranks, mesh_scale, min_distance, max_distance,
			dirichlet_iterations, neumann_iterations, poisson_iterations, elapsed_ns, parameters, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.Title, run.Mesh, run.Dofs, run.Ranks, run.MeshScale, run.MinDistance, run.MaxDistance,
		run.Iterations[0], run.Iterations[1], run.Iterations[2], int64(run.Elapsed), run.Parameters,
		run.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to insert run: %w", err)
	}
	if id, err = res.LastInsertId(); err != nil {
		return 0, fmt.Errorf("failed to read run id: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO distances (run_id, dof, value) VALUES (?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare distance insert: %w", err)
	}
	defer stmt.Close()
	for dof, v := range values {
		if _, err = stmt.ExecContext(ctx, id, dof, v); err != nil {
			return 0, fmt.Errorf("failed to insert distance %d: %w", dof, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit run: %w", err)
	}
	return
}

const runColumns = `id, title, mesh, dofs, ranks, mesh_scale, min_distance, max_distance,
	dirichlet_iterations, neumann_iterations, poisson_iterations, elapsed_ns, parameters, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (run Run, err error) {
	var elapsed int64
	err = s.Scan(&run.ID, &run.Title, &run.Mesh, &run.Dofs, &run.Ranks, &run.MeshScale,
		&run.MinDistance, &run.MaxDistance, &run.Iterations[0], &run.Iterations[1],
		&run.Iterations[2], &elapsed, &run.Parameters, &run.CreatedAt)
	run.Elapsed = time.Duration(elapsed)
	return
}

func (st *Store) GetRun(ctx context.Context, id int64) (run Run, err error) {
	row := st.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	if run, err = scanRun(row); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = fmt.Errorf("%w: %d", ErrRunNotFound, id)
			return
		}
		err = fmt.Errorf("failed to scan run: %w", err)
	}
	return
}

// ListRuns returns every run, oldest first.
func (st *Store) ListRuns(ctx context.Context) (runs []Run, err error) {
	rows, err := st.db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var run Run
		if run, err = scanRun(rows); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Distances returns the nodal distances of a run ordered by dof.
func (st *Store) Distances(ctx context.Context, id int64) (values []float64, err error) {
	rows, err := st.db.QueryContext(ctx, `SELECT value FROM distances WHERE run_id = ? ORDER BY dof`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query distances: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var v float64
		if err = rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan distance: %w", err)
		}
		values = append(values, v)
	}
	return values, rows.Err()
}
