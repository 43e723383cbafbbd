// Package catalog records render runs, per-image results and building footprints in a
// SQLite database.
package catalog

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkb"
	_ "modernc.org/sqlite"

	"github.com/sells-group/damage-vis/internal/overlay"
)

// RenderStatus is the outcome of one image/label pair.
type RenderStatus string

// Render outcomes.
const (
	StatusOK      RenderStatus = "ok"
	StatusMissing RenderStatus = "missing"
	StatusFailed  RenderStatus = "failed"
)

// Run is one invocation of the render command.
type Run struct {
	ID         string     `json:"id" yaml:"id"`
	Root       string     `json:"root" yaml:"root"`
	StartedAt  time.Time  `json:"started_at" yaml:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty" yaml:"finished_at,omitempty"`
	Rendered   int        `json:"rendered" yaml:"rendered"`
	Missing    int        `json:"missing" yaml:"missing"`
	Failed     int        `json:"failed" yaml:"failed"`
}

// Render is the result for one pair within a run.
type Render struct {
	ID           string       `json:"id"`
	RunID        string       `json:"run_id"`
	Stem         string       `json:"stem"`
	Label        string       `json:"label"`
	Image        string       `json:"image"`
	Output       string       `json:"output"`
	Features     int          `json:"features"`
	DrawnRings   int          `json:"drawn_rings"`
	SkippedRings int          `json:"skipped_rings"`
	Status       RenderStatus `json:"status"`
	Error        string       `json:"error,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
}

// Footprint is the drawn area of one labeled feature.
type Footprint struct {
	Category overlay.Category
	Area     float64
	Geometry *geom.MultiPolygon
}

// CategoryTotal aggregates footprints of one category.
type CategoryTotal struct {
	Features int     `json:"features" yaml:"features"`
	Area     float64 `json:"area" yaml:"area"`
}

// Catalog is a SQLite-backed run catalog.
type Catalog struct {
	db *sql.DB
}

// Open opens a SQLite database at the given path and configures WAL mode.
func Open(dsn string) (*Catalog, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "catalog: open")
	}
	// render workers write concurrently; serialise on one connection
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "catalog: exec %s", pragma)
		}
	}
	return &Catalog{db: db}, nil
}

const migration = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	root        TEXT NOT NULL,
	started_at  DATETIME NOT NULL,
	finished_at DATETIME,
	rendered    INTEGER NOT NULL DEFAULT 0,
	missing     INTEGER NOT NULL DEFAULT 0,
	failed      INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS renders (
	id            TEXT PRIMARY KEY,
	run_id        TEXT NOT NULL REFERENCES runs(id),
	stem          TEXT NOT NULL,
	label         TEXT NOT NULL,
	image         TEXT NOT NULL,
	output        TEXT NOT NULL,
	features      INTEGER NOT NULL DEFAULT 0,
	drawn_rings   INTEGER NOT NULL DEFAULT 0,
	skipped_rings INTEGER NOT NULL DEFAULT 0,
	status        TEXT NOT NULL,
	error         TEXT,
	created_at    DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS footprints (
	render_id TEXT NOT NULL REFERENCES renders(id),
	seq       INTEGER NOT NULL,
	category  TEXT NOT NULL,
	area      REAL NOT NULL,
	geom      BLOB NOT NULL,
	PRIMARY KEY (render_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_renders_run_id ON renders(run_id);
CREATE INDEX IF NOT EXISTS idx_renders_stem ON renders(stem);
CREATE INDEX IF NOT EXISTS idx_footprints_category ON footprints(category);
`

// Migrate creates the catalog tables.
func (c *Catalog) Migrate(ctx context.Context) error {
	_, err := c.db.ExecContext(ctx, migration)
	return eris.Wrap(err, "catalog: migrate")
}

// Close closes the database.
func (c *Catalog) Close() error {
	return c.db.Close()
}

// CreateRun starts a new run for the dataset split at root.
func (c *Catalog) CreateRun(ctx context.Context, root string) (*Run, error) {
	run := &Run{
		ID:        uuid.New().String(),
		Root:      root,
		StartedAt: time.Now().UTC(),
	}
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO runs (id, root, started_at) VALUES (?, ?, ?)`,
		run.ID, run.Root, run.StartedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "catalog: insert run")
	}
	return run, nil
}

// RecordRender stores a render result and its footprints in one transaction. ID and
// CreatedAt are assigned when empty.
func (c *Catalog) RecordRender(ctx context.Context, r *Render, footprints []Footprint) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "catalog: begin")
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx,
		`INSERT INTO renders (id, run_id, stem, label, image, output, features, drawn_rings, skipped_rings, status, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.RunID, r.Stem, r.Label, r.Image, r.Output,
		r.Features, r.DrawnRings, r.SkippedRings, string(r.Status), nullString(r.Error), r.CreatedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "catalog: insert render %s", r.Stem)
	}

	for i, fp := range footprints {
		data, err := wkb.Marshal(fp.Geometry, wkb.NDR)
		if err != nil {
			return eris.Wrapf(err, "catalog: encode footprint %d of %s", i, r.Stem)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO footprints (render_id, seq, category, area, geom) VALUES (?, ?, ?, ?, ?)`,
			r.ID, i, string(fp.Category), fp.Area, data,
		)
		if err != nil {
			return eris.Wrapf(err, "catalog: insert footprint %d of %s", i, r.Stem)
		}
	}

	return eris.Wrap(tx.Commit(), "catalog: commit render")
}

// FinishRun stamps the run's end time and final counters.
func (c *Catalog) FinishRun(ctx context.Context, runID string, rendered, missing, failed int) error {
	res, err := c.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, rendered = ?, missing = ?, failed = ? WHERE id = ?`,
		time.Now().UTC(), rendered, missing, failed, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "catalog: finish run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

// GetRun returns one run.
func (c *Catalog) GetRun(ctx context.Context, runID string) (*Run, error) {
	row := c.db.QueryRowContext(ctx,
		`SELECT id, root, started_at, finished_at, rendered, missing, failed FROM runs WHERE id = ?`,
		runID,
	)
	return scanRun(row)
}

// ListRuns returns the most recent runs first.
func (c *Catalog) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := c.db.QueryContext(ctx,
		`SELECT id, root, started_at, finished_at, rendered, missing, failed FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "catalog: list runs")
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "catalog: list runs iterate")
}

// ListRenders returns the renders of a run in stem order.
func (c *Catalog) ListRenders(ctx context.Context, runID string) ([]Render, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT id, run_id, stem, label, image, output, features, drawn_rings, skipped_rings, status, error, created_at
		 FROM renders WHERE run_id = ? ORDER BY stem`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: list renders %s", runID)
	}
	defer rows.Close()

	var out []Render
	for rows.Next() {
		var r Render
		var status string
		var errMsg sql.NullString
		if err := rows.Scan(&r.ID, &r.RunID, &r.Stem, &r.Label, &r.Image, &r.Output,
			&r.Features, &r.DrawnRings, &r.SkippedRings, &status, &errMsg, &r.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "catalog: scan render")
		}
		r.Status = RenderStatus(status)
		r.Error = errMsg.String
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "catalog: list renders iterate")
}

// Footprints returns the stored footprints of one render in feature order.
func (c *Catalog) Footprints(ctx context.Context, renderID string) ([]Footprint, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT category, area, geom FROM footprints WHERE render_id = ? ORDER BY seq`,
		renderID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: list footprints %s", renderID)
	}
	defer rows.Close()

	var out []Footprint
	for rows.Next() {
		var (
			category string
			fp       Footprint
			data     []byte
		)
		if err := rows.Scan(&category, &fp.Area, &data); err != nil {
			return nil, eris.Wrap(err, "catalog: scan footprint")
		}
		g, err := wkb.Unmarshal(data)
		if err != nil {
			return nil, eris.Wrap(err, "catalog: decode footprint")
		}
		mp, ok := g.(*geom.MultiPolygon)
		if !ok {
			return nil, eris.Errorf("catalog: footprint is %T, want MultiPolygon", g)
		}
		fp.Category = overlay.Category(category)
		fp.Geometry = mp
		out = append(out, fp)
	}
	return out, eris.Wrap(rows.Err(), "catalog: list footprints iterate")
}

// CategoryTotals sums footprint counts and areas per category across a run.
func (c *Catalog) CategoryTotals(ctx context.Context, runID string) (map[overlay.Category]CategoryTotal, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT f.category, COUNT(*), COALESCE(SUM(f.area), 0)
		 FROM footprints f JOIN renders r ON r.id = f.render_id
		 WHERE r.run_id = ?
		 GROUP BY f.category`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: category totals %s", runID)
	}
	defer rows.Close()

	totals := make(map[overlay.Category]CategoryTotal)
	for rows.Next() {
		var category string
		var t CategoryTotal
		if err := rows.Scan(&category, &t.Features, &t.Area); err != nil {
			return nil, eris.Wrap(err, "catalog: scan category total")
		}
		totals[overlay.Category(category)] = t
	}
	return totals, eris.Wrap(rows.Err(), "catalog: category totals iterate")
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*Run, error) {
	var r Run
	var finished sql.NullTime

	err := row.Scan(&r.ID, &r.Root, &r.StartedAt, &finished, &r.Rendered, &r.Missing, &r.Failed)
	if err == sql.ErrNoRows {
		return nil, eris.New("run not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "catalog: scan run")
	}
	if finished.Valid {
		t := finished.Time
		r.FinishedAt = &t
	}
	return &r, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
