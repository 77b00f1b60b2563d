package progress

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/enrichment-cli/internal/model"
)

// SQLitePersister stores runs and results in SQLite tables.
type SQLitePersister struct {
	db  *sql.DB
	now func() time.Time
}

// sqliteTimeLayout is fixed width so text order matches time order.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func sqliteTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS progress_runs (
	run_id     TEXT PRIMARY KEY,
	status     TEXT NOT NULL,
	meta       TEXT NOT NULL,
	failures   TEXT NOT NULL DEFAULT '[]',
	archived   INTEGER NOT NULL DEFAULT 0,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS progress_results (
	run_id       TEXT NOT NULL,
	company_key  TEXT NOT NULL,
	company_name TEXT NOT NULL,
	field        TEXT NOT NULL,
	state        TEXT NOT NULL,
	value        TEXT NOT NULL DEFAULT '',
	method       TEXT NOT NULL DEFAULT '',
	method_index INTEGER NOT NULL DEFAULT -1,
	attempts     INTEGER NOT NULL DEFAULT 0,
	error        TEXT NOT NULL DEFAULT '',
	updated_at   TEXT NOT NULL,
	PRIMARY KEY (run_id, company_key, field)
);

CREATE INDEX IF NOT EXISTS idx_progress_runs_archived ON progress_runs(archived);
`

// OpenSQLite opens the database at dsn in WAL mode and creates the schema.
func OpenSQLite(ctx context.Context, dsn string) (*SQLitePersister, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "progress: sqlite open")
	}
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "progress: sqlite exec %s", pragma)
		}
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "progress: sqlite migrate")
	}
	return &SQLitePersister{db: db, now: time.Now}, nil
}

// Read implements Persister.
func (s *SQLitePersister) Read(ctx context.Context) (*Document, error) {
	var runID, metaJSON, failuresJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT run_id, meta, failures FROM progress_runs WHERE archived = 0 ORDER BY updated_at DESC LIMIT 1`,
	).Scan(&runID, &metaJSON, &failuresJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "progress: sqlite read run")
	}

	doc := newDocument()
	if err := json.Unmarshal([]byte(metaJSON), &doc.Meta); err != nil {
		return nil, eris.Wrap(err, "progress: sqlite decode meta")
	}
	if err := json.Unmarshal([]byte(failuresJSON), &doc.Failures); err != nil {
		return nil, eris.Wrap(err, "progress: sqlite decode failures")
	}
	doc.Meta.RunID = runID

	rows, err := s.db.QueryContext(ctx,
		`SELECT company_key, company_name, field, state, value, method, method_index, attempts, error, updated_at
		 FROM progress_results WHERE run_id = ?`, runID)
	if err != nil {
		return nil, eris.Wrap(err, "progress: sqlite read results")
	}
	defer rows.Close() //nolint:errcheck

	for rows.Next() {
		var (
			key, name, field, updated string
			res                       model.FieldResult
		)
		var state string
		if err := rows.Scan(&key, &name, &field, &state, &res.Value, &res.Method,
			&res.MethodIndex, &res.Attempts, &res.Error, &updated); err != nil {
			return nil, eris.Wrap(err, "progress: sqlite scan result")
		}
		res.State = model.ResultState(state)
		res.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
		addResult(&doc, key, name, model.Field(field), res)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "progress: sqlite iterate results")
	}
	return &doc, nil
}

func addResult(doc *Document, key, name string, f model.Field, res model.FieldResult) {
	rec, ok := doc.Records[key]
	if !ok {
		rec = model.Record{Company: name, Fields: map[model.Field]model.FieldResult{}}
	}
	rec.Fields[f] = res
	if res.UpdatedAt.After(rec.UpdatedAt) {
		rec.UpdatedAt = res.UpdatedAt
	}
	doc.Records[key] = rec
}

// Write implements Persister. Only dirty records are written, in one
// transaction with the run row.
func (s *SQLitePersister) Write(ctx context.Context, doc *Document, dirty []string) error {
	metaJSON, failuresJSON, err := encodeRun(doc)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "progress: sqlite begin")
	}
	defer tx.Rollback() //nolint:errcheck

	now := sqliteTime(s.now())
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO progress_runs (run_id, status, meta, failures, archived, updated_at)
		 VALUES (?, ?, ?, ?, 0, ?)
		 ON CONFLICT(run_id) DO UPDATE SET status = excluded.status, meta = excluded.meta,
		   failures = excluded.failures, updated_at = excluded.updated_at`,
		doc.Meta.RunID, string(doc.Meta.Status), metaJSON, failuresJSON, now,
	); err != nil {
		return eris.Wrap(err, "progress: sqlite upsert run")
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO progress_results (run_id, company_key, company_name, field, state, value, method, method_index, attempts, error, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(run_id, company_key, field) DO UPDATE SET company_name = excluded.company_name,
		   state = excluded.state, value = excluded.value, method = excluded.method,
		   method_index = excluded.method_index, attempts = excluded.attempts,
		   error = excluded.error, updated_at = excluded.updated_at`)
	if err != nil {
		return eris.Wrap(err, "progress: sqlite prepare result upsert")
	}
	defer stmt.Close() //nolint:errcheck

	for _, key := range dirty {
		rec, ok := doc.Records[key]
		if !ok {
			continue
		}
		for f, res := range rec.Fields {
			if _, err := stmt.ExecContext(ctx, doc.Meta.RunID, key, rec.Company, string(f),
				string(res.State), res.Value, res.Method, res.MethodIndex, res.Attempts, res.Error,
				sqliteTime(res.UpdatedAt),
			); err != nil {
				return eris.Wrapf(err, "progress: sqlite upsert %s/%s", key, f)
			}
		}
	}
	return eris.Wrap(tx.Commit(), "progress: sqlite commit")
}

// Archive marks the active run archived.
func (s *SQLitePersister) Archive(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `UPDATE progress_runs SET archived = 1 WHERE archived = 0`)
	return eris.Wrap(err, "progress: sqlite archive")
}

// Close closes the database.
func (s *SQLitePersister) Close() error {
	return s.db.Close()
}

func encodeRun(doc *Document) (string, string, error) {
	meta, err := json.Marshal(doc.Meta)
	if err != nil {
		return "", "", eris.Wrap(err, "progress: encode meta")
	}
	failures := doc.Failures
	if failures == nil {
		failures = []model.Failure{}
	}
	fj, err := json.Marshal(failures)
	if err != nil {
		return "", "", eris.Wrap(err, "progress: encode failures")
	}
	return string(meta), string(fj), nil
}
