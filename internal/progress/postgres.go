package progress

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/enrichment-cli/internal/model"
)

// Pool is the subset of pgxpool.Pool the Postgres persister uses.
type Pool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// PostgresPersister stores runs and results in Postgres.
type PostgresPersister struct {
	pool Pool
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS progress_runs (
	run_id     TEXT PRIMARY KEY,
	status     TEXT NOT NULL,
	meta       JSONB NOT NULL,
	failures   JSONB NOT NULL DEFAULT '[]'::jsonb,
	archived   BOOLEAN NOT NULL DEFAULT false,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS progress_results (
	run_id       TEXT NOT NULL REFERENCES progress_runs(run_id),
	company_key  TEXT NOT NULL,
	company_name TEXT NOT NULL,
	field        TEXT NOT NULL,
	state        TEXT NOT NULL,
	value        TEXT NOT NULL DEFAULT '',
	method       TEXT NOT NULL DEFAULT '',
	method_index INTEGER NOT NULL DEFAULT -1,
	attempts     INTEGER NOT NULL DEFAULT 0,
	error        TEXT NOT NULL DEFAULT '',
	updated_at   TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (run_id, company_key, field)
);

CREATE INDEX IF NOT EXISTS idx_progress_runs_active ON progress_runs(archived, updated_at DESC);
`

// OpenPostgres connects a tuned pool, pings it and creates the schema.
func OpenPostgres(ctx context.Context, connString string, poolCfg PoolConfig) (*PostgresPersister, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "progress: postgres parse config")
	}
	cfg.MaxConns = 4
	cfg.MinConns = 1
	if poolCfg.MaxConns > 0 {
		cfg.MaxConns = poolCfg.MaxConns
	}
	if poolCfg.MinConns > 0 {
		cfg.MinConns = poolCfg.MinConns
	}
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "progress: postgres create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "progress: postgres ping")
	}

	p := NewPostgresPersister(pool)
	if err := p.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

// NewPostgresPersister wraps an existing pool.
func NewPostgresPersister(pool Pool) *PostgresPersister {
	return &PostgresPersister{pool: pool}
}

// Migrate creates the progress tables.
func (p *PostgresPersister) Migrate(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, postgresSchema)
	return eris.Wrap(err, "progress: postgres migrate")
}

// Read implements Persister.
func (p *PostgresPersister) Read(ctx context.Context) (*Document, error) {
	var (
		runID            string
		meta, failuresJS []byte
	)
	err := p.pool.QueryRow(ctx,
		`SELECT run_id, meta, failures FROM progress_runs WHERE NOT archived ORDER BY updated_at DESC LIMIT 1`,
	).Scan(&runID, &meta, &failuresJS)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "progress: postgres read run")
	}

	doc := newDocument()
	if err := json.Unmarshal(meta, &doc.Meta); err != nil {
		return nil, eris.Wrap(err, "progress: postgres decode meta")
	}
	if len(failuresJS) > 0 {
		if err := json.Unmarshal(failuresJS, &doc.Failures); err != nil {
			return nil, eris.Wrap(err, "progress: postgres decode failures")
		}
	}
	doc.Meta.RunID = runID

	rows, err := p.pool.Query(ctx,
		`SELECT company_key, company_name, field, state, value, method, method_index, attempts, error, updated_at
		 FROM progress_results WHERE run_id = $1`, runID)
	if err != nil {
		return nil, eris.Wrap(err, "progress: postgres read results")
	}
	defer rows.Close()

	for rows.Next() {
		var (
			key, name, field, state string
			res                     model.FieldResult
		)
		if err := rows.Scan(&key, &name, &field, &state, &res.Value, &res.Method,
			&res.MethodIndex, &res.Attempts, &res.Error, &res.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "progress: postgres scan result")
		}
		res.State = model.ResultState(state)
		addResult(&doc, key, name, model.Field(field), res)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "progress: postgres iterate results")
	}
	return &doc, nil
}

// Write implements Persister. Only dirty records are written, in one
// transaction with the run row.
func (p *PostgresPersister) Write(ctx context.Context, doc *Document, dirty []string) error {
	metaJSON, failuresJSON, err := encodeRun(doc)
	if err != nil {
		return err
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "progress: postgres begin")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx,
		`INSERT INTO progress_runs (run_id, status, meta, failures, archived, updated_at)
		 VALUES ($1, $2, $3::jsonb, $4::jsonb, false, now())
		 ON CONFLICT (run_id) DO UPDATE SET status = EXCLUDED.status, meta = EXCLUDED.meta,
		   failures = EXCLUDED.failures, updated_at = now()`,
		doc.Meta.RunID, string(doc.Meta.Status), metaJSON, failuresJSON,
	); err != nil {
		return eris.Wrap(err, "progress: postgres upsert run")
	}

	for _, key := range dirty {
		rec, ok := doc.Records[key]
		if !ok {
			continue
		}
		for _, f := range model.AllFields {
			res, ok := rec.Fields[f]
			if !ok {
				continue
			}
			if _, err := tx.Exec(ctx,
				`INSERT INTO progress_results (run_id, company_key, company_name, field, state, value, method, method_index, attempts, error, updated_at)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
				 ON CONFLICT (run_id, company_key, field) DO UPDATE SET company_name = EXCLUDED.company_name,
				   state = EXCLUDED.state, value = EXCLUDED.value, method = EXCLUDED.method,
				   method_index = EXCLUDED.method_index, attempts = EXCLUDED.attempts,
				   error = EXCLUDED.error, updated_at = EXCLUDED.updated_at`,
				doc.Meta.RunID, key, rec.Company, string(f), string(res.State), res.Value, res.Method,
				res.MethodIndex, res.Attempts, res.Error, res.UpdatedAt,
			); err != nil {
				return eris.Wrapf(err, "progress: postgres upsert %s/%s", key, f)
			}
		}
	}
	return eris.Wrap(tx.Commit(ctx), "progress: postgres commit")
}

// Archive marks the active run archived.
func (p *PostgresPersister) Archive(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, `UPDATE progress_runs SET archived = true WHERE NOT archived`)
	return eris.Wrap(err, "progress: postgres archive")
}

// Close closes the pool.
func (p *PostgresPersister) Close() error {
	p.pool.Close()
	return nil
}
