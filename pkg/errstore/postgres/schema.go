// Package postgres provides a PostgreSQL-backed [errstore.Sink].
//
// Each [Store.Write] call stores one run: a row in runs and one row per
// record in error_records, keyed by (run_id, seq) where seq is the record's
// position in the assembled table. Writing a run id again replaces that run.
//
// Usage:
//
//	store, err := postgres.NewStore(ctx, dsn)
//	if err != nil { … }
//	defer store.Close()
//
//	_ = store.Write(ctx, run, records)
//	recs, _ := store.Records(ctx, run.ID)
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlRuns = `
CREATE TABLE IF NOT EXISTS runs (
    run_id       TEXT         PRIMARY KEY,
    corpus_path  TEXT         NOT NULL DEFAULT '',
    started_at   TIMESTAMPTZ  NOT NULL DEFAULT now(),
    utterances   INTEGER      NOT NULL DEFAULT 0,
    ok           INTEGER      NOT NULL DEFAULT 0,
    failed       INTEGER      NOT NULL DEFAULT 0,
    dropped      INTEGER      NOT NULL DEFAULT 0,
    records      INTEGER      NOT NULL DEFAULT 0
);
`

const ddlErrorRecords = `
CREATE TABLE IF NOT EXISTS error_records (
    run_id           TEXT              NOT NULL REFERENCES runs (run_id) ON DELETE CASCADE,
    seq              INTEGER           NOT NULL,
    record_id        TEXT              NOT NULL,
    utterance_id     TEXT              NOT NULL,
    op_index         INTEGER           NOT NULL,
    annotation       CHAR(1)           NOT NULL,
    position         INTEGER           NOT NULL,
    sentence_length  INTEGER           NOT NULL,
    hyp_present      BOOLEAN           NOT NULL,
    hyp_token        TEXT              NOT NULL DEFAULT '',
    hyp_pos          TEXT              NOT NULL DEFAULT '',
    hyp_shape        TEXT              NOT NULL DEFAULT '',
    hyp_prob         DOUBLE PRECISION,
    hyp_cprob        DOUBLE PRECISION,
    ref_present      BOOLEAN           NOT NULL,
    ref_token        TEXT              NOT NULL DEFAULT '',
    ref_pos          TEXT              NOT NULL DEFAULT '',
    ref_shape        TEXT              NOT NULL DEFAULT '',
    ref_prob         DOUBLE PRECISION,
    ref_cprob        DOUBLE PRECISION,
    jaro_winkler     DOUBLE PRECISION,
    edit_distance    INTEGER,
    sounds_alike     BOOLEAN,
    PRIMARY KEY (run_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_error_records_record_id
    ON error_records (record_id);

CREATE INDEX IF NOT EXISTS idx_error_records_run_annotation
    ON error_records (run_id, annotation);
`

// Migrate creates the runs and error_records tables if they do not exist. It
// is idempotent and safe to call on every start.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range []string{ddlRuns, ddlErrorRecords} {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres migrate: %w", err)
		}
	}
	return nil
}
