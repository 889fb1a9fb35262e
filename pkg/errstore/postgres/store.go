package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/errtable/pkg/errstore"
	"github.com/MrWong99/errtable/pkg/types"
)

// Compile-time interface checks.
var (
	_ errstore.Sink   = (*Store)(nil)
	_ errstore.Pinger = (*Store)(nil)
)

// recordColumns is the COPY column list for error_records.
var recordColumns = []string{
	"run_id", "seq", "record_id", "utterance_id", "op_index", "annotation",
	"position", "sentence_length",
	"hyp_present", "hyp_token", "hyp_pos", "hyp_shape", "hyp_prob", "hyp_cprob",
	"ref_present", "ref_token", "ref_pos", "ref_shape", "ref_prob", "ref_cprob",
	"jaro_winkler", "edit_distance", "sounds_alike",
}

// Store is a PostgreSQL [errstore.Sink]. All methods are safe for concurrent
// use.
type Store struct {
	pool *pgxpool.Pool
}

// Option configures the connection pool of a [Store].
type Option func(*pgxpool.Config)

// WithMaxConns caps the pool size. Values <= 0 keep the pgxpool default
// (or the pool_max_conns DSN parameter).
func WithMaxConns(n int) Option {
	return func(cfg *pgxpool.Config) {
		if n > 0 {
			cfg.MaxConns = int32(n)
		}
	}
}

// NewStore connects to the database at dsn and runs [Migrate].
func NewStore(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}
	for _, o := range opts {
		o(cfg)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Name implements [errstore.Sink].
func (s *Store) Name() string { return "postgres" }

// Ping implements [errstore.Pinger].
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close implements [errstore.Sink].
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Write implements [errstore.Sink]. The run row and all records are written
// in one transaction; an existing run with the same id is replaced.
func (s *Store) Write(ctx context.Context, run errstore.Run, records []types.ErrorRecord) error {
	if run.ID == "" {
		return fmt.Errorf("postgres store: write: run id must not be empty")
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM runs WHERE run_id = $1`, run.ID); err != nil {
			return fmt.Errorf("delete run: %w", err)
		}

		const q = `
			INSERT INTO runs
			    (run_id, corpus_path, started_at, utterances, ok, failed, dropped, records)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
		st := run.Stats
		if _, err := tx.Exec(ctx, q,
			run.ID, run.CorpusPath, run.StartedAt,
			st.Utterances, st.OK, st.Failed, st.Dropped, len(records),
		); err != nil {
			return fmt.Errorf("insert run: %w", err)
		}

		src := pgx.CopyFromSlice(len(records), func(i int) ([]any, error) {
			return recordValues(run.ID, i, &records[i]), nil
		})
		if _, err := tx.CopyFrom(ctx, pgx.Identifier{"error_records"}, recordColumns, src); err != nil {
			return fmt.Errorf("copy records: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("postgres store: write run %s: %w", run.ID, err)
	}
	return nil
}

func recordValues(runID string, seq int, r *types.ErrorRecord) []any {
	var (
		jw    *float64
		dist  *int32
		alike *bool
	)
	if s := r.Similarity; s != nil {
		j, d, a := s.JaroWinkler, int32(s.EditDistance), s.SoundsAlike
		jw, dist, alike = &j, &d, &a
	}
	hp, hcp := sideProbs(r.Hyp)
	rp, rcp := sideProbs(r.Ref)
	return []any{
		runID, int32(seq), r.ID, r.UtteranceID, int32(r.OpIndex), r.Annotation.String(),
		int32(r.Position), int32(r.SentenceLength),
		r.Hyp.Present, r.Hyp.Token, r.Hyp.POS, r.Hyp.Shape, hp, hcp,
		r.Ref.Present, r.Ref.Token, r.Ref.POS, r.Ref.Shape, rp, rcp,
		jw, dist, alike,
	}
}

func sideProbs(d types.SideDetail) (prob, cprob *float64) {
	if !d.Present {
		return nil, nil
	}
	p, cp := d.Prob, d.CProb
	return &p, &cp
}

// Records returns the records of runID in their original order. An unknown
// run yields an empty slice.
func (s *Store) Records(ctx context.Context, runID string) ([]types.ErrorRecord, error) {
	const q = `
		SELECT record_id, utterance_id, op_index, annotation, position, sentence_length,
		       hyp_present, hyp_token, hyp_pos, hyp_shape, hyp_prob, hyp_cprob,
		       ref_present, ref_token, ref_pos, ref_shape, ref_prob, ref_cprob,
		       jaro_winkler, edit_distance, sounds_alike
		FROM   error_records
		WHERE  run_id = $1
		ORDER  BY seq`

	rows, err := s.pool.Query(ctx, q, runID)
	if err != nil {
		return nil, fmt.Errorf("postgres store: records: %w", err)
	}
	recs, err := pgx.CollectRows(rows, scanRecord)
	if err != nil {
		return nil, fmt.Errorf("postgres store: scan records: %w", err)
	}
	if recs == nil {
		recs = []types.ErrorRecord{}
	}
	return recs, nil
}

func scanRecord(row pgx.CollectableRow) (types.ErrorRecord, error) {
	var (
		r                    types.ErrorRecord
		annotation           string
		hp, hcp, rp, rcp, jw *float64
		dist                 *int32
		alike                *bool
	)
	if err := row.Scan(
		&r.ID, &r.UtteranceID, &r.OpIndex, &annotation, &r.Position, &r.SentenceLength,
		&r.Hyp.Present, &r.Hyp.Token, &r.Hyp.POS, &r.Hyp.Shape, &hp, &hcp,
		&r.Ref.Present, &r.Ref.Token, &r.Ref.POS, &r.Ref.Shape, &rp, &rcp,
		&jw, &dist, &alike,
	); err != nil {
		return types.ErrorRecord{}, err
	}

	op, err := types.ParseOperation(annotation)
	if err != nil {
		return types.ErrorRecord{}, err
	}
	r.Annotation = op
	r.Hyp.Prob, r.Hyp.CProb = deref(hp), deref(hcp)
	r.Ref.Prob, r.Ref.CProb = deref(rp), deref(rcp)
	if jw != nil && dist != nil && alike != nil {
		r.Similarity = &types.Similarity{JaroWinkler: *jw, EditDistance: int(*dist), SoundsAlike: *alike}
	}
	return r, nil
}

func deref(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}

// CountByAnnotation returns the number of records of runID per annotation.
func (s *Store) CountByAnnotation(ctx context.Context, runID string) (map[types.Operation]int, error) {
	const q = `
		SELECT annotation, count(*)
		FROM   error_records
		WHERE  run_id = $1
		GROUP  BY annotation`

	rows, err := s.pool.Query(ctx, q, runID)
	if err != nil {
		return nil, fmt.Errorf("postgres store: count by annotation: %w", err)
	}
	defer rows.Close()

	out := make(map[types.Operation]int)
	for rows.Next() {
		var (
			annotation string
			n          int64
		)
		if err := rows.Scan(&annotation, &n); err != nil {
			return nil, fmt.Errorf("postgres store: count by annotation: %w", err)
		}
		op, err := types.ParseOperation(annotation)
		if err != nil {
			return nil, fmt.Errorf("postgres store: count by annotation: %w", err)
		}
		out[op] = int(n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres store: count by annotation: %w", err)
	}
	return out, nil
}

// GetRun returns the stored metadata of runID, or nil when no such run exists.
func (s *Store) GetRun(ctx context.Context, runID string) (*errstore.Run, error) {
	const q = `
		SELECT run_id, corpus_path, started_at, utterances, ok, failed, dropped, records
		FROM   runs
		WHERE  run_id = $1`

	var run errstore.Run
	err := s.pool.QueryRow(ctx, q, runID).Scan(
		&run.ID, &run.CorpusPath, &run.StartedAt,
		&run.Stats.Utterances, &run.Stats.OK, &run.Stats.Failed, &run.Stats.Dropped, &run.Stats.Records,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("postgres store: get run: %w", err)
	}
	return &run, nil
}
