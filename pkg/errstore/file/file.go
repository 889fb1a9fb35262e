// Package file provides [errstore.Sink] implementations that write records to
// a local file or to stdout.
//
//   - [JSONL] writes one JSON object per record.
//   - [CSV] writes a header row followed by one row per record, using the
//     [errstore.Columns] layout.
//
// Constructing or closing a sink never touches an existing file. Each Write
// encodes into a temporary file next to the target and renames it over the
// target only once every record is flushed, so an interrupted run leaves the
// previous output in place. Writer-backed sinks (including stdout, path "-")
// buffer a Write completely before copying it out.
package file

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/MrWong99/errtable/pkg/errstore"
	"github.com/MrWong99/errtable/pkg/types"
)

// Compile-time interface checks.
var (
	_ errstore.Sink = (*JSONL)(nil)
	_ errstore.Sink = (*CSV)(nil)
)

// Stdout is the path that selects standard output.
const Stdout = "-"

// ctxCheckEvery is how many records are encoded between context checks.
const ctxCheckEvery = 1024

// target is the shared commit logic of both sinks. Exactly one of path and w
// is set.
type target struct {
	mu    sync.Mutex
	path  string
	w     io.Writer
	wrote bool
}

func openTarget(path string) (*target, error) {
	if path == "" {
		return nil, errors.New("file sink: path must not be empty")
	}
	if path == Stdout {
		return &target{w: os.Stdout}, nil
	}
	dir := filepath.Dir(path)
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("file sink: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("file sink: %q is not a directory", dir)
	}
	return &target{path: path}, nil
}

// commit runs encode and publishes its output. fresh reports whether encode
// starts a new file or stream (and so needs a header). Nothing is published
// when encode fails or ctx is done afterwards.
func (t *target) commit(ctx context.Context, encode func(w io.Writer, fresh bool) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.path == "" {
		var buf bytes.Buffer
		if err := encode(&buf, !t.wrote); err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := buf.WriteTo(t.w); err != nil {
			return err
		}
		t.wrote = true
		return nil
	}

	tmp, err := os.CreateTemp(filepath.Dir(t.path), "."+filepath.Base(t.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	bw := bufio.NewWriter(tmp)
	if err := encode(bw, true); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := tmp.Chmod(0o644); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), t.path); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	committed = true
	t.wrote = true
	return nil
}

// checkCtx reports ctx.Err every ctxCheckEvery records.
func checkCtx(ctx context.Context, i int) error {
	if i%ctxCheckEvery == 0 {
		return ctx.Err()
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// JSON Lines
// ─────────────────────────────────────────────────────────────────────────────

// JSONL writes records as JSON Lines.
type JSONL struct {
	t *target
}

// jsonLine is one encoded record. The embedded row's fields are inlined.
type jsonLine struct {
	RunID string `json:"run_id"`
	errstore.Row
}

// NewJSONL returns a sink that replaces path on every Write. The directory
// of path must exist.
func NewJSONL(path string) (*JSONL, error) {
	t, err := openTarget(path)
	if err != nil {
		return nil, err
	}
	return &JSONL{t: t}, nil
}

// NewJSONLWriter returns a JSONL sink appending to w. Close does not close w.
func NewJSONLWriter(w io.Writer) *JSONL {
	return &JSONL{t: &target{w: w}}
}

// Name implements [errstore.Sink].
func (s *JSONL) Name() string { return "jsonl" }

// Write implements [errstore.Sink].
func (s *JSONL) Write(ctx context.Context, run errstore.Run, records []types.ErrorRecord) error {
	err := s.t.commit(ctx, func(w io.Writer, _ bool) error {
		enc := json.NewEncoder(w)
		for i := range records {
			if err := checkCtx(ctx, i); err != nil {
				return err
			}
			if err := enc.Encode(jsonLine{RunID: run.ID, Row: errstore.FromRecord(records[i])}); err != nil {
				return fmt.Errorf("encode %s: %w", records[i].ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("jsonl sink: %w", err)
	}
	return nil
}

// Close implements [errstore.Sink]. Every Write is already committed, so
// there is nothing left to flush.
func (s *JSONL) Close() error { return nil }

// ─────────────────────────────────────────────────────────────────────────────
// CSV
// ─────────────────────────────────────────────────────────────────────────────

// CSV writes records as comma-separated values. Every file starts with the
// header row; a writer-backed sink writes it once, before the first record.
type CSV struct {
	t *target
}

// NewCSV returns a sink that replaces path on every Write. The directory of
// path must exist.
func NewCSV(path string) (*CSV, error) {
	t, err := openTarget(path)
	if err != nil {
		return nil, err
	}
	return &CSV{t: t}, nil
}

// NewCSVWriter returns a CSV sink appending to w. Close does not close w.
func NewCSVWriter(w io.Writer) *CSV {
	return &CSV{t: &target{w: w}}
}

// Name implements [errstore.Sink].
func (s *CSV) Name() string { return "csv" }

// Write implements [errstore.Sink]. The run id is not part of the CSV layout.
func (s *CSV) Write(ctx context.Context, _ errstore.Run, records []types.ErrorRecord) error {
	err := s.t.commit(ctx, func(w io.Writer, fresh bool) error {
		cw := csv.NewWriter(w)
		if fresh {
			if err := cw.Write(errstore.Columns); err != nil {
				return fmt.Errorf("header: %w", err)
			}
		}
		for i := range records {
			if err := checkCtx(ctx, i); err != nil {
				return err
			}
			if err := cw.Write(errstore.FromRecord(records[i]).Strings()); err != nil {
				return fmt.Errorf("write %s: %w", records[i].ID, err)
			}
		}
		cw.Flush()
		return cw.Error()
	})
	if err != nil {
		return fmt.Errorf("csv sink: %w", err)
	}
	return nil
}

// Close implements [errstore.Sink].
func (s *CSV) Close() error { return nil }
