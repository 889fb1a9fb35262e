// Package errstore defines where assembled error records go.
//
// A [Sink] receives the records of one run, in order, in a single Write call.
// Implementations live in sub-packages:
//
//   - errstore/file: JSON Lines and CSV files (or stdout)
//   - errstore/postgres: one row per record in PostgreSQL, grouped by run
//   - errstore/mock: an in-memory test double
//
// Sinks are constructed from configuration through internal/config.Registry.
package errstore

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/errtable/pkg/types"
)

// Run identifies one assembly of a corpus.
type Run struct {
	// ID is unique per run. See [NewRunID].
	ID string

	// CorpusPath is the corpus file or directory the records came from.
	CorpusPath string

	StartedAt time.Time

	Stats RunStats
}

// RunStats summarises the outcome of a run.
type RunStats struct {
	Utterances int
	OK         int
	Failed     int
	Dropped    int
	Records    int
}

// NewRunID returns a fresh random run id.
func NewRunID() string {
	return uuid.NewString()
}

// Sink persists error records.
//
// Implementations must be safe for concurrent use.
type Sink interface {
	// Name returns the sink's registry name (e.g. "jsonl", "postgres").
	Name() string

	// Write stores records for run. Records are in assembly order and the
	// sink must preserve that order. A sink may be written to more than once;
	// each call belongs to its own run.
	Write(ctx context.Context, run Run, records []types.ErrorRecord) error

	// Close flushes and releases all resources held by the sink.
	Close() error
}

// Pinger is implemented by sinks that depend on a remote service. The
// telemetry server reports a sink not ready while Ping fails.
type Pinger interface {
	Ping(ctx context.Context) error
}
