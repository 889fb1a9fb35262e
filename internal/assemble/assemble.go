// Package assemble builds the error table of a whole corpus.
//
// [Assembler.Run] extracts every utterance with a shared [Extractor],
// spreading the work over a bounded pool of goroutines, and concatenates the
// per-utterance record lists in corpus order.
//
// Failures are isolated per utterance. When extraction of one utterance fails
// (a [*extract.MalformedUtteranceError] or an [*align.CursorDesyncError]),
// none of its records are kept, a diagnostic is logged, a [Failure] is added
// to the [Result], and the remaining utterances are processed normally.
package assemble

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/errtable/internal/align"
	"github.com/MrWong99/errtable/internal/extract"
	"github.com/MrWong99/errtable/internal/observe"
	"github.com/MrWong99/errtable/pkg/types"
)

// Option is a functional option for configuring an [Assembler].
type Option func(*Assembler)

// WithWorkers sets the maximum number of utterances extracted concurrently.
// Values below 1 are ignored. Default: runtime.GOMAXPROCS(0).
func WithWorkers(n int) Option {
	return func(a *Assembler) {
		if n > 0 {
			a.workers = n
		}
	}
}

// Extractor turns one utterance into its error records. [*extract.Extractor]
// is the implementation used outside tests.
type Extractor interface {
	Extract(u *types.Utterance) ([]types.ErrorRecord, error)
}

// WithExtractor replaces the default [extract.Extractor].
func WithExtractor(e Extractor) Option {
	return func(a *Assembler) {
		if e != nil {
			a.extractor = e
		}
	}
}

// WithMetrics sets the metrics instance. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *Assembler) {
		if m != nil {
			a.metrics = m
		}
	}
}

// Assembler runs extraction over a corpus. It is safe for concurrent use;
// each Run call has its own state.
type Assembler struct {
	workers   int
	extractor Extractor
	metrics   *observe.Metrics
}

// New returns an [Assembler] configured with opts.
func New(opts ...Option) *Assembler {
	a := &Assembler{
		workers:   runtime.GOMAXPROCS(0),
		extractor: extract.New(),
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	return a
}

// Failure describes one utterance whose extraction was aborted.
type Failure struct {
	// Index is the position of the utterance in the corpus.
	Index int

	UtteranceID string

	// Err is a [*extract.MalformedUtteranceError] or an
	// [*align.CursorDesyncError].
	Err error
}

// Stats summarises a run.
type Stats struct {
	Utterances   int
	OK           int
	Failed       int
	Dropped      int
	Records      int
	ByAnnotation map[types.Operation]int
}

// Result is the outcome of [Assembler.Run].
type Result struct {
	// Records holds the records of every successful utterance, utterances in
	// corpus order and records in operation order within each utterance.
	Records []types.ErrorRecord

	// Failures lists aborted utterances in corpus order.
	Failures []Failure

	// Dropped lists the ids of utterances never started because the context
	// was done, in corpus order.
	Dropped []string

	Stats Stats
}

type slotState uint8

const (
	slotPending slotState = iota
	slotDone
	slotDropped
)

// slot is written by exactly one goroutine and read after Wait.
type slot struct {
	state   slotState
	records []types.ErrorRecord
	err     error
}

// Run extracts the error records of corpus.
//
// Run always returns a non-nil [Result]. The returned error is non-nil only
// when ctx was done before every utterance had started; it wraps ctx.Err()
// and the result then holds everything finished so far. Per-utterance
// failures are reported in [Result.Failures], not as an error.
func (a *Assembler) Run(ctx context.Context, corpus []types.Utterance) (res *Result, err error) {
	start := time.Now()
	ctx, span := observe.StartSpan(ctx, "assemble.Run",
		trace.WithAttributes(
			attribute.Int("corpus.utterances", len(corpus)),
			attribute.Int("assemble.workers", a.workers),
		),
	)
	defer func() {
		a.metrics.RunDuration.Record(ctx, time.Since(start).Seconds())
		span.SetAttributes(
			attribute.Int("assemble.records", res.Stats.Records),
			attribute.Int("assemble.failed", res.Stats.Failed),
			attribute.Int("assemble.dropped", res.Stats.Dropped),
		)
		observe.EndSpan(span, err)
	}()

	slots := make([]slot, len(corpus))

	var g errgroup.Group
	g.SetLimit(a.workers)
	for i := range corpus {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			// g.Go may have blocked on the limit; re-check before starting.
			if ctx.Err() != nil {
				slots[i].state = slotDropped
				return nil
			}
			slots[i] = a.extractOne(ctx, i, &corpus[i])
			return nil
		})
	}
	_ = g.Wait()

	res = a.collect(ctx, corpus, slots)
	if res.Stats.Dropped > 0 {
		err = fmt.Errorf("assemble: %d of %d utterances not started: %w",
			res.Stats.Dropped, len(corpus), ctx.Err())
	}
	return res, err
}

func (a *Assembler) extractOne(ctx context.Context, index int, u *types.Utterance) slot {
	a.metrics.ActiveWorkers.Add(ctx, 1)
	defer a.metrics.ActiveWorkers.Add(ctx, -1)

	ctx, span := observe.StartUtterance(ctx, index, u.ID)
	start := time.Now()
	records, err := a.extractor.Extract(u)
	a.metrics.ExtractDuration.Record(ctx, time.Since(start).Seconds())
	span.SetAttributes(attribute.Int("assemble.records", len(records)))
	observe.EndSpan(span, err)

	return slot{state: slotDone, records: records, err: err}
}

func (a *Assembler) collect(ctx context.Context, corpus []types.Utterance, slots []slot) *Result {
	res := &Result{
		Records: []types.ErrorRecord{},
		Stats: Stats{
			Utterances:   len(corpus),
			ByAnnotation: make(map[types.Operation]int),
		},
	}

	for i := range slots {
		s := &slots[i]
		id := corpus[i].ID

		switch {
		case s.state != slotDone:
			res.Dropped = append(res.Dropped, id)
			res.Stats.Dropped++
			a.metrics.RecordUtterance(ctx, observe.StatusDropped)

		case s.err != nil:
			res.Failures = append(res.Failures, Failure{Index: i, UtteranceID: id, Err: s.err})
			res.Stats.Failed++
			status := logFailure(ctx, i, id, s.err)
			a.metrics.RecordUtterance(ctx, status)

		default:
			res.Records = append(res.Records, s.records...)
			res.Stats.OK++
			for _, r := range s.records {
				res.Stats.ByAnnotation[r.Annotation]++
			}
			a.metrics.RecordUtterance(ctx, observe.StatusOK)
		}
	}

	res.Stats.Records = len(res.Records)
	for op, n := range res.Stats.ByAnnotation {
		a.metrics.RecordRecords(ctx, op.String(), n)
	}

	if res.Stats.Failed > 0 || res.Stats.Dropped > 0 {
		observe.Logger(ctx).Info("assemble: run finished with skipped utterances",
			slog.Int("utterances", res.Stats.Utterances),
			slog.Int("failed", res.Stats.Failed),
			slog.Int("dropped", res.Stats.Dropped),
			slog.Int("records", res.Stats.Records),
		)
	}
	return res
}

// logFailure logs a WARN diagnostic for a failed utterance and returns the
// metric status label for it.
func logFailure(ctx context.Context, index int, id string, err error) string {
	var attrs []slog.Attr
	status := observe.StatusError
	var (
		derr *align.CursorDesyncError
		merr *extract.MalformedUtteranceError
	)
	switch {
	case errors.As(err, &derr):
		status = observe.StatusDesync
		attrs = append(attrs,
			slog.Int("op_index", derr.Cursor.Ix),
			slog.String("cursor", derr.Cursor.String()),
			slog.String("array", derr.Array),
			slog.Int("array_len", derr.Len),
			slog.Int("array_index", derr.Index),
		)
	case errors.As(err, &merr):
		status = observe.StatusMalformed
		attrs = append(attrs, slog.Any("problems", merr.Problems))
	}
	attrs = append(attrs, slog.String("err", err.Error()))

	ctx = observe.WithUtterance(ctx, index, id)
	observe.Logger(ctx).LogAttrs(ctx, slog.LevelWarn, "assemble: utterance skipped", attrs...)
	return status
}
