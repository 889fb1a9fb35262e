// Command errtable builds the error table of a scored speech-recognition
// corpus: one record per substitution, insertion and deletion, with the
// surrounding token metadata of both sides.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/errtable/internal/assemble"
	"github.com/MrWong99/errtable/internal/config"
	"github.com/MrWong99/errtable/internal/corpus"
	"github.com/MrWong99/errtable/internal/extract"
	"github.com/MrWong99/errtable/internal/health"
	"github.com/MrWong99/errtable/internal/observe"
	"github.com/MrWong99/errtable/internal/similarity"
	"github.com/MrWong99/errtable/pkg/errstore"
	"github.com/MrWong99/errtable/pkg/errstore/file"
	"github.com/MrWong99/errtable/pkg/errstore/postgres"
	"github.com/MrWong99/errtable/pkg/types"
)

// version is set at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "errtable.yaml", "path to the YAML configuration file")
	corpusPath := flag.String("corpus", "", "corpus file or directory (overrides corpus.path)")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "errtable: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "errtable: %v\n", err)
		}
		return 1
	}
	if *corpusPath != "" {
		cfg.Corpus.Path = *corpusPath
	}
	if cfg.Corpus.Path == "" {
		fmt.Fprintln(os.Stderr, "errtable: no corpus given; set corpus.path or pass -corpus")
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	slog.SetDefault(newLogger(cfg.Server.LogLevel))
	for _, w := range config.Warnings(cfg) {
		slog.Warn(w)
	}

	runID := errstore.NewRunID()
	slog.Info("errtable starting",
		"version", version,
		"run_id", runID,
		"config", *configPath,
		"corpus", cfg.Corpus.Path,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = observe.WithRun(ctx, runID)

	// ── Telemetry providers ───────────────────────────────────────────────────
	tel, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version,
		RunID:          runID,
		CorpusPath:     cfg.Corpus.Path,
		Workers:        cfg.Extraction.WorkerCount(),
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := tel.Metrics

	// ── Sinks ─────────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinSinks(reg)
	slog.Debug("sink factories registered", "names", reg.Names())

	sinks, err := reg.CreateSinks(ctx, cfg.Sinks)
	if err != nil {
		slog.Error("failed to build sinks", "err", err)
		return 1
	}
	defer closeSinks(sinks)

	// ── Telemetry server (optional) ───────────────────────────────────────────
	if cfg.Telemetry.ListenAddr != "" {
		srv := health.NewServer(ctx, cfg.Telemetry.ListenAddr, health.New(health.SinkCheckers(sinks)...), tel.Handler(), metrics)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("telemetry server error", "err", err)
			}
		}()
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(sctx)
		}()
		slog.Info("telemetry server listening", "addr", cfg.Telemetry.ListenAddr)
	}

	// ── Corpus ────────────────────────────────────────────────────────────────
	utterances, err := corpus.Load(cfg.Corpus.Path)
	if err != nil {
		slog.Error("failed to load corpus", "err", err)
		return 1
	}

	printStartupSummary(cfg, len(utterances))

	// ── Assemble ──────────────────────────────────────────────────────────────
	extractOpts := []extract.Option{extract.WithValidation(cfg.Extraction.ValidationEnabled())}
	if cfg.Extraction.Similarity {
		extractOpts = append(extractOpts, extract.WithSimilarity(
			similarity.New(similarity.WithLongTolerance(cfg.Extraction.LongTolerance)),
		))
	}
	asm := assemble.New(
		assemble.WithWorkers(cfg.Extraction.WorkerCount()),
		assemble.WithExtractor(extract.New(extractOpts...)),
		assemble.WithMetrics(metrics),
	)

	runCtx := ctx
	if cfg.Extraction.Deadline > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, cfg.Extraction.Deadline)
		defer cancel()
	}

	started := time.Now()
	res, err := asm.Run(runCtx, utterances)
	if err != nil {
		slog.Error("assembly incomplete, nothing written",
			"err", err,
			"dropped", res.Stats.Dropped,
			"finished", res.Stats.OK+res.Stats.Failed,
		)
		return 1
	}

	// ── Write ─────────────────────────────────────────────────────────────────
	run := errstore.Run{
		ID:         runID,
		CorpusPath: cfg.Corpus.Path,
		StartedAt:  started,
		Stats: errstore.RunStats{
			Utterances: res.Stats.Utterances,
			OK:         res.Stats.OK,
			Failed:     res.Stats.Failed,
			Dropped:    res.Stats.Dropped,
			Records:    res.Stats.Records,
		},
	}
	if err := writeSinks(ctx, sinks, run, res, metrics); err != nil {
		slog.Error("failed to write records", "err", err)
		return 1
	}

	printRunSummary(run, res, time.Since(started))
	return 0
}

// ── Sink wiring ───────────────────────────────────────────────────────────────

// registerBuiltinSinks wires all built-in sink factories into reg.
func registerBuiltinSinks(reg *config.Registry) {
	reg.RegisterSink("jsonl", func(_ context.Context, e config.SinkEntry) (errstore.Sink, error) {
		s, err := file.NewJSONL(e.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	})
	reg.RegisterSink("csv", func(_ context.Context, e config.SinkEntry) (errstore.Sink, error) {
		s, err := file.NewCSV(e.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	})
	reg.RegisterSink("postgres", func(ctx context.Context, e config.SinkEntry) (errstore.Sink, error) {
		maxConns, _, err := e.IntOption("max_conns")
		if err != nil {
			return nil, err
		}
		s, err := postgres.NewStore(ctx, e.DSN, postgres.WithMaxConns(maxConns))
		if err != nil {
			return nil, err
		}
		return s, nil
	})
}

// writeSinks hands the records to every sink concurrently. All sinks are
// attempted; the first error is returned.
func writeSinks(ctx context.Context, sinks []errstore.Sink, run errstore.Run, res *assemble.Result, m *observe.Metrics) error {
	var g errgroup.Group
	for _, s := range sinks {
		g.Go(func() error {
			err := s.Write(ctx, run, res.Records)
			status := "ok"
			if err != nil {
				status = "error"
			}
			m.RecordSinkWrite(ctx, s.Name(), status, len(res.Records))
			if err != nil {
				return fmt.Errorf("sink %s: %w", s.Name(), err)
			}
			observe.Logger(ctx).Debug("sink written", "sink", s.Name(), "records", len(res.Records))
			return nil
		})
	}
	return g.Wait()
}

func closeSinks(sinks []errstore.Sink) {
	for _, s := range sinks {
		if err := s.Close(); err != nil {
			slog.Warn("sink close error", "sink", s.Name(), "err", err)
		}
	}
}

// ── Summaries ─────────────────────────────────────────────────────────────────

// Summaries go to stderr; stdout may carry a sink's output.

func printStartupSummary(cfg *config.Config, utterances int) {
	validate := "on"
	if !cfg.Extraction.ValidationEnabled() {
		validate = "off"
	}
	deadline := "(none)"
	if cfg.Extraction.Deadline > 0 {
		deadline = cfg.Extraction.Deadline.String()
	}

	fmt.Fprintln(os.Stderr, "╔═══════════════════════════════════════╗")
	fmt.Fprintln(os.Stderr, "║        errtable: startup summary      ║")
	fmt.Fprintln(os.Stderr, "╠═══════════════════════════════════════╣")
	printRow("Utterances", fmt.Sprint(utterances))
	printRow("Workers", fmt.Sprint(cfg.Extraction.WorkerCount()))
	printRow("Validation", validate)
	printRow("Similarity", fmt.Sprint(cfg.Extraction.Similarity))
	printRow("Deadline", deadline)
	if len(cfg.Sinks) == 0 {
		printRow("Sinks", "(not configured)")
	}
	for _, s := range cfg.Sinks {
		target := s.Path
		if s.Name == "postgres" {
			target = "(dsn)"
		}
		printRow("Sink", s.Name+" / "+target)
	}
	if cfg.Telemetry.ListenAddr != "" {
		printRow("Telemetry", cfg.Telemetry.ListenAddr)
	}
	fmt.Fprintln(os.Stderr, "╚═══════════════════════════════════════╝")
}

func printRunSummary(run errstore.Run, res *assemble.Result, elapsed time.Duration) {
	fmt.Fprintln(os.Stderr, "╔═══════════════════════════════════════╗")
	fmt.Fprintln(os.Stderr, "║          errtable: run summary        ║")
	fmt.Fprintln(os.Stderr, "╠═══════════════════════════════════════╣")
	printRow("Run", run.ID)
	printRow("Utterances", fmt.Sprintf("%d ok / %d failed", res.Stats.OK, res.Stats.Failed))
	printRow("Records", fmt.Sprint(res.Stats.Records))
	for _, op := range []types.Operation{types.OpSubstitution, types.OpInsertion, types.OpDeletion} {
		printRow("  "+op.String(), fmt.Sprint(res.Stats.ByAnnotation[op]))
	}
	printRow("Elapsed", elapsed.Round(time.Millisecond).String())
	fmt.Fprintln(os.Stderr, "╚═══════════════════════════════════════╝")
}

func printRow(label, value string) {
	if len([]rune(value)) > 19 {
		value = string([]rune(value)[:16]) + "…"
	}
	fmt.Fprintf(os.Stderr, "║  %-12s    : %-19s ║\n", label, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
