// Package config provides the configuration schema, loader, and sink registry
// for errtable.
package config

import (
	"fmt"
	"runtime"
	"time"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for errtable.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Extraction ExtractionConfig `yaml:"extraction"`
	Corpus     CorpusConfig     `yaml:"corpus"`
	Sinks      []SinkEntry      `yaml:"sinks"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
}

// ServerConfig holds process-wide settings.
type ServerConfig struct {
	// LogLevel controls verbosity. Default: info.
	LogLevel LogLevel `yaml:"log_level"`
}

// ExtractionConfig tunes the error extractor and the corpus assembler.
type ExtractionConfig struct {
	// Workers is the number of utterances extracted concurrently.
	// Zero means runtime.GOMAXPROCS(0).
	Workers int `yaml:"workers"`

	// Validate enables the up-front length check of every utterance.
	// Default (nil): enabled.
	Validate *bool `yaml:"validate"`

	// Deadline bounds the whole assembly. Utterances not started when it
	// expires are dropped. Zero means no deadline.
	Deadline time.Duration `yaml:"deadline"`

	// Similarity attaches string and phonetic similarity scores to every
	// substitution record.
	Similarity bool `yaml:"similarity"`

	// LongTolerance applies the long-string adjustment to the Jaro-Winkler
	// score. Only meaningful with Similarity.
	LongTolerance bool `yaml:"long_tolerance"`
}

// WorkerCount returns Workers, or runtime.GOMAXPROCS(0) when unset.
func (e ExtractionConfig) WorkerCount() int {
	if e.Workers > 0 {
		return e.Workers
	}
	return runtime.GOMAXPROCS(0)
}

// ValidationEnabled reports whether up-front validation is on.
func (e ExtractionConfig) ValidationEnabled() bool {
	return e.Validate == nil || *e.Validate
}

// CorpusConfig locates the input corpus.
type CorpusConfig struct {
	// Path is a corpus file or a directory of corpus files. The -corpus flag
	// overrides it.
	Path string `yaml:"path"`
}

// SinkEntry configures one record sink. The Name field is used to look up
// the constructor in the [Registry].
type SinkEntry struct {
	// Name selects the registered sink implementation (e.g., "jsonl", "postgres").
	Name string `yaml:"name"`

	// Path is the output file of file-based sinks. "-" selects stdout.
	Path string `yaml:"path"`

	// DSN is the connection string of database sinks.
	DSN string `yaml:"dsn"`

	// Options holds sink-specific values not covered by the fields above.
	// The postgres sink reads max_conns.
	Options map[string]any `yaml:"options"`
}

// IntOption returns Options[key] as an int. ok is false when the key is
// absent; a present value that is not an integer is an error.
func (e SinkEntry) IntOption(key string) (v int, ok bool, err error) {
	raw, ok := e.Options[key]
	if !ok {
		return 0, false, nil
	}
	n, isInt := raw.(int)
	if !isInt {
		return 0, true, fmt.Errorf("options.%s: want an integer, got %v (%T)", key, raw, raw)
	}
	return n, true, nil
}

// TelemetryConfig configures the optional telemetry HTTP server.
type TelemetryConfig struct {
	// ListenAddr is the TCP address serving /healthz, /readyz and /metrics
	// (e.g., ":9464"). Empty disables the server.
	ListenAddr string `yaml:"listen_addr"`

	// ServiceName is reported in telemetry resources. Default: "errtable".
	ServiceName string `yaml:"service_name"`
}
