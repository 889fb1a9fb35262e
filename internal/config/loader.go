package config

import (
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// ValidSinkNames lists the sink names registered by the errtable binary.
// [Warnings] flags any other name.
var ValidSinkNames = []string{"jsonl", "csv", "postgres"}

// sinkOptions lists the options keys each built-in sink reads.
var sinkOptions = map[string][]string{
	"postgres": {"max_conns"},
}
// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found. Validate
// does not log; see [Warnings] for suspicious but legal settings.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if cfg.Extraction.Workers < 0 {
		errs = append(errs, fmt.Errorf("extraction.workers %d must not be negative", cfg.Extraction.Workers))
	}
	if cfg.Extraction.Deadline < 0 {
		errs = append(errs, fmt.Errorf("extraction.deadline %s must not be negative", cfg.Extraction.Deadline))
	}
	stdoutSeen := -1
	for i, s := range cfg.Sinks {
		prefix := fmt.Sprintf("sinks[%d]", i)
		if s.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
			continue
		}
		switch s.Name {
		case "jsonl", "csv":
			if s.Path == "" {
				errs = append(errs, fmt.Errorf("%s.path is required for sink %q", prefix, s.Name))
			}
			if s.Path == "-" {
				if stdoutSeen >= 0 {
					errs = append(errs, fmt.Errorf("%s writes to stdout, already used by sinks[%d]", prefix, stdoutSeen))
				}
				stdoutSeen = i
			}
		case "postgres":
			if s.DSN == "" {
				errs = append(errs, fmt.Errorf("%s.dsn is required for sink %q", prefix, s.Name))
			}
			if n, ok, err := s.IntOption("max_conns"); err != nil {
				errs = append(errs, fmt.Errorf("%s.%w", prefix, err))
			} else if ok && n <= 0 {
				errs = append(errs, fmt.Errorf("%s.options.max_conns %d must be positive", prefix, n))
			}
		}
	}

	return errors.Join(errs...)
}

// Warnings returns the settings in cfg that are legal but probably not what
// the user meant. The caller logs them once its logger is installed.
func Warnings(cfg *Config) []string {
	var out []string
	if !cfg.Extraction.ValidationEnabled() {
		out = append(out, "extraction.validate is off; inconsistent utterances are caught by the cursor end-of-scan check instead")
	}
	if cfg.Extraction.LongTolerance && !cfg.Extraction.Similarity {
		out = append(out, "extraction.long_tolerance has no effect without extraction.similarity")
	}
	if len(cfg.Sinks) == 0 {
		out = append(out, "no sinks configured; records will be counted but not written")
	}
	for i, s := range cfg.Sinks {
		if s.Name == "" {
			continue
		}
		if !slices.Contains(ValidSinkNames, s.Name) {
			out = append(out, fmt.Sprintf("sinks[%d]: unknown sink name %q, may be a typo or a third-party sink (known: %s)",
				i, s.Name, strings.Join(ValidSinkNames, ", ")))
			continue
		}
		keys := slices.Sorted(maps.Keys(s.Options))
		for _, k := range keys {
			if !slices.Contains(sinkOptions[s.Name], k) {
				out = append(out, fmt.Sprintf("sinks[%d].options.%s is not read by sink %q", i, k, s.Name))
			}
		}
	}
	return out
}
