// Package corpus loads scored utterances from disk.
//
// A corpus file is YAML (JSON documents are accepted as well, since JSON is a
// YAML subset):
//
//	utterances:
//	  - id: "(sw_4390-A_0001)"
//	    operations: [C, S, I, D, C]
//	    hyp_tokens: [the, kat, uh, down]
//	    ref_tokens: [the, cat, sat, down]
//	    hyp:
//	      tag: [DT, NN, UH, RB]
//	      shape: [xxx, xxx, xx, xxxx]
//	      prob: [0.9, 0.2, 0.4, 0.8]
//	      cprob: [0.9, 0.1, 0.3, 0.7]
//	    ref:
//	      tag: [DT, NN, VBD, RB]
//	      ...
//
// Unknown keys are rejected so that typos surface as errors instead of
// silently empty arrays.
package corpus

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/errtable/pkg/types"
)

// File is the top-level structure of a corpus file.
type File struct {
	Utterances []types.Utterance `yaml:"utterances"`
}

// extensions lists the file suffixes picked up by [Load] when given a
// directory.
var extensions = []string{".yaml", ".yml", ".json"}

// Load reads the corpus at path. When path is a directory, every file in it
// with a .yaml, .yml or .json suffix is decoded in lexical order and the
// utterances are concatenated. Subdirectories are not visited.
func Load(path string) ([]types.Utterance, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("corpus: %w", err)
	}
	if !info.IsDir() {
		f, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		return f.Utterances, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("corpus: read dir %q: %w", path, err)
	}
	var (
		out   []types.Utterance
		found bool
	)
	for _, e := range entries {
		if e.IsDir() || !slices.Contains(extensions, strings.ToLower(filepath.Ext(e.Name()))) {
			continue
		}
		found = true
		f, err := LoadFile(filepath.Join(path, e.Name()))
		if err != nil {
			return nil, err
		}
		out = append(out, f.Utterances...)
	}
	if !found {
		return nil, fmt.Errorf("corpus: no corpus files in %q", path)
	}
	return out, nil
}

// LoadFile reads and parses a single corpus file.
func LoadFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("corpus: open %q: %w", path, err)
	}
	defer f.Close()

	cf, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("corpus: parse %q: %w", path, err)
	}
	return cf, nil
}

// Decode parses a corpus document from r. Every utterance must carry an id;
// ids are not required to be unique.
func Decode(r io.Reader) (*File, error) {
	var cf File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cf); err != nil {
		if errors.Is(err, io.EOF) {
			return &cf, nil
		}
		return nil, fmt.Errorf("corpus: decode: %w", err)
	}

	var errs []error
	for i := range cf.Utterances {
		if strings.TrimSpace(cf.Utterances[i].ID) == "" {
			errs = append(errs, fmt.Errorf("corpus: utterances[%d]: id is required", i))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return &cf, nil
}
