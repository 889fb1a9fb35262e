// Package types defines the data shared across errtable packages: the scored
// utterance handed over by the parsing stage and the error record produced by
// the extractor.
//
// These types are intentionally plain values. The cursor that walks an
// utterance lives in internal/align and never appears here.
package types

import (
	"fmt"
	"strings"
)

// Operation is one edit operation of a hypothesis/reference alignment.
// It is a closed set; the zero value is not a valid operation.
type Operation uint8

const (
	// OpCorrect marks a hypothesis token that matches the reference token.
	OpCorrect Operation = iota + 1

	// OpSubstitution marks a hypothesis token that replaces a reference token.
	OpSubstitution

	// OpInsertion marks a hypothesis token with no reference counterpart.
	OpInsertion

	// OpDeletion marks a reference token missing from the hypothesis.
	OpDeletion
)

// IsValid reports whether o is one of the four known operations.
func (o Operation) IsValid() bool {
	switch o {
	case OpCorrect, OpSubstitution, OpInsertion, OpDeletion:
		return true
	}
	return false
}

// IsError reports whether o produces an error record.
func (o Operation) IsError() bool {
	switch o {
	case OpSubstitution, OpInsertion, OpDeletion:
		return true
	}
	return false
}

// AdvancesHyp reports whether o consumes a hypothesis token.
func (o Operation) AdvancesHyp() bool {
	switch o {
	case OpCorrect, OpSubstitution, OpInsertion:
		return true
	}
	return false
}

// AdvancesRef reports whether o consumes a reference token.
func (o Operation) AdvancesRef() bool {
	switch o {
	case OpCorrect, OpSubstitution, OpDeletion:
		return true
	}
	return false
}

// String returns the single-letter scoring label (C, S, I or D).
func (o Operation) String() string {
	switch o {
	case OpCorrect:
		return "C"
	case OpSubstitution:
		return "S"
	case OpInsertion:
		return "I"
	case OpDeletion:
		return "D"
	}
	return fmt.Sprintf("Operation(%d)", uint8(o))
}

// ParseOperation converts a scoring label into an [Operation]. It accepts the
// single-letter labels used by sclite alignments and the long names
// (case-insensitive).
func ParseOperation(s string) (Operation, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "c", "correct":
		return OpCorrect, nil
	case "s", "substitution":
		return OpSubstitution, nil
	case "i", "insertion":
		return OpInsertion, nil
	case "d", "deletion":
		return OpDeletion, nil
	}
	return 0, fmt.Errorf("types: unknown operation %q", s)
}

// MarshalText implements [encoding.TextMarshaler].
func (o Operation) MarshalText() ([]byte, error) {
	if !o.IsValid() {
		return nil, fmt.Errorf("types: cannot marshal invalid operation %d", uint8(o))
	}
	return []byte(o.String()), nil
}

// UnmarshalText implements [encoding.TextUnmarshaler].
func (o *Operation) UnmarshalText(text []byte) error {
	op, err := ParseOperation(string(text))
	if err != nil {
		return err
	}
	*o = op
	return nil
}

// SideChannel holds the per-token metadata of one side (hypothesis or
// reference). The arrays were computed over a tokenization that splits
// contractions, so Tag and Shape may be longer than the raw token list.
type SideChannel struct {
	// Tag is the part-of-speech tag per fragment.
	Tag []string `yaml:"tag" json:"tag"`

	// Shape is the token-shape class per fragment.
	Shape []string `yaml:"shape" json:"shape"`

	// Prob is the per-token probability, indexed by raw token.
	Prob []float64 `yaml:"prob" json:"prob"`

	// CProb is the contextual probability, indexed by raw token.
	CProb []float64 `yaml:"cprob" json:"cprob"`

	// Continuation flags fragments that continue a previously counted raw
	// token. Nil when the corpus was not annotated for contractions.
	Continuation []bool `yaml:"continuation" json:"continuation,omitempty"`
}

// Utterance is one scored hypothesis/reference pair. It is read-only once
// handed to the extractor.
type Utterance struct {
	// ID identifies the utterance within the corpus.
	ID string `yaml:"id" json:"id"`

	// Operations is the full edit script, insertions included.
	Operations []Operation `yaml:"operations" json:"operations"`

	// HypTokens holds one token per non-deletion operation.
	HypTokens []string `yaml:"hyp_tokens" json:"hyp_tokens"`

	// RefTokens holds one token per non-insertion operation.
	RefTokens []string `yaml:"ref_tokens" json:"ref_tokens"`

	// Hyp is the hypothesis side-channel metadata.
	Hyp SideChannel `yaml:"hyp" json:"hyp"`

	// Ref is the reference side-channel metadata.
	Ref SideChannel `yaml:"ref" json:"ref"`
}

// SideDetail is the token and metadata resolved for one side of an error.
// The zero value is the empty detail used when a side has no token (the
// hypothesis of a deletion, the reference of an insertion).
type SideDetail struct {
	Present bool
	Token   string
	POS     string
	Shape   string
	Prob    float64
	CProb   float64
}

// Similarity compares the hypothesis and reference tokens of a substitution.
type Similarity struct {
	// JaroWinkler is the case-insensitive Jaro-Winkler similarity in [0, 1].
	JaroWinkler float64

	// EditDistance is the Levenshtein distance between the lowercased tokens.
	EditDistance int

	// SoundsAlike is true when the Double Metaphone codes of both tokens
	// overlap.
	SoundsAlike bool
}

// ErrorRecord describes one substitution, insertion or deletion.
type ErrorRecord struct {
	// ID is "<utterance-id>#<operation-index>".
	ID string

	// UtteranceID is the id of the utterance the record came from.
	UtteranceID string

	// OpIndex is the 0-based index of the operation within the utterance.
	OpIndex int

	// Annotation is the operation kind. Never OpCorrect.
	Annotation Operation

	// Position is the 1-based reference position of the error.
	Position int

	// SentenceLength is the reference-side length of the utterance.
	SentenceLength int

	Hyp SideDetail
	Ref SideDetail

	// Similarity is set on substitutions when enrichment is enabled.
	Similarity *Similarity
}
