// Package extract turns one scored utterance into its error records.
//
// The [Extractor] scans the operation sequence once, left to right, with a
// fresh [align.Cursor]. For every operation it first skips continuation
// fragments, then emits a record if the operation is a substitution,
// insertion or deletion, and finally advances the cursor. Correct operations
// never produce a record but still move the cursor.
//
// Any inconsistency between the operations and the arrays aborts the whole
// utterance: Extract returns an error and no records. Without [Validate], the
// scan itself catches reads past the end of an array and, once finished,
// entries that were never read. Deciding what to do with a failed utterance
// is the caller's job (see internal/assemble).
package extract

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/MrWong99/errtable/internal/align"
	"github.com/MrWong99/errtable/internal/similarity"
	"github.com/MrWong99/errtable/pkg/types"
)

// Option is a functional option for configuring an [Extractor].
type Option func(*Extractor)

// WithValidation enables or disables the up-front [Validate] pass. Default:
// enabled. With validation off, inconsistent input surfaces as a
// [*align.CursorDesyncError] from the scan instead, and an invalid operation
// as a [*MalformedUtteranceError] naming only that operation.
func WithValidation(enabled bool) Option {
	return func(e *Extractor) {
		e.validate = enabled
	}
}

// WithSimilarity attaches a [similarity.Comparer] used to score every
// substitution. When nil (the default), [types.ErrorRecord.Similarity] is
// left nil.
func WithSimilarity(c *similarity.Comparer) Option {
	return func(e *Extractor) {
		e.similarity = c
	}
}

// Extractor extracts error records from utterances. It holds no per-utterance
// state and is safe for concurrent use.
type Extractor struct {
	validate   bool
	similarity *similarity.Comparer
}

// New returns an [Extractor] configured with opts.
func New(opts ...Option) *Extractor {
	e := &Extractor{validate: true}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Extract returns the error records of u in operation order. The returned
// slice is non-nil; it is empty when u contains no errors.
//
// On failure Extract returns a [*MalformedUtteranceError] or a
// [*align.CursorDesyncError] (with UtteranceID set) and no records.
func (e *Extractor) Extract(u *types.Utterance) ([]types.ErrorRecord, error) {
	if e.validate {
		if err := Validate(u); err != nil {
			return nil, err
		}
	}

	sentLen := SentenceLength(u.Operations)
	records := []types.ErrorRecord{}

	var c align.Cursor
	for j, op := range u.Operations {
		if !op.IsValid() {
			return nil, &MalformedUtteranceError{
				UtteranceID: u.ID,
				Problems:    []string{fmt.Sprintf("operations[%d] is not a valid operation (%d)", j, uint8(op))},
			}
		}
		if err := c.SkipContinuations(op, u.Hyp, u.Ref); err != nil {
			return nil, withUtterance(err, u.ID)
		}

		if op.IsError() {
			rec := types.ErrorRecord{
				ID:             RecordID(u.ID, j),
				UtteranceID:    u.ID,
				OpIndex:        j,
				Annotation:     op,
				Position:       c.Ref + 1,
				SentenceLength: sentLen,
			}
			if op != types.OpDeletion {
				d, err := align.Resolve(align.SideHyp, c, u)
				if err != nil {
					return nil, withUtterance(err, u.ID)
				}
				rec.Hyp = d
			}
			if op != types.OpInsertion {
				d, err := align.Resolve(align.SideRef, c, u)
				if err != nil {
					return nil, withUtterance(err, u.ID)
				}
				rec.Ref = d
			}
			if op == types.OpSubstitution && e.similarity != nil {
				s := e.similarity.Compare(rec.Hyp.Token, rec.Ref.Token)
				rec.Similarity = &s
			}
			records = append(records, rec)
		}

		c.Advance(op)
	}
	if err := c.Finish(u); err != nil {
		return nil, withUtterance(err, u.ID)
	}
	return records, nil
}

// SentenceLength returns the reference-side length of an operation sequence:
// the number of operations that are not insertions.
func SentenceLength(ops []types.Operation) int {
	n := 0
	for _, op := range ops {
		if op != types.OpInsertion {
			n++
		}
	}
	return n
}

// RecordID builds the id of the record for operation j of the utterance
// uttID. Scoring tools wrap utterance ids in parentheses, e.g.
// "(sw_4390-A_0001)"; the first "(" and the last ")" after it are dropped
// when they enclose a non-empty string.
func RecordID(uttID string, j int) string {
	if open := strings.IndexByte(uttID, '('); open >= 0 {
		if end := strings.LastIndexByte(uttID, ')'); end > open+1 {
			uttID = uttID[:open] + uttID[open+1:end] + uttID[end+1:]
		}
	}
	return uttID + "#" + strconv.Itoa(j)
}

func withUtterance(err error, id string) error {
	var derr *align.CursorDesyncError
	if errors.As(err, &derr) {
		derr.UtteranceID = id
	}
	return err
}
