// Package align walks the edit-operation sequence of a scored utterance and
// resolves the hypothesis and reference tokens, plus their side-channel
// metadata, that belong to each operation.
//
// Three data sources advance at different rates: the operations themselves,
// the raw token arrays (one entry per non-deletion / non-insertion op) and the
// side-channel arrays, which were computed over a tokenization that splits
// contractions into fragments. A [Cursor] keeps one counter per source and
// [Cursor.SkipContinuations] re-synchronises the side-channel counters with
// the raw counters before every lookup.
//
// A Cursor belongs to exactly one extraction call. It is not safe for
// concurrent use and must not be shared across utterances.
package align

import (
	"fmt"

	"github.com/MrWong99/errtable/pkg/types"
)

// Cursor tracks the position of an utterance scan in every array it reads.
// The zero value is the start of an utterance. Cursor is a plain value, so a
// copy is a snapshot.
type Cursor struct {
	// Ix counts every operation seen so far.
	Ix int

	// Hyp indexes the raw hypothesis tokens.
	Hyp int

	// Ref indexes the raw reference tokens.
	Ref int

	// HypCont indexes the hypothesis side-channel fragments.
	HypCont int

	// RefCont indexes the reference side-channel fragments.
	RefCont int
}

// Advance steps the cursor past op. It never fails: running past the end of
// an array is only detected when that index is read.
func (c *Cursor) Advance(op types.Operation) {
	c.Ix++
	if op.AdvancesHyp() {
		c.Hyp++
		c.HypCont++
	}
	if op.AdvancesRef() {
		c.Ref++
		c.RefCont++
	}
}

// SkipContinuations moves each side-channel counter past one continuation
// fragment, if the fragment under it is flagged. It must run before the
// details of op are resolved and before [Cursor.Advance].
//
// A side is only considered when op consumes a token on that side and the side
// carries continuation flags at all. The flag is checked once per operation;
// consecutive continuation fragments are not skipped in one call.
func (c *Cursor) SkipContinuations(op types.Operation, hyp, ref types.SideChannel) error {
	if op.AdvancesHyp() && hyp.Continuation != nil {
		skip, err := c.flagAt(hyp.Continuation, c.HypCont, "hyp.continuation")
		if err != nil {
			return err
		}
		if skip {
			c.HypCont++
		}
	}
	if op.AdvancesRef() && ref.Continuation != nil {
		skip, err := c.flagAt(ref.Continuation, c.RefCont, "ref.continuation")
		if err != nil {
			return err
		}
		if skip {
			c.RefCont++
		}
	}
	return nil
}

// Finish checks that a completed scan of u consumed every array it walks: all
// raw tokens of both sides, and every side-channel fragment except trailing
// continuation fragments. Leftover entries mean the operations describe a
// shorter utterance than the arrays do; such a mismatch is never detected by
// an out-of-range read.
func (c *Cursor) Finish(u *types.Utterance) error {
	if err := c.finishSide("hyp", len(u.HypTokens), u.Hyp, c.Hyp, c.HypCont); err != nil {
		return err
	}
	return c.finishSide("ref", len(u.RefTokens), u.Ref, c.Ref, c.RefCont)
}

func (c *Cursor) finishSide(name string, tokens int, sc types.SideChannel, raw, cont int) error {
	if raw != tokens {
		return c.desync(name+".tokens", tokens, raw)
	}
	if cont > len(sc.Tag) {
		return c.desync(name+".tag", len(sc.Tag), cont)
	}
	for i := cont; i < len(sc.Tag); i++ {
		if i >= len(sc.Continuation) || !sc.Continuation[i] {
			return c.desync(name+".tag", len(sc.Tag), i)
		}
	}
	if len(sc.Shape) != len(sc.Tag) {
		return c.desync(name+".shape", len(sc.Shape), len(sc.Tag))
	}
	return nil
}

func (c *Cursor) flagAt(flags []bool, i int, name string) (bool, error) {
	if i < 0 || i >= len(flags) {
		return false, c.desync(name, len(flags), i)
	}
	return flags[i], nil
}

func (c *Cursor) desync(array string, length, index int) *CursorDesyncError {
	return &CursorDesyncError{
		Cursor: *c,
		Array:  array,
		Len:    length,
		Index:  index,
	}
}

// String formats the cursor for diagnostics.
func (c Cursor) String() string {
	return fmt.Sprintf("ix=%d hyp=%d ref=%d hyp_cont=%d ref_cont=%d",
		c.Ix, c.Hyp, c.Ref, c.HypCont, c.RefCont)
}
