package extract

import (
	"errors"
	"fmt"
	"strings"

	"github.com/MrWong99/errtable/pkg/types"
)

// ErrMalformedUtterance is matched by every [*MalformedUtteranceError] via
// [errors.Is].
var ErrMalformedUtterance = errors.New("extract: malformed utterance")

// MalformedUtteranceError lists every length or label inconsistency found by
// [Validate] in one utterance.
type MalformedUtteranceError struct {
	UtteranceID string
	Problems    []string
}

// Error implements the error interface.
func (e *MalformedUtteranceError) Error() string {
	return fmt.Sprintf("extract: malformed utterance %s: %s", e.UtteranceID, strings.Join(e.Problems, "; "))
}

// Is reports whether target is [ErrMalformedUtterance].
func (e *MalformedUtteranceError) Is(target error) bool {
	return target == ErrMalformedUtterance
}

// Validate checks the length invariants between the operation sequence of u
// and its token and side-channel arrays. It returns nil or a
// [*MalformedUtteranceError].
//
// Rules, per side (hyp counts non-deletion ops, ref counts non-insertion ops):
//   - every operation is one of C, S, I, D;
//   - the raw token count equals the op count;
//   - with continuation flags: one flag per tag, and tags minus flagged
//     fragments equals the raw token count; without flags: one tag per token;
//   - one shape per tag;
//   - at least one prob and cprob per raw token.
//
// Passing Validate does not guarantee the side-channel data is correct, only
// that every cursor read during extraction stays in range.
func Validate(u *types.Utterance) error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	var hypOps, refOps int
	for j, op := range u.Operations {
		if !op.IsValid() {
			add("operations[%d] is not a valid operation (%d)", j, uint8(op))
			continue
		}
		if op.AdvancesHyp() {
			hypOps++
		}
		if op.AdvancesRef() {
			refOps++
		}
	}

	checkSide := func(name string, ops int, tokens []string, sc types.SideChannel) {
		if len(tokens) != ops {
			add("%s: %d tokens for %d operations", name, len(tokens), ops)
		}
		if sc.Continuation != nil {
			if len(sc.Continuation) != len(sc.Tag) {
				add("%s: %d continuation flags for %d tags", name, len(sc.Continuation), len(sc.Tag))
			}
			if merged := len(sc.Tag) - countTrue(sc.Continuation); merged != len(tokens) {
				add("%s: %d tags after merging continuations for %d tokens", name, merged, len(tokens))
			}
		} else if len(sc.Tag) != len(tokens) {
			add("%s: %d tags for %d tokens", name, len(sc.Tag), len(tokens))
		}
		if len(sc.Shape) != len(sc.Tag) {
			add("%s: %d shapes for %d tags", name, len(sc.Shape), len(sc.Tag))
		}
		if len(sc.Prob) < len(tokens) {
			add("%s: %d probs for %d tokens", name, len(sc.Prob), len(tokens))
		}
		if len(sc.CProb) < len(tokens) {
			add("%s: %d cprobs for %d tokens", name, len(sc.CProb), len(tokens))
		}
	}
	checkSide("hyp", hypOps, u.HypTokens, u.Hyp)
	checkSide("ref", refOps, u.RefTokens, u.Ref)

	if len(problems) == 0 {
		return nil
	}
	return &MalformedUtteranceError{UtteranceID: u.ID, Problems: problems}
}

func countTrue(flags []bool) int {
	n := 0
	for _, f := range flags {
		if f {
			n++
		}
	}
	return n
}
