package align

import (
	"fmt"

	"github.com/MrWong99/errtable/pkg/types"
)

// Side selects the hypothesis or the reference half of an utterance.
type Side uint8

const (
	SideHyp Side = iota + 1
	SideRef
)

// String returns "hyp" or "ref".
func (s Side) String() string {
	switch s {
	case SideHyp:
		return "hyp"
	case SideRef:
		return "ref"
	}
	return fmt.Sprintf("Side(%d)", uint8(s))
}

// Resolve reads the token and metadata of side at cursor c.
//
// The token, Prob and CProb are indexed by the raw token counter (c.Hyp or
// c.Ref); Tag and Shape by the side-channel counter (c.HypCont or c.RefCont).
// The first out-of-range read returns a [*CursorDesyncError]; a partially
// filled detail is never returned.
func Resolve(side Side, c Cursor, u *types.Utterance) (types.SideDetail, error) {
	var (
		tokens   []string
		sc       types.SideChannel
		raw, idx int
	)
	switch side {
	case SideHyp:
		tokens, sc, raw, idx = u.HypTokens, u.Hyp, c.Hyp, c.HypCont
	case SideRef:
		tokens, sc, raw, idx = u.RefTokens, u.Ref, c.Ref, c.RefCont
	default:
		return types.SideDetail{}, fmt.Errorf("align: resolve: invalid side %d", uint8(side))
	}

	prefix := side.String() + "."
	if err := checkIndex(&c, prefix+"tokens", len(tokens), raw); err != nil {
		return types.SideDetail{}, err
	}
	if err := checkIndex(&c, prefix+"tag", len(sc.Tag), idx); err != nil {
		return types.SideDetail{}, err
	}
	if err := checkIndex(&c, prefix+"shape", len(sc.Shape), idx); err != nil {
		return types.SideDetail{}, err
	}
	if err := checkIndex(&c, prefix+"prob", len(sc.Prob), raw); err != nil {
		return types.SideDetail{}, err
	}
	if err := checkIndex(&c, prefix+"cprob", len(sc.CProb), raw); err != nil {
		return types.SideDetail{}, err
	}

	return types.SideDetail{
		Present: true,
		Token:   tokens[raw],
		POS:     sc.Tag[idx],
		Shape:   sc.Shape[idx],
		Prob:    sc.Prob[raw],
		CProb:   sc.CProb[raw],
	}, nil
}

func checkIndex(c *Cursor, array string, length, index int) error {
	if index < 0 || index >= length {
		return c.desync(array, length, index)
	}
	return nil
}
