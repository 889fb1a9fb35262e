// Package similarity scores how close the hypothesis token of a substitution
// is to the reference token it replaced.
//
// Three measures are reported for every pair:
//
//  1. Jaro-Winkler similarity on the lowercased tokens.
//  2. Levenshtein edit distance on the lowercased tokens.
//  3. A sounds-alike flag: true when the Double Metaphone codes of the two
//     tokens overlap. Tokens that produce no code (digits, punctuation) never
//     sound alike unless they are equal.
//
// Substitutions that sound alike but are spelled differently are typically
// homophone or spelling-variant errors rather than recognition failures.
package similarity

import (
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/MrWong99/errtable/pkg/types"
)

// Option is a functional option for configuring a [Comparer].
type Option func(*Comparer)

// WithLongTolerance enables matchr's long-string tolerance adjustment of the
// Jaro-Winkler score. Default: off.
func WithLongTolerance(enabled bool) Option {
	return func(c *Comparer) {
		c.longTolerance = enabled
	}
}

// Comparer computes [types.Similarity] values. It is read-only after
// construction and safe for concurrent use.
type Comparer struct {
	longTolerance bool
}

// New returns a [Comparer] configured with opts.
func New(opts ...Option) *Comparer {
	c := &Comparer{}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Compare scores hyp against ref.
func (c *Comparer) Compare(hyp, ref string) types.Similarity {
	h := strings.ToLower(strings.TrimSpace(hyp))
	r := strings.ToLower(strings.TrimSpace(ref))

	if h == r {
		return types.Similarity{JaroWinkler: 1, EditDistance: 0, SoundsAlike: true}
	}

	var jw float64
	if h != "" && r != "" {
		jw = matchr.JaroWinkler(h, r, c.longTolerance)
	}
	return types.Similarity{
		JaroWinkler:  jw,
		EditDistance: matchr.Levenshtein(h, r),
		SoundsAlike:  codesOverlap(codes(h), codes(r)),
	}
}

// codes returns the non-empty Double Metaphone codes of s, with the
// apostrophes of contractions removed first.
func codes(s string) map[string]struct{} {
	s = strings.ReplaceAll(s, "'", "")
	out := make(map[string]struct{}, 2)
	if s == "" {
		return out
	}
	p, sec := matchr.DoubleMetaphone(s)
	if p != "" {
		out[p] = struct{}{}
	}
	if sec != "" {
		out[sec] = struct{}{}
	}
	return out
}

func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}
