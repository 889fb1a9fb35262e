package errstore

import (
	"strconv"

	"github.com/MrWong99/errtable/pkg/types"
)

// Columns is the flat column layout shared by the tabular sinks. It matches
// the classic error-table layout: ix, annotation, position,
// sen_len, then five hyp_ and five ref_ columns.
var Columns = []string{
	"ix", "annotation", "position", "sen_len",
	"hyp_token", "hyp_pos", "hyp_shape", "hyp_prob", "hyp_cprob",
	"ref_token", "ref_pos", "ref_shape", "ref_prob", "ref_cprob",
}

// Row is the flattened form of a [types.ErrorRecord]. Probabilities of an
// absent side are nil so that encoders can tell "absent" from 0.
type Row struct {
	ID             string `json:"id"`
	UtteranceID    string `json:"utterance_id"`
	OpIndex        int    `json:"op_index"`
	Annotation     string `json:"annotation"`
	Position       int    `json:"position"`
	SentenceLength int    `json:"sentence_length"`

	HypToken string   `json:"hyp_token"`
	HypPOS   string   `json:"hyp_pos"`
	HypShape string   `json:"hyp_shape"`
	HypProb  *float64 `json:"hyp_prob"`
	HypCProb *float64 `json:"hyp_cprob"`

	RefToken string   `json:"ref_token"`
	RefPOS   string   `json:"ref_pos"`
	RefShape string   `json:"ref_shape"`
	RefProb  *float64 `json:"ref_prob"`
	RefCProb *float64 `json:"ref_cprob"`

	Similarity *SimilarityRow `json:"similarity,omitempty"`
}

// SimilarityRow is the encoded form of [types.Similarity].
type SimilarityRow struct {
	JaroWinkler  float64 `json:"jaro_winkler"`
	EditDistance int     `json:"edit_distance"`
	SoundsAlike  bool    `json:"sounds_alike"`
}

// FromRecord flattens rec.
func FromRecord(rec types.ErrorRecord) Row {
	r := Row{
		ID:             rec.ID,
		UtteranceID:    rec.UtteranceID,
		OpIndex:        rec.OpIndex,
		Annotation:     rec.Annotation.String(),
		Position:       rec.Position,
		SentenceLength: rec.SentenceLength,
	}
	r.HypToken, r.HypPOS, r.HypShape, r.HypProb, r.HypCProb = flattenSide(rec.Hyp)
	r.RefToken, r.RefPOS, r.RefShape, r.RefProb, r.RefCProb = flattenSide(rec.Ref)
	if s := rec.Similarity; s != nil {
		r.Similarity = &SimilarityRow{
			JaroWinkler:  s.JaroWinkler,
			EditDistance: s.EditDistance,
			SoundsAlike:  s.SoundsAlike,
		}
	}
	return r
}

func flattenSide(d types.SideDetail) (token, pos, shape string, prob, cprob *float64) {
	if !d.Present {
		return "", "", "", nil, nil
	}
	p, cp := d.Prob, d.CProb
	return d.Token, d.POS, d.Shape, &p, &cp
}

// Strings returns the row in [Columns] order. Absent probabilities are
// empty strings.
func (r Row) Strings() []string {
	return []string{
		r.ID, r.Annotation, strconv.Itoa(r.Position), strconv.Itoa(r.SentenceLength),
		r.HypToken, r.HypPOS, r.HypShape, formatProb(r.HypProb), formatProb(r.HypCProb),
		r.RefToken, r.RefPOS, r.RefShape, formatProb(r.RefProb), formatProb(r.RefCProb),
	}
}

func formatProb(p *float64) string {
	if p == nil {
		return ""
	}
	return strconv.FormatFloat(*p, 'g', -1, 64)
}
