package extract_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/MrWong99/errtable/internal/align"
	"github.com/MrWong99/errtable/internal/extract"
	"github.com/MrWong99/errtable/internal/similarity"
	"github.com/MrWong99/errtable/pkg/types"
)

const (
	C = types.OpCorrect
	S = types.OpSubstitution
	I = types.OpInsertion
	D = types.OpDeletion
)

// sideChannel builds a contraction-free side channel for tokens, with tags
// and shapes derived from the token text so lookups are easy to check.
func sideChannel(tokens []string) types.SideChannel {
	sc := types.SideChannel{}
	for i, tok := range tokens {
		sc.Tag = append(sc.Tag, "TAG_"+tok)
		sc.Shape = append(sc.Shape, "xxx")
		sc.Prob = append(sc.Prob, float64(i+1)/10)
		sc.CProb = append(sc.CProb, float64(i+1)/100)
	}
	return sc
}

// utt1 is "the kat uh down" scored against "the cat sat down".
func utt1() *types.Utterance {
	hyp := []string{"the", "kat", "uh", "down"}
	ref := []string{"the", "cat", "sat", "down"}
	return &types.Utterance{
		ID:         "utt1",
		Operations: []types.Operation{C, S, I, D, C},
		HypTokens:  hyp,
		RefTokens:  ref,
		Hyp:        sideChannel(hyp),
		Ref:        sideChannel(ref),
	}
}

func contractionUtterance() *types.Utterance {
	return &types.Utterance{
		ID:         "contraction",
		Operations: []types.Operation{C, S, D},
		HypTokens:  []string{"a", "b"},
		RefTokens:  []string{"a", "x", "y"},
		Hyp: types.SideChannel{
			Tag:          []string{"T0", "T1", "T2"},
			Shape:        []string{"s0", "s1", "s2"},
			Prob:         []float64{0.1, 0.2},
			CProb:        []float64{0.3, 0.4},
			Continuation: []bool{false, true, false},
		},
		Ref: types.SideChannel{
			Tag:   []string{"R0", "R1", "R2"},
			Shape: []string{"r0", "r1", "r2"},
			Prob:  []float64{0.5, 0.6, 0.7},
			CProb: []float64{0.8, 0.9, 1.0},
		},
	}
}

func TestExtract_EndToEnd(t *testing.T) {
	t.Parallel()

	recs, err := extract.New().Extract(utt1())
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	want := []struct {
		id       string
		ann      types.Operation
		position int
		hyp      string
		ref      string
	}{
		{"utt1#1", S, 2, "kat", "cat"},
		{"utt1#2", I, 3, "uh", ""},
		{"utt1#3", D, 3, "", "sat"},
	}
	if len(recs) != len(want) {
		t.Fatalf("got %d records, want %d: %+v", len(recs), len(want), recs)
	}
	for i, w := range want {
		r := recs[i]
		if r.ID != w.id {
			t.Errorf("records[%d].ID = %q, want %q", i, r.ID, w.id)
		}
		if r.Annotation != w.ann {
			t.Errorf("records[%d].Annotation = %s, want %s", i, r.Annotation, w.ann)
		}
		if r.Position != w.position {
			t.Errorf("records[%d].Position = %d, want %d", i, r.Position, w.position)
		}
		if r.SentenceLength != 4 {
			t.Errorf("records[%d].SentenceLength = %d, want 4", i, r.SentenceLength)
		}
		if r.Hyp.Token != w.hyp {
			t.Errorf("records[%d].Hyp.Token = %q, want %q", i, r.Hyp.Token, w.hyp)
		}
		if r.Ref.Token != w.ref {
			t.Errorf("records[%d].Ref.Token = %q, want %q", i, r.Ref.Token, w.ref)
		}
		if r.UtteranceID != "utt1" || r.OpIndex != i+1 {
			t.Errorf("records[%d] origin = %s/%d, want utt1/%d", i, r.UtteranceID, r.OpIndex, i+1)
		}
	}

	// Metadata follows the raw token index on contraction-free input.
	if got := recs[0].Hyp; got.POS != "TAG_kat" || got.Prob != 0.2 || got.CProb != 0.02 {
		t.Errorf("substitution hyp detail = %+v", got)
	}
	if got := recs[2].Ref; got.POS != "TAG_sat" || got.Prob != 0.3 {
		t.Errorf("deletion ref detail = %+v", got)
	}
}

func TestExtract_PositionsNonDecreasing(t *testing.T) {
	t.Parallel()

	hyp := []string{"a", "b", "c", "d", "e", "f", "g"}
	ref := []string{"a", "x", "y", "z"}
	u := &types.Utterance{
		ID:         "mono",
		Operations: []types.Operation{I, S, I, I, D, C, S, I},
		HypTokens:  hyp,
		RefTokens:  ref,
		Hyp:        sideChannel(hyp),
		Ref:        sideChannel(ref),
	}

	recs, err := extract.New().Extract(u)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(recs) != 7 {
		t.Fatalf("got %d records, want 7", len(recs))
	}
	for i := 1; i < len(recs); i++ {
		if recs[i].Position < recs[i-1].Position {
			t.Errorf("position decreased at record %d: %d after %d", i, recs[i].Position, recs[i-1].Position)
		}
	}
}

func TestExtract_DetailPresence(t *testing.T) {
	t.Parallel()

	for _, u := range []*types.Utterance{utt1(), contractionUtterance()} {
		recs, err := extract.New().Extract(u)
		if err != nil {
			t.Fatalf("Extract(%s): %v", u.ID, err)
		}
		for _, r := range recs {
			switch r.Annotation {
			case I:
				if r.Ref != (types.SideDetail{}) {
					t.Errorf("%s: insertion has ref detail %+v", r.ID, r.Ref)
				}
				if !r.Hyp.Present {
					t.Errorf("%s: insertion missing hyp detail", r.ID)
				}
			case D:
				if r.Hyp != (types.SideDetail{}) {
					t.Errorf("%s: deletion has hyp detail %+v", r.ID, r.Hyp)
				}
				if !r.Ref.Present {
					t.Errorf("%s: deletion missing ref detail", r.ID)
				}
			case S:
				if !r.Hyp.Present || !r.Ref.Present {
					t.Errorf("%s: substitution details hyp=%v ref=%v, want both", r.ID, r.Hyp.Present, r.Ref.Present)
				}
			default:
				t.Errorf("%s: unexpected annotation %s", r.ID, r.Annotation)
			}
		}
	}
}

func TestExtract_ContractionSkip(t *testing.T) {
	t.Parallel()

	recs, err := extract.New().Extract(contractionUtterance())
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2", len(recs))
	}

	sub := recs[0]
	if sub.ID != "contraction#1" || sub.Annotation != S {
		t.Fatalf("first record = %s %s, want contraction#1 S", sub.ID, sub.Annotation)
	}
	if sub.Hyp.Token != "b" {
		t.Errorf("hyp token = %q, want %q", sub.Hyp.Token, "b")
	}
	// Tag and shape come from side-channel index 2, after the skip.
	if sub.Hyp.POS != "T2" || sub.Hyp.Shape != "s2" {
		t.Errorf("hyp pos/shape = %q/%q, want T2/s2", sub.Hyp.POS, sub.Hyp.Shape)
	}
	// Prob and cprob stay on the raw token index.
	if sub.Hyp.Prob != 0.2 || sub.Hyp.CProb != 0.4 {
		t.Errorf("hyp prob/cprob = %v/%v, want 0.2/0.4", sub.Hyp.Prob, sub.Hyp.CProb)
	}
	if sub.Ref.Token != "x" || sub.Ref.POS != "R1" {
		t.Errorf("ref = %+v, want token x tag R1", sub.Ref)
	}

	del := recs[1]
	if del.ID != "contraction#2" || del.Ref.Token != "y" || del.Ref.POS != "R2" {
		t.Errorf("deletion record = %+v", del)
	}
	if del.Position != 3 || del.SentenceLength != 3 {
		t.Errorf("deletion position/len = %d/%d, want 3/3", del.Position, del.SentenceLength)
	}
}

func TestExtract_AllCorrect(t *testing.T) {
	t.Parallel()

	toks := []string{"one", "two", "three"}
	u := &types.Utterance{
		ID:         "clean",
		Operations: []types.Operation{C, C, C},
		HypTokens:  toks,
		RefTokens:  toks,
		Hyp:        sideChannel(toks),
		Ref:        sideChannel(toks),
	}
	recs, err := extract.New().Extract(u)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if recs == nil {
		t.Fatal("records is nil, want empty non-nil slice")
	}
	if len(recs) != 0 {
		t.Errorf("got %d records, want 0", len(recs))
	}
}

func TestExtract_TokenCountMismatch(t *testing.T) {
	t.Parallel()

	short := func() *types.Utterance {
		u := utt1()
		u.HypTokens = u.HypTokens[:2]
		return u
	}

	t.Run("validation on", func(t *testing.T) {
		t.Parallel()
		recs, err := extract.New().Extract(short())
		if !errors.Is(err, extract.ErrMalformedUtterance) {
			t.Fatalf("err = %v, want ErrMalformedUtterance", err)
		}
		if recs != nil {
			t.Errorf("records = %+v, want nil on error", recs)
		}
		var merr *extract.MalformedUtteranceError
		if !errors.As(err, &merr) || merr.UtteranceID != "utt1" {
			t.Fatalf("err = %#v, want MalformedUtteranceError for utt1", err)
		}
	})

	t.Run("validation off", func(t *testing.T) {
		t.Parallel()

		tests := []struct {
			name      string
			utterance func() *types.Utterance
			wantArray string
			wantIndex int
			wantLen   int
		}{
			{"hyp token missing", short, "hyp.tokens", 2, 2},
			{
				name: "hyp token extra",
				utterance: func() *types.Utterance {
					u := utt1()
					u.HypTokens = append(u.HypTokens, "extra")
					u.Hyp = sideChannel(u.HypTokens)
					return u
				},
				wantArray: "hyp.tokens", wantIndex: 4, wantLen: 5,
			},
			{
				name: "ref tag extra",
				utterance: func() *types.Utterance {
					u := utt1()
					u.Ref.Tag = append(u.Ref.Tag, "TAG_extra")
					u.Ref.Shape = append(u.Ref.Shape, "xxx")
					return u
				},
				wantArray: "ref.tag", wantIndex: 4, wantLen: 5,
			},
			{
				name: "hyp shape extra",
				utterance: func() *types.Utterance {
					u := utt1()
					u.Hyp.Shape = append(u.Hyp.Shape, "xxx")
					return u
				},
				wantArray: "hyp.shape", wantIndex: 4, wantLen: 5,
			},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				t.Parallel()
				recs, err := extract.New(extract.WithValidation(false)).Extract(tt.utterance())
				var derr *align.CursorDesyncError
				if !errors.As(err, &derr) {
					t.Fatalf("err = %v, want *CursorDesyncError", err)
				}
				if derr.UtteranceID != "utt1" {
					t.Errorf("UtteranceID = %q, want utt1", derr.UtteranceID)
				}
				if derr.Array != tt.wantArray || derr.Index != tt.wantIndex || derr.Len != tt.wantLen {
					t.Errorf("desync at %s[%d] (len %d), want %s[%d] (len %d)",
						derr.Array, derr.Index, derr.Len, tt.wantArray, tt.wantIndex, tt.wantLen)
				}
				if recs != nil {
					t.Errorf("records = %+v, want nil on error", recs)
				}
			})
		}
	})

	t.Run("validation off invalid operation", func(t *testing.T) {
		t.Parallel()
		u := utt1()
		u.Operations[1] = 0
		recs, err := extract.New(extract.WithValidation(false)).Extract(u)
		if !errors.Is(err, extract.ErrMalformedUtterance) {
			t.Fatalf("err = %v, want ErrMalformedUtterance", err)
		}
		if !strings.Contains(err.Error(), "operations[1]") {
			t.Errorf("error %q should name operations[1]", err)
		}
		if recs != nil {
			t.Errorf("records = %+v, want nil on error", recs)
		}
	})
}

func TestExtract_Similarity(t *testing.T) {
	t.Parallel()

	recs, err := extract.New(extract.WithSimilarity(similarity.New())).Extract(utt1())
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	for _, r := range recs {
		if r.Annotation == S && r.Similarity == nil {
			t.Errorf("%s: substitution without similarity", r.ID)
		}
		if r.Annotation != S && r.Similarity != nil {
			t.Errorf("%s: %s record has similarity", r.ID, r.Annotation)
		}
	}
	if sim := recs[0].Similarity; sim == nil || !sim.SoundsAlike || sim.EditDistance != 1 {
		t.Errorf("kat/cat similarity = %+v, want sounds alike with distance 1", sim)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(u *types.Utterance)
		wantErr string
	}{
		{"valid", func(*types.Utterance) {}, ""},
		{"unknown op", func(u *types.Utterance) { u.Operations[0] = 0 }, "operations[0]"},
		{"ref tokens", func(u *types.Utterance) { u.RefTokens = append(u.RefTokens, "extra") }, "ref: 4 tokens for 3 operations"},
		{"flags length", func(u *types.Utterance) { u.Hyp.Continuation = u.Hyp.Continuation[:2] }, "continuation flags"},
		{"merged tags", func(u *types.Utterance) { u.Hyp.Continuation[1] = false }, "after merging"},
		{"tags without flags", func(u *types.Utterance) { u.Ref.Tag = u.Ref.Tag[:2] }, "ref: 2 tags for 3 tokens"},
		{"shapes", func(u *types.Utterance) { u.Ref.Shape = u.Ref.Shape[:1] }, "shapes"},
		{"probs", func(u *types.Utterance) { u.Hyp.Prob = nil }, "hyp: 0 probs"},
		{"cprobs", func(u *types.Utterance) { u.Ref.CProb = u.Ref.CProb[:2] }, "ref: 2 cprobs"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			u := contractionUtterance()
			tt.mutate(u)
			err := extract.Validate(u)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate: unexpected error %v", err)
				}
				return
			}
			if !errors.Is(err, extract.ErrMalformedUtterance) {
				t.Fatalf("err = %v, want ErrMalformedUtterance", err)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q should contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestRecordID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		id   string
		j    int
		want string
	}{
		{"utt1", 0, "utt1#0"},
		{"(sw_4390-A_0001)", 3, "sw_4390-A_0001#3"},
		{"a(b)c", 1, "abc#1"},
		{"()", 2, "()#2"},
		{"(x(y))", 4, "x(y)#4"},
	}
	for _, tt := range tests {
		if got := extract.RecordID(tt.id, tt.j); got != tt.want {
			t.Errorf("RecordID(%q, %d) = %q, want %q", tt.id, tt.j, got, tt.want)
		}
	}
}

func TestSentenceLength(t *testing.T) {
	t.Parallel()

	if got := extract.SentenceLength([]types.Operation{C, S, I, D, C}); got != 4 {
		t.Errorf("SentenceLength = %d, want 4", got)
	}
	if got := extract.SentenceLength(nil); got != 0 {
		t.Errorf("SentenceLength(nil) = %d, want 0", got)
	}
}
