package errstore_test

import (
	"strings"
	"testing"

	"github.com/MrWong99/errtable/pkg/errstore"
	"github.com/MrWong99/errtable/pkg/types"
)

func TestFromRecord(t *testing.T) {
	t.Parallel()

	rec := types.ErrorRecord{
		ID:             "utt1#1",
		UtteranceID:    "(utt1)",
		OpIndex:        1,
		Annotation:     types.OpSubstitution,
		Position:       2,
		SentenceLength: 4,
		Hyp:            types.SideDetail{Present: true, Token: "kat", POS: "NN", Shape: "xxx", Prob: 0.25, CProb: 0},
		Ref:            types.SideDetail{Present: true, Token: "cat", POS: "NN", Shape: "xxx", Prob: 0.5, CProb: 0.125},
		Similarity:     &types.Similarity{JaroWinkler: 0.78, EditDistance: 1, SoundsAlike: true},
	}

	r := errstore.FromRecord(rec)
	if r.Annotation != "S" || r.HypToken != "kat" || r.RefPOS != "NN" {
		t.Errorf("row = %+v", r)
	}
	if r.HypCProb == nil || *r.HypCProb != 0 {
		t.Errorf("HypCProb = %v, want pointer to 0", r.HypCProb)
	}
	if r.Similarity == nil || r.Similarity.EditDistance != 1 {
		t.Errorf("Similarity = %+v", r.Similarity)
	}

	got := strings.Join(r.Strings(), ",")
	want := "utt1#1,S,2,4,kat,NN,xxx,0.25,0,cat,NN,xxx,0.5,0.125"
	if got != want {
		t.Errorf("Strings() = %q, want %q", got, want)
	}
}

func TestFromRecord_AbsentSide(t *testing.T) {
	t.Parallel()

	rec := types.ErrorRecord{
		ID:             "u#2",
		Annotation:     types.OpInsertion,
		Position:       3,
		SentenceLength: 4,
		Hyp:            types.SideDetail{Present: true, Token: "uh", POS: "UH", Shape: "xx", Prob: 0.4, CProb: 0.3},
	}

	r := errstore.FromRecord(rec)
	if r.RefToken != "" || r.RefProb != nil || r.RefCProb != nil {
		t.Errorf("absent ref side not empty: %+v", r)
	}
	if r.Similarity != nil {
		t.Errorf("Similarity = %+v, want nil", r.Similarity)
	}

	cells := r.Strings()
	if len(cells) != len(errstore.Columns) {
		t.Fatalf("got %d cells, want %d", len(cells), len(errstore.Columns))
	}
	for _, c := range cells[9:] {
		if c != "" {
			t.Errorf("ref cells = %q, want all empty", cells[9:])
			break
		}
	}
}

func TestNewRunID_Unique(t *testing.T) {
	t.Parallel()

	a, b := errstore.NewRunID(), errstore.NewRunID()
	if a == b || len(a) != 36 {
		t.Errorf("NewRunID() = %q, %q", a, b)
	}
}
