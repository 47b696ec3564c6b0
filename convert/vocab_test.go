package convert

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ConstantWangheng/sentencepiece/model"
)

func TestParseVocab(t *testing.T) {
	in := strings.Join([]string{
		"<unk>\t0",
		"<s>\t0",
		"</s>\t0",
		"▁the\t-2.0125",
		"ing\t-3.5",
		"<0x0A>\t-6",
		"",
	}, "\n")

	v, err := ParseVocab(strings.NewReader(in))
	if err != nil {
		t.Fatal(err)
	}

	wantValues := []string{"<unk>", "<s>", "</s>", "▁the", "ing", "<0x0A>"}
	if diff := cmp.Diff(wantValues, v.Values); diff != "" {
		t.Errorf("values (-want +got):\n%s", diff)
	}

	wantTypes := []int32{
		model.TOKEN_TYPE_UNKNOWN, model.TOKEN_TYPE_CONTROL, model.TOKEN_TYPE_CONTROL,
		model.TOKEN_TYPE_NORMAL, model.TOKEN_TYPE_NORMAL, model.TOKEN_TYPE_BYTE,
	}
	if diff := cmp.Diff(wantTypes, v.Types); diff != "" {
		t.Errorf("types (-want +got):\n%s", diff)
	}

	if got := v.Scores[3]; got != -2.0125 {
		t.Errorf("score = %v, want -2.0125", got)
	}
}

func TestParseVocabBadScore(t *testing.T) {
	if _, err := ParseVocab(strings.NewReader("a\tnot-a-number\n")); err == nil {
		t.Error("expected error for malformed score")
	}
}

func TestParseVocabDuplicate(t *testing.T) {
	if _, err := ParseVocab(strings.NewReader("a\t0\na\t1\n")); err == nil {
		t.Error("expected error for duplicate piece")
	}
}
