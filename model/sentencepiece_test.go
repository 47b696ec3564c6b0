package model

import (
	"math"
	"math/rand/v2"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// testVocab covers "abc hi" style inputs: single characters plus the
// merged pieces the individual tests need. "ab" and "abc" exist only
// to drive intermediate merges and must never appear in output.
func testVocab(t *testing.T) *Vocabulary {
	t.Helper()

	return &Vocabulary{
		Values: []string{
			"<unk>", "<s>", "</s>",
			"a", "b", "c", "h", "i", "▁",
			"ab", "abc", "aa", "hi",
			"<ctl>",
		},
		Types: []int32{
			TOKEN_TYPE_UNKNOWN, TOKEN_TYPE_CONTROL, TOKEN_TYPE_CONTROL,
			TOKEN_TYPE_NORMAL, TOKEN_TYPE_NORMAL, TOKEN_TYPE_NORMAL, TOKEN_TYPE_NORMAL, TOKEN_TYPE_NORMAL, TOKEN_TYPE_NORMAL,
			TOKEN_TYPE_UNUSED, TOKEN_TYPE_UNUSED, TOKEN_TYPE_NORMAL, TOKEN_TYPE_NORMAL,
			TOKEN_TYPE_USER_DEFINED,
		},
		Scores: []float32{
			0, 0, 0,
			-1, -1, -1, -1, -1, -1,
			10, 5, 8, 6,
			0,
		},
	}
}

func pieces(tokens []Token) []string {
	out := make([]string, len(tokens))
	for i, token := range tokens {
		out[i] = token.Piece
	}
	return out
}

func TestSampleEncode(t *testing.T) {
	spm := NewSentencePiece("", testVocab(t))

	t.Run("empty input", func(t *testing.T) {
		if got := spm.SampleEncode("", 0); len(got) != 0 {
			t.Errorf("got %v, want empty", got)
		}
	})

	t.Run("invalid vocabulary", func(t *testing.T) {
		bad := NewSentencePiece("", &Vocabulary{})
		if got := bad.SampleEncode("a", 0); len(got) != 0 {
			t.Errorf("got %v, want empty", got)
		}
	})

	t.Run("unused pieces resegment", func(t *testing.T) {
		// "a"+"b" merges into "ab", then "ab"+"c" into "abc"; both are
		// unused so the output unwinds to the characters.
		got := spm.SampleEncode("abc", 0)
		want := []Token{{"a", 3}, {"b", 4}, {"c", 5}}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("unexpected tokens (-want +got):\n%s", diff)
		}
	})

	t.Run("unknown spans keep their bytes", func(t *testing.T) {
		got := spm.SampleEncode("axb", 0)
		want := []Token{{"a", 3}, {"x", -1}, {"b", 4}}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("unexpected tokens (-want +got):\n%s", diff)
		}
	})

	t.Run("equal scores resolve leftmost first", func(t *testing.T) {
		// Both (0,1) and (1,2) produce "aa" at the same score. The left
		// pair must win, leaving ["aa", "a"] rather than ["a", "aa"].
		got := pieces(spm.SampleEncode("aaa", 0))
		want := []string{"aa", "a"}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("unexpected pieces (-want +got):\n%s", diff)
		}
	})

	t.Run("frozen symbols never merge", func(t *testing.T) {
		got := pieces(spm.SampleEncode("ab<ctl>ab", 0))
		want := []string{"a", "b", "<ctl>", "a", "b"}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("unexpected pieces (-want +got):\n%s", diff)
		}
	})

	t.Run("deterministic at alpha zero", func(t *testing.T) {
		first := spm.SampleEncode("aaabcabc", 0)
		for range 8 {
			if diff := cmp.Diff(first, spm.SampleEncode("aaabcabc", 0)); diff != "" {
				t.Fatalf("output changed between runs:\n%s", diff)
			}
		}
	})

	t.Run("alpha one returns the initial split", func(t *testing.T) {
		got := pieces(spm.SampleEncode("abchi", 1))
		want := []string{"a", "b", "c", "h", "i"}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("unexpected pieces (-want +got):\n%s", diff)
		}
	})

	t.Run("alpha clamps outside the unit interval", func(t *testing.T) {
		if diff := cmp.Diff(spm.SampleEncode("abc", 0), spm.SampleEncode("abc", -3)); diff != "" {
			t.Errorf("alpha<0 differs from alpha=0:\n%s", diff)
		}
		if diff := cmp.Diff(spm.SampleEncode("abc", 1), spm.SampleEncode("abc", 7)); diff != "" {
			t.Errorf("alpha>1 differs from alpha=1:\n%s", diff)
		}
	})
}

func TestSampleEncodeCoverage(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	spm := NewSentencePiece("", testVocab(t), WithSampler(rng.Float64))

	inputs := []string{
		"abc",
		"aaaaaa",
		"abcabcabc",
		"hi▁hi",
		"a<ctl>bc",
		"xyz",
		"a",
	}

	for _, alpha := range []float32{0, 0.25, 0.5, 0.75, 1} {
		for _, input := range inputs {
			for range 20 {
				var sb strings.Builder
				for _, token := range spm.SampleEncode(input, alpha) {
					sb.WriteString(token.Piece)
				}

				if got := sb.String(); got != input {
					t.Fatalf("alpha=%v: pieces concatenate to %q, want %q", alpha, got, input)
				}
			}
		}
	}
}

func TestSampleEncodeDropoutRate(t *testing.T) {
	spm := NewSentencePiece("", testVocab(t))

	// "hi" has exactly one candidate merge, so the fraction of runs
	// that keep it apart estimates alpha directly.
	const n = 5000
	const alpha = 0.3

	var skipped int
	for range n {
		if len(spm.SampleEncode("hi", alpha)) == 2 {
			skipped++
		}
	}

	if got := float64(skipped) / n; math.Abs(got-alpha) > 0.05 {
		t.Errorf("skip rate %.3f, want about %.2f", got, alpha)
	}
}

func TestSampleEncodeDropoutIndependence(t *testing.T) {
	spm := NewSentencePiece("", testVocab(t))

	// "hihi" carries two non-interacting candidate merges. If skip
	// decisions are independent draws, the joint outcome counts must
	// match the product of the marginals.
	const n = 5000
	const alpha = 0.3

	var bothSkipped, oneSkipped int
	for range n {
		switch len(spm.SampleEncode("hihi", alpha)) {
		case 4:
			bothSkipped++
		case 3:
			oneSkipped++
		}
	}

	if got, want := float64(bothSkipped)/n, alpha*alpha; math.Abs(got-want) > 0.05 {
		t.Errorf("both-skipped rate %.3f, want about %.3f", got, want)
	}
	if got, want := float64(oneSkipped)/n, 2*alpha*(1-alpha); math.Abs(got-want) > 0.05 {
		t.Errorf("one-skipped rate %.3f, want about %.3f", got, want)
	}
}

func TestSampleEncodeConcurrent(t *testing.T) {
	spm := NewSentencePiece("", testVocab(t))
	want := spm.SampleEncode("aaabcabc", 0)

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				if diff := cmp.Diff(want, spm.SampleEncode("aaabcabc", 0)); diff != "" {
					t.Errorf("concurrent encode diverged:\n%s", diff)
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestEncodeDecode(t *testing.T) {
	vocab := testVocab(t)
	vocab.BOS = []int32{1}
	vocab.EOS = []int32{2}
	spm := NewSentencePiece("", vocab)

	t.Run("roundtrip", func(t *testing.T) {
		cases := []string{
			"hi",
			"hi hi",
			"abc",
			"aaa",
		}

		for _, want := range cases {
			ids, err := spm.Encode(want, false)
			if err != nil {
				t.Fatal(err)
			}

			if got, err := spm.Decode(ids); err != nil {
				t.Fatal(err)
			} else if got != want {
				t.Errorf("got %q, want %q [%#v]", got, want, ids)
			}
		}
	})

	t.Run("unknown maps to unk id", func(t *testing.T) {
		ids, err := spm.Encode("axb", false)
		if err != nil {
			t.Fatal(err)
		}

		want := []int32{3, 0, 4}
		if diff := cmp.Diff(want, ids); diff != "" {
			t.Errorf("unexpected ids (-want +got):\n%s", diff)
		}
	})

	t.Run("add specials", func(t *testing.T) {
		vocab := testVocab(t)
		vocab.BOS = []int32{1}
		vocab.EOS = []int32{2}
		vocab.AddBOS = true
		spm := NewSentencePiece("", vocab)

		ids, err := spm.Encode("hi", true)
		if err != nil {
			t.Fatal(err)
		}

		if len(ids) == 0 || ids[0] != 1 {
			t.Errorf("got %#v, want leading bos id 1", ids)
		}
	})

	t.Run("special pieces pass through", func(t *testing.T) {
		ids, err := spm.Encode("<ctl>hi", false)
		if err != nil {
			t.Fatal(err)
		}

		want := []int32{13, 12}
		if diff := cmp.Diff(want, ids); diff != "" {
			t.Errorf("unexpected ids (-want +got):\n%s", diff)
		}
	})

	t.Run("decode rejects bad ids", func(t *testing.T) {
		if _, err := spm.Decode([]int32{-1}); err == nil {
			t.Error("expected error for id -1")
		}
		if _, err := spm.Decode([]int32{1000}); err == nil {
			t.Error("expected error for out of range id")
		}
	})
}

func TestEncodeWithPretokenizer(t *testing.T) {
	cases := []struct {
		name string
		pre  string
		in   string
		want []int32
	}{
		{"no pattern", "", "hi hi", []int32{12, 8, 12}},
		{"word pattern", `[a-z]+|\s+`, "hi hi", []int32{12, 8, 12}},
		{"character pattern", `h|i|\s+`, "hi hi", []int32{6, 7, 8, 6, 7}},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			spm := NewSentencePiece(tt.pre, testVocab(t))

			ids, err := spm.Encode(tt.in, false)
			if err != nil {
				t.Fatal(err)
			}

			if diff := cmp.Diff(tt.want, ids); diff != "" {
				t.Errorf("unexpected ids (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSkipMergeFunc(t *testing.T) {
	draws := []float64{0.1, 0.9, 0.4999, 0.5}
	var i int
	sample := func() float64 {
		d := draws[i%len(draws)]
		i++
		return d
	}

	t.Run("boundaries ignore the sampler", func(t *testing.T) {
		never := skipMergeFunc(0, sample)
		always := skipMergeFunc(1, sample)
		for range 4 {
			if never() {
				t.Fatal("alpha=0 skipped a merge")
			}
			if !always() {
				t.Fatal("alpha=1 applied a merge")
			}
		}
		if i != 0 {
			t.Errorf("sampler drawn %d times at the boundaries", i)
		}
	})

	t.Run("draws compare against alpha", func(t *testing.T) {
		i = 0
		skip := skipMergeFunc(0.5, sample)
		want := []bool{true, false, true, false}
		for n, w := range want {
			if got := skip(); got != w {
				t.Errorf("draw %d: got %v, want %v", n, got, w)
			}
		}
	})
}
