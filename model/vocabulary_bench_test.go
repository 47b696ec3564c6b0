package model

import (
	"fmt"
	"strings"
	"testing"
)

// genVocab builds a Vocabulary with n tokens, marking every 10th as
// CONTROL.
func genVocab(n int) *Vocabulary {
	v := &Vocabulary{
		Values: make([]string, n),
		Types:  make([]int32, n),
		Scores: make([]float32, n),
	}
	for i := range n {
		v.Values[i] = fmt.Sprintf("tok%d", i)
		if i%10 == 0 {
			v.Types[i] = TOKEN_TYPE_CONTROL
		} else {
			v.Types[i] = TOKEN_TYPE_NORMAL
		}
	}
	return v
}

func BenchmarkSpecialVocabulary(b *testing.B) {
	v := genVocab(10000)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = v.SpecialVocabulary()
	}
}

func BenchmarkSampleEncode(b *testing.B) {
	vocab := &Vocabulary{
		Values: []string{"<unk>", "a", "b", "ab", "aa", "aab", "abab"},
		Types: []int32{
			TOKEN_TYPE_UNKNOWN, TOKEN_TYPE_NORMAL, TOKEN_TYPE_NORMAL,
			TOKEN_TYPE_NORMAL, TOKEN_TYPE_NORMAL, TOKEN_TYPE_NORMAL, TOKEN_TYPE_NORMAL,
		},
		Scores: []float32{0, -1, -1, 4, 3, 5, 6},
	}
	spm := NewSentencePiece("", vocab)
	input := strings.Repeat("aabab", 200)

	for _, alpha := range []float32{0, 0.1} {
		b.Run(fmt.Sprintf("alpha=%v", alpha), func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				_ = spm.SampleEncode(input, alpha)
			}
		})
	}
}
