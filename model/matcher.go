package model

import (
	"unicode/utf8"
)

// PrefixMatcher performs the initial character-to-symbol split.
// PrefixMatch reports how many leading bytes of s form the next
// symbol and whether that symbol is frozen, meaning it must never
// participate in a merge.
type PrefixMatcher interface {
	PrefixMatch(s string) (n int, freeze bool)
}

// vocabMatcher matches control and user-defined pieces longest-first
// and freezes them; anything else becomes a single rune symbol.
// Invalid UTF-8 advances one byte at a time.
type vocabMatcher struct {
	vocab  *Vocabulary
	maxLen int
}

// NewVocabMatcher builds the default matcher from the reserved pieces
// of vocab.
func NewVocabMatcher(vocab *Vocabulary) PrefixMatcher {
	var maxLen int
	for _, special := range vocab.SpecialVocabulary() {
		maxLen = max(maxLen, len(special))
	}

	return &vocabMatcher{vocab: vocab, maxLen: maxLen}
}

func (m *vocabMatcher) PrefixMatch(s string) (int, bool) {
	for n := min(m.maxLen, len(s)); n > 0; n-- {
		if id := m.vocab.Encode(s[:n]); id >= 0 {
			switch m.vocab.Types[id] {
			case TOKEN_TYPE_CONTROL, TOKEN_TYPE_USER_DEFINED:
				return n, true
			}
		}
	}

	_, size := utf8.DecodeRuneInString(s)
	return size, false
}
