package model

import (
	"fmt"
	"iter"
	"math/rand/v2"
	"strings"

	"github.com/dlclark/regexp2"

	"github.com/ConstantWangheng/sentencepiece/logutil"
)

const spmWhitespaceSep = "▁"

type TextProcessor interface {
	Encode(s string, addSpecial bool) ([]int32, error)
	Decode([]int32) (string, error)
	Is(int32, Special) bool
}

// Token is one unit of segmenter output: the piece bytes and the
// vocabulary id, or -1 when the span is not a known piece.
type Token struct {
	Piece string
	ID    int32
}

// symbol is a currently-active span of the input, held in a fixed
// array and linked by index. Merging two adjacent symbols extends the
// left span over both and vacates the right slot; slots never move.
type symbol struct {
	prev   int // prev index of this symbol. -1 for BOS.
	next   int // next index of this symbol. -1 for EOS.
	freeze bool
	begin  int // byte offsets into the input, [begin, end)
	end    int
}

type SentencePiece struct {
	maxTokenLen int
	pre         *regexp2.Regexp
	vocab       *Vocabulary
	matcher     PrefixMatcher
	sample      func() float64
}

var _ TextProcessor = (*SentencePiece)(nil)

type SentencePieceOption func(*SentencePiece)

// WithPrefixMatcher replaces the default vocabulary-derived matcher
// used for the initial split.
func WithPrefixMatcher(m PrefixMatcher) SentencePieceOption {
	return func(spm *SentencePiece) {
		spm.matcher = m
	}
}

// WithSampler replaces the uniform [0,1) source used for dropout
// draws. The function must be safe to call from the goroutine running
// the encode.
func WithSampler(sample func() float64) SentencePieceOption {
	return func(spm *SentencePiece) {
		spm.sample = sample
	}
}

func NewSentencePiece(pre string, vocab *Vocabulary, opts ...SentencePieceOption) SentencePiece {
	counter := map[int]int{}
	var maxTokenLen int
	for cnt := range vocab.Types {
		switch vocab.Types[cnt] {
		case TOKEN_TYPE_NORMAL, TOKEN_TYPE_USER_DEFINED, TOKEN_TYPE_UNUSED:
			maxTokenLen = max(maxTokenLen, len(vocab.Values[cnt]))
			fallthrough
		default:
			counter[int(vocab.Types[cnt])] += 1
		}
	}

	logutil.Trace("Token counts", "normal", counter[int(TOKEN_TYPE_NORMAL)], "unknown", counter[int(TOKEN_TYPE_UNKNOWN)], "control", counter[int(TOKEN_TYPE_CONTROL)],
		"user defined", counter[int(TOKEN_TYPE_USER_DEFINED)], "unused", counter[int(TOKEN_TYPE_UNUSED)], "byte", counter[int(TOKEN_TYPE_BYTE)],
		"max token len", maxTokenLen)

	spm := SentencePiece{
		maxTokenLen: maxTokenLen,
		vocab:       vocab,
		matcher:     NewVocabMatcher(vocab),
		sample:      rand.Float64,
	}

	if pre != "" {
		spm.pre = regexp2.MustCompile(pre, regexp2.Unicode|regexp2.RE2)
	}

	for _, opt := range opts {
		opt(&spm)
	}

	return spm
}

func (spm SentencePiece) Vocabulary() *Vocabulary {
	return spm.vocab
}

func (spm SentencePiece) Is(id int32, special Special) bool {
	return spm.vocab.Is(id, special)
}

// SampleEncode segments text into an ordered, gap-free sequence of
// tokens whose pieces concatenate back to text. alpha controls
// BPE-dropout: 0 is deterministic greedy BPE, 1 skips every merge and
// returns the initial split, anything between skips each candidate
// merge independently with that probability. Values outside [0,1]
// clamp to the nearest boundary behavior.
//
// The result is empty iff text is empty or the vocabulary is invalid.
func (spm SentencePiece) SampleEncode(text string, alpha float32) []Token {
	if spm.vocab.Status() != nil || text == "" {
		return nil
	}

	symbols := make([]symbol, 0, len(text))
	for i := 0; i < len(text); {
		n, freeze := spm.matcher.PrefixMatch(text[i:])
		if n <= 0 || i+n > len(text) {
			n = len(text) - i
		}

		index := len(symbols)
		symbols = append(symbols, symbol{
			prev:   index - 1,
			next:   index + 1,
			freeze: freeze,
			begin:  i,
			end:    i + n,
		})
		i += n
	}

	if len(symbols) == 0 {
		return nil
	}
	symbols[len(symbols)-1].next = -1

	// Reverse merge rules for resegmentation: merged piece to its two
	// constituent pieces. Populated for unused pieces at discovery
	// time, whether or not the merge is later skipped.
	revMerge := make(map[string][2]string)

	pairs := newFreeList[symbolPair](256)
	agenda := newAgenda()

	maybeAddNewSymbolPair := func(left, right int) {
		if left == -1 || right == -1 || symbols[left].freeze || symbols[right].freeze {
			return
		}

		piece := text[symbols[left].begin:symbols[right].end]
		id := spm.vocab.Encode(piece)
		if id < 0 {
			return
		}

		pair := pairs.allocate()
		pair.left = left
		pair.right = right
		pair.score = spm.vocab.Score(id)
		pair.size = len(piece)
		agenda.push(pair)

		if spm.vocab.IsUnused(id) {
			revMerge[piece] = [2]string{
				text[symbols[left].begin:symbols[left].end],
				text[symbols[right].begin:symbols[right].end],
			}
		}
	}

	for i := 1; i < len(symbols); i++ {
		maybeAddNewSymbolPair(i-1, i)
	}

	skipMerge := skipMergeFunc(alpha, spm.sample)

	for !agenda.empty() {
		top, _ := agenda.pop()
		left, right := &symbols[top.left], &symbols[top.right]

		// Stale candidate: one of the symbols was consumed by an
		// earlier merge.
		if left.begin == left.end || right.begin == right.end ||
			(left.end-left.begin)+(right.end-right.begin) != top.size {
			continue
		}

		// The original BPE-dropout paper precomputes which merges to
		// drop; skipping each candidate independently here is
		// equivalent.
		if skipMerge() {
			continue
		}

		left.end = right.end
		left.next = right.next
		if right.next >= 0 {
			symbols[right.next].prev = top.left
		}
		right.end = right.begin

		maybeAddNewSymbolPair(left.prev, top.left)
		maybeAddNewSymbolPair(top.left, left.next)
	}

	var output []Token
	for index := 0; index != -1; index = symbols[index].next {
		output = spm.resegment(text[symbols[index].begin:symbols[index].end], revMerge, output)
	}

	return output
}

func skipMergeFunc(alpha float32, sample func() float64) func() bool {
	switch {
	case alpha <= 0:
		return func() bool { return false }
	case alpha >= 1:
		return func() bool { return true }
	}

	if sample == nil {
		sample = rand.Float64
	}

	return func() bool {
		return sample() < float64(alpha)
	}
}

// resegment resolves one surviving span to output tokens, expanding
// unused pieces back into their recorded constituents, left before
// right, until only emittable pieces remain.
func (spm SentencePiece) resegment(piece string, revMerge map[string][2]string, output []Token) []Token {
	id := spm.vocab.Encode(piece)
	if id == -1 || !spm.vocab.IsUnused(id) {
		return append(output, Token{Piece: piece, ID: id})
	}

	halves, ok := revMerge[piece]
	if !ok {
		// Cannot happen: every unused piece reachable here was
		// recorded when its pair was discovered.
		return append(output, Token{Piece: piece, ID: id})
	}

	output = spm.resegment(halves[0], revMerge, output)
	return spm.resegment(halves[1], revMerge, output)
}

func (spm *SentencePiece) split(s string) iter.Seq[string] {
	return func(yield func(string) bool) {
		if spm.pre == nil {
			yield(s)
			return
		}

		for m, _ := spm.pre.FindStringMatch(s); m != nil; m, _ = spm.pre.FindNextMatch(m) {
			if !yield(m.String()) {
				break
			}
		}
	}
}

// Encode is the deterministic id-only surface: special pieces are cut
// out verbatim, the remainder is split by the pretokenizer pattern,
// whitespace is rewritten to the sentencepiece separator, and each
// fragment is segmented with alpha 0. Unknown spans map to the
// vocabulary's unknown id when it declares one.
func (spm SentencePiece) Encode(s string, addSpecial bool) ([]int32, error) {
	if err := spm.vocab.Status(); err != nil {
		return nil, err
	}

	fragments := []fragment{{value: s}}
	for _, special := range spm.vocab.SpecialVocabulary() {
		id := spm.vocab.Encode(special)
		for i := 0; i < len(fragments); i++ {
			frag := fragments[i]
			if len(frag.ids) > 0 {
				continue
			}

			var middle []fragment
			switch i := strings.Index(frag.value, special); {
			case i < 0:
				middle = append(middle, frag)
			case i > 0:
				middle = append(middle, fragment{value: frag.value[:i]})
				fallthrough
			default:
				middle = append(middle, fragment{value: special, ids: []int32{id}})
				if rest := frag.value[i+len(special):]; rest != "" {
					middle = append(middle, fragment{value: rest})
				}
			}

			fragments = append(fragments[:i], append(middle, fragments[i+1:]...)...)
		}
	}

	var ids []int32
	for _, frag := range fragments {
		if len(frag.ids) > 0 {
			ids = append(ids, frag.ids...)
			continue
		}

		for split := range spm.split(frag.value) {
			text := strings.ReplaceAll(split, " ", spmWhitespaceSep)

			if id := spm.vocab.Encode(text); id >= 0 && !spm.vocab.IsUnused(id) {
				ids = append(ids, id)
				continue
			}

			for _, token := range spm.SampleEncode(text, 0) {
				if token.ID >= 0 {
					ids = append(ids, token.ID)
				} else if unk := spm.vocab.UnknownID(); unk >= 0 {
					ids = append(ids, unk)
				} else {
					logutil.Trace("missing token", "token", token.Piece)
				}
			}
		}
	}

	if addSpecial {
		ids = spm.vocab.addSpecials(ids)
	}

	return ids, nil
}

func (spm SentencePiece) Decode(ids []int32) (string, error) {
	var sb strings.Builder
	for _, id := range ids {
		if id < 0 || int(id) >= len(spm.vocab.Values) {
			return "", fmt.Errorf("invalid token id: %d", id)
		}

		data := spm.vocab.Decode(id)
		data = strings.ReplaceAll(data, spmWhitespaceSep, " ")
		if _, err := sb.WriteString(data); err != nil {
			return "", err
		}
	}

	return sb.String(), nil
}

type fragment struct {
	value string
	ids   []int32
}
