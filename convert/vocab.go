package convert

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/ConstantWangheng/sentencepiece/model"
)

// ParseVocab reads the plain-text vocab export: one piece per line,
// optionally followed by a tab and its score. Line order is id order.
// Well-known reserved pieces get their conventional types.
func ParseVocab(r io.Reader) (*model.Vocabulary, error) {
	var v model.Vocabulary

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for line := 1; scanner.Scan(); line++ {
		text := scanner.Text()
		if text == "" {
			continue
		}

		piece, rest, _ := strings.Cut(text, "\t")
		var score float64
		if rest != "" {
			var err error
			score, err = strconv.ParseFloat(rest, 32)
			if err != nil {
				return nil, fmt.Errorf("line %d: bad score %q: %w", line, rest, err)
			}
		}

		v.Values = append(v.Values, piece)
		v.Scores = append(v.Scores, float32(score))
		v.Types = append(v.Types, vocabPieceType(piece))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return &v, validate(&v)
}

// ParseVocabFile reads a .vocab file from disk.
func ParseVocabFile(path string) (*model.Vocabulary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return ParseVocab(f)
}

func vocabPieceType(piece string) int32 {
	switch piece {
	case "<unk>":
		return model.TOKEN_TYPE_UNKNOWN
	case "<s>", "</s>", "<pad>":
		return model.TOKEN_TYPE_CONTROL
	}

	if strings.HasPrefix(piece, "<0x") && strings.HasSuffix(piece, ">") {
		return model.TOKEN_TYPE_BYTE
	}

	return model.TOKEN_TYPE_NORMAL
}
