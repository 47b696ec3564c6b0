package model

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
)

// Piece types, matching the sentencepiece model proto enum. The loader
// in the convert package depends on these values staying in sync with
// the wire format.
const (
	TOKEN_TYPE_NORMAL int32 = iota + 1
	TOKEN_TYPE_UNKNOWN
	TOKEN_TYPE_CONTROL
	TOKEN_TYPE_USER_DEFINED
	TOKEN_TYPE_UNUSED
	TOKEN_TYPE_BYTE
)

type Special int32

const (
	SpecialBOS Special = iota
	SpecialEOS
)

var ErrInvalidVocabulary = errors.New("invalid vocabulary")

// Vocabulary holds the trained pieces, parallel to their scores and
// types. It is read-only during encoding; any number of concurrent
// encode calls may share one instance.
type Vocabulary struct {
	Values []string
	Types  []int32
	Scores []float32

	BOS, EOS       []int32
	AddBOS, AddEOS bool

	statusOnce sync.Once
	status     error

	specialOnce sync.Once
	special     []string

	valuesOnce sync.Once
	values     map[string]int32

	unknownOnce sync.Once
	unknown     int32
}

// Status reports whether the vocabulary is coherent enough to encode
// with. The result is computed once and cached.
func (v *Vocabulary) Status() error {
	v.statusOnce.Do(func() {
		switch {
		case len(v.Values) == 0:
			v.status = fmt.Errorf("%w: no pieces", ErrInvalidVocabulary)
		case len(v.Types) != len(v.Values):
			v.status = fmt.Errorf("%w: %d pieces but %d types", ErrInvalidVocabulary, len(v.Values), len(v.Types))
		case len(v.Scores) != len(v.Values):
			v.status = fmt.Errorf("%w: %d pieces but %d scores", ErrInvalidVocabulary, len(v.Values), len(v.Scores))
		}
	})

	return v.status
}

func (v *Vocabulary) Is(id int32, special Special) bool {
	switch special {
	case SpecialBOS:
		return slices.Contains(v.BOS, id)
	case SpecialEOS:
		return slices.Contains(v.EOS, id)
	default:
		return false
	}
}

func (v *Vocabulary) addSpecials(ids []int32) []int32 {
	if v.AddBOS && len(v.BOS) > 0 {
		if len(ids) > 0 && slices.Contains(v.BOS, ids[0]) {
			slog.Warn("adding bos token to prompt which already has it", "id", v.BOS)
		}

		ids = append([]int32{v.BOS[0]}, ids...)
	}

	if v.AddEOS && len(v.EOS) > 0 {
		if len(ids) > 0 && slices.Contains(v.EOS, ids[len(ids)-1]) {
			slog.Warn("adding eos token to prompt which already has it", "id", v.EOS)
		}

		ids = append(ids, v.EOS[0])
	}

	return ids
}

// Encode resolves a piece to its id, or -1 when the piece is not in
// the vocabulary.
func (v *Vocabulary) Encode(s string) int32 {
	v.valuesOnce.Do(func() {
		v.values = make(map[string]int32, len(v.Values))
		for i, value := range v.Values {
			v.values[value] = int32(i)
		}
	})

	if id, ok := v.values[s]; ok {
		return id
	}

	return -1
}

func (v *Vocabulary) Decode(id int32) string {
	return v.Values[id]
}

// Score returns the merge priority of a piece. Higher scores merge
// earlier.
func (v *Vocabulary) Score(id int32) float32 {
	return v.Scores[id]
}

// IsUnused reports whether a piece exists only to drive intermediate
// merges and must be resegmented before output.
func (v *Vocabulary) IsUnused(id int32) bool {
	return id >= 0 && int(id) < len(v.Types) && v.Types[id] == TOKEN_TYPE_UNUSED
}

// UnknownID returns the id of the unknown piece, or -1 when the
// vocabulary does not declare one.
func (v *Vocabulary) UnknownID() int32 {
	v.unknownOnce.Do(func() {
		v.unknown = -1
		for i := range v.Types {
			if v.Types[i] == TOKEN_TYPE_UNKNOWN {
				v.unknown = int32(i)
				break
			}
		}
	})

	return v.unknown
}

func (v *Vocabulary) SpecialVocabulary() []string {
	v.specialOnce.Do(func() {
		for i := range v.Values {
			if v.Types[i] == TOKEN_TYPE_CONTROL || v.Types[i] == TOKEN_TYPE_USER_DEFINED {
				v.special = append(v.special, v.Values[i])
			}
		}
	})

	return v.special
}
