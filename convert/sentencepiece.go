// Package convert loads trained sentencepiece models into a
// model.Vocabulary, either from the protobuf tokenizer.model format
// or from the plain-text vocab export.
package convert

import (
	"fmt"
	"math"
	"os"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/ConstantWangheng/sentencepiece/model"
)

// Field numbers from sentencepiece_model.proto. The generated
// bindings are not vendored here; the pieces list is shallow enough
// to walk with protowire directly.
const (
	fieldModelPieces = 1 // ModelProto.pieces

	fieldPieceValue = 1 // ModelProto.SentencePiece.piece
	fieldPieceScore = 2 // ModelProto.SentencePiece.score
	fieldPieceType  = 3 // ModelProto.SentencePiece.type
)

// ParseSentencePieceModel reads a tokenizer.model file.
func ParseSentencePieceModel(path string) (*model.Vocabulary, error) {
	bts, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	return UnmarshalModelProto(bts)
}

// UnmarshalModelProto decodes the pieces of a serialized ModelProto.
// Fields other than the pieces list are skipped.
func UnmarshalModelProto(bts []byte) (*model.Vocabulary, error) {
	var v model.Vocabulary
	for len(bts) > 0 {
		num, typ, n := protowire.ConsumeTag(bts)
		if n < 0 {
			return nil, fmt.Errorf("malformed model proto: %w", protowire.ParseError(n))
		}
		bts = bts[n:]

		if num == fieldModelPieces && typ == protowire.BytesType {
			msg, n := protowire.ConsumeBytes(bts)
			if n < 0 {
				return nil, fmt.Errorf("malformed piece: %w", protowire.ParseError(n))
			}
			bts = bts[n:]

			if err := unmarshalPiece(msg, &v); err != nil {
				return nil, err
			}
			continue
		}

		n = protowire.ConsumeFieldValue(num, typ, bts)
		if n < 0 {
			return nil, fmt.Errorf("malformed model proto field %d: %w", num, protowire.ParseError(n))
		}
		bts = bts[n:]
	}

	return &v, validate(&v)
}

func unmarshalPiece(bts []byte, v *model.Vocabulary) error {
	var piece string
	var score float32
	ptype := model.TOKEN_TYPE_NORMAL

	for len(bts) > 0 {
		num, typ, n := protowire.ConsumeTag(bts)
		if n < 0 {
			return fmt.Errorf("malformed piece: %w", protowire.ParseError(n))
		}
		bts = bts[n:]

		switch {
		case num == fieldPieceValue && typ == protowire.BytesType:
			value, n := protowire.ConsumeBytes(bts)
			if n < 0 {
				return fmt.Errorf("malformed piece value: %w", protowire.ParseError(n))
			}
			bts = bts[n:]
			piece = string(value)
		case num == fieldPieceScore && typ == protowire.Fixed32Type:
			bits, n := protowire.ConsumeFixed32(bts)
			if n < 0 {
				return fmt.Errorf("malformed piece score: %w", protowire.ParseError(n))
			}
			bts = bts[n:]
			score = math.Float32frombits(bits)
		case num == fieldPieceType && typ == protowire.VarintType:
			value, n := protowire.ConsumeVarint(bts)
			if n < 0 {
				return fmt.Errorf("malformed piece type: %w", protowire.ParseError(n))
			}
			bts = bts[n:]
			ptype = int32(value)
		default:
			n := protowire.ConsumeFieldValue(num, typ, bts)
			if n < 0 {
				return fmt.Errorf("malformed piece field %d: %w", num, protowire.ParseError(n))
			}
			bts = bts[n:]
		}
	}

	v.Values = append(v.Values, piece)
	v.Scores = append(v.Scores, score)
	v.Types = append(v.Types, ptype)
	return nil
}

func validate(v *model.Vocabulary) error {
	if err := v.Status(); err != nil {
		return err
	}

	seen := make(map[string]int, len(v.Values))
	for i, value := range v.Values {
		if prev, ok := seen[value]; ok {
			return fmt.Errorf("%w: duplicate piece %q at ids %d and %d", model.ErrInvalidVocabulary, value, prev, i)
		}
		seen[value] = i
	}

	return nil
}
