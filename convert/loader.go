package convert

import (
	"path/filepath"

	"github.com/ConstantWangheng/sentencepiece/model"
)

// Load reads a trained model by extension: .model is the protobuf
// tokenizer.model format, anything else is treated as a plain-text
// vocab export.
func Load(path string) (*model.Vocabulary, error) {
	if filepath.Ext(path) == ".model" {
		return ParseSentencePieceModel(path)
	}

	return ParseVocabFile(path)
}
