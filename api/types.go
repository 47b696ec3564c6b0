package api

import (
	"fmt"
	"net/http"
	"strings"
)

type Error struct {
	Code    int32  `json:"code"`
	Message string `json:"message"`
}

func (e Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%d %v", e.Code, strings.ToLower(http.StatusText(int(e.Code))))
	}
	return e.Message
}

// Token is one segmented piece and its vocabulary id; the id is -1
// when the piece is not in the vocabulary.
type Token struct {
	Piece string `json:"piece"`
	ID    int32  `json:"id"`
}

type TokenizeRequest struct {
	Text  string  `json:"text"`
	Alpha float32 `json:"alpha,omitempty"`
}

type TokenizeResponse struct {
	Tokens []Token `json:"tokens"`
}

type TokenizeBatchRequest struct {
	Texts []string `json:"texts"`
	Alpha float32  `json:"alpha,omitempty"`
}

type TokenizeBatchResponse struct {
	Results [][]Token `json:"results"`
}

type DetokenizeRequest struct {
	IDs []int32 `json:"ids"`
}

type DetokenizeResponse struct {
	Text string `json:"text"`
}

type VocabResponse struct {
	Size        int `json:"size"`
	Normal      int `json:"normal"`
	Unknown     int `json:"unknown"`
	Control     int `json:"control"`
	UserDefined int `json:"user_defined"`
	Unused      int `json:"unused"`
	Byte        int `json:"byte"`
}
