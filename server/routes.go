package server

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/ConstantWangheng/sentencepiece/api"
	"github.com/ConstantWangheng/sentencepiece/envconfig"
	"github.com/ConstantWangheng/sentencepiece/model"
)

type Server struct {
	spm model.SentencePiece
}

func NewServer(spm model.SentencePiece) *Server {
	return &Server{spm: spm}
}

func (s *Server) TokenizeHandler(c *gin.Context) {
	var req api.TokenizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, api.Error{Code: http.StatusBadRequest, Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, api.TokenizeResponse{Tokens: toAPITokens(s.spm.SampleEncode(req.Text, req.Alpha))})
}

// TokenizeBatchHandler segments each text independently. Encode calls
// share the read-only vocabulary, so they fan out across goroutines.
func (s *Server) TokenizeBatchHandler(c *gin.Context) {
	var req api.TokenizeBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, api.Error{Code: http.StatusBadRequest, Message: err.Error()})
		return
	}

	results := make([][]api.Token, len(req.Texts))

	var g errgroup.Group
	g.SetLimit(envconfig.NumParallel)
	for i, text := range req.Texts {
		g.Go(func() error {
			results[i] = toAPITokens(s.spm.SampleEncode(text, req.Alpha))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, api.Error{Code: http.StatusInternalServerError, Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, api.TokenizeBatchResponse{Results: results})
}

func (s *Server) DetokenizeHandler(c *gin.Context) {
	var req api.DetokenizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, api.Error{Code: http.StatusBadRequest, Message: err.Error()})
		return
	}

	text, err := s.spm.Decode(req.IDs)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, api.Error{Code: http.StatusBadRequest, Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, api.DetokenizeResponse{Text: text})
}

func (s *Server) VocabHandler(c *gin.Context) {
	vocab := s.spm.Vocabulary()

	var resp api.VocabResponse
	resp.Size = len(vocab.Values)
	for _, t := range vocab.Types {
		switch t {
		case model.TOKEN_TYPE_NORMAL:
			resp.Normal++
		case model.TOKEN_TYPE_UNKNOWN:
			resp.Unknown++
		case model.TOKEN_TYPE_CONTROL:
			resp.Control++
		case model.TOKEN_TYPE_USER_DEFINED:
			resp.UserDefined++
		case model.TOKEN_TYPE_UNUSED:
			resp.Unused++
		case model.TOKEN_TYPE_BYTE:
			resp.Byte++
		}
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) GenerateRoutes() http.Handler {
	config := cors.DefaultConfig()
	config.AllowWildcard = true
	config.AllowOrigins = envconfig.AllowOrigins

	r := gin.Default()
	r.Use(cors.New(config))

	r.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, "spm is running")
	})

	r.POST("/api/tokenize", s.TokenizeHandler)
	r.POST("/api/tokenize/batch", s.TokenizeBatchHandler)
	r.POST("/api/detokenize", s.DetokenizeHandler)
	r.GET("/api/vocab", s.VocabHandler)

	return r
}

func Serve(ln net.Listener, spm model.SentencePiece) error {
	if err := spm.Vocabulary().Status(); err != nil {
		return fmt.Errorf("refusing to serve: %w", err)
	}

	s := NewServer(spm)

	slog.Info("server config", "env", envconfig.Values())
	slog.Info("listening", "addr", ln.Addr())
	srv := &http.Server{Handler: s.GenerateRoutes()}
	return srv.Serve(ln)
}

func toAPITokens(tokens []model.Token) []api.Token {
	out := make([]api.Token, len(tokens))
	for i, token := range tokens {
		out[i] = api.Token{Piece: token.Piece, ID: token.ID}
	}
	return out
}
