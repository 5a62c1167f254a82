package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/0xcro3dile/knowledge-vault/internal/domain/entities"
	"github.com/0xcro3dile/knowledge-vault/internal/domain/errs"
)

const previewLength = 200

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Passage is a retrieved chunk as shown to API clients.
type Passage struct {
	Source  string  `json:"source"`
	Page    int     `json:"page,omitempty"`
	Score   float64 `json:"score"`
	Preview string  `json:"preview"`
}

// DocumentReport is the outcome of ingesting one document.
type DocumentReport struct {
	DocumentID string `json:"document_id,omitempty"`
	Name       string `json:"name"`
	Chunks     int    `json:"chunks"`
	Error      string `json:"error,omitempty"`
	Code       string `json:"code,omitempty"`
}

// ChatResponse answers a chat request.
type ChatResponse struct {
	Answer   string    `json:"answer"`
	Sources  []string  `json:"sources"`
	Passages []Passage `json:"passages"`
}

// statusOf maps error codes to HTTP statuses. Index I/O and uncoded errors are 500.
func statusOf(err error) int {
	switch errs.CodeOf(err) {
	case errs.CodeInvalidArgument, errs.CodeUnsupportedFormat, errs.CodeEmptyDocument:
		return http.StatusBadRequest
	case errs.CodeDimensionMismatch:
		return http.StatusConflict
	case errs.CodeEmbeddingService, errs.CodeGenerationService:
		return http.StatusBadGateway
	case errs.CodeParserUnavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func fail(c *gin.Context, err error) {
	code := string(errs.CodeOf(err))
	if code == "" {
		code = "INTERNAL"
	}
	c.AbortWithStatusJSON(statusOf(err), ErrorResponse{Code: code, Message: err.Error()})
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Code: string(errs.CodeInvalidArgument), Message: msg})
}

func notFound(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusNotFound, ErrorResponse{Code: "NOT_FOUND", Message: msg})
}

func toPassages(result entities.RetrievalResult) []Passage {
	out := make([]Passage, len(result))
	for i, r := range result {
		page, _ := strconv.Atoi(r.Chunk.Metadata[entities.MetaPage])
		out[i] = Passage{
			Source:  r.SourceDoc,
			Page:    page,
			Score:   r.Score,
			Preview: preview(r.Chunk.Content),
		}
	}
	return out
}

func preview(s string) string {
	r := []rune(s)
	if len(r) <= previewLength {
		return s
	}
	return string(r[:previewLength]) + "..."
}

func toReport(r entities.IngestReport) DocumentReport {
	out := DocumentReport{DocumentID: r.DocumentID, Name: r.Name, Chunks: r.Chunks}
	if r.Err != nil {
		out.Error = r.Err.Error()
		out.Code = string(errs.CodeOf(r.Err))
	}
	return out
}
