package http

import (
	"encoding/csv"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/0xcro3dile/knowledge-vault/internal/domain/entities"
	"github.com/0xcro3dile/knowledge-vault/internal/domain/errs"
)

type urlRequest struct {
	URL string `json:"url" binding:"required,url"`
}

type chatRequest struct {
	Question string `json:"question" binding:"required"`
}

type searchRequest struct {
	Question string `json:"question" binding:"required"`
	TopK     int    `json:"top_k" binding:"omitempty,min=1"`
}

// handleUpload ingests multipart "files". Each file gets its own report.
func (s *Server) handleUpload(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		badRequest(c, "expected multipart form with files")
		return
	}
	files := form.File["files"]
	if len(files) == 0 {
		badRequest(c, "no files uploaded")
		return
	}

	ctx := c.Request.Context()
	reports := make([]DocumentReport, len(files))
	var (
		docs []*entities.Document
		slot []int
	)
	for i, fh := range files {
		doc, err := s.readUpload(c, fh)
		if err != nil {
			reports[i] = toReport(entities.IngestReport{Name: fh.Filename, Err: err})
			continue
		}
		docs = append(docs, doc)
		slot = append(slot, i)
	}

	for j, rep := range s.deps.Ingest.IngestBatch(ctx, docs) {
		reports[slot[j]] = toReport(rep)
	}

	indexed := 0
	for _, r := range reports {
		if r.Error == "" {
			indexed++
		}
	}
	c.JSON(http.StatusOK, gin.H{"documents": reports, "indexed": indexed})
}

func (s *Server) readUpload(c *gin.Context, fh *multipart.FileHeader) (*entities.Document, error) {
	if limit := s.deps.Uploads.MaxFileSize(); fh.Size > limit {
		return nil, errs.InvalidArgument("http.Upload", "%s exceeds the %d MB limit", fh.Filename, limit>>20)
	}
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	return s.deps.Uploads.LoadBytes(c.Request.Context(), fh.Filename, data)
}

func (s *Server) handleIngestURL(c *gin.Context) {
	var req urlRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	reports := s.deps.Ingest.IngestSources(c.Request.Context(), s.deps.Sources, []string{req.URL})
	if err := reports[0].Err; err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toReport(reports[0]))
}

func (s *Server) handleDeleteDocument(c *gin.Context) {
	id := c.Param("id")
	if err := s.deps.Ingest.Delete(c.Request.Context(), id); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": id})
}

func (s *Server) handleClearIndex(c *gin.Context) {
	ctx := c.Request.Context()
	if err := s.deps.Ingest.Reset(ctx); err != nil {
		fail(c, err)
		return
	}
	n, err := s.deps.Ingest.Count(ctx)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chunks": n})
}

func (s *Server) handleSearch(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if req.TopK == 0 {
		req.TopK = s.deps.Chat.TopK()
	}

	result, err := s.deps.Retriever.Retrieve(c.Request.Context(), req.Question, req.TopK)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"passages": toPassages(result)})
}

func (s *Server) handleChat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	session, err := s.deps.Sessions.Get(c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}

	resp, err := s.deps.Chat.Ask(c.Request.Context(), session, req.Question)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ChatResponse{
		Answer:   resp.Answer,
		Sources:  resp.Sources,
		Passages: toPassages(resp.Passages),
	})
}

func (s *Server) history(c *gin.Context) ([]entities.Turn, bool) {
	id := c.Param("id")
	session, ok := s.deps.Sessions.Lookup(id)
	if !ok {
		notFound(c, fmt.Sprintf("session %q not found", id))
		return nil, false
	}
	turns, err := session.History(c.Request.Context())
	if err != nil {
		fail(c, err)
		return nil, false
	}
	return turns, true
}

func (s *Server) handleHistory(c *gin.Context) {
	turns, ok := s.history(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": c.Param("id"), "turns": turns})
}

func (s *Server) handleHistoryCSV(c *gin.Context) {
	turns, ok := s.history(c)
	if !ok {
		return
	}

	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="history-%s.csv"`, c.Param("id")))
	c.Status(http.StatusOK)

	w := csv.NewWriter(c.Writer)
	_ = w.Write([]string{"question", "answer", "timestamp", "sources"})
	for _, t := range turns {
		_ = w.Write([]string{t.Question, t.Answer, t.Timestamp.Format(time.RFC3339), strings.Join(t.Sources, "; ")})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		s.logger.Warn("csv export", zap.Error(err))
	}
}

func (s *Server) handleClearMemory(c *gin.Context) {
	id := c.Param("id")
	session, ok := s.deps.Sessions.Lookup(id)
	if !ok {
		notFound(c, fmt.Sprintf("session %q not found", id))
		return
	}
	if err := session.ClearMemory(c.Request.Context()); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": id, "turns": 0})
}

func (s *Server) handleCloseSession(c *gin.Context) {
	id := c.Param("id")
	existed, err := s.deps.Sessions.Close(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	if !existed {
		notFound(c, fmt.Sprintf("session %q not found", id))
		return
	}
	c.Status(http.StatusNoContent)
}

type sessionStats struct {
	ID       string `json:"id"`
	Turns    int    `json:"turns"`
	Capacity int    `json:"capacity"`
}

func (s *Server) handleStats(c *gin.Context) {
	ctx := c.Request.Context()
	n, err := s.deps.Ingest.Count(ctx)
	if err != nil {
		fail(c, err)
		return
	}

	sessions := []sessionStats{}
	for _, id := range s.deps.Sessions.IDs() {
		session, ok := s.deps.Sessions.Lookup(id)
		if !ok {
			continue
		}
		turns, err := session.MemorySize(ctx)
		if err != nil {
			fail(c, err)
			return
		}
		sessions = append(sessions, sessionStats{ID: id, Turns: turns, Capacity: session.Capacity()})
	}

	c.JSON(http.StatusOK, gin.H{
		"chunks":            n,
		"sessions":          sessions,
		"supported_formats": s.deps.Uploads.SupportedExtensions(),
		"max_file_size_mb":  s.deps.Uploads.MaxFileSize() >> 20,
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	status := http.StatusOK
	checks := make(map[string]bool, len(s.deps.Checks))
	for name, check := range s.deps.Checks {
		ok := check(c.Request.Context())
		checks[name] = ok
		if !ok {
			status = http.StatusServiceUnavailable
		}
	}
	state := "ok"
	if status != http.StatusOK {
		state = "degraded"
	}
	c.JSON(status, gin.H{"status": state, "checks": checks})
}
