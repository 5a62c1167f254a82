// Package parser provides adapters implementing ports.DocumentParser.
package parser

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/0xcro3dile/knowledge-vault/internal/domain/errs"
	"github.com/0xcro3dile/knowledge-vault/internal/domain/ports"
)

// ServicePDFParser delegates PDF extraction to an HTTP sidecar exposing
// POST /parse (raw bytes in, JSON out) and GET /health.
type ServicePDFParser struct {
	serviceURL string
	client     *resty.Client
	cmd        *exec.Cmd
	logger     *zap.Logger
}

func NewServicePDFParser(serviceURL string, logger *zap.Logger) *ServicePDFParser {
	if serviceURL == "" {
		serviceURL = "http://localhost:8081"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ServicePDFParser{
		serviceURL: serviceURL,
		client:     resty.New().SetBaseURL(serviceURL).SetTimeout(60 * time.Second),
		logger:     logger,
	}
}

// parseResponse is the sidecar's response. Page texts are optional.
type parseResponse struct {
	Text      string   `json:"text"`
	Pages     int      `json:"pages"`
	PageTexts []string `json:"page_texts,omitempty"`
	Library   string   `json:"library,omitempty"`
	Error     string   `json:"error,omitempty"`
}

func (p *ServicePDFParser) Parse(ctx context.Context, data []byte, filename string) (ports.ParseResult, error) {
	resp, err := p.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/octet-stream").
		SetHeader("X-Filename", filename).
		SetBody(data).
		Post("/parse")
	if err != nil {
		return ports.ParseResult{}, &errs.Error{Code: errs.CodeParserUnavailable, Op: "parser.ServicePDF", Message: "calling PDF service", Cause: err}
	}

	// Error replies carry the same JSON shape, so the body is decoded whatever the status.
	var result parseResponse
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return ports.ParseResult{}, fmt.Errorf("decoding response (status %d): %w", resp.StatusCode(), err)
	}
	if result.Error != "" {
		return ports.ParseResult{}, &errs.Error{
			Code:    errs.CodeUnsupportedFormat,
			Op:      "parser.ServicePDF",
			Message: fmt.Sprintf("%s: %s", filename, result.Error),
		}
	}

	p.logger.Debug("pdf parsed by service", zap.String("file", filename), zap.Int("pages", result.Pages), zap.String("library", result.Library))
	return ports.ParseResult{Content: cleanPDFContent(result.Text), Pages: result.PageTexts}, nil
}

func (p *ServicePDFParser) SupportedFormats() []string {
	return []string{"pdf"}
}

// StartService launches the sidecar with the given command line and returns a
// function that stops it.
func (p *ServicePDFParser) StartService(ctx context.Context, command string, args ...string) (func(), error) {
	p.cmd = exec.Command(command, args...)
	p.cmd.Stdout = os.Stdout
	p.cmd.Stderr = os.Stderr

	if err := p.cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting PDF service: %w", err)
	}

	deadline := time.Now().Add(10 * time.Second)
	for !p.IsServiceHealthy(ctx) && time.Now().Before(deadline) {
		time.Sleep(200 * time.Millisecond)
	}

	return func() {
		if p.cmd != nil && p.cmd.Process != nil {
			_ = p.cmd.Process.Kill()
			_ = p.cmd.Wait()
		}
	}, nil
}

// IsServiceHealthy checks if the sidecar is running.
func (p *ServicePDFParser) IsServiceHealthy(ctx context.Context) bool {
	resp, err := p.client.R().SetContext(ctx).Get("/health")
	if err != nil {
		return false
	}
	return resp.StatusCode() == http.StatusOK
}
