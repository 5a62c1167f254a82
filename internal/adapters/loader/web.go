package loader

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/0xcro3dile/knowledge-vault/internal/domain/entities"
	"github.com/0xcro3dile/knowledge-vault/internal/domain/errs"
	"github.com/0xcro3dile/knowledge-vault/internal/domain/ports"
)

// WebLoader fetches an article and extracts its text.
type WebLoader struct {
	client  *resty.Client
	parser  ports.DocumentParser
	maxSize int64
	logger  *zap.Logger
}

// NewWebLoader uses a 10 second timeout when timeout is zero.
func NewWebLoader(parser ports.DocumentParser, timeout time.Duration, maxSize int64, logger *zap.Logger) *WebLoader {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("User-Agent", "Mozilla/5.0 (compatible; knowledge-vault/1.0)").
		SetHeader("Accept", "text/html,application/xhtml+xml")

	return &WebLoader{
		client:  client,
		parser:  parser,
		maxSize: maxSize,
		logger:  logger,
	}
}

func (l *WebLoader) Load(ctx context.Context, rawURL string) (*entities.Document, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, errs.InvalidArgument("loader.Web", "invalid url %q", rawURL)
	}

	// The body is streamed so the size limit applies before buffering.
	resp, err := l.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(u.String())
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", u, err)
	}
	body := resp.RawBody()
	defer body.Close()

	if !resp.IsSuccess() {
		return nil, fmt.Errorf("fetching %s: status %d", u, resp.StatusCode())
	}

	data, err := io.ReadAll(io.LimitReader(body, l.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", u, err)
	}
	if int64(len(data)) > l.maxSize {
		return nil, tooLarge("loader.Web", u.String(), int64(len(data)), l.maxSize)
	}

	res, err := l.parser.Parse(ctx, data, u.String())
	if err != nil {
		return nil, err
	}
	l.logger.Debug("fetched web page", zap.String("url", u.String()), zap.Int("bytes", len(data)))

	doc := &entities.Document{
		ID:          generateDocID(u.String()),
		Name:        u.String(),
		Source:      u.String(),
		ContentType: entities.ContentWeb,
		Content:     res.Content,
		CreatedAt:   time.Now(),
		Metadata:    map[string]string{"url": u.String()},
	}
	if res.Title != "" {
		doc.Metadata["title"] = res.Title
	}
	return doc, nil
}

func (l *WebLoader) SupportedExtensions() []string { return nil }
