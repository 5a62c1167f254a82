package parser

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/ledongthuc/pdf"
	"github.com/unidoc/unipdf/v3/common/license"
	"github.com/unidoc/unipdf/v3/extractor"
	"github.com/unidoc/unipdf/v3/model"
	"go.uber.org/zap"

	"github.com/0xcro3dile/knowledge-vault/internal/domain/errs"
	"github.com/0xcro3dile/knowledge-vault/internal/domain/ports"
)

// NativePDFParser extracts per-page text in-process without a license key.
type NativePDFParser struct {
	logger *zap.Logger
}

func NewNativePDFParser(logger *zap.Logger) *NativePDFParser {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NativePDFParser{logger: logger}
}

func (p *NativePDFParser) Parse(ctx context.Context, data []byte, filename string) (res ports.ParseResult, err error) {
	const op = "parser.NativePDF"
	// The reader panics on some malformed object streams.
	defer func() {
		if r := recover(); r != nil {
			res, err = ports.ParseResult{}, extractionError(op, filename, fmt.Errorf("%v", r))
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return ports.ParseResult{}, extractionError(op, filename, err)
	}

	pages, err := extractPages(ctx, op, filename, reader.NumPage(), p.logger, func(n int) (string, error) {
		page := reader.Page(n)
		if page.V.IsNull() {
			return "", nil
		}
		return page.GetPlainText(nil)
	})
	if err != nil {
		return ports.ParseResult{}, err
	}
	return ports.ParseResult{Content: strings.Join(pages, "\n\n"), Pages: pages}, nil
}

func (p *NativePDFParser) SupportedFormats() []string {
	return []string{"pdf"}
}

// UniPDFParser extracts per-page text in-process with unipdf. unipdf refuses
// to extract without a license key.
type UniPDFParser struct {
	logger *zap.Logger
}

// NewUniPDFParser registers the metered license key when one is given.
func NewUniPDFParser(licenseKey string, logger *zap.Logger) (*UniPDFParser, error) {
	if licenseKey != "" {
		if err := license.SetMeteredKey(licenseKey); err != nil {
			return nil, fmt.Errorf("setting unipdf license: %w", err)
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UniPDFParser{logger: logger}, nil
}

func (p *UniPDFParser) Parse(ctx context.Context, data []byte, filename string) (ports.ParseResult, error) {
	const op = "parser.UniPDF"
	pdfReader, err := model.NewPdfReader(bytes.NewReader(data))
	if err != nil {
		return ports.ParseResult{}, extractionError(op, filename, err)
	}

	numPages, err := pdfReader.GetNumPages()
	if err != nil {
		return ports.ParseResult{}, extractionError(op, filename, err)
	}

	pages, err := extractPages(ctx, op, filename, numPages, p.logger, func(n int) (string, error) {
		return extractPage(pdfReader, n)
	})
	if err != nil {
		return ports.ParseResult{}, err
	}
	return ports.ParseResult{Content: strings.Join(pages, "\n\n"), Pages: pages}, nil
}

func extractPage(r *model.PdfReader, n int) (string, error) {
	page, err := r.GetPage(n)
	if err != nil {
		return "", err
	}
	ex, err := extractor.New(page)
	if err != nil {
		return "", err
	}
	return ex.ExtractText()
}

func (p *UniPDFParser) SupportedFormats() []string {
	return []string{"pdf"}
}

// extractPages returns one cleaned entry per page. A page that fails is kept
// empty so page numbers stay aligned, unless every page fails, in which case
// the last failure is returned.
func extractPages(ctx context.Context, op, filename string, numPages int, logger *zap.Logger, extract func(n int) (string, error)) ([]string, error) {
	pages := make([]string, numPages)
	var (
		failed  int
		lastErr error
	)
	for i := 1; i <= numPages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text, err := extract(i)
		if err != nil {
			failed++
			lastErr = err
			logger.Warn("skipping unreadable page", zap.String("file", filename), zap.Int("page", i), zap.Error(err))
			continue
		}
		pages[i-1] = cleanPDFContent(text)
	}
	if numPages > 0 && failed == numPages {
		return nil, extractionError(op, filename, lastErr)
	}
	return pages, nil
}

// extractionError blames the file unless the library reports a licensing
// problem, which is a deployment fault.
func extractionError(op, filename string, err error) error {
	if isLicenseError(err) {
		return &errs.Error{Code: errs.CodeParserUnavailable, Op: op, Message: "cannot read " + filename + ": license key missing or invalid", Cause: err}
	}
	return &errs.Error{Code: errs.CodeUnsupportedFormat, Op: op, Message: "reading " + filename, Cause: err}
}

func isLicenseError(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "license")
}

// cleanPDFContent drops control characters and replacement runes that PDF
// text extraction leaves behind.
func cleanPDFContent(content string) string {
	var cleaned strings.Builder
	cleaned.Grow(len(content))
	for _, r := range content {
		if r == unicode.ReplacementChar {
			continue
		}
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			continue
		}
		cleaned.WriteRune(r)
	}
	return strings.TrimSpace(cleaned.String())
}
