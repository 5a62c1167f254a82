package parser

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/unidoc/unioffice/common/license"
	"github.com/unidoc/unioffice/document"

	"github.com/0xcro3dile/knowledge-vault/internal/domain/ports"
)

// DocxParser extracts paragraph text from Word documents. unioffice refuses to
// read without a license key, so it is only registered when one is configured.
type DocxParser struct{}

func NewDocxParser(licenseKey string) (*DocxParser, error) {
	if licenseKey != "" {
		if err := license.SetMeteredKey(licenseKey); err != nil {
			return nil, fmt.Errorf("setting unioffice license: %w", err)
		}
	}
	return &DocxParser{}, nil
}

// Parse joins runs into paragraphs separated by blank lines.
func (p *DocxParser) Parse(_ context.Context, data []byte, filename string) (ports.ParseResult, error) {
	doc, err := document.Read(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return ports.ParseResult{}, extractionError("parser.Docx", filename, err)
	}
	defer doc.Close()

	paragraphs := make([]string, 0, len(doc.Paragraphs()))
	for _, para := range doc.Paragraphs() {
		var b strings.Builder
		for _, run := range para.Runs() {
			b.WriteString(run.Text())
		}
		if text := strings.TrimSpace(b.String()); text != "" {
			paragraphs = append(paragraphs, text)
		}
	}
	return ports.ParseResult{Content: strings.Join(paragraphs, "\n\n")}, nil
}

func (p *DocxParser) SupportedFormats() []string {
	return []string{"docx"}
}
