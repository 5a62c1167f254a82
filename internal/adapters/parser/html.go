package parser

import (
	"bytes"
	"context"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/0xcro3dile/knowledge-vault/internal/domain/errs"
	"github.com/0xcro3dile/knowledge-vault/internal/domain/ports"
)

// HTMLParser extracts readable text from HTML, dropping scripts and styles.
// Block elements become line breaks; whitespace inside a line is collapsed.
type HTMLParser struct{}

func NewHTMLParser() *HTMLParser { return &HTMLParser{} }

var skipped = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Template: true,
	atom.Svg:      true,
	atom.Iframe:   true,
}

var blocks = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Br: true, atom.Li: true, atom.Tr: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Article: true, atom.Section: true, atom.Header: true, atom.Footer: true,
	atom.Blockquote: true, atom.Pre: true, atom.Table: true, atom.Ul: true, atom.Ol: true,
	atom.Title: true,
}

func (p *HTMLParser) Parse(_ context.Context, data []byte, filename string) (ports.ParseResult, error) {
	root, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return ports.ParseResult{}, &errs.Error{Code: errs.CodeUnsupportedFormat, Op: "parser.HTML", Message: "parsing " + filename, Cause: err}
	}

	var (
		raw   strings.Builder
		title string
	)
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if skipped[n.DataAtom] {
				return
			}
			if n.DataAtom == atom.Title && title == "" && n.FirstChild != nil {
				title = strings.TrimSpace(n.FirstChild.Data)
				return
			}
			if blocks[n.DataAtom] {
				raw.WriteString("\n")
			}
		}
		if n.Type == html.TextNode {
			raw.WriteString(strings.Map(inlineSpace, n.Data))
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && blocks[n.DataAtom] {
			raw.WriteString("\n")
		}
	}
	walk(root)

	return ports.ParseResult{Content: collapseLines(raw.String()), Title: title}, nil
}

func (p *HTMLParser) SupportedFormats() []string {
	return []string{"html", "htm"}
}

// inlineSpace folds source line breaks inside text nodes into spaces.
func inlineSpace(r rune) rune {
	if r == '\n' || r == '\r' || r == '\t' || r == '\f' {
		return ' '
	}
	return r
}

// collapseLines squeezes whitespace within each line and drops empty lines.
func collapseLines(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, l := range lines {
		if l = strings.Join(strings.Fields(l), " "); l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}
