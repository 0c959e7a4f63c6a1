// Package htmldoc adapts goquery and htmlquery to the selector capability
// used by the field extractor.
package htmldoc

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"github.com/rotisserie/eris"
	"golang.org/x/net/html"

	"github.com/cartlens/backend/internal/domain"
)

// XPathPrefix marks a selector as XPath instead of CSS
const XPathPrefix = "xpath:"

// Parser builds documents from fetched pages
type Parser struct{}

// NewParser creates a new HTML parser
func NewParser() *Parser {
	return &Parser{}
}

// Parse implements domain.DocumentParser
func (p *Parser) Parse(page *domain.Page) (domain.Document, error) {
	if page == nil || len(bytes.TrimSpace(page.Body)) == 0 {
		return nil, eris.Wrap(domain.ErrParseFailed, "empty page")
	}
	return Load(page.Body)
}

// Document wraps a parsed HTML tree
type Document struct {
	doc *goquery.Document
}

// Load parses UTF-8 HTML into a Document
func Load(body []byte) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrapf(domain.ErrParseFailed, "%v", err)
	}
	return &Document{doc: doc}, nil
}

// LoadString is a convenience wrapper used by tests and the CLI
func LoadString(body string) (*Document, error) {
	return Load([]byte(body))
}

// First returns the first node matching the selector
func (d *Document) First(selector string) (domain.Node, bool) {
	nodes := d.query(selector, true)
	if len(nodes) == 0 {
		return nil, false
	}
	return nodes[0], true
}

// All returns every node matching the selector in document order
func (d *Document) All(selector string) []domain.Node {
	return d.query(selector, false)
}

func (d *Document) query(selector string, firstOnly bool) []domain.Node {
	selector = strings.TrimSpace(selector)
	if selector == "" {
		return nil
	}

	var matched []*html.Node
	if expr, ok := strings.CutPrefix(selector, XPathPrefix); ok {
		matched = d.queryXPath(strings.TrimSpace(expr), firstOnly)
	} else {
		matched = d.queryCSS(selector, firstOnly)
	}

	nodes := make([]domain.Node, 0, len(matched))
	for _, n := range matched {
		if n.Type == html.ElementNode {
			nodes = append(nodes, node{n})
		}
	}
	return nodes
}

// queryCSS relies on goquery matching nothing for an invalid selector, so a
// broken selector in a profile just falls through to the next tier
func (d *Document) queryCSS(selector string, firstOnly bool) []*html.Node {
	sel := d.doc.Find(selector)
	if firstOnly {
		sel = sel.First()
	}
	return sel.Nodes
}

func (d *Document) queryXPath(expr string, firstOnly bool) []*html.Node {
	if len(d.doc.Nodes) == 0 {
		return nil
	}
	root := d.doc.Nodes[0]

	if firstOnly {
		n, err := htmlquery.Query(root, expr)
		if err != nil || n == nil {
			return nil
		}
		return []*html.Node{n}
	}

	nodes, err := htmlquery.QueryAll(root, expr)
	if err != nil {
		return nil
	}
	return nodes
}

// node implements domain.Node over an x/net/html element
type node struct {
	n *html.Node
}

func (n node) Tag() string {
	return strings.ToLower(n.n.Data)
}

func (n node) Text() string {
	return strings.TrimSpace(htmlquery.InnerText(n.n))
}

func (n node) Attr(name string) string {
	return strings.TrimSpace(htmlquery.SelectAttr(n.n, name))
}
