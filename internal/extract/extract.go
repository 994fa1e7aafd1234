// Package extract pulls contact channels (email, Facebook, Instagram) out of
// arbitrary HTML using layered heuristics. Extraction never fails: a field
// that cannot be determined is reported as NotFound.
package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// NotFound is the sentinel for a contact field that could not be determined.
const NotFound = "N/A"

// Result holds the best candidate per contact channel.
type Result struct {
	Email     string `json:"email"`
	Facebook  string `json:"facebook"`
	Instagram string `json:"instagram"`
}

// Extractor runs all three channel extractors over one page.
type Extractor struct{}

// New returns an Extractor.
func New() *Extractor {
	return &Extractor{}
}

// Extract parses html once and runs every channel extractor over it.
func (e *Extractor) Extract(html string) Result {
	doc := ParseDocument(html)
	return Result{
		Email:     Email(html, doc),
		Facebook:  Facebook(html, doc),
		Instagram: Instagram(html, doc),
	}
}

// ParseDocument builds a queryable document, or nil when html cannot be parsed.
func ParseDocument(html string) (doc *goquery.Document) {
	defer func() {
		if recover() != nil {
			doc = nil
		}
	}()
	parsed, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}
	return parsed
}

// guard runs one strategy; a panic inside it only drops that strategy's candidates.
func guard(strategy func()) {
	defer func() {
		_ = recover()
	}()
	strategy()
}
