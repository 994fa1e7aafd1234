package extract

import (
	stdhtml "html"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"github.com/tidwall/gjson"
	"golang.org/x/net/html"
)

// escapeReplacer undoes the JSON and percent escapes that commonly hide
// addresses and profile links inside scripts and attributes.
var escapeReplacer = strings.NewReplacer(
	`\u0040`, "@",
	`\u002e`, ".",
	`\u002E`, ".",
	`\u002f`, "/",
	`\u002F`, "/",
	`\u003c`, " <",
	`\u003C`, " <",
	`\u003e`, "> ",
	`\u003E`, "> ",
	`\u0026`, "&",
	`\u0022`, `"`,
	`\/`, "/",
	"%40", "@",
	"%2F", "/",
	"%2f", "/",
	"%3A", ":",
	"%3a", ":",
	"%20", " ",
)

// decodeText resolves HTML entities and common escapes.
func decodeText(s string) string {
	return escapeReplacer.Replace(stdhtml.UnescapeString(s))
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// visibleText joins every text node under sel with a separating space so that
// adjacent elements never glue together into one token.
func visibleText(sel *goquery.Selection) string {
	var b strings.Builder
	for _, n := range sel.Nodes {
		writeText(n, &b)
	}
	return b.String()
}

func writeText(n *html.Node, b *strings.Builder) {
	if n.Type == html.TextNode {
		b.WriteString(n.Data)
		b.WriteByte(' ')
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeText(c, b)
	}
}

// attrValues returns every attribute of the selection's first node.
func attrValues(sel *goquery.Selection) []html.Attribute {
	if sel.Length() == 0 {
		return nil
	}
	return sel.Get(0).Attr
}

// isLDJSON reports whether a script element carries JSON-LD.
func isLDJSON(sel *goquery.Selection) bool {
	typ, _ := sel.Attr("type")
	return strings.EqualFold(strings.TrimSpace(typ), "application/ld+json")
}

// walkJSON visits every scalar in a JSON document together with the nearest
// object key above it. Array elements inherit their parent's key.
func walkJSON(node gjson.Result, key string, visit func(key string, value gjson.Result)) {
	if node.IsObject() || node.IsArray() {
		isObject := node.IsObject()
		node.ForEach(func(k, v gjson.Result) bool {
			childKey := key
			if isObject {
				childKey = k.String()
			}
			walkJSON(v, childKey, visit)
			return true
		})
		return
	}
	visit(key, node)
}

// keyTokens splits an attribute or JSON key into lowercase alphanumeric tokens.
func keyTokens(key string) []string {
	return strings.FieldsFunc(strings.ToLower(key), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

var assetExtensions = []string{
	".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp", ".bmp", ".ico", ".tif", ".tiff", ".avif",
	".js", ".css",
}

func hasAssetExtension(s string) bool {
	lower := strings.ToLower(s)
	for _, ext := range assetExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}
