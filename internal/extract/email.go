package extract

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/tidwall/gjson"
)

var (
	emailPattern = regexp.MustCompile(`(?i)[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}`)
	validEmail   = regexp.MustCompile(
		`^[a-z0-9._%+\-]+@[a-z0-9](?:[a-z0-9\-]*[a-z0-9])?(?:\.[a-z0-9](?:[a-z0-9\-]*[a-z0-9])?)*\.[a-z]{2,}$`,
	)

	bracketAt  = regexp.MustCompile(`(?i)\s*[\[\(\{]\s*at\s*[\]\)\}]\s*`)
	bracketDot = regexp.MustCompile(`(?i)\s*[\[\(\{]\s*dot\s*[\]\)\}]\s*`)
	spacedAt   = regexp.MustCompile(`\s*@\s*`)
	// A dot joins a domain only when whitespace precedes it and a lowercase
	// label follows, so "sales@acme. We" stays a sentence boundary.
	domainDot = regexp.MustCompile(`(@[A-Za-z0-9\-]+(?:\.[A-Za-z0-9\-]+)*)\s+\.\s*([a-z0-9][a-z0-9\-]*)`)
	localDot  = regexp.MustCompile(`([A-Za-z0-9])\s+\.\s*([A-Za-z0-9][A-Za-z0-9._%+\-]*@)`)
	wordAt    = regexp.MustCompile(
		`(?i)\b([a-z0-9][a-z0-9._%+\-]*)\s+at\s+([a-z0-9][a-z0-9\-]*(?:\s+dot\s+[a-z0-9][a-z0-9\-]*)+)\b`,
	)
	wordDot = regexp.MustCompile(`(?i)\s+dot\s+`)
)

// deniedDomains never hold a real business mailbox.
var deniedDomains = []string{
	"example.com",
	"example.org",
	"example.net",
	"test.com",
	"sentry.io",
	"wixpress.com",
}

// deniedFragments mark template and system addresses.
var deniedFragments = []string{
	"placeholder",
	"your-email",
	"youremail",
	"your_email",
	"email@domain",
	"noreply",
	"no-reply",
	"donotreply",
	"do-not-reply",
}

// contactHints identify anchors that lead to contact details.
var contactHints = []string{"contact", "about", "reach", "connect", "get-in-touch"}

// Email returns the best email address found in the page, or NotFound.
// doc may be nil, in which case raw is parsed on demand.
func Email(raw string, doc *goquery.Document) (email string) {
	defer func() {
		if recover() != nil {
			email = NotFound
		}
	}()
	if doc == nil {
		doc = ParseDocument(raw)
	}

	set := NewCandidateSet()
	add := func(v string) {
		set.Add(normalizeEmail(v))
	}
	addAll := func(text string) {
		for _, m := range emailPattern.FindAllString(text, -1) {
			add(m)
		}
	}

	corpus := emailCorpus(raw, doc)
	guard(func() { addAll(corpus) })
	guard(func() { addAll(deobfuscate(corpus)) })
	if doc != nil {
		guard(func() { mailtoEmails(doc, add) })
		guard(func() { anchorTextEmails(doc, addAll) })
		guard(func() { attributeEmails(doc, addAll) })
		guard(func() { scriptEmails(doc, addAll) })
		guard(func() { contactAnchorEmails(doc, addAll) })
	}

	if best, ok := set.Best(IsValidEmail); ok {
		return best
	}
	return NotFound
}

// IsValidEmail applies the final acceptance filter to a normalized address.
func IsValidEmail(addr string) bool {
	if len(addr) <= 5 || !validEmail.MatchString(addr) {
		return false
	}
	local, domain, ok := strings.Cut(addr, "@")
	if !ok || strings.HasPrefix(local, ".") || strings.HasSuffix(local, ".") || strings.Contains(local, "..") {
		return false
	}
	if hasAssetExtension(addr) {
		return false
	}
	for _, d := range deniedDomains {
		if domain == d || strings.HasSuffix(domain, "."+d) {
			return false
		}
	}
	for _, f := range deniedFragments {
		if strings.Contains(addr, f) {
			return false
		}
	}
	return true
}

// normalizeEmail lowercases a raw match and strips prefixes and punctuation.
func normalizeEmail(v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	v = strings.TrimPrefix(v, "mailto:")
	if strings.Contains(v, "%") {
		if decoded, err := url.PathUnescape(v); err == nil {
			v = decoded
		}
	}
	m := emailPattern.FindString(v)
	if m == "" {
		return ""
	}
	return strings.Trim(m, "._%+-")
}

// emailCorpus joins visible text, anchor and title attributes, and raw markup.
func emailCorpus(raw string, doc *goquery.Document) string {
	var parts []string
	if doc != nil {
		parts = append(parts, visibleText(doc.Find("body")))
		doc.Find("a").Each(func(_ int, s *goquery.Selection) {
			href, _ := s.Attr("href")
			title, _ := s.Attr("title")
			parts = append(parts, href, title, visibleText(s))
		})
		doc.Find("[title], [alt]").Each(func(_ int, s *goquery.Selection) {
			title, _ := s.Attr("title")
			alt, _ := s.Attr("alt")
			parts = append(parts, title, alt)
		})
	}
	parts = append(parts, raw)
	return decodeText(strings.Join(parts, "\n"))
}

// deobfuscate rewrites "[at]", "(dot)", "x at y dot z" and spaced separators
// into plain form.
func deobfuscate(text string) string {
	text = bracketAt.ReplaceAllString(text, "@")
	text = bracketDot.ReplaceAllString(text, ".")
	text = wordAt.ReplaceAllStringFunc(text, func(m string) string {
		parts := wordAt.FindStringSubmatch(m)
		return parts[1] + "@" + wordDot.ReplaceAllString(parts[2], ".")
	})
	text = spacedAt.ReplaceAllString(text, "@")
	for i := 0; i < 4; i++ {
		next := domainDot.ReplaceAllString(text, "$1.$2")
		next = localDot.ReplaceAllString(next, "$1.$2")
		if next == text {
			break
		}
		text = next
	}
	return text
}

// mailtoEmails reads mailto: links from href and data-* attributes.
func mailtoEmails(doc *goquery.Document, add func(string)) {
	doc.Find("*").Each(func(_ int, s *goquery.Selection) {
		for _, attr := range attrValues(s) {
			key := strings.ToLower(attr.Key)
			if key != "href" && !strings.HasPrefix(key, "data-") {
				continue
			}
			val := strings.TrimSpace(attr.Val)
			if len(val) < len("mailto:") || !strings.EqualFold(val[:len("mailto:")], "mailto:") {
				continue
			}
			for _, addr := range mailtoRecipients(val[len("mailto:"):]) {
				add(addr)
			}
		}
	})
}

func mailtoRecipients(v string) []string {
	v, _, _ = strings.Cut(v, "?")
	v, _, _ = strings.Cut(v, "#")
	if decoded, err := url.PathUnescape(v); err == nil {
		v = decoded
	}
	return strings.FieldsFunc(v, func(r rune) bool {
		return r == ',' || r == ';' || r == ' '
	})
}

func anchorTextEmails(doc *goquery.Document, addAll func(string)) {
	doc.Find("a").Each(func(_ int, s *goquery.Selection) {
		addAll(collapseSpace(decodeText(visibleText(s))))
	})
}

// attributeEmails scans email-bearing meta tags and data attributes.
func attributeEmails(doc *goquery.Document, addAll func(string)) {
	doc.Find("meta").Each(func(_ int, s *goquery.Selection) {
		var key string
		for _, name := range []string{"name", "property", "itemprop"} {
			v, _ := s.Attr(name)
			key += " " + strings.ToLower(v)
		}
		if !strings.Contains(key, "mail") {
			return
		}
		content, _ := s.Attr("content")
		addAll(decodeText(content))
	})
	doc.Find("[data-email], [data-mail], [data-contact-email]").Each(func(_ int, s *goquery.Selection) {
		for _, name := range []string{"data-email", "data-mail", "data-contact-email"} {
			if v, ok := s.Attr(name); ok {
				addAll(decodeText(v))
			}
		}
	})
}

// scriptEmails reads "email" keys from JSON-LD and pattern-scans other scripts.
func scriptEmails(doc *goquery.Document, addAll func(string)) {
	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		body := s.Text()
		if isLDJSON(s) && gjson.Valid(body) {
			walkJSON(gjson.Parse(body), "", func(key string, value gjson.Result) {
				if strings.Contains(strings.ToLower(key), "email") {
					addAll(value.String())
				}
			})
			return
		}
		addAll(decodeText(body))
	})
}

// contactAnchorEmails scans the text of links that point at contact pages.
func contactAnchorEmails(doc *goquery.Document, addAll func(string)) {
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.ToLower(href)
		for _, hint := range contactHints {
			if strings.Contains(href, hint) {
				title, _ := s.Attr("title")
				addAll(decodeText(visibleText(s) + " " + title))
				return
			}
		}
	})
}
