package extract

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/tidwall/gjson"
)

// platform describes how to recognize and canonicalize one social network's
// profile links.
type platform struct {
	base     string
	urlRe    *regexp.Regexp
	idRe     *regexp.Regexp
	reserved map[string]struct{}
	// nested maps a leading path segment to the number of segments that form the profile path.
	nested    map[string]int
	dataAttrs []string
	longHints []string
	tokHints  map[string]struct{}
	// profileQuery names a leading segment whose profile id lives in the ?id= query.
	profileQuery string
}

var (
	scriptPair = regexp.MustCompile(`"([A-Za-z0-9_:\-]{1,64})"\s*:\s*"([^"]{1,300})"`)
	digitsOnly = regexp.MustCompile(`^[0-9]+$`)
)

var facebook = &platform{
	base:  "https://www.facebook.com/",
	urlRe: regexp.MustCompile(`(?i)\b(?:https?://)?(?:[a-z0-9\-]+\.)?(?:facebook\.com|fb\.com)/([^\s"'<>\\]+)`),
	idRe:  regexp.MustCompile(`^[a-z0-9][a-z0-9._\-]{0,99}$`),
	reserved: toSet(
		"share", "sharer", "dialog", "plugins", "widget", "widgets", "tr", "login", "logout",
		"policy", "policies", "privacy", "help", "legal", "terms", "watch", "photo", "photos",
		"video", "videos", "l", "events", "hashtag", "home", "marketplace", "gaming", "business",
		"ads", "permalink", "story", "search", "settings", "notes", "media", "sharing",
		"2008", "fbml", "v2", "recover", "reg", "signup", "campaign", "direct_messages",
	),
	nested:       map[string]int{"pages": 3, "people": 3, "groups": 2},
	dataAttrs:    []string{"data-facebook", "data-fb", "data-facebook-url", "data-facebook-id"},
	longHints:    []string{"facebook"},
	tokHints:     toSet("fb"),
	profileQuery: "profile.php",
}

var instagram = &platform{
	base:  "https://www.instagram.com/",
	urlRe: regexp.MustCompile(`(?i)\b(?:https?://)?(?:www\.|m\.)?(?:instagram\.com|instagr\.am)/([^\s"'<>\\]+)`),
	idRe:  regexp.MustCompile(`^[a-z0-9._]{1,30}$`),
	reserved: toSet(
		"p", "reel", "reels", "tv", "explore", "accounts", "about", "blog", "share", "developer",
		"legal", "stories", "direct", "web", "static", "embed", "oauth", "privacy", "terms",
		"press", "api", "challenge", "emails", "session", "tags", "locations",
	),
	dataAttrs: []string{"data-instagram", "data-ig", "data-instagram-url", "data-instagram-username"},
	longHints: []string{"instagram"},
	tokHints:  toSet("ig", "insta"),
}

// Facebook returns the canonical Facebook profile URL found in the page, or NotFound.
func Facebook(raw string, doc *goquery.Document) string {
	return facebook.find(raw, doc)
}

// Instagram returns the canonical Instagram profile URL found in the page, or NotFound.
func Instagram(raw string, doc *goquery.Document) string {
	return instagram.find(raw, doc)
}

// IsFacebookProfile reports whether v is a canonical Facebook profile URL.
func IsFacebookProfile(v string) bool {
	return facebook.isCanonical(v)
}

// IsInstagramProfile reports whether v is a canonical Instagram profile URL.
func IsInstagramProfile(v string) bool {
	return instagram.isCanonical(v)
}

func (p *platform) find(raw string, doc *goquery.Document) (profile string) {
	defer func() {
		if recover() != nil {
			profile = NotFound
		}
	}()
	if doc == nil {
		doc = ParseDocument(raw)
	}

	set := NewCandidateSet()
	add := func(v string) {
		if canonical, ok := p.fromValue(v); ok {
			set.Add(canonical)
		}
	}

	// Full profile URLs first; bare identifiers only fill in afterwards.
	guard(func() { p.fullURLs(decodeText(raw), add) })
	if doc != nil {
		guard(func() { p.dataAttributes(doc, add) })
		guard(func() { p.relativeLinks(doc, add) })
		guard(func() { p.metaTags(doc, add) })
		guard(func() { p.scripts(doc, add) })
	}

	if best, ok := set.Best(p.isCanonical); ok {
		return best
	}
	return NotFound
}

// fullURLs adds every profile URL in text, including URLs nested inside
// another link's path or query (embedded page plugins).
func (p *platform) fullURLs(text string, add func(string)) {
	for _, loc := range p.urlRe.FindAllStringSubmatchIndex(text, -1) {
		add(text[loc[0]:loc[1]])
		p.fullURLs(text[loc[2]:loc[3]], add)
	}
}

// fromValue canonicalizes either a full profile URL or a bare identifier.
func (p *platform) fromValue(v string) (string, bool) {
	v = strings.TrimSpace(decodeText(v))
	if v == "" {
		return "", false
	}
	if m := p.urlRe.FindStringSubmatch(v); m != nil {
		return p.canonicalize(m[1])
	}
	if strings.Contains(v, "://") || strings.ContainsAny(v, " \t\n") {
		return "", false
	}
	return p.canonicalize(strings.TrimPrefix(v, "@"))
}

// canonicalize maps the path portion after the host to a profile URL.
func (p *platform) canonicalize(rest string) (string, bool) {
	rest = strings.TrimRight(rest, ".,;:!)]}'\"")
	rest, _, _ = strings.Cut(rest, "#")
	path, query, _ := strings.Cut(rest, "?")
	segs := strings.FieldsFunc(strings.ToLower(path), func(r rune) bool { return r == '/' })
	if len(segs) == 0 {
		return "", false
	}
	first := segs[0]

	if p.profileQuery != "" && first == p.profileQuery {
		values, err := url.ParseQuery(query)
		if err != nil {
			return "", false
		}
		id := values.Get("id")
		if !digitsOnly.MatchString(id) {
			return "", false
		}
		return p.base + p.profileQuery + "?id=" + id, true
	}
	if _, blocked := p.reserved[strings.TrimSuffix(first, ".php")]; blocked {
		return "", false
	}
	if n, ok := p.nested[first]; ok {
		if len(segs) < n {
			return "", false
		}
		for _, seg := range segs[1:n] {
			if !p.idRe.MatchString(seg) {
				return "", false
			}
		}
		return p.base + strings.Join(segs[:n], "/"), true
	}
	if !p.idRe.MatchString(first) || hasAssetExtension(first) || strings.HasSuffix(first, ".php") {
		return "", false
	}
	if strings.Trim(first, "._") == "" {
		return "", false
	}
	return p.base + first, true
}

// isCanonical is the final acceptance filter: v must already be in canonical form.
func (p *platform) isCanonical(v string) bool {
	if !strings.HasPrefix(v, p.base) {
		return false
	}
	canonical, ok := p.canonicalize(strings.TrimPrefix(v, p.base))
	return ok && canonical == v
}

func (p *platform) matchesHint(key string) bool {
	lower := strings.ToLower(key)
	for _, h := range p.longHints {
		if strings.Contains(lower, h) {
			return true
		}
	}
	for _, tok := range keyTokens(lower) {
		if _, ok := p.tokHints[tok]; ok {
			return true
		}
	}
	return false
}

func (p *platform) dataAttributes(doc *goquery.Document, add func(string)) {
	selector := "[" + strings.Join(p.dataAttrs, "], [") + "]"
	doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		for _, name := range p.dataAttrs {
			if v, ok := s.Attr(name); ok {
				add(v)
			}
		}
	})
}

// relativeLinks picks up hrefs without a host on anchors labelled for the platform.
func (p *platform) relativeLinks(doc *goquery.Document, add func(string)) {
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.Contains(href, "://") || strings.HasPrefix(href, "//") {
			return
		}
		lower := strings.ToLower(href)
		for _, prefix := range []string{"mailto:", "tel:", "#", "javascript:"} {
			if strings.HasPrefix(lower, prefix) {
				return
			}
		}
		labelled := false
		for _, name := range []string{"class", "id", "aria-label", "title"} {
			if v, ok := s.Attr(name); ok && p.matchesHint(v) {
				labelled = true
				break
			}
		}
		if !labelled {
			return
		}
		segs := strings.FieldsFunc(href, func(r rune) bool { return r == '/' })
		if len(segs) > 0 {
			add(segs[len(segs)-1])
		}
	})
}

func (p *platform) metaTags(doc *goquery.Document, add func(string)) {
	doc.Find("meta[content]").Each(func(_ int, s *goquery.Selection) {
		var key string
		for _, name := range []string{"name", "property", "itemprop"} {
			v, _ := s.Attr(name)
			key += " " + v
		}
		lower := strings.ToLower(key)
		if strings.Contains(lower, "app_id") || strings.Contains(lower, "admins") {
			return
		}
		content, _ := s.Attr("content")
		if p.matchesHint(key) || p.urlRe.MatchString(content) {
			add(content)
		}
	})
}

// scripts reads platform-named keys from JSON-LD and inline script objects.
func (p *platform) scripts(doc *goquery.Document, add func(string)) {
	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		body := s.Text()
		if isLDJSON(s) && gjson.Valid(body) {
			walkJSON(gjson.Parse(body), "", func(key string, value gjson.Result) {
				v := value.String()
				if p.matchesHint(key) || p.urlRe.MatchString(v) {
					add(v)
				}
			})
			return
		}
		for _, m := range scriptPair.FindAllStringSubmatch(decodeText(body), -1) {
			if p.matchesHint(m[1]) {
				add(m[2])
			}
		}
	})
}

func toSet(values ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(values))
	for _, v := range values {
		out[v] = struct{}{}
	}
	return out
}
