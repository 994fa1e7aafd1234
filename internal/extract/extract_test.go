package extract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractorExtract(t *testing.T) {
	t.Parallel()

	html := `<!doctype html><html><head>
		<script type="application/ld+json">{"@type":"Restaurant","sameAs":["https://www.facebook.com/tacoloco"]}</script>
	</head><body>
		<footer>
			<a href="mailto:hola@tacoloco.com">hola@tacoloco.com</a>
			<a href="https://instagram.com/taco.loco/">Instagram</a>
		</footer>
	</body></html>`

	got := New().Extract(html)
	require.Equal(t, Result{
		Email:     "hola@tacoloco.com",
		Facebook:  "https://www.facebook.com/tacoloco",
		Instagram: "https://www.instagram.com/taco.loco",
	}, got)
}

func TestExtractorNothingFound(t *testing.T) {
	t.Parallel()

	got := New().Extract("<html><body><h1>Coming soon</h1></body></html>")
	require.Equal(t, Result{Email: NotFound, Facebook: NotFound, Instagram: NotFound}, got)
}

func TestExtractorHandlesHostileInput(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"",
		"<<<>>>",
		strings.Repeat("<div>", 5000),
		"\x00\xff\xfe@@@..",
		`<a href="mailto:">`,
		`<script type="application/ld+json">{"email": [1, {"x": null}]</script>`,
		`<a href="https://www.facebook.com/profile.php?id=%zz">bad</a>`,
		strings.Repeat("a@", 2000),
	}
	for _, input := range inputs {
		require.NotPanics(t, func() {
			res := New().Extract(input)
			require.NotEmpty(t, res.Email)
			require.NotEmpty(t, res.Facebook)
			require.NotEmpty(t, res.Instagram)
		})
	}
}

func TestCandidateSet(t *testing.T) {
	t.Parallel()

	set := NewCandidateSet()
	require.True(t, set.Add("b"))
	require.True(t, set.Add("a"))
	require.False(t, set.Add("b"))
	require.False(t, set.Add(""))
	require.Equal(t, 2, set.Len())
	require.Equal(t, []string{"b", "a"}, set.Values())

	best, ok := set.Best(func(v string) bool { return v == "a" })
	require.True(t, ok)
	require.Equal(t, "a", best)

	_, ok = set.Best(func(string) bool { return false })
	require.False(t, ok)
}

func TestExtractIsDeterministic(t *testing.T) {
	t.Parallel()

	pages := []string{
		`<a href="mailto:jane@acme.com">Email us</a>`,
		`<p>b@acme.com a@acme.com</p><a href="https://facebook.com/share/abc123">s</a>` +
			`<a href="https://facebook.com/acmecorp">fb</a>`,
		`<p>jane [at] acme [dot] com</p><meta property="og:see_also" content="https://instagram.com/acme">`,
		`<script type="application/ld+json">{"email":"hi@acme.io","sameAs":["https://www.instagram.com/acme.io/"]}</script>`,
		`<div data-fb="acmebakery" data-ig="acme_bakery"></div><p>jane at acme dot com</p>`,
		`<html><body><p>nothing to see</p></body></html>`,
	}
	extractor := New()
	for _, page := range pages {
		first := extractor.Extract(page)
		for i := 0; i < 3; i++ {
			require.Equal(t, first, extractor.Extract(page), page)
			require.Equal(t, first, New().Extract(page), page)
		}
	}
}

func FuzzExtract(f *testing.F) {
	seeds := []string{
		"<a href=\"mailto:a@b.co\">x</a>",
		"https://www.facebook.com/acme",
		"instagram.com/acme",
		"jane [at] acme [dot] com",
	}
	for _, s := range seeds {
		f.Add(s)
	}
	f.Fuzz(func(t *testing.T, html string) {
		res := New().Extract(html)
		if again := New().Extract(html); again != res {
			t.Fatalf("extraction not deterministic: %+v then %+v", res, again)
		}
		if res.Email == "" || res.Facebook == "" || res.Instagram == "" {
			t.Fatalf("empty field in %+v", res)
		}
		if res.Email != NotFound && !IsValidEmail(res.Email) {
			t.Fatalf("invalid email %q", res.Email)
		}
		if res.Facebook != NotFound && !IsFacebookProfile(res.Facebook) {
			t.Fatalf("non-canonical facebook %q", res.Facebook)
		}
		if res.Instagram != NotFound && !IsInstagramProfile(res.Instagram) {
			t.Fatalf("non-canonical instagram %q", res.Instagram)
		}
	})
}
