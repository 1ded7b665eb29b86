package goqueryextractor

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractLinksFilters(t *testing.T) {
	t.Parallel()

	const base = "http://example.com/docs/index.html"

	cases := []struct {
		name string
		href string
		want []string
	}{
		{name: "relative path", href: "guide.html", want: []string{"http://example.com/docs/guide.html"}},
		{name: "parent directory", href: "../about", want: []string{"http://example.com/about"}},
		{name: "root relative", href: "/team", want: []string{"http://example.com/team"}},
		{name: "absolute same host", href: "http://example.com/pricing", want: []string{"http://example.com/pricing"}},
		{name: "absolute other host kept", href: "http://other.example.com/x", want: []string{"http://other.example.com/x"}},
		{name: "scheme relative", href: "//cdn.example.com/lib/app.js", want: []string{"http://cdn.example.com/lib/app.js"}},
		{name: "uppercase scheme", href: "HTTPS://secure.example.com/login", want: []string{"https://secure.example.com/login"}},
		{name: "fragment stripped", href: "guide.html#install", want: []string{"http://example.com/docs/guide.html"}},
		{name: "surrounding whitespace trimmed", href: "  /contact  ", want: []string{"http://example.com/contact"}},
		{name: "query preserved", href: "search?q=go", want: []string{"http://example.com/docs/search?q=go"}},
		{name: "empty href", href: "", want: []string{}},
		{name: "whitespace only href", href: "   ", want: []string{}},
		{name: "fragment only", href: "#top", want: []string{}},
		{name: "javascript", href: "javascript:void(0)", want: []string{}},
		{name: "javascript mixed case", href: "JavaScript:history.back()", want: []string{}},
		{name: "mailto", href: "mailto:team@example.com", want: []string{}},
		{name: "tel", href: "tel:+1-555-0100", want: []string{}},
		{name: "ftp", href: "ftp://files.example.com/f.zip", want: []string{}},
		{name: "data uri", href: "data:text/plain,hi", want: []string{}},
		{name: "unparseable href", href: "http://example.com/%zz", want: []string{}},
	}

	ex := New(nil)
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			html := fmt.Sprintf(`<html><body><a href="%s">link</a></body></html>`, tc.href)
			got := ex.ExtractLinks(html, base)
			require.Equal(t, tc.want, got.Sorted())
		})
	}
}

func TestExtractLinksDocument(t *testing.T) {
	t.Parallel()

	const html = `<!DOCTYPE html>
<html>
<head>
  <title>Docs</title>
  <base href="https://elsewhere.example/">
</head>
<body>
  <nav>
    <a href="/">Home</a>
    <A HREF="/docs/">Docs</A>
  </nav>
  <main>
    <p>Read the <a href="guide.html">guide</a> or the <a href="guide.html">same guide</a> again.</p>
    <a name="section-two"></a>
    <p><a href="https://github.com/example/project">source</a></p>
  </main>
  <footer>
    <a href="mailto:team@example.com">email us</a>
    <a href="#top">back to top</a>
  </footer>
</body>
</html>`

	ex := New(nil)
	got := ex.ExtractLinks(html, "http://example.com/docs/intro.html")

	// guide.html resolves against the page URL; the <base> element is not
	// consulted.
	require.Equal(t, []string{
		"http://example.com/",
		"http://example.com/docs/",
		"http://example.com/docs/guide.html",
		"https://github.com/example/project",
	}, got.Sorted())
}

func TestExtractLinksMalformedHTML(t *testing.T) {
	t.Parallel()

	const html = `<html><body>
<div><a href="/one">first
<a href="/two">second</div>
<span><a href="/three">third</span></p>`

	ex := New(nil)
	got := ex.ExtractLinks(html, "http://example.com/")

	require.Equal(t, []string{
		"http://example.com/one",
		"http://example.com/three",
		"http://example.com/two",
	}, got.Sorted())
}

func TestExtractLinksNoAnchors(t *testing.T) {
	t.Parallel()

	ex := New(nil)
	require.Empty(t, ex.ExtractLinks("", "http://example.com/"))
	require.Empty(t, ex.ExtractLinks("just some text", "http://example.com/"))
	require.Empty(t, ex.ExtractLinks(`<p>paragraph with <b>markup</b> but no anchors</p>`, "http://example.com/"))
}
