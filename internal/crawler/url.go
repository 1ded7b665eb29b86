package crawler

import (
	"fmt"
	"net/url"
	"strings"
)

// NormalizeURL resolves rawURL against baseURL, strips the fragment, and
// re-encodes the path, returning the canonical absolute form used for
// de-duplication. The query string is kept as given. It returns "" when
// either input fails to parse or no scheme is present after resolution.
//
// Surrounding whitespace on rawURL is trimmed first. Interior empty path
// segments are collapsed only when the reference is a relative path, which is
// when path merging introduces them; absolute-path and network-path
// references keep their slashes verbatim. A trailing slash always survives.
func NormalizeURL(rawURL, baseURL string) string {
	base, err := url.Parse(baseURL)
	if err != nil {
		return ""
	}
	ref, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	resolved := base.ResolveReference(ref)
	if resolved.Scheme == "" {
		return ""
	}

	path := resolved.EscapedPath()
	if isRelativePathRef(ref) {
		path = collapseEmptySegments(path)
	}

	var b strings.Builder
	b.WriteString(resolved.Scheme)
	b.WriteString("://")
	b.WriteString(authorityOf(resolved))
	b.WriteString(path)
	if resolved.RawQuery != "" {
		b.WriteByte('?')
		b.WriteString(resolved.RawQuery)
	}
	return b.String()
}

// Authority returns the authority component of rawURL: userinfo when present,
// host, and port, with IPv6 brackets kept verbatim. It returns "" when the
// URL does not parse.
func Authority(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return authorityOf(u)
}

// SameHost reports whether rawURL belongs to baseHost. The comparison is
// byte-exact between authority strings, with one exception: an explicit
// default port (":80" under http, ":443" under https) on rawURL matches a
// baseHost without one. There is no case folding and no www-stripping, and
// subdomains are distinct hosts. Non-http(s) and unparseable URLs are never
// a match, nor is an empty baseHost.
func SameHost(rawURL, baseHost string) bool {
	if baseHost == "" {
		return false
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	authority := authorityOf(u)
	if authority == baseHost {
		return true
	}
	switch u.Scheme {
	case "http":
		return authority == baseHost+":80"
	case "https":
		return authority == baseHost+":443"
	}
	return false
}

// ValidateSeed checks rawURL as a crawl seed and returns its normalized form
// and its authority. The seed must carry an explicit http or https scheme and
// a host; violations are reported as ErrMissingProtocol,
// ErrUnsupportedProtocol, or ErrInvalidURL wrapped with the offending input.
func ValidateSeed(rawURL string) (seed, host string, err error) {
	trimmed := strings.TrimSpace(rawURL)
	if !strings.Contains(trimmed, "://") {
		return "", "", fmt.Errorf("%w: %q", ErrMissingProtocol, rawURL)
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", "", fmt.Errorf("%w: %q", ErrUnsupportedProtocol, u.Scheme)
	}
	seed = NormalizeURL(trimmed, trimmed)
	if seed == "" {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}
	host = Authority(seed)
	if host == "" {
		return "", "", fmt.Errorf("%w: %q has no host", ErrInvalidURL, rawURL)
	}
	return seed, host, nil
}

func authorityOf(u *url.URL) string {
	if u.User != nil {
		return u.User.String() + "@" + u.Host
	}
	return u.Host
}

// isRelativePathRef reports whether ref is a relative-path reference in the
// RFC 3986 sense: no scheme, no authority, and a path that does not start
// with "/".
func isRelativePathRef(ref *url.URL) bool {
	return ref.Scheme == "" && ref.Host == "" && ref.User == nil &&
		ref.Path != "" && !strings.HasPrefix(ref.Path, "/")
}

// collapseEmptySegments removes interior empty segments from an encoded path,
// keeping the leading segment (the root slash) and a trailing empty segment
// (a trailing slash) intact.
func collapseEmptySegments(path string) string {
	if !strings.Contains(path, "//") {
		return path
	}
	segs := strings.Split(path, "/")
	out := make([]string, 0, len(segs))
	for i, s := range segs {
		if s == "" && i != 0 && i != len(segs)-1 {
			continue
		}
		out = append(out, s)
	}
	return strings.Join(out, "/")
}
