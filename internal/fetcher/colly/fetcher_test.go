package collyfetcher

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
)

func TestFetcherBuildCollector(t *testing.T) {
	t.Parallel()

	f := New(Config{UserAgent: "sitemapper-test", Timeout: time.Second}, nil, nil)
	collector := f.buildCollector(&pageResponse{}, new(error))
	if collector.UserAgent != "sitemapper-test" {
		t.Fatalf("expected user agent override, got %q", collector.UserAgent)
	}
	if !collector.IgnoreRobotsTxt {
		t.Fatal("expected robots txt to be ignored")
	}
}

func TestFetcherBuildCollectorDefaults(t *testing.T) {
	t.Parallel()

	f := New(Config{}, nil, nil)
	collector := f.buildCollector(&pageResponse{}, new(error))
	if collector.UserAgent != defaultUserAgent {
		t.Fatalf("expected browser user agent default, got %q", collector.UserAgent)
	}
}

func TestConfigureHooks(t *testing.T) {
	t.Parallel()

	f := New(Config{}, nil, nil)
	var (
		resp     pageResponse
		fetchErr error
	)
	hooks := &stubHooks{}
	f.configureHooks(hooks, &resp, &fetchErr)
	if hooks.onRequest == nil || hooks.onResponse == nil || hooks.onError == nil {
		t.Fatal("expected hooks to be registered")
	}

	collyReq := &colly.Request{Headers: &http.Header{}}
	hooks.onRequest(collyReq)
	if got := collyReq.Headers.Get("Accept"); got != acceptHeader {
		t.Fatalf("expected accept header, got %q", got)
	}
	if got := collyReq.Headers.Get("Accept-Language"); got != acceptLanguage {
		t.Fatalf("expected accept-language header, got %q", got)
	}

	hooks.onResponse(&colly.Response{
		StatusCode: http.StatusOK,
		Body:       []byte("<html></html>"),
		Headers:    &http.Header{"Content-Type": {"text/html; charset=utf-8"}},
		Request: &colly.Request{
			URL: mustParseURL(t, "http://example.com/about"),
		},
	})
	if resp.statusCode != http.StatusOK || string(resp.body) != "<html></html>" {
		t.Fatalf("unexpected captured response: %+v", resp)
	}
	if resp.finalURL != "http://example.com/about" {
		t.Fatalf("expected final url from response, got %q", resp.finalURL)
	}
	if resp.contentType != "text/html; charset=utf-8" {
		t.Fatalf("expected content type captured, got %q", resp.contentType)
	}

	hooks.onError(&colly.Response{StatusCode: http.StatusNotFound}, errors.New("Not Found"))
	if fetchErr == nil || fetchErr.Error() != "Not Found" {
		t.Fatalf("expected fetchErr set, got %v", fetchErr)
	}
	if resp.statusCode != http.StatusNotFound {
		t.Fatalf("expected error status captured, got %d", resp.statusCode)
	}
}

func TestPageClassification(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		resp   pageResponse
		hasher stubHasher
		ok     bool
		hash   string
	}{
		{
			name: "usable html page",
			resp: pageResponse{
				finalURL:    "http://example.com/",
				statusCode:  http.StatusOK,
				contentType: "text/html; charset=utf-8",
				body:        []byte("<html></html>"),
			},
			hasher: stubHasher{digest: "abc123"},
			ok:     true,
			hash:   "abc123",
		},
		{
			name: "created status carries no page",
			resp: pageResponse{
				finalURL:    "http://example.com/submit",
				statusCode:  http.StatusCreated,
				contentType: "text/html",
			},
		},
		{
			name: "no content status",
			resp: pageResponse{
				finalURL:   "http://example.com/ping",
				statusCode: http.StatusNoContent,
			},
		},
		{
			name: "json payload",
			resp: pageResponse{
				finalURL:    "http://example.com/api",
				statusCode:  http.StatusOK,
				contentType: "application/json",
				body:        []byte(`{}`),
			},
		},
		{
			name: "missing content type",
			resp: pageResponse{
				finalURL:   "http://example.com/raw",
				statusCode: http.StatusOK,
				body:       []byte("<html></html>"),
			},
		},
		{
			name: "hash failure leaves hash empty",
			resp: pageResponse{
				finalURL:    "http://example.com/",
				statusCode:  http.StatusOK,
				contentType: "text/html",
				body:        []byte("<html></html>"),
			},
			hasher: stubHasher{err: errors.New("digest backend down")},
			ok:     true,
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			f := New(Config{}, tc.hasher, nil)
			result, ok := f.page("http://example.com/start", tc.resp, 5*time.Millisecond)
			if ok != tc.ok {
				t.Fatalf("expected ok=%v, got %v (result %+v)", tc.ok, ok, result)
			}
			if !ok {
				return
			}
			if result.FinalURL != tc.resp.finalURL {
				t.Fatalf("expected final url %q, got %q", tc.resp.finalURL, result.FinalURL)
			}
			if result.Body != string(tc.resp.body) {
				t.Fatalf("unexpected body %q", result.Body)
			}
			if result.BodyHash != tc.hash {
				t.Fatalf("expected body hash %q, got %q", tc.hash, result.BodyHash)
			}
			if result.Duration != 5*time.Millisecond {
				t.Fatalf("expected duration recorded, got %v", result.Duration)
			}
		})
	}
}

func TestPageFinalURLFallback(t *testing.T) {
	t.Parallel()

	f := New(Config{}, nil, nil)
	resp := pageResponse{
		statusCode:  http.StatusOK,
		contentType: "text/html",
		body:        []byte("<html></html>"),
	}
	result, ok := f.page("http://example.com/requested", resp, time.Millisecond)
	if !ok {
		t.Fatal("expected usable page")
	}
	if result.FinalURL != "http://example.com/requested" {
		t.Fatalf("expected requested url fallback, got %q", result.FinalURL)
	}
	if result.BodyHash != "" {
		t.Fatalf("expected empty hash without hasher, got %q", result.BodyHash)
	}
}

func TestHTMLContent(t *testing.T) {
	t.Parallel()

	cases := []struct {
		contentType string
		want        bool
	}{
		{"text/html", true},
		{"text/html; charset=utf-8", true},
		{"TEXT/HTML", true},
		{"application/json", false},
		{"application/xhtml+xml", false},
		{"text/plain", false},
		{"", false},
		{";;;", false},
	}
	for _, tc := range cases {
		if got := htmlContent(tc.contentType); got != tc.want {
			t.Fatalf("htmlContent(%q) = %v, want %v", tc.contentType, got, tc.want)
		}
	}
}

func TestFetchCancelledContext(t *testing.T) {
	t.Parallel()

	f := New(Config{Timeout: time.Second}, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, ok := f.Fetch(ctx, "http://192.0.2.1/"); ok {
		t.Fatal("expected canceled fetch to be unusable")
	}
}

func TestFetchRejectsBadURL(t *testing.T) {
	t.Parallel()

	f := New(Config{Timeout: time.Second}, nil, nil)
	if _, ok := f.Fetch(context.Background(), "not a url"); ok {
		t.Fatal("expected malformed url to be unusable")
	}
}

func mustParseURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("failed to parse url %q: %v", raw, err)
	}
	return u
}

type stubHasher struct {
	digest string
	err    error
}

func (s stubHasher) Hash([]byte) (string, error) {
	return s.digest, s.err
}

type stubHooks struct {
	onRequest  colly.RequestCallback
	onResponse colly.ResponseCallback
	onError    colly.ErrorCallback
}

func (s *stubHooks) OnRequest(cb colly.RequestCallback) {
	s.onRequest = cb
}

func (s *stubHooks) OnResponse(cb colly.ResponseCallback) {
	s.onResponse = cb
}

func (s *stubHooks) OnError(cb colly.ErrorCallback) {
	s.onError = cb
}
