package app

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

const youtubePage = `<html><head>
<title>Go Concurrency Patterns - YouTube</title>
<meta property="og:title" content="Go Concurrency Patterns">
<meta property="og:description" content="Rob Pike talks about concurrency patterns in Go.">
<meta property="og:image" content="https://i.ytimg.com/vi/f6kdp27TYZs/maxresdefault.jpg">
<meta itemprop="duration" content="PT51M27S">
<meta itemprop="interactionCount" content="1000000">
<meta itemprop="uploadDate" content="2012-07-10">
</head><body></body></html>`

const tweetPage = `<html><head>
<title>Jane Doe on X</title>
<meta property="og:title" content="Jane Doe on X">
<meta property="og:description" content="&#8220;Shipping the new release today. Threads below.&#8221;">
</head><body></body></html>`

const articlePage = `<html><head>
<title>Understanding B-Trees | Some Blog</title>
<meta name="description" content="A walkthrough of B-tree internals.">
</head><body>
<nav>Home About Contact</nav>
<article>
<h1>Understanding B-Trees</h1>
<p>B-trees are balanced search trees designed for systems that read and write large blocks of data. They are commonly used in databases and file systems to keep related data close together on disk.</p>
<p>Unlike binary search trees, each node in a B-tree can hold many keys, which keeps the tree shallow and reduces the number of disk seeks required to find a key.</p>
</article>
<footer>Copyright</footer>
</body></html>`

func TestRegistryMatchOrder(t *testing.T) {
	registry := NewDefaultRegistry()
	tests := []struct {
		url         string
		contentType string
		want        string
	}{
		{"https://www.youtube.com/watch?v=f6kdp27TYZs", "text/html", "youtube"},
		{"https://youtu.be/f6kdp27TYZs", "text/html", "youtube"},
		{"https://x.com/someone/status/123456", "text/html", "twitter"},
		{"https://twitter.com/someone/status/123456", "text/html", "twitter"},
		{"https://x.com/someone", "text/html", "generic_html"},
		{"https://arxiv.org/pdf/2301.00001.pdf", "text/html", "pdf"},
		{"https://example.com/doc", "application/pdf", "pdf"},
		{"https://example.com/post", "text/html", "generic_html"},
	}
	for _, tt := range tests {
		parser, ok := registry.Find(tt.url, tt.contentType)
		if !ok {
			t.Fatalf("no parser for %s", tt.url)
		}
		if parser.Name() != tt.want {
			t.Errorf("Find(%s) = %s, want %s", tt.url, parser.Name(), tt.want)
		}
	}
}

func TestYouTubeParser(t *testing.T) {
	page, err := NewYouTubeParser().Parse("https://www.youtube.com/watch?v=f6kdp27TYZs", []byte(youtubePage))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if page.SiteKind != "youtube" {
		t.Errorf("site kind = %s", page.SiteKind)
	}
	if page.Title != "Go Concurrency Patterns" {
		t.Errorf("title = %q", page.Title)
	}
	if page.VideoSeconds != 51*60+27 {
		t.Errorf("video seconds = %d, want %d", page.VideoSeconds, 51*60+27)
	}
	if page.WordCount == 0 {
		t.Error("word count should not be zero")
	}
	if page.Metadata.GetString("video_id") != "f6kdp27TYZs" {
		t.Errorf("video_id = %q", page.Metadata.GetString("video_id"))
	}
	if vc, _ := page.Metadata.GetInt("view_count"); vc != 1000000 {
		t.Errorf("view_count = %d", vc)
	}
}

func TestYouTubeVideoID(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://www.youtube.com/watch?v=abc123", "abc123"},
		{"https://youtu.be/abc123", "abc123"},
		{"https://www.youtube.com/shorts/xyz789", "xyz789"},
		{"https://www.youtube.com/embed/xyz789", "xyz789"},
		{"https://www.youtube.com/feed/subscriptions", ""},
	}
	for _, tt := range tests {
		if got := youtubeVideoID(tt.url); got != tt.want {
			t.Errorf("youtubeVideoID(%s) = %q, want %q", tt.url, got, tt.want)
		}
	}
}

func TestTwitterParser(t *testing.T) {
	page, err := NewTwitterParser().Parse("https://x.com/janedoe/status/12345", []byte(tweetPage))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if page.SiteKind != "twitter" {
		t.Errorf("site kind = %s", page.SiteKind)
	}
	if page.TextFull != "Shipping the new release today. Threads below." {
		t.Errorf("text = %q", page.TextFull)
	}
	if page.Metadata.GetString("author") != "@janedoe" {
		t.Errorf("author = %q", page.Metadata.GetString("author"))
	}
}

func TestGenericParserExtractsArticle(t *testing.T) {
	page, err := NewGenericParser().Parse("https://someblog.example.com/btrees", []byte(articlePage))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if page.SiteKind != "generic_html" {
		t.Errorf("site kind = %s", page.SiteKind)
	}
	if page.Title != "Understanding B-Trees" {
		t.Errorf("title = %q", page.Title)
	}
	if page.WordCount < 40 {
		t.Errorf("word count = %d, want article body extracted", page.WordCount)
	}
	if got := page.Metadata.GetString("language"); got != "en" {
		t.Errorf("language = %q, want en", got)
	}
	if got := page.Metadata.GetString("domain"); got != "someblog.example.com" {
		t.Errorf("domain = %q", got)
	}
}

func TestParseISODuration(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"PT51M27S", 51*60 + 27},
		{"PT1H2M3S", 3600 + 120 + 3},
		{"PT45S", 45},
		{"PT2H", 7200},
		{"", 0},
		{"bogus", 0},
	}
	for _, tt := range tests {
		if got := parseISODuration(tt.in); got != tt.want {
			t.Errorf("parseISODuration(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestFetchParse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(articlePage))
	}))
	defer srv.Close()

	a := New(Config{})
	result, err := a.FetchParse(context.Background(), srv.URL+"/btrees", "tab-1")
	if err != nil {
		t.Fatalf("FetchParse: %v", err)
	}
	if result.Page.SiteKind != "generic_html" {
		t.Errorf("site kind = %s", result.Page.SiteKind)
	}
	if result.Page.WordCount == 0 {
		t.Error("word count should not be zero")
	}
}

func TestFetchParseReportsHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer srv.Close()

	a := New(Config{})
	_, err := a.FetchParse(context.Background(), srv.URL, "")
	if err == nil {
		t.Fatal("expected error for 410 response")
	}
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) || fetchErr.StatusCode != http.StatusGone {
		t.Fatalf("err = %v", err)
	}
}

func TestFetchParseRejectsNonHTTP(t *testing.T) {
	a := New(Config{})
	if _, err := a.FetchParse(context.Background(), "ftp://example.com/file", ""); err == nil {
		t.Fatal("expected error for non-http url")
	}
}
