package app

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"tabbacklog/pkg/domain"
)

var twitterHosts = map[string]bool{
	"twitter.com":        true,
	"www.twitter.com":    true,
	"mobile.twitter.com": true,
	"x.com":              true,
	"www.x.com":          true,
}

// TwitterParser extracts post content from Twitter/X status pages. The site
// renders everything client-side, but serves og: meta tags for link previews;
// those carry the post text and author.
type TwitterParser struct{}

func NewTwitterParser() *TwitterParser { return &TwitterParser{} }

func (*TwitterParser) Name() string { return "twitter" }

func (*TwitterParser) Match(rawURL, _ string) bool {
	if !twitterHosts[extractDomain(rawURL)] {
		return false
	}
	path, _ := urlPathQuery(rawURL)
	return strings.Contains(path, "/status/")
}

func (p *TwitterParser) Parse(rawURL string, body []byte) (domain.ParsedPage, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return domain.ParsedPage{}, err
	}

	title := metaContent(doc, `meta[property="og:title"]`)
	if title == "" {
		title = metaContent(doc, `meta[name="twitter:title"]`)
	}
	if title == "" {
		raw := strings.TrimSpace(doc.Find("title").First().Text())
		raw = strings.ReplaceAll(raw, " / X", "")
		title = strings.ReplaceAll(raw, " / Twitter", "")
	}

	text := metaContent(doc, `meta[property="og:description"]`)
	if text == "" {
		text = metaContent(doc, `meta[name="twitter:description"]`)
	}
	if text == "" {
		text = metaContent(doc, `meta[name="description"]`)
	}
	// The preview description wraps the post text in curly or straight quotes.
	text = strings.Trim(text, "“”\"")
	if text == "" {
		text = title
	}

	meta := domain.Meta{
		"url":    rawURL,
		"domain": extractDomain(rawURL),
	}
	if author := postAuthor(rawURL, title); author != "" {
		meta["author"] = author
	}
	if image := metaContent(doc, `meta[property="og:image"]`); image != "" {
		meta["image"] = image
	}

	return domain.ParsedPage{
		SiteKind:  "twitter",
		Title:     title,
		TextFull:  text,
		WordCount: countWords(text),
		Metadata:  meta,
	}, nil
}

// postAuthor takes the handle from the URL path ("/user/status/123") and
// falls back to the "Name on X" title format.
func postAuthor(rawURL, title string) string {
	path, _ := urlPathQuery(rawURL)
	parts := strings.Split(strings.TrimPrefix(path, "/"), "/")
	if len(parts) >= 3 && parts[1] == "status" && parts[0] != "" {
		return "@" + parts[0]
	}
	if idx := strings.Index(title, " on X"); idx > 0 {
		return title[:idx]
	}
	return ""
}
