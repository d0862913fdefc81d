package app

import (
	"bytes"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"github.com/pemistahl/lingua-go"

	"tabbacklog/internal/util"
	"tabbacklog/pkg/domain"
)

var whitespaceRe = regexp.MustCompile(`\s+`)

// GenericParser is the catch-all for plain web pages. Readability distills
// the main article content; meta tags fill in author/description/site data;
// lingua guesses the language of the extracted text.
type GenericParser struct {
	detector lingua.LanguageDetector
}

func NewGenericParser() *GenericParser {
	detector := lingua.NewLanguageDetectorBuilder().
		FromLanguages(
			lingua.English, lingua.German, lingua.French, lingua.Spanish,
			lingua.Portuguese, lingua.Italian, lingua.Dutch, lingua.Russian,
			lingua.Japanese, lingua.Chinese, lingua.Korean,
		).
		Build()
	return &GenericParser{detector: detector}
}

func (*GenericParser) Name() string { return "generic_html" }

// Match accepts every http(s) URL; register this parser last.
func (*GenericParser) Match(rawURL, _ string) bool {
	return strings.HasPrefix(rawURL, "http://") || strings.HasPrefix(rawURL, "https://")
}

func (p *GenericParser) Parse(rawURL string, body []byte) (domain.ParsedPage, error) {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return domain.ParsedPage{}, err
	}
	reader := readability.NewParser()
	article, err := reader.Parse(bytes.NewReader(body), parsedURL)
	if err != nil {
		return p.parseFallback(rawURL, body)
	}

	text := normalizeText(article.TextContent)
	title := cleanTitle(article.Title)
	meta := domain.Meta{
		"url":    rawURL,
		"domain": extractDomain(rawURL),
	}
	if article.Byline != "" {
		meta["author"] = article.Byline
	}
	if article.Excerpt != "" {
		meta["description"] = normalizeText(article.Excerpt)
	}
	if article.SiteName != "" {
		meta["site_name"] = article.SiteName
	}
	if article.Image != "" {
		meta["image"] = article.Image
	}
	if lang := p.detectLanguage(text); lang != "" {
		meta["language"] = lang
	}

	return domain.ParsedPage{
		SiteKind:  "generic_html",
		Title:     title,
		TextFull:  text,
		WordCount: countWords(text),
		Metadata:  meta,
	}, nil
}

// parseFallback handles pages readability rejects (no article-like content):
// take the title and whatever paragraph text exists.
func (p *GenericParser) parseFallback(rawURL string, body []byte) (domain.ParsedPage, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return domain.ParsedPage{}, err
	}
	doc.Find("script, style, nav, header, footer, aside, noscript, iframe, form, svg").Remove()

	title := cleanTitle(strings.TrimSpace(doc.Find("title").First().Text()))
	if title == "" {
		title = strings.TrimSpace(doc.Find("h1").First().Text())
	}

	var paragraphs []string
	doc.Find("p, li, h1, h2, h3, h4, h5, h6").Each(func(_ int, s *goquery.Selection) {
		text := normalizeText(s.Text())
		if len(text) > 20 {
			paragraphs = append(paragraphs, text)
		}
	})
	text := strings.Join(paragraphs, "\n\n")
	if text == "" {
		text = normalizeText(doc.Find("body").Text())
	}

	meta := domain.Meta{
		"url":    rawURL,
		"domain": extractDomain(rawURL),
	}
	if description := metaContent(doc, `meta[name="description"]`); description != "" {
		meta["description"] = description
	}
	if lang := p.detectLanguage(text); lang != "" {
		meta["language"] = lang
	}

	return domain.ParsedPage{
		SiteKind:  "generic_html",
		Title:     title,
		TextFull:  text,
		WordCount: countWords(text),
		Metadata:  meta,
	}, nil
}

func (p *GenericParser) detectLanguage(text string) string {
	if len(text) < 40 {
		return ""
	}
	if len(text) > 2000 {
		text = util.TruncateUTF8(text, 2000)
	}
	language, ok := p.detector.DetectLanguageOf(text)
	if !ok {
		return ""
	}
	return strings.ToLower(language.IsoCode639_1().String())
}

func normalizeText(text string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(text, " "))
}

// cleanTitle drops "| Site Name" style suffixes when the leading part is
// substantial on its own.
func cleanTitle(title string) string {
	title = strings.TrimSpace(title)
	for _, sep := range []string{" | ", " - ", " – ", " — ", " :: "} {
		if idx := strings.Index(title, sep); idx > 10 {
			return strings.TrimSpace(title[:idx])
		}
	}
	return title
}
