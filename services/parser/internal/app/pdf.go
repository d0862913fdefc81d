package app

import (
	"bytes"
	"fmt"
	"path"
	"strings"

	"github.com/ledongthuc/pdf"

	"tabbacklog/pkg/domain"
)

// PDFParser extracts text from PDF documents, matched by content type or a
// .pdf path suffix.
type PDFParser struct{}

func NewPDFParser() *PDFParser { return &PDFParser{} }

func (*PDFParser) Name() string { return "pdf" }

func (*PDFParser) Match(rawURL, contentType string) bool {
	if strings.Contains(strings.ToLower(contentType), "application/pdf") {
		return true
	}
	urlPath, _ := urlPathQuery(rawURL)
	return strings.EqualFold(path.Ext(urlPath), ".pdf")
}

func (p *PDFParser) Parse(rawURL string, body []byte) (domain.ParsedPage, error) {
	reader, err := pdf.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return domain.ParsedPage{}, fmt.Errorf("open pdf: %w", err)
	}
	plain, err := reader.GetPlainText()
	if err != nil {
		return domain.ParsedPage{}, fmt.Errorf("extract pdf text: %w", err)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(plain); err != nil {
		return domain.ParsedPage{}, fmt.Errorf("extract pdf text: %w", err)
	}
	text := strings.TrimSpace(buf.String())

	title := pdfTitle(reader)
	if title == "" {
		urlPath, _ := urlPathQuery(rawURL)
		title = strings.TrimSuffix(path.Base(urlPath), path.Ext(urlPath))
	}

	meta := domain.Meta{
		"url":        rawURL,
		"page_count": reader.NumPage(),
	}

	return domain.ParsedPage{
		SiteKind:  "pdf",
		Title:     title,
		TextFull:  text,
		WordCount: countWords(text),
		Metadata:  meta,
	}, nil
}

func pdfTitle(reader *pdf.Reader) string {
	defer func() { recover() }()
	info := reader.Trailer().Key("Info")
	if info.IsNull() {
		return ""
	}
	return strings.TrimSpace(info.Key("Title").Text())
}
