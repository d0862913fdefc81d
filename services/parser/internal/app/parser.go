package app

import (
	"net/url"
	"strings"

	"tabbacklog/pkg/domain"
)

// SiteParser extracts structured content from a fetched page. Match decides
// whether this parser handles the URL; the registry asks parsers in
// registration order and uses the first match.
type SiteParser interface {
	Name() string
	Match(rawURL string, contentType string) bool
	Parse(rawURL string, body []byte) (domain.ParsedPage, error)
}

// Registry holds site parsers in order of specificity. The generic HTML
// parser is registered last as the catch-all.
type Registry struct {
	parsers []SiteParser
}

// NewDefaultRegistry returns a registry with all built-in parsers.
func NewDefaultRegistry() *Registry {
	r := &Registry{}
	r.Register(NewYouTubeParser())
	r.Register(NewTwitterParser())
	r.Register(NewPDFParser())
	r.Register(NewGenericParser())
	return r
}

func (r *Registry) Register(p SiteParser) {
	r.parsers = append(r.parsers, p)
}

// Find returns the first parser matching the URL and content type.
func (r *Registry) Find(rawURL, contentType string) (SiteParser, bool) {
	for _, p := range r.parsers {
		if p.Match(rawURL, contentType) {
			return p, true
		}
	}
	return nil, false
}

// Names lists registered parsers in match order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.parsers))
	for _, p := range r.parsers {
		names = append(names, p.Name())
	}
	return names
}

func extractDomain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

func urlPathQuery(rawURL string) (string, url.Values) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", url.Values{}
	}
	return u.Path, u.Query()
}

func countWords(text string) int {
	return len(strings.Fields(text))
}
