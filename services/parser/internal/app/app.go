package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"tabbacklog/pkg/domain"
	"tabbacklog/pkg/storage"
)

// Config holds runtime configuration.
type Config struct {
	FetchTimeout time.Duration
	Registry     *Registry
	Snapshots    storage.SnapshotStore
}

// App fetches pages and runs them through the site parser registry.
type App struct {
	registry  *Registry
	fetcher   *Fetcher
	snapshots storage.SnapshotStore
}

// ParseResult is a parsed page plus the snapshot key when the raw body was
// archived.
type ParseResult struct {
	Page        domain.ParsedPage `json:"page"`
	SnapshotKey string            `json:"snapshotKey,omitempty"`
}

func New(cfg Config) *App {
	registry := cfg.Registry
	if registry == nil {
		registry = NewDefaultRegistry()
	}
	snapshots := cfg.Snapshots
	if snapshots == nil {
		snapshots = storage.NopSnapshotStore{}
	}
	return &App{
		registry:  registry,
		fetcher:   NewFetcher(cfg.FetchTimeout),
		snapshots: snapshots,
	}
}

// FetchParse downloads a URL and parses it with the matching site parser.
// When a tabID is given the raw body is archived as a snapshot; snapshot
// failures are logged, not fatal.
func (a *App) FetchParse(ctx context.Context, rawURL, tabID string) (ParseResult, error) {
	rawURL = strings.TrimSpace(rawURL)
	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		return ParseResult{}, fmt.Errorf("url must be http(s): %q", rawURL)
	}
	body, contentType, err := a.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		return ParseResult{}, err
	}
	result := ParseResult{}
	if tabID != "" {
		key, err := a.snapshots.SaveSnapshot(ctx, tabID, body, contentType)
		if err != nil {
			slog.Warn("snapshot save failed", "tab_id", tabID, "err", err)
		} else {
			result.SnapshotKey = key
		}
	}
	page, err := a.parse(rawURL, contentType, body)
	if err != nil {
		return ParseResult{}, err
	}
	result.Page = page
	return result, nil
}

// ParseHTML parses already-fetched HTML, for callers that fetched the page
// themselves (e.g. a browser extension posting the live DOM).
func (a *App) ParseHTML(rawURL, html string) (domain.ParsedPage, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return domain.ParsedPage{}, fmt.Errorf("url required")
	}
	if strings.TrimSpace(html) == "" {
		return domain.ParsedPage{}, fmt.Errorf("html content required")
	}
	return a.parse(rawURL, "text/html", []byte(html))
}

// ParserNames lists registered parsers in match order.
func (a *App) ParserNames() []string {
	return a.registry.Names()
}

func (a *App) parse(rawURL, contentType string, body []byte) (domain.ParsedPage, error) {
	parser, ok := a.registry.Find(rawURL, contentType)
	if !ok {
		return domain.ParsedPage{}, fmt.Errorf("no parser matches %q", rawURL)
	}
	page, err := parser.Parse(rawURL, body)
	if err != nil {
		return domain.ParsedPage{}, fmt.Errorf("%s parse: %w", parser.Name(), err)
	}
	return page, nil
}
