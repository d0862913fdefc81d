package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"tabbacklog/pkg/ai"
	"tabbacklog/pkg/domain"
	"tabbacklog/pkg/store"
)

// ErrNotFound marks lookups for tabs the owner does not have.
var ErrNotFound = errors.New("tab not found")

// Config wires the query layer's collaborators. Embedder may be nil, which
// disables semantic search.
type Config struct {
	Store    store.Store
	Embedder ai.Embedder
}

// App serves the read side plus the light mutations the UI needs.
type App struct {
	store    store.Store
	embedder ai.Embedder
}

func New(cfg Config) (*App, error) {
	if cfg.Store == nil {
		return nil, errors.New("store required")
	}
	return &App{store: cfg.Store, embedder: cfg.Embedder}, nil
}

// ListTabs returns one filtered page.
func (a *App) ListTabs(ownerID string, filters domain.TabFilters) (domain.TabPage, error) {
	return a.store.ListTabs(ownerID, filters)
}

// GetTabDetail returns the joined read model for one tab.
func (a *App) GetTabDetail(ownerID, id string) (domain.TabDetail, error) {
	detail, ok, err := a.store.GetTabDetail(ownerID, id)
	if err != nil {
		return domain.TabDetail{}, err
	}
	if !ok {
		return domain.TabDetail{}, ErrNotFound
	}
	return detail, nil
}

// SetProcessed flips the manual done flag.
func (a *App) SetProcessed(ownerID, id string, processed bool) (domain.Tab, error) {
	tab, ok, err := a.store.SetProcessed(ownerID, id, processed)
	if err != nil {
		return domain.Tab{}, err
	}
	if !ok {
		return domain.Tab{}, ErrNotFound
	}
	return tab, nil
}

// DeleteTab soft-deletes; the URL can be re-added afterwards.
func (a *App) DeleteTab(ownerID, id string) error {
	ok, err := a.store.SoftDeleteTab(ownerID, id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

// FilterOptions feeds the filter dropdowns and counters.
func (a *App) FilterOptions(ownerID string) (domain.FilterOptions, error) {
	return a.store.FilterOptions(ownerID)
}

// ListEvents returns the most recent pipeline events, newest first.
func (a *App) ListEvents(ownerID string, limit int) ([]domain.Event, error) {
	return a.store.ListEvents(ownerID, limit)
}

// SemanticSearch embeds the query and ranks stored vectors by cosine
// distance.
func (a *App) SemanticSearch(ctx context.Context, ownerID, query string, limit int) ([]domain.TabDetail, error) {
	if a.embedder == nil {
		return nil, errors.New("semantic search is not configured")
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.New("query required")
	}
	vector, err := a.embedder.EmbedText(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return a.store.SemanticSearch(ownerID, vector, limit)
}

// SemanticSearchEnabled reports whether an embedder is configured.
func (a *App) SemanticSearchEnabled() bool { return a.embedder != nil }

// Export renders the selected tabs (or all, when ids is empty) in the named
// format.
func (a *App) Export(ownerID string, ids []string, format ExportFormat) ([]byte, string, error) {
	tabs, err := a.store.ListTabsForExport(ownerID, ids)
	if err != nil {
		return nil, "", err
	}
	return renderExport(tabs, format)
}
