package store

import (
	"errors"

	"tabbacklog/pkg/domain"
)

// ErrStatusConflict is returned by pipeline writes when the tab is not in the
// status the write requires. Callers treat it as "someone else already moved
// this record": log it, skip the record, never coerce the status.
var ErrStatusConflict = errors.New("tab is not in the expected status")

// ErrInvalidTransition is returned when a claim or reset names a transition
// the status machine does not define.
var ErrInvalidTransition = errors.New("illegal status transition")

// Store defines persistence for tabs, their parse/enrichment side tables,
// tags, embeddings, and the append-only event log. Pipeline writes
// (ClaimBatch, CompleteFetch, FailFetch, CompleteEnrichment, FailEnrichment)
// each run as a single transaction covering the status change, the side-table
// write, and exactly one event entry.
type Store interface {
	// tabs
	CreateTab(tab domain.Tab) (domain.Tab, bool, error)
	GetTab(ownerID, id string) (domain.Tab, bool, error)
	SoftDeleteTab(ownerID, id string) (bool, error)
	SetProcessed(ownerID, id string, processed bool) (domain.Tab, bool, error)
	ResetTab(ownerID, id string) (domain.Tab, error)

	// pipeline
	ClaimBatch(ownerID string, from, to domain.TabStatus, limit int) ([]domain.Tab, error)
	CompleteFetch(tabID string, page domain.ParsedPage, detail domain.Meta) error
	FailFetch(tabID, message string, detail domain.Meta) error
	CompleteEnrichment(tabID string, rec domain.EnrichmentRecord, attempt domain.EnrichmentAttempt) error
	FailEnrichment(tabID, message string, attempt domain.EnrichmentAttempt, detail domain.Meta) error

	// side tables
	GetParsedContent(tabID string) (domain.ParsedContent, bool, error)
	GetEnrichment(tabID string) (domain.EnrichmentRecord, bool, error)
	ListEnrichmentHistory(tabID string) ([]domain.EnrichmentAttempt, error)

	// tags
	FindOrCreateTag(ownerID, name string, kind domain.TagKind) (domain.Tag, error)
	ListTabTags(tabID string) ([]domain.Tag, error)

	// query layer
	ListTabs(ownerID string, filters domain.TabFilters) (domain.TabPage, error)
	GetTabDetail(ownerID, id string) (domain.TabDetail, bool, error)
	ListTabsForExport(ownerID string, ids []string) ([]domain.TabDetail, error)
	FilterOptions(ownerID string) (domain.FilterOptions, error)

	// embeddings
	SaveEmbedding(tabID string, vector []float32, modelName string) error
	SemanticSearch(ownerID string, vector []float32, limit int) ([]domain.TabDetail, error)
	ListTabsWithoutEmbedding(ownerID string, limit int) ([]domain.Tab, error)

	// events
	AppendEvent(event domain.Event) error
	ListEvents(ownerID string, limit int) ([]domain.Event, error)
}

// claimEventType maps a lease target status to its audit event type.
func claimEventType(to domain.TabStatus) (string, bool) {
	switch to {
	case domain.StatusFetchPending:
		return domain.EventFetchClaimed, true
	case domain.StatusLLMPending:
		return domain.EventLLMClaimed, true
	}
	return "", false
}

// legalClaim reports whether (from, to) is one of the two batch-selection
// transitions the status machine defines.
func legalClaim(from, to domain.TabStatus) bool {
	return (from == domain.StatusNew && to == domain.StatusFetchPending) ||
		(from == domain.StatusParsed && to == domain.StatusLLMPending)
}

// resetTarget returns the status a reset moves an error state back to.
func resetTarget(from domain.TabStatus) (domain.TabStatus, bool) {
	switch from {
	case domain.StatusFetchError:
		return domain.StatusNew, true
	case domain.StatusLLMError:
		return domain.StatusParsed, true
	}
	return "", false
}
