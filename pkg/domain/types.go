package domain

import "time"

// TabStatus is the processing state of a tab record. The pipeline moves every
// tab through new -> fetch_pending -> parsed -> llm_pending -> enriched, with
// fetch_error / llm_error as terminal-unless-reset failure states.
type TabStatus string

const (
	StatusNew          TabStatus = "new"
	StatusFetchPending TabStatus = "fetch_pending"
	StatusParsed       TabStatus = "parsed"
	StatusFetchError   TabStatus = "fetch_error"
	StatusLLMPending   TabStatus = "llm_pending"
	StatusEnriched     TabStatus = "enriched"
	StatusLLMError     TabStatus = "llm_error"
)

// Valid reports whether s is one of the seven defined statuses.
func (s TabStatus) Valid() bool {
	switch s {
	case StatusNew, StatusFetchPending, StatusParsed, StatusFetchError,
		StatusLLMPending, StatusEnriched, StatusLLMError:
		return true
	}
	return false
}

type ContentType string

const (
	ContentArticle   ContentType = "article"
	ContentVideo     ContentType = "video"
	ContentPaper     ContentType = "paper"
	ContentCodeRepo  ContentType = "code_repo"
	ContentReference ContentType = "reference"
	ContentMisc      ContentType = "misc"
)

func (c ContentType) Valid() bool {
	switch c {
	case ContentArticle, ContentVideo, ContentPaper, ContentCodeRepo, ContentReference, ContentMisc:
		return true
	}
	return false
}

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// TagKind distinguishes where a tag came from.
type TagKind string

const (
	TagUser    TagKind = "user"
	TagProject TagKind = "project"
	TagAuto    TagKind = "auto"
)

// Tab is one saved browser tab, unique per (owner, url) among non-deleted rows.
type Tab struct {
	ID          string     `json:"id"`
	OwnerID     string     `json:"ownerId"`
	URL         string     `json:"url"`
	PageTitle   string     `json:"pageTitle,omitempty"`
	WindowLabel string     `json:"windowLabel,omitempty"`
	CollectedAt time.Time  `json:"collectedAt"`
	Status      TabStatus  `json:"status"`
	LastError   string     `json:"lastError,omitempty"`
	ErrorAt     *time.Time `json:"errorAt,omitempty"`
	IsProcessed bool       `json:"isProcessed"`
	ProcessedAt *time.Time `json:"processedAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	DeletedAt   *time.Time `json:"-"`
}

// ParsedPage is what the parser collaborator returns for a URL.
type ParsedPage struct {
	SiteKind     string `json:"site_kind"`
	Title        string `json:"title,omitempty"`
	TextFull     string `json:"text_full,omitempty"`
	WordCount    int    `json:"word_count,omitempty"`
	VideoSeconds int    `json:"video_seconds,omitempty"`
	Metadata     Meta   `json:"metadata,omitempty"`
}

// ParsedContent is the stored parse result, at most one per tab.
type ParsedContent struct {
	TabID string `json:"tabId"`
	ParsedPage
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Enrichment is the structured output of the enrichment collaborator.
type Enrichment struct {
	Summary     string      `json:"summary"`
	ContentType ContentType `json:"content_type"`
	Tags        []string    `json:"tags,omitempty"`
	Projects    []string    `json:"projects,omitempty"`
	EstReadMin  int         `json:"est_read_min,omitempty"`
	Priority    Priority    `json:"priority,omitempty"`
}

// EnrichmentRecord is the current enrichment for a tab, at most one per tab.
type EnrichmentRecord struct {
	TabID string `json:"tabId"`
	Enrichment
	ModelName string    `json:"modelName"`
	RawMeta   Meta      `json:"rawMeta,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// EnrichmentAttempt is one append-only audit entry per enrichment run,
// recorded for failures as well as successes.
type EnrichmentAttempt struct {
	ID         string    `json:"id"`
	TabID      string    `json:"tabId"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
	Succeeded  bool      `json:"succeeded"`
	Enrichment
	ModelName    string `json:"modelName,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
	RawMeta      Meta   `json:"rawMeta,omitempty"`
}

// Tag is an owner-scoped label, unique per (owner, name) among non-deleted tags.
type Tag struct {
	ID        string     `json:"id"`
	OwnerID   string     `json:"ownerId"`
	Name      string     `json:"name"`
	Kind      TagKind    `json:"kind"`
	CreatedAt time.Time  `json:"createdAt"`
	DeletedAt *time.Time `json:"-"`
}

// Embedding is the similarity-search vector for a tab, at most one per tab.
type Embedding struct {
	TabID     string    `json:"tabId"`
	Vector    []float32 `json:"-"`
	ModelName string    `json:"modelName"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Event types emitted by the pipeline and the UI. The set is extensible;
// consumers must tolerate unknown types.
const (
	EventTabCreated          = "tab_created"
	EventTabDuplicateSkipped = "tab_duplicate_skipped"
	EventFetchClaimed        = "fetch_claimed"
	EventFetchSuccess        = "fetch_success"
	EventFetchError          = "fetch_error"
	EventLLMClaimed          = "llm_claimed"
	EventLLMEnrichSuccess    = "llm_enrich_success"
	EventLLMEnrichError      = "llm_enrich_error"
	EventTabProcessed        = "tab_processed"
	EventTabUnprocessed      = "tab_unprocessed"
	EventTabReset            = "tab_reset"
	EventTabDeleted          = "tab_deleted"
	EventEmbeddingSaved      = "embedding_saved"
)

// Event is one append-only audit log entry.
type Event struct {
	ID         string    `json:"id"`
	OwnerID    string    `json:"ownerId"`
	Type       string    `json:"type"`
	EntityType string    `json:"entityType,omitempty"`
	EntityID   string    `json:"entityId,omitempty"`
	Details    Meta      `json:"details,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// TabDetail is the joined read model the query layer serves: the tab plus its
// parse and enrichment side tables and resolved tag names.
type TabDetail struct {
	Tab
	SiteKind     string      `json:"siteKind,omitempty"`
	WordCount    int         `json:"wordCount,omitempty"`
	VideoSeconds int         `json:"videoSeconds,omitempty"`
	Summary      string      `json:"summary,omitempty"`
	ContentType  ContentType `json:"contentType,omitempty"`
	EstReadMin   int         `json:"estReadMin,omitempty"`
	Priority     Priority    `json:"priority,omitempty"`
	Tags         []string    `json:"tags,omitempty"`
	Projects     []string    `json:"projects,omitempty"`
	Similarity   float64     `json:"similarity,omitempty"`
}

// TabFilters narrows the tab list endpoint.
type TabFilters struct {
	Status      TabStatus
	Processed   *bool
	ContentType ContentType
	ReadTimeMax int
	Search      string
	Project     string
	Page        int
	PerPage     int
}

// TabPage is one page of filtered results.
type TabPage struct {
	Tabs       []TabDetail `json:"tabs"`
	Total      int         `json:"total"`
	Page       int         `json:"page"`
	PerPage    int         `json:"perPage"`
	TotalPages int         `json:"totalPages"`
}

// FilterOptions feeds the UI filter dropdowns.
type FilterOptions struct {
	Statuses     []TabStatus   `json:"statuses"`
	ContentTypes []ContentType `json:"contentTypes"`
	Total        int           `json:"total"`
	Processed    int           `json:"processed"`
	Unprocessed  int           `json:"unprocessed"`
}
