package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"tabbacklog/pkg/domain"
	"tabbacklog/pkg/events"
	"tabbacklog/pkg/store"
)

// EmbeddingEnqueuer queues embedding backfill jobs for enriched tabs.
type EmbeddingEnqueuer interface {
	Enqueue(ctx context.Context, ownerID, tabID string) error
}

// Config wires the coordinator's collaborators. The fetch and enrich
// concurrency caps are independent: the model backend tolerates far less
// parallelism than page fetching does.
type Config struct {
	Store             store.Store
	Parser            ParserClient
	Enricher          EnrichClient
	Events            events.Publisher
	Embeddings        EmbeddingEnqueuer
	BatchSize         int
	FetchConcurrency  int
	EnrichConcurrency int
	StepTimeout       time.Duration
}

// App drives tabs through the pipeline: new -> fetch_pending -> parsed ->
// llm_pending -> enriched, one claimed batch at a time.
type App struct {
	store             store.Store
	parser            ParserClient
	enricher          EnrichClient
	events            events.Publisher
	embeddings        EmbeddingEnqueuer
	batchSize         int
	fetchConcurrency  int
	enrichConcurrency int
	stepTimeout       time.Duration
}

func New(cfg Config) (*App, error) {
	if cfg.Store == nil {
		return nil, errors.New("store required")
	}
	if cfg.Parser == nil || cfg.Enricher == nil {
		return nil, errors.New("parser and enrich clients required")
	}
	pub := cfg.Events
	if pub == nil {
		pub = events.NopPublisher{}
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 10
	}
	fetchConcurrency := cfg.FetchConcurrency
	if fetchConcurrency <= 0 {
		fetchConcurrency = 4
	}
	enrichConcurrency := cfg.EnrichConcurrency
	if enrichConcurrency <= 0 {
		enrichConcurrency = 2
	}
	stepTimeout := cfg.StepTimeout
	if stepTimeout <= 0 {
		stepTimeout = 2 * time.Minute
	}
	return &App{
		store:             cfg.Store,
		parser:            cfg.Parser,
		enricher:          cfg.Enricher,
		events:            pub,
		embeddings:        cfg.Embeddings,
		batchSize:         batchSize,
		fetchConcurrency:  fetchConcurrency,
		enrichConcurrency: enrichConcurrency,
		stepTimeout:       stepTimeout,
	}, nil
}

// BatchReport summarizes one pipeline run.
type BatchReport struct {
	Claimed   int `json:"claimed"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// RunFetchBatch claims up to batchSize new tabs and runs fetch+parse on each.
// Claiming is the lease: a tab moved to fetch_pending belongs to this run
// until it lands in parsed or fetch_error.
func (a *App) RunFetchBatch(ctx context.Context, ownerID string, limit int) (BatchReport, error) {
	if limit <= 0 || limit > a.batchSize {
		limit = a.batchSize
	}
	tabs, err := a.store.ClaimBatch(ownerID, domain.StatusNew, domain.StatusFetchPending, limit)
	if err != nil {
		return BatchReport{}, fmt.Errorf("claim fetch batch: %w", err)
	}
	return a.runBatch(ctx, tabs, a.fetchConcurrency, a.fetchOne)
}

// RunEnrichBatch claims up to batchSize parsed tabs and runs LLM enrichment
// on each.
func (a *App) RunEnrichBatch(ctx context.Context, ownerID string, limit int) (BatchReport, error) {
	if limit <= 0 || limit > a.batchSize {
		limit = a.batchSize
	}
	tabs, err := a.store.ClaimBatch(ownerID, domain.StatusParsed, domain.StatusLLMPending, limit)
	if err != nil {
		return BatchReport{}, fmt.Errorf("claim enrich batch: %w", err)
	}
	return a.runBatch(ctx, tabs, a.enrichConcurrency, a.enrichOne)
}

type stepFn func(ctx context.Context, tab domain.Tab) error

func (a *App) runBatch(ctx context.Context, tabs []domain.Tab, concurrency int, step stepFn) (BatchReport, error) {
	report := BatchReport{Claimed: len(tabs)}
	if len(tabs) == 0 {
		return report, nil
	}
	results := make([]error, len(tabs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, tab := range tabs {
		i, tab := i, tab
		g.Go(func() error {
			stepCtx, cancel := context.WithTimeout(gctx, a.stepTimeout)
			defer cancel()
			results[i] = step(stepCtx, tab)
			if isStoreFailure(results[i]) {
				return results[i]
			}
			return nil
		})
	}
	// A store failure aborts the run; per-tab fetch or model failures are
	// already recorded on the tab and only counted here.
	if err := g.Wait(); err != nil {
		return report, err
	}
	for _, err := range results {
		switch {
		case err == nil:
			report.Succeeded++
		case errors.Is(err, store.ErrStatusConflict):
			report.Skipped++
		default:
			report.Failed++
		}
	}
	return report, nil
}

// storeFailure wraps store errors so runBatch can tell them apart from step
// failures that were recorded on the tab.
type storeFailure struct{ err error }

func (f *storeFailure) Error() string { return f.err.Error() }
func (f *storeFailure) Unwrap() error { return f.err }

func isStoreFailure(err error) bool {
	var f *storeFailure
	return errors.As(err, &f) && !errors.Is(err, store.ErrStatusConflict)
}

func (a *App) fetchOne(ctx context.Context, tab domain.Tab) error {
	result, err := a.parser.FetchParse(ctx, tab.URL, tab.ID)
	if err != nil {
		detail := domain.Meta{"transient": isTransient(err)}
		if failErr := a.store.FailFetch(tab.ID, err.Error(), detail); failErr != nil {
			if errors.Is(failErr, store.ErrStatusConflict) {
				slog.Warn("fetch failure lost status race", "tabId", tab.ID)
				return failErr
			}
			return &storeFailure{failErr}
		}
		a.publish(ctx, tab.OwnerID, domain.EventFetchError, tab.ID)
		slog.Warn("fetch failed", "tabId", tab.ID, "url", tab.URL, "err", err)
		return err
	}
	detail := domain.Meta{}
	if result.SnapshotKey != "" {
		detail["snapshot_key"] = result.SnapshotKey
	}
	if err := a.store.CompleteFetch(tab.ID, result.Page, detail); err != nil {
		if errors.Is(err, store.ErrStatusConflict) {
			slog.Warn("fetch result lost status race", "tabId", tab.ID)
			return err
		}
		return &storeFailure{err}
	}
	a.publish(ctx, tab.OwnerID, domain.EventFetchSuccess, tab.ID)
	return nil
}

func (a *App) enrichOne(ctx context.Context, tab domain.Tab) error {
	content, ok, err := a.store.GetParsedContent(tab.ID)
	if err != nil {
		return &storeFailure{err}
	}
	if !ok {
		return a.recordEnrichFailure(ctx, tab, fmt.Errorf("no parsed content for tab"), "")
	}
	started := time.Now().UTC()
	result, err := a.enricher.EnrichTab(ctx, EnrichRequest{
		URL:          tab.URL,
		Title:        content.Title,
		SiteKind:     content.SiteKind,
		Text:         content.TextFull,
		WordCount:    content.WordCount,
		VideoSeconds: content.VideoSeconds,
	})
	if err != nil {
		return a.recordEnrichFailure(ctx, tab, err, upstreamBody(err))
	}
	rec := domain.EnrichmentRecord{
		TabID:      tab.ID,
		Enrichment: result.Enrichment,
		ModelName:  result.ModelName,
	}
	attempt := domain.EnrichmentAttempt{
		TabID:      tab.ID,
		StartedAt:  started,
		FinishedAt: time.Now().UTC(),
		Succeeded:  true,
		Enrichment: result.Enrichment,
		ModelName:  result.ModelName,
	}
	if err := a.store.CompleteEnrichment(tab.ID, rec, attempt); err != nil {
		if errors.Is(err, store.ErrStatusConflict) {
			slog.Warn("enrichment result lost status race", "tabId", tab.ID)
			return err
		}
		return &storeFailure{err}
	}
	a.publish(ctx, tab.OwnerID, domain.EventLLMEnrichSuccess, tab.ID)
	if a.embeddings != nil {
		if err := a.embeddings.Enqueue(ctx, tab.OwnerID, tab.ID); err != nil {
			slog.Warn("embedding enqueue failed", "tabId", tab.ID, "err", err)
		}
	}
	return nil
}

func (a *App) recordEnrichFailure(ctx context.Context, tab domain.Tab, cause error, rawOutput string) error {
	attempt := domain.EnrichmentAttempt{
		TabID:        tab.ID,
		StartedAt:    time.Now().UTC(),
		FinishedAt:   time.Now().UTC(),
		ErrorMessage: cause.Error(),
	}
	if rawOutput != "" {
		attempt.RawMeta = domain.Meta{"raw_output": rawOutput}
	}
	detail := domain.Meta{"transient": isTransient(cause)}
	if err := a.store.FailEnrichment(tab.ID, cause.Error(), attempt, detail); err != nil {
		if errors.Is(err, store.ErrStatusConflict) {
			slog.Warn("enrichment failure lost status race", "tabId", tab.ID)
			return err
		}
		return &storeFailure{err}
	}
	a.publish(ctx, tab.OwnerID, domain.EventLLMEnrichError, tab.ID)
	slog.Warn("enrichment failed", "tabId", tab.ID, "url", tab.URL, "err", cause)
	return cause
}

// ResetTab clears a tab's error state so the next batch retries it.
func (a *App) ResetTab(ctx context.Context, ownerID, tabID string) (domain.Tab, error) {
	tab, err := a.store.ResetTab(ownerID, tabID)
	if err != nil {
		return domain.Tab{}, err
	}
	a.publish(ctx, ownerID, domain.EventTabReset, tabID)
	return tab, nil
}

// publish mirrors a pipeline event to the broker. The store's event log is
// the source of truth; broker delivery is best effort.
func (a *App) publish(ctx context.Context, ownerID, eventType, tabID string) {
	event := domain.Event{
		OwnerID:    ownerID,
		Type:       eventType,
		EntityType: "tab",
		EntityID:   tabID,
		CreatedAt:  time.Now().UTC(),
	}
	if err := a.events.Publish(ctx, event); err != nil {
		slog.Warn("event publish failed", "type", eventType, "tabId", tabID, "err", err)
	}
}
