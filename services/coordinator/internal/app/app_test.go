package app

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"tabbacklog/pkg/domain"
	"tabbacklog/pkg/store"
)

const testOwner = "owner1"

type fakeParser struct {
	result ParseResult
	err    error
	calls  int
}

func (p *fakeParser) FetchParse(ctx context.Context, rawURL, tabID string) (ParseResult, error) {
	p.calls++
	if p.err != nil {
		return ParseResult{}, p.err
	}
	return p.result, nil
}

type fakeEnricher struct {
	result EnrichResult
	err    error
	calls  int
}

func (e *fakeEnricher) EnrichTab(ctx context.Context, req EnrichRequest) (EnrichResult, error) {
	e.calls++
	if e.err != nil {
		return EnrichResult{}, e.err
	}
	result := e.result
	result.URL = req.URL
	return result, nil
}

type fakeEnqueuer struct {
	tabIDs []string
	err    error
}

func (q *fakeEnqueuer) Enqueue(ctx context.Context, ownerID, tabID string) error {
	if q.err != nil {
		return q.err
	}
	q.tabIDs = append(q.tabIDs, tabID)
	return nil
}

func articlePage() domain.ParsedPage {
	return domain.ParsedPage{
		SiteKind:  "generic_html",
		Title:     "Go HTTP services",
		TextFull:  "A walkthrough of building HTTP services in Go.",
		WordCount: 8,
	}
}

func sampleEnrichment() domain.Enrichment {
	return domain.Enrichment{
		Summary:     "A walkthrough of building HTTP services in Go with routing and middleware.",
		ContentType: domain.ContentArticle,
		Tags:        []string{"#golang", "#http"},
		Projects:    []string{"work"},
		EstReadMin:  8,
		Priority:    domain.PriorityMedium,
	}
}

func seedTabs(t *testing.T, st store.Store, n int) []domain.Tab {
	t.Helper()
	tabs := make([]domain.Tab, 0, n)
	for i := 0; i < n; i++ {
		tab, created, err := st.CreateTab(domain.Tab{
			OwnerID: testOwner,
			URL:     fmt.Sprintf("https://example.com/%d", i),
		})
		if err != nil || !created {
			t.Fatalf("seed tab %d: created=%v err=%v", i, created, err)
		}
		tabs = append(tabs, tab)
	}
	return tabs
}

// seedParsedTabs moves n tabs all the way to parsed so enrich batches can
// claim them.
func seedParsedTabs(t *testing.T, st store.Store, n int) []domain.Tab {
	t.Helper()
	tabs := seedTabs(t, st, n)
	claimed, err := st.ClaimBatch(testOwner, domain.StatusNew, domain.StatusFetchPending, n)
	if err != nil {
		t.Fatalf("claim for parse: %v", err)
	}
	for _, tab := range claimed {
		if err := st.CompleteFetch(tab.ID, articlePage(), nil); err != nil {
			t.Fatalf("complete fetch %s: %v", tab.ID, err)
		}
	}
	return tabs
}

func newTestApp(t *testing.T, st store.Store, parser ParserClient, enricher EnrichClient, enq EmbeddingEnqueuer) *App {
	t.Helper()
	a, err := New(Config{
		Store:             st,
		Parser:            parser,
		Enricher:          enricher,
		Embeddings:        enq,
		BatchSize:         10,
		FetchConcurrency:  2,
		EnrichConcurrency: 2,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a
}

func TestRunFetchBatchMovesTabsToParsed(t *testing.T) {
	st := store.NewMemoryStore()
	tabs := seedTabs(t, st, 3)
	parser := &fakeParser{result: ParseResult{Page: articlePage()}}
	a := newTestApp(t, st, parser, &fakeEnricher{}, nil)

	report, err := a.RunFetchBatch(context.Background(), testOwner, 0)
	if err != nil {
		t.Fatalf("RunFetchBatch: %v", err)
	}
	if report.Claimed != 3 || report.Succeeded != 3 || report.Failed != 0 {
		t.Fatalf("report = %+v", report)
	}
	if parser.calls != 3 {
		t.Fatalf("parser called %d times, want 3", parser.calls)
	}
	for _, tab := range tabs {
		got, ok, err := st.GetTab(testOwner, tab.ID)
		if err != nil || !ok {
			t.Fatalf("GetTab %s: ok=%v err=%v", tab.ID, ok, err)
		}
		if got.Status != domain.StatusParsed {
			t.Errorf("tab %s status = %s, want parsed", tab.ID, got.Status)
		}
	}
}

func TestRunFetchBatchRecordsFailure(t *testing.T) {
	st := store.NewMemoryStore()
	tabs := seedTabs(t, st, 1)
	parser := &fakeParser{err: &upstreamError{Service: "parser", StatusCode: 422, Body: "unreachable"}}
	a := newTestApp(t, st, parser, &fakeEnricher{}, nil)

	report, err := a.RunFetchBatch(context.Background(), testOwner, 0)
	if err != nil {
		t.Fatalf("RunFetchBatch: %v", err)
	}
	if report.Failed != 1 || report.Succeeded != 0 {
		t.Fatalf("report = %+v", report)
	}
	got, _, err := st.GetTab(testOwner, tabs[0].ID)
	if err != nil {
		t.Fatalf("GetTab: %v", err)
	}
	if got.Status != domain.StatusFetchError {
		t.Fatalf("status = %s, want fetch_error", got.Status)
	}
	if got.LastError == "" {
		t.Fatal("lastError not recorded")
	}
}

func TestRunFetchBatchClaimsNothingWhenEmpty(t *testing.T) {
	st := store.NewMemoryStore()
	a := newTestApp(t, st, &fakeParser{}, &fakeEnricher{}, nil)

	report, err := a.RunFetchBatch(context.Background(), testOwner, 0)
	if err != nil {
		t.Fatalf("RunFetchBatch: %v", err)
	}
	if report.Claimed != 0 {
		t.Fatalf("claimed = %d, want 0", report.Claimed)
	}
}

func TestRunEnrichBatchStoresEnrichmentAndQueuesEmbedding(t *testing.T) {
	st := store.NewMemoryStore()
	tabs := seedParsedTabs(t, st, 2)
	enricher := &fakeEnricher{result: EnrichResult{Enrichment: sampleEnrichment(), ModelName: "qwen2.5:7b", Attempts: 1}}
	enq := &fakeEnqueuer{}
	a := newTestApp(t, st, &fakeParser{}, enricher, enq)

	report, err := a.RunEnrichBatch(context.Background(), testOwner, 0)
	if err != nil {
		t.Fatalf("RunEnrichBatch: %v", err)
	}
	if report.Succeeded != 2 {
		t.Fatalf("report = %+v", report)
	}
	if len(enq.tabIDs) != 2 {
		t.Fatalf("embedding jobs enqueued = %d, want 2", len(enq.tabIDs))
	}
	for _, tab := range tabs {
		got, _, err := st.GetTab(testOwner, tab.ID)
		if err != nil {
			t.Fatalf("GetTab: %v", err)
		}
		if got.Status != domain.StatusEnriched {
			t.Errorf("tab %s status = %s, want enriched", tab.ID, got.Status)
		}
		rec, ok, err := st.GetEnrichment(tab.ID)
		if err != nil || !ok {
			t.Fatalf("GetEnrichment %s: ok=%v err=%v", tab.ID, ok, err)
		}
		if rec.ModelName != "qwen2.5:7b" {
			t.Errorf("model name = %q", rec.ModelName)
		}
	}
}

func TestRunEnrichBatchKeepsRawOutputOnFailure(t *testing.T) {
	st := store.NewMemoryStore()
	tabs := seedParsedTabs(t, st, 1)
	enricher := &fakeEnricher{err: &upstreamError{Service: "enrich", StatusCode: 422, Body: `{"error":"summary too short","rawOutput":"garbage"}`}}
	a := newTestApp(t, st, &fakeParser{}, enricher, nil)

	report, err := a.RunEnrichBatch(context.Background(), testOwner, 0)
	if err != nil {
		t.Fatalf("RunEnrichBatch: %v", err)
	}
	if report.Failed != 1 {
		t.Fatalf("report = %+v", report)
	}
	got, _, err := st.GetTab(testOwner, tabs[0].ID)
	if err != nil {
		t.Fatalf("GetTab: %v", err)
	}
	if got.Status != domain.StatusLLMError {
		t.Fatalf("status = %s, want llm_error", got.Status)
	}
	history, err := st.ListEnrichmentHistory(tabs[0].ID)
	if err != nil {
		t.Fatalf("ListEnrichmentHistory: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("history entries = %d, want 1", len(history))
	}
	if history[0].Succeeded {
		t.Fatal("failed attempt recorded as success")
	}
	if history[0].RawMeta.GetString("raw_output") == "" {
		t.Fatal("raw output not kept on failure")
	}
}

func TestRunEnrichBatchEmbeddingEnqueueFailureIsNotFatal(t *testing.T) {
	st := store.NewMemoryStore()
	seedParsedTabs(t, st, 1)
	enricher := &fakeEnricher{result: EnrichResult{Enrichment: sampleEnrichment(), ModelName: "qwen2.5:7b"}}
	a := newTestApp(t, st, &fakeParser{}, enricher, &fakeEnqueuer{err: errors.New("redis down")})

	report, err := a.RunEnrichBatch(context.Background(), testOwner, 0)
	if err != nil {
		t.Fatalf("RunEnrichBatch: %v", err)
	}
	if report.Succeeded != 1 {
		t.Fatalf("report = %+v", report)
	}
}

func TestResetTabAfterFailure(t *testing.T) {
	st := store.NewMemoryStore()
	tabs := seedTabs(t, st, 1)
	parser := &fakeParser{err: errors.New("connection refused")}
	a := newTestApp(t, st, parser, &fakeEnricher{}, nil)

	if _, err := a.RunFetchBatch(context.Background(), testOwner, 0); err != nil {
		t.Fatalf("RunFetchBatch: %v", err)
	}
	tab, err := a.ResetTab(context.Background(), testOwner, tabs[0].ID)
	if err != nil {
		t.Fatalf("ResetTab: %v", err)
	}
	if tab.Status != domain.StatusNew {
		t.Fatalf("status after reset = %s, want new", tab.Status)
	}

	// Once reset, the next fetch batch picks the tab up again.
	parser.err = nil
	parser.result = ParseResult{Page: articlePage()}
	report, err := a.RunFetchBatch(context.Background(), testOwner, 0)
	if err != nil {
		t.Fatalf("second RunFetchBatch: %v", err)
	}
	if report.Succeeded != 1 {
		t.Fatalf("report = %+v", report)
	}
}
