package app

import (
	"context"
	"testing"

	"tabbacklog/pkg/domain"
	"tabbacklog/pkg/queue"
	"tabbacklog/pkg/store"
)

type fakeEmbedder struct {
	vector []float32
	calls  int
}

func (e *fakeEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	e.calls++
	return e.vector, nil
}

// enrichAllParsed moves every parsed tab to enriched directly through the
// store, bypassing the model.
func enrichAllParsed(t *testing.T, st store.Store) {
	t.Helper()
	claimed, err := st.ClaimBatch(testOwner, domain.StatusParsed, domain.StatusLLMPending, 100)
	if err != nil {
		t.Fatalf("claim for enrich: %v", err)
	}
	for _, tab := range claimed {
		rec := domain.EnrichmentRecord{TabID: tab.ID, Enrichment: sampleEnrichment(), ModelName: "qwen2.5:7b"}
		attempt := domain.EnrichmentAttempt{TabID: tab.ID, Succeeded: true, Enrichment: rec.Enrichment}
		if err := st.CompleteEnrichment(tab.ID, rec, attempt); err != nil {
			t.Fatalf("complete enrichment: %v", err)
		}
	}
}

func TestEmbeddingWorkerSavesVector(t *testing.T) {
	st := store.NewMemoryStore()
	tabs := seedParsedTabs(t, st, 1)
	enrichAllParsed(t, st)

	embedder := &fakeEmbedder{vector: []float32{0.1, 0.2, 0.3}}
	worker := NewEmbeddingWorker(st, embedder, "all-minilm")

	job := queue.JobStatus{ID: "job1", OwnerID: testOwner, TabID: tabs[0].ID}
	if err := worker.Handle(context.Background(), job); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if embedder.calls != 1 {
		t.Fatalf("embedder called %d times, want 1", embedder.calls)
	}

	// The saved vector itself is the search key.
	results, err := st.SemanticSearch(testOwner, []float32{0.1, 0.2, 0.3}, 5)
	if err != nil {
		t.Fatalf("SemanticSearch: %v", err)
	}
	if len(results) != 1 || results[0].ID != tabs[0].ID {
		t.Fatalf("search results = %+v", results)
	}

	events, err := st.ListEvents(testOwner, 1)
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(events) != 1 || events[0].Type != domain.EventEmbeddingSaved {
		t.Fatalf("latest event = %+v, want embedding_saved", events)
	}
}

func TestEmbeddingWorkerSkipsMissingEnrichment(t *testing.T) {
	st := store.NewMemoryStore()
	tabs := seedTabs(t, st, 1)

	embedder := &fakeEmbedder{vector: []float32{0.1}}
	worker := NewEmbeddingWorker(st, embedder, "all-minilm")

	job := queue.JobStatus{ID: "job1", OwnerID: testOwner, TabID: tabs[0].ID}
	if err := worker.Handle(context.Background(), job); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if embedder.calls != 0 {
		t.Fatalf("embedder called %d times for unenriched tab", embedder.calls)
	}
}

func TestBackfillEmbeddings(t *testing.T) {
	st := store.NewMemoryStore()
	seedParsedTabs(t, st, 2)
	enrichAllParsed(t, st)

	enq := &fakeEnqueuer{}
	a := newTestApp(t, st, &fakeParser{}, &fakeEnricher{}, enq)

	enqueued, err := a.BackfillEmbeddings(context.Background(), testOwner, 10)
	if err != nil {
		t.Fatalf("BackfillEmbeddings: %v", err)
	}
	if enqueued != 2 || len(enq.tabIDs) != 2 {
		t.Fatalf("enqueued = %d, jobs = %v", enqueued, enq.tabIDs)
	}
}
