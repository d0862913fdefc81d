package store

import (
	"errors"
	"sync"
	"testing"
	"time"

	"tabbacklog/pkg/domain"
)

func newTab(owner, url, title string) domain.Tab {
	return domain.Tab{OwnerID: owner, URL: url, PageTitle: title}
}

func eventTypes(t *testing.T, s Store, owner string) []string {
	t.Helper()
	events, err := s.ListEvents(owner, 100)
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	// ListEvents is newest first; reverse for chronological assertions.
	types := make([]string, len(events))
	for i, ev := range events {
		types[len(events)-1-i] = ev.Type
	}
	return types
}

func TestCreateTabDeduplicates(t *testing.T) {
	s := NewMemoryStore()
	first, created, err := s.CreateTab(newTab("owner1", "https://example.com/a", ""))
	if err != nil || !created {
		t.Fatalf("first create: created=%v err=%v", created, err)
	}
	second, created, err := s.CreateTab(newTab("owner1", "https://example.com/a", "Example"))
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if created {
		t.Fatal("duplicate URL should not create a new tab")
	}
	if second.ID != first.ID {
		t.Fatalf("duplicate returned id %s, want %s", second.ID, first.ID)
	}
	if second.PageTitle != "Example" {
		t.Fatalf("missing title should be back-filled, got %q", second.PageTitle)
	}

	// A different owner with the same URL gets its own record.
	_, created, err = s.CreateTab(newTab("owner2", "https://example.com/a", ""))
	if err != nil || !created {
		t.Fatalf("other owner create: created=%v err=%v", created, err)
	}

	types := eventTypes(t, s, "owner1")
	want := []string{domain.EventTabCreated, domain.EventTabDuplicateSkipped}
	if len(types) != len(want) {
		t.Fatalf("got events %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("event[%d] = %s, want %s", i, types[i], want[i])
		}
	}
}

func TestClaimBatchIsALease(t *testing.T) {
	s := NewMemoryStore()
	for _, url := range []string{"https://a.test/1", "https://a.test/2", "https://a.test/3"} {
		if _, _, err := s.CreateTab(newTab("owner1", url, "")); err != nil {
			t.Fatal(err)
		}
	}
	claimed, err := s.ClaimBatch("owner1", domain.StatusNew, domain.StatusFetchPending, 2)
	if err != nil {
		t.Fatalf("ClaimBatch: %v", err)
	}
	if len(claimed) != 2 {
		t.Fatalf("claimed %d tabs, want 2", len(claimed))
	}
	for _, tab := range claimed {
		if tab.Status != domain.StatusFetchPending {
			t.Fatalf("claimed tab status = %s", tab.Status)
		}
	}
	// Claimed records are invisible to a second claim of the same cohort.
	rest, err := s.ClaimBatch("owner1", domain.StatusNew, domain.StatusFetchPending, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(rest) != 1 {
		t.Fatalf("second claim got %d tabs, want 1", len(rest))
	}

	if _, err := s.ClaimBatch("owner1", domain.StatusNew, domain.StatusLLMPending, 1); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("illegal claim transition: err=%v", err)
	}
}

func TestPipelineHappyPath(t *testing.T) {
	s := NewMemoryStore()
	tab, _, err := s.CreateTab(newTab("owner1", "https://blog.test/post", "A Post"))
	if err != nil {
		t.Fatal(err)
	}

	if _, err := s.ClaimBatch("owner1", domain.StatusNew, domain.StatusFetchPending, 1); err != nil {
		t.Fatal(err)
	}
	page := domain.ParsedPage{
		SiteKind:  "generic",
		Title:     "A Post",
		TextFull:  "body text",
		WordCount: 2,
	}
	if err := s.CompleteFetch(tab.ID, page, nil); err != nil {
		t.Fatalf("CompleteFetch: %v", err)
	}
	// Re-running the same step after completion must write nothing.
	if err := s.CompleteFetch(tab.ID, page, nil); !errors.Is(err, ErrStatusConflict) {
		t.Fatalf("repeated CompleteFetch: err=%v", err)
	}

	if _, err := s.ClaimBatch("owner1", domain.StatusParsed, domain.StatusLLMPending, 1); err != nil {
		t.Fatal(err)
	}
	rec := domain.EnrichmentRecord{
		Enrichment: domain.Enrichment{
			Summary:     "Short summary.",
			ContentType: domain.ContentArticle,
			Tags:        []string{"go", "testing"},
			Projects:    []string{"reading-list"},
			EstReadMin:  3,
			Priority:    domain.PriorityMedium,
		},
		ModelName: "test-model",
	}
	attempt := domain.EnrichmentAttempt{StartedAt: time.Now(), FinishedAt: time.Now()}
	if err := s.CompleteEnrichment(tab.ID, rec, attempt); err != nil {
		t.Fatalf("CompleteEnrichment: %v", err)
	}

	got, ok, err := s.GetTab("owner1", tab.ID)
	if err != nil || !ok {
		t.Fatalf("GetTab: ok=%v err=%v", ok, err)
	}
	if got.Status != domain.StatusEnriched {
		t.Fatalf("status = %s, want %s", got.Status, domain.StatusEnriched)
	}

	tags, err := s.ListTabTags(tab.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(tags) != 2 || tags[0].Name != "go" || tags[1].Name != "testing" {
		t.Fatalf("tags = %v", tags)
	}

	history, err := s.ListEnrichmentHistory(tab.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 1 || !history[0].Succeeded {
		t.Fatalf("history = %+v", history)
	}

	types := eventTypes(t, s, "owner1")
	want := []string{
		domain.EventTabCreated,
		domain.EventFetchClaimed,
		domain.EventFetchSuccess,
		domain.EventLLMClaimed,
		domain.EventLLMEnrichSuccess,
	}
	if len(types) != len(want) {
		t.Fatalf("got events %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("event[%d] = %s, want %s", i, types[i], want[i])
		}
	}
}

func TestFailEnrichmentAndReset(t *testing.T) {
	s := NewMemoryStore()
	tab, _, err := s.CreateTab(newTab("owner1", "https://blog.test/post", ""))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.ClaimBatch("owner1", domain.StatusNew, domain.StatusFetchPending, 1); err != nil {
		t.Fatal(err)
	}
	if err := s.CompleteFetch(tab.ID, domain.ParsedPage{SiteKind: "generic"}, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := s.ClaimBatch("owner1", domain.StatusParsed, domain.StatusLLMPending, 1); err != nil {
		t.Fatal(err)
	}
	attempt := domain.EnrichmentAttempt{StartedAt: time.Now(), FinishedAt: time.Now()}
	if err := s.FailEnrichment(tab.ID, "model returned invalid json", attempt, nil); err != nil {
		t.Fatalf("FailEnrichment: %v", err)
	}

	got, _, _ := s.GetTab("owner1", tab.ID)
	if got.Status != domain.StatusLLMError {
		t.Fatalf("status = %s, want %s", got.Status, domain.StatusLLMError)
	}
	if got.LastError == "" || got.ErrorAt == nil {
		t.Fatalf("error fields not set: %+v", got)
	}

	// Failed attempts still land in history.
	history, _ := s.ListEnrichmentHistory(tab.ID)
	if len(history) != 1 || history[0].Succeeded {
		t.Fatalf("history = %+v", history)
	}

	// Reset goes back to parsed, not new: the parse result is still good.
	reset, err := s.ResetTab("owner1", tab.ID)
	if err != nil {
		t.Fatalf("ResetTab: %v", err)
	}
	if reset.Status != domain.StatusParsed {
		t.Fatalf("reset status = %s, want %s", reset.Status, domain.StatusParsed)
	}
	if reset.LastError != "" || reset.ErrorAt != nil {
		t.Fatalf("reset should clear error fields: %+v", reset)
	}

	// Resetting a non-error tab is rejected.
	if _, err := s.ResetTab("owner1", tab.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("reset from parsed: err=%v", err)
	}
}

func TestSoftDeleteAllowsReAdd(t *testing.T) {
	s := NewMemoryStore()
	tab, _, err := s.CreateTab(newTab("owner1", "https://example.com/a", ""))
	if err != nil {
		t.Fatal(err)
	}
	deleted, err := s.SoftDeleteTab("owner1", tab.ID)
	if err != nil || !deleted {
		t.Fatalf("SoftDeleteTab: deleted=%v err=%v", deleted, err)
	}
	if _, ok, _ := s.GetTab("owner1", tab.ID); ok {
		t.Fatal("deleted tab still visible")
	}
	readded, created, err := s.CreateTab(newTab("owner1", "https://example.com/a", ""))
	if err != nil || !created {
		t.Fatalf("re-add after delete: created=%v err=%v", created, err)
	}
	if readded.ID == tab.ID {
		t.Fatal("re-added tab must get a fresh identity")
	}
}

func TestSetProcessedRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	tab, _, err := s.CreateTab(newTab("owner1", "https://example.com/a", ""))
	if err != nil {
		t.Fatal(err)
	}
	marked, ok, err := s.SetProcessed("owner1", tab.ID, true)
	if err != nil || !ok {
		t.Fatalf("SetProcessed: ok=%v err=%v", ok, err)
	}
	if !marked.IsProcessed || marked.ProcessedAt == nil {
		t.Fatalf("processed fields: %+v", marked)
	}
	unmarked, _, err := s.SetProcessed("owner1", tab.ID, false)
	if err != nil {
		t.Fatal(err)
	}
	if unmarked.IsProcessed || unmarked.ProcessedAt != nil {
		t.Fatalf("unprocessed fields: %+v", unmarked)
	}
	types := eventTypes(t, s, "owner1")
	if types[len(types)-2] != domain.EventTabProcessed || types[len(types)-1] != domain.EventTabUnprocessed {
		t.Fatalf("events = %v", types)
	}
}

func TestListTabsFiltersAndPaginates(t *testing.T) {
	s := NewMemoryStore()
	base := time.Now().UTC()
	for i, url := range []string{"https://a.test/1", "https://a.test/2", "https://a.test/3"} {
		tab := newTab("owner1", url, "")
		tab.CollectedAt = base.Add(time.Duration(i) * time.Minute)
		if _, _, err := s.CreateTab(tab); err != nil {
			t.Fatal(err)
		}
	}
	tabs, _ := s.ClaimBatch("owner1", domain.StatusNew, domain.StatusFetchPending, 1)
	if err := s.CompleteFetch(tabs[0].ID, domain.ParsedPage{SiteKind: "generic", Title: "Kubernetes Intro"}, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := s.ClaimBatch("owner1", domain.StatusParsed, domain.StatusLLMPending, 1); err != nil {
		t.Fatal(err)
	}
	rec := domain.EnrichmentRecord{Enrichment: domain.Enrichment{
		Summary:     "An introduction to Kubernetes.",
		ContentType: domain.ContentArticle,
		EstReadMin:  5,
		Priority:    domain.PriorityHigh,
	}}
	if err := s.CompleteEnrichment(tabs[0].ID, rec, domain.EnrichmentAttempt{StartedAt: base, FinishedAt: base}); err != nil {
		t.Fatal(err)
	}

	page, err := s.ListTabs("owner1", domain.TabFilters{Status: domain.StatusEnriched})
	if err != nil {
		t.Fatal(err)
	}
	if page.Total != 1 || len(page.Tabs) != 1 {
		t.Fatalf("status filter: total=%d len=%d", page.Total, len(page.Tabs))
	}

	page, err = s.ListTabs("owner1", domain.TabFilters{Search: "kubernetes"})
	if err != nil {
		t.Fatal(err)
	}
	if page.Total != 1 {
		t.Fatalf("search filter: total=%d", page.Total)
	}

	page, err = s.ListTabs("owner1", domain.TabFilters{ReadTimeMax: 3})
	if err != nil {
		t.Fatal(err)
	}
	if page.Total != 0 {
		t.Fatalf("read time filter: total=%d", page.Total)
	}

	page, err = s.ListTabs("owner1", domain.TabFilters{Page: 2, PerPage: 2})
	if err != nil {
		t.Fatal(err)
	}
	if page.Total != 3 || len(page.Tabs) != 1 || page.TotalPages != 2 {
		t.Fatalf("pagination: total=%d len=%d pages=%d", page.Total, len(page.Tabs), page.TotalPages)
	}
	// Newest collected first.
	all, _ := s.ListTabs("owner1", domain.TabFilters{})
	if all.Tabs[0].URL != "https://a.test/3" {
		t.Fatalf("order: first = %s", all.Tabs[0].URL)
	}
}

func TestSemanticSearchRanksBySimilarity(t *testing.T) {
	s := NewMemoryStore()
	near, _, err := s.CreateTab(newTab("owner1", "https://a.test/near", ""))
	if err != nil {
		t.Fatal(err)
	}
	far, _, err := s.CreateTab(newTab("owner1", "https://a.test/far", ""))
	if err != nil {
		t.Fatal(err)
	}
	if err := s.SaveEmbedding(near.ID, []float32{1, 0, 0}, "m"); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveEmbedding(far.ID, []float32{0, 1, 0}, "m"); err != nil {
		t.Fatal(err)
	}
	results, err := s.SemanticSearch("owner1", []float32{0.9, 0.1, 0}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results", len(results))
	}
	if results[0].ID != near.ID {
		t.Fatalf("best match = %s, want %s", results[0].ID, near.ID)
	}
	if results[0].Similarity <= results[1].Similarity {
		t.Fatalf("similarities not descending: %v %v", results[0].Similarity, results[1].Similarity)
	}
}

func TestConcurrentEnrichmentSharesOneTagRow(t *testing.T) {
	s := NewMemoryStore()
	var ids []string
	for _, url := range []string{"https://a.test/1", "https://a.test/2"} {
		tab, _, err := s.CreateTab(newTab("owner1", url, ""))
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, tab.ID)
	}
	if _, err := s.ClaimBatch("owner1", domain.StatusNew, domain.StatusFetchPending, 10); err != nil {
		t.Fatal(err)
	}
	for _, id := range ids {
		page := domain.ParsedPage{SiteKind: "generic", TextFull: "body", WordCount: 1}
		if err := s.CompleteFetch(id, page, nil); err != nil {
			t.Fatalf("CompleteFetch: %v", err)
		}
	}
	if _, err := s.ClaimBatch("owner1", domain.StatusParsed, domain.StatusLLMPending, 10); err != nil {
		t.Fatal(err)
	}

	// Both records introduce the same new tag name at the same time.
	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			rec := domain.EnrichmentRecord{
				Enrichment: domain.Enrichment{
					Summary:     "Concurrent enrichment summary.",
					ContentType: domain.ContentArticle,
					Tags:        []string{"#golang"},
				},
				ModelName: "test-model",
			}
			if err := s.CompleteEnrichment(id, rec, domain.EnrichmentAttempt{}); err != nil {
				t.Errorf("CompleteEnrichment(%s): %v", id, err)
			}
		}(id)
	}
	wg.Wait()

	var tagIDs []string
	for _, id := range ids {
		tags, err := s.ListTabTags(id)
		if err != nil {
			t.Fatal(err)
		}
		if len(tags) != 1 || tags[0].Name != "#golang" {
			t.Fatalf("tab %s tags = %v", id, tags)
		}
		tagIDs = append(tagIDs, tags[0].ID)
	}
	if tagIDs[0] != tagIDs[1] {
		t.Fatalf("tag rows diverged: %s vs %s", tagIDs[0], tagIDs[1])
	}
}

func TestFindOrCreateTagUnderContention(t *testing.T) {
	s := NewMemoryStore()
	got := make([]domain.Tag, 8)
	var wg sync.WaitGroup
	for i := range got {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tag, err := s.FindOrCreateTag("owner1", "#shared", domain.TagAuto)
			if err != nil {
				t.Errorf("FindOrCreateTag: %v", err)
				return
			}
			got[i] = tag
		}(i)
	}
	wg.Wait()
	for _, tag := range got[1:] {
		if tag.ID != got[0].ID {
			t.Fatalf("tag rows diverged: %s vs %s", tag.ID, got[0].ID)
		}
	}
}
