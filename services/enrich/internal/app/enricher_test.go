package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"tabbacklog/pkg/domain"
)

// scriptedGenerator returns its outputs in order, then repeats the last one.
type scriptedGenerator struct {
	outputs []string
	errs    []error
	calls   int
}

func (g *scriptedGenerator) GenerateText(ctx context.Context, system, user string) (string, error) {
	idx := g.calls
	g.calls++
	if idx >= len(g.outputs) {
		idx = len(g.outputs) - 1
	}
	if idx < len(g.errs) && g.errs[idx] != nil {
		return "", g.errs[idx]
	}
	return g.outputs[idx], nil
}

const validOutput = `{
  "summary": "A practical walkthrough of building HTTP services in Go. Covers routing, middleware and graceful shutdown.",
  "content_type": "article",
  "tags": ["#golang", "#tutorial", "#http"],
  "projects": ["work"],
  "est_read_min": 12,
  "priority": "medium"
}`

func testApp(t *testing.T, gen *scriptedGenerator) *App {
	t.Helper()
	a, err := New(Config{Generator: gen, ModelName: "qwen2.5:7b", MaxRetries: 3})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a
}

func TestEnrichValidResponse(t *testing.T) {
	gen := &scriptedGenerator{outputs: []string{validOutput}}
	a := testApp(t, gen)

	res, err := a.Enrich(context.Background(), EnrichRequest{
		URL:      "https://example.com/go-http",
		Title:    "Go HTTP services",
		SiteKind: "generic_html",
		Text:     "Some article body.",
	})
	if err != nil {
		t.Fatalf("Enrich: %v", err)
	}
	if res.Enrichment.ContentType != domain.ContentArticle {
		t.Errorf("content type = %q, want article", res.Enrichment.ContentType)
	}
	if res.Enrichment.Priority != domain.PriorityMedium {
		t.Errorf("priority = %q, want medium", res.Enrichment.Priority)
	}
	if len(res.Enrichment.Tags) != 3 || res.Enrichment.Tags[0] != "#golang" {
		t.Errorf("tags = %v", res.Enrichment.Tags)
	}
	if res.ModelName != "qwen2.5:7b" {
		t.Errorf("model name = %q", res.ModelName)
	}
	if res.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", res.Attempts)
	}
}

func TestEnrichStripsCodeFences(t *testing.T) {
	gen := &scriptedGenerator{outputs: []string{"Here you go:\n```json\n" + validOutput + "\n```"}}
	a := testApp(t, gen)

	res, err := a.Enrich(context.Background(), EnrichRequest{URL: "https://example.com", SiteKind: "generic_html"})
	if err != nil {
		t.Fatalf("Enrich: %v", err)
	}
	if res.Enrichment.EstReadMin != 12 {
		t.Errorf("est_read_min = %d, want 12", res.Enrichment.EstReadMin)
	}
}

func TestEnrichRetriesInvalidOutput(t *testing.T) {
	gen := &scriptedGenerator{outputs: []string{"not json at all", validOutput}}
	a := testApp(t, gen)

	res, err := a.Enrich(context.Background(), EnrichRequest{URL: "https://example.com", SiteKind: "generic_html"})
	if err != nil {
		t.Fatalf("Enrich: %v", err)
	}
	if res.Attempts != 2 {
		t.Errorf("attempts = %d, want 2", res.Attempts)
	}
}

func TestEnrichFailsAfterMaxRetries(t *testing.T) {
	gen := &scriptedGenerator{outputs: []string{`{"summary": "short", "content_type": "article"}`}}
	a := testApp(t, gen)

	_, err := a.Enrich(context.Background(), EnrichRequest{URL: "https://example.com", SiteKind: "generic_html"})
	var enrichErr *EnrichError
	if !errors.As(err, &enrichErr) {
		t.Fatalf("err = %v, want EnrichError", err)
	}
	if enrichErr.Attempts != 3 {
		t.Errorf("attempts = %d, want 3", enrichErr.Attempts)
	}
	if !strings.Contains(enrichErr.RawOutput, "short") {
		t.Errorf("raw output not preserved: %q", enrichErr.RawOutput)
	}
	if gen.calls != 3 {
		t.Errorf("generator called %d times, want 3", gen.calls)
	}
}

func TestEnrichRejectsInvalidContentType(t *testing.T) {
	output := strings.Replace(validOutput, `"article"`, `"blogpost"`, 1)
	gen := &scriptedGenerator{outputs: []string{output}}
	a := testApp(t, gen)

	if _, err := a.Enrich(context.Background(), EnrichRequest{URL: "https://example.com", SiteKind: "generic_html"}); err == nil {
		t.Fatal("expected error for unknown content_type")
	}
}

func TestEnrichClampsListsAndRanges(t *testing.T) {
	var tags []string
	for i := 0; i < 15; i++ {
		tags = append(tags, fmt.Sprintf(`"#tag%d"`, i))
	}
	output := fmt.Sprintf(`{
	  "summary": "A long enough summary describing the page contents in detail.",
	  "content_type": "video",
	  "tags": [%s],
	  "projects": ["work", "personal", "made_up_category", "work"],
	  "est_read_min": 9000
	}`, strings.Join(tags, ","))
	gen := &scriptedGenerator{outputs: []string{output}}
	a := testApp(t, gen)

	res, err := a.Enrich(context.Background(), EnrichRequest{URL: "https://example.com", SiteKind: "youtube"})
	if err != nil {
		t.Fatalf("Enrich: %v", err)
	}
	if len(res.Enrichment.Tags) != 10 {
		t.Errorf("tags = %d, want clamp to 10", len(res.Enrichment.Tags))
	}
	if got := res.Enrichment.Projects; len(got) != 2 || got[0] != "work" || got[1] != "personal" {
		t.Errorf("projects = %v, want [work personal]", got)
	}
	if res.Enrichment.EstReadMin != 600 {
		t.Errorf("est_read_min = %d, want clamp to 600", res.Enrichment.EstReadMin)
	}
}

func TestEnrichTruncatesSummaryOnRuneBoundary(t *testing.T) {
	output := fmt.Sprintf(`{
	  "summary": "%s",
	  "content_type": "article",
	  "tags": [],
	  "projects": []
	}`, strings.Repeat("編集記事の要約テキスト。", 20))
	gen := &scriptedGenerator{outputs: []string{output}}
	a := testApp(t, gen)

	res, err := a.Enrich(context.Background(), EnrichRequest{URL: "https://example.jp", SiteKind: "generic_html"})
	if err != nil {
		t.Fatalf("Enrich: %v", err)
	}
	summary := res.Enrichment.Summary
	if len(summary) > 500 {
		t.Errorf("summary length = %d, want <= 500", len(summary))
	}
	if !utf8.ValidString(summary) {
		t.Error("truncated summary is not valid UTF-8")
	}
}

func TestEnrichTruncatesLongText(t *testing.T) {
	req := EnrichRequest{URL: "https://example.com", SiteKind: "generic_html", Text: strings.Repeat("a", 5000)}
	prompt := buildUserPrompt(req)
	if !strings.Contains(prompt, "... [truncated]") {
		t.Error("long text not truncated")
	}
	if strings.Contains(prompt, strings.Repeat("a", 4001)) {
		t.Error("text beyond limit leaked into prompt")
	}
}

func TestEnrichRequiresURL(t *testing.T) {
	gen := &scriptedGenerator{outputs: []string{validOutput}}
	a := testApp(t, gen)
	if _, err := a.Enrich(context.Background(), EnrichRequest{}); err == nil {
		t.Fatal("expected error for missing url")
	}
	if gen.calls != 0 {
		t.Errorf("generator called %d times for invalid request", gen.calls)
	}
}
