package app

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"tabbacklog/pkg/domain"
)

func exportTabs() []domain.TabDetail {
	return []domain.TabDetail{
		{
			Tab:         domain.Tab{ID: "t1", URL: "https://example.com/a", PageTitle: "Go HTTP services"},
			Summary:     "A walkthrough of building HTTP services in Go.",
			ContentType: domain.ContentArticle,
			EstReadMin:  12,
			Priority:    domain.PriorityMedium,
			Tags:        []string{"#golang", "#http"},
			Projects:    []string{"work"},
		},
		{
			Tab: domain.Tab{ID: "t2", URL: "https://example.com/b"},
		},
	}
}

func TestParseExportFormat(t *testing.T) {
	for _, name := range []string{"json", "markdown", "obsidian", "JSON"} {
		if _, err := ParseExportFormat(name); err != nil {
			t.Errorf("ParseExportFormat(%q): %v", name, err)
		}
	}
	if _, err := ParseExportFormat("csv"); err == nil {
		t.Error("ParseExportFormat(csv) should fail")
	}
}

func TestRenderExportJSON(t *testing.T) {
	data, contentType, err := renderExport(exportTabs(), ExportJSON)
	if err != nil {
		t.Fatalf("renderExport: %v", err)
	}
	if contentType != "application/json" {
		t.Errorf("content type = %q", contentType)
	}
	var decoded []domain.TabDetail
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("export is not valid JSON: %v", err)
	}
	if len(decoded) != 2 || decoded[0].ID != "t1" {
		t.Fatalf("decoded = %+v", decoded)
	}
}

func TestRenderExportMarkdown(t *testing.T) {
	data, contentType, err := renderExport(exportTabs(), ExportMarkdown)
	if err != nil {
		t.Fatalf("renderExport: %v", err)
	}
	if contentType != "text/markdown" {
		t.Errorf("content type = %q", contentType)
	}
	out := string(data)
	for _, want := range []string{
		"# TabBacklog Export",
		"## [Go HTTP services](https://example.com/a)",
		"**Type:** article",
		"**Tags:** #golang, #http",
		"## [Untitled](https://example.com/b)",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("markdown export missing %q", want)
		}
	}
}

func TestRenderExportObsidian(t *testing.T) {
	data, _, err := renderExport(exportTabs(), ExportObsidian)
	if err != nil {
		t.Fatalf("renderExport: %v", err)
	}
	out := string(data)
	for _, want := range []string{
		"type: reading-list",
		"count: 2",
		"> A walkthrough of building HTTP services in Go.",
		"#type/article #priority/medium #golang #http",
		"12 min",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("obsidian export missing %q", want)
		}
	}
}

func TestRenderExportEmpty(t *testing.T) {
	if _, _, err := renderExport(nil, ExportJSON); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
