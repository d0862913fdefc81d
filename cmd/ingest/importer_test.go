package main

import (
	"testing"
	"time"

	"tabbacklog/pkg/domain"
	"tabbacklog/pkg/firefox"
	"tabbacklog/pkg/store"
)

const ownerID = "3f1b9a52-8f0e-4b7d-9c3a-2d5e6f7a8b90"

func sampleBookmarks() []firefox.Bookmark {
	now := time.Now().UTC()
	return []firefox.Bookmark{
		{URL: "https://example.com/a", PageTitle: "A", WindowLabel: "research", CollectedAt: now},
		{URL: "https://example.com/b", PageTitle: "B", WindowLabel: "default", CollectedAt: now},
		{URL: "https://example.com/a", PageTitle: "A again", WindowLabel: "research", CollectedAt: now},
	}
}

func TestRunImportDeduplicates(t *testing.T) {
	st := store.NewMemoryStore()
	report := runImport(st, ownerID, sampleBookmarks(), false)
	if report.Total != 3 || report.Inserted != 2 || report.Skipped != 1 || report.Errors != 0 {
		t.Fatalf("report = %+v", report)
	}

	// A second run skips everything already present.
	report = runImport(st, ownerID, sampleBookmarks(), false)
	if report.Inserted != 0 || report.Skipped != 3 {
		t.Fatalf("second run report = %+v", report)
	}
}

func TestRunImportDryRunWritesNothing(t *testing.T) {
	st := store.NewMemoryStore()
	report := runImport(st, ownerID, sampleBookmarks(), true)
	if report.Inserted != 2 || report.Skipped != 1 {
		t.Fatalf("report = %+v", report)
	}
	page, err := st.ListTabs(ownerID, domain.TabFilters{})
	if err != nil {
		t.Fatalf("ListTabs: %v", err)
	}
	if page.Total != 0 {
		t.Fatalf("dry run wrote %d tabs", page.Total)
	}
}
