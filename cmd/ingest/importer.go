package main

import (
	"log/slog"

	"tabbacklog/pkg/domain"
	"tabbacklog/pkg/firefox"
	"tabbacklog/pkg/store"
)

// ImportReport summarizes one import run.
type ImportReport struct {
	Total    int `json:"total"`
	Inserted int `json:"inserted"`
	Skipped  int `json:"skipped"`
	Errors   int `json:"errors"`
}

// runImport inserts bookmarks for the owner, skipping URLs already present
// among the owner's non-deleted tabs. With dryRun nothing is written; only
// duplicates within the file itself are detected, since the store is not
// consulted.
func runImport(st store.Store, ownerID string, bookmarks []firefox.Bookmark, dryRun bool) ImportReport {
	report := ImportReport{Total: len(bookmarks)}
	seen := make(map[string]bool, len(bookmarks))
	for _, bookmark := range bookmarks {
		if seen[bookmark.URL] {
			report.Skipped++
			continue
		}
		seen[bookmark.URL] = true

		if dryRun {
			report.Inserted++
			continue
		}
		_, created, err := st.CreateTab(domain.Tab{
			OwnerID:     ownerID,
			URL:         bookmark.URL,
			PageTitle:   bookmark.PageTitle,
			WindowLabel: bookmark.WindowLabel,
			CollectedAt: bookmark.CollectedAt,
		})
		if err != nil {
			report.Errors++
			slog.Error("insert failed", "url", bookmark.URL, "err", err)
			continue
		}
		if created {
			report.Inserted++
		} else {
			report.Skipped++
		}
	}
	return report
}
