// Package firefox reads the bookmarks HTML files Firefox exports. Saved
// browser sessions live in folders named "Session-<label>"; everything else
// in the export is ignored.
package firefox

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const sessionPrefix = "Session-"

// Bookmark is one saved tab from a Session- folder.
type Bookmark struct {
	URL         string
	PageTitle   string
	WindowLabel string
	CollectedAt time.Time
}

// FolderStats summarizes one session folder.
type FolderStats struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// Stats summarizes an export without materializing every bookmark.
type Stats struct {
	SessionFolders []FolderStats `json:"sessionFolders"`
	TotalFolders   int           `json:"totalFolders"`
	TotalBookmarks int           `json:"totalBookmarks"`
}

// Parse extracts all bookmarks from Session- folders in a Firefox bookmarks
// HTML export. The text after the Session- prefix becomes the window label
// ("default" when empty). Non-http(s) links are skipped. ADD_DATE attributes
// (seconds since epoch) become CollectedAt; absent or malformed ones fall
// back to now.
func Parse(r io.Reader) ([]Bookmark, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse bookmarks html: %w", err)
	}
	var bookmarks []Bookmark
	forEachSessionFolder(doc, func(label string, dl *goquery.Selection) {
		dl.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
			bookmark, ok := bookmarkFromAnchor(a, label)
			if ok {
				bookmarks = append(bookmarks, bookmark)
			}
		})
	})
	return bookmarks, nil
}

// ReadStats counts session folders and their bookmarks.
func ReadStats(r io.Reader) (Stats, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return Stats{}, fmt.Errorf("parse bookmarks html: %w", err)
	}
	stats := Stats{}
	forEachSessionFolder(doc, func(label string, dl *goquery.Selection) {
		count := 0
		dl.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
			if _, ok := bookmarkFromAnchor(a, label); ok {
				count++
			}
		})
		stats.SessionFolders = append(stats.SessionFolders, FolderStats{Label: label, Count: count})
		stats.TotalBookmarks += count
	})
	stats.TotalFolders = len(stats.SessionFolders)
	return stats, nil
}

func forEachSessionFolder(doc *goquery.Document, fn func(label string, dl *goquery.Selection)) {
	doc.Find("h3").Each(func(_ int, h3 *goquery.Selection) {
		folderName := strings.TrimSpace(h3.Text())
		if !strings.HasPrefix(folderName, sessionPrefix) {
			return
		}
		label := strings.TrimPrefix(folderName, sessionPrefix)
		if label == "" {
			label = "default"
		}
		dl := folderContents(h3)
		if dl == nil {
			return
		}
		fn(label, dl)
	})
}

// folderContents finds the DL holding a folder's bookmarks. In the Firefox
// export format the H3 folder header sits inside a DT and the DL follows it
// as a sibling.
func folderContents(h3 *goquery.Selection) *goquery.Selection {
	if h3.ParentsFiltered("dt").Length() == 0 {
		return nil
	}
	dl := h3.NextAllFiltered("dl").First()
	if dl.Length() == 0 {
		return nil
	}
	return dl
}

func bookmarkFromAnchor(a *goquery.Selection, label string) (Bookmark, bool) {
	href := strings.TrimSpace(a.AttrOr("href", ""))
	if !strings.HasPrefix(href, "http://") && !strings.HasPrefix(href, "https://") {
		return Bookmark{}, false
	}
	collectedAt := time.Now().UTC()
	if raw, ok := a.Attr("add_date"); ok {
		if seconds, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64); err == nil && seconds > 0 {
			collectedAt = time.Unix(seconds, 0).UTC()
		}
	}
	return Bookmark{
		URL:         href,
		PageTitle:   strings.TrimSpace(a.Text()),
		WindowLabel: label,
		CollectedAt: collectedAt,
	}, true
}
