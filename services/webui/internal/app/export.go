package app

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"tabbacklog/pkg/domain"
)

// ExportFormat names one of the supported export renderings.
type ExportFormat string

const (
	ExportJSON     ExportFormat = "json"
	ExportMarkdown ExportFormat = "markdown"
	ExportObsidian ExportFormat = "obsidian"
)

// ParseExportFormat validates a format from the request path.
func ParseExportFormat(s string) (ExportFormat, error) {
	switch ExportFormat(strings.ToLower(s)) {
	case ExportJSON:
		return ExportJSON, nil
	case ExportMarkdown:
		return ExportMarkdown, nil
	case ExportObsidian:
		return ExportObsidian, nil
	}
	return "", fmt.Errorf("unknown export format %q", s)
}

// ContentType returns the response media type for the format.
func (f ExportFormat) ContentType() string {
	if f == ExportJSON {
		return "application/json"
	}
	return "text/markdown"
}

// Filename builds the attachment filename for the format.
func (f ExportFormat) Filename(now time.Time) string {
	stamp := now.Format("20060102_150405")
	switch f {
	case ExportJSON:
		return fmt.Sprintf("tabs_export_%s.json", stamp)
	case ExportObsidian:
		return fmt.Sprintf("obsidian_export_%s.md", stamp)
	default:
		return fmt.Sprintf("tabs_export_%s.md", stamp)
	}
}

func renderExport(tabs []domain.TabDetail, format ExportFormat) ([]byte, string, error) {
	if len(tabs) == 0 {
		return nil, "", ErrNotFound
	}
	switch format {
	case ExportJSON:
		data, err := json.MarshalIndent(tabs, "", "  ")
		return data, format.ContentType(), err
	case ExportMarkdown:
		return renderMarkdown(tabs), format.ContentType(), nil
	case ExportObsidian:
		return renderObsidian(tabs), format.ContentType(), nil
	}
	return nil, "", fmt.Errorf("unknown export format %q", format)
}

func renderMarkdown(tabs []domain.TabDetail) []byte {
	var b strings.Builder
	b.WriteString("# TabBacklog Export\n\n")
	fmt.Fprintf(&b, "*Exported: %s*\n", time.Now().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "*Total: %d tabs*\n\n---\n\n", len(tabs))
	for _, tab := range tabs {
		writeTabMarkdown(&b, tab)
	}
	return []byte(b.String())
}

func writeTabMarkdown(b *strings.Builder, tab domain.TabDetail) {
	fmt.Fprintf(b, "## [%s](%s)\n\n", titleOrUntitled(tab), tab.URL)
	if tab.Summary != "" {
		b.WriteString(tab.Summary)
		b.WriteString("\n\n")
	}
	var metadata []string
	if tab.ContentType != "" {
		metadata = append(metadata, fmt.Sprintf("**Type:** %s", tab.ContentType))
	}
	if tab.EstReadMin > 0 {
		metadata = append(metadata, fmt.Sprintf("**Read time:** %d min", tab.EstReadMin))
	}
	if tab.Priority != "" {
		metadata = append(metadata, fmt.Sprintf("**Priority:** %s", tab.Priority))
	}
	if len(tab.Tags) > 0 {
		metadata = append(metadata, fmt.Sprintf("**Tags:** %s", strings.Join(tab.Tags, ", ")))
	}
	if len(tab.Projects) > 0 {
		metadata = append(metadata, fmt.Sprintf("**Projects:** %s", strings.Join(tab.Projects, ", ")))
	}
	if len(metadata) > 0 {
		b.WriteString(strings.Join(metadata, " | "))
		b.WriteString("\n\n")
	}
	b.WriteString("---\n\n")
}

func renderObsidian(tabs []domain.TabDetail) []byte {
	var b strings.Builder
	b.WriteString("---\ntype: reading-list\n")
	fmt.Fprintf(&b, "exported: %s\n", time.Now().Format(time.RFC3339))
	fmt.Fprintf(&b, "count: %d\n---\n\n", len(tabs))
	b.WriteString("# Reading List Export\n\n")
	for _, tab := range tabs {
		fmt.Fprintf(&b, "## [%s](%s)\n\n", titleOrUntitled(tab), tab.URL)
		if tab.Summary != "" {
			fmt.Fprintf(&b, "> %s\n\n", tab.Summary)
		}
		var inline []string
		if tab.ContentType != "" {
			inline = append(inline, fmt.Sprintf("#type/%s", tab.ContentType))
		}
		if tab.Priority != "" {
			inline = append(inline, fmt.Sprintf("#priority/%s", tab.Priority))
		}
		tags := tab.Tags
		if len(tags) > 5 {
			tags = tags[:5]
		}
		for _, tag := range tags {
			clean := strings.ReplaceAll(strings.TrimPrefix(tag, "#"), " ", "-")
			inline = append(inline, "#"+clean)
		}
		if len(inline) > 0 {
			b.WriteString(strings.Join(inline, " "))
			b.WriteString("\n\n")
		}
		if tab.EstReadMin > 0 {
			fmt.Fprintf(&b, "%d min\n\n", tab.EstReadMin)
		}
		b.WriteString("---\n\n")
	}
	return []byte(b.String())
}

func titleOrUntitled(tab domain.TabDetail) string {
	if strings.TrimSpace(tab.PageTitle) != "" {
		return tab.PageTitle
	}
	return "Untitled"
}
