package app

import (
	"bytes"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"tabbacklog/pkg/domain"
)

var youtubeHosts = map[string]bool{
	"youtube.com":     true,
	"www.youtube.com": true,
	"m.youtube.com":   true,
	"youtu.be":        true,
}

var youtubePathRe = regexp.MustCompile(`^/(shorts|embed|v)/([^/?]+)`)

// isoDurationRe matches the ISO 8601 durations YouTube puts in
// <meta itemprop="duration">, e.g. PT1H2M30S.
var isoDurationRe = regexp.MustCompile(`^PT(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?$`)

// YouTubeParser extracts video metadata from YouTube watch pages. YouTube
// serves og: and itemprop meta tags server-side, so title, description, and
// duration are available without running any JavaScript.
type YouTubeParser struct{}

func NewYouTubeParser() *YouTubeParser { return &YouTubeParser{} }

func (*YouTubeParser) Name() string { return "youtube" }

func (*YouTubeParser) Match(rawURL, _ string) bool {
	return youtubeHosts[extractDomain(rawURL)]
}

func (p *YouTubeParser) Parse(rawURL string, body []byte) (domain.ParsedPage, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return domain.ParsedPage{}, err
	}

	title := metaContent(doc, `meta[property="og:title"]`)
	if title == "" {
		title = strings.TrimSuffix(strings.TrimSpace(doc.Find("title").First().Text()), " - YouTube")
	}
	description := metaContent(doc, `meta[property="og:description"]`)
	if description == "" {
		description = metaContent(doc, `meta[name="description"]`)
	}

	var textParts []string
	if title != "" {
		textParts = append(textParts, title)
	}
	if description != "" {
		textParts = append(textParts, description)
	}
	textFull := strings.Join(textParts, "\n\n")

	meta := domain.Meta{"url": rawURL}
	if videoID := youtubeVideoID(rawURL); videoID != "" {
		meta["video_id"] = videoID
	}
	if channel := metaContent(doc, `link[itemprop="name"]`, "content"); channel != "" {
		meta["channel"] = channel
	}
	if uploadDate := metaContent(doc, `meta[itemprop="uploadDate"]`); uploadDate != "" {
		meta["upload_date"] = uploadDate
	}
	if views := metaContent(doc, `meta[itemprop="interactionCount"]`); views != "" {
		if n, err := strconv.Atoi(views); err == nil {
			meta["view_count"] = n
		}
	}
	if thumb := metaContent(doc, `meta[property="og:image"]`); thumb != "" {
		meta["thumbnail"] = thumb
	}

	return domain.ParsedPage{
		SiteKind:     "youtube",
		Title:        title,
		TextFull:     textFull,
		WordCount:    countWords(textFull),
		VideoSeconds: parseISODuration(metaContent(doc, `meta[itemprop="duration"]`)),
		Metadata:     meta,
	}, nil
}

func youtubeVideoID(rawURL string) string {
	domainName := extractDomain(rawURL)
	path, query := urlPathQuery(rawURL)
	if domainName == "youtu.be" {
		return strings.SplitN(strings.TrimPrefix(path, "/"), "/", 2)[0]
	}
	if path == "/watch" {
		return query.Get("v")
	}
	if m := youtubePathRe.FindStringSubmatch(path); m != nil {
		return m[2]
	}
	return ""
}

func parseISODuration(value string) int {
	m := isoDurationRe.FindStringSubmatch(strings.TrimSpace(value))
	if m == nil {
		return 0
	}
	seconds := 0
	for i, mult := range []int{3600, 60, 1} {
		if m[i+1] != "" {
			n, _ := strconv.Atoi(m[i+1])
			seconds += n * mult
		}
	}
	return seconds
}

func metaContent(doc *goquery.Document, selector string, attr ...string) string {
	name := "content"
	if len(attr) > 0 {
		name = attr[0]
	}
	return strings.TrimSpace(doc.Find(selector).First().AttrOr(name, ""))
}
