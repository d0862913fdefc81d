package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"tabbacklog/internal/util"
	"tabbacklog/pkg/ai"
	"tabbacklog/pkg/domain"
)

// ProjectCategories is the closed set of project labels the model may assign.
var ProjectCategories = []string{
	"argumentation_on_the_web",
	"democratic_economic_planning",
	"other_research",
	"personal",
	"work",
}

const maxTextChars = 4000

const systemPrompt = `You analyze web content and generate structured metadata for a read-later queue.
Respond with a single JSON object and nothing else. Schema:
{
  "summary": "2-3 sentence summary of the content",
  "content_type": "one of: article, video, paper, code_repo, reference, misc",
  "tags": ["3-5 tags starting with #, e.g. #tutorial, #longread, #video"],
  "projects": ["related categories from: %s"],
  "est_read_min": estimated reading or watching time in minutes (integer),
  "priority": "high, medium or low"
}`

// EnrichRequest carries the parsed page data the model sees.
type EnrichRequest struct {
	URL          string `json:"url"`
	Title        string `json:"title,omitempty"`
	SiteKind     string `json:"site_kind"`
	Text         string `json:"text,omitempty"`
	WordCount    int    `json:"word_count,omitempty"`
	VideoSeconds int    `json:"video_seconds,omitempty"`
}

// EnrichResult is a validated enrichment plus the model that produced it.
type EnrichResult struct {
	URL        string            `json:"url"`
	Enrichment domain.Enrichment `json:"enrichment"`
	ModelName  string            `json:"model_name"`
	Attempts   int               `json:"attempts"`
}

// EnrichError reports a failed enrichment; RawOutput keeps the model's last
// response so operators can see what failed validation.
type EnrichError struct {
	Message   string
	RawOutput string
	Attempts  int
}

func (e *EnrichError) Error() string { return e.Message }

// Config holds runtime configuration.
type Config struct {
	Generator  ai.TextGenerator
	ModelName  string
	MaxRetries int
}

// App turns parsed pages into structured enrichments.
type App struct {
	generator  ai.TextGenerator
	modelName  string
	maxRetries int
}

func New(cfg Config) (*App, error) {
	if cfg.Generator == nil {
		return nil, fmt.Errorf("text generator required")
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &App{
		generator:  cfg.Generator,
		modelName:  cfg.ModelName,
		maxRetries: maxRetries,
	}, nil
}

// ModelName reports the configured generation model.
func (a *App) ModelName() string { return a.modelName }

// Enrich calls the model up to maxRetries times, accepting the first response
// that parses and validates. Every retry rebuilds the conversation from
// scratch since a model that produced broken JSON once tends to repeat it
// when shown its own output.
func (a *App) Enrich(ctx context.Context, req EnrichRequest) (EnrichResult, error) {
	if strings.TrimSpace(req.URL) == "" {
		return EnrichResult{}, &EnrichError{Message: "url required"}
	}
	system := fmt.Sprintf(systemPrompt, strings.Join(ProjectCategories, ", "))
	user := buildUserPrompt(req)

	var lastErr error
	var rawOutput string
	for attempt := 1; attempt <= a.maxRetries; attempt++ {
		output, err := a.generator.GenerateText(ctx, system, user)
		if err != nil {
			lastErr = err
			slog.Warn("enrichment generation failed", "url", req.URL, "attempt", attempt, "err", err)
			continue
		}
		rawOutput = output
		enrichment, err := parseEnrichment(output)
		if err != nil {
			lastErr = err
			slog.Warn("enrichment output rejected", "url", req.URL, "attempt", attempt, "err", err)
			continue
		}
		return EnrichResult{
			URL:        req.URL,
			Enrichment: enrichment,
			ModelName:  a.modelName,
			Attempts:   attempt,
		}, nil
	}
	return EnrichResult{}, &EnrichError{
		Message:   fmt.Sprintf("enrichment failed after %d attempts: %v", a.maxRetries, lastErr),
		RawOutput: rawOutput,
		Attempts:  a.maxRetries,
	}
}

func buildUserPrompt(req EnrichRequest) string {
	title := req.Title
	if title == "" {
		title = "Untitled"
	}
	text := req.Text
	if len(text) > maxTextChars {
		text = util.TruncateUTF8(text, maxTextChars) + "... [truncated]"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "URL: %s\n", req.URL)
	fmt.Fprintf(&b, "Title: %s\n", title)
	fmt.Fprintf(&b, "Site kind: %s\n", req.SiteKind)
	fmt.Fprintf(&b, "Word count: %d\n", req.WordCount)
	fmt.Fprintf(&b, "Video seconds: %d\n", req.VideoSeconds)
	fmt.Fprintf(&b, "Content:\n%s\n", text)
	return b.String()
}

// rawEnrichment is the wire shape the model is asked for, before validation.
type rawEnrichment struct {
	Summary     string   `json:"summary"`
	ContentType string   `json:"content_type"`
	Tags        []string `json:"tags"`
	Projects    []string `json:"projects"`
	EstReadMin  int      `json:"est_read_min"`
	Priority    string   `json:"priority"`
}

func parseEnrichment(output string) (domain.Enrichment, error) {
	jsonText, err := extractJSON(output)
	if err != nil {
		return domain.Enrichment{}, err
	}
	var raw rawEnrichment
	if err := json.Unmarshal([]byte(jsonText), &raw); err != nil {
		return domain.Enrichment{}, fmt.Errorf("invalid json: %w", err)
	}
	return validateEnrichment(raw)
}

// extractJSON tolerates markdown code fences and prose around the object;
// local models add both routinely.
func extractJSON(output string) (string, error) {
	output = strings.TrimSpace(output)
	if idx := strings.Index(output, "```"); idx >= 0 {
		rest := output[idx+3:]
		rest = strings.TrimPrefix(rest, "json")
		if end := strings.Index(rest, "```"); end >= 0 {
			output = rest[:end]
		} else {
			output = rest
		}
	}
	start := strings.Index(output, "{")
	end := strings.LastIndex(output, "}")
	if start < 0 || end <= start {
		return "", fmt.Errorf("no json object in output")
	}
	return output[start : end+1], nil
}

func validateEnrichment(raw rawEnrichment) (domain.Enrichment, error) {
	summary := strings.TrimSpace(raw.Summary)
	if len(summary) < 10 {
		return domain.Enrichment{}, fmt.Errorf("summary too short")
	}
	if len(summary) > 500 {
		summary = util.TruncateUTF8(summary, 500)
	}
	contentType := domain.ContentType(strings.ToLower(strings.TrimSpace(raw.ContentType)))
	if !contentType.Valid() {
		return domain.Enrichment{}, fmt.Errorf("invalid content_type %q", raw.ContentType)
	}
	var priority domain.Priority
	if p := strings.ToLower(strings.TrimSpace(raw.Priority)); p != "" {
		priority = domain.Priority(p)
		if !priority.Valid() {
			return domain.Enrichment{}, fmt.Errorf("invalid priority %q", raw.Priority)
		}
	}
	estReadMin := raw.EstReadMin
	if estReadMin < 0 {
		estReadMin = 0
	}
	if estReadMin > 600 {
		estReadMin = 600
	}
	return domain.Enrichment{
		Summary:     summary,
		ContentType: contentType,
		Tags:        cleanTags(raw.Tags, 10),
		Projects:    knownProjects(raw.Projects, 5),
		EstReadMin:  estReadMin,
		Priority:    priority,
	}, nil
}

func cleanTags(tags []string, limit int) []string {
	seen := make(map[string]bool, len(tags))
	var out []string
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if !strings.HasPrefix(tag, "#") {
			tag = "#" + tag
		}
		tag = strings.ToLower(tag)
		if seen[tag] {
			continue
		}
		seen[tag] = true
		out = append(out, tag)
		if len(out) >= limit {
			break
		}
	}
	return out
}

// knownProjects drops anything outside the closed category set instead of
// failing the whole response over one invented label.
func knownProjects(projects []string, limit int) []string {
	known := make(map[string]bool, len(ProjectCategories))
	for _, c := range ProjectCategories {
		known[c] = true
	}
	seen := make(map[string]bool, len(projects))
	var out []string
	for _, p := range projects {
		p = strings.ToLower(strings.TrimSpace(p))
		if !known[p] || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
		if len(out) >= limit {
			break
		}
	}
	return out
}
