package store

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"tabbacklog/internal/util"
	"tabbacklog/pkg/domain"
)

// MemoryStore is an in-memory Store used by tests and by local runs without a
// database. It mirrors the transactional semantics of the Postgres store:
// status guards, one event per transition, idempotent tag links.
type MemoryStore struct {
	mu sync.RWMutex

	tabs     map[string]*domain.Tab
	tabOrder []string

	parsed      map[string]domain.ParsedContent
	enrichments map[string]domain.EnrichmentRecord
	history     map[string][]domain.EnrichmentAttempt

	tags    map[string]domain.Tag
	tabTags map[string]map[string]bool

	embeddings map[string]memoryEmbedding

	events []domain.Event
}

type memoryEmbedding struct {
	vector    []float32
	modelName string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tabs:        make(map[string]*domain.Tab),
		parsed:      make(map[string]domain.ParsedContent),
		enrichments: make(map[string]domain.EnrichmentRecord),
		history:     make(map[string][]domain.EnrichmentAttempt),
		tags:        make(map[string]domain.Tag),
		tabTags:     make(map[string]map[string]bool),
		embeddings:  make(map[string]memoryEmbedding),
	}
}

func (s *MemoryStore) CreateTab(tab domain.Tab) (domain.Tab, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	for _, id := range s.tabOrder {
		existing := s.tabs[id]
		if existing.OwnerID != tab.OwnerID || existing.URL != tab.URL || existing.DeletedAt != nil {
			continue
		}
		if existing.PageTitle == "" && tab.PageTitle != "" {
			existing.PageTitle = tab.PageTitle
		}
		if existing.WindowLabel == "" && tab.WindowLabel != "" {
			existing.WindowLabel = tab.WindowLabel
		}
		existing.UpdatedAt = now
		s.logEvent(tab.OwnerID, domain.EventTabDuplicateSkipped, "tab", existing.ID, domain.Meta{"url": tab.URL})
		return *existing, false, nil
	}
	if tab.ID == "" {
		tab.ID = util.NewID()
	}
	if tab.CollectedAt.IsZero() {
		tab.CollectedAt = now
	}
	tab.Status = domain.StatusNew
	tab.CreatedAt = now
	tab.UpdatedAt = now
	stored := tab
	s.tabs[stored.ID] = &stored
	s.tabOrder = append(s.tabOrder, stored.ID)
	s.logEvent(tab.OwnerID, domain.EventTabCreated, "tab", stored.ID, domain.Meta{"url": tab.URL})
	return stored, true, nil
}

func (s *MemoryStore) GetTab(ownerID, id string) (domain.Tab, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tab, ok := s.activeTab(ownerID, id)
	if !ok {
		return domain.Tab{}, false, nil
	}
	return *tab, true, nil
}

func (s *MemoryStore) SoftDeleteTab(ownerID, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tab, ok := s.activeTab(ownerID, id)
	if !ok {
		return false, nil
	}
	now := time.Now().UTC()
	tab.DeletedAt = &now
	tab.UpdatedAt = now
	s.logEvent(ownerID, domain.EventTabDeleted, "tab", id, nil)
	return true, nil
}

func (s *MemoryStore) SetProcessed(ownerID, id string, processed bool) (domain.Tab, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tab, ok := s.activeTab(ownerID, id)
	if !ok {
		return domain.Tab{}, false, nil
	}
	now := time.Now().UTC()
	tab.IsProcessed = processed
	tab.UpdatedAt = now
	eventType := domain.EventTabUnprocessed
	if processed {
		tab.ProcessedAt = &now
		eventType = domain.EventTabProcessed
	} else {
		tab.ProcessedAt = nil
	}
	s.logEvent(ownerID, eventType, "tab", id, nil)
	return *tab, true, nil
}

func (s *MemoryStore) ResetTab(ownerID, id string) (domain.Tab, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tab, ok := s.activeTab(ownerID, id)
	if !ok {
		return domain.Tab{}, fmt.Errorf("tab %s not found", id)
	}
	target, legal := resetTarget(tab.Status)
	if !legal {
		return domain.Tab{}, fmt.Errorf("%w: reset from %s", ErrInvalidTransition, tab.Status)
	}
	tab.Status = target
	tab.LastError = ""
	tab.ErrorAt = nil
	tab.UpdatedAt = time.Now().UTC()
	s.logEvent(ownerID, domain.EventTabReset, "tab", id, domain.Meta{"to_status": string(target)})
	return *tab, nil
}

func (s *MemoryStore) ClaimBatch(ownerID string, from, to domain.TabStatus, limit int) ([]domain.Tab, error) {
	if !legalClaim(from, to) {
		return nil, fmt.Errorf("%w: claim %s -> %s", ErrInvalidTransition, from, to)
	}
	if limit <= 0 {
		return nil, nil
	}
	eventType, _ := claimEventType(to)
	s.mu.Lock()
	defer s.mu.Unlock()
	var candidates []*domain.Tab
	for _, id := range s.tabOrder {
		tab := s.tabs[id]
		if tab.OwnerID == ownerID && tab.Status == from && tab.DeletedAt == nil {
			candidates = append(candidates, tab)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].CollectedAt.Before(candidates[j].CollectedAt)
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	now := time.Now().UTC()
	claimed := make([]domain.Tab, 0, len(candidates))
	for _, tab := range candidates {
		tab.Status = to
		tab.UpdatedAt = now
		s.logEvent(ownerID, eventType, "tab", tab.ID, nil)
		claimed = append(claimed, *tab)
	}
	return claimed, nil
}

func (s *MemoryStore) CompleteFetch(tabID string, page domain.ParsedPage, detail domain.Meta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tab, err := s.requireStatus(tabID, domain.StatusFetchPending)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	content, existed := s.parsed[tabID]
	if !existed {
		content = domain.ParsedContent{TabID: tabID, CreatedAt: now}
	}
	content.ParsedPage = page
	content.UpdatedAt = now
	s.parsed[tabID] = content
	tab.Status = domain.StatusParsed
	tab.LastError = ""
	tab.ErrorAt = nil
	tab.UpdatedAt = now
	details := detail.Clone()
	if details == nil {
		details = domain.Meta{}
	}
	details["site_kind"] = page.SiteKind
	details["word_count"] = page.WordCount
	s.logEvent(tab.OwnerID, domain.EventFetchSuccess, "tab", tabID, details)
	return nil
}

func (s *MemoryStore) FailFetch(tabID, message string, detail domain.Meta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tab, err := s.requireStatus(tabID, domain.StatusFetchPending)
	if err != nil {
		return err
	}
	s.failTab(tab, domain.StatusFetchError, domain.EventFetchError, message, detail)
	return nil
}

func (s *MemoryStore) CompleteEnrichment(tabID string, rec domain.EnrichmentRecord, attempt domain.EnrichmentAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tab, err := s.requireStatus(tabID, domain.StatusLLMPending)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	rec.TabID = tabID
	if existing, ok := s.enrichments[tabID]; ok {
		rec.CreatedAt = existing.CreatedAt
	} else {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	s.enrichments[tabID] = rec

	attempt.TabID = tabID
	attempt.Succeeded = true
	if attempt.ID == "" {
		attempt.ID = util.NewID()
	}
	s.history[tabID] = append(s.history[tabID], attempt)

	for _, name := range rec.Tags {
		tag, err := s.findOrCreateTagLocked(tab.OwnerID, name, domain.TagAuto)
		if err != nil {
			return err
		}
		links := s.tabTags[tabID]
		if links == nil {
			links = make(map[string]bool)
			s.tabTags[tabID] = links
		}
		links[tag.ID] = true
	}
	tab.Status = domain.StatusEnriched
	tab.LastError = ""
	tab.ErrorAt = nil
	tab.UpdatedAt = now
	s.logEvent(tab.OwnerID, domain.EventLLMEnrichSuccess, "tab", tabID, domain.Meta{
		"content_type": string(rec.ContentType),
		"model_name":   rec.ModelName,
		"tag_count":    len(rec.Tags),
	})
	return nil
}

func (s *MemoryStore) FailEnrichment(tabID, message string, attempt domain.EnrichmentAttempt, detail domain.Meta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tab, err := s.requireStatus(tabID, domain.StatusLLMPending)
	if err != nil {
		return err
	}
	attempt.TabID = tabID
	attempt.Succeeded = false
	attempt.ErrorMessage = message
	if attempt.ID == "" {
		attempt.ID = util.NewID()
	}
	s.history[tabID] = append(s.history[tabID], attempt)
	s.failTab(tab, domain.StatusLLMError, domain.EventLLMEnrichError, message, detail)
	return nil
}

func (s *MemoryStore) failTab(tab *domain.Tab, target domain.TabStatus, eventType, message string, detail domain.Meta) {
	now := time.Now().UTC()
	tab.Status = target
	tab.LastError = message
	tab.ErrorAt = &now
	tab.UpdatedAt = now
	details := detail.Clone()
	if details == nil {
		details = domain.Meta{}
	}
	details["error"] = message
	s.logEvent(tab.OwnerID, eventType, "tab", tab.ID, details)
}

func (s *MemoryStore) GetParsedContent(tabID string) (domain.ParsedContent, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	content, ok := s.parsed[tabID]
	return content, ok, nil
}

func (s *MemoryStore) GetEnrichment(tabID string) (domain.EnrichmentRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.enrichments[tabID]
	return rec, ok, nil
}

func (s *MemoryStore) ListEnrichmentHistory(tabID string) ([]domain.EnrichmentAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	attempts := make([]domain.EnrichmentAttempt, len(s.history[tabID]))
	copy(attempts, s.history[tabID])
	return attempts, nil
}

func (s *MemoryStore) FindOrCreateTag(ownerID, name string, kind domain.TagKind) (domain.Tag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findOrCreateTagLocked(ownerID, name, kind)
}

func (s *MemoryStore) findOrCreateTagLocked(ownerID, name string, kind domain.TagKind) (domain.Tag, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Tag{}, fmt.Errorf("tag name required")
	}
	for _, tag := range s.tags {
		if tag.OwnerID == ownerID && tag.Name == name && tag.DeletedAt == nil {
			return tag, nil
		}
	}
	tag := domain.Tag{
		ID:        util.NewID(),
		OwnerID:   ownerID,
		Name:      name,
		Kind:      kind,
		CreatedAt: time.Now().UTC(),
	}
	s.tags[tag.ID] = tag
	return tag, nil
}

func (s *MemoryStore) ListTabTags(tabID string) ([]domain.Tag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tabTagsLocked(tabID), nil
}

func (s *MemoryStore) tabTagsLocked(tabID string) []domain.Tag {
	var tags []domain.Tag
	for tagID := range s.tabTags[tabID] {
		tag, ok := s.tags[tagID]
		if ok && tag.DeletedAt == nil {
			tags = append(tags, tag)
		}
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i].Name < tags[j].Name })
	return tags
}

func (s *MemoryStore) ListTabs(ownerID string, filters domain.TabFilters) (domain.TabPage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	page := filters.Page
	if page < 1 {
		page = 1
	}
	perPage := filters.PerPage
	if perPage < 1 {
		perPage = defaultPerPage
	}
	var matched []domain.TabDetail
	for _, id := range s.tabOrder {
		tab := s.tabs[id]
		if tab.OwnerID != ownerID || tab.DeletedAt != nil {
			continue
		}
		detail := s.detailLocked(*tab)
		if !s.matchFilters(detail, filters) {
			continue
		}
		matched = append(matched, detail)
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CollectedAt.After(matched[j].CollectedAt)
	})
	total := len(matched)
	start := (page - 1) * perPage
	if start > total {
		start = total
	}
	end := start + perPage
	if end > total {
		end = total
	}
	pageTabs := make([]domain.TabDetail, end-start)
	copy(pageTabs, matched[start:end])
	return domain.TabPage{
		Tabs:       pageTabs,
		Total:      total,
		Page:       page,
		PerPage:    perPage,
		TotalPages: (total + perPage - 1) / perPage,
	}, nil
}

func (s *MemoryStore) matchFilters(detail domain.TabDetail, filters domain.TabFilters) bool {
	if filters.Status != "" && detail.Status != filters.Status {
		return false
	}
	if filters.Processed != nil && detail.IsProcessed != *filters.Processed {
		return false
	}
	if filters.ContentType != "" && detail.ContentType != filters.ContentType {
		return false
	}
	if filters.ReadTimeMax > 0 && (detail.EstReadMin == 0 || detail.EstReadMin > filters.ReadTimeMax) {
		return false
	}
	if filters.Project != "" {
		found := false
		for _, project := range detail.Projects {
			if project == filters.Project {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if q := strings.ToLower(strings.TrimSpace(filters.Search)); q != "" {
		haystack := strings.ToLower(detail.PageTitle + " " + detail.Summary + " " + detail.URL)
		if !strings.Contains(haystack, q) {
			return false
		}
	}
	return true
}

func (s *MemoryStore) GetTabDetail(ownerID, id string) (domain.TabDetail, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tab, ok := s.activeTab(ownerID, id)
	if !ok {
		return domain.TabDetail{}, false, nil
	}
	return s.detailLocked(*tab), true, nil
}

func (s *MemoryStore) ListTabsForExport(ownerID string, ids []string) ([]domain.TabDetail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}
	var details []domain.TabDetail
	for _, id := range s.tabOrder {
		tab := s.tabs[id]
		if tab.OwnerID != ownerID || tab.DeletedAt != nil {
			continue
		}
		if len(ids) > 0 && !wanted[id] {
			continue
		}
		details = append(details, s.detailLocked(*tab))
	}
	sort.SliceStable(details, func(i, j int) bool {
		return details[i].CollectedAt.Before(details[j].CollectedAt)
	})
	return details, nil
}

func (s *MemoryStore) FilterOptions(ownerID string) (domain.FilterOptions, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	opts := domain.FilterOptions{}
	statusSeen := make(map[domain.TabStatus]bool)
	typeSeen := make(map[domain.ContentType]bool)
	for _, id := range s.tabOrder {
		tab := s.tabs[id]
		if tab.OwnerID != ownerID || tab.DeletedAt != nil {
			continue
		}
		opts.Total++
		if tab.IsProcessed {
			opts.Processed++
		}
		statusSeen[tab.Status] = true
		if rec, ok := s.enrichments[id]; ok && rec.ContentType != "" {
			typeSeen[rec.ContentType] = true
		}
	}
	opts.Unprocessed = opts.Total - opts.Processed
	for status := range statusSeen {
		opts.Statuses = append(opts.Statuses, status)
	}
	sort.Slice(opts.Statuses, func(i, j int) bool { return opts.Statuses[i] < opts.Statuses[j] })
	for ct := range typeSeen {
		opts.ContentTypes = append(opts.ContentTypes, ct)
	}
	sort.Slice(opts.ContentTypes, func(i, j int) bool { return opts.ContentTypes[i] < opts.ContentTypes[j] })
	return opts, nil
}

func (s *MemoryStore) SaveEmbedding(tabID string, vector []float32, modelName string) error {
	if len(vector) == 0 {
		return fmt.Errorf("embedding vector is empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := make([]float32, len(vector))
	copy(stored, vector)
	s.embeddings[tabID] = memoryEmbedding{vector: stored, modelName: modelName}
	return nil
}

func (s *MemoryStore) SemanticSearch(ownerID string, vector []float32, limit int) ([]domain.TabDetail, error) {
	if len(vector) == 0 {
		return nil, fmt.Errorf("embedding vector is empty")
	}
	if limit <= 0 {
		limit = 20
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var results []domain.TabDetail
	for _, id := range s.tabOrder {
		tab := s.tabs[id]
		if tab.OwnerID != ownerID || tab.DeletedAt != nil {
			continue
		}
		emb, ok := s.embeddings[id]
		if !ok {
			continue
		}
		detail := s.detailLocked(*tab)
		detail.Similarity = cosineSimilarity(vector, emb.vector)
		results = append(results, detail)
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (s *MemoryStore) ListTabsWithoutEmbedding(ownerID string, limit int) ([]domain.Tab, error) {
	if limit <= 0 {
		limit = 100
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var tabs []domain.Tab
	for _, id := range s.tabOrder {
		tab := s.tabs[id]
		if tab.OwnerID != ownerID || tab.DeletedAt != nil || tab.Status != domain.StatusEnriched {
			continue
		}
		if _, ok := s.embeddings[id]; ok {
			continue
		}
		tabs = append(tabs, *tab)
		if len(tabs) >= limit {
			break
		}
	}
	return tabs, nil
}

func (s *MemoryStore) AppendEvent(event domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if event.ID == "" {
		event.ID = util.NewID()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	s.events = append(s.events, event)
	return nil
}

func (s *MemoryStore) ListEvents(ownerID string, limit int) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var events []domain.Event
	for i := len(s.events) - 1; i >= 0 && len(events) < limit; i-- {
		if s.events[i].OwnerID == ownerID {
			events = append(events, s.events[i])
		}
	}
	return events, nil
}

func (s *MemoryStore) activeTab(ownerID, id string) (*domain.Tab, bool) {
	tab, ok := s.tabs[id]
	if !ok || tab.OwnerID != ownerID || tab.DeletedAt != nil {
		return nil, false
	}
	return tab, true
}

func (s *MemoryStore) requireStatus(tabID string, expected domain.TabStatus) (*domain.Tab, error) {
	tab, ok := s.tabs[tabID]
	if !ok || tab.DeletedAt != nil {
		return nil, fmt.Errorf("tab %s not found", tabID)
	}
	if tab.Status != expected {
		return nil, fmt.Errorf("%w: have %s, want %s", ErrStatusConflict, tab.Status, expected)
	}
	return tab, nil
}

func (s *MemoryStore) detailLocked(tab domain.Tab) domain.TabDetail {
	detail := domain.TabDetail{Tab: tab}
	if content, ok := s.parsed[tab.ID]; ok {
		detail.SiteKind = content.SiteKind
		detail.WordCount = content.WordCount
		detail.VideoSeconds = content.VideoSeconds
	}
	if rec, ok := s.enrichments[tab.ID]; ok {
		detail.Summary = rec.Summary
		detail.ContentType = rec.ContentType
		detail.EstReadMin = rec.EstReadMin
		detail.Priority = rec.Priority
		detail.Projects = append([]string(nil), rec.Projects...)
	}
	for _, tag := range s.tabTagsLocked(tab.ID) {
		detail.Tags = append(detail.Tags, tag.Name)
	}
	return detail
}

func (s *MemoryStore) logEvent(ownerID, eventType, entityType, entityID string, details domain.Meta) {
	s.events = append(s.events, domain.Event{
		ID:         util.NewID(),
		OwnerID:    ownerID,
		Type:       eventType,
		EntityType: entityType,
		EntityID:   entityID,
		Details:    details,
		CreatedAt:  time.Now().UTC(),
	})
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
