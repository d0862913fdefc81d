package store

import (
	"strings"
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"

	"tabbacklog/pkg/domain"
)

// detailRow is the scan target for the joined read model. GORM maps the raw
// SELECT onto it by column name.
type detailRow struct {
	ID           string
	OwnerID      string
	URL          string
	PageTitle    string
	WindowLabel  string
	CollectedAt  time.Time
	Status       string
	LastError    string
	ErrorAt      *time.Time
	IsProcessed  bool
	ProcessedAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
	SiteKind     string
	WordCount    int
	VideoSeconds int
	Summary      string
	ContentType  string
	EstReadMin   int
	Priority     string
	RawMeta      datatypes.JSON
	Similarity   float64
}

const detailColumns = `
	t.id, t.owner_id, t.url, t.page_title, t.window_label, t.collected_at,
	t.status, t.last_error, t.error_at, t.is_processed, t.processed_at,
	t.created_at, t.updated_at,
	COALESCE(p.site_kind, '') AS site_kind,
	COALESCE(p.word_count, 0) AS word_count,
	COALESCE(p.video_seconds, 0) AS video_seconds,
	COALESCE(e.summary, '') AS summary,
	COALESCE(e.content_type, '') AS content_type,
	COALESCE(e.est_read_min, 0) AS est_read_min,
	COALESCE(e.priority, '') AS priority,
	e.raw_meta AS raw_meta`

const detailJoins = `
	FROM tab_models t
	LEFT JOIN parsed_content_models p ON p.tab_id = t.id
	LEFT JOIN enrichment_models e ON e.tab_id = t.id`

// ListTabs returns one page of the owner's tabs matching the filters, newest
// collected first. Search matches title, summary, and URL using trigram
// similarity plus plain substring matching, so short queries still hit.
func (s *GormStore) ListTabs(ownerID string, filters domain.TabFilters) (domain.TabPage, error) {
	page := filters.Page
	if page < 1 {
		page = 1
	}
	perPage := filters.PerPage
	if perPage < 1 {
		perPage = defaultPerPage
	}

	where := []string{"t.owner_id = ?", "t.deleted_at IS NULL"}
	args := []any{ownerID}
	if filters.Status != "" {
		where = append(where, "t.status = ?")
		args = append(args, string(filters.Status))
	}
	if filters.Processed != nil {
		where = append(where, "t.is_processed = ?")
		args = append(args, *filters.Processed)
	}
	if filters.ContentType != "" {
		where = append(where, "e.content_type = ?")
		args = append(args, string(filters.ContentType))
	}
	if filters.ReadTimeMax > 0 {
		where = append(where, "e.est_read_min > 0 AND e.est_read_min <= ?")
		args = append(args, filters.ReadTimeMax)
	}
	if filters.Project != "" {
		where = append(where, "jsonb_exists(e.raw_meta -> 'projects', ?)")
		args = append(args, filters.Project)
	}
	if q := strings.TrimSpace(filters.Search); q != "" {
		like := "%" + q + "%"
		where = append(where, `(
			t.page_title % ? OR t.page_title ILIKE ?
			OR COALESCE(e.summary, '') % ? OR COALESCE(e.summary, '') ILIKE ?
			OR t.url ILIKE ?
		)`)
		args = append(args, q, like, q, like, like)
	}
	condition := strings.Join(where, " AND ")

	var total int64
	countSQL := "SELECT count(*) " + detailJoins + " WHERE " + condition
	if err := s.db.Raw(countSQL, args...).Scan(&total).Error; err != nil {
		return domain.TabPage{}, err
	}

	listSQL := "SELECT " + detailColumns + detailJoins + " WHERE " + condition +
		" ORDER BY t.collected_at DESC LIMIT ? OFFSET ?"
	listArgs := append(append([]any{}, args...), perPage, (page-1)*perPage)
	var rows []detailRow
	if err := s.db.Raw(listSQL, listArgs...).Scan(&rows).Error; err != nil {
		return domain.TabPage{}, err
	}
	details, err := s.detailsFromRows(rows)
	if err != nil {
		return domain.TabPage{}, err
	}
	totalPages := int((total + int64(perPage) - 1) / int64(perPage))
	return domain.TabPage{
		Tabs:       details,
		Total:      int(total),
		Page:       page,
		PerPage:    perPage,
		TotalPages: totalPages,
	}, nil
}

// GetTabDetail returns the full read model for one tab.
func (s *GormStore) GetTabDetail(ownerID, id string) (domain.TabDetail, bool, error) {
	var rows []detailRow
	query := "SELECT " + detailColumns + detailJoins +
		" WHERE t.id = ? AND t.owner_id = ? AND t.deleted_at IS NULL"
	if err := s.db.Raw(query, id, ownerID).Scan(&rows).Error; err != nil {
		return domain.TabDetail{}, false, err
	}
	if len(rows) == 0 {
		return domain.TabDetail{}, false, nil
	}
	details, err := s.detailsFromRows(rows)
	if err != nil {
		return domain.TabDetail{}, false, err
	}
	return details[0], true, nil
}

// ListTabsForExport returns detail rows for export. With no ids it returns
// every non-deleted tab for the owner, oldest collected first so exports read
// chronologically.
func (s *GormStore) ListTabsForExport(ownerID string, ids []string) ([]domain.TabDetail, error) {
	query := "SELECT " + detailColumns + detailJoins +
		" WHERE t.owner_id = ? AND t.deleted_at IS NULL"
	args := []any{ownerID}
	if len(ids) > 0 {
		query += " AND t.id IN ?"
		args = append(args, ids)
	}
	query += " ORDER BY t.collected_at ASC"
	var rows []detailRow
	if err := s.db.Raw(query, args...).Scan(&rows).Error; err != nil {
		return nil, err
	}
	return s.detailsFromRows(rows)
}

// SemanticSearch ranks the owner's embedded tabs by cosine similarity to the
// query vector. Similarity is 1 - cosine distance, so identical vectors score
// 1.0.
func (s *GormStore) SemanticSearch(ownerID string, vector []float32, limit int) ([]domain.TabDetail, error) {
	if err := s.validateEmbeddingDim(vector); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}
	query := "SELECT " + detailColumns + `,
		1 - (emb.embedding <=> ?) AS similarity` + detailJoins + `
		JOIN embedding_models emb ON emb.tab_id = t.id
		WHERE t.owner_id = ? AND t.deleted_at IS NULL
		ORDER BY emb.embedding <=> ?
		LIMIT ?`
	vec := pgvector.NewVector(vector)
	var rows []detailRow
	if err := s.db.Raw(query, vec, ownerID, vec, limit).Scan(&rows).Error; err != nil {
		return nil, err
	}
	return s.detailsFromRows(rows)
}

// FilterOptions reports the distinct statuses and content types present in
// the owner's tabs plus processed counts, for the UI filter bar.
func (s *GormStore) FilterOptions(ownerID string) (domain.FilterOptions, error) {
	opts := domain.FilterOptions{}
	var statuses []string
	if err := s.db.Raw(`
		SELECT DISTINCT status FROM tab_models
		WHERE owner_id = ? AND deleted_at IS NULL
		ORDER BY status
	`, ownerID).Scan(&statuses).Error; err != nil {
		return opts, err
	}
	for _, status := range statuses {
		opts.Statuses = append(opts.Statuses, domain.TabStatus(status))
	}
	var contentTypes []string
	if err := s.db.Raw(`
		SELECT DISTINCT e.content_type FROM enrichment_models e
		JOIN tab_models t ON t.id = e.tab_id
		WHERE t.owner_id = ? AND t.deleted_at IS NULL AND e.content_type <> ''
		ORDER BY e.content_type
	`, ownerID).Scan(&contentTypes).Error; err != nil {
		return opts, err
	}
	for _, ct := range contentTypes {
		opts.ContentTypes = append(opts.ContentTypes, domain.ContentType(ct))
	}
	var counts struct {
		Total     int
		Processed int
	}
	if err := s.db.Raw(`
		SELECT count(*) AS total,
		       count(*) FILTER (WHERE is_processed) AS processed
		FROM tab_models
		WHERE owner_id = ? AND deleted_at IS NULL
	`, ownerID).Scan(&counts).Error; err != nil {
		return opts, err
	}
	opts.Total = counts.Total
	opts.Processed = counts.Processed
	opts.Unprocessed = counts.Total - counts.Processed
	return opts, nil
}

func (s *GormStore) detailsFromRows(rows []detailRow) ([]domain.TabDetail, error) {
	if len(rows) == 0 {
		return []domain.TabDetail{}, nil
	}
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	tagsByTab, err := s.tagNamesByTab(ids)
	if err != nil {
		return nil, err
	}
	details := make([]domain.TabDetail, 0, len(rows))
	for _, row := range rows {
		rawMeta := metaFromJSON(row.RawMeta)
		details = append(details, domain.TabDetail{
			Tab: domain.Tab{
				ID:          row.ID,
				OwnerID:     row.OwnerID,
				URL:         row.URL,
				PageTitle:   row.PageTitle,
				WindowLabel: row.WindowLabel,
				CollectedAt: row.CollectedAt,
				Status:      domain.TabStatus(row.Status),
				LastError:   row.LastError,
				ErrorAt:     row.ErrorAt,
				IsProcessed: row.IsProcessed,
				ProcessedAt: row.ProcessedAt,
				CreatedAt:   row.CreatedAt,
				UpdatedAt:   row.UpdatedAt,
			},
			SiteKind:     row.SiteKind,
			WordCount:    row.WordCount,
			VideoSeconds: row.VideoSeconds,
			Summary:      row.Summary,
			ContentType:  domain.ContentType(row.ContentType),
			EstReadMin:   row.EstReadMin,
			Priority:     domain.Priority(row.Priority),
			Tags:         tagsByTab[row.ID],
			Projects:     rawMeta.GetStrings("projects"),
			Similarity:   row.Similarity,
		})
	}
	return details, nil
}

func (s *GormStore) tagNamesByTab(tabIDs []string) (map[string][]string, error) {
	type tagRow struct {
		TabID string
		Name  string
	}
	var rows []tagRow
	if err := s.db.Raw(`
		SELECT l.tab_id, g.name FROM tab_tag_models l
		JOIN tag_models g ON g.id = l.tag_id
		WHERE l.tab_id IN ? AND g.deleted_at IS NULL
		ORDER BY g.name ASC
	`, tabIDs).Scan(&rows).Error; err != nil {
		return nil, err
	}
	byTab := make(map[string][]string, len(tabIDs))
	for _, row := range rows {
		byTab[row.TabID] = append(byTab[row.TabID], row.Name)
	}
	return byTab, nil
}
