package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"tabbacklog/internal/util"
	"tabbacklog/pkg/domain"
)

const migrateLockID int64 = 48103481

const (
	defaultEmbeddingDim      = 384
	canonicalEmbeddingDimEnv = "TABBACKLOG_EMBEDDING_DIM"
	defaultPerPage           = 50
)

type GormStoreOptions struct {
	EmbeddingDim int
}

type GormStoreOption func(*GormStoreOptions)

// WithEmbeddingDim sets the canonical embedding dimension used by storage.
func WithEmbeddingDim(dim int) GormStoreOption {
	return func(opts *GormStoreOptions) {
		opts.EmbeddingDim = dim
	}
}

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db           *gorm.DB
	embeddingDim int
}

// NewGormStore opens the DB and runs migrations: pgvector + pg_trgm
// extensions, auto-migrated tables, the partial unique indexes that enforce
// (owner, url) and (owner, name) uniqueness among non-deleted rows, and
// cascade foreign keys from the side tables to tabs.
func NewGormStore(dsn string, options ...GormStoreOption) (*GormStore, error) {
	opts := GormStoreOptions{}
	for _, option := range options {
		if option != nil {
			option(&opts)
		}
	}
	embeddingDim, err := resolveEmbeddingDim(opts.EmbeddingDim)
	if err != nil {
		return nil, err
	}

	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
			return fmt.Errorf("create pgvector extension: %w", err)
		}
		if err := tx.Exec("CREATE EXTENSION IF NOT EXISTS pg_trgm").Error; err != nil {
			return fmt.Errorf("create pg_trgm extension: %w", err)
		}
		if err := tx.AutoMigrate(
			&TabModel{}, &ParsedContentModel{}, &EnrichmentModel{},
			&EnrichmentHistoryModel{}, &TagModel{}, &TabTagModel{},
			&EmbeddingModel{}, &EventLogModel{},
		); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		if err := tx.Exec(fmt.Sprintf(`
			DO $$
			BEGIN
			IF EXISTS (
				SELECT 1 FROM information_schema.columns
				WHERE table_name = 'embedding_models' AND column_name = 'embedding'
			) THEN
				ALTER TABLE embedding_models ALTER COLUMN embedding TYPE vector(%d);
			END IF;
			END $$;
		`, embeddingDim)).Error; err != nil {
			return fmt.Errorf("alter embedding type: %w", err)
		}
		if err := tx.Exec(`
			CREATE UNIQUE INDEX IF NOT EXISTS idx_tab_owner_url_active
			ON tab_models (owner_id, url) WHERE deleted_at IS NULL
		`).Error; err != nil {
			return fmt.Errorf("create tab uniqueness index: %w", err)
		}
		if err := tx.Exec(`
			CREATE UNIQUE INDEX IF NOT EXISTS idx_tag_owner_name_active
			ON tag_models (owner_id, name) WHERE deleted_at IS NULL
		`).Error; err != nil {
			return fmt.Errorf("create tag uniqueness index: %w", err)
		}
		if err := tx.Exec(`
			CREATE INDEX IF NOT EXISTS idx_tab_title_trgm
			ON tab_models USING gin (page_title gin_trgm_ops)
		`).Error; err != nil {
			return fmt.Errorf("create title trigram index: %w", err)
		}
		if err := tx.Exec(`
			CREATE INDEX IF NOT EXISTS idx_enrichment_summary_trgm
			ON enrichment_models USING gin (summary gin_trgm_ops)
		`).Error; err != nil {
			return fmt.Errorf("create summary trigram index: %w", err)
		}
		for _, fk := range []struct{ table, constraint string }{
			{"parsed_content_models", "parsed_content_models_tab_id_fkey"},
			{"enrichment_models", "enrichment_models_tab_id_fkey"},
			{"enrichment_history_models", "enrichment_history_models_tab_id_fkey"},
			{"tab_tag_models", "tab_tag_models_tab_id_fkey"},
			{"embedding_models", "embedding_models_tab_id_fkey"},
		} {
			if err := tx.Exec(fmt.Sprintf(`
				DO $$
				BEGIN
					DELETE FROM %[1]s c
					WHERE NOT EXISTS (SELECT 1 FROM tab_models t WHERE t.id = c.tab_id);
					IF NOT EXISTS (
						SELECT 1 FROM information_schema.table_constraints
						WHERE table_schema = 'public'
						AND table_name = '%[1]s'
						AND constraint_name = '%[2]s'
					) THEN
						ALTER TABLE %[1]s
						ADD CONSTRAINT %[2]s
						FOREIGN KEY (tab_id) REFERENCES tab_models(id) ON DELETE CASCADE;
					END IF;
				END $$;
			`, fk.table, fk.constraint)).Error; err != nil {
				return fmt.Errorf("ensure %s foreign key: %w", fk.table, err)
			}
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db, embeddingDim: embeddingDim}, nil
}

func resolveEmbeddingDim(configValue int) (int, error) {
	if configValue > 0 {
		return configValue, nil
	}
	raw := strings.TrimSpace(os.Getenv(canonicalEmbeddingDimEnv))
	if raw == "" {
		return defaultEmbeddingDim, nil
	}
	dim, err := strconv.Atoi(raw)
	if err != nil || dim <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", canonicalEmbeddingDimEnv, raw)
	}
	return dim, nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// CreateTab inserts a tab if no non-deleted tab with the same (owner, url)
// exists. The bool result reports whether a new record was created; for
// duplicates the existing record is back-filled with title/window label when
// those are empty. Either way a tab_created / tab_duplicate_skipped event is
// logged in the same transaction.
func (s *GormStore) CreateTab(tab domain.Tab) (domain.Tab, bool, error) {
	now := time.Now().UTC()
	if tab.ID == "" {
		tab.ID = util.NewID()
	}
	if tab.CollectedAt.IsZero() {
		tab.CollectedAt = now
	}
	tab.Status = domain.StatusNew
	tab.CreatedAt = now
	tab.UpdatedAt = now

	var result domain.Tab
	created := false
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var existing TabModel
		lookupErr := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("owner_id = ? AND url = ? AND deleted_at IS NULL", tab.OwnerID, tab.URL).
			First(&existing).Error
		if lookupErr == nil {
			updates := map[string]any{"updated_at": now}
			if existing.PageTitle == "" && tab.PageTitle != "" {
				updates["page_title"] = tab.PageTitle
				existing.PageTitle = tab.PageTitle
			}
			if existing.WindowLabel == "" && tab.WindowLabel != "" {
				updates["window_label"] = tab.WindowLabel
				existing.WindowLabel = tab.WindowLabel
			}
			if err := tx.Model(&TabModel{}).Where("id = ?", existing.ID).Updates(updates).Error; err != nil {
				return err
			}
			result = tabFromModel(existing)
			return appendEventTx(tx, domain.Event{
				OwnerID:    tab.OwnerID,
				Type:       domain.EventTabDuplicateSkipped,
				EntityType: "tab",
				EntityID:   existing.ID,
				Details:    domain.Meta{"url": tab.URL},
			})
		}
		if lookupErr != gorm.ErrRecordNotFound {
			return lookupErr
		}
		model := tabToModel(tab)
		insert := tx.Clauses(clause.OnConflict{
			Columns:     []clause.Column{{Name: "owner_id"}, {Name: "url"}},
			TargetWhere: clause.Where{Exprs: []clause.Expression{gorm.Expr("deleted_at IS NULL")}},
			DoNothing:   true,
		}).Create(&model)
		if insert.Error != nil {
			return insert.Error
		}
		if insert.RowsAffected == 0 {
			// Lost a race with a concurrent insert for the same URL.
			if err := tx.Where("owner_id = ? AND url = ? AND deleted_at IS NULL", tab.OwnerID, tab.URL).
				First(&existing).Error; err != nil {
				return err
			}
			result = tabFromModel(existing)
			return appendEventTx(tx, domain.Event{
				OwnerID:    tab.OwnerID,
				Type:       domain.EventTabDuplicateSkipped,
				EntityType: "tab",
				EntityID:   existing.ID,
				Details:    domain.Meta{"url": tab.URL},
			})
		}
		created = true
		result = tabFromModel(model)
		return appendEventTx(tx, domain.Event{
			OwnerID:    tab.OwnerID,
			Type:       domain.EventTabCreated,
			EntityType: "tab",
			EntityID:   model.ID,
			Details:    domain.Meta{"url": tab.URL},
		})
	})
	if err != nil {
		return domain.Tab{}, false, err
	}
	return result, created, nil
}

// GetTab returns a non-deleted tab scoped to its owner.
func (s *GormStore) GetTab(ownerID, id string) (domain.Tab, bool, error) {
	var model TabModel
	err := s.db.Where("id = ? AND owner_id = ? AND deleted_at IS NULL", id, ownerID).First(&model).Error
	if err == gorm.ErrRecordNotFound {
		return domain.Tab{}, false, nil
	}
	if err != nil {
		return domain.Tab{}, false, err
	}
	return tabFromModel(model), true, nil
}

// SoftDeleteTab marks a tab deleted. The row stays; the partial unique index
// then allows the same URL to be re-added with a fresh identity.
func (s *GormStore) SoftDeleteTab(ownerID, id string) (bool, error) {
	deleted := false
	err := s.db.Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		res := tx.Model(&TabModel{}).
			Where("id = ? AND owner_id = ? AND deleted_at IS NULL", id, ownerID).
			Updates(map[string]any{"deleted_at": now, "updated_at": now})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		deleted = true
		return appendEventTx(tx, domain.Event{
			OwnerID:    ownerID,
			Type:       domain.EventTabDeleted,
			EntityType: "tab",
			EntityID:   id,
		})
	})
	return deleted, err
}

// SetProcessed flips the human-review flag and logs tab_processed /
// tab_unprocessed.
func (s *GormStore) SetProcessed(ownerID, id string, processed bool) (domain.Tab, bool, error) {
	var result domain.Tab
	found := false
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var model TabModel
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ? AND owner_id = ? AND deleted_at IS NULL", id, ownerID).
			First(&model).Error
		if err == gorm.ErrRecordNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		now := time.Now().UTC()
		model.IsProcessed = processed
		model.UpdatedAt = now
		eventType := domain.EventTabUnprocessed
		if processed {
			model.ProcessedAt = &now
			eventType = domain.EventTabProcessed
		} else {
			model.ProcessedAt = nil
		}
		if err := tx.Model(&TabModel{}).Where("id = ?", id).Updates(map[string]any{
			"is_processed": model.IsProcessed,
			"processed_at": model.ProcessedAt,
			"updated_at":   now,
		}).Error; err != nil {
			return err
		}
		result = tabFromModel(model)
		return appendEventTx(tx, domain.Event{
			OwnerID:    ownerID,
			Type:       eventType,
			EntityType: "tab",
			EntityID:   id,
		})
	})
	return result, found, err
}

// ResetTab moves fetch_error back to new and llm_error back to parsed,
// clearing the error fields. Any other current status is an
// ErrInvalidTransition.
func (s *GormStore) ResetTab(ownerID, id string) (domain.Tab, error) {
	var result domain.Tab
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var model TabModel
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ? AND owner_id = ? AND deleted_at IS NULL", id, ownerID).
			First(&model).Error
		if err != nil {
			return err
		}
		target, ok := resetTarget(domain.TabStatus(model.Status))
		if !ok {
			return fmt.Errorf("%w: reset from %s", ErrInvalidTransition, model.Status)
		}
		now := time.Now().UTC()
		if err := tx.Model(&TabModel{}).Where("id = ?", id).Updates(map[string]any{
			"status":     string(target),
			"last_error": "",
			"error_at":   nil,
			"updated_at": now,
		}).Error; err != nil {
			return err
		}
		model.Status = string(target)
		model.LastError = ""
		model.ErrorAt = nil
		model.UpdatedAt = now
		result = tabFromModel(model)
		return appendEventTx(tx, domain.Event{
			OwnerID:    ownerID,
			Type:       domain.EventTabReset,
			EntityType: "tab",
			EntityID:   id,
			Details:    domain.Meta{"to_status": string(target)},
		})
	})
	return result, err
}

// ClaimBatch atomically selects up to limit non-deleted tabs in the `from`
// status (oldest collected first) and flips them to the `to` pending status.
// The status flip is the lease: a record claimed here is invisible to any
// concurrent invocation selecting the same cohort. FOR UPDATE SKIP LOCKED
// keeps concurrent claimers from blocking on each other.
func (s *GormStore) ClaimBatch(ownerID string, from, to domain.TabStatus, limit int) ([]domain.Tab, error) {
	if !legalClaim(from, to) {
		return nil, fmt.Errorf("%w: claim %s -> %s", ErrInvalidTransition, from, to)
	}
	if limit <= 0 {
		return nil, nil
	}
	eventType, _ := claimEventType(to)
	var claimed []TabModel
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Raw(`
			UPDATE tab_models SET status = ?, updated_at = now()
			WHERE id IN (
				SELECT id FROM tab_models
				WHERE owner_id = ? AND status = ? AND deleted_at IS NULL
				ORDER BY collected_at ASC
				LIMIT ?
				FOR UPDATE SKIP LOCKED
			)
			RETURNING *
		`, string(to), ownerID, string(from), limit).Scan(&claimed).Error; err != nil {
			return err
		}
		for _, model := range claimed {
			if err := appendEventTx(tx, domain.Event{
				OwnerID:    ownerID,
				Type:       eventType,
				EntityType: "tab",
				EntityID:   model.ID,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	tabs := make([]domain.Tab, 0, len(claimed))
	for _, model := range claimed {
		tabs = append(tabs, tabFromModel(model))
	}
	return tabs, nil
}

// CompleteFetch records a successful parse: upserts the parsed content row
// (replace-in-place), moves the tab to parsed, and logs fetch_success in
// one transaction. Returns ErrStatusConflict unless the tab is currently
// fetch_pending, so re-running the step on an already-parsed record writes
// nothing.
func (s *GormStore) CompleteFetch(tabID string, page domain.ParsedPage, detail domain.Meta) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		model, err := lockTab(tx, tabID)
		if err != nil {
			return err
		}
		if model.Status != string(domain.StatusFetchPending) {
			return fmt.Errorf("%w: complete fetch on %s", ErrStatusConflict, model.Status)
		}
		now := time.Now().UTC()
		content := ParsedContentModel{
			TabID:        tabID,
			SiteKind:     page.SiteKind,
			Title:        page.Title,
			TextFull:     page.TextFull,
			WordCount:    page.WordCount,
			VideoSeconds: page.VideoSeconds,
			Metadata:     metaJSON(page.Metadata),
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "tab_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"site_kind", "title", "text_full", "word_count", "video_seconds", "metadata", "updated_at",
			}),
		}).Create(&content).Error; err != nil {
			return err
		}
		if err := tx.Model(&TabModel{}).Where("id = ?", tabID).Updates(map[string]any{
			"status":     string(domain.StatusParsed),
			"last_error": "",
			"error_at":   nil,
			"updated_at": now,
		}).Error; err != nil {
			return err
		}
		details := detail.Clone()
		if details == nil {
			details = domain.Meta{}
		}
		details["site_kind"] = page.SiteKind
		details["word_count"] = page.WordCount
		return appendEventTx(tx, domain.Event{
			OwnerID:    model.OwnerID,
			Type:       domain.EventFetchSuccess,
			EntityType: "tab",
			EntityID:   tabID,
			Details:    details,
		})
	})
}

// FailFetch records a fetch failure: status fetch_error, last_error/error_at
// populated, one fetch_error event. Requires fetch_pending.
func (s *GormStore) FailFetch(tabID, message string, detail domain.Meta) error {
	return s.failStep(tabID, domain.StatusFetchPending, domain.StatusFetchError, domain.EventFetchError, message, detail)
}

func (s *GormStore) failStep(tabID string, requires, target domain.TabStatus, eventType, message string, detail domain.Meta) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		model, err := lockTab(tx, tabID)
		if err != nil {
			return err
		}
		if model.Status != string(requires) {
			return fmt.Errorf("%w: fail step on %s", ErrStatusConflict, model.Status)
		}
		now := time.Now().UTC()
		if err := tx.Model(&TabModel{}).Where("id = ?", tabID).Updates(map[string]any{
			"status":     string(target),
			"last_error": message,
			"error_at":   now,
			"updated_at": now,
		}).Error; err != nil {
			return err
		}
		details := detail.Clone()
		if details == nil {
			details = domain.Meta{}
		}
		details["error"] = message
		return appendEventTx(tx, domain.Event{
			OwnerID:    model.OwnerID,
			Type:       eventType,
			EntityType: "tab",
			EntityID:   tabID,
			Details:    details,
		})
	})
}

// CompleteEnrichment records a successful enrichment in one transaction:
// upsert the current enrichment, append one history row, resolve tag names
// (find-or-create, kind auto) and link them idempotently, move the tab to
// enriched, and log llm_enrich_success. Requires llm_pending.
func (s *GormStore) CompleteEnrichment(tabID string, rec domain.EnrichmentRecord, attempt domain.EnrichmentAttempt) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		model, err := lockTab(tx, tabID)
		if err != nil {
			return err
		}
		if model.Status != string(domain.StatusLLMPending) {
			return fmt.Errorf("%w: complete enrichment on %s", ErrStatusConflict, model.Status)
		}
		now := time.Now().UTC()
		rawMeta := rec.RawMeta.Clone()
		if rawMeta == nil {
			rawMeta = domain.Meta{}
		}
		rawMeta["tags"] = rec.Tags
		rawMeta["projects"] = rec.Projects
		enrichment := EnrichmentModel{
			TabID:       tabID,
			Summary:     rec.Summary,
			ContentType: string(rec.ContentType),
			EstReadMin:  rec.EstReadMin,
			Priority:    string(rec.Priority),
			ModelName:   rec.ModelName,
			RawMeta:     metaJSON(rawMeta),
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "tab_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"summary", "content_type", "est_read_min", "priority", "model_name", "raw_meta", "updated_at",
			}),
		}).Create(&enrichment).Error; err != nil {
			return err
		}
		attempt.TabID = tabID
		attempt.Succeeded = true
		if err := appendHistoryTx(tx, attempt); err != nil {
			return err
		}
		for _, name := range rec.Tags {
			tag, err := findOrCreateTagTx(tx, model.OwnerID, name, domain.TagAuto)
			if err != nil {
				return err
			}
			if err := linkTagTx(tx, tabID, tag.ID); err != nil {
				return err
			}
		}
		if err := tx.Model(&TabModel{}).Where("id = ?", tabID).Updates(map[string]any{
			"status":     string(domain.StatusEnriched),
			"last_error": "",
			"error_at":   nil,
			"updated_at": now,
		}).Error; err != nil {
			return err
		}
		return appendEventTx(tx, domain.Event{
			OwnerID:    model.OwnerID,
			Type:       domain.EventLLMEnrichSuccess,
			EntityType: "tab",
			EntityID:   tabID,
			Details: domain.Meta{
				"content_type": string(rec.ContentType),
				"model_name":   rec.ModelName,
				"tag_count":    len(rec.Tags),
			},
		})
	})
}

// FailEnrichment records a failed enrichment: status llm_error, error fields,
// one llm_enrich_error event, and one history row capturing the attempt. Requires llm_pending.
func (s *GormStore) FailEnrichment(tabID, message string, attempt domain.EnrichmentAttempt, detail domain.Meta) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		model, err := lockTab(tx, tabID)
		if err != nil {
			return err
		}
		if model.Status != string(domain.StatusLLMPending) {
			return fmt.Errorf("%w: fail enrichment on %s", ErrStatusConflict, model.Status)
		}
		now := time.Now().UTC()
		attempt.TabID = tabID
		attempt.Succeeded = false
		attempt.ErrorMessage = message
		if err := appendHistoryTx(tx, attempt); err != nil {
			return err
		}
		if err := tx.Model(&TabModel{}).Where("id = ?", tabID).Updates(map[string]any{
			"status":     string(domain.StatusLLMError),
			"last_error": message,
			"error_at":   now,
			"updated_at": now,
		}).Error; err != nil {
			return err
		}
		details := detail.Clone()
		if details == nil {
			details = domain.Meta{}
		}
		details["error"] = message
		return appendEventTx(tx, domain.Event{
			OwnerID:    model.OwnerID,
			Type:       domain.EventLLMEnrichError,
			EntityType: "tab",
			EntityID:   tabID,
			Details:    details,
		})
	})
}

func lockTab(tx *gorm.DB, tabID string) (TabModel, error) {
	var model TabModel
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ? AND deleted_at IS NULL", tabID).
		First(&model).Error
	return model, err
}

// GetParsedContent returns the stored parse result for a tab.
func (s *GormStore) GetParsedContent(tabID string) (domain.ParsedContent, bool, error) {
	var model ParsedContentModel
	err := s.db.First(&model, "tab_id = ?", tabID).Error
	if err == gorm.ErrRecordNotFound {
		return domain.ParsedContent{}, false, nil
	}
	if err != nil {
		return domain.ParsedContent{}, false, err
	}
	return parsedContentFromModel(model), true, nil
}

// GetEnrichment returns the current enrichment for a tab.
func (s *GormStore) GetEnrichment(tabID string) (domain.EnrichmentRecord, bool, error) {
	var model EnrichmentModel
	err := s.db.First(&model, "tab_id = ?", tabID).Error
	if err == gorm.ErrRecordNotFound {
		return domain.EnrichmentRecord{}, false, nil
	}
	if err != nil {
		return domain.EnrichmentRecord{}, false, err
	}
	return enrichmentFromModel(model), true, nil
}

// ListEnrichmentHistory returns all attempts for a tab, oldest first.
func (s *GormStore) ListEnrichmentHistory(tabID string) ([]domain.EnrichmentAttempt, error) {
	var models []EnrichmentHistoryModel
	if err := s.db.Where("tab_id = ?", tabID).Order("started_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	attempts := make([]domain.EnrichmentAttempt, 0, len(models))
	for _, model := range models {
		attempts = append(attempts, historyFromModel(model))
	}
	return attempts, nil
}

// FindOrCreateTag returns the owner's non-deleted tag with the given name,
// creating it when absent. The insert carries an on-conflict guard against
// the partial unique index, so concurrent enrichments suggesting the same new
// name cannot duplicate it.
func (s *GormStore) FindOrCreateTag(ownerID, name string, kind domain.TagKind) (domain.Tag, error) {
	var tag domain.Tag
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		tag, err = findOrCreateTagTx(tx, ownerID, name, kind)
		return err
	})
	return tag, err
}

func findOrCreateTagTx(tx *gorm.DB, ownerID, name string, kind domain.TagKind) (domain.Tag, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Tag{}, fmt.Errorf("tag name required")
	}
	var model TagModel
	err := tx.Where("owner_id = ? AND name = ? AND deleted_at IS NULL", ownerID, name).First(&model).Error
	if err == nil {
		return tagFromModel(model), nil
	}
	if err != gorm.ErrRecordNotFound {
		return domain.Tag{}, err
	}
	model = TagModel{
		ID:        util.NewID(),
		OwnerID:   ownerID,
		Name:      name,
		Kind:      string(kind),
		CreatedAt: time.Now().UTC(),
	}
	insert := tx.Clauses(clause.OnConflict{
		Columns:     []clause.Column{{Name: "owner_id"}, {Name: "name"}},
		TargetWhere: clause.Where{Exprs: []clause.Expression{gorm.Expr("deleted_at IS NULL")}},
		DoNothing:   true,
	}).Create(&model)
	if insert.Error != nil {
		return domain.Tag{}, insert.Error
	}
	if insert.RowsAffected == 0 {
		if err := tx.Where("owner_id = ? AND name = ? AND deleted_at IS NULL", ownerID, name).
			First(&model).Error; err != nil {
			return domain.Tag{}, err
		}
	}
	return tagFromModel(model), nil
}

func linkTagTx(tx *gorm.DB, tabID, tagID string) error {
	link := TabTagModel{TabID: tabID, TagID: tagID, CreatedAt: time.Now().UTC()}
	return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&link).Error
}

// ListTabTags returns the non-deleted tags linked to a tab.
func (s *GormStore) ListTabTags(tabID string) ([]domain.Tag, error) {
	var models []TagModel
	if err := s.db.Raw(`
		SELECT g.* FROM tag_models g
		JOIN tab_tag_models l ON l.tag_id = g.id
		WHERE l.tab_id = ? AND g.deleted_at IS NULL
		ORDER BY g.name ASC
	`, tabID).Scan(&models).Error; err != nil {
		return nil, err
	}
	tags := make([]domain.Tag, 0, len(models))
	for _, model := range models {
		tags = append(tags, tagFromModel(model))
	}
	return tags, nil
}

// AppendEvent writes one audit entry.
func (s *GormStore) AppendEvent(event domain.Event) error {
	return appendEventTx(s.db, event)
}

func appendEventTx(tx *gorm.DB, event domain.Event) error {
	if event.ID == "" {
		event.ID = util.NewID()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	model := EventLogModel{
		ID:         event.ID,
		OwnerID:    event.OwnerID,
		EventType:  event.Type,
		EntityType: event.EntityType,
		EntityID:   event.EntityID,
		Details:    metaJSON(event.Details),
		CreatedAt:  event.CreatedAt,
	}
	return tx.Create(&model).Error
}

func appendHistoryTx(tx *gorm.DB, attempt domain.EnrichmentAttempt) error {
	if attempt.ID == "" {
		attempt.ID = util.NewID()
	}
	model := EnrichmentHistoryModel{
		ID:           attempt.ID,
		TabID:        attempt.TabID,
		StartedAt:    attempt.StartedAt,
		FinishedAt:   attempt.FinishedAt,
		Succeeded:    attempt.Succeeded,
		Summary:      attempt.Summary,
		ContentType:  string(attempt.ContentType),
		EstReadMin:   attempt.EstReadMin,
		Priority:     string(attempt.Priority),
		ModelName:    attempt.ModelName,
		ErrorMessage: attempt.ErrorMessage,
		RawMeta:      metaJSON(attempt.RawMeta),
		CreatedAt:    time.Now().UTC(),
	}
	return tx.Create(&model).Error
}

// ListEvents returns the newest events for an owner.
func (s *GormStore) ListEvents(ownerID string, limit int) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	var models []EventLogModel
	if err := s.db.Where("owner_id = ?", ownerID).
		Order("created_at DESC").Limit(limit).Find(&models).Error; err != nil {
		return nil, err
	}
	events := make([]domain.Event, 0, len(models))
	for _, model := range models {
		events = append(events, eventFromModel(model))
	}
	return events, nil
}

// SaveEmbedding upserts the similarity vector for a tab.
func (s *GormStore) SaveEmbedding(tabID string, vector []float32, modelName string) error {
	if err := s.validateEmbeddingDim(vector); err != nil {
		return err
	}
	model := EmbeddingModel{
		TabID:     tabID,
		Embedding: pgvector.NewVector(vector),
		ModelName: modelName,
		UpdatedAt: time.Now().UTC(),
	}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tab_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"embedding", "model_name", "updated_at"}),
	}).Create(&model).Error
}

// ListTabsWithoutEmbedding returns enriched tabs that have no vector yet.
func (s *GormStore) ListTabsWithoutEmbedding(ownerID string, limit int) ([]domain.Tab, error) {
	if limit <= 0 {
		limit = 100
	}
	var models []TabModel
	if err := s.db.Raw(`
		SELECT t.* FROM tab_models t
		LEFT JOIN embedding_models emb ON emb.tab_id = t.id
		WHERE t.owner_id = ? AND t.deleted_at IS NULL
		  AND t.status = ? AND emb.tab_id IS NULL
		ORDER BY t.created_at DESC
		LIMIT ?
	`, ownerID, string(domain.StatusEnriched), limit).Scan(&models).Error; err != nil {
		return nil, err
	}
	tabs := make([]domain.Tab, 0, len(models))
	for _, model := range models {
		tabs = append(tabs, tabFromModel(model))
	}
	return tabs, nil
}

func (s *GormStore) validateEmbeddingDim(vector []float32) error {
	if len(vector) == 0 {
		return fmt.Errorf("embedding vector is empty")
	}
	if s.embeddingDim > 0 && len(vector) != s.embeddingDim {
		return fmt.Errorf("embedding dimension mismatch: got %d, want %d", len(vector), s.embeddingDim)
	}
	return nil
}

func metaJSON(m domain.Meta) datatypes.JSON {
	if m == nil {
		return nil
	}
	raw, _ := json.Marshal(m)
	return raw
}

func metaFromJSON(raw datatypes.JSON) domain.Meta {
	if len(raw) == 0 {
		return nil
	}
	var m domain.Meta
	_ = json.Unmarshal(raw, &m)
	return m
}

func tabToModel(t domain.Tab) TabModel {
	return TabModel{
		ID:          t.ID,
		OwnerID:     t.OwnerID,
		URL:         t.URL,
		PageTitle:   t.PageTitle,
		WindowLabel: t.WindowLabel,
		CollectedAt: t.CollectedAt,
		Status:      string(t.Status),
		LastError:   t.LastError,
		ErrorAt:     t.ErrorAt,
		IsProcessed: t.IsProcessed,
		ProcessedAt: t.ProcessedAt,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
		DeletedAt:   t.DeletedAt,
	}
}

func tabFromModel(m TabModel) domain.Tab {
	return domain.Tab{
		ID:          m.ID,
		OwnerID:     m.OwnerID,
		URL:         m.URL,
		PageTitle:   m.PageTitle,
		WindowLabel: m.WindowLabel,
		CollectedAt: m.CollectedAt,
		Status:      domain.TabStatus(m.Status),
		LastError:   m.LastError,
		ErrorAt:     m.ErrorAt,
		IsProcessed: m.IsProcessed,
		ProcessedAt: m.ProcessedAt,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
		DeletedAt:   m.DeletedAt,
	}
}

func parsedContentFromModel(m ParsedContentModel) domain.ParsedContent {
	return domain.ParsedContent{
		TabID: m.TabID,
		ParsedPage: domain.ParsedPage{
			SiteKind:     m.SiteKind,
			Title:        m.Title,
			TextFull:     m.TextFull,
			WordCount:    m.WordCount,
			VideoSeconds: m.VideoSeconds,
			Metadata:     metaFromJSON(m.Metadata),
		},
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func enrichmentFromModel(m EnrichmentModel) domain.EnrichmentRecord {
	rawMeta := metaFromJSON(m.RawMeta)
	return domain.EnrichmentRecord{
		TabID: m.TabID,
		Enrichment: domain.Enrichment{
			Summary:     m.Summary,
			ContentType: domain.ContentType(m.ContentType),
			Tags:        rawMeta.GetStrings("tags"),
			Projects:    rawMeta.GetStrings("projects"),
			EstReadMin:  m.EstReadMin,
			Priority:    domain.Priority(m.Priority),
		},
		ModelName: m.ModelName,
		RawMeta:   rawMeta,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func historyFromModel(m EnrichmentHistoryModel) domain.EnrichmentAttempt {
	rawMeta := metaFromJSON(m.RawMeta)
	return domain.EnrichmentAttempt{
		ID:         m.ID,
		TabID:      m.TabID,
		StartedAt:  m.StartedAt,
		FinishedAt: m.FinishedAt,
		Succeeded:  m.Succeeded,
		Enrichment: domain.Enrichment{
			Summary:     m.Summary,
			ContentType: domain.ContentType(m.ContentType),
			Tags:        rawMeta.GetStrings("tags"),
			Projects:    rawMeta.GetStrings("projects"),
			EstReadMin:  m.EstReadMin,
			Priority:    domain.Priority(m.Priority),
		},
		ModelName:    m.ModelName,
		ErrorMessage: m.ErrorMessage,
		RawMeta:      rawMeta,
	}
}

func tagFromModel(m TagModel) domain.Tag {
	return domain.Tag{
		ID:        m.ID,
		OwnerID:   m.OwnerID,
		Name:      m.Name,
		Kind:      domain.TagKind(m.Kind),
		CreatedAt: m.CreatedAt,
		DeletedAt: m.DeletedAt,
	}
}

func eventFromModel(m EventLogModel) domain.Event {
	return domain.Event{
		ID:         m.ID,
		OwnerID:    m.OwnerID,
		Type:       m.EventType,
		EntityType: m.EntityType,
		EntityID:   m.EntityID,
		Details:    metaFromJSON(m.Details),
		CreatedAt:  m.CreatedAt,
	}
}
