package store

import (
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
)

// GORM models used for persistence. The partial unique indexes on
// (owner_id, url) and (owner_id, name), scoped to deleted_at IS NULL, are
// created with raw SQL in NewGormStore since GORM tags cannot express them.
type TabModel struct {
	ID          string `gorm:"primaryKey"`
	OwnerID     string `gorm:"not null;index:idx_tab_owner_status,priority:1"`
	URL         string `gorm:"not null"`
	PageTitle   string
	WindowLabel string
	CollectedAt time.Time `gorm:"not null;index"`
	Status      string    `gorm:"not null;index:idx_tab_owner_status,priority:2"`
	LastError   string
	ErrorAt     *time.Time
	IsProcessed bool `gorm:"not null;default:false"`
	ProcessedAt *time.Time
	CreatedAt   time.Time  `gorm:"not null"`
	UpdatedAt   time.Time  `gorm:"not null"`
	DeletedAt   *time.Time `gorm:"index"`
}

type ParsedContentModel struct {
	TabID        string `gorm:"primaryKey"`
	SiteKind     string `gorm:"not null"`
	Title        string
	TextFull     string `gorm:"type:text"`
	WordCount    int
	VideoSeconds int
	Metadata     datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt    time.Time      `gorm:"not null"`
	UpdatedAt    time.Time      `gorm:"not null"`
}

type EnrichmentModel struct {
	TabID       string `gorm:"primaryKey"`
	Summary     string `gorm:"type:text"`
	ContentType string `gorm:"not null"`
	EstReadMin  int
	Priority    string
	ModelName   string
	RawMeta     datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt   time.Time      `gorm:"not null"`
	UpdatedAt   time.Time      `gorm:"not null"`
}

// EnrichmentHistoryModel rows are append-only: one per enrichment attempt,
// failures included.
type EnrichmentHistoryModel struct {
	ID           string    `gorm:"primaryKey"`
	TabID        string    `gorm:"not null;index"`
	StartedAt    time.Time `gorm:"not null"`
	FinishedAt   time.Time `gorm:"not null"`
	Succeeded    bool      `gorm:"not null"`
	Summary      string    `gorm:"type:text"`
	ContentType  string
	EstReadMin   int
	Priority     string
	ModelName    string
	ErrorMessage string
	RawMeta      datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt    time.Time      `gorm:"not null"`
}

type TagModel struct {
	ID        string `gorm:"primaryKey"`
	OwnerID   string `gorm:"not null;index"`
	Name      string `gorm:"not null"`
	Kind      string `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`
	DeletedAt *time.Time
}

type TabTagModel struct {
	TabID     string    `gorm:"primaryKey"`
	TagID     string    `gorm:"primaryKey"`
	CreatedAt time.Time `gorm:"not null"`
}

type EmbeddingModel struct {
	TabID     string          `gorm:"primaryKey"`
	Embedding pgvector.Vector `gorm:"type:vector(384)"`
	ModelName string          `gorm:"not null"`
	UpdatedAt time.Time       `gorm:"not null"`
}

type EventLogModel struct {
	ID         string `gorm:"primaryKey"`
	OwnerID    string `gorm:"not null;index"`
	EventType  string `gorm:"not null;index"`
	EntityType string
	EntityID   string
	Details    datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt  time.Time      `gorm:"not null;index"`
}
