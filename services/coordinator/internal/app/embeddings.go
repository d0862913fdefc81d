package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"tabbacklog/pkg/ai"
	"tabbacklog/pkg/domain"
	"tabbacklog/pkg/queue"
	"tabbacklog/pkg/store"
)

// queueEnqueuer adapts the Redis job queue to the EmbeddingEnqueuer interface.
type queueEnqueuer struct {
	queue *queue.RedisJobQueue
}

func NewQueueEnqueuer(q *queue.RedisJobQueue) EmbeddingEnqueuer {
	return &queueEnqueuer{queue: q}
}

func (e *queueEnqueuer) Enqueue(ctx context.Context, ownerID, tabID string) error {
	_, err := e.queue.Enqueue(ctx, ownerID, tabID)
	return err
}

// EmbeddingWorker consumes embedding jobs, embeds the tab's summary text, and
// stores the vector for semantic search.
type EmbeddingWorker struct {
	store    store.Store
	embedder ai.Embedder
	model    string
}

func NewEmbeddingWorker(st store.Store, embedder ai.Embedder, model string) *EmbeddingWorker {
	return &EmbeddingWorker{store: st, embedder: embedder, model: model}
}

// Handle processes one job. A tab that vanished or lost its enrichment since
// enqueue is not an error, the job is just done.
func (w *EmbeddingWorker) Handle(ctx context.Context, job queue.JobStatus) error {
	rec, ok, err := w.store.GetEnrichment(job.TabID)
	if err != nil {
		return fmt.Errorf("load enrichment: %w", err)
	}
	if !ok {
		slog.Info("embedding job skipped, no enrichment", "tabId", job.TabID)
		return nil
	}
	tab, ok, err := w.store.GetTab(job.OwnerID, job.TabID)
	if err != nil {
		return fmt.Errorf("load tab: %w", err)
	}
	if !ok {
		slog.Info("embedding job skipped, tab deleted", "tabId", job.TabID)
		return nil
	}

	vector, err := w.embedder.EmbedText(ctx, embeddingText(tab, rec))
	if err != nil {
		return fmt.Errorf("embed text: %w", err)
	}
	if err := w.store.SaveEmbedding(job.TabID, vector, w.model); err != nil {
		return fmt.Errorf("save embedding: %w", err)
	}
	return w.store.AppendEvent(domain.Event{
		OwnerID:    job.OwnerID,
		Type:       domain.EventEmbeddingSaved,
		EntityType: "tab",
		EntityID:   job.TabID,
		Details:    domain.Meta{"model": w.model, "dim": len(vector)},
	})
}

// embeddingText combines title, summary, and tags so search matches on any of
// them.
func embeddingText(tab domain.Tab, rec domain.EnrichmentRecord) string {
	parts := []string{tab.PageTitle, rec.Summary}
	if len(rec.Tags) > 0 {
		parts = append(parts, strings.Join(rec.Tags, " "))
	}
	var nonEmpty []string
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, "\n")
}

// BackfillEmbeddings enqueues jobs for enriched tabs that have no vector yet.
func (a *App) BackfillEmbeddings(ctx context.Context, ownerID string, limit int) (int, error) {
	if a.embeddings == nil {
		return 0, fmt.Errorf("embedding queue not configured")
	}
	tabs, err := a.store.ListTabsWithoutEmbedding(ownerID, limit)
	if err != nil {
		return 0, fmt.Errorf("list tabs without embedding: %w", err)
	}
	enqueued := 0
	for _, tab := range tabs {
		if err := a.embeddings.Enqueue(ctx, ownerID, tab.ID); err != nil {
			return enqueued, fmt.Errorf("enqueue tab %s: %w", tab.ID, err)
		}
		enqueued++
	}
	return enqueued, nil
}
