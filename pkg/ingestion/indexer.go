package ingestion

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/devassist/agentcore/pkg/knowledge"
	"github.com/devassist/agentcore/pkg/orcherr"
	"github.com/devassist/agentcore/pkg/telemetry"
)

// Indexer drives the NEW -> INDEXING -> {INDEXED, FAILED} lifecycle for one
// connection's IngestItems. It claims items
// with a CAS on state so at most one Indexer instance ever holds INDEXING
// on a given item, embeds their content via the Model Gateway, and upserts
// the resulting vector into the configured collection.
type Indexer struct {
	connectionID string
	collection   knowledge.VectorStore
	items        knowledge.DocumentStore
	embedder     Embedder
	bodyFetcher  BodyFetcher
	clock        Clock
	rng          *rand.Rand

	logger telemetry.Logger
	tracer telemetry.Tracer
}

// NewIndexer constructs an Indexer for one connection's NEW items, upserting
// into collection (the text or code embeddings store).
func NewIndexer(connectionID string, collection knowledge.VectorStore, items knowledge.DocumentStore, embedder Embedder, bodyFetcher BodyFetcher, logger telemetry.Logger, tracer telemetry.Tracer) *Indexer {
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	if tracer == nil {
		tracer = telemetry.NewNoopTracer()
	}
	return &Indexer{
		connectionID: connectionID,
		collection:   collection,
		items:        items,
		embedder:     embedder,
		bodyFetcher:  bodyFetcher,
		clock:        time.Now,
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())), //nolint:gosec // idle-sleep jitter, not security sensitive
		logger:       logger,
		tracer:       tracer,
	}
}

// Run blocks, draining NEW items for the connection until ctx is cancelled.
func (ix *Indexer) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return orcherr.Cancellation(err)
		}

		pending, err := ix.pendingItems(ctx)
		if err != nil {
			ix.logger.Error(ctx, "failed to list new ingest items", "connection", ix.connectionID, "error", err.Error())
			if err := sleepCtx(ctx, ix.idleDelay()); err != nil {
				return orcherr.Cancellation(err)
			}
			continue
		}

		if len(pending) == 0 {
			if err := sleepCtx(ctx, ix.idleDelay()); err != nil {
				return orcherr.Cancellation(err)
			}
			continue
		}

		for _, item := range pending {
			if err := ctx.Err(); err != nil {
				return orcherr.Cancellation(err)
			}
			ix.processItem(ctx, item)
		}
	}
}

// pendingItems lists this connection's NEW items, FIFO by createdAt (the
// document store's ListIngestItemsByState already returns that order).
func (ix *Indexer) pendingItems(ctx context.Context) ([]*knowledge.IngestItem, error) {
	all, err := ix.items.ListIngestItemsByState(ctx, knowledge.IngestStateNew)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, item := range all {
		if item.ConnectionID == ix.connectionID {
			out = append(out, item)
		}
	}
	return out, nil
}

func (ix *Indexer) idleDelay() time.Duration {
	span := indexerIdleMax - indexerIdleMin
	return indexerIdleMin + time.Duration(ix.rng.Int63n(int64(span)+1))
}

// processItem claims item, fetches its body, embeds it, and upserts the
// resulting vector, transitioning state at each stage.
func (ix *Indexer) processItem(ctx context.Context, item *knowledge.IngestItem) {
	ctx, span := ix.tracer.Start(ctx, "ingestion.Indexer.processItem")
	defer span.End()

	if err := ix.items.CompareAndSwapIngestState(ctx, item.ID, knowledge.IngestStateNew, knowledge.IngestStateIndexing); err != nil {
		// Another indexer instance already claimed this item; not an error.
		return
	}

	body, err := ix.bodyFetcher.FetchBody(ctx, &Connection{ID: item.ConnectionID}, item.ExternalID)
	if err != nil {
		ix.fail(ctx, item, fmt.Errorf("fetch body: %w", err))
		return
	}

	vector, err := ix.embedder.Embed(ctx, body)
	if err != nil {
		ix.fail(ctx, item, fmt.Errorf("embed: %w", err))
		return
	}

	vectorID := vectorPointID(item.ConnectionID, item.ExternalID, item.ExternalVersion)
	if err := ix.collection.Upsert(ctx, []knowledge.VectorPoint{{
		ID:     vectorID,
		Vector: vector,
		Metadata: map[string]any{
			"connectionId": item.ConnectionID,
			"externalId":   item.ExternalID,
			"version":      item.ExternalVersion,
		},
	}}); err != nil {
		ix.fail(ctx, item, fmt.Errorf("upsert vector: %w", err))
		return
	}

	if item.PreviousVectorVersion != "" {
		prevID := vectorPointID(item.ConnectionID, item.ExternalID, item.PreviousVectorVersion)
		if err := ix.collection.DeleteByIDs(ctx, []string{prevID}); err != nil {
			ix.logger.Warn(ctx, "failed to delete prior vector", "id", prevID, "error", err.Error())
		}
	}

	item.State = knowledge.IngestStateIndexed
	item.LastError = ""
	item.PreviousVectorVersion = ""
	item.UpdatedAt = ix.clock()
	if err := ix.items.UpsertIngestItem(ctx, item); err != nil {
		ix.logger.Error(ctx, "failed to persist indexed item", "item", item.ID, "error", err.Error())
		return
	}
	ix.logger.Debug(ctx, "item indexed", "item", item.ID, "connection", item.ConnectionID)
}

// fail records item as FAILED with cause as LastError and bumps
// AttemptCount; the item becomes eligible for retry on its next version
// change only.
func (ix *Indexer) fail(ctx context.Context, item *knowledge.IngestItem, cause error) {
	item.State = knowledge.IngestStateFailed
	item.LastError = cause.Error()
	item.AttemptCount++
	item.UpdatedAt = ix.clock()
	if err := ix.items.UpsertIngestItem(ctx, item); err != nil {
		ix.logger.Error(ctx, "failed to persist failed item", "item", item.ID, "error", err.Error())
	}
	ix.logger.Warn(ctx, "item indexing failed", "item", item.ID, "error", cause.Error())
}

func vectorPointID(connectionID, externalID, version string) string {
	return connectionID + "/" + externalID + "@" + version
}
