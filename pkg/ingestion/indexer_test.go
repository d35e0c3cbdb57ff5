package ingestion

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devassist/agentcore/pkg/knowledge"
	"github.com/devassist/agentcore/pkg/knowledge/store/inmem"
)

type fakeEmbedder struct {
	vector []float32
	err    error
}

func (f fakeEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	return f.vector, f.err
}

type fakeBodyFetcher struct {
	body string
	err  error
}

func (f fakeBodyFetcher) FetchBody(_ context.Context, _ *Connection, _ string) (string, error) {
	return f.body, f.err
}

func newTestIndexer(connectionID string, collection knowledge.VectorStore, items knowledge.DocumentStore, embedder Embedder, body BodyFetcher) *Indexer {
	return NewIndexer(connectionID, collection, items, embedder, body, nil, nil)
}

// TestProcessItem_SuccessIndexesAndDeletesPriorVector covers the indexing
// half of a version change: NEW -> INDEXING -> INDEXED with a new vector
// entry and the prior version's vector deleted.
func TestProcessItem_SuccessIndexesAndDeletesPriorVector(t *testing.T) {
	docs := inmem.New()
	vectors := inmem.NewVectorStore()

	require.NoError(t, vectors.Upsert(context.Background(), []knowledge.VectorPoint{
		{ID: "conn-1/X@2", Vector: []float32{0.1, 0.2}},
	}))

	item := &knowledge.IngestItem{
		ID: "conn-1/X@3", ConnectionID: "conn-1", ExternalID: "X",
		ExternalVersion: "3", PreviousVectorVersion: "2", State: knowledge.IngestStateNew,
	}
	require.NoError(t, docs.UpsertIngestItem(context.Background(), item))

	ix := newTestIndexer("conn-1", vectors, docs, fakeEmbedder{vector: []float32{1, 2, 3}}, fakeBodyFetcher{body: "page body"})
	ix.processItem(context.Background(), item)

	got, err := docs.GetIngestItem(context.Background(), "conn-1/X@3")
	require.NoError(t, err)
	assert.Equal(t, knowledge.IngestStateIndexed, got.State)
	assert.Empty(t, got.PreviousVectorVersion)

	hits, err := vectors.Search(context.Background(), []float32{1, 2, 3}, 10, 0, knowledge.SearchFilter{Global: true})
	require.NoError(t, err)
	ids := make([]string, 0, len(hits))
	for _, h := range hits {
		ids = append(ids, h.ID)
	}
	assert.Contains(t, ids, "conn-1/X@3")
	assert.NotContains(t, ids, "conn-1/X@2")
}

// TestProcessItem_EmbedFailureMarksFailed covers the failure branch:
// FAILED with lastError set and attemptCount incremented.
func TestProcessItem_EmbedFailureMarksFailed(t *testing.T) {
	docs := inmem.New()
	vectors := inmem.NewVectorStore()
	item := &knowledge.IngestItem{ID: "conn-1/Y@1", ConnectionID: "conn-1", ExternalID: "Y", ExternalVersion: "1", State: knowledge.IngestStateNew}
	require.NoError(t, docs.UpsertIngestItem(context.Background(), item))

	ix := newTestIndexer("conn-1", vectors, docs, fakeEmbedder{err: errors.New("embedding provider down")}, fakeBodyFetcher{body: "body"})
	ix.processItem(context.Background(), item)

	got, err := docs.GetIngestItem(context.Background(), "conn-1/Y@1")
	require.NoError(t, err)
	assert.Equal(t, knowledge.IngestStateFailed, got.State)
	assert.Equal(t, 1, got.AttemptCount)
	assert.Contains(t, got.LastError, "embedding provider down")
}

// TestProcessItem_LostCASRaceIsNoop covers "Exactly one worker may hold
// INDEXING" — a concurrent claim on the same item must not be double
// processed.
func TestProcessItem_LostCASRaceIsNoop(t *testing.T) {
	docs := inmem.New()
	vectors := inmem.NewVectorStore()
	item := &knowledge.IngestItem{ID: "conn-1/Z@1", ConnectionID: "conn-1", ExternalID: "Z", ExternalVersion: "1", State: knowledge.IngestStateNew}
	require.NoError(t, docs.UpsertIngestItem(context.Background(), item))
	// Simulate another worker already having claimed it.
	require.NoError(t, docs.CompareAndSwapIngestState(context.Background(), item.ID, knowledge.IngestStateNew, knowledge.IngestStateIndexing))

	ix := newTestIndexer("conn-1", vectors, docs, fakeEmbedder{vector: []float32{1}}, fakeBodyFetcher{body: "body"})
	ix.processItem(context.Background(), item)

	got, err := docs.GetIngestItem(context.Background(), "conn-1/Z@1")
	require.NoError(t, err)
	assert.Equal(t, knowledge.IngestStateIndexing, got.State)
}

func TestPendingItems_FiltersByConnection(t *testing.T) {
	docs := inmem.New()
	require.NoError(t, docs.UpsertIngestItem(context.Background(), &knowledge.IngestItem{ID: "a", ConnectionID: "conn-1", State: knowledge.IngestStateNew}))
	require.NoError(t, docs.UpsertIngestItem(context.Background(), &knowledge.IngestItem{ID: "b", ConnectionID: "conn-2", State: knowledge.IngestStateNew}))

	ix := newTestIndexer("conn-1", inmem.NewVectorStore(), docs, fakeEmbedder{}, fakeBodyFetcher{})
	got, err := ix.pendingItems(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].ID)
}
