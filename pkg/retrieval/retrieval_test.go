package retrieval_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devassist/agentcore/pkg/knowledge"
	"github.com/devassist/agentcore/pkg/retrieval"
	"github.com/devassist/agentcore/pkg/task"
)

type fakeEmbedder struct {
	vector []float32
	err    error
}

func (f fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return f.vector, f.err
}

type fakeStore struct {
	hits []knowledge.SearchHit
	err  error
}

func (f fakeStore) Upsert(ctx context.Context, points []knowledge.VectorPoint) error { return nil }
func (f fakeStore) Search(ctx context.Context, vector []float32, topK int, minScore float32, filter knowledge.SearchFilter) ([]knowledge.SearchHit, error) {
	return f.hits, f.err
}
func (f fakeStore) DeleteByIDs(ctx context.Context, ids []string) error { return nil }

func TestDiscover_MergesAndSortsByScore(t *testing.T) {
	text := fakeStore{hits: []knowledge.SearchHit{
		{ID: "t1", Score: 0.5, Payload: map[string]any{"content": "low score text", "path": "a.md"}},
	}}
	code := fakeStore{hits: []knowledge.SearchHit{
		{ID: "c1", Score: 0.9, Payload: map[string]any{"content": "high score code", "path": "b.go"}},
	}}
	sub := retrieval.New(fakeEmbedder{vector: []float32{0.1}}, knowledge.Collections{Text: text, Code: code}, 0, nil, nil)

	tc := &task.TaskContext{ClientID: "c1"}
	plan := &task.Plan{EnglishQuestion: "what changed"}
	out := sub.Discover(context.Background(), tc, plan, "what changed")

	require.Contains(t, out, "high score code")
	require.Contains(t, out, "low score text")
	// Higher-scoring hit appears first.
	assert.True(t, indexOf(out, "high score code") < indexOf(out, "low score text"))
}

func TestDiscover_NoHitsReturnsLiteral(t *testing.T) {
	sub := retrieval.New(fakeEmbedder{vector: []float32{0.1}}, knowledge.Collections{Text: fakeStore{}, Code: fakeStore{}}, 0, nil, nil)
	out := sub.Discover(context.Background(), &task.TaskContext{}, &task.Plan{}, "anything")
	assert.Equal(t, "No relevant context found.", out)
}

func TestDiscover_EmbeddingFailureDegradesToEmptyString(t *testing.T) {
	sub := retrieval.New(fakeEmbedder{err: errors.New("boom")}, knowledge.Collections{}, 0, nil, nil)
	out := sub.Discover(context.Background(), &task.TaskContext{}, &task.Plan{}, "anything")
	assert.Equal(t, "", out)
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}
