package inmem

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/devassist/agentcore/pkg/knowledge"
)

// VectorStore is an in-memory knowledge.VectorStore doing brute-force cosine
// similarity search. Adequate for tests and small deployments; production
// use is expected to swap in a real vector database behind the same
// interface.
type VectorStore struct {
	mu     sync.RWMutex
	points map[string]knowledge.VectorPoint
}

// NewVectorStore returns an empty VectorStore.
func NewVectorStore() *VectorStore {
	return &VectorStore{points: make(map[string]knowledge.VectorPoint)}
}

// Upsert implements knowledge.VectorStore.
func (s *VectorStore) Upsert(_ context.Context, points []knowledge.VectorPoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range points {
		s.points[p.ID] = p
	}
	return nil
}

// DeleteByIDs implements knowledge.VectorStore.
func (s *VectorStore) DeleteByIDs(_ context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.points, id)
	}
	return nil
}

// Search implements knowledge.VectorStore, applying the client/project scope
// filter (unless Global) before ranking by cosine similarity.
func (s *VectorStore) Search(_ context.Context, vector []float32, topK int, minScore float32, filter knowledge.SearchFilter) ([]knowledge.SearchHit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var hits []knowledge.SearchHit
	for _, p := range s.points {
		if !filter.Global && !matchesScope(p.Metadata, filter) {
			continue
		}
		score := cosineSimilarity(vector, p.Vector)
		if score < minScore {
			continue
		}
		hits = append(hits, knowledge.SearchHit{ID: p.ID, Score: score, Payload: p.Metadata})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if topK > 0 && len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

func matchesScope(metadata map[string]any, filter knowledge.SearchFilter) bool {
	if filter.ClientID != "" {
		if v, _ := metadata["clientId"].(string); v != filter.ClientID {
			return false
		}
	}
	if filter.ProjectID != "" {
		if v, _ := metadata["projectId"].(string); v != filter.ProjectID {
			return false
		}
	}
	return true
}

func cosineSimilarity(a, b []float32) float32 {
	if len(a) == 0 || len(a) != len(b) {
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
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
