// Package retrieval implements the Retrieval Subsystem: embed a search
// phrase, fan out to the text and code vector collections concurrently,
// merge and score the hits, and format a discovery-context string the
// Planner interpolates into its prompts.
package retrieval

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/devassist/agentcore/pkg/knowledge"
	"github.com/devassist/agentcore/pkg/task"
	"github.com/devassist/agentcore/pkg/telemetry"
)

const (
	// topK is the per-collection search depth.
	topK = 10
	// maxSources bounds the merged, formatted discovery context.
	maxSources = 15
	// truncateChars bounds each hit's content before formatting.
	truncateChars = 2000
)

// noContext is returned verbatim when the merged search yields no hits.
const noContext = "No relevant context found."

// Embedder derives a query embedding via the Model Gateway's "embedding"
// usage tag. *model.Gateway satisfies this.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Subsystem discovers retrieval context for the Planner.
type Subsystem struct {
	embedder    Embedder
	collections knowledge.Collections
	scoreThreshold float32

	logger  telemetry.Logger
	tracer  telemetry.Tracer
}

// New constructs a Subsystem. scoreThreshold is the caller-supplied
// minimum score passed to each collection's Search.
func New(embedder Embedder, collections knowledge.Collections, scoreThreshold float32, logger telemetry.Logger, tracer telemetry.Tracer) *Subsystem {
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	if tracer == nil {
		tracer = telemetry.NewNoopTracer()
	}
	return &Subsystem{
		embedder:       embedder,
		collections:    collections,
		scoreThreshold: scoreThreshold,
		logger:         logger,
		tracer:         tracer,
	}
}

// Discover embeds text (typically the plan's english question) and returns
// formatted discovery prose. An embedding failure degrades gracefully: it
// logs and returns an empty string rather than aborting planning.
func (s *Subsystem) Discover(ctx context.Context, tc *task.TaskContext, plan *task.Plan, text string) string {
	ctx, span := s.tracer.Start(ctx, "retrieval.Discover")
	defer span.End()

	vector, err := s.embedder.Embed(ctx, text)
	if err != nil {
		s.logger.Warn(ctx, "discovery embedding failed", "error", err.Error())
		return ""
	}

	filter := knowledge.SearchFilter{ClientID: tc.ClientID, ProjectID: tc.ProjectID}

	hits := s.searchBoth(ctx, vector, filter)
	if len(hits) == 0 {
		return noContext
	}
	return format(hits)
}

// hit is a normalized search result carrying the collection it came from,
// used only for logging/debugging; formatting does not distinguish source.
type hit struct {
	knowledge.SearchHit
	collection string
}

// searchBoth runs the text and code collection searches concurrently,
// merges the two result lists, sorts by score descending, and truncates to
// maxSources. Either collection failing independently degrades that
// collection's contribution to empty rather than aborting the other.
func (s *Subsystem) searchBoth(ctx context.Context, vector []float32, filter knowledge.SearchFilter) []hit {
	var wg sync.WaitGroup
	results := make([][]hit, 2)
	named := []struct {
		name  string
		store knowledge.VectorStore
	}{
		{"text", s.collections.Text},
		{"code", s.collections.Code},
	}
	for i, n := range named {
		if n.store == nil {
			continue
		}
		wg.Add(1)
		go func(i int, name string, store knowledge.VectorStore) {
			defer wg.Done()
			found, err := store.Search(ctx, vector, topK, s.scoreThreshold, filter)
			if err != nil {
				s.logger.Warn(ctx, "vector search failed", "collection", name, "error", err.Error())
				return
			}
			out := make([]hit, 0, len(found))
			for _, f := range found {
				out = append(out, hit{SearchHit: f, collection: name})
			}
			results[i] = out
		}(i, n.name, n.store)
	}
	wg.Wait()

	merged := append(append([]hit{}, results[0]...), results[1]...)
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Score > merged[j].Score
	})
	if len(merged) > maxSources {
		merged = merged[:maxSources]
	}
	return merged
}

// format renders hits as prose blocks:
// "Source i (score=…) path=… : <content>", separated by blank lines.
func format(hits []hit) string {
	var b strings.Builder
	for i, h := range hits {
		if i > 0 {
			b.WriteString("\n\n")
		}
		content := h.Payload["content"]
		text, _ := content.(string)
		if len(text) > truncateChars {
			text = text[:truncateChars]
		}
		path, _ := h.Payload["path"].(string)
		fmt.Fprintf(&b, "Source %d (score=%.4f) path=%s : %s", i+1, h.Score, path, text)
	}
	return b.String()
}
