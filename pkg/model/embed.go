package model

import (
	"context"
	"sort"

	"github.com/devassist/agentcore/pkg/orcherr"
)

// EmbedRequest is one embedding invocation's input.
type EmbedRequest struct {
	Model string
	Text  string
}

// EmbedResponse carries the resulting vector.
type EmbedResponse struct {
	Vector []float32
}

// Embedder is implemented by provider adapters that support the "embedding"
// usage tag. It is distinct from Client because embedding models have a
// different wire shape (a vector response, not text/JSON) from every other
// usage tag the Gateway serves.
type Embedder interface {
	Embed(ctx context.Context, req *EmbedRequest) (*EmbedResponse, error)
}

// Embed derives an embedding for text using the "embedding" usage tag's
// configured candidates, applying the same PRIMARY-before-FALLBACK fallback
// order as Generate.
func (g *Gateway) Embed(ctx context.Context, text string) ([]float32, error) {
	const usage = "embedding"
	configured, ok := g.candidatesByUsage[usage]
	if !ok || len(configured) == 0 {
		return nil, errNoCandidates(usage)
	}
	candidates := append([]Candidate(nil), configured...)
	sort.SliceStable(candidates, func(i, j int) bool {
		return rolePriority(candidates[i].Role) < rolePriority(candidates[j].Role)
	})

	var lastErr error
	for _, c := range candidates {
		embedder, ok := c.Embedder()
		if !ok {
			continue
		}
		sem := g.semaphores.forProvider(c.ProviderTag)
		if err := sem.acquire(ctx); err != nil {
			return nil, orcherr.Cancellation(err)
		}
		resp, err := embedder.Embed(ctx, &EmbedRequest{Model: c.ModelName, Text: text})
		sem.release()
		if err != nil {
			lastErr = err
			g.logger.Warn(ctx, "embedding candidate failed", "provider", c.ProviderTag, "error", err.Error())
			continue
		}
		return resp.Vector, nil
	}
	return nil, errAllCandidatesFailed(usage, lastErr)
}
