package openai

import (
	"context"
	"errors"
	"fmt"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/devassist/agentcore/pkg/model"
)

// EmbeddingsClient captures the subset of the OpenAI SDK the embedding
// adapter uses.
type EmbeddingsClient interface {
	New(ctx context.Context, body oai.EmbeddingNewParams, opts ...option.RequestOption) (*oai.CreateEmbeddingResponse, error)
}

// EmbedClient implements model.Embedder via OpenAI's embeddings endpoint.
type EmbedClient struct {
	embeddings EmbeddingsClient
}

// NewEmbedClient builds an embedding adapter.
func NewEmbedClient(embeddings EmbeddingsClient) (*EmbedClient, error) {
	if embeddings == nil {
		return nil, errors.New("openai embeddings client is required")
	}
	return &EmbedClient{embeddings: embeddings}, nil
}

// NewEmbedClientFromAPIKey constructs an embedding adapter using the default
// OpenAI HTTP client.
func NewEmbedClientFromAPIKey(apiKey string) (*EmbedClient, error) {
	if apiKey == "" {
		return nil, errors.New("api key is required")
	}
	c := oai.NewClient(option.WithAPIKey(apiKey))
	return NewEmbedClient(&c.Embeddings)
}

// Embed implements model.Embedder.
func (c *EmbedClient) Embed(ctx context.Context, req *model.EmbedRequest) (*model.EmbedResponse, error) {
	resp, err := c.embeddings.New(ctx, oai.EmbeddingNewParams{
		Model: oai.EmbeddingModel(req.Model),
		Input: oai.EmbeddingNewParamsInputUnion{OfString: oai.String(req.Text)},
	})
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("openai embeddings: empty response")
	}
	vec := make([]float32, len(resp.Data[0].Embedding))
	for i, v := range resp.Data[0].Embedding {
		vec[i] = float32(v)
	}
	return &model.EmbedResponse{Vector: vec}, nil
}
