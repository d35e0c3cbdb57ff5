// Package model implements the Model Gateway: the single entry point to
// language models, with candidate selection, PRIMARY/FALLBACK fallback,
// per-provider concurrency limits, prompt assembly, streaming
// normalization, and schema-driven response parsing.
package model

import "context"

// Role is a configured candidate's priority within a usage tag.
type Role string

const (
	RolePrimary     Role = "PRIMARY"
	RoleFallback    Role = "FALLBACK"
	RoleUnspecified Role = "UNSPECIFIED"
)

// Capabilities describes what a candidate supports.
type Capabilities struct {
	SupportsStreaming   bool
	SupportsJSONSchema  bool
	MaxConcurrentRequests int
}

// Candidate is a configured LLM entry.
type Candidate struct {
	ProviderTag string
	ModelName   string
	Role        Role
	Usage       string // usage tag: embedding/qualifier/simple/complex/finalizing/...

	MaxInputTokens  int
	MaxOutputTokens int // numPredict
	ContextLength   int

	Quick bool // eligible for quick=true restriction

	Capabilities Capabilities

	TimeoutMillis int

	// KeepAliveMillis configures the warm-keeping interval for locally
	// hosted candidates (0 disables warming for this candidate).
	KeepAliveMillis int
	WarmEligible    bool
	// WarmPool tags the compute pool a one-shot preloader should target at
	// startup (empty means no preload).
	WarmPool string

	Client Client

	// EmbedClient serves the "embedding" usage tag; nil for every other
	// usage (see Embedder).
	EmbedClient Embedder
}

// Embedder returns the candidate's embedding client, if configured.
func (c Candidate) Embedder() (Embedder, bool) {
	if c.EmbedClient == nil {
		return nil, false
	}
	return c.EmbedClient, true
}

// Chunk is a streaming event from the model.
type Chunk struct {
	Text       string
	IsComplete bool
	Metadata   *ChunkMetadata
}

// ChunkMetadata carries the terminal chunk's usage/finish-reason summary.
type ChunkMetadata struct {
	Model            string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	FinishReason     string
}

// Request captures one model invocation's wire-agnostic inputs.
type Request struct {
	Model       string
	SystemPrompt string
	UserPrompt   string
	Temperature  float32
	MaxTokens    int
	Stream       bool
}

// Response is the result of a non-streaming invocation.
type Response struct {
	Text  string
	Usage ChunkMetadata
}

// Streamer delivers incremental model output. Callers must drain Recv
// until it returns io.EOF (or another terminal error) and then Close.
type Streamer interface {
	Recv() (Chunk, error)
	Close() error
}

// Client is the provider-agnostic model client implemented by each provider
// adapter (pkg/model/providers/*).
type Client interface {
	Complete(ctx context.Context, req *Request) (*Response, error)
	Stream(ctx context.Context, req *Request) (Streamer, error)
}
