// Package knowledge defines the Knowledge Store Adapter contracts: a
// document store for TaskContexts and IngestItems with CAS state
// transitions, and a per-collection vector store for retrieval. Concrete
// backends live in pkg/knowledge/store/*; this package only declares the
// interfaces and the IngestItem entity.
package knowledge

import (
	"context"
	"errors"
	"time"

	"github.com/devassist/agentcore/pkg/task"
)

// ErrNotFound is returned by document-store lookups when no record matches.
var ErrNotFound = errors.New("knowledge: not found")

// ErrCASMismatch is returned when a CompareAndSwap's expected state does not
// match the record's current state.
var ErrCASMismatch = errors.New("knowledge: compare-and-swap mismatch")

// IngestState is an IngestItem's lifecycle state.
type IngestState string

const (
	IngestStateNew      IngestState = "NEW"
	IngestStateIndexing IngestState = "INDEXING"
	IngestStateIndexed  IngestState = "INDEXED"
	IngestStateFailed   IngestState = "FAILED"
	IngestStateRemoved  IngestState = "REMOVED"
)

// IngestItem is any externally-sourced artifact tracked by the Continuous
// Ingestion Engine.
type IngestItem struct {
	ID              string
	ConnectionID    string
	ExternalID      string
	ExternalVersion string
	State           IngestState
	LastError       string
	AttemptCount    int
	ContentHash     string
	// PreviousVectorVersion carries the ExternalVersion that was indexed
	// before this one, if any. The Indexer deletes the vector keyed by
	// (ConnectionID, ExternalID, PreviousVectorVersion) once the new
	// version's vector is upserted.
	PreviousVectorVersion string
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// DocumentStore persists TaskContexts and IngestItems. Implementations must
// be safe for concurrent use; state transitions on IngestItems go through
// CompareAndSwapIngestState so exactly one caller wins a race for a given
// (connection, externalId).
type DocumentStore interface {
	UpsertTaskContext(ctx context.Context, tc *task.TaskContext) error
	GetTaskContext(ctx context.Context, id string) (*task.TaskContext, error)

	UpsertIngestItem(ctx context.Context, item *IngestItem) error
	GetIngestItem(ctx context.Context, id string) (*IngestItem, error)
	FindIngestItemByExternalID(ctx context.Context, connectionID, externalID string) (*IngestItem, error)
	ListIngestItemsByState(ctx context.Context, state IngestState) ([]*IngestItem, error)
	ListIngestItemsByConnection(ctx context.Context, connectionID string) ([]*IngestItem, error)

	// CompareAndSwapIngestState transitions item id from expected to next,
	// failing with ErrCASMismatch if the stored state no longer matches
	// expected (another worker already claimed it).
	CompareAndSwapIngestState(ctx context.Context, id string, expected, next IngestState) error
}

// VectorPoint is one upserted embedding.
type VectorPoint struct {
	ID       string
	Vector   []float32
	Metadata map[string]any
}

// SearchFilter scopes a vector search to a client/project pair, or allows a
// global search when Global is set.
type SearchFilter struct {
	ClientID  string
	ProjectID string
	Global    bool
}

// SearchHit is one vector-store search result.
type SearchHit struct {
	ID      string
	Score   float32
	Payload map[string]any
}

// VectorStore is one embedding collection.
type VectorStore interface {
	Upsert(ctx context.Context, points []VectorPoint) error
	Search(ctx context.Context, vector []float32, topK int, minScore float32, filter SearchFilter) ([]SearchHit, error)
	DeleteByIDs(ctx context.Context, ids []string) error
}

// Collections groups the two embedding collections the Retrieval Subsystem
// queries concurrently.
type Collections struct {
	Text VectorStore
	Code VectorStore
}
