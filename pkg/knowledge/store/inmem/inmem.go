// Package inmem provides in-memory implementations of knowledge.DocumentStore
// and knowledge.VectorStore, intended for tests and local development:
// mutex-guarded maps with clone-on-read.
package inmem

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/devassist/agentcore/pkg/knowledge"
	"github.com/devassist/agentcore/pkg/task"
)

// DocumentStore is an in-memory knowledge.DocumentStore. Safe for
// concurrent use.
type DocumentStore struct {
	mu       sync.RWMutex
	contexts map[string]*task.TaskContext
	items    map[string]*knowledge.IngestItem
	byExtern map[string]string // connectionID/externalID -> item id
}

// New returns an empty DocumentStore.
func New() *DocumentStore {
	return &DocumentStore{
		contexts: make(map[string]*task.TaskContext),
		items:    make(map[string]*knowledge.IngestItem),
		byExtern: make(map[string]string),
	}
}

func externKey(connectionID, externalID string) string {
	return connectionID + "/" + externalID
}

// UpsertTaskContext implements knowledge.DocumentStore.
func (s *DocumentStore) UpsertTaskContext(_ context.Context, tc *task.TaskContext) error {
	if tc.ID == "" {
		return knowledge.ErrNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *tc
	s.contexts[tc.ID] = &cp
	return nil
}

// GetTaskContext implements knowledge.DocumentStore.
func (s *DocumentStore) GetTaskContext(_ context.Context, id string) (*task.TaskContext, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tc, ok := s.contexts[id]
	if !ok {
		return nil, knowledge.ErrNotFound
	}
	cp := *tc
	return &cp, nil
}

// UpsertIngestItem implements knowledge.DocumentStore.
func (s *DocumentStore) UpsertIngestItem(_ context.Context, item *knowledge.IngestItem) error {
	if item.ID == "" {
		return knowledge.ErrNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *item
	s.items[item.ID] = &cp
	s.byExtern[externKey(item.ConnectionID, item.ExternalID)] = item.ID
	return nil
}

// GetIngestItem implements knowledge.DocumentStore.
func (s *DocumentStore) GetIngestItem(_ context.Context, id string) (*knowledge.IngestItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[id]
	if !ok {
		return nil, knowledge.ErrNotFound
	}
	cp := *item
	return &cp, nil
}

// FindIngestItemByExternalID implements knowledge.DocumentStore.
func (s *DocumentStore) FindIngestItemByExternalID(_ context.Context, connectionID, externalID string) (*knowledge.IngestItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byExtern[externKey(connectionID, externalID)]
	if !ok {
		return nil, knowledge.ErrNotFound
	}
	cp := *s.items[id]
	return &cp, nil
}

// ListIngestItemsByState implements knowledge.DocumentStore.
func (s *DocumentStore) ListIngestItemsByState(_ context.Context, state knowledge.IngestState) ([]*knowledge.IngestItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*knowledge.IngestItem
	for _, item := range s.items {
		if item.State == state {
			cp := *item
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// ListIngestItemsByConnection implements knowledge.DocumentStore.
func (s *DocumentStore) ListIngestItemsByConnection(_ context.Context, connectionID string) ([]*knowledge.IngestItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*knowledge.IngestItem
	for _, item := range s.items {
		if item.ConnectionID == connectionID {
			cp := *item
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// CompareAndSwapIngestState implements knowledge.DocumentStore.
func (s *DocumentStore) CompareAndSwapIngestState(_ context.Context, id string, expected, next knowledge.IngestState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok {
		return knowledge.ErrNotFound
	}
	if item.State != expected {
		return knowledge.ErrCASMismatch
	}
	item.State = next
	item.UpdatedAt = time.Now()
	return nil
}
