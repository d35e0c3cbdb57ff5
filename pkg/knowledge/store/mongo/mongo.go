// Package mongo provides a MongoDB implementation of knowledge.DocumentStore:
// one collection per record type, ErrNotFound translation, upsert-by-replace,
// Options-based construction, and context-scoped operation timeouts.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/devassist/agentcore/pkg/knowledge"
	"github.com/devassist/agentcore/pkg/task"
)

const (
	defaultContextsCollection = "task_contexts"
	defaultItemsCollection    = "ingest_items"
	defaultOpTimeout          = 5 * time.Second
)

// Options configures the Mongo-backed document store.
type Options struct {
	Client             *mongodriver.Client
	Database           string
	ContextsCollection string
	ItemsCollection    string
	Timeout            time.Duration
}

// Store is a MongoDB implementation of knowledge.DocumentStore.
type Store struct {
	contexts *mongodriver.Collection
	items    *mongodriver.Collection
	timeout  time.Duration
}

var _ knowledge.DocumentStore = (*Store)(nil)

// New returns a Store backed by MongoDB.
func New(opts Options) (*Store, error) {
	if opts.Client == nil {
		return nil, errors.New("mongo client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("database name is required")
	}
	contextsCollection := opts.ContextsCollection
	if contextsCollection == "" {
		contextsCollection = defaultContextsCollection
	}
	itemsCollection := opts.ItemsCollection
	if itemsCollection == "" {
		itemsCollection = defaultItemsCollection
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}
	db := opts.Client.Database(opts.Database)
	return &Store{
		contexts: db.Collection(contextsCollection),
		items:    db.Collection(itemsCollection),
		timeout:  timeout,
	}, nil
}

type taskContextDocument struct {
	ID           string   `bson:"_id"`
	ClientID     string   `bson:"client_id"`
	ProjectID    string   `bson:"project_id,omitempty"`
	OriginalText string   `bson:"original_text"`
	Language     string   `bson:"language,omitempty"`
	EnglishText  string   `bson:"english_text,omitempty"`
	Quick        bool     `bson:"quick"`
	Plans        []byte   `bson:"plans_json"`
}

// UpsertTaskContext implements knowledge.DocumentStore.
func (s *Store) UpsertTaskContext(ctx context.Context, tc *task.TaskContext) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	plansJSON, err := encodePlans(tc.Plans)
	if err != nil {
		return fmt.Errorf("mongodb encode task context %q plans: %w", tc.ID, err)
	}
	doc := taskContextDocument{
		ID:           tc.ID,
		ClientID:     tc.ClientID,
		ProjectID:    tc.ProjectID,
		OriginalText: tc.OriginalText,
		Language:     tc.Language,
		EnglishText:  tc.EnglishText,
		Quick:        tc.Quick,
		Plans:        plansJSON,
	}
	opts := options.Replace().SetUpsert(true)
	_, err = s.contexts.ReplaceOne(ctx, bson.M{"_id": tc.ID}, doc, opts)
	if err != nil {
		return fmt.Errorf("mongodb upsert task context %q: %w", tc.ID, err)
	}
	return nil
}

// GetTaskContext implements knowledge.DocumentStore.
func (s *Store) GetTaskContext(ctx context.Context, id string) (*task.TaskContext, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var doc taskContextDocument
	if err := s.contexts.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongodriver.ErrNoDocuments) {
			return nil, knowledge.ErrNotFound
		}
		return nil, fmt.Errorf("mongodb get task context %q: %w", id, err)
	}
	plans, err := decodePlans(doc.Plans)
	if err != nil {
		return nil, fmt.Errorf("mongodb decode task context %q plans: %w", id, err)
	}
	return &task.TaskContext{
		ID:           doc.ID,
		ClientID:     doc.ClientID,
		ProjectID:    doc.ProjectID,
		OriginalText: doc.OriginalText,
		Language:     doc.Language,
		EnglishText:  doc.EnglishText,
		Quick:        doc.Quick,
		Plans:        plans,
	}, nil
}

type ingestItemDocument struct {
	ID                    string    `bson:"_id"`
	ConnectionID          string    `bson:"connection_id"`
	ExternalID            string    `bson:"external_id"`
	ExternalVersion       string    `bson:"external_version"`
	State                 string    `bson:"state"`
	LastError             string    `bson:"last_error,omitempty"`
	AttemptCount          int       `bson:"attempt_count"`
	ContentHash           string    `bson:"content_hash"`
	PreviousVectorVersion string    `bson:"previous_vector_version,omitempty"`
	CreatedAt             time.Time `bson:"created_at"`
	UpdatedAt             time.Time `bson:"updated_at"`
}

func toIngestDocument(item *knowledge.IngestItem) ingestItemDocument {
	return ingestItemDocument{
		ID:                    item.ID,
		ConnectionID:          item.ConnectionID,
		ExternalID:            item.ExternalID,
		ExternalVersion:       item.ExternalVersion,
		State:                 string(item.State),
		LastError:             item.LastError,
		AttemptCount:          item.AttemptCount,
		ContentHash:           item.ContentHash,
		PreviousVectorVersion: item.PreviousVectorVersion,
		CreatedAt:             item.CreatedAt,
		UpdatedAt:             item.UpdatedAt,
	}
}

func fromIngestDocument(doc ingestItemDocument) *knowledge.IngestItem {
	return &knowledge.IngestItem{
		ID:                    doc.ID,
		ConnectionID:          doc.ConnectionID,
		ExternalID:            doc.ExternalID,
		ExternalVersion:       doc.ExternalVersion,
		State:                 knowledge.IngestState(doc.State),
		LastError:             doc.LastError,
		AttemptCount:          doc.AttemptCount,
		ContentHash:           doc.ContentHash,
		PreviousVectorVersion: doc.PreviousVectorVersion,
		CreatedAt:             doc.CreatedAt,
		UpdatedAt:             doc.UpdatedAt,
	}
}

// UpsertIngestItem implements knowledge.DocumentStore.
func (s *Store) UpsertIngestItem(ctx context.Context, item *knowledge.IngestItem) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	opts := options.Replace().SetUpsert(true)
	_, err := s.items.ReplaceOne(ctx, bson.M{"_id": item.ID}, toIngestDocument(item), opts)
	if err != nil {
		return fmt.Errorf("mongodb upsert ingest item %q: %w", item.ID, err)
	}
	return nil
}

// GetIngestItem implements knowledge.DocumentStore.
func (s *Store) GetIngestItem(ctx context.Context, id string) (*knowledge.IngestItem, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var doc ingestItemDocument
	if err := s.items.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongodriver.ErrNoDocuments) {
			return nil, knowledge.ErrNotFound
		}
		return nil, fmt.Errorf("mongodb get ingest item %q: %w", id, err)
	}
	return fromIngestDocument(doc), nil
}

// FindIngestItemByExternalID implements knowledge.DocumentStore.
func (s *Store) FindIngestItemByExternalID(ctx context.Context, connectionID, externalID string) (*knowledge.IngestItem, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var doc ingestItemDocument
	filter := bson.M{"connection_id": connectionID, "external_id": externalID}
	if err := s.items.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongodriver.ErrNoDocuments) {
			return nil, knowledge.ErrNotFound
		}
		return nil, fmt.Errorf("mongodb find ingest item (%q,%q): %w", connectionID, externalID, err)
	}
	return fromIngestDocument(doc), nil
}

// ListIngestItemsByState implements knowledge.DocumentStore.
func (s *Store) ListIngestItemsByState(ctx context.Context, state knowledge.IngestState) ([]*knowledge.IngestItem, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	findOpts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	cursor, err := s.items.Find(ctx, bson.M{"state": string(state)}, findOpts)
	if err != nil {
		return nil, fmt.Errorf("mongodb list ingest items state=%q: %w", state, err)
	}
	defer func() { _ = cursor.Close(ctx) }()

	var docs []ingestItemDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("mongodb decode ingest items state=%q: %w", state, err)
	}
	out := make([]*knowledge.IngestItem, len(docs))
	for i, doc := range docs {
		out[i] = fromIngestDocument(doc)
	}
	return out, nil
}

// ListIngestItemsByConnection implements knowledge.DocumentStore.
func (s *Store) ListIngestItemsByConnection(ctx context.Context, connectionID string) ([]*knowledge.IngestItem, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	findOpts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	cursor, err := s.items.Find(ctx, bson.M{"connection_id": connectionID}, findOpts)
	if err != nil {
		return nil, fmt.Errorf("mongodb list ingest items connection=%q: %w", connectionID, err)
	}
	defer func() { _ = cursor.Close(ctx) }()

	var docs []ingestItemDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("mongodb decode ingest items connection=%q: %w", connectionID, err)
	}
	out := make([]*knowledge.IngestItem, len(docs))
	for i, doc := range docs {
		out[i] = fromIngestDocument(doc)
	}
	return out, nil
}

// CompareAndSwapIngestState implements knowledge.DocumentStore. The update
// filter includes the expected state so MongoDB's single-document atomicity
// makes the transition a true CAS: a concurrent worker racing on the same
// (connection, externalId) will see MatchedCount == 0 and report the
// mismatch rather than silently overwriting the winner's state.
func (s *Store) CompareAndSwapIngestState(ctx context.Context, id string, expected, next knowledge.IngestState) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	filter := bson.M{"_id": id, "state": string(expected)}
	update := bson.M{"$set": bson.M{"state": string(next), "updated_at": time.Now().UTC()}}
	result, err := s.items.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("mongodb cas ingest item %q: %w", id, err)
	}
	if result.MatchedCount == 0 {
		if _, err := s.GetIngestItem(ctx, id); err != nil {
			return err
		}
		return knowledge.ErrCASMismatch
	}
	return nil
}
