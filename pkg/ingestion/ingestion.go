// Package ingestion implements the Continuous Ingestion Engine: for each
// configured external source (email, wiki, issue tracker) a Poller
// discovers changed artifacts and an Indexer embeds and upserts them into
// the vector store, coordinated through the per-item state machine on
// knowledge.DocumentStore and, across horizontally-scaled instances, a
// Redis-backed distributed lock. The Supervisor owns one goroutine per
// connection per indexer type and restarts a crashed loop after a fixed
// delay. Every loop is a cancellable task in the while-active {
// sleep/await } shape; cancellation is observed at each suspension point.
package ingestion

import (
	"context"
	"time"
)

// SourceType identifies which external system a Poller/Indexer pair
// serves.
type SourceType string

const (
	SourceEmail SourceType = "email"
	SourceWiki  SourceType = "wiki"
	SourceIssue SourceType = "issues"
)

// AuthStatus is a Connection's credential health.
type AuthStatus string

const (
	AuthStatusValid   AuthStatus = "VALID"
	AuthStatusInvalid AuthStatus = "INVALID"
)

// Connection is one configured account/connection a Poller cycles over.
type Connection struct {
	ID         string
	SourceType SourceType
	ClientID   string
	ProjectID  string
	AuthStatus AuthStatus

	// Scopes are the spaces/folders/projects to page through within this
	// connection.
	Scopes []string

	LastPolledAt         time.Time
	LastSuccessfulSyncAt time.Time
	LastErrorMessage     string
}

// DiscoveredItem is one artifact a Fetcher observed while paging through a
// scope.
type DiscoveredItem struct {
	ExternalID      string
	ExternalVersion string
	ContentHash     string
}

// Fetcher pages through one external API's scope and returns every item it
// observed. Pagination itself is the implementation's concern; the wire
// protocol of each source (email IMAP/POP3, Confluence/Jira/Git REST) is
// not the core's concern — only this contract enters it.
type Fetcher interface {
	Discover(ctx context.Context, conn *Connection, scope string) ([]DiscoveredItem, error)
}

// BodyFetcher retrieves an item's full content for indexing.
type BodyFetcher interface {
	FetchBody(ctx context.Context, conn *Connection, externalID string) (string, error)
}

// Embedder derives an embedding for indexed content via the Model Gateway's
// "embedding" usage tag. *model.Gateway satisfies this.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ConnectionStore tracks the connections a Poller/Indexer pair cycles
// over. Implementations must support picking the oldest VALID, eligible
// connection and recording poll outcomes.
type ConnectionStore interface {
	// NextEligible returns the VALID connection of sourceType with the
	// oldest LastPolledAt, or ErrNoEligibleConnection if none qualify.
	NextEligible(ctx context.Context, sourceType SourceType) (*Connection, error)
	// ConnectionsFor returns every connection of sourceType, VALID or not,
	// used by the Supervisor to enumerate which connections get an Indexer.
	ConnectionsFor(ctx context.Context, sourceType SourceType) ([]*Connection, error)
	// RecordPollOutcome updates LastPolledAt unconditionally, and
	// LastSuccessfulSyncAt / LastErrorMessage depending on success.
	RecordPollOutcome(ctx context.Context, connID string, success bool, errMsg string) error
	// MarkInvalid transitions a connection's AuthStatus to INVALID,
	// excluding it from future NextEligible calls until reset.
	MarkInvalid(ctx context.Context, connID string) error
}

// ErrNoEligibleConnection is returned by ConnectionStore.NextEligible when
// no VALID connection of the requested source type is due for a poll.
var errNoEligibleConnection = noEligibleConnectionError{}

type noEligibleConnectionError struct{}

func (noEligibleConnectionError) Error() string { return "ingestion: no eligible connection" }

// ErrNoEligibleConnection is the sentinel ConnectionStore implementations
// return from NextEligible when nothing qualifies.
func ErrNoEligibleConnection() error { return errNoEligibleConnection }

// IsNoEligibleConnection reports whether err is the ErrNoEligibleConnection
// sentinel.
func IsNoEligibleConnection(err error) bool {
	_, ok := err.(noEligibleConnectionError) //nolint:errorlint // sentinel comparison by type, never wrapped
	return ok
}

// startupDelay is how long a Poller waits before its first cycle.
const startupDelay = 60 * time.Second

// indexerIdleMin and indexerIdleMax bound the Indexer's sleep when it finds
// no NEW items.
const (
	indexerIdleMin = 30 * time.Second
	indexerIdleMax = 60 * time.Second
)

// AdaptiveDelay computes a Poller's next-iteration delay from how long the
// prior run took:
//
//	r < 5m  -> 10m
//	r < 30m -> 30m
//	else    -> 60m
func AdaptiveDelay(runDuration time.Duration) time.Duration {
	switch {
	case runDuration < 5*time.Minute:
		return 10 * time.Minute
	case runDuration < 30*time.Minute:
		return 30 * time.Minute
	default:
		return 60 * time.Minute
	}
}

// sleepCtx blocks for d or until ctx is cancelled, whichever comes first,
// returning ctx.Err() in the latter case. Every poller/indexer inter-
// iteration sleep in this package goes through this helper so cancellation
// is observed promptly.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
