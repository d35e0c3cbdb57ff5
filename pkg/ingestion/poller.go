package ingestion

import (
	"context"
	"errors"
	"time"

	"github.com/devassist/agentcore/pkg/knowledge"
	"github.com/devassist/agentcore/pkg/orcherr"
	"github.com/devassist/agentcore/pkg/telemetry"
)

// Clock abstracts wall-clock time so tests can supply a deterministic one.
type Clock func() time.Time

// Poller runs the discovery state machine for one source type: it
// repeatedly claims the oldest eligible connection, pages through its
// configured scopes, and compares discovered
// items against the document store to decide which become NEW.
type Poller struct {
	sourceType  SourceType
	connections ConnectionStore
	items       knowledge.DocumentStore
	fetcher     Fetcher
	clock       Clock

	// skipStartupDelay lets tests avoid the real 60s wait; production
	// callers leave it false.
	skipStartupDelay bool

	logger telemetry.Logger
	tracer telemetry.Tracer
}

// NewPoller constructs a Poller for sourceType.
func NewPoller(sourceType SourceType, connections ConnectionStore, items knowledge.DocumentStore, fetcher Fetcher, logger telemetry.Logger, tracer telemetry.Tracer) *Poller {
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	if tracer == nil {
		tracer = telemetry.NewNoopTracer()
	}
	return &Poller{
		sourceType:  sourceType,
		connections: connections,
		items:       items,
		fetcher:     fetcher,
		clock:       time.Now,
		logger:      logger,
		tracer:      tracer,
	}
}

// Run blocks, cycling the poller state machine until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	if !p.skipStartupDelay {
		if err := sleepCtx(ctx, startupDelay); err != nil {
			return orcherr.Cancellation(err)
		}
	}
	for {
		if err := ctx.Err(); err != nil {
			return orcherr.Cancellation(err)
		}

		start := p.clock()
		p.runOnce(ctx)
		elapsed := p.clock().Sub(start)
		delay := AdaptiveDelay(elapsed)
		p.logger.Debug(ctx, "poller cycle complete", "source", p.sourceType, "duration", elapsed, "next_delay", delay)

		if err := sleepCtx(ctx, delay); err != nil {
			return orcherr.Cancellation(err)
		}
	}
}

// runOnce claims one eligible connection and pages through its scopes. A
// missing eligible connection is not an error; the poller simply waits for
// the next cycle.
func (p *Poller) runOnce(ctx context.Context) {
	ctx, span := p.tracer.Start(ctx, "ingestion.Poller.runOnce")
	defer span.End()

	conn, err := p.connections.NextEligible(ctx, p.sourceType)
	if err != nil {
		if !IsNoEligibleConnection(err) {
			p.logger.Warn(ctx, "failed to acquire eligible connection", "source", p.sourceType, "error", err.Error())
		}
		return
	}

	seen := make(map[string]struct{})
	var lastErr error
	for _, scope := range conn.Scopes {
		if err := ctx.Err(); err != nil {
			return
		}
		if err := p.pollScope(ctx, conn, scope, seen); err != nil {
			lastErr = err
			if orcherr.IsKind(err, orcherr.KindProviderAuth) {
				p.logger.Error(ctx, "connection auth failed, marking invalid", "connection", conn.ID, "error", err.Error())
				if mErr := p.connections.MarkInvalid(ctx, conn.ID); mErr != nil {
					p.logger.Error(ctx, "failed to mark connection invalid", "connection", conn.ID, "error", mErr.Error())
				}
				break
			}
			p.logger.Warn(ctx, "scope poll failed", "connection", conn.ID, "scope", scope, "error", err.Error())
		}
	}

	success := lastErr == nil
	// Every configured scope was paged without error, so the cycle saw the
	// connection's full space: anything stored but not observed is gone at
	// the source.
	if success && len(conn.Scopes) > 0 {
		p.markRemoved(ctx, conn, seen)
	}
	errMsg := ""
	if lastErr != nil {
		errMsg = lastErr.Error()
	}
	if err := p.connections.RecordPollOutcome(ctx, conn.ID, success, errMsg); err != nil {
		p.logger.Error(ctx, "failed to record poll outcome", "connection", conn.ID, "error", err.Error())
	}
}

// pollScope pages through one scope's discovered items and persists state
// transitions for anything new or changed.
func (p *Poller) pollScope(ctx context.Context, conn *Connection, scope string, seen map[string]struct{}) error {
	discovered, err := p.fetcher.Discover(ctx, conn, scope)
	if err != nil {
		return err
	}
	for _, d := range discovered {
		seen[d.ExternalID] = struct{}{}
		if err := p.applyDiscovery(ctx, conn, d); err != nil {
			p.logger.Warn(ctx, "failed to apply discovered item", "connection", conn.ID, "external_id", d.ExternalID, "error", err.Error())
		}
	}
	return nil
}

// markRemoved transitions this connection's stored items that the completed
// full-space pass did not observe to REMOVED.
func (p *Poller) markRemoved(ctx context.Context, conn *Connection, seen map[string]struct{}) {
	items, err := p.items.ListIngestItemsByConnection(ctx, conn.ID)
	if err != nil {
		p.logger.Warn(ctx, "failed to list items for removal pass", "connection", conn.ID, "error", err.Error())
		return
	}
	for _, item := range items {
		if item.State == knowledge.IngestStateRemoved {
			continue
		}
		if _, ok := seen[item.ExternalID]; ok {
			continue
		}
		if err := p.items.CompareAndSwapIngestState(ctx, item.ID, item.State, knowledge.IngestStateRemoved); err != nil {
			if !errors.Is(err, knowledge.ErrCASMismatch) {
				p.logger.Warn(ctx, "failed to mark item removed", "item", item.ID, "error", err.Error())
			}
			continue
		}
		p.logger.Debug(ctx, "item removed at source", "item", item.ID, "connection", conn.ID)
	}
}

// applyDiscovery compares one discovered item against the stored
// IngestItem and transitions it to NEW when unknown or changed.
func (p *Poller) applyDiscovery(ctx context.Context, conn *Connection, d DiscoveredItem) error {
	existing, err := p.items.FindIngestItemByExternalID(ctx, conn.ID, d.ExternalID)
	if err != nil {
		if !errors.Is(err, knowledge.ErrNotFound) {
			return err
		}
		now := p.clock()
		item := &knowledge.IngestItem{
			ID:              conn.ID + "/" + d.ExternalID + "@" + d.ExternalVersion,
			ConnectionID:    conn.ID,
			ExternalID:      d.ExternalID,
			ExternalVersion: d.ExternalVersion,
			State:           knowledge.IngestStateNew,
			ContentHash:     d.ContentHash,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		return p.items.UpsertIngestItem(ctx, item)
	}

	if existing.ExternalVersion == d.ExternalVersion && existing.ContentHash == d.ContentHash {
		return nil
	}

	previousVersion := existing.ExternalVersion
	if err := p.items.CompareAndSwapIngestState(ctx, existing.ID, existing.State, knowledge.IngestStateNew); err != nil {
		if errors.Is(err, knowledge.ErrCASMismatch) {
			// Another poller/indexer cycle is already mid-transition on
			// this item; the next poll cycle will retry.
			return nil
		}
		return err
	}
	existing.State = knowledge.IngestStateNew
	existing.ExternalVersion = d.ExternalVersion
	existing.ContentHash = d.ContentHash
	existing.PreviousVectorVersion = previousVersion
	existing.UpdatedAt = p.clock()
	return p.items.UpsertIngestItem(ctx, existing)
}
