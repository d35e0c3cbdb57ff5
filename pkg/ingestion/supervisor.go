package ingestion

import (
	"context"
	"sync"
	"time"

	"github.com/devassist/agentcore/pkg/orcherr"
	"github.com/devassist/agentcore/pkg/telemetry"
)

// restartDelay is how long the Supervisor waits before restarting a loop
// that returned with a non-cancellation error.
const restartDelay = 60 * time.Second

// shutdownJoinTimeout bounds how long shutdown waits for supervised loops
// to exit after cancellation before giving up the join.
const shutdownJoinTimeout = 5 * time.Second

// Lock-coordination tuning, used only when a Supervisor has a Lock wired in
// via UseLock. lockTTL is the lease length a RedisLock claims per loop name;
// lockRenewInterval is how often the holder refreshes it; lockRetryInterval
// is how often a non-holder retries TryAcquire.
const (
	lockTTL           = 90 * time.Second
	lockRenewInterval = lockTTL / 3
	lockRetryInterval = 5 * time.Second
	lockCallTimeout   = 5 * time.Second
)

// loop is anything the Supervisor can run-and-restart: Poller.Run and
// Indexer.Run both satisfy it.
type loop func(ctx context.Context) error

// IndexerFactory builds the Indexer that owns one connection's NEW items.
type IndexerFactory func(conn *Connection) *Indexer

// Supervisor owns one poller per source type and one indexer per VALID
// connection, restarting any loop that exits with an error.
type Supervisor struct {
	pollers        map[SourceType]*Poller
	connections    ConnectionStore
	indexerFactory IndexerFactory
	restartDelay   time.Duration
	joinTimeout    time.Duration
	logger         telemetry.Logger

	// lock, when set via UseLock, gates each supervised loop on holding a
	// distributed claim for its name before running, so a horizontally
	// scaled Engine runs each named loop on exactly one instance. nil means
	// single-instance mode: every loop runs unconditionally.
	lock              Lock
	lockTTL           time.Duration
	lockRenewInterval time.Duration
	lockRetryInterval time.Duration
	lockCallTimeout   time.Duration
}

// UseLock wires a distributed Lock into the Supervisor so that, when
// multiple Supervisor instances run against the same connections (a
// horizontally-scaled Engine), only one instance's copy of a given named
// loop (e.g. "poller:wiki", "indexer:conn-42") executes at a time. Call
// before Run; nil disables coordination (the default).
func (s *Supervisor) UseLock(lock Lock) {
	s.lock = lock
	if s.lockTTL == 0 {
		s.lockTTL = lockTTL
	}
	if s.lockRenewInterval == 0 {
		s.lockRenewInterval = lockRenewInterval
	}
	if s.lockRetryInterval == 0 {
		s.lockRetryInterval = lockRetryInterval
	}
	if s.lockCallTimeout == 0 {
		s.lockCallTimeout = lockCallTimeout
	}
}

// NewSupervisor constructs a Supervisor. pollers must have one entry per
// source type it should run; indexerFactory builds the Indexer for each
// VALID connection discovered at startup.
func NewSupervisor(pollers map[SourceType]*Poller, connections ConnectionStore, indexerFactory IndexerFactory, logger telemetry.Logger) *Supervisor {
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	return &Supervisor{
		pollers:        pollers,
		connections:    connections,
		indexerFactory: indexerFactory,
		restartDelay:   restartDelay,
		joinTimeout:    shutdownJoinTimeout,
		logger:         logger,
	}
}

// Run starts one goroutine per poller and per VALID connection's indexer,
// and blocks until ctx is cancelled. It returns once every supervised loop
// has exited, or joinTimeout has elapsed since cancellation, whichever
// comes first.
//
// Connections are enumerated once at startup; a connection added or
// revalidated after Run begins is not picked up until the process restarts.
func (s *Supervisor) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	for sourceType, poller := range s.pollers {
		wg.Add(1)
		go func(name string, p *Poller) {
			defer wg.Done()
			s.supervise(ctx, name, p.Run)
		}("poller:"+string(sourceType), poller)

		conns, err := s.connections.ConnectionsFor(ctx, sourceType)
		if err != nil {
			s.logger.Error(ctx, "failed to enumerate connections for source type", "source", sourceType, "error", err.Error())
			continue
		}
		for _, conn := range conns {
			if conn.AuthStatus != AuthStatusValid {
				continue
			}
			indexer := s.indexerFactory(conn)
			wg.Add(1)
			go func(name string, ix *Indexer) {
				defer wg.Done()
				s.supervise(ctx, name, ix.Run)
			}("indexer:"+conn.ID, indexer)
		}
	}

	<-ctx.Done()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(s.joinTimeout):
		s.logger.Warn(ctx, "ingestion supervisor shutdown timed out, some loops did not exit in time")
	}
	return nil
}

// supervise runs fn, restarting it after restartDelay whenever it returns a
// non-cancellation error, until ctx is cancelled. When s.lock is set, fn
// only runs while this instance holds the named lock; losing the lock
// (Renew reports false because the lease lapsed and another instance
// claimed the key) stops fn
// and retries acquisition rather than restarting immediately.
func (s *Supervisor) supervise(ctx context.Context, name string, fn loop) {
	if s.lock == nil {
		s.runLoop(ctx, name, fn)
		return
	}
	for ctx.Err() == nil {
		if !s.holdLock(ctx, name) {
			return
		}

		loopCtx, cancelLoop := context.WithCancel(ctx)
		renewDone := make(chan struct{})
		go s.renewLockLoop(loopCtx, name, cancelLoop, renewDone)

		s.runLoop(loopCtx, name, fn)

		cancelLoop()
		<-renewDone
		s.releaseLock(name)
	}
}

// runLoop runs fn, restarting it after restartDelay whenever it returns a
// non-cancellation error, until ctx is cancelled.
func (s *Supervisor) runLoop(ctx context.Context, name string, fn loop) {
	for {
		err := fn(ctx)
		if err == nil || orcherr.IsKind(err, orcherr.KindCancellation) || ctx.Err() != nil {
			return
		}
		s.logger.Error(ctx, "ingestion loop crashed, restarting", "loop", name, "error", err.Error())
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.restartDelay):
		}
	}
}

// holdLock retries TryAcquire for name until it succeeds or ctx is
// cancelled, reporting false in the latter case.
func (s *Supervisor) holdLock(ctx context.Context, name string) bool {
	for {
		acquireCtx, cancel := context.WithTimeout(ctx, s.lockCallTimeout)
		ok, err := s.lock.TryAcquire(acquireCtx, name, s.lockTTL)
		cancel()
		if err != nil {
			s.logger.Warn(ctx, "ingestion lock acquire failed, retrying", "loop", name, "error", err.Error())
		} else if ok {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(s.lockRetryInterval):
		}
	}
}

// renewLockLoop periodically extends name's lease while ctx is live,
// calling cancelLoop (and returning) the moment Renew reports the lease was
// lost to another instance, per Lock's "must stop acting as owner" contract.
func (s *Supervisor) renewLockLoop(ctx context.Context, name string, cancelLoop context.CancelFunc, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.lockRenewInterval):
		}
		renewCtx, cancel := context.WithTimeout(ctx, s.lockCallTimeout)
		ok, err := s.lock.Renew(renewCtx, name, s.lockTTL)
		cancel()
		if err != nil {
			s.logger.Warn(ctx, "ingestion lock renew failed", "loop", name, "error", err.Error())
			continue
		}
		if !ok {
			s.logger.Error(ctx, "ingestion lock lost to another instance", "loop", name)
			cancelLoop()
			return
		}
	}
}

// releaseLock relinquishes name's lock using a fresh context, since the
// loop's own context is already cancelled by the time release runs.
func (s *Supervisor) releaseLock(name string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.lockCallTimeout)
	defer cancel()
	if err := s.lock.Release(ctx, name); err != nil {
		s.logger.Warn(ctx, "failed to release ingestion lock", "loop", name, "error", err.Error())
	}
}
