package model

import (
	"context"
	"sync"
)

// semaphore is a FIFO-ish counting semaphore: acquire blocks until a permit
// is free, release always succeeds. Buffered channels give Go's runtime
// FIFO-like fairness for blocked senders: acquisition order is the order
// goroutines attempt to send, so no caller class can starve another.
type semaphore struct {
	permits chan struct{}
}

func newSemaphore(capacity int) *semaphore {
	if capacity <= 0 {
		capacity = 1
	}
	return &semaphore{permits: make(chan struct{}, capacity)}
}

// acquire blocks until a permit is available or ctx is done.
func (s *semaphore) acquire(ctx context.Context) error {
	select {
	case s.permits <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// release returns a permit. Calling release without a matching acquire is a
// caller bug; it is a no-op here to keep Gateway call sites simple (defer
// release() right after a successful acquire()).
func (s *semaphore) release() {
	select {
	case <-s.permits:
	default:
	}
}

// providerSemaphores is the process-wide providerTag -> semaphore map, the
// only globally shared mutable state in the gateway. It is built
// once at Gateway construction from the configured candidates' declared
// MaxConcurrentRequests; afterward forProvider only adds a single-slot
// entry for a tag that no configured candidate declared.
type providerSemaphores struct {
	mu         sync.Mutex
	byProvider map[string]*semaphore
}

func newProviderSemaphores(candidates []Candidate) *providerSemaphores {
	ps := &providerSemaphores{byProvider: make(map[string]*semaphore)}
	for _, c := range candidates {
		if _, ok := ps.byProvider[c.ProviderTag]; ok {
			continue
		}
		cap := c.Capabilities.MaxConcurrentRequests
		if cap <= 0 {
			cap = 1
		}
		ps.byProvider[c.ProviderTag] = newSemaphore(cap)
	}
	return ps
}

func (ps *providerSemaphores) forProvider(tag string) *semaphore {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if s, ok := ps.byProvider[tag]; ok {
		return s
	}
	// A provider tag that was not declared by any configured candidate gets
	// a conservative single-slot semaphore lazily; this should not happen
	// in a correctly configured Gateway but avoids a nil-map panic under
	// test fakes that skip full candidate configuration.
	s := newSemaphore(1)
	ps.byProvider[tag] = s
	return s
}
