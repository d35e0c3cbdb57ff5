package model

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/devassist/agentcore/pkg/orcherr"
)

// gatewayStreamer wraps a provider Streamer with the Gateway's concurrency
// permit, releasing it exactly once when the stream is closed, whether
// normally, on error, or on caller cancellation.
type gatewayStreamer struct {
	inner    Streamer
	sem      *semaphore
	cancel   context.CancelFunc
	released bool
}

func (s *gatewayStreamer) Recv() (Chunk, error) {
	return s.inner.Recv()
}

func (s *gatewayStreamer) Close() error {
	err := s.inner.Close()
	if !s.released {
		s.sem.release()
		if s.cancel != nil {
			s.cancel()
		}
		s.released = true
	}
	return err
}

// Stream calls the best-fit candidate for promptType and returns a
// normalized Chunk stream. Candidate fallback only happens while opening
// the stream; once a provider begins streaming, mid-stream errors are
// surfaced to the caller rather than silently retried, since partial output
// may already have been delivered downstream.
func (g *Gateway) Stream(ctx context.Context, in GenerateInput) (Streamer, error) {
	req, usage, err := g.prepare(in)
	if err != nil {
		return nil, err
	}
	req.Stream = true

	candidates, err := g.candidatesFor(usage, req, in.Quick)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for _, c := range candidates {
		if !c.Capabilities.SupportsStreaming {
			continue
		}
		sem := g.semaphores.forProvider(c.ProviderTag)
		if err := sem.acquire(ctx); err != nil {
			return nil, orcherr.Cancellation(err)
		}

		req.Model = c.ModelName
		req.MaxTokens = c.MaxOutputTokens
		streamCtx := ctx
		var cancel context.CancelFunc
		if c.TimeoutMillis > 0 {
			streamCtx, cancel = withTimeoutMillis(ctx, c.TimeoutMillis)
		}
		streamer, err := c.Client.Stream(streamCtx, req)
		if err != nil {
			if cancel != nil {
				cancel()
			}
			sem.release()
			lastErr = err
			g.logger.Warn(ctx, "stream candidate failed", "provider", c.ProviderTag, "error", err.Error())
			continue
		}
		return &gatewayStreamer{inner: streamer, sem: sem, cancel: cancel}, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no streaming-capable candidate configured for usage %q", usage)
	}
	return nil, errAllCandidatesFailed(usage, lastErr)
}

// Fold drains a Streamer into its full text and terminal metadata, for
// callers that need the whole response rather than incremental display.
func Fold(s Streamer) (string, *ChunkMetadata, error) {
	defer s.Close()
	var text string
	var meta *ChunkMetadata
	for {
		chunk, err := s.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return text, meta, err
		}
		text += chunk.Text
		if chunk.IsComplete {
			meta = chunk.Metadata
			break
		}
	}
	return text, meta, nil
}
