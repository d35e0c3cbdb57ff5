package openai

import (
	"context"
	"errors"
	"io"
	"sync"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/packages/ssestream"

	"github.com/devassist/agentcore/pkg/model"
)

// streamer adapts OpenAI's SSE `data: {...}` / `data: [DONE]` chat
// completion chunk stream to model.Streamer.
type streamer struct {
	ctx    context.Context
	cancel context.CancelFunc
	stream *ssestream.Stream[oai.ChatCompletionChunk]

	chunks chan model.Chunk

	mu       sync.Mutex
	errSet   bool
	finalErr error

	modelID string
}

func newStreamer(ctx context.Context, stream *ssestream.Stream[oai.ChatCompletionChunk]) model.Streamer {
	cctx, cancel := context.WithCancel(ctx)
	s := &streamer{ctx: cctx, cancel: cancel, stream: stream, chunks: make(chan model.Chunk, 32)}
	go s.run()
	return s
}

func (s *streamer) Recv() (model.Chunk, error) {
	select {
	case chunk, ok := <-s.chunks:
		if ok {
			return chunk, nil
		}
		if err := s.err(); err != nil {
			return model.Chunk{}, err
		}
		return model.Chunk{}, io.EOF
	case <-s.ctx.Done():
		err := s.ctx.Err()
		if err == nil {
			err = context.Canceled
		}
		s.setErr(err)
		return model.Chunk{}, err
	}
}

func (s *streamer) Close() error {
	s.cancel()
	return s.stream.Close()
}

func (s *streamer) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.errSet {
		s.errSet = true
		s.finalErr = err
	}
}

func (s *streamer) err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finalErr
}

func (s *streamer) run() {
	defer close(s.chunks)
	defer s.stream.Close()

	for {
		select {
		case <-s.ctx.Done():
			s.setErr(s.ctx.Err())
			return
		default:
		}
		if !s.stream.Next() {
			if err := s.stream.Err(); err != nil && !errors.Is(err, io.EOF) {
				s.setErr(err)
			}
			return
		}
		chunk := s.stream.Current()
		s.modelID = chunk.Model
		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]
		if choice.Delta.Content != "" {
			select {
			case s.chunks <- model.Chunk{Text: choice.Delta.Content}:
			case <-s.ctx.Done():
				return
			}
		}
		if string(choice.FinishReason) != "" {
			meta := &model.ChunkMetadata{
				Model:        s.modelID,
				FinishReason: string(choice.FinishReason),
			}
			if chunk.Usage.TotalTokens > 0 {
				meta.PromptTokens = int(chunk.Usage.PromptTokens)
				meta.CompletionTokens = int(chunk.Usage.CompletionTokens)
				meta.TotalTokens = int(chunk.Usage.TotalTokens)
			}
			select {
			case s.chunks <- model.Chunk{IsComplete: true, Metadata: meta}:
			case <-s.ctx.Done():
			}
			return
		}
	}
}
