package anthropic

import (
	"context"
	"errors"
	"io"
	"sync"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/devassist/agentcore/pkg/model"
)

// streamer adapts an Anthropic Messages SSE stream to model.Streamer,
// flattening message_start usage, text deltas and message_delta events into
// Chunks (the terminal chunk is emitted on message_delta). Tool
// call deltas are intentionally not modeled: the orchestration core never
// asks the model to invoke tools natively (the Plan Executor owns tool
// dispatch), so only text and usage/stop events matter here.
type streamer struct {
	ctx    context.Context
	cancel context.CancelFunc
	stream *ssestream.Stream[sdk.MessageStreamEventUnion]

	chunks chan model.Chunk

	mu       sync.Mutex
	errSet   bool
	finalErr error

	modelID      string
	promptTokens int
}

func newStreamer(ctx context.Context, stream *ssestream.Stream[sdk.MessageStreamEventUnion]) model.Streamer {
	cctx, cancel := context.WithCancel(ctx)
	s := &streamer{
		ctx:    cctx,
		cancel: cancel,
		stream: stream,
		chunks: make(chan model.Chunk, 32),
	}
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
	if s.errSet {
		return
	}
	s.errSet = true
	s.finalErr = err
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
		event := s.stream.Current()
		if done := s.handle(event); done {
			return
		}
	}
}

func (s *streamer) handle(event sdk.MessageStreamEventUnion) bool {
	switch ev := event.AsAny().(type) {
	case sdk.MessageStartEvent:
		s.modelID = string(ev.Message.Model)
		s.promptTokens = int(ev.Message.Usage.InputTokens)
	case sdk.ContentBlockDeltaEvent:
		if text, ok := ev.Delta.AsAny().(sdk.TextDelta); ok && text.Text != "" {
			select {
			case s.chunks <- model.Chunk{Text: text.Text}:
			case <-s.ctx.Done():
				return true
			}
		}
	case sdk.MessageDeltaEvent:
		select {
		case s.chunks <- model.Chunk{
			IsComplete: true,
			Metadata: &model.ChunkMetadata{
				Model:            s.modelID,
				PromptTokens:     s.promptTokens,
				CompletionTokens: int(ev.Usage.OutputTokens),
				TotalTokens:      s.promptTokens + int(ev.Usage.OutputTokens),
				FinishReason:     string(ev.Delta.StopReason),
			},
		}:
		case <-s.ctx.Done():
			return true
		}
	}
	return false
}
