package bedrock

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/devassist/agentcore/pkg/model"
)

// streamer adapts a Bedrock ConverseStream event stream to model.Streamer.
// Only text deltas, message-stop and the usage metadata event are handled; tool-use and reasoning-content deltas are ignored
// because this adapter never models native tool calling (see client.go).
type streamer struct {
	ctx    context.Context
	cancel context.CancelFunc
	stream *bedrockruntime.ConverseStreamEventStream

	chunks chan model.Chunk

	mu       sync.Mutex
	errSet   bool
	finalErr error

	modelID string
}

func newStreamer(ctx context.Context, stream *bedrockruntime.ConverseStreamEventStream, modelID string) model.Streamer {
	cctx, cancel := context.WithCancel(ctx)
	s := &streamer{ctx: cctx, cancel: cancel, stream: stream, chunks: make(chan model.Chunk, 32), modelID: modelID}
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

	var promptTokens, completionTokens int

	for {
		select {
		case <-s.ctx.Done():
			s.setErr(s.ctx.Err())
			return
		case event, ok := <-s.stream.Events():
			if !ok {
				if err := s.stream.Err(); err != nil && !errors.Is(err, io.EOF) {
					s.setErr(err)
				}
				return
			}
			done, pt, ct := s.handle(event, promptTokens, completionTokens)
			promptTokens, completionTokens = pt, ct
			if done {
				return
			}
		}
	}
}

func (s *streamer) handle(event brtypes.ConverseStreamOutput, promptTokens, completionTokens int) (bool, int, int) {
	switch ev := event.(type) {
	case *brtypes.ConverseStreamOutputMemberContentBlockDelta:
		if delta, ok := ev.Value.Delta.(*brtypes.ContentBlockDeltaMemberText); ok && delta.Value != "" {
			select {
			case s.chunks <- model.Chunk{Text: delta.Value}:
			case <-s.ctx.Done():
				return true, promptTokens, completionTokens
			}
		}
	case *brtypes.ConverseStreamOutputMemberMetadata:
		if ev.Value.Usage != nil {
			if ev.Value.Usage.InputTokens != nil {
				promptTokens = int(*ev.Value.Usage.InputTokens)
			}
			if ev.Value.Usage.OutputTokens != nil {
				completionTokens = int(*ev.Value.Usage.OutputTokens)
			}
		}
	case *brtypes.ConverseStreamOutputMemberMessageStop:
		select {
		case s.chunks <- model.Chunk{
			IsComplete: true,
			Metadata: &model.ChunkMetadata{
				Model:            s.modelID,
				PromptTokens:     promptTokens,
				CompletionTokens: completionTokens,
				TotalTokens:      promptTokens + completionTokens,
				FinishReason:     string(ev.Value.StopReason),
			},
		}:
		case <-s.ctx.Done():
		}
		return true, promptTokens, completionTokens
	}
	return false, promptTokens, completionTokens
}
