package bedrock

import (
	"context"
	"io"
	"testing"

	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devassist/agentcore/pkg/model"
)

// newTestStreamer builds a streamer whose event handling can be driven
// directly, without a live ConverseStream connection.
func newTestStreamer(t *testing.T) (*streamer, context.CancelFunc) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	return &streamer{
		ctx:     ctx,
		cancel:  cancel,
		chunks:  make(chan model.Chunk, 8),
		modelID: "test-model-id",
	}, cancel
}

func TestHandle_TextDeltaEmitsChunk(t *testing.T) {
	s, cancel := newTestStreamer(t)
	defer cancel()

	event := &brtypes.ConverseStreamOutputMemberContentBlockDelta{
		Value: brtypes.ContentBlockDeltaEvent{
			Delta: &brtypes.ContentBlockDeltaMemberText{Value: "hello"},
		},
	}
	done, _, _ := s.handle(event, 0, 0)
	assert.False(t, done)

	chunk := <-s.chunks
	assert.Equal(t, "hello", chunk.Text)
	assert.False(t, chunk.IsComplete)
}

func TestHandle_MetadataThenStopCarriesUsage(t *testing.T) {
	s, cancel := newTestStreamer(t)
	defer cancel()

	meta := &brtypes.ConverseStreamOutputMemberMetadata{
		Value: brtypes.ConverseStreamMetadataEvent{
			Usage: &brtypes.TokenUsage{InputTokens: tokens(10), OutputTokens: tokens(5)},
		},
	}
	done, pt, ct := s.handle(meta, 0, 0)
	assert.False(t, done)
	assert.Equal(t, 10, pt)
	assert.Equal(t, 5, ct)

	stop := &brtypes.ConverseStreamOutputMemberMessageStop{
		Value: brtypes.MessageStopEvent{StopReason: brtypes.StopReasonEndTurn},
	}
	done, _, _ = s.handle(stop, pt, ct)
	assert.True(t, done)

	chunk := <-s.chunks
	require.True(t, chunk.IsComplete)
	require.NotNil(t, chunk.Metadata)
	assert.Equal(t, "test-model-id", chunk.Metadata.Model)
	assert.Equal(t, 10, chunk.Metadata.PromptTokens)
	assert.Equal(t, 5, chunk.Metadata.CompletionTokens)
	assert.Equal(t, 15, chunk.Metadata.TotalTokens)
	assert.Equal(t, string(brtypes.StopReasonEndTurn), chunk.Metadata.FinishReason)
}

func TestHandle_IgnoresNonTextDeltas(t *testing.T) {
	s, cancel := newTestStreamer(t)
	defer cancel()

	event := &brtypes.ConverseStreamOutputMemberContentBlockStart{
		Value: brtypes.ContentBlockStartEvent{},
	}
	done, _, _ := s.handle(event, 0, 0)
	assert.False(t, done)
	assert.Empty(t, s.chunks)
}

func TestRecv_ClosedChannelYieldsEOF(t *testing.T) {
	s, cancel := newTestStreamer(t)
	defer cancel()

	s.chunks <- model.Chunk{Text: "last"}
	close(s.chunks)

	chunk, err := s.Recv()
	require.NoError(t, err)
	assert.Equal(t, "last", chunk.Text)

	_, err = s.Recv()
	assert.ErrorIs(t, err, io.EOF)
}

func TestHandle_CancelledContextStopsWithoutChunk(t *testing.T) {
	s, cancel := newTestStreamer(t)
	cancel()
	// Fill the buffer so the send path must take the ctx.Done branch.
	for len(s.chunks) < cap(s.chunks) {
		s.chunks <- model.Chunk{}
	}

	event := &brtypes.ConverseStreamOutputMemberContentBlockDelta{
		Value: brtypes.ContentBlockDeltaEvent{
			Delta: &brtypes.ContentBlockDeltaMemberText{Value: "late"},
		},
	}
	done, _, _ := s.handle(event, 0, 0)
	assert.True(t, done)
}
