package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devassist/agentcore/pkg/model"
)

// testDecoder feeds a fixed sequence of events to the ssestream.Stream.
type testDecoder struct {
	events []ssestream.Event
	i      int
	err    error
}

func (d *testDecoder) Event() ssestream.Event { return d.events[d.i-1] }

func (d *testDecoder) Next() bool {
	if d.err != nil {
		return false
	}
	if d.i >= len(d.events) {
		return false
	}
	d.i++
	return true
}

func (d *testDecoder) Close() error { return nil }
func (d *testDecoder) Err() error   { return d.err }

func eventFromJSON(t *testing.T, eventType, raw string) ssestream.Event {
	t.Helper()
	var union sdk.MessageStreamEventUnion
	require.NoError(t, json.Unmarshal([]byte(raw), &union))
	data, err := json.Marshal(union)
	require.NoError(t, err)
	return ssestream.Event{Type: eventType, Data: data}
}

func TestStreamer_AccumulatesTextAndTerminalMetadata(t *testing.T) {
	events := []ssestream.Event{
		eventFromJSON(t, "message_start", `{
  "type": "message_start",
  "message": { "model": "claude-3-5-sonnet", "usage": { "input_tokens": 10 } }
}`),
		eventFromJSON(t, "content_block_delta", `{
  "type": "content_block_delta",
  "index": 0,
  "delta": { "type": "text_delta", "text": "hello " }
}`),
		eventFromJSON(t, "content_block_delta", `{
  "type": "content_block_delta",
  "index": 0,
  "delta": { "type": "text_delta", "text": "world" }
}`),
		eventFromJSON(t, "message_delta", `{
  "type": "message_delta",
  "delta": { "stop_reason": "end_turn" },
  "usage": { "output_tokens": 5 }
}`),
	}

	stream := ssestream.NewStream[sdk.MessageStreamEventUnion](&testDecoder{events: events}, nil)
	s := newStreamer(context.Background(), stream)

	text, meta, err := model.Fold(s)
	require.NoError(t, err)
	assert.Equal(t, "hello world", text)
	require.NotNil(t, meta)
	assert.Equal(t, "claude-3-5-sonnet", meta.Model)
	assert.Equal(t, 10, meta.PromptTokens)
	assert.Equal(t, 5, meta.CompletionTokens)
	assert.Equal(t, 15, meta.TotalTokens)
	assert.Equal(t, "end_turn", meta.FinishReason)
}

func TestStreamer_EOFWithoutTerminalEvent(t *testing.T) {
	events := []ssestream.Event{
		eventFromJSON(t, "content_block_delta", `{
  "type": "content_block_delta",
  "index": 0,
  "delta": { "type": "text_delta", "text": "partial" }
}`),
	}
	stream := ssestream.NewStream[sdk.MessageStreamEventUnion](&testDecoder{events: events}, nil)
	s := newStreamer(context.Background(), stream)
	defer func() { _ = s.Close() }()

	chunk, err := s.Recv()
	require.NoError(t, err)
	assert.Equal(t, "partial", chunk.Text)

	_, err = s.Recv()
	assert.ErrorIs(t, err, io.EOF)
}

func TestStreamer_DecoderErrorSurfaces(t *testing.T) {
	dec := &testDecoder{err: errors.New("connection reset")}
	stream := ssestream.NewStream[sdk.MessageStreamEventUnion](dec, nil)
	s := newStreamer(context.Background(), stream)
	defer func() { _ = s.Close() }()

	_, err := s.Recv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestStreamer_CancellationUnblocksRecv(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	stream := ssestream.NewStream[sdk.MessageStreamEventUnion](&testDecoder{}, nil)
	s := newStreamer(ctx, stream)
	defer func() { _ = s.Close() }()

	_, err := s.Recv()
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
