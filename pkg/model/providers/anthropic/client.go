// Package anthropic adapts the Anthropic Claude Messages API to the
// model.Client contract. The orchestration core only needs plain
// system/user prompt completion (tool calling happens in the Plan Executor,
// not at the model layer), so the request/response translation is a narrow
// slice of what the Messages API can express.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/devassist/agentcore/pkg/model"
)

// MessagesClient captures the subset of the Anthropic SDK client the
// adapter uses, so tests can substitute a fake.
type MessagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
	NewStreaming(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) *ssestream.Stream[sdk.MessageStreamEventUnion]
}

// Client implements model.Client on top of Anthropic Claude Messages.
type Client struct {
	msg        MessagesClient
	defaultMax int
}

// New builds an Anthropic-backed model client.
func New(msg MessagesClient, defaultMaxTokens int) (*Client, error) {
	if msg == nil {
		return nil, errors.New("anthropic client is required")
	}
	if defaultMaxTokens <= 0 {
		defaultMaxTokens = 4096
	}
	return &Client{msg: msg, defaultMax: defaultMaxTokens}, nil
}

// NewFromAPIKey constructs a client using the default Anthropic HTTP
// client, authenticating with apiKey via option.WithAPIKey.
func NewFromAPIKey(apiKey string, defaultMaxTokens int) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("api key is required")
	}
	ac := sdk.NewClient(option.WithAPIKey(apiKey))
	return New(&ac.Messages, defaultMaxTokens)
}

func (c *Client) params(req *model.Request) sdk.MessageNewParams {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.defaultMax
	}
	params := sdk.MessageNewParams{
		Model:     sdk.Model(req.Model),
		MaxTokens: int64(maxTokens),
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(req.UserPrompt)),
		},
	}
	if req.SystemPrompt != "" {
		params.System = []sdk.TextBlockParam{{Text: req.SystemPrompt}}
	}
	if req.Temperature > 0 {
		params.Temperature = sdk.Float(float64(req.Temperature))
	}
	return params
}

// Complete issues a non-streaming Messages.New request.
func (c *Client) Complete(ctx context.Context, req *model.Request) (*model.Response, error) {
	msg, err := c.msg.New(ctx, c.params(req))
	if err != nil {
		return nil, translateErr(err)
	}
	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	return &model.Response{
		Text: text,
		Usage: model.ChunkMetadata{
			Model:            string(msg.Model),
			PromptTokens:     int(msg.Usage.InputTokens),
			CompletionTokens: int(msg.Usage.OutputTokens),
			TotalTokens:      int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
			FinishReason:     string(msg.StopReason),
		},
	}, nil
}

// Stream invokes Messages.NewStreaming and adapts deltas into model.Chunks.
func (c *Client) Stream(ctx context.Context, req *model.Request) (model.Streamer, error) {
	stream := c.msg.NewStreaming(ctx, c.params(req))
	if err := stream.Err(); err != nil {
		return nil, translateErr(err)
	}
	return newStreamer(ctx, stream), nil
}

// translateErr classifies an Anthropic SDK error by the HTTP status it
// embeds in its message (429 -> ErrRateLimited, 401/403 -> ErrAuthFailed),
// avoiding a hard dependency on the SDK's internal error type, then falls
// through to a plain wrapped error otherwise.
func translateErr(err error) error {
	switch {
	case strings.Contains(err.Error(), "429"):
		return fmt.Errorf("%w: %w", model.ErrRateLimited, err)
	case strings.Contains(err.Error(), "401"), strings.Contains(err.Error(), "403"):
		return fmt.Errorf("%w: %w", model.ErrAuthFailed, err)
	default:
		return fmt.Errorf("anthropic: %w", err)
	}
}
