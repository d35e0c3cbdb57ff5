// Package openai adapts the OpenAI Chat Completions API (official
// github.com/openai/openai-go SDK) to the model.Client contract. Request
// shape is the same narrow system/user-prompt slice used by the other
// provider adapters (see pkg/model/providers/anthropic for rationale).
package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"
	"github.com/openai/openai-go/shared"

	"github.com/devassist/agentcore/pkg/model"
)

// ChatClient captures the subset of the OpenAI SDK client the adapter uses.
type ChatClient interface {
	New(ctx context.Context, body oai.ChatCompletionNewParams, opts ...option.RequestOption) (*oai.ChatCompletion, error)
	NewStreaming(ctx context.Context, body oai.ChatCompletionNewParams, opts ...option.RequestOption) *ssestream.Stream[oai.ChatCompletionChunk]
}

// Client implements model.Client via OpenAI Chat Completions.
type Client struct {
	chat ChatClient
}

// New builds an OpenAI-backed model client.
func New(chat ChatClient) (*Client, error) {
	if chat == nil {
		return nil, errors.New("openai chat client is required")
	}
	return &Client{chat: chat}, nil
}

// NewFromAPIKey constructs a client using the default OpenAI HTTP client.
func NewFromAPIKey(apiKey string) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("api key is required")
	}
	c := oai.NewClient(option.WithAPIKey(apiKey))
	return New(&c.Chat.Completions)
}

func (c *Client) params(req *model.Request) oai.ChatCompletionNewParams {
	messages := make([]oai.ChatCompletionMessageParamUnion, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, oai.SystemMessage(req.SystemPrompt))
	}
	messages = append(messages, oai.UserMessage(req.UserPrompt))

	params := oai.ChatCompletionNewParams{
		Model:    shared.ChatModel(req.Model),
		Messages: messages,
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = oai.Int(int64(req.MaxTokens))
	}
	if req.Temperature > 0 {
		params.Temperature = oai.Float(float64(req.Temperature))
	}
	return params
}

// Complete issues a non-streaming chat completion request.
func (c *Client) Complete(ctx context.Context, req *model.Request) (*model.Response, error) {
	resp, err := c.chat.New(ctx, c.params(req))
	if err != nil {
		return nil, translateErr(err)
	}
	var text string
	if len(resp.Choices) > 0 {
		text = resp.Choices[0].Message.Content
	}
	var finish string
	if len(resp.Choices) > 0 {
		finish = string(resp.Choices[0].FinishReason)
	}
	return &model.Response{
		Text: text,
		Usage: model.ChunkMetadata{
			Model:            resp.Model,
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
			FinishReason:     finish,
		},
	}, nil
}

// Stream issues a streaming chat completion request and adapts SSE chunks.
func (c *Client) Stream(ctx context.Context, req *model.Request) (model.Streamer, error) {
	stream := c.chat.NewStreaming(ctx, c.params(req))
	if err := stream.Err(); err != nil {
		return nil, translateErr(err)
	}
	return newStreamer(ctx, stream), nil
}

// translateErr classifies an OpenAI SDK error by the HTTP status it embeds
// in its message (429 -> ErrRateLimited, 401/403 -> ErrAuthFailed), then
// falls through to a plain wrapped error otherwise.
func translateErr(err error) error {
	switch {
	case strings.Contains(err.Error(), "429"):
		return fmt.Errorf("%w: %w", model.ErrRateLimited, err)
	case strings.Contains(err.Error(), "401"), strings.Contains(err.Error(), "403"):
		return fmt.Errorf("%w: %w", model.ErrAuthFailed, err)
	default:
		return fmt.Errorf("openai: %w", err)
	}
}
