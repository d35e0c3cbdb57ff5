// Package bedrock adapts the AWS Bedrock Converse/ConverseStream API to the
// model.Client contract. Like the anthropic and openai adapters, it is
// narrowed to plain system/user-prompt completion: no native tool
// calling, no reasoning/thinking blocks, no citations. Bedrock is wired
// mainly to exercise candidate fallback across a genuinely different wire
// protocol (AWS SDK request/response shapes instead of provider-native
// SSE-only clients).
package bedrock

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	smithy "github.com/aws/smithy-go"

	"github.com/devassist/agentcore/pkg/model"
)

// RuntimeClient captures the subset of the Bedrock runtime client the
// adapter uses, so tests can substitute a fake.
type RuntimeClient interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
	ConverseStream(ctx context.Context, params *bedrockruntime.ConverseStreamInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseStreamOutput, error)
}

// Client implements model.Client on top of AWS Bedrock Converse.
type Client struct {
	runtime RuntimeClient
}

// New builds a Bedrock-backed model client.
func New(runtime RuntimeClient) (*Client, error) {
	if runtime == nil {
		return nil, errors.New("bedrock runtime client is required")
	}
	return &Client{runtime: runtime}, nil
}

func (c *Client) buildConverseInput(req *model.Request) *bedrockruntime.ConverseInput {
	input := &bedrockruntime.ConverseInput{
		ModelId: aws.String(req.Model),
		Messages: []brtypes.Message{
			{
				Role:    brtypes.ConversationRoleUser,
				Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: req.UserPrompt}},
			},
		},
	}
	if req.SystemPrompt != "" {
		input.System = []brtypes.SystemContentBlock{&brtypes.SystemContentBlockMemberText{Value: req.SystemPrompt}}
	}
	if cfg := inferenceConfig(req.MaxTokens, req.Temperature); cfg != nil {
		input.InferenceConfig = cfg
	}
	return input
}

func (c *Client) buildConverseStreamInput(req *model.Request) *bedrockruntime.ConverseStreamInput {
	input := &bedrockruntime.ConverseStreamInput{
		ModelId: aws.String(req.Model),
		Messages: []brtypes.Message{
			{
				Role:    brtypes.ConversationRoleUser,
				Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: req.UserPrompt}},
			},
		},
	}
	if req.SystemPrompt != "" {
		input.System = []brtypes.SystemContentBlock{&brtypes.SystemContentBlockMemberText{Value: req.SystemPrompt}}
	}
	if cfg := inferenceConfig(req.MaxTokens, req.Temperature); cfg != nil {
		input.InferenceConfig = cfg
	}
	return input
}

func inferenceConfig(maxTokens int, temp float32) *brtypes.InferenceConfiguration {
	if maxTokens <= 0 && temp <= 0 {
		return nil
	}
	var cfg brtypes.InferenceConfiguration
	if maxTokens > 0 {
		v := int32(maxTokens)
		cfg.MaxTokens = &v
	}
	if temp > 0 {
		cfg.Temperature = &temp
	}
	return &cfg
}

// Complete issues a non-streaming Converse request.
func (c *Client) Complete(ctx context.Context, req *model.Request) (*model.Response, error) {
	output, err := c.runtime.Converse(ctx, c.buildConverseInput(req))
	if err != nil {
		return nil, translateErr(err)
	}
	return translateResponse(req.Model, output)
}

// Stream invokes ConverseStream and adapts events into model.Chunks.
func (c *Client) Stream(ctx context.Context, req *model.Request) (model.Streamer, error) {
	out, err := c.runtime.ConverseStream(ctx, c.buildConverseStreamInput(req))
	if err != nil {
		return nil, translateErr(err)
	}
	stream := out.GetStream()
	if stream == nil {
		return nil, fmt.Errorf("bedrock: nil event stream")
	}
	return newStreamer(ctx, stream, req.Model), nil
}

// translateErr classifies a Bedrock runtime error via smithy-go's APIError
// code (ThrottlingException -> ErrRateLimited; AccessDeniedException /
// UnrecognizedClientException / ExpiredTokenException -> ErrAuthFailed) and
// falls through to a plain wrapped error otherwise.
func translateErr(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ThrottlingException", "TooManyRequestsException":
			return fmt.Errorf("%w: %w", model.ErrRateLimited, err)
		case "AccessDeniedException", "UnrecognizedClientException", "ExpiredTokenException":
			return fmt.Errorf("%w: %w", model.ErrAuthFailed, err)
		}
	}
	return fmt.Errorf("bedrock: %w", err)
}

func translateResponse(modelID string, output *bedrockruntime.ConverseOutput) (*model.Response, error) {
	if output == nil {
		return nil, errors.New("bedrock: response is nil")
	}
	var text string
	var finish string
	if msg, ok := output.Output.(*brtypes.ConverseOutputMemberMessage); ok {
		for _, block := range msg.Value.Content {
			if v, ok := block.(*brtypes.ContentBlockMemberText); ok {
				text += v.Value
			}
		}
	}
	finish = string(output.StopReason)

	var in, out, tot int
	if output.Usage != nil {
		if output.Usage.InputTokens != nil {
			in = int(*output.Usage.InputTokens)
		}
		if output.Usage.OutputTokens != nil {
			out = int(*output.Usage.OutputTokens)
		}
		if output.Usage.TotalTokens != nil {
			tot = int(*output.Usage.TotalTokens)
		} else {
			tot = in + out
		}
	}
	return &model.Response{
		Text: text,
		Usage: model.ChunkMetadata{
			Model:            modelID,
			PromptTokens:     in,
			CompletionTokens: out,
			TotalTokens:      tot,
			FinishReason:     finish,
		},
	}, nil
}
