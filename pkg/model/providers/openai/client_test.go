package openai

import (
	"context"
	"errors"
	"testing"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devassist/agentcore/pkg/model"
)

type stubChatClient struct {
	lastParams oai.ChatCompletionNewParams
	resp       *oai.ChatCompletion
	err        error
	decoder    ssestream.Decoder
}

func (s *stubChatClient) New(_ context.Context, body oai.ChatCompletionNewParams, _ ...option.RequestOption) (*oai.ChatCompletion, error) {
	s.lastParams = body
	return s.resp, s.err
}

func (s *stubChatClient) NewStreaming(_ context.Context, body oai.ChatCompletionNewParams, _ ...option.RequestOption) *ssestream.Stream[oai.ChatCompletionChunk] {
	s.lastParams = body
	dec := s.decoder
	if dec == nil {
		dec = &testDecoder{}
	}
	return ssestream.NewStream[oai.ChatCompletionChunk](dec, nil)
}

func TestComplete_MapsChoiceAndUsage(t *testing.T) {
	stub := &stubChatClient{
		resp: &oai.ChatCompletion{
			Model: "gpt-4o",
			Choices: []oai.ChatCompletionChoice{
				{
					FinishReason: "stop",
					Message:      oai.ChatCompletionMessage{Content: "hi there"},
				},
			},
			Usage: oai.CompletionUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
		},
	}
	cl, err := New(stub)
	require.NoError(t, err)

	resp, err := cl.Complete(context.Background(), &model.Request{
		Model:        "gpt-4o",
		SystemPrompt: "be terse",
		UserPrompt:   "ping",
		MaxTokens:    256,
		Temperature:  0.2,
	})
	require.NoError(t, err)
	assert.Equal(t, "hi there", resp.Text)
	assert.Equal(t, "gpt-4o", resp.Usage.Model)
	assert.Equal(t, 10, resp.Usage.PromptTokens)
	assert.Equal(t, 5, resp.Usage.CompletionTokens)
	assert.Equal(t, 15, resp.Usage.TotalTokens)
	assert.Equal(t, "stop", resp.Usage.FinishReason)

	// Request translation: system+user messages, max tokens, temperature.
	require.Len(t, stub.lastParams.Messages, 2)
	assert.Equal(t, int64(256), stub.lastParams.MaxCompletionTokens.Value)
	assert.InDelta(t, 0.2, stub.lastParams.Temperature.Value, 0.001)
}

func TestComplete_EmptyChoicesYieldsEmptyText(t *testing.T) {
	stub := &stubChatClient{resp: &oai.ChatCompletion{Model: "gpt-4o"}}
	cl, err := New(stub)
	require.NoError(t, err)

	resp, err := cl.Complete(context.Background(), &model.Request{UserPrompt: "x"})
	require.NoError(t, err)
	assert.Empty(t, resp.Text)
}

func TestTranslateErr_Classification(t *testing.T) {
	cases := []struct {
		name string
		in   error
		want error
	}{
		{"rate limited", errors.New("POST /chat/completions: 429 Too Many Requests"), model.ErrRateLimited},
		{"unauthorized", errors.New("POST /chat/completions: 401 Unauthorized"), model.ErrAuthFailed},
		{"forbidden", errors.New("POST /chat/completions: 403 Forbidden"), model.ErrAuthFailed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.ErrorIs(t, translateErr(tc.in), tc.want)
		})
	}

	plain := translateErr(errors.New("dial tcp: connection refused"))
	assert.NotErrorIs(t, plain, model.ErrRateLimited)
	assert.NotErrorIs(t, plain, model.ErrAuthFailed)
}

func TestComplete_SurfacesTranslatedError(t *testing.T) {
	stub := &stubChatClient{err: errors.New("POST /chat/completions: 429 Too Many Requests")}
	cl, err := New(stub)
	require.NoError(t, err)

	_, err = cl.Complete(context.Background(), &model.Request{UserPrompt: "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrRateLimited)
}
