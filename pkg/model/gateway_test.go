package model

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devassist/agentcore/pkg/orcherr"
	"github.com/devassist/agentcore/pkg/telemetry"
)

type fakeClient struct {
	resp *Response
	err  error
}

func (f *fakeClient) Complete(ctx context.Context, req *Request) (*Response, error) {
	return f.resp, f.err
}

func (f *fakeClient) Stream(ctx context.Context, req *Request) (Streamer, error) {
	return nil, errors.New("not implemented")
}

func testTemplates() PromptStore {
	return PromptStore{
		"goal_creation": PromptTemplate{
			SystemPrompt: "system {planEnglishQuestion}",
			UserPrompt:   "user",
			ModelParams:  ModelParams{ModelType: "complex"},
		},
	}
}

// TestGateway_CandidateFallback drives the fallback path: a failing
// primary candidate is skipped and the fallback's parsed response is
// returned.
func TestGateway_CandidateFallback(t *testing.T) {
	primary := Candidate{
		ProviderTag: "p1", ModelName: "m1", Role: RolePrimary, Usage: "complex",
		MaxInputTokens: 100000,
		Capabilities:   Capabilities{MaxConcurrentRequests: 1},
		Client:         &fakeClient{err: errors.New("HTTP 500")},
	}
	fallback := Candidate{
		ProviderTag: "p2", ModelName: "m2", Role: RoleFallback, Usage: "complex",
		MaxInputTokens: 100000,
		Capabilities:   Capabilities{MaxConcurrentRequests: 1},
		Client:         &fakeClient{resp: &Response{Text: `{"complete":true,"missingRequirements":[]}`}},
	}

	gw, err := NewGateway([]Candidate{primary, fallback}, testTemplates(), telemetry.NewNoopLogger(), telemetry.NewNoopMetrics(), telemetry.NewNoopTracer())
	require.NoError(t, err)

	out, err := gw.Generate(context.Background(), GenerateInput{
		PromptType:    "goal_creation",
		Interpolation: map[string]string{"planEnglishQuestion": "list files"},
		Schema:        map[string]any{},
	})
	require.NoError(t, err)
	parsed, ok := out.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, parsed["complete"])

	// p1's permit must have been released so it can be reused.
	assert.NoError(t, gw.semaphores.forProvider("p1").acquire(context.Background()))
}

// TestGateway_StructurallyWrongResponseIsSchemaViolation drives the
// validate-before-decode path: a response whose fields are mistyped against
// the exemplar's shape surfaces KindSchemaViolation rather than decoding
// into a zero-valued struct.
func TestGateway_StructurallyWrongResponseIsSchemaViolation(t *testing.T) {
	type resolution struct {
		Complete bool `json:"complete"`
	}
	c := Candidate{
		ProviderTag: "p1", ModelName: "m1", Usage: "complex", MaxInputTokens: 100000,
		Capabilities: Capabilities{MaxConcurrentRequests: 1},
		Client:       &fakeClient{resp: &Response{Text: `{"complete":"yes"}`}},
	}
	gw, err := NewGateway([]Candidate{c}, testTemplates(), nil, nil, nil)
	require.NoError(t, err)

	_, err = gw.Generate(context.Background(), GenerateInput{
		PromptType: "goal_creation",
		Schema:     resolution{},
	})
	require.Error(t, err)
	assert.True(t, orcherr.IsKind(err, orcherr.KindSchemaViolation))
}

func TestGateway_AllCandidatesFailSurfacesLastError(t *testing.T) {
	c1 := Candidate{
		ProviderTag: "p1", ModelName: "m1", Usage: "complex", MaxInputTokens: 100000,
		Capabilities: Capabilities{MaxConcurrentRequests: 1},
		Client:       &fakeClient{err: errors.New("first failure")},
	}
	c2 := Candidate{
		ProviderTag: "p2", ModelName: "m2", Usage: "complex", MaxInputTokens: 100000,
		Capabilities: Capabilities{MaxConcurrentRequests: 1},
		Client:       &fakeClient{err: errors.New("second failure")},
	}
	gw, err := NewGateway([]Candidate{c1, c2}, testTemplates(), nil, nil, nil)
	require.NoError(t, err)

	_, err = gw.Generate(context.Background(), GenerateInput{PromptType: "goal_creation"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "second failure")
}

func TestGateway_DropsCandidateTooSmallForEstimatedInput(t *testing.T) {
	tooSmall := Candidate{
		ProviderTag: "p1", ModelName: "m1", Usage: "complex", MaxInputTokens: 10,
		Capabilities: Capabilities{MaxConcurrentRequests: 1},
		Client:       &fakeClient{resp: &Response{Text: `{}`}},
	}
	gw, err := NewGateway([]Candidate{tooSmall}, testTemplates(), nil, nil, nil)
	require.NoError(t, err)

	_, err = gw.Generate(context.Background(), GenerateInput{
		PromptType:    "goal_creation",
		Interpolation: map[string]string{"planEnglishQuestion": "x"},
	})
	require.Error(t, err)
}

// TestGateway_AuthFailureClassifiedAsProviderAuth exercises the single-
// candidate case (no fallback to exhaust), so the Gateway's immediate
// classification of the failure as KindProviderAuth is directly observable
// on the returned error rather than folded into "all candidates failed".
func TestGateway_AuthFailureClassifiedAsProviderAuth(t *testing.T) {
	sem := newProviderSemaphores(nil)
	g := &Gateway{
		candidatesByUsage: map[string][]Candidate{},
		semaphores:        sem,
		logger:            telemetry.NewNoopLogger(),
		metrics:           telemetry.NewNoopMetrics(),
		tracer:            telemetry.NewNoopTracer(),
	}
	c := Candidate{ProviderTag: "p1", ModelName: "m1", Client: authFailingClient{}}

	_, err := g.callComplete(context.Background(), c, &Request{})
	require.Error(t, err)
	assert.True(t, orcherr.IsKind(err, orcherr.KindProviderAuth))
}

type authFailingClient struct{}

func (authFailingClient) Complete(ctx context.Context, req *Request) (*Response, error) {
	return nil, errors.Join(ErrAuthFailed, errors.New("401 unauthorized"))
}
func (authFailingClient) Stream(ctx context.Context, req *Request) (Streamer, error) {
	return nil, errors.New("not implemented")
}

// TestGateway_MalformedResponseFallsThroughToNextCandidate: an empty body
// or unparseable JSON from the first candidate is a candidate failure the
// same way a transport error is — the next candidate gets its turn.
func TestGateway_MalformedResponseFallsThroughToNextCandidate(t *testing.T) {
	type resolution struct {
		Complete bool `json:"complete"`
	}
	cases := []struct {
		name     string
		badReply string
	}{
		{"empty body", "   "},
		{"not JSON", "sure! here is your answer in prose"},
		{"mistyped field", `{"complete":"yes"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			bad := Candidate{
				ProviderTag: "p1", ModelName: "m1", Role: RolePrimary, Usage: "complex",
				MaxInputTokens: 100000,
				Capabilities:   Capabilities{MaxConcurrentRequests: 1},
				Client:         &fakeClient{resp: &Response{Text: tc.badReply}},
			}
			good := Candidate{
				ProviderTag: "p2", ModelName: "m2", Role: RoleFallback, Usage: "complex",
				MaxInputTokens: 100000,
				Capabilities:   Capabilities{MaxConcurrentRequests: 1},
				Client:         &fakeClient{resp: &Response{Text: `{"complete":true}`}},
			}
			gw, err := NewGateway([]Candidate{bad, good}, testTemplates(), nil, nil, nil)
			require.NoError(t, err)

			out, err := gw.Generate(context.Background(), GenerateInput{
				PromptType: "goal_creation",
				Schema:     resolution{},
			})
			require.NoError(t, err)
			parsed, ok := out.(resolution)
			require.True(t, ok)
			assert.True(t, parsed.Complete)
		})
	}
}

func TestGateway_NewRejectsUnroutableTemplate(t *testing.T) {
	candidates := []Candidate{{ProviderTag: "p1", Usage: "simple"}}
	_, err := NewGateway(candidates, testTemplates(), nil, nil, nil)
	require.Error(t, err, "goal_creation routes to \"complex\" which has no configured candidates")
}
