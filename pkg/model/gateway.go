package model

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/devassist/agentcore/pkg/orcherr"
	"github.com/devassist/agentcore/pkg/telemetry"
)

// Gateway is the single entry point to language models.
type Gateway struct {
	candidatesByUsage map[string][]Candidate
	templates         PromptStore
	semaphores        *providerSemaphores

	logger telemetry.Logger
	metrics telemetry.Metrics
	tracer telemetry.Tracer
}

// NewGateway validates candidates/templates and builds a Gateway. Fails
// fast (Configuration error) if any usage tag referenced by templates has
// no candidates.
func NewGateway(candidates []Candidate, templates PromptStore, logger telemetry.Logger, metrics telemetry.Metrics, tracer telemetry.Tracer) (*Gateway, error) {
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	if metrics == nil {
		metrics = telemetry.NewNoopMetrics()
	}
	if tracer == nil {
		tracer = telemetry.NewNoopTracer()
	}

	byUsage := make(map[string][]Candidate)
	for _, c := range candidates {
		byUsage[c.Usage] = append(byUsage[c.Usage], c)
	}
	for promptType, tmpl := range templates {
		if _, ok := byUsage[tmpl.ModelParams.ModelType]; !ok {
			return nil, orcherr.Newf(orcherr.KindConfiguration,
				"prompt type %q routes to usage %q which has no configured candidates",
				promptType, tmpl.ModelParams.ModelType)
		}
	}

	return &Gateway{
		candidatesByUsage: byUsage,
		templates:         templates,
		semaphores:        newProviderSemaphores(candidates),
		logger:            logger,
		metrics:           metrics,
		tracer:            tracer,
	}, nil
}

// GenerateInput bundles a Generate call's parameters.
type GenerateInput struct {
	PromptType      string
	Interpolation   map[string]string
	Quick           bool
	Schema          any // exemplar value, nil when no schema is declared
	LanguageHint    string
}

// Generate calls the best-fit candidate for promptType and returns the
// parsed value typed per Schema (or the raw response text when Schema is
// nil).
func (g *Gateway) Generate(ctx context.Context, in GenerateInput) (any, error) {
	req, usage, err := g.prepare(in)
	if err != nil {
		return nil, err
	}

	candidates, err := g.candidatesFor(usage, req, in.Quick)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for _, c := range candidates {
		ctx, span := g.tracer.Start(ctx, "model.Generate")
		g.logger.Debug(ctx, "model candidate attempt", "provider", c.ProviderTag, "model", c.ModelName, "usage", usage)

		resp, err := g.callComplete(ctx, c, req)
		span.End()
		if err != nil {
			lastErr = err
			g.logger.Warn(ctx, "model candidate failed", "provider", c.ProviderTag, "error", err.Error())
			continue
		}

		// An empty body is a candidate failure the same way a transport
		// error is: move to the next candidate.
		if strings.TrimSpace(resp.Text) == "" {
			lastErr = orcherr.Newf(orcherr.KindProviderTransport,
				"candidate %s/%s returned an empty response", c.ProviderTag, c.ModelName)
			g.logger.Warn(ctx, "model candidate returned empty response", "provider", c.ProviderTag)
			continue
		}

		if in.Schema == nil {
			g.metrics.IncCounter("gateway.candidate.success", 1, "provider", c.ProviderTag)
			return resp.Text, nil
		}
		out, err := g.parseResponse(resp.Text, in.Schema)
		if err != nil {
			// Malformed JSON is a candidate failure too; the next candidate
			// may produce a well-formed response.
			lastErr = err
			g.logger.Warn(ctx, "model candidate response failed parsing", "provider", c.ProviderTag, "error", err.Error())
			continue
		}
		g.metrics.IncCounter("gateway.candidate.success", 1, "provider", c.ProviderTag)
		return out, nil
	}
	return nil, errAllCandidatesFailed(usage, lastErr)
}

// callComplete acquires the provider's concurrency permit, invokes
// Complete, and always releases the permit on return.
func (g *Gateway) callComplete(ctx context.Context, c Candidate, req *Request) (*Response, error) {
	sem := g.semaphores.forProvider(c.ProviderTag)
	if err := sem.acquire(ctx); err != nil {
		return nil, orcherr.Cancellation(err)
	}
	defer sem.release()

	if timeout := c.TimeoutMillis; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = withTimeoutMillis(ctx, timeout)
		defer cancel()
	}

	req.Model = c.ModelName
	req.MaxTokens = c.MaxOutputTokens
	resp, err := c.Client.Complete(ctx, req)
	if err != nil {
		if errors.Is(err, ErrAuthFailed) {
			return nil, orcherr.ProviderAuth(fmt.Sprintf("candidate %s/%s", c.ProviderTag, c.ModelName), err)
		}
		return nil, orcherr.ProviderTransport(fmt.Sprintf("candidate %s/%s", c.ProviderTag, c.ModelName), err)
	}
	return resp, nil
}

func (g *Gateway) parseResponse(raw string, schema any) (any, error) {
	cleaned, err := Clean(raw)
	if err != nil {
		return nil, err
	}
	compiled, err := SchemaFor(schema)
	if err != nil {
		return nil, err
	}
	if err := ValidateSchema(compiled, cleaned); err != nil {
		return nil, err
	}
	return ParseInto(cleaned, schema)
}

func (g *Gateway) prepare(in GenerateInput) (*Request, string, error) {
	tmpl, err := g.templates.Lookup(in.PromptType)
	if err != nil {
		return nil, "", err
	}
	system := Interpolate(tmpl.SystemPrompt, in.Interpolation)
	user := Interpolate(tmpl.UserPrompt, in.Interpolation)
	if in.Schema != nil {
		system += jsonDirective(SchemaDescription(in.Schema))
	}
	if in.LanguageHint != "" {
		system += "\n\nRespond in: " + in.LanguageHint
	}
	req := &Request{
		SystemPrompt: system,
		UserPrompt:   user,
		Temperature:  tmpl.ModelParams.CreativityLevel,
	}
	return req, tmpl.ModelParams.ModelType, nil
}

func (g *Gateway) candidatesFor(usage string, req *Request, quick bool) ([]Candidate, error) {
	all, ok := g.candidatesByUsage[usage]
	if !ok || len(all) == 0 {
		return nil, errNoCandidates(usage)
	}
	estimate := EstimateTokens(req.SystemPrompt + req.UserPrompt)
	selected := SelectCandidates(all, estimate, quick)
	if len(selected) == 0 {
		return nil, orcherr.Newf(orcherr.KindConfiguration,
			"no candidate for usage %q fits the estimated %d input tokens", usage, estimate)
	}
	return selected, nil
}
