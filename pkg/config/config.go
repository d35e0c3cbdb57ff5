// Package config loads the two YAML configuration documents the
// orchestrator consumes: the model-candidate list and the prompt-template
// store. Loading validates fail-fast so a bad file never reaches the
// Gateway.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/devassist/agentcore/pkg/model"
	"github.com/devassist/agentcore/pkg/orcherr"
)

// CandidateEntry is one row of the model-candidate configuration file.
type CandidateEntry struct {
	Provider              string `yaml:"provider"`
	Model                 string `yaml:"model"`
	Usage                 string `yaml:"usage"`
	Role                  string `yaml:"role"`
	MaxInputTokens        int    `yaml:"maxInputTokens"`
	MaxOutputTokens       int    `yaml:"maxOutputTokens"`
	ContextLength         int    `yaml:"contextLength"`
	MaxConcurrentRequests int    `yaml:"maxConcurrentRequests"`
	Quick                 bool   `yaml:"quick"`
	TimeoutMillis         int    `yaml:"timeoutMs"`
	KeepAliveMillis       int    `yaml:"keepAliveMs"`
	WarmEligible          bool   `yaml:"warmEligible"`
	WarmPool              string `yaml:"warmPool"`
}

// CandidateFile is the top-level shape of the model-candidate YAML document.
type CandidateFile struct {
	Candidates []CandidateEntry `yaml:"candidates"`
}

// LoadCandidateFile reads and parses a model-candidate YAML file. It does
// not construct model.Client instances: that requires live provider
// credentials, which is the caller's (cmd/orchestrator's) job via
// ResolveCandidates.
func LoadCandidateFile(path string) (*CandidateFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, orcherr.Wrap(orcherr.KindConfiguration, "reading candidate config", err)
	}
	var f CandidateFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, orcherr.Wrap(orcherr.KindConfiguration, "parsing candidate config", err)
	}
	if len(f.Candidates) == 0 {
		return nil, orcherr.Configuration("candidate config declares no candidates")
	}
	for i, c := range f.Candidates {
		if c.Provider == "" || c.Model == "" || c.Usage == "" {
			return nil, orcherr.Newf(orcherr.KindConfiguration,
				"candidate entry %d missing provider/model/usage", i)
		}
	}
	return &f, nil
}

// ClientFactory builds a model.Client for a provider tag (e.g. "anthropic",
// "openai", "bedrock"). cmd/orchestrator supplies one backed by the real
// provider adapters; tests supply fakes.
type ClientFactory func(provider string) (model.Client, error)

// ResolveCandidates turns parsed candidate entries into model.Candidate
// values wired to live clients via factory, fail-fast (orcherr.Configuration)
// on an unknown role or a factory error.
func ResolveCandidates(f *CandidateFile, factory ClientFactory) ([]model.Candidate, error) {
	out := make([]model.Candidate, 0, len(f.Candidates))
	for _, c := range f.Candidates {
		role, err := parseRole(c.Role)
		if err != nil {
			return nil, err
		}
		client, err := factory(c.Provider)
		if err != nil {
			return nil, orcherr.Wrap(orcherr.KindConfiguration,
				fmt.Sprintf("building client for provider %q", c.Provider), err)
		}
		out = append(out, model.Candidate{
			ProviderTag:     c.Provider,
			ModelName:       c.Model,
			Role:            role,
			Usage:           c.Usage,
			MaxInputTokens:  c.MaxInputTokens,
			MaxOutputTokens: c.MaxOutputTokens,
			ContextLength:   c.ContextLength,
			Quick:           c.Quick,
			Capabilities: model.Capabilities{
				SupportsStreaming:     true,
				SupportsJSONSchema:    true,
				MaxConcurrentRequests: c.MaxConcurrentRequests,
			},
			TimeoutMillis:   c.TimeoutMillis,
			KeepAliveMillis: c.KeepAliveMillis,
			WarmEligible:    c.WarmEligible,
			WarmPool:        c.WarmPool,
			Client:          client,
		})
	}
	return out, nil
}

func parseRole(raw string) (model.Role, error) {
	switch raw {
	case "", "unspecified":
		return model.RoleUnspecified, nil
	case "primary":
		return model.RolePrimary, nil
	case "fallback":
		return model.RoleFallback, nil
	default:
		return "", orcherr.Newf(orcherr.KindConfiguration, "unrecognized candidate role %q", raw)
	}
}
