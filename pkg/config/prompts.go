package config

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/devassist/agentcore/pkg/model"
	"github.com/devassist/agentcore/pkg/orcherr"
)

// promptEntry is one prompt-template document entry: each promptType maps
// to {systemPrompt, userPrompt, modelParams}.
type promptEntry struct {
	SystemPrompt string `yaml:"systemPrompt"`
	UserPrompt   string `yaml:"userPrompt"`
	ModelParams  struct {
		ModelType       string  `yaml:"modelType"`
		CreativityLevel float32 `yaml:"creativityLevel"`
		JSONMode        bool    `yaml:"jsonMode"`
	} `yaml:"modelParams"`
}

// promptFile is keyed by promptType at the document root.
type promptFile map[string]promptEntry

// LoadPromptStore reads and parses a prompt-template YAML file into a
// model.PromptStore, failing fast when a template is missing its system or
// user prompt.
func LoadPromptStore(path string) (model.PromptStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, orcherr.Wrap(orcherr.KindConfiguration, "reading prompt template config", err)
	}
	var pf promptFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, orcherr.Wrap(orcherr.KindConfiguration, "parsing prompt template config", err)
	}
	if len(pf) == 0 {
		return nil, orcherr.Configuration("prompt template config declares no templates")
	}
	store := make(model.PromptStore, len(pf))
	for promptType, e := range pf {
		if e.SystemPrompt == "" || e.UserPrompt == "" {
			return nil, orcherr.Newf(orcherr.KindConfiguration,
				"prompt template %q missing systemPrompt/userPrompt", promptType)
		}
		store[promptType] = model.PromptTemplate{
			SystemPrompt: e.SystemPrompt,
			UserPrompt:   e.UserPrompt,
			ModelParams: model.ModelParams{
				ModelType:       e.ModelParams.ModelType,
				CreativityLevel: e.ModelParams.CreativityLevel,
				JSONMode:        e.ModelParams.JSONMode,
			},
		}
	}
	return store, nil
}
