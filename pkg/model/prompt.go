package model

import (
	"fmt"
	"strings"
)

// PromptTemplate is one promptType's {systemPrompt, userPrompt, modelParams}
// triple. Prompt templates themselves
// are treated as opaque configuration; only placeholder substitution is
// specified here.
type PromptTemplate struct {
	SystemPrompt string
	UserPrompt   string
	ModelParams  ModelParams
}

// ModelParams are the non-content knobs a prompt template declares.
type ModelParams struct {
	ModelType       string // usage tag this promptType routes through
	CreativityLevel float32
	JSONMode        bool
}

// PromptStore resolves a promptType to its template.
type PromptStore map[string]PromptTemplate

// Lookup returns the template for promptType or a Configuration error.
func (s PromptStore) Lookup(promptType string) (PromptTemplate, error) {
	t, ok := s[promptType]
	if !ok {
		return PromptTemplate{}, errMissingTemplate(promptType)
	}
	return t, nil
}

// Interpolate substitutes {key} placeholders in tmpl from values. Keys
// absent from values are left untouched (callers are expected to supply
// every placeholder the template declares; a leftover {placeholder} signals
// a caller bug rather than being silently dropped).
func Interpolate(tmpl string, values map[string]string) string {
	out := tmpl
	for k, v := range values {
		out = strings.ReplaceAll(out, "{"+k+"}", v)
	}
	return out
}

// jsonDirective is appended to the system prompt when a response schema is
// declared, instructing the model to return bare JSON matching the
// exemplar's shape.
func jsonDirective(exemplarDescription string) string {
	return fmt.Sprintf(
		"\n\nRespond with JSON only, matching this shape: %s. "+
			"Do not wrap the response in markdown code fences.",
		exemplarDescription,
	)
}
