package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStripCodeFence_RemovesJSONFence(t *testing.T) {
	in := "```json\n{\"a\":1}\n```"
	assert.Equal(t, `{"a":1}`, StripCodeFence(in))
}

func TestStripCodeFence_RemovesBareFence(t *testing.T) {
	in := "```\n[1,2,3]\n```"
	assert.Equal(t, "[1,2,3]", StripCodeFence(in))
}

func TestStripCodeFence_LeavesUnfencedTextAlone(t *testing.T) {
	in := `{"a":1}`
	assert.Equal(t, in, StripCodeFence(in))
}

func TestStripCodeFence_IsIdempotent(t *testing.T) {
	in := "```json\n{\"a\":1}\n```"
	once := StripCodeFence(in)
	twice := StripCodeFence(once)
	assert.Equal(t, once, twice)
}

func TestSanitizeControlChars_EscapesNewlineInsideString(t *testing.T) {
	in := "{\"a\":\"line one\nline two\"}"
	out := SanitizeControlChars(in)
	assert.NotContains(t, out, "\n")

	var decoded map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.Equal(t, "line one\nline two", decoded["a"], "decoding the sanitized string yields the original string")
}

func TestSanitizeControlChars_LeavesStructuralWhitespaceAlone(t *testing.T) {
	in := "{\n  \"a\": 1\n}"
	out := SanitizeControlChars(in)
	var decoded map[string]int
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.Equal(t, 1, decoded["a"])
}

func TestClean_RejectsNonJSONResponse(t *testing.T) {
	_, err := Clean("sure, here is your answer: no json here")
	require.Error(t, err)
}

func TestClean_StripsFenceAndSanitizes(t *testing.T) {
	in := "```json\n{\"a\":\"x\ny\"}\n```"
	cleaned, err := Clean(in)
	require.NoError(t, err)
	var decoded map[string]string
	require.NoError(t, json.Unmarshal([]byte(cleaned), &decoded))
	assert.Equal(t, "x\ny", decoded["a"])
}

func TestSchemaFor_AcceptsMatchingShape(t *testing.T) {
	type resolution struct {
		Complete            bool     `json:"complete"`
		MissingRequirements []string `json:"missingRequirements"`
	}
	schema, err := SchemaFor(resolution{MissingRequirements: []string{""}})
	require.NoError(t, err)

	require.NoError(t, ValidateSchema(schema, `{"complete":true,"missingRequirements":["x"]}`))
	// Unknown fields pass; ParseInto drops them.
	require.NoError(t, ValidateSchema(schema, `{"complete":false,"missingRequirements":[],"extra":1}`))
}

func TestSchemaFor_RejectsMistypedField(t *testing.T) {
	type resolution struct {
		Complete            bool     `json:"complete"`
		MissingRequirements []string `json:"missingRequirements"`
	}
	schema, err := SchemaFor(resolution{MissingRequirements: []string{""}})
	require.NoError(t, err)

	err = ValidateSchema(schema, `{"complete":"yes","missingRequirements":[]}`)
	require.Error(t, err)
	err = ValidateSchema(schema, `{"complete":true,"missingRequirements":[1,2]}`)
	require.Error(t, err)
}

func TestSchemaFor_NullExemplarFieldIsUnconstrained(t *testing.T) {
	type wrapper struct {
		Goals []exemplarGoal `json:"goals"`
	}
	// A zero-valued exemplar marshals goals to null, so both an array and
	// an absent value must validate.
	schema, err := SchemaFor(wrapper{})
	require.NoError(t, err)
	require.NoError(t, ValidateSchema(schema, `{"goals":[{"goalId":0}]}`))
	require.NoError(t, ValidateSchema(schema, `{}`))
}

func TestSchemaDescription_RendersExemplarJSON(t *testing.T) {
	type wrapper struct {
		Goals []exemplarGoal `json:"goals"`
	}
	out := SchemaDescription(wrapper{})
	assert.Equal(t, `{"goals":null}`, out)

	out = SchemaDescription(wrapper{Goals: []exemplarGoal{{}}})
	assert.Equal(t, `{"goals":[{"goalId":0,"goalIntent":""}]}`, out)
}

type exemplarGoal struct {
	GoalID     int    `json:"goalId"`
	GoalIntent string `json:"goalIntent"`
}

func TestParseInto_TypedArrayFromNonEmptyExemplar(t *testing.T) {
	cleaned := `[{"goalId":0,"goalIntent":"fetch"},{"goalId":1,"goalIntent":"summarize"}]`
	out, err := ParseInto(cleaned, []exemplarGoal{{}})
	require.NoError(t, err)
	goals, ok := out.([]exemplarGoal)
	require.True(t, ok)
	require.Len(t, goals, 2)
	assert.Equal(t, "fetch", goals[0].GoalIntent)
}

func TestParseInto_UntypedArrayFromEmptyExemplar(t *testing.T) {
	cleaned := `[1,2,3]`
	out, err := ParseInto(cleaned, []exemplarGoal{})
	require.NoError(t, err)
	generic, ok := out.([]any)
	require.True(t, ok)
	assert.Len(t, generic, 3)
}

func TestParseInto_SingleObjectFromScalarExemplar(t *testing.T) {
	cleaned := `{"goalId":7,"goalIntent":"recover"}`
	out, err := ParseInto(cleaned, exemplarGoal{})
	require.NoError(t, err)
	goal, ok := out.(exemplarGoal)
	require.True(t, ok)
	assert.Equal(t, 7, goal.GoalID)
}

func TestParseInto_UnknownFieldsIgnoredMissingFieldsDefaulted(t *testing.T) {
	cleaned := `{"goalId":3,"extra":"ignored"}`
	out, err := ParseInto(cleaned, exemplarGoal{})
	require.NoError(t, err)
	goal := out.(exemplarGoal)
	assert.Equal(t, 3, goal.GoalID)
	assert.Empty(t, goal.GoalIntent)
}
