package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devassist/agentcore/pkg/task"
)

func TestSequence_DropsOutOfRangeLocalDependency(t *testing.T) {
	goals := []task.Goal{{GoalID: 0}}
	stepsByGoal := map[int][]stepDescriptor{
		0: {
			{ToolName: "A", Instruction: "first", DependsOnGoal: -1},
			{ToolName: "B", Instruction: "second", DependsOnGoal: 5}, // out of range
		},
	}
	steps, err := Sequence(goals, stepsByGoal)
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Empty(t, steps[1].StepDependsOn)
}

func TestSequence_GoalOrderFollowsDependencies(t *testing.T) {
	goals := []task.Goal{
		{GoalID: 1, DependsOn: map[int]struct{}{0: {}}},
		{GoalID: 0},
	}
	stepsByGoal := map[int][]stepDescriptor{
		0: {{ToolName: "FETCH", Instruction: "fetch", DependsOnGoal: -1}},
		1: {{ToolName: "SUMMARIZE", Instruction: "summarize", DependsOnGoal: -1}},
	}
	steps, err := Sequence(goals, stepsByGoal)
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, "FETCH", steps[0].StepToolName)
	assert.Equal(t, "SUMMARIZE", steps[1].StepToolName)
}

func TestTopoSortGoals_DetectsCycle(t *testing.T) {
	goals := []task.Goal{
		{GoalID: 0, DependsOn: map[int]struct{}{1: {}}},
		{GoalID: 1, DependsOn: map[int]struct{}{0: {}}},
	}
	_, err := topoSortGoals(goals)
	require.Error(t, err)
}
