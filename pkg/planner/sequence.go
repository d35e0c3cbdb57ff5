package planner

import (
	"sort"
	"strconv"

	"github.com/devassist/agentcore/pkg/orcherr"
	"github.com/devassist/agentcore/pkg/task"
)

// Sequence linearizes a set of (Goal, steps) pairs into a flat, ordered
// PlanStep list:
//  1. topologically sort goals by Goal.DependsOn, ties broken by GoalID
//     ascending;
//  2. concatenate each goal's steps in that order, assigning a dense
//     Order and a "goal-<goalId>" StepGroup;
//  3. remap each step's local StepDependsOn to an absolute step index,
//     dropping references that don't land strictly before the step itself;
//  4. make each goal's first step depend on the last step of every goal
//     listed in its Goal.DependsOn (goals without steps contribute nothing).
func Sequence(goals []task.Goal, stepsByGoal map[int][]stepDescriptor) ([]*task.PlanStep, error) {
	order, err := topoSortGoals(goals)
	if err != nil {
		return nil, err
	}

	var steps []*task.PlanStep
	goalStart := make(map[int]int, len(order)) // goalId -> absolute index of its first step
	for _, g := range order {
		goalStart[g.GoalID] = len(steps)
		for _, d := range stepsByGoal[g.GoalID] {
			steps = append(steps, &task.PlanStep{
				Order:           len(steps),
				StepToolName:    d.ToolName,
				StepInstruction: d.Instruction,
				StepDependsOn:   map[int]struct{}{},
				StepGroup:       "goal-" + strconv.Itoa(g.GoalID),
				Status:          task.StepStatusPending,
			})
		}
	}

	for _, g := range order {
		g0 := goalStart[g.GoalID]
		if len(stepsByGoal[g.GoalID]) > 0 {
			for dep := range g.DependsOn {
				if n := len(stepsByGoal[dep]); n > 0 {
					if last := goalStart[dep] + n - 1; last < g0 {
						steps[g0].StepDependsOn[last] = struct{}{}
					}
				}
			}
		}
		for local, d := range stepsByGoal[g.GoalID] {
			abs := g0 + local
			if d.DependsOnGoal < 0 {
				continue
			}
			depAbs := g0 + d.DependsOnGoal
			if depAbs >= 0 && depAbs < abs {
				steps[abs].StepDependsOn[depAbs] = struct{}{}
			}
			// Invalid references (out of range, or not strictly earlier)
			// are dropped, not errored.
		}
	}

	if err := task.ValidateStepDependencies(steps); err != nil {
		return nil, err
	}
	return steps, nil
}

// topoSortGoals performs a Kahn's-algorithm topological sort over goals,
// breaking ties (and choosing among currently-ready goals) by GoalID
// ascending. Goal.DependsOn is only ever populated with earlier-numbered
// ids (CreateGoals enforces this), so the result always
// exists; this still runs the general algorithm rather than assuming input
// is pre-sorted, since Sequence is also exercised directly with hand-built
// Goals (tests, recovery planning).
func topoSortGoals(goals []task.Goal) ([]task.Goal, error) {
	byID := make(map[int]task.Goal, len(goals))
	indegree := make(map[int]int, len(goals))
	dependents := make(map[int][]int)
	for _, g := range goals {
		byID[g.GoalID] = g
		if _, ok := indegree[g.GoalID]; !ok {
			indegree[g.GoalID] = 0
		}
		for dep := range g.DependsOn {
			indegree[g.GoalID]++
			dependents[dep] = append(dependents[dep], g.GoalID)
		}
	}

	var ready []int
	for id, deg := range indegree {
		if deg == 0 {
			ready = append(ready, id)
		}
	}

	var out []task.Goal
	for len(ready) > 0 {
		sort.Ints(ready)
		id := ready[0]
		ready = ready[1:]
		out = append(out, byID[id])
		for _, dep := range dependents[id] {
			indegree[dep]--
			if indegree[dep] == 0 {
				ready = append(ready, dep)
			}
		}
	}
	if len(out) != len(goals) {
		return nil, orcherr.Configuration("goal dependency graph contains a cycle")
	}
	return out, nil
}
