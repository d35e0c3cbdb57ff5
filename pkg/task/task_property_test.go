package task_test

import (
	"math/rand"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/devassist/agentcore/pkg/task"
)

// legalTransition models the allowed plan status moves: CREATED may start
// RUNNING or terminate directly (the empty-plan case), RUNNING may only
// terminate, terminal states accept nothing.
func legalTransition(from, to task.PlanStatus) bool {
	if from.Terminal() {
		return false
	}
	switch {
	case from == task.PlanStatusCreated && to == task.PlanStatusRunning:
		return true
	case (from == task.PlanStatusCreated || from == task.PlanStatusRunning) &&
		(to == task.PlanStatusCompleted || to == task.PlanStatusFailed):
		return true
	default:
		return false
	}
}

// TestPlanTransitionMonotoneProperty drives Plan.Transition with random
// status sequences: a transition succeeds exactly when the transition table
// allows it, a rejected transition never mutates the plan, and once a
// terminal status is reached every further attempt is rejected.
func TestPlanTransitionMonotoneProperty(t *testing.T) {
	statuses := []task.PlanStatus{
		task.PlanStatusCreated,
		task.PlanStatusRunning,
		task.PlanStatusCompleted,
		task.PlanStatusFailed,
	}

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("transitions succeed iff legal and never regress", prop.ForAll(
		func(seed int64) bool {
			rng := rand.New(rand.NewSource(seed))
			p := &task.Plan{Status: task.PlanStatusCreated}
			sawTerminal := false
			for i := 0; i < 16; i++ {
				prev := p.Status
				next := statuses[rng.Intn(len(statuses))]
				err := p.Transition(next, time.Unix(int64(i), 0))

				if legalTransition(prev, next) != (err == nil) {
					return false
				}
				if err == nil && p.Status != next {
					return false
				}
				if err != nil && p.Status != prev {
					return false
				}
				if sawTerminal && err == nil {
					return false
				}
				if p.Status.Terminal() {
					sawTerminal = true
				}
			}
			return true
		},
		gen.Int64(),
	))

	properties.TestingRun(t)
}

// TestValidateStepDependenciesProperty checks that validation accepts a step
// list exactly when every dependency lands strictly before its step.
func TestValidateStepDependenciesProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("accepts iff all dependencies are strictly earlier", prop.ForAll(
		func(seed int64) bool {
			rng := rand.New(rand.NewSource(seed))
			n := 1 + rng.Intn(8)
			steps := make([]*task.PlanStep, n)
			valid := true
			for i := 0; i < n; i++ {
				deps := map[int]struct{}{}
				for d := 0; d < rng.Intn(3); d++ {
					// Half the time pick a legal earlier order, half the
					// time an arbitrary one that may be out of range.
					var dep int
					if rng.Intn(2) == 0 && i > 0 {
						dep = rng.Intn(i)
					} else {
						dep = rng.Intn(n+2) - 1
					}
					deps[dep] = struct{}{}
					if dep < 0 || dep >= i {
						valid = false
					}
				}
				steps[i] = &task.PlanStep{Order: i, StepDependsOn: deps}
			}
			err := task.ValidateStepDependencies(steps)
			return (err == nil) == valid
		},
		gen.Int64(),
	))

	properties.TestingRun(t)
}
