package task

import "github.com/devassist/agentcore/pkg/orcherr"

func errAlreadyRunning(planID string) error {
	return orcherr.Newf(orcherr.KindConfiguration,
		"task context already has a non-terminal plan %q", planID)
}

func errTerminalPlan(planID string, status PlanStatus) error {
	return orcherr.Newf(orcherr.KindConfiguration,
		"plan %q is terminal (%s); steps are immutable", planID, status)
}

func errInvalidTransition(from, to PlanStatus) error {
	return orcherr.Newf(orcherr.KindConfiguration,
		"invalid plan status transition %s -> %s", from, to)
}

func orchErrBadDependency(order, dep int) error {
	return orcherr.Newf(orcherr.KindConfiguration,
		"step %d depends on invalid step order %d", order, dep)
}
