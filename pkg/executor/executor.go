// Package executor implements the Plan Executor: it drives a single Plan
// to a terminal status by running its PENDING steps in order, resolving
// each step's tool from the Registry, and classifying the tool's result
// into step and plan status transitions.
package executor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/devassist/agentcore/pkg/hooks"
	"github.com/devassist/agentcore/pkg/orcherr"
	"github.com/devassist/agentcore/pkg/task"
	"github.com/devassist/agentcore/pkg/telemetry"
	"github.com/devassist/agentcore/pkg/tools"
)

// outputPreviewChars bounds each earlier-step summary line built into a
// step's stepContext.
const outputPreviewChars = 100

// noPreviousSteps is the literal stepContext when no earlier step is DONE.
const noPreviousSteps = "No previous steps completed yet."

// Clock abstracts wall-clock time for plan status timestamps, so tests can
// supply a deterministic one.
type Clock func() time.Time

// Executor drives a single Plan to a terminal status.
type Executor struct {
	registry *tools.Registry
	bus      *hooks.Bus
	clock    Clock

	logger telemetry.Logger
	tracer telemetry.Tracer
}

// New constructs an Executor. bus may be nil (notifications are then
// dropped); clock defaults to time.Now.
func New(registry *tools.Registry, bus *hooks.Bus, clock Clock, logger telemetry.Logger, tracer telemetry.Tracer) *Executor {
	if clock == nil {
		clock = time.Now
	}
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	if tracer == nil {
		tracer = telemetry.NewNoopTracer()
	}
	return &Executor{registry: registry, bus: bus, clock: clock, logger: logger, tracer: tracer}
}

// Run drives plan from its current status to a terminal one, executing
// every PENDING step in order.
func (e *Executor) Run(ctx context.Context, plan *task.Plan) error {
	ctx, span := e.tracer.Start(ctx, "executor.Run")
	defer span.End()

	if len(plan.Steps) == 0 {
		return e.fail(ctx, plan, "Plan has no executable steps")
	}

	if plan.Status == task.PlanStatusCreated {
		if err := plan.Transition(task.PlanStatusRunning, e.clock()); err != nil {
			return err
		}
		e.publish(ctx, plan, hooks.EventPlanStatus, "", string(task.PlanStatusRunning))
	}

	pending := pendingSteps(plan)
	for _, step := range pending {
		if plan.Status.Terminal() {
			break
		}
		if err := ctx.Err(); err != nil {
			return orcherr.Cancellation(err)
		}
		e.runStep(ctx, plan, step)
		e.publish(ctx, plan, hooks.EventStepCompleted, step.ID, string(step.Status))
	}

	if !plan.Status.Terminal() {
		if err := plan.Transition(task.PlanStatusCompleted, e.clock()); err != nil {
			return err
		}
	}
	e.publish(ctx, plan, hooks.EventPlanStatus, "", string(plan.Status))
	return nil
}

// pendingSteps returns plan's PENDING steps, already ordered by Order since
// the Planner's Sequence assigns a dense, already-sorted Order.
func pendingSteps(plan *task.Plan) []*task.PlanStep {
	var out []*task.PlanStep
	for _, s := range plan.Steps {
		if s.Status == task.StepStatusPending {
			out = append(out, s)
		}
	}
	return out
}

// runStep executes one step and classifies its result.
func (e *Executor) runStep(ctx context.Context, plan *task.Plan, step *task.PlanStep) {
	ctx, span := e.tracer.Start(ctx, "executor.runStep")
	defer span.End()

	tool, err := e.registry.ByName(step.StepToolName)
	if err != nil {
		step.Status = task.StepStatusFailed
		step.ToolResult = task.NewError("", fmt.Sprintf("tool %q is not registered", step.StepToolName))
		e.logger.Warn(ctx, "step tool not found", "tool", step.StepToolName, "step", step.ID)
		return
	}

	stepContext := buildStepContext(plan, step.Order)

	start := e.clock()
	result, err := tool.Execute(ctx, plan, step.StepInstruction, stepContext)
	e.logger.Debug(ctx, "step executed", "tool", step.StepToolName, "duration", e.clock().Sub(start))
	if err != nil {
		step.Status = task.StepStatusFailed
		plan.FinalAnswer = ptr(err.Error())
		if tErr := plan.Transition(task.PlanStatusFailed, e.clock()); tErr != nil {
			e.logger.Error(ctx, "failed to mark plan failed after tool exception", "error", tErr.Error())
		}
		e.logger.Error(ctx, "tool execution raised an error", "tool", step.StepToolName, "error", err.Error())
		return
	}

	step.ToolResult = result
	switch r := result.(type) {
	case task.Ok:
		step.Status = task.StepStatusDone
	case task.Ask:
		// The step is DONE, but the plan now waits on the user; the
		// resolution checker is told so it treats the plan as not-complete
		// without reporting a missing requirement.
		step.Status = task.StepStatusDone
		plan.PendingUserInput = true
	case task.Error:
		step.Status = task.StepStatusFailed
		e.logger.Warn(ctx, "tool returned a recoverable error", "tool", step.StepToolName, "message", r.ErrorMessage)
	case task.Stop:
		step.Status = task.StepStatusFailed
		plan.FinalAnswer = ptr(r.Reason)
		if tErr := plan.Transition(task.PlanStatusFailed, e.clock()); tErr != nil {
			e.logger.Error(ctx, "failed to mark plan failed after Stop", "error", tErr.Error())
		}
	default:
		step.Status = task.StepStatusFailed
		e.logger.Error(ctx, "tool returned an unrecognized result variant", "tool", step.StepToolName)
	}
}

// buildStepContext renders the prose summary of earlier DONE steps the
// Executor hands each tool call.
func buildStepContext(plan *task.Plan, beforeOrder int) string {
	var lines []string
	for _, s := range plan.Steps {
		if s.Order >= beforeOrder || s.Status != task.StepStatusDone {
			continue
		}
		output := ""
		if s.ToolResult != nil {
			output = firstLine(s.ToolResult.Output())
		}
		if len(output) > outputPreviewChars {
			output = output[:outputPreviewChars]
		}
		lines = append(lines, fmt.Sprintf("- %s: %s", s.StepToolName, output))
	}
	if len(lines) == 0 {
		return noPreviousSteps
	}
	return strings.Join(lines, "\n")
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// fail marks plan FAILED with reason as its FinalAnswer when it has no
// executable steps.
func (e *Executor) fail(ctx context.Context, plan *task.Plan, reason string) error {
	plan.FinalAnswer = ptr(reason)
	if err := plan.Transition(task.PlanStatusFailed, e.clock()); err != nil {
		return err
	}
	e.publish(ctx, plan, hooks.EventPlanStatus, "", string(plan.Status))
	return nil
}

func (e *Executor) publish(ctx context.Context, plan *task.Plan, typ hooks.EventType, stepID, status string) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(ctx, hooks.Event{
		Type:      typ,
		ContextID: plan.ContextID,
		PlanID:    plan.ID,
		StepID:    stepID,
		Status:    status,
	})
}

func ptr(s string) *string { return &s }
