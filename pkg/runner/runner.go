// Package runner implements the Planning Runner: the outer loop tying the
// Planner, Executor, and resolution checker together — plan, execute,
// check resolution, re-plan until resolved or exhausted.
package runner

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/devassist/agentcore/pkg/executor"
	"github.com/devassist/agentcore/pkg/hooks"
	"github.com/devassist/agentcore/pkg/model"
	"github.com/devassist/agentcore/pkg/orcherr"
	"github.com/devassist/agentcore/pkg/task"
	"github.com/devassist/agentcore/pkg/telemetry"
)

// PromptResolutionCheck is the prompt type for the resolution checker.
const PromptResolutionCheck = "resolution_check"

// PromptFinalAnswer is the prompt type used to synthesize the final answer
// from the completed plans' step outputs. The template is optional: when it
// is not configured (or the call fails), the Runner falls back to the
// concatenated outputs of every DONE step.
const PromptFinalAnswer = "final_answer"

// Gateway is the narrow Generate surface the Runner calls for the
// resolution check. *model.Gateway satisfies it.
type Gateway interface {
	Generate(ctx context.Context, in model.GenerateInput) (any, error)
}

// Discoverer is the narrow surface of *retrieval.Subsystem the Runner
// calls through.
type Discoverer interface {
	Discover(ctx context.Context, tc *task.TaskContext, plan *task.Plan, text string) string
}

// Planner is the narrow surface of *planner.Planner the Runner calls
// through.
type Planner interface {
	BuildSteps(ctx context.Context, plan *task.Plan, discoveryResult, excludeTool string) ([]task.Goal, []*task.PlanStep, error)
	Recover(ctx context.Context, contextID string, failed, following *task.PlanStep, completed []*task.PlanStep, discoveryResult string) (*task.Plan, error)
}

// Runner drives a TaskContext's Plans to resolution.
type Runner struct {
	gateway   Gateway
	discovery Discoverer
	planning  Planner
	exec      *executor.Executor
	bus       *hooks.Bus
	clock     func() time.Time

	logger telemetry.Logger
	tracer telemetry.Tracer
}

// New constructs a Runner.
func New(gateway Gateway, discovery Discoverer, planning Planner, exec *executor.Executor, bus *hooks.Bus, logger telemetry.Logger, tracer telemetry.Tracer) *Runner {
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	if tracer == nil {
		tracer = telemetry.NewNoopTracer()
	}
	return &Runner{gateway: gateway, discovery: discovery, planning: planning, exec: exec, bus: bus, clock: time.Now, logger: logger, tracer: tracer}
}

// resolutionResponse is the schema exemplar for the resolution checker.
type resolutionResponse struct {
	Complete            bool     `json:"complete"`
	MissingRequirements []string `json:"missingRequirements"`
}

// Submit builds the first Plan for a freshly interpreted request, appends
// it to tc, and drives the outer loop to resolution.
func (r *Runner) Submit(ctx context.Context, tc *task.TaskContext, englishQuestion string, checklist []string) (bool, error) {
	ctx, span := r.tracer.Start(ctx, "runner.Submit")
	defer span.End()

	plan := r.newPlan(tc.ID, englishQuestion, checklist)
	if err := r.preparePlan(ctx, tc, plan, ""); err != nil {
		return false, err
	}
	if err := tc.AppendPlan(plan); err != nil {
		return false, err
	}
	return r.drive(ctx, tc)
}

// drive runs the plan -> execute -> resolution-check -> re-plan loop until
// the TaskContext's plans resolve the checklist or re-planning itself
// gives up.
func (r *Runner) drive(ctx context.Context, tc *task.TaskContext) (bool, error) {
	for {
		plan := tc.NonTerminalPlan()
		if plan == nil {
			break
		}
		if err := ctx.Err(); err != nil {
			return false, orcherr.Cancellation(err)
		}
		if err := r.exec.Run(ctx, plan); err != nil {
			return false, err
		}
	}

	result, err := r.checkResolution(ctx, tc)
	if err != nil {
		r.logger.Error(ctx, "resolution check failed", "error", err.Error())
		return false, err
	}
	if result.Complete {
		r.setFinalAnswer(ctx, tc)
		r.publishFinalAnswer(ctx, tc)
		return true, nil
	}
	if len(result.MissingRequirements) == 0 {
		return false, nil
	}

	nextPlan, err := r.buildNextPlan(ctx, tc, result.MissingRequirements)
	if err != nil {
		// Re-planning failing is not fatal: log and return the current
		// resolution result.
		r.logger.Warn(ctx, "re-planning failed, stopping with current resolution", "error", err.Error())
		return result.Complete, nil
	}
	if err := tc.AppendPlan(nextPlan); err != nil {
		r.logger.Warn(ctx, "could not append re-plan, stopping with current resolution", "error", err.Error())
		return result.Complete, nil
	}
	return r.drive(ctx, tc)
}

// buildNextPlan constructs the Plan the Runner appends when the resolution
// check reports missing requirements. If the prior Plan has a FAILED step,
// this is recovery planning proper; otherwise it is a generic plan
// enumerating the missing checklist items.
func (r *Runner) buildNextPlan(ctx context.Context, tc *task.TaskContext, missing []string) (*task.Plan, error) {
	last := tc.Plans[len(tc.Plans)-1]
	if failed, following, completed, ok := findFailedStep(last); ok {
		discovery := r.discovery.Discover(ctx, tc, last, last.EnglishQuestion)
		plan, err := r.planning.Recover(ctx, tc.ID, failed, following, completed, discovery)
		if err != nil {
			return nil, err
		}
		plan.ID = uuid.NewString()
		plan.CreatedAt, plan.UpdatedAt = r.clock(), r.clock()
		return plan, nil
	}

	plan := r.newPlan(tc.ID, "Address missing requirements: "+strings.Join(missing, "; "), missing)
	if err := r.preparePlan(ctx, tc, plan, ""); err != nil {
		return nil, err
	}
	return plan, nil
}

// findFailedStep locates the first FAILED step in plan, the step that was
// planned to run immediately after it (if any), and every DONE step before
// it, for use as recovery-planning input.
func findFailedStep(plan *task.Plan) (failed, following *task.PlanStep, completed []*task.PlanStep, ok bool) {
	for i, s := range plan.Steps {
		if s.Status == task.StepStatusFailed && failed == nil {
			failed = s
			if i+1 < len(plan.Steps) {
				following = plan.Steps[i+1]
			}
		}
	}
	if failed == nil {
		return nil, nil, nil, false
	}
	for _, s := range plan.Steps {
		if s.Order >= failed.Order {
			break
		}
		if s.Status == task.StepStatusDone {
			completed = append(completed, s)
		}
	}
	return failed, following, completed, true
}

// preparePlan runs discovery and the goal->expand->sequence pipeline for
// plan, populating its Steps and ContextSummary in place.
func (r *Runner) preparePlan(ctx context.Context, tc *task.TaskContext, plan *task.Plan, excludeTool string) error {
	discovery := r.discovery.Discover(ctx, tc, plan, plan.EnglishQuestion)
	plan.ContextSummary = discovery
	_, steps, err := r.planning.BuildSteps(ctx, plan, discovery, excludeTool)
	if err != nil {
		return err
	}
	plan.Steps = steps
	return nil
}

func (r *Runner) newPlan(contextID, englishQuestion string, checklist []string) *task.Plan {
	now := r.clock()
	return &task.Plan{
		ID:                uuid.NewString(),
		ContextID:         contextID,
		EnglishQuestion:   englishQuestion,
		QuestionChecklist: checklist,
		Status:            task.PlanStatusCreated,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// checkResolution asks the Gateway whether tc's plans collectively satisfy
// the original checklist. An Ask-suspended plan (PendingUserInput) is
// flagged to the prompt so it is treated as not-complete without being
// reported as a missing requirement.
func (r *Runner) checkResolution(ctx context.Context, tc *task.TaskContext) (resolutionResponse, error) {
	ctx, span := r.tracer.Start(ctx, "runner.checkResolution")
	defer span.End()

	interpolation := map[string]string{
		"originalQuestion": tc.EnglishText,
		"plansSummary":     summarizePlans(tc.Plans),
		"pendingUserInput": pendingUserInputFlag(tc.Plans),
	}
	resp, err := r.gateway.Generate(ctx, model.GenerateInput{
		PromptType:    PromptResolutionCheck,
		Interpolation: interpolation,
		Schema:        resolutionResponse{},
	})
	if err != nil {
		return resolutionResponse{}, err
	}
	parsed, ok := resp.(resolutionResponse)
	if !ok {
		return resolutionResponse{}, orcherr.SchemaViolation("resolution check response had unexpected shape", nil)
	}
	return parsed, nil
}

func pendingUserInputFlag(plans []*task.Plan) string {
	for _, p := range plans {
		if p.PendingUserInput {
			return "true"
		}
	}
	return "false"
}

func summarizePlans(plans []*task.Plan) string {
	var b strings.Builder
	for i, p := range plans {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(p.EnglishQuestion)
		b.WriteString(" [")
		b.WriteString(string(p.Status))
		b.WriteString("]")
		if p.FinalAnswer != nil {
			b.WriteString(": ")
			b.WriteString(*p.FinalAnswer)
		}
	}
	return b.String()
}

// setFinalAnswer populates the last Plan's FinalAnswer once the resolution
// check reports complete. A terminal plan that already carries an answer
// (Stop reason, failure message) is left alone. The finalizing template is
// tried first; on any error the answer degrades to the concatenated DONE
// step outputs so the caller always gets substance, not a status code.
func (r *Runner) setFinalAnswer(ctx context.Context, tc *task.TaskContext) {
	if len(tc.Plans) == 0 {
		return
	}
	last := tc.Plans[len(tc.Plans)-1]
	if last.FinalAnswer != nil {
		return
	}
	outputs := doneStepOutputs(tc.Plans)
	resp, err := r.gateway.Generate(ctx, model.GenerateInput{
		PromptType: PromptFinalAnswer,
		Interpolation: map[string]string{
			"originalQuestion": tc.EnglishText,
			"stepOutputs":      outputs,
		},
		Quick: tc.Quick,
	})
	if err == nil {
		if text, ok := resp.(string); ok && text != "" {
			last.FinalAnswer = &text
			return
		}
	} else {
		r.logger.Warn(ctx, "final answer synthesis failed, using step outputs", "error", err.Error())
	}
	if outputs != "" {
		last.FinalAnswer = &outputs
	}
}

// doneStepOutputs joins the output of every DONE step across plans, in plan
// and step order.
func doneStepOutputs(plans []*task.Plan) string {
	var b strings.Builder
	for _, p := range plans {
		for _, s := range p.Steps {
			if s.Status != task.StepStatusDone || s.ToolResult == nil {
				continue
			}
			if b.Len() > 0 {
				b.WriteString("\n")
			}
			b.WriteString(s.ToolResult.Output())
		}
	}
	return b.String()
}

// publishFinalAnswer emits a final-answer notification for the last Plan's
// FinalAnswer, if set.
func (r *Runner) publishFinalAnswer(ctx context.Context, tc *task.TaskContext) {
	if r.bus == nil || len(tc.Plans) == 0 {
		return
	}
	last := tc.Plans[len(tc.Plans)-1]
	text := ""
	if last.FinalAnswer != nil {
		text = *last.FinalAnswer
	}
	r.bus.Publish(ctx, hooks.Event{
		Type:      hooks.EventFinalAnswer,
		ContextID: tc.ID,
		PlanID:    last.ID,
		Text:      text,
	})
}
