// Package planner implements the two-phase Planner: goal decomposition,
// goal-to-step expansion with topological linearization, and recovery
// planning for failed steps. Response decoding is schema-shape-driven
// ("collection vs scalar" dispatch) via the Gateway's exemplar contract in
// pkg/model.
package planner

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/devassist/agentcore/pkg/model"
	"github.com/devassist/agentcore/pkg/orcherr"
	"github.com/devassist/agentcore/pkg/task"
	"github.com/devassist/agentcore/pkg/telemetry"
	"github.com/devassist/agentcore/pkg/tools"
)

// maxRetryAttempts is the default schema-violation retry budget.
const maxRetryAttempts = 2

const (
	// PromptGoalCreation is the prompt type for goal decomposition.
	PromptGoalCreation = "goal_creation"
	// PromptPlanCreation is the prompt type for goal-to-step expansion.
	PromptPlanCreation = "plan_creation"
)

// Gateway is the subset of *model.Gateway the Planner calls through.
type Gateway interface {
	Generate(ctx context.Context, in model.GenerateInput) (any, error)
}

// Planner creates and revises Plans.
type Planner struct {
	gateway  Gateway
	registry *tools.Registry
	logger   telemetry.Logger
	tracer   telemetry.Tracer
	maxRetry int

	// ClientDescription and ProjectDescription are interpolated into every
	// plan-creation prompt so the model knows whose codebase and which
	// project it is planning for. Both may be empty.
	ClientDescription  string
	ProjectDescription string
}

// New constructs a Planner. maxRetry defaults to maxRetryAttempts when <= 0.
func New(gateway Gateway, registry *tools.Registry, logger telemetry.Logger, tracer telemetry.Tracer, maxRetry int) *Planner {
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	if tracer == nil {
		tracer = telemetry.NewNoopTracer()
	}
	if maxRetry <= 0 {
		maxRetry = maxRetryAttempts
	}
	return &Planner{gateway: gateway, registry: registry, logger: logger, tracer: tracer, maxRetry: maxRetry}
}

// goalWire is the JSON shape the goal-creation prompt returns for one goal.
type goalWire struct {
	GoalID     int    `json:"goalId"`
	GoalIntent string `json:"goalIntent"`
	DependsOn  []int  `json:"dependsOn"`
}

// goalsResponse is the schema exemplar for goal creation: {goals: [Goal]}.
type goalsResponse struct {
	Goals []goalWire `json:"goals"`
}

// stepWire is the JSON shape the plan-creation prompt returns for one step.
// StepDependsOn is a single local 0-based index into this goal's step list,
// or -1 for none.
type stepWire struct {
	StepToolName    string `json:"stepToolName"`
	StepInstruction string `json:"stepInstruction"`
	StepDependsOn   int    `json:"stepDependsOn"`
}

// stepsResponse is the schema exemplar for goal expansion: {steps: [Step]}.
type stepsResponse struct {
	Steps []stepWire `json:"steps"`
}

// stepDescriptor is one goal's planned step before sequencing assigns it an
// absolute order.
type stepDescriptor struct {
	ToolName      string
	Instruction   string
	DependsOnGoal int // local index into this goal's steps, -1 = none
}

// CreateGoals calls the goal-creation prompt and returns the decomposed
// goals. discoveryResult is the Retrieval
// Subsystem's output (or, for a recovery plan, that plus failure-analysis
// prose appended by the caller).
func (p *Planner) CreateGoals(ctx context.Context, plan *task.Plan, discoveryResult string) ([]task.Goal, error) {
	ctx, span := p.tracer.Start(ctx, "planner.CreateGoals")
	defer span.End()

	interpolation := map[string]string{
		"planEnglishQuestion":  plan.EnglishQuestion,
		"discoveryResult":      discoveryResult,
		"questionChecklistText": strings.Join(plan.QuestionChecklist, "\n"),
	}

	resp, err := p.generateWithRetry(ctx, PromptGoalCreation, interpolation, goalsResponse{})
	if err != nil {
		return nil, err
	}
	parsed, ok := resp.(goalsResponse)
	if !ok {
		return nil, orcherr.SchemaViolation("goal creation response had unexpected shape", nil)
	}

	goals := make([]task.Goal, 0, len(parsed.Goals))
	for _, w := range parsed.Goals {
		deps := make(map[int]struct{}, len(w.DependsOn))
		for _, d := range w.DependsOn {
			// Only earlier-numbered goals are valid dependencies; silently
			// drop anything else rather than fail the whole decomposition
			// over one bad reference.
			if d >= 0 && d < w.GoalID {
				deps[d] = struct{}{}
			}
		}
		goals = append(goals, task.Goal{GoalID: w.GoalID, GoalIntent: w.GoalIntent, DependsOn: deps})
	}

	if len(plan.QuestionChecklist) > 0 {
		ratio := float64(len(goals)) / float64(len(plan.QuestionChecklist))
		if ratio < 1.0 {
			p.logger.Warn(ctx, "goal count below checklist ratio threshold",
				"goals", len(goals), "checklistItems", len(plan.QuestionChecklist), "ratio", ratio)
		}
	}
	return goals, nil
}

// ExpandGoal calls the plan-creation prompt for one goal and returns its
// planned steps. excludeTool, when
// non-empty, is omitted from the tool catalog handed to the prompt —
// recovery planning uses this to steer away from the tool that just failed.
func (p *Planner) ExpandGoal(ctx context.Context, plan *task.Plan, goal task.Goal, planContext, excludeTool string) ([]stepDescriptor, error) {
	ctx, span := p.tracer.Start(ctx, "planner.ExpandGoal")
	defer span.End()

	toolDescriptions := p.registry.Descriptions()
	if excludeTool != "" {
		toolDescriptions = p.registry.DescriptionsExcluding(excludeTool)
	}

	interpolation := map[string]string{
		"clientDescription":  p.ClientDescription,
		"projectDescription": p.ProjectDescription,
		"planContext":       planContext,
		"userRequest":       plan.EnglishQuestion,
		"questionChecklist": strings.Join(plan.QuestionChecklist, "\n"),
		"investigationGuidance": plan.InvestigationGuidance,
		"availableTools":    p.registry.Names(),
		"toolDescriptions":  toolDescriptions,
	}

	resp, err := p.generateWithRetry(ctx, PromptPlanCreation, interpolation, stepsResponse{})
	if err != nil {
		return nil, err
	}
	parsed, ok := resp.(stepsResponse)
	if !ok {
		return nil, orcherr.SchemaViolation("plan creation response had unexpected shape", nil)
	}

	descriptors := make([]stepDescriptor, 0, len(parsed.Steps))
	for _, w := range parsed.Steps {
		if _, err := p.registry.ByName(w.StepToolName); err != nil {
			return nil, orcherr.Wrap(orcherr.KindUnknownTool,
				fmt.Sprintf("goal %d expansion referenced unregistered tool", goal.GoalID), err)
		}
		descriptors = append(descriptors, stepDescriptor{
			ToolName:      w.StepToolName,
			Instruction:   w.StepInstruction,
			DependsOnGoal: w.StepDependsOn,
		})
	}
	return descriptors, nil
}

// BuildSteps runs the full goal->expand->sequence pipeline for plan: it
// creates goals from discoveryResult, expands each into steps (excluding
// excludeTool from the tool catalog when set), and linearizes the result
// into a single ordered PlanStep list. It is the entry point both the
// Planning Runner (for a fresh Plan) and recovery planning (for a
// derivative Plan) call.
func (p *Planner) BuildSteps(ctx context.Context, plan *task.Plan, discoveryResult, excludeTool string) ([]task.Goal, []*task.PlanStep, error) {
	goals, err := p.CreateGoals(ctx, plan, discoveryResult)
	if err != nil {
		return nil, nil, err
	}

	stepsByGoal := make(map[int][]stepDescriptor, len(goals))
	for _, g := range goals {
		planContext := goalPlanContext(g, discoveryResult)
		descriptors, err := p.ExpandGoal(ctx, plan, g, planContext, excludeTool)
		if err != nil {
			return nil, nil, err
		}
		stepsByGoal[g.GoalID] = descriptors
	}

	steps, err := Sequence(goals, stepsByGoal)
	if err != nil {
		return nil, nil, err
	}
	return goals, steps, nil
}

// goalPlanContext assembles the "goal intent + dependencies + discovery"
// prose the Gateway interpolates as {planContext}.
func goalPlanContext(g task.Goal, discoveryResult string) string {
	deps := make([]string, 0, len(g.DependsOn))
	for d := range g.DependsOn {
		deps = append(deps, strconv.Itoa(d))
	}
	sort.Strings(deps)
	var b strings.Builder
	fmt.Fprintf(&b, "Goal %d: %s", g.GoalID, g.GoalIntent)
	if len(deps) > 0 {
		fmt.Fprintf(&b, " (depends on goals: %s)", strings.Join(deps, ", "))
	}
	if discoveryResult != "" {
		b.WriteString("\n\n")
		b.WriteString(discoveryResult)
	}
	return b.String()
}

// generateWithRetry calls the Gateway, retrying up to p.maxRetry additional
// times when the failure is a schema violation. Non-schema errors are
// surfaced immediately.
func (p *Planner) generateWithRetry(ctx context.Context, promptType string, interpolation map[string]string, schema any) (any, error) {
	var lastErr error
	for attempt := 0; attempt <= p.maxRetry; attempt++ {
		resp, err := p.gateway.Generate(ctx, model.GenerateInput{
			PromptType:    promptType,
			Interpolation: interpolation,
			Schema:        schema,
		})
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !orcherr.IsKind(err, orcherr.KindSchemaViolation) {
			return nil, err
		}
		p.logger.Warn(ctx, "planner schema violation, retrying", "promptType", promptType, "attempt", attempt)
	}
	return nil, orcherr.Wrap(orcherr.KindSchemaViolation,
		fmt.Sprintf("%s exhausted retry budget", promptType), lastErr)
}
