package planner

import (
	"context"
	"fmt"
	"strings"

	"github.com/devassist/agentcore/pkg/task"
)

// previewChars bounds the completed-step output previews folded into the
// failure-analysis context.
const previewChars = 100

// Recover builds a derivative recovery Plan for a failed step. failed is
// the step that returned Error or Stop; following is the step that was
// planned to run next, if any;
// completed is every step in the original plan that reached DONE, in
// order. discoveryResult is the Retrieval Subsystem's context for the
// owning TaskContext, reused as-is.
func (p *Planner) Recover(ctx context.Context, contextID string, failed, following *task.PlanStep, completed []*task.PlanStep, discoveryResult string) (*task.Plan, error) {
	ctx, span := p.tracer.Start(ctx, "planner.Recover")
	defer span.End()

	analysis := failureAnalysis(failed, following, completed)

	recoveryPlan := &task.Plan{
		ContextID:         contextID,
		EnglishQuestion:   fmt.Sprintf("Recover from failed step: %s - %s", failed.StepToolName, failed.StepInstruction),
		QuestionChecklist: []string{fmt.Sprintf("Create alternative approach to accomplish: %s", failed.StepInstruction)},
		Status:            task.PlanStatusCreated,
	}

	combinedDiscovery := discoveryResult
	if combinedDiscovery != "" {
		combinedDiscovery += "\n\n"
	}
	combinedDiscovery += analysis

	_, steps, err := p.BuildSteps(ctx, recoveryPlan, combinedDiscovery, failed.StepToolName)
	if err != nil {
		return nil, err
	}
	recoveryPlan.Steps = steps
	return recoveryPlan, nil
}

// failureAnalysis renders the failed step's tool/instruction/output, the
// step that was planned to run next (if any), and 100-char previews of
// every completed step's output.
func failureAnalysis(failed, following *task.PlanStep, completed []*task.PlanStep) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Failed step: tool=%s instruction=%q", failed.StepToolName, failed.StepInstruction)
	if failed.ToolResult != nil {
		fmt.Fprintf(&b, " output=%q", failed.ToolResult.Output())
	}
	if following != nil {
		fmt.Fprintf(&b, "\nNext planned step was: tool=%s instruction=%q", following.StepToolName, following.StepInstruction)
	}
	if len(completed) > 0 {
		b.WriteString("\nCompleted steps so far:")
		for _, s := range completed {
			b.WriteString("\n- ")
			b.WriteString(s.StepToolName)
			b.WriteString(": ")
			b.WriteString(preview(s))
		}
	}
	return b.String()
}

func preview(s *task.PlanStep) string {
	if s.ToolResult == nil {
		return ""
	}
	out := s.ToolResult.Output()
	if len(out) > previewChars {
		return out[:previewChars]
	}
	return out
}
