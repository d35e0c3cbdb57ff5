// Package tools defines the Tool contract and the Registry that planners
// consult when choosing what to schedule.
package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/devassist/agentcore/pkg/orcherr"
	"github.com/devassist/agentcore/pkg/task"
)

// Tool is a named operation the planner can schedule. Implementations must
// not mutate the plan they are given.
type Tool interface {
	// Name is the tool identifier as referenced by planner output.
	Name() string

	// Description is a concise, one-line summary injected into planner
	// prompts. Startup fails if this is blank.
	Description() string

	// Execute runs the tool for one step. plan is read-only; instruction is
	// the planner-written instruction for this step; stepContext summarizes
	// earlier DONE steps.
	Execute(ctx context.Context, plan *task.Plan, instruction, stepContext string) (task.ToolResult, error)
}

// Registry holds the set of registered tools and exposes name lookup plus a
// deterministic description catalog for planner prompts.
type Registry struct {
	order []string
	tools map[string]Tool

	descriptions string
	names        string
}

// NewRegistry validates and builds a Registry from tools, in the given
// order. Startup fails (returns an error) if any tool has a blank
// description, or if two tools share a name.
func NewRegistry(toolList []Tool) (*Registry, error) {
	r := &Registry{
		tools: make(map[string]Tool, len(toolList)),
	}
	var descLines []string
	var nameList []string
	for _, t := range toolList {
		name := t.Name()
		if name == "" {
			return nil, orcherr.Configuration("tool registered with an empty name")
		}
		if strings.TrimSpace(t.Description()) == "" {
			return nil, orcherr.Newf(orcherr.KindConfiguration,
				"tool %q has a blank description", name)
		}
		if _, dup := r.tools[name]; dup {
			return nil, orcherr.Newf(orcherr.KindConfiguration,
				"tool %q registered more than once", name)
		}
		r.tools[name] = t
		r.order = append(r.order, name)
		descLines = append(descLines, fmt.Sprintf("%s: %s", name, t.Description()))
		nameList = append(nameList, name)
	}
	r.descriptions = strings.Join(descLines, "\n")
	r.names = strings.Join(nameList, ", ")
	return r, nil
}

// ByName looks up a tool by name.
func (r *Registry) ByName(name string) (Tool, error) {
	t, ok := r.tools[name]
	if !ok {
		return nil, orcherr.UnknownTool(name)
	}
	return t, nil
}

// Descriptions returns the cached, newline-separated "<NAME>: <description>"
// catalog in registration order.
func (r *Registry) Descriptions() string { return r.descriptions }

// DescriptionsExcluding returns the same catalog as Descriptions, omitting
// the named tools. Used by recovery planning to steer the planner away from
// the tool that just failed without removing it from the Registry itself.
func (r *Registry) DescriptionsExcluding(names ...string) string {
	if len(names) == 0 {
		return r.descriptions
	}
	skip := make(map[string]struct{}, len(names))
	for _, n := range names {
		skip[n] = struct{}{}
	}
	var lines []string
	for _, name := range r.order {
		if _, excluded := skip[name]; excluded {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s: %s", name, r.tools[name].Description()))
	}
	return strings.Join(lines, "\n")
}

// Names returns the cached comma-separated list of tool names in
// registration order.
func (r *Registry) Names() string { return r.names }

// Len returns the number of registered tools.
func (r *Registry) Len() int { return len(r.order) }
