package mongo

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/devassist/agentcore/pkg/task"
)

// Plans are stored as an embedded JSON blob rather than a native BSON
// sub-document: task.ToolResult is a closed sum with unexported fields (see
// pkg/task), so round-tripping it through bson struct tags would require
// duplicating the same tagged-union encoding this file already needs for
// JSON. One codec, one place.

type planDoc struct {
	ID                    string        `json:"id"`
	ContextID             string        `json:"contextId"`
	EnglishQuestion       string        `json:"englishQuestion"`
	ContextSummary        string        `json:"contextSummary"`
	QuestionChecklist     []string      `json:"questionChecklist"`
	InvestigationGuidance string        `json:"investigationGuidance"`
	Status                string        `json:"status"`
	FinalAnswer           *string       `json:"finalAnswer,omitempty"`
	Steps                 []stepDoc     `json:"steps"`
	PendingUserInput      bool          `json:"pendingUserInput"`
	CreatedAt             string        `json:"createdAt"`
	UpdatedAt             string        `json:"updatedAt"`
}

type stepDoc struct {
	ID              string         `json:"id"`
	PlanID          string         `json:"planId"`
	ContextID       string         `json:"contextId"`
	Order           int            `json:"order"`
	StepToolName    string         `json:"stepToolName"`
	StepInstruction string         `json:"stepInstruction"`
	StepDependsOn   []int          `json:"stepDependsOn"`
	StepGroup       string         `json:"stepGroup"`
	Status          string         `json:"status"`
	ToolResult      *toolResultDoc `json:"toolResult,omitempty"`
}

type toolResultDoc struct {
	Kind         string `json:"kind"` // ok | error | ask | stop
	Output       string `json:"output"`
	ErrorMessage string `json:"errorMessage,omitempty"`
	Reason       string `json:"reason,omitempty"`
}

func encodePlans(plans []*task.Plan) ([]byte, error) {
	docs := make([]planDoc, len(plans))
	for i, p := range plans {
		docs[i] = toPlanDoc(p)
	}
	return json.Marshal(docs)
}

func decodePlans(raw []byte) ([]*task.Plan, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var docs []planDoc
	if err := json.Unmarshal(raw, &docs); err != nil {
		return nil, err
	}
	out := make([]*task.Plan, len(docs))
	for i, d := range docs {
		p, err := fromPlanDoc(d)
		if err != nil {
			return nil, err
		}
		out[i] = p
	}
	return out, nil
}

func toPlanDoc(p *task.Plan) planDoc {
	steps := make([]stepDoc, len(p.Steps))
	for i, s := range p.Steps {
		steps[i] = toStepDoc(s)
	}
	return planDoc{
		ID:                    p.ID,
		ContextID:             p.ContextID,
		EnglishQuestion:       p.EnglishQuestion,
		ContextSummary:        p.ContextSummary,
		QuestionChecklist:     p.QuestionChecklist,
		InvestigationGuidance: p.InvestigationGuidance,
		Status:                string(p.Status),
		FinalAnswer:           p.FinalAnswer,
		Steps:                 steps,
		PendingUserInput:      p.PendingUserInput,
		CreatedAt:             p.CreatedAt.Format(timeLayout),
		UpdatedAt:             p.UpdatedAt.Format(timeLayout),
	}
}

func fromPlanDoc(d planDoc) (*task.Plan, error) {
	steps := make([]*task.PlanStep, len(d.Steps))
	for i, sd := range d.Steps {
		s, err := fromStepDoc(sd)
		if err != nil {
			return nil, err
		}
		steps[i] = s
	}
	createdAt, err := parseTime(d.CreatedAt)
	if err != nil {
		return nil, err
	}
	updatedAt, err := parseTime(d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &task.Plan{
		ID:                    d.ID,
		ContextID:             d.ContextID,
		EnglishQuestion:       d.EnglishQuestion,
		ContextSummary:        d.ContextSummary,
		QuestionChecklist:     d.QuestionChecklist,
		InvestigationGuidance: d.InvestigationGuidance,
		Status:                task.PlanStatus(d.Status),
		FinalAnswer:           d.FinalAnswer,
		Steps:                 steps,
		PendingUserInput:      d.PendingUserInput,
		CreatedAt:             createdAt,
		UpdatedAt:             updatedAt,
	}, nil
}

func toStepDoc(s *task.PlanStep) stepDoc {
	depends := make([]int, 0, len(s.StepDependsOn))
	for d := range s.StepDependsOn {
		depends = append(depends, d)
	}
	var tr *toolResultDoc
	if s.ToolResult != nil {
		tr = toToolResultDoc(s.ToolResult)
	}
	return stepDoc{
		ID:              s.ID,
		PlanID:          s.PlanID,
		ContextID:       s.ContextID,
		Order:           s.Order,
		StepToolName:    s.StepToolName,
		StepInstruction: s.StepInstruction,
		StepDependsOn:   depends,
		StepGroup:       s.StepGroup,
		Status:          string(s.Status),
		ToolResult:      tr,
	}
}

func fromStepDoc(d stepDoc) (*task.PlanStep, error) {
	depends := make(map[int]struct{}, len(d.StepDependsOn))
	for _, v := range d.StepDependsOn {
		depends[v] = struct{}{}
	}
	var tr task.ToolResult
	if d.ToolResult != nil {
		r, err := fromToolResultDoc(*d.ToolResult)
		if err != nil {
			return nil, err
		}
		tr = r
	}
	return &task.PlanStep{
		ID:              d.ID,
		PlanID:          d.PlanID,
		ContextID:       d.ContextID,
		Order:           d.Order,
		StepToolName:    d.StepToolName,
		StepInstruction: d.StepInstruction,
		StepDependsOn:   depends,
		StepGroup:       d.StepGroup,
		Status:          task.StepStatus(d.Status),
		ToolResult:      tr,
	}, nil
}

func toToolResultDoc(tr task.ToolResult) *toolResultDoc {
	switch v := tr.(type) {
	case task.Ok:
		return &toolResultDoc{Kind: "ok", Output: v.Output()}
	case task.Error:
		return &toolResultDoc{Kind: "error", Output: v.Output(), ErrorMessage: v.ErrorMessage}
	case task.Ask:
		return &toolResultDoc{Kind: "ask", Output: v.Output()}
	case task.Stop:
		return &toolResultDoc{Kind: "stop", Output: v.Output(), Reason: v.Reason}
	default:
		return &toolResultDoc{Kind: "ok", Output: tr.Output()}
	}
}

func fromToolResultDoc(d toolResultDoc) (task.ToolResult, error) {
	switch d.Kind {
	case "ok":
		return task.NewOk(d.Output), nil
	case "error":
		return task.NewError(d.Output, d.ErrorMessage), nil
	case "ask":
		return task.NewAsk(d.Output), nil
	case "stop":
		return task.NewStop(d.Output, d.Reason), nil
	default:
		return nil, fmt.Errorf("mongo: unknown tool result kind %q", d.Kind)
	}
}

const timeLayout = time.RFC3339Nano

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(timeLayout, s)
}
