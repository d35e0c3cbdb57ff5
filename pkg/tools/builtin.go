package tools

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/devassist/agentcore/pkg/task"
)

// ListFilesTool lists the entries of a directory rooted under Root. The
// instruction is taken verbatim as a path relative to Root.
type ListFilesTool struct {
	Root string
}

// Name implements Tool.
func (ListFilesTool) Name() string { return "LIST_FILES" }

// Description implements Tool.
func (ListFilesTool) Description() string {
	return "Lists the files in a directory, given a path relative to the workspace root."
}

// Execute implements Tool.
func (t ListFilesTool) Execute(_ context.Context, _ *task.Plan, instruction, _ string) (task.ToolResult, error) {
	rel := strings.TrimSpace(instruction)
	if rel == "" {
		rel = "."
	}
	path, err := t.resolve(rel)
	if err != nil {
		return task.NewError("", err.Error()), nil
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return task.NewError("", err.Error()), nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return task.NewOk(strings.Join(names, "\n")), nil
}

// ReadFileTool reads a file's content, given a path relative to Root. It
// truncates the result at MaxBytes to keep planner context bounded.
type ReadFileTool struct {
	Root     string
	MaxBytes int
}

// Name implements Tool.
func (ReadFileTool) Name() string { return "READ_FILE" }

// Description implements Tool.
func (ReadFileTool) Description() string {
	return "Reads the content of a file, given a path relative to the workspace root."
}

// Execute implements Tool.
func (t ReadFileTool) Execute(_ context.Context, _ *task.Plan, instruction, _ string) (task.ToolResult, error) {
	rel := strings.TrimSpace(instruction)
	if rel == "" {
		return task.NewError("", "no file path given"), nil
	}
	path, err := t.resolve(rel)
	if err != nil {
		return task.NewError("", err.Error()), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return task.NewError("", err.Error()), nil
	}
	content := string(data)
	max := t.MaxBytes
	if max <= 0 {
		max = 4000
	}
	if len(content) > max {
		content = content[:max] + "... (truncated)"
	}
	return task.NewOk(content), nil
}

// resolve joins rel onto Root and rejects any path escaping it, guarding
// against a planner-written instruction containing "../".
func (t ListFilesTool) resolve(rel string) (string, error) {
	return resolveUnder(t.Root, rel)
}

func (t ReadFileTool) resolve(rel string) (string, error) {
	return resolveUnder(t.Root, rel)
}

func resolveUnder(root, rel string) (string, error) {
	if root == "" {
		root = "."
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	joined := filepath.Join(absRoot, rel)
	if joined != absRoot && !strings.HasPrefix(joined, absRoot+string(filepath.Separator)) {
		return "", errOutsideRoot(rel)
	}
	return joined, nil
}

func errOutsideRoot(rel string) error {
	return &outsideRootError{rel: rel}
}

type outsideRootError struct{ rel string }

func (e *outsideRootError) Error() string {
	return "path escapes workspace root: " + e.rel
}

var (
	_ Tool = ListFilesTool{}
	_ Tool = ReadFileTool{}
)
