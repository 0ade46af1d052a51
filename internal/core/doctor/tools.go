package doctor

import (
	"context"
	"os/exec"
)

// lookPathFunc is the function used to find executables on PATH.
// Package-level variable to allow test overrides.
var lookPathFunc = exec.LookPath

// Tool is one platform provider command the agent shells out to.
type Tool struct {
	Label    string
	Argv     []string
	Required bool
}

// ToolsCheck verifies that provider commands are available on $PATH.
// Missing required tools fail; missing optional tools warn.
type ToolsCheck struct {
	tools []Tool
}

// NewToolsCheck creates a new tools check.
func NewToolsCheck(tools []Tool) *ToolsCheck {
	return &ToolsCheck{tools: tools}
}

func (c *ToolsCheck) Name() string {
	return "Providers"
}

func (c *ToolsCheck) Run(_ context.Context) Result {
	result := Result{Name: c.Name()}

	for _, tool := range c.tools {
		if len(tool.Argv) == 0 {
			result.Items = append(result.Items, warn(tool.Label, "no command configured"))
			continue
		}

		path, err := lookPathFunc(tool.Argv[0])
		switch {
		case err == nil:
			result.Items = append(result.Items, pass(tool.Label, path))
		case tool.Required:
			result.Items = append(result.Items, fail(tool.Label, tool.Argv[0]+" not found on PATH"))
		default:
			result.Items = append(result.Items, warn(tool.Label, tool.Argv[0]+" not found on PATH"))
		}
	}

	return result
}
