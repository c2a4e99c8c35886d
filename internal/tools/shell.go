package tools

import (
	"context"
	"time"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"

	"github.com/MEKXH/warden/internal/executor"
)

// ExecInput parameters for exec tool
type ExecInput struct {
	Command        string `json:"command" jsonschema:"required,description=Command line; the first word must be an allowlisted executable. No shell is involved"`
	TimeoutSeconds int    `json:"timeout_seconds" jsonschema:"description=Optional timeout override in seconds"`
}

// ExecOutput result of exec tool
type ExecOutput struct {
	Stdout    string `json:"stdout"`
	Stderr    string `json:"stderr"`
	ExitCode  int    `json:"exit_code"`
	Succeeded bool   `json:"succeeded"`
	Truncated bool   `json:"truncated,omitempty"`
}

type execToolImpl struct {
	commands *executor.Commands
}

func (e *execToolImpl) execute(ctx context.Context, input *ExecInput) (*ExecOutput, error) {
	timeout := time.Duration(input.TimeoutSeconds) * time.Second
	res, err := e.commands.ExecuteWithTimeout(ctx, input.Command, timeout)
	if err != nil {
		return nil, err
	}
	return &ExecOutput{
		Stdout:    res.Stdout,
		Stderr:    res.Stderr,
		ExitCode:  res.ExitCode,
		Succeeded: res.Succeeded,
		Truncated: res.Truncated,
	}, nil
}

// NewExecTool creates the exec tool
func NewExecTool(commands *executor.Commands) (tool.InvokableTool, error) {
	impl := &execToolImpl{commands: commands}
	return utils.InferTool("exec", "Execute an allowlisted command without a shell", impl.execute)
}
