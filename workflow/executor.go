// Package workflow implements the persistent, YAML-defined state-machine
// orchestrator: definitions, executions, approvals, and the bash-command
// executor that drives each state.
package workflow

import (
	"context"

	"github.com/goailoop/ailoop/model"
)

// Executor runs one state of a workflow definition and reports how it ended.
type Executor interface {
	Execute(ctx context.Context, executionID string, state model.WorkflowState) (model.ExecutionResult, error)
}
