package workflow

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/goailoop/ailoop/model"
)

func TestEngineSimpleWorkflow(t *testing.T) {
	dir := t.TempDir()
	persistence, err := NewPersistence(filepath.Join(dir, "workflow.json"))
	if err != nil {
		t.Fatal(err)
	}
	approvals := NewApprovalManager(persistence)

	def := model.WorkflowDefinition{
		Name:           "test-workflow",
		InitialState:   "start",
		TerminalStates: []string{"completed", "failed"},
		States: map[string]model.WorkflowState{
			"start": {
				Command:        "echo starting",
				TimeoutSeconds: 10,
				Transitions:    model.Transitions{Success: "completed", Failure: "failed"},
			},
			"completed": {},
			"failed":    {},
		},
	}

	engine := NewEngine(def, NewBashExecutor(), persistence, approvals)
	executionID := uuid.New()

	status, err := engine.Run(context.Background(), executionID, "test-user")
	if err != nil {
		t.Fatal(err)
	}
	if status != model.StatusCompleted {
		t.Errorf("status = %v", status)
	}

	execution, ok := persistence.GetExecution(executionID)
	if !ok || execution.Status != model.StatusCompleted || execution.CurrentState != "completed" {
		t.Errorf("execution = %+v, ok = %v", execution, ok)
	}

	transitions := persistence.GetTransitions(executionID)
	if len(transitions) < 2 {
		t.Errorf("expected at least 2 transitions (initial + one state), got %d", len(transitions))
	}
}

func TestEngineApprovalGate(t *testing.T) {
	dir := t.TempDir()
	persistence, err := NewPersistence(filepath.Join(dir, "workflow.json"))
	if err != nil {
		t.Fatal(err)
	}
	approvals := NewApprovalManager(persistence)

	def := model.WorkflowDefinition{
		Name:           "gated",
		InitialState:   "deploy",
		TerminalStates: []string{"completed", "denied"},
		States: map[string]model.WorkflowState{
			"deploy": {
				Command:                "echo deploying",
				TimeoutSeconds:         10,
				RequiresApproval:       true,
				ApprovalTimeoutSeconds: 5,
				Transitions:            model.Transitions{Success: "completed", Failure: "denied", ApprovalDenied: "denied"},
			},
			"completed": {},
			"denied":    {},
		},
	}

	engine := NewEngine(def, NewBashExecutor(), persistence, approvals)
	executionID := uuid.New()

	done := make(chan struct{})
	go func() {
		status, runErr := engine.Run(context.Background(), executionID, "test-user")
		if runErr != nil {
			t.Error(runErr)
		}
		if status != model.StatusCompleted {
			t.Errorf("status = %v", status)
		}
		close(done)
	}()

	var approvalID uuid.UUID
	for {
		pending := approvals.GetPendingApprovals(executionID)
		if len(pending) > 0 {
			approvalID = pending[0].ID
			break
		}
	}
	if err := approvals.RespondApproval(approvalID, model.ApprovalResponseApproved, "operator"); err != nil {
		t.Fatal(err)
	}
	<-done
}
