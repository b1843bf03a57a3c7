package workflow

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/goailoop/ailoop/model"
)

// Engine drives one workflow definition's state machine from its initial
// state to a terminal state, persisting every transition along the way and
// pausing at any state that requires human approval.
type Engine struct {
	def         model.WorkflowDefinition
	executor    Executor
	persistence *Persistence
	approvals   *ApprovalManager
}

// NewEngine returns an engine bound to def.
func NewEngine(def model.WorkflowDefinition, executor Executor, persistence *Persistence, approvals *ApprovalManager) *Engine {
	return &Engine{def: def, executor: executor, persistence: persistence, approvals: approvals}
}

// IsTerminal reports whether state is one of the definition's terminal states.
func (e *Engine) IsTerminal(state string) bool { return e.def.IsTerminal(state) }

// Run executes the workflow from its initial state through to completion,
// returning the final status.
func (e *Engine) Run(ctx context.Context, executionID uuid.UUID, initiator string) (model.ExecutionStatus, error) {
	execution := model.WorkflowExecution{
		ID:           executionID,
		WorkflowName: e.def.Name,
		CurrentState: e.def.InitialState,
		Status:       model.StatusRunning,
		StartedAt:    time.Now(),
		Initiator:    initiator,
	}
	if err := e.persistence.CreateExecution(execution); err != nil {
		return "", fmt.Errorf("workflow: create execution: %w", err)
	}

	if err := e.persistence.PersistStateTransition(model.StateTransition{
		ExecutionID: executionID,
		ToState:     e.def.InitialState,
		Type:        "initial",
		Timestamp:   time.Now(),
	}); err != nil {
		return "", fmt.Errorf("workflow: persist initial transition: %w", err)
	}

	currentState := e.def.InitialState

	for {
		if e.def.IsTerminal(currentState) {
			final := model.StatusCompleted
			if containsFold(currentState, "fail") {
				final = model.StatusFailed
			}
			if err := e.persistence.UpdateExecutionStatus(executionID, final, currentState); err != nil {
				return "", fmt.Errorf("workflow: update final execution status: %w", err)
			}
			return final, nil
		}

		stateDef, ok := e.def.States[currentState]
		if !ok {
			return "", fmt.Errorf("workflow: state %q not found in definition", currentState)
		}

		if stateDef.RequiresApproval {
			next, status, done, err := e.runApproval(ctx, executionID, currentState, stateDef)
			if err != nil {
				return "", err
			}
			if done {
				return status, nil
			}
			if next != currentState {
				currentState = next
				continue
			}
			// Approved: fall through and run this state's command.
		}

		stateStart := time.Now()
		result, err := e.executor.Execute(ctx, executionID.String(), stateDef)
		if err != nil {
			return "", fmt.Errorf("workflow: execute state %q: %w", currentState, err)
		}
		durationMS := time.Since(stateStart).Milliseconds()

		transition := model.StateTransition{
			ExecutionID: executionID,
			FromState:   currentState,
			ToState:     result.NextState,
			Type:        result.TransitionType,
			DurationMS:  durationMS,
			ExitCode:    result.ExitCode,
			Timestamp:   time.Now(),
		}
		if result.RetryAttempt != nil {
			transition.Metadata = map[string]any{"retry_attempt": *result.RetryAttempt}
		}
		if err := e.persistence.PersistStateTransition(transition); err != nil {
			return "", fmt.Errorf("workflow: persist state transition: %w", err)
		}

		newStatus := model.StatusRunning
		if e.def.IsTerminal(result.NextState) {
			if containsFold(result.NextState, "fail") {
				newStatus = model.StatusFailed
			} else {
				newStatus = model.StatusCompleted
			}
		}
		if err := e.persistence.UpdateExecutionStatus(executionID, newStatus, result.NextState); err != nil {
			return "", fmt.Errorf("workflow: update execution status: %w", err)
		}

		currentState = result.NextState
		log.Printf("workflow: execution %s transitioned to state %q", executionID, currentState)
	}
}

// runApproval requests human approval for stateDef, waits for the response
// (or its timeout), and reports either the next state to run or a terminal
// status if the workflow should stop here.
func (e *Engine) runApproval(ctx context.Context, executionID uuid.UUID, currentState string, stateDef model.WorkflowState) (next string, status model.ExecutionStatus, done bool, err error) {
	log.Printf("workflow: state %q requires approval - waiting for human approval", currentState)

	if err = e.persistence.UpdateExecutionStatus(executionID, model.StatusApprovalPending, currentState); err != nil {
		return "", "", false, fmt.Errorf("workflow: update status to approval pending: %w", err)
	}

	timeoutSeconds := stateDef.ApprovalTimeoutSeconds
	if timeoutSeconds == 0 {
		timeoutSeconds = 300
	}
	description := stateDef.ApprovalDescription
	if description == "" {
		description = fmt.Sprintf("approve state: %s", currentState)
	}

	_, ch, reqErr := e.approvals.RequestApproval(executionID, currentState, description, timeoutSeconds, stateDef.TimeoutBehavior)
	if reqErr != nil {
		return "", "", false, fmt.Errorf("workflow: request approval: %w", reqErr)
	}

	var response model.ApprovalResponse
	select {
	case response = <-ch:
	case <-time.After(time.Duration(timeoutSeconds) * time.Second):
		response = model.ApprovalResponseTimeout
	case <-ctx.Done():
		return "", "", false, ctx.Err()
	}

	if err = e.persistence.UpdateExecutionStatus(executionID, model.StatusRunning, currentState); err != nil {
		return "", "", false, fmt.Errorf("workflow: restore running status: %w", err)
	}

	switch response {
	case model.ApprovalResponseApproved:
		log.Printf("workflow: approval granted for state %q", currentState)
		return currentState, "", false, nil

	case model.ApprovalResponseDenied:
		log.Printf("workflow: approval denied for state %q", currentState)
		if stateDef.Transitions.ApprovalDenied != "" {
			if err = e.persistence.PersistStateTransition(model.StateTransition{
				ExecutionID: executionID,
				FromState:   currentState,
				ToState:     stateDef.Transitions.ApprovalDenied,
				Type:        model.TransitionApprovalDenied,
				Timestamp:   time.Now(),
			}); err != nil {
				return "", "", false, fmt.Errorf("workflow: persist denial transition: %w", err)
			}
			return stateDef.Transitions.ApprovalDenied, "", false, nil
		}
		if err = e.persistence.UpdateExecutionStatus(executionID, model.StatusDenied, currentState); err != nil {
			return "", "", false, fmt.Errorf("workflow: update status to denied: %w", err)
		}
		return "", model.StatusDenied, true, nil

	default: // timeout
		log.Printf("workflow: approval timeout for state %q", currentState)
		if stateDef.TimeoutBehavior == model.TimeoutDenyAndContinue && stateDef.Transitions.ApprovalDenied != "" {
			return stateDef.Transitions.ApprovalDenied, "", false, nil
		}
		if err = e.persistence.UpdateExecutionStatus(executionID, model.StatusTimeout, currentState); err != nil {
			return "", "", false, fmt.Errorf("workflow: update status to timeout: %w", err)
		}
		return "", model.StatusTimeout, true, nil
	}
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), substr)
}
