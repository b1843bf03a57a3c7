package workflow

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/goailoop/ailoop/model"
)

// active tracks one in-flight execution: the engine run's completion is
// observed by waiting on done, which carries the final status or error.
type active struct {
	cancel context.CancelFunc
	done   chan activeResult
}

type activeResult struct {
	status model.ExecutionStatus
	err    error
}

// Orchestrator owns every registered workflow definition and every
// in-flight execution. Starting a workflow spawns a goroutine running an
// Engine to completion; active executions are discoverable while running
// and, after a restart, their last-known persisted status is still
// retrievable even though the in-memory tracking entry is gone.
type Orchestrator struct {
	persistence *Persistence
	executor    Executor
	approvals   *ApprovalManager

	mu          sync.Mutex
	definitions map[string]model.WorkflowDefinition
	running     map[uuid.UUID]*active
}

// NewOrchestrator returns an orchestrator backed by persistence, executor,
// and approvals.
func NewOrchestrator(persistence *Persistence, executor Executor, approvals *ApprovalManager) *Orchestrator {
	return &Orchestrator{
		persistence: persistence,
		executor:    executor,
		approvals:   approvals,
		definitions: make(map[string]model.WorkflowDefinition),
		running:     make(map[uuid.UUID]*active),
	}
}

// RegisterWorkflow validates def and makes it startable by name.
func (o *Orchestrator) RegisterWorkflow(def model.WorkflowDefinition) error {
	result := ValidateWorkflow(def)
	if !result.IsValid() {
		return fmt.Errorf("workflow: definition %q is invalid: %+v", def.Name, result.Errors)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.definitions[def.Name] = def
	return nil
}

// GetWorkflowDefinition returns the registered definition named name.
func (o *Orchestrator) GetWorkflowDefinition(name string) (model.WorkflowDefinition, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	def, ok := o.definitions[name]
	return def, ok
}

// ListWorkflows returns the names of every registered workflow definition.
func (o *Orchestrator) ListWorkflows() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]string, 0, len(o.definitions))
	for name := range o.definitions {
		out = append(out, name)
	}
	return out
}

// StartWorkflow begins a new execution of the named workflow definition and
// returns its execution id immediately; the engine runs in the background.
func (o *Orchestrator) StartWorkflow(ctx context.Context, name, initiator string) (uuid.UUID, error) {
	o.mu.Lock()
	def, ok := o.definitions[name]
	o.mu.Unlock()
	if !ok {
		return uuid.UUID{}, fmt.Errorf("workflow: no definition registered for %q", name)
	}

	executionID := uuid.New()
	engine := NewEngine(def, o.executor, o.persistence, o.approvals)

	runCtx, cancel := context.WithCancel(ctx)
	a := &active{cancel: cancel, done: make(chan activeResult, 1)}

	o.mu.Lock()
	o.running[executionID] = a
	o.mu.Unlock()

	go func() {
		log.Printf("workflow: starting execution %s of %q", executionID, name)
		status, err := engine.Run(runCtx, executionID, initiator)
		if err != nil {
			log.Printf("workflow: execution %s of %q ended with error: %v", executionID, name, err)
		} else {
			log.Printf("workflow: execution %s of %q completed with status %s", executionID, name, status)
		}
		a.done <- activeResult{status: status, err: err}
	}()

	return executionID, nil
}

// GetExecutionStatus returns the persisted status for executionID.
func (o *Orchestrator) GetExecutionStatus(executionID uuid.UUID) (model.ExecutionStatus, bool) {
	exec, ok := o.persistence.GetExecution(executionID)
	if !ok {
		return "", false
	}
	return exec.Status, true
}

// IsRunning reports whether executionID is tracked as in-flight in this
// process.
func (o *Orchestrator) IsRunning(executionID uuid.UUID) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.running[executionID]
	return ok
}

// ActiveCount returns the number of executions currently tracked in this
// process.
func (o *Orchestrator) ActiveCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.running)
}

// CancelWorkflow stops a running execution's goroutine and persists
// Cancelled as its final status.
func (o *Orchestrator) CancelWorkflow(executionID uuid.UUID) error {
	o.mu.Lock()
	a, ok := o.running[executionID]
	if ok {
		delete(o.running, executionID)
	}
	o.mu.Unlock()

	if !ok {
		return fmt.Errorf("workflow: execution %s is not running", executionID)
	}

	a.cancel()
	<-a.done

	exec, found := o.persistence.GetExecution(executionID)
	currentState := ""
	if found {
		currentState = exec.CurrentState
	}
	return o.persistence.UpdateExecutionStatus(executionID, model.StatusCancelled, currentState)
}

// WaitForCompletion blocks until executionID's engine goroutine finishes
// (removing it from the active set), or, if it is no longer tracked in
// this process — e.g. after a crash and restart — falls back to the
// persisted status immediately.
func (o *Orchestrator) WaitForCompletion(executionID uuid.UUID) (model.ExecutionStatus, error) {
	o.mu.Lock()
	a, ok := o.running[executionID]
	if ok {
		delete(o.running, executionID)
	}
	o.mu.Unlock()

	if !ok {
		status, found := o.GetExecutionStatus(executionID)
		if !found {
			return "", fmt.Errorf("workflow: no record of execution %s", executionID)
		}
		return status, nil
	}

	result := <-a.done
	return result.status, result.err
}

// Metrics returns aggregate success/failure/duration metrics for workflowName,
// or across every workflow if workflowName is empty.
func (o *Orchestrator) Metrics(workflowName string) model.WorkflowMetrics {
	return o.persistence.QueryMetrics(workflowName)
}

// Output returns a page of an execution's persisted output lines, optionally
// filtered to one workflow state.
func (o *Orchestrator) Output(executionID uuid.UUID, state string, offset, limit int) []model.ExecutionOutput {
	return o.persistence.QueryOutput(executionID, state, offset, limit)
}

// LogIncompleteExecutions reports, at startup, every execution left Running
// or ApprovalPending by a prior process — these are discoverable via
// GetExecutionStatus but will not resume automatically.
func (o *Orchestrator) LogIncompleteExecutions() {
	for _, exec := range o.persistence.FindIncompleteExecutions() {
		log.Printf("workflow: execution %s of %q was left %s at state %q; not resumed automatically",
			exec.ID, exec.WorkflowName, exec.Status, exec.CurrentState)
	}
}
