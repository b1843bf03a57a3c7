package workflow

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"github.com/goailoop/ailoop/model"
)

// jsonStore is the root document persisted to the store file.
type jsonStore struct {
	Executions  []model.WorkflowExecution `json:"executions"`
	Transitions []model.StateTransition   `json:"transitions"`
	Output      []model.ExecutionOutput   `json:"output"`
	Approvals   []model.ApprovalRequest   `json:"approvals"`
}

// Persistence is the JSON-file-backed store for workflow executions,
// transitions, output, and approvals. Each write rewrites the whole file
// from this process's in-memory copy while holding an exclusive advisory
// file lock (via flock), so two writers never interleave. The file is not
// re-read before a write: records that another process wrote after this one
// loaded the store are overwritten.
type Persistence struct {
	path string
	mu   sync.Mutex
	data jsonStore
}

// NewPersistence opens (or initializes) the JSON store at path.
func NewPersistence(path string) (*Persistence, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("workflow: create store directory: %w", err)
		}
	}

	p := &Persistence{path: path}
	if _, err := os.Stat(path); err == nil {
		if err := p.load(); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *Persistence) load() error {
	lock := flock.New(p.path)
	locked, err := lock.TryRLock()
	if err != nil {
		return fmt.Errorf("workflow: acquire read lock on store: %w", err)
	}
	if locked {
		defer lock.Unlock()
	}

	raw, err := os.ReadFile(p.path)
	if err != nil {
		return fmt.Errorf("workflow: read store: %w", err)
	}
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, &p.data)
}

func (p *Persistence) save() error {
	lock := flock.New(p.path)
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("workflow: acquire write lock on store: %w", err)
	}
	defer lock.Unlock()

	raw, err := json.MarshalIndent(p.data, "", "  ")
	if err != nil {
		return fmt.Errorf("workflow: serialize store: %w", err)
	}
	if err := os.WriteFile(p.path, raw, 0o644); err != nil {
		return fmt.Errorf("workflow: write store: %w", err)
	}
	return nil
}

// CreateExecution appends a new execution record.
func (p *Persistence) CreateExecution(exec model.WorkflowExecution) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.data.Executions = append(p.data.Executions, exec)
	return p.save()
}

// UpdateExecutionStatus updates status (and, if non-empty, current_state).
// Terminal statuses also stamp CompletedAt.
func (p *Persistence) UpdateExecutionStatus(id uuid.UUID, status model.ExecutionStatus, currentState string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.data.Executions {
		e := &p.data.Executions[i]
		if e.ID != id {
			continue
		}
		e.Status = status
		if currentState != "" {
			e.CurrentState = currentState
		}
		if status.Terminal() {
			now := time.Now()
			e.CompletedAt = &now
		}
		return p.save()
	}
	return nil
}

// GetExecution returns the execution with id, if present.
func (p *Persistence) GetExecution(id uuid.UUID) (model.WorkflowExecution, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range p.data.Executions {
		if e.ID == id {
			return e, true
		}
	}
	return model.WorkflowExecution{}, false
}

// FindIncompleteExecutions returns every execution still Running or
// ApprovalPending — the set a restart needs to reconcile.
func (p *Persistence) FindIncompleteExecutions() []model.WorkflowExecution {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []model.WorkflowExecution
	for _, e := range p.data.Executions {
		if e.Status == model.StatusRunning || e.Status == model.StatusApprovalPending {
			out = append(out, e)
		}
	}
	return out
}

// PersistStateTransition appends a transition record.
func (p *Persistence) PersistStateTransition(t model.StateTransition) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.data.Transitions = append(p.data.Transitions, t)
	return p.save()
}

// GetTransitions returns every transition recorded for executionID, in
// insertion order.
func (p *Persistence) GetTransitions(executionID uuid.UUID) []model.StateTransition {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []model.StateTransition
	for _, t := range p.data.Transitions {
		if t.ExecutionID == executionID {
			out = append(out, t)
		}
	}
	return out
}

// CreateApprovalRequest appends a new approval request.
func (p *Persistence) CreateApprovalRequest(req model.ApprovalRequest) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.data.Approvals = append(p.data.Approvals, req)
	return p.save()
}

// UpdateApprovalStatus resolves approvalID to status, stamping responder
// and RespondedAt.
func (p *Persistence) UpdateApprovalStatus(approvalID uuid.UUID, status model.ApprovalStatus, responder string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.data.Approvals {
		a := &p.data.Approvals[i]
		if a.ID != approvalID {
			continue
		}
		a.Status = status
		now := time.Now()
		a.RespondedAt = &now
		a.Responder = responder
		return p.save()
	}
	return nil
}

// GetApprovalRequest returns the approval request with id, if present.
func (p *Persistence) GetApprovalRequest(id uuid.UUID) (model.ApprovalRequest, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, a := range p.data.Approvals {
		if a.ID == id {
			return a, true
		}
	}
	return model.ApprovalRequest{}, false
}

// GetPendingApprovals returns every still-pending approval for executionID.
func (p *Persistence) GetPendingApprovals(executionID uuid.UUID) []model.ApprovalRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []model.ApprovalRequest
	for _, a := range p.data.Approvals {
		if a.ExecutionID == executionID && a.Status == model.ApprovalPending {
			out = append(out, a)
		}
	}
	return out
}

// PersistOutputBatch appends a batch of captured output chunks.
func (p *Persistence) PersistOutputBatch(outputs []model.ExecutionOutput) error {
	if len(outputs) == 0 {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.data.Output = append(p.data.Output, outputs...)
	return p.save()
}

// QueryOutput returns executionID's output (optionally filtered to one
// state), ordered by sequence, with offset/limit pagination.
func (p *Persistence) QueryOutput(executionID uuid.UUID, state string, offset, limit int) []model.ExecutionOutput {
	p.mu.Lock()
	defer p.mu.Unlock()
	var matched []model.ExecutionOutput
	for _, o := range p.data.Output {
		if o.ExecutionID != executionID {
			continue
		}
		if state != "" && o.State != state {
			continue
		}
		matched = append(matched, o)
	}
	for i := 1; i < len(matched); i++ {
		for j := i; j > 0 && matched[j-1].Sequence > matched[j].Sequence; j-- {
			matched[j-1], matched[j] = matched[j], matched[j-1]
		}
	}
	if offset >= len(matched) {
		return nil
	}
	end := offset + limit
	if limit <= 0 || end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end]
}

// QueryMetrics aggregates execution counts and average duration, optionally
// scoped to one workflow name.
func (p *Persistence) QueryMetrics(workflowName string) model.WorkflowMetrics {
	p.mu.Lock()
	defer p.mu.Unlock()

	var total, success, failure int
	var durationSum time.Duration
	var durationCount int

	for _, e := range p.data.Executions {
		if workflowName != "" && e.WorkflowName != workflowName {
			continue
		}
		total++
		switch e.Status {
		case model.StatusCompleted:
			success++
		case model.StatusFailed, model.StatusTimeout, model.StatusDenied, model.StatusCancelled:
			failure++
		}
		if e.CompletedAt != nil {
			durationSum += e.CompletedAt.Sub(e.StartedAt)
			durationCount++
		}
	}

	var avgMS float64
	if durationCount > 0 {
		avgMS = float64(durationSum.Milliseconds()) / float64(durationCount)
	}

	return model.WorkflowMetrics{
		WorkflowName:   workflowName,
		ExecutionCount: total,
		SuccessCount:   success,
		FailureCount:   failure,
		AvgDurationMS:  avgMS,
	}
}
