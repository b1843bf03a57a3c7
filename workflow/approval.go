package workflow

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/goailoop/ailoop/model"
)

// ApprovalManager tracks in-flight human-approval gates: it persists each
// request, hands the caller a channel to await the resolution on, and
// resolves that channel exactly once when a response (or a timeout) arrives.
type ApprovalManager struct {
	persistence *Persistence

	mu       sync.Mutex
	channels map[uuid.UUID]chan model.ApprovalResponse
}

// NewApprovalManager returns a manager backed by persistence.
func NewApprovalManager(persistence *Persistence) *ApprovalManager {
	return &ApprovalManager{
		persistence: persistence,
		channels:    make(map[uuid.UUID]chan model.ApprovalResponse),
	}
}

// RequestApproval persists a new pending approval request and returns its id
// alongside a channel that receives exactly one ApprovalResponse once
// RespondApproval is called for this id.
func (m *ApprovalManager) RequestApproval(executionID uuid.UUID, stateName, description string, timeoutSeconds int, behavior model.TimeoutBehavior) (uuid.UUID, <-chan model.ApprovalResponse, error) {
	req := model.ApprovalRequest{
		ID:              uuid.New(),
		ExecutionID:     executionID,
		State:           stateName,
		Description:     description,
		Status:          model.ApprovalPending,
		RequestedAt:     time.Now(),
		TimeoutSeconds:  timeoutSeconds,
		TimeoutBehavior: behavior,
	}

	if err := m.persistence.CreateApprovalRequest(req); err != nil {
		return uuid.UUID{}, nil, fmt.Errorf("workflow: persist approval request: %w", err)
	}

	ch := make(chan model.ApprovalResponse, 1)
	m.mu.Lock()
	m.channels[req.ID] = ch
	m.mu.Unlock()

	return req.ID, ch, nil
}

// RespondApproval records responder's decision and delivers it to the
// waiting channel, if one is still registered.
func (m *ApprovalManager) RespondApproval(approvalID uuid.UUID, response model.ApprovalResponse, responder string) error {
	var status model.ApprovalStatus
	switch response {
	case model.ApprovalResponseApproved:
		status = model.ApprovalApproved
	case model.ApprovalResponseDenied:
		status = model.ApprovalDenied
	default:
		status = model.ApprovalTimeout
	}

	if err := m.persistence.UpdateApprovalStatus(approvalID, status, responder); err != nil {
		return fmt.Errorf("workflow: update approval status: %w", err)
	}

	m.mu.Lock()
	ch, ok := m.channels[approvalID]
	if ok {
		delete(m.channels, approvalID)
	}
	m.mu.Unlock()

	if ok {
		ch <- response
	}
	return nil
}

// GetApprovalRequest returns the persisted approval request with id.
func (m *ApprovalManager) GetApprovalRequest(id uuid.UUID) (model.ApprovalRequest, bool) {
	return m.persistence.GetApprovalRequest(id)
}

// GetPendingApprovals returns every still-pending approval for executionID.
func (m *ApprovalManager) GetPendingApprovals(executionID uuid.UUID) []model.ApprovalRequest {
	return m.persistence.GetPendingApprovals(executionID)
}
