package model

import (
	"time"

	"github.com/google/uuid"
)

// ExecutionStatus is the lifecycle status of a WorkflowExecution.
type ExecutionStatus string

const (
	StatusRunning         ExecutionStatus = "running"
	StatusApprovalPending ExecutionStatus = "approval_pending"
	StatusCompleted       ExecutionStatus = "completed"
	StatusFailed          ExecutionStatus = "failed"
	StatusTimeout         ExecutionStatus = "timeout"
	StatusDenied          ExecutionStatus = "denied"
	StatusCancelled       ExecutionStatus = "cancelled"
)

// Terminal reports whether status ends the execution's lifecycle.
func (s ExecutionStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusTimeout, StatusDenied, StatusCancelled:
		return true
	default:
		return false
	}
}

// TimeoutBehavior controls what happens when an approval request times out.
type TimeoutBehavior string

const (
	TimeoutDenyAndFail     TimeoutBehavior = "deny_and_fail"
	TimeoutDenyAndContinue TimeoutBehavior = "deny_and_continue"
)

// TransitionType classifies why a state execution moved to its next state.
type TransitionType string

const (
	TransitionSuccess        TransitionType = "success"
	TransitionFailure        TransitionType = "failure"
	TransitionTimeout        TransitionType = "timeout"
	TransitionApprovalDenied TransitionType = "approval_denied"
)

// RetryPolicy governs re-execution of a failed state command.
type RetryPolicy struct {
	MaxAttempts        int     `yaml:"max_attempts" json:"max_attempts"`
	InitialDelaySeconds int    `yaml:"initial_delay_seconds" json:"initial_delay_seconds"`
	ExponentialBackoff bool    `yaml:"exponential_backoff" json:"exponential_backoff"`
	BackoffMultiplier  float64 `yaml:"backoff_multiplier" json:"backoff_multiplier"`
}

// Transitions maps each possible outcome of a state to the next state name.
type Transitions struct {
	Success         string `yaml:"success,omitempty" json:"success,omitempty"`
	Failure         string `yaml:"failure,omitempty" json:"failure,omitempty"`
	Timeout         string `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	ApprovalDenied  string `yaml:"approval_denied,omitempty" json:"approval_denied,omitempty"`
}

// WorkflowState is one node of a WorkflowDefinition's state machine.
type WorkflowState struct {
	Command            string          `yaml:"command,omitempty" json:"command,omitempty"`
	TimeoutSeconds      int             `yaml:"timeout_seconds,omitempty" json:"timeout_seconds,omitempty"`
	RequiresApproval    bool            `yaml:"requires_approval,omitempty" json:"requires_approval,omitempty"`
	ApprovalTimeoutSeconds int          `yaml:"approval_timeout_seconds,omitempty" json:"approval_timeout_seconds,omitempty"`
	ApprovalDescription string          `yaml:"approval_description,omitempty" json:"approval_description,omitempty"`
	TimeoutBehavior     TimeoutBehavior `yaml:"timeout_behavior,omitempty" json:"timeout_behavior,omitempty"`
	RetryPolicy         *RetryPolicy    `yaml:"retry_policy,omitempty" json:"retry_policy,omitempty"`
	Transitions         Transitions     `yaml:"transitions,omitempty" json:"transitions,omitempty"`
}

// WorkflowDefaults holds fallback settings applied when a state omits them.
type WorkflowDefaults struct {
	RetryPolicy     *RetryPolicy    `yaml:"retry_policy,omitempty" json:"retry_policy,omitempty"`
	TimeoutSeconds  int             `yaml:"timeout_seconds,omitempty" json:"timeout_seconds,omitempty"`
	TimeoutBehavior TimeoutBehavior `yaml:"timeout_behavior,omitempty" json:"timeout_behavior,omitempty"`
}

// WorkflowDefinition is a YAML-defined state machine template.
type WorkflowDefinition struct {
	Name           string                    `yaml:"name" json:"name"`
	InitialState   string                    `yaml:"initial_state" json:"initial_state"`
	TerminalStates []string                  `yaml:"terminal_states" json:"terminal_states"`
	States         map[string]WorkflowState  `yaml:"states" json:"states"`
	Defaults       *WorkflowDefaults         `yaml:"defaults,omitempty" json:"defaults,omitempty"`
}

// IsTerminal reports whether name is one of the definition's terminal states.
func (d WorkflowDefinition) IsTerminal(name string) bool {
	for _, t := range d.TerminalStates {
		if t == name {
			return true
		}
	}
	return false
}

// WorkflowExecution tracks one running (or finished) instance of a definition.
type WorkflowExecution struct {
	ID           uuid.UUID       `json:"id"`
	WorkflowName string          `json:"workflow_name"`
	CurrentState string          `json:"current_state"`
	Status       ExecutionStatus `json:"status"`
	StartedAt    time.Time       `json:"started_at"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
	Initiator    string          `json:"initiator"`
	Context      map[string]any  `json:"context,omitempty"`
	Error        string          `json:"error,omitempty"`
}

// StateTransition is an append-only audit record of one state-to-state move.
type StateTransition struct {
	ExecutionID  uuid.UUID      `json:"execution_id"`
	FromState    string         `json:"from_state"`
	ToState      string         `json:"to_state"`
	Type         TransitionType `json:"transition_type"`
	DurationMS   int64          `json:"duration_ms"`
	ExitCode     *int           `json:"exit_code,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// ExecutionOutput is one captured chunk of stdout/stderr for a state run.
type ExecutionOutput struct {
	ExecutionID uuid.UUID `json:"execution_id"`
	State       string    `json:"state"`
	Stream      string    `json:"stream"`
	Data        string    `json:"data"`
	Sequence    int64     `json:"sequence"`
	Timestamp   time.Time `json:"timestamp"`
}

// ApprovalStatus is the lifecycle status of an ApprovalRequest.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalDenied   ApprovalStatus = "denied"
	ApprovalTimeout  ApprovalStatus = "timeout"
)

// ApprovalRequest is an append-only record of a gate raised mid-execution.
type ApprovalRequest struct {
	ID              uuid.UUID       `json:"id"`
	ExecutionID     uuid.UUID       `json:"execution_id"`
	State           string          `json:"state"`
	Description     string          `json:"description,omitempty"`
	Status          ApprovalStatus  `json:"status"`
	RequestedAt     time.Time       `json:"requested_at"`
	RespondedAt     *time.Time      `json:"responded_at,omitempty"`
	Responder       string          `json:"responder,omitempty"`
	TimeoutSeconds  int             `json:"timeout_seconds"`
	TimeoutBehavior TimeoutBehavior `json:"timeout_behavior"`
}

// ApprovalResponse is what a human supplies to resolve an ApprovalRequest.
type ApprovalResponse string

const (
	ApprovalResponseApproved ApprovalResponse = "approved"
	ApprovalResponseDenied   ApprovalResponse = "denied"
	ApprovalResponseTimeout  ApprovalResponse = "timeout"
)

// ExecutionResult is what an Executor returns for one state run.
type ExecutionResult struct {
	Success        bool
	ExitCode       *int
	DurationMS     int64
	NextState      string
	TransitionType TransitionType
	RetryAttempt   *int
	ErrorMessage   string
}

// WorkflowMetrics summarizes execution history for one workflow name.
type WorkflowMetrics struct {
	WorkflowName    string  `json:"workflow_name"`
	ExecutionCount  int     `json:"execution_count"`
	SuccessCount    int     `json:"success_count"`
	FailureCount    int     `json:"failure_count"`
	AvgDurationMS   float64 `json:"avg_duration_ms"`
}

// SuccessRate returns the fraction of completed executions, 0 if none.
func (m WorkflowMetrics) SuccessRate() float64 {
	if m.ExecutionCount == 0 {
		return 0
	}
	return float64(m.SuccessCount) / float64(m.ExecutionCount)
}

// FailureRate returns the fraction of failed executions, 0 if none.
func (m WorkflowMetrics) FailureRate() float64 {
	if m.ExecutionCount == 0 {
		return 0
	}
	return float64(m.FailureCount) / float64(m.ExecutionCount)
}
