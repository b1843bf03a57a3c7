// Package model holds the wire and storage types shared by every subsystem:
// messages, channels, tasks, and workflow definitions/executions.
package model

import (
	"time"

	"github.com/google/uuid"
)

// SenderType identifies who originated a Message.
type SenderType string

const (
	SenderAgent  SenderType = "agent"
	SenderHuman  SenderType = "human"
	SenderSystem SenderType = "system"
)

// Priority is the urgency of a Notification.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// ResponseType classifies how a prompt was resolved.
type ResponseType string

const (
	ResponseText                 ResponseType = "text"
	ResponseTimeout              ResponseType = "timeout"
	ResponseCancelled            ResponseType = "cancelled"
	ResponseAuthorizationApproved ResponseType = "authorization_approved"
	ResponseAuthorizationDenied   ResponseType = "authorization_denied"
)

// ContentType tags which variant Content holds.
type ContentType string

const (
	ContentQuestion           ContentType = "question"
	ContentAuthorization      ContentType = "authorization"
	ContentNavigate           ContentType = "navigate"
	ContentNotification       ContentType = "notification"
	ContentResponse           ContentType = "response"
	ContentTaskCreate         ContentType = "task_create"
	ContentTaskUpdate         ContentType = "task_update"
	ContentTaskDependencyAdd  ContentType = "task_dependency_add"
	ContentTaskDependencyDel  ContentType = "task_dependency_remove"
	ContentWorkflowProgress   ContentType = "workflow_progress"
	ContentWorkflowCompleted  ContentType = "workflow_completed"
	ContentStdout             ContentType = "stdout"
	ContentStderr             ContentType = "stderr"
)

// Content is the tagged union carried by every Message. Only the fields
// relevant to Type are populated; this mirrors the Rust original's enum by
// using a flat struct with a discriminant instead of an interface, which
// keeps JSON (de)serialization a single struct tag walk.
type Content struct {
	Type ContentType `json:"type"`

	// Question
	Text           string   `json:"text,omitempty"`
	TimeoutSeconds int      `json:"timeout_seconds,omitempty"`
	Choices        []string `json:"choices,omitempty"`

	// Authorization
	Action  string `json:"action,omitempty"`
	Context string `json:"context,omitempty"`

	// Navigate
	URL string `json:"url,omitempty"`

	// Notification
	Priority Priority `json:"priority,omitempty"`

	// Response
	Answer       *string      `json:"answer,omitempty"`
	ResponseType ResponseType `json:"response_type,omitempty"`
	ChoiceIndex  *int         `json:"choice_index,omitempty"`
	ChoiceValue  string       `json:"choice_value,omitempty"`

	// Task* events
	TaskID       uuid.UUID `json:"task_id,omitempty"`
	ParentID     uuid.UUID `json:"parent_id,omitempty"`
	Title        string    `json:"title,omitempty"`
	State        string    `json:"state,omitempty"`

	// Workflow* events
	ExecutionID   uuid.UUID `json:"execution_id,omitempty"`
	WorkflowName  string    `json:"workflow_name,omitempty"`
	CurrentState  string    `json:"current_state,omitempty"`
	Status        string    `json:"status,omitempty"`

	// Stdout/Stderr
	Stream string `json:"stream,omitempty"`
	Data   string `json:"data,omitempty"`
}

// Message is the atomic unit of communication on a channel.
type Message struct {
	ID            uuid.UUID  `json:"id"`
	Channel       string     `json:"channel"`
	SenderType    SenderType `json:"sender_type"`
	Content       Content    `json:"content"`
	Timestamp     time.Time  `json:"timestamp"`
	CorrelationID *uuid.UUID `json:"correlation_id,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// New stamps a fresh id and timestamp onto a Message.
func New(channel string, sender SenderType, content Content) Message {
	return Message{
		ID:         uuid.New(),
		Channel:    channel,
		SenderType: sender,
		Content:    content,
		Timestamp:  time.Now(),
	}
}

// IsPrompt reports whether this message expects a human response.
func (m Message) IsPrompt() bool {
	switch m.Content.Type {
	case ContentQuestion, ContentAuthorization, ContentNavigate:
		return true
	default:
		return false
	}
}

// EffectiveTimeout returns the message's timeout, falling back to def when
// the message did not specify one (zero means "use default").
func (m Message) EffectiveTimeout(def time.Duration) time.Duration {
	if m.Content.TimeoutSeconds > 0 {
		return time.Duration(m.Content.TimeoutSeconds) * time.Second
	}
	return def
}
