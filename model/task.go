package model

import (
	"time"

	"github.com/google/uuid"
)

// TaskState is the lifecycle state of a Task.
type TaskState string

const (
	TaskPending   TaskState = "pending"
	TaskDone      TaskState = "done"
	TaskAbandoned TaskState = "abandoned"
)

// DependencyType names the kind of a dependency edge (e.g. "blocks" vs
// "informs"). The task store does not keep it: every dependency edge blocks
// its child in the same way, whatever its type.
type DependencyType string

const (
	DependencyBlocks DependencyType = "blocks"
	DependencyInforms DependencyType = "informs"
)

// Task is a unit of work scoped to a single channel.
type Task struct {
	ID          uuid.UUID       `json:"id"`
	Channel     string          `json:"channel"`
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	State       TaskState       `json:"state"`
	DependsOn   []uuid.UUID     `json:"depends_on"`
	BlockingFor []uuid.UUID     `json:"blocking_for"`
	Blocked     bool            `json:"blocked"`
	Assignee    string          `json:"assignee,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	Metadata    map[string]any  `json:"metadata,omitempty"`
}

// Dependency is a directed edge: Child depends on Parent.
type Dependency struct {
	ChildID  uuid.UUID      `json:"child_id"`
	ParentID uuid.UUID      `json:"parent_id"`
	Type     DependencyType `json:"dependency_type"`
}

// DependencyGraph is the expanded view of a task's neighbours.
type DependencyGraph struct {
	Task     Task   `json:"task"`
	Parents  []Task `json:"parents"`
	Children []Task `json:"children"`
}
