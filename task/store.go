// Package task implements the per-channel task dependency store: creation,
// cycle-checked dependency edges, and cached blocked-state recomputation.
package task

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/goailoop/ailoop/model"
)

// ErrNotFound is returned when a referenced task does not exist in the
// given channel.
var ErrNotFound = errors.New("task: not found")

// ErrDependencyExists is returned when the exact edge already exists.
var ErrDependencyExists = errors.New("task: dependency already exists")

// ErrCycle is returned when adding a dependency would create a cycle.
var ErrCycle = errors.New("task: adding dependency would create a cycle")

type key struct {
	channel string
	id      uuid.UUID
}

// Store owns every channel's task graph. Each Task carries its own
// DependsOn and BlockingFor (the exact reverse of DependsOn) so that
// updating a task's state can walk straight to its dependents without
// reusing the forward-dependency map for a reverse lookup.
type Store struct {
	mu    sync.RWMutex
	tasks map[key]*model.Task
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{tasks: make(map[key]*model.Task)}
}

// Create adds a new pending task to channel and returns it.
func (s *Store) Create(channel, title, description string) model.Task {
	return s.CreateWithMeta(channel, title, description, "", nil)
}

// CreateWithMeta adds a new pending task carrying an optional assignee and
// metadata bag, set once at creation and otherwise immutable.
func (s *Store) CreateWithMeta(channel, title, description, assignee string, metadata map[string]any) model.Task {
	now := time.Now()
	t := model.Task{
		ID:          uuid.New(),
		Channel:     channel,
		Title:       title,
		Description: description,
		State:       model.TaskPending,
		Assignee:    assignee,
		Metadata:    metadata,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.mu.Lock()
	s.tasks[key{channel, t.ID}] = &t
	s.mu.Unlock()
	return t
}

// Get returns a copy of the task identified by (channel, id).
func (s *Store) Get(channel string, id uuid.UUID) (model.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[key{channel, id}]
	if !ok {
		return model.Task{}, ErrNotFound
	}
	return *t, nil
}

// UpdateState sets the task's state and recomputes the blocked flag of
// every task that directly depends on it (its BlockingFor list).
func (s *Store) UpdateState(channel string, id uuid.UUID, newState model.TaskState) (model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[key{channel, id}]
	if !ok {
		return model.Task{}, ErrNotFound
	}
	t.State = newState
	t.UpdatedAt = time.Now()

	for _, dependentID := range t.BlockingFor {
		s.recomputeBlockedLocked(channel, dependentID)
	}
	return *t, nil
}

// AddDependency records that child depends on parent. Rejects unknown
// endpoints, duplicate edges, and edges that would create a cycle.
func (s *Store) AddDependency(channel string, childID, parentID uuid.UUID, depType model.DependencyType) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	child, ok := s.tasks[key{channel, childID}]
	if !ok {
		return fmt.Errorf("task: child %s: %w", childID, ErrNotFound)
	}
	parent, ok := s.tasks[key{channel, parentID}]
	if !ok {
		return fmt.Errorf("task: parent %s: %w", parentID, ErrNotFound)
	}

	for _, p := range child.DependsOn {
		if p == parentID {
			return ErrDependencyExists
		}
	}

	// Cycle check: if parent can already reach child through parent's own
	// dependency chain, adding child -> parent closes a loop.
	if s.hasPathLocked(channel, parentID, childID, make(map[uuid.UUID]bool)) {
		return ErrCycle
	}

	child.DependsOn = append(child.DependsOn, parentID)
	parent.BlockingFor = append(parent.BlockingFor, childID)
	s.recomputeBlockedLocked(channel, childID)
	return nil
}

// RemoveDependency deletes the child-depends-on-parent edge if present.
func (s *Store) RemoveDependency(channel string, childID, parentID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	child, ok := s.tasks[key{channel, childID}]
	if !ok {
		return fmt.Errorf("task: child %s: %w", childID, ErrNotFound)
	}
	parent, ok := s.tasks[key{channel, parentID}]
	if !ok {
		return fmt.Errorf("task: parent %s: %w", parentID, ErrNotFound)
	}

	child.DependsOn = removeID(child.DependsOn, parentID)
	parent.BlockingFor = removeID(parent.BlockingFor, childID)
	s.recomputeBlockedLocked(channel, childID)
	return nil
}

// hasPathLocked reports whether a directed path exists from -> to, walking
// DependsOn edges. Caller must hold s.mu.
func (s *Store) hasPathLocked(channel string, from, to uuid.UUID, visited map[uuid.UUID]bool) bool {
	if from == to {
		return true
	}
	if visited[from] {
		return false
	}
	visited[from] = true
	t, ok := s.tasks[key{channel, from}]
	if !ok {
		return false
	}
	for _, parent := range t.DependsOn {
		if s.hasPathLocked(channel, parent, to, visited) {
			return true
		}
	}
	return false
}

// recomputeBlockedLocked sets taskID's Blocked flag from its immediate
// parents' states. Caller must hold s.mu.
func (s *Store) recomputeBlockedLocked(channel string, taskID uuid.UUID) {
	t, ok := s.tasks[key{channel, taskID}]
	if !ok {
		return
	}
	blocked := false
	for _, parentID := range t.DependsOn {
		parent, ok := s.tasks[key{channel, parentID}]
		if !ok || parent.State != model.TaskDone {
			blocked = true
			break
		}
	}
	t.Blocked = blocked
}

// All returns every task in channel regardless of state, oldest first.
func (s *Store) All(channel string) []model.Task {
	return s.filterSorted(channel, func(*model.Task) bool { return true })
}

// Ready returns every non-blocked pending task in channel, oldest first.
func (s *Store) Ready(channel string) []model.Task {
	return s.filterSorted(channel, func(t *model.Task) bool {
		return !t.Blocked && t.State == model.TaskPending
	})
}

// Blocked returns every blocked task in channel, oldest first.
func (s *Store) Blocked(channel string) []model.Task {
	return s.filterSorted(channel, func(t *model.Task) bool {
		return t.Blocked
	})
}

func (s *Store) filterSorted(channel string, pred func(*model.Task) bool) []model.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Task
	for k, t := range s.tasks {
		if k.channel == channel && pred(t) {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Graph returns a task alongside its resolved parent and child tasks.
func (s *Store) Graph(channel string, id uuid.UUID) (model.DependencyGraph, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[key{channel, id}]
	if !ok {
		return model.DependencyGraph{}, ErrNotFound
	}
	g := model.DependencyGraph{Task: *t}
	for _, pid := range t.DependsOn {
		if p, ok := s.tasks[key{channel, pid}]; ok {
			g.Parents = append(g.Parents, *p)
		}
	}
	for _, cid := range t.BlockingFor {
		if c, ok := s.tasks[key{channel, cid}]; ok {
			g.Children = append(g.Children, *c)
		}
	}
	return g, nil
}

func removeID(ids []uuid.UUID, target uuid.UUID) []uuid.UUID {
	out := ids[:0]
	for _, id := range ids {
		if id != target {
			out = append(out, id)
		}
	}
	return out
}
