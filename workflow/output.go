package workflow

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/goailoop/ailoop/model"
)

const (
	outputBatchSize      = 100
	outputBatchSizeBytes = 1024 * 1024
	outputRecentCap      = 1000
	outputSubscriberBuf  = 256
)

type outputState struct {
	recentMu sync.Mutex
	recent   []model.ExecutionOutput

	sequence int64

	pendingMu    sync.Mutex
	pending      []model.ExecutionOutput
	pendingBytes int

	subsMu sync.Mutex
	subs   []chan model.ExecutionOutput
}

// OutputManager captures stdout/stderr produced as workflow states run: a
// bounded in-memory window for "recent output" queries, batched persistence
// so disk writes don't happen per-line, and a fan-out broadcast for live
// subscribers. It implements OutputSink so a BashExecutor can feed it
// directly.
type OutputManager struct {
	persistence *Persistence

	mu         sync.Mutex
	executions map[string]*outputState
}

// NewOutputManager returns a manager backed by persistence.
func NewOutputManager(persistence *Persistence) *OutputManager {
	return &OutputManager{persistence: persistence, executions: make(map[string]*outputState)}
}

// InitializeExecution prepares capture state for executionID. Calling
// PushLine for an execution that was never initialized is a no-op.
func (m *OutputManager) InitializeExecution(executionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.executions[executionID] = &outputState{}
}

// Subscribe returns a channel receiving every chunk pushed for executionID
// from this point on. The channel is unbuffered beyond outputSubscriberBuf;
// a slow subscriber drops chunks rather than blocking the executor.
func (m *OutputManager) Subscribe(executionID string) <-chan model.ExecutionOutput {
	st := m.stateFor(executionID)
	if st == nil {
		return nil
	}
	ch := make(chan model.ExecutionOutput, outputSubscriberBuf)
	st.subsMu.Lock()
	st.subs = append(st.subs, ch)
	st.subsMu.Unlock()
	return ch
}

func (m *OutputManager) stateFor(executionID string) *outputState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.executions[executionID]
}

// PushLine implements OutputSink.
func (m *OutputManager) PushLine(executionID, stateName, stream string, line []byte) {
	st := m.stateFor(executionID)
	if st == nil {
		return
	}

	execID, err := uuid.Parse(executionID)
	if err != nil {
		execID = uuid.Nil
	}

	chunk := model.ExecutionOutput{
		ExecutionID: execID,
		State:       stateName,
		Stream:      stream,
		Data:        string(line),
		Sequence:    atomic.AddInt64(&st.sequence, 1) - 1,
		Timestamp:   time.Now(),
	}

	st.recentMu.Lock()
	st.recent = append(st.recent, chunk)
	if len(st.recent) > outputRecentCap {
		st.recent = st.recent[len(st.recent)-outputRecentCap:]
	}
	st.recentMu.Unlock()

	st.subsMu.Lock()
	for _, ch := range st.subs {
		select {
		case ch <- chunk:
		default:
		}
	}
	st.subsMu.Unlock()

	st.pendingMu.Lock()
	st.pending = append(st.pending, chunk)
	st.pendingBytes += len(chunk.Data)
	shouldFlush := len(st.pending) >= outputBatchSize || st.pendingBytes >= outputBatchSizeBytes
	var batch []model.ExecutionOutput
	if shouldFlush {
		batch = st.pending
		st.pending = nil
		st.pendingBytes = 0
	}
	st.pendingMu.Unlock()

	if shouldFlush {
		_ = m.persistence.PersistOutputBatch(batch)
	}
}

// FlushExecution persists any output not yet written for executionID.
func (m *OutputManager) FlushExecution(executionID string) error {
	st := m.stateFor(executionID)
	if st == nil {
		return nil
	}
	st.pendingMu.Lock()
	batch := st.pending
	st.pending = nil
	st.pendingBytes = 0
	st.pendingMu.Unlock()

	if len(batch) == 0 {
		return nil
	}
	return m.persistence.PersistOutputBatch(batch)
}

// GetRecentOutput returns the in-memory window of recent chunks for
// executionID.
func (m *OutputManager) GetRecentOutput(executionID string) []model.ExecutionOutput {
	st := m.stateFor(executionID)
	if st == nil {
		return nil
	}
	st.recentMu.Lock()
	defer st.recentMu.Unlock()
	out := make([]model.ExecutionOutput, len(st.recent))
	copy(out, st.recent)
	return out
}

// CleanupExecution discards all in-memory state for executionID.
func (m *OutputManager) CleanupExecution(executionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.executions, executionID)
}

// OutputStats summarizes one execution's in-memory capture state.
type OutputStats struct {
	RecentCount     int
	RecentCapacity  int
	SequenceNumber  int64
	SubscriberCount int
}

// GetStats returns capture statistics for executionID, if initialized.
func (m *OutputManager) GetStats(executionID string) (OutputStats, bool) {
	st := m.stateFor(executionID)
	if st == nil {
		return OutputStats{}, false
	}
	st.recentMu.Lock()
	recentCount := len(st.recent)
	st.recentMu.Unlock()

	st.subsMu.Lock()
	subCount := len(st.subs)
	st.subsMu.Unlock()

	return OutputStats{
		RecentCount:     recentCount,
		RecentCapacity:  outputRecentCap,
		SequenceNumber:  atomic.LoadInt64(&st.sequence),
		SubscriberCount: subCount,
	}, true
}
