package workflow

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
)

func newTestOutputManager(t *testing.T) *OutputManager {
	t.Helper()
	dir := t.TempDir()
	persistence, err := NewPersistence(filepath.Join(dir, "workflow.json"))
	if err != nil {
		t.Fatal(err)
	}
	return NewOutputManager(persistence)
}

func TestOutputManagerInitialization(t *testing.T) {
	m := newTestOutputManager(t)
	m.InitializeExecution("exec-1")

	stats, ok := m.GetStats("exec-1")
	if !ok || stats.RecentCount != 0 {
		t.Errorf("stats = %+v, ok = %v", stats, ok)
	}
}

func TestOutputManagerPushLine(t *testing.T) {
	m := newTestOutputManager(t)
	m.InitializeExecution("exec-1")

	m.PushLine("exec-1", "state-1", "stdout", []byte("test output"))

	recent := m.GetRecentOutput("exec-1")
	if len(recent) != 1 || recent[0].Data != "test output" {
		t.Errorf("recent = %+v", recent)
	}
}

func TestOutputManagerSubscription(t *testing.T) {
	m := newTestOutputManager(t)
	m.InitializeExecution(uuid.New().String())

	execID := "exec-sub"
	m.InitializeExecution(execID)
	ch := m.Subscribe(execID)
	if ch == nil {
		t.Fatal("expected a subscription channel")
	}

	go m.PushLine(execID, "state-1", "stdout", []byte("broadcast test"))

	select {
	case chunk := <-ch:
		if chunk.Data != "broadcast test" {
			t.Errorf("chunk = %+v", chunk)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for subscribed chunk")
	}
}

func TestOutputManagerFlush(t *testing.T) {
	m := newTestOutputManager(t)
	execID := "exec-flush"
	m.InitializeExecution(execID)

	for i := 0; i < 10; i++ {
		m.PushLine(execID, "state-1", "stdout", []byte("line"))
	}

	if err := m.FlushExecution(execID); err != nil {
		t.Fatal(err)
	}
}

func TestOutputManagerCleanup(t *testing.T) {
	m := newTestOutputManager(t)
	m.InitializeExecution("exec-1")
	if _, ok := m.GetStats("exec-1"); !ok {
		t.Fatal("expected stats before cleanup")
	}

	m.CleanupExecution("exec-1")
	if _, ok := m.GetStats("exec-1"); ok {
		t.Error("expected no stats after cleanup")
	}
}
