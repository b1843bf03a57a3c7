package channel

import (
	"testing"

	"github.com/goailoop/ailoop/model"
)

func TestManagerCreationOnDemand(t *testing.T) {
	m := NewManager("public")
	if m.ConnectionCount("fresh") != 0 {
		t.Fatal("expected zero connections on a channel not yet referenced")
	}
	m.AddConnection("fresh")
	if m.ConnectionCount("fresh") != 1 {
		t.Error("expected channel to be lazily created on first reference")
	}
}

func TestManagerEnqueueDequeue(t *testing.T) {
	m := NewManager("public")
	msg := model.New("demo", model.SenderAgent, model.Content{Type: model.ContentNotification})
	m.Enqueue("demo", msg)
	if got := m.QueueSize("demo"); got != 1 {
		t.Fatalf("queue size = %d, want 1", got)
	}
	out, ok := m.Dequeue("demo")
	if !ok || out.ID != msg.ID {
		t.Fatal("expected to dequeue the enqueued message")
	}
	if got := m.QueueSize("demo"); got != 0 {
		t.Errorf("queue size after dequeue = %d, want 0", got)
	}
}

func TestManagerConnectionCounting(t *testing.T) {
	m := NewManager("public")
	m.AddConnection("demo")
	m.AddConnection("demo")
	if got := m.ConnectionCount("demo"); got != 2 {
		t.Fatalf("connection count = %d, want 2", got)
	}
	m.RemoveConnection("demo")
	if got := m.ConnectionCount("demo"); got != 1 {
		t.Errorf("connection count = %d, want 1", got)
	}
}

func TestManagerCleanupInactive(t *testing.T) {
	m := NewManager("public")
	m.AddConnection("temp")
	m.RemoveConnection("temp")

	m.CleanupInactive()

	found := false
	for _, name := range m.ActiveChannels() {
		if name == "temp" {
			found = true
		}
	}
	if found {
		t.Error("expected inactive non-default channel to be removed")
	}

	hasDefault := false
	for _, name := range m.ActiveChannels() {
		if name == "public" {
			hasDefault = true
		}
	}
	if !hasDefault {
		t.Error("expected default channel to survive cleanup")
	}
}
