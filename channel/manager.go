package channel

import (
	"log"
	"sync"
	"time"

	"github.com/goailoop/ailoop/model"
)

// state holds the per-channel queue and bookkeeping. Unexported: callers
// only ever see it through Manager's methods.
type state struct {
	queue       []model.Message
	connections int
	createdAt   time.Time
}

// Manager owns the lazily-created set of channels, their FIFO queues, and
// their live connection counts. The default channel is created at
// construction and is never removed by cleanup.
type Manager struct {
	mu             sync.Mutex
	channels       map[string]*state
	defaultChannel string
}

// NewManager returns a Manager with defaultChannel already created.
func NewManager(defaultChannel string) *Manager {
	m := &Manager{
		channels:       make(map[string]*state),
		defaultChannel: defaultChannel,
	}
	m.channels[defaultChannel] = &state{createdAt: time.Now()}
	return m
}

// getOrCreate returns the state for name, creating and logging if absent.
// Caller must hold m.mu.
func (m *Manager) getOrCreate(name string) *state {
	s, ok := m.channels[name]
	if !ok {
		log.Printf("channel: creating new channel: %s", name)
		s = &state{createdAt: time.Now()}
		m.channels[name] = s
	}
	return s
}

// Enqueue appends message to channelName's queue, creating the channel if
// needed.
func (m *Manager) Enqueue(channelName string, message model.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.getOrCreate(channelName)
	s.queue = append(s.queue, message)
}

// Dequeue removes and returns the oldest message on channelName, if any.
func (m *Manager) Dequeue(channelName string) (model.Message, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.channels[channelName]
	if !ok || len(s.queue) == 0 {
		return model.Message{}, false
	}
	msg := s.queue[0]
	s.queue = s.queue[1:]
	return msg, true
}

// QueueSize returns the number of messages waiting on channelName.
func (m *Manager) QueueSize(channelName string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.channels[channelName]; ok {
		return len(s.queue)
	}
	return 0
}

// AddConnection increments the connection count for channelName, creating
// the channel if needed.
func (m *Manager) AddConnection(channelName string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getOrCreate(channelName).connections++
}

// RemoveConnection decrements the connection count for channelName, never
// going below zero.
func (m *Manager) RemoveConnection(channelName string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.channels[channelName]; ok && s.connections > 0 {
		s.connections--
	}
}

// ConnectionCount returns the live connection count for channelName.
func (m *Manager) ConnectionCount(channelName string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.channels[channelName]; ok {
		return s.connections
	}
	return 0
}

// TotalQueueSize sums queued messages across every channel.
func (m *Manager) TotalQueueSize() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, s := range m.channels {
		total += len(s.queue)
	}
	return total
}

// TotalConnectionCount sums live connections across every channel.
func (m *Manager) TotalConnectionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, s := range m.channels {
		total += s.connections
	}
	return total
}

// CleanupInactive removes every non-default channel with zero connections
// and an empty queue.
func (m *Manager) CleanupInactive() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, s := range m.channels {
		if name == m.defaultChannel {
			continue
		}
		if s.connections == 0 && len(s.queue) == 0 {
			delete(m.channels, name)
			log.Printf("channel: cleaned up inactive channel: %s", name)
		}
	}
}

// ActiveChannels returns the names of every known channel.
func (m *Manager) ActiveChannels() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.channels))
	for name := range m.channels {
		out = append(out, name)
	}
	return out
}

// RunCleanupLoop runs CleanupInactive every interval until stop is closed.
func (m *Manager) RunCleanupLoop(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.CleanupInactive()
		case <-stop:
			return
		}
	}
}
