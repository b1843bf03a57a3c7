// Package broadcast fans Messages out to subscribed viewer connections and
// to configured out-of-band notification sinks.
package broadcast

import (
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/goailoop/ailoop/model"
)

// allChannels is the wildcard subscription marker, matching every channel.
const allChannels = "*"

// ConnectionType distinguishes an agent's own socket from a passive viewer.
type ConnectionType string

const (
	ConnectionAgent  ConnectionType = "agent"
	ConnectionViewer ConnectionType = "viewer"
)

// Sink delivers a Message to a secondary human surface (e.g. a chat bot).
// SendAndGetReplyToID additionally returns a sink-opaque id that later
// identifies the sent message for reply correlation; sinks that cannot
// support replies return ("", nil).
type Sink interface {
	Name() string
	Send(m model.Message) error
	SendAndGetReplyToID(m model.Message) (string, error)
}

// viewer is one registered connection.
type viewer struct {
	id      uuid.UUID
	kind    ConnectionType
	subs    map[string]bool
	outbox  chan<- model.Message
}

// Stats is a point-in-time snapshot of broadcast fan-out state.
type Stats struct {
	TotalViewers      int `json:"total_viewers"`
	AgentConnections  int `json:"agent_connections"`
	ViewerConnections int `json:"viewer_connections"`
	ActiveChannels    int `json:"active_channels"`
}

// Manager owns viewer registration, channel subscriptions, and the
// configured notification sinks.
type Manager struct {
	mu            sync.RWMutex
	viewers       map[uuid.UUID]*viewer
	subscriptions map[string]map[uuid.UUID]bool

	sinksMu sync.RWMutex
	sinks   []Sink
}

// NewManager returns an empty Manager.
func NewManager() *Manager {
	return &Manager{
		viewers:       make(map[uuid.UUID]*viewer),
		subscriptions: make(map[string]map[uuid.UUID]bool),
	}
}

// AddSink registers a notification sink for future broadcasts.
func (m *Manager) AddSink(s Sink) {
	m.sinksMu.Lock()
	defer m.sinksMu.Unlock()
	m.sinks = append(m.sinks, s)
}

// AddViewer registers a new connection and returns its id.
func (m *Manager) AddViewer(kind ConnectionType, outbox chan<- model.Message) uuid.UUID {
	id := uuid.New()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.viewers[id] = &viewer{id: id, kind: kind, subs: make(map[string]bool), outbox: outbox}
	return id
}

// RemoveViewer unregisters a connection, unsubscribing it from every
// channel it had joined.
func (m *Manager) RemoveViewer(id uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.viewers[id]
	if !ok {
		return
	}
	for ch := range v.subs {
		if set, ok := m.subscriptions[ch]; ok {
			delete(set, id)
			if len(set) == 0 {
				delete(m.subscriptions, ch)
			}
		}
	}
	delete(m.viewers, id)
}

// Subscribe joins connection id to channelName.
func (m *Manager) Subscribe(id uuid.UUID, channelName string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.viewers[id]
	if !ok {
		return
	}
	v.subs[channelName] = true
	set, ok := m.subscriptions[channelName]
	if !ok {
		set = make(map[uuid.UUID]bool)
		m.subscriptions[channelName] = set
	}
	set[id] = true
}

// Unsubscribe removes connection id from channelName.
func (m *Manager) Unsubscribe(id uuid.UUID, channelName string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.viewers[id]; ok {
		delete(v.subs, channelName)
	}
	if set, ok := m.subscriptions[channelName]; ok {
		delete(set, id)
		if len(set) == 0 {
			delete(m.subscriptions, channelName)
		}
	}
}

// SubscribeToAll subscribes connection id to every channel via the wildcard
// marker.
func (m *Manager) SubscribeToAll(id uuid.UUID) {
	m.Subscribe(id, allChannels)
}

// recipients returns the set of viewer ids subscribed to channelName,
// including wildcard subscribers. Caller must hold m.mu for reading.
func (m *Manager) recipients(channelName string) []uuid.UUID {
	seen := make(map[uuid.UUID]bool)
	var out []uuid.UUID
	for _, ch := range [2]string{channelName, allChannels} {
		for id := range m.subscriptions[ch] {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	return out
}

// BroadcastMessage delivers m to every subscribed viewer and to every
// configured notification sink. Sink failures are logged and never block
// delivery to other sinks or to viewers.
func (m *Manager) BroadcastMessage(msg model.Message) {
	m.broadcastToViewers(msg)
	m.sendToSinks(msg)
}

// BroadcastToViewersOnly delivers m to subscribed viewers without invoking
// notification sinks. Used for prompt messages, whose sink delivery is
// handled separately via SendToSinksAndGetReplyToID so the caller can
// capture the reply-to id before registering the pending prompt.
func (m *Manager) BroadcastToViewersOnly(msg model.Message) {
	m.broadcastToViewers(msg)
}

func (m *Manager) broadcastToViewers(msg model.Message) {
	m.mu.RLock()
	ids := m.recipients(msg.Channel)
	outboxes := make([]chan<- model.Message, 0, len(ids))
	for _, id := range ids {
		if v, ok := m.viewers[id]; ok {
			outboxes = append(outboxes, v.outbox)
		}
	}
	m.mu.RUnlock()

	for _, outbox := range outboxes {
		select {
		case outbox <- msg:
		default:
			// Non-blocking: a slow/dead viewer never stalls the broadcast.
		}
	}
}

func (m *Manager) sendToSinks(msg model.Message) {
	m.sinksMu.RLock()
	sinks := append([]Sink(nil), m.sinks...)
	m.sinksMu.RUnlock()

	for _, s := range sinks {
		if err := s.Send(msg); err != nil {
			log.Printf("broadcast: sink %q failed: message_type=%s error=%v", s.Name(), msg.Content.Type, err)
		}
	}
}

// SendToSinksAndGetReplyToID invokes every sink sequentially and returns
// the first non-empty reply-to id obtained. Sinks are tried in
// configuration order; a sink that errors or does not support replies is
// skipped without aborting the others.
func (m *Manager) SendToSinksAndGetReplyToID(msg model.Message) (string, bool) {
	m.sinksMu.RLock()
	sinks := append([]Sink(nil), m.sinks...)
	m.sinksMu.RUnlock()

	for _, s := range sinks {
		replyTo, err := s.SendAndGetReplyToID(msg)
		if err != nil {
			log.Printf("broadcast: sink %q failed: message_type=%s error=%v", s.Name(), msg.Content.Type, err)
			continue
		}
		if replyTo != "" {
			return replyTo, true
		}
	}
	return "", false
}

// GetStats returns a point-in-time snapshot of viewer and subscription
// counts.
func (m *Manager) GetStats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stats := Stats{TotalViewers: len(m.viewers), ActiveChannels: len(m.subscriptions)}
	for _, v := range m.viewers {
		switch v.kind {
		case ConnectionAgent:
			stats.AgentConnections++
		case ConnectionViewer:
			stats.ViewerConnections++
		}
	}
	return stats
}
