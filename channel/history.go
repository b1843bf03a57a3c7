package channel

import (
	"sync"

	"github.com/google/uuid"

	"github.com/goailoop/ailoop/model"
)

// HistoryCap is the per-channel bound on retained messages; the oldest entry
// is evicted on overflow.
const HistoryCap = 1000

// ChannelStats summarizes one channel's history.
type ChannelStats struct {
	Channel      string `json:"channel"`
	MessageCount int    `json:"message_count"`
}

// History is a bounded, per-channel FIFO ring of messages guarded by a
// single sync.RWMutex: reads share the lock, and a waiting writer holds off
// new readers, which is adequate at this scale since writes are short
// (append + maybe evict one).
type History struct {
	mu       sync.RWMutex
	channels map[string][]model.Message
}

// NewHistory returns an empty History.
func NewHistory() *History {
	return &History{channels: make(map[string][]model.Message)}
}

// Append records m in its channel's ring, evicting the oldest entry if the
// channel is at capacity.
func (h *History) Append(m model.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	list := h.channels[m.Channel]
	if len(list) >= HistoryCap {
		list = list[1:]
	}
	h.channels[m.Channel] = append(list, m)
}

// Recent returns up to limit of the most recent messages on channel, newest
// last. limit <= 0 means "all".
func (h *History) Recent(channelName string, limit int) []model.Message {
	h.mu.RLock()
	defer h.mu.RUnlock()
	list := h.channels[channelName]
	if limit <= 0 || limit >= len(list) {
		out := make([]model.Message, len(list))
		copy(out, list)
		return out
	}
	start := len(list) - limit
	out := make([]model.Message, limit)
	copy(out, list[start:])
	return out
}

// ByID scans every channel for a message with the given id. This is a
// linear scan, acceptable at the documented bound; a deployment with many
// channels should add a secondary id index.
func (h *History) ByID(id uuid.UUID) (model.Message, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, list := range h.channels {
		for _, m := range list {
			if m.ID == id {
				return m, true
			}
		}
	}
	return model.Message{}, false
}

// Channels returns the names of every channel with recorded history.
func (h *History) Channels() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.channels))
	for name := range h.channels {
		out = append(out, name)
	}
	return out
}

// Stats returns the message count for channelName.
func (h *History) Stats(channelName string) ChannelStats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return ChannelStats{Channel: channelName, MessageCount: len(h.channels[channelName])}
}
