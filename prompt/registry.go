// Package prompt implements the pending-prompt registry: the FIFO that
// multiplexes replies arriving from three independent ingress paths (local
// terminal, HTTP API, out-of-band notification provider) onto the single
// oneshot receiver of whichever prompt is waiting for them.
package prompt

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/goailoop/ailoop/model"
)

// DefaultTimeout is used when a prompt message does not specify one.
const DefaultTimeout = 300 * time.Second

// Type is the kind of prompt an entry was registered for.
type Type string

const (
	TypeQuestion      Type = "question"
	TypeAuthorization Type = "authorization"
	TypeNavigate      Type = "navigate"
)

// Result is what resolves a pending prompt, regardless of which path
// produced it.
type Result struct {
	Answer       *string
	ResponseType model.ResponseType
	ChoiceIndex  *int
	ChoiceValue  string
}

// entry is one FIFO slot. ch is buffered to size 1 so Complete never blocks
// even if nobody is currently receiving.
type entry struct {
	entryID   uuid.UUID
	messageID uuid.UUID
	replyTo   *string
	promptType Type
	ch        chan Result
}

// Registry owns the ordered FIFO of prompts awaiting a human reply.
type Registry struct {
	mu    sync.Mutex
	queue []*entry
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Completer is a single-use handle that resolves exactly one pending
// prompt. A second call to Complete is a silent no-op: the entry is gone
// from the FIFO after the first successful completion.
type Completer struct {
	reg     *Registry
	entryID uuid.UUID
}

// Complete removes this entry from the FIFO (if still present) and
// delivers result to its receiver. Returns whether it was still pending.
func (c *Completer) Complete(result Result) bool {
	return c.reg.completeByID(c.entryID, result)
}

// Register allocates a new pending entry and returns a receive-only channel
// for its eventual result, a Completer scoped to it, and the default
// timeout to apply if the message itself did not specify one.
func (r *Registry) Register(messageID uuid.UUID, replyTo *string, promptType Type) (<-chan Result, *Completer, time.Duration) {
	e := &entry{
		entryID:    uuid.New(),
		messageID:  messageID,
		replyTo:    replyTo,
		promptType: promptType,
		ch:         make(chan Result, 1),
	}
	r.mu.Lock()
	r.queue = append(r.queue, e)
	r.mu.Unlock()
	return e.ch, &Completer{reg: r, entryID: e.entryID}, DefaultTimeout
}

func (r *Registry) completeByID(entryID uuid.UUID, result Result) bool {
	r.mu.Lock()
	for i, e := range r.queue {
		if e.entryID == entryID {
			r.queue = append(r.queue[:i], r.queue[i+1:]...)
			r.mu.Unlock()
			e.ch <- result
			return true
		}
	}
	r.mu.Unlock()
	return false
}

// SubmitReply resolves a prompt by matching replyTo against each entry's
// stored reply-to id; on no match, falls back to the oldest pending entry.
// Returns false if the FIFO is empty. This is the path used by
// out-of-band notification providers, which only know the sink-opaque
// reply-to id, not the originating message id.
func (r *Registry) SubmitReply(replyTo *string, answer *string, responseType model.ResponseType) bool {
	r.mu.Lock()
	if len(r.queue) == 0 {
		r.mu.Unlock()
		return false
	}

	idx := -1
	if replyTo != nil {
		for i, e := range r.queue {
			if e.replyTo != nil && *e.replyTo == *replyTo {
				idx = i
				break
			}
		}
	}
	if idx == -1 {
		idx = 0
	}

	e := r.queue[idx]
	r.queue = append(r.queue[:idx], r.queue[idx+1:]...)
	r.mu.Unlock()

	e.ch <- Result{Answer: answer, ResponseType: responseType}
	return true
}

// SubmitReplyForMessage resolves the prompt registered for messageID
// exactly — no oldest-first fallback. This is the path used by the HTTP
// API's POST /messages/{id}/response, which always knows the precise
// message it is answering.
func (r *Registry) SubmitReplyForMessage(messageID uuid.UUID, answer *string, responseType model.ResponseType) bool {
	r.mu.Lock()
	idx := -1
	for i, e := range r.queue {
		if e.messageID == messageID {
			idx = i
			break
		}
	}
	if idx == -1 {
		r.mu.Unlock()
		return false
	}
	e := r.queue[idx]
	r.queue = append(r.queue[:idx], r.queue[idx+1:]...)
	r.mu.Unlock()

	e.ch <- Result{Answer: answer, ResponseType: responseType}
	return true
}

// Len returns the number of prompts currently pending a reply.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queue)
}
