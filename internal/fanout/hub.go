// Package fanout broadcasts newly created comments to the live viewers of a
// file. Delivery is in-memory, best-effort and at-most-once: a viewer that is
// not subscribed at publish time never sees the event and must re-paginate.
package fanout

import (
	"context"
	"log"
	"sync"
	"sync/atomic"

	"imagereview/internal/model"
)

// DefaultBufferSize bounds each subscriber's queue.
const DefaultBufferSize = 32

// Subscription is one live viewer of one file. Events arrive on Events()
// until Close is called or the subscriber falls behind and is evicted, in
// which case the channel is closed and Evicted reports true.
type Subscription struct {
	id     uint64
	fileID string
	connID string
	hub    *Hub

	mu      sync.Mutex
	ch      chan Event
	closed  bool
	evicted bool
}

// Events yields the file's live events. The channel is closed on unsubscribe.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// ConnectionID is the live-connection identity this subscription was opened with.
func (s *Subscription) ConnectionID() string {
	return s.connID
}

// FileID is the file this subscription listens to.
func (s *Subscription) FileID() string {
	return s.fileID
}

// Evicted reports whether the hub dropped this subscriber for falling behind.
func (s *Subscription) Evicted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.evicted
}

// Close unsubscribes. It is safe to call more than once and concurrently with Publish.
func (s *Subscription) Close() {
	s.hub.remove(s)
	s.shut(false)
}

func (s *Subscription) shut(evicted bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.closed = true
	s.evicted = evicted
	close(s.ch)
	return true
}

// deliver never blocks. A full queue evicts the subscriber.
func (s *Subscription) deliver(ev Event) (delivered, evicted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, false
	}
	select {
	case s.ch <- ev:
		return true, false
	default:
		s.closed = true
		s.evicted = true
		close(s.ch)
		return false, true
	}
}

// Hub is the per-process set of subscribers keyed by file.
type Hub struct {
	mu         sync.RWMutex
	topics     map[string]map[uint64]*Subscription
	closed     bool
	nextID     atomic.Uint64
	bufferSize int
}

// Ensure Hub can stand in as the publisher when no broker is configured.
var _ Publisher = (*Hub)(nil)

// NewHub creates a hub whose subscribers buffer up to bufferSize events.
func NewHub(bufferSize int) *Hub {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Hub{
		topics:     make(map[string]map[uint64]*Subscription),
		bufferSize: bufferSize,
	}
}

// Subscribe registers a viewer of fileID. conn.ConnectionID is used to skip
// the viewer's own writes.
func (h *Hub) Subscribe(fileID string, conn model.ConnectionContext) *Subscription {
	sub := &Subscription{
		id:     h.nextID.Add(1),
		fileID: fileID,
		connID: conn.ConnectionID,
		hub:    h,
		ch:     make(chan Event, h.bufferSize),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		sub.shut(false)
		return sub
	}
	subs, ok := h.topics[fileID]
	if !ok {
		subs = make(map[uint64]*Subscription)
		h.topics[fileID] = subs
	}
	subs[sub.id] = sub
	h.mu.Unlock()

	log.Printf("[Hub] Subscribe: topic=%s conn=%s user=%s", Topic(fileID), conn.ConnectionID, conn.UserID)
	return sub
}

// Publish implements Publisher for single-instance deployments. It never fails.
func (h *Hub) Publish(_ context.Context, ev Event) error {
	h.Broadcast(ev)
	return nil
}

// Broadcast hands ev to every subscriber of its file except the sender's own
// connection and returns how many received it. It iterates a snapshot, so
// concurrent Subscribe/Close calls are safe.
func (h *Hub) Broadcast(ev Event) int {
	h.mu.RLock()
	snapshot := make([]*Subscription, 0, len(h.topics[ev.FileID]))
	for _, sub := range h.topics[ev.FileID] {
		snapshot = append(snapshot, sub)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, sub := range snapshot {
		if ev.SenderConnectionID != "" && sub.connID == ev.SenderConnectionID {
			continue
		}
		ok, evicted := sub.deliver(ev)
		if evicted {
			h.remove(sub)
			log.Printf("[Hub] Evicted slow subscriber: topic=%s conn=%s", Topic(ev.FileID), sub.connID)
		}
		if ok {
			delivered++
		}
	}
	return delivered
}

// SubscriberCount returns the number of live subscribers for fileID.
func (h *Hub) SubscriberCount(fileID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[fileID])
}

// Close unsubscribes everyone and rejects further subscriptions.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	topics := h.topics
	h.topics = make(map[string]map[uint64]*Subscription)
	h.mu.Unlock()

	for _, subs := range topics {
		for _, sub := range subs {
			sub.shut(false)
		}
	}
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.topics[sub.fileID]
	if !ok {
		return
	}
	delete(subs, sub.id)
	if len(subs) == 0 {
		delete(h.topics, sub.fileID)
	}
}
