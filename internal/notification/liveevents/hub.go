// Package liveevents is the in-process change stream of the notifications
// table: every committed insert is published to the stream of its tenant.
package liveevents

import (
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/smallbiznis/portalsync/internal/notification/domain"
)

const (
	DefaultBufferSize       = 50
	DefaultSubscriberBuffer = 16
)

var (
	ErrHubUnavailable = errors.New("hub_unavailable")
	ErrInvalidTenant  = errors.New("invalid_tenant")
)

// Hub fans out insert events per tenant. Each stream keeps a bounded ring of
// recent events that new subscribers receive as backlog.
type Hub struct {
	mu               sync.RWMutex
	streams          map[uuid.UUID]*stream
	bufferSize       int
	subscriberBuffer int
}

type stream struct {
	mu     sync.Mutex
	buffer []domain.Notification
	subs   map[uint64]chan domain.Notification
	nextID uint64
}

type Subscription struct {
	hub      *Hub
	tenantID uuid.UUID
	id       uint64
	ch       chan domain.Notification
	once     sync.Once
}

func NewHub() *Hub {
	return &Hub{
		streams:          make(map[uuid.UUID]*stream),
		bufferSize:       DefaultBufferSize,
		subscriberBuffer: DefaultSubscriberBuffer,
	}
}

// Publish records the event on the tenant stream. Slow subscribers miss
// events instead of blocking the writer; they recover through a refresh.
// Sends happen under the stream lock so unsubscribe never closes a channel
// that is being written to.
func (h *Hub) Publish(event domain.Notification) {
	if h == nil || event.TenantID == uuid.Nil {
		return
	}

	stream := h.ensureStream(event.TenantID)
	stream.mu.Lock()
	defer stream.mu.Unlock()

	stream.buffer = append(stream.buffer, event)
	if len(stream.buffer) > h.bufferSize {
		stream.buffer = stream.buffer[len(stream.buffer)-h.bufferSize:]
	}
	for _, ch := range stream.subs {
		select {
		case ch <- event:
		default:
		}
	}
}

// Subscribe opens a subscription on the tenant stream and returns the
// buffered backlog, oldest first.
func (h *Hub) Subscribe(tenantID uuid.UUID) (*Subscription, []domain.Notification, error) {
	if h == nil {
		return nil, nil, ErrHubUnavailable
	}
	if tenantID == uuid.Nil {
		return nil, nil, ErrInvalidTenant
	}

	stream := h.ensureStream(tenantID)
	stream.mu.Lock()
	id := stream.nextID
	stream.nextID++
	ch := make(chan domain.Notification, h.subscriberBuffer)
	stream.subs[id] = ch
	backlog := append([]domain.Notification(nil), stream.buffer...)
	stream.mu.Unlock()

	return &Subscription{hub: h, tenantID: tenantID, id: id, ch: ch}, backlog, nil
}

func (h *Hub) ensureStream(tenantID uuid.UUID) *stream {
	h.mu.RLock()
	current := h.streams[tenantID]
	h.mu.RUnlock()
	if current != nil {
		return current
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	current = h.streams[tenantID]
	if current == nil {
		current = &stream{subs: make(map[uint64]chan domain.Notification)}
		h.streams[tenantID] = current
	}
	return current
}

func (h *Hub) unsubscribe(tenantID uuid.UUID, id uint64) {
	h.mu.RLock()
	stream := h.streams[tenantID]
	h.mu.RUnlock()
	if stream == nil {
		return
	}

	stream.mu.Lock()
	if ch, ok := stream.subs[id]; ok {
		delete(stream.subs, id)
		close(ch)
	}
	stream.mu.Unlock()
}

// Events is closed when the subscription is closed.
func (s *Subscription) Events() <-chan domain.Notification {
	if s == nil {
		return nil
	}
	return s.ch
}

func (s *Subscription) Close() {
	if s == nil || s.hub == nil {
		return
	}
	s.once.Do(func() {
		s.hub.unsubscribe(s.tenantID, s.id)
	})
}
