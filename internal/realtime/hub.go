package realtime

import (
	"sync"

	"github.com/chaweee/BEventique-sub000/internal/models"
	"go.uber.org/zap"
)

// Subscriber is one live connection as the hub sees it.
// Deliver must not block; returning false means the buffer is full.
type Subscriber interface {
	ID() string
	Deliver(payload []byte) bool
	Close()
}

// Hub keeps thread rooms for this process only. Nothing survives a restart and
// a reconnecting client has to join again.
type Hub struct {
	mu          sync.Mutex
	rooms       map[int64]map[Subscriber]struct{}
	memberships map[Subscriber]map[int64]struct{}
	closed      bool
	logger      *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		rooms:       make(map[int64]map[Subscriber]struct{}),
		memberships: make(map[Subscriber]map[int64]struct{}),
		logger:      logger,
	}
}

// Join adds sub to the thread room. Joining twice is a no-op.
func (h *Hub) Join(threadID int64, sub Subscriber) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return false
	}

	set, ok := h.rooms[threadID]
	if !ok {
		set = make(map[Subscriber]struct{})
		h.rooms[threadID] = set
	}
	set[sub] = struct{}{}

	joined, ok := h.memberships[sub]
	if !ok {
		joined = make(map[int64]struct{})
		h.memberships[sub] = joined
	}
	joined[threadID] = struct{}{}

	h.updateGaugesLocked()
	return true
}

func (h *Hub) Leave(threadID int64, sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.leaveLocked(threadID, sub)
	h.updateGaugesLocked()
}

// LeaveAll drops sub from every room. Called when a connection goes away.
func (h *Hub) LeaveAll(sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.removeLocked(sub)
	h.updateGaugesLocked()
}

func (h *Hub) EmitNewMessage(threadID int64, message models.Message) {
	h.emit(newMessageEnvelope(threadID, message))
}

func (h *Hub) EmitThreadUpdated(threadID int64) {
	h.emit(threadUpdatedEnvelope(threadID))
}

func (h *Hub) emit(envelope Envelope) {
	payload, err := encode(envelope)
	if err != nil {
		h.logger.Error("encode realtime event", zap.String("type", envelope.Type), zap.Error(err))
		return
	}
	h.Broadcast(envelope.ThreadID, envelope.Type, payload)
}

// Broadcast hands an encoded frame to every subscriber of the room. A
// subscriber that cannot take it is evicted from all rooms and closed.
func (h *Hub) Broadcast(threadID int64, eventType string, payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.rooms[threadID]
	if !ok {
		return
	}
	eventsEmitted.WithLabelValues(eventType).Inc()

	var slow []Subscriber
	for sub := range set {
		if sub.Deliver(payload) {
			deliveries.WithLabelValues("delivered").Inc()
			continue
		}
		deliveries.WithLabelValues("dropped").Inc()
		slow = append(slow, sub)
	}

	for _, sub := range slow {
		h.logger.Warn("evicting slow subscriber",
			zap.String("subscriber", sub.ID()),
			zap.Int64("thread_id", threadID),
			zap.String("type", eventType),
		)
		h.removeLocked(sub)
		sub.Close()
	}
	if len(slow) > 0 {
		h.updateGaugesLocked()
	}
}

func (h *Hub) RoomSize(threadID int64) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms[threadID])
}

func (h *Hub) RoomCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms)
}

// Shutdown closes every subscriber and refuses further joins.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for sub := range h.memberships {
		sub.Close()
	}
	h.rooms = make(map[int64]map[Subscriber]struct{})
	h.memberships = make(map[Subscriber]map[int64]struct{})
	h.updateGaugesLocked()
}

func (h *Hub) leaveLocked(threadID int64, sub Subscriber) {
	if set, ok := h.rooms[threadID]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(h.rooms, threadID)
		}
	}
	if joined, ok := h.memberships[sub]; ok {
		delete(joined, threadID)
		if len(joined) == 0 {
			delete(h.memberships, sub)
		}
	}
}

func (h *Hub) removeLocked(sub Subscriber) {
	for threadID := range h.memberships[sub] {
		if set, ok := h.rooms[threadID]; ok {
			delete(set, sub)
			if len(set) == 0 {
				delete(h.rooms, threadID)
			}
		}
	}
	delete(h.memberships, sub)
}

func (h *Hub) updateGaugesLocked() {
	roomsActive.Set(float64(len(h.rooms)))
	subscribersActive.Set(float64(len(h.memberships)))
}
