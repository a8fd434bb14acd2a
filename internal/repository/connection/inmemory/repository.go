package inmemory

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

const DefaultBufferSize = 64

// Subscription is one live outbound stream of a room. Frames arrive on C,
// which is closed by Unsubscribe.
type Subscription struct {
	ID       string
	RoomID   string
	ClientID string

	ch chan []byte
}

func (s *Subscription) C() <-chan []byte {
	return s.ch
}

// Relay fans frames out to the subscriptions of a room.
type Relay struct {
	mu         sync.RWMutex
	rooms      map[string]map[string]*Subscription
	bufferSize int
}

func NewRelay(bufferSize int) *Relay {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}

	return &Relay{
		rooms:      make(map[string]map[string]*Subscription),
		bufferSize: bufferSize,
	}
}

func (r *Relay) Subscribe(roomID, clientID string) *Subscription {
	funcName := "connection.inmemory.Subscribe"
	r.mu.Lock()
	defer r.mu.Unlock()

	sub := &Subscription{
		ID:       uuid.NewString(),
		RoomID:   roomID,
		ClientID: clientID,
		ch:       make(chan []byte, r.bufferSize),
	}

	subs, ok := r.rooms[roomID]
	if !ok {
		subs = make(map[string]*Subscription)
		r.rooms[roomID] = subs
	}
	subs[sub.ID] = sub

	slog.Debug(funcName, "roomID", roomID, "clientID", clientID, "subscriptionID", sub.ID)
	return sub
}

// Publish offers frame to every subscription of the room without blocking. A
// subscription whose buffer is full misses the frame.
func (r *Relay) Publish(roomID string, frame []byte) (delivered, dropped int) {
	funcName := "connection.inmemory.Publish"
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, sub := range r.rooms[roomID] {
		select {
		case sub.ch <- frame:
			delivered++
		default:
			dropped++
			slog.Warn(funcName, "roomID", roomID, "subscriptionID", sub.ID, "error", "buffer full")
		}
	}

	return delivered, dropped
}

// Send offers frame to a single subscription. It reports false when the
// subscription is gone or its buffer is full.
func (r *Relay) Send(sub *Subscription, frame []byte) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.rooms[sub.RoomID][sub.ID]; !ok {
		return false
	}

	select {
	case sub.ch <- frame:
		return true
	default:
		return false
	}
}

// Unsubscribe removes sub and closes its channel. It reports whether sub was
// still registered.
func (r *Relay) Unsubscribe(sub *Subscription) bool {
	funcName := "connection.inmemory.Unsubscribe"
	r.mu.Lock()
	defer r.mu.Unlock()

	subs, ok := r.rooms[sub.RoomID]
	if !ok {
		return false
	}
	if _, ok := subs[sub.ID]; !ok {
		return false
	}

	delete(subs, sub.ID)
	if len(subs) == 0 {
		delete(r.rooms, sub.RoomID)
	}
	close(sub.ch)

	slog.Debug(funcName, "roomID", sub.RoomID, "subscriptionID", sub.ID)
	return true
}

func (r *Relay) Count(roomID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.rooms[roomID])
}

// CountClient reports how many live subscriptions clientID holds in the room.
func (r *Relay) CountClient(roomID, clientID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var n int
	for _, sub := range r.rooms[roomID] {
		if sub.ClientID == clientID {
			n++
		}
	}

	return n
}

// Total reports live subscriptions across all rooms.
func (r *Relay) Total() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var n int
	for _, subs := range r.rooms {
		n += len(subs)
	}

	return n
}
