package inmemory

import (
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sharetube/watchparty/pkg/randstr"
)

const (
	DefaultEvictionGrace = 60 * time.Second

	roomIDLength   = 6
	roomIDAlphabet = "0123456789abcdef"
)

// SubscriberCounter reports live subscriptions for a room. Eviction only
// removes rooms for which it returns zero.
type SubscriberCounter interface {
	Count(roomID string) int
}

type IDGenerator func() string

type evictionTimer struct {
	timer clockwork.Timer
}

type Registry struct {
	mu     sync.Mutex
	rooms  map[string]*Room
	timers map[string]*evictionTimer

	clock    clockwork.Clock
	grace    time.Duration
	subs     SubscriberCounter
	newID    IDGenerator
	onCreate func(roomID string)
	onEvict  func(roomID string)
}

type Config struct {
	Clock       clockwork.Clock
	Grace       time.Duration
	Subscribers SubscriberCounter
	GenerateID  IDGenerator
	// OnCreate is called with the registry lock held; it must not call back into the registry.
	OnCreate func(roomID string)
	// OnEvict is called without any lock held after a room has been removed.
	OnEvict func(roomID string)
}

func NewRegistry(cfg Config) *Registry {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Grace <= 0 {
		cfg.Grace = DefaultEvictionGrace
	}
	if cfg.GenerateID == nil {
		gen := randstr.New([]byte(roomIDAlphabet))
		cfg.GenerateID = func() string {
			return gen.GenerateRandomString(roomIDLength)
		}
	}

	return &Registry{
		rooms:    make(map[string]*Room),
		timers:   make(map[string]*evictionTimer),
		clock:    cfg.Clock,
		grace:    cfg.Grace,
		subs:     cfg.Subscribers,
		newID:    cfg.GenerateID,
		onCreate: cfg.OnCreate,
		onEvict:  cfg.OnEvict,
	}
}

// CreateRoom registers an empty room under a fresh id.
func (r *Registry) CreateRoom() *Room {
	funcName := "room.inmemory.CreateRoom"
	r.mu.Lock()
	defer r.mu.Unlock()

	for {
		id := r.newID()
		if _, ok := r.rooms[id]; ok {
			slog.Debug(funcName, "collision", id)
			continue
		}

		room := r.createLocked(id)
		slog.Debug(funcName, "roomID", id)
		return room
	}
}

// GetOrCreate returns the room registered under id, creating it when absent.
func (r *Registry) GetOrCreate(id string) *Room {
	r.mu.Lock()
	defer r.mu.Unlock()

	if room, ok := r.rooms[id]; ok {
		return room
	}

	slog.Debug("room.inmemory.GetOrCreate", "created", id)
	return r.createLocked(id)
}

// Acquire returns the live room for id with its lock held. The caller must
// call Unlock on it and must not call back into the registry meanwhile.
func (r *Registry) Acquire(id string) *Room {
	for {
		room := r.GetOrCreate(id)
		room.mu.Lock()
		if !room.closed {
			return room
		}
		room.mu.Unlock()
	}
}

// Lookup returns the room registered under id without creating it.
func (r *Registry) Lookup(id string) (*Room, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[id]
	return room, ok
}

func (r *Registry) Exists(id string) bool {
	_, ok := r.Lookup(id)
	return ok
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.rooms)
}

// ScheduleEvictionCheck arms a one-shot check for id after the grace period,
// replacing any pending check. Must not be called while holding a room lock.
func (r *Registry) ScheduleEvictionCheck(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rooms[id]; !ok {
		return
	}

	r.armLocked(id)
}

func (r *Registry) createLocked(id string) *Room {
	room := newRoom(id, r.clock.Now())
	r.rooms[id] = room
	r.armLocked(id)
	if r.onCreate != nil {
		r.onCreate(id)
	}
	return room
}

func (r *Registry) armLocked(id string) {
	if prev, ok := r.timers[id]; ok {
		prev.timer.Stop()
	}

	et := &evictionTimer{}
	et.timer = r.clock.AfterFunc(r.grace, func() {
		r.evict(id, et)
	})
	r.timers[id] = et
}

func (r *Registry) evict(id string, et *evictionTimer) {
	funcName := "room.inmemory.evict"
	if !r.tryEvict(id, et) {
		return
	}

	slog.Info(funcName, "roomID", id)
	if r.onEvict != nil {
		r.onEvict(id)
	}
}

func (r *Registry) tryEvict(id string, et *evictionTimer) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	// a later check replaced this one
	if r.timers[id] != et {
		return false
	}
	delete(r.timers, id)

	room, ok := r.rooms[id]
	if !ok {
		return false
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if len(room.participants) > 0 {
		slog.Debug("room.inmemory.evict", "roomID", id, "kept", "participants")
		return false
	}
	if r.subs != nil && r.subs.Count(id) > 0 {
		slog.Debug("room.inmemory.evict", "roomID", id, "kept", "subscribers")
		return false
	}

	room.closed = true
	delete(r.rooms, id)
	return true
}
