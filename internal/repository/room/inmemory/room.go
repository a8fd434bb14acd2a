package inmemory

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/sharetube/watchparty/internal/domain"
	"github.com/sharetube/watchparty/internal/repository/room"
)

// Room holds one room's shared state. Methods other than ID and CreatedAt
// require the room lock, obtained through Registry.Acquire.
type Room struct {
	mu sync.Mutex

	id           string
	createdAt    time.Time
	video        *domain.Video
	clock        domain.Clock
	participants []string

	// set by eviction while holding both the registry and the room lock
	closed bool
}

func newRoom(id string, now time.Time) *Room {
	return &Room{
		id:        id,
		createdAt: now,
		clock:     domain.Clock{LastUpdate: now},
	}
}

func (r *Room) ID() string {
	return r.id
}

func (r *Room) CreatedAt() time.Time {
	return r.createdAt
}

func (r *Room) Unlock() {
	r.mu.Unlock()
}

// AddParticipant seats id. Seating an already seated id succeeds without
// changing anything; added reports whether the seat is new.
func (r *Room) AddParticipant(id string, capacity int) (added bool, err error) {
	if r.HasParticipant(id) {
		return false, nil
	}

	if len(r.participants) >= capacity {
		return false, fmt.Errorf("%w: limit is %d participants", room.ErrRoomFull, capacity)
	}

	r.participants = append(r.participants, id)
	return true, nil
}

func (r *Room) RemoveParticipant(id string) bool {
	i := slices.Index(r.participants, id)
	if i < 0 {
		return false
	}

	r.participants = slices.Delete(r.participants, i, i+1)
	return true
}

func (r *Room) HasParticipant(id string) bool {
	return slices.Contains(r.participants, id)
}

// Participants returns seated ids in join order.
func (r *Room) Participants() []string {
	return append([]string{}, r.participants...)
}

func (r *Room) ParticipantCount() int {
	return len(r.participants)
}

func (r *Room) Video() *domain.Video {
	if r.video == nil {
		return nil
	}

	v := *r.video
	return &v
}

func (r *Room) SetVideo(v domain.Video) {
	r.video = &v
}

func (r *Room) Clock() domain.Clock {
	return r.clock
}

// Apply advances the clock for clock-affecting events and stores the video
// carried by a load.
func (r *Room) Apply(ev domain.Event, now time.Time) {
	if load, ok := ev.Payload.(domain.Load); ok && load.Video != nil {
		r.SetVideo(*load.Video)
	}

	r.clock = r.clock.Apply(ev, now)
}

func (r *Room) Snapshot(now time.Time) domain.RoomSnapshot {
	return domain.RoomSnapshot{
		ID:           r.id,
		Video:        r.Video(),
		State:        r.clock.State(now),
		Participants: r.Participants(),
	}
}
