package room

import (
	"context"
	"log/slog"

	"github.com/jonboulle/clockwork"
	"github.com/sharetube/watchparty/internal/domain"
	"github.com/sharetube/watchparty/internal/metric"
	"github.com/sharetube/watchparty/internal/repository/connection/inmemory"
	roomrepo "github.com/sharetube/watchparty/internal/repository/room"
	roominmemory "github.com/sharetube/watchparty/internal/repository/room/inmemory"
)

const DefaultMembersLimit = 6

var (
	ErrRoomFull       = roomrepo.ErrRoomFull
	ErrMalformedEvent = domain.ErrMalformedEvent
)

type iRoomRepo interface {
	CreateRoom() *roominmemory.Room
	Acquire(id string) *roominmemory.Room
	ScheduleEvictionCheck(id string)
}

type iRelay interface {
	Subscribe(roomID, clientID string) *inmemory.Subscription
	Unsubscribe(sub *inmemory.Subscription) bool
	Publish(roomID string, frame []byte) (delivered, dropped int)
	Send(sub *inmemory.Subscription, frame []byte) bool
	Count(roomID string) int
	CountClient(roomID, clientID string) int
}

// iBroker forwards frames to other server instances.
type iBroker interface {
	Publish(ctx context.Context, roomID string, frame []byte) error
}

type service struct {
	roomRepo     iRoomRepo
	relay        iRelay
	broker       iBroker
	clock        clockwork.Clock
	membersLimit int
}

// NewService builds the room session service. broker may be nil when the
// process runs alone.
func NewService(roomRepo iRoomRepo, relay iRelay, broker iBroker, clock clockwork.Clock, membersLimit int) *service {
	if membersLimit <= 0 {
		membersLimit = DefaultMembersLimit
	}

	return &service{
		roomRepo:     roomRepo,
		relay:        relay,
		broker:       broker,
		clock:        clock,
		membersLimit: membersLimit,
	}
}

// publishLocked relays frame to the room's subscribers. The caller holds the room lock.
func (s service) publishLocked(roomID string, frame []byte) {
	_, dropped := s.relay.Publish(roomID, frame)
	if dropped > 0 {
		slog.Debug("room.publish", "roomID", roomID, "dropped", dropped)
	}
	metric.RecordDroppedFrames(dropped)
}

func (s service) forward(ctx context.Context, roomID string, frame []byte) {
	if s.broker == nil {
		return
	}

	if err := s.broker.Publish(ctx, roomID, frame); err != nil {
		slog.WarnContext(ctx, "room.forward", "roomID", roomID, "error", err)
	}
}
