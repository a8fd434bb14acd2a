package room

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/sharetube/watchparty/internal/domain"
	"github.com/sharetube/watchparty/internal/metric"
	"github.com/sharetube/watchparty/internal/repository/connection/inmemory"
)

type SubscribeParams struct {
	RoomID   string
	ClientID string
}

// Subscribe opens an event stream for the room. The returned subscription
// already holds the hello frame, ahead of any relayed event.
func (s service) Subscribe(ctx context.Context, params *SubscribeParams) (*inmemory.Subscription, error) {
	clientID := params.ClientID
	if clientID == "" {
		clientID = uuid.NewString()
	}

	room := s.roomRepo.Acquire(params.RoomID)
	defer room.Unlock()

	sub := s.relay.Subscribe(params.RoomID, clientID)
	hello, err := domain.NewEvent("", domain.Hello{
		ClientID:     clientID,
		Participants: room.ParticipantCount(),
		Subscribers:  s.relay.Count(params.RoomID),
	}).Frame()
	if err != nil {
		s.relay.Unsubscribe(sub)
		return nil, fmt.Errorf("failed to encode hello: %w", err)
	}
	s.relay.Send(sub, hello)

	metric.IncrementSubscriptions()
	slog.DebugContext(ctx, "subscribe", "roomID", params.RoomID, "clientID", clientID, "subscriptionID", sub.ID)
	return sub, nil
}

// Unsubscribe closes sub. A client that has no other stream in the room gives
// up its seat, and the room is scheduled for an eviction check.
func (s service) Unsubscribe(ctx context.Context, sub *inmemory.Subscription) {
	if !s.relay.Unsubscribe(sub) {
		return
	}
	metric.DecrementSubscriptions()

	room := s.roomRepo.Acquire(sub.RoomID)
	var presence []byte
	if s.relay.CountClient(sub.RoomID, sub.ClientID) == 0 && room.RemoveParticipant(sub.ClientID) {
		frame, err := s.presenceFrame(domain.PresenceActionLeave, sub.ClientID, room.ParticipantCount())
		if err != nil {
			slog.ErrorContext(ctx, "unsubscribe", "roomID", sub.RoomID, "error", err)
		} else {
			presence = frame
			s.publishLocked(sub.RoomID, presence)
		}
	}
	room.Unlock()

	if presence != nil {
		s.forward(ctx, sub.RoomID, presence)
	}
	s.roomRepo.ScheduleEvictionCheck(sub.RoomID)

	slog.DebugContext(ctx, "unsubscribe", "roomID", sub.RoomID, "clientID", sub.ClientID, "left", presence != nil)
}
