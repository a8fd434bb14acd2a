package room

import (
	"context"
	"log/slog"

	"github.com/sharetube/watchparty/internal/domain"
	"github.com/sharetube/watchparty/internal/metric"
)

type BroadcastParams struct {
	RoomID string
	Frame  []byte
}

// Broadcast applies a client event to the room and relays it verbatim. Malformed
// frames return ErrMalformedEvent and are not relayed.
func (s service) Broadcast(ctx context.Context, params *BroadcastParams) error {
	frame, err := s.apply(ctx, params.RoomID, params.Frame, "local")
	if err != nil {
		return err
	}

	s.forward(ctx, params.RoomID, frame)
	return nil
}

// ApplyRemote is Broadcast for frames that arrived from another instance. They
// are never forwarded again.
func (s service) ApplyRemote(ctx context.Context, roomID string, frame []byte) error {
	_, err := s.apply(ctx, roomID, frame, "remote")
	return err
}

func (s service) apply(ctx context.Context, roomID string, data []byte, source string) ([]byte, error) {
	ev, err := domain.DecodeEvent(data)
	if err != nil {
		metric.RecordMalformedEvent()
		slog.InfoContext(ctx, "broadcast rejected", "roomID", roomID, "error", err)
		return nil, err
	}

	frame, err := ev.Frame()
	if err != nil {
		return nil, err
	}

	room := s.roomRepo.Acquire(roomID)
	defer room.Unlock()

	if ev.AffectsClock() {
		room.Apply(ev, s.clock.Now())
	}
	s.publishLocked(roomID, frame)

	metric.RecordEvent(string(ev.Type), source)
	slog.DebugContext(ctx, "broadcast", "roomID", roomID, "type", ev.Type, "senderID", ev.SenderID, "source", source)
	return frame, nil
}
