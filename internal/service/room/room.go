package room

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/sharetube/watchparty/internal/domain"
	"github.com/sharetube/watchparty/internal/metric"
)

type CreateRoomResponse struct {
	RoomID string
}

func (s service) CreateRoom(ctx context.Context) (CreateRoomResponse, error) {
	room := s.roomRepo.CreateRoom()
	slog.InfoContext(ctx, "create room", "roomID", room.ID())

	return CreateRoomResponse{RoomID: room.ID()}, nil
}

type JoinRoomParams struct {
	RoomID   string
	ClientID string
}

type JoinRoomResponse struct {
	ClientID string
	Room     domain.RoomSnapshot
}

// JoinRoom seats the client, generating an id when none is given. Joining
// again with a seated id returns the current snapshot without a presence event.
func (s service) JoinRoom(ctx context.Context, params *JoinRoomParams) (JoinRoomResponse, error) {
	clientID := params.ClientID
	if clientID == "" {
		clientID = uuid.NewString()
	}

	room := s.roomRepo.Acquire(params.RoomID)
	added, err := room.AddParticipant(clientID, s.membersLimit)
	if err != nil {
		room.Unlock()
		metric.RecordJoinRejected()
		slog.InfoContext(ctx, "join rejected", "roomID", params.RoomID, "clientID", clientID, "error", err)
		return JoinRoomResponse{}, err
	}

	var presence []byte
	if added {
		presence, err = s.presenceFrame(domain.PresenceActionJoin, clientID, room.ParticipantCount())
		if err != nil {
			room.Unlock()
			return JoinRoomResponse{}, err
		}
		s.publishLocked(params.RoomID, presence)
	}

	snapshot := room.Snapshot(s.clock.Now())
	room.Unlock()

	if presence != nil {
		s.forward(ctx, params.RoomID, presence)
	}

	slog.InfoContext(ctx, "join room", "roomID", params.RoomID, "clientID", clientID, "seated", added)
	return JoinRoomResponse{
		ClientID: clientID,
		Room:     snapshot,
	}, nil
}

func (s service) GetRoomInfo(_ context.Context, roomID string) (domain.RoomSnapshot, error) {
	room := s.roomRepo.Acquire(roomID)
	defer room.Unlock()

	return room.Snapshot(s.clock.Now()), nil
}

func (s service) presenceFrame(action, clientID string, count int) ([]byte, error) {
	frame, err := domain.NewEvent("", domain.Presence{
		Action:   action,
		ClientID: clientID,
		Count:    count,
	}).Frame()
	if err != nil {
		return nil, fmt.Errorf("failed to encode presence: %w", err)
	}

	return frame, nil
}
