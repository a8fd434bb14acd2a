package controller

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/sharetube/watchparty/internal/domain"
	"github.com/sharetube/watchparty/internal/repository/connection/inmemory"
	"github.com/sharetube/watchparty/internal/service/room"
	"github.com/sharetube/watchparty/pkg/validator"
)

const DefaultKeepaliveInterval = 15 * time.Second

type iRoomService interface {
	CreateRoom(context.Context) (room.CreateRoomResponse, error)
	JoinRoom(context.Context, *room.JoinRoomParams) (room.JoinRoomResponse, error)
	Subscribe(context.Context, *room.SubscribeParams) (*inmemory.Subscription, error)
	Unsubscribe(context.Context, *inmemory.Subscription)
	Broadcast(context.Context, *room.BroadcastParams) error
	GetRoomInfo(context.Context, string) (domain.RoomSnapshot, error)
}

type controller struct {
	roomService       iRoomService
	upgrader          websocket.Upgrader
	validate          *validator.Validator
	logger            *slog.Logger
	clock             clockwork.Clock
	keepaliveInterval time.Duration
}

func NewController(roomService iRoomService, logger *slog.Logger, clock clockwork.Clock, keepaliveInterval time.Duration) *controller {
	if keepaliveInterval <= 0 {
		keepaliveInterval = DefaultKeepaliveInterval
	}

	return &controller{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		roomService:       roomService,
		validate:          validator.NewValidator(),
		logger:            logger,
		clock:             clock,
		keepaliveInterval: keepaliveInterval,
	}
}
