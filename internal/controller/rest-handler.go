package controller

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sharetube/watchparty/internal/domain"
	"github.com/sharetube/watchparty/internal/service/room"
	"github.com/sharetube/watchparty/pkg/rest"
)

type createRoomResponse struct {
	ID      string `json:"id"`
	JoinURL string `json:"joinUrl"`
}

func (c controller) createRoom(w http.ResponseWriter, r *http.Request) {
	resp, err := c.roomService.CreateRoom(r.Context())
	if err != nil {
		c.writeServiceError(w, r, "createRoom", err)
		return
	}

	rest.WriteJSON(w, http.StatusOK, createRoomResponse{
		ID:      resp.RoomID,
		JoinURL: fmt.Sprintf("%s://%s/room.html?id=%s", requestScheme(r), r.Host, resp.RoomID),
	})
}

type joinRoomRequest struct {
	ClientID string `json:"clientId" validate:"omitempty,max=64,printascii"`
}

type joinRoomResponse struct {
	OK       bool                `json:"ok"`
	ClientID string              `json:"clientId"`
	Room     domain.RoomSnapshot `json:"room"`
}

func (c controller) joinRoom(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "room-id")

	var req joinRoomRequest
	if err := rest.ReadJSON(r, &req); err != nil && !errors.Is(err, rest.ErrEmptyBody) {
		c.logger.InfoContext(r.Context(), "joinRoom", "read json err", err)
		rest.WriteJSON(w, http.StatusUnprocessableEntity, rest.Envelope{"error": err.Error()})
		return
	}

	if validationErrors, ok := c.validate.Validate(req); !ok {
		c.logger.InfoContext(r.Context(), "joinRoom", "validate err", validationErrors)
		rest.WriteJSON(w, http.StatusBadRequest, rest.Envelope{"errors": validationErrors})
		return
	}

	resp, err := c.roomService.JoinRoom(r.Context(), &room.JoinRoomParams{
		RoomID:   roomID,
		ClientID: req.ClientID,
	})
	if err != nil {
		c.writeServiceError(w, r, "joinRoom", err)
		return
	}

	rest.WriteJSON(w, http.StatusOK, joinRoomResponse{
		OK:       true,
		ClientID: resp.ClientID,
		Room:     resp.Room,
	})
}

func (c controller) broadcast(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "room-id")

	frame, err := rest.ReadBody(r)
	if err != nil {
		c.logger.InfoContext(r.Context(), "broadcast", "read body err", err)
		rest.WriteJSON(w, http.StatusBadRequest, rest.Envelope{"error": err.Error()})
		return
	}

	if err := c.roomService.Broadcast(r.Context(), &room.BroadcastParams{
		RoomID: roomID,
		Frame:  frame,
	}); err != nil {
		c.writeServiceError(w, r, "broadcast", err)
		return
	}

	rest.WriteJSON(w, http.StatusOK, rest.Envelope{"ok": true})
}

func (c controller) getRoomInfo(w http.ResponseWriter, r *http.Request) {
	snapshot, err := c.roomService.GetRoomInfo(r.Context(), chi.URLParam(r, "room-id"))
	if err != nil {
		c.writeServiceError(w, r, "getRoomInfo", err)
		return
	}

	rest.WriteJSON(w, http.StatusOK, snapshot)
}
