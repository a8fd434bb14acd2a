package controller

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sharetube/watchparty/internal/service/room"
	"github.com/sharetube/watchparty/pkg/rest"
)

type streamQuery struct {
	ClientID string `json:"clientId" validate:"omitempty,max=64,printascii"`
}

func (c controller) parseStreamQuery(w http.ResponseWriter, r *http.Request) (string, bool) {
	q := streamQuery{ClientID: r.URL.Query().Get("clientId")}
	if validationErrors, ok := c.validate.Validate(q); !ok {
		c.logger.InfoContext(r.Context(), "stream", "validate err", validationErrors)
		rest.WriteJSON(w, http.StatusBadRequest, rest.Envelope{"errors": validationErrors})
		return "", false
	}

	return q.ClientID, true
}

var (
	sseDataPrefix = []byte("data: ")
	sseFrameEnd   = []byte("\n\n")
	ssePing       = []byte(": ping\n\n")
)

// streamEvents serves the room's frames as server-sent events until the client goes away.
func (c controller) streamEvents(w http.ResponseWriter, r *http.Request) {
	funcName := "streamEvents"
	roomID := chi.URLParam(r, "room-id")

	clientID, ok := c.parseStreamQuery(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		rest.WriteJSON(w, http.StatusInternalServerError, rest.Envelope{"error": "streaming unsupported"})
		return
	}

	ctx := r.Context()
	sub, err := c.roomService.Subscribe(ctx, &room.SubscribeParams{
		RoomID:   roomID,
		ClientID: clientID,
	})
	if err != nil {
		c.writeServiceError(w, r, funcName, err)
		return
	}
	defer c.roomService.Unsubscribe(context.WithoutCancel(ctx), sub)

	h := w.Header()
	h.Set("Content-Type", "text/event-stream; charset=utf-8")
	h.Set("Cache-Control", "no-cache, no-transform")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	c.logger.InfoContext(ctx, funcName, "roomID", roomID, "clientID", sub.ClientID, "event", "opened")

	ticker := c.clock.NewTicker(c.keepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.InfoContext(ctx, funcName, "roomID", roomID, "clientID", sub.ClientID, "event", "closed")
			return
		case frame, ok := <-sub.C():
			if !ok {
				return
			}
			if err := writeSSE(w, frame); err != nil {
				c.logger.InfoContext(ctx, funcName, "roomID", roomID, "error", err)
				return
			}
			flusher.Flush()
		case <-ticker.Chan():
			if _, err := w.Write(ssePing); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, frame []byte) error {
	for _, part := range [][]byte{sseDataPrefix, frame, sseFrameEnd} {
		if _, err := w.Write(part); err != nil {
			return err
		}
	}

	return nil
}
