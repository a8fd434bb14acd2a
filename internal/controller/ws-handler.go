package controller

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/sharetube/watchparty/internal/repository/connection/inmemory"
	"github.com/sharetube/watchparty/internal/service/room"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 1 << 20
)

// deadlineReader pushes the read deadline forward after every message.
type deadlineReader struct {
	conn *websocket.Conn
	wait time.Duration
}

func (d deadlineReader) ReadMessage() (int, []byte, error) {
	messageType, p, err := d.conn.ReadMessage()
	if err == nil {
		d.conn.SetReadDeadline(time.Now().Add(d.wait))
	}

	return messageType, p, err
}

// serveWS carries the same frames as streamEvents over a websocket. Inbound
// text frames are events for the room.
func (c controller) serveWS(w http.ResponseWriter, r *http.Request) {
	funcName := "serveWS"
	roomID := chi.URLParam(r, "room-id")

	clientID, ok := c.parseStreamQuery(w, r)
	if !ok {
		return
	}

	conn, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.logger.InfoContext(r.Context(), funcName, "upgrade err", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sub, err := c.roomService.Subscribe(ctx, &room.SubscribeParams{
		RoomID:   roomID,
		ClientID: clientID,
	})
	if err != nil {
		c.logger.ErrorContext(ctx, funcName, "subscribe err", err)
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, ""),
			time.Now().Add(writeWait))
		return
	}
	defer c.roomService.Unsubscribe(context.WithoutCancel(ctx), sub)

	ctx = context.WithValue(ctx, roomIDCtxKey, roomID)
	ctx = context.WithValue(ctx, clientIDCtxKey, sub.ClientID)
	c.logger.InfoContext(ctx, funcName, "roomID", roomID, "clientID", sub.ClientID, "event", "opened")

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer cancel()
		c.writePump(ctx, conn, sub)
	}()

	pongWait := 2 * c.keepaliveInterval
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	err = c.getWSRouter().ServeConn(ctx, deadlineReader{conn: conn, wait: pongWait}, func(err error) {
		c.logger.InfoContext(ctx, funcName, "message err", err)
	})
	if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
		c.logger.InfoContext(ctx, funcName, "read err", err)
	}

	cancel()
	<-done
	c.logger.InfoContext(ctx, funcName, "roomID", roomID, "clientID", sub.ClientID, "event", "closed")
}

// writePump is the only writer of data frames on conn.
func (c controller) writePump(ctx context.Context, conn *websocket.Conn, sub *inmemory.Subscription) {
	ticker := c.clock.NewTicker(c.keepaliveInterval)
	defer ticker.Stop()
	// unblocks the reader when writing fails
	defer conn.Close()

	for {
		select {
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		case frame, ok := <-sub.C():
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.logger.InfoContext(ctx, "writePump", "write err", err)
				return
			}
		case <-ticker.Chan():
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.logger.DebugContext(ctx, "writePump", "ping err", err)
				return
			}
		}
	}
}

func (c controller) handleEvent(ctx context.Context, frame []byte) error {
	return c.roomService.Broadcast(ctx, &room.BroadcastParams{
		RoomID: c.getRoomIDFromCtx(ctx),
		Frame:  frame,
	})
}

// handleAlive accepts application level keepalives from clients that cannot
// answer ping control frames. They are not relayed.
func (c controller) handleAlive(ctx context.Context, _ []byte) error {
	c.logger.DebugContext(ctx, "alive", slog.String("clientID", c.getClientIDFromCtx(ctx)))
	return nil
}
