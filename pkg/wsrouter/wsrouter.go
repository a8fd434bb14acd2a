package wsrouter

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/gorilla/websocket"
)

var (
	ErrMalformedMessage = errors.New("malformed message")
	ErrNoRoute          = errors.New("no handler for message type")
)

// message carries only the discriminator; handlers receive the whole frame.
type message struct {
	Type string `json:"type"`
}

type HandlerFunc func(ctx context.Context, frame []byte) error

type Middleware func(next HandlerFunc) HandlerFunc

// MessageReader is the read half of a websocket connection.
type MessageReader interface {
	ReadMessage() (messageType int, p []byte, err error)
}

type WSRouter struct {
	routes      map[string]HandlerFunc
	fallback    HandlerFunc
	middlewares []Middleware
}

func New() *WSRouter {
	return &WSRouter{routes: make(map[string]HandlerFunc)}
}

func (r *WSRouter) Use(mw ...Middleware) {
	r.middlewares = append(r.middlewares, mw...)
}

func (r *WSRouter) Handle(messageType string, handler HandlerFunc) {
	r.routes[messageType] = handler
}

// Default sets the handler for message types without a dedicated route.
func (r *WSRouter) Default(handler HandlerFunc) {
	r.fallback = handler
}

// Route dispatches a single frame.
func (r *WSRouter) Route(ctx context.Context, frame []byte) error {
	var msg message
	if err := json.Unmarshal(frame, &msg); err != nil || msg.Type == "" {
		return ErrMalformedMessage
	}

	handler, ok := r.routes[msg.Type]
	if !ok {
		if r.fallback == nil {
			return ErrNoRoute
		}
		handler = r.fallback
	}

	for i := len(r.middlewares) - 1; i >= 0; i-- {
		handler = r.middlewares[i](handler)
	}

	return handler(context.WithValue(ctx, messageTypeKey, msg.Type), frame)
}

// ServeConn routes text frames until the connection fails or ctx is done.
// Handler errors do not end the loop; onError is called with them when set.
func (r *WSRouter) ServeConn(ctx context.Context, conn MessageReader, onError func(error)) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		messageType, frame, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		if messageType != websocket.TextMessage {
			continue
		}

		if err := r.Route(ctx, frame); err != nil && onError != nil {
			onError(err)
		}
	}
}
