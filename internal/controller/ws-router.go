package controller

import (
	"github.com/sharetube/watchparty/pkg/wsrouter"
)

func (c controller) getWSRouter() *wsrouter.WSRouter {
	mux := wsrouter.New()
	mux.Use(c.wsRequestIdWSMw(), c.loggerWSMw())

	mux.Handle("alive", c.handleAlive)

	// every event type, known or not, is relayed to the room
	mux.Default(c.handleEvent)

	return mux
}
