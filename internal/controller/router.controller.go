package controller

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (c controller) GetMux() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(c.requestIdMw)
	r.Use(c.requestLoggingMw)
	r.Use(c.metricsMw)
	r.Use(cors.AllowAll().Handler)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	// the browser client talks to /api/rooms
	r.Route("/rooms", c.roomRoutes)
	r.Route("/api/rooms", c.roomRoutes)

	return r
}

func (c controller) roomRoutes(r chi.Router) {
	r.Post("/create", c.createRoom)
	r.Route("/{room-id}", func(r chi.Router) {
		r.Post("/join", c.joinRoom)
		r.Post("/broadcast", c.broadcast)
		r.Get("/info", c.getRoomInfo)
		r.Get("/events", c.streamEvents)
		r.Get("/ws", c.serveWS)
	})
}
