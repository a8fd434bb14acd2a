package controller

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/sharetube/watchparty/internal/service/room"
	"github.com/sharetube/watchparty/pkg/rest"
)

func (c controller) generateTimeBasedId() string {
	return strconv.FormatInt(time.Now().UnixNano(), 36)
}

func (c controller) writeServiceError(w http.ResponseWriter, r *http.Request, funcName string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, room.ErrRoomFull):
		status = http.StatusForbidden
	case errors.Is(err, room.ErrMalformedEvent):
		status = http.StatusBadRequest
	}

	c.logger.InfoContext(r.Context(), funcName, "status", status, "error", err)
	rest.WriteJSON(w, status, rest.Envelope{"error": err.Error()})
}

func requestScheme(r *http.Request) string {
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		return proto
	}
	if r.TLS != nil {
		return "https"
	}

	return "http"
}
