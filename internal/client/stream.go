package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/gorilla/websocket"
	"github.com/sethvargo/go-retry"
	"github.com/sharetube/watchparty/internal/domain"
)

// Handlers receive stream callbacks. OnJoin runs after every successful
// (re)join, before any event from that connection is delivered.
type Handlers struct {
	OnJoin  func(JoinResponse)
	OnEvent func(domain.Event)
}

// Stream joins roomID and delivers its events until ctx is done. When the
// connection drops it re-joins with the same client id and reconnects, backing
// off exponentially between attempts. Errors the server will keep returning,
// such as ErrRoomFull, end the stream.
func (c *Client) Stream(ctx context.Context, roomID, clientID string, h Handlers) error {
	for {
		conn, joined, err := c.connect(ctx, roomID, clientID)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		clientID = joined.ClientID

		if h.OnJoin != nil {
			h.OnJoin(joined)
		}

		err = c.read(ctx, conn, h.OnEvent)
		if ctx.Err() != nil {
			return nil
		}
		slog.Info("client.Stream: disconnected", "roomID", roomID, "clientID", clientID, "error", err)
	}
}

func (c *Client) connect(ctx context.Context, roomID, clientID string) (*websocket.Conn, JoinResponse, error) {
	var (
		conn   *websocket.Conn
		joined JoinResponse
	)

	backoff := retry.WithCappedDuration(c.backoffMax, retry.NewExponential(c.backoffBase))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var err error
		joined, err = c.Join(ctx, roomID, clientID)
		if err != nil {
			if permanent(err) {
				return err
			}
			slog.Debug("client.connect: join failed", "roomID", roomID, "error", err)
			return retry.RetryableError(err)
		}

		conn, err = c.dial(ctx, roomID, joined.ClientID)
		if err != nil {
			slog.Debug("client.connect: dial failed", "roomID", roomID, "error", err)
			return retry.RetryableError(err)
		}

		return nil
	})
	if err != nil {
		return nil, JoinResponse{}, err
	}

	return conn, joined, nil
}

func (c *Client) dial(ctx context.Context, roomID, clientID string) (*websocket.Conn, error) {
	u := *c.baseURL
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path += roomPath(roomID, "ws")
	u.RawQuery = url.Values{"clientId": {clientID}}.Encode()

	conn, resp, err := c.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to dial %s: status %d: %w", u.Redacted(), resp.StatusCode, err)
		}
		return nil, fmt.Errorf("failed to dial %s: %w", u.Redacted(), err)
	}

	return conn, nil
}

// read delivers frames from conn until it fails or ctx is done. Frames that do
// not decode are skipped.
func (c *Client) read(ctx context.Context, conn *websocket.Conn, onEvent func(domain.Event)) error {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()
	defer conn.Close()

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		ev, err := domain.DecodeEvent(frame)
		if err != nil {
			slog.Debug("client.read: skipping frame", "error", err)
			continue
		}
		if onEvent != nil {
			onEvent(ev)
		}
	}
}

// permanent reports whether retrying the request cannot succeed.
func permanent(err error) bool {
	if errors.Is(err, ErrRoomFull) {
		return true
	}

	var statusErr *StatusError
	return errors.As(err, &statusErr) &&
		statusErr.StatusCode >= http.StatusBadRequest &&
		statusErr.StatusCode < http.StatusInternalServerError
}
