// Package client talks to a watchparty server over its HTTP and websocket surface.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sharetube/watchparty/internal/domain"
)

var ErrRoomFull = errors.New("room is full")

// StatusError is returned for any non-2xx response.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned status %d: %s", e.StatusCode, e.Message)
}

type Config struct {
	HTTPClient *http.Client
	Dialer     *websocket.Dialer
	// BackoffBase and BackoffMax bound the delay between reconnect attempts.
	BackoffBase time.Duration
	BackoffMax  time.Duration
}

type Client struct {
	baseURL     *url.URL
	httpClient  *http.Client
	dialer      *websocket.Dialer
	backoffBase time.Duration
	backoffMax  time.Duration
}

func New(baseURL string, cfg Config) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported base url scheme %q", u.Scheme)
	}

	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 250 * time.Millisecond
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = 10 * time.Second
	}

	return &Client{
		baseURL:     u,
		httpClient:  cfg.HTTPClient,
		dialer:      cfg.Dialer,
		backoffBase: cfg.BackoffBase,
		backoffMax:  cfg.BackoffMax,
	}, nil
}

type CreateResponse struct {
	ID      string `json:"id"`
	JoinURL string `json:"joinUrl"`
}

func (c *Client) Create(ctx context.Context) (CreateResponse, error) {
	var resp CreateResponse
	if err := c.do(ctx, http.MethodPost, "/rooms/create", nil, &resp); err != nil {
		return CreateResponse{}, err
	}

	return resp, nil
}

type JoinResponse struct {
	ClientID string              `json:"clientId"`
	Room     domain.RoomSnapshot `json:"room"`
}

// Join takes a seat in roomID. An empty clientID lets the server assign one.
func (c *Client) Join(ctx context.Context, roomID, clientID string) (JoinResponse, error) {
	body, err := json.Marshal(struct {
		ClientID string `json:"clientId,omitempty"`
	}{ClientID: clientID})
	if err != nil {
		return JoinResponse{}, fmt.Errorf("failed to encode join request: %w", err)
	}

	var resp JoinResponse
	if err := c.do(ctx, http.MethodPost, roomPath(roomID, "join"), body, &resp); err != nil {
		var statusErr *StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusForbidden {
			return JoinResponse{}, fmt.Errorf("%w: %s", ErrRoomFull, statusErr.Message)
		}
		return JoinResponse{}, err
	}

	return resp, nil
}

func (c *Client) Broadcast(ctx context.Context, roomID string, ev domain.Event) error {
	frame, err := ev.Frame()
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	return c.do(ctx, http.MethodPost, roomPath(roomID, "broadcast"), frame, nil)
}

func (c *Client) Info(ctx context.Context, roomID string) (domain.RoomSnapshot, error) {
	var snapshot domain.RoomSnapshot
	if err := c.do(ctx, http.MethodGet, roomPath(roomID, "info"), nil, &snapshot); err != nil {
		return domain.RoomSnapshot{}, err
	}

	return snapshot, nil
}

// RoomBroadcaster sends events to a single room.
type RoomBroadcaster struct {
	client *Client
	roomID string
}

func (c *Client) Room(roomID string) RoomBroadcaster {
	return RoomBroadcaster{client: c, roomID: roomID}
}

func (r RoomBroadcaster) Broadcast(ctx context.Context, ev domain.Event) error {
	return r.client.Broadcast(ctx, r.roomID, ev)
}

func roomPath(roomID, action string) string {
	return "/rooms/" + url.PathEscape(roomID) + "/" + action
}

func (c *Client) endpoint(path string) string {
	u := *c.baseURL
	u.Path += path
	return u.String()
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path), reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return readStatusError(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

func readStatusError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var payload struct {
		Error  string          `json:"error"`
		Errors json.RawMessage `json:"errors"`
	}
	message := strings.TrimSpace(string(data))
	if json.Unmarshal(data, &payload) == nil {
		switch {
		case payload.Error != "":
			message = payload.Error
		case len(payload.Errors) > 0:
			message = string(payload.Errors)
		}
	}

	return &StatusError{StatusCode: resp.StatusCode, Message: message}
}
