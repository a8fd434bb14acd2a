// Package broker carries relayed frames between server instances that share
// rooms. Each instance tags what it publishes with its own id and ignores
// messages carrying that id.
package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Topic is the redis channel and NATS subject every instance publishes on.
const Topic = "watchparty.relay"

var ErrMalformedEnvelope = errors.New("malformed broker envelope")

type Envelope struct {
	Origin string          `json:"origin"`
	RoomID string          `json:"roomId"`
	Frame  json.RawMessage `json:"frame"`
}

// Handler receives frames published by other instances.
type Handler func(ctx context.Context, roomID string, frame []byte) error

func Encode(origin, roomID string, frame []byte) ([]byte, error) {
	if !json.Valid(frame) {
		return nil, fmt.Errorf("%w: frame is not json", ErrMalformedEnvelope)
	}

	return json.Marshal(Envelope{Origin: origin, RoomID: roomID, Frame: frame})
}

func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if env.Origin == "" || env.RoomID == "" || len(env.Frame) == 0 {
		return Envelope{}, fmt.Errorf("%w: missing field", ErrMalformedEnvelope)
	}

	return env, nil
}
