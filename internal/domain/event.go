package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var ErrMalformedEvent = errors.New("malformed event")

var (
	errMissingTime  = errors.New("missing time")
	errInvalidTime  = errors.New("time out of range")
	errMissingVideo = errors.New("missing video")
)

type EventType string

const (
	EventHello      EventType = "hello"
	EventPresence   EventType = "presence"
	EventLoad       EventType = "load"
	EventPlay       EventType = "play"
	EventPause      EventType = "pause"
	EventSeek       EventType = "seek"
	EventSync       EventType = "sync"
	EventFullscreen EventType = "fullscreen"
	EventChat       EventType = "chat"
	EventRTCOffer   EventType = "rtc-offer"
	EventRTCAnswer  EventType = "rtc-answer"
	EventRTCICE     EventType = "rtc-ice"
)

const (
	PresenceActionJoin  = "join"
	PresenceActionLeave = "leave"
)

// Payload is implemented by the per-type event bodies below.
type Payload interface {
	eventType() EventType
}

type Hello struct {
	ClientID     string `json:"clientId"`
	Participants int    `json:"participants"`
	Subscribers  int    `json:"subscribers"`
}

type Presence struct {
	Action   string `json:"action"`
	ClientID string `json:"clientId"`
	Count    int    `json:"count"`
}

type Load struct {
	Video    *Video  `json:"video"`
	Time     Seconds `json:"time"`
	Autoplay bool    `json:"autoplay"`
}

type Play struct {
	Time Seconds `json:"time"`
}

type Pause struct {
	Time Seconds `json:"time"`
}

type Seek struct {
	Time Seconds `json:"time"`
}

type Sync struct {
	Time      Seconds `json:"time"`
	IsPlaying bool    `json:"isPlaying"`
}

type Fullscreen struct {
	Active bool `json:"active"`
}

type Chat struct {
	Text string `json:"text"`
	TS   int64  `json:"ts"`
}

// Signal is an rtc-offer, rtc-answer or rtc-ice payload. SDP and Candidate are
// kept raw; see signal.go for typed access.
type Signal struct {
	Kind      EventType       `json:"-"`
	TargetID  string          `json:"targetId"`
	SDP       json.RawMessage `json:"sdp,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
}

// Opaque is any event type this package does not know. Only its raw frame is meaningful.
type Opaque struct {
	Kind EventType `json:"-"`
}

func (Hello) eventType() EventType      { return EventHello }
func (Presence) eventType() EventType   { return EventPresence }
func (Load) eventType() EventType       { return EventLoad }
func (Play) eventType() EventType       { return EventPlay }
func (Pause) eventType() EventType      { return EventPause }
func (Seek) eventType() EventType       { return EventSeek }
func (Sync) eventType() EventType       { return EventSync }
func (Fullscreen) eventType() EventType { return EventFullscreen }
func (Chat) eventType() EventType       { return EventChat }
func (s Signal) eventType() EventType   { return s.Kind }
func (o Opaque) eventType() EventType   { return o.Kind }

// Event is a relayed message: {type, senderId, ...payload}.
type Event struct {
	Type     EventType
	SenderID string
	Payload  Payload

	// raw holds the frame the event was decoded from so it can be relayed verbatim.
	raw []byte
}

func NewEvent(senderID string, p Payload) Event {
	return Event{Type: p.eventType(), SenderID: senderID, Payload: p}
}

type header struct {
	Type     EventType `json:"type"`
	SenderID string    `json:"senderId"`
}

// DecodeEvent parses a frame. Unknown types decode to Opaque; anything that is not a
// JSON object with a string type, or whose known payload has wrongly typed or
// out-of-range fields, yields ErrMalformedEvent.
func DecodeEvent(data []byte) (Event, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Event{}, ErrMalformedEvent
	}

	var h header
	if err := json.Unmarshal(trimmed, &h); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if h.Type == "" {
		return Event{}, fmt.Errorf("%w: missing type", ErrMalformedEvent)
	}

	payload, err := decodePayload(h.Type, trimmed)
	if err == nil {
		err = validatePayload(payload, trimmed)
	}
	if err != nil {
		return Event{}, fmt.Errorf("%w: %s: %v", ErrMalformedEvent, h.Type, err)
	}

	// compacted so the frame always fits on a single SSE data line
	var raw bytes.Buffer
	if err := json.Compact(&raw, trimmed); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	return Event{Type: h.Type, SenderID: h.SenderID, Payload: payload, raw: raw.Bytes()}, nil
}

func decodePayload(t EventType, data []byte) (Payload, error) {
	switch t {
	case EventHello:
		return decodeAs[Hello](data)
	case EventPresence:
		return decodeAs[Presence](data)
	case EventLoad:
		return decodeAs[Load](data)
	case EventPlay:
		return decodeAs[Play](data)
	case EventPause:
		return decodeAs[Pause](data)
	case EventSeek:
		return decodeAs[Seek](data)
	case EventSync:
		return decodeAs[Sync](data)
	case EventFullscreen:
		return decodeAs[Fullscreen](data)
	case EventChat:
		return decodeAs[Chat](data)
	case EventRTCOffer, EventRTCAnswer, EventRTCICE:
		s, err := decodeAs[Signal](data)
		if err != nil {
			return nil, err
		}
		s.Kind = t
		return s, nil
	default:
		return Opaque{Kind: t}, nil
	}
}

// validatePayload rejects playback events whose position cannot be stored in a
// room clock. time is required on play, pause, seek and sync; load defaults it to 0
// but requires a video.
func validatePayload(p Payload, data []byte) error {
	var t Seconds
	switch p := p.(type) {
	case Load:
		if p.Video == nil {
			return errMissingVideo
		}
		return validateTime(p.Time)
	case Play:
		t = p.Time
	case Pause:
		t = p.Time
	case Seek:
		t = p.Time
	case Sync:
		t = p.Time
	default:
		return nil
	}

	var present struct {
		Time *Seconds `json:"time"`
	}
	if err := json.Unmarshal(data, &present); err != nil {
		return err
	}
	if present.Time == nil {
		return errMissingTime
	}

	return validateTime(t)
}

func validateTime(t Seconds) error {
	if !t.Valid() {
		return fmt.Errorf("%w: %v", errInvalidTime, float64(t))
	}
	return nil
}

func decodeAs[T Payload](data []byte) (T, error) {
	var p T
	err := json.Unmarshal(data, &p)
	return p, err
}

func (e *Event) UnmarshalJSON(data []byte) error {
	ev, err := DecodeEvent(data)
	if err != nil {
		return err
	}
	*e = ev
	return nil
}

// MarshalJSON returns the original frame for decoded events and the flat
// {type, senderId, ...payload} object for constructed ones.
func (e Event) MarshalJSON() ([]byte, error) {
	if e.raw != nil {
		return e.raw, nil
	}

	fields := map[string]json.RawMessage{}
	if e.Payload != nil {
		body, err := json.Marshal(e.Payload)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(body, &fields); err != nil {
			return nil, err
		}
	}

	t, err := json.Marshal(e.Type)
	if err != nil {
		return nil, err
	}
	fields["type"] = t

	if e.SenderID != "" {
		sender, err := json.Marshal(e.SenderID)
		if err != nil {
			return nil, err
		}
		fields["senderId"] = sender
	}

	return json.Marshal(fields)
}

// Frame is the wire form of the event.
func (e Event) Frame() ([]byte, error) {
	return e.MarshalJSON()
}

// AffectsClock reports whether the event mutates a room's video or clock.
func (e Event) AffectsClock() bool {
	switch e.Payload.(type) {
	case Load, Play, Pause, Seek:
		return true
	default:
		return false
	}
}
