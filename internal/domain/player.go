package domain

import "time"

// Clock is the room's logical playback clock.
type Clock struct {
	IsPlaying  bool
	Position   time.Duration
	LastUpdate time.Time
}

// Projected extrapolates the stored position to now.
func (c Clock) Projected(now time.Time) time.Duration {
	if !c.IsPlaying {
		return c.Position
	}

	elapsed := now.Sub(c.LastUpdate)
	if elapsed < 0 {
		elapsed = 0
	}

	return c.Position + elapsed
}

// Apply returns the clock after ev. It has no side effects; event types that do
// not affect playback return c unchanged.
func (c Clock) Apply(ev Event, now time.Time) Clock {
	next := c
	switch p := ev.Payload.(type) {
	case Load:
		next = Clock{IsPlaying: p.Autoplay, Position: p.Time.Duration()}
	case Play:
		next = Clock{IsPlaying: true, Position: p.Time.Duration()}
	case Pause:
		next = Clock{IsPlaying: false, Position: p.Time.Duration()}
	case Seek:
		next = Clock{IsPlaying: c.IsPlaying, Position: p.Time.Duration()}
	default:
		return c
	}

	// a paused clock already at the target position is left untouched
	if !c.IsPlaying && !next.IsPlaying && c.Position == next.Position {
		return c
	}

	next.LastUpdate = now
	return next
}

// State is the projected form sent to clients.
func (c Clock) State(now time.Time) PlaybackState {
	return PlaybackState{
		IsPlaying:   c.IsPlaying,
		CurrentTime: SecondsOf(c.Projected(now)),
	}
}

type PlaybackState struct {
	IsPlaying   bool    `json:"isPlaying"`
	CurrentTime Seconds `json:"currentTime"`
}

type RoomSnapshot struct {
	ID           string        `json:"id"`
	Video        *Video        `json:"video"`
	State        PlaybackState `json:"state"`
	Participants []string      `json:"participants"`
}
