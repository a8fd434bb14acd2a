package reconcile

import (
	"log/slog"
	"time"

	"github.com/sharetube/watchparty/internal/domain"
)

// HandleEvent reconciles the local player with an event received from the room.
// Events sent by this client and events received before Join are ignored.
func (c *Controller) HandleEvent(ev domain.Event) {
	position := c.player.Position()
	playing := c.player.IsPlaying()

	c.mu.Lock()
	if c.state == StateUninitialized || c.closed {
		c.mu.Unlock()
		return
	}

	if p, ok := ev.Payload.(domain.Presence); ok {
		c.handlePresenceLocked(p)
		c.mu.Unlock()
		return
	}

	if ev.SenderID == c.selfID {
		c.mu.Unlock()
		return
	}
	if c.state == StateJoined {
		c.state = StateSynced
	}

	actions := c.reconcileLocked(ev, position, playing)
	c.mu.Unlock()

	run(actions)
}

func (c *Controller) handlePresenceLocked(p domain.Presence) {
	if p.ClientID == "" || p.ClientID == c.selfID {
		return
	}

	switch p.Action {
	case domain.PresenceActionJoin:
		if _, ok := c.participants[p.ClientID]; ok {
			return
		}
		c.participants[p.ClientID] = struct{}{}
	case domain.PresenceActionLeave:
		if _, ok := c.participants[p.ClientID]; !ok {
			return
		}
		delete(c.participants, p.ClientID)
	default:
		return
	}

	c.electLocked()
}

func (c *Controller) reconcileLocked(ev domain.Event, position time.Duration, playing bool) []func() {
	now := c.clock.Now()
	full := c.cfg.Mode == ModeFull

	switch p := ev.Payload.(type) {
	case domain.Load:
		if p.Video == nil {
			return nil
		}
		video := *p.Video
		c.suppressLocked(now)
		c.setPlayingLocked(p.Autoplay)
		return []func(){func() { c.player.Load(video, p.Time.Duration(), p.Autoplay) }}

	case domain.Play:
		if !full {
			return nil
		}
		c.setPlayingLocked(true)
		if drift(position, p.Time) > c.cfg.PlayThreshold || !playing {
			return c.seekAndPlayLocked(now, p.Time)
		}

	case domain.Pause:
		c.setPlayingLocked(false)
		if drift(position, p.Time) > c.cfg.PlayThreshold || playing {
			return c.seekAndPauseLocked(now, p.Time)
		}

	case domain.Seek:
		if !full {
			return nil
		}
		if drift(position, p.Time) > c.cfg.SeekThreshold {
			c.suppressLocked(now)
			at := p.Time.Duration()
			return []func(){func() { c.player.Seek(at) }}
		}

	case domain.Sync:
		if !full {
			return nil
		}
		if ev.SenderID != c.leader {
			slog.Debug("reconcile.HandleEvent: sync from non-leader", "sender", ev.SenderID, "leader", c.leader)
			return nil
		}
		c.setPlayingLocked(p.IsPlaying)
		d := drift(position, p.Time)
		if p.IsPlaying && (d > c.cfg.PlayThreshold || !playing) {
			return c.seekAndPlayLocked(now, p.Time)
		}
		if !p.IsPlaying && (d > c.cfg.PlayThreshold || playing) {
			return c.seekAndPauseLocked(now, p.Time)
		}

	case domain.Fullscreen:
		if c.fullscreen == nil {
			return nil
		}
		c.fsSuppressUntil = now.Add(c.cfg.FullscreenWindow)
		active := p.Active
		return []func(){func() { c.fullscreen.SetFullscreen(active) }}

	case domain.Chat:
		if c.chat == nil {
			return nil
		}
		from := ev.SenderID
		return []func(){func() { c.chat.HandleChat(from, p) }}

	case domain.Signal:
		if c.signaler == nil || p.TargetID != c.selfID {
			return nil
		}
		from := ev.SenderID
		return []func(){func() { c.signaler.HandleSignal(from, p) }}
	}

	return nil
}

func (c *Controller) seekAndPlayLocked(now time.Time, t domain.Seconds) []func() {
	c.suppressLocked(now)
	at := t.Duration()
	return []func(){func() { c.player.SeekAndPlay(at) }}
}

func (c *Controller) seekAndPauseLocked(now time.Time, t domain.Seconds) []func() {
	c.suppressLocked(now)
	at := t.Duration()
	return []func(){func() { c.player.SeekAndPause(at) }}
}
