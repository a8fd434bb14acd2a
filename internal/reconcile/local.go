package reconcile

import (
	"context"
	"fmt"

	"github.com/sharetube/watchparty/internal/domain"
	"github.com/sharetube/watchparty/internal/videosource"
)

// OnLocalPlay is called by the player when playback starts.
func (c *Controller) OnLocalPlay() {
	c.onLocalPlayState(true)
}

// OnLocalPause is called by the player when playback stops.
func (c *Controller) OnLocalPause() {
	c.onLocalPlayState(false)
}

func (c *Controller) onLocalPlayState(playing bool) {
	position := c.player.Position()

	c.mu.Lock()
	if !c.acceptLocalLocked() {
		c.mu.Unlock()
		return
	}
	if c.lastPlaying != nil && *c.lastPlaying == playing {
		c.mu.Unlock()
		return
	}
	c.setPlayingLocked(playing)
	if playing && c.cfg.Mode != ModeFull {
		c.mu.Unlock()
		return
	}

	var p domain.Payload = domain.Pause{Time: domain.SecondsOf(position)}
	if playing {
		p = domain.Play{Time: domain.SecondsOf(position)}
	}
	ev := c.eventLocked(p)
	c.mu.Unlock()

	c.send(ev)
}

// OnLocalSeek is called by the player after the user moves the playhead.
// Seeks are sent at most once per SeekRate; the last position inside a window
// is sent when the window closes.
func (c *Controller) OnLocalSeek() {
	position := c.player.Position()

	c.mu.Lock()
	if !c.acceptLocalLocked() || c.cfg.Mode != ModeFull {
		c.mu.Unlock()
		return
	}

	now := c.clock.Now()
	if c.seekTimer == nil && (c.lastSeekSent.IsZero() || now.Sub(c.lastSeekSent) >= c.cfg.SeekRate) {
		c.lastSeekSent = now
		ev := c.eventLocked(domain.Seek{Time: domain.SecondsOf(position)})
		c.mu.Unlock()

		c.send(ev)
		return
	}

	c.pendingSeek = &position
	if c.seekTimer == nil {
		c.seekTimer = c.clock.AfterFunc(c.lastSeekSent.Add(c.cfg.SeekRate).Sub(now), c.flushSeek)
	}
	c.mu.Unlock()
}

func (c *Controller) flushSeek() {
	c.mu.Lock()
	c.seekTimer = nil
	if c.closed || c.pendingSeek == nil {
		c.mu.Unlock()
		return
	}

	position := *c.pendingSeek
	c.pendingSeek = nil
	c.lastSeekSent = c.clock.Now()
	ev := c.eventLocked(domain.Seek{Time: domain.SecondsOf(position)})
	c.mu.Unlock()

	c.send(ev)
}

// OnLocalFullscreen mirrors a local fullscreen change to the room unless it was
// caused by a remote fullscreen event.
func (c *Controller) OnLocalFullscreen(active bool) {
	c.mu.Lock()
	if c.state == StateUninitialized || c.closed || c.clock.Now().Before(c.fsSuppressUntil) {
		c.mu.Unlock()
		return
	}
	ev := c.eventLocked(domain.Fullscreen{Active: active})
	c.mu.Unlock()

	c.send(ev)
}

// LoadURL resolves raw into a playable video, loads it locally and announces it
// to the room.
func (c *Controller) LoadURL(ctx context.Context, raw string) (domain.Video, error) {
	video, err := videosource.Video(videosource.Resolve(raw))
	if err != nil {
		return domain.Video{}, err
	}

	c.mu.Lock()
	if c.state == StateUninitialized || c.closed {
		c.mu.Unlock()
		return domain.Video{}, ErrNotJoined
	}
	c.suppressLocked(c.clock.Now())
	c.setPlayingLocked(true)
	ev := c.eventLocked(domain.Load{Video: &video, Time: 0, Autoplay: true})
	c.mu.Unlock()

	c.player.Load(video, 0, true)
	if err := c.out.Broadcast(ctx, ev); err != nil {
		return video, fmt.Errorf("failed to broadcast load: %w", err)
	}

	return video, nil
}

func (c *Controller) acceptLocalLocked() bool {
	if c.state == StateUninitialized || c.closed {
		return false
	}

	return !c.suppressedLocked(c.clock.Now())
}
