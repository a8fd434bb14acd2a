// Package reconcile keeps a local player aligned with the room's shared
// playback clock. It decides how to react to relayed events, elects the
// participant whose periodic sync is honored, and keeps locally caused player
// notifications from being echoed back to the room.
package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sharetube/watchparty/internal/domain"
)

var ErrNotJoined = errors.New("controller has not joined a room")

// Player is the local playback surface. Load positions the player at `at` and
// starts playback only when autoplay is set.
type Player interface {
	Position() time.Duration
	IsPlaying() bool
	SeekAndPlay(at time.Duration)
	SeekAndPause(at time.Duration)
	Seek(at time.Duration)
	Load(v domain.Video, at time.Duration, autoplay bool)
}

// Broadcaster delivers outgoing events to the room. Failures are logged and dropped.
type Broadcaster interface {
	Broadcast(ctx context.Context, ev domain.Event) error
}

// Signaler receives rtc-* events addressed to this client.
type Signaler interface {
	HandleSignal(from string, s domain.Signal)
}

type Fullscreen interface {
	SetFullscreen(active bool)
}

type ChatSink interface {
	HandleChat(from string, c domain.Chat)
}

type Mode int

const (
	// ModeFull reconciles play, pause, seek and leader sync.
	ModeFull Mode = iota
	// ModePauseOnly reconciles and emits only pause and load, without leader sync.
	ModePauseOnly
)

type State int

const (
	StateUninitialized State = iota
	StateJoined
	StateSynced
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateJoined:
		return "joined"
	case StateSynced:
		return "synced"
	default:
		return "unknown"
	}
}

// Config tunes the controller. Zero or negative durations take their value
// from DefaultConfig.
type Config struct {
	// PlayThreshold is the drift tolerated by play, pause and sync.
	PlayThreshold time.Duration
	// SeekThreshold is the drift tolerated by seek.
	SeekThreshold    time.Duration
	SeekRate         time.Duration
	SyncInterval     time.Duration
	SuppressWindow   time.Duration
	FullscreenWindow time.Duration
	Mode             Mode
}

func DefaultConfig() Config {
	return Config{
		PlayThreshold:    600 * time.Millisecond,
		SeekThreshold:    300 * time.Millisecond,
		SeekRate:         800 * time.Millisecond,
		SyncInterval:     5 * time.Second,
		SuppressWindow:   200 * time.Millisecond,
		FullscreenWindow: 300 * time.Millisecond,
		Mode:             ModeFull,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	orDefault(&c.PlayThreshold, d.PlayThreshold)
	orDefault(&c.SeekThreshold, d.SeekThreshold)
	orDefault(&c.SeekRate, d.SeekRate)
	orDefault(&c.SyncInterval, d.SyncInterval)
	orDefault(&c.SuppressWindow, d.SuppressWindow)
	orDefault(&c.FullscreenWindow, d.FullscreenWindow)
	return c
}

func orDefault(v *time.Duration, def time.Duration) {
	if *v <= 0 {
		*v = def
	}
}

type Params struct {
	Player      Player
	Broadcaster Broadcaster
	Clock       clockwork.Clock
	Config      Config

	// optional
	Signaler   Signaler
	Fullscreen Fullscreen
	Chat       ChatSink
}

type Controller struct {
	mu sync.Mutex

	cfg        Config
	clock      clockwork.Clock
	player     Player
	out        Broadcaster
	signaler   Signaler
	fullscreen Fullscreen
	chat       ChatSink

	ctx    context.Context
	cancel context.CancelFunc
	closed bool

	state        State
	selfID       string
	participants map[string]struct{}
	leader       string
	syncStop     chan struct{}

	suppressUntil   time.Time
	fsSuppressUntil time.Time
	// last play state this client reported or was moved to
	lastPlaying *bool

	lastSeekSent time.Time
	pendingSeek  *time.Duration
	seekTimer    clockwork.Timer
}

func New(p Params) *Controller {
	if p.Clock == nil {
		p.Clock = clockwork.NewRealClock()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		cfg:          p.Config.withDefaults(),
		clock:        p.Clock,
		player:       p.Player,
		out:          p.Broadcaster,
		signaler:     p.Signaler,
		fullscreen:   p.Fullscreen,
		chat:         p.Chat,
		ctx:          ctx,
		cancel:       cancel,
		participants: make(map[string]struct{}),
	}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state
}

func (c *Controller) SelfID() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.selfID
}

// Join seeds the controller from a join response and aligns the player with
// the room snapshot.
func (c *Controller) Join(selfID string, snapshot domain.RoomSnapshot) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	now := c.clock.Now()

	c.selfID = selfID
	c.participants = make(map[string]struct{}, len(snapshot.Participants))
	for _, id := range snapshot.Participants {
		if id != selfID {
			c.participants[id] = struct{}{}
		}
	}
	c.state = StateJoined

	var actions []func()
	if snapshot.Video != nil {
		video := *snapshot.Video
		at := snapshot.State.CurrentTime.Duration()
		playing := snapshot.State.IsPlaying

		c.suppressLocked(now)
		c.setPlayingLocked(playing)
		actions = append(actions, func() { c.player.Load(video, at, playing) })
	}

	c.electLocked()
	slog.Debug("reconcile.Join", "selfID", selfID, "participants", len(c.participants), "leader", c.leader)
	c.mu.Unlock()

	run(actions)
}

// Close stops all timers. Outgoing broadcasts still in flight are cancelled.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopLeaderSyncLocked()
	if c.seekTimer != nil {
		c.seekTimer.Stop()
		c.seekTimer = nil
	}
	c.pendingSeek = nil
	c.closed = true
	c.cancel()
}

func (c *Controller) suppressLocked(now time.Time) {
	if until := now.Add(c.cfg.SuppressWindow); until.After(c.suppressUntil) {
		c.suppressUntil = until
	}
}

func (c *Controller) suppressedLocked(now time.Time) bool {
	return now.Before(c.suppressUntil)
}

func (c *Controller) setPlayingLocked(playing bool) {
	c.lastPlaying = &playing
}

// send broadcasts ev as this client. It must be called without the lock.
func (c *Controller) send(ev domain.Event) {
	if err := c.out.Broadcast(c.ctx, ev); err != nil {
		slog.Debug("reconcile.send", "type", ev.Type, "error", err)
	}
}

func (c *Controller) eventLocked(p domain.Payload) domain.Event {
	return domain.NewEvent(c.selfID, p)
}

func run(actions []func()) {
	for _, a := range actions {
		a()
	}
}

func drift(local time.Duration, remote domain.Seconds) time.Duration {
	d := local - remote.Duration()
	if d < 0 {
		return -d
	}

	return d
}
