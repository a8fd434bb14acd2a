package reconcile

import (
	"log/slog"
	"slices"

	"github.com/jonboulle/clockwork"
	"github.com/sharetube/watchparty/internal/domain"
)

// ElectLeader returns the lexicographically smallest non-empty id, or "" when
// there is none.
func ElectLeader(ids ...string) string {
	var leader string
	for _, id := range ids {
		if id == "" {
			continue
		}
		if leader == "" || id < leader {
			leader = id
		}
	}

	return leader
}

func (c *Controller) Leader() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.leader
}

func (c *Controller) IsLeader() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.isLeaderLocked()
}

// Participants returns the other known participants in sorted order.
func (c *Controller) Participants() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	ids := make([]string, 0, len(c.participants))
	for id := range c.participants {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (c *Controller) isLeaderLocked() bool {
	return c.selfID != "" && c.leader == c.selfID
}

// electLocked recomputes the leader and restarts the sync ticker.
func (c *Controller) electLocked() {
	ids := make([]string, 0, len(c.participants)+1)
	ids = append(ids, c.selfID)
	for id := range c.participants {
		ids = append(ids, id)
	}

	prev := c.leader
	c.leader = ElectLeader(ids...)
	if prev != c.leader {
		slog.Debug("reconcile.elect", "selfID", c.selfID, "leader", c.leader)
	}

	c.restartLeaderSyncLocked()
}

func (c *Controller) restartLeaderSyncLocked() {
	c.stopLeaderSyncLocked()
	if c.closed || c.cfg.Mode != ModeFull || c.state == StateUninitialized || !c.isLeaderLocked() {
		return
	}

	stop := make(chan struct{})
	c.syncStop = stop
	go c.leaderLoop(c.clock.NewTicker(c.cfg.SyncInterval), stop)
}

func (c *Controller) stopLeaderSyncLocked() {
	if c.syncStop != nil {
		close(c.syncStop)
		c.syncStop = nil
	}
}

func (c *Controller) leaderLoop(ticker clockwork.Ticker, stop chan struct{}) {
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.Chan():
			c.emitSync(stop)
		}
	}
}

func (c *Controller) emitSync(stop chan struct{}) {
	position := c.player.Position()
	playing := c.player.IsPlaying()

	c.mu.Lock()
	// a tick racing with re-election must not speak for a former leader
	if c.syncStop != stop {
		c.mu.Unlock()
		return
	}
	ev := c.eventLocked(domain.Sync{Time: domain.SecondsOf(position), IsPlaying: playing})
	c.mu.Unlock()

	c.send(ev)
}
