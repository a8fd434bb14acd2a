package inmemory

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sharetube/watchparty/internal/domain"
	"github.com/sharetube/watchparty/internal/repository/room"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSubs struct {
	mu     sync.Mutex
	counts map[string]int
}

func (f *fakeSubs) Count(roomID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[roomID]
}

func (f *fakeSubs) set(roomID string, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.counts == nil {
		f.counts = map[string]int{}
	}
	f.counts[roomID] = n
}

const grace = 60 * time.Second

func newTestRegistry(t *testing.T) (*Registry, *clockwork.FakeClock, *fakeSubs) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	subs := &fakeSubs{}
	return NewRegistry(Config{Clock: clock, Grace: grace, Subscribers: subs}), clock, subs
}

func TestCreateRoom(t *testing.T) {
	reg, _, _ := newTestRegistry(t)

	r := reg.CreateRoom()
	assert.Len(t, r.ID(), 6)
	assert.Regexp(t, "^[0-9a-f]{6}$", r.ID())
	assert.True(t, reg.Exists(r.ID()))

	locked := reg.Acquire(r.ID())
	defer locked.Unlock()
	assert.Nil(t, locked.Video())
	assert.Equal(t, domain.PlaybackState{}, locked.Clock().State(time.Now()))
	assert.Empty(t, locked.Participants())
}

func TestCreateRoomRetriesOnCollision(t *testing.T) {
	ids := []string{"aaaaaa", "aaaaaa", "bbbbbb"}
	var n int
	reg := NewRegistry(Config{
		Clock:      clockwork.NewFakeClock(),
		GenerateID: func() string {
			id := ids[n]
			n++
			return id
		},
	})

	assert.Equal(t, "aaaaaa", reg.CreateRoom().ID())
	assert.Equal(t, "bbbbbb", reg.CreateRoom().ID())
	assert.Equal(t, 2, reg.Len())
}

func TestGetOrCreateIsConcurrencySafe(t *testing.T) {
	reg, _, _ := newTestRegistry(t)

	const workers = 32
	got := make([]*Room, workers)
	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got[i] = reg.GetOrCreate("shared")
		}()
	}
	wg.Wait()

	for _, r := range got {
		assert.Same(t, got[0], r)
	}
	assert.Equal(t, 1, reg.Len())
}

func TestCapacity(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	r := reg.Acquire("cap")
	defer r.Unlock()

	for i := range 6 {
		added, err := r.AddParticipant(fmt.Sprintf("c%d", i), 6)
		require.NoError(t, err)
		assert.True(t, added)
	}

	_, err := r.AddParticipant("c6", 6)
	assert.True(t, errors.Is(err, room.ErrRoomFull))
	assert.Contains(t, err.Error(), "6")
	assert.Equal(t, 6, r.ParticipantCount())

	// already seated ids are not rejected at capacity
	added, err := r.AddParticipant("c3", 6)
	require.NoError(t, err)
	assert.False(t, added)
}

func TestRemoveParticipantKeepsJoinOrder(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	r := reg.Acquire("order")
	defer r.Unlock()

	for _, id := range []string{"a", "b", "c"} {
		_, err := r.AddParticipant(id, 6)
		require.NoError(t, err)
	}

	assert.True(t, r.RemoveParticipant("b"))
	assert.False(t, r.RemoveParticipant("b"))
	assert.Equal(t, []string{"a", "c"}, r.Participants())
}

func TestApplyLoadResetsClock(t *testing.T) {
	reg, clock, _ := newTestRegistry(t)
	r := reg.Acquire("load")
	defer r.Unlock()

	video := domain.Video{Kind: domain.VideoKindYouTube, Locator: "abc"}
	r.Apply(domain.NewEvent("a", domain.Load{Video: &video}), clock.Now())
	r.Apply(domain.NewEvent("a", domain.Play{Time: 10}), clock.Now())

	later := clock.Now().Add(time.Second)
	r.Apply(domain.NewEvent("a", domain.Load{Time: 3}), later)
	assert.Equal(t, domain.Clock{IsPlaying: false, Position: 3 * time.Second, LastUpdate: later}, r.Clock())
	assert.Equal(t, &video, r.Video())
}

func TestSnapshotProjectsClock(t *testing.T) {
	reg, clock, _ := newTestRegistry(t)
	r := reg.Acquire("snap")
	defer r.Unlock()

	_, err := r.AddParticipant("a", 6)
	require.NoError(t, err)
	r.Apply(domain.NewEvent("a", domain.Load{Video: &domain.Video{Kind: domain.VideoKindYouTube, Locator: "abc"}}), clock.Now())
	r.Apply(domain.NewEvent("a", domain.Play{Time: 10}), clock.Now())

	snap := r.Snapshot(clock.Now().Add(5 * time.Second))
	assert.Equal(t, "snap", snap.ID)
	require.NotNil(t, snap.Video)
	assert.Equal(t, "abc", snap.Video.Locator)
	assert.Equal(t, domain.PlaybackState{IsPlaying: true, CurrentTime: 15}, snap.State)
	assert.Equal(t, []string{"a"}, snap.Participants)
}

func TestUnusedRoomIsEvictedAfterGrace(t *testing.T) {
	reg, clock, _ := newTestRegistry(t)
	r := reg.CreateRoom()

	clock.Advance(grace - time.Millisecond)
	assert.True(t, reg.Exists(r.ID()))

	clock.Advance(time.Millisecond)
	require.Eventually(t, func() bool { return !reg.Exists(r.ID()) }, time.Second, time.Millisecond)
}

func TestEvictionSparesOccupiedRooms(t *testing.T) {
	reg, clock, subs := newTestRegistry(t)

	seated := reg.Acquire("seated")
	_, err := seated.AddParticipant("a", 6)
	require.NoError(t, err)
	seated.Unlock()

	reg.GetOrCreate("watched")
	subs.set("watched", 1)

	reg.GetOrCreate("empty")

	clock.Advance(grace)
	require.Eventually(t, func() bool { return !reg.Exists("empty") }, time.Second, time.Millisecond)
	assert.True(t, reg.Exists("seated"))
	assert.True(t, reg.Exists("watched"))
}

func TestRescheduleReplacesPendingCheck(t *testing.T) {
	var evicted atomic.Int32
	clock := clockwork.NewFakeClock()
	reg := NewRegistry(Config{
		Clock:   clock,
		Grace:   grace,
		OnEvict: func(string) { evicted.Add(1) },
	})
	reg.GetOrCreate("r")

	clock.Advance(grace / 2)
	reg.ScheduleEvictionCheck("r")

	clock.Advance(grace / 2)
	// the first check was replaced, so the room survives past its first deadline
	time.Sleep(10 * time.Millisecond)
	assert.True(t, reg.Exists("r"))

	clock.Advance(grace / 2)
	require.Eventually(t, func() bool { return !reg.Exists("r") }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return evicted.Load() == 1 }, time.Second, time.Millisecond)
}

func TestLeaveThenEvict(t *testing.T) {
	reg, clock, _ := newTestRegistry(t)

	r := reg.Acquire("leave")
	_, err := r.AddParticipant("a", 6)
	require.NoError(t, err)
	r.Unlock()

	// the creation-time check finds a participant and keeps the room
	clock.Advance(grace)
	time.Sleep(10 * time.Millisecond)
	require.True(t, reg.Exists("leave"))

	r = reg.Acquire("leave")
	r.RemoveParticipant("a")
	r.Unlock()
	reg.ScheduleEvictionCheck("leave")

	clock.Advance(grace - time.Second)
	assert.True(t, reg.Exists("leave"))
	clock.Advance(time.Second)
	require.Eventually(t, func() bool { return !reg.Exists("leave") }, time.Second, time.Millisecond)
}

func TestAcquireNeverReturnsEvictedRoom(t *testing.T) {
	reg, clock, _ := newTestRegistry(t)
	old := reg.GetOrCreate("x")

	clock.Advance(grace)
	require.Eventually(t, func() bool { return !reg.Exists("x") }, time.Second, time.Millisecond)

	fresh := reg.Acquire("x")
	defer fresh.Unlock()
	assert.NotSame(t, old, fresh)
	assert.True(t, reg.Exists("x"))
}
