package room

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sharetube/watchparty/internal/domain"
	"github.com/sharetube/watchparty/internal/repository/connection/inmemory"
	roominmemory "github.com/sharetube/watchparty/internal/repository/room/inmemory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const grace = time.Minute

type fakeBroker struct {
	mu     sync.Mutex
	frames []string
}

func (b *fakeBroker) Publish(_ context.Context, roomID string, frame []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.frames = append(b.frames, roomID+" "+string(frame))
	return nil
}

func (b *fakeBroker) sent() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.frames...)
}

type fixture struct {
	svc      *service
	clock    *clockwork.FakeClock
	registry *roominmemory.Registry
	relay    *inmemory.Relay
	broker   *fakeBroker
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	clock := clockwork.NewFakeClock()
	relay := inmemory.NewRelay(16)
	registry := roominmemory.NewRegistry(roominmemory.Config{
		Clock:       clock,
		Grace:       grace,
		Subscribers: relay,
	})
	broker := &fakeBroker{}

	return fixture{
		svc:      NewService(registry, relay, broker, clock, 6),
		clock:    clock,
		registry: registry,
		relay:    relay,
		broker:   broker,
	}
}

func next(t *testing.T, sub *inmemory.Subscription) map[string]any {
	t.Helper()
	select {
	case frame, ok := <-sub.C():
		require.True(t, ok, "subscription closed")
		var m map[string]any
		require.NoError(t, json.Unmarshal(frame, &m))
		return m
	case <-time.After(time.Second):
		t.Fatal("no frame")
		return nil
	}
}

func nextRaw(t *testing.T, sub *inmemory.Subscription) string {
	t.Helper()
	select {
	case frame := <-sub.C():
		return string(frame)
	case <-time.After(time.Second):
		t.Fatal("no frame")
		return ""
	}
}

func assertNoFrame(t *testing.T, sub *inmemory.Subscription) {
	t.Helper()
	select {
	case frame := <-sub.C():
		t.Fatalf("unexpected frame %s", frame)
	default:
	}
}

func TestCreateRoom(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	resp, err := f.svc.CreateRoom(ctx)
	require.NoError(t, err)
	assert.Regexp(t, "^[0-9a-f]{6}$", resp.RoomID)
	assert.True(t, f.registry.Exists(resp.RoomID))

	info, err := f.svc.GetRoomInfo(ctx, resp.RoomID)
	require.NoError(t, err)
	assert.Nil(t, info.Video)
	assert.Equal(t, domain.PlaybackState{}, info.State)
	assert.Empty(t, info.Participants)
}

func TestJoinRoomGeneratesClientID(t *testing.T) {
	f := newFixture(t)

	resp, err := f.svc.JoinRoom(context.Background(), &JoinRoomParams{RoomID: "room1"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.ClientID)
	assert.Equal(t, "room1", resp.Room.ID)
	assert.Equal(t, []string{resp.ClientID}, resp.Room.Participants)
}

func TestJoinRoomCapacity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := range 6 {
		_, err := f.svc.JoinRoom(ctx, &JoinRoomParams{RoomID: "full", ClientID: fmt.Sprintf("c%d", i)})
		require.NoError(t, err)
	}

	_, err := f.svc.JoinRoom(ctx, &JoinRoomParams{RoomID: "full", ClientID: "late"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRoomFull))

	info, err := f.svc.GetRoomInfo(ctx, "full")
	require.NoError(t, err)
	assert.Len(t, info.Participants, 6)
	assert.NotContains(t, info.Participants, "late")
}

func TestJoinRoomAgainIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	watcher, err := f.svc.Subscribe(ctx, &SubscribeParams{RoomID: "r", ClientID: "w"})
	require.NoError(t, err)
	next(t, watcher) // hello

	_, err = f.svc.JoinRoom(ctx, &JoinRoomParams{RoomID: "r", ClientID: "a"})
	require.NoError(t, err)
	presence := next(t, watcher)
	assert.Equal(t, "presence", presence["type"])
	assert.Equal(t, "join", presence["action"])
	assert.Equal(t, "a", presence["clientId"])
	assert.Equal(t, float64(1), presence["count"])

	resp, err := f.svc.JoinRoom(ctx, &JoinRoomParams{RoomID: "r", ClientID: "a"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, resp.Room.Participants)
	assertNoFrame(t, watcher)
}

func TestSubscribeStartsWithHello(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.JoinRoom(ctx, &JoinRoomParams{RoomID: "r", ClientID: "a"})
	require.NoError(t, err)

	subA, err := f.svc.Subscribe(ctx, &SubscribeParams{RoomID: "r", ClientID: "a"})
	require.NoError(t, err)
	hello := next(t, subA)
	assert.Equal(t, "hello", hello["type"])
	assert.Equal(t, "a", hello["clientId"])
	assert.Equal(t, float64(1), hello["participants"])
	assert.Equal(t, float64(1), hello["subscribers"])

	subAnon, err := f.svc.Subscribe(ctx, &SubscribeParams{RoomID: "r"})
	require.NoError(t, err)
	hello = next(t, subAnon)
	assert.NotEmpty(t, hello["clientId"])
	assert.Equal(t, float64(2), hello["subscribers"])
}

func TestLoadAndPlayReachLateJoiner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	room, err := f.svc.CreateRoom(ctx)
	require.NoError(t, err)
	id := room.RoomID

	_, err = f.svc.JoinRoom(ctx, &JoinRoomParams{RoomID: id, ClientID: "a"})
	require.NoError(t, err)
	_, err = f.svc.JoinRoom(ctx, &JoinRoomParams{RoomID: id, ClientID: "b"})
	require.NoError(t, err)

	subB, err := f.svc.Subscribe(ctx, &SubscribeParams{RoomID: id, ClientID: "b"})
	require.NoError(t, err)
	next(t, subB)

	load := `{"type":"load","senderId":"a","video":{"kind":"youtube","locator":"abc"},"time":0,"autoplay":false}`
	require.NoError(t, f.svc.Broadcast(ctx, &BroadcastParams{RoomID: id, Frame: []byte(load)}))
	assert.Equal(t, load, nextRaw(t, subB))

	info, err := f.svc.GetRoomInfo(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, info.Video)
	assert.Equal(t, "abc", info.Video.Locator)

	require.NoError(t, f.svc.Broadcast(ctx, &BroadcastParams{RoomID: id, Frame: []byte(`{"type":"play","senderId":"a","time":10}`)}))
	next(t, subB)

	f.clock.Advance(5 * time.Second)

	info, err = f.svc.GetRoomInfo(ctx, id)
	require.NoError(t, err)
	assert.True(t, info.State.IsPlaying)
	assert.InDelta(t, 15, float64(info.State.CurrentTime), 0.001)
	assert.Equal(t, []string{"a", "b"}, info.Participants)
}

func TestBroadcastRelaysUnknownTypesVerbatim(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sub, err := f.svc.Subscribe(ctx, &SubscribeParams{RoomID: "r", ClientID: "b"})
	require.NoError(t, err)
	next(t, sub)

	frame := `{"type":"reaction","senderId":"a","emoji":"🎉","meta":{"x":1}}`
	require.NoError(t, f.svc.Broadcast(ctx, &BroadcastParams{RoomID: "r", Frame: []byte(frame)}))
	assert.Equal(t, frame, nextRaw(t, sub))

	info, err := f.svc.GetRoomInfo(ctx, "r")
	require.NoError(t, err)
	assert.Equal(t, domain.PlaybackState{}, info.State)
}

func TestBroadcastMalformedIsDropped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sub, err := f.svc.Subscribe(ctx, &SubscribeParams{RoomID: "r", ClientID: "b"})
	require.NoError(t, err)
	next(t, sub)

	for _, frame := range []string{
		`not json`,
		`{"time":3}`,
		`{"type":"seek","time":"x"}`,
		`{"type":"play","senderId":"a","time":1e300}`,
		`{"type":"play","senderId":"a","time":9.3e9}`,
		`{"type":"seek","senderId":"a","time":-50}`,
		`{"type":"play","senderId":"a"}`,
		`{"type":"load","senderId":"a","time":5}`,
	} {
		err := f.svc.Broadcast(ctx, &BroadcastParams{RoomID: "r", Frame: []byte(frame)})
		assert.ErrorIs(t, err, ErrMalformedEvent)
	}

	assertNoFrame(t, sub)
	assert.Empty(t, f.broker.sent())
}

func TestSyncDoesNotMoveTheServerClock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.Broadcast(ctx, &BroadcastParams{RoomID: "r", Frame: []byte(`{"type":"pause","senderId":"a","time":20}`)}))
	require.NoError(t, f.svc.Broadcast(ctx, &BroadcastParams{RoomID: "r", Frame: []byte(`{"type":"sync","senderId":"a","time":99,"isPlaying":true}`)}))

	info, err := f.svc.GetRoomInfo(ctx, "r")
	require.NoError(t, err)
	assert.Equal(t, domain.PlaybackState{IsPlaying: false, CurrentTime: 20}, info.State)
}

func TestRejectedTimesLeaveTheClockIntact(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.Broadcast(ctx, &BroadcastParams{RoomID: "r", Frame: []byte(`{"type":"play","senderId":"a","time":10}`)}))

	for _, frame := range []string{
		`{"type":"play","senderId":"b","time":1e300}`,
		`{"type":"seek","senderId":"b","time":-50}`,
		`{"type":"play","senderId":"b"}`,
		`{"type":"load","senderId":"b","time":0}`,
	} {
		err := f.svc.Broadcast(ctx, &BroadcastParams{RoomID: "r", Frame: []byte(frame)})
		require.ErrorIs(t, err, ErrMalformedEvent, frame)
	}

	f.clock.Advance(5 * time.Second)

	info, err := f.svc.GetRoomInfo(ctx, "r")
	require.NoError(t, err)
	assert.True(t, info.State.IsPlaying)
	assert.InDelta(t, 15, float64(info.State.CurrentTime), 0.001)
	assert.Nil(t, info.Video)
}

func TestUnsubscribeLeavesAndEvicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.JoinRoom(ctx, &JoinRoomParams{RoomID: "r", ClientID: "a"})
	require.NoError(t, err)
	_, err = f.svc.JoinRoom(ctx, &JoinRoomParams{RoomID: "r", ClientID: "b"})
	require.NoError(t, err)

	subA, err := f.svc.Subscribe(ctx, &SubscribeParams{RoomID: "r", ClientID: "a"})
	require.NoError(t, err)
	subB, err := f.svc.Subscribe(ctx, &SubscribeParams{RoomID: "r", ClientID: "b"})
	require.NoError(t, err)
	next(t, subB)

	f.svc.Unsubscribe(ctx, subA)
	f.svc.Unsubscribe(ctx, subA)

	leave := next(t, subB)
	assert.Equal(t, "presence", leave["type"])
	assert.Equal(t, "leave", leave["action"])
	assert.Equal(t, "a", leave["clientId"])
	assert.Equal(t, float64(1), leave["count"])
	assertNoFrame(t, subB)

	f.svc.Unsubscribe(ctx, subB)
	assert.True(t, f.registry.Exists("r"))

	f.clock.Advance(grace)
	require.Eventually(t, func() bool { return !f.registry.Exists("r") }, time.Second, time.Millisecond)
}

func TestSecondStreamKeepsTheSeat(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.JoinRoom(ctx, &JoinRoomParams{RoomID: "r", ClientID: "a"})
	require.NoError(t, err)

	first, err := f.svc.Subscribe(ctx, &SubscribeParams{RoomID: "r", ClientID: "a"})
	require.NoError(t, err)
	_, err = f.svc.Subscribe(ctx, &SubscribeParams{RoomID: "r", ClientID: "a"})
	require.NoError(t, err)

	f.svc.Unsubscribe(ctx, first)

	info, err := f.svc.GetRoomInfo(ctx, "r")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, info.Participants)
}

func TestBrokerForwarding(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.Broadcast(ctx, &BroadcastParams{RoomID: "r", Frame: []byte(`{"type":"seek","senderId":"a","time":4}`)}))
	require.NoError(t, f.svc.ApplyRemote(ctx, "r", []byte(`{"type":"play","senderId":"z","time":8}`)))

	assert.Equal(t, []string{`r {"type":"seek","senderId":"a","time":4}`}, f.broker.sent())

	info, err := f.svc.GetRoomInfo(ctx, "r")
	require.NoError(t, err)
	assert.Equal(t, domain.PlaybackState{IsPlaying: true, CurrentTime: 8}, info.State)
}

func TestServiceWithoutBroker(t *testing.T) {
	clock := clockwork.NewFakeClock()
	relay := inmemory.NewRelay(4)
	registry := roominmemory.NewRegistry(roominmemory.Config{Clock: clock, Subscribers: relay})
	svc := NewService(registry, relay, nil, clock, 0)

	require.NoError(t, svc.Broadcast(context.Background(), &BroadcastParams{RoomID: "r", Frame: []byte(`{"type":"pause","time":1}`)}))
	assert.Equal(t, DefaultMembersLimit, svc.membersLimit)
}
