package inmemory

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishReachesEverySubscriberOfTheRoom(t *testing.T) {
	relay := NewRelay(4)
	a := relay.Subscribe("r1", "a")
	b := relay.Subscribe("r1", "b")
	other := relay.Subscribe("r2", "c")

	delivered, dropped := relay.Publish("r1", []byte(`{"type":"play","time":1}`))
	assert.Equal(t, 2, delivered)
	assert.Equal(t, 0, dropped)

	assert.Equal(t, `{"type":"play","time":1}`, string(<-a.C()))
	assert.Equal(t, `{"type":"play","time":1}`, string(<-b.C()))
	assert.Len(t, other.C(), 0)
}

func TestPublishPreservesOrderPerSubscriber(t *testing.T) {
	relay := NewRelay(8)
	sub := relay.Subscribe("r", "a")

	for _, f := range []string{"1", "2", "3"} {
		relay.Publish("r", []byte(f))
	}

	assert.Equal(t, "1", string(<-sub.C()))
	assert.Equal(t, "2", string(<-sub.C()))
	assert.Equal(t, "3", string(<-sub.C()))
}

func TestPublishDropsForSlowSubscriberOnly(t *testing.T) {
	relay := NewRelay(1)
	slow := relay.Subscribe("r", "slow")
	fast := relay.Subscribe("r", "fast")

	relay.Publish("r", []byte("1"))
	<-fast.C()

	delivered, dropped := relay.Publish("r", []byte("2"))
	assert.Equal(t, 1, delivered)
	assert.Equal(t, 1, dropped)

	assert.Equal(t, "1", string(<-slow.C()))
	assert.Equal(t, "2", string(<-fast.C()))
}

func TestPublishToEmptyRoom(t *testing.T) {
	relay := NewRelay(1)
	delivered, dropped := relay.Publish("nobody", []byte("x"))
	assert.Zero(t, delivered)
	assert.Zero(t, dropped)
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	relay := NewRelay(1)
	sub := relay.Subscribe("r", "a")

	assert.True(t, relay.Unsubscribe(sub))
	assert.False(t, relay.Unsubscribe(sub))

	_, open := <-sub.C()
	assert.False(t, open)
	assert.Zero(t, relay.Count("r"))
	assert.False(t, relay.Send(sub, []byte("x")))
}

func TestCounts(t *testing.T) {
	relay := NewRelay(1)
	a1 := relay.Subscribe("r", "a")
	relay.Subscribe("r", "a")
	relay.Subscribe("r", "b")
	relay.Subscribe("s", "a")

	assert.Equal(t, 3, relay.Count("r"))
	assert.Equal(t, 2, relay.CountClient("r", "a"))
	assert.Equal(t, 1, relay.CountClient("s", "a"))
	assert.Equal(t, 4, relay.Total())

	relay.Unsubscribe(a1)
	assert.Equal(t, 1, relay.CountClient("r", "a"))
}

func TestSend(t *testing.T) {
	relay := NewRelay(1)
	sub := relay.Subscribe("r", "a")

	require.True(t, relay.Send(sub, []byte("hello")))
	assert.False(t, relay.Send(sub, []byte("overflow")))
	assert.Equal(t, "hello", string(<-sub.C()))
}

func TestConcurrentPublishAndUnsubscribe(t *testing.T) {
	relay := NewRelay(16)
	subs := make([]*Subscription, 16)
	for i := range subs {
		subs[i] = relay.Subscribe("r", "c")
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for range 1000 {
			relay.Publish("r", []byte("x"))
		}
	}()
	go func() {
		defer wg.Done()
		for _, s := range subs {
			relay.Unsubscribe(s)
		}
	}()
	wg.Wait()

	assert.Zero(t, relay.Count("r"))
}
