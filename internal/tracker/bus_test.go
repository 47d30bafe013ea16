package tracker

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBus_PublishSubscribe(t *testing.T) {
	bus := NewBus(testLogger())
	defer bus.Close()

	ch := bus.Subscribe(10)
	bus.Publish(Update{Type: UpdateAdded, View: View{ID: "a"}})

	select {
	case u := <-ch:
		assert.Equal(t, UpdateAdded, u.Type)
		assert.Equal(t, "a", u.View.ID)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for update")
	}
}

func TestBus_SubscribeJob(t *testing.T) {
	bus := NewBus(testLogger())
	defer bus.Close()

	ch := bus.SubscribeJob("b", 10)
	bus.Publish(Update{Type: UpdateUpdated, View: View{ID: "a"}})
	bus.Publish(Update{Type: UpdateUpdated, View: View{ID: "b"}})

	select {
	case u := <-ch:
		assert.Equal(t, "b", u.View.ID)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for update")
	}
	assert.Empty(t, ch)
}

func TestBus_FullSubscriberDropsInsteadOfBlocking(t *testing.T) {
	bus := NewBus(testLogger())
	defer bus.Close()

	ch := bus.Subscribe(1)
	bus.Publish(Update{View: View{ID: "1"}})
	bus.Publish(Update{View: View{ID: "2"}}) // dropped

	u := <-ch
	assert.Equal(t, "1", u.View.ID)
	assert.Empty(t, ch)
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus(testLogger())
	defer bus.Close()

	all := bus.Subscribe(10)
	job := bus.SubscribeJob("a", 10)
	bus.Unsubscribe(all)
	bus.Unsubscribe(job)

	_, ok := <-all
	assert.False(t, ok, "channel should be closed")
	_, ok = <-job
	assert.False(t, ok, "channel should be closed")

	// Publishing after unsubscribe must not panic.
	bus.Publish(Update{View: View{ID: "a"}})
}

func TestBus_Close(t *testing.T) {
	bus := NewBus(testLogger())
	ch := bus.Subscribe(10)

	bus.Close()
	bus.Close()

	_, ok := <-ch
	assert.False(t, ok)

	bus.Publish(Update{View: View{ID: "a"}})
	late := bus.Subscribe(1)
	_, ok = <-late
	assert.False(t, ok, "subscribing to a closed bus yields a closed channel")
}

func TestBus_ConcurrentPublishAndClose(t *testing.T) {
	bus := NewBus(testLogger())
	ch := bus.Subscribe(100)

	var wg sync.WaitGroup
	for i := range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				bus.Publish(Update{View: View{ID: string(rune('a' + i))}})
			}
		}()
	}
	bus.Close()
	wg.Wait()

	n := 0
	for range ch {
		n++
	}
	assert.LessOrEqual(t, n, 100)
}
