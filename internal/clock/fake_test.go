package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestFake_TimerFiresOnAdvance(t *testing.T) {
	c := NewFake(epoch)
	timer := c.NewTimer(time.Second)

	c.Advance(999 * time.Millisecond)
	select {
	case <-timer.C():
		t.Fatal("timer fired early")
	default:
	}

	c.Advance(time.Millisecond)
	select {
	case at := <-timer.C():
		assert.Equal(t, epoch.Add(time.Second), at)
	default:
		t.Fatal("timer did not fire")
	}
	assert.Equal(t, 0, c.Pending())
}

func TestFake_StopPreventsFiring(t *testing.T) {
	c := NewFake(epoch)
	fired := false
	timer := c.AfterFunc(time.Second, func() { fired = true })

	assert.True(t, timer.Stop())
	assert.False(t, timer.Stop(), "second stop reports already stopped")

	c.Advance(time.Minute)
	assert.False(t, fired)
}

func TestFake_AfterFuncOrder(t *testing.T) {
	c := NewFake(epoch)
	var order []int
	c.AfterFunc(3*time.Second, func() { order = append(order, 3) })
	c.AfterFunc(time.Second, func() { order = append(order, 1) })
	c.AfterFunc(2*time.Second, func() { order = append(order, 2) })

	c.Advance(5 * time.Second)
	assert.Equal(t, []int{1, 2, 3}, order)
	assert.Equal(t, epoch.Add(5*time.Second), c.Now())
}

func TestFake_AwaitTimers(t *testing.T) {
	c := NewFake(epoch)
	go func() {
		time.Sleep(5 * time.Millisecond)
		c.NewTimer(time.Second)
	}()
	require.True(t, c.AwaitTimers(1, time.Second))
	assert.False(t, c.AwaitTimers(2, 10*time.Millisecond))
}

func TestReal(t *testing.T) {
	c := Real()
	timer := c.NewTimer(time.Millisecond)
	select {
	case <-timer.C():
	case <-time.After(time.Second):
		t.Fatal("real timer did not fire")
	}
	assert.False(t, c.Now().IsZero())
}
