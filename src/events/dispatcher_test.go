package events

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDispatcher() *Dispatcher[int] {
	return New[int](zerolog.Nop())
}

func TestListenerCountTracksOnOff(t *testing.T) {
	d := newTestDispatcher()
	fn := func(int) {}

	a := d.On("tick", fn)
	b := d.On("tick", fn)
	c := d.On("tick", fn)
	assert.Equal(t, 3, d.ListenerCount("tick"))

	assert.True(t, d.Off("tick", b))
	assert.Equal(t, 2, d.ListenerCount("tick"))

	assert.False(t, d.Off("tick", b), "second removal of the same handle is a no-op")
	assert.False(t, d.Off("other", a))
	assert.Equal(t, 2, d.ListenerCount("tick"))

	d.Off("tick", a)
	d.Off("tick", c)
	assert.Equal(t, 0, d.ListenerCount("tick"))
	assert.Empty(t, d.EventNames(), "empty event keys are pruned")
}

func TestSameFunctionTwiceRunsTwice(t *testing.T) {
	d := newTestDispatcher()
	var calls int
	fn := func(int) { calls++ }

	first := d.On("tick", fn)
	d.On("tick", fn)

	d.Emit("tick", 1)
	assert.Equal(t, 2, calls)

	d.Off("tick", first)
	d.Emit("tick", 1)
	assert.Equal(t, 3, calls)
}

func TestEmitOrderAndReturn(t *testing.T) {
	d := newTestDispatcher()
	var order []string

	assert.False(t, d.Emit("tick", 0))

	d.On("tick", func(int) { order = append(order, "a") })
	d.On("tick", func(int) { order = append(order, "b") })
	d.On("tick", func(v int) { order = append(order, "c") })

	assert.True(t, d.Emit("tick", 7))
	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestEmitPassesArgument(t *testing.T) {
	d := newTestDispatcher()
	var got int
	d.On("tick", func(v int) { got = v })
	d.Emit("tick", 42)
	assert.Equal(t, 42, got)
}

func TestListenerAddedDuringEmitWaitsForNextPass(t *testing.T) {
	d := newTestDispatcher()
	var late int
	var added bool

	d.On("tick", func(int) {
		if !added {
			added = true
			d.On("tick", func(int) { late++ })
		}
	})

	d.Emit("tick", 0)
	assert.Equal(t, 0, late, "listener registered mid-pass must not run in that pass")

	d.Emit("tick", 0)
	assert.Equal(t, 1, late)
}

func TestListenerRemovedDuringEmitDoesNotSkipOthers(t *testing.T) {
	d := newTestDispatcher()
	var order []string

	var second *Listener[int]
	d.On("tick", func(int) {
		order = append(order, "first")
		d.Off("tick", second)
	})
	second = d.On("tick", func(int) { order = append(order, "second") })
	d.On("tick", func(int) { order = append(order, "third") })

	d.Emit("tick", 0)
	assert.Equal(t, []string{"first", "second", "third"}, order)

	order = nil
	d.Emit("tick", 0)
	assert.Equal(t, []string{"first", "third"}, order)
}

func TestOnceFiresAtMostOnce(t *testing.T) {
	d := newTestDispatcher()
	var calls int
	d.Once("tick", func(int) { calls++ })
	require.Equal(t, 1, d.ListenerCount("tick"))

	for i := 0; i < 5; i++ {
		d.Emit("tick", i)
	}
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, d.ListenerCount("tick"))
}

func TestOnceCanBeRemovedBeforeFiring(t *testing.T) {
	d := newTestDispatcher()
	var calls int
	h := d.Once("tick", func(int) { calls++ })

	assert.True(t, d.Off("tick", h))
	d.Emit("tick", 0)
	assert.Equal(t, 0, calls)
}

func TestOffWithOtherEventLeavesOnceIntact(t *testing.T) {
	d := newTestDispatcher()
	var calls int
	h := d.Once("a", func(int) { calls++ })

	assert.False(t, d.Off("b", h))
	assert.Equal(t, 1, d.ListenerCount("a"))

	d.Emit("a", 0)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, d.ListenerCount("a"))
	assert.Empty(t, d.EventNames())
}

func TestOnceReentrantEmit(t *testing.T) {
	d := newTestDispatcher()
	var calls int
	d.Once("tick", func(int) {
		calls++
		d.Emit("tick", 0)
	})

	d.Emit("tick", 0)
	assert.Equal(t, 1, calls)
}

func TestOnceUnderConcurrentEmit(t *testing.T) {
	d := newTestDispatcher()
	var calls atomic.Int32
	d.Once("tick", func(int) { calls.Add(1) })

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.Emit("tick", 0)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), calls.Load())
}

func TestPanickingListenerIsIsolated(t *testing.T) {
	d := newTestDispatcher()
	var after bool

	d.On("tick", func(int) { panic("broken handler") })
	d.On("tick", func(int) { after = true })

	assert.NotPanics(t, func() { d.Emit("tick", 0) })
	assert.True(t, after)
}

func TestRemoveAllListeners(t *testing.T) {
	d := newTestDispatcher()
	fn := func(int) {}
	d.On("a", fn)
	d.On("b", fn)
	d.On("c", fn)

	d.RemoveAllListeners("a")
	assert.Equal(t, []string{"b", "c"}, d.EventNames())

	d.RemoveAllListeners()
	assert.Empty(t, d.EventNames())
	assert.False(t, d.Emit("b", 0))
}

func TestOffNilHandle(t *testing.T) {
	d := newTestDispatcher()
	assert.False(t, d.Off("tick", nil))
}
