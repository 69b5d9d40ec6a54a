package progress

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSyncedSerializesConcurrentCalls(t *testing.T) {
	var active int32
	var maxActive int32
	f := Synced(func(ev Event) {
		n := atomic.AddInt32(&active, 1)
		if n > atomic.LoadInt32(&maxActive) {
			atomic.StoreInt32(&maxActive, n)
		}
		time.Sleep(time.Millisecond)
		atomic.AddInt32(&active, -1)
	})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			f(Event{Name: "x", Pos: int64(i), Total: 20})
		}(i)
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxActive, "Synced must never allow two callback invocations to overlap")
}

func TestSyncedNilIsNil(t *testing.T) {
	assert.Nil(t, Synced(nil))
}

func TestThrottledAlwaysFiresOnCompletion(t *testing.T) {
	var events []Event
	f := Throttled(func(ev Event) { events = append(events, ev) }, time.Hour)

	f(Event{Name: "a", Pos: 1, Total: 100})
	f(Event{Name: "a", Pos: 2, Total: 100}) // suppressed, inside the interval
	f(Event{Name: "a", Pos: 100, Total: 100})

	assert.Len(t, events, 2, "first call and the Pos==Total completion call must both fire")
	assert.Equal(t, int64(1), events[0].Pos)
	assert.Equal(t, int64(100), events[1].Pos)
}

func TestThrottledNilIsNil(t *testing.T) {
	assert.Nil(t, Throttled(nil, time.Second))
}
