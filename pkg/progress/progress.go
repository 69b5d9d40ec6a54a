// Package progress defines the observer callback shared by the uploader
// and downloader tails of the pipeline, plus a couple of small adapters
// around it (console printer, rate-limited wrapper).
package progress

import (
	"fmt"
	"sync"
	"time"
)

// Event is delivered to an optional observer as bytes move through the
// uploader or downloader tail of a chain. Name is the logical stream label
// passed at construction time, Part is the upload part index (always 0 for
// downloads), and Pos/Total are cumulative byte counts with Pos <= Total.
type Event struct {
	Name  string
	Part  int
	Pos   int64
	Total int64
}

// Func receives Event notifications. It is invoked synchronously inside
// whichever goroutine produced the progress, so it may be called from
// several goroutines over time — the uploader's tasks each report their
// own body's progress. The uploader and downloader wrap it in Synced, so
// their calls never overlap.
type Func func(ev Event)

// Synced wraps a Func so the caller does not have to reason about
// concurrent invocation themselves; it serializes calls behind a mutex held
// only for the duration of one callback, matching the "progress observer
// is shared across upload tasks" requirement.
func Synced(f Func) Func {
	if f == nil {
		return nil
	}
	var mu sync.Mutex
	return func(ev Event) {
		mu.Lock()
		defer mu.Unlock()
		f(ev)
	}
}

// Console returns a Func that prints one line per call. Useful for example
// drivers and tests; production callers normally wrap a real UI or metrics
// sink instead.
func Console(prefix string) Func {
	return func(ev Event) {
		pct := 0.0
		if ev.Total > 0 {
			pct = float64(ev.Pos) / float64(ev.Total) * 100
		}
		fmt.Printf("%s %s part=%d %d/%d (%.1f%%)\n", prefix, ev.Name, ev.Part, ev.Pos, ev.Total, pct)
	}
}

// Throttled wraps f so it fires at most once per interval per (name, part)
// pair, always letting through the final call where Pos == Total so
// completion is never swallowed.
func Throttled(f Func, interval time.Duration) Func {
	if f == nil {
		return nil
	}
	type key struct {
		name string
		part int
	}
	last := map[key]time.Time{}
	var mu sync.Mutex
	return func(ev Event) {
		mu.Lock()
		k := key{ev.Name, ev.Part}
		now := time.Now()
		fire := ev.Pos >= ev.Total || now.Sub(last[k]) >= interval
		if fire {
			last[k] = now
		}
		mu.Unlock()
		if fire {
			f(ev)
		}
	}
}
