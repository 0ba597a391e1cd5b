// File: internal/concurrency/timewheel.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Single-owner hashed timing wheel used by every reactor for idle-connection
// eviction. Not safe for concurrent use: only the goroutine that owns the
// reactor may touch its wheel.

package concurrency

import (
	"container/list"
	"time"
)

// TimerID is a stable handle to a timer living inside a TimeWheel.
// Handles are never reused; the zero value refers to no timer.
type TimerID uint64

type wheelTimer struct {
	id     TimerID
	cycles int // full revolutions left before firing
	slot   int
	fn     func()
	elem   *list.Element
}

// TimeWheel buckets timers into a fixed ring of slots visited one per Tick.
type TimeWheel struct {
	slots    []*list.List
	interval time.Duration
	current  int
	nextID   TimerID
	timers   map[TimerID]*wheelTimer
}

// NewTimeWheel creates a wheel with the given slot count and tick interval.
func NewTimeWheel(slots int, interval time.Duration) *TimeWheel {
	if slots <= 0 {
		slots = 60
	}
	if interval <= 0 {
		interval = time.Second
	}
	w := &TimeWheel{
		slots:    make([]*list.List, slots),
		interval: interval,
		timers:   make(map[TimerID]*wheelTimer),
	}
	for i := range w.slots {
		w.slots[i] = list.New()
	}
	return w
}

// Interval returns the tick interval.
func (w *TimeWheel) Interval() time.Duration { return w.interval }

// Len returns the number of pending timers.
func (w *TimeWheel) Len() int { return len(w.timers) }

// Pending reports whether id refers to a timer that has neither fired nor
// been cancelled.
func (w *TimeWheel) Pending(id TimerID) bool {
	_, ok := w.timers[id]
	return ok
}

// position converts a timeout into (cycles, slot) relative to the cursor.
// A timeout shorter than one interval still takes one full tick.
func (w *TimeWheel) position(timeout time.Duration) (int, int, error) {
	if timeout < 0 {
		return 0, 0, ErrInvalidTimeout
	}
	ticks := int(timeout / w.interval)
	if ticks < 1 {
		ticks = 1
	}
	n := len(w.slots)
	return ticks / n, (w.current + ticks%n) % n, nil
}

// Add schedules fn to run after timeout and returns its handle.
func (w *TimeWheel) Add(timeout time.Duration, fn func()) (TimerID, error) {
	cycles, slot, err := w.position(timeout)
	if err != nil {
		return 0, err
	}
	w.nextID++
	t := &wheelTimer{id: w.nextID, cycles: cycles, slot: slot, fn: fn}
	t.elem = w.slots[slot].PushBack(t)
	w.timers[t.id] = t
	return t.id, nil
}

// Cancel removes a pending timer. It returns false when the timer already
// fired or was cancelled before.
func (w *TimeWheel) Cancel(id TimerID) bool {
	t, ok := w.timers[id]
	if !ok {
		return false
	}
	w.slots[t.slot].Remove(t.elem)
	delete(w.timers, id)
	t.elem = nil
	return true
}

// Refresh moves a pending timer so that it fires timeout from now. The
// handle stays valid. It returns false for unknown or fired timers and for
// negative timeouts.
func (w *TimeWheel) Refresh(id TimerID, timeout time.Duration) bool {
	t, ok := w.timers[id]
	if !ok {
		return false
	}
	cycles, slot, err := w.position(timeout)
	if err != nil {
		return false
	}
	w.slots[t.slot].Remove(t.elem)
	t.cycles = cycles
	t.slot = slot
	t.elem = w.slots[slot].PushBack(t)
	return true
}

// Tick processes the slot under the cursor and advances the cursor by one.
// Timers with cycles left are decremented in place; the rest are unlinked
// and their callbacks run in insertion order once the cursor has moved, so a
// callback may cancel, refresh or add timers freely.
func (w *TimeWheel) Tick() {
	slot := w.slots[w.current]
	var due []*wheelTimer
	for e := slot.Front(); e != nil; {
		next := e.Next()
		t := e.Value.(*wheelTimer)
		if t.cycles > 0 {
			t.cycles--
		} else {
			slot.Remove(e)
			delete(w.timers, t.id)
			t.elem = nil
			due = append(due, t)
		}
		e = next
	}
	w.current = (w.current + 1) % len(w.slots)
	for _, t := range due {
		if t.fn != nil {
			t.fn()
		}
	}
}
