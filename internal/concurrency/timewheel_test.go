package concurrency_test

import (
	"math/rand"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/momentics/hioload-httpd/internal/concurrency"
)

// ticksUntilFire advances the wheel until fired flips and returns the tick count.
func ticksUntilFire(t *testing.T, w *concurrency.TimeWheel, fired *bool, limit int) int {
	t.Helper()
	for i := 1; i <= limit; i++ {
		w.Tick()
		if *fired {
			return i
		}
	}
	t.Fatalf("timer did not fire within %d ticks", limit)
	return 0
}

func TestTimeWheelFiresWithinOneInterval(t *testing.T) {
	const slots = 8
	interval := time.Second
	for _, timeout := range []time.Duration{0, 300 * time.Millisecond, time.Second, 1500 * time.Millisecond, 3 * time.Second, 8 * time.Second, 20 * time.Second} {
		w := concurrency.NewTimeWheel(slots, interval)
		// Move the cursor somewhere arbitrary first.
		for i := 0; i < 5; i++ {
			w.Tick()
		}
		fired := false
		if _, err := w.Add(timeout, func() { fired = true }); err != nil {
			t.Fatal(err)
		}
		want := int(timeout / interval)
		if want < 1 {
			want = 1
		}
		// The first tick may come right after Add, hence want+1.
		got := ticksUntilFire(t, w, &fired, 100)
		if got != want+1 {
			t.Errorf("timeout %v: fired after %d ticks, want %d", timeout, got, want+1)
		}
	}
}

func TestTimeWheelRejectsNegativeTimeout(t *testing.T) {
	w := concurrency.NewTimeWheel(4, time.Second)
	if _, err := w.Add(-time.Second, func() {}); !errors.Is(err, concurrency.ErrInvalidTimeout) {
		t.Fatalf("expected ErrInvalidTimeout, got %v", err)
	}
}

func TestTimeWheelCancel(t *testing.T) {
	w := concurrency.NewTimeWheel(4, time.Second)
	id, _ := w.Add(2*time.Second, func() { t.Error("cancelled timer fired") })
	if !w.Cancel(id) {
		t.Fatal("first cancel should succeed")
	}
	if w.Cancel(id) {
		t.Fatal("second cancel must be a no-op")
	}
	for i := 0; i < 12; i++ {
		w.Tick()
	}
	if w.Len() != 0 {
		t.Fatalf("expected empty wheel, got %d", w.Len())
	}
}

func TestTimeWheelRefreshResetsDeadline(t *testing.T) {
	w := concurrency.NewTimeWheel(4, time.Second)
	fired := false
	id, _ := w.Add(3*time.Second, func() { fired = true })
	// Refresh just before each deadline; the timer must never fire on a stale slot.
	for round := 0; round < 6; round++ {
		w.Tick()
		w.Tick()
		if fired {
			t.Fatalf("fired on stale deadline in round %d", round)
		}
		if !w.Refresh(id, 3*time.Second) {
			t.Fatal("refresh of pending timer failed")
		}
	}
	got := ticksUntilFire(t, w, &fired, 20)
	if got != 4 {
		t.Fatalf("fired %d ticks after last refresh, want 4", got)
	}
	if w.Refresh(id, time.Second) {
		t.Fatal("a fired timer cannot be refreshed")
	}
}

func TestTimeWheelInsertionOrderWithinSlot(t *testing.T) {
	w := concurrency.NewTimeWheel(4, time.Second)
	var order []int
	for i := 0; i < 5; i++ {
		i := i
		w.Add(time.Second, func() { order = append(order, i) })
	}
	w.Tick()
	w.Tick()
	if len(order) != 5 {
		t.Fatalf("expected 5 firings, got %d", len(order))
	}
	for i, v := range order {
		if v != i {
			t.Fatalf("firing order %v is not insertion order", order)
		}
	}
}

func TestTimeWheelCallbackMayCancelSibling(t *testing.T) {
	w := concurrency.NewTimeWheel(4, time.Second)
	var second concurrency.TimerID
	secondFired := false
	w.Add(time.Second, func() { w.Cancel(second) })
	second, _ = w.Add(time.Second, func() { secondFired = true })
	w.Tick()
	w.Tick()
	// Both were due in the same slot; the second is already unlinked, so the
	// cancel is a no-op and it still fires exactly once.
	if !secondFired {
		t.Fatal("due sibling should still fire")
	}
	if w.Len() != 0 {
		t.Fatalf("expected empty wheel, got %d", w.Len())
	}
}

func TestTimeWheelRandomizedDeadlines(t *testing.T) {
	const slots = 16
	rng := rand.New(rand.NewSource(7))
	w := concurrency.NewTimeWheel(slots, time.Second)
	type rec struct {
		addedAt int
		ticks   int
		firedAt int
	}
	recs := make([]*rec, 200)
	now := 0
	for i := range recs {
		r := &rec{addedAt: now, ticks: 1 + rng.Intn(70), firedAt: -1}
		recs[i] = r
		w.Add(time.Duration(r.ticks)*time.Second, func() { r.firedAt = now })
		if rng.Intn(3) == 0 {
			now++
			w.Tick()
		}
	}
	for i := 0; i < 200; i++ {
		now++
		w.Tick()
	}
	for i, r := range recs {
		if r.firedAt < 0 {
			t.Fatalf("timer %d never fired", i)
		}
		if elapsed := r.firedAt - r.addedAt; elapsed != r.ticks+1 {
			t.Fatalf("timer %d: fired after %d ticks, want %d", i, elapsed, r.ticks+1)
		}
	}
}
