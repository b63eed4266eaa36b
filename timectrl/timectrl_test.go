package timectrl

import (
	"context"
	"testing"
	"time"
)

func TestTimeControllerSetTime(t *testing.T) {
	start := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	tc := NewTimeController(start, time.Second, RealTime)

	newNow := start.Add(42 * time.Second)
	tc.SetTime(newNow)

	if got := tc.Now(); !got.Equal(newNow) {
		t.Fatalf("Now() = %v, want %v", got, newNow)
	}
}

func TestTimeControllerStartUpdatesNow(t *testing.T) {
	start := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	tc := NewTimeController(start, 5*time.Millisecond, Accelerated)

	done := tc.Start(context.Background(), 15*time.Millisecond)
	<-done

	expected := start.Add(15 * time.Millisecond)
	if got := tc.Now(); !got.Equal(expected) {
		t.Fatalf("Now() = %v, want %v", got, expected)
	}
}

func TestTimeControllerStartStopsOnCancel(t *testing.T) {
	start := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	tc := NewTimeController(start, 5*time.Millisecond, RealTime)

	ctx, cancel := context.WithCancel(context.Background())
	done := tc.Start(ctx, 0)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("controller did not stop after cancellation")
	}
}

func TestAfterFuncFiresOnceDue(t *testing.T) {
	start := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	tc := NewTimeController(start, 100*time.Millisecond, Accelerated)

	fired := 0
	tc.AfterFunc(250*time.Millisecond, func() { fired++ })

	tc.Step()
	tc.Step()
	if fired != 0 {
		t.Fatalf("timer fired early after 200ms")
	}
	tc.Step()
	if fired != 1 {
		t.Fatalf("fired = %d after 300ms, want 1", fired)
	}
	tc.Step()
	if fired != 1 {
		t.Fatalf("one-shot timer fired again: %d", fired)
	}
	if n := tc.Pending(); n != 0 {
		t.Fatalf("Pending() = %d, want 0", n)
	}
}

func TestAfterFuncCancel(t *testing.T) {
	tc := NewTimeController(time.Unix(0, 0), time.Second, Accelerated)

	fired := false
	cancel := tc.AfterFunc(time.Second, func() { fired = true })
	cancel()
	tc.Step()

	if fired {
		t.Fatalf("cancelled timer fired")
	}
}

func TestTimersFireBeforeListenersAndMayReschedule(t *testing.T) {
	tc := NewTimeController(time.Unix(0, 0), time.Second, Accelerated)

	var order []string
	tc.AddListener(func(time.Time) { order = append(order, "listener") })
	tc.AfterFunc(time.Second, func() {
		order = append(order, "timer")
		tc.AfterFunc(time.Second, func() { order = append(order, "rescheduled") })
	})

	tc.Step()
	tc.Step()

	want := []string{"timer", "listener", "rescheduled", "listener"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestAfterDeliversSimTime(t *testing.T) {
	start := time.Unix(0, 0)
	tc := NewTimeController(start, time.Second, Accelerated)

	ch := tc.After(2 * time.Second)
	tc.Step()
	select {
	case <-ch:
		t.Fatalf("After fired early")
	default:
	}
	tc.Step()
	select {
	case got := <-ch:
		if !got.Equal(start.Add(2 * time.Second)) {
			t.Fatalf("After delivered %v, want %v", got, start.Add(2*time.Second))
		}
	default:
		t.Fatalf("After did not fire at its deadline")
	}
}

func TestAdvanceUsesExplicitFrameLength(t *testing.T) {
	start := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	tc := NewTimeController(start, time.Second, Accelerated)

	fired := false
	tc.AfterFunc(30*time.Millisecond, func() { fired = true })

	tc.Advance(20 * time.Millisecond)
	if fired {
		t.Fatalf("timer fired early")
	}
	if got := tc.Advance(20 * time.Millisecond); !got.Equal(start.Add(40 * time.Millisecond)) {
		t.Fatalf("Advance returned %v", got)
	}
	if !fired {
		t.Fatalf("timer did not fire once due")
	}
}
