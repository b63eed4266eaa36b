package scoring

import (
	"sync"
	"testing"
)

func TestPointsSquareTheSpeedDeficit(t *testing.T) {
	s := NewScoreboard()
	cases := []struct {
		average, desired float64
		want             int
	}{
		{10, 10, 0},
		{12, 10, 0},
		{7, 10, 9},
		{6.5, 10, 12}, // 12.25 truncated
		{0, 10, 100},
	}
	for _, tc := range cases {
		if got := s.Points(tc.average, tc.desired); got != tc.want {
			t.Fatalf("Points(%v, %v) = %d, want %d", tc.average, tc.desired, got, tc.want)
		}
	}

	cubed := NewScoreboard(WithExponent(3))
	if got := cubed.Points(8, 10); got != 8 {
		t.Fatalf("cubed Points = %d, want 8", got)
	}
}

func TestOnArrivedAccumulatesAndNotifies(t *testing.T) {
	s := NewScoreboard()
	var events []Event
	unsubscribe := s.Subscribe(func(e Event) { events = append(events, e) })

	s.OnArrived(5, 10)
	s.OnArrived(8, 10)
	s.AddBonus(7)

	if got := s.Score(); got != 29 {
		t.Fatalf("Score = %d, want 29", got)
	}
	if s.Bonus() != 7 || s.Total() != 36 || s.Trips() != 2 {
		t.Fatalf("bonus=%d total=%d trips=%d", s.Bonus(), s.Total(), s.Trips())
	}
	if got := s.AverageSpeed(); got != 6.5 {
		t.Fatalf("AverageSpeed = %v, want 6.5", got)
	}
	if len(events) != 3 {
		t.Fatalf("events = %d, want 3", len(events))
	}
	if events[1].Type != EventTripScored || events[1].Points != 4 || events[1].Score != 29 {
		t.Fatalf("second event = %+v", events[1])
	}
	if events[2].Type != EventBonusAdded || events[2].Bonus != 7 {
		t.Fatalf("bonus event = %+v", events[2])
	}

	unsubscribe()
	s.OnArrived(0, 10)
	if len(events) != 3 {
		t.Fatalf("unsubscribed callback still invoked")
	}
}

func TestGradeThresholds(t *testing.T) {
	cases := []struct {
		total int
		want  string
	}{
		{0, "C"},
		{499, "C"},
		{500, "B"},
		{999, "B"},
		{1000, "A"},
		{5000, "A"},
	}
	for _, tc := range cases {
		if got := Grade(tc.total); got != tc.want {
			t.Fatalf("Grade(%d) = %q, want %q", tc.total, got, tc.want)
		}
	}

	s := NewScoreboard()
	s.AddBonus(600)
	if s.Grade() != "B" {
		t.Fatalf("scoreboard grade = %q, want B", s.Grade())
	}
}

func TestScoreboardConcurrentArrivals(t *testing.T) {
	s := NewScoreboard()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			s.OnArrived(9, 10)
		}()
		go func() {
			defer wg.Done()
			_ = s.Total()
			_ = s.Grade()
		}()
	}
	wg.Wait()
	if s.Score() != 50 || s.Trips() != 50 {
		t.Fatalf("score=%d trips=%d, want 50/50", s.Score(), s.Trips())
	}
}
