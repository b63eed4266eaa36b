// Package scoring keeps the game score: every finished trip adds points
// for the time lost against the desired speed, and the final total maps
// onto a letter grade.
package scoring

import (
	"math"
	"sync"
)

// DefaultExponent is applied to the speed deficit of each trip.
const DefaultExponent = 2.0

// Grade boundaries on the final total.
const (
	GradeBThreshold = 500
	GradeAThreshold = 1000
)

// EventType indicates what kind of change happened on the scoreboard.
type EventType int

const (
	// EventTripScored follows every arrival.
	EventTripScored EventType = iota
	// EventBonusAdded follows AddBonus.
	EventBonusAdded
)

func (t EventType) String() string {
	if t == EventBonusAdded {
		return "bonus_added"
	}
	return "trip_scored"
}

// Event is emitted to subscribers after each score change.
type Event struct {
	Type   EventType
	Points int
	Score  int
	Bonus  int
	Trips  int
}

// Scoreboard is a thread-safe score ledger. It implements
// vehicle.ArrivalReporter.
type Scoreboard struct {
	mu sync.RWMutex

	exponent float64
	score    int
	bonus    int
	trips    int
	speedSum float64

	subs   map[int]func(Event)
	nextID int
}

// Option customises a Scoreboard.
type Option func(*Scoreboard)

// WithExponent overrides DefaultExponent.
func WithExponent(e float64) Option {
	return func(s *Scoreboard) {
		if e > 0 {
			s.exponent = e
		}
	}
}

// NewScoreboard returns an empty scoreboard.
func NewScoreboard(opts ...Option) *Scoreboard {
	s := &Scoreboard{
		exponent: DefaultExponent,
		subs:     make(map[int]func(Event)),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Points returns the score for one trip: the speed deficit raised to the
// exponent, truncated. Trips at or above the desired speed earn nothing.
func (s *Scoreboard) Points(averageSpeed, desiredSpeed float64) int {
	deficit := math.Max(0, desiredSpeed-averageSpeed)
	return int(math.Pow(deficit, s.exponent))
}

// OnArrived scores a finished trip and notifies subscribers.
func (s *Scoreboard) OnArrived(averageSpeed, desiredSpeed float64) {
	points := s.Points(averageSpeed, desiredSpeed)
	s.mu.Lock()
	s.score += points
	s.trips++
	s.speedSum += averageSpeed
	ev := s.eventLocked(EventTripScored, points)
	subs := s.subscribersLocked()
	s.mu.Unlock()

	for _, sub := range subs {
		sub(ev)
	}
}

// AddBonus adds points outside the per-trip formula.
func (s *Scoreboard) AddBonus(points int) {
	s.mu.Lock()
	s.bonus += points
	ev := s.eventLocked(EventBonusAdded, points)
	subs := s.subscribersLocked()
	s.mu.Unlock()

	for _, sub := range subs {
		sub(ev)
	}
}

// Score returns the trip score without bonus.
func (s *Scoreboard) Score() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.score
}

// Bonus returns the accumulated bonus.
func (s *Scoreboard) Bonus() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bonus
}

// Total returns score plus bonus.
func (s *Scoreboard) Total() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.score + s.bonus
}

// Trips returns the number of scored arrivals.
func (s *Scoreboard) Trips() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.trips
}

// AverageSpeed returns the mean trip speed, or 0 before the first arrival.
func (s *Scoreboard) AverageSpeed() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.trips == 0 {
		return 0
	}
	return s.speedSum / float64(s.trips)
}

// Grade maps the current total onto a letter.
func (s *Scoreboard) Grade() string {
	return Grade(s.Total())
}

// Grade maps a total onto a letter grade.
func Grade(total int) string {
	switch {
	case total < GradeBThreshold:
		return "C"
	case total < GradeAThreshold:
		return "B"
	default:
		return "A"
	}
}

// Subscribe registers a callback for score events. It returns an
// unsubscribe function.
func (s *Scoreboard) Subscribe(fn func(Event)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

func (s *Scoreboard) eventLocked(t EventType, points int) Event {
	return Event{Type: t, Points: points, Score: s.score, Bonus: s.bonus, Trips: s.trips}
}

func (s *Scoreboard) subscribersLocked() []func(Event) {
	out := make([]func(Event), 0, len(s.subs))
	for id := 0; id < s.nextID; id++ {
		if fn, ok := s.subs[id]; ok {
			out = append(out, fn)
		}
	}
	return out
}
