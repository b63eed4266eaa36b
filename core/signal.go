package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/signalsfoundry/traffic-simulator/internal/logging"
	"github.com/signalsfoundry/traffic-simulator/model"
)

// ErrTooManySignalGroups indicates a signalised junction with more incident
// roads than a coordinator can alternate between.
var ErrTooManySignalGroups = errors.New("too many signal groups")

// MaxSignalGroups bounds the roads a single coordinator controls.
const MaxSignalGroups = 4

// DefaultYellowTime is how long the yellow phase lasts when unset.
const DefaultYellowTime = 2 * time.Second

// Timer schedules one-shot callbacks in simulation time.
type Timer interface {
	AfterFunc(d time.Duration, fn func()) (cancel func())
}

// TrafficLight is a light at one end of a road. Roads carry one latent
// light per end; only lights facing a signalised junction are activated.
type TrafficLight struct {
	color  model.LightColor
	active bool
}

func newTrafficLight() *TrafficLight {
	return &TrafficLight{color: model.LightRed}
}

// Color returns the displayed aspect.
func (l *TrafficLight) Color() model.LightColor { return l.color }

// Active reports whether a coordinator has taken control of the light.
func (l *TrafficLight) Active() bool { return l.active }

// Pattern selects which half of a coordinator's lights shows green.
type Pattern int

const (
	// PatternEven makes lights at even positions green.
	PatternEven Pattern = iota
	// PatternOdd makes lights at odd positions green.
	PatternOdd
)

func (p Pattern) String() string {
	if p == PatternOdd {
		return "odd"
	}
	return "even"
}

// Swap returns the other pattern.
func (p Pattern) Swap() Pattern {
	if p == PatternOdd {
		return PatternEven
	}
	return PatternOdd
}

// SignalState is the coordinator automaton state.
type SignalState int

const (
	Still SignalState = iota
	YellowChanging
)

func (s SignalState) String() string {
	if s == YellowChanging {
		return "yellow_changing"
	}
	return "still"
}

// SignalConfig configures a coordinator.
type SignalConfig struct {
	InitialPattern Pattern
	YellowTime     time.Duration
}

// SignalCoordinator alternates green between the odd and even positioned
// roads of one junction, inserting a yellow phase on every change.
type SignalCoordinator struct {
	cfg     SignalConfig
	clock   Timer
	log     logging.Logger
	lights  []*TrafficLight
	roads   []model.RoadID
	pattern Pattern
	state   SignalState
}

// NewSignalCoordinator returns an unregistered coordinator.
func NewSignalCoordinator(cfg SignalConfig, clock Timer, log logging.Logger) *SignalCoordinator {
	if cfg.YellowTime <= 0 {
		cfg.YellowTime = DefaultYellowTime
	}
	if log == nil {
		log = logging.Noop()
	}
	return &SignalCoordinator{
		cfg:     cfg,
		clock:   clock,
		log:     log,
		pattern: cfg.InitialPattern,
	}
}

// Register takes control of the light facing j on each of its roads, in the
// junction's angular order, and seeds colors from the initial pattern.
func (c *SignalCoordinator) Register(n *Network, j *Junction) error {
	roads := j.Roads()
	if len(roads) > MaxSignalGroups {
		return fmt.Errorf("%w: %d roads", ErrTooManySignalGroups, len(roads))
	}
	c.lights = c.lights[:0]
	c.roads = c.roads[:0]
	for _, id := range roads {
		edge, ok := j.EdgeOf(id)
		if !ok {
			return fmt.Errorf("road %v not registered at junction %q", id, j.Name)
		}
		c.lights = append(c.lights, n.Road(id).activateLight(edge))
		c.roads = append(c.roads, id)
	}
	c.apply()
	return nil
}

// State returns the automaton state.
func (c *SignalCoordinator) State() SignalState { return c.state }

// Pattern returns the current green pattern.
func (c *SignalCoordinator) Pattern() Pattern { return c.pattern }

// Colors returns the light colors in registration order.
func (c *SignalCoordinator) Colors() []model.LightColor {
	out := make([]model.LightColor, len(c.lights))
	for i, l := range c.lights {
		out[i] = l.color
	}
	return out
}

// ToggleLights starts a change of the green pattern. It returns false and
// does nothing when a change is already in progress.
func (c *SignalCoordinator) ToggleLights() bool {
	if c.state == YellowChanging {
		return false
	}
	c.state = YellowChanging
	for i, l := range c.lights {
		if c.isGreen(i) {
			l.color = model.LightYellow
		} else {
			l.color = model.LightRed
		}
	}
	c.log.Debug(context.Background(), "signal change started", logging.Stringer("from", c.pattern))
	c.clock.AfterFunc(c.cfg.YellowTime, c.finishChange)
	return true
}

func (c *SignalCoordinator) finishChange() {
	c.pattern = c.pattern.Swap()
	c.apply()
	c.state = Still
	c.log.Debug(context.Background(), "signal change finished", logging.Stringer("green", c.pattern))
}

func (c *SignalCoordinator) isGreen(i int) bool {
	if c.pattern == PatternEven {
		return i%2 == 0
	}
	return i%2 == 1
}

func (c *SignalCoordinator) apply() {
	for i, l := range c.lights {
		if c.isGreen(i) {
			l.color = model.LightGreen
		} else {
			l.color = model.LightRed
		}
	}
}
