package spawn

import (
	"time"
)

// Config controls how often vehicles enter the map.
type Config struct {
	// ExpectedPerSecond is the mean number of vehicles spawned per second
	// across the whole map.
	// Default: 1
	ExpectedPerSecond float64

	// Range is the half-width of the uniform band the per-second rate is
	// drawn from each frame.
	// Default: 0.2
	Range float64

	// Interval is the minimum time between two spawns at the same point.
	// Default: 1 second
	Interval time.Duration

	// NotSpawningDistance blocks a point while the last vehicle that entered
	// from it is this close to the entry.
	// Default: 1 metre
	NotSpawningDistance float64
}

// DefaultConfig returns a Config with the generator's usual cadence.
func DefaultConfig() Config {
	return Config{
		ExpectedPerSecond:   1,
		Range:               0.2,
		Interval:            time.Second,
		NotSpawningDistance: 1,
	}
}

// ApplyDefaults fills zero or negative fields from DefaultConfig. A zero
// Range is kept; it disables the random band.
func (c Config) ApplyDefaults() Config {
	def := DefaultConfig()
	if c.ExpectedPerSecond <= 0 {
		c.ExpectedPerSecond = def.ExpectedPerSecond
	}
	if c.Range < 0 {
		c.Range = def.Range
	}
	if c.Range > c.ExpectedPerSecond {
		c.Range = c.ExpectedPerSecond
	}
	if c.Interval <= 0 {
		c.Interval = def.Interval
	}
	if c.NotSpawningDistance < 0 {
		c.NotSpawningDistance = def.NotSpawningDistance
	}
	return c
}
