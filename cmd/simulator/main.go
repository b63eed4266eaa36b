package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"os"
	"os/signal"
	"time"

	"github.com/signalsfoundry/traffic-simulator/core"
	"github.com/signalsfoundry/traffic-simulator/internal/logging"
	"github.com/signalsfoundry/traffic-simulator/internal/scoring"
	"github.com/signalsfoundry/traffic-simulator/internal/sim/state"
	"github.com/signalsfoundry/traffic-simulator/internal/spawn"
	"github.com/signalsfoundry/traffic-simulator/internal/vehicle"
	"github.com/signalsfoundry/traffic-simulator/timectrl"
)

// Config holds the command line settings of a batch run.
type Config struct {
	Duration     time.Duration
	Tick         time.Duration
	Accelerated  bool
	MapPath      string
	ParamsPath   string
	Seed         int64
	SpawnRate    float64
	TogglePeriod time.Duration
}

// Result summarises a finished run.
type Result struct {
	Spawned int
	Arrived int
	Active  int
	Score   int
	Grade   string
	Elapsed time.Duration
}

func main() {
	cfg := Config{}
	flag.DurationVar(&cfg.Duration, "duration", 5*time.Minute, "total simulated duration")
	flag.DurationVar(&cfg.Tick, "tick", 20*time.Millisecond, "frame length")
	flag.BoolVar(&cfg.Accelerated, "accelerated", true, "run in accelerated mode (vs real-time)")
	flag.StringVar(&cfg.MapPath, "map", "configs/city.geojson", "GeoJSON map of junctions and roads")
	flag.StringVar(&cfg.ParamsPath, "params", "", "optional JSON file overriding vehicle parameters")
	flag.Int64Var(&cfg.Seed, "seed", 1, "random seed")
	flag.Float64Var(&cfg.SpawnRate, "spawn-rate", spawn.DefaultConfig().ExpectedPerSecond, "expected vehicles spawned per second")
	flag.DurationVar(&cfg.TogglePeriod, "toggle-period", 20*time.Second, "toggle every signal this often; 0 disables")
	flag.Parse()

	log := logging.NewFromEnv()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx, log = logging.WithRunLogger(ctx, log)

	res, err := run(ctx, cfg, log)
	if err != nil {
		log.Error(ctx, "simulation failed", logging.Err(err))
		os.Exit(1)
	}
	printResult(os.Stdout, res)
}

func run(ctx context.Context, cfg Config, log logging.Logger) (Result, error) {
	n, summary, err := loadMap(cfg.MapPath, log)
	if err != nil {
		return Result{}, err
	}
	log.Info(ctx, "loaded map",
		logging.String("path", cfg.MapPath),
		logging.Int("junctions", len(summary.JunctionNames)),
		logging.Int("roads", len(summary.RoadNames)),
		logging.Int("exits", summary.Exits),
		logging.Int("signals", summary.Signalized),
	)

	params, err := loadParams(cfg.ParamsPath)
	if err != nil {
		return Result{}, err
	}

	mode := timectrl.RealTime
	if cfg.Accelerated {
		mode = timectrl.Accelerated
	}
	tc := timectrl.NewTimeController(time.Unix(0, 0).UTC(), cfg.Tick, mode)
	board := scoring.NewScoreboard()

	sim, err := state.New(ctx, n,
		state.WithClock(tc),
		state.WithLogger(log),
		state.WithScorer(board),
		state.WithRand(rand.New(rand.NewSource(cfg.Seed))),
		state.WithVehicleConfig(params),
	)
	if err != nil {
		return Result{}, err
	}

	spawnCfg := spawn.DefaultConfig()
	spawnCfg.ExpectedPerSecond = cfg.SpawnRate
	spawner, err := spawn.New(sim,
		spawn.WithConfig(spawnCfg),
		spawn.WithRand(rand.New(rand.NewSource(cfg.Seed+1))),
		spawn.WithLogger(log),
	)
	if err != nil {
		return Result{}, err
	}
	toggler := state.NewToggler(sim, cfg.TogglePeriod)

	if err := sim.Attach(ctx); err != nil {
		return Result{}, err
	}
	tc.AddListener(func(time.Time) {
		spawner.Tick(ctx, cfg.Tick.Seconds())
		toggler.Advance(ctx, cfg.Tick)
	})

	log.Info(ctx, "starting simulation",
		logging.Duration("duration", cfg.Duration),
		logging.Duration("tick", cfg.Tick),
		logging.Stringer("mode", mode),
	)
	<-tc.Start(ctx, cfg.Duration)

	res := Result{
		Spawned: sim.Spawned(),
		Arrived: sim.Arrived(),
		Active:  sim.ActiveVehicles(),
		Score:   board.Total(),
		Grade:   board.Grade(),
		Elapsed: sim.Elapsed(),
	}
	log.Info(ctx, "simulation complete",
		logging.Int("spawned", res.Spawned),
		logging.Int("arrived", res.Arrived),
		logging.Int("score", res.Score),
		logging.String("grade", res.Grade),
	)
	return res, nil
}

func loadMap(path string, log logging.Logger) (*core.Network, *core.MapSummary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open map %q: %w", path, err)
	}
	defer f.Close()
	return core.LoadMap(f, log)
}

func loadParams(path string) (vehicle.Config, error) {
	if path == "" {
		return vehicle.DefaultConfig(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return vehicle.Config{}, fmt.Errorf("open params %q: %w", path, err)
	}
	defer f.Close()
	return vehicle.LoadConfig(f)
}

func printResult(w io.Writer, res Result) {
	fmt.Fprintf(w, "Simulated %s: %d spawned, %d arrived, %d still driving\n",
		res.Elapsed, res.Spawned, res.Arrived, res.Active)
	fmt.Fprintf(w, "Score %d, grade %s\n", res.Score, res.Grade)
}
