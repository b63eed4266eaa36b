package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"net"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/signalsfoundry/traffic-simulator/core"
	"github.com/signalsfoundry/traffic-simulator/internal/logging"
	"github.com/signalsfoundry/traffic-simulator/internal/observability"
	"github.com/signalsfoundry/traffic-simulator/internal/scoring"
	"github.com/signalsfoundry/traffic-simulator/internal/sim/state"
	"github.com/signalsfoundry/traffic-simulator/internal/spawn"
	"github.com/signalsfoundry/traffic-simulator/internal/vehicle"
	"github.com/signalsfoundry/traffic-simulator/timectrl"
)

// Config holds the server settings.
type Config struct {
	GRPCAddress  string
	HTTPAddress  string
	MapPath      string
	ParamsPath   string
	Tick         time.Duration
	Accelerated  bool
	Duration     time.Duration
	Seed         int64
	SpawnRate    float64
	TogglePeriod time.Duration
}

func main() {
	cfg := Config{}
	flag.StringVar(&cfg.GRPCAddress, "grpc-addr", ":50051", "TCP address of the gRPC health service")
	flag.StringVar(&cfg.HTTPAddress, "http-addr", ":9090", "HTTP address for /metrics and the simulation API")
	flag.StringVar(&cfg.MapPath, "map", "configs/city.geojson", "GeoJSON map of junctions and roads")
	flag.StringVar(&cfg.ParamsPath, "params", "", "optional JSON file overriding vehicle parameters")
	flag.DurationVar(&cfg.Tick, "tick", 20*time.Millisecond, "frame length")
	flag.BoolVar(&cfg.Accelerated, "accelerated", false, "run as fast as possible instead of in real time")
	flag.DurationVar(&cfg.Duration, "duration", 0, "stop after this much simulated time; 0 runs until interrupted")
	flag.Int64Var(&cfg.Seed, "seed", time.Now().UnixNano(), "random seed")
	flag.Float64Var(&cfg.SpawnRate, "spawn-rate", spawn.DefaultConfig().ExpectedPerSecond, "expected vehicles spawned per second")
	flag.DurationVar(&cfg.TogglePeriod, "toggle-period", 0, "toggle every signal this often; 0 leaves it to API clients")
	flag.Parse()

	log := logging.NewFromEnv()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx, log = logging.WithRunLogger(ctx, log)

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), log)
	if err != nil {
		log.Error(ctx, "failed to initialise tracing", logging.Err(err))
		os.Exit(1)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	grpcLis, err := net.Listen("tcp", cfg.GRPCAddress)
	if err != nil {
		log.Error(ctx, "failed to listen for gRPC", logging.String("addr", cfg.GRPCAddress), logging.Err(err))
		os.Exit(1)
	}
	httpLis, err := net.Listen("tcp", cfg.HTTPAddress)
	if err != nil {
		log.Error(ctx, "failed to listen for HTTP", logging.String("addr", cfg.HTTPAddress), logging.Err(err))
		os.Exit(1)
	}

	if err := run(ctx, cfg, log, nil, grpcLis, httpLis); err != nil {
		log.Error(ctx, "sim-server failed", logging.Err(err))
		os.Exit(1)
	}
}

// run serves the simulation until ctx is cancelled or the configured
// duration has been simulated. A nil reg uses the default registry.
func run(ctx context.Context, cfg Config, log logging.Logger, reg prometheus.Registerer, grpcLis, httpLis net.Listener) error {
	defer httpLis.Close()
	collector, err := observability.NewSimCollector(reg)
	if err != nil {
		return fmt.Errorf("metrics collector: %w", err)
	}
	plannerMetrics, err := observability.NewPlannerCollector(reg)
	if err != nil {
		return fmt.Errorf("planner metrics: %w", err)
	}

	healthSrv := health.NewServer()
	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	server := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(collector.UnaryServerInterceptor()),
	)
	healthpb.RegisterHealthServer(server, healthSrv)
	go func() {
		if err := server.Serve(grpcLis); err != nil {
			log.Error(ctx, "gRPC server exited", logging.Err(err))
		}
	}()
	defer server.GracefulStop()
	log.Info(ctx, "serving gRPC health", logging.Stringer("addr", grpcLis.Addr()))

	n, err := loadMap(cfg.MapPath, log)
	if err != nil {
		return err
	}
	params := vehicle.DefaultConfig()
	if cfg.ParamsPath != "" {
		if params, err = loadParams(cfg.ParamsPath); err != nil {
			return err
		}
	}

	mode := timectrl.RealTime
	if cfg.Accelerated {
		mode = timectrl.Accelerated
	}
	tc := timectrl.NewTimeController(time.Now().UTC(), cfg.Tick, mode)
	board := scoring.NewScoreboard()
	sim, err := state.New(ctx, n,
		state.WithClock(tc),
		state.WithLogger(log),
		state.WithMetrics(collector),
		state.WithPlannerMetrics(plannerMetrics),
		state.WithScorer(board),
		state.WithRand(rand.New(rand.NewSource(cfg.Seed))),
		state.WithVehicleConfig(params),
	)
	if err != nil {
		return err
	}

	spawnCfg := spawn.DefaultConfig()
	spawnCfg.ExpectedPerSecond = cfg.SpawnRate
	spawner, err := spawn.New(sim,
		spawn.WithConfig(spawnCfg),
		spawn.WithRand(rand.New(rand.NewSource(cfg.Seed+1))),
		spawn.WithLogger(log),
	)
	if err != nil {
		return err
	}
	toggler := state.NewToggler(sim, cfg.TogglePeriod)
	if err := sim.Attach(ctx); err != nil {
		return err
	}
	tc.AddListener(func(time.Time) {
		spawner.Tick(ctx, cfg.Tick.Seconds())
		toggler.Advance(ctx, cfg.Tick)
	})

	board.Subscribe(func(ev scoring.Event) {
		log.Debug(ctx, "score changed",
			logging.Stringer("event", ev.Type),
			logging.Int("points", ev.Points),
			logging.Int("score", ev.Score),
		)
	})

	a := &api{sim: sim, board: board, log: log}
	httpSrv := &http.Server{Handler: a.routes(collector.Handler())}
	go func() {
		if err := httpSrv.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn(ctx, "HTTP server exited", logging.Err(err))
		}
	}()
	log.Info(ctx, "serving simulation API", logging.Stringer("addr", httpLis.Addr()))

	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	done := tc.Start(ctx, cfg.Duration)
	select {
	case <-ctx.Done():
	case <-done:
	}
	<-done

	healthSrv.Shutdown()
	log.Info(ctx, "shutting down sim-server",
		logging.Int("spawned", sim.Spawned()),
		logging.Int("arrived", sim.Arrived()),
		logging.Int("score", board.Total()),
		logging.String("grade", board.Grade()),
	)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}

func loadMap(path string, log logging.Logger) (*core.Network, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open map %q: %w", path, err)
	}
	defer f.Close()
	n, _, err := core.LoadMap(f, log)
	return n, err
}

func loadParams(path string) (vehicle.Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return vehicle.Config{}, fmt.Errorf("open params %q: %w", path, err)
	}
	defer f.Close()
	return vehicle.LoadConfig(f)
}
