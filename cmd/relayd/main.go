package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"lanebridge/lanes"
	"lanebridge/observability/logging"
	"lanebridge/observability/otel"
	"lanebridge/relay"
	"lanebridge/rpc"
)

const envVar = "LANEBRIDGE_ENV"

func main() {
	configFile := flag.String("config", "./relayd.yaml", "Path to the configuration file")
	flag.Parse()

	cfg, err := loadRelayConfig(*configFile)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	env := strings.TrimSpace(os.Getenv(envVar))
	logger := logging.Setup("relayd", env, logging.Options{Level: cfg.LogLevel})

	relayer := cfg.Relayer
	if relayer == "" {
		relayer = "relayd-" + uuid.NewString()
	}
	logger = logger.With("relayer", relayer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Telemetry.Metrics || cfg.Telemetry.Traces {
		shutdown, err := otel.Init(ctx, otel.Config{
			ServiceName: "relayd",
			Environment: env,
			Endpoint:    cfg.Telemetry.Endpoint,
			Insecure:    cfg.Telemetry.Insecure,
			Metrics:     cfg.Telemetry.Metrics,
			Traces:      cfg.Telemetry.Traces,
		})
		if err != nil {
			logger.Error("failed to initialise telemetry", "err", err)
			os.Exit(1)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				logger.Warn("telemetry shutdown failed", "err", err)
			}
		}()
	}

	if cfg.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		})
		metricsServer := &http.Server{Addr: cfg.MetricsAddress, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		go func() {
			logger.Info("metrics listening", "addr", cfg.MetricsAddress)
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "err", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metricsServer.Shutdown(shutdownCtx)
		}()
	}

	sourceClient := rpc.NewClient(cfg.Source.URL, relayer, nil)
	targetClient := rpc.NewClient(cfg.Target.URL, relayer, nil)

	opts := loopOptions(cfg)
	var wg sync.WaitGroup
	for _, lane := range cfg.Lanes {
		id := lanes.NewLaneID([]byte(lane.Local), []byte(lane.Remote))
		runLoop(ctx, &wg, logger, stop, "forward", id,
			relay.NewLoop(sourceClient, targetClient, id, opts...))
		if cfg.Bidirectional {
			runLoop(ctx, &wg, logger, stop, "reverse", id,
				relay.NewLoop(targetClient, sourceClient, id, opts...))
		}
	}

	wg.Wait()
	logger.Info("all lane loops stopped")
}

func loopOptions(cfg relayConfig) []relay.Option {
	opts := []relay.Option{}
	if cfg.PollInterval > 0 {
		opts = append(opts, relay.WithPollInterval(cfg.PollInterval))
	}
	if cfg.StallTimeout > 0 {
		opts = append(opts, relay.WithStallTimeout(cfg.StallTimeout))
	}
	if cfg.ReconnectDelay > 0 {
		opts = append(opts, relay.WithReconnectDelay(cfg.ReconnectDelay))
	}
	if cfg.BatchSize > 0 {
		opts = append(opts, relay.WithBatchSize(cfg.BatchSize))
	}
	if cfg.MaxRelayerEntries > 0 || cfg.MaxUnconfirmedMessages > 0 {
		opts = append(opts, relay.WithLaneLimits(cfg.MaxRelayerEntries, cfg.MaxUnconfirmedMessages))
	}
	if cfg.SubmissionsPerSecond > 0 {
		opts = append(opts, relay.WithRateLimit(rate.Limit(cfg.SubmissionsPerSecond), 1))
	}
	return opts
}

// runLoop supervises one lane direction, restarting stalled loops and taking
// the whole process down on unexpected failures.
func runLoop(ctx context.Context, wg *sync.WaitGroup, logger *slog.Logger, stop context.CancelFunc, direction string, id lanes.LaneID, loop *relay.Loop) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		log := logger.With("lane", id.String(), "direction", direction)
		for {
			err := loop.Run(ctx)
			switch {
			case errors.Is(err, context.Canceled):
				return
			case errors.Is(err, relay.ErrStalled):
				log.Warn("lane stalled, restarting loop")
				continue
			default:
				log.Error("lane loop failed", "err", err)
				stop()
				return
			}
		}
	}()
}
