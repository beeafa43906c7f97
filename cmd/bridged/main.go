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
	"syscall"
	"time"

	"lanebridge/bridge"
	"lanebridge/config"
	"lanebridge/lanes"
	"lanebridge/observability/logging"
	"lanebridge/observability/otel"
	"lanebridge/rpc"
	"lanebridge/storage"
)

const envVar = "LANEBRIDGE_ENV"

// logDispatch is the default inbound payload handler: it records deliveries
// and accepts everything. Deployments embed the node and register their own
// dispatcher.
type logDispatch struct {
	log *slog.Logger
}

func (d logDispatch) IsActive(lanes.LaneID) bool { return true }

func (d logDispatch) Dispatch(lane lanes.LaneID, nonce lanes.Nonce, payload []byte) error {
	d.log.Info("dispatched inbound message", "lane", lane.String(), "nonce", uint64(nonce), "size", len(payload))
	return nil
}

func main() {
	configFile := flag.String("config", "./bridged.toml", "Path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	env := strings.TrimSpace(os.Getenv(envVar))
	logger := logging.Setup("bridged", env, logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Telemetry.Metrics || cfg.Telemetry.Traces {
		shutdown, err := otel.Init(ctx, otel.Config{
			ServiceName: "bridged",
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

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		logger.Error("failed to open database", "dir", cfg.DataDir, "err", err)
		os.Exit(1)
	}
	defer db.Close()

	dispatch := logDispatch{log: logger.With("component", "dispatch")}
	manager := lanes.NewManager(db, lanes.ChainConfig{
		MaxUnrewardedRelayerEntries: cfg.Limits.MaxUnrewardedRelayerEntries,
		MaxUnconfirmedMessages:      cfg.Limits.MaxUnconfirmedMessages,
	}, dispatch)

	moduleOpts := []bridge.Option{bridge.WithLogger(logger)}
	if cfg.MaxMessageSize > 0 {
		moduleOpts = append(moduleOpts, bridge.WithMaxMessageSize(cfg.MaxMessageSize))
	}
	if cfg.PruneDepth > 0 {
		moduleOpts = append(moduleOpts, bridge.WithPruneDepth(cfg.PruneDepth))
	}
	module := bridge.NewModule(manager, bridge.DecodingVerifier{}, dispatch, moduleOpts...)

	for _, lane := range cfg.Lanes {
		id := lanes.NewLaneID([]byte(lane.Local), []byte(lane.Remote))
		err := module.OpenLane(id)
		switch {
		case err == nil:
			logger.Info("lane ready", "lane", id.String(), "local", lane.Local, "remote", lane.Remote)
		case errors.Is(err, lanes.ErrInboundLaneAlreadyExists), errors.Is(err, lanes.ErrOutboundLaneAlreadyExists):
			logger.Info("lane already open", "lane", id.String())
		default:
			logger.Error("failed to open lane", "lane", id.String(), "err", err)
			os.Exit(1)
		}
	}

	server := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           rpc.NewServer(module, logger.With("component", "rpc")).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("bridge api listening", "addr", cfg.ListenAddress)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown failed", "err", err)
	}
}
