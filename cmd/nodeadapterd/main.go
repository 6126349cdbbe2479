package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"nodeadapter/internal/config"
	"nodeadapter/internal/metrics"
	"nodeadapter/internal/node"
	"nodeadapter/internal/status"
	"nodeadapter/internal/watch"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("node adapter stopped", zap.Error(err))
	}
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = lvl
	return zcfg.Build()
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	prom, err := metrics.NewPromRecorder("nodeadapter")
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}
	metrics.Default = prom

	coin := cfg.CoinInfo()
	client, err := node.NewClient(ctx, node.CoinInfo{
		Name:             coin.Name,
		RationalPartSize: coin.RationalPartSize,
		DefaultRPCPort:   coin.DefaultRPCPort,
		SegwitEnabled:    coin.SegwitEnabled,
	}, cfg.NodeAddress, cfg.RPCLogin, cfg.RPCPassword, node.Options{
		LongPoll: cfg.LongPoll,
		Logger:   logger,
		Metrics:  prom,
	})
	if err != nil {
		var cfgErr *node.ConfigError
		if errors.As(err, &cfgErr) {
			logger.Fatal("node misconfigured", zap.String("address", cfgErr.Address), zap.String("reason", cfgErr.Reason), zap.Error(cfgErr.Err))
		}
		return fmt.Errorf("init node client: %w", err)
	}
	defer client.Close()

	restartDelay := time.Duration(cfg.RestartDelaySecs) * time.Second
	work := watch.NewWorkMonitor(client, restartDelay, nil, logger, nil)
	defer work.Stop()
	client.SetDispatcher(work)

	watcher := watch.New(client, watch.Options{
		BalanceCron:       cfg.BalanceCron,
		ConfirmationsCron: cfg.ConfirmationsCron,
		Maturity:          cfg.BlockMaturity,
		Logger:            logger,
		Metrics:           prom,
	})
	for _, b := range cfg.TrackBlocks {
		watcher.Track(b.Height, b.Hash)
	}
	stopWatcher, err := watcher.Start()
	if err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}
	defer stopWatcher()

	client.Poll()
	logger.Info("node adapter started", zap.String("coin", coin.Name), zap.String("node", client.Endpoint().Address), zap.Bool("long_poll", cfg.LongPoll))

	g, gctx := errgroup.WithContext(ctx)
	if cfg.MetricsListen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", prom.Handler())
		mux.Handle("/status", status.New(client, work, watcher))
		srv := &http.Server{Addr: cfg.MetricsListen, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

		g.Go(func() error {
			logger.Info("metrics/status listening", zap.String("addr", cfg.MetricsListen))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown signal received, stopping...")
		return nil
	})
	return g.Wait()
}
