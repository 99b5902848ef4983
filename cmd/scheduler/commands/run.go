// Package commands implements CLI command handlers for deltasched.
package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/deltasched/scheduler/internal/backend"
	"github.com/deltasched/scheduler/internal/codec"
	"github.com/deltasched/scheduler/internal/config"
	"github.com/deltasched/scheduler/internal/httpapi"
	"github.com/deltasched/scheduler/internal/observability"
	"github.com/deltasched/scheduler/internal/scheduler"
	"github.com/deltasched/scheduler/internal/transfer"
	"github.com/deltasched/scheduler/pkg/predictor"
	"github.com/deltasched/scheduler/pkg/strategy"
	"github.com/deltasched/scheduler/pkg/version"
)

type serveOptions struct {
	configFile    string
	endpointsFile string
}

// NewServeCommand builds the daemon entrypoint: load configuration, wire
// the scheduler core to its predictors/transfer/backend/codec
// dependencies, start its background loops, and serve the front-end HTTP
// API until signaled to stop.
func NewServeCommand() *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduling proxy daemon",
		RunE: func(_ *cobra.Command, _ []string) error {
			return runServe(opts)
		},
	}

	cmd.Flags().StringVar(&opts.configFile, "config", "", "Configuration file path (default: built-in defaults + env)")
	cmd.Flags().StringVar(&opts.endpointsFile, "endpoints", "", "Endpoints file path (overrides config's endpoints_file)")

	return cmd
}

func runServe(opts *serveOptions) error {
	cfg, err := config.Load(opts.configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	endpointsFile := cfg.EndpointsFile
	if opts.endpointsFile != "" {
		endpointsFile = opts.endpointsFile
	}

	endpointSpecs, err := config.LoadEndpoints(endpointsFile)
	if err != nil {
		return fmt.Errorf("load endpoints: %w", err)
	}

	version.InitBinaryVersion()

	providers, err := observability.Init(observability.Config{
		ServiceName:    "deltasched",
		ServiceVersion: version.Version,
		Mode:           observability.ModeServe,
		OTLPEndpoint:   cfg.Observability.OTLPEndpoint,
		SampleRatio:    cfg.Observability.SampleRatio,
		LogLevel:       logLevelFromString(cfg.Logging.Level),
		LogJSON:        cfg.Logging.Format == "json",
	})
	if err != nil {
		return fmt.Errorf("init observability: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()

		if shutdownErr := providers.Shutdown(shutdownCtx); shutdownErr != nil {
			providers.Logger.Error("observability shutdown failed", "error", shutdownErr)
		}
	}()

	endpoints := make([]scheduler.EndpointConfig, 0, len(endpointSpecs))
	for id, spec := range endpointSpecs {
		endpoints = append(endpoints, scheduler.EndpointConfig{
			ID:            id,
			Name:          spec.Name,
			Group:         spec.Group,
			TransferGroup: spec.TransferGroup,
			Globus:        spec.Globus,
			LaunchTime:    spec.LaunchTime,
		})
	}

	runtimePredictor, err := predictor.NewRuntimePredictor(cfg.Predictor.RuntimeKind, cfg.Predictor.LastN, cfg.Predictor.TrainEvery)
	if err != nil {
		return fmt.Errorf("construct runtime predictor: %w", err)
	}

	transferPredictor := predictor.NewTransferPredictor(cfg.Predictor.TransferTrainEvery)

	if cfg.Predictor.SnapshotPath != "" {
		if loadErr := predictor.LoadSnapshotFile(transferPredictor, cfg.Predictor.SnapshotPath); loadErr != nil {
			providers.Logger.Warn("no usable transfer-predictor snapshot, starting cold", "path", cfg.Predictor.SnapshotPath, "error", loadErr)
		}
	}

	transferClient := transfer.NewHTTPClient(cfg.Transfer.BaseURL, nil, cfg.Transfer.Timeout)
	transferMgr := transfer.NewManager(transferClient, transferPredictor.Update, providers.Logger, cfg.Transfer.MaxConcurrent)

	backendClient := backend.NewHTTPClient(cfg.Backend.BaseURL, nil, cfg.Backend.Timeout)

	s := scheduler.NewCentralScheduler(scheduler.Options{
		RuntimePredictor:  runtimePredictor,
		TransferPredictor: transferPredictor,
		TransferManager:   transferMgr,
		Backend:           backendClient,
		Codec:             codec.JSONCodec{},
		Endpoints:         endpoints,
		MaxBackups:        cfg.Scheduler.MaxBackups,
		DispatchTick:      cfg.Scheduler.DispatchTick,
		Logger:            providers.Logger,
	})

	metas := make([]strategy.EndpointMeta, len(endpoints))
	for i, ep := range endpoints {
		metas[i] = strategy.EndpointMeta{ID: ep.ID, Name: ep.Name, Group: ep.Group, TransferGroup: ep.TransferGroup}
	}

	strat, err := strategy.New(cfg.Strategy.Name, metas, s.Predictors(), cfg.Strategy.LatencyConst)
	if err != nil {
		return fmt.Errorf("construct strategy: %w", err)
	}

	s.SetStrategy(strat)

	var wg errgroup
	wg.Go(func() { s.RunDispatchLoop(ctx) })
	wg.Go(func() { s.RunWatchdogLoop(ctx, cfg.Scheduler.WatchdogInterval, cfg.Scheduler.HeartbeatThreshold.Seconds()) })
	wg.Go(func() { transferMgr.Track(ctx, cfg.Transfer.PollInterval) })

	if cfg.Predictor.SnapshotPath != "" && cfg.Predictor.SnapshotIntervalSecond > 0 {
		wg.Go(func() { runSnapshotLoop(ctx, transferPredictor, cfg, providers.Logger) })
	}

	maxRequestBody, err := cfg.Server.MaxRequestBodyBytes()
	if err != nil {
		return err
	}

	mux := httpapi.NewMux(httpapi.Deps{
		Scheduler:      s,
		Backend:        backendClient,
		Logger:         providers.Logger,
		MaxRequestBody: maxRequestBody,
	}, providers.Tracer)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := httpapi.NewServer(addr, mux)

	serveErrCh := make(chan error, 1)

	go func() {
		providers.Logger.Info("scheduling proxy listening", "addr", addr)

		if serveErr := server.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			serveErrCh <- serveErr

			return
		}

		serveErrCh <- nil
	}()

	select {
	case <-ctx.Done():
	case serveErr := <-serveErrCh:
		if serveErr != nil {
			return fmt.Errorf("serve: %w", serveErr)
		}
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), httpapi.ShutdownTimeout)
	defer shutdownCancel()

	if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
		providers.Logger.Error("server shutdown failed", "error", shutdownErr)
	}

	wg.Wait()

	if cfg.Predictor.SnapshotPath != "" {
		if saveErr := predictor.SaveSnapshot(transferPredictor, cfg.Predictor.SnapshotPath, cfg.Predictor.SnapshotCompress); saveErr != nil {
			providers.Logger.Error("final transfer-predictor snapshot save failed", "error", saveErr)
		}
	}

	return nil
}

func runSnapshotLoop(ctx context.Context, tp *predictor.TransferPredictor, cfg *config.Config, logger *slog.Logger) {
	ticker := time.NewTicker(time.Duration(cfg.Predictor.SnapshotIntervalSecond) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := predictor.SaveSnapshot(tp, cfg.Predictor.SnapshotPath, cfg.Predictor.SnapshotCompress); err != nil {
				logger.Error("periodic transfer-predictor snapshot save failed", "error", err)
			}
		}
	}
}

func logLevelFromString(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// errgroup is a minimal fire-and-forget goroutine group: every Go'd func
// runs in its own goroutine, and Wait blocks until all have returned. The
// scheduler's background loops never return a meaningful error (they run
// until ctx is canceled), so this needs none of golang.org/x/sync/errgroup's
// error propagation.
type errgroup struct {
	done []chan struct{}
}

func (g *errgroup) Go(fn func()) {
	ch := make(chan struct{})
	g.done = append(g.done, ch)

	go func() {
		defer close(ch)
		fn()
	}()
}

func (g *errgroup) Wait() {
	for _, ch := range g.done {
		<-ch
	}
}
