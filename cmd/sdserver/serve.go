package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"sdserver/internal/common/fsutil"
	"sdserver/internal/config"
	"sdserver/internal/diffusion"
	"sdserver/internal/httpapi"
	"sdserver/internal/imageio"
	"sdserver/internal/manager"
)

func runServe(ctx context.Context, cfg config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	log, closeLog := newLogger(cfg)
	defer closeLog.Close()

	storage, err := fsutil.ExpandHome(cfg.StorageDir)
	if err != nil {
		return err
	}
	cfg.StorageDir = storage
	for _, dir := range []string{cfg.CheckpointsDir(), cfg.LorasDir(), cfg.HuggingFaceDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create storage dir: %w", err)
		}
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, worker, err := selectRuntime(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := worker.Stop(); err != nil {
			log.Warn().Err(err).Msg("stop diffusion worker")
		}
	}()

	mcfg := manager.ManagerConfig{
		Runtime:        rt,
		CheckpointsDir: cfg.CheckpointsDir(),
		LorasDir:       cfg.LorasDir(),
		OriginalConfig: cfg.OriginalConfig,
		Device:         cfg.Device,
		MaxModels:      cfg.MaxModels,
		MaxQueueDepth:  cfg.MaxQueueDepth,
		MaxWait:        time.Duration(cfg.MaxWaitSeconds) * time.Second,
		StrictSamplers: cfg.StrictSamplers,
		EmbedMetadata:  cfg.EmbedMetadata,
		Publisher:      manager.LogPublisher{Log: log},
		Logger:         &log,
	}
	if cfg.OutputDir != "" {
		out, err := fsutil.ExpandHome(cfg.OutputDir)
		if err != nil {
			return err
		}
		mcfg.Output = imageio.NewDirStore(out)
	}
	mgr := manager.NewWithConfig(mcfg)
	defer func() {
		if err := mgr.Close(); err != nil {
			log.Warn().Err(err).Msg("release pipelines")
		}
	}()

	httpapi.SetLogger(log)
	httpapi.SetAuthKey(cfg.AuthKey)
	httpapi.SetMaxBodyBytes(cfg.MaxBodyBytes)
	httpapi.SetCORSOptions(cfg.CORSEnabled, cfg.CORSOrigins,
		[]string{http.MethodGet, http.MethodPost, http.MethodOptions},
		[]string{"Authorization", "Content-Type"})
	httpapi.SetBaseContext(ctx)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           httpapi.NewMux(mgr),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Addr()).Str("storage", cfg.StorageDir).Str("device", cfg.Device).
			Bool("runtime_ready", mgr.Ready()).Msg("sdserver listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	// Generations in progress run to completion; allow for a slow one.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("graceful shutdown error")
	}
	return nil
}

// selectRuntime picks the diffusion runtime: a running worker, a spawned
// worker, or the stub that fails every request.
func selectRuntime(ctx context.Context, cfg config.Config, log zerolog.Logger) (diffusion.Runtime, *diffusion.WorkerProcess, error) {
	switch {
	case cfg.WorkerURL != "":
		rt := diffusion.NewWorkerRuntime(cfg.WorkerURL, nil, log)
		if !rt.Healthy(ctx, 5*time.Second) {
			log.Warn().Str("url", cfg.WorkerURL).Msg("diffusion worker not answering yet")
		}
		return rt, nil, nil
	case cfg.WorkerCommand != "":
		wp, err := diffusion.SpawnWorker(ctx, diffusion.WorkerProcessOptions{
			Command: cfg.WorkerCommand,
			Args:    cfg.WorkerArgs,
			HFHome:  cfg.HuggingFaceDir(),
			Log:     log,
		})
		if err != nil {
			return nil, nil, err
		}
		return wp.Runtime, wp, nil
	default:
		log.Warn().Msg("no diffusion worker configured; generation requests will fail")
		return diffusion.StubRuntime{Reason: "no worker_url or worker_command configured"}, nil, nil
	}
}
