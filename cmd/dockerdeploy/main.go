package main

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

	"github.com/spf13/pflag"

	"github.com/mindriot101/dockerdeploy/internal/controller"
	"github.com/mindriot101/dockerdeploy/internal/docker"
	"github.com/mindriot101/dockerdeploy/internal/heartbeat"
	httpx "github.com/mindriot101/dockerdeploy/internal/http"
	"github.com/mindriot101/dockerdeploy/internal/manifest"
	"github.com/mindriot101/dockerdeploy/internal/poller"
	"github.com/mindriot101/dockerdeploy/internal/watcher"
	"github.com/mindriot101/dockerdeploy/internal/webhook"
	"github.com/mindriot101/dockerdeploy/pkg/config"
	"github.com/mindriot101/dockerdeploy/pkg/logger"
)

var (
	buildVersion = "dev"
	buildCommit  = "none"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	flags := pflag.NewFlagSet("dockerdeploy", pflag.ContinueOnError)
	configPath := flags.StringP("config", "c", "", "path to the deploy file (required)")
	showVersion := flags.Bool("version", false, "print version and exit")
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 2
	}
	if *showVersion {
		fmt.Printf("dockerdeploy %s (%s)\n", buildVersion, buildCommit)
		return 0
	}

	if *configPath == "" {
		fmt.Fprintln(os.Stderr, "error: --config is required")
		flags.Usage()
		return 2
	}

	cfg := config.LoadDaemonConfig()
	log := logger.NewWithFormat(os.Stdout, "dockerdeploy", cfg.LogFormat, logger.ParseLevel(cfg.LogLevel))

	m, err := manifest.Parse(*configPath)
	if err != nil {
		log.Error("failed to load deploy file", "path", *configPath, "error", err)
		return 1
	}

	workDir, err := os.Getwd()
	if err != nil {
		log.Error("failed to resolve working directory", "error", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dockerClient, err := docker.New(cfg.DockerHost, log)
	if err != nil {
		log.Error("failed to create docker client", "error", err)
		return 1
	}
	defer dockerClient.Close()

	if err := dockerClient.Ping(ctx); err != nil {
		log.Error("docker ping failed", "error", err)
		return 1
	}

	queue := controller.NewQueue()
	policies := webhook.NewStore(webhook.PolicyFromManifest(m))

	ctrl, err := controller.New(controller.Options{
		Manifest:     m,
		ManifestPath: *configPath,
		Runtime:      dockerClient,
		Queue:        queue,
		Policies:     policies,
		Heartbeat:    heartbeat.NewNotifier(&http.Client{Timeout: cfg.HeartbeatTimeout}),
		Logger:       log,
		WorkDir:      workDir,
	})
	if err != nil {
		log.Error("failed to create controller", "error", err)
		return 1
	}

	fileWatcher, err := watcher.New(*configPath, queue, log)
	if err != nil {
		log.Error("failed to watch deploy file", "path", *configPath, "error", err)
		return 1
	}

	limiter := newRateLimiter(cfg, log)
	if limiter != nil {
		defer limiter.Close()
	}

	router := httpx.New(httpx.Options{
		Queue:              queue,
		Policies:           policies,
		Docker:             dockerClient,
		Logger:             log,
		Limiter:            limiter,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
	})

	addr := cfg.Addr
	if addr == "" {
		addr = m.Server.Addr()
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	controllerDone := make(chan error, 1)
	go func() { controllerDone <- ctrl.Run(ctx) }()

	fatalCh := make(chan error, 3)
	go func() {
		if err := poller.New(m.Heartbeat.Interval(), queue, log).Run(ctx); err != nil {
			fatalCh <- fmt.Errorf("poller: %w", err)
		}
	}()
	go func() {
		if err := fileWatcher.Run(ctx); err != nil {
			fatalCh <- fmt.Errorf("watcher: %w", err)
		}
	}()
	go func() {
		log.Info("dockerdeploy server starting", "addr", addr, "version", buildVersion)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatalCh <- fmt.Errorf("server: %w", err)
		}
	}()

	exitCode := 0
	select {
	case <-ctx.Done():
		log.Info("shutdown requested")
	case err := <-fatalCh:
		log.Error("fatal error", "error", err)
		exitCode = 1
	case err := <-controllerDone:
		log.Error("controller exited", "error", err)
		controllerDone <- err
		exitCode = 1
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
	queue.Close()
	select {
	case <-controllerDone:
	case <-shutdownCtx.Done():
		log.Warn("controller did not stop before shutdown timeout")
	}
	log.Info("dockerdeploy stopped")
	return exitCode
}

func newRateLimiter(cfg config.DaemonConfig, log *slog.Logger) httpx.RateLimiter {
	if cfg.RateLimitPerMinute <= 0 {
		return nil
	}
	if cfg.RateLimitRedisAddr != "" {
		limiter, err := httpx.NewRedisRateLimiter(cfg.RateLimitRedisAddr, cfg.RateLimitRedisPass, cfg.RateLimitRedisDB, log)
		if err == nil {
			log.Info("rate limiting enabled", "backend", "redis", "per_minute", cfg.RateLimitPerMinute)
			return limiter
		}
		log.Warn("redis rate limiter unavailable, falling back to memory", "addr", cfg.RateLimitRedisAddr, "error", err)
	}
	log.Info("rate limiting enabled", "backend", "memory", "per_minute", cfg.RateLimitPerMinute)
	return httpx.NewMemoryRateLimiter()
}
