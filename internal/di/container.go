package di

import (
	"context"
	"errors"
	"fmt"

	"tracking-cog/internal/adapter/grpcapi"
	"tracking-cog/internal/adapter/step"
	"tracking-cog/internal/application/port/input"
	"tracking-cog/internal/application/port/output"
	"tracking-cog/internal/application/service"
	"tracking-cog/internal/config"
	"tracking-cog/internal/infrastructure/browser/rod"
	"tracking-cog/internal/infrastructure/logger"
	"tracking-cog/internal/infrastructure/metrics"
	"tracking-cog/internal/pixel"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Version is stamped at build time with -ldflags "-X".
var Version = "dev"

type Container struct {
	Config  *config.Config
	Logger  output.LoggerPort
	Pixels  *pixel.Registry
	Browser *rod.Browser
	Pool    *rod.Pool
	Steps   output.StepRegistry
	Runner  input.StepRunner
	GRPC    *grpcapi.Server
	Metrics *metrics.Server
}

func NewContainer(ctx context.Context, env output.ConfigPort) (*Container, error) {
	cfg, err := config.Load(env)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.NewLoggerAdapter(logger.Config{Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	pixels, err := pixel.Load(cfg.PixelRegistryFile)
	if err != nil {
		log.Close()
		return nil, fmt.Errorf("failed to load pixel registry: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.New(reg)

	browserCfg := rod.DefaultConfig()
	browserCfg.Headless = cfg.Browser.Headless
	browserCfg.BinPath = cfg.Browser.BinPath
	browserCfg.PoolSize = cfg.Browser.PoolSize
	browserCfg.ViewportWidth = cfg.Browser.ViewportWidth
	browserCfg.ViewportHeight = cfg.Browser.ViewportHeight
	browserCfg.Timeouts = rod.Timeouts{
		Navigation: cfg.Browser.NavigationTimeout,
		Idle:       cfg.Browser.IdleTimeout,
		Element:    cfg.Browser.ElementTimeout,
	}
	browser, err := rod.LaunchBrowser(ctx, browserCfg)
	if err != nil {
		log.Close()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}
	pool := rod.NewPool(browser, log, collector)

	steps := service.NewStepRegistry(step.All(step.Deps{
		Pixels:      pixels,
		Log:         log,
		IdleTimeout: cfg.Browser.IdleTimeout,
	})...)

	runner := service.NewDispatcher(steps, pool, collector, log, service.ManifestInfo{
		Name:    "tracking-cog",
		Label:   "Tracking Pixels",
		Version: Version,
	})

	c := &Container{
		Config:  cfg,
		Logger:  log,
		Pixels:  pixels,
		Browser: browser,
		Pool:    pool,
		Steps:   steps,
		Runner:  runner,
		GRPC:    grpcapi.NewServer(runner, log),
	}
	if cfg.MetricsBind != "" {
		c.Metrics = metrics.NewServer(cfg.MetricsBind, reg, pool.Health, log)
	}

	log.Info("container ready",
		"pool_size", cfg.Browser.PoolSize,
		"pixels", len(pixels.Names()),
		"steps", len(steps.All()),
	)
	return c, nil
}

// Close releases the browser and flushes the logger. The gRPC and metrics
// servers are stopped by the caller first.
func (c *Container) Close() error {
	var errs []error
	if c.Pool != nil {
		errs = append(errs, c.Pool.Close())
	}
	if c.Logger != nil {
		errs = append(errs, c.Logger.Close())
	}
	return errors.Join(errs...)
}
