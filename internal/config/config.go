// Package config is the single place where the process environment turns
// into typed settings. Everything below cmd/ receives a Config value.
package config

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"tracking-cog/internal/application/port/output"
)

const (
	DefaultPort              = 28866
	DefaultPoolSize          = 4
	DefaultNavigationTimeout = 90 * time.Second
	DefaultIdleTimeout       = 10 * time.Second
	DefaultElementTimeout    = 10 * time.Second
)

type Config struct {
	Host string
	Port int

	Browser Browser

	PixelRegistryFile string
	MetricsBind       string

	LogLevel string
	LogFile  string
}

type Browser struct {
	PoolSize          int
	Headless          bool
	BinPath           string
	NavigationTimeout time.Duration
	IdleTimeout       time.Duration
	ElementTimeout    time.Duration
	ViewportWidth     int
	ViewportHeight    int
}

// Load reads every setting from cfg. Invalid values fall back to defaults at
// the ConfigPort level; Load only rejects combinations that cannot work.
func Load(cfg output.ConfigPort) (*Config, error) {
	c := &Config{
		Host: cfg.GetWithDefault("HOST", "0.0.0.0"),
		Port: cfg.GetInt("PORT", DefaultPort),
		Browser: Browser{
			PoolSize:          cfg.GetInt("BROWSER_POOL_SIZE", DefaultPoolSize),
			Headless:          cfg.GetBool("BROWSER_HEADLESS", true),
			BinPath:           cfg.Get("BROWSER_BIN"),
			NavigationTimeout: cfg.GetDuration("NAVIGATION_TIMEOUT", DefaultNavigationTimeout),
			IdleTimeout:       cfg.GetDuration("NETWORK_IDLE_TIMEOUT", DefaultIdleTimeout),
			ElementTimeout:    cfg.GetDuration("ELEMENT_TIMEOUT", DefaultElementTimeout),
			ViewportWidth:     cfg.GetInt("VIEWPORT_WIDTH", 1280),
			ViewportHeight:    cfg.GetInt("VIEWPORT_HEIGHT", 800),
		},
		PixelRegistryFile: cfg.Get("PIXEL_REGISTRY_FILE"),
		MetricsBind:       cfg.Get("METRICS_BIND"),
		LogLevel:          cfg.GetWithDefault("LOG_LEVEL", "info"),
		LogFile:           cfg.Get("LOG_FILE"),
	}

	if c.Port <= 0 || c.Port > 65535 {
		return nil, fmt.Errorf("PORT %d out of range", c.Port)
	}
	if c.Browser.PoolSize < 1 {
		return nil, fmt.Errorf("BROWSER_POOL_SIZE must be at least 1, got %d", c.Browser.PoolSize)
	}
	for name, d := range map[string]time.Duration{
		"NAVIGATION_TIMEOUT":   c.Browser.NavigationTimeout,
		"NETWORK_IDLE_TIMEOUT": c.Browser.IdleTimeout,
		"ELEMENT_TIMEOUT":      c.Browser.ElementTimeout,
	} {
		if d <= 0 {
			return nil, fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}
	return c, nil
}

// Addr is the gRPC listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
