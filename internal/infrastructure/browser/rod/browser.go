package rod

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

const (
	defaultNavigationTimeout = 90 * time.Second
	defaultIdleTimeout       = 10 * time.Second
	defaultElementTimeout    = 10 * time.Second
)

type Config struct {
	Headless       bool
	BinPath        string
	NoSandbox      bool
	PoolSize       int
	ViewportWidth  int
	ViewportHeight int
	Timeouts       Timeouts
}

func DefaultConfig() Config {
	return Config{
		Headless:       true,
		NoSandbox:      true,
		PoolSize:       4,
		ViewportWidth:  1280,
		ViewportHeight: 800,
		Timeouts: Timeouts{
			Navigation: defaultNavigationTimeout,
			Idle:       defaultIdleTimeout,
			Element:    defaultElementTimeout,
		},
	}
}

// Browser is the single Chromium process shared by every pooled session.
type Browser struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
	cfg      Config
}

func LaunchBrowser(ctx context.Context, cfg Config) (*Browser, error) {
	cfg = withDefaults(cfg)

	l := launcher.New().
		Context(ctx).
		Headless(cfg.Headless).
		NoSandbox(cfg.NoSandbox).
		Delete("use-mock-keychain").
		Set("disable-dev-shm-usage").
		Set("disable-setuid-sandbox")
	if cfg.BinPath != "" {
		l = l.Bin(cfg.BinPath)
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		l.Cleanup()
		return nil, fmt.Errorf("failed to connect browser: %w", err)
	}

	return &Browser{browser: browser, launcher: l, cfg: cfg}, nil
}

func (b *Browser) NewSession(ctx context.Context) (pooledSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return newSession(b.browser, b.cfg)
}

func (b *Browser) Ping(ctx context.Context) error {
	if _, err := (proto.BrowserGetVersion{}).Call(b.browser.Context(ctx)); err != nil {
		return fmt.Errorf("%w: %w", ErrSessionClosed, err)
	}
	return nil
}

func (b *Browser) Close() error {
	var err error
	if b.browser != nil {
		err = b.browser.Close()
	}
	if b.launcher != nil {
		b.launcher.Kill()
		b.launcher.Cleanup()
	}
	return err
}

func withDefaults(cfg Config) Config {
	def := DefaultConfig()
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = def.PoolSize
	}
	if cfg.Timeouts.Navigation <= 0 {
		cfg.Timeouts.Navigation = def.Timeouts.Navigation
	}
	if cfg.Timeouts.Idle <= 0 {
		cfg.Timeouts.Idle = def.Timeouts.Idle
	}
	if cfg.Timeouts.Element <= 0 {
		cfg.Timeouts.Element = def.Timeouts.Element
	}
	return cfg
}
