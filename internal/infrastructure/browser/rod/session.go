package rod

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"iter"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/disintegration/imaging"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/google/uuid"
	"github.com/ysmood/gson"

	"tracking-cog/internal/application/port/output"
	"tracking-cog/internal/domain/entity"
)

var _ output.Session = (*Session)(nil)

const (
	screenshotMaxWidth = 1024
	clickSettle        = 2 * time.Second
	idlePoll           = 100 * time.Millisecond
	idleQuiet          = 500 * time.Millisecond
)

// Session owns one tab in its own incognito browser context.
type Session struct {
	id      string
	ctxb    *rod.Browser
	page    *rod.Page
	timeout Timeouts

	net        *networkRecorder
	stopEvents context.CancelFunc

	mu       sync.Mutex
	frame    *rod.Page
	frameSel string

	closed atomic.Bool
}

type Timeouts struct {
	Navigation time.Duration
	Idle       time.Duration
	Element    time.Duration
}

func newSession(browser *rod.Browser, cfg Config) (*Session, error) {
	incognito, err := browser.Incognito()
	if err != nil {
		return nil, fmt.Errorf("incognito context: %w", err)
	}

	page, err := incognito.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		_ = incognito.Close()
		return nil, fmt.Errorf("create page: %w", err)
	}

	if cfg.ViewportWidth > 0 && cfg.ViewportHeight > 0 {
		_ = proto.EmulationSetDeviceMetricsOverride{
			Width:             cfg.ViewportWidth,
			Height:            cfg.ViewportHeight,
			DeviceScaleFactor: 1.0,
		}.Call(page)
	}

	s := &Session{
		id:      uuid.NewString(),
		ctxb:    incognito,
		page:    page,
		timeout: cfg.Timeouts,
		net:     newNetworkRecorder(page),
	}

	eventCtx, cancel := context.WithCancel(context.Background())
	s.stopEvents = cancel
	wait := page.Context(eventCtx).EachEvent(s.net.handlers()...)
	go wait()

	return s, nil
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) Navigate(ctx context.Context, rawURL string) error {
	if err := validateURL(rawURL); err != nil {
		return err
	}
	if err := s.alive(); err != nil {
		return err
	}

	s.net.reset()
	s.setFrame(nil, "")

	page := s.page.Context(ctx).Timeout(s.timeout.Navigation)
	if err := page.Navigate(rawURL); err != nil {
		return fmt.Errorf("navigation failed: %w", s.wrap(err))
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("wait load: %w", s.wrap(err))
	}

	return s.WaitIdle(ctx, s.timeout.Idle)
}

func (s *Session) Click(ctx context.Context, selector string) error {
	el, err := s.element(ctx, selector)
	if err != nil {
		return err
	}

	if err := el.Context(ctx).Timeout(s.timeout.Element).Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("click failed: %w", s.wrap(err))
	}

	return s.WaitIdle(ctx, clickSettle)
}

func (s *Session) Fill(ctx context.Context, selector, value string) error {
	el, err := s.element(ctx, selector)
	if err != nil {
		return err
	}
	el = el.Context(ctx).Timeout(s.timeout.Element)

	tag, err := el.Property("tagName")
	if err != nil {
		return fmt.Errorf("inspect field: %w", s.wrap(err))
	}

	switch strings.ToLower(tag.Str()) {
	case "select":
		if err := el.Select([]string{value}, true, rod.SelectorTypeText); err != nil {
			return fmt.Errorf("select failed: %w", s.wrap(err))
		}
	default:
		if err := el.SelectAllText(); err == nil {
			_ = el.Input("")
		}
		if err := el.Input(value); err != nil {
			return fmt.Errorf("input failed: %w", s.wrap(err))
		}
	}
	return nil
}

// ScrollTo scrolls the focused document to depth, measured in pixels or in
// percent of the scrollable height.
func (s *Session) ScrollTo(ctx context.Context, depth int, units string) error {
	if depth < 0 || (units != "px" && units != "%") {
		return fmt.Errorf("%w: %d%s", ErrInvalidScroll, depth, units)
	}
	if units == "%" && depth > 100 {
		return fmt.Errorf("%w: %d%%", ErrInvalidScroll, depth)
	}

	target := s.target().Context(ctx).Timeout(s.timeout.Element)
	_, err := target.Eval(`(depth, units) => {
		const el = document.scrollingElement || document.documentElement;
		const max = el.scrollHeight - window.innerHeight;
		window.scrollTo(0, units === '%' ? max * depth / 100 : depth);
	}`, depth, units)
	if err != nil {
		return fmt.Errorf("scroll failed: %w", s.wrap(err))
	}

	return s.WaitIdle(ctx, clickSettle)
}

func (s *Session) Screenshot(ctx context.Context) (*entity.Screenshot, error) {
	imgBytes, err := s.page.Context(ctx).Timeout(s.timeout.Element).Screenshot(true, &proto.PageCaptureScreenshot{
		Format:  proto.PageCaptureScreenshotFormatJpeg,
		Quality: gson.Int(80),
	})
	if err != nil {
		return nil, fmt.Errorf("screenshot failed: %w", s.wrap(err))
	}

	img, _, err := image.Decode(bytes.NewReader(imgBytes))
	if err != nil {
		return nil, fmt.Errorf("image decode failed: %w", err)
	}

	if img.Bounds().Dx() > screenshotMaxWidth {
		img = imaging.Resize(img, screenshotMaxWidth, 0, imaging.Lanczos)
	}

	buf := new(bytes.Buffer)
	if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: 75}); err != nil {
		return nil, fmt.Errorf("jpeg encode failed: %w", err)
	}

	return &entity.Screenshot{
		Data:   buf.Bytes(),
		Format: "jpeg",
		Width:  img.Bounds().Dx(),
		Height: img.Bounds().Dy(),
	}, nil
}

// HTML returns the serialized top-level document.
func (s *Session) HTML(ctx context.Context) (string, error) {
	html, err := s.page.Context(ctx).Timeout(s.timeout.Element).HTML()
	if err != nil {
		return "", fmt.Errorf("read html: %w", s.wrap(err))
	}
	return html, nil
}

func (s *Session) CurrentURL() string {
	info, err := s.page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

func (s *Session) Requests() iter.Seq[entity.CapturedRequest] {
	return s.net.log.Snapshot()
}

func (s *Session) RequestCount() int {
	return s.net.log.Len()
}

func (s *Session) LastResponse() (entity.NavigationResponse, bool) {
	return s.net.lastResponse()
}

// WaitIdle blocks until the page has had no network activity for a short
// quiet window. Reaching idle is not an error; long-polling pages never go
// quiet, so the wait simply ends.
func (s *Session) WaitIdle(ctx context.Context, idle time.Duration) error {
	deadline := time.NewTimer(idle)
	defer deadline.Stop()
	tick := time.NewTicker(idlePoll)
	defer tick.Stop()

	quiet := min(idleQuiet, idle)
	for {
		if s.net.quietFor(quiet) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return s.alive()
		case <-tick.C:
		}
	}
}

func (s *Session) Cookies(ctx context.Context) ([]entity.Cookie, error) {
	res, err := proto.NetworkGetCookies{}.Call(s.page.Context(ctx).Timeout(s.timeout.Element))
	if err != nil {
		return nil, fmt.Errorf("get cookies: %w", s.wrap(err))
	}

	out := make([]entity.Cookie, 0, len(res.Cookies))
	for _, c := range res.Cookies {
		cookie := entity.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
		}
		if c.Expires > 0 {
			cookie.Expires = c.Expires.Time()
		}
		out = append(out, cookie)
	}
	return out, nil
}

func (s *Session) FocusFrame(ctx context.Context, selector string) error {
	selector = strings.TrimSpace(selector)
	if selector == "" || strings.EqualFold(selector, "main") {
		s.setFrame(nil, "")
		return nil
	}

	el, err := s.element(ctx, selector)
	if err != nil {
		return err
	}
	frame, err := el.Frame()
	if err != nil {
		return fmt.Errorf("%s is not a frame: %w", selector, s.wrap(err))
	}
	if err := frame.Context(ctx).Timeout(s.timeout.Navigation).WaitLoad(); err != nil {
		return fmt.Errorf("wait frame load: %w", s.wrap(err))
	}

	s.setFrame(frame, selector)
	return nil
}

func (s *Session) CurrentFrame() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frameSel
}

// reset makes the session safe to hand to another scenario.
func (s *Session) reset(ctx context.Context) error {
	if err := s.alive(); err != nil {
		return err
	}

	s.net.reset()
	s.setFrame(nil, "")

	page := s.page.Context(ctx).Timeout(s.timeout.Navigation)
	if err := (proto.NetworkClearBrowserCookies{}).Call(page); err != nil {
		return fmt.Errorf("clear cookies: %w", s.wrap(err))
	}
	if err := page.Navigate("about:blank"); err != nil {
		return fmt.Errorf("blank page: %w", s.wrap(err))
	}
	s.net.reset()
	return nil
}

// healthy probes the tab with a cheap CDP round trip.
func (s *Session) healthy(ctx context.Context) bool {
	if s.closed.Load() {
		return false
	}
	_, err := s.page.Context(ctx).Timeout(2 * time.Second).Info()
	return err == nil
}

func (s *Session) close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.stopEvents()
	_ = s.page.Close()
	return s.ctxb.Close()
}

func (s *Session) alive() error {
	if s.closed.Load() {
		return ErrSessionClosed
	}
	return nil
}

// wrap maps transport failures to ErrSessionClosed so callers can tell a
// dead browser from a missing element.
func (s *Session) wrap(err error) error {
	if err == nil || errors.Is(err, ErrSessionClosed) {
		return err
	}
	if s.closed.Load() || isDisconnect(err) {
		return fmt.Errorf("%w: %w", ErrSessionClosed, err)
	}
	return err
}

func isDisconnect(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "use of closed network connection") ||
		strings.Contains(msg, "websocket: close") ||
		strings.Contains(msg, "target closed")
}

func (s *Session) target() *rod.Page {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frame != nil {
		return s.frame
	}
	return s.page
}

func (s *Session) setFrame(frame *rod.Page, selector string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frame = frame
	s.frameSel = selector
}

func (s *Session) element(ctx context.Context, selector string) (*rod.Element, error) {
	selector = strings.TrimSpace(selector)
	if selector == "" {
		return nil, ErrInvalidSelector
	}
	if err := s.alive(); err != nil {
		return nil, err
	}

	page := s.target().Context(ctx).Timeout(s.timeout.Element)

	var (
		el  *rod.Element
		err error
	)
	if isXPath(selector) {
		el, err = page.ElementX(selector)
	} else {
		el, err = page.Element(selector)
	}
	if err != nil {
		return nil, fmt.Errorf("element not found: %s: %w", selector, s.wrap(err))
	}
	return el, nil
}

func isXPath(selector string) bool {
	return strings.HasPrefix(selector, "/") || strings.HasPrefix(selector, "(/")
}

func validateURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("%w: %q: %w", ErrInvalidURL, raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: %q: scheme must be http or https", ErrInvalidURL, raw)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: %q: missing host", ErrInvalidURL, raw)
	}
	return nil
}
