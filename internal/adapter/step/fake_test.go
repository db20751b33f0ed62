package step

import (
	"context"
	"errors"
	"iter"
	"slices"
	"strconv"
	"time"

	"tracking-cog/internal/domain/entity"
	"tracking-cog/internal/infrastructure/logger"
	"tracking-cog/internal/pixel"

	"go.uber.org/zap"
)

type fakeSession struct {
	requests []entity.CapturedRequest
	last     *entity.NavigationResponse
	cookies  []entity.Cookie
	html     string
	url      string
	frame    string

	navigated []string
	clicked   []string
	filled    map[string]string
	scrolled  string
	failWith  error
	idleErr   error
}

func (f *fakeSession) ID() string { return "fake" }

func (f *fakeSession) Navigate(_ context.Context, url string) error {
	if f.failWith != nil {
		return f.failWith
	}
	f.navigated = append(f.navigated, url)
	f.url = url
	return nil
}

func (f *fakeSession) Click(_ context.Context, selector string) error {
	if f.failWith != nil {
		return f.failWith
	}
	f.clicked = append(f.clicked, selector)
	return nil
}

func (f *fakeSession) Fill(_ context.Context, selector, value string) error {
	if f.failWith != nil {
		return f.failWith
	}
	if f.filled == nil {
		f.filled = map[string]string{}
	}
	f.filled[selector] = value
	return nil
}

func (f *fakeSession) ScrollTo(_ context.Context, depth int, units string) error {
	if f.failWith != nil {
		return f.failWith
	}
	f.scrolled = strconv.Itoa(depth) + units
	return nil
}

func (f *fakeSession) Screenshot(context.Context) (*entity.Screenshot, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	return &entity.Screenshot{Data: []byte{0xff, 0xd8}, Format: "jpeg", Width: 1, Height: 1}, nil
}

func (f *fakeSession) HTML(context.Context) (string, error) { return f.html, f.failWith }
func (f *fakeSession) CurrentURL() string                   { return f.url }

func (f *fakeSession) Requests() iter.Seq[entity.CapturedRequest] {
	return slices.Values(f.requests)
}

func (f *fakeSession) RequestCount() int { return len(f.requests) }

func (f *fakeSession) LastResponse() (entity.NavigationResponse, bool) {
	if f.last == nil {
		return entity.NavigationResponse{}, false
	}
	return *f.last, true
}

func (f *fakeSession) WaitIdle(context.Context, time.Duration) error { return f.idleErr }

func (f *fakeSession) Cookies(context.Context) ([]entity.Cookie, error) {
	return f.cookies, f.failWith
}

func (f *fakeSession) FocusFrame(_ context.Context, selector string) error {
	if f.failWith != nil {
		return f.failWith
	}
	if selector == "main" {
		selector = ""
	}
	f.frame = selector
	return nil
}

func (f *fakeSession) CurrentFrame() string { return f.frame }

var errBrowserGone = errors.New("browser disconnected")

func testDeps() Deps {
	return Deps{
		Pixels:      pixel.Default(),
		Log:         logger.NewFromZap(zap.NewNop()),
		IdleTimeout: time.Millisecond,
	}
}

func get(url string) entity.CapturedRequest {
	return entity.CapturedRequest{URL: url, Method: "GET", Status: 200}
}
