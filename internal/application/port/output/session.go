package output

import (
	"context"
	"iter"
	"time"

	"tracking-cog/internal/domain/entity"
	"tracking-cog/internal/matcher"
)

type NetworkCapture interface {
	Requests() iter.Seq[entity.CapturedRequest]
	RequestCount() int
	LastResponse() (entity.NavigationResponse, bool)
	WaitIdle(ctx context.Context, idle time.Duration) error
}

type CookieAccess interface {
	Cookies(ctx context.Context) ([]entity.Cookie, error)
}

type FrameNavigation interface {
	// FocusFrame switches element lookups into the iframe matched by selector.
	// An empty selector returns to the top-level document.
	FocusFrame(ctx context.Context, selector string) error
	CurrentFrame() string
}

type PageActions interface {
	Navigate(ctx context.Context, url string) error
	Click(ctx context.Context, selector string) error
	Fill(ctx context.Context, selector, value string) error
	ScrollTo(ctx context.Context, depth int, units string) error
	Screenshot(ctx context.Context) (*entity.Screenshot, error)
	HTML(ctx context.Context) (string, error)
	CurrentURL() string
}

// Session is one pooled browser tab together with the state steps observe.
type Session interface {
	ID() string
	PageActions
	NetworkCapture
	CookieAccess
	FrameNavigation
}

type PagePool interface {
	// Acquire checks out a session, preferring one last used with key.
	// It blocks until a slot frees up or ctx is done.
	Acquire(ctx context.Context, key string) (Session, error)
	Release(sess Session)
	Close() error
}

type PixelLookup interface {
	Lookup(name string) (entity.PixelDescriptor, error)
	Resolve(name string, params entity.ParameterSet, customDomain string) (matcher.Query, error)
	Names() []string
}
