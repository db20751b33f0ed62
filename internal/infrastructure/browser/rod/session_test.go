package rod

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/go-rod/rod/lib/launcher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tracking-cog/internal/domain/entity"
)

func TestValidateURL(t *testing.T) {
	tests := []struct {
		name string
		url  string
	}{
		{"Empty URL", ""},
		{"Invalid scheme", "ftp://example.com"},
		{"JavaScript URL", "javascript:alert(1)"},
		{"Missing host", "https://"},
		{"Relative", "/landing"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, validateURL(tt.url), ErrInvalidURL)
		})
	}

	assert.NoError(t, validateURL("https://example.com/landing?utm_source=x"))
	assert.NoError(t, validateURL(" http://127.0.0.1:8080 "))
}

func newTestSession(t *testing.T) *Session {
	t.Helper()
	if _, ok := launcher.LookPath(); !ok {
		t.Skip("chromium not found")
	}

	cfg := DefaultConfig()
	cfg.Timeouts.Element = 2 * time.Second
	cfg.Timeouts.Idle = 3 * time.Second

	b, err := LaunchBrowser(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	s, err := newSession(b.browser, b.cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.close() })
	return s
}

func newSite(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	page := func(body string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			fmt.Fprint(w, body)
		}
	}
	mux.HandleFunc("/", page(TrackingHTML))
	mux.HandleFunc("/quiet", page(QuietHTML))
	mux.HandleFunc("/form", page(FormHTML))
	mux.HandleFunc("/scroll", page(ScrollableHTML))
	mux.HandleFunc("/frames", page(FrameHostHTML))
	mux.HandleFunc("/frame", page(FrameHTML))
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("/cookie", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "_ga", Value: "GA1.1.123", Path: "/"})
		page(QuietHTML)(w, r)
	})
	mux.HandleFunc("/collect", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func collected(s *Session) []entity.CapturedRequest {
	var out []entity.CapturedRequest
	for r := range s.Requests() {
		if strings.Contains(r.URL, "/collect") {
			out = append(out, r)
		}
	}
	return out
}

func TestSession_NavigateCapturesTraffic(t *testing.T) {
	s := newTestSession(t)
	site := newSite(t)
	ctx := context.Background()

	require.NoError(t, s.Navigate(ctx, site.URL))

	require.Eventually(t, func() bool { return len(collected(s)) == 2 }, 5*time.Second, 100*time.Millisecond)
	reqs := collected(s)

	get := reqs[slices.IndexFunc(reqs, func(r entity.CapturedRequest) bool { return r.Method == "GET" })]
	assert.Contains(t, get.URL, "tid=UA-1")
	assert.Equal(t, http.StatusNoContent, get.Status)

	post := reqs[slices.IndexFunc(reqs, func(r entity.CapturedRequest) bool { return r.Method == "POST" })]
	assert.JSONEq(t, `{"event":"lead","value":42}`, post.PostBody)
	assert.Equal(t, "application/json", post.ContentType())

	resp, ok := s.LastResponse()
	require.True(t, ok)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, site.URL+"/", s.CurrentURL())
}

func TestSession_NavigateResetsLog(t *testing.T) {
	s := newTestSession(t)
	site := newSite(t)
	ctx := context.Background()

	require.NoError(t, s.Navigate(ctx, site.URL))
	require.Eventually(t, func() bool { return len(collected(s)) == 2 }, 5*time.Second, 100*time.Millisecond)

	require.NoError(t, s.Navigate(ctx, site.URL+"/missing"))
	assert.Empty(t, collected(s))

	resp, ok := s.LastResponse()
	require.True(t, ok)
	assert.Equal(t, http.StatusNotFound, resp.Status)
}

func TestSession_FillAndClick(t *testing.T) {
	s := newTestSession(t)
	site := newSite(t)
	ctx := context.Background()

	require.NoError(t, s.Navigate(ctx, site.URL+"/form"))
	require.NoError(t, s.Fill(ctx, "#email", "a@b.co"))
	require.NoError(t, s.Fill(ctx, "#plan", "Pro"))
	require.NoError(t, s.Click(ctx, "//button[@id='submit']"))

	require.Eventually(t, func() bool { return len(collected(s)) == 1 }, 5*time.Second, 100*time.Millisecond)
	assert.Contains(t, collected(s)[0].URL, "email=a%40b.co")

	err := s.Click(ctx, "#nonexistent")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "element not found")

	assert.ErrorIs(t, s.Click(ctx, " "), ErrInvalidSelector)
}

func TestSession_ScrollTo(t *testing.T) {
	s := newTestSession(t)
	site := newSite(t)
	ctx := context.Background()

	require.NoError(t, s.Navigate(ctx, site.URL+"/scroll"))
	require.NoError(t, s.ScrollTo(ctx, 50, "%"))
	require.NoError(t, s.ScrollTo(ctx, 300, "px"))

	y, err := s.page.Eval(`() => window.scrollY`)
	require.NoError(t, err)
	assert.Equal(t, 300, y.Value.Int())

	assert.ErrorIs(t, s.ScrollTo(ctx, 150, "%"), ErrInvalidScroll)
	assert.ErrorIs(t, s.ScrollTo(ctx, 10, "em"), ErrInvalidScroll)
}

func TestSession_FocusFrame(t *testing.T) {
	s := newTestSession(t)
	site := newSite(t)
	ctx := context.Background()

	require.NoError(t, s.Navigate(ctx, site.URL+"/frames"))
	require.Error(t, s.Click(ctx, "#inside"))

	require.NoError(t, s.FocusFrame(ctx, "#inner"))
	assert.Equal(t, "#inner", s.CurrentFrame())
	assert.NoError(t, s.Click(ctx, "#inside"))

	require.NoError(t, s.FocusFrame(ctx, "main"))
	assert.Empty(t, s.CurrentFrame())
}

func TestSession_CookiesScreenshotHTML(t *testing.T) {
	s := newTestSession(t)
	site := newSite(t)
	ctx := context.Background()

	require.NoError(t, s.Navigate(ctx, site.URL+"/cookie"))

	cookies, err := s.Cookies(ctx)
	require.NoError(t, err)
	idx := slices.IndexFunc(cookies, func(c entity.Cookie) bool { return c.Name == "_ga" })
	require.GreaterOrEqual(t, idx, 0)
	assert.Equal(t, "GA1.1.123", cookies[idx].Value)

	shot, err := s.Screenshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, "jpeg", shot.Format)
	assert.LessOrEqual(t, shot.Width, screenshotMaxWidth)
	assert.NotEmpty(t, shot.Data)

	html, err := s.HTML(ctx)
	require.NoError(t, err)
	assert.Contains(t, html, "nothing fires here")
}

func TestSession_ResetClearsState(t *testing.T) {
	s := newTestSession(t)
	site := newSite(t)
	ctx := context.Background()

	require.NoError(t, s.Navigate(ctx, site.URL+"/cookie"))
	require.NoError(t, s.reset(ctx))

	assert.Zero(t, s.RequestCount())
	_, ok := s.LastResponse()
	assert.False(t, ok)

	cookies, err := s.Cookies(ctx)
	require.NoError(t, err)
	assert.Empty(t, cookies)
}

func TestSession_ClosedSession(t *testing.T) {
	s := newTestSession(t)
	require.NoError(t, s.close())

	assert.ErrorIs(t, s.Navigate(context.Background(), "https://example.com"), ErrSessionClosed)
	assert.False(t, s.healthy(context.Background()))
}
