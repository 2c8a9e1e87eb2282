// internal/orchestrator/orchestrator_test.go
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/navcrawl/internal/checks"
	"github.com/xkilldash9x/navcrawl/internal/config"
	"github.com/xkilldash9x/navcrawl/internal/discovery"
	"github.com/xkilldash9x/navcrawl/internal/linkcache"
	"github.com/xkilldash9x/navcrawl/internal/profile"
	"github.com/xkilldash9x/navcrawl/internal/session"
	"github.com/xkilldash9x/navcrawl/internal/visitor"
)

// -- Fakes --

// fakePage only implements what the orchestrator itself calls; anything
// else panics through the nil embedded interface.
type fakePage struct {
	Page
	mu        sync.Mutex
	navigated []string
	statuses  []string
}

func (p *fakePage) Navigate(ctx context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.navigated = append(p.navigated, url)
	return nil
}

func (p *fakePage) ShowStatus(ctx context.Context, message string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.statuses = append(p.statuses, message)
	return nil
}

type fakeBrowser struct {
	page        *fakePage
	startErr    error
	pageErr     error
	shutdownErr error
	started     int
	shutdowns   int
}

func (b *fakeBrowser) Start(ctx context.Context) error {
	b.started++
	return b.startErr
}

func (b *fakeBrowser) NewPage(ctx context.Context) (Page, error) {
	if b.pageErr != nil {
		return nil, b.pageErr
	}
	return b.page, nil
}

func (b *fakeBrowser) Shutdown(ctx context.Context) error {
	b.shutdowns++
	return b.shutdownErr
}

type fakeSession struct {
	confirmed bool
	err       error
	calls     int
}

func (s *fakeSession) Establish(ctx context.Context, page session.FormSurface) (bool, error) {
	s.calls++
	return s.confirmed, s.err
}

func (s *fakeSession) IsAlive(ctx context.Context, page session.Locator) (bool, error) {
	return true, nil
}

func (s *fakeSession) Recover(ctx context.Context, page session.FormSurface) (bool, error) {
	return true, nil
}

func (s *fakeSession) IsExpiredURL(string) bool { return false }

type fakeDiscoverer struct {
	links   []discovery.NavigationLink
	err     error
	calls   int
	appType profile.AppType
	profile profile.Profile
}

func (d *fakeDiscoverer) Discover(ctx context.Context, s discovery.Surface, appType profile.AppType, p profile.Profile) ([]discovery.NavigationLink, error) {
	d.calls++
	d.appType = appType
	d.profile = p
	return d.links, d.err
}

type fakeCache struct {
	links []discovery.NavigationLink
	err   error
}

func (c *fakeCache) Load() ([]discovery.NavigationLink, error) { return c.links, c.err }

type fakeVisitor struct {
	results visitor.Results
	err     error
	links   []discovery.NavigationLink
	calls   int
}

func (v *fakeVisitor) VisitAll(ctx context.Context, page visitor.Page, links []discovery.NavigationLink) (visitor.Results, error) {
	v.calls++
	v.links = links
	return v.results, v.err
}

// -- Helpers --

type harness struct {
	page       *fakePage
	browser    *fakeBrowser
	session    *fakeSession
	discoverer *fakeDiscoverer
	cache      *fakeCache
	visitor    *fakeVisitor
	orch       *Orchestrator
}

var (
	liveLinks = []discovery.NavigationLink{
		{Text: "Home", Href: "https://app.example.com/home"},
		{Text: "Reports", Href: "https://app.example.com/reports"},
	}
	cachedLinks = []discovery.NavigationLink{
		{Text: "Audit", Href: "https://app.example.com/audit"},
	}
)

func newHarness(t *testing.T, mutate func(*config.Config)) *harness {
	t.Helper()
	cfg := config.NewDefaultConfig()
	cfg.Target = "https://app.example.com/"
	cfg.Navigation.Profile = "nested_menu"
	cfg.Visit.GracePeriod = 0
	if mutate != nil {
		mutate(cfg)
	}

	h := &harness{
		page:       &fakePage{},
		session:    &fakeSession{confirmed: true},
		discoverer: &fakeDiscoverer{links: liveLinks},
		cache:      &fakeCache{links: cachedLinks},
		visitor:    &fakeVisitor{results: visitor.NewResults()},
	}
	h.browser = &fakeBrowser{page: h.page}

	orch, err := New(cfg, zaptest.NewLogger(t), Components{
		Browser:    h.browser,
		Session:    h.session,
		Discoverer: h.discoverer,
		Cache:      h.cache,
		Visitor:    h.visitor,
	})
	require.NoError(t, err)
	h.orch = orch
	return h
}

// -- Test Cases --

func TestNew(t *testing.T) {
	logger := zaptest.NewLogger(t)
	cfg := config.NewDefaultConfig()

	t.Run("NilDependencies", func(t *testing.T) {
		_, err := New(nil, logger, Components{})
		assert.Error(t, err)

		_, err = New(cfg, logger, Components{Browser: &fakeBrowser{}})
		assert.Error(t, err)
	})

	t.Run("Complete", func(t *testing.T) {
		orch, err := New(cfg, logger, Components{
			Browser:    &fakeBrowser{},
			Session:    &fakeSession{},
			Discoverer: &fakeDiscoverer{},
			Cache:      &fakeCache{},
			Visitor:    &fakeVisitor{},
		})
		require.NoError(t, err)
		assert.NotNil(t, orch)
	})
}

func TestRunDiscover(t *testing.T) {
	t.Run("ConfirmedLogin", func(t *testing.T) {
		h := newHarness(t, nil)
		links, err := h.orch.RunDiscover(context.Background())
		require.NoError(t, err)

		assert.Equal(t, liveLinks, links)
		assert.Equal(t, 1, h.session.calls)
		assert.Empty(t, h.page.navigated, "a confirmed login stays on the landing page")
		assert.Equal(t, profile.NestedMenu, h.discoverer.appType)
		assert.Equal(t, profile.Resolve(profile.NestedMenu, config.SelectorOverrides{}), h.discoverer.profile)
		assert.Equal(t, 1, h.browser.shutdowns)
		assert.Zero(t, h.visitor.calls)
	})

	t.Run("UnconfirmedLoginOpensTarget", func(t *testing.T) {
		h := newHarness(t, nil)
		h.session.confirmed = false
		_, err := h.orch.RunDiscover(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []string{"https://app.example.com/"}, h.page.navigated)
	})

	t.Run("SelectorOverrides", func(t *testing.T) {
		h := newHarness(t, func(c *config.Config) {
			c.Navigation.Profile = "generic"
			c.Navigation.Overrides.MainPanel = "#menu"
		})
		_, err := h.orch.RunDiscover(context.Background())
		require.NoError(t, err)
		assert.Equal(t, profile.Generic, h.discoverer.appType)
		assert.Equal(t, "#menu", h.discoverer.profile.MainPanel)
	})

	t.Run("LoginError", func(t *testing.T) {
		h := newHarness(t, nil)
		h.session.err = session.ErrLoginFailed
		_, err := h.orch.RunDiscover(context.Background())
		require.Error(t, err)
		assert.ErrorIs(t, err, session.ErrLoginFailed)
		assert.Zero(t, h.discoverer.calls)
		assert.Equal(t, 1, h.browser.shutdowns, "the browser is released on failure")
	})

	t.Run("DiscoveryError", func(t *testing.T) {
		h := newHarness(t, nil)
		h.discoverer.err = discovery.ErrNotAuthenticated
		_, err := h.orch.RunDiscover(context.Background())
		assert.ErrorIs(t, err, discovery.ErrNotAuthenticated)
		assert.Equal(t, 1, h.browser.shutdowns)
	})

	t.Run("StartError", func(t *testing.T) {
		h := newHarness(t, nil)
		h.browser.startErr = errors.New("no chrome")
		_, err := h.orch.RunDiscover(context.Background())
		assert.ErrorContains(t, err, "failed to start browser")
		assert.Zero(t, h.session.calls)
	})

	t.Run("NewPageError", func(t *testing.T) {
		h := newHarness(t, nil)
		h.browser.pageErr = errors.New("tab crashed")
		_, err := h.orch.RunDiscover(context.Background())
		assert.ErrorContains(t, err, "failed to open page")
		assert.Equal(t, 1, h.browser.shutdowns)
	})

	t.Run("ShutdownErrorSurfaces", func(t *testing.T) {
		h := newHarness(t, nil)
		h.browser.shutdownErr = errors.New("process stuck")
		links, err := h.orch.RunDiscover(context.Background())
		assert.ErrorContains(t, err, "process stuck")
		assert.Equal(t, liveLinks, links)
	})
}

func TestRunCrawl(t *testing.T) {
	t.Run("CachedLinks", func(t *testing.T) {
		h := newHarness(t, nil)
		out, err := h.orch.RunCrawl(context.Background(), true)
		require.NoError(t, err)

		assert.True(t, out.FromCache)
		assert.Equal(t, cachedLinks, out.Links)
		assert.Zero(t, h.discoverer.calls)
		assert.Equal(t, cachedLinks, h.visitor.links)
		assert.Equal(t, 1, h.browser.shutdowns)
	})

	t.Run("NoArtifactFallsBackToDiscovery", func(t *testing.T) {
		h := newHarness(t, nil)
		h.cache.err = fmt.Errorf("%w: missing", linkcache.ErrNoArtifact)
		out, err := h.orch.RunCrawl(context.Background(), true)
		require.NoError(t, err)

		assert.False(t, out.FromCache)
		assert.Equal(t, 1, h.discoverer.calls)
		assert.Equal(t, liveLinks, h.visitor.links)
	})

	t.Run("CacheIgnoredWithoutFlag", func(t *testing.T) {
		h := newHarness(t, nil)
		_, err := h.orch.RunCrawl(context.Background(), false)
		require.NoError(t, err)
		assert.Equal(t, 1, h.discoverer.calls)
		assert.Equal(t, liveLinks, h.visitor.links)
	})

	t.Run("CacheReadError", func(t *testing.T) {
		h := newHarness(t, nil)
		h.cache.err = errors.New("permission denied")
		_, err := h.orch.RunCrawl(context.Background(), true)
		assert.ErrorContains(t, err, "permission denied")
		assert.Zero(t, h.visitor.calls)
	})

	t.Run("NoLinks", func(t *testing.T) {
		h := newHarness(t, nil)
		h.discoverer.links = nil
		out, err := h.orch.RunCrawl(context.Background(), false)
		require.NoError(t, err)
		assert.Zero(t, h.visitor.calls)
		assert.Zero(t, out.Results.Total())
	})

	t.Run("VisitResults", func(t *testing.T) {
		h := newHarness(t, nil)
		h.visitor.results.Visited = 2
		h.visitor.results.Counts[checks.CategoryColor] = 3
		out, err := h.orch.RunCrawl(context.Background(), false)
		require.NoError(t, err)
		assert.Equal(t, 3, out.Results.Total())
	})

	t.Run("VisitErrorKeepsPartialResults", func(t *testing.T) {
		h := newHarness(t, nil)
		h.visitor.results.Visited = 1
		h.visitor.err = session.ErrLoginNotConfirmed
		out, err := h.orch.RunCrawl(context.Background(), false)
		assert.ErrorIs(t, err, session.ErrLoginNotConfirmed)
		assert.Equal(t, 1, out.Results.Visited)
		assert.Equal(t, 1, h.browser.shutdowns)
	})

	t.Run("GracePeriodAbort", func(t *testing.T) {
		h := newHarness(t, func(c *config.Config) { c.Visit.GracePeriod = time.Hour })
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		_, err := h.orch.RunCrawl(ctx, false)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Zero(t, h.visitor.calls, "aborting during the grace period skips the visit")
		assert.Equal(t, 1, h.browser.shutdowns)
		assert.Contains(t, h.page.statuses, "Visiting 2 pages shortly")
	})
}

func TestBuild(t *testing.T) {
	cfg := config.NewDefaultConfig()
	cfg.Target = "https://app.example.com/"
	cfg.Cache.Path = t.TempDir() + "/links.json"

	orch, err := Build(cfg, zaptest.NewLogger(t), Options{})
	require.NoError(t, err)
	assert.NotNil(t, orch.comp.Browser)
	assert.NotNil(t, orch.comp.Visitor)

	cfg.Checks.Palette = []string{"not-a-color"}
	_, err = Build(cfg, zaptest.NewLogger(t), Options{})
	assert.Error(t, err)

	_, err = Build(cfg, zaptest.NewLogger(t), Options{SkipChecks: []checks.Category{checks.CategoryColor}})
	assert.NoError(t, err, "an invalid palette is irrelevant when the color check is skipped")
}

func TestCheckSettings(t *testing.T) {
	cfg := config.ChecksConfig{
		Requests: true, Colors: true, Text: true,
		Palette:       []string{"#fff"},
		Screenshots:   true,
		ScreenshotDir: t.TempDir(),
	}
	s := checkSettings(cfg, []checks.Category{checks.CategoryText}, zaptest.NewLogger(t))
	assert.True(t, s.Requests)
	assert.True(t, s.Colors)
	assert.False(t, s.Text)
	assert.NotNil(t, s.Shots)

	cfg.Screenshots = false
	s = checkSettings(cfg, nil, zaptest.NewLogger(t))
	assert.Nil(t, s.Shots)
	assert.True(t, s.Text)
}
