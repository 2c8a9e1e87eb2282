// internal/discovery/engine_test.go
package discovery

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/navcrawl/internal/config"
	"github.com/xkilldash9x/navcrawl/internal/profile"
)

const appURL = "https://app.example.com/app/home"

// -- Test Helpers --

type fakeGuard struct{}

func (fakeGuard) IsExpiredURL(raw string) bool {
	return strings.Contains(strings.ToLower(raw), "/login")
}

type recordingSaver struct {
	saved [][]NavigationLink
	err   error
}

func (r *recordingSaver) Save(links []NavigationLink) error {
	r.saved = append(r.saved, links)
	return r.err
}

func testDiscoveryConfig() config.DiscoveryConfig {
	return config.DiscoveryConfig{
		PanelTimeout:        200 * time.Millisecond,
		PanelSettle:         time.Millisecond,
		ClickSettle:         time.Millisecond,
		PollInterval:        5 * time.Millisecond,
		MaxExpandIterations: 10,
		MinExpectedLinks:    1,
		ExcludeTexts:        []string{"logout", "sign out", "sair"},
	}
}

func newTestEngine(t *testing.T, saver Saver) *Engine {
	t.Helper()
	return NewEngine(testDiscoveryConfig(), fakeGuard{}, saver, zaptest.NewLogger(t))
}

// asidePanel renders the flyout a nested-menu category reveals.
func asidePanel(body string) string {
	return `<div class="fuse-vertical-navigation-aside-wrapper"><fuse-vertical-navigation-aside-item>` +
		`<div class="fuse-vertical-navigation-item-children">` + body + `</div>` +
		`</fuse-vertical-navigation-aside-item></div>`
}

func basicItem(href, text string) string {
	return `<fuse-vertical-navigation-basic-item><a href="` + href + `"><span>` + text + `</span></a></fuse-vertical-navigation-basic-item>`
}

const nestedMenuPage = `<html><body>
<fuse-vertical-navigation><div class="fuse-vertical-navigation-wrapper"><div class="fuse-vertical-navigation-content">
  <fuse-vertical-navigation-basic-item><a href="/home"><span>Home</span></a></fuse-vertical-navigation-basic-item>
  <fuse-vertical-navigation-aside-item data-action="traffic"><div><div>Traffic</div></div></fuse-vertical-navigation-aside-item>
  <fuse-vertical-navigation-aside-item data-action="reports"><div><div>Reports</div></div></fuse-vertical-navigation-aside-item>
</div></div></fuse-vertical-navigation>
</body></html>`

func nestedMenuDOM() *fakeDOM {
	return newFakeDOM(appURL, nestedMenuPage).
		on("traffic", func(d *fakeDOM) {
			d.appendToBody(asidePanel(basicItem("/traffic/live", "Live") + basicItem("/traffic/history", "History")))
		}).
		on("reports", func(d *fakeDOM) {
			d.appendToBody(asidePanel(basicItem("/reports/daily", "Daily") + basicItem("/reports/monthly", "Monthly")))
		})
}

// -- Strategy A --

func TestDiscover_NestedMenu(t *testing.T) {
	t.Run("leaf then categories in order", func(t *testing.T) {
		saver := &recordingSaver{}
		dom := nestedMenuDOM()
		p := profile.Resolve(profile.NestedMenu, config.SelectorOverrides{})

		links, err := newTestEngine(t, saver).Discover(context.Background(), dom, profile.NestedMenu, p)
		require.NoError(t, err)

		want := []NavigationLink{
			{Text: "Home", Href: "https://app.example.com/home"},
			{Text: "Live", Href: "https://app.example.com/traffic/live"},
			{Text: "History", Href: "https://app.example.com/traffic/history"},
			{Text: "Daily", Href: "https://app.example.com/reports/daily"},
			{Text: "Monthly", Href: "https://app.example.com/reports/monthly"},
		}
		if diff := cmp.Diff(want, links); diff != "" {
			t.Errorf("discovered links mismatch (-want +got):\n%s", diff)
		}
		assert.Equal(t, 1, dom.clicks["traffic"])
		assert.Equal(t, 1, dom.clicks["reports"])
		assert.Equal(t, 2, dom.dismissals, "each category panel is dismissed")
		require.Len(t, saver.saved, 1)
		assert.Equal(t, links, saver.saved[0])
	})

	t.Run("nested collapsed groups are expanded", func(t *testing.T) {
		dom := nestedMenuDOM().
			on("traffic", func(d *fakeDOM) {
				d.appendToBody(asidePanel(basicItem("/traffic/live", "Live") +
					`<fuse-vertical-navigation-collapsable-item class="fuse-vertical-navigation-item-collapsed" data-action="archive">` +
					`<div><div>Archive</div></div></fuse-vertical-navigation-collapsable-item>`))
			}).
			on("archive", func(d *fakeDOM) {
				group := d.doc.Find(`[data-action="archive"]`)
				group.RemoveClass("fuse-vertical-navigation-item-collapsed")
				group.AppendHtml(basicItem("/traffic/archive/2023", "2023"))
			})

		p := profile.Resolve(profile.NestedMenu, config.SelectorOverrides{})
		links, err := newTestEngine(t, nil).Discover(context.Background(), dom, profile.NestedMenu, p)
		require.NoError(t, err)

		hrefs := hrefsOf(links)
		assert.Contains(t, hrefs, "https://app.example.com/traffic/archive/2023")
		assert.Equal(t, 1, dom.clicks["archive"])
	})

	t.Run("self-closing group stops at iteration cap and keeps links", func(t *testing.T) {
		dom := nestedMenuDOM().
			on("traffic", func(d *fakeDOM) {
				d.appendToBody(asidePanel(`<fuse-vertical-navigation-collapsable-item class="fuse-vertical-navigation-item-collapsed" data-action="flaky">` +
					`<div><div>Flaky</div></div></fuse-vertical-navigation-collapsable-item>`))
			}).
			on("flaky", func(d *fakeDOM) {
				group := d.doc.Find(`[data-action="flaky"]`)
				// the group reveals its child and immediately collapses again.
				if group.Find("a").Length() == 0 {
					group.AppendHtml(basicItem("/traffic/flaky", "Flaky Child"))
				}
				group.AddClass("fuse-vertical-navigation-item-collapsed")
			})

		engine := newTestEngine(t, nil)
		p := profile.Resolve(profile.NestedMenu, config.SelectorOverrides{})
		links, err := engine.Discover(context.Background(), dom, profile.NestedMenu, p)
		require.NoError(t, err)

		assert.Equal(t, engine.cfg.MaxExpandIterations, dom.clicks["flaky"])
		assert.Contains(t, hrefsOf(links), "https://app.example.com/traffic/flaky")
		assert.Contains(t, hrefsOf(links), "https://app.example.com/reports/daily", "later categories are still processed")
	})

	t.Run("category without panel is skipped", func(t *testing.T) {
		dom := nestedMenuDOM()
		dom.handlers["traffic"] = nil

		p := profile.Resolve(profile.NestedMenu, config.SelectorOverrides{})
		links, err := newTestEngine(t, nil).Discover(context.Background(), dom, profile.NestedMenu, p)
		require.NoError(t, err)
		assert.Equal(t, []string{
			"https://app.example.com/home",
			"https://app.example.com/reports/daily",
			"https://app.example.com/reports/monthly",
		}, hrefsOf(links))
	})

	t.Run("fragment, cross-origin and logout anchors are rejected", func(t *testing.T) {
		dom := nestedMenuDOM().
			on("traffic", func(d *fakeDOM) {
				d.appendToBody(asidePanel(
					basicItem("#", "Filters") +
						basicItem("https://evil.example.org/steal", "Partner") +
						basicItem("/auth/logout", "Logout") +
						basicItem("javascript:void(0)", "Noop") +
						basicItem("/traffic/live", "Live")))
			})

		p := profile.Resolve(profile.NestedMenu, config.SelectorOverrides{})
		links, err := newTestEngine(t, nil).Discover(context.Background(), dom, profile.NestedMenu, p)
		require.NoError(t, err)

		for _, l := range links {
			assert.NotEqual(t, "Filters", l.Text)
			assert.True(t, strings.HasPrefix(l.Href, "https://app.example.com/"), l.Href)
			assert.NotContains(t, strings.ToLower(l.Text), "logout")
		}
		assert.Contains(t, hrefsOf(links), "https://app.example.com/traffic/live")
	})
}

// -- Strategy B --

const genericPage = `<html><body>
<nav id="navigation">
  <a href="/dashboard">Dashboard</a>
  <a href="#">Filters</a>
  <ul class="dropdown">
    <li><a href="/users?tab=active">Active users</a></li>
    <li><a href="/users?tab=blocked">Blocked users</a></li>
    <li><a href="/dashboard#">Dashboard again</a></li>
  </ul>
  <a href="/session/end">Sign Out</a>
</nav>
<footer><a href="/privacy">Privacy</a></footer>
</body></html>`

func TestDiscover_Generic(t *testing.T) {
	p := profile.Resolve(profile.Generic, config.SelectorOverrides{})

	t.Run("collects panel anchors only", func(t *testing.T) {
		dom := newFakeDOM(appURL, genericPage)
		links, err := newTestEngine(t, nil).Discover(context.Background(), dom, profile.Generic, p)
		require.NoError(t, err)

		want := []NavigationLink{
			{Text: "Dashboard", Href: "https://app.example.com/dashboard"},
			{Text: "Active users", Href: "https://app.example.com/users?tab=active"},
			{Text: "Blocked users", Href: "https://app.example.com/users?tab=blocked"},
		}
		if diff := cmp.Diff(want, links); diff != "" {
			t.Errorf("discovered links mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("missing panel falls back to the document", func(t *testing.T) {
		dom := newFakeDOM(appURL, `<html><body><div><a href="/a">A</a><a href="/b">B</a></div></body></html>`)
		links, err := newTestEngine(t, nil).Discover(context.Background(), dom, profile.Generic, p)
		require.NoError(t, err)
		assert.Equal(t, []string{"https://app.example.com/a", "https://app.example.com/b"}, hrefsOf(links))
	})

	t.Run("idempotent against an unchanged document", func(t *testing.T) {
		dom := newFakeDOM(appURL, genericPage)
		engine := newTestEngine(t, nil)
		first, err := engine.Discover(context.Background(), dom, profile.Generic, p)
		require.NoError(t, err)
		second, err := engine.Discover(context.Background(), dom, profile.Generic, p)
		require.NoError(t, err)
		assert.ElementsMatch(t, first, second)
	})
}

// -- Preconditions and invariants --

func TestDiscover_RequiresAuthenticatedPage(t *testing.T) {
	saver := &recordingSaver{}
	dom := newFakeDOM("https://app.example.com/login?next=/app", genericPage)

	_, err := newTestEngine(t, saver).Discover(context.Background(), dom, profile.Generic, profile.Builtin(profile.Generic))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotAuthenticated))
	assert.Empty(t, saver.saved, "nothing is persisted for an unauthenticated view")
}

func TestDiscover_SaveFailureIsNotFatal(t *testing.T) {
	saver := &recordingSaver{err: errors.New("disk full")}
	dom := newFakeDOM(appURL, genericPage)

	links, err := newTestEngine(t, saver).Discover(context.Background(), dom, profile.Generic, profile.Builtin(profile.Generic))
	require.NoError(t, err)
	assert.NotEmpty(t, links)
}

func TestDiscover_Invariants(t *testing.T) {
	dom := nestedMenuDOM().
		on("traffic", func(d *fakeDOM) {
			d.appendToBody(asidePanel(basicItem("/home", "Home duplicate") + basicItem("/traffic/live", "Live")))
		})
	p := profile.Resolve(profile.NestedMenu, config.SelectorOverrides{})

	links, err := newTestEngine(t, nil).Discover(context.Background(), dom, profile.NestedMenu, p)
	require.NoError(t, err)

	seen := make(map[string]bool)
	for _, l := range links {
		assert.False(t, seen[l.Href], "duplicate href %s", l.Href)
		seen[l.Href] = true
		assert.True(t, strings.HasPrefix(l.Href, "https://app.example.com/"))
		assert.NotEmpty(t, l.Text)
	}
	assert.Equal(t, "Home", links[0].Text, "first seen text wins")
}

func TestDiscover_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := profile.Resolve(profile.NestedMenu, config.SelectorOverrides{})
	_, err := newTestEngine(t, nil).Discover(ctx, nestedMenuDOM(), profile.NestedMenu, p)
	assert.ErrorIs(t, err, context.Canceled)
}

func hrefsOf(links []NavigationLink) []string {
	out := make([]string, len(links))
	for i, l := range links {
		out[i] = l.Href
	}
	return out
}
