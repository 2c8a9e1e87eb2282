// internal/discovery/engine.go
package discovery

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/navcrawl/internal/config"
	"github.com/xkilldash9x/navcrawl/internal/profile"
	"github.com/xkilldash9x/navcrawl/internal/wait"
)

// ErrNotAuthenticated is returned when discovery is asked to run against a
// login or expired-session view.
var ErrNotAuthenticated = errors.New("discovery: page is not authenticated")

// Engine produces the navigation link set for an authenticated page.
type Engine struct {
	cfg    config.DiscoveryConfig
	guard  SessionGuard
	cache  Saver
	logger *zap.Logger
}

// NewEngine wires a discovery engine. cache may be nil, in which case
// results are not persisted.
func NewEngine(cfg config.DiscoveryConfig, guard SessionGuard, cache Saver, logger *zap.Logger) *Engine {
	return &Engine{
		cfg:    cfg,
		guard:  guard,
		cache:  cache,
		logger: logger.Named("discovery"),
	}
}

// Discover runs the strategy matching appType and returns links in first
// discovery order.
func (e *Engine) Discover(ctx context.Context, s Surface, appType profile.AppType, p profile.Profile) ([]NavigationLink, error) {
	location, err := s.Location(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not read page location: %w", err)
	}
	if e.guard != nil && e.guard.IsExpiredURL(location) {
		return nil, fmt.Errorf("%w: current location %s", ErrNotAuthenticated, location)
	}

	scope, err := NewOriginScope(location, e.cfg.ExcludeTexts)
	if err != nil {
		return nil, err
	}

	e.logger.Info("Starting link discovery.",
		zap.String("location", location),
		zap.Stringer("app_type", appType))

	set := NewLinkSet()
	run := &traversal{engine: e, surface: s, scope: scope, profile: p, set: set}

	if appType == profile.NestedMenu {
		err = run.nestedMenu(ctx)
	} else {
		err = run.generic(ctx)
	}
	if err != nil {
		return nil, err
	}

	links := set.Links()
	if len(links) < e.cfg.MinExpectedLinks {
		e.logger.Warn("Discovery found fewer links than expected; check the navigation profile.",
			zap.Int("found", len(links)),
			zap.Int("expected_at_least", e.cfg.MinExpectedLinks))
	} else {
		e.logger.Info("Link discovery finished.", zap.Int("links", len(links)))
	}

	if e.cache != nil {
		if err := e.cache.Save(links); err != nil {
			e.logger.Error("Could not persist discovered links.", zap.Error(err))
		}
	}
	return links, nil
}

// traversal holds the per-call state of one discovery run.
type traversal struct {
	engine  *Engine
	surface Surface
	scope   *OriginScope
	profile profile.Profile
	set     *LinkSet
}

// accept validates anchors and folds the good ones into the set.
func (t *traversal) accept(anchors []Anchor) int {
	added := 0
	for _, a := range anchors {
		link, err := t.scope.Validate(a)
		if err != nil {
			t.engine.logger.Debug("Anchor rejected.",
				zap.String("href", a.Href),
				zap.String("text", a.Text),
				zap.String("reason", err.Error()))
			continue
		}
		if t.set.Add(link) {
			added++
		}
	}
	return added
}

// nestedMenu is the component-menu strategy: harvest every visible leaf
// first, then open each category flyout in turn.
func (t *traversal) nestedMenu(ctx context.Context) error {
	log := t.engine.logger
	entries, err := t.surface.Entries(ctx, t.profile.MainItems)
	if err != nil {
		return fmt.Errorf("could not list navigation entries: %w", err)
	}
	log.Debug("Navigation entries found.", zap.Int("count", len(entries)))

	var categories []Entry
	for _, entry := range entries {
		if len(entry.Anchors) == 0 {
			categories = append(categories, entry)
			continue
		}
		t.accept(entry.Anchors)
	}
	log.Debug("Direct links collected.", zap.Int("links", t.set.Len()), zap.Int("categories", len(categories)))

	for _, category := range categories {
		if err := ctx.Err(); err != nil {
			return err
		}
		added, err := t.expandCategory(ctx, category)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Warn("Skipping navigation category.", zap.String("category", category.Text), zap.Error(err))
		} else {
			log.Debug("Category harvested.", zap.String("category", category.Text), zap.Int("new_links", added))
		}
		if err := t.surface.Dismiss(ctx); err != nil && ctx.Err() == nil {
			log.Debug("Could not dismiss category panel.", zap.Error(err))
		}
	}
	return nil
}

func (t *traversal) expandCategory(ctx context.Context, category Entry) (int, error) {
	cfg := t.engine.cfg
	before := t.set.Len()

	clicked, err := t.surface.Click(ctx, category.Ref, t.profile.ClickTarget)
	if err != nil {
		return 0, fmt.Errorf("click failed: %w", err)
	}
	if !clicked {
		return 0, fmt.Errorf("no click target %q inside category", t.profile.ClickTarget)
	}

	opened, err := wait.Until(ctx, cfg.PanelTimeout, cfg.PollInterval, func(ctx context.Context) (bool, error) {
		n, err := t.surface.Count(ctx, t.profile.AsideWrapper)
		return n > 0, err
	})
	if err != nil && ctx.Err() != nil {
		return 0, ctx.Err()
	}
	if !opened {
		return 0, fmt.Errorf("panel %q did not appear within %s", t.profile.AsideWrapper, cfg.PanelTimeout)
	}
	// enter animation
	if err := wait.Sleep(ctx, cfg.PanelSettle); err != nil {
		return 0, err
	}

	if err := t.expandCollapsed(ctx); err != nil {
		return t.set.Len() - before, err
	}

	anchors, err := t.surface.Anchors(ctx, t.profile.FinalLink)
	if err != nil {
		return t.set.Len() - before, fmt.Errorf("could not read panel links: %w", err)
	}
	t.accept(anchors)
	return t.set.Len() - before, nil
}

// expandCollapsed opens nested groups inside the current panel. links are
// harvested after every round so a panel that closes itself again does not
// lose what was already visible. the round count is capped.
func (t *traversal) expandCollapsed(ctx context.Context) error {
	cfg := t.engine.cfg
	for i := 0; i < cfg.MaxExpandIterations; i++ {
		if anchors, err := t.surface.Anchors(ctx, t.profile.FinalLink); err == nil {
			t.accept(anchors)
		}

		collapsed, err := t.surface.Entries(ctx, t.profile.Collapsable)
		if err != nil {
			return fmt.Errorf("could not list collapsed groups: %w", err)
		}
		if len(collapsed) == 0 {
			return nil
		}
		for _, group := range collapsed {
			if _, err := t.surface.Click(ctx, group.Ref, ""); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				t.engine.logger.Debug("Could not expand group.", zap.String("group", group.Text), zap.Error(err))
			}
			if err := wait.Sleep(ctx, cfg.ClickSettle); err != nil {
				return err
			}
		}
	}
	t.engine.logger.Debug("Group expansion stopped at iteration cap.", zap.Int("cap", cfg.MaxExpandIterations))
	return nil
}

// generic is the fallback strategy: a shadow-aware deep query over the
// configured panel and items.
func (t *traversal) generic(ctx context.Context) error {
	anchors, err := t.surface.DeepAnchors(ctx, t.profile.MainPanel, t.profile.MainItems)
	if err != nil {
		return fmt.Errorf("deep anchor query failed: %w", err)
	}
	t.accept(anchors)
	return nil
}
